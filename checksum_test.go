// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumDeterministic(t *testing.T) {
	for _, algo := range []ChecksumAlgorithm{ChecksumCRC64, ChecksumXXHash64} {
		buf := []byte("a page's worth of content, or a stand-in for one")
		require.Equal(t, algo.hash64(buf), algo.hash64(buf))
		require.Equal(t, algo.hash32(buf), algo.hash32(buf))
	}
}

func TestChecksumDiffersOnMutation(t *testing.T) {
	for _, algo := range []ChecksumAlgorithm{ChecksumCRC64, ChecksumXXHash64} {
		buf := make([]byte, SectorSize)
		before := algo.hash32(buf)
		buf[100] ^= 0x01
		after := algo.hash32(buf)
		require.NotEqual(t, before, after)
	}
}
