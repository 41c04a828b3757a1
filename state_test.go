// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateBlockEncodeDecodeRoundTripWithHead(t *testing.T) {
	sb := stateBlock{
		Config: Config{Checksum: ChecksumXXHash64, Compression: CompressionSnappy},
		State: State{
			FreelistHead: &FreelistHead{Cluster: 77, Checksum: 0x1122334455667788, Counter: 12},
		},
	}

	decoded := decodeStateBlock(sb.encode())
	require.Equal(t, sb.Config, decoded.Config)
	require.NotNil(t, decoded.State.FreelistHead)
	require.Equal(t, *sb.State.FreelistHead, *decoded.State.FreelistHead)
}

func TestStateBlockEncodeDecodeRoundTripEmptyFreelist(t *testing.T) {
	sb := stateBlock{Config: Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}}
	decoded := decodeStateBlock(sb.encode())
	require.Equal(t, sb.Config, decoded.Config)
	require.Nil(t, decoded.State.FreelistHead)
}
