// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.incCacheHit()
		m.incCacheMiss()
		m.incDedupHit()
		m.incPagesAllocated()
		m.incPagesFreed()
		m.incPageChecksumFail()
		m.incFreelistPop()
		m.incFreelistPush()
		m.incMetaclusterCkFail()
	})
	require.Nil(t, m.Collectors())
}

func TestNewMetricsCollectorsNonNil(t *testing.T) {
	m := NewMetrics("tfs_test")
	collectors := m.Collectors()
	require.Len(t, collectors, 9)
	for _, c := range collectors {
		require.NotNil(t, c)
	}
}
