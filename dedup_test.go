// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupTableInsertLookupRemove(t *testing.T) {
	table := NewDedupTable()
	buf := []byte("duplicate page content")
	checksum := ChecksumCRC64.hash32(buf)
	ptr := PagePointer{Cluster: 7, Checksum: checksum}

	_, ok := table.Lookup(buf, checksum)
	require.False(t, ok)

	table.Insert(buf, checksum, ptr)
	got, ok := table.Lookup(buf, checksum)
	require.True(t, ok)
	require.Equal(t, ptr, got)

	table.Remove(buf, checksum)
	_, ok = table.Lookup(buf, checksum)
	require.False(t, ok)
}

func TestDedupTableRemoveByPointer(t *testing.T) {
	table := NewDedupTable()
	buf := []byte("page content removed by pointer")
	checksum := ChecksumCRC64.hash32(buf)
	ptr := PagePointer{Cluster: 9, Checksum: checksum}

	table.Insert(buf, checksum, ptr)
	_, ok := table.Lookup(buf, checksum)
	require.True(t, ok)

	table.RemoveByPointer(ptr)
	_, ok = table.Lookup(buf, checksum)
	require.False(t, ok)

	// Removing an unknown pointer is a no-op, not a panic.
	table.RemoveByPointer(PagePointer{Cluster: 404})
}

func TestDedupTableInsertOverwritesReverseIndexForReusedPointer(t *testing.T) {
	table := NewDedupTable()
	ptr := PagePointer{Cluster: 3}
	oldBuf, oldChecksum := []byte("old content"), ChecksumCRC64.hash32([]byte("old content"))
	newBuf, newChecksum := []byte("new content"), ChecksumCRC64.hash32([]byte("new content"))

	table.Insert(oldBuf, oldChecksum, ptr)
	table.Insert(newBuf, newChecksum, ptr)

	// RemoveByPointer must invalidate the most recent mapping, not a stale
	// reverse-index entry left over from the first Insert.
	table.RemoveByPointer(ptr)
	_, ok := table.Lookup(newBuf, newChecksum)
	require.False(t, ok)
}

func TestDedupTableDistinguishesChecksumCollisions(t *testing.T) {
	table := NewDedupTable()
	a, b := []byte("content A"), []byte("content B, different")
	// Force a collision: same checksum, different content.
	const sharedChecksum = 0xCAFEBABE
	table.Insert(a, sharedChecksum, PagePointer{Cluster: 1})
	table.Insert(b, sharedChecksum, PagePointer{Cluster: 2})

	gotA, ok := table.Lookup(a, sharedChecksum)
	require.True(t, ok)
	require.Equal(t, ClusterPtr(1), gotA.Cluster)

	gotB, ok := table.Lookup(b, sharedChecksum)
	require.True(t, ok)
	require.Equal(t, ClusterPtr(2), gotB.Cluster)
}
