// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

const stateBlockCluster = ClusterPtr(1)

func newTestManager(t *testing.T, config Config, freeClusters []ClusterPtr) (*Manager, *MemDevice) {
	t.Helper()
	dev := NewMemDevice(4096, stateBlockCluster)
	m, err := Format(dev, stateBlockCluster, config, 64, freeClusters)
	require.NoError(t, err)
	return m, dev
}

// Scenario 1: write-read identity with compression disabled.
func TestManagerWriteReadIdentityNoCompression(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{10, 11, 12})

	page := bytes.Repeat([]byte{0xAA}, SectorSize)
	alloc, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, alloc.Commit(m.cache))
	require.Nil(t, alloc.Value.Offset)

	got, err := m.Read(alloc.Value)
	require.NoError(t, err)
	require.Equal(t, page, got)
}

// Dedup idempotence: allocating identical content twice returns the same
// pointer both times, without consuming a second cluster.
func TestManagerAllocIsDedupIdempotent(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{30, 31})

	page := bytes.Repeat([]byte{0x42}, SectorSize)
	first, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, first.Commit(m.cache))

	second, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, second.Commit(m.cache))

	require.Equal(t, first.Value, second.Value)

	// Only one of the two free clusters should have been consumed.
	_, err = m.freelist.Pop()
	require.NoError(t, err)
	_, err = m.freelist.Pop()
	require.Error(t, err)
}

// Scenario 6: corruption detection via Read's checksum verification.
func TestManagerReadDetectsCorruption(t *testing.T) {
	m, dev := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{5})

	page := bytes.Repeat([]byte{0x11}, SectorSize)
	alloc, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, alloc.Commit(m.cache))

	dev.corrupt(alloc.Value.Cluster, 0, 0xFF)
	m.cache.entries.Remove(alloc.Value.Cluster)

	_, err = m.Read(alloc.Value)
	require.Error(t, err)
	var cerr *ErrPageChecksumMismatch
	require.ErrorAs(t, err, &cerr)
	require.NotEqual(t, alloc.Value.Checksum, cerr.Found)
}

// Scenario 4: freelist exhaustion surfaces as ErrOutOfClusters from Alloc.
func TestManagerAllocOutOfClusters(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{7})

	_, err := m.Alloc(bytes.Repeat([]byte{1}, SectorSize))
	require.NoError(t, err)

	_, err = m.Alloc(bytes.Repeat([]byte{2}, SectorSize))
	require.Error(t, err)
	var oc *ErrOutOfClusters
	require.ErrorAs(t, err, &oc)
}

func TestManagerFreeReturnsClusterToFreelist(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{40})

	page := bytes.Repeat([]byte{3}, SectorSize)
	alloc, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, alloc.Commit(m.cache))

	txn := m.Free(alloc.Value)
	tr := wrapValue(txn, struct{}{})
	require.NoError(t, tr.Commit(m.cache))

	popped, err := m.freelist.Pop()
	require.NoError(t, err)
	require.Equal(t, alloc.Value.Cluster, popped.Value)
}

// Free must invalidate the dedup entry for the page it frees: otherwise a
// later Alloc of identical content would resolve, via a stale dedup hit, to
// a pointer whose cluster has already been returned to the freelist and may
// be handed out again to unrelated content (spec.md §3 invariant 6).
func TestManagerAllocAfterFreeDoesNotReuseStaleDedupEntry(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionIdentity}, []ClusterPtr{60, 61})

	page := bytes.Repeat([]byte{7}, SectorSize)
	first, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, first.Commit(m.cache))

	freeTxn := wrapValue(m.Free(first.Value), struct{}{})
	require.NoError(t, freeTxn.Commit(m.cache))

	// A concurrent/later allocation of unrelated content may now pop the
	// freed cluster and overwrite it.
	other := bytes.Repeat([]byte{8}, SectorSize)
	otherAlloc, err := m.Alloc(other)
	require.NoError(t, err)
	require.NoError(t, otherAlloc.Commit(m.cache))
	require.Equal(t, first.Value.Cluster, otherAlloc.Value.Cluster)

	// Allocating the original content again must not resolve to the freed
	// (and now overwritten) pointer via a dangling dedup entry.
	second, err := m.Alloc(page)
	require.NoError(t, err)
	require.NoError(t, second.Commit(m.cache))
	require.NotEqual(t, first.Value, second.Value)

	got, err := m.Read(second.Value)
	require.NoError(t, err)
	require.Equal(t, page, got)
}

// Compression packing: allocating compressible pages with compression
// enabled shares a cluster across multiple pages.
func TestManagerAllocWithCompressionPacksPages(t *testing.T) {
	m, _ := newTestManager(t, Config{Checksum: ChecksumCRC64, Compression: CompressionSnappy}, []ClusterPtr{50, 51, 52, 53})

	var pointers []PagePointer
	for i := 0; i < 4; i++ {
		page := bytes.Repeat([]byte{byte(i)}, SectorSize)
		alloc, err := m.Alloc(page)
		require.NoError(t, err)
		require.NoError(t, alloc.Commit(m.cache))
		pointers = append(pointers, alloc.Value)

		got, err := m.Read(alloc.Value)
		require.NoError(t, err)
		require.Equal(t, page, got)
	}

	distinct := map[ClusterPtr]bool{}
	for _, p := range pointers {
		distinct[p.Cluster] = true
	}
	require.Less(t, len(distinct), len(pointers)) // packed onto fewer clusters than pages
}
