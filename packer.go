// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The cluster packer: keeps one "last cluster" open for appending further
// pages into, recompressing on every append and spilling to a fresh
// cluster when the compressed stream no longer fits one sector.
//
// There is no direct teacher analogue for multi-page compressed packing
// (lldb packs one compressed blob per allocated block, not several logical
// pages sharing a cluster); this is grounded directly on the page manager
// design (spec.md §4.3) and the Rust original's `alloc` method.

package tfs

import "sync/atomic"

// ClusterCapacity bounds the uncompressed packing buffer, to resist
// adversarial inflation of memory use by a stream of never-quite-too-big
// pages (spec.md §4.3).
const ClusterCapacity = 512 * 2048

// ClusterState is the in-memory record of the cluster currently accepting
// additional packed pages.
type ClusterState struct {
	Cluster      ClusterPtr
	Uncompressed []byte
}

// Packer owns the packing policy described in spec.md §4.3-§4.4. lastCluster
// is an atomically-swappable slot: a thread intending to append takes it
// (leaving it empty), and either puts an updated state back on success or
// drops it on failure, so concurrent appenders race for the slot rather
// than serialize on a lock (spec.md §5).
type Packer struct {
	lastCluster atomic.Pointer[ClusterState]
	config      Config
	cache       *Cache
	freelist    *Freelist
}

// NewPacker returns a Packer with no cluster currently open for appending.
func NewPacker(config Config, cache *Cache, freelist *Freelist) *Packer {
	return &Packer{config: config, cache: cache, freelist: freelist}
}

// tryAppend attempts to extend the currently-open cluster with buf. It
// reports ok == false when there is no open cluster, the packing buffer hit
// ClusterCapacity, or the recompressed stream no longer fits one sector —
// in every one of those cases the caller must Spill instead.
func (p *Packer) tryAppend(buf []byte, checksum uint32) (ptr PagePointer, txn Transaction, ok bool, err error) {
	state := p.lastCluster.Swap(nil)
	if state == nil {
		return PagePointer{}, Transaction{}, false, nil
	}

	if len(state.Uncompressed) >= ClusterCapacity {
		// Abandon; state is not put back, so the slot stays empty.
		return PagePointer{}, Transaction{}, false, nil
	}

	// Offset is computed on the length *before* this append, per
	// spec.md §9.5 — it indexes the page being written now, not the
	// buffer's post-append length.
	preLenSectors := len(state.Uncompressed) / SectorSize

	extended := append(append([]byte{}, state.Uncompressed...), buf...)
	compressed := p.config.Compression.compress(extended)
	sector, fits := packSector(compressed)
	if !fits {
		return PagePointer{}, Transaction{}, false, nil
	}

	state.Uncompressed = extended
	p.lastCluster.Store(state)

	ptr = PagePointer{Cluster: state.Cluster, Offset: offsetPtr(uint8(preLenSectors)), Checksum: checksum}
	return ptr, p.cache.Write(state.Cluster, sector), true, nil
}

// Spill pops a fresh cluster from the freelist and stores buf there,
// compressed if that fits in one sector (in which case the cluster becomes
// the new open cluster), or verbatim otherwise (in which case no cluster is
// left open — spec.md §4.3).
func (p *Packer) Spill(buf []byte, checksum uint32) (PagePointer, Transaction, error) {
	popped, err := p.freelist.Pop()
	if err != nil {
		return PagePointer{}, Transaction{}, err
	}
	c := popped.Value

	compressed := p.config.Compression.compress(buf)
	if sector, fits := packSector(compressed); fits {
		p.lastCluster.Store(&ClusterState{Cluster: c, Uncompressed: append([]byte{}, buf...)})
		ptr := PagePointer{Cluster: c, Offset: offsetPtr(0), Checksum: checksum}
		txn := popped.transaction.Then(p.cache.Write(c, sector))
		return ptr, txn, nil
	}

	// Rationale for always trying to compress the first page (spec.md
	// §4.3): an uncompressed cluster can never later be extended, since
	// extension would require rewriting an already-issued pointer's
	// Offset. Storing even a single page compressed preserves that
	// option — unless compression itself didn't shrink below one
	// sector, in which case the option is worthless and a later read
	// saves a doomed decompression attempt.
	ptr := PagePointer{Cluster: c, Offset: nil, Checksum: checksum}
	txn := popped.transaction.Then(p.cache.Write(c, buf))
	return ptr, txn, nil
}
