// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The freelist allocator: an unrolled singly-linked list of metaclusters,
// adapted from the teacher's atom-granular free-block list (falloc.go's
// link/unlink/flt machinery) to the cluster-granular unrolled list this
// design calls for.

package tfs

import "sync"

// Freelist pops and pushes whole clusters, maintaining the on-disk
// unrolled-linked-list invariants of spec.md §3-§4.2. Only the head
// metacluster is ever decoded in memory; interior nodes are read lazily
// through the cache as the head is exhausted (spec.md §9, "cyclic/linked
// structure").
type Freelist struct {
	mu        sync.Mutex
	cache     *Cache
	stateAddr ClusterPtr
	config    Config
	state     State
	head      *Metacluster // nil iff state.FreelistHead == nil
	metrics   *Metrics
}

// NewFreelist constructs a Freelist from an already-loaded state block and
// (if the freelist is non-empty) its decoded head metacluster.
func NewFreelist(cache *Cache, stateAddr ClusterPtr, config Config, state State, head *Metacluster, metrics *Metrics) *Freelist {
	return &Freelist{cache: cache, stateAddr: stateAddr, config: config, state: state, head: head, metrics: metrics}
}

// Config returns the immutable configuration associated with this device.
func (fl *Freelist) Config() Config { return fl.config }

func (fl *Freelist) flushStateBlock() Transaction {
	sb := stateBlock{Config: fl.config, State: fl.state}
	return fl.cache.Write(fl.stateAddr, sb.encode())
}

// Pop removes one cluster from the freelist and returns it wrapped in the
// transaction that must be committed for the removal to be durable.
// Returns *ErrOutOfClusters if the freelist is empty, or
// *ErrMetaclusterChecksumMismatch if traversing into the next metacluster
// finds corruption (spec.md §4.2).
func (fl *Freelist) Pop() (Transacting[ClusterPtr], error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.state.FreelistHead == nil {
		return Transacting[ClusterPtr]{}, &ErrOutOfClusters{}
	}

	h := fl.head
	fl.metrics.incFreelistPop()

	if n := len(h.Free); n > 0 {
		c := h.Free[n-1]
		h.Free = h.Free[:n-1]
		fl.state.FreelistHead.Counter--
		fl.state.FreelistHead.Checksum = h.checksum(fl.config.Checksum)

		writeTxn := fl.cache.Write(fl.state.FreelistHead.Cluster, h.encode())
		txn := writeTxn.Then(fl.flushStateBlock())
		return wrapValue(txn, c), nil
	}

	// The head metacluster itself becomes the allocated cluster.
	oldCluster := fl.state.FreelistHead.Cluster

	if h.Next == 0 {
		fl.head = nil
		fl.state.FreelistHead = nil
		txn := fl.flushStateBlock()
		return wrapValue(txn, oldCluster), nil
	}

	next := h.Next
	nextChecksum := h.NextChecksum

	sector, err := ReadThen(fl.cache, next, func(buf []byte) ([]byte, error) { return buf, nil })
	if err != nil {
		return Transacting[ClusterPtr]{}, err
	}

	// Per spec.md §9.3: any metacluster that is not the head carries
	// exactly MetaclusterFanout free pointers.
	decoded := decodeMetacluster(sector, MetaclusterFanout)

	// Per spec.md §9.4: the correct polarity is "checksum == stored ⇒ Ok".
	found := decoded.checksum(fl.config.Checksum)
	if found != nextChecksum {
		fl.metrics.incMetaclusterCkFail()
		return Transacting[ClusterPtr]{}, &ErrMetaclusterChecksumMismatch{
			Cluster:  next,
			Expected: nextChecksum,
			Found:    found,
		}
	}

	fl.head = &decoded
	fl.state.FreelistHead = &FreelistHead{Cluster: next, Checksum: nextChecksum, Counter: uint8(len(decoded.Free))}
	txn := fl.flushStateBlock()
	return wrapValue(txn, oldCluster), nil
}

// Push returns cluster c to the freelist, returning the transaction that
// must be committed for the return to be durable.
func (fl *Freelist) Push(c ClusterPtr) Transaction {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	fl.metrics.incFreelistPush()

	if fl.state.FreelistHead == nil {
		// Per spec.md §9.2, the checksum literal 0 is a reserved
		// sentinel for "no prior content", not a computed hash of an
		// empty active prefix; the metacluster sector at c is not
		// written yet, it is logically empty until first pushed-into.
		fl.head = &Metacluster{}
		fl.state.FreelistHead = &FreelistHead{Cluster: c, Checksum: 0, Counter: 0}
		return fl.flushStateBlock()
	}

	h := fl.head

	// The head must already be completely full (K live entries) before c
	// rolls over into a new head, per original_source/src/io/alloc.rs
	// freelist_push: the incoming cluster is never folded into the old
	// head on the triggering push, it always becomes the new head itself.
	// The old head, already holding exactly K entries from its own last
	// push, is what Pop's decodeMetacluster(sector, MetaclusterFanout)
	// expects every interior node to be.
	if len(h.Free) == MetaclusterFanout {
		// The head is full: c becomes a new, empty head, linked
		// forward to the current (now full, now interior) head.
		newHead := &Metacluster{
			Next:         fl.state.FreelistHead.Cluster,
			NextChecksum: fl.state.FreelistHead.Checksum,
		}
		fl.head = newHead
		fl.state.FreelistHead = &FreelistHead{Cluster: c, Checksum: newHead.checksum(fl.config.Checksum), Counter: 0}

		// Order matters: the new metacluster must be durable before
		// the state-block pointer flips to it (spec.md §4.2).
		writeTxn := fl.cache.Write(c, newHead.encode())
		return writeTxn.Then(fl.flushStateBlock())
	}

	h.Free = append(h.Free, c)
	fl.state.FreelistHead.Counter++
	fl.state.FreelistHead.Checksum = h.checksum(fl.config.Checksum)

	writeTxn := fl.cache.Write(fl.state.FreelistHead.Cluster, h.encode())
	return writeTxn.Then(fl.flushStateBlock())
}

func (m *Metrics) incFreelistPop() {
	if m != nil {
		m.FreelistPops.Inc()
	}
}

func (m *Metrics) incFreelistPush() {
	if m != nil {
		m.FreelistPushes.Inc()
	}
}

func (m *Metrics) incMetaclusterCkFail() {
	if m != nil {
		m.MetaclusterCkFails.Inc()
	}
}
