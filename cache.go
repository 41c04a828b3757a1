// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The disk cache / transaction layer (spec.md §6). Grounded on the
// teacher's RollbackFiler/bitFiler (xact.go): a transaction batches pending
// writes in memory and only touches the backing device when committed, with
// chaining to express "this write must be durable before that one".

package tfs

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cznic/mathutil"
)

// Transaction is an opaque handle representing a sequence of pending writes
// to be committed in order by Commit. Transactions chain with
// Then to express a durability ordering requirement between two pending
// writes (spec.md §6).
type Transaction struct {
	writes []pendingWrite
}

type pendingWrite struct {
	ptr ClusterPtr
	buf []byte
}

// Then appends other's pending writes after t's, preserving order.
func (t Transaction) Then(other Transaction) Transaction {
	return Transaction{writes: append(append([]pendingWrite{}, t.writes...), other.writes...)}
}

// Transacting pairs a payload with the transaction that must be committed
// for the payload's effects to become durable.
type Transacting[T any] struct {
	Value       T
	transaction Transaction
}

// wrapValue pairs t with value. Go methods cannot introduce their own type
// parameter, so this is a free function rather than a Transaction.Wrap
// method; it plays the role spec.md §6 calls Transaction::wrap.
func wrapValue[T any](t Transaction, value T) Transacting[T] {
	return Transacting[T]{Value: value, transaction: t}
}

// NoTransaction wraps value in an already-empty transaction, for results
// (such as a dedup hit) that required no pending writes at all.
func NoTransaction[T any](value T) Transacting[T] {
	return Transacting[T]{Value: value}
}

// Commit writes every pending write, in order, directly to the underlying
// device. It stops at the first failing write, leaving the writes before it
// applied. After a successful Commit, further calls are no-ops.
func (t *Transacting[T]) Commit(c *Cache) error {
	for _, w := range t.transaction.writes {
		if err := c.commitWrite(w.ptr, w.buf); err != nil {
			return err
		}
	}
	t.transaction.writes = nil
	return nil
}

// Cache is a write-back cluster cache in front of a BlockDevice, providing
// the ReadThen/Write contract of spec.md §6. Reads and writes are staged
// through an LRU of decoded cluster buffers; a cluster only reaches the
// device once a Transaction wrapping its write is committed.
type Cache struct {
	dev     BlockDevice
	entries *lru.Cache[ClusterPtr, []byte]
	metrics *Metrics
}

// NewCache returns a Cache of the given LRU capacity (in clusters) in front
// of dev.
func NewCache(dev BlockDevice, capacity int, metrics *Metrics) (*Cache, error) {
	// A zero or negative capacity would make the LRU reject every entry
	// outright; clamp to at least one resident cluster, the same defensive
	// floor the teacher applies to its own size arithmetic (xact.go,
	// memfiler.go) via mathutil.
	entries, err := lru.New[ClusterPtr, []byte](mathutil.Max(capacity, 1))
	if err != nil {
		return nil, err
	}
	return &Cache{dev: dev, entries: entries, metrics: metrics}, nil
}

// ReadThen fetches the sector at ptr (from the LRU if resident, else from
// the device) and calls f with it. f's return value propagates.
func ReadThen[T any](c *Cache, ptr ClusterPtr, f func([]byte) (T, error)) (T, error) {
	var zero T
	buf, err := c.read(ptr)
	if err != nil {
		return zero, err
	}
	return f(buf)
}

func (c *Cache) read(ptr ClusterPtr) ([]byte, error) {
	if buf, ok := c.entries.Get(ptr); ok {
		c.metrics.incCacheHit()
		out := make([]byte, SectorSize)
		copy(out, buf)
		return out, nil
	}

	c.metrics.incCacheMiss()
	buf, err := c.dev.ReadSector(ptr)
	if err != nil {
		return nil, err
	}
	c.entries.Add(ptr, buf)
	out := make([]byte, SectorSize)
	copy(out, buf)
	return out, nil
}

// Write stages a sector write and returns the Transaction representing it.
// The write is not visible to the device until the transaction is
// committed; it is however immediately visible to subsequent Cache.read
// calls (write-back semantics), matching the teacher's "dirty reads within
// an open transaction" behavior (xact.go).
func (c *Cache) Write(ptr ClusterPtr, buf []byte) Transaction {
	cp := make([]byte, SectorSize)
	copy(cp, buf)
	c.entries.Add(ptr, cp)
	return Transaction{writes: []pendingWrite{{ptr: ptr, buf: cp}}}
}

func (c *Cache) commitWrite(ptr ClusterPtr, buf []byte) error {
	return c.dev.WriteSector(ptr, buf)
}

// Device returns the underlying BlockDevice, for components (such as the
// device header reader) that need direct access outside the cache.
func (c *Cache) Device() BlockDevice { return c.dev }
