// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The content-addressed deduplication table (spec.md §3, §4.5).

package tfs

import "sync"

// dedupKey identifies page content by checksum plus the bytes themselves,
// so a false hit (two distinct contents sharing a key) is impossible; a
// false miss (failing to find an existing duplicate) is merely a missed
// optimization, never a correctness problem (spec.md §3).
type dedupKey struct {
	checksum uint32
	content  string // bytes, as a map key
}

// DedupTable maps previously-allocated page content to the PagePointer it
// already lives at, and maintains the reverse mapping so an entry can be
// invalidated by pointer alone. It is rebuilt by scanning live pages at
// mount time by a higher layer (out of scope here); this type only serves
// lookups, inserts, and removals during the lifetime of one Manager.
type DedupTable struct {
	mu      sync.RWMutex
	m       map[dedupKey]PagePointer
	byPoint map[PagePointer]dedupKey
}

// NewDedupTable returns an empty table.
func NewDedupTable() *DedupTable {
	return &DedupTable{
		m:       make(map[dedupKey]PagePointer),
		byPoint: make(map[PagePointer]dedupKey),
	}
}

// Lookup returns the pointer previously stored for buf/checksum, if any.
func (t *DedupTable) Lookup(buf []byte, checksum uint32) (PagePointer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.m[dedupKey{checksum: checksum, content: string(buf)}]
	return p, ok
}

// Insert records that buf/checksum is now stored at ptr.
func (t *DedupTable) Insert(buf []byte, checksum uint32, ptr PagePointer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := dedupKey{checksum: checksum, content: string(buf)}
	t.m[key] = ptr
	t.byPoint[ptr] = key
}

// Remove forgets any entry mapping to ptr's content, given the same buf
// used at insertion time.
func (t *DedupTable) Remove(buf []byte, checksum uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := dedupKey{checksum: checksum, content: string(buf)}
	if existing, ok := t.m[key]; ok {
		delete(t.byPoint, existing)
	}
	delete(t.m, key)
}

// RemoveByPointer forgets whatever dedup entry currently targets ptr,
// without needing the original page content back. Called when a page is
// freed, so a later Alloc of identical content doesn't dedup onto a
// cluster that's been returned to the freelist (spec.md §3 invariant 6).
func (t *DedupTable) RemoveByPointer(ptr PagePointer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key, ok := t.byPoint[ptr]
	if !ok {
		return
	}
	delete(t.m, key)
	delete(t.byPoint, ptr)
}
