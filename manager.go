// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The page manager façade: Open, Alloc, Read, Free. Grounded directly on
// the teacher's top-level Allocator methods (falloc.go: Alloc/Get/Free) and
// on the Rust original (alloc.rs: Manager::{open,alloc,read}), adapted from
// atom-granular blocks within one file to sector-granular pages spread
// across compressed clusters.

package tfs

// Manager is the center point of the page I/O stack: allocation, read,
// free, compression, checksum verification, and deduplication, in front of
// a cached block device.
type Manager struct {
	cache    *Cache
	freelist *Freelist
	packer   *Packer // nil when compression is disabled (spec.md §4.3)
	dedup    *DedupTable
	config   Config
	metrics  *Metrics
}

// Open mounts a Manager against dev. The state block is read from the
// address recorded in the device header; its decoded freelist head (if
// any) is loaded immediately so Pop/Push never block on a first-use fetch.
func Open(dev BlockDevice, cacheCapacity int, metrics *Metrics) (*Manager, error) {
	cache, err := NewCache(dev, cacheCapacity, metrics)
	if err != nil {
		return nil, err
	}

	stateAddr := dev.Header().StateBlockAddress
	sector, err := ReadThen(cache, stateAddr, func(buf []byte) ([]byte, error) { return buf, nil })
	if err != nil {
		return nil, err
	}
	sb := decodeStateBlock(sector)

	var head *Metacluster
	if h := sb.State.FreelistHead; h != nil {
		mcSector, err := ReadThen(cache, h.Cluster, func(buf []byte) ([]byte, error) { return buf, nil })
		if err != nil {
			return nil, err
		}
		decoded := decodeMetacluster(mcSector, int(h.Counter))
		head = &decoded
	}

	freelist := NewFreelist(cache, stateAddr, sb.Config, sb.State, head, metrics)

	m := &Manager{
		cache:    cache,
		freelist: freelist,
		dedup:    NewDedupTable(),
		config:   sb.Config,
		metrics:  metrics,
	}
	if sb.Config.Compression != CompressionIdentity {
		m.packer = NewPacker(sb.Config, cache, freelist)
	}
	return m, nil
}

// Format writes a fresh, empty state block (no freelist head) and, if
// clusters is non-empty, pushes each of them onto the freelist in order —
// a convenience for tests and for bringing up a brand new device image.
// clusters must not include cluster 0 (the device header) or stateAddr.
func Format(dev BlockDevice, stateAddr ClusterPtr, config Config, cacheCapacity int, clusters []ClusterPtr) (*Manager, error) {
	cache, err := NewCache(dev, cacheCapacity, nil)
	if err != nil {
		return nil, err
	}

	freelist := NewFreelist(cache, stateAddr, config, State{}, nil, nil)
	sb := wrapValue(freelist.flushStateBlock(), struct{}{})
	if err := sb.Commit(cache); err != nil {
		return nil, err
	}
	for _, c := range clusters {
		t := wrapValue(freelist.Push(c), struct{}{})
		if err := t.Commit(cache); err != nil {
			return nil, err
		}
	}

	return Open(dev, cacheCapacity, nil)
}

// Alloc stores buf (which must be exactly SectorSize bytes) as a new page
// and returns its pointer wrapped in the transaction that must be committed
// for the allocation to become durable (spec.md §4.5).
func (m *Manager) Alloc(buf []byte) (Transacting[PagePointer], error) {
	if len(buf) != SectorSize {
		panic("tfs: Alloc requires exactly one page (SectorSize bytes)")
	}

	checksum := m.config.Checksum.hash32(buf)

	if ptr, ok := m.dedup.Lookup(buf, checksum); ok {
		m.metrics.incDedupHit()
		return NoTransaction(ptr), nil
	}

	var (
		ptr PagePointer
		txn Transaction
		err error
	)

	switch {
	case m.config.Compression == CompressionIdentity:
		popped, perr := m.freelist.Pop()
		if perr != nil {
			return Transacting[PagePointer]{}, perr
		}
		ptr = PagePointer{Cluster: popped.Value, Offset: nil, Checksum: checksum}
		txn = popped.transaction.Then(m.cache.Write(popped.Value, buf))

	default:
		var ok bool
		ptr, txn, ok, err = m.packer.tryAppend(buf, checksum)
		if err != nil {
			return Transacting[PagePointer]{}, err
		}
		if !ok {
			ptr, txn, err = m.packer.Spill(buf, checksum)
			if err != nil {
				return Transacting[PagePointer]{}, err
			}
		}
	}

	m.dedup.Insert(buf, checksum, ptr)
	m.metrics.incPagesAllocated()
	return wrapValue(txn, ptr), nil
}

// Read dereferences ptr and returns its page content, verifying the
// checksum embedded in ptr against the bytes actually found (spec.md
// §4.5).
func (m *Manager) Read(ptr PagePointer) ([]byte, error) {
	return ReadThen(m.cache, ptr.Cluster, func(cluster []byte) ([]byte, error) {
		var page []byte
		if ptr.Offset == nil {
			page = cluster
		} else {
			decompressed, err := m.config.Compression.decompress(mustUnpack(cluster, ptr.Cluster))
			if err != nil {
				return nil, &ErrInvalidCompression{Cluster: ptr.Cluster}
			}
			if len(decompressed)%SectorSize != 0 {
				return nil, &ErrInvalidCompression{Cluster: ptr.Cluster}
			}
			off := int(*ptr.Offset)
			if off*SectorSize+SectorSize > len(decompressed) {
				return nil, &ErrInvalidCompression{Cluster: ptr.Cluster}
			}
			page = decompressed[off*SectorSize : off*SectorSize+SectorSize]
		}

		found := m.config.Checksum.hash32(page)
		if found != ptr.Checksum {
			m.metrics.incPageChecksumFail()
			return nil, &ErrPageChecksumMismatch{Page: ptr, Found: found}
		}

		out := make([]byte, len(page))
		copy(out, page)
		return out, nil
	})
}

// mustUnpack finds the compressed frame inside cluster, or returns nil if
// the length prefix doesn't fit the sector — the caller (Read) treats a
// decompress failure on a nil frame as InvalidCompression, matching
// spec.md §4.4's corruption case without a second error type threaded
// through decompress.
func mustUnpack(cluster []byte, ptr ClusterPtr) []byte {
	frame, err := unpackSector(cluster, ptr)
	if err != nil {
		return nil
	}
	return frame
}

// Free returns ptr's cluster to the freelist and invalidates any dedup
// entry still pointing at it, so a later Alloc of identical content can't
// resolve to a pointer whose cluster has been (or is about to be) recycled
// (spec.md §3 invariant 6). Safe to call only when no other live pointer
// references the same cluster (spec.md §4.5); the page manager does not
// refcount, so for compressed multi-page clusters the caller must
// coordinate whole-cluster release.
func (m *Manager) Free(ptr PagePointer) Transaction {
	m.dedup.RemoveByPointer(ptr)
	m.metrics.incPagesFreed()
	return m.freelist.Push(ptr.Cluster)
}

func (m *Manager) Close() error {
	return m.cache.dev.Close()
}

func (m *Metrics) incDedupHit() {
	if m != nil {
		m.DedupHits.Inc()
	}
}

func (m *Metrics) incPagesAllocated() {
	if m != nil {
		m.PagesAllocated.Inc()
	}
}

func (m *Metrics) incPagesFreed() {
	if m != nil {
		m.PagesFreed.Inc()
	}
}

func (m *Metrics) incPageChecksumFail() {
	if m != nil {
		m.PageChecksumFails.Inc()
	}
}
