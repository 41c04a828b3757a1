// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Metacluster encode/decode: one freelist node per sector.

package tfs

import "encoding/binary"

// Metacluster is one node of the on-disk unrolled freelist. It occupies
// exactly one cluster:
//
//	bytes 0..8:   checksum of the next metacluster
//	bytes 8..16:  pointer to the next metacluster (0 == end of list)
//	bytes 16..S:  up to MetaclusterFanout free cluster pointers, only the
//	              first Counter of which are live
type Metacluster struct {
	NextChecksum uint64
	Next         ClusterPtr // zero means no next metacluster
	Free         []ClusterPtr
}

// encode serializes m into one sector. The tail beyond the active prefix
// (16 + len(Free)*8 bytes) is zero-filled.
func (m *Metacluster) encode() []byte {
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.NextChecksum)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(m.Next))
	for i, ptr := range m.Free {
		binary.LittleEndian.PutUint64(buf[16+i*PointerSize:], uint64(ptr))
	}
	return buf
}

// decodeMetacluster reverses encode. counter is the authoritative count of
// live free pointers; it cannot be recovered from the payload alone (the
// padding is indistinguishable from a trailing zero pointer), so it must
// come from whoever led the caller to this metacluster: the state block for
// the head, or MetaclusterFanout for any interior node (spec.md §9.3).
func decodeMetacluster(buf []byte, counter int) Metacluster {
	m := Metacluster{
		NextChecksum: binary.LittleEndian.Uint64(buf[0:8]),
		Next:         ClusterPtr(binary.LittleEndian.Uint64(buf[8:16])),
	}
	if counter > 0 {
		m.Free = make([]ClusterPtr, counter)
		for i := range m.Free {
			m.Free[i] = ClusterPtr(binary.LittleEndian.Uint64(buf[16+i*PointerSize:]))
		}
	}
	return m
}

// activePrefix returns the bytes of m's encoding that participate in its
// checksum: the header plus exactly the live free pointers. Unlike hashing
// the whole sector, this keeps the checksum stable across appends that only
// touch the counter, not the untouched tail (spec.md §3).
func (m *Metacluster) activePrefix() []byte {
	return m.encode()[:16+len(m.Free)*PointerSize]
}

// checksum computes the active-prefix hash of m with the given algorithm.
func (m *Metacluster) checksum(algo ChecksumAlgorithm) uint64 {
	return algo.hash64(m.activePrefix())
}
