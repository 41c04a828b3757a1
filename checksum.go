// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Checksum algorithm dispatch.

package tfs

import (
	"hash/crc64"

	"github.com/cespare/xxhash/v2"
)

// ChecksumAlgorithm selects the hash used for page and metacluster
// checksums. It is part of the on-disk Config and must not change for the
// lifetime of a device image without recomputing every stored checksum.
type ChecksumAlgorithm byte

const (
	// ChecksumCRC64 hashes with the ISO polynomial from the standard
	// library. Kept on stdlib deliberately: crc64 is the textbook choice
	// for a fixed-size device checksum and neither xxhash nor any other
	// library in this module's dependency set does anything CRC64 can't
	// already do here just as well (see DESIGN.md).
	ChecksumCRC64 ChecksumAlgorithm = iota
	// ChecksumXXHash64 hashes with github.com/cespare/xxhash/v2, a
	// non-cryptographic hash tuned for throughput on the checksum-every-
	// read hot path.
	ChecksumXXHash64
)

var crc64Table = crc64.MakeTable(crc64.ISO)

// hash64 computes the configured 64-bit checksum of buf.
func (a ChecksumAlgorithm) hash64(buf []byte) uint64 {
	switch a {
	case ChecksumXXHash64:
		return xxhash.Sum64(buf)
	default:
		return crc64.Checksum(buf, crc64Table)
	}
}

// hash32 truncates hash64 to the low 32 bits, the width stored in a
// PagePointer's Checksum field (spec.md §3).
func (a ChecksumAlgorithm) hash32(buf []byte) uint32 {
	return uint32(a.hash64(buf))
}
