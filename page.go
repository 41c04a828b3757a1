// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Page and cluster addressing.

package tfs

import "fmt"

// SectorSize is the device's atomic write unit, and therefore also the
// logical page size (the prose of the design calls out 4088 bytes, but the
// reference code uses the sector size uniformly; we follow the code).
//
// A build targeting a different device geometry can vary this, but every
// on-disk structure in this package is sized off of it, so it must stay
// fixed for the lifetime of a given device image.
const SectorSize = 4096

// PointerSize is the on-disk width of a ClusterPtr.
const PointerSize = 8

// MetaclusterFanout is K, the number of free cluster pointers a single
// metacluster sector can hold: bytes 16..SectorSize, 8 bytes per pointer.
const MetaclusterFanout = (SectorSize - 16) / PointerSize

// ClusterPtr addresses one sector-sized cluster on the device. Zero is the
// null pointer.
type ClusterPtr uint64

func (p ClusterPtr) String() string { return fmt.Sprintf("cluster@%#x", uint64(p)) }

// Sector is one device atom: SectorSize raw bytes.
type Sector = [SectorSize]byte

// PagePointer is the opaque handle higher layers hold to reference a page.
//
// Offset == nil means the cluster stores the page uncompressed, end to end.
// Offset != nil means the cluster is a compressed stream; decompressing it
// and taking sector *Offset yields the page.
type PagePointer struct {
	Cluster  ClusterPtr
	Offset   *uint8
	Checksum uint32
}

func (p PagePointer) String() string {
	if p.Offset == nil {
		return fmt.Sprintf("page@%#x", uint64(p.Cluster))
	}
	return fmt.Sprintf("page@%#x+%d", uint64(p.Cluster), *p.Offset)
}

// Compressed reports whether p refers to a sector inside a compressed
// cluster stream rather than a raw, whole-cluster page.
func (p PagePointer) Compressed() bool { return p.Offset != nil }

func offsetPtr(v uint8) *uint8 { return &v }
