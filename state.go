// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The state block: configuration plus the mutable freelist-head descriptor.

package tfs

import "encoding/binary"

// Config is the stable part of the state block (spec.md §3): chosen once at
// format time and never mutated afterward, so reads of it require no
// synchronization (spec.md §5).
type Config struct {
	Checksum    ChecksumAlgorithm
	Compression CompressionAlgorithm
}

// FreelistHead describes the head metacluster of the freelist as recorded
// in the state block: its cluster address, the active-prefix checksum of
// the metacluster stored there, and how many of its free-pointer slots are
// live.
type FreelistHead struct {
	Cluster  ClusterPtr
	Checksum uint64
	Counter  uint8
}

// State is the mutable part of the state block.
type State struct {
	FreelistHead *FreelistHead // nil means the freelist is empty
}

// stateBlock is the full sector image: Config followed by State.
type stateBlock struct {
	Config Config
	State  State
}

// Layout (all little-endian):
//
//	0:  1 byte  Config.Checksum
//	1:  1 byte  Config.Compression
//	2:  1 byte  freelist-head present flag
//	3:  1 byte  FreelistHead.Counter
//	8:  8 bytes FreelistHead.Cluster
//	16: 8 bytes FreelistHead.Checksum
func (s *stateBlock) encode() []byte {
	buf := make([]byte, SectorSize)
	buf[0] = byte(s.Config.Checksum)
	buf[1] = byte(s.Config.Compression)
	if h := s.State.FreelistHead; h != nil {
		buf[2] = 1
		buf[3] = h.Counter
		binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Cluster))
		binary.LittleEndian.PutUint64(buf[16:24], h.Checksum)
	}
	return buf
}

func decodeStateBlock(buf []byte) stateBlock {
	var s stateBlock
	s.Config.Checksum = ChecksumAlgorithm(buf[0])
	s.Config.Compression = CompressionAlgorithm(buf[1])
	if buf[2] != 0 {
		s.State.FreelistHead = &FreelistHead{
			Counter:  buf[3],
			Cluster:  ClusterPtr(binary.LittleEndian.Uint64(buf[8:16])),
			Checksum: binary.LittleEndian.Uint64(buf[16:24]),
		}
	}
	return s
}
