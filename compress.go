// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Compression codec dispatch.
//
// This replaces the teacher's code.google.com/p/snappy-go (a defunct import
// path) with github.com/golang/snappy, the actively maintained successor
// implementing the same format.

package tfs

import (
	"encoding/binary"

	"github.com/golang/snappy"
)

// CompressionAlgorithm selects the stream codec used when packing pages
// into a cluster. It is part of the on-disk Config.
type CompressionAlgorithm byte

const (
	// CompressionIdentity disables compression. Per the contract in
	// spec.md §4, neither compress nor decompress is ever called while
	// this is configured; the packer is bypassed entirely (§4.3).
	CompressionIdentity CompressionAlgorithm = iota
	// CompressionSnappy compresses with Snappy.
	CompressionSnappy
)

// frameLenSize is the width of the fixed length prefix packSector writes
// ahead of every compressed frame. spec.md §9.1 flags the original design's
// single-byte 0xFF delimiter as non-injective (ambiguous against a frame
// that itself ends in 0xFF followed by zero padding) and mandates a fixed
// length prefix instead; this is that replacement, not the original
// scheme.
const frameLenSize = 4

// compress compresses input with the configured algorithm. It panics if
// called while CompressionIdentity is configured, mirroring the teacher's
// "the caller handles this case" contract (spec.md §4.4, Rust original
// alloc.rs `compress`).
func (a CompressionAlgorithm) compress(input []byte) []byte {
	switch a {
	case CompressionSnappy:
		return snappy.Encode(nil, input)
	default:
		panic("tfs: compress called with compression disabled")
	}
}

// decompress reverses compress. It panics if called while
// CompressionIdentity is configured.
func (a CompressionAlgorithm) decompress(compressed []byte) ([]byte, error) {
	switch a {
	case CompressionSnappy:
		return snappy.Decode(nil, compressed)
	default:
		panic("tfs: decompress called with compression disabled")
	}
}

// packSector tries to fit compressed payload `frame` into one sector as a
// 4-byte little-endian length prefix followed by the frame bytes and zero
// padding. Returns ok == false if the payload plus the prefix does not fit
// — "compression failed" in spec.md §4.4's terms.
func packSector(frame []byte) (sector []byte, ok bool) {
	if frameLenSize+len(frame) > SectorSize {
		return nil, false
	}
	buf := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(buf[:frameLenSize], uint32(len(frame)))
	copy(buf[frameLenSize:], frame)
	return buf, true
}

// unpackSector reads the length prefix and slices out exactly that many
// frame bytes. Returns an error if the recorded length doesn't fit the
// sector — data corruption per spec.md §4.4.
func unpackSector(sector []byte, cluster ClusterPtr) ([]byte, error) {
	if len(sector) < frameLenSize {
		return nil, &ErrInvalidCompression{Cluster: cluster}
	}
	n := binary.LittleEndian.Uint32(sector[:frameLenSize])
	if frameLenSize+int(n) > len(sector) {
		return nil, &ErrInvalidCompression{Cluster: cluster}
	}
	return sector[frameLenSize : frameLenSize+int(n)], nil
}
