// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tfs

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOutOfClusters is returned by Alloc/Pop when the freelist has no more
// clusters to give out.
type ErrOutOfClusters struct{}

func (e *ErrOutOfClusters) Error() string { return "out of free clusters" }

// ErrPageChecksumMismatch is returned by Read when the checksum embedded in
// a PagePointer does not match the checksum of the bytes found at that
// pointer.
type ErrPageChecksumMismatch struct {
	Page  PagePointer
	Found uint32
}

func (e *ErrPageChecksumMismatch) Error() string {
	return fmt.Sprintf("mismatching checksum in %s - expected %#08x, found %#08x", e.Page, e.Page.Checksum, e.Found)
}

// ErrMetaclusterChecksumMismatch is returned when a metacluster read off
// disk during freelist traversal does not hash to the checksum stored in
// its predecessor (or the state block, for the head).
type ErrMetaclusterChecksumMismatch struct {
	Cluster  ClusterPtr
	Expected uint64
	Found    uint64
}

func (e *ErrMetaclusterChecksumMismatch) Error() string {
	return fmt.Sprintf("mismatching checksum in metacluster %#x - expected %#016x, found %#016x", e.Cluster, e.Expected, e.Found)
}

// ErrInvalidCompression is returned when a cluster marked as compressed
// cannot be decompressed: either the length prefix doesn't fit the sector,
// or the codec itself rejected the stream.
type ErrInvalidCompression struct {
	Cluster ClusterPtr
}

func (e *ErrInvalidCompression) Error() string {
	return fmt.Sprintf("unable to decompress data from cluster %#x", e.Cluster)
}

// ErrDisk wraps an underlying block-device I/O error. Unwrap returns the
// original error wrapped with a stack trace, so errors.Is and errors.As see
// through to the original error; ErrDisk exists
// to let callers distinguish "the device misbehaved" from the structural
// errors above via a type switch / errors.As.
type ErrDisk struct {
	Cause error
}

func (e *ErrDisk) Error() string { return "disk I/O error: " + e.Cause.Error() }
func (e *ErrDisk) Unwrap() error { return e.Cause }

// wrapDisk turns a raw device/cache error into an *ErrDisk, attaching a
// stack trace at the point of first observation. Returns nil unchanged.
func wrapDisk(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrDisk); ok {
		return err
	}
	return &ErrDisk{Cause: errors.WithStack(err)}
}
