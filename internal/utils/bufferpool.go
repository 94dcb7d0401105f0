// Package utils provides utility functions for the HDF5 library.
package utils

import "sync"

// scratchPool recycles the short-lived buffers the cursor's fixed-width
// primitive reads decode through. Those reads are at most 8 bytes but run
// once per decoded field, so they dominate the reader's allocation count;
// the 4KB default capacity also covers callers that borrow a buffer for a
// whole structure.
var scratchPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetBuffer returns a byte slice of the given length from the pool. The
// contents are unspecified; callers must fully overwrite it. Pair with
// ReleaseBuffer once nothing aliases the slice.
func GetBuffer(size int) []byte {
	buf := scratchPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseBuffer returns a buffer to the pool.
func ReleaseBuffer(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	scratchPool.Put(buf[:0])
}
