package core

import (
	"encoding/binary"
	"testing"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/stretchr/testify/require"
)

// buildLocalHeapFixture places a HEAP structure at address 100 whose data
// segment starts at address 150 and holds the conventional leading empty
// string followed by each of names, 8-byte aligned.
func buildLocalHeapFixture(names ...string) []byte {
	const heapAddr = 100
	const dataAddr = 150
	le := binary.LittleEndian

	segLen := 8 // leading empty-string slot
	offsets := make([]int, len(names))
	for i, n := range names {
		offsets[i] = segLen
		n8 := ((len(n) + 1 + 7) / 8) * 8
		segLen += n8
	}

	buf := make([]byte, dataAddr+segLen)
	copy(buf[heapAddr:heapAddr+4], "HEAP")
	le.PutUint64(buf[heapAddr+8:heapAddr+16], uint64(segLen))
	le.PutUint64(buf[heapAddr+24:heapAddr+32], uint64(dataAddr))

	for i, n := range names {
		copy(buf[dataAddr+offsets[i]:], n)
	}
	return buf
}

func TestReadLocalHeapAndGetString(t *testing.T) {
	src := bytesource.FromBytes(buildLocalHeapFixture("alpha", "beta"))
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	heap, err := ReadLocalHeap(src, sb, 100)
	require.NoError(t, err)

	s, err := heap.GetString(8)
	require.NoError(t, err)
	require.Equal(t, "alpha", s)

	s2, err := heap.GetString(16)
	require.NoError(t, err)
	require.Equal(t, "beta", s2)
}

func TestGetStringOutOfRangeErrors(t *testing.T) {
	src := bytesource.FromBytes(buildLocalHeapFixture("alpha"))
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}
	heap, err := ReadLocalHeap(src, sb, 100)
	require.NoError(t, err)
	_, err = heap.GetString(9999)
	require.Error(t, err)
}
