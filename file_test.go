package hdf5

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/goh5/internal/core"
)

// build1DFile hand-assembles a tiny, valid HDF5 v0-superblock file with an
// old-style root group (symbol table + B-tree + local heap) holding one 1-D
// dataset stored contiguously. dtMsg is the raw Datatype message payload and
// payload the raw element bytes. Every address below is absolute
// (hdf5StartOffset 0) and chosen with enough slack between structures that
// none overlap.
func build1DFile(t *testing.T, name string, dtMsg []byte, dim uint64, payload []byte) []byte {
	t.Helper()
	require.LessOrEqual(t, len(name), 7)
	require.LessOrEqual(t, len(payload), 96)
	const (
		rootHeaderAddr = 100
		localHeapAddr  = 200
		heapDataAddr   = 250
		groupBtreeAddr = 300
		snodAddr       = 350
		dsHeaderAddr   = 500
		dataAddr       = 700
		fileSize       = 800
	)

	buf := make([]byte, fileSize)
	le := binary.LittleEndian

	put8 := func(off int, v uint64) { le.PutUint64(buf[off:off+8], v) }
	put4 := func(off int, v uint32) { le.PutUint32(buf[off:off+4], v) }
	put2 := func(off int, v uint16) { le.PutUint16(buf[off:off+2], v) }

	writeSuperblockV0(buf, rootHeaderAddr, fileSize)
	writeSymbolTableRoot(buf, rootHeaderAddr, groupBtreeAddr, localHeapAddr)

	// --- local heap ---
	copy(buf[localHeapAddr:localHeapAddr+4], "HEAP")
	buf[localHeapAddr+4] = 0   // version
	put8(localHeapAddr+8, 16)  // data segment size
	put8(localHeapAddr+16, 0)  // free list head (unused)
	put8(localHeapAddr+24, heapDataAddr)
	// data segment: offset 0 is the conventional empty string, offset 8 the name
	copy(buf[heapDataAddr+8:], name)

	// --- group B-tree (v1), one leaf entry pointing at the SNOD ---
	copy(buf[groupBtreeAddr:groupBtreeAddr+4], "TREE")
	buf[groupBtreeAddr+4] = 0 // node type: group
	buf[groupBtreeAddr+5] = 0 // level: leaf
	put2(groupBtreeAddr+6, 1) // entries used
	put8(groupBtreeAddr+8, 0xFFFFFFFFFFFFFFFF)  // left sibling
	put8(groupBtreeAddr+16, 0xFFFFFFFFFFFFFFFF) // right sibling
	bodyOff := groupBtreeAddr + 24
	put8(bodyOff+0, 0)        // key0 (unused by this reader)
	put8(bodyOff+8, snodAddr) // child address
	put8(bodyOff+16, 0)       // trailing key (unused)

	// --- symbol table node (SNOD), one entry: name -> dataset header ---
	copy(buf[snodAddr:snodAddr+4], "SNOD")
	buf[snodAddr+4] = 1 // version
	buf[snodAddr+5] = 0 // reserved
	put2(snodAddr+6, 1) // num symbols
	entryOff := snodAddr + 8
	put8(entryOff+0, 8)            // name offset into local heap
	put8(entryOff+8, dsHeaderAddr) // object header address
	// entryOff+16..+39: cache type, reserved and scratch pad, zero

	// --- dataset object header (v1): Dataspace, Datatype, Data Layout ---
	dtAdvance := 8 + pad8(len(dtMsg))
	headerSize := 24 + dtAdvance + 32
	buf[dsHeaderAddr+0] = 1
	buf[dsHeaderAddr+1] = 0
	put2(dsHeaderAddr+2, 3)
	put4(dsHeaderAddr+4, 1)
	put4(dsHeaderAddr+8, uint32(headerSize))

	m := dsHeaderAddr + 16

	// Dataspace message: type 0x0001, size 16
	put2(m+0, 0x0001)
	put2(m+2, 16)
	d := m + 8
	buf[d+0] = 1 // version
	buf[d+1] = 1 // rank
	buf[d+2] = 0 // flags
	// d+3..+7 reserved
	put8(d+8, dim)
	m += 24

	// Datatype message: type 0x0003
	put2(m+0, 0x0003)
	put2(m+2, uint16(len(dtMsg)))
	copy(buf[m+8:], dtMsg)
	m += dtAdvance

	// Data Layout message: type 0x0008, size 20 (v1/2 contiguous), padded to 24
	put2(m+0, 0x0008)
	put2(m+2, 20)
	d = m + 8
	buf[d+0] = 1 // version
	buf[d+1] = 1 // dimensionality
	buf[d+2] = 1 // class: contiguous
	// d+3..+7 reserved
	put8(d+8, dataAddr)
	put4(d+16, uint32(dim)) // historical dim size entry, unused by the reader

	copy(buf[dataAddr:], payload)
	return buf
}

func pad8(n int) int {
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// writeSuperblockV0 lays down a version-0 superblock with 8-byte
// offsets/lengths whose root symbol table entry points at rootHeaderAddr.
func writeSuperblockV0(buf []byte, rootHeaderAddr, eof uint64) {
	le := binary.LittleEndian
	copy(buf[0:8], core.Signature)
	buf[8] = 0  // superblock version
	buf[9] = 0  // free-space version
	buf[10] = 0 // root symtab version
	buf[11] = 0 // reserved
	buf[12] = 0 // shared header version
	buf[13] = 8 // size of offsets
	buf[14] = 8 // size of lengths
	buf[15] = 0 // reserved
	le.PutUint16(buf[16:18], 4) // group leaf K
	le.PutUint16(buf[18:20], 4) // group internal K
	// offset 20..23: file consistency flags (0)
	le.PutUint64(buf[28:36], 0)                  // base address
	le.PutUint64(buf[36:44], 0xFFFFFFFFFFFFFFFF) // free-space address (undefined)
	le.PutUint64(buf[44:52], eof)                // EOF address
	le.PutUint64(buf[52:60], 0xFFFFFFFFFFFFFFFF) // driver info address (undefined)
	// root group symbol table entry at offset 60
	le.PutUint64(buf[60:68], 0) // link name offset (unused, root has no name)
	le.PutUint64(buf[68:76], rootHeaderAddr)
	le.PutUint32(buf[76:80], 0) // cache type
	le.PutUint32(buf[80:84], 0) // reserved
}

// writeSymbolTableRoot lays down a v1 root object header holding a single
// Symbol Table message pointing at the group B-tree and local heap.
func writeSymbolTableRoot(buf []byte, rootHeaderAddr int, btreeAddr, heapAddr uint64) {
	le := binary.LittleEndian
	buf[rootHeaderAddr+0] = 1 // version
	buf[rootHeaderAddr+1] = 0 // reserved
	le.PutUint16(buf[rootHeaderAddr+2:], 1)  // num messages
	le.PutUint32(buf[rootHeaderAddr+4:], 1)  // reference count
	le.PutUint32(buf[rootHeaderAddr+8:], 24) // header size (one 24-byte message record)
	// bytes 12..15 reserved padding
	msgOff := rootHeaderAddr + 16
	le.PutUint16(buf[msgOff+0:], 0x0011) // MsgSymbolTable
	le.PutUint16(buf[msgOff+2:], 16)     // size
	buf[msgOff+4] = 0                    // flags
	// bytes +5..+7 reserved
	le.PutUint64(buf[msgOff+8:], btreeAddr)
	le.PutUint64(buf[msgOff+16:], heapAddr)
}

// float64Datatype is the raw Datatype message for a little-endian IEEE
// float64: version 1, class 1, with the standard exponent/mantissa layout.
func float64Datatype() []byte {
	dt := []byte{
		0x11,    // version 1, class 1 (float)
		0, 0, 0, // bit fields: little-endian
		8, 0, 0, 0, // size = 8 bytes
		0, 0, // bit offset
		64, 0, // bit precision
		52,  // exponent location
		11,  // exponent size
		0,   // mantissa location
		52,  // mantissa size
		255, 3, 0, 0, // exponent bias = 1023
	}
	return dt
}

func buildMinimalFile(t *testing.T) []byte {
	t.Helper()
	payload := make([]byte, 40)
	for i, v := range []float64{1, 2, 3, 4, 5} {
		binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
	}
	return build1DFile(t, "data1d", float64Datatype(), 5, payload)
}

func TestOpenBytesReadsOneDFloatDataset(t *testing.T) {
	data := buildMinimalFile(t)
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	ds, err := f.Dataset("/data1d")
	require.NoError(t, err)
	require.Equal(t, []uint64{5}, ds.Shape())

	values, err := ds.Read()
	require.NoError(t, err)
	require.Len(t, values, 5)
	for i, want := range []float64{1, 2, 3, 4, 5} {
		require.InDelta(t, want, values[i].(float64), 1e-9)
	}
}

func TestReadSliceWithStep(t *testing.T) {
	data := buildMinimalFile(t)
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	ds, err := f.Dataset("/data1d")
	require.NoError(t, err)

	got, err := ds.ReadSlice([]uint64{0}, []uint64{3}, []uint64{2})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.InDelta(t, 1.0, got[0].(float64), 1e-9)
	require.InDelta(t, 3.0, got[1].(float64), 1e-9)
	require.InDelta(t, 5.0, got[2].(float64), 1e-9)
}

func TestReadSliceDefaultStep(t *testing.T) {
	data := buildMinimalFile(t)
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	ds, err := f.Dataset("/data1d")
	require.NoError(t, err)

	got, err := ds.ReadSlice([]uint64{1}, []uint64{2}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.InDelta(t, 2.0, got[0].(float64), 1e-9)
	require.InDelta(t, 3.0, got[1].(float64), 1e-9)
}

func TestInspectWalksRootAndDataset(t *testing.T) {
	data := buildMinimalFile(t)
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	report, err := Inspect(f)
	require.NoError(t, err)

	var sawRoot, sawDataset bool
	for _, item := range report.Items {
		if item.Path == "/" && item.IsGroup {
			sawRoot = true
		}
		if item.Path == "/data1d" && !item.IsGroup {
			sawDataset = true
			require.NoError(t, item.Err)
		}
	}
	require.True(t, sawRoot)
	require.True(t, sawDataset)
}

func TestOpenBytesWithMatlabPrefix(t *testing.T) {
	inner := buildMinimalFile(t)
	data := make([]byte, 512+len(inner))
	copy(data, "MATLAB 7.3 MAT-file")
	copy(data[512:], inner)

	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	ds, err := f.Dataset("/data1d")
	require.NoError(t, err)

	values, err := ds.Read()
	require.NoError(t, err)
	require.Len(t, values, 5)
	for i, want := range []float64{1, 2, 3, 4, 5} {
		require.InDelta(t, want, values[i].(float64), 1e-9)
	}
}

func TestReadAsBooleanSingleBitPrecision(t *testing.T) {
	dt := []byte{
		0x10,    // version 1, class 0 (integer)
		0, 0, 0, // unsigned, little-endian
		1, 0, 0, 0, // size = 1
		0, 0, // bit offset
		1, 0, // bit precision = 1
	}
	data := build1DFile(t, "bools", dt, 5, []byte{1, 0, 1, 1, 0})
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	ds, err := f.Dataset("/bools")
	require.NoError(t, err)

	got, err := ds.ReadAsBoolean()
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true, true, false}, got)
}

// buildChunkedWithContiguousTwin assembles a file holding the same 1000
// int32 values (0..999) twice: "/chunked" stored in ten deflate-compressed
// chunks of 100 elements indexed by a v1 chunk B-tree, and "/contig" stored
// contiguously.
func buildChunkedWithContiguousTwin(t *testing.T) []byte {
	t.Helper()
	const (
		rootHeaderAddr    = 96
		localHeapAddr     = 160
		heapDataAddr      = 200
		groupBtreeAddr    = 240
		snodAddr          = 296
		chunkedHeaderAddr = 392
		contigHeaderAddr  = 520
		chunkBtreeAddr    = 616
		chunkDataStart    = 1024
		numChunks         = 10
		chunkElems        = 100
		totalElems        = numChunks * chunkElems
	)
	le := binary.LittleEndian

	compressed := make([][]byte, numChunks)
	for c := 0; c < numChunks; c++ {
		raw := make([]byte, chunkElems*4)
		for i := 0; i < chunkElems; i++ {
			le.PutUint32(raw[i*4:], uint32(c*chunkElems+i))
		}
		var cb bytes.Buffer
		zw := zlib.NewWriter(&cb)
		_, err := zw.Write(raw)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		compressed[c] = cb.Bytes()
	}

	chunkAddrs := make([]uint64, numChunks)
	pos := chunkDataStart
	for c := range compressed {
		chunkAddrs[c] = uint64(pos)
		pos += pad8(len(compressed[c]))
	}
	contigDataAddr := pos
	fileSize := contigDataAddr + totalElems*4

	buf := make([]byte, fileSize)
	put8 := func(off int, v uint64) { le.PutUint64(buf[off:off+8], v) }
	put4 := func(off int, v uint32) { le.PutUint32(buf[off:off+4], v) }
	put2 := func(off int, v uint16) { le.PutUint16(buf[off:off+2], v) }

	writeSuperblockV0(buf, rootHeaderAddr, uint64(fileSize))
	writeSymbolTableRoot(buf, rootHeaderAddr, groupBtreeAddr, localHeapAddr)

	// --- local heap: names "chunked" (offset 8) and "contig" (offset 16) ---
	copy(buf[localHeapAddr:localHeapAddr+4], "HEAP")
	put8(localHeapAddr+8, 24) // data segment size
	put8(localHeapAddr+16, 0)
	put8(localHeapAddr+24, heapDataAddr)
	copy(buf[heapDataAddr+8:], "chunked")
	copy(buf[heapDataAddr+16:], "contig")

	// --- group B-tree (v1), one leaf entry pointing at the SNOD ---
	copy(buf[groupBtreeAddr:groupBtreeAddr+4], "TREE")
	put2(groupBtreeAddr+6, 1)
	put8(groupBtreeAddr+8, 0xFFFFFFFFFFFFFFFF)
	put8(groupBtreeAddr+16, 0xFFFFFFFFFFFFFFFF)
	put8(groupBtreeAddr+32, snodAddr)

	// --- SNOD: two entries, name-ordered ---
	copy(buf[snodAddr:snodAddr+4], "SNOD")
	buf[snodAddr+4] = 1
	put2(snodAddr+6, 2)
	put8(snodAddr+8, 8) // "chunked"
	put8(snodAddr+16, chunkedHeaderAddr)
	put8(snodAddr+48, 16) // "contig"
	put8(snodAddr+56, contigHeaderAddr)

	int32Datatype := []byte{
		0x10,       // version 1, class 0 (integer)
		0x08, 0, 0, // signed, little-endian
		4, 0, 0, 0, // size = 4
		0, 0, // bit offset
		32, 0, // bit precision
	}

	writeDataspace1D := func(m int) int {
		put2(m+0, 0x0001)
		put2(m+2, 16)
		buf[m+8] = 1 // version
		buf[m+9] = 1 // rank
		put8(m+16, totalElems)
		return m + 24
	}
	writeDatatype := func(m int) int {
		put2(m+0, 0x0003)
		put2(m+2, uint16(len(int32Datatype)))
		copy(buf[m+8:], int32Datatype)
		return m + 8 + pad8(len(int32Datatype))
	}

	// --- chunked dataset header: Dataspace, Datatype, Layout, Pipeline ---
	buf[chunkedHeaderAddr+0] = 1
	put2(chunkedHeaderAddr+2, 4)
	put4(chunkedHeaderAddr+4, 1)
	put4(chunkedHeaderAddr+8, 112)
	m := writeDatatype(writeDataspace1D(chunkedHeaderAddr + 16))

	// Data Layout message: v3 chunked, rank+1 dims with trailing element size
	put2(m+0, 0x0008)
	put2(m+2, 19)
	buf[m+8] = 3 // version
	buf[m+9] = 2 // class: chunked
	buf[m+10] = 2 // dimensionality
	put8(m+11, chunkBtreeAddr)
	put4(m+19, chunkElems)
	put4(m+23, 4) // element size
	m += 32

	// Filter Pipeline message: v1, one deflate entry
	put2(m+0, 0x000B)
	put2(m+2, 24)
	d := m + 8
	buf[d+0] = 1 // version
	buf[d+1] = 1 // one filter
	// d+2..+7 reserved
	put2(d+8, 1)  // filter id: deflate
	put2(d+10, 0) // name length
	put2(d+12, 1) // flags: optional
	put2(d+14, 1) // one client data value
	put4(d+16, 6) // compression level
	// d+20..+23: padding for the odd client data count

	// --- contiguous dataset header: Dataspace, Datatype, Layout ---
	buf[contigHeaderAddr+0] = 1
	put2(contigHeaderAddr+2, 3)
	put4(contigHeaderAddr+4, 1)
	put4(contigHeaderAddr+8, 80)
	m = writeDatatype(writeDataspace1D(contigHeaderAddr + 16))
	put2(m+0, 0x0008)
	put2(m+2, 20)
	buf[m+8] = 1  // version
	buf[m+9] = 1  // dimensionality
	buf[m+10] = 1 // class: contiguous
	put8(m+16, uint64(contigDataAddr))
	put4(m+24, totalElems)

	// --- chunk B-tree (v1), a single leaf holding every chunk record ---
	copy(buf[chunkBtreeAddr:chunkBtreeAddr+4], "TREE")
	buf[chunkBtreeAddr+4] = 1 // node type: chunk
	put2(chunkBtreeAddr+6, numChunks)
	put8(chunkBtreeAddr+8, 0xFFFFFFFFFFFFFFFF)
	put8(chunkBtreeAddr+16, 0xFFFFFFFFFFFFFFFF)
	rec := chunkBtreeAddr + 24
	for c := 0; c < numChunks; c++ {
		put4(rec+0, uint32(len(compressed[c]))) // stored (compressed) size
		put4(rec+4, 0)                          // filter mask
		put8(rec+8, uint64(c*chunkElems))       // offset along the data axis
		put8(rec+16, 0)                         // trailing element-size axis
		put8(rec+24, chunkAddrs[c])
		rec += 32
	}
	// trailing key after the last child: zeros, unused by the reader

	for c := range compressed {
		copy(buf[chunkAddrs[c]:], compressed[c])
	}
	raw := buf[contigDataAddr:]
	for i := 0; i < totalElems; i++ {
		le.PutUint32(raw[i*4:], uint32(i))
	}
	return buf
}

func TestChunkedGzipMatchesContiguousTwin(t *testing.T) {
	data := buildChunkedWithContiguousTwin(t)
	f, err := OpenBytes(data)
	require.NoError(t, err)
	defer f.Close()

	chunked, err := f.Dataset("/chunked")
	require.NoError(t, err)
	require.Equal(t, []uint64{1000}, chunked.Shape())

	contig, err := f.Dataset("/contig")
	require.NoError(t, err)

	cv, err := chunked.Read()
	require.NoError(t, err)
	require.Len(t, cv, 1000)

	tv, err := contig.Read()
	require.NoError(t, err)
	require.Equal(t, tv, cv)

	for _, i := range []int{0, 99, 100, 555, 999} {
		require.EqualValues(t, i, cv[i].(int64))
	}
}
