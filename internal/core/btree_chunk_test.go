package core

import (
	"encoding/binary"
	"testing"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/stretchr/testify/require"
)

// buildChunkBtreeFixture assembles a leaf chunk B-tree node at address 300
// with one entry: logical offset [dim0], stored size, pointing at address
// 500.
func buildChunkBtreeFixture(rank int, dim0Offset uint64, storedSize uint32, chunkAddr uint64) []byte {
	const btreeAddr = 300
	le := binary.LittleEndian

	keySize := chunkKeySize(rank)
	recordSize := keySize + 8
	buf := make([]byte, btreeAddr+24+recordSize+keySize)

	copy(buf[btreeAddr:btreeAddr+4], "TREE")
	buf[btreeAddr+4] = byte(btreeV1NodeChunk)
	buf[btreeAddr+5] = 0
	le.PutUint16(buf[btreeAddr+6:btreeAddr+8], 1)
	le.PutUint64(buf[btreeAddr+8:btreeAddr+16], 0xFFFFFFFFFFFFFFFF)
	le.PutUint64(buf[btreeAddr+16:btreeAddr+24], 0xFFFFFFFFFFFFFFFF)

	key := btreeAddr + 24
	le.PutUint32(buf[key+0:key+4], storedSize)
	le.PutUint32(buf[key+4:key+8], 0) // filter mask
	le.PutUint64(buf[key+8:key+16], dim0Offset)
	le.PutUint64(buf[key+16:key+24], 0) // trailing element-size dimension

	childAddr := key + keySize
	le.PutUint64(buf[childAddr:childAddr+8], chunkAddr)

	return buf
}

func TestCollectAllChunksSingleLeafEntry(t *testing.T) {
	buf := buildChunkBtreeFixture(1, 4, 64, 500)
	src := bytesource.FromBytes(buf)
	sb := &Superblock{OffsetSize: 8, LengthSize: 8}

	chunks, err := CollectAllChunks(src, sb, 300, 1)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, []uint64{4, 0}, chunks[0].Offset)
	require.EqualValues(t, 64, chunks[0].Size)
	require.EqualValues(t, 500, chunks[0].Address)
}

func TestFindChunkMatchesExactOffset(t *testing.T) {
	chunks := []ChunkRecord{
		{Offset: []uint64{0, 0}, Address: 100},
		{Offset: []uint64{4, 0}, Address: 200},
	}
	rec, found := FindChunk(chunks, []uint64{4})
	require.True(t, found)
	require.EqualValues(t, 200, rec.Address)

	_, found = FindChunk(chunks, []uint64{8})
	require.False(t, found)
}
