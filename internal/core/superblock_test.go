package core

import (
	"encoding/binary"
	"testing"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/stretchr/testify/require"
)

// buildSuperblockV0 assembles a minimal version-0 superblock with 8-byte
// offsets/lengths and the given root group object header address.
func buildSuperblockV0(rootAddr uint64) []byte {
	le := binary.LittleEndian
	buf := make([]byte, 100)
	copy(buf[0:8], Signature)
	buf[8] = 0  // version
	buf[13] = 8 // offset size
	buf[14] = 8 // length size
	le.PutUint64(buf[28:36], 0)                      // base address
	le.PutUint64(buf[36:44], 0xFFFFFFFFFFFFFFFF)      // free space (undefined)
	le.PutUint64(buf[44:52], 100)                     // EOF address
	le.PutUint64(buf[52:60], 0xFFFFFFFFFFFFFFFF)      // driver info (undefined)
	le.PutUint64(buf[68:76], rootAddr)                // root object header address
	return buf
}

func TestReadSuperblockV0(t *testing.T) {
	src := bytesource.FromBytes(buildSuperblockV0(500))
	sb, err := ReadSuperblock(src)
	require.NoError(t, err)
	require.EqualValues(t, 0, sb.Version)
	require.Equal(t, 8, sb.OffsetSize)
	require.Equal(t, 8, sb.LengthSize)
	require.EqualValues(t, 500, sb.RootGroupAddress)
	require.Zero(t, sb.HDF5StartOffset)
}

func TestReadSuperblockMissingSignatureErrors(t *testing.T) {
	src := bytesource.FromBytes(make([]byte, 64))
	_, err := ReadSuperblock(src)
	require.Error(t, err)
}

func TestReadSuperblockAtMatlabOffset(t *testing.T) {
	sbBytes := buildSuperblockV0(500)
	buf := make([]byte, 512+len(sbBytes))
	copy(buf[512:], sbBytes)
	src := bytesource.FromBytes(buf)
	sb, err := ReadSuperblock(src)
	require.NoError(t, err)
	require.EqualValues(t, 512, sb.HDF5StartOffset)
	require.EqualValues(t, 512+500, sb.FileOffset(sb.RootGroupAddress))
}

func TestFileOffsetAddsStartOffset(t *testing.T) {
	sb := &Superblock{HDF5StartOffset: 512}
	require.EqualValues(t, 512+100, sb.FileOffset(100))
}

func TestIsUndefined(t *testing.T) {
	sb := &Superblock{OffsetSize: 8}
	require.True(t, sb.IsUndefined(bytesource.UndefinedAddress(8)))
	require.False(t, sb.IsUndefined(42))
}
