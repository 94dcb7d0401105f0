package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// ChunkRecord describes one stored chunk of a chunked dataset: its logical
// offset (in elements, one entry per dataset dimension plus a trailing
// element-size dimension that is always 0), its on-disk address, its
// stored byte size (post-filter), and which filters were skipped for it.
type ChunkRecord struct {
	Offset     []uint64
	Address    uint64
	Size       uint32
	FilterMask uint32
}

// CollectAllChunks descends the version-1 B-tree rooted at btreeAddr and
// returns every stored chunk. rank is the dataset's dimensionality (the
// chunk key encodes rank+1 offset fields, the last always 0).
func CollectAllChunks(src *bytesource.Source, sb *Superblock, btreeAddr uint64, rank int) ([]ChunkRecord, error) {
	return collectChunksAt(src, sb, btreeAddr, rank)
}

func collectChunksAt(src *bytesource.Source, sb *Superblock, address uint64, rank int) ([]ChunkRecord, error) {
	header, err := readBtreeV1Header(src, sb, address)
	if err != nil {
		return nil, err
	}
	if header.nodeType != btreeV1NodeChunk {
		return nil, xerrors.New(xerrors.Corrupt, "B-tree at %#x is not a chunk node", address)
	}

	keySize := chunkKeySize(rank)
	o := sb.OffsetSize
	recordSize := keySize + o
	body := make([]byte, int(header.entriesUsed)*recordSize+keySize)
	if len(body) > 0 {
		if err := src.ReadAt(sb.FileOffset(address)+int64(btreeV1HeaderSize(sb)), body); err != nil {
			return nil, xerrors.Wrap(err, "read chunk B-tree node entries")
		}
	}

	var all []ChunkRecord
	for i := 0; i < int(header.entriesUsed); i++ {
		keyOff := i * recordSize
		rec := decodeChunkKey(body[keyOff:keyOff+keySize], rank)
		childOff := keyOff + keySize
		childAddr := bytesource.DecodeUint(body[childOff:childOff+o], o)

		if header.level == 0 {
			rec.Address = childAddr
			all = append(all, rec)
			continue
		}
		nested, err := collectChunksAt(src, sb, childAddr, rank)
		if err != nil {
			return nil, err
		}
		all = append(all, nested...)
	}
	return all, nil
}

// decodeChunkKey decodes a chunk node key: 4-byte stored size, 4-byte
// filter mask, then rank+1 8-byte dimension offsets.
func decodeChunkKey(key []byte, rank int) ChunkRecord {
	rec := ChunkRecord{
		Size:       uint32(bytesource.DecodeUint(key[0:4], 4)),
		FilterMask: uint32(bytesource.DecodeUint(key[4:8], 4)),
		Offset:     make([]uint64, rank+1),
	}
	for d := 0; d <= rank; d++ {
		start := 8 + d*8
		rec.Offset[d] = bytesource.DecodeUint(key[start:start+8], 8)
	}
	return rec
}

// FindChunk returns the chunk whose origin offset equals coords (one per
// dataset dimension), or found=false if no stored chunk starts there (the
// caller must synthesize the fill value). coords must be a chunk origin: a
// coordinate inside a chunk but not at its origin is not matched.
func FindChunk(chunks []ChunkRecord, coords []uint64) (rec ChunkRecord, found bool) {
	for _, c := range chunks {
		if chunkCoversCoords(c, coords) {
			return c, true
		}
	}
	return ChunkRecord{}, false
}

func chunkCoversCoords(c ChunkRecord, coords []uint64) bool {
	if len(c.Offset)-1 != len(coords) {
		return false
	}
	for i, v := range coords {
		if c.Offset[i] != v {
			return false
		}
	}
	return true
}
