package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Data layout classes (spec.md §4.10).
const (
	LayoutCompact    = 0
	LayoutContiguous = 1
	LayoutChunked    = 2
	LayoutVirtual    = 3
)

// DataLayout is the decoded Data Layout message: which of Compact,
// Contiguous, or Chunked storage backs a dataset's raw data, and the
// address/size information needed to materialize it.
type DataLayout struct {
	Class   uint8
	Version uint8

	CompactData []byte

	ContiguousAddress uint64
	ContiguousSize    uint64

	ChunkDims    []uint64 // rank entries, dataset dimensions only
	ElementSize  uint32
	BtreeAddress uint64

	IsSingleChunk         bool
	SingleChunkSize       uint32
	SingleChunkFilterMask uint32
	SingleChunkAddress    uint64
}

// DecodeDataLayout parses a Data Layout message of version 1 through 4.
func DecodeDataLayout(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "data layout message too short")
	}
	version := data[0]
	switch version {
	case 1, 2:
		return decodeDataLayoutV12(data, sb)
	case 3:
		return decodeDataLayoutV3(data, sb)
	case 4:
		return decodeDataLayoutV4(data, sb)
	default:
		return nil, xerrors.New(xerrors.UnsupportedLayoutVersion, "version %d", version)
	}
}

func decodeDataLayoutV12(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 8 {
		return nil, xerrors.New(xerrors.Corrupt, "v1/v2 data layout header too short")
	}
	version := data[0]
	dimensionality := int(data[1])
	class := data[2]
	pos := 8

	layout := &DataLayout{Class: class, Version: version}

	o := sb.OffsetSize
	if class == LayoutContiguous || class == LayoutChunked {
		if len(data) < pos+o {
			return nil, xerrors.New(xerrors.Corrupt, "v1/v2 data layout address truncated")
		}
		addr := bytesource.DecodeUint(data[pos:pos+o], o)
		pos += o
		if class == LayoutContiguous {
			layout.ContiguousAddress = addr
		} else {
			layout.BtreeAddress = addr
		}
	}

	dims := make([]uint64, dimensionality)
	for i := 0; i < dimensionality; i++ {
		if len(data) < pos+4 {
			return nil, xerrors.New(xerrors.Corrupt, "v1/v2 data layout dimension array truncated")
		}
		dims[i] = bytesource.DecodeUint(data[pos:pos+4], 4)
		pos += 4
	}

	switch class {
	case LayoutChunked:
		// The last entry of the dimension array is the element size; the
		// rest are the chunk's extent in each dataset dimension.
		if len(dims) == 0 {
			return nil, xerrors.New(xerrors.Corrupt, "chunked layout has no dimensions")
		}
		layout.ElementSize = uint32(dims[len(dims)-1])
		layout.ChunkDims = dims[:len(dims)-1]
	case LayoutCompact:
		if len(data) < pos+4 {
			return nil, xerrors.New(xerrors.Corrupt, "compact data size truncated")
		}
		size := int(bytesource.DecodeUint(data[pos:pos+4], 4))
		pos += 4
		if len(data) < pos+size {
			return nil, xerrors.New(xerrors.Corrupt, "compact data truncated")
		}
		layout.CompactData = append([]byte(nil), data[pos:pos+size]...)
	}

	return layout, nil
}

func decodeDataLayoutV3(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "v3 data layout header too short")
	}
	class := data[1]
	pos := 2
	layout := &DataLayout{Class: class, Version: 3}
	o, l := sb.OffsetSize, sb.LengthSize

	switch class {
	case LayoutCompact:
		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "v3 compact size truncated")
		}
		size := int(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2
		if len(data) < pos+size {
			return nil, xerrors.New(xerrors.Corrupt, "v3 compact data truncated")
		}
		layout.CompactData = append([]byte(nil), data[pos:pos+size]...)

	case LayoutContiguous:
		if len(data) < pos+o+l {
			return nil, xerrors.New(xerrors.Corrupt, "v3 contiguous fields truncated")
		}
		layout.ContiguousAddress = bytesource.DecodeUint(data[pos:pos+o], o)
		pos += o
		layout.ContiguousSize = bytesource.DecodeUint(data[pos:pos+l], l)

	case LayoutChunked:
		if len(data) < pos+1 {
			return nil, xerrors.New(xerrors.Corrupt, "v3 chunked dimensionality truncated")
		}
		dimensionality := int(data[pos])
		pos++
		if len(data) < pos+o {
			return nil, xerrors.New(xerrors.Corrupt, "v3 chunked address truncated")
		}
		layout.BtreeAddress = bytesource.DecodeUint(data[pos:pos+o], o)
		pos += o

		dims := make([]uint64, dimensionality)
		for i := 0; i < dimensionality; i++ {
			if len(data) < pos+4 {
				return nil, xerrors.New(xerrors.Corrupt, "v3 chunked dimension array truncated")
			}
			dims[i] = bytesource.DecodeUint(data[pos:pos+4], 4)
			pos += 4
		}
		if len(dims) == 0 {
			return nil, xerrors.New(xerrors.Corrupt, "v3 chunked layout has no dimensions")
		}
		layout.ElementSize = uint32(dims[len(dims)-1])
		layout.ChunkDims = dims[:len(dims)-1]

	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "v3 data layout class %d", class)
	}

	return layout, nil
}

// Chunk indexing types used by version 4 chunked layouts (HDF5 1.10+).
// Only SingleChunk is implemented; the others require a B-tree v2, Fixed
// Array, or Extensible Array reader this module does not carry (spec.md's
// named chunk index is the version 1 B-tree only).
const (
	chunkIndexSingleChunk     = 1
	chunkIndexImplicit        = 2
	chunkIndexFixedArray      = 3
	chunkIndexExtensibleArray = 4
	chunkIndexBtreeV2         = 5
)

func decodeDataLayoutV4(data []byte, sb *Superblock) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "v4 data layout header too short")
	}
	class := data[1]
	pos := 2
	layout := &DataLayout{Class: class, Version: 4}
	o, l := sb.OffsetSize, sb.LengthSize

	switch class {
	case LayoutCompact:
		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "v4 compact size truncated")
		}
		size := int(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2
		if len(data) < pos+size {
			return nil, xerrors.New(xerrors.Corrupt, "v4 compact data truncated")
		}
		layout.CompactData = append([]byte(nil), data[pos:pos+size]...)
		return layout, nil

	case LayoutContiguous:
		if len(data) < pos+o+l {
			return nil, xerrors.New(xerrors.Corrupt, "v4 contiguous fields truncated")
		}
		layout.ContiguousAddress = bytesource.DecodeUint(data[pos:pos+o], o)
		pos += o
		layout.ContiguousSize = bytesource.DecodeUint(data[pos:pos+l], l)
		return layout, nil

	case LayoutChunked:
		if len(data) < pos+3 {
			return nil, xerrors.New(xerrors.Corrupt, "v4 chunked header truncated")
		}
		flags := data[pos] // bit 1: the single-chunk index carries a filtered size and filter mask
		pos++
		dimensionality := int(data[pos])
		pos++
		dimEncodedLen := int(data[pos])
		pos++

		// Dimensions stay 64-bit here: v4 encodes them up to 8 bytes wide,
		// unlike the fixed 4-byte fields of earlier layout versions.
		dims := make([]uint64, dimensionality)
		for i := 0; i < dimensionality; i++ {
			if len(data) < pos+dimEncodedLen {
				return nil, xerrors.New(xerrors.Corrupt, "v4 chunked dimension array truncated")
			}
			dims[i] = bytesource.DecodeUint(data[pos:pos+dimEncodedLen], dimEncodedLen)
			pos += dimEncodedLen
		}
		if len(dims) == 0 {
			return nil, xerrors.New(xerrors.Corrupt, "v4 chunked layout has no dimensions")
		}
		layout.ElementSize = uint32(dims[len(dims)-1])
		layout.ChunkDims = dims[:len(dims)-1]

		if len(data) < pos+1 {
			return nil, xerrors.New(xerrors.Corrupt, "v4 chunk indexing type truncated")
		}
		indexType := data[pos]
		pos++

		switch indexType {
		case chunkIndexSingleChunk:
			layout.IsSingleChunk = true
			if flags&0x02 != 0 {
				if len(data) < pos+l+4+o {
					return nil, xerrors.New(xerrors.Corrupt, "v4 single-chunk index truncated")
				}
				layout.SingleChunkSize = uint32(bytesource.DecodeUint(data[pos:pos+l], l))
				pos += l
				layout.SingleChunkFilterMask = uint32(bytesource.DecodeUint(data[pos:pos+4], 4))
				pos += 4
			} else {
				if len(data) < pos+o {
					return nil, xerrors.New(xerrors.Corrupt, "v4 single-chunk index truncated")
				}
				size := uint64(layout.ElementSize)
				for _, d := range layout.ChunkDims {
					size *= d
				}
				layout.SingleChunkSize = uint32(size)
			}
			layout.SingleChunkAddress = bytesource.DecodeUint(data[pos:pos+o], o)
			return layout, nil
		case chunkIndexImplicit:
			if len(data) < pos+o {
				return nil, xerrors.New(xerrors.Corrupt, "v4 implicit index truncated")
			}
			layout.BtreeAddress = bytesource.DecodeUint(data[pos:pos+o], o)
			return nil, xerrors.New(xerrors.UnsupportedFeature, "v4 chunk indexing type 'implicit' is not supported")
		case chunkIndexFixedArray, chunkIndexExtensibleArray, chunkIndexBtreeV2:
			return nil, xerrors.New(xerrors.UnsupportedFeature, "v4 chunk indexing type %d is not supported", indexType)
		default:
			return nil, xerrors.New(xerrors.UnsupportedFeature, "unknown v4 chunk indexing type %d", indexType)
		}

	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "v4 data layout class %d", class)
	}
}
