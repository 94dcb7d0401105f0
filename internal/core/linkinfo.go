package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const (
	linkInfoFlagCreationOrderTracked = 0x01
	linkInfoFlagCreationOrderIndexed = 0x02
)

// LinkInfo is a new-style group's Link Info message. Groups small enough
// to keep their links as direct Link messages in the object header are
// fully supported; groups that have overflowed into dense (fractal-heap
// backed) storage are detected via FractalHeapAddress being defined, but
// that storage format is not decoded (see DESIGN.md) — resolving a path
// through such a group surfaces xerrors.UnsupportedFeature.
type LinkInfo struct {
	FractalHeapAddress  uint64
	NameBTreeV2Address  uint64
	OrderBTreeV2Address uint64
}

// DecodeLinkInfo parses a Link Info message (version 0, the only version
// defined).
func DecodeLinkInfo(data []byte, sb *Superblock) (*LinkInfo, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "link info message too short")
	}
	if data[0] != 0 {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "link info message version %d", data[0])
	}
	flags := data[1]
	pos := 2
	if flags&linkInfoFlagCreationOrderTracked != 0 {
		pos += 8
	}

	o := sb.OffsetSize
	if len(data) < pos+2*o {
		return nil, xerrors.New(xerrors.Corrupt, "link info message addresses truncated")
	}
	info := &LinkInfo{}
	info.FractalHeapAddress = bytesource.DecodeUint(data[pos:pos+o], o)
	pos += o
	info.NameBTreeV2Address = bytesource.DecodeUint(data[pos:pos+o], o)
	pos += o

	if flags&linkInfoFlagCreationOrderIndexed != 0 {
		if len(data) < pos+o {
			return nil, xerrors.New(xerrors.Corrupt, "link info creation-order B-tree address truncated")
		}
		info.OrderBTreeV2Address = bytesource.DecodeUint(data[pos:pos+o], o)
	}

	return info, nil
}

// HasDenseStorage reports whether this group has overflowed into
// fractal-heap-backed dense link storage.
func (li *LinkInfo) HasDenseStorage(sb *Superblock) bool {
	return !sb.IsUndefined(li.FractalHeapAddress)
}
