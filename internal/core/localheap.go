package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const localHeapSignature = "HEAP"

// LocalHeap backs the link-name strings referenced by a symbol table's
// entries. It is read again each time an old-style group's members are
// resolved; no cache holds it.
type LocalHeap struct {
	DataSegmentSize uint64
	DataSegmentAddr uint64
	data            []byte
}

// ReadLocalHeap parses the HEAP structure at address and eagerly reads its
// whole data segment, since every lookup against it is a string fetch from
// somewhere inside that segment.
func ReadLocalHeap(src *bytesource.Source, sb *Superblock, address uint64) (*LocalHeap, error) {
	l, o := sb.LengthSize, sb.OffsetSize
	head := make([]byte, 8+2*l+o)
	if err := src.ReadAt(sb.FileOffset(address), head); err != nil {
		return nil, xerrors.Wrap(err, "read local heap header")
	}
	if string(head[0:4]) != localHeapSignature {
		return nil, xerrors.New(xerrors.Corrupt, "local heap signature mismatch at %#x", address)
	}

	dataSegSize := bytesource.DecodeUint(head[8:8+l], l)
	dataSegAddr := bytesource.DecodeUint(head[8+2*l:8+2*l+o], o)

	data := make([]byte, dataSegSize)
	if dataSegSize > 0 {
		if err := src.ReadAt(sb.FileOffset(dataSegAddr), data); err != nil {
			return nil, xerrors.Wrap(err, "read local heap data segment")
		}
	}

	return &LocalHeap{
		DataSegmentSize: dataSegSize,
		DataSegmentAddr: dataSegAddr,
		data:            data,
	}, nil
}

// GetString reads the NUL-terminated string at the given offset into the
// heap's data segment.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.data)) {
		return "", xerrors.New(xerrors.Corrupt, "local heap string offset %d out of range (segment size %d)", offset, len(h.data))
	}
	end := offset
	for end < uint64(len(h.data)) && h.data[end] != 0 {
		end++
	}
	return string(h.data[offset:end]), nil
}
