package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const symbolTableNodeSignature = "SNOD"

// SNOD cache types, recorded on a SymbolTableEntry but not auto-followed:
// a cached soft link target is exposed to callers, never dereferenced by
// the core itself.
const (
	CacheTypeNone        = 0
	CacheTypeSymbolTable = 1
	CacheTypeSoftLink    = 2
)

// SymbolTableEntry is one old-style group member: a name (resolved through
// the group's local heap) and the object header address it points to.
type SymbolTableEntry struct {
	Name            string
	ObjectHeaderAddr uint64
	CacheType       uint32
	// SoftLinkOffset is the local-heap offset of the cached soft link target
	// name, valid only when CacheType == CacheTypeSoftLink.
	SoftLinkOffset uint32
}

// symbolTableEntrySize is the on-disk entry size: link name offset and
// object header address (both Offset-sized), a 4-byte cache type, 4 bytes
// reserved, and a fixed 16-byte scratch-pad.
func symbolTableEntrySize(sb *Superblock) int { return 2*sb.OffsetSize + 4 + 4 + 16 }

// ReadSymbolTableNode parses a leaf SNOD block into its entries, resolving
// each entry's name through heap.
func ReadSymbolTableNode(src *bytesource.Source, sb *Superblock, address uint64, heap *LocalHeap) ([]SymbolTableEntry, error) {
	headHead := make([]byte, 8)
	if err := src.ReadAt(sb.FileOffset(address), headHead); err != nil {
		return nil, xerrors.Wrap(err, "read symbol table node header")
	}
	if string(headHead[0:4]) != symbolTableNodeSignature {
		return nil, xerrors.New(xerrors.Corrupt, "SNOD signature mismatch at %#x", address)
	}
	numSymbols := int(bytesource.DecodeUint(headHead[6:8], 2))

	entrySize := symbolTableEntrySize(sb)
	body := make([]byte, numSymbols*entrySize)
	if len(body) > 0 {
		if err := src.ReadAt(sb.FileOffset(address)+8, body); err != nil {
			return nil, xerrors.Wrap(err, "read symbol table node entries")
		}
	}

	o := sb.OffsetSize
	entries := make([]SymbolTableEntry, 0, numSymbols)
	for i := 0; i < numSymbols; i++ {
		rec := body[i*entrySize : (i+1)*entrySize]
		nameOffset := bytesource.DecodeUint(rec[0:o], o)
		objHeaderAddr := bytesource.DecodeUint(rec[o:2*o], o)
		cacheType := uint32(bytesource.DecodeUint(rec[2*o:2*o+4], 4))

		name, err := heap.GetString(nameOffset)
		if err != nil {
			return nil, xerrors.Wrap(err, "resolve symbol table entry name")
		}

		entry := SymbolTableEntry{Name: name, ObjectHeaderAddr: objHeaderAddr, CacheType: cacheType}
		if cacheType == CacheTypeSoftLink {
			scratch := rec[2*o+8:]
			entry.SoftLinkOffset = uint32(bytesource.DecodeUint(scratch[0:4], 4))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
