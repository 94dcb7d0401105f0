package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// ReadGroupEntries descends the version-1 B-tree rooted at btreeAddr,
// collecting the symbol table entries of every leaf SNOD in key order.
// Internal nodes are walked left to right; leaves (level 0) are read
// directly as SNOD blocks.
func ReadGroupEntries(src *bytesource.Source, sb *Superblock, btreeAddr uint64, heap *LocalHeap) ([]SymbolTableEntry, error) {
	return readGroupEntriesAt(src, sb, btreeAddr, heap)
}

func readGroupEntriesAt(src *bytesource.Source, sb *Superblock, address uint64, heap *LocalHeap) ([]SymbolTableEntry, error) {
	header, err := readBtreeV1Header(src, sb, address)
	if err != nil {
		return nil, err
	}
	if header.nodeType != btreeV1NodeGroup {
		return nil, xerrors.New(xerrors.Corrupt, "B-tree at %#x is not a group node", address)
	}

	keySize := groupKeySize(sb)
	o := sb.OffsetSize
	recordSize := keySize + o
	body := make([]byte, int(header.entriesUsed)*recordSize+keySize)
	if len(body) > 0 {
		if err := src.ReadAt(sb.FileOffset(address)+int64(btreeV1HeaderSize(sb)), body); err != nil {
			return nil, xerrors.Wrap(err, "read group B-tree node entries")
		}
	}

	var all []SymbolTableEntry
	for i := 0; i < int(header.entriesUsed); i++ {
		childOff := i*recordSize + keySize
		childAddr := bytesource.DecodeUint(body[childOff:childOff+o], o)

		if header.level == 0 {
			entries, err := ReadSymbolTableNode(src, sb, childAddr, heap)
			if err != nil {
				return nil, err
			}
			all = append(all, entries...)
			continue
		}
		entries, err := readGroupEntriesAt(src, sb, childAddr, heap)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}
