package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// GroupEntry is one resolved member of a group, old- or new-style.
type GroupEntry struct {
	Name             string
	ObjectHeaderAddr uint64
	IsSoftLink       bool
	SoftTarget       string
}

// IsGroup reports whether an object header describes a group: it carries
// either a Symbol Table message (old style) or a Link Info message (new
// style).
func IsGroup(header *ObjectHeader) bool {
	_, oldStyle := header.Find(MsgSymbolTable)
	_, newStyle := header.Find(MsgLinkInfo)
	return oldStyle || newStyle
}

// ResolveGroupEntries returns a group's members. incomplete is true when
// the group has overflowed into dense (fractal-heap) link storage that
// this module does not decode (see DESIGN.md): the entries still present
// as direct Link messages in the header are returned, but some members may
// be missing.
func ResolveGroupEntries(src *bytesource.Source, sb *Superblock, header *ObjectHeader) (entries []GroupEntry, incomplete bool, err error) {
	if symMsg, ok := header.Find(MsgSymbolTable); ok {
		return resolveOldStyleGroup(src, sb, symMsg)
	}
	if liMsg, ok := header.Find(MsgLinkInfo); ok {
		return resolveNewStyleGroup(src, sb, header, liMsg)
	}
	return nil, false, xerrors.New(xerrors.Corrupt, "object header has neither a symbol table nor a link info message")
}

func resolveOldStyleGroup(src *bytesource.Source, sb *Superblock, symMsg RawMessage) ([]GroupEntry, bool, error) {
	o := sb.OffsetSize
	if len(symMsg.Data) < 2*o {
		return nil, false, xerrors.New(xerrors.Corrupt, "symbol table message too short")
	}
	btreeAddr := bytesource.DecodeUint(symMsg.Data[0:o], o)
	heapAddr := bytesource.DecodeUint(symMsg.Data[o:2*o], o)

	heap, err := ReadLocalHeap(src, sb, heapAddr)
	if err != nil {
		return nil, false, xerrors.Wrap(err, "load group local heap")
	}
	raw, err := ReadGroupEntries(src, sb, btreeAddr, heap)
	if err != nil {
		return nil, false, xerrors.Wrap(err, "descend group B-tree")
	}

	entries := make([]GroupEntry, 0, len(raw))
	for _, r := range raw {
		e := GroupEntry{Name: r.Name, ObjectHeaderAddr: r.ObjectHeaderAddr}
		if r.CacheType == CacheTypeSoftLink {
			target, err := heap.GetString(uint64(r.SoftLinkOffset))
			if err == nil {
				e.IsSoftLink = true
				e.SoftTarget = target
			}
		}
		entries = append(entries, e)
	}
	return entries, false, nil
}

func resolveNewStyleGroup(src *bytesource.Source, sb *Superblock, header *ObjectHeader, liMsg RawMessage) ([]GroupEntry, bool, error) {
	linkInfo, err := DecodeLinkInfo(liMsg.Data, sb)
	if err != nil {
		return nil, false, xerrors.Wrap(err, "decode link info message")
	}

	var entries []GroupEntry
	for _, lm := range header.FindAll(MsgLink) {
		link, err := DecodeLink(lm.Data, sb)
		if err != nil {
			return nil, false, xerrors.Wrap(err, "decode link message")
		}
		e := GroupEntry{Name: link.Name}
		switch link.Type {
		case LinkTypeHard:
			e.ObjectHeaderAddr = link.HardTarget
		case LinkTypeSoft:
			e.IsSoftLink = true
			e.SoftTarget = link.SoftTarget
		}
		entries = append(entries, e)
	}

	return entries, linkInfo.HasDenseStorage(sb), nil
}
