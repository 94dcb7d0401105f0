package hdf5

import (
	"github.com/scigolib/goh5/internal/core"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Group is a resolved HDF5 group: a namespace of child groups, datasets,
// and links.
type Group struct {
	file   *File
	header *core.ObjectHeader
}

// Entry is one child of a group, before its object header has necessarily
// been opened.
type Entry struct {
	Name       string
	IsGroup    bool
	IsDataset  bool
	IsSoftLink bool
	SoftTarget string
}

// Entries lists the group's direct children. If the group has overflowed
// into dense (fractal-heap-backed) link storage, the entries still
// reachable as direct Link messages are returned alongside
// xerrors.UnsupportedFeature — callers that only need what's there can
// ignore a non-nil error when entries is non-empty.
func (g *Group) Entries() ([]Entry, error) {
	raw, incomplete, err := core.ResolveGroupEntries(g.file.src, g.file.sb, g.header)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(raw))
	for _, r := range raw {
		if r.IsSoftLink {
			entries = append(entries, Entry{Name: r.Name, IsSoftLink: true, SoftTarget: r.SoftTarget})
			continue
		}
		childHeader, err := core.ReadObjectHeader(g.file.src, g.file.sb, r.ObjectHeaderAddr)
		if err != nil {
			continue // unreadable child: skip it, matching Inspect's per-item tolerance
		}
		e := Entry{Name: r.Name}
		if core.IsGroup(childHeader) {
			e.IsGroup = true
		} else {
			e.IsDataset = true
		}
		entries = append(entries, e)
	}

	if incomplete {
		return entries, xerrors.New(xerrors.UnsupportedFeature, "group has dense link storage this reader does not decode")
	}
	return entries, nil
}

// Attributes returns the group's own attributes.
func (g *Group) Attributes() ([]*Attribute, error) {
	return readAttributes(g.file.sb, g.header)
}

// child resolves a single path segment to either a *Group or a *Dataset.
// Soft links are reported by name but never auto-followed (spec.md §4.9).
func (g *Group) child(name string) (any, error) {
	raw, _, err := core.ResolveGroupEntries(g.file.src, g.file.sb, g.header)
	if err != nil {
		return nil, err
	}
	for _, r := range raw {
		if r.Name != name {
			continue
		}
		if r.IsSoftLink {
			return nil, xerrors.New(xerrors.UnsupportedFeature, "%q is a soft link to %q: not auto-followed", name, r.SoftTarget)
		}
		childHeader, err := core.ReadObjectHeader(g.file.src, g.file.sb, r.ObjectHeaderAddr)
		if err != nil {
			return nil, xerrors.Wrap(err, "read object header for %q", name)
		}
		if core.IsGroup(childHeader) {
			return &Group{file: g.file, header: childHeader}, nil
		}
		info, err := core.ReadDatasetInfo(g.file.sb, childHeader)
		if err != nil {
			return nil, xerrors.Wrap(err, "read dataset info for %q", name)
		}
		return &Dataset{file: g.file, header: childHeader, info: info}, nil
	}
	return nil, xerrors.New(xerrors.PathNotFound, "no such child %q", name)
}

func readAttributes(sb *core.Superblock, header *core.ObjectHeader) ([]*Attribute, error) {
	var out []*Attribute
	for _, am := range header.FindAll(core.MsgAttribute) {
		attr, err := core.DecodeAttribute(am.Data, sb)
		if err != nil {
			continue
		}
		out = append(out, &Attribute{raw: attr})
	}
	return out, nil
}
