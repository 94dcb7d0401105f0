package hdf5

import (
	"github.com/scigolib/goh5/internal/core"
	"github.com/scigolib/goh5/internal/xerrors"
)

// InspectItem is one group or dataset discovered during Inspect, with any
// error that occurred while reading it.
type InspectItem struct {
	Path    string
	IsGroup bool
	Err     error
}

// InspectReport is the result of walking a file's whole hierarchy.
type InspectReport struct {
	Items []InspectItem
}

// Inspect recursively walks a file from its root group, visiting every
// group and dataset reachable through hard links. Unlike Group/Dataset
// resolution, Inspect never aborts on an error: a group with unsupported
// dense link storage, a child whose messages cannot be decoded, or a
// dataset whose filter pipeline names a filter this reader does not
// implement is recorded in the report against its path and the walk
// continues past it. A child whose object header cannot be read at all is
// left out of the report (Group.Entries skips it), and attributes are not
// read.
func Inspect(f *File) (*InspectReport, error) {
	report := &InspectReport{}
	walkGroup(f.Root(), "/", report)
	return report, nil
}

func walkGroup(g *Group, path string, report *InspectReport) {
	selfIndex := len(report.Items)
	report.Items = append(report.Items, InspectItem{Path: path, IsGroup: true})

	entries, err := g.Entries()
	if err != nil {
		report.Items[selfIndex].Err = err
		if len(entries) == 0 {
			return
		}
	}

	for _, e := range entries {
		childPath := joinPath(path, e.Name)
		switch {
		case e.IsSoftLink:
			report.Items = append(report.Items, InspectItem{Path: childPath})
		case e.IsGroup:
			child, err := g.child(e.Name)
			if err != nil {
				report.Items = append(report.Items, InspectItem{Path: childPath, IsGroup: true, Err: err})
				continue
			}
			walkGroup(child.(*Group), childPath, report)
		case e.IsDataset:
			v, err := g.child(e.Name)
			if err == nil && v.(*Dataset).info.Pipeline != nil {
				for _, fi := range v.(*Dataset).info.Pipeline.Filters {
					switch fi.ID {
					case core.FilterDeflate, core.FilterShuffle, core.FilterFletcher32:
					default:
						err = xerrors.New(xerrors.UnsupportedFilter, "filter id %d", fi.ID)
					}
				}
			}
			report.Items = append(report.Items, InspectItem{Path: childPath, Err: err})
		}
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
