package hdf5

import (
	"github.com/scigolib/goh5/internal/core"
)

// Datatype and Dataspace are re-exported verbatim from the decoding core so
// callers never need to import internal/core themselves.
type Datatype = core.Datatype
type Dataspace = core.Dataspace

// Attribute is a named, typed value attached to a group or dataset.
type Attribute struct {
	raw *core.Attribute
}

// Name returns the attribute's name.
func (a *Attribute) Name() string { return a.raw.Name }

// Datatype returns the attribute's element type.
func (a *Attribute) Datatype() *Datatype { return a.raw.Datatype }

// Dataspace returns the attribute's shape.
func (a *Attribute) Dataspace() *Dataspace { return a.raw.Dataspace }

// Value decodes the attribute's full value: the element itself when the
// dataspace is scalar or holds exactly one element, otherwise a []any of
// elements in row-major order.
func (a *Attribute) Value(f *File) (any, error) {
	dec := core.NewElementDecoder(f.sb, f.heapCache)
	ds := a.raw.Dataspace
	dt := a.raw.Datatype
	if ds.IsScalar || ds.ElementCount() == 1 {
		return dec.Decode(a.raw.RawData, dt)
	}
	count := ds.ElementCount()
	out := make([]any, 0, count)
	elemSize := int(dt.Size)
	for i := uint64(0); i < count; i++ {
		start := int(i) * elemSize
		v, err := dec.Decode(a.raw.RawData[start:], dt)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
