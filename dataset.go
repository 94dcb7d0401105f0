package hdf5

import (
	"time"

	"github.com/scigolib/goh5/internal/core"
	"github.com/scigolib/goh5/internal/utils"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Dataset is a resolved HDF5 dataset: a typed, shaped array of elements,
// possibly chunked and filtered, possibly backed by variable-length data in
// the global heap.
type Dataset struct {
	file   *File
	header *core.ObjectHeader
	info   *core.DatasetInfo
}

// Shape returns the dataset's current extents.
func (d *Dataset) Shape() []uint64 { return d.info.Dataspace.Dims }

// Rank returns the dataset's number of dimensions.
func (d *Dataset) Rank() int { return d.info.Dataspace.Rank }

// Datatype returns the dataset's element type.
func (d *Dataset) Datatype() *Datatype { return d.info.Datatype }

// Dataspace returns the dataset's shape descriptor.
func (d *Dataset) Dataspace() *Dataspace { return d.info.Dataspace }

// Attributes returns the dataset's own attributes.
func (d *Dataset) Attributes() []*Attribute {
	out := make([]*Attribute, 0, len(d.info.Attributes))
	for _, a := range d.info.Attributes {
		out = append(out, &Attribute{raw: a})
	}
	return out
}

// Read materializes every element of the dataset, in row-major order.
func (d *Dataset) Read() ([]any, error) {
	raw, err := d.info.MaterializeBytes(d.file.src, d.file.sb)
	if err != nil {
		return nil, err
	}
	dec := core.NewElementDecoder(d.file.sb, d.file.heapCache)
	dt := d.info.Datatype
	elemSize := int(dt.Size)
	count := d.info.Dataspace.ElementCount()
	out := make([]any, 0, count)
	for i := uint64(0); i < count; i++ {
		start := int(i) * elemSize
		v, err := dec.Decode(raw[start:], dt)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode element %d", i)
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadSlice reads the hyperslab given by start, count and step along each
// dimension: element (i0,...,ik) of the result is element
// (start[0]+i0*step[0], ...) of the full dataset. A nil step is treated as
// all-ones (contiguous, no striding). It materializes the full dataset and
// extracts the requested rectangle; callers reading a small slice of a very
// large dataset should prefer narrowing their own storage layout over
// relying on this for performance.
func (d *Dataset) ReadSlice(start, count, step []uint64) ([]any, error) {
	rank := d.Rank()
	if len(start) != rank || len(count) != rank {
		return nil, xerrors.New(xerrors.Corrupt, "ReadSlice: start/count rank mismatch with dataset rank %d", rank)
	}
	if step == nil {
		step = make([]uint64, rank)
		for i := range step {
			step[i] = 1
		}
	} else if len(step) != rank {
		return nil, xerrors.New(xerrors.Corrupt, "ReadSlice: step rank mismatch with dataset rank %d", rank)
	}
	for i, s := range step {
		if s == 0 {
			return nil, xerrors.New(xerrors.Corrupt, "ReadSlice: step must be >= 1 at dimension %d", i)
		}
	}

	dims := d.Shape()
	if err := utils.ValidateHyperslabBounds(start, count, step, dims); err != nil {
		return nil, xerrors.Wrap(err, "ReadSlice bounds")
	}
	total, err := utils.CalculateHyperslabElements(count)
	if err != nil {
		return nil, xerrors.Wrap(err, "ReadSlice element count")
	}

	full, err := d.Read()
	if err != nil {
		return nil, err
	}
	strides := make([]uint64, rank)
	s := uint64(1)
	for i := rank - 1; i >= 0; i-- {
		strides[i] = s
		s *= dims[i]
	}

	out := make([]any, 0, total)
	idx := make([]uint64, rank)
	for {
		var offset uint64
		for dim := 0; dim < rank; dim++ {
			offset += (start[dim] + idx[dim]*step[dim]) * strides[dim]
		}
		if int(offset) < len(full) {
			out = append(out, full[offset])
		}
		if !advanceWithin(idx, count) {
			break
		}
	}
	return out, nil
}

func advanceWithin(idx, bounds []uint64) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < bounds[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}

// ReadAsBoolean reads a dataset whose Datatype().IsBoolean() is true as a
// []bool, the convention h5py and MATLAB logicals both use.
func (d *Dataset) ReadAsBoolean() ([]bool, error) {
	if !d.info.Datatype.IsBoolean() {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "dataset datatype is not the boolean convention (unsigned 1-byte integer)")
	}
	values, err := d.Read()
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(values))
	for i, v := range values {
		n, ok := v.(uint64)
		if !ok {
			return nil, xerrors.New(xerrors.Corrupt, "boolean element %d decoded as unexpected type %T", i, v)
		}
		out[i] = n != 0
	}
	return out, nil
}

// TimeUnit controls how ReadAsDateTime interprets a Time datatype's raw
// integer values.
type TimeUnit int

const (
	// TimeUnitAuto picks seconds or milliseconds by magnitude: any value
	// whose absolute size exceeds 1e12 is assumed to be milliseconds since
	// epoch, since a seconds-since-epoch value of that magnitude would fall
	// tens of thousands of years in the future.
	TimeUnitAuto TimeUnit = iota
	TimeUnitSeconds
	TimeUnitMilliseconds
)

const autoTimeUnitMagnitudeThreshold = 1e12

// ReadAsDateTime reads a Time-class dataset as a []time.Time.
func (d *Dataset) ReadAsDateTime(unit TimeUnit) ([]time.Time, error) {
	if d.info.Datatype.Class != core.ClassTime {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "dataset datatype is not a Time class")
	}
	values, err := d.Read()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		n, ok := v.(uint64)
		if !ok {
			return nil, xerrors.New(xerrors.Corrupt, "time element %d decoded as unexpected type %T", i, v)
		}
		resolved := unit
		if resolved == TimeUnitAuto {
			if n > autoTimeUnitMagnitudeThreshold {
				resolved = TimeUnitMilliseconds
			} else {
				resolved = TimeUnitSeconds
			}
		}
		if resolved == TimeUnitMilliseconds {
			out[i] = time.UnixMilli(int64(n)).UTC()
		} else {
			out[i] = time.Unix(int64(n), 0).UTC()
		}
	}
	return out, nil
}
