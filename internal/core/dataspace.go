package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Dataspace describes a dataset's or attribute's shape: its rank, current
// extents, and (optionally) its maximum extents, where a maximum extent
// equal to the unlimited sentinel marks an unbounded dimension.
type Dataspace struct {
	Rank     int
	Dims     []uint64
	MaxDims  []uint64
	IsScalar bool
	IsNull   bool
}

const dataspaceMaxDimsPresent = 0x01

// ElementCount returns the product of the current dimension sizes (1 for
// a scalar, 0 for a null dataspace).
func (d *Dataspace) ElementCount() uint64 {
	if d.IsNull {
		return 0
	}
	count := uint64(1)
	for _, n := range d.Dims {
		count *= n
	}
	return count
}

// DecodeDataspace parses a Dataspace message payload (version 1 or 2).
func DecodeDataspace(data []byte, sb *Superblock) (*Dataspace, error) {
	if len(data) < 1 {
		return nil, xerrors.New(xerrors.Corrupt, "empty dataspace message")
	}
	switch data[0] {
	case 1:
		return decodeDataspaceV1(data, sb)
	case 2:
		return decodeDataspaceV2(data, sb)
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "dataspace message version %d", data[0])
	}
}

func decodeDataspaceV1(data []byte, sb *Superblock) (*Dataspace, error) {
	if len(data) < 8 {
		return nil, xerrors.New(xerrors.Corrupt, "v1 dataspace message too short")
	}
	rank := int(data[1])
	flags := data[2]
	l := sb.LengthSize
	pos := 8

	ds := &Dataspace{Rank: rank}
	dims, pos2, err := readDimArray(data, pos, rank, l)
	if err != nil {
		return nil, err
	}
	ds.Dims = dims
	pos = pos2

	if flags&dataspaceMaxDimsPresent != 0 {
		maxDims, _, err := readDimArray(data, pos, rank, l)
		if err != nil {
			return nil, err
		}
		ds.MaxDims = maxDims
	}
	ds.IsScalar = rank == 0
	return ds, nil
}

const (
	dataspaceTypeScalar = 0
	dataspaceTypeSimple = 1
	dataspaceTypeNull   = 2
)

func decodeDataspaceV2(data []byte, sb *Superblock) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, xerrors.New(xerrors.Corrupt, "v2 dataspace message too short")
	}
	rank := int(data[1])
	flags := data[2]
	spaceType := data[3]
	l := sb.LengthSize
	pos := 4

	ds := &Dataspace{Rank: rank}
	switch spaceType {
	case dataspaceTypeNull:
		ds.IsNull = true
		return ds, nil
	case dataspaceTypeScalar:
		ds.IsScalar = true
		return ds, nil
	case dataspaceTypeSimple:
		dims, pos2, err := readDimArray(data, pos, rank, l)
		if err != nil {
			return nil, err
		}
		ds.Dims = dims
		pos = pos2
		if flags&dataspaceMaxDimsPresent != 0 {
			maxDims, _, err := readDimArray(data, pos, rank, l)
			if err != nil {
				return nil, err
			}
			ds.MaxDims = maxDims
		}
		return ds, nil
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "dataspace type %d", spaceType)
	}
}

func readDimArray(data []byte, pos, rank, width int) ([]uint64, int, error) {
	dims := make([]uint64, rank)
	for i := 0; i < rank; i++ {
		if pos+width > len(data) {
			return nil, 0, xerrors.New(xerrors.Corrupt, "dataspace dimension array truncated")
		}
		dims[i] = bytesource.DecodeUint(data[pos:pos+width], width)
		pos += width
	}
	return dims, pos, nil
}
