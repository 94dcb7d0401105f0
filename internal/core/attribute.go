package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Attribute is a fully decoded Attribute message: its name, its datatype
// and dataspace (shared with dataset decoding), and the raw element bytes.
type Attribute struct {
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	RawData   []byte
}

// DecodeAttribute parses an Attribute message (version 1 through 3).
func DecodeAttribute(data []byte, sb *Superblock) (*Attribute, error) {
	if len(data) < 8 {
		return nil, xerrors.New(xerrors.Corrupt, "attribute message too short")
	}
	version := data[0]

	var nameSize, datatypeSize, dataspaceSize int
	var headerLen int
	var padded bool

	switch version {
	case 1:
		headerLen = 8
		padded = true
	case 2:
		headerLen = 8
		padded = false
	case 3:
		headerLen = 9
		padded = false
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "attribute message version %d", version)
	}
	if len(data) < headerLen {
		return nil, xerrors.New(xerrors.Corrupt, "attribute message header truncated")
	}

	nameSize = int(bytesource.DecodeUint(data[2:4], 2))
	datatypeSize = int(bytesource.DecodeUint(data[4:6], 2))
	dataspaceSize = int(bytesource.DecodeUint(data[6:8], 2))

	pos := headerLen
	readField := func(size int) ([]byte, error) {
		if len(data) < pos+size {
			return nil, xerrors.New(xerrors.Corrupt, "attribute message field truncated")
		}
		field := data[pos : pos+size]
		pos += size
		if padded {
			pos = align8(pos)
		}
		return field, nil
	}

	nameField, err := readField(nameSize)
	if err != nil {
		return nil, err
	}
	name := cStringTrim(nameField)

	dtField, err := readField(datatypeSize)
	if err != nil {
		return nil, err
	}
	dt, _, err := DecodeDatatype(dtField)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode attribute %q datatype", name)
	}

	dsField, err := readField(dataspaceSize)
	if err != nil {
		return nil, err
	}
	ds, err := DecodeDataspace(dsField, sb)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode attribute %q dataspace", name)
	}

	rawSize := uint64(dt.Size) * ds.ElementCount()
	var raw []byte
	if rawSize > 0 {
		if len(data) < pos+int(rawSize) {
			return nil, xerrors.New(xerrors.Corrupt, "attribute %q data truncated", name)
		}
		raw = append([]byte(nil), data[pos:pos+int(rawSize)]...)
	}

	return &Attribute{Name: name, Datatype: dt, Dataspace: ds, RawData: raw}, nil
}
