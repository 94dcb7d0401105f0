package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// DecodeFillValue parses a Fill Value message (version 1 through 3) and
// returns the raw fill bytes, or nil if no fill value is defined (in which
// case absent chunks decode as all-zero).
func DecodeFillValue(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, xerrors.New(xerrors.Corrupt, "fill value message empty")
	}
	version := data[0]
	switch {
	case version == 1 || version == 2:
		return decodeFillValueV12(data, version)
	case version == 3:
		return decodeFillValueV3(data)
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "fill value message version %d", version)
	}
}

func decodeFillValueV12(data []byte, version byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, xerrors.New(xerrors.Corrupt, "fill value v1/v2 header truncated")
	}
	pos := 4
	defined := true
	if version == 2 {
		defined = data[3] != 0
	}
	if !defined {
		return nil, nil
	}
	if len(data) < pos+4 {
		return nil, xerrors.New(xerrors.Corrupt, "fill value size truncated")
	}
	size := int(bytesource.DecodeUint(data[pos:pos+4], 4))
	pos += 4
	if size <= 0 {
		return nil, nil
	}
	if len(data) < pos+size {
		return nil, xerrors.New(xerrors.Corrupt, "fill value data truncated")
	}
	return append([]byte(nil), data[pos:pos+size]...), nil
}

const fillValueV3FlagDefined = 0x20

func decodeFillValueV3(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "fill value v3 header truncated")
	}
	flags := data[1]
	pos := 2
	if flags&fillValueV3FlagDefined == 0 {
		return nil, nil
	}
	if len(data) < pos+4 {
		return nil, xerrors.New(xerrors.Corrupt, "fill value v3 size truncated")
	}
	size := int(bytesource.DecodeUint(data[pos:pos+4], 4))
	pos += 4
	if size <= 0 {
		return nil, nil
	}
	if len(data) < pos+size {
		return nil, xerrors.New(xerrors.Corrupt, "fill value v3 data truncated")
	}
	return append([]byte(nil), data[pos:pos+size]...), nil
}
