package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Datatype classes, per spec.md §3's closed set of 11.
const (
	ClassInteger   = 0
	ClassFloat     = 1
	ClassTime      = 2
	ClassString    = 3
	ClassBitfield  = 4
	ClassOpaque    = 5
	ClassCompound  = 6
	ClassReference = 7
	ClassEnum      = 8
	ClassVLen      = 9
	ClassArray     = 10
)

// Reference subtypes (class 7).
const (
	RefTypeObject = 0
	RefTypeRegion = 1
)

// VLen subtypes (class 9).
const (
	VLenTypeSequence = 0
	VLenTypeString   = 1
)

// String/VLen-string padding schemes.
const (
	StrPadNullTerm = 0
	StrPadNullPad  = 1
	StrPadSpacePad = 2
)

// CompoundMember is one named, offset-positioned field of a compound
// datatype.
type CompoundMember struct {
	Name   string
	Offset uint64
	Type   *Datatype
}

// Datatype is the fully recursive tagged-union descriptor spec.md §3
// requires: every class's properties live alongside the shared Class,
// Version and Size, and nested classes (compound, enum, vlen, array) carry
// pointers to their own fully decoded sub-datatypes.
type Datatype struct {
	Class   int
	Version int
	Size    uint32

	// Integer / Bitfield
	BigEndian    bool
	Signed       bool
	BitOffset    uint16
	BitPrecision uint16

	// Float
	ExponentLocation uint8
	ExponentSize     uint8
	MantissaLocation uint8
	MantissaSize     uint8
	ExponentBias     uint32
	SignLocation     uint8

	// String
	StringPad uint8
	CharSet   uint8

	// Compound
	Members []CompoundMember

	// Enum
	BaseType   *Datatype
	EnumNames  []string
	EnumValues [][]byte

	// Reference
	RefType uint8

	// VLen
	VLenKind    uint8 // VLenTypeSequence or VLenTypeString
	VLenPadding uint8
	VLenCharSet uint8
	VLenBase    *Datatype

	// Array
	ArrayDims []uint32
	ArrayBase *Datatype

	// Opaque
	OpaqueTag string
}

// IsBoolean reports the boolean convention: an unsigned 1-byte integer
// with a precision of a single bit, or of the full byte. There is no
// distinct boolean datatype class in HDF5; libraries that write booleans
// (h5py, MATLAB logicals) use one of these two encodings.
func (d *Datatype) IsBoolean() bool {
	return d.Class == ClassInteger && !d.Signed && d.Size == 1 &&
		(d.BitPrecision == 1 || d.BitPrecision == 8)
}

// DecodeDatatype parses one datatype message (or nested sub-datatype) from
// the front of data, returning the number of bytes it consumed so the
// caller (compound member parsing, array/vlen base-type parsing) can
// continue reading what follows in the same buffer.
func DecodeDatatype(data []byte) (*Datatype, int, error) {
	if len(data) < 8 {
		return nil, 0, xerrors.New(xerrors.Corrupt, "datatype message too short")
	}
	classAndVersion := data[0]
	class := int(classAndVersion & 0x0F)
	version := int(classAndVersion>>4) & 0x0F
	bitField := data[1:4]
	size := uint32(bytesource.DecodeUint(data[4:8], 4))

	dt := &Datatype{Class: class, Version: version, Size: size}
	pos := 8

	switch class {
	case ClassInteger, ClassBitfield:
		dt.BigEndian = bitField[0]&0x01 != 0
		dt.Signed = class == ClassInteger && bitField[0]&0x08 != 0
		if len(data) < pos+4 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "integer/bitfield datatype properties truncated")
		}
		dt.BitOffset = uint16(bytesource.DecodeUint(data[pos:pos+2], 2))
		dt.BitPrecision = uint16(bytesource.DecodeUint(data[pos+2:pos+4], 2))
		pos += 4

	case ClassFloat:
		dt.BigEndian = bitField[0]&0x01 != 0
		dt.SignLocation = bitField[2]
		if len(data) < pos+12 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "float datatype properties truncated")
		}
		pos += 4 // bit offset + bit precision, not separately needed beyond Size
		dt.ExponentLocation = data[pos]
		dt.ExponentSize = data[pos+1]
		dt.MantissaLocation = data[pos+2]
		dt.MantissaSize = data[pos+3]
		dt.ExponentBias = uint32(bytesource.DecodeUint(data[pos+4:pos+8], 4))
		pos += 8

	case ClassTime:
		if len(data) < pos+2 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "time datatype properties truncated")
		}
		dt.BitPrecision = uint16(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2

	case ClassString:
		dt.StringPad = bitField[0] & 0x0F
		dt.CharSet = (bitField[0] >> 4) & 0x0F

	case ClassOpaque:
		tagLen := int(bitField[0])
		if len(data) < pos+tagLen {
			return nil, 0, xerrors.New(xerrors.Corrupt, "opaque datatype tag truncated")
		}
		dt.OpaqueTag = cStringTrim(data[pos : pos+tagLen])
		pos += paddedLen8(tagLen)

	case ClassCompound:
		numMembers := int(bytesource.DecodeUint(bitField[0:2], 2))
		members, consumed, err := decodeCompoundMembers(data[pos:], numMembers, version, size)
		if err != nil {
			return nil, 0, err
		}
		dt.Members = members
		pos += consumed

	case ClassReference:
		dt.RefType = bitField[0] & 0x0F

	case ClassEnum:
		numMembers := int(bytesource.DecodeUint(bitField[0:2], 2))
		base, consumed, err := DecodeDatatype(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		dt.BaseType = base
		pos += consumed

		names, consumed, err := decodeEnumNames(data[pos:], numMembers, version)
		if err != nil {
			return nil, 0, err
		}
		dt.EnumNames = names
		pos += consumed

		values, consumed, err := decodeEnumValues(data[pos:], numMembers, int(base.Size))
		if err != nil {
			return nil, 0, err
		}
		dt.EnumValues = values
		pos += consumed

	case ClassVLen:
		dt.VLenKind = bitField[0] & 0x0F
		dt.VLenPadding = (bitField[0] >> 4) & 0x0F
		dt.VLenCharSet = bitField[1] & 0x0F
		base, consumed, err := DecodeDatatype(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		dt.VLenBase = base
		pos += consumed

	case ClassArray:
		if len(data) < pos+4 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "array datatype properties truncated")
		}
		dimensionality := int(data[pos])
		pos += 4 // dimensionality + 3 bytes reserved
		dims := make([]uint32, dimensionality)
		for i := 0; i < dimensionality; i++ {
			if pos+4 > len(data) {
				return nil, 0, xerrors.New(xerrors.Corrupt, "array datatype dimensions truncated")
			}
			dims[i] = uint32(bytesource.DecodeUint(data[pos:pos+4], 4))
			pos += 4
		}
		dt.ArrayDims = dims
		base, consumed, err := DecodeDatatype(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		dt.ArrayBase = base
		pos += consumed

	default:
		return nil, 0, xerrors.New(xerrors.UnsupportedDatatypeVersion, "unknown datatype class %d", class)
	}

	return dt, pos, nil
}

func cStringTrim(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func paddedLen8(n int) int {
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// compoundMemberOffsetWidth derives the byte width of a v3 compound
// member's Offset field from the enclosing compound's own declared size,
// per this repository's decision on spec.md §9's open question: 1 byte
// below 256, 2 below 65536, 4 below 2^32, else 8.
func compoundMemberOffsetWidth(compoundSize uint32) int {
	switch {
	case compoundSize < (1 << 8):
		return 1
	case compoundSize < (1 << 16):
		return 2
	case uint64(compoundSize) < (1 << 32):
		return 4
	default:
		return 8
	}
}

func decodeCompoundMembers(data []byte, numMembers, version int, compoundSize uint32) ([]CompoundMember, int, error) {
	members := make([]CompoundMember, 0, numMembers)
	pos := 0
	for i := 0; i < numMembers; i++ {
		nameEnd := indexByte(data[pos:], 0)
		if nameEnd < 0 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "compound member name not NUL-terminated")
		}
		name := string(data[pos : pos+nameEnd])
		nameLen := nameEnd + 1
		if version <= 2 {
			nameLen = paddedLen8(nameLen)
		}
		pos += nameLen

		var offset uint64
		switch {
		case version <= 2:
			if pos+4 > len(data) {
				return nil, 0, xerrors.New(xerrors.Corrupt, "compound member offset truncated")
			}
			offset = bytesource.DecodeUint(data[pos:pos+4], 4)
			pos += 4
			if version == 1 {
				// Dimensionality(1) + reserved(3) + permutation index(4) +
				// reserved(4) + up to 4 dimension sizes (4 bytes each),
				// a deprecated array-in-compound-member feature.
				pos += 12 + 4*4
				if pos > len(data) {
					return nil, 0, xerrors.New(xerrors.Corrupt, "compound member dimension block truncated")
				}
			}
		default:
			width := compoundMemberOffsetWidth(compoundSize)
			if pos+width > len(data) {
				return nil, 0, xerrors.New(xerrors.Corrupt, "compound member offset truncated")
			}
			offset = bytesource.DecodeUint(data[pos:pos+width], width)
			pos += width
		}

		memberType, consumed, err := DecodeDatatype(data[pos:])
		if err != nil {
			return nil, 0, err
		}
		pos += consumed

		members = append(members, CompoundMember{Name: name, Offset: offset, Type: memberType})
	}
	return members, pos, nil
}

func decodeEnumNames(data []byte, numMembers, version int) ([]string, int, error) {
	names := make([]string, numMembers)
	pos := 0
	for i := 0; i < numMembers; i++ {
		end := indexByte(data[pos:], 0)
		if end < 0 {
			return nil, 0, xerrors.New(xerrors.Corrupt, "enum member name not NUL-terminated")
		}
		names[i] = string(data[pos : pos+end])
		nameLen := end + 1
		if version <= 2 {
			nameLen = paddedLen8(nameLen)
		}
		pos += nameLen
	}
	return names, pos, nil
}

func decodeEnumValues(data []byte, numMembers, baseSize int) ([][]byte, int, error) {
	values := make([][]byte, numMembers)
	pos := 0
	for i := 0; i < numMembers; i++ {
		if pos+baseSize > len(data) {
			return nil, 0, xerrors.New(xerrors.Corrupt, "enum member value truncated")
		}
		v := make([]byte, baseSize)
		copy(v, data[pos:pos+baseSize])
		values[i] = v
		pos += baseSize
	}
	return values, pos, nil
}

func indexByte(b []byte, target byte) int {
	for i, c := range b {
		if c == target {
			return i
		}
	}
	return -1
}
