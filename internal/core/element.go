package core

import (
	"encoding/binary"
	"math"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// CompoundValue is a decoded compound element: field order matches the
// datatype's Members order.
type CompoundValue struct {
	Names  []string
	Values []any
}

// Reference is a decoded object- or region-reference element. Region
// selections are not parsed (spec.md Non-goals); Raw holds the undecoded
// selection payload for region references so a caller with a specific need
// can inspect it.
type Reference struct {
	Kind uint8
	Raw  []byte
}

// ElementDecoder decodes raw element bytes into Go values, dereferencing
// variable-length and global-heap-backed data as needed. It holds no
// cursor of its own: every address-keyed fetch goes through heap, which in
// turn uses bytesource.Source.ReadAt — so a decode that recurses through a
// dozen nested compound members and vlen dereferences never disturbs
// whatever position the caller's own Source cursor was at.
type ElementDecoder struct {
	sb   *Superblock
	heap *GlobalHeapCache
}

// NewElementDecoder builds a decoder bound to the given global heap cache.
func NewElementDecoder(sb *Superblock, heap *GlobalHeapCache) *ElementDecoder {
	return &ElementDecoder{sb: sb, heap: heap}
}

// Decode decodes a single element of type dt from the front of buf,
// which must be at least dt.Size bytes.
func (d *ElementDecoder) Decode(buf []byte, dt *Datatype) (any, error) {
	if len(buf) < int(dt.Size) {
		return nil, xerrors.New(xerrors.Corrupt, "element buffer shorter than datatype size")
	}
	buf = buf[:dt.Size]

	switch dt.Class {
	case ClassInteger, ClassBitfield:
		return decodeIntLike(buf, dt)
	case ClassFloat:
		return decodeFloat(buf, dt)
	case ClassTime:
		return decodeUnsigned(buf, dt.BigEndian), nil
	case ClassString:
		return decodeFixedString(buf, dt.StringPad), nil
	case ClassOpaque:
		out := make([]byte, len(buf))
		copy(out, buf)
		return out, nil
	case ClassReference:
		out := make([]byte, len(buf))
		copy(out, buf)
		return Reference{Kind: dt.RefType, Raw: out}, nil
	case ClassCompound:
		return d.decodeCompound(buf, dt)
	case ClassEnum:
		return d.decodeEnum(buf, dt)
	case ClassVLen:
		return d.decodeVLen(buf, dt)
	case ClassArray:
		return d.decodeArray(buf, dt)
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "decode datatype class %d", dt.Class)
	}
}

func decodeUnsigned(buf []byte, bigEndian bool) uint64 {
	var raw [8]byte
	n := len(buf)
	if n > 8 {
		n = 8
	}
	if bigEndian {
		copy(raw[8-n:], buf[:n])
		return binary.BigEndian.Uint64(raw[:])
	}
	copy(raw[:n], buf[:n])
	return binary.LittleEndian.Uint64(raw[:])
}

func decodeIntLike(buf []byte, dt *Datatype) (any, error) {
	if dt.Size > 8 {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "integer/bitfield wider than 8 bytes (size %d)", dt.Size)
	}
	raw := decodeUnsigned(buf, dt.BigEndian)
	precision := uint(dt.BitPrecision)
	if precision == 0 || precision > 64 {
		precision = uint(dt.Size) * 8
	}
	raw = (raw >> uint(dt.BitOffset))
	if precision < 64 {
		raw &= (uint64(1) << precision) - 1
	}

	if dt.Class == ClassBitfield {
		return raw, nil
	}
	if !dt.Signed {
		return raw, nil
	}
	if precision >= 64 {
		return int64(raw), nil
	}
	signBit := uint64(1) << (precision - 1)
	if raw&signBit != 0 {
		return int64(raw) - int64(uint64(1)<<precision), nil
	}
	return int64(raw), nil
}

func decodeFloat(buf []byte, dt *Datatype) (any, error) {
	isStandard32 := dt.Size == 4 && dt.ExponentSize == 8 && dt.MantissaSize == 23 && dt.ExponentBias == 127
	isStandard64 := dt.Size == 8 && dt.ExponentSize == 11 && dt.MantissaSize == 52 && dt.ExponentBias == 1023
	if !isStandard32 && !isStandard64 {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "non-IEEE754-standard float layout (size %d, exp %d, mantissa %d)", dt.Size, dt.ExponentSize, dt.MantissaSize)
	}

	var bits uint64
	if dt.Size == 4 {
		var v uint32
		if dt.BigEndian {
			v = binary.BigEndian.Uint32(buf)
		} else {
			v = binary.LittleEndian.Uint32(buf)
		}
		bits = uint64(v)
	} else {
		if dt.BigEndian {
			bits = binary.BigEndian.Uint64(buf)
		} else {
			bits = binary.LittleEndian.Uint64(buf)
		}
	}

	if dt.Size == 4 {
		return math.Float32frombits(uint32(bits)), nil
	}
	return math.Float64frombits(bits), nil
}

func decodeFixedString(buf []byte, pad uint8) string {
	switch pad {
	case StrPadNullTerm, StrPadNullPad:
		end := len(buf)
		for i, c := range buf {
			if c == 0 {
				end = i
				break
			}
		}
		return string(buf[:end])
	case StrPadSpacePad:
		end := len(buf)
		for end > 0 && buf[end-1] == ' ' {
			end--
		}
		return string(buf[:end])
	default:
		return string(buf)
	}
}

func (d *ElementDecoder) decodeCompound(buf []byte, dt *Datatype) (any, error) {
	v := CompoundValue{Names: make([]string, len(dt.Members)), Values: make([]any, len(dt.Members))}
	for i, m := range dt.Members {
		if uint64(len(buf)) < m.Offset+uint64(m.Type.Size) {
			return nil, xerrors.New(xerrors.Corrupt, "compound member %q out of bounds", m.Name)
		}
		val, err := d.Decode(buf[m.Offset:], m.Type)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode compound member %q", m.Name)
		}
		v.Names[i] = m.Name
		v.Values[i] = val
	}
	return v, nil
}

func (d *ElementDecoder) decodeEnum(buf []byte, dt *Datatype) (any, error) {
	for i, v := range dt.EnumValues {
		if bytesEqual(v, buf[:len(v)]) {
			return dt.EnumNames[i], nil
		}
	}
	// Unknown enum value: fall back to the decoded base-type integer so
	// callers still get something usable instead of an error.
	return d.Decode(buf, dt.BaseType)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *ElementDecoder) decodeVLen(buf []byte, dt *Datatype) (any, error) {
	o := d.sb.OffsetSize
	if len(buf) < 4+o+4 {
		return nil, xerrors.New(xerrors.Corrupt, "vlen element reference truncated")
	}
	length := uint32(bytesource.DecodeUint(buf[0:4], 4))
	heapAddr := bytesource.DecodeUint(buf[4:4+o], o)
	heapIndex := uint32(bytesource.DecodeUint(buf[4+o:4+o+4], 4))

	// A vlen over unsigned single-byte integers carries raw bytes; expose
	// it as a string, the same as the vlen-string kind.
	asString := dt.VLenKind == VLenTypeString ||
		(dt.VLenBase != nil && dt.VLenBase.Class == ClassInteger && dt.VLenBase.Size == 1 && !dt.VLenBase.Signed)

	if length == 0 {
		if asString {
			return "", nil
		}
		return []any{}, nil
	}

	payload, err := d.heap.Lookup(heapAddr, uint16(heapIndex))
	if err != nil {
		return nil, xerrors.Wrap(err, "dereference vlen element")
	}

	if asString {
		n := int(length)
		if n > len(payload) {
			n = len(payload)
		}
		return string(payload[:n]), nil
	}

	base := dt.VLenBase
	out := make([]any, 0, length)
	pos := 0
	for i := uint32(0); i < length; i++ {
		if pos+int(base.Size) > len(payload) {
			return nil, xerrors.New(xerrors.Corrupt, "vlen sequence payload shorter than declared length")
		}
		v, err := d.Decode(payload[pos:], base)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode vlen sequence element %d", i)
		}
		out = append(out, v)
		pos += int(base.Size)
	}
	return out, nil
}

func (d *ElementDecoder) decodeArray(buf []byte, dt *Datatype) (any, error) {
	count := 1
	for _, n := range dt.ArrayDims {
		count *= int(n)
	}
	base := dt.ArrayBase
	out := make([]any, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos+int(base.Size) > len(buf) {
			return nil, xerrors.New(xerrors.Corrupt, "array payload shorter than declared dimensions")
		}
		v, err := d.Decode(buf[pos:], base)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode array element %d", i)
		}
		out = append(out, v)
		pos += int(base.Size)
	}
	return out, nil
}
