package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const objectHeaderV2Signature = "OHDR"

// ReadObjectHeader parses the object header at address, following every
// Continuation (v1) or OCHK (v2) chain so the returned messages are a flat,
// complete list regardless of how many blocks the header spans on disk.
func ReadObjectHeader(src *bytesource.Source, sb *Superblock, address uint64) (*ObjectHeader, error) {
	sig := make([]byte, 4)
	if err := src.ReadAt(sb.FileOffset(address), sig); err != nil {
		return nil, xerrors.Wrap(err, "read object header signature")
	}
	if string(sig) == objectHeaderV2Signature {
		return readObjectHeaderV2(src, sb, address)
	}
	return readObjectHeaderV1(src, sb, address)
}

// contPointer is a pending Continuation/OCHK block still to be parsed.
type contPointer struct {
	offset uint64
	length uint64
}

// --- version 1 ---

// objectHeaderV1PrefixSize: version(1) + reserved(1) + num messages(2) +
// reference count(4) + header size(4) + 4 bytes reserved padding, so the
// message stream that follows starts 8-byte aligned.
const objectHeaderV1PrefixSize = 16

func readObjectHeaderV1(src *bytesource.Source, sb *Superblock, address uint64) (*ObjectHeader, error) {
	prefix := make([]byte, objectHeaderV1PrefixSize)
	if err := src.ReadAt(sb.FileOffset(address), prefix); err != nil {
		return nil, xerrors.Wrap(err, "read v1 object header prefix")
	}
	version := prefix[0]
	if version != 1 {
		return nil, xerrors.New(xerrors.UnsupportedObjectHeaderVersion, "v1 prefix with version byte %d", version)
	}
	refCount := uint32(bytesource.DecodeUint(prefix[4:8], 4))
	headerSize := bytesource.DecodeUint(prefix[8:12], 4)

	data := make([]byte, headerSize)
	if headerSize > 0 {
		if err := src.ReadAt(sb.FileOffset(address)+objectHeaderV1PrefixSize, data); err != nil {
			return nil, xerrors.Wrap(err, "read v1 object header messages")
		}
	}

	msgs, conts, err := parseV1Messages(data, sb)
	if err != nil {
		return nil, err
	}
	flattened, err := followContinuations(src, sb, conts, parseV1Messages)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, flattened...)

	return &ObjectHeader{Version: 1, ReferenceCount: refCount, Messages: msgs}, nil
}

// parseV1Messages walks a v1 message stream: 8-byte message headers (type,
// size, flags, 3 bytes reserved) followed by message data padded to a
// multiple of 8 bytes.
func parseV1Messages(data []byte, sb *Superblock) ([]RawMessage, []contPointer, error) {
	var msgs []RawMessage
	var conts []contPointer
	pos := 0
	for pos+8 <= len(data) {
		typ := uint16(bytesource.DecodeUint(data[pos:pos+2], 2))
		size := int(bytesource.DecodeUint(data[pos+2:pos+4], 2))
		flags := data[pos+4]
		pos += 8
		if pos+size > len(data) {
			return nil, nil, xerrors.New(xerrors.Corrupt, "v1 object header message overruns block")
		}
		msgData := data[pos : pos+size]
		pos += size
		if pad := (8 - size%8) % 8; pad > 0 {
			pos += pad
		}

		if typ == MsgContinuation {
			c, err := decodeContinuation(msgData, sb)
			if err != nil {
				return nil, nil, err
			}
			conts = append(conts, c)
			continue
		}
		if typ == MsgNil {
			continue
		}
		msgs = append(msgs, RawMessage{Type: typ, Flags: flags, Data: msgData})
	}
	return msgs, conts, nil
}

func decodeContinuation(data []byte, sb *Superblock) (contPointer, error) {
	o, l := sb.OffsetSize, sb.LengthSize
	if len(data) < o+l {
		return contPointer{}, xerrors.New(xerrors.Corrupt, "continuation message too short")
	}
	return contPointer{
		offset: bytesource.DecodeUint(data[0:o], o),
		length: bytesource.DecodeUint(data[o:o+l], l),
	}, nil
}

// followContinuations resolves a queue of Continuation/OCHK pointers,
// reading each block with the given parser (which may itself discover
// further continuations) until the queue is exhausted.
func followContinuations(
	src *bytesource.Source,
	sb *Superblock,
	queue []contPointer,
	parse func([]byte, *Superblock) ([]RawMessage, []contPointer, error),
) ([]RawMessage, error) {
	var all []RawMessage
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]

		block := make([]byte, c.length)
		if err := src.ReadAt(sb.FileOffset(c.offset), block); err != nil {
			return nil, xerrors.Wrap(err, "read continuation block at %#x", c.offset)
		}
		msgs, more, err := parse(block, sb)
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
		queue = append(queue, more...)
	}
	return all, nil
}
