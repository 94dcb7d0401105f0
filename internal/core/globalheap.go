package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const globalHeapSignature = "GCOL"

// GlobalHeapObject is one variable-length payload stored inside a global
// heap collection (GCOL), addressed by the pair (collection address, index)
// that a vlen element's reference carries.
type GlobalHeapObject struct {
	Index          uint16
	ReferenceCount uint16
	Data           []byte
}

// GlobalHeapCollection is a fully parsed GCOL block. Collections are small
// and referenced repeatedly (every vlen element in a dataset may point into
// the same collection), so the facade keeps a cache keyed by address.
type GlobalHeapCollection struct {
	Objects map[uint16]*GlobalHeapObject
}

// ReadGlobalHeapCollection parses every object in the GCOL block at address.
// Object index 0 marks the trailing free-space record and ends the scan.
func ReadGlobalHeapCollection(src *bytesource.Source, sb *Superblock, address uint64) (*GlobalHeapCollection, error) {
	l := sb.LengthSize
	head := make([]byte, 8+l)
	if err := src.ReadAt(sb.FileOffset(address), head); err != nil {
		return nil, xerrors.Wrap(err, "read global heap collection header")
	}
	if string(head[0:4]) != globalHeapSignature {
		return nil, xerrors.New(xerrors.Corrupt, "global heap signature mismatch at %#x", address)
	}
	collectionSize := bytesource.DecodeUint(head[8:8+l], l)
	if collectionSize < uint64(len(head)) {
		return nil, xerrors.New(xerrors.Corrupt, "global heap collection size %d smaller than header", collectionSize)
	}

	body := make([]byte, collectionSize-uint64(len(head)))
	if len(body) > 0 {
		if err := src.ReadAt(sb.FileOffset(address)+int64(len(head)), body); err != nil {
			return nil, xerrors.Wrap(err, "read global heap collection body")
		}
	}

	col := &GlobalHeapCollection{Objects: make(map[uint16]*GlobalHeapObject)}
	pos := 0
	entryHeaderSize := 8 + l
	for pos+entryHeaderSize <= len(body) {
		index := uint16(bytesource.DecodeUint(body[pos:pos+2], 2))
		refCount := uint16(bytesource.DecodeUint(body[pos+2:pos+4], 2))
		objSize := bytesource.DecodeUint(body[pos+8:pos+8+l], l)
		pos += entryHeaderSize

		if index == 0 {
			break // trailing free-space record
		}
		if pos+int(objSize) > len(body) {
			return nil, xerrors.New(xerrors.Corrupt, "global heap object %d size %d exceeds collection body", index, objSize)
		}
		data := make([]byte, objSize)
		copy(data, body[pos:pos+int(objSize)])
		col.Objects[index] = &GlobalHeapObject{Index: index, ReferenceCount: refCount, Data: data}

		pos += int(objSize)
		pos = align8(pos)
	}

	return col, nil
}

func align8(n int) int {
	if rem := n % 8; rem != 0 {
		n += 8 - rem
	}
	return n
}

// GlobalHeapCache resolves (collection address, index) lookups, parsing and
// caching each collection the first time it is visited. It is the concrete
// backing for every vlen/"reference into the global heap" dereference
// performed by the element decoder.
type GlobalHeapCache struct {
	src    *bytesource.Source
	sb     *Superblock
	byAddr map[uint64]*GlobalHeapCollection
}

// NewGlobalHeapCache constructs an empty cache bound to src/sb.
func NewGlobalHeapCache(src *bytesource.Source, sb *Superblock) *GlobalHeapCache {
	return &GlobalHeapCache{src: src, sb: sb, byAddr: make(map[uint64]*GlobalHeapCollection)}
}

// Lookup returns the bytes of the object at (collectionAddr, index),
// fetching and caching the collection if this is the first reference to it.
func (c *GlobalHeapCache) Lookup(collectionAddr uint64, index uint16) ([]byte, error) {
	col, ok := c.byAddr[collectionAddr]
	if !ok {
		var err error
		col, err = ReadGlobalHeapCollection(c.src, c.sb, collectionAddr)
		if err != nil {
			return nil, xerrors.Wrap(err, "load global heap collection at %#x", collectionAddr)
		}
		c.byAddr[collectionAddr] = col
	}
	obj, ok := col.Objects[index]
	if !ok {
		return nil, xerrors.New(xerrors.Corrupt, "global heap collection %#x has no object with index %d", collectionAddr, index)
	}
	return obj.Data, nil
}
