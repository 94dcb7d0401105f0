package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Signature is the 8-byte magic every HDF5 file begins with, relative to
// its hdf5StartOffset.
const Signature = "\x89HDF\r\n\x1a\n"

// candidateStartOffsets are the positions the reference library searches
// for the signature: 0 for a native file, 512 for a MATLAB v7.3 .mat
// wrapper, and successive powers of two beyond that for oddly padded
// containers.
//
//nolint:gochecknoglobals // read-only lookup table
var candidateStartOffsets = []int64{0, 512, 1024, 2048}

// Superblock is the parsed file-level header: where the HDF5 region
// starts, how wide addresses and lengths are, and where the root group's
// object header lives.
type Superblock struct {
	Version          uint8
	HDF5StartOffset  int64
	OffsetSize       int
	LengthSize       int
	BaseAddress      uint64
	EndOfFileAddress uint64
	RootGroupAddress uint64 // object header address of "/"
}

// ReadSuperblock scans the candidate start offsets for the HDF5 signature
// and parses whichever superblock version is found there.
func ReadSuperblock(src *bytesource.Source) (*Superblock, error) {
	for _, start := range candidateStartOffsets {
		sig := make([]byte, 8)
		if err := src.ReadAt(start, sig); err != nil {
			continue
		}
		if string(sig) != Signature {
			continue
		}
		return parseSuperblockAt(src, start)
	}
	return nil, xerrors.New(xerrors.BadSignature, "no HDF5 signature at any of %v", candidateStartOffsets)
}

func parseSuperblockAt(src *bytesource.Source, start int64) (*Superblock, error) {
	version, err := readByteAt(src, start+8)
	if err != nil {
		return nil, xerrors.Wrap(err, "read superblock version")
	}

	switch version {
	case 0, 1:
		return parseSuperblockV01(src, start, version)
	case 2, 3:
		return parseSuperblockV23(src, start, version)
	default:
		return nil, xerrors.New(xerrors.UnsupportedSuperblockVersion, "version %d", version)
	}
}

func readByteAt(src *bytesource.Source, addr int64) (uint8, error) {
	buf := make([]byte, 1)
	if err := src.ReadAt(addr, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// parseSuperblockV01 decodes the version 0/1 layout:
//
//	8  superblock version      9  free-space version
//	10 root-group symtab ver.  11 reserved
//	12 shared-hdr msg version  13 size-of-offsets
//	14 size-of-lengths         15 reserved
//	16 group leaf node K       18 group internal node K
//	[v1 only: 20 indexed-storage K, 22 reserved]
//	file consistency flags (4), base address, free-space address,
//	EOF address, driver info address, root group symbol table entry.
func parseSuperblockV01(src *bytesource.Source, start int64, version uint8) (*Superblock, error) {
	head := make([]byte, 16)
	if err := src.ReadAt(start+8, head); err != nil {
		return nil, xerrors.Wrap(err, "read v0/v1 superblock header")
	}
	offsetSize := int(head[5])
	lengthSize := int(head[6])
	if err := src.SetSizes(offsetSize, lengthSize); err != nil {
		return nil, xerrors.Wrap(err, "superblock field sizes")
	}

	cursor := start + 8 + 16
	if version == 1 {
		cursor += 4 // indexed-storage K + reserved
	}
	cursor += 4 // file consistency flags

	base, eof, _, rootEntryAddr, err := readAddressQuad(src, cursor, offsetSize)
	if err != nil {
		return nil, err
	}

	rootObjHeader, err := readRootSymbolTableEntryObjectHeader(src, rootEntryAddr, offsetSize)
	if err != nil {
		return nil, err
	}

	return &Superblock{
		Version:          version,
		HDF5StartOffset:  start,
		OffsetSize:       offsetSize,
		LengthSize:       lengthSize,
		BaseAddress:      base,
		EndOfFileAddress: eof,
		RootGroupAddress: rootObjHeader,
	}, nil
}

// readAddressQuad reads base address, free-space address, EOF address,
// and driver-info address (each offsetSize bytes), returning the position
// immediately after them (the start of the root group symbol table
// entry) as rootEntryAddr.
func readAddressQuad(src *bytesource.Source, at int64, offsetSize int) (base, eof, driverInfo uint64, rootEntryAddr int64, err error) {
	buf := make([]byte, offsetSize*4)
	if err = src.ReadAt(at, buf); err != nil {
		return 0, 0, 0, 0, xerrors.Wrap(err, "read superblock address block")
	}
	base = bytesource.DecodeUint(buf[0:offsetSize], offsetSize)
	eof = bytesource.DecodeUint(buf[2*offsetSize:3*offsetSize], offsetSize)
	driverInfo = bytesource.DecodeUint(buf[3*offsetSize:4*offsetSize], offsetSize)
	rootEntryAddr = at + int64(offsetSize*4)
	return base, eof, driverInfo, rootEntryAddr, nil
}

// readRootSymbolTableEntryObjectHeader reads the 32/40-byte root-group
// symbol table entry and returns its object header address.
func readRootSymbolTableEntryObjectHeader(src *bytesource.Source, entryAddr int64, offsetSize int) (uint64, error) {
	buf := make([]byte, offsetSize*2+8)
	if err := src.ReadAt(entryAddr, buf); err != nil {
		return 0, xerrors.Wrap(err, "read root symbol table entry")
	}
	objHeaderAddr := bytesource.DecodeUint(buf[offsetSize:2*offsetSize], offsetSize)
	if objHeaderAddr == bytesource.UndefinedAddress(offsetSize) {
		return 0, xerrors.New(xerrors.Corrupt, "root group symbol table entry has no object header address")
	}
	return objHeaderAddr, nil
}

// parseSuperblockV23 decodes the version 2/3 layout:
//
//	8  superblock version   9  size of offsets
//	10 size of lengths      11 file consistency flags
//	base address, superblock extension address, EOF address,
//	root group object header address, 4-byte checksum.
func parseSuperblockV23(src *bytesource.Source, start int64, version uint8) (*Superblock, error) {
	head := make([]byte, 4)
	if err := src.ReadAt(start+8, head); err != nil {
		return nil, xerrors.Wrap(err, "read v2/v3 superblock header")
	}
	offsetSize := int(head[1])
	lengthSize := int(head[2])
	if err := src.SetSizes(offsetSize, lengthSize); err != nil {
		return nil, xerrors.Wrap(err, "superblock field sizes")
	}

	fields := make([]byte, offsetSize*4)
	if err := src.ReadAt(start+8+4, fields); err != nil {
		return nil, xerrors.Wrap(err, "read v2/v3 superblock address fields")
	}

	base := bytesource.DecodeUint(fields[0:offsetSize], offsetSize)
	eof := bytesource.DecodeUint(fields[2*offsetSize:3*offsetSize], offsetSize)
	root := bytesource.DecodeUint(fields[3*offsetSize:4*offsetSize], offsetSize)

	return &Superblock{
		Version:          version,
		HDF5StartOffset:  start,
		OffsetSize:       offsetSize,
		LengthSize:       lengthSize,
		BaseAddress:      base,
		EndOfFileAddress: eof,
		RootGroupAddress: root,
	}, nil
}

// FileOffset converts an on-disk Address to an absolute position in the
// underlying byte source: hdf5StartOffset + address.
func (sb *Superblock) FileOffset(address uint64) int64 {
	return sb.HDF5StartOffset + int64(address)
}

// IsUndefined reports whether address is the "undefined address" sentinel
// at this file's offset width.
func (sb *Superblock) IsUndefined(address uint64) bool {
	return address == bytesource.UndefinedAddress(sb.OffsetSize)
}
