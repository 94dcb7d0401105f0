package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

const btreeV1Signature = "TREE"

// btreeV1NodeType distinguishes the two B-tree v1 flavors this module
// descends: group nodes point at symbol table nodes, chunk nodes point at
// raw dataset chunk data. The two have different key formats, so each gets
// its own node reader (btree_group.go, btree_chunk.go) built on this shared
// header.
type btreeV1NodeType uint8

const (
	btreeV1NodeGroup btreeV1NodeType = 0
	btreeV1NodeChunk btreeV1NodeType = 1
)

type btreeV1Header struct {
	nodeType     btreeV1NodeType
	level        uint8
	entriesUsed  uint16
	leftSibling  uint64
	rightSibling uint64
}

// btreeV1HeaderSize is the header preceding the key/child stream: signature
// (4) + node type (1) + level (1) + entries used (2) + two sibling
// addresses.
func btreeV1HeaderSize(sb *Superblock) int { return 8 + 2*sb.OffsetSize }

// groupKeySize is the width of a group B-tree node's key: the local-heap
// offset (a Length-sized field) of the greatest name in the subtree.
func groupKeySize(sb *Superblock) int { return sb.LengthSize }

// chunkKeySize is the width of a chunk B-tree node's key: a 4-byte stored
// (post-filter) size, a 4-byte filter mask, then rank+1 8-byte per-axis
// offsets (the trailing axis is always the element-size dimension, always
// zero in the key itself).
func chunkKeySize(rank int) int { return 8 + (rank+1)*8 }

func readBtreeV1Header(src *bytesource.Source, sb *Superblock, address uint64) (*btreeV1Header, error) {
	o := sb.OffsetSize
	head := make([]byte, btreeV1HeaderSize(sb))
	if err := src.ReadAt(sb.FileOffset(address), head); err != nil {
		return nil, xerrors.Wrap(err, "read B-tree node header")
	}
	if string(head[0:4]) != btreeV1Signature {
		return nil, xerrors.New(xerrors.Corrupt, "B-tree v1 signature mismatch at %#x", address)
	}
	return &btreeV1Header{
		nodeType:     btreeV1NodeType(head[4]),
		level:        head[5],
		entriesUsed:  uint16(bytesource.DecodeUint(head[6:8], 2)),
		leftSibling:  bytesource.DecodeUint(head[8:8+o], o),
		rightSibling: bytesource.DecodeUint(head[8+o:8+2*o], o),
	}, nil
}
