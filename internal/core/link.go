package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Link types (spec.md §4.9).
const (
	LinkTypeHard     = 0
	LinkTypeSoft     = 1
	LinkTypeExternal = 64
)

const (
	linkFlagNameLenWidthMask = 0x03
	linkFlagCreationOrder    = 0x04
	linkFlagLinkTypePresent  = 0x08
	linkFlagCharsetPresent   = 0x10
)

// Link is one new-style group member, decoded from a Link message.
type Link struct {
	Type          uint8
	Name          string
	CreationOrder uint64

	// HardTarget is the object header address, valid when Type == LinkTypeHard.
	HardTarget uint64
	// SoftTarget is the link's path value, valid when Type == LinkTypeSoft.
	// Per spec.md §4.9 it is recorded but never auto-followed by the core.
	SoftTarget string
}

// DecodeLink parses a Link message (version 1, the only version defined).
func DecodeLink(data []byte, sb *Superblock) (*Link, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "link message too short")
	}
	if data[0] != 1 {
		return nil, xerrors.New(xerrors.UnsupportedFeature, "link message version %d", data[0])
	}
	flags := data[1]
	pos := 2

	link := &Link{Type: LinkTypeHard}
	if flags&linkFlagLinkTypePresent != 0 {
		if len(data) < pos+1 {
			return nil, xerrors.New(xerrors.Corrupt, "link message type field truncated")
		}
		link.Type = data[pos]
		pos++
	}
	if flags&linkFlagCreationOrder != 0 {
		if len(data) < pos+8 {
			return nil, xerrors.New(xerrors.Corrupt, "link message creation order truncated")
		}
		link.CreationOrder = bytesource.DecodeUint(data[pos:pos+8], 8)
		pos += 8
	}
	if flags&linkFlagCharsetPresent != 0 {
		pos++ // charset byte, not needed to decode the name itself
	}

	nameLenWidth := 1 << (flags & linkFlagNameLenWidthMask)
	if len(data) < pos+nameLenWidth {
		return nil, xerrors.New(xerrors.Corrupt, "link message name length truncated")
	}
	nameLen := int(bytesource.DecodeUint(data[pos:pos+nameLenWidth], nameLenWidth))
	pos += nameLenWidth

	if len(data) < pos+nameLen {
		return nil, xerrors.New(xerrors.Corrupt, "link message name truncated")
	}
	link.Name = string(data[pos : pos+nameLen])
	pos += nameLen

	switch link.Type {
	case LinkTypeHard:
		o := sb.OffsetSize
		if len(data) < pos+o {
			return nil, xerrors.New(xerrors.Corrupt, "hard link target address truncated")
		}
		link.HardTarget = bytesource.DecodeUint(data[pos:pos+o], o)

	case LinkTypeSoft:
		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "soft link value length truncated")
		}
		valLen := int(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2
		if len(data) < pos+valLen {
			return nil, xerrors.New(xerrors.Corrupt, "soft link value truncated")
		}
		link.SoftTarget = string(data[pos : pos+valLen])

	default:
		// External and user-defined links are recorded by name and type
		// only; their opaque payload is not interpreted (spec.md §4.9 Non-goals
		// stop short of requiring external-file traversal).
	}

	return link, nil
}
