package core

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/xerrors"
)

// Filter identifiers (spec.md §4.11). Only deflate and shuffle are
// implemented; SZIP, scale-offset, and user-defined filters are explicit
// non-goals.
const (
	FilterDeflate     = 1
	FilterShuffle     = 2
	FilterFletcher32  = 3
	FilterSZIP        = 4
	FilterNBit        = 5
	FilterScaleOffset = 6
)

// FilterInfo is one entry in a dataset's filter pipeline, in the order
// applied when writing (so decode must reverse it).
type FilterInfo struct {
	ID         uint16
	Name       string
	Flags      uint16
	ClientData []uint32
}

// FilterPipeline is a Filter Pipeline message's decoded filter list.
type FilterPipeline struct {
	Filters []FilterInfo
}

// DecodeFilterPipeline parses a Filter Pipeline message (version 1 or 2).
func DecodeFilterPipeline(data []byte) (*FilterPipeline, error) {
	if len(data) < 2 {
		return nil, xerrors.New(xerrors.Corrupt, "filter pipeline message too short")
	}
	version := data[0]
	numFilters := int(data[1])
	var pos int
	switch version {
	case 1:
		pos = 8 // version(1)+numFilters(1)+reserved(6)
	case 2:
		pos = 2
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "filter pipeline message version %d", version)
	}

	pipeline := &FilterPipeline{}
	for i := 0; i < numFilters; i++ {
		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "filter entry truncated")
		}
		id := uint16(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2

		var nameLen int
		if version == 1 || id >= 256 {
			if len(data) < pos+2 {
				return nil, xerrors.New(xerrors.Corrupt, "filter name length truncated")
			}
			nameLen = int(bytesource.DecodeUint(data[pos:pos+2], 2))
			pos += 2
		}

		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "filter flags truncated")
		}
		flags := uint16(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2

		if len(data) < pos+2 {
			return nil, xerrors.New(xerrors.Corrupt, "filter client data count truncated")
		}
		numClientValues := int(bytesource.DecodeUint(data[pos:pos+2], 2))
		pos += 2

		var name string
		if nameLen > 0 {
			if len(data) < pos+nameLen {
				return nil, xerrors.New(xerrors.Corrupt, "filter name truncated")
			}
			name = cStringTrim(data[pos : pos+nameLen])
			pos += paddedLen8(nameLen)
		}

		clientData := make([]uint32, numClientValues)
		for j := 0; j < numClientValues; j++ {
			if len(data) < pos+4 {
				return nil, xerrors.New(xerrors.Corrupt, "filter client data truncated")
			}
			clientData[j] = uint32(bytesource.DecodeUint(data[pos:pos+4], 4))
			pos += 4
		}
		if version == 1 && numClientValues%2 == 1 {
			pos += 4 // padding to keep the entry 8-byte aligned
		}

		pipeline.Filters = append(pipeline.Filters, FilterInfo{ID: id, Name: name, Flags: flags, ClientData: clientData})
	}
	return pipeline, nil
}

// Apply reverses the filter pipeline (writers apply filters in pipeline
// order; readers must undo them back to front) to recover raw element
// bytes from a stored chunk, honoring the per-chunk filter mask that marks
// filters skipped at write time.
func (p *FilterPipeline) Apply(stored []byte, filterMask uint32) ([]byte, error) {
	data := stored
	for i := len(p.Filters) - 1; i >= 0; i-- {
		f := p.Filters[i]
		if filterMask&(1<<uint(i)) != 0 {
			continue // this filter was skipped when the chunk was written
		}
		var err error
		data, err = applyFilter(f, data)
		if err != nil {
			return nil, xerrors.Wrap(err, "apply filter %d (%s)", f.ID, f.Name)
		}
	}
	return data, nil
}

func applyFilter(f FilterInfo, data []byte) ([]byte, error) {
	switch f.ID {
	case FilterDeflate:
		return inflate(data)
	case FilterShuffle:
		elemSize := 1
		if len(f.ClientData) > 0 {
			elemSize = int(f.ClientData[0])
		}
		return unshuffle(data, elemSize), nil
	case FilterFletcher32:
		// Checksum-only filter: the 4 trailing bytes are a Fletcher32
		// checksum over the rest, not transformed data. Strip them.
		if len(data) < 4 {
			return nil, xerrors.New(xerrors.Corrupt, "fletcher32 filter data shorter than checksum")
		}
		return data[:len(data)-4], nil
	default:
		return nil, xerrors.New(xerrors.UnsupportedFilter, "filter id %d", f.ID)
	}
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, xerrors.Wrap(err, "open zlib stream")
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Wrap(err, "read zlib stream")
	}
	return out, nil
}

// unshuffle reverses the byte-shuffle filter: elements are stored with
// their Nth byte grouped together across the whole buffer (all byte-0s,
// then all byte-1s, ...), to improve the deflate filter's compression
// ratio on typed numeric data.
func unshuffle(data []byte, elemSize int) []byte {
	if elemSize <= 1 || len(data)%elemSize != 0 {
		return data
	}
	numElems := len(data) / elemSize
	out := make([]byte, len(data))
	for b := 0; b < elemSize; b++ {
		srcStart := b * numElems
		for e := 0; e < numElems; e++ {
			out[e*elemSize+b] = data[srcStart+e]
		}
	}
	return out
}
