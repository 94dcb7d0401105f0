package core

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

func TestUnshuffleRoundTrip(t *testing.T) {
	// Four int32 elements: 1, 2, 3, 4 (little-endian), shuffled by byte plane.
	elems := [][]byte{
		{1, 0, 0, 0},
		{2, 0, 0, 0},
		{3, 0, 0, 0},
		{4, 0, 0, 0},
	}
	shuffled := make([]byte, 0, 16)
	for b := 0; b < 4; b++ {
		for _, e := range elems {
			shuffled = append(shuffled, e[b])
		}
	}

	out := unshuffle(shuffled, 4)
	require.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0, 4, 0, 0, 0}, out)
}

func TestApplyDeflateFilter(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, repeated for compressibility")
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write(want)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	pipeline := &FilterPipeline{Filters: []FilterInfo{{ID: FilterDeflate}}}
	got, err := pipeline.Apply(buf.Bytes(), 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestApplyFletcher32StripsChecksum(t *testing.T) {
	pipeline := &FilterPipeline{Filters: []FilterInfo{{ID: FilterFletcher32}}}
	stored := []byte{1, 2, 3, 4, 0xAA, 0xBB, 0xCC, 0xDD}
	got, err := pipeline.Apply(stored, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestApplyHonorsFilterMask(t *testing.T) {
	// Two filters: shuffle (index 0) then fletcher32 (index 1), with
	// fletcher32 skipped via the mask (bit 1 set).
	pipeline := &FilterPipeline{Filters: []FilterInfo{
		{ID: FilterShuffle, ClientData: []uint32{4}},
		{ID: FilterFletcher32},
	}}
	stored := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	got, err := pipeline.Apply(stored, 1<<1)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 2, 0, 0, 0, 0, 0}, got)
}

func TestDecodeFilterPipelineV2(t *testing.T) {
	// version(1)=2, numFilters(1)=1, id(2)=1 (deflate), flags(2)=0, numClientValues(2)=1, value(4)=6
	data := []byte{2, 1, 1, 0, 0, 0, 1, 0, 6, 0, 0, 0}
	p, err := DecodeFilterPipeline(data)
	require.NoError(t, err)
	require.Len(t, p.Filters, 1)
	require.Equal(t, uint16(FilterDeflate), p.Filters[0].ID)
	require.Equal(t, []uint32{6}, p.Filters[0].ClientData)
}
