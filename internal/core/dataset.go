package core

import (
	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/utils"
	"github.com/scigolib/goh5/internal/xerrors"
)

// DatasetInfo is every object-header message a dataset needs combined:
// its shape, element type, storage layout, optional filter pipeline and
// fill value, and its attributes.
type DatasetInfo struct {
	Datatype   *Datatype
	Dataspace  *Dataspace
	Layout     *DataLayout
	Pipeline   *FilterPipeline
	FillValue  []byte
	Attributes []*Attribute
}

// ReadDatasetInfo gathers and decodes every message a dataset object
// header carries. Attribute decode failures are tolerated individually
// (spec.md §4.14): a malformed attribute is skipped, not fatal to the
// whole dataset.
func ReadDatasetInfo(sb *Superblock, header *ObjectHeader) (*DatasetInfo, error) {
	dsMsg, ok := header.Find(MsgDataspace)
	if !ok {
		return nil, xerrors.New(xerrors.Corrupt, "dataset object header has no dataspace message")
	}
	dtMsg, ok := header.Find(MsgDatatype)
	if !ok {
		return nil, xerrors.New(xerrors.Corrupt, "dataset object header has no datatype message")
	}
	layoutMsg, ok := header.Find(MsgDataLayout)
	if !ok {
		return nil, xerrors.New(xerrors.Corrupt, "dataset object header has no data layout message")
	}

	ds, err := DecodeDataspace(dsMsg.Data, sb)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode dataspace")
	}
	dt, _, err := DecodeDatatype(dtMsg.Data)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode datatype")
	}
	layout, err := DecodeDataLayout(layoutMsg.Data, sb)
	if err != nil {
		return nil, xerrors.Wrap(err, "decode data layout")
	}

	info := &DatasetInfo{Datatype: dt, Dataspace: ds, Layout: layout}

	if fpMsg, ok := header.Find(MsgFilterPipeline); ok {
		pipeline, err := DecodeFilterPipeline(fpMsg.Data)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode filter pipeline")
		}
		info.Pipeline = pipeline
	}

	if fvMsg, ok := header.Find(MsgFillValue); ok {
		fv, err := DecodeFillValue(fvMsg.Data)
		if err != nil {
			return nil, xerrors.Wrap(err, "decode fill value")
		}
		info.FillValue = fv
	} else if fvMsg, ok := header.Find(MsgFillValueOld); ok && len(fvMsg.Data) >= 4 {
		size := int(bytesource.DecodeUint(fvMsg.Data[0:4], 4))
		if size > 0 && len(fvMsg.Data) >= 4+size {
			info.FillValue = append([]byte(nil), fvMsg.Data[4:4+size]...)
		}
	}

	for _, am := range header.FindAll(MsgAttribute) {
		attr, err := DecodeAttribute(am.Data, sb)
		if err != nil {
			continue // tolerated: this attribute is unreadable, the dataset is not
		}
		info.Attributes = append(info.Attributes, attr)
	}

	return info, nil
}

// MaterializeBytes returns the dataset's raw element bytes as one flat,
// row-major buffer of ElementCount()*Datatype.Size bytes, with absent
// chunks synthesized from FillValue (or zero, if none is defined).
func (info *DatasetInfo) MaterializeBytes(src *bytesource.Source, sb *Superblock) ([]byte, error) {
	switch info.Layout.Class {
	case LayoutCompact:
		return info.Layout.CompactData, nil
	case LayoutContiguous:
		return info.materializeContiguous(src, sb)
	case LayoutChunked:
		return info.materializeChunked(src, sb)
	default:
		return nil, xerrors.New(xerrors.UnsupportedFeature, "data layout class %d", info.Layout.Class)
	}
}

func (info *DatasetInfo) materializeContiguous(src *bytesource.Source, sb *Superblock) ([]byte, error) {
	size := info.Dataspace.ElementCount() * uint64(info.Datatype.Size)
	if sb.IsUndefined(info.Layout.ContiguousAddress) {
		return make([]byte, size), nil // never-written contiguous dataset: reads as all-zero bytes; FillValue is not applied here
	}
	buf := make([]byte, size)
	if size > 0 {
		if err := src.ReadAt(sb.FileOffset(info.Layout.ContiguousAddress), buf); err != nil {
			return nil, xerrors.Wrap(err, "read contiguous dataset data")
		}
	}
	return buf, nil
}

func (info *DatasetInfo) materializeChunked(src *bytesource.Source, sb *Superblock) ([]byte, error) {
	dims := info.Dataspace.Dims
	rank := len(dims)
	elemSize := int(info.Datatype.Size)

	chunkBytes, err := utils.CalculateChunkSize64(info.Layout.ChunkDims, uint64(elemSize))
	if err != nil {
		return nil, xerrors.Wrap(err, "chunk size")
	}
	if err := utils.ValidateBufferSize(chunkBytes, utils.MaxChunkSize, "chunk buffer"); err != nil {
		return nil, xerrors.Wrap(err, "chunk size")
	}

	total := info.Dataspace.ElementCount()
	out := make([]byte, total*uint64(elemSize))
	fillBuffer(out, info.FillValue, elemSize)

	if info.Layout.IsSingleChunk {
		raw, err := info.readAndFilterChunk(src, sb, info.Layout.SingleChunkAddress, info.Layout.SingleChunkSize, info.Layout.SingleChunkFilterMask)
		if err != nil {
			return nil, err
		}
		scatterChunk(out, raw, make([]uint64, rank), info.Layout.ChunkDims, dims, elemSize)
		return out, nil
	}

	chunks, err := CollectAllChunks(src, sb, info.Layout.BtreeAddress, rank)
	if err != nil {
		return nil, xerrors.Wrap(err, "collect dataset chunks")
	}
	for _, c := range chunks {
		raw, err := info.readAndFilterChunk(src, sb, c.Address, c.Size, c.FilterMask)
		if err != nil {
			return nil, err
		}
		scatterChunk(out, raw, c.Offset[:rank], info.Layout.ChunkDims, dims, elemSize)
	}
	return out, nil
}

func (info *DatasetInfo) readAndFilterChunk(src *bytesource.Source, sb *Superblock, address uint64, size uint32, filterMask uint32) ([]byte, error) {
	stored := make([]byte, size)
	if size > 0 {
		if err := src.ReadAt(sb.FileOffset(address), stored); err != nil {
			return nil, xerrors.Wrap(err, "read chunk at %#x", address)
		}
	}
	if info.Pipeline == nil {
		return stored, nil
	}
	raw, err := info.Pipeline.Apply(stored, filterMask)
	if err != nil {
		return nil, xerrors.Wrap(err, "apply filters to chunk at %#x", address)
	}
	return raw, nil
}

func fillBuffer(out []byte, pattern []byte, elemSize int) {
	if len(pattern) == 0 || elemSize <= 0 {
		return
	}
	for i := 0; i+elemSize <= len(out); i += elemSize {
		copy(out[i:i+elemSize], pattern)
	}
}

// scatterChunk copies the portion of a row-major chunk buffer (shape
// chunkDims, offset chunkOrigin within the dataset) that lies within the
// dataset's own extents (datasetDims) into out (row-major, shape
// datasetDims). Edge chunks — whose nominal extent runs past the dataset's
// current dimensions — are handled by clipping the copy per dimension.
func scatterChunk(out, chunk []byte, chunkOrigin []uint64, chunkDims []uint64, datasetDims []uint64, elemSize int) {
	rank := len(chunkDims)
	if rank == 0 {
		copy(out, chunk[:min(len(out), len(chunk))])
		return
	}

	clipped := make([]uint64, rank)
	for d := 0; d < rank; d++ {
		extent := chunkDims[d]
		if chunkOrigin[d]+extent > datasetDims[d] {
			if datasetDims[d] > chunkOrigin[d] {
				extent = datasetDims[d] - chunkOrigin[d]
			} else {
				extent = 0
			}
		}
		clipped[d] = extent
	}

	for _, extent := range clipped {
		if extent == 0 {
			return // chunk does not overlap the dataset's current extent at all
		}
	}

	chunkStrides := rowMajorStrides(chunkDims)
	outStrides := rowMajorStrides(datasetDims)

	idx := make([]uint64, rank)
	for {
		chunkOffset := dotProduct(idx, chunkStrides) * uint64(elemSize)
		outIdx := make([]uint64, rank)
		for d := range idx {
			outIdx[d] = chunkOrigin[d] + idx[d]
		}
		outOffset := dotProduct(outIdx, outStrides) * uint64(elemSize)

		if int(chunkOffset)+elemSize <= len(chunk) && int(outOffset)+elemSize <= len(out) {
			copy(out[outOffset:outOffset+uint64(elemSize)], chunk[chunkOffset:chunkOffset+uint64(elemSize)])
		}

		if !incrementIndex(idx, clipped) {
			break
		}
	}
}

func rowMajorStrides(dims []uint64) []uint64 {
	strides := make([]uint64, len(dims))
	stride := uint64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= dims[i]
	}
	return strides
}

func dotProduct(a, b []uint64) uint64 {
	var sum uint64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// incrementIndex advances idx (row-major, fastest-varying last dimension)
// within bounds, returning false once it has wrapped past the final
// element.
func incrementIndex(idx []uint64, bounds []uint64) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < bounds[d] {
			return true
		}
		idx[d] = 0
	}
	return false
}
