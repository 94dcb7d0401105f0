// Package hdf5 is a pure-Go, read-only decoder for the HDF5 binary file
// format: superblock discovery, object headers, groups, datasets,
// datatypes, chunked storage, and the global heap, without linking
// against the C HDF5 library.
package hdf5

import (
	"io"

	"github.com/scigolib/goh5/internal/bytesource"
	"github.com/scigolib/goh5/internal/core"
	"github.com/scigolib/goh5/internal/xerrors"
)

// File is an open HDF5 file (or in-memory buffer). It is not safe for
// concurrent use — open a separate File per goroutine, as cmd/h5batch does.
type File struct {
	src       *bytesource.Source
	closer    io.Closer
	sb        *core.Superblock
	heapCache *core.GlobalHeapCache
	root      *core.ObjectHeader
}

// Open opens the file at path and parses its superblock and root group.
func Open(path string) (*File, error) {
	src, f, err := bytesource.FromFile(path)
	if err != nil {
		return nil, err
	}
	file, err := newFile(src, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return file, nil
}

// OpenBytes wraps an in-memory buffer, such as a MATLAB .mat payload
// already read into memory, or test fixture data.
func OpenBytes(data []byte) (*File, error) {
	return newFile(bytesource.FromBytes(data), nil)
}

// OpenReaderAt wraps an arbitrary io.ReaderAt of known size, letting the
// caller supply any backing store (an *os.File, a memory-mapped region, a
// network range reader).
func OpenReaderAt(r io.ReaderAt, size int64) (*File, error) {
	return newFile(bytesource.Open(r, size), nil)
}

func newFile(src *bytesource.Source, closer io.Closer) (*File, error) {
	sb, err := core.ReadSuperblock(src)
	if err != nil {
		return nil, err
	}
	root, err := core.ReadObjectHeader(src, sb, sb.RootGroupAddress)
	if err != nil {
		return nil, xerrors.Wrap(err, "read root group object header")
	}
	return &File{
		src:       src,
		closer:    closer,
		sb:        sb,
		heapCache: core.NewGlobalHeapCache(src, sb),
		root:      root,
	}, nil
}

// Close releases the underlying file handle, if Open opened one.
// Files opened with OpenBytes or OpenReaderAt have nothing to release.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Root returns the file's root group, "/".
func (f *File) Root() *Group {
	return &Group{file: f, header: f.root}
}

// Group resolves a slash-separated path to a Group.
func (f *File) Group(path string) (*Group, error) {
	v, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	g, ok := v.(*Group)
	if !ok {
		return nil, xerrors.New(xerrors.PathNotFound, "%q is a dataset, not a group", path)
	}
	return g, nil
}

// Dataset resolves a slash-separated path to a Dataset.
func (f *File) Dataset(path string) (*Dataset, error) {
	v, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	d, ok := v.(*Dataset)
	if !ok {
		return nil, xerrors.New(xerrors.PathNotFound, "%q is a group, not a dataset", path)
	}
	return d, nil
}
