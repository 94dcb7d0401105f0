package hdf5

import (
	"strings"

	"github.com/scigolib/goh5/internal/xerrors"
)

// resolve walks a slash-separated path from the root group, returning
// either a *Group or a *Dataset. An empty path (or "/") resolves to the
// root group itself.
func (f *File) resolve(path string) (any, error) {
	segments := splitPath(path)
	var current any = f.Root()
	for _, seg := range segments {
		g, ok := current.(*Group)
		if !ok {
			return nil, xerrors.New(xerrors.PathNotFound, "%q: traverses through a dataset", path)
		}
		next, err := g.child(seg)
		if err != nil {
			return nil, xerrors.Wrap(err, "resolve %q", path)
		}
		current = next
	}
	return current, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
