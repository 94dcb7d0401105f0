// Package xerrors defines the flat error taxonomy shared by every decoder
// in the module and wraps github.com/pkg/errors so that a failure deep in
// a B-tree descent or a compound-member recursion keeps a stack trace by
// the time it reaches the facade.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the taxonomy's sentinel failures occurred.
// errors.Is matches a Kind through any amount of wrapping.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

//nolint:gochecknoglobals // sentinel error values, not mutable state
var (
	BadSignature                   = &Kind{"bad signature: neither HDF5 nor MATLAB wrapping detected"}
	TruncatedFile                  = &Kind{"truncated file: read past end of file"}
	UnsupportedSuperblockVersion   = &Kind{"unsupported superblock version"}
	UnsupportedObjectHeaderVersion = &Kind{"unsupported object header version"}
	UnsupportedDatatypeVersion     = &Kind{"unsupported datatype version"}
	UnsupportedLayoutVersion       = &Kind{"unsupported data layout version"}
	UnsupportedFilter              = &Kind{"unsupported filter"}
	UnsupportedFeature             = &Kind{"unsupported feature"}
	PathNotFound                   = &Kind{"path not found"}
	Corrupt                        = &Kind{"corrupt structure"}
)

// Wrap attaches context and a stack trace to cause, without changing which
// Kind errors.Is reports (cause is expected to already chain to a Kind, or
// to be an opaque I/O error the caller wants annotated).
func Wrap(cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return errors.Wrap(cause, fmt.Sprintf(format, args...))
}

// New creates a new error of the given kind with added context, still
// matched by errors.Is(err, kind), carrying a stack trace from this call
// site.
func New(kind *Kind, format string, args ...any) error {
	return errors.WithStack(&kindError{kind: kind, msg: fmt.Sprintf(format, args...)})
}

type kindError struct {
	kind *Kind
	msg  string
}

func (e *kindError) Error() string { return e.kind.name + ": " + e.msg }
func (e *kindError) Is(target error) bool {
	k, ok := target.(*Kind)
	return ok && k == e.kind
}
