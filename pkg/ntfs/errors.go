package ntfs

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by engine implementations. The bridge matches
// them with errors.Is when translating to host status codes, so engines
// should wrap rather than replace them.
var (
	ErrNotExist     = errors.New("object does not exist")
	ErrExist        = errors.New("object already exists")
	ErrPermission   = errors.New("permission denied")
	ErrIO           = errors.New("input/output error")
	ErrIsDir        = errors.New("is a directory")
	ErrNotDir       = errors.New("not a directory")
	ErrNotEmpty     = errors.New("directory not empty")
	ErrInvalid      = errors.New("invalid argument")
	ErrNameTooLong  = errors.New("name too long")
	ErrNoSpace      = errors.New("no space left on volume")
	ErrReadOnly     = errors.New("volume is read-only")
	ErrBusy         = errors.New("object is busy")
	ErrNoMemory     = errors.New("out of memory")
	ErrNoDevice     = errors.New("no such device")
	ErrNoMedium     = errors.New("no medium present")
	ErrCorrupt      = errors.New("filesystem is corrupt")
	ErrNotSupported = errors.New("operation not supported")
	ErrFault        = errors.New("bad address")
)

// FSError adds operation context to an underlying error.
type FSError struct {
	Op   string // operation that failed, e.g. "open", "read"
	Path string // path involved, if any
	Err  error  // underlying error
}

func (e *FSError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FSError) Unwrap() error { return e.Err }
