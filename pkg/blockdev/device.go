// Package blockdev provides the block device layer the filesystem engine
// reads and writes through. A Device is raw positioned storage; the Shim
// wraps one with the bounds checking, write protection and dirty tracking
// the engine relies on.
package blockdev

import (
	"io"
	"sync"

	"github.com/example/ntfsbridge/pkg/ntfs"
)

// Device is raw positioned storage.
type Device interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
	Sync() error
	Close() error
}

// MemDevice is an in-memory Device, used by tests and as backing for
// volatile volumes.
type MemDevice struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemDevice returns a zero-filled in-memory device of the given size.
func NewMemDevice(size int64) *MemDevice {
	return &MemDevice{buf: make([]byte, size)}
}

func (d *MemDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off > int64(len(d.buf)) {
		return 0, &ntfs.FSError{Op: "read", Err: ntfs.ErrInvalid}
	}
	n := copy(p, d.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *MemDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, &ntfs.FSError{Op: "write", Err: ntfs.ErrNoSpace}
	}
	return copy(d.buf[off:], p), nil
}

func (d *MemDevice) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.buf))
}

func (d *MemDevice) Sync() error  { return nil }
func (d *MemDevice) Close() error { return nil }
