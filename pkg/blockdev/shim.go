package blockdev

import (
	"io"

	"github.com/example/ntfsbridge/pkg/ntfs"
)

// DefaultBlockSize is used when the caller does not specify one.
const DefaultBlockSize = 512

// Shim adapts a Device to the access discipline the filesystem engine
// expects: seeks are validated against the media size, writes are rejected
// on read-only media, and successful writes mark the media dirty until the
// next Sync. The engine is the only consumer; the bridge hands the shim
// over at mount time and does not touch it afterwards.
type Shim struct {
	dev       Device
	blockSize int
	readOnly  bool
	pos       int64
	dirty     bool
}

// NewShim wraps dev. A blockSize of zero selects DefaultBlockSize.
func NewShim(dev Device, blockSize int, readOnly bool) *Shim {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Shim{dev: dev, blockSize: blockSize, readOnly: readOnly}
}

func (s *Shim) Size() int64    { return s.dev.Size() }
func (s *Shim) BlockSize() int { return s.blockSize }
func (s *Shim) ReadOnly() bool { return s.readOnly }
func (s *Shim) Dirty() bool    { return s.dirty }

// Seek repositions the sequential cursor. Positions outside the media are
// rejected.
func (s *Shim) Seek(off int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = off
	case io.SeekCurrent:
		abs = s.pos + off
	case io.SeekEnd:
		abs = s.dev.Size() + off
	default:
		return s.pos, &ntfs.FSError{Op: "seek", Err: ntfs.ErrInvalid}
	}
	if abs < 0 || abs > s.dev.Size() {
		return s.pos, &ntfs.FSError{Op: "seek", Err: ntfs.ErrInvalid}
	}
	s.pos = abs
	return abs, nil
}

// Read reads from the sequential cursor.
func (s *Shim) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// Write writes at the sequential cursor.
func (s *Shim) Write(p []byte) (int, error) {
	n, err := s.WriteAt(p, s.pos)
	s.pos += int64(n)
	return n, err
}

// ReadAt reads at an absolute position. Reads past the media end are
// truncated; a read entirely outside the media fails.
func (s *Shim) ReadAt(p []byte, off int64) (int, error) {
	size := s.dev.Size()
	if off < 0 || off > size {
		return 0, &ntfs.FSError{Op: "read", Err: ntfs.ErrInvalid}
	}
	if off+int64(len(p)) > size {
		p = p[:size-off]
	}
	n, err := s.dev.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, &ntfs.FSError{Op: "read", Err: ntfs.ErrIO}
	}
	return n, nil
}

// WriteAt writes at an absolute position and marks the media dirty.
func (s *Shim) WriteAt(p []byte, off int64) (int, error) {
	if s.readOnly {
		return 0, &ntfs.FSError{Op: "write", Err: ntfs.ErrReadOnly}
	}
	if off < 0 || off+int64(len(p)) > s.dev.Size() {
		return 0, &ntfs.FSError{Op: "write", Err: ntfs.ErrInvalid}
	}
	n, err := s.dev.WriteAt(p, off)
	if n > 0 {
		s.dirty = true
	}
	if err != nil {
		return n, &ntfs.FSError{Op: "write", Err: ntfs.ErrIO}
	}
	return n, nil
}

// Sync flushes the device when dirty and clears the dirty mark.
func (s *Shim) Sync() error {
	if !s.dirty {
		return nil
	}
	if err := s.dev.Sync(); err != nil {
		return &ntfs.FSError{Op: "sync", Err: ntfs.ErrIO}
	}
	s.dirty = false
	return nil
}

// Close syncs and releases the device.
func (s *Shim) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	return s.dev.Close()
}
