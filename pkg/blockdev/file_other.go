//go:build !linux

package blockdev

import (
	"fmt"
	"os"

	"github.com/example/ntfsbridge/pkg/ntfs"
)

// FileDevice is a Device backed by a regular file. Without the block ioctl
// surface only the stat size is available.
type FileDevice struct {
	f    *os.File
	path string
	size int64
}

// OpenFile opens path as a device.
func OpenFile(path string, readOnly bool) (*FileDevice, error) {
	flags := os.O_RDWR
	if readOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return &FileDevice{f: f, path: path, size: st.Size()}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := d.f.ReadAt(p, off)
	if err != nil {
		return n, &ntfs.FSError{Op: "read", Path: d.path, Err: ntfs.ErrIO}
	}
	return n, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := d.f.WriteAt(p, off)
	if err != nil {
		return n, &ntfs.FSError{Op: "write", Path: d.path, Err: ntfs.ErrIO}
	}
	return n, nil
}

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) Sync() error {
	if err := d.f.Sync(); err != nil {
		return &ntfs.FSError{Op: "sync", Path: d.path, Err: ntfs.ErrIO}
	}
	return nil
}

func (d *FileDevice) Close() error {
	return d.f.Close()
}
