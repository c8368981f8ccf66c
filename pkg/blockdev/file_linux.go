//go:build linux

package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/example/ntfsbridge/pkg/ntfs"
)

// FileDevice is a Device backed by a regular file or a block special
// device.
type FileDevice struct {
	fd   int
	path string
	size int64
}

// OpenFile opens path as a device. Block special devices report the size
// the kernel knows for them; regular files report their stat size.
func OpenFile(path string, readOnly bool) (*FileDevice, error) {
	flags := unix.O_RDWR
	if readOnly {
		flags = unix.O_RDONLY
	}
	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := st.Size
	if st.Mode&unix.S_IFMT == unix.S_IFBLK {
		n, err := unix.IoctlGetInt(fd, unix.BLKGETSIZE64)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("block size of %s: %w", path, err)
		}
		size = int64(n)
	}
	return &FileDevice{fd: fd, path: path, size: size}, nil
}

func (d *FileDevice) ReadAt(p []byte, off int64) (int, error) {
	n, err := unix.Pread(d.fd, p, off)
	if err != nil {
		return n, &ntfs.FSError{Op: "read", Path: d.path, Err: ntfs.ErrIO}
	}
	return n, nil
}

func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	n, err := unix.Pwrite(d.fd, p, off)
	if err != nil {
		return n, &ntfs.FSError{Op: "write", Path: d.path, Err: ntfs.ErrIO}
	}
	return n, nil
}

func (d *FileDevice) Size() int64 { return d.size }

func (d *FileDevice) Sync() error {
	if err := unix.Fsync(d.fd); err != nil {
		return &ntfs.FSError{Op: "sync", Path: d.path, Err: ntfs.ErrIO}
	}
	return nil
}

func (d *FileDevice) Close() error {
	return unix.Close(d.fd)
}
