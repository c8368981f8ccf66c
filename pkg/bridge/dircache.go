package bridge

import (
	"encoding/binary"
	"errors"

	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

// errListChanged marks a directory whose contents moved between the two
// listing passes. The cache cannot be trusted at that point and the read
// fails hard rather than returning a mix of old and new entries.
var errListChanged = errors.New("directory changed between listing passes")

// dirCache is a materialized directory listing: fixed-stride encoded
// FileInfo records plus a cursor. It is built in two engine passes, first
// counting entries and sizing the stride, then filling the records.
type dirCache struct {
	buf    []byte
	stride int
	count  int
	pos    int
}

// readDir returns the next directory entry encoded into p. The listing is
// built lazily on the first read and kept for the life of the handle;
// resetting the position rewinds the cursor without rebuilding.
func (v *Volume) readDir(f *File, p []byte) (int, error) {
	if f.dir == nil {
		c, err := v.buildDirCache(f)
		if err != nil {
			return 0, err
		}
		f.dir = c
	}
	return f.dir.next(p)
}

func (v *Volume) buildDirCache(f *File) (*dirCache, error) {
	c := &dirCache{}

	pos := int64(0)
	err := f.obj.ReadDir(&pos, func(name string, _ int64, number uint64, dir bool) error {
		if skipEntry(number) {
			return nil
		}
		c.count++
		if n := efi.FileInfoSize(name); n > c.stride {
			c.stride = n
		}
		return nil
	})
	if err != nil {
		return nil, translateErr("readdir", f.path, err)
	}
	if c.count == 0 {
		return c, nil
	}

	c.buf = make([]byte, c.count*c.stride)
	idx := 0
	pos = 0
	err = f.obj.ReadDir(&pos, func(name string, _ int64, number uint64, dir bool) error {
		if skipEntry(number) {
			return nil
		}
		if idx >= c.count {
			return errListChanged
		}
		info, ierr := v.entryInfo(number, name)
		if ierr != nil {
			return ierr
		}
		if info.EncodedSize() > c.stride {
			return errListChanged
		}
		info.Encode(c.buf[idx*c.stride:])
		idx++
		return nil
	})
	if err != nil {
		if errors.Is(err, errListChanged) {
			return nil, statusErr("readdir", f.path, efi.DeviceError)
		}
		return nil, translateErr("readdir", f.path, err)
	}
	if idx != c.count {
		return nil, statusErr("readdir", f.path, efi.DeviceError)
	}
	return c, nil
}

// skipEntry filters reserved metadata objects out of listings. The root
// itself is the one reserved object a listing may legitimately carry.
func skipEntry(number uint64) bool {
	n := ntfs.MREF(number)
	return n < ntfs.FirstUserObject && n != ntfs.RootObject
}

// entryInfo fetches the metadata record of one listing entry. An entry
// whose object is already open is read through the live instance; opening
// it a second time would trip the engine's single-open rule.
func (v *Volume) entryInfo(number uint64, name string) (*efi.FileInfo, error) {
	num := ntfs.MREF(number)
	if g := v.open.byNumber(num); g != nil {
		oi, err := g.obj.Info()
		if err != nil {
			return nil, err
		}
		return infoRecord(oi, name), nil
	}
	obj, err := v.vol.OpenByNumber(num)
	if err != nil {
		return nil, err
	}
	oi, err := obj.Info()
	cerr := obj.Close()
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, cerr
	}
	return infoRecord(oi, name), nil
}

// next copies the record under the cursor into p and advances. The end of
// the listing is a zero-length success. A buffer too small for the record
// leaves the cursor in place and reports the required size.
func (c *dirCache) next(p []byte) (int, error) {
	if c.pos >= c.count {
		return 0, nil
	}
	rec := c.buf[c.pos*c.stride : (c.pos+1)*c.stride]
	size := int(binary.LittleEndian.Uint64(rec))
	if size < efi.FileInfoHeaderSize || size > c.stride {
		return 0, statusErr("readdir", "", efi.DeviceError)
	}
	if len(p) < size {
		return 0, &efi.SizeError{Needed: size}
	}
	copy(p, rec[:size])
	c.pos++
	return size, nil
}
