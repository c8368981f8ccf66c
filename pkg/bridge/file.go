package bridge

import (
	"errors"
	"io"
	"log"

	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

// endOfFile is the position value that seeks to the end of a file.
const endOfFile = ^uint64(0)

// File is one host-visible open instance. Overlapping opens of the same
// path share a single File with a raised reference count, so there is
// never more than one engine object per on-disk record.
type File struct {
	vol *Volume

	path    string // clean absolute path
	baseOff int    // basename offset within path
	isRoot  bool
	isDir   bool

	refs   int
	num    uint64      // object number, cached at open
	obj    ntfs.Object // nil while detached around a writeback, or when stale
	offset int64
	dir    *dirCache
}

func (f *File) Path() string { return f.path }

// BaseName returns the last path component; empty for the root.
func (f *File) BaseName() string { return f.path[f.baseOff:] }

func (f *File) IsDir() bool  { return f.isDir }
func (f *File) IsRoot() bool { return f.isRoot }

// Open resolves name relative to f and returns an open instance. The
// returned *File may be f itself or another existing instance; every
// return raises a reference count that a Close must drop.
func (f *File) Open(name string, mode efi.OpenMode, attr uint64) (*File, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.openFrom(f, name, mode, attr)
}

func (v *Volume) openFrom(f *File, name string, mode efi.OpenMode, attr uint64) (*File, error) {
	switch mode {
	case efi.ModeRead,
		efi.ModeRead | efi.ModeWrite,
		efi.ModeRead | efi.ModeWrite | efi.ModeCreate:
	default:
		return nil, statusErr("open", name, efi.InvalidParameter)
	}
	if f.refs <= 0 || f.obj == nil {
		return nil, statusErr("open", name, efi.DeviceError)
	}
	if !f.isDir {
		return nil, statusErr("open", f.path, efi.NotFound)
	}
	if v.readOnly() && mode != efi.ModeRead {
		return nil, statusErr("open", name, efi.WriteProtected)
	}
	if name == ".." && f.isRoot {
		return nil, statusErr("open", name, efi.NotFound)
	}
	create := mode&efi.ModeCreate != 0
	if create && (name == "" || name == "." || name == "..") {
		return nil, statusErr("open", name, efi.AccessDenied)
	}
	if name == "" || name == "." {
		f.refs++
		v.totalRefs++
		return f, nil
	}

	// A leading separator makes the name volume-absolute instead of
	// relative to f.
	path := name
	if name[0] != '/' && name[0] != '\\' {
		path = f.path + "/" + name
	}
	path = CleanPath(path)
	if create && path == "/" {
		return nil, statusErr("open", name, efi.AccessDenied)
	}
	wantDir := attr&efi.FileDirectory != 0
	if g := v.open.byPath(path); g != nil {
		// Reopening an already-open path merges with the existing
		// instance instead of opening the object a second time.
		if create && g.isDir != wantDir {
			return nil, statusErr("open", path, efi.AccessDenied)
		}
		g.refs++
		v.totalRefs++
		return g, nil
	}

	nf := &File{vol: v, path: path, baseOff: baseNameOffset(path)}
	nf.isRoot = path == "/"
	var err error
	if create {
		err = v.createObject(nf, wantDir)
	} else {
		err = v.openObject(nf)
	}
	if err != nil {
		return nil, err
	}
	nf.num = nf.obj.Number()
	nf.refs = 1
	v.open.add(nf)
	v.totalRefs++
	return nf, nil
}

func (v *Volume) openObject(nf *File) error {
	if nf.isRoot {
		obj, err := v.vol.OpenByNumber(ntfs.RootObject)
		if err != nil {
			return translateErr("open", nf.path, err)
		}
		nf.obj = obj
		nf.isDir = true
		return nil
	}
	base, rel := v.nearestOpen(nf.path)
	obj, err := v.vol.Resolve(base, rel)
	if err != nil {
		return translateErr("open", nf.path, err)
	}
	nf.obj = obj
	nf.isDir = obj.IsDir()
	return nil
}

// createObject opens nf's path, creating the object if it does not exist.
// An existing object of the requested kind is adopted; a kind mismatch is
// refused.
func (v *Volume) createObject(nf *File, dir bool) error {
	nf.isDir = dir
	parentDir := parentPath(nf.path)

	var parentObj ntfs.Object
	owned := false
	if g := v.open.byPath(parentDir); g != nil && g.obj != nil {
		parentObj = g.obj
	} else {
		var err error
		if parentDir == "/" {
			parentObj, err = v.vol.OpenByNumber(ntfs.RootObject)
		} else {
			base, rel := v.nearestOpen(parentDir)
			parentObj, err = v.vol.Resolve(base, rel)
		}
		if err != nil {
			return translateErr("create", nf.path, err)
		}
		owned = true
	}
	// A transiently opened parent is closed again before returning. The
	// create dirties it, so the close goes through the writeback dance
	// against whatever open ancestor the writeback would reopen.
	releaseParent := func() {
		if !owned {
			return
		}
		gp := v.open.byPath(parentPath(parentDir))
		if err := v.closeObject(parentObj, gp); err != nil {
			log.Printf("close parent %q: %v", parentDir, err)
		}
	}

	name := nf.BaseName()
	obj, err := v.vol.Resolve(parentObj, name)
	if err == nil {
		if obj.IsDir() != dir {
			if cerr := obj.Close(); cerr != nil {
				log.Printf("close %q: %v", nf.path, cerr)
			}
			releaseParent()
			return statusErr("create", nf.path, efi.AccessDenied)
		}
		nf.obj = obj
		releaseParent()
		return nil
	}
	if !errors.Is(err, ntfs.ErrNotExist) {
		releaseParent()
		return translateErr("create", nf.path, err)
	}

	obj, err = v.vol.Create(parentObj, name, dir)
	if err != nil {
		releaseParent()
		return translateErr("create", nf.path, err)
	}
	nf.obj = obj
	releaseParent()
	return nil
}

// Close drops one reference. The engine object is released on the last
// close, and the volume unmounts when its last instance goes away. Close
// never fails; engine-side trouble is logged and swallowed, matching the
// host protocol contract.
func (f *File) Close() error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closeFile(f)
	return nil
}

func (v *Volume) closeFile(f *File) {
	if f.refs <= 0 {
		return
	}
	f.refs--
	v.totalRefs--
	if f.refs == 0 {
		if f.obj != nil {
			if err := v.closeObject(f.obj, v.open.parentOf(f)); err != nil {
				log.Printf("close %q: %v", f.path, err)
			}
			f.obj = nil
		}
		v.open.remove(f)
		f.dir = nil
	}
	if v.totalRefs <= 0 {
		v.unmount()
	}
}

// Delete closes the instance and removes the object from the volume. The
// only outcomes are success and WarnDeleteFailure: any failure, including
// other instances still referencing the object or a read-only volume,
// degrades to the warning after the handle itself has been released.
func (f *File) Delete() error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 {
		return efi.WarnDeleteFailure
	}
	f.refs--
	v.totalRefs--
	defer func() {
		if v.totalRefs <= 0 {
			v.unmount()
		}
	}()
	if f.refs > 0 {
		// Other instances still reference the object; nothing reaches
		// the engine.
		return efi.WarnDeleteFailure
	}
	if f.isRoot || f.obj == nil || v.readOnly() {
		v.dropFile(f)
		return efi.WarnDeleteFailure
	}

	parentDir := parentPath(f.path)

	// The engine delete dirties and closes the parent, whose writeback
	// reopens the grandparent by number. A live non-root grandparent
	// instance is closed around the delete.
	var gp *File
	var gpNum uint64
	if gpDir := parentPath(parentDir); gpDir != parentDir {
		if g := v.open.byPath(gpDir); g != nil && !g.isRoot && g.obj != nil && g != f {
			gp = g
			gpNum = g.num
			if err := g.obj.Close(); err != nil {
				log.Printf("close grandparent %q: %v", g.path, err)
			}
			g.obj = nil
		}
	}

	// Parent object: a live instance is lent to the engine and reopened
	// afterwards; otherwise a fresh one is resolved. Either way the
	// delete consumes it.
	parent := v.open.byPath(parentDir)
	var parentObj ntfs.Object
	var parentNum uint64
	reopen := false
	if parent != nil && parent.obj != nil {
		parentObj = parent.obj
		parentNum = parent.num
		parent.obj = nil
		reopen = true
	} else {
		parent = nil
		var err error
		if parentDir == "/" {
			parentObj, err = v.vol.OpenByNumber(ntfs.RootObject)
		} else {
			base, rel := v.nearestOpen(parentDir)
			parentObj, err = v.vol.Resolve(base, rel)
		}
		if err != nil {
			log.Printf("delete %q: resolve parent: %v", f.path, err)
			if gp != nil {
				v.reopenHandle(gp, gpNum)
			}
			v.dropFile(f)
			return efi.WarnDeleteFailure
		}
	}

	derr := v.vol.Delete(parentObj, f.obj, f.BaseName())
	f.obj = nil
	v.open.remove(f)
	if reopen {
		v.reopenHandle(parent, parentNum)
	}
	if gp != nil {
		v.reopenHandle(gp, gpNum)
	}
	if derr != nil {
		log.Printf("delete %q: %v", f.path, derr)
		return efi.WarnDeleteFailure
	}
	return nil
}

// dropFile releases the instance like a final close, without touching the
// reference counters.
func (v *Volume) dropFile(f *File) {
	if f.obj != nil {
		if err := v.closeObject(f.obj, v.open.parentOf(f)); err != nil {
			log.Printf("close %q: %v", f.path, err)
		}
		f.obj = nil
	}
	v.open.remove(f)
}

// Read reads from the current position. On a directory it returns the
// next cached entry as an encoded FileInfo record; the end of a directory
// is a zero-length success. Reading past the end of a file is likewise a
// zero-length success, not an error.
func (f *File) Read(p []byte) (int, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return 0, statusErr("read", f.path, efi.DeviceError)
	}
	if f.isDir {
		return v.readDir(f, p)
	}
	size := int64(f.obj.Size())
	if f.offset >= size {
		return 0, nil
	}
	want := int64(len(p))
	if f.offset+want > size {
		want = size - f.offset
	}
	n, err := f.obj.ReadAt(p[:want], f.offset)
	f.offset += int64(n)
	if err != nil && err != io.EOF {
		return n, translateErr("read", f.path, err)
	}
	return n, nil
}

// Write writes at the current position, extending the file as needed.
func (f *File) Write(p []byte) (int, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return 0, statusErr("write", f.path, efi.DeviceError)
	}
	if f.isDir {
		return 0, statusErr("write", f.path, efi.Unsupported)
	}
	if v.readOnly() {
		return 0, statusErr("write", f.path, efi.WriteProtected)
	}
	n, err := f.obj.WriteAt(p, f.offset)
	f.offset += int64(n)
	if err != nil {
		return n, translateErr("write", f.path, err)
	}
	return n, nil
}

// GetPosition returns the current file position. Directories do not have
// one.
func (f *File) GetPosition() (uint64, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.isDir {
		return 0, statusErr("position", f.path, efi.Unsupported)
	}
	return uint64(f.offset), nil
}

// SetPosition moves the file position. Directories accept only zero,
// which restarts the listing. The all-ones value seeks to the end of a
// file; positions beyond the end are refused.
func (f *File) SetPosition(pos uint64) error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return statusErr("position", f.path, efi.DeviceError)
	}
	if f.isDir {
		if pos != 0 {
			return statusErr("position", f.path, efi.InvalidParameter)
		}
		f.offset = 0
		if f.dir != nil {
			// Rewind the cached listing; it stays stale until the
			// handle is closed and reopened.
			f.dir.pos = 0
		}
		return nil
	}
	if pos == endOfFile {
		f.offset = int64(f.obj.Size())
		return nil
	}
	if pos > f.obj.Size() {
		return statusErr("position", f.path, efi.Unsupported)
	}
	f.offset = int64(pos)
	return nil
}

// Info returns the file's metadata record.
func (f *File) Info() (*efi.FileInfo, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return nil, statusErr("stat", f.path, efi.DeviceError)
	}
	oi, err := f.obj.Info()
	if err != nil {
		return nil, translateErr("stat", f.path, err)
	}
	info := infoRecord(oi, f.BaseName())
	return info, nil
}

// FileSystemInfo returns the volume's metadata record.
func (f *File) FileSystemInfo() (*efi.FileSystemInfo, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vol == nil {
		return nil, statusErr("stat", v.device, efi.DeviceError)
	}
	free, err := v.vol.FreeSpace()
	if err != nil {
		return nil, translateErr("stat", v.device, err)
	}
	return &efi.FileSystemInfo{
		ReadOnly:   v.readOnly(),
		VolumeSize: uint64(v.dev.Size()),
		FreeSpace:  free,
		BlockSize:  uint32(v.dev.BlockSize()),
		Label:      v.label,
	}, nil
}

// VolumeLabel returns the cached volume label.
func (f *File) VolumeLabel() (string, error) {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vol == nil {
		return "", statusErr("stat", v.device, efi.DeviceError)
	}
	return v.label, nil
}

// SetInfo applies a metadata record to the file. Renaming is not
// supported; the only honored change is the file size.
func (f *File) SetInfo(info *efi.FileInfo) error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return statusErr("setinfo", f.path, efi.DeviceError)
	}
	if v.readOnly() {
		return statusErr("setinfo", f.path, efi.WriteProtected)
	}
	if info.FileName != "" && info.FileName != f.BaseName() {
		return statusErr("setinfo", f.path, efi.Unsupported)
	}
	if f.isDir {
		return nil
	}
	if info.FileSize != f.obj.Size() {
		if err := f.obj.Truncate(info.FileSize); err != nil {
			return translateErr("setinfo", f.path, err)
		}
	}
	return nil
}

// SetVolumeLabel relabels the volume.
func (f *File) SetVolumeLabel(label string) error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vol == nil {
		return statusErr("relabel", v.device, efi.DeviceError)
	}
	if v.readOnly() {
		return statusErr("relabel", v.device, efi.WriteProtected)
	}
	if err := v.vol.Relabel(label); err != nil {
		return translateErr("relabel", v.device, err)
	}
	v.label = label
	return nil
}

// Flush pushes pending data to the media. On a read-only volume there is
// nothing pending, so it succeeds without touching the engine.
func (f *File) Flush() error {
	v := f.vol
	v.mu.Lock()
	defer v.mu.Unlock()
	if f.refs <= 0 || f.obj == nil {
		return statusErr("flush", f.path, efi.DeviceError)
	}
	if v.readOnly() {
		return nil
	}
	if err := f.obj.Flush(); err != nil {
		return translateErr("flush", f.path, err)
	}
	return nil
}

func infoRecord(oi ntfs.ObjectInfo, name string) *efi.FileInfo {
	var attr uint64
	if oi.Dir {
		attr |= efi.FileDirectory
	}
	if oi.Attr&ntfs.AttrReadOnly != 0 {
		attr |= efi.FileReadOnly
	}
	if oi.Attr&ntfs.AttrHidden != 0 {
		attr |= efi.FileHidden
	}
	if oi.Attr&ntfs.AttrSystem != 0 {
		attr |= efi.FileSystem
	}
	if oi.Attr&ntfs.AttrArchive != 0 {
		attr |= efi.FileArchive
	}
	return &efi.FileInfo{
		FileSize:     oi.Size,
		PhysicalSize: oi.Allocated,
		CreateTime:   efi.NewTime(oi.Created),
		AccessTime:   efi.NewTime(oi.Accessed),
		ModifyTime:   efi.NewTime(oi.Modified),
		Attribute:    attr,
		FileName:     name,
	}
}
