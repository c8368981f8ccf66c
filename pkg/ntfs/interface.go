// Package ntfs defines the boundary between the bridge layer and the
// filesystem engine that owns the on-disk NTFS structures. The bridge never
// touches disk records itself; it drives a mounted Volume through the
// interfaces below and enforces the engine's open/close discipline.
package ntfs

import "time"

// MountFlags select engine mount behavior.
type MountFlags uint32

const (
	// MountExclusive refuses to share the volume with another mount.
	MountExclusive MountFlags = 1 << iota
	// MountIgnoreHibernation mounts even when a hibernation image is present.
	MountIgnoreHibernation
	// MountMayReadOnly lets the engine fall back to a read-only mount when a
	// writable one is not possible.
	MountMayReadOnly
	// MountReadOnly forces a read-only mount.
	MountReadOnly
)

// Object numbers below FirstUserObject are reserved for filesystem metadata
// and never surfaced in directory listings, with the single exception of the
// root directory itself.
const (
	RootObject      uint64 = 5
	FirstUserObject uint64 = 16
)

// MaxNameLength is the longest single path component the engine accepts.
const MaxNameLength = 255

// MREF strips the sequence bits from a directory entry reference, leaving
// the plain object number.
func MREF(ref uint64) uint64 { return ref & 0x0000FFFFFFFFFFFF }

// FileAttr carries the on-disk attribute bits of an object.
type FileAttr uint32

const (
	AttrReadOnly FileAttr = 0x0001
	AttrHidden   FileAttr = 0x0002
	AttrSystem   FileAttr = 0x0004
	AttrArchive  FileAttr = 0x0020
)

// ObjectInfo is a point-in-time snapshot of an object's metadata.
type ObjectInfo struct {
	Number    uint64
	Dir       bool
	Size      uint64
	Allocated uint64
	Attr      FileAttr
	Created   time.Time
	Accessed  time.Time
	Modified  time.Time
}

// DirVisitor receives one directory entry per call during ReadDir. The
// number argument may still carry sequence bits; mask it with MREF before
// comparing against reserved object numbers. Returning a non-nil error
// aborts the walk and propagates to the ReadDir caller.
type DirVisitor func(name string, pos int64, number uint64, dir bool) error

// Engine mounts volumes. Implementations locate the backing block device
// from the device path handed to Mount, which is why the caller must make
// the device discoverable before invoking it.
type Engine interface {
	Mount(device string, flags MountFlags) (Volume, error)
}

// Volume is one mounted filesystem instance. None of its methods are safe
// for concurrent use; the caller serializes access.
//
// The engine forbids two live Objects for the same on-disk record. Resolve,
// OpenByNumber and Create fail with ErrBusy when the target (or, for
// Resolve, any path component walked through) is already open.
type Volume interface {
	// Unmount releases the engine instance. All objects must be closed
	// first.
	Unmount() error

	Serial() uint64
	Label() string
	Relabel(label string) error

	// FreeSpace refreshes and returns the free byte count.
	FreeSpace() (uint64, error)

	// Resolve walks rel, a slash-separated path with no leading slash,
	// starting from base. A nil base starts from the volume root.
	Resolve(base Object, rel string) (Object, error)

	// OpenByNumber opens an object directly by its number.
	OpenByNumber(number uint64) (Object, error)

	// Create makes a new child under parent and returns it open.
	Create(parent Object, name string, dir bool) (Object, error)

	// Delete unlinks name from parent and destroys obj. Both handles are
	// consumed whether or not the delete succeeds: the caller must not
	// close or otherwise use them afterwards. Closing parent inside the
	// engine writes its index back, which reopens the parent's own parent
	// by number; the caller is responsible for making that possible.
	Delete(parent, obj Object, name string) error

	ReadOnly() bool
}

// Object is one live open instance of a file or directory.
//
// Close of a dirty object writes its metadata back, and the writeback path
// reopens the object's parent directory by number. The engine does not
// tolerate that parent being open at the time, and the writeback does not
// recurse further up the tree.
type Object interface {
	Number() uint64
	IsDir() bool
	Dirty() bool
	Size() uint64
	Info() (ObjectInfo, error)

	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size uint64) error
	Flush() error
	Close() error

	// ReadDir visits entries starting at *pos and advances it as entries
	// are consumed, so an interrupted walk can be resumed.
	ReadDir(pos *int64, visit DirVisitor) error
}
