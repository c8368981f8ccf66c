// Package memfs is a small filesystem engine used for testing and local
// serving. It keeps the directory tree in memory, persists the superblock
// and file contents through a block device shim, and enforces the same
// open/close discipline a production engine does: an object may only be
// open once, and closing a dirty object writes its metadata back through
// its parent directory, which must not be open at that moment.
package memfs

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

var le = binary.LittleEndian

const (
	magic      = "MEMFS\x01\x00\x00"
	superSize  = 256
	maxLabel   = 128
	dataStart  = 4096
	extentUnit = 4096
)

// DeviceResolver locates the block device shim registered under a device
// path. Mount calls it to find its backing store, so the device must be
// discoverable before the mount entry point runs.
type DeviceResolver interface {
	LookupDevice(device string) (*blockdev.Shim, error)
}

// Engine implements ntfs.Engine over in-memory volumes.
type Engine struct {
	mu      sync.Mutex
	devices DeviceResolver
	state   map[string]*fsState
}

// New returns an engine resolving devices through r.
func New(r DeviceResolver) *Engine {
	return &Engine{devices: r, state: make(map[string]*fsState)}
}

// fsState is the parsed image of one device. It survives unmounts the way
// a disk retains its contents, and is discarded when the device path turns
// up a different serial (media swap).
type fsState struct {
	serial  uint64
	label   string
	nodes   map[uint64]*node
	root    *node
	next    uint64
	dataEnd int64
	mounted bool
}

type superblock struct {
	serial  uint64
	label   string
	dataEnd int64
}

func readSuper(dev *blockdev.Shim) (*superblock, error) {
	buf := make([]byte, superSize)
	if _, err := dev.ReadAt(buf, 0); err != nil {
		return nil, &ntfs.FSError{Op: "mount", Err: ntfs.ErrIO}
	}
	if string(buf[:len(magic)]) != magic {
		return nil, &ntfs.FSError{Op: "mount", Err: ntfs.ErrCorrupt}
	}
	n := int(le.Uint16(buf[16:]))
	if n > maxLabel {
		return nil, &ntfs.FSError{Op: "mount", Err: ntfs.ErrCorrupt}
	}
	sb := &superblock{
		serial:  le.Uint64(buf[8:]),
		label:   string(buf[18 : 18+n]),
		dataEnd: int64(le.Uint64(buf[18+maxLabel:])),
	}
	if sb.dataEnd < dataStart || sb.dataEnd > dev.Size() {
		return nil, &ntfs.FSError{Op: "mount", Err: ntfs.ErrCorrupt}
	}
	return sb, nil
}

func writeSuper(dev *blockdev.Shim, sb *superblock) error {
	if len(sb.label) > maxLabel {
		return &ntfs.FSError{Op: "format", Err: ntfs.ErrNameTooLong}
	}
	buf := make([]byte, superSize)
	copy(buf, magic)
	le.PutUint64(buf[8:], sb.serial)
	le.PutUint16(buf[16:], uint16(len(sb.label)))
	copy(buf[18:], sb.label)
	le.PutUint64(buf[18+maxLabel:], uint64(sb.dataEnd))
	if _, err := dev.WriteAt(buf, 0); err != nil {
		return err
	}
	return nil
}

// Format writes a fresh empty filesystem onto dev.
func Format(dev *blockdev.Shim, serial uint64, label string) error {
	if dev.Size() < dataStart {
		return &ntfs.FSError{Op: "format", Err: ntfs.ErrNoSpace}
	}
	if err := writeSuper(dev, &superblock{serial: serial, label: label, dataEnd: dataStart}); err != nil {
		return err
	}
	return dev.Sync()
}

// Formatted reports whether dev carries a recognizable filesystem.
func Formatted(dev *blockdev.Shim) bool {
	_, err := readSuper(dev)
	return err == nil
}

// Mount implements ntfs.Engine.
func (e *Engine) Mount(device string, flags ntfs.MountFlags) (ntfs.Volume, error) {
	dev, err := e.devices.LookupDevice(device)
	if err != nil {
		return nil, &ntfs.FSError{Op: "mount", Path: device, Err: ntfs.ErrNoDevice}
	}
	sb, err := readSuper(dev)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	st := e.state[device]
	if st == nil || st.serial != sb.serial {
		st = newState(sb)
		e.state[device] = st
	}
	if st.mounted && flags&ntfs.MountExclusive != 0 {
		e.mu.Unlock()
		return nil, &ntfs.FSError{Op: "mount", Path: device, Err: ntfs.ErrBusy}
	}
	st.mounted = true
	e.mu.Unlock()

	readOnly := dev.ReadOnly() || flags&ntfs.MountReadOnly != 0
	return &Volume{eng: e, device: device, dev: dev, st: st,
		readOnly: readOnly, open: make(map[uint64]*object)}, nil
}

func newState(sb *superblock) *fsState {
	root := &node{
		num:      ntfs.RootObject,
		dir:      true,
		children: make(map[string]*node),
		created:  time.Now(),
		modified: time.Now(),
		accessed: time.Now(),
	}
	return &fsState{
		serial:  sb.serial,
		label:   sb.label,
		nodes:   map[uint64]*node{root.num: root},
		root:    root,
		next:    ntfs.FirstUserObject,
		dataEnd: sb.dataEnd,
	}
}

func (e *Engine) release(device string) {
	e.mu.Lock()
	if st := e.state[device]; st != nil {
		st.mounted = false
	}
	e.mu.Unlock()
}
