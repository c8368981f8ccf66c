package bridge

import (
	"errors"
	"log"
	"sync"

	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

// Config controls registry-wide behavior.
type Config struct {
	// ForceReadOnly mounts every volume read-only regardless of media.
	ForceReadOnly bool
}

// Registry is the process-wide list of mounted volumes. The engine locates
// the block device behind a mount request by scanning this list, which is
// why a volume is inserted before the engine mount entry point runs.
type Registry struct {
	mu      sync.Mutex
	engine  ntfs.Engine
	cfg     Config
	mounted []*Volume
}

// NewRegistry returns an empty registry. SetEngine must be called before
// the first mount; the engine itself is usually constructed with the
// registry as its device resolver, hence the two steps.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

func (r *Registry) SetEngine(e ntfs.Engine) {
	r.mu.Lock()
	r.engine = e
	r.mu.Unlock()
}

// LookupDevice returns the block device shim of the mounted volume
// registered under device. The engine calls this during Mount.
func (r *Registry) LookupDevice(device string) (*blockdev.Shim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.mounted {
		if v.device == device {
			return v.dev, nil
		}
	}
	return nil, &ntfs.FSError{Op: "lookup", Path: device, Err: ntfs.ErrNoDevice}
}

// NewVolume binds a device path to its block device shim. The volume is
// not mounted until the first OpenVolume.
func (r *Registry) NewVolume(device string, dev *blockdev.Shim) *Volume {
	return &Volume{reg: r, device: device, dev: dev}
}

func (r *Registry) insert(v *Volume) {
	r.mu.Lock()
	r.mounted = append(r.mounted, v)
	r.mu.Unlock()
}

func (r *Registry) removeMounted(v *Volume) {
	r.mu.Lock()
	for i, g := range r.mounted {
		if g == v {
			r.mounted = append(r.mounted[:i], r.mounted[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
}

// Volume is one filesystem the bridge serves. All file operations on it
// are serialized through mu, matching the single-threaded call convention
// of the host protocol.
type Volume struct {
	reg *Registry
	mu  sync.Mutex

	device string
	dev    *blockdev.Shim

	vol        ntfs.Volume
	open       openList
	mountCount int
	totalRefs  int

	// serial of the filesystem seen at the first successful mount. A
	// later mount returning a different serial means the media was
	// swapped.
	serial uint64
	label  string
}

func (v *Volume) Device() string { return v.device }

// Label returns the volume label cached at mount time.
func (v *Volume) Label() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.label
}

// Mounted reports whether the engine currently has the volume mounted.
func (v *Volume) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vol != nil
}

// OpenRefs returns the total open-instance reference count.
func (v *Volume) OpenRefs() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalRefs
}

func (v *Volume) readOnly() bool {
	if v.reg.cfg.ForceReadOnly || v.dev.ReadOnly() {
		return true
	}
	return v.vol != nil && v.vol.ReadOnly()
}

// mount is idempotent: only the first of the nested calls reaches the
// engine. Caller holds v.mu.
func (v *Volume) mount() error {
	v.mountCount++
	if v.mountCount > 1 {
		return nil
	}
	flags := ntfs.MountExclusive | ntfs.MountIgnoreHibernation | ntfs.MountMayReadOnly
	if v.reg.cfg.ForceReadOnly || v.dev.ReadOnly() {
		flags |= ntfs.MountReadOnly
	}
	// Insert before the engine mount: the engine finds its backing
	// device by scanning the mounted list.
	v.reg.insert(v)
	vol, err := v.reg.engine.Mount(v.device, flags)
	if err != nil {
		v.reg.removeMounted(v)
		v.mountCount = 0
		log.Printf("mount %q failed: %v", v.device, err)
		return v.mountFailure(err)
	}
	if v.serial != 0 && vol.Serial() != v.serial {
		if uerr := vol.Unmount(); uerr != nil {
			log.Printf("unmount %q after serial change: %v", v.device, uerr)
		}
		v.reg.removeMounted(v)
		v.mountCount = 0
		log.Printf("media changed on %q: serial %#x, expected %#x",
			v.device, vol.Serial(), v.serial)
		return statusErr("mount", v.device, efi.MediaChanged)
	}
	v.serial = vol.Serial()
	if _, ferr := vol.FreeSpace(); ferr != nil {
		log.Printf("free space on %q: %v", v.device, ferr)
	}
	v.label = vol.Label()
	v.vol = vol
	log.Printf("mounted %q: serial %#x, label %q", v.device, v.serial, v.label)
	return nil
}

// mountFailure classifies an engine mount error. Once a serial has been
// seen on this device, any mount failure means the media is gone.
func (v *Volume) mountFailure(err error) error {
	if v.serial != 0 {
		return statusErr("mount", v.device, efi.NoMedia)
	}
	var s efi.Status
	switch {
	case errors.Is(err, ntfs.ErrCorrupt):
		s = efi.VolumeCorrupted
	case errors.Is(err, ntfs.ErrBusy), errors.Is(err, ntfs.ErrPermission):
		s = efi.AccessDenied
	case errors.Is(err, ntfs.ErrNoMemory):
		s = efi.OutOfResources
	default:
		s = efi.NotFound
	}
	return statusErr("mount", v.device, s)
}

// unmount flushes and releases the engine instance and resets all mount
// state. Caller holds v.mu.
func (v *Volume) unmount() {
	if v.vol != nil {
		if err := v.vol.Unmount(); err != nil {
			log.Printf("unmount %q: %v", v.device, err)
		}
	}
	v.vol = nil
	v.label = ""
	v.mountCount = 0
	v.totalRefs = 0
	v.open = openList{}
	v.reg.removeMounted(v)
	log.Printf("unmounted %q", v.device)
}

// OpenVolume mounts the volume if needed and returns an open instance of
// its root directory. Repeated calls while the root is open return the
// same instance with its reference count raised.
func (v *Volume) OpenVolume() (*File, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.mount(); err != nil {
		return nil, err
	}
	if root := v.open.byPath("/"); root != nil {
		root.refs++
		v.totalRefs++
		return root, nil
	}
	obj, err := v.vol.OpenByNumber(ntfs.RootObject)
	if err != nil {
		terr := translateErr("open", "/", err)
		v.mountCount--
		if v.mountCount <= 0 && v.totalRefs == 0 {
			v.unmount()
		}
		return nil, terr
	}
	f := &File{vol: v, path: "/", baseOff: 1, isRoot: true, isDir: true,
		obj: obj, num: obj.Number(), refs: 1}
	v.open.add(f)
	v.totalRefs++
	return f, nil
}

// nearestOpen finds the open instance deepest along path and returns its
// object together with the remaining relative path. With no open ancestor
// at all the walk starts from the volume root (nil base).
func (v *Volume) nearestOpen(path string) (ntfs.Object, string) {
	prefix := path
	for {
		prefix = parentPath(prefix)
		if g := v.open.byPath(prefix); g != nil && g.obj != nil {
			if prefix == "/" {
				return g.obj, path[1:]
			}
			return g.obj, path[len(prefix)+1:]
		}
		if prefix == "/" {
			return nil, path[1:]
		}
	}
}

// closeObject closes obj. When obj is dirty the engine writes its metadata
// back on close, and the writeback reopens obj's parent directory by
// number; a live parent instance is therefore closed first and reopened
// afterwards. If the reopen fails the parent instance is dropped from the
// open table and its handle goes stale.
func (v *Volume) closeObject(obj ntfs.Object, parent *File) error {
	if obj == nil {
		return nil
	}
	if !obj.Dirty() || parent == nil || parent.obj == nil || parent.obj == obj {
		return obj.Close()
	}
	num := parent.num
	if err := parent.obj.Close(); err != nil {
		log.Printf("close parent %q: %v", parent.path, err)
	}
	parent.obj = nil
	cerr := obj.Close()
	v.reopenHandle(parent, num)
	return cerr
}

// reopenHandle reattaches an object to an instance whose object was closed
// around an engine writeback. On failure the instance is unregistered; the
// host still holds the handle, but every later operation on it fails.
func (v *Volume) reopenHandle(h *File, num uint64) {
	obj, err := v.vol.OpenByNumber(num)
	if err != nil {
		log.Printf("reopen %q (object %d) failed, dropping instance: %v",
			h.path, num, err)
		v.open.remove(h)
		return
	}
	h.obj = obj
}
