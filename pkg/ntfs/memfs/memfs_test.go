package memfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

// mapResolver is a DeviceResolver over a plain map.
type mapResolver map[string]*blockdev.Shim

func (m mapResolver) LookupDevice(device string) (*blockdev.Shim, error) {
	if dev, ok := m[device]; ok {
		return dev, nil
	}
	return nil, &ntfs.FSError{Op: "lookup", Path: device, Err: ntfs.ErrNoDevice}
}

func newTestEngine(t *testing.T) (*Engine, *blockdev.Shim) {
	t.Helper()
	shim := blockdev.NewShim(blockdev.NewMemDevice(1<<20), 0, false)
	require.NoError(t, Format(shim, 0xCAFE, "UNIT"))
	eng := New(mapResolver{"disk0": shim})
	return eng, shim
}

func TestFormat(t *testing.T) {
	shim := blockdev.NewShim(blockdev.NewMemDevice(1<<20), 0, false)
	require.False(t, Formatted(shim))
	require.NoError(t, Format(shim, 1, "VOL"))
	require.True(t, Formatted(shim))

	// Serial and label both land in the superblock.
	sb, err := readSuper(shim)
	require.NoError(t, err)
	require.Equal(t, uint64(1), sb.serial)
	require.Equal(t, "VOL", sb.label)

	// A device too small for the data area cannot be formatted.
	tiny := blockdev.NewShim(blockdev.NewMemDevice(512), 0, false)
	err = Format(tiny, 1, "VOL")
	require.True(t, errors.Is(err, ntfs.ErrNoSpace))
}

func TestMount(t *testing.T) {
	eng, _ := newTestEngine(t)

	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
	require.Equal(t, uint64(0xCAFE), vol.Serial())
	require.Equal(t, "UNIT", vol.Label())
	require.False(t, vol.ReadOnly())

	// Exclusive mounts do not share.
	_, err = eng.Mount("disk0", ntfs.MountExclusive)
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	require.NoError(t, vol.Unmount())
	_, err = eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
}

func TestMountErrors(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Mount("nosuch", ntfs.MountExclusive)
	require.True(t, errors.Is(err, ntfs.ErrNoDevice))

	blank := blockdev.NewShim(blockdev.NewMemDevice(1<<20), 0, false)
	eng2 := New(mapResolver{"blank": blank})
	_, err = eng2.Mount("blank", ntfs.MountExclusive)
	require.True(t, errors.Is(err, ntfs.ErrCorrupt))
}

func TestMountReadOnly(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive|ntfs.MountReadOnly)
	require.NoError(t, err)
	require.True(t, vol.ReadOnly())

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	_, err = vol.Create(root, "x", false)
	require.True(t, errors.Is(err, ntfs.ErrReadOnly))
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestSingleOpen(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)

	// The root is open; a second instance of the same object is refused.
	_, err = vol.OpenByNumber(ntfs.RootObject)
	require.True(t, errors.Is(err, ntfs.ErrBusy))
	_, err = vol.Resolve(nil, "")
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	f, err := vol.Create(root, "file", false)
	require.NoError(t, err)
	_, err = vol.OpenByNumber(f.Number())
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	require.NoError(t, f.Close())
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestResolveThroughOpenDirectory(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	dir, err := vol.Create(root, "dir", true)
	require.NoError(t, err)
	f, err := vol.Create(dir, "leaf", false)
	require.NoError(t, err)

	// The fresh objects are dirty; release the parent before the child
	// so neither close trips on an open ancestor.
	require.NoError(t, dir.Close())
	require.NoError(t, f.Close())

	dir, err = vol.Resolve(root, "dir")
	require.NoError(t, err)

	// Walking from the root through the open directory trips on it; the
	// walk must start from the open directory instead.
	_, err = vol.Resolve(root, "dir/leaf")
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	got, err := vol.Resolve(dir, "leaf")
	require.NoError(t, err)
	require.NoError(t, got.Close())

	require.NoError(t, dir.Close())
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestDirtyCloseWriteback(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	dir, err := vol.Create(root, "dir", true)
	require.NoError(t, err)
	f, err := vol.Create(dir, "leaf", false)
	require.NoError(t, err)
	require.True(t, f.Dirty())

	// Writing back the dirty leaf reopens its parent, which is open.
	err = f.Close()
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	// With the parent closed the writeback goes through.
	require.NoError(t, dir.Close())
	f, err = vol.OpenByNumber(f.Number())
	require.NoError(t, err)
	require.True(t, f.Dirty())
	require.NoError(t, f.Close())
	f, err = vol.OpenByNumber(f.Number())
	require.NoError(t, err)
	require.False(t, f.Dirty())
	require.NoError(t, f.Close())

	// The root is kept resident: a dirty direct child of the root writes
	// back even while the root is open.
	top, err := vol.Create(root, "top", false)
	require.NoError(t, err)
	require.NoError(t, top.Close())

	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestDataPersistence(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	f, err := vol.Create(root, "data", false)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("survives remount"), 0)
	require.NoError(t, err)
	num := f.Number()
	require.NoError(t, f.Close())
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())

	vol, err = eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
	f, err = vol.OpenByNumber(num)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, "survives remount", string(buf[:n]))
	require.NoError(t, f.Close())
	require.NoError(t, vol.Unmount())
}

func TestMediaSwapDiscardsState(t *testing.T) {
	eng, shim := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	f, err := vol.Create(root, "old", false)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())

	// Reformatting with a new serial models swapping the media. The old
	// tree must not leak into the new filesystem.
	require.NoError(t, Format(shim, 0xBEEF, "SWAPPED"))
	vol, err = eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
	require.Equal(t, uint64(0xBEEF), vol.Serial())
	require.Equal(t, "SWAPPED", vol.Label())

	root, err = vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	_, err = vol.Resolve(root, "old")
	require.True(t, errors.Is(err, ntfs.ErrNotExist))
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestUnmountWithOpenObjects(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	err = vol.Unmount()
	require.True(t, errors.Is(err, ntfs.ErrBusy))

	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}

func TestRelabel(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
	require.NoError(t, vol.Relabel("RENAMED"))
	require.Equal(t, "RENAMED", vol.Label())
	require.NoError(t, vol.Unmount())

	// The new label is on the media, not just in memory.
	vol, err = eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)
	require.Equal(t, "RENAMED", vol.Label())
	require.NoError(t, vol.Unmount())
}

func TestDelete(t *testing.T) {
	eng, _ := newTestEngine(t)
	vol, err := eng.Mount("disk0", ntfs.MountExclusive)
	require.NoError(t, err)

	root, err := vol.OpenByNumber(ntfs.RootObject)
	require.NoError(t, err)
	dir, err := vol.Create(root, "dir", true)
	require.NoError(t, err)
	f, err := vol.Create(dir, "gone", false)
	require.NoError(t, err)

	// Delete consumes both handles; afterwards neither may be used, and
	// the name no longer resolves.
	require.NoError(t, vol.Delete(dir, f, "gone"))
	dir, err = vol.OpenByNumber(dir.Number())
	require.NoError(t, err)
	_, err = vol.Resolve(dir, "gone")
	require.True(t, errors.Is(err, ntfs.ErrNotExist))

	require.NoError(t, dir.Close())
	require.NoError(t, root.Close())
	require.NoError(t, vol.Unmount())
}
