package fuse

import (
	"context"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/ntfsbridge/pkg/client"
	"github.com/example/ntfsbridge/pkg/efi"
)

// Dir represents a directory in the filesystem. It keeps its bridge handle
// open for its lifetime.
type Dir struct {
	fs     *BridgeFS
	handle client.Handle
}

// Attr sets the attributes of the directory.
func (d *Dir) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := d.fs.client.Stat(ctx, d.handle)
	if err != nil {
		return fuseErr(err)
	}
	fillAttr(attr, info)
	return nil
}

// Lookup opens a specific entry in the directory.
func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	h, err := d.fs.client.Open(ctx, d.handle, name, efi.ModeRead, 0)
	if err != nil {
		return nil, fuseErr(err)
	}
	info, err := d.fs.client.Stat(ctx, h)
	if err != nil {
		d.fs.client.CloseHandle(ctx, h)
		return nil, fuseErr(err)
	}
	if info.Attribute&efi.FileDirectory != 0 {
		return &Dir{fs: d.fs, handle: h}, nil
	}
	return &File{fs: d.fs, handle: h}, nil
}

// ReadDirAll returns all entries in the directory.
func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	if err := d.fs.client.SetPosition(ctx, d.handle, 0); err != nil {
		return nil, fuseErr(err)
	}
	infos, err := d.fs.client.ReadDir(ctx, d.handle)
	if err != nil {
		return nil, fuseErr(err)
	}
	entries := make([]fuse.Dirent, 0, len(infos))
	for _, info := range infos {
		t := fuse.DT_File
		if info.Attribute&efi.FileDirectory != 0 {
			t = fuse.DT_Dir
		}
		entries = append(entries, fuse.Dirent{Name: info.FileName, Type: t})
	}
	return entries, nil
}

func fillAttr(attr *fuse.Attr, info *efi.FileInfo) {
	attr.Size = info.FileSize
	attr.Mtime = info.ModifyTime.Std()
	attr.Ctime = info.CreateTime.Std()
	attr.Atime = info.AccessTime.Std()
	if info.Attribute&efi.FileDirectory != 0 {
		attr.Mode = os.ModeDir | 0o555
	} else {
		attr.Mode = 0o444
	}
}
