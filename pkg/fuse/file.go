package fuse

import (
	"context"

	"bazil.org/fuse"

	"github.com/example/ntfsbridge/pkg/client"
)

// File represents a regular file in the filesystem.
type File struct {
	fs     *BridgeFS
	handle client.Handle
}

// Attr sets the attributes of the file.
func (f *File) Attr(ctx context.Context, attr *fuse.Attr) error {
	info, err := f.fs.client.Stat(ctx, f.handle)
	if err != nil {
		return fuseErr(err)
	}
	fillAttr(attr, info)
	return nil
}

// ReadAll returns the whole file contents.
func (f *File) ReadAll(ctx context.Context) ([]byte, error) {
	if err := f.fs.client.SetPosition(ctx, f.handle, 0); err != nil {
		return nil, fuseErr(err)
	}
	data, err := f.fs.client.ReadAll(ctx, f.handle)
	if err != nil {
		return nil, fuseErr(err)
	}
	return data, nil
}
