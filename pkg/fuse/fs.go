// Package fuse exposes a bridge volume as a read-only FUSE filesystem.
package fuse

import (
	"errors"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/example/ntfsbridge/pkg/client"
	"github.com/example/ntfsbridge/pkg/efi"
)

// BridgeFS implements the FUSE filesystem interface over one volume.
type BridgeFS struct {
	client *client.Client
	root   client.Handle
}

// NewBridgeFS creates a filesystem rooted at an open volume root handle.
func NewBridgeFS(c *client.Client, root client.Handle) *BridgeFS {
	return &BridgeFS{client: c, root: root}
}

// Root returns the root directory of the filesystem.
func (b *BridgeFS) Root() (fs.Node, error) {
	return &Dir{fs: b, handle: b.root}, nil
}

// fuseErr maps bridge errors onto FUSE errnos.
func fuseErr(err error) error {
	var s efi.Status
	if errors.As(err, &s) {
		switch s {
		case efi.NotFound:
			return fuse.ENOENT
		case efi.AccessDenied, efi.WriteProtected, efi.SecurityViolation:
			return fuse.EPERM
		default:
			return fuse.EIO
		}
	}
	return fuse.EIO
}
