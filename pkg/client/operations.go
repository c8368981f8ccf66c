package client

import (
	"context"
	"errors"

	"github.com/example/ntfsbridge/pkg/api"
	"github.com/example/ntfsbridge/pkg/efi"
)

// statusToErr converts a host status into an error. Success and warnings
// are not errors.
func statusToErr(s efi.Status) error {
	if s.IsError() {
		return s
	}
	return nil
}

// ListVolumes returns the volumes the server exports.
func (c *Client) ListVolumes(ctx context.Context) ([]api.VolumeInfo, error) {
	var resp *api.ListVolumesResponse
	err := c.callWithRetry(ctx, "ListVolumes", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.ListVolumes(ctx, &api.ListVolumesRequest{})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := statusToErr(resp.Status); err != nil {
		return nil, err
	}
	return resp.Volumes, nil
}

// OpenVolume opens the root directory of a volume.
func (c *Client) OpenVolume(ctx context.Context, device string) (Handle, error) {
	var resp *api.OpenVolumeResponse
	err := c.callWithRetry(ctx, "OpenVolume", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.OpenVolume(ctx, &api.OpenVolumeRequest{Device: device})
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := statusToErr(resp.Status); err != nil {
		return 0, err
	}
	return Handle(resp.Handle), nil
}

// Open resolves name relative to an open directory.
func (c *Client) Open(ctx context.Context, dir Handle, name string, mode efi.OpenMode, attr uint64) (Handle, error) {
	var resp *api.OpenResponse
	err := c.callWithRetry(ctx, "Open", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.Open(ctx, &api.OpenRequest{
			Handle: uint64(dir), Name: name, Mode: uint64(mode), Attributes: attr,
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	if err := statusToErr(resp.Status); err != nil {
		return 0, err
	}
	return Handle(resp.Handle), nil
}

// CloseHandle releases a handle. It is not retried: the server drops the
// handle on the first delivery, and a retry would hit a dead handle.
func (c *Client) CloseHandle(ctx context.Context, h Handle) error {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	resp, err := c.fsc.Close(callCtx, &api.CloseRequest{Handle: uint64(h)})
	if err != nil {
		return err
	}
	return statusToErr(resp.Status)
}

// Delete closes the handle and removes the file. The returned status is
// either Success or WarnDeleteFailure. Like Close, it is not retried.
func (c *Client) Delete(ctx context.Context, h Handle) (efi.Status, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	resp, err := c.fsc.Delete(callCtx, &api.DeleteRequest{Handle: uint64(h)})
	if err != nil {
		return efi.DeviceError, err
	}
	return resp.Status, statusToErr(resp.Status)
}

// Read reads up to n bytes from the current position. A short or empty
// result means the end of the file was reached.
func (c *Client) Read(ctx context.Context, h Handle, n int) ([]byte, error) {
	var resp *api.ReadResponse
	err := c.callWithRetry(ctx, "Read", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.Read(ctx, &api.ReadRequest{Handle: uint64(h), Length: uint32(n)})
		return err
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == efi.BufferTooSmall {
		return nil, &efi.SizeError{Needed: int(resp.Needed)}
	}
	if err := statusToErr(resp.Status); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// ReadAll reads a file from the current position to its end.
func (c *Client) ReadAll(ctx context.Context, h Handle) ([]byte, error) {
	var out []byte
	for {
		chunk, err := c.Read(ctx, h, 64*1024)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return out, nil
		}
		out = append(out, chunk...)
	}
}

// Write writes data at the current position.
func (c *Client) Write(ctx context.Context, h Handle, data []byte) (int, error) {
	var resp *api.WriteResponse
	err := c.callWithRetry(ctx, "Write", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.Write(ctx, &api.WriteRequest{Handle: uint64(h), Data: data})
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(resp.Count), statusToErr(resp.Status)
}

// GetPosition returns the current file position.
func (c *Client) GetPosition(ctx context.Context, h Handle) (uint64, error) {
	var resp *api.GetPositionResponse
	err := c.callWithRetry(ctx, "GetPosition", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.GetPosition(ctx, &api.GetPositionRequest{Handle: uint64(h)})
		return err
	})
	if err != nil {
		return 0, err
	}
	return resp.Position, statusToErr(resp.Status)
}

// SetPosition moves the file position.
func (c *Client) SetPosition(ctx context.Context, h Handle, pos uint64) error {
	var resp *api.StatusResponse
	err := c.callWithRetry(ctx, "SetPosition", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.SetPosition(ctx, &api.SetPositionRequest{Handle: uint64(h), Position: pos})
		return err
	})
	if err != nil {
		return err
	}
	return statusToErr(resp.Status)
}

func (c *Client) getInfo(ctx context.Context, h Handle, t efi.InfoType) ([]byte, error) {
	var resp *api.GetInfoResponse
	err := c.callWithRetry(ctx, "GetInfo", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.GetInfo(ctx, &api.GetInfoRequest{Handle: uint64(h), Type: uint32(t)})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := statusToErr(resp.Status); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Stat returns the file's metadata record.
func (c *Client) Stat(ctx context.Context, h Handle) (*efi.FileInfo, error) {
	data, err := c.getInfo(ctx, h, efi.InfoFile)
	if err != nil {
		return nil, err
	}
	return efi.DecodeFileInfo(data)
}

// FileSystemInfo returns the volume's metadata record.
func (c *Client) FileSystemInfo(ctx context.Context, h Handle) (*efi.FileSystemInfo, error) {
	data, err := c.getInfo(ctx, h, efi.InfoFileSystem)
	if err != nil {
		return nil, err
	}
	return efi.DecodeFileSystemInfo(data)
}

// VolumeLabel returns the volume label.
func (c *Client) VolumeLabel(ctx context.Context, h Handle) (string, error) {
	data, err := c.getInfo(ctx, h, efi.InfoVolumeLabel)
	if err != nil {
		return "", err
	}
	return efi.DecodeLabel(data)
}

// SetFileInfo applies a metadata record to a file.
func (c *Client) SetFileInfo(ctx context.Context, h Handle, info *efi.FileInfo) error {
	data := make([]byte, info.EncodedSize())
	info.Encode(data)
	var resp *api.StatusResponse
	err := c.callWithRetry(ctx, "SetInfo", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.SetInfo(ctx, &api.SetInfoRequest{
			Handle: uint64(h), Type: uint32(efi.InfoFile), Data: data,
		})
		return err
	})
	if err != nil {
		return err
	}
	return statusToErr(resp.Status)
}

// SetVolumeLabel relabels the volume.
func (c *Client) SetVolumeLabel(ctx context.Context, h Handle, label string) error {
	data := make([]byte, efi.LabelSize(label))
	efi.EncodeLabel(data, label)
	var resp *api.StatusResponse
	err := c.callWithRetry(ctx, "SetInfo", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.SetInfo(ctx, &api.SetInfoRequest{
			Handle: uint64(h), Type: uint32(efi.InfoVolumeLabel), Data: data,
		})
		return err
	})
	if err != nil {
		return err
	}
	return statusToErr(resp.Status)
}

// Flush pushes pending data to the media.
func (c *Client) Flush(ctx context.Context, h Handle) error {
	var resp *api.StatusResponse
	err := c.callWithRetry(ctx, "Flush", func(ctx context.Context) error {
		var err error
		resp, err = c.fsc.Flush(ctx, &api.FlushRequest{Handle: uint64(h)})
		return err
	})
	if err != nil {
		return err
	}
	return statusToErr(resp.Status)
}

// ReadDir lists an open directory from its current position to the end.
func (c *Client) ReadDir(ctx context.Context, dir Handle) ([]*efi.FileInfo, error) {
	var entries []*efi.FileInfo
	size := 4096
	for {
		data, err := c.Read(ctx, dir, size)
		if err != nil {
			var se *efi.SizeError
			if errors.As(err, &se) {
				size = se.Needed
				continue
			}
			return nil, err
		}
		if len(data) == 0 {
			return entries, nil
		}
		info, err := efi.DecodeFileInfo(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, info)
	}
}
