package server

import (
	"context"
	"testing"

	"github.com/example/ntfsbridge/pkg/api"
	"github.com/example/ntfsbridge/pkg/blockdev"
	"github.com/example/ntfsbridge/pkg/bridge"
	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs/memfs"
)

// newTestServer builds a server over a single formatted in-memory volume.
func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	shim := blockdev.NewShim(blockdev.NewMemDevice(1<<20), 0, false)
	if err := memfs.Format(shim, 0xABCD, "SRVVOL"); err != nil {
		t.Fatalf("Failed to format device: %v", err)
	}
	registry := bridge.NewRegistry(bridge.Config{ForceReadOnly: config.ForceReadOnly})
	registry.SetEngine(memfs.New(registry))
	vol := registry.NewVolume("/dev/test0", shim)

	server, err := NewServer(config, []*bridge.Volume{vol})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return server
}

// openTestVolume opens the served volume and returns the root handle.
func openTestVolume(t *testing.T, s *Server) uint64 {
	t.Helper()
	resp, err := s.OpenVolume(context.Background(), &api.OpenVolumeRequest{Device: "/dev/test0"})
	if err != nil {
		t.Fatalf("OpenVolume transport error: %v", err)
	}
	if resp.Status != efi.Success {
		t.Fatalf("OpenVolume status = %v", resp.Status)
	}
	return resp.Handle
}

func TestNewServerDuplicateDevice(t *testing.T) {
	shim := blockdev.NewShim(blockdev.NewMemDevice(1<<20), 0, false)
	registry := bridge.NewRegistry(bridge.Config{})
	registry.SetEngine(memfs.New(registry))
	v1 := registry.NewVolume("/dev/dup", shim)
	v2 := registry.NewVolume("/dev/dup", shim)

	if _, err := NewServer(DefaultConfig(), []*bridge.Volume{v1, v2}); err == nil {
		t.Fatal("NewServer accepted duplicate device paths")
	}
}

func TestOpenVolumeRPC(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	resp, err := s.OpenVolume(ctx, &api.OpenVolumeRequest{Device: "/dev/nosuch"})
	if err != nil {
		t.Fatalf("OpenVolume transport error: %v", err)
	}
	if resp.Status != efi.NotFound {
		t.Errorf("unknown device status = %v, want NotFound", resp.Status)
	}

	h := openTestVolume(t, s)

	lv, err := s.ListVolumes(ctx, &api.ListVolumesRequest{})
	if err != nil {
		t.Fatalf("ListVolumes transport error: %v", err)
	}
	if len(lv.Volumes) != 1 {
		t.Fatalf("ListVolumes returned %d volumes, want 1", len(lv.Volumes))
	}
	if v := lv.Volumes[0]; v.Device != "/dev/test0" || !v.Mounted || v.Label != "SRVVOL" {
		t.Errorf("unexpected volume info: %+v", v)
	}

	cr, err := s.Close(ctx, &api.CloseRequest{Handle: h})
	if err != nil || cr.Status != efi.Success {
		t.Fatalf("Close = %v, %v", cr, err)
	}
}

func TestInvalidHandle(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	if resp, _ := s.Read(ctx, &api.ReadRequest{Handle: 999, Length: 16}); resp.Status != efi.InvalidParameter {
		t.Errorf("Read with bad handle = %v, want InvalidParameter", resp.Status)
	}
	if resp, _ := s.Write(ctx, &api.WriteRequest{Handle: 999, Data: []byte("x")}); resp.Status != efi.InvalidParameter {
		t.Errorf("Write with bad handle = %v, want InvalidParameter", resp.Status)
	}
	if resp, _ := s.Close(ctx, &api.CloseRequest{Handle: 999}); resp.Status != efi.InvalidParameter {
		t.Errorf("Close with bad handle = %v, want InvalidParameter", resp.Status)
	}
	if resp, _ := s.GetInfo(ctx, &api.GetInfoRequest{Handle: 999, Type: uint32(efi.InfoFile)}); resp.Status != efi.InvalidParameter {
		t.Errorf("GetInfo with bad handle = %v, want InvalidParameter", resp.Status)
	}
}

func TestFileRoundTrip(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	root := openTestVolume(t, s)

	or, err := s.Open(ctx, &api.OpenRequest{
		Handle: root,
		Name:   "kernel.img",
		Mode:   uint64(efi.ModeRead | efi.ModeWrite | efi.ModeCreate),
	})
	if err != nil {
		t.Fatalf("Open transport error: %v", err)
	}
	if or.Status != efi.Success {
		t.Fatalf("Open status = %v", or.Status)
	}
	f := or.Handle

	content := []byte("vmlinuz payload")
	wr, _ := s.Write(ctx, &api.WriteRequest{Handle: f, Data: content})
	if wr.Status != efi.Success || int(wr.Count) != len(content) {
		t.Fatalf("Write = %v count %d", wr.Status, wr.Count)
	}

	if sr, _ := s.SetPosition(ctx, &api.SetPositionRequest{Handle: f, Position: 0}); sr.Status != efi.Success {
		t.Fatalf("SetPosition status = %v", sr.Status)
	}
	rr, _ := s.Read(ctx, &api.ReadRequest{Handle: f, Length: 64})
	if rr.Status != efi.Success || string(rr.Data) != string(content) {
		t.Fatalf("Read = %v %q", rr.Status, rr.Data)
	}

	gp, _ := s.GetPosition(ctx, &api.GetPositionRequest{Handle: f})
	if gp.Status != efi.Success || gp.Position != uint64(len(content)) {
		t.Errorf("GetPosition = %v %d", gp.Status, gp.Position)
	}

	gi, _ := s.GetInfo(ctx, &api.GetInfoRequest{Handle: f, Type: uint32(efi.InfoFile)})
	if gi.Status != efi.Success {
		t.Fatalf("GetInfo status = %v", gi.Status)
	}
	info, derr := efi.DecodeFileInfo(gi.Data)
	if derr != nil {
		t.Fatalf("bad FileInfo record: %v", derr)
	}
	if info.FileName != "kernel.img" || info.FileSize != uint64(len(content)) {
		t.Errorf("FileInfo = %q size %d", info.FileName, info.FileSize)
	}

	if fr, _ := s.Flush(ctx, &api.FlushRequest{Handle: f}); fr.Status != efi.Success {
		t.Errorf("Flush status = %v", fr.Status)
	}

	s.Close(ctx, &api.CloseRequest{Handle: f})
	s.Close(ctx, &api.CloseRequest{Handle: root})
}

func TestWriteTooLarge(t *testing.T) {
	config := DefaultConfig()
	config.MaxWriteSize = 8
	s := newTestServer(t, config)
	ctx := context.Background()
	root := openTestVolume(t, s)

	or, _ := s.Open(ctx, &api.OpenRequest{
		Handle: root,
		Name:   "big",
		Mode:   uint64(efi.ModeRead | efi.ModeWrite | efi.ModeCreate),
	})
	if or.Status != efi.Success {
		t.Fatalf("Open status = %v", or.Status)
	}

	wr, _ := s.Write(ctx, &api.WriteRequest{Handle: or.Handle, Data: make([]byte, 9)})
	if wr.Status != efi.BadBufferSize {
		t.Errorf("oversized Write = %v, want BadBufferSize", wr.Status)
	}

	s.Close(ctx, &api.CloseRequest{Handle: or.Handle})
	s.Close(ctx, &api.CloseRequest{Handle: root})
}

func TestDeleteRPC(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	root := openTestVolume(t, s)

	or, _ := s.Open(ctx, &api.OpenRequest{
		Handle: root,
		Name:   "scratch",
		Mode:   uint64(efi.ModeRead | efi.ModeWrite | efi.ModeCreate),
	})
	if or.Status != efi.Success {
		t.Fatalf("Open status = %v", or.Status)
	}

	dr, _ := s.Delete(ctx, &api.DeleteRequest{Handle: or.Handle})
	if dr.Status != efi.Success {
		t.Fatalf("Delete status = %v", dr.Status)
	}

	// The handle went away with the delete.
	if cr, _ := s.Close(ctx, &api.CloseRequest{Handle: or.Handle}); cr.Status != efi.InvalidParameter {
		t.Errorf("Close after Delete = %v, want InvalidParameter", cr.Status)
	}
	// And so did the file.
	or, _ = s.Open(ctx, &api.OpenRequest{Handle: root, Name: "scratch", Mode: uint64(efi.ModeRead)})
	if or.Status != efi.NotFound {
		t.Errorf("Open after Delete = %v, want NotFound", or.Status)
	}

	s.Close(ctx, &api.CloseRequest{Handle: root})
}

func TestDirectoryReadRPC(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	root := openTestVolume(t, s)

	for _, name := range []string{"one", "two"} {
		or, _ := s.Open(ctx, &api.OpenRequest{
			Handle: root,
			Name:   name,
			Mode:   uint64(efi.ModeRead | efi.ModeWrite | efi.ModeCreate),
		})
		if or.Status != efi.Success {
			t.Fatalf("Open %q status = %v", name, or.Status)
		}
		s.Close(ctx, &api.CloseRequest{Handle: or.Handle})
	}

	// A too-small buffer reports the record size instead of data.
	rr, _ := s.Read(ctx, &api.ReadRequest{Handle: root, Length: 8})
	if rr.Status != efi.BufferTooSmall {
		t.Fatalf("short directory read = %v, want BufferTooSmall", rr.Status)
	}
	if rr.Needed != uint32(efi.FileInfoSize("one")) {
		t.Errorf("Needed = %d, want %d", rr.Needed, efi.FileInfoSize("one"))
	}

	var names []string
	for {
		rr, _ = s.Read(ctx, &api.ReadRequest{Handle: root, Length: 512})
		if rr.Status != efi.Success {
			t.Fatalf("directory read = %v", rr.Status)
		}
		if len(rr.Data) == 0 {
			break
		}
		info, derr := efi.DecodeFileInfo(rr.Data)
		if derr != nil {
			t.Fatalf("bad directory record: %v", derr)
		}
		names = append(names, info.FileName)
	}
	if len(names) != 2 || names[0] != "one" || names[1] != "two" {
		t.Errorf("listing = %v, want [one two]", names)
	}

	s.Close(ctx, &api.CloseRequest{Handle: root})
}

func TestInfoRPC(t *testing.T) {
	s := newTestServer(t, DefaultConfig())
	ctx := context.Background()
	root := openTestVolume(t, s)

	gi, _ := s.GetInfo(ctx, &api.GetInfoRequest{Handle: root, Type: uint32(efi.InfoFileSystem)})
	if gi.Status != efi.Success {
		t.Fatalf("GetInfo(fs) status = %v", gi.Status)
	}
	fsi, derr := efi.DecodeFileSystemInfo(gi.Data)
	if derr != nil {
		t.Fatalf("bad FileSystemInfo record: %v", derr)
	}
	if fsi.Label != "SRVVOL" || fsi.VolumeSize != 1<<20 {
		t.Errorf("FileSystemInfo = %+v", fsi)
	}

	// Relabel through the label record.
	data := make([]byte, efi.LabelSize("NEWLBL"))
	efi.EncodeLabel(data, "NEWLBL")
	si, _ := s.SetInfo(ctx, &api.SetInfoRequest{Handle: root, Type: uint32(efi.InfoVolumeLabel), Data: data})
	if si.Status != efi.Success {
		t.Fatalf("SetInfo(label) status = %v", si.Status)
	}
	gi, _ = s.GetInfo(ctx, &api.GetInfoRequest{Handle: root, Type: uint32(efi.InfoVolumeLabel)})
	if gi.Status != efi.Success {
		t.Fatalf("GetInfo(label) status = %v", gi.Status)
	}
	if label, _ := efi.DecodeLabel(gi.Data); label != "NEWLBL" {
		t.Errorf("label = %q, want NEWLBL", label)
	}

	// Unknown info types are refused.
	gi, _ = s.GetInfo(ctx, &api.GetInfoRequest{Handle: root, Type: 99})
	if gi.Status != efi.Unsupported {
		t.Errorf("GetInfo(99) = %v, want Unsupported", gi.Status)
	}

	s.Close(ctx, &api.CloseRequest{Handle: root})
}

func TestReadOnlyRPC(t *testing.T) {
	config := DefaultConfig()
	config.ForceReadOnly = true
	s := newTestServer(t, config)
	ctx := context.Background()
	root := openTestVolume(t, s)

	or, _ := s.Open(ctx, &api.OpenRequest{
		Handle: root,
		Name:   "x",
		Mode:   uint64(efi.ModeRead | efi.ModeWrite | efi.ModeCreate),
	})
	if or.Status != efi.WriteProtected {
		t.Errorf("create on read-only volume = %v, want WriteProtected", or.Status)
	}

	dr, _ := s.Delete(ctx, &api.DeleteRequest{Handle: root})
	if dr.Status != efi.WarnDeleteFailure {
		t.Errorf("Delete on read-only volume = %v, want WarnDeleteFailure", dr.Status)
	}
}
