package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

func TestStatusFromEngine(t *testing.T) {
	testCases := []struct {
		err  error
		want efi.Status
	}{
		{nil, efi.Success},
		{ntfs.ErrNotExist, efi.NotFound},
		{ntfs.ErrExist, efi.AccessDenied},
		{ntfs.ErrPermission, efi.AccessDenied},
		{ntfs.ErrReadOnly, efi.WriteProtected},
		{ntfs.ErrNoSpace, efi.VolumeFull},
		{ntfs.ErrCorrupt, efi.VolumeCorrupted},
		{ntfs.ErrNotEmpty, efi.VolumeCorrupted},
		{ntfs.ErrBusy, efi.NoResponse},
		{ntfs.ErrNoMemory, efi.OutOfResources},
		{ntfs.ErrIO, efi.DeviceError},
		{ntfs.ErrNotSupported, efi.Unsupported},
		{errors.New("something else entirely"), efi.NoMapping},
	}
	for _, tc := range testCases {
		if got := StatusFromEngine(tc.err); got != tc.want {
			t.Errorf("StatusFromEngine(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestStatusFromEngineWrapped(t *testing.T) {
	// Translation looks through wrapping, so an error that went through
	// several layers still maps to the same status.
	err := fmt.Errorf("outer: %w", &ntfs.FSError{Op: "read", Path: "/x", Err: ntfs.ErrNoSpace})
	if got := StatusFromEngine(err); got != efi.VolumeFull {
		t.Errorf("StatusFromEngine(wrapped ErrNoSpace) = %v, want %v", got, efi.VolumeFull)
	}
}

func TestEngineFromStatus(t *testing.T) {
	testCases := []struct {
		status efi.Status
		want   error
	}{
		{efi.Success, nil},
		{efi.WarnDeleteFailure, nil},
		{efi.NotFound, ntfs.ErrNotExist},
		{efi.WriteProtected, ntfs.ErrReadOnly},
		{efi.NoMedia, ntfs.ErrNoMedium},
		{efi.CompromisedData, ntfs.ErrFault},
	}
	for _, tc := range testCases {
		if got := EngineFromStatus(tc.status); got != tc.want {
			t.Errorf("EngineFromStatus(%v) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	// Engine error -> status -> engine error must land on a sentinel that
	// maps back to the same status, even though the mapping is lossy.
	for _, e := range engineStatus {
		back := EngineFromStatus(e.status)
		if back == nil {
			t.Errorf("EngineFromStatus(%v) = nil", e.status)
			continue
		}
		if got := StatusFromEngine(back); got != e.status {
			t.Errorf("round trip of %v: got %v via %v", e.status, got, back)
		}
	}
}

func TestTranslateErrPassthrough(t *testing.T) {
	// A status produced by the bridge itself survives another translation
	// unchanged instead of degrading to NoMapping.
	orig := statusErr("open", "/x", efi.MediaChanged)
	err := translateErr("read", "/x", orig)
	if got := efi.StatusOf(err); got != efi.MediaChanged {
		t.Errorf("translateErr passthrough = %v, want %v", got, efi.MediaChanged)
	}
}
