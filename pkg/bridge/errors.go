package bridge

import (
	"errors"

	"github.com/example/ntfsbridge/pkg/efi"
	"github.com/example/ntfsbridge/pkg/ntfs"
)

// engineStatus maps engine sentinel errors to host status codes. The table
// is scanned in order with errors.Is, so more specific sentinels must come
// before ones they could be confused with. Translation is pure: the same
// error always yields the same status.
var engineStatus = []struct {
	err    error
	status efi.Status
}{
	{ntfs.ErrNotExist, efi.NotFound},
	{ntfs.ErrExist, efi.AccessDenied},
	{ntfs.ErrPermission, efi.AccessDenied},
	{ntfs.ErrReadOnly, efi.WriteProtected},
	{ntfs.ErrNoSpace, efi.VolumeFull},
	{ntfs.ErrCorrupt, efi.VolumeCorrupted},
	{ntfs.ErrNotDir, efi.VolumeCorrupted},
	{ntfs.ErrNotEmpty, efi.VolumeCorrupted},
	{ntfs.ErrIsDir, efi.ProtocolError},
	{ntfs.ErrInvalid, efi.InvalidParameter},
	{ntfs.ErrNameTooLong, efi.InvalidParameter},
	{ntfs.ErrBusy, efi.NoResponse},
	{ntfs.ErrNoMemory, efi.OutOfResources},
	{ntfs.ErrNoDevice, efi.DeviceError},
	{ntfs.ErrIO, efi.DeviceError},
	{ntfs.ErrNoMedium, efi.NoMedia},
	{ntfs.ErrNotSupported, efi.Unsupported},
}

// statusEngine is the reverse direction, used when host status codes have
// to be fed back into engine callbacks. The mapping is lossy: several
// engine errors collapse onto one status, and the reverse picks a
// representative.
var statusEngine = map[efi.Status]error{
	efi.NotFound:          ntfs.ErrNotExist,
	efi.AccessDenied:      ntfs.ErrPermission,
	efi.WriteProtected:    ntfs.ErrReadOnly,
	efi.VolumeFull:        ntfs.ErrNoSpace,
	efi.VolumeCorrupted:   ntfs.ErrCorrupt,
	efi.ProtocolError:     ntfs.ErrIsDir,
	efi.InvalidParameter:  ntfs.ErrInvalid,
	efi.NoResponse:        ntfs.ErrBusy,
	efi.OutOfResources:    ntfs.ErrNoMemory,
	efi.DeviceError:       ntfs.ErrNoDevice,
	efi.NoMedia:           ntfs.ErrNoMedium,
	efi.MediaChanged:      ntfs.ErrNoMedium,
	efi.Unsupported:       ntfs.ErrNotSupported,
	efi.SecurityViolation: ntfs.ErrPermission,
	efi.EndOfFile:         ntfs.ErrInvalid,
}

// StatusFromEngine translates an engine error to a host status code.
// Errors outside the known sentinel set report NoMapping rather than
// guessing.
func StatusFromEngine(err error) efi.Status {
	if err == nil {
		return efi.Success
	}
	for _, e := range engineStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return efi.NoMapping
}

// EngineFromStatus translates a host status code back to an engine error.
// Success and warnings translate to nil; unknown codes report ErrFault.
func EngineFromStatus(s efi.Status) error {
	if !s.IsError() {
		return nil
	}
	if err, ok := statusEngine[s]; ok {
		return err
	}
	return ntfs.ErrFault
}

// translateErr wraps an engine failure into an error carrying the host
// status, with operation context. Statuses produced directly by the bridge
// pass through unchanged.
func translateErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var s efi.Status
	if errors.As(err, &s) {
		return &ntfs.FSError{Op: op, Path: path, Err: s}
	}
	return &ntfs.FSError{Op: op, Path: path, Err: StatusFromEngine(err)}
}

// statusErr returns a host status with operation context.
func statusErr(op, path string, s efi.Status) error {
	return &ntfs.FSError{Op: op, Path: path, Err: s}
}
