// Package efi holds the host-facing status codes and wire records of the
// firmware file protocol: status values, open modes, attribute bits and the
// fixed-layout info structures exchanged through GetInfo and directory
// reads.
package efi

import (
	"errors"
	"fmt"
)

// Status is a firmware status code. Error codes have the high bit set;
// warning codes are small positive values; zero is success. Status
// implements error so bridge operations can return a code directly.
type Status uint64

const errBit Status = 1 << 63

const Success Status = 0

// Error codes.
const (
	LoadError         Status = errBit | 1
	InvalidParameter  Status = errBit | 2
	Unsupported       Status = errBit | 3
	BadBufferSize     Status = errBit | 4
	BufferTooSmall    Status = errBit | 5
	NotReady          Status = errBit | 6
	DeviceError       Status = errBit | 7
	WriteProtected    Status = errBit | 8
	OutOfResources    Status = errBit | 9
	VolumeCorrupted   Status = errBit | 10
	VolumeFull        Status = errBit | 11
	NoMedia           Status = errBit | 12
	MediaChanged      Status = errBit | 13
	NotFound          Status = errBit | 14
	AccessDenied      Status = errBit | 15
	NoResponse        Status = errBit | 16
	NoMapping         Status = errBit | 17
	Timeout           Status = errBit | 18
	NotStarted        Status = errBit | 19
	AlreadyStarted    Status = errBit | 20
	Aborted           Status = errBit | 21
	ProtocolError     Status = errBit | 24
	SecurityViolation Status = errBit | 26
	CompromisedData   Status = errBit | 33
	EndOfFile         Status = errBit | 31
)

// Warning codes. These report partial success and do not set the error bit.
const (
	WarnUnknownGlyph   Status = 1
	WarnDeleteFailure  Status = 2
	WarnWriteFailure   Status = 3
	WarnBufferTooSmall Status = 4
)

var statusNames = map[Status]string{
	Success:           "success",
	LoadError:         "load error",
	InvalidParameter:  "invalid parameter",
	Unsupported:       "unsupported",
	BadBufferSize:     "bad buffer size",
	BufferTooSmall:    "buffer too small",
	NotReady:          "not ready",
	DeviceError:       "device error",
	WriteProtected:    "write protected",
	OutOfResources:    "out of resources",
	VolumeCorrupted:   "volume corrupted",
	VolumeFull:        "volume full",
	NoMedia:           "no media",
	MediaChanged:      "media changed",
	NotFound:          "not found",
	AccessDenied:      "access denied",
	NoResponse:        "no response",
	NoMapping:         "no mapping",
	Timeout:           "timeout",
	NotStarted:        "not started",
	AlreadyStarted:    "already started",
	Aborted:           "aborted",
	ProtocolError:     "protocol error",
	SecurityViolation: "security violation",
	CompromisedData:   "compromised data",
	EndOfFile:         "end of file",
	WarnDeleteFailure: "warning: delete failure",
	WarnWriteFailure:  "warning: write failure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status %#x", uint64(s))
}

func (s Status) Error() string { return s.String() }

// IsError reports whether s is a hard error code.
func (s Status) IsError() bool { return s&errBit != 0 }

// IsWarning reports whether s is a warning code.
func (s Status) IsWarning() bool { return s != Success && s&errBit == 0 }

// SizeError reports, alongside BufferTooSmall, the buffer length the
// operation needs.
type SizeError struct {
	Needed int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%v: %d bytes required", BufferTooSmall, e.Needed)
}

func (e *SizeError) Is(target error) bool { return target == BufferTooSmall }

// StatusOf extracts the Status carried in err's chain. A nil error is
// Success; an error with no Status anywhere in its chain reports
// DeviceError.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	var se *SizeError
	if errors.As(err, &se) {
		return BufferTooSmall
	}
	return DeviceError
}
