package api

import "github.com/example/ntfsbridge/pkg/efi"

// Every response carries the host status code of the operation; transport
// level errors are reported separately through the gRPC status. A handle
// is an opaque server-assigned identifier for one open file instance.

type OpenVolumeRequest struct {
	Device string `cbor:"device"`
}

type OpenVolumeResponse struct {
	Status efi.Status `cbor:"status"`
	Handle uint64     `cbor:"handle"`
}

type OpenRequest struct {
	Handle     uint64 `cbor:"handle"`
	Name       string `cbor:"name"`
	Mode       uint64 `cbor:"mode"`
	Attributes uint64 `cbor:"attributes"`
}

type OpenResponse struct {
	Status efi.Status `cbor:"status"`
	Handle uint64     `cbor:"handle"`
}

type CloseRequest struct {
	Handle uint64 `cbor:"handle"`
}

type DeleteRequest struct {
	Handle uint64 `cbor:"handle"`
}

type FlushRequest struct {
	Handle uint64 `cbor:"handle"`
}

// StatusResponse answers operations that return nothing but a status.
type StatusResponse struct {
	Status efi.Status `cbor:"status"`
}

type ReadRequest struct {
	Handle uint64 `cbor:"handle"`
	Length uint32 `cbor:"length"`
}

type ReadResponse struct {
	Status efi.Status `cbor:"status"`
	Data   []byte     `cbor:"data,omitempty"`
	// Needed reports the buffer size a directory entry requires when
	// Status is BufferTooSmall.
	Needed uint32 `cbor:"needed,omitempty"`
}

type WriteRequest struct {
	Handle uint64 `cbor:"handle"`
	Data   []byte `cbor:"data"`
}

type WriteResponse struct {
	Status efi.Status `cbor:"status"`
	Count  uint32     `cbor:"count"`
}

type GetPositionRequest struct {
	Handle uint64 `cbor:"handle"`
}

type GetPositionResponse struct {
	Status   efi.Status `cbor:"status"`
	Position uint64     `cbor:"position"`
}

type SetPositionRequest struct {
	Handle   uint64 `cbor:"handle"`
	Position uint64 `cbor:"position"`
}

type GetInfoRequest struct {
	Handle uint64 `cbor:"handle"`
	Type   uint32 `cbor:"type"`
}

// GetInfoResponse carries the requested record in its encoded wire form:
// a FileInfo, a FileSystemInfo or a volume label, per the requested type.
type GetInfoResponse struct {
	Status efi.Status `cbor:"status"`
	Data   []byte     `cbor:"data,omitempty"`
}

type SetInfoRequest struct {
	Handle uint64 `cbor:"handle"`
	Type   uint32 `cbor:"type"`
	Data   []byte `cbor:"data"`
}

type ListVolumesRequest struct{}

type VolumeInfo struct {
	Device  string `cbor:"device"`
	Label   string `cbor:"label,omitempty"`
	Mounted bool   `cbor:"mounted"`
}

type ListVolumesResponse struct {
	Status  efi.Status   `cbor:"status"`
	Volumes []VolumeInfo `cbor:"volumes,omitempty"`
}
