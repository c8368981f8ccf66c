package efi

import (
	"encoding/binary"
	"unicode/utf16"
)

var le = binary.LittleEndian

// OpenMode selects how a file is opened.
type OpenMode uint64

const (
	ModeRead   OpenMode = 0x0000000000000001
	ModeWrite  OpenMode = 0x0000000000000002
	ModeCreate OpenMode = 0x8000000000000000
)

// File attribute bits, as carried in FileInfo.Attribute and in the
// attribute argument of a create.
const (
	FileReadOnly  uint64 = 0x01
	FileHidden    uint64 = 0x02
	FileSystem    uint64 = 0x04
	FileReserved  uint64 = 0x08
	FileDirectory uint64 = 0x10
	FileArchive   uint64 = 0x20
	FileValidAttr uint64 = 0x37
)

// InfoType selects which record GetInfo and SetInfo operate on. It stands
// in for the protocol's information type GUIDs.
type InfoType uint32

const (
	InfoFile InfoType = iota + 1
	InfoFileSystem
	InfoVolumeLabel
)

func (t InfoType) String() string {
	switch t {
	case InfoFile:
		return "file info"
	case InfoFileSystem:
		return "file system info"
	case InfoVolumeLabel:
		return "volume label"
	default:
		return "unknown info type"
	}
}

// FileInfoHeaderSize is the fixed portion of an encoded FileInfo, up to
// but not including the name characters.
const FileInfoHeaderSize = 80

// FileInfo is the per-file metadata record. On the wire it is the fixed
// header followed by the NUL-terminated UTF-16 name.
type FileInfo struct {
	FileSize     uint64
	PhysicalSize uint64
	CreateTime   Time
	AccessTime   Time
	ModifyTime   Time
	Attribute    uint64
	FileName     string
}

// FileInfoSize returns the encoded size of a FileInfo carrying name.
func FileInfoSize(name string) int {
	return FileInfoHeaderSize + 2*(len(utf16.Encode([]rune(name)))+1)
}

// EncodedSize returns the number of bytes Encode will produce.
func (i *FileInfo) EncodedSize() int { return FileInfoSize(i.FileName) }

// Encode serializes the record into p, which must be at least EncodedSize
// bytes long, and returns the number of bytes written.
func (i *FileInfo) Encode(p []byte) int {
	size := i.EncodedSize()
	le.PutUint64(p[0:], uint64(size))
	le.PutUint64(p[8:], i.FileSize)
	le.PutUint64(p[16:], i.PhysicalSize)
	i.CreateTime.encode(p[24:])
	i.AccessTime.encode(p[40:])
	i.ModifyTime.encode(p[56:])
	le.PutUint64(p[72:], i.Attribute)
	putUTF16(p[FileInfoHeaderSize:], i.FileName)
	return size
}

// DecodeFileInfo parses an encoded FileInfo record.
func DecodeFileInfo(p []byte) (*FileInfo, error) {
	if len(p) < FileInfoHeaderSize+2 {
		return nil, &SizeError{Needed: FileInfoHeaderSize + 2}
	}
	size := int(le.Uint64(p[0:]))
	if size < FileInfoHeaderSize+2 || size > len(p) {
		return nil, InvalidParameter
	}
	name, err := getUTF16(p[FileInfoHeaderSize:size])
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		FileSize:     le.Uint64(p[8:]),
		PhysicalSize: le.Uint64(p[16:]),
		CreateTime:   decodeTime(p[24:]),
		AccessTime:   decodeTime(p[40:]),
		ModifyTime:   decodeTime(p[56:]),
		Attribute:    le.Uint64(p[72:]),
		FileName:     name,
	}, nil
}

// FileSystemInfoHeaderSize is the fixed portion of an encoded
// FileSystemInfo, up to but not including the label characters.
const FileSystemInfoHeaderSize = 36

// FileSystemInfo is the per-volume metadata record.
type FileSystemInfo struct {
	ReadOnly   bool
	VolumeSize uint64
	FreeSpace  uint64
	BlockSize  uint32
	Label      string
}

// EncodedSize returns the number of bytes Encode will produce.
func (i *FileSystemInfo) EncodedSize() int {
	return FileSystemInfoHeaderSize + 2*(len(utf16.Encode([]rune(i.Label)))+1)
}

// Encode serializes the record into p, which must be at least EncodedSize
// bytes long, and returns the number of bytes written.
func (i *FileSystemInfo) Encode(p []byte) int {
	size := i.EncodedSize()
	le.PutUint64(p[0:], uint64(size))
	for k := 8; k < 16; k++ {
		p[k] = 0
	}
	if i.ReadOnly {
		p[8] = 1
	}
	le.PutUint64(p[16:], i.VolumeSize)
	le.PutUint64(p[24:], i.FreeSpace)
	le.PutUint32(p[32:], i.BlockSize)
	putUTF16(p[FileSystemInfoHeaderSize:], i.Label)
	return size
}

// DecodeFileSystemInfo parses an encoded FileSystemInfo record.
func DecodeFileSystemInfo(p []byte) (*FileSystemInfo, error) {
	if len(p) < FileSystemInfoHeaderSize+2 {
		return nil, &SizeError{Needed: FileSystemInfoHeaderSize + 2}
	}
	size := int(le.Uint64(p[0:]))
	if size < FileSystemInfoHeaderSize+2 || size > len(p) {
		return nil, InvalidParameter
	}
	label, err := getUTF16(p[FileSystemInfoHeaderSize:size])
	if err != nil {
		return nil, err
	}
	return &FileSystemInfo{
		ReadOnly:   p[8] != 0,
		VolumeSize: le.Uint64(p[16:]),
		FreeSpace:  le.Uint64(p[24:]),
		BlockSize:  le.Uint32(p[32:]),
		Label:      label,
	}, nil
}

// LabelSize returns the encoded size of a volume label record, which is
// just the NUL-terminated UTF-16 string.
func LabelSize(label string) int {
	return 2 * (len(utf16.Encode([]rune(label))) + 1)
}

// EncodeLabel serializes a volume label record into p and returns the
// number of bytes written.
func EncodeLabel(p []byte, label string) int {
	putUTF16(p, label)
	return LabelSize(label)
}

// DecodeLabel parses a volume label record.
func DecodeLabel(p []byte) (string, error) {
	return getUTF16(p)
}

func putUTF16(p []byte, s string) {
	u := utf16.Encode([]rune(s))
	for k, c := range u {
		le.PutUint16(p[2*k:], c)
	}
	le.PutUint16(p[2*len(u):], 0)
}

func getUTF16(p []byte) (string, error) {
	if len(p) < 2 || len(p)%2 != 0 {
		return "", InvalidParameter
	}
	u := make([]uint16, 0, len(p)/2)
	for k := 0; k+1 < len(p); k += 2 {
		c := le.Uint16(p[k:])
		if c == 0 {
			return string(utf16.Decode(u)), nil
		}
		u = append(u, c)
	}
	return "", InvalidParameter
}
