package domain

import "time"

// EntityKind identifies what a storage path points at.
type EntityKind int

const (
	KindUnknown EntityKind = iota
	KindContainer
	KindDirectory
	KindBinary
)

func (k EntityKind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindDirectory:
		return "directory"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Resource is anything a listing can yield.
type Resource interface {
	StoragePath() StoragePath
	IsDirectory() bool
}

type Container struct {
	Path StoragePath
}

func (c *Container) StoragePath() StoragePath { return c.Path }
func (c *Container) IsDirectory() bool        { return true }

type Directory struct {
	Path StoragePath
}

func (d *Directory) StoragePath() StoragePath { return d.Path }
func (d *Directory) IsDirectory() bool        { return true }

// Binary is a file entity. A reference binary has its bytes outside managed
// storage and only a manifest record inside it.
type Binary struct {
	Path          StoragePath
	Content       ContentPayload
	SizeInBytes   int64
	IsReference   bool
	ContentDigest map[string]string
}

func (b *Binary) StoragePath() StoragePath { return b.Path }
func (b *Binary) IsDirectory() bool        { return false }

// ShallowFile is one manifest line describing an externally stored binary.
type ShallowFile struct {
	UUID              string `json:"uuid,omitempty"`
	Name              string `json:"name"`
	Location          string `json:"location"`
	Size              int64  `json:"size"`
	Checksum          string `json:"checksum,omitempty"`
	ChecksumAlgorithm string `json:"checksumAlgorithm,omitempty"`
}

// BinaryVersion is an immutable snapshot recorded in the history root.
type BinaryVersion struct {
	ID          string            `json:"id"`
	CreatedDate time.Time         `json:"createdDate"`
	Properties  map[string]string `json:"properties,omitempty"`
	Binary      *Binary           `json:"-"`
}
