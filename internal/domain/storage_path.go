package domain

import (
	"slices"
	"strings"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

// StoragePath is the logical address of an entity: a container name followed by
// zero or more segments, the last of which is the entity name.
type StoragePath struct {
	parts []string
}

// Parse builds a StoragePath from its partials, the first being the container.
func Parse(parts ...string) (StoragePath, error) {
	if len(parts) == 0 {
		return StoragePath{}, serr.NotValid("storage path needs at least a container name")
	}
	for _, p := range parts {
		if err := ValidateName(p); err != nil {
			return StoragePath{}, err
		}
	}
	return StoragePath{parts: slices.Clone(parts)}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(parts ...string) StoragePath {
	sp, err := Parse(parts...)
	if err != nil {
		panic(err)
	}
	return sp
}

// ParseStoragePath splits a slash separated path like "container/dir/name".
func ParseStoragePath(s string) (StoragePath, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return StoragePath{}, serr.NotValid("empty storage path")
	}
	return Parse(strings.Split(s, "/")...)
}

// ValidateName rejects names that would escape or alias their parent directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return serr.NotValid("storage path segment cannot be empty")
	case name == "." || name == "..":
		return serr.NotValid("storage path segment cannot be %q", name)
	case strings.ContainsRune(name, 0):
		return serr.NotValid("storage path segment cannot contain NUL")
	}
	return nil
}

func (p StoragePath) ContainerName() string {
	if len(p.parts) == 0 {
		return ""
	}
	return p.parts[0]
}

// Name is the leaf name; for a container path it is the container name.
func (p StoragePath) Name() string {
	if len(p.parts) == 0 {
		return ""
	}
	return p.parts[len(p.parts)-1]
}

// DirectoryPath returns the segments between the container and the leaf.
func (p StoragePath) DirectoryPath() []string {
	if len(p.parts) < 3 {
		return nil
	}
	return slices.Clone(p.parts[1 : len(p.parts)-1])
}

func (p StoragePath) AsList() []string {
	return slices.Clone(p.parts)
}

func (p StoragePath) Len() int {
	return len(p.parts)
}

func (p StoragePath) IsFromAContainer() bool {
	return len(p.parts) == 1
}

func (p StoragePath) IsZero() bool {
	return len(p.parts) == 0
}

// Parent returns the enclosing path, or false for a container path.
func (p StoragePath) Parent() (StoragePath, bool) {
	if len(p.parts) < 2 {
		return StoragePath{}, false
	}
	return StoragePath{parts: slices.Clone(p.parts[:len(p.parts)-1])}, true
}

func (p StoragePath) Child(name string) (StoragePath, error) {
	if err := ValidateName(name); err != nil {
		return StoragePath{}, err
	}
	parts := make([]string, 0, len(p.parts)+1)
	parts = append(parts, p.parts...)
	return StoragePath{parts: append(parts, name)}, nil
}

func (p StoragePath) Equal(other StoragePath) bool {
	return slices.Equal(p.parts, other.parts)
}

func (p StoragePath) String() string {
	return strings.Join(p.parts, "/")
}
