// Package translate converts between logical storage paths and physical paths
// for containers that may be scattered.
package translate

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
	"github.com/ETERNA-earkiv/ETERNA/internal/scatter"
	"github.com/ETERNA-earkiv/ETERNA/internal/storage/fsutil"
)

const (
	// VersionSeparator joins a leaf name and a version id in the history tree.
	VersionSeparator = "_"
	MetadataSuffix   = ".json"
)

// Translator maps storage paths to disk and back. Containers absent from the
// registry use the plain layout of package fsutil.
type Translator struct {
	registry *scatter.Registry
}

func New(registry *scatter.Registry) *Translator {
	return &Translator{registry: registry}
}

// Strategy returns the scatter strategy of container, if any.
func (t *Translator) Strategy(container string) (scatter.Strategy, bool) {
	return t.registry.Lookup(container)
}

// CheckedEntityPath resolves sp under base. For a scattered container the
// first segment after the container is the id:
//
//	container/id/rest... -> base/container/<scatter(id)>/rest...
//
// Ids the container's validity pattern rejects use the plain layout. A valid
// id the rule cannot slice has no location at all and is ErrRequestNotValid.
func (t *Translator) CheckedEntityPath(base string, sp domain.StoragePath) (string, error) {
	parts := sp.AsList()
	if len(parts) > 1 {
		if s, ok := t.registry.Lookup(parts[0]); ok && s.IsValidName(parts[1]) {
			segs, err := s.Segments(fsutil.EncodePathPartial(parts[1]))
			if err != nil {
				return "", serr.NotValid("id %q does not fit the scatter rule of container %s: %v", parts[1], parts[0], err)
			}
			elems := make([]string, 0, len(parts)+len(segs)+1)
			elems = append(elems, base, fsutil.EncodePathPartial(parts[0]))
			elems = append(elems, segs...)
			for _, p := range parts[2:] {
				elems = append(elems, fsutil.EncodePathPartial(p))
			}
			return filepath.Join(elems...), nil
		}
	}
	return fsutil.EntityPath(base, sp), nil
}

// EntityPath is CheckedEntityPath for lookups. A path that cannot be scattered
// resolves to its plain location, where nothing is ever written.
func (t *Translator) EntityPath(base string, sp domain.StoragePath) string {
	p, err := t.CheckedEntityPath(base, sp)
	if err != nil {
		return fsutil.EntityPath(base, sp)
	}
	return p
}

// VersionPath is EntityPath with the version fused onto the last segment.
func (t *Translator) VersionPath(base string, sp domain.StoragePath, version string) (string, error) {
	if err := ValidateVersionID(version); err != nil {
		return "", err
	}
	return t.EntityPath(base, sp) + VersionSeparator + version, nil
}

// ValidateVersionID rejects ids that would make version leaf names ambiguous.
func ValidateVersionID(version string) error {
	if version == "" {
		return serr.NotValid("version id cannot be empty")
	}
	if strings.Contains(version, VersionSeparator) {
		return serr.NotValid("cannot use %q in version %s", VersionSeparator, version)
	}
	return domain.ValidateName(version)
}

// StoragePath maps a physical path under base back to its storage path.
func (t *Translator) StoragePath(base, physical string) (domain.StoragePath, error) {
	rel, err := filepath.Rel(base, physical)
	if err != nil {
		return domain.StoragePath{}, serr.NotValid("%s is not under %s", physical, base)
	}
	return t.RelativeStoragePath(rel)
}

// RelativeStoragePath inverts EntityPath for a path relative to the base.
//
// The scatter segments are only collapsed when recomputing the scatter path
// of the candidate id reproduces them exactly and the id is valid; anything
// else is read with the plain layout.
func (t *Translator) RelativeStoragePath(rel string) (domain.StoragePath, error) {
	parts := fsutil.SplitPath(rel)
	if len(parts) == 0 {
		return domain.StoragePath{}, serr.NotValid("%q does not address an entity", rel)
	}

	container := fsutil.DecodePathPartial(parts[0])
	if s, ok := t.registry.Lookup(container); ok && len(parts) > s.FolderDepth()+1 {
		scattered := parts[1 : s.FolderDepth()+2]
		if MatchesScatterPath(s, scattered) {
			logical := make([]string, 0, len(parts)-s.FolderDepth())
			logical = append(logical, container, fsutil.DecodePathPartial(scattered[len(scattered)-1]))
			for _, p := range parts[s.FolderDepth()+2:] {
				logical = append(logical, fsutil.DecodePathPartial(p))
			}
			return domain.Parse(logical...)
		}
	}

	return fsutil.RelativeStoragePath(rel)
}

// MatchesScatterPath reports whether the on-disk segments (scatter directories
// followed by the id) are exactly what s produces for that id.
func MatchesScatterPath(s scatter.Strategy, segments []string) bool {
	if len(segments) != s.FolderDepth()+1 {
		return false
	}
	candidate := segments[len(segments)-1]
	if !s.IsValidName(fsutil.DecodePathPartial(candidate)) {
		return false
	}
	want, err := s.Segments(candidate)
	if err != nil {
		return false
	}
	return slices.Equal(want, segments)
}
