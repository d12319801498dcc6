// Package fsutil is the plain, unscattered filesystem layout and the
// filesystem primitives the scattered layer is built on.
//
// In the plain layout a storage path container/a/b maps to base/container/a/b,
// each segment escaped so that it stays a single path component.
package fsutil

import (
	"path/filepath"
	"strings"

	"github.com/ETERNA-earkiv/ETERNA/internal/domain"
	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

var (
	encoder = strings.NewReplacer("%", "%25", "/", "%2F")
	decoder = strings.NewReplacer("%2F", "/", "%2f", "/", "%25", "%")
)

// EncodePathPartial escapes a storage path segment for use as a file name.
func EncodePathPartial(s string) string {
	return encoder.Replace(s)
}

func DecodePathPartial(s string) string {
	return decoder.Replace(s)
}

// EntityPath resolves sp under base without any scattering.
func EntityPath(base string, sp domain.StoragePath) string {
	parts := sp.AsList()
	elems := make([]string, 0, len(parts)+1)
	elems = append(elems, base)
	for _, p := range parts {
		elems = append(elems, EncodePathPartial(p))
	}
	return filepath.Join(elems...)
}

// StoragePath is the inverse of EntityPath.
func StoragePath(base, path string) (domain.StoragePath, error) {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return domain.StoragePath{}, serr.NotValid("%s is not under %s", path, base)
	}
	return RelativeStoragePath(rel)
}

// RelativeStoragePath decodes a path relative to a storage root.
func RelativeStoragePath(rel string) (domain.StoragePath, error) {
	parts := SplitPath(rel)
	if len(parts) == 0 || parts[0] == ".." {
		return domain.StoragePath{}, serr.NotValid("%q does not address an entity", rel)
	}
	for i, p := range parts {
		parts[i] = DecodePathPartial(p)
	}
	return domain.Parse(parts...)
}

// SplitPath splits a relative filesystem path into its components.
func SplitPath(rel string) []string {
	rel = filepath.Clean(rel)
	if rel == "." || rel == "" {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}
