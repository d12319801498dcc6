// Package scatter maps opaque identifiers onto bounded-depth directory trees.
//
// Containers that hold millions of objects cannot keep them all in one
// directory. A Strategy derives a fixed number of intermediate directory
// levels from the identifier itself, so that the object "abcdefgh" of a
// container scattered with the range rule "0-2,2-4" lives at
//
//	<container>/ab/cd/abcdefgh
//
// Strategies are pure: every segment is a function of the identifier alone,
// which lets callers invert the mapping by recomputing the expected path of a
// candidate leaf and comparing it against what was found on disk.
//
// Two variants exist:
//   - RangeStrategy slices half-open character ranges out of the identifier.
//   - PatternStrategy applies a regular expression and a replacement template
//     such as "$1/$2".
//
// A Registry holds the strategy of every scattered container. It is built once
// at startup from configuration and never mutated afterwards, so it can be
// shared freely between goroutines.
//
// Example:
//
//	reg, _ := scatter.NewRegistry(map[string]scatter.Config{
//		"aip": {Method: "range", Rule: "0-2,2-4", Type: "directory"},
//	})
//	s, _ := reg.Lookup("aip")
//	p, _ := s.ScatterPath("abcdefgh") // "ab/cd/abcdefgh"
package scatter

import (
	"strings"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

const (
	MethodRange   = "range"
	MethodPattern = "pattern"

	TypeDirectory = "directory"
	TypeFile      = "file"
)

// Config is the per-container scatter configuration.
type Config struct {
	Method string `mapstructure:"scatter_method" yaml:"scatter_method"`
	Regex  string `mapstructure:"regex" yaml:"regex"`
	Type   string `mapstructure:"type" yaml:"type"`
	Rule   string `mapstructure:"rule" yaml:"rule"`
}

// Strategy turns an identifier into the directory segments it is stored under.
//
// Implementations must be deterministic and must not consult the filesystem.
type Strategy interface {
	// Segments returns FolderDepth() directory names followed by id itself.
	Segments(id string) ([]string, error)

	// ScatterPath is Segments joined with "/".
	ScatterPath(id string) (string, error)

	// IsValidName reports whether name is an identifier this strategy addresses.
	// Listings use it to filter out foreign entries.
	IsValidName(name string) bool

	// FolderDepth is the number of directory levels inserted before the leaf.
	FolderDepth() int

	// IsDirectoryUnit reports whether a scattered leaf is a directory rather
	// than a single file.
	IsDirectoryUnit() bool
}

// NewStrategy builds the strategy selected by cfg.Method. An empty method, or
// "ranges", selects the range variant; "regex" is accepted for "pattern".
func NewStrategy(cfg Config) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Method)) {
	case "", MethodRange, "ranges":
		return NewRangeStrategy(cfg.Rule, cfg.Regex, isDirectory(cfg.Type))
	case MethodPattern, "regex":
		return NewPatternStrategy(cfg.Regex, cfg.Rule, isDirectory(cfg.Type))
	default:
		return nil, serr.NotValid("unknown scatter method %q", cfg.Method)
	}
}

func isDirectory(t string) bool {
	return strings.EqualFold(strings.TrimSpace(t), TypeDirectory)
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsRune(s, 0)
}
