package scatter

import (
	"regexp"
	"strings"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

var backReference = regexp.MustCompile(`\$(\d+)`)

// PatternStrategy scatters an identifier by substituting the captures of a
// regular expression into a replacement template like "$1/$2".
type PatternStrategy struct {
	pattern   *regexp.Regexp
	valid     *regexp.Regexp
	template  string
	depth     int
	directory bool
}

// NewPatternStrategy requires both the pattern and the template.
func NewPatternStrategy(regex, rule string, directory bool) (*PatternStrategy, error) {
	if regex == "" {
		return nil, serr.NotValid("pattern scatter method needs a regex")
	}
	if strings.TrimSpace(rule) == "" {
		return nil, serr.NotValid("pattern scatter method needs a rule")
	}

	pattern, err := regexp.Compile(regex)
	if err != nil {
		return nil, serr.NotValid("invalid scatter pattern %q: %v", regex, err)
	}
	valid, err := compileAnchored(regex)
	if err != nil {
		return nil, err
	}

	depth := len(splitSegments(rule))
	if depth == 0 {
		return nil, serr.NotValid("rule %q has no path segments", rule)
	}

	return &PatternStrategy{
		pattern: pattern,
		valid:   valid,
		// "$1_" would otherwise read as the group named "1_"
		template:  backReference.ReplaceAllString(rule, `$${$1}`),
		depth:     depth,
		directory: directory,
	}, nil
}

func (s *PatternStrategy) Segments(id string) ([]string, error) {
	if !s.IsValidName(id) {
		return nil, serr.NotValid("id %q does not match scatter pattern %s", id, s.pattern)
	}
	segments := splitSegments(s.pattern.ReplaceAllString(id, s.template))
	if len(segments) != s.depth {
		return nil, serr.NotValid("id %q scatters to %d levels, want %d", id, len(segments), s.depth)
	}
	for _, seg := range segments {
		if !validSegment(seg) {
			return nil, serr.NotValid("id %q scatters to unusable directory name %q", id, seg)
		}
	}
	return append(segments, id), nil
}

func (s *PatternStrategy) ScatterPath(id string) (string, error) {
	segments, err := s.Segments(id)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "/"), nil
}

func (s *PatternStrategy) IsValidName(name string) bool {
	return s.valid.MatchString(name)
}

func (s *PatternStrategy) FolderDepth() int {
	return s.depth
}

func (s *PatternStrategy) IsDirectoryUnit() bool {
	return s.directory
}

func splitSegments(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
