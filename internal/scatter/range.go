package scatter

import (
	"regexp"
	"strconv"
	"strings"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

// Range is a half-open [Begin, End) range over the characters (runes) of an
// identifier.
type Range struct {
	Begin int
	End   int
}

// RangeStrategy scatters an identifier by slicing it with a list of ranges.
type RangeStrategy struct {
	ranges    []Range
	pattern   *regexp.Regexp
	directory bool
}

// NewRangeStrategy parses a rule such as "0-2,2-4". The validity pattern is
// optional; without it every name is accepted.
func NewRangeStrategy(rule, regex string, directory bool) (*RangeStrategy, error) {
	ranges, err := ParseRanges(rule)
	if err != nil {
		return nil, err
	}

	s := &RangeStrategy{ranges: ranges, directory: directory}
	if regex != "" {
		if s.pattern, err = compileAnchored(regex); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ParseRanges parses comma separated "begin-end" pairs.
func ParseRanges(rule string) ([]Range, error) {
	var ranges []Range
	for _, part := range strings.Split(rule, ",") {
		part = strings.TrimSpace(part)
		dash := strings.Index(part, "-")
		if dash <= 0 || dash == len(part)-1 {
			return nil, serr.NotValid("invalid range %q in rule %q", part, rule)
		}
		begin, err := strconv.Atoi(part[:dash])
		if err != nil {
			return nil, serr.NotValid("invalid range begin %q in rule %q", part, rule)
		}
		end, err := strconv.Atoi(part[dash+1:])
		if err != nil {
			return nil, serr.NotValid("invalid range end %q in rule %q", part, rule)
		}
		if begin < 0 || end <= begin {
			return nil, serr.NotValid("empty range %q in rule %q", part, rule)
		}
		ranges = append(ranges, Range{Begin: begin, End: end})
	}
	if len(ranges) == 0 {
		return nil, serr.NotValid("rule %q has no ranges", rule)
	}
	return ranges, nil
}

func (s *RangeStrategy) Segments(id string) ([]string, error) {
	chars := []rune(id)
	segments := make([]string, 0, len(s.ranges)+1)
	for _, r := range s.ranges {
		if r.End > len(chars) {
			return nil, serr.NotValid("id %q is shorter than range %d-%d", id, r.Begin, r.End)
		}
		seg := string(chars[r.Begin:r.End])
		if !validSegment(seg) {
			return nil, serr.NotValid("range %d-%d of id %q is not a usable directory name", r.Begin, r.End, id)
		}
		segments = append(segments, seg)
	}
	return append(segments, id), nil
}

func (s *RangeStrategy) ScatterPath(id string) (string, error) {
	segments, err := s.Segments(id)
	if err != nil {
		return "", err
	}
	return strings.Join(segments, "/"), nil
}

func (s *RangeStrategy) IsValidName(name string) bool {
	if s.pattern == nil {
		return true
	}
	return s.pattern.MatchString(name)
}

func (s *RangeStrategy) FolderDepth() int {
	return len(s.ranges)
}

func (s *RangeStrategy) IsDirectoryUnit() bool {
	return s.directory
}

func (s *RangeStrategy) Ranges() []Range {
	return append([]Range(nil), s.ranges...)
}

// compileAnchored compiles re so that it must match a whole name.
func compileAnchored(re string) (*regexp.Regexp, error) {
	p, err := regexp.Compile(`^(?:` + re + `)$`)
	if err != nil {
		return nil, serr.NotValid("invalid validity pattern %q: %v", re, err)
	}
	return p, nil
}
