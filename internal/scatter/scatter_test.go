package scatter

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serr "github.com/ETERNA-earkiv/ETERNA/internal/errors"
)

func TestRangeAndPatternAgree(t *testing.T) {
	strategies := map[string]Config{
		"range":   {Method: MethodRange, Rule: "0-2,2-4", Type: TypeDirectory},
		"pattern": {Method: MethodPattern, Regex: "(..)(..).*", Rule: "$1/$2", Type: TypeDirectory},
	}

	for name, cfg := range strategies {
		t.Run(name, func(t *testing.T) {
			s, err := NewStrategy(cfg)
			require.NoError(t, err)

			p, err := s.ScatterPath("abcdefgh")
			require.NoError(t, err)
			assert.Equal(t, "ab/cd/abcdefgh", p)
			assert.Equal(t, 2, s.FolderDepth())
			assert.True(t, s.IsDirectoryUnit())
		})
	}
}

func TestNewStrategy_MethodAliases(t *testing.T) {
	rangeRule := Config{Rule: "0-1"}
	patternRule := Config{Regex: "(.)(.).*", Rule: "$1/$2"}

	tests := []struct {
		method string
		cfg    Config
		want   Strategy
	}{
		{"", rangeRule, &RangeStrategy{}},
		{"range", rangeRule, &RangeStrategy{}},
		{"ranges", rangeRule, &RangeStrategy{}},
		{"pattern", patternRule, &PatternStrategy{}},
		{"regex", patternRule, &PatternStrategy{}},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			tt.cfg.Method = tt.method
			s, err := NewStrategy(tt.cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
		})
	}

	_, err := NewStrategy(Config{Method: "hash"})
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestParseRanges_Malformed(t *testing.T) {
	for _, rule := range []string{"", "0", "0-", "-2", "a-2", "0-b", "2-2", "3-1", "0-2,", "0-2,x"} {
		t.Run(rule, func(t *testing.T) {
			_, err := ParseRanges(rule)
			assert.ErrorIs(t, err, serr.ErrRequestNotValid)
		})
	}

	ranges, err := ParseRanges("0-2, 2-4,4-5")
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 2}, {2, 4}, {4, 5}}, ranges)
}

func TestRangeStrategy_ShortIDIsAnError(t *testing.T) {
	s, err := NewRangeStrategy("0-2,2-4", "", false)
	require.NoError(t, err)

	_, err = s.ScatterPath("abc")
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestRangeStrategy_SlicesCharacters(t *testing.T) {
	s, err := NewRangeStrategy("0-1,1-2", "", true)
	require.NoError(t, err)

	segments, err := s.Segments("ésprit")
	require.NoError(t, err)
	assert.Equal(t, []string{"é", "s", "ésprit"}, segments)
	for _, seg := range segments {
		assert.True(t, utf8.ValidString(seg), "segment %q", seg)
	}

	// two bytes but a single character
	_, err = s.Segments("é")
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestRangeStrategy_IsValidName(t *testing.T) {
	open, err := NewRangeStrategy("0-2", "", false)
	require.NoError(t, err)
	assert.True(t, open.IsValidName("anything at all"))

	uuids, err := NewRangeStrategy("0-2", "[0-9a-f]{8}", false)
	require.NoError(t, err)
	assert.True(t, uuids.IsValidName("0123abcd"))
	assert.False(t, uuids.IsValidName("0123abcdX"), "pattern must match the whole name")
	assert.False(t, uuids.IsValidName("x0123abcd"))
}

func TestPatternStrategy(t *testing.T) {
	_, err := NewPatternStrategy("", "$1", false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	_, err = NewPatternStrategy("(.)", "", false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	_, err = NewPatternStrategy("(", "$1", false)
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)

	s, err := NewPatternStrategy("(..)(..)(..).*", "$1_x/$2/$3", false)
	require.NoError(t, err)
	assert.Equal(t, 3, s.FolderDepth())

	p, err := s.ScatterPath("abcdefgh")
	require.NoError(t, err)
	assert.Equal(t, "ab_x/cd/ef/abcdefgh", p)

	_, err = s.ScatterPath("abc")
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(map[string]Config{
		"aip":  {Rule: "0-2"},
		"dip":  {Method: "pattern", Regex: "(..).*", Rule: "$1"},
		"logs": {Rule: "1-3,3-5"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"aip", "dip", "logs"}, reg.Containers())

	s, ok := reg.Lookup("logs")
	require.True(t, ok)
	assert.Equal(t, 2, s.FolderDepth())

	_, ok = reg.Lookup("other")
	assert.False(t, ok)

	var nilReg *Registry
	_, ok = nilReg.Lookup("aip")
	assert.False(t, ok)

	_, err = NewRegistry(map[string]Config{"bad": {Rule: "2-1"}})
	assert.ErrorIs(t, err, serr.ErrRequestNotValid)
}
