package repair

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var (
	markerRun  = regexp.MustCompile(`\*+`)
	multiSpace = regexp.MustCompile(`\s+`)
)

var fold = cases.Fold()

// Cleaner normalizes a single raw field value: formatting markers and
// separator whitespace are stripped, real content is preserved, and
// anything unusable degrades to the sentinel.
type Cleaner struct {
	cfg Config
}

// NewCleaner creates a Cleaner with the given heuristics.
func NewCleaner(cfg Config) *Cleaner {
	return &Cleaner{cfg: cfg}
}

// Clean returns the canonical form of raw. The result is either a trimmed
// value with internal content and punctuation intact, or the sentinel when
// nothing usable remains. Clean is idempotent.
func (c *Cleaner) Clean(raw string) string {
	s := markerRun.ReplaceAllString(raw, "")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	if !hasContent(s) {
		return c.cfg.Sentinel
	}

	folded := fold.String(s)
	for _, null := range c.cfg.NullWords {
		if folded == fold.String(null) {
			return c.cfg.Sentinel
		}
	}

	return s
}

// IsSentinel reports whether v is the unspecified sentinel.
func (c *Cleaner) IsSentinel(v string) bool {
	return v == c.cfg.Sentinel
}

// Sentinel returns the configured unspecified value.
func (c *Cleaner) Sentinel() string {
	return c.cfg.Sentinel
}

// HasMarker reports whether raw contains a formatting marker. Context
// repair triggers only for marker-corrupted fields; genuinely absent data
// is accepted as-is so values are never fabricated.
func HasMarker(raw string) bool {
	return strings.ContainsRune(raw, '*')
}

// hasContent reports whether s contains at least one letter or digit.
// Pure punctuation residue left behind by marker stripping does not count
// as a value.
func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
