package pattern

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher decides whether a file belongs to the followed set.
// A Matcher compiled from an empty expression accepts every entry
// except hidden ones, mirroring what a plain directory listing shows.
type Matcher struct {
	re *regexp.Regexp
}

// Compile builds a Matcher from a regular expression. An invalid
// expression is a startup error, never a per-file condition.
func Compile(expr string) (*Matcher, error) {
	if expr == "" {
		return &Matcher{}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", expr, err)
	}
	return &Matcher{re: re}, nil
}

// Matches reports whether the path, given relative to the watched
// directory, should be followed. Matching is done against the
// slash-separated form so patterns behave the same on every platform.
func (m *Matcher) Matches(relPath string) bool {
	if m.re == nil {
		return !strings.HasPrefix(filepath.Base(relPath), ".")
	}
	return m.re.MatchString(filepath.ToSlash(relPath))
}
