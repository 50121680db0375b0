package paths

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// DefaultSourcePatterns match the LIGO syntaxes.
var DefaultSourcePatterns = []string{"*.mligo", "*.jsligo", "*.religo", "*.ligo"}

// ErrInvalidPattern indicates a source pattern could not be compiled.
var ErrInvalidPattern = errors.New("invalid source pattern")

// Matcher decides whether a path is a Source document.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns. An empty list falls back to
// DefaultSourcePatterns.
func NewMatcher(patterns ...string) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultSourcePatterns
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, fmt.Errorf("%q: %w", p, err))
		}
		globs = append(globs, g)
	}

	return &Matcher{
		patterns: append([]string{}, patterns...),
		globs:    globs,
	}, nil
}

// Patterns returns the configured patterns.
func (m *Matcher) Patterns() []string {
	return append([]string{}, m.patterns...)
}

// IsSource matches the base name of path against the patterns.
func (m *Matcher) IsSource(path string) bool {
	base := filepath.Base(path)
	for _, g := range m.globs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// DefaultMatcher returns a Matcher for DefaultSourcePatterns.
func DefaultMatcher() *Matcher {
	m, err := NewMatcher(DefaultSourcePatterns...)
	if err != nil {
		panic(fmt.Sprintf("paths: default source patterns: %v", err))
	}
	return m
}
