package contract

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// entrypointPattern is the identifier grammar accepted for entrypoints.
var entrypointPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_']*$`)

// Entry is one registered Source document.
type Entry struct {
	// Title is the display name, the filename stem of Source.
	Title string `json:"title"`

	// Source is the absolute, normalized path of the Source document.
	Source string `json:"source"`

	// OnPath is the absolute path of the compiled artifact. Always set.
	OnPath string `json:"onPath"`

	// Entrypoint names the contract entrypoint passed to the compiler.
	Entrypoint string `json:"entrypoint"`

	// Flags are extra compiler arguments, in order.
	Flags []string `json:"flags"`
}

// InvalidEntrypointError reports an entrypoint that does not match the
// identifier grammar.
type InvalidEntrypointError struct {
	Entrypoint string
}

func (e *InvalidEntrypointError) Error() string {
	return fmt.Sprintf("invalid entrypoint %q: must match %s", e.Entrypoint, entrypointPattern.String())
}

// ValidEntrypoint reports whether s is an acceptable entrypoint name.
func ValidEntrypoint(s string) bool {
	return entrypointPattern.MatchString(s)
}

// NormalizeID returns the canonical identity for a document path.
// Paths are cleaned and NFC-normalized so that visually identical paths
// compare equal regardless of how the filesystem spelled them.
func NormalizeID(path string) string {
	if path == "" {
		return ""
	}
	return norm.NFC.String(filepath.Clean(path))
}

// TitleFor derives an entry title from a Source path.
func TitleFor(source string) string {
	base := filepath.Base(source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewEntry builds a validated Entry. The flags slice is copied.
func NewEntry(source, onPath, entrypoint string, flags []string) (Entry, error) {
	if !ValidEntrypoint(entrypoint) {
		return Entry{}, &InvalidEntrypointError{Entrypoint: entrypoint}
	}
	if source == "" || onPath == "" {
		return Entry{}, fmt.Errorf("entry requires both source and artifact path")
	}

	source = NormalizeID(source)
	return Entry{
		Title:      TitleFor(source),
		Source:     source,
		OnPath:     NormalizeID(onPath),
		Entrypoint: entrypoint,
		Flags:      append([]string{}, flags...),
	}, nil
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Flags = append([]string{}, e.Flags...)
	return e
}

// Equal reports whether two entries carry the same values.
func (e Entry) Equal(other Entry) bool {
	if e.Title != other.Title || e.Source != other.Source ||
		e.OnPath != other.OnPath || e.Entrypoint != other.Entrypoint ||
		len(e.Flags) != len(other.Flags) {
		return false
	}
	for i := range e.Flags {
		if e.Flags[i] != other.Flags[i] {
			return false
		}
	}
	return true
}

// Registration is what a user supplies when a Source is first registered.
type Registration struct {
	Entrypoint string
	Flags      []string
}
