// Package paths maps Source documents to their artifact locations inside the
// project's .whylson directory. Nothing here touches the filesystem.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/roach88/whylson/internal/contract"
)

// Fixed names under the project root.
const (
	DirName          = ".whylson"
	RegistryFileName = "contracts.json"
	ArtifactDirName  = "bin-contracts"
	SettingsFileName = "settings.yaml"
	HistoryFileName  = "history.db"

	// ArtifactExt is the extension of compiled Michelson artifacts.
	ArtifactExt = ".tz"
)

// Layout resolves the persisted-state locations for one project root.
type Layout struct {
	Root string
}

// NewLayout returns a Layout for root. Relative roots are made absolute when
// possible so that registry identities stay stable.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Layout{Root: contract.NormalizeID(root)}
}

// Dir is the .whylson directory.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, DirName)
}

// RegistryPath is the contracts.json registry file.
func (l Layout) RegistryPath() string {
	return filepath.Join(l.Dir(), RegistryFileName)
}

// ArtifactDir holds one compiled artifact per registered Source.
func (l Layout) ArtifactDir() string {
	return filepath.Join(l.Dir(), ArtifactDirName)
}

// SettingsPath is the optional settings file.
func (l Layout) SettingsPath() string {
	return filepath.Join(l.Dir(), SettingsFileName)
}

// HistoryPath is the compile journal database.
func (l Layout) HistoryPath() string {
	return filepath.Join(l.Dir(), HistoryFileName)
}

// ArtifactPath maps a Source path to its artifact path: the Source
// extension is replaced by ArtifactExt and the file lives in ArtifactDir.
//
// Pure and deterministic. Two Sources with the same stem map to the same
// artifact.
func (l Layout) ArtifactPath(source string) string {
	return filepath.Join(l.ArtifactDir(), Stem(source)+ArtifactExt)
}

// Resolve turns a user-supplied path into a normalized absolute identity
// relative to the project root.
func (l Layout) Resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Root, path)
	}
	return contract.NormalizeID(path)
}

// Stem is the filename without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
