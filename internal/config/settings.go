// Package config loads user settings from .whylson/settings.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/whylson/internal/paths"
)

// Settings are the toggles consulted by the orchestration engine.
type Settings struct {
	// AutoSave enables the debounced save-compile-display cycle on edits
	// while the artifact preview is visible.
	AutoSave bool `yaml:"autoSave"`

	// AutoSaveThreshold is the debounce quiet period in milliseconds.
	AutoSaveThreshold int `yaml:"autoSaveThreshold"`

	// BackgroundCompile recompiles registered Sources on save.
	BackgroundCompile bool `yaml:"onSaveBackgroundCompilation"`

	// OnSaveCreateEntry registers unregistered Sources on save.
	OnSaveCreateEntry bool `yaml:"onSaveCreateEntry"`

	// OnSaveOpenView opens the preview after an on-save registration.
	OnSaveOpenView bool `yaml:"onSaveOpenView"`

	Compiler CompilerSettings `yaml:"compiler"`

	// SourcePatterns are globs identifying Source documents.
	SourcePatterns []string `yaml:"sourcePatterns"`
}

// CompilerSettings configure the external compiler.
type CompilerSettings struct {
	Binary string   `yaml:"binary"`
	Flags  []string `yaml:"flags"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		AutoSave:          true,
		AutoSaveThreshold: 1000,
		BackgroundCompile: true,
		Compiler: CompilerSettings{
			Binary: "ligo",
		},
		SourcePatterns: append([]string{}, paths.DefaultSourcePatterns...),
	}
}

// Debounce returns AutoSaveThreshold as a duration.
func (s Settings) Debounce() time.Duration {
	return time.Duration(s.AutoSaveThreshold) * time.Millisecond
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	var errs []error
	if s.AutoSaveThreshold < 0 {
		errs = append(errs, fmt.Errorf("autoSaveThreshold must be >= 0, got %d", s.AutoSaveThreshold))
	}
	if s.Compiler.Binary == "" {
		errs = append(errs, errors.New("compiler.binary must not be empty"))
	}
	if len(s.SourcePatterns) == 0 {
		errs = append(errs, errors.New("sourcePatterns must list at least one pattern"))
	}
	return errors.Join(errs...)
}

// Load reads settings from path over the defaults. A missing file yields
// the defaults.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Default(), fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}
