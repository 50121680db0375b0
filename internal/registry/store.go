package registry

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/whylson/internal/contract"
)

// Store is the registry file plus its in-memory mirror.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// serialized; see the package documentation.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries []contract.Entry
	seen    [sha256.Size]byte // digest of the content the mirror reflects
	hasSeen bool

	corrupt     bool   // file on disk failed to load; keep it before writing
	quarantined string // where the last corrupt file was moved
}

// CorruptSuffix is appended to a corrupt registry file's name when it is
// moved aside before the first write.
const CorruptSuffix = ".corrupt"

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store for the registry file at path. Nothing is read until
// Load or Ensure is called.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		logger:  slog.Default(),
		entries: []contract.Entry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry file into the mirror and returns a copy of it.
//
// A missing file loads as empty. Unparsable content returns an empty list
// and a CodeCorrupt error; the file itself is left as is until the next
// mutation moves it to path+CorruptSuffix.
func (s *Store) Load() ([]contract.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corrupt = false

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.replaceLocked(nil, nil)
		return []contract.Entry{}, nil
	}
	if err != nil {
		s.replaceLocked(nil, nil)
		return []contract.Entry{}, &Error{Code: CodeReadFailed, Path: s.path, Err: err}
	}

	entries, err := s.decode(data)
	if err != nil {
		s.replaceLocked(nil, data)
		s.corrupt = true
		return []contract.Entry{}, &Error{Code: CodeCorrupt, Path: s.path, Err: err}
	}

	s.replaceLocked(entries, data)
	return cloneAll(s.entries), nil
}

// Reload re-reads the file when its content differs from what the mirror
// reflects. It reports whether the mirror changed.
//
// Unlike Load, corrupt content keeps the current mirror: a watcher may see a
// file mid-edit, and the last good state is more useful than an empty one.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if len(s.entries) == 0 {
			return false, nil
		}
		s.replaceLocked(nil, nil)
		s.corrupt = false
		return true, nil
	}
	if err != nil {
		return false, &Error{Code: CodeReadFailed, Path: s.path, Err: err}
	}

	if s.hasSeen && sha256.Sum256(data) == s.seen {
		return false, nil
	}

	entries, err := s.decode(data)
	if err != nil {
		return false, &Error{Code: CodeCorrupt, Path: s.path, Err: err}
	}

	s.replaceLocked(entries, data)
	s.corrupt = false
	return true, nil
}

// Ensure creates the registry file with an empty list when it does not
// exist, then loads it. It reports whether the file was created.
func (s *Store) Ensure() (bool, error) {
	s.mu.Lock()
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		err = s.saveLocked(nil)
		s.mu.Unlock()
		return err == nil, err
	}
	s.mu.Unlock()
	if err != nil {
		return false, &Error{Code: CodeReadFailed, Path: s.path, Err: err}
	}

	_, err = s.Load()
	return false, err
}

// Save replaces the whole registry.
func (s *Store) Save(entries []contract.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(dedupe(entries))
}

// Reset overwrites the registry with an empty list. A corrupt file is
// discarded, not kept.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrupt = false
	return s.saveLocked(nil)
}

// TakeQuarantined returns the path a corrupt registry file was moved to by
// the last mutation, then forgets it. It returns "" when nothing was moved.
func (s *Store) TakeQuarantined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.quarantined
	s.quarantined = ""
	return p
}

// Entries returns a copy of the mirror in registration order.
func (s *Store) Entries() []contract.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.entries)
}

// Find returns the entry registered for source.
func (s *Store) Find(source string) (contract.Entry, bool) {
	source = contract.NormalizeID(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Source == source {
			return e.Clone(), true
		}
	}
	return contract.Entry{}, false
}

// Upsert replaces any entry with the same Source and appends entry at the
// end, then persists. Last write wins.
func (s *Store) Upsert(entry contract.Entry) error {
	entry = entry.Clone()
	entry.Source = contract.NormalizeID(entry.Source)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := without(s.entries, entry.Source)
	next = append(next, entry)
	return s.saveLocked(next)
}

// Remove deletes the entry for source and persists. It reports whether an
// entry was removed; when none matched nothing is written.
func (s *Store) Remove(source string) (bool, error) {
	source = contract.NormalizeID(source)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := without(s.entries, source)
	if len(next) == len(s.entries) {
		return false, nil
	}
	if err := s.saveLocked(next); err != nil {
		return false, err
	}
	return true, nil
}

// saveLocked writes next to disk and, on success only, makes it the mirror.
// A file that last loaded as corrupt is moved aside first; if that fails
// nothing is written.
func (s *Store) saveLocked(next []contract.Entry) error {
	data, err := encode(next)
	if err != nil {
		return &Error{Code: CodeWriteFailed, Path: s.path, Err: err}
	}

	if s.corrupt {
		if err := s.quarantineLocked(); err != nil {
			return err
		}
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.logger.Error("registry write failed", "path", s.path, "error", err)
		return &Error{Code: CodeWriteFailed, Path: s.path, Err: err}
	}

	s.replaceLocked(next, data)
	s.logger.Debug("registry written", "path", s.path, "entries", len(next))
	return nil
}

func (s *Store) quarantineLocked() error {
	backup := s.path + CorruptSuffix
	err := os.Rename(s.path, backup)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("could not move corrupt registry aside", "path", s.path, "error", err)
		return &Error{Code: CodeWriteFailed, Path: s.path, Err: fmt.Errorf("keeping corrupt registry: %w", err)}
	}

	s.corrupt = false
	if err == nil {
		s.quarantined = backup
		s.logger.Warn("moved corrupt registry aside", "path", s.path, "backup", backup)
	}
	return nil
}

func (s *Store) replaceLocked(entries []contract.Entry, data []byte) {
	s.entries = cloneAll(entries)
	if data == nil {
		s.hasSeen = false
		s.seen = [sha256.Size]byte{}
		return
	}
	s.seen = sha256.Sum256(data)
	s.hasSeen = true
}

func (s *Store) decode(data []byte) ([]contract.Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := validate(filepath.Base(s.path), data); err != nil {
		return nil, err
	}

	var entries []contract.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}

	deduped := dedupe(entries)
	if len(deduped) != len(entries) {
		s.logger.Warn("registry contained duplicate sources; kept the latest",
			"path", s.path,
			"entries", len(entries),
			"unique", len(deduped),
		)
	}
	return deduped, nil
}

// encode renders entries as indented JSON with a trailing newline.
func encode(entries []contract.Entry) ([]byte, error) {
	out := make([]contract.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return append(data, '\n'), nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// dedupe replays entries as a sequence of upserts.
func dedupe(entries []contract.Entry) []contract.Entry {
	out := make([]contract.Entry, 0, len(entries))
	for _, e := range entries {
		e.Source = contract.NormalizeID(e.Source)
		out = append(without(out, e.Source), e.Clone())
	}
	return out
}

func without(entries []contract.Entry, source string) []contract.Entry {
	out := make([]contract.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Source != source {
			out = append(out, e)
		}
	}
	return out
}

func cloneAll(entries []contract.Entry) []contract.Entry {
	out := make([]contract.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
