package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/whylson/internal/contract"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), ".whylson", "contracts.json"))
}

func mustEntry(t *testing.T, source, entrypoint string, flags ...string) contract.Entry {
	t.Helper()
	stem := contract.TitleFor(source)
	e, err := contract.NewEntry(source, "/proj/.whylson/bin-contracts/"+stem+".tz", entrypoint, flags)
	require.NoError(t, err)
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestEnsure_CreatesEmptyRegistry(t *testing.T) {
	s := newTestStore(t)

	created, err := s.Ensure()
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "[]\n", readFile(t, s.Path()))
	assert.Empty(t, s.Entries())

	created, err = s.Ensure()
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, statErr := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(statErr), "Load must not create the file")
}

func TestLoad_ValidFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))

	content := `[
  {"title": "counter", "source": "/proj/counter.mligo", "onPath": "/proj/.whylson/bin-contracts/counter.tz", "entrypoint": "main", "flags": ["--protocol", "oxford"]},
  {"title": "token", "source": "/proj/token.jsligo", "onPath": "/proj/.whylson/bin-contracts/token.tz", "entrypoint": "transfer'", "flags": null}
]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	entries, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "counter", entries[0].Title)
	assert.Equal(t, []string{"--protocol", "oxford"}, entries[0].Flags)
	assert.Equal(t, "transfer'", entries[1].Entrypoint)
}

func TestLoad_CorruptFileReportsAndKeepsFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", `{{{ nope`},
		{"object instead of list", `{"title": "x"}`},
		{"bad entrypoint", `[{"title": "a", "source": "/a.mligo", "onPath": "/a.tz", "entrypoint": "9x", "flags": []}]`},
		{"missing source", `[{"title": "a", "onPath": "/a.tz", "entrypoint": "main", "flags": []}]`},
		{"flags not strings", `[{"title": "a", "source": "/a.mligo", "onPath": "/a.tz", "entrypoint": "main", "flags": [1]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
			require.NoError(t, os.WriteFile(s.Path(), []byte(tt.content), 0o644))

			entries, err := s.Load()
			require.Error(t, err)
			assert.True(t, IsCorrupt(err), "expected corrupt error, got %v", err)
			assert.Empty(t, entries)
			assert.Empty(t, s.Entries())
			assert.Equal(t, tt.content, readFile(t, s.Path()))
		})
	}
}

func TestUpsert_AfterCorruptLoadKeepsOldFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	_, err := s.Load()
	require.True(t, IsCorrupt(err))

	require.NoError(t, s.Upsert(mustEntry(t, "/proj/src/counter.mligo", "main")))

	backup := s.Path() + CorruptSuffix
	assert.Equal(t, "{not json", readFile(t, backup))
	assert.Equal(t, backup, s.TakeQuarantined())
	assert.Empty(t, s.TakeQuarantined(), "reported once")

	reloaded, err := New(s.Path()).Load()
	require.NoError(t, err)
	require.Len(t, reloaded, 1)

	// Later writes leave the backup alone.
	require.NoError(t, os.WriteFile(backup, []byte("kept"), 0o644))
	require.NoError(t, s.Upsert(mustEntry(t, "/proj/src/token.jsligo", "main")))
	assert.Equal(t, "kept", readFile(t, backup))
	assert.Empty(t, s.TakeQuarantined())
}

func TestReset_AfterCorruptLoadDiscardsFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	_, err := s.Load()
	require.True(t, IsCorrupt(err))

	require.NoError(t, s.Reset())

	assert.Equal(t, "[]\n", readFile(t, s.Path()))
	assert.NoFileExists(t, s.Path()+CorruptSuffix)
	assert.Empty(t, s.TakeQuarantined())
}

func TestUpsert_AfterRepairedReloadDoesNotMoveFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))
	_, err := s.Load()
	require.True(t, IsCorrupt(err))

	require.NoError(t, os.WriteFile(s.Path(), []byte("[]\n"), 0o644))
	_, err = s.Reload()
	require.NoError(t, err)

	require.NoError(t, s.Upsert(mustEntry(t, "/proj/src/counter.mligo", "main")))
	assert.NoFileExists(t, s.Path()+CorruptSuffix)
}

func TestLoad_WhitespaceFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte("  \n"), 0o644))

	entries, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoad_DuplicateSourcesCollapseLastWins(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	content := `[
  {"title": "a", "source": "/p/a.mligo", "onPath": "/p/a.tz", "entrypoint": "first", "flags": []},
  {"title": "b", "source": "/p/b.mligo", "onPath": "/p/b.tz", "entrypoint": "main", "flags": []},
  {"title": "a", "source": "/p/a.mligo", "onPath": "/p/a.tz", "entrypoint": "second", "flags": []}
]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	entries, err := s.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/p/b.mligo", entries[0].Source)
	assert.Equal(t, "second", entries[1].Entrypoint)
}

func TestUpsert_PersistsAndFinds(t *testing.T) {
	s := newTestStore(t)
	e := mustEntry(t, "/proj/counter.mligo", "main", "-p", "oxford")

	require.NoError(t, s.Upsert(e))

	got, ok := s.Find("/proj/counter.mligo")
	require.True(t, ok)
	assert.True(t, e.Equal(got))

	// A fresh store sees the same registry.
	fresh := New(s.Path())
	entries, err := fresh.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, e.Equal(entries[0]))
}

func TestUpsert_Uniqueness(t *testing.T) {
	s := newTestStore(t)
	sources := []string{"/p/a.mligo", "/p/b.mligo", "/p/c.mligo"}

	// Interleave upserts; the last entrypoint per source must win.
	latest := map[string]string{}
	for i := 0; i < 12; i++ {
		src := sources[(i*7)%len(sources)]
		ep := fmt.Sprintf("ep%d", i)
		require.NoError(t, s.Upsert(mustEntry(t, src, ep)))
		latest[src] = ep
	}

	entries := s.Entries()
	seen := map[string]bool{}
	for _, e := range entries {
		assert.False(t, seen[e.Source], "duplicate source %s", e.Source)
		seen[e.Source] = true
		assert.Equal(t, latest[e.Source], e.Entrypoint)
	}
	assert.Len(t, entries, len(sources))

	// Disk agrees with the mirror.
	fromDisk, err := New(s.Path()).Load()
	require.NoError(t, err)
	assert.Equal(t, entries, fromDisk)
}

func TestUpsert_MovesEntryToEnd(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))
	require.NoError(t, s.Upsert(mustEntry(t, "/p/b.mligo", "main")))
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "other")))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "/p/b.mligo", entries[0].Source)
	assert.Equal(t, "/p/a.mligo", entries[1].Source)
	assert.Equal(t, "other", entries[1].Entrypoint)
}

func TestUpsert_ConcurrentWritersDoNotLoseEntries(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := contract.NewEntry(fmt.Sprintf("/p/c%d.mligo", i), fmt.Sprintf("/p/c%d.tz", i), "main", nil)
			if err == nil {
				_ = s.Upsert(e)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Entries(), 20)
	fromDisk, err := New(s.Path()).Load()
	require.NoError(t, err)
	assert.Len(t, fromDisk, 20)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))
	require.NoError(t, s.Upsert(mustEntry(t, "/p/b.mligo", "main")))

	removed, err := s.Remove("/p/a.mligo")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok := s.Find("/p/a.mligo")
	assert.False(t, ok)

	removed, err = s.Remove("/p/a.mligo")
	require.NoError(t, err)
	assert.False(t, removed)

	fromDisk, err := New(s.Path()).Load()
	require.NoError(t, err)
	require.Len(t, fromDisk, 1)
	assert.Equal(t, "/p/b.mligo", fromDisk[0].Source)
}

func TestWriteFailure_MirrorUnchanged(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o644))

	// The registry directory path is occupied by a regular file.
	s := New(filepath.Join(blocker, "contracts.json"))

	err := s.Upsert(mustEntry(t, "/p/a.mligo", "main"))
	require.Error(t, err)
	assert.True(t, IsWriteFailed(err))
	assert.False(t, IsCorrupt(err))
	assert.Empty(t, s.Entries())

	_, ok := s.Find("/p/a.mligo")
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Entries())
	assert.Equal(t, "[]\n", readFile(t, s.Path()))
}

func TestSave_DedupesInput(t *testing.T) {
	s := newTestStore(t)
	a1 := mustEntry(t, "/p/a.mligo", "one")
	a2 := mustEntry(t, "/p/a.mligo", "two")

	require.NoError(t, s.Save([]contract.Entry{a1, a2}))
	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].Entrypoint)
}

func TestReload_IgnoresOwnWrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))

	changed, err := s.Reload()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, s.Entries(), 1)
}

func TestReload_PicksUpExternalChange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))

	other := New(s.Path())
	_, err := other.Load()
	require.NoError(t, err)
	require.NoError(t, other.Upsert(mustEntry(t, "/p/b.mligo", "main")))

	changed, err := s.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, s.Entries(), 2)
}

func TestReload_CorruptKeepsMirror(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))
	require.NoError(t, os.WriteFile(s.Path(), []byte("[{"), 0o644))

	changed, err := s.Reload()
	assert.False(t, changed)
	assert.True(t, IsCorrupt(err))
	assert.Len(t, s.Entries(), 1)
}

func TestReload_DeletedFileEmptiesMirror(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert(mustEntry(t, "/p/a.mligo", "main")))
	require.NoError(t, os.Remove(s.Path()))

	changed, err := s.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, s.Entries())
}

func TestWatch_ReloadsOnExternalEdit(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Ensure()
	require.NoError(t, err)

	var mu sync.Mutex
	var changes int
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := s.Watch(ctx, func(changed bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		if changed {
			changes++
		}
	})
	require.NoError(t, err)
	defer w.Stop()

	external := `[{"title": "x", "source": "/p/x.mligo", "onPath": "/p/x.tz", "entrypoint": "main", "flags": []}]`
	require.NoError(t, os.WriteFile(s.Path(), []byte(external), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := s.Find("/p/x.mligo")
		return ok
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.GreaterOrEqual(t, changes, 1)
	mu.Unlock()
}

func TestErrorHelpers(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &Error{Code: CodeCorrupt, Path: "/x", Err: fmt.Errorf("boom")})
	assert.True(t, IsCorrupt(err))
	assert.False(t, IsWriteFailed(err))
	assert.Contains(t, err.Error(), "REGISTRY_CORRUPT")
	assert.False(t, IsCorrupt(nil))
}
