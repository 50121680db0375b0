package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, cfg Config) (<-chan Event, *Watcher) {
	t.Helper()

	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	events, err := w.Start(ctx)
	require.NoError(t, err)
	return events, w
}

func waitFor(t *testing.T, events <-chan Event, path string) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
			return Event{}
		}
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoPaths)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{Paths: []string{file}})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(Config{Paths: []string{filepath.Join(t.TempDir(), "missing")}})
	assert.Error(t, err)

	_, err = New(Config{Paths: []string{t.TempDir()}, Exclude: []string{"[bad"}})
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestWatcher_EmitsWrite(t *testing.T) {
	dir := t.TempDir()
	events, _ := startWatcher(t, Config{Paths: []string{dir}, Debounce: 20 * time.Millisecond})

	path := filepath.Join(dir, "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))

	ev := waitFor(t, events, path)
	assert.Contains(t, []Op{OpCreate, OpWrite}, ev.Op)
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mligo")
	require.NoError(t, os.WriteFile(path, []byte("0"), 0o644))

	events, _ := startWatcher(t, Config{Paths: []string{dir}, Debounce: 150 * time.Millisecond})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
	}

	waitFor(t, events, path)

	select {
	case ev := <-events:
		if ev.Path == path {
			t.Fatalf("burst produced a second event: %+v", ev)
		}
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_RecursiveAndExclude(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "src")
	hidden := filepath.Join(root, ".whylson")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.MkdirAll(hidden, 0o755))

	events, _ := startWatcher(t, Config{
		Paths:     []string{root},
		Recursive: true,
		Exclude:   []string{".whylson"},
		Debounce:  20 * time.Millisecond,
	})

	require.NoError(t, os.WriteFile(filepath.Join(hidden, "ignored.json"), []byte("x"), 0o644))
	target := filepath.Join(sub, "a.mligo")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	ev := waitFor(t, events, target)
	assert.Equal(t, target, ev.Path)
}

func TestWatcher_SlowConsumerMissesNothing(t *testing.T) {
	dir := t.TempDir()
	events, _ := startWatcher(t, Config{Paths: []string{dir}, Debounce: 10 * time.Millisecond})

	const files = 100
	want := make(map[string]bool, files)
	for i := 0; i < files; i++ {
		path := filepath.Join(dir, fmt.Sprintf("c%03d.mligo", i))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		want[path] = true
	}

	// Let every debounce timer fire before reading anything.
	time.Sleep(300 * time.Millisecond)

	deadline := time.After(5 * time.Second)
	for len(want) > 0 {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed")
			delete(want, ev.Path)
		case <-deadline:
			t.Fatalf("%d paths never reported", len(want))
		}
	}
}

func TestWatcher_StopReleasesBlockedSenders(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Config{Paths: []string{dir}, Debounce: 10 * time.Millisecond})
	require.NoError(t, err)

	events, err := w.Start(context.Background())
	require.NoError(t, err)

	for i := 0; i < 80; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("c%03d.mligo", i)), nil, 0o644))
	}
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, w.Stop())

	closed := make(chan struct{})
	go func() {
		for range events {
		}
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Stop with blocked senders")
	}
}

func TestWatcher_StopClosesChannel(t *testing.T) {
	w, err := New(Config{Paths: []string{t.TempDir()}})
	require.NoError(t, err)

	events, err := w.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after Stop")
	}
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "rename", OpRename.String())
	assert.Equal(t, "unknown", Op(9).String())
}
