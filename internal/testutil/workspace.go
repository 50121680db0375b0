package testutil

import (
	"context"
	"os"
	"sync"
)

// MemoryWorkspace holds unsaved editor buffers. SaveDocument writes the
// buffer for a path to disk.
//
// Thread-safety: safe for concurrent use via internal mutex.
type MemoryWorkspace struct {
	mu      sync.Mutex
	buffers map[string]string
	saves   map[string]int
}

// NewMemoryWorkspace creates an empty workspace.
func NewMemoryWorkspace() *MemoryWorkspace {
	return &MemoryWorkspace{
		buffers: make(map[string]string),
		saves:   make(map[string]int),
	}
}

// Edit replaces the unsaved buffer for path.
func (w *MemoryWorkspace) Edit(path, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffers[path] = content
}

// SaveDocument implements engine.Workspace.
func (w *MemoryWorkspace) SaveDocument(ctx context.Context, path string) error {
	w.mu.Lock()
	content, ok := w.buffers[path]
	w.saves[path]++
	w.mu.Unlock()

	if !ok {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Saves returns how many times path was saved.
func (w *MemoryWorkspace) Saves(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saves[path]
}
