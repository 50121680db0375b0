package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/whylson/internal/view"
)

// FakeHost is an in-memory view.Host that tracks open previews.
//
// Thread-safety: safe for concurrent use via internal mutex. Provider is
// called without the lock held.
type FakeHost struct {
	mu       sync.Mutex
	docs     map[string]*FakeDocument
	opens    map[string]int
	notifies map[string]int
	openErr  error

	// Provider returns the current content of a preview; usually
	// view.Manager.ProvideContent.
	Provider func(uri string) string
}

// FakeDocument is a preview tab.
type FakeDocument struct {
	uri    string
	mu     sync.Mutex
	closed bool
}

// URI implements view.Document.
func (d *FakeDocument) URI() string { return d.uri }

// Closed implements view.Document.
func (d *FakeDocument) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// NewFakeHost creates a host with no open previews.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		docs:     make(map[string]*FakeDocument),
		opens:    make(map[string]int),
		notifies: make(map[string]int),
	}
}

// FailOpen makes OpenPreview return err until called again with nil.
func (h *FakeHost) FailOpen(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openErr = err
}

// OpenPreview implements view.Host.
func (h *FakeHost) OpenPreview(ctx context.Context, uri, besideSource string) (view.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.openErr != nil {
		return nil, h.openErr
	}
	if besideSource == "" {
		return nil, errors.New("preview opened without a source column")
	}
	doc := &FakeDocument{uri: uri}
	h.docs[uri] = doc
	h.opens[uri]++
	return doc, nil
}

// IsVisible implements view.Host.
func (h *FakeHost) IsVisible(uri string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.docs[uri]
	return ok && !doc.Closed()
}

// NotifyChanged implements view.Host.
func (h *FakeHost) NotifyChanged(uri string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifies[uri]++
}

// Close simulates the user closing the preview tab for uri.
func (h *FakeHost) Close(uri string) {
	h.mu.Lock()
	doc, ok := h.docs[uri]
	delete(h.docs, uri)
	h.mu.Unlock()

	if ok {
		doc.mu.Lock()
		doc.closed = true
		doc.mu.Unlock()
	}
}

// Opens returns how many times a preview for uri was opened.
func (h *FakeHost) Opens(uri string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opens[uri]
}

// Notifies returns how many change notifications uri received.
func (h *FakeHost) Notifies(uri string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.notifies[uri]
}

// Content returns what the preview for uri shows.
func (h *FakeHost) Content(uri string) string {
	if h.Provider == nil {
		return ""
	}
	return h.Provider(uri)
}
