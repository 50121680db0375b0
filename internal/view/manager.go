// Package view renders compiled artifacts as read-only virtual documents.
//
// Artifact previews live under the "whylson" URI scheme, distinct from the
// .tz files on disk, so the host never treats them as editable files and
// previews never write transient state to disk.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"
)

// Scheme is the URI scheme of artifact previews.
const Scheme = "whylson"

// DefaultPlaceholder is served for identities with no recorded content.
const DefaultPlaceholder = "# no artifact rendered yet\n"

// URIFor returns the preview identity for an artifact path.
func URIFor(artifactPath string) string {
	u := url.URL{Scheme: Scheme, Path: filepath.ToSlash(artifactPath)}
	return u.String()
}

// Document is a handle to an open preview. Handles go stale when the user
// closes the preview; Closed reports that.
type Document interface {
	URI() string
	Closed() bool
}

// Host is the editor surface the manager drives.
type Host interface {
	// OpenPreview opens uri beside the editor showing besideSource without
	// taking input focus. The host reads content through the manager's
	// ProvideContent.
	OpenPreview(ctx context.Context, uri, besideSource string) (Document, error)

	// IsVisible reports whether a document for uri is among the visible
	// editors.
	IsVisible(uri string) bool

	// NotifyChanged asks the host to re-read uri's content.
	NotifyChanged(uri string)
}

type instance struct {
	content string
	doc     Document
}

// Manager owns the preview instances, one per artifact identity.
//
// Thread-safety: safe for concurrent use. Display calls are serialized;
// ProvideContent never waits on the host.
type Manager struct {
	host        Host
	placeholder string
	logger      *slog.Logger

	displayMu sync.Mutex // serializes Display, held across host calls

	mu        sync.Mutex // guards instances, never held across host calls
	instances map[string]*instance
}

// Option configures a Manager.
type Option func(*Manager)

// WithPlaceholder overrides DefaultPlaceholder.
func WithPlaceholder(text string) Option {
	return func(m *Manager) {
		m.placeholder = text
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager bound to host.
func NewManager(host Host, opts ...Option) *Manager {
	m := &Manager{
		host:        host,
		placeholder: DefaultPlaceholder,
		logger:      slog.Default(),
		instances:   make(map[string]*instance),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Display records content for artifactID and shows it.
//
// With no instance, or one whose document handle is stale, a new preview is
// opened beside sourceID. With a live instance the content is replaced and
// the host notified; the tab is neither reopened nor refocused.
func (m *Manager) Display(ctx context.Context, sourceID, artifactID, content string) error {
	m.displayMu.Lock()
	defer m.displayMu.Unlock()

	m.mu.Lock()
	inst, ok := m.instances[artifactID]
	if !ok {
		inst = &instance{}
		m.instances[artifactID] = inst
	}
	inst.content = content
	doc := inst.doc
	m.mu.Unlock()

	if doc != nil && !doc.Closed() {
		m.logger.Debug("refreshing preview", "uri", artifactID)
		m.host.NotifyChanged(artifactID)
		return nil
	}

	m.logger.Debug("opening preview", "uri", artifactID, "source", sourceID)
	opened, err := m.host.OpenPreview(ctx, artifactID, sourceID)
	if err != nil {
		return fmt.Errorf("opening preview %s: %w", artifactID, err)
	}

	m.mu.Lock()
	if current, ok := m.instances[artifactID]; ok {
		current.doc = opened
	}
	m.mu.Unlock()
	return nil
}

// ProvideContent returns the last content recorded for artifactID, or the
// placeholder. No I/O.
func (m *Manager) ProvideContent(artifactID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[artifactID]; ok {
		return inst.content
	}
	return m.placeholder
}

// IsDisplayed reports whether a preview for artifactID is visible.
func (m *Manager) IsDisplayed(artifactID string) bool {
	return m.host.IsVisible(artifactID)
}

// Forget drops the instance for artifactID. A later Display opens a fresh
// preview.
func (m *Manager) Forget(artifactID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, artifactID)
}
