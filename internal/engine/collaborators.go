package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/whylson/internal/contract"
	"github.com/roach88/whylson/internal/history"
)

// Prompter asks the user for a registration. ok is false when the user
// declined.
type Prompter interface {
	PromptEntrypoint(ctx context.Context, source string) (reg contract.Registration, ok bool, err error)
}

// Notifier shows transient user-facing messages.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Workspace persists editor buffers to disk.
type Workspace interface {
	SaveDocument(ctx context.Context, source string) error
}

// Journal records compile attempts.
type Journal interface {
	Record(ctx context.Context, a history.Attempt) (history.Attempt, error)
}

// RunIDGenerator names compiler invocations for logs and the journal.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type RunIDGenerator interface {
	Generate() string
}

type declineAll struct{}

func (declineAll) PromptEntrypoint(context.Context, string) (contract.Registration, bool, error) {
	return contract.Registration{}, false, nil
}

type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Info(msg string)  { n.logger.Info(msg) }
func (n logNotifier) Error(msg string) { n.logger.Error(msg) }

// diskWorkspace is used when documents are already on disk.
type diskWorkspace struct{}

func (diskWorkspace) SaveDocument(context.Context, string) error { return nil }
