package testutil

import (
	"context"
	"sync"

	"github.com/roach88/whylson/internal/contract"
)

// ScriptedPrompter answers entrypoint prompts from a queue. With the queue
// empty it declines.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedPrompter struct {
	mu      sync.Mutex
	answers []contract.Registration
	asked   []string
}

// NewScriptedPrompter queues answers in order.
func NewScriptedPrompter(answers ...contract.Registration) *ScriptedPrompter {
	return &ScriptedPrompter{answers: answers}
}

// Answer appends an answer with the given entrypoint and flags.
func (p *ScriptedPrompter) Answer(entrypoint string, flags ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers = append(p.answers, contract.Registration{Entrypoint: entrypoint, Flags: flags})
}

// PromptEntrypoint implements engine.Prompter.
func (p *ScriptedPrompter) PromptEntrypoint(ctx context.Context, source string) (contract.Registration, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.asked = append(p.asked, source)
	if len(p.answers) == 0 {
		return contract.Registration{}, false, nil
	}
	next := p.answers[0]
	p.answers = p.answers[1:]
	return next, true, nil
}

// Asked returns the sources prompted for, in order.
func (p *ScriptedPrompter) Asked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.asked...)
}

// RecordingNotifier keeps every notification.
type RecordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

// Info implements engine.Notifier.
func (n *RecordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

// Error implements engine.Notifier.
func (n *RecordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

// Infos returns informational messages.
func (n *RecordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

// Errors returns error messages.
func (n *RecordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}
