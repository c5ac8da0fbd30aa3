package application

import (
	"context"
	"errors"
	"sync"

	"github.com/felixgeelhaar/threadgate/domain/gate"
)

// ErrNoEdit is returned when a session is saved without an open edit.
var ErrNoEdit = errors.New("no pending edit")

// Session tracks the policy of one post view: the policy applied to the
// view and, while the settings dialog is open, the author's pending edit.
//
// Saving applies the pending policy to the view at once. The applied
// policy is not reverted when a write fails; the failure is reported
// through the outcome and the notifier.
type Session struct {
	orch *Orchestrator
	post gate.PostRef

	mu      sync.Mutex
	applied gate.Policy
	pending *gate.PendingPolicy
}

// NewSession creates a session for a post showing the given policy.
func NewSession(orch *Orchestrator, post gate.PostRef, applied gate.Policy) *Session {
	return &Session{
		orch:    orch,
		post:    post,
		applied: applied.Canonical(),
	}
}

// Post returns the post the session edits.
func (s *Session) Post() gate.PostRef {
	return s.post
}

// Applied returns the policy currently shown on the view.
func (s *Session) Applied() gate.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Open starts an edit from the applied policy. An edit already open is
// returned unchanged.
func (s *Session) Open() *gate.PendingPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		s.pending = gate.NewPendingPolicy(s.applied)
	}
	return s.pending
}

// Edit applies fn to the pending edit, opening one if needed.
func (s *Session) Edit(fn func(*gate.PendingPolicy)) gate.Policy {
	p := s.Open()
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(p)
	return p.Policy()
}

// Discard closes the pending edit without saving. The applied policy is
// left untouched.
func (s *Session) Discard() gate.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Discard()
		s.pending = nil
	}
	return s.applied
}

// Save applies the pending edit to the view and persists it.
func (s *Session) Save(ctx context.Context) (Outcome, error) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return Outcome{}, ErrNoEdit
	}
	desired := s.pending.Policy()
	s.applied = desired
	s.pending = nil
	s.mu.Unlock()

	return s.orch.Save(ctx, s.post, desired), nil
}
