// Package views holds what the collection and ledger views share: the
// loading-state machine, per-action locks and the collaborators they need.
package views

import (
	"context"
	"errors"
	"sort"
	"sync"

	"frintab/internal/core"
	"frintab/internal/events"
	applog "frintab/internal/log"
)

// ErrBusy is returned when an action is submitted while the same action is
// still in flight.
var ErrBusy = errors.New("action already in progress")

// Status is a view's list/page loading state.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusInitialLoading Status = "initial_loading"
	StatusLoaded         Status = "loaded"
	StatusFailed         Status = "failed"
)

// Begin is the status while a load is in flight. Only the very first load
// shows InitialLoading; refreshes keep the current status.
func (s Status) Begin() Status {
	if s == StatusIdle {
		return StatusInitialLoading
	}
	return s
}

// Finish is the terminal status of a load. A failed refresh of loaded data
// stays Loaded because the previous data is still shown.
func (s Status) Finish(err error) Status {
	if err == nil {
		return StatusLoaded
	}
	if s == StatusLoaded {
		return StatusLoaded
	}
	return StatusFailed
}

// Session is the gate each view operation passes first.
type Session interface {
	RequireUser(op string) (core.User, error)
}

// Publisher announces successful mutations to other clients.
type Publisher interface {
	Publish(ctx context.Context, msg events.Message) error
}

// NopPublisher publishes nothing.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, events.Message) error { return nil }

// Announce publishes msg and logs a failure. A mutation that already
// succeeded on the server is never reported as failed because of this.
func Announce(ctx context.Context, p Publisher, logger *applog.Logger, msg events.Message) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, msg); err != nil {
		logger.WarnContext(ctx, "Failed to publish ledger event",
			applog.FieldEventType, msg.Type,
			applog.FieldGroupID, msg.GroupID,
			applog.FieldError, err)
	}
}

// ActionLocks is a set of independent per-action locks.
type ActionLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// TryAcquire takes the lock for action or returns ErrBusy without blocking.
func (l *ActionLocks) TryAcquire(action string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[action] {
		return nil, ErrBusy
	}
	l.held[action] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, action)
		})
	}, nil
}

// Held reports whether action is in flight.
func (l *ActionLocks) Held(action string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[action]
}

// Snapshot returns the in-flight actions, sorted.
func (l *ActionLocks) Snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.held))
	for a := range l.held {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
