// Package notify delivers short user-facing messages emitted by the views.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"frintab/internal/core"
	applog "frintab/internal/log"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier implementations must return promptly; views call Notify while
// finishing an operation.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Success builds a success notification.
func Success(msg string) Notification {
	return Notification{Level: LevelSuccess, Message: msg, At: time.Now()}
}

// Info builds an informational notification.
func Info(msg string) Notification {
	return Notification{Level: LevelInfo, Message: msg, At: time.Now()}
}

// Failure builds an error notification from err. Sync errors without a
// server message use fallback so transport noise never reaches the user.
func Failure(err error, fallback string) Notification {
	msg := fallback
	var e *core.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	return Notification{Level: LevelError, Message: msg, At: time.Now()}
}

// Discard drops every notification.
type Discard struct{}

func (Discard) Notify(context.Context, Notification) {}

// Log writes notifications to a structured logger.
type Log struct {
	logger *applog.Logger
}

func NewLog(logger *applog.Logger) *Log {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n Notification) {
	if n.Level == LevelError {
		l.logger.WarnContext(ctx, n.Message, "notification", n.Level)
		return
	}
	l.logger.InfoContext(ctx, n.Message, "notification", n.Level)
}

// Writer prints one line per notification, e.g. to a terminal.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (p *Writer) Notify(_ context.Context, n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prefix := "·"
	switch n.Level {
	case LevelSuccess:
		prefix = "✓"
	case LevelError:
		prefix = "✗"
	}
	fmt.Fprintf(p.w, "%s %s\n", prefix, n.Message)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns a copy of what was recorded.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Last returns the most recent notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return Notification{}, false
	}
	return r.all[len(r.all)-1], true
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		x.Notify(ctx, n)
	}
}
