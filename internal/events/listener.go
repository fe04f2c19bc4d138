package events

import (
	"context"

	applog "frintab/internal/log"
	"frintab/internal/query"
)

// Invalidator is satisfied by query.Dispatcher.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...query.Key) error
}

// Listener turns change events from other clients into query invalidations.
type Listener struct {
	invalidator Invalidator
	origin      string
	logger      *applog.Logger
}

// NewListener ignores messages stamped with origin, since the local views
// already refreshed after their own writes.
func NewListener(inv Invalidator, origin string, logger *applog.Logger) *Listener {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Listener{
		invalidator: inv,
		origin:      origin,
		logger:      logger.WithComponent(applog.ComponentEvents),
	}
}

// Handle is an events.Handler.
func (l *Listener) Handle(ctx context.Context, msg Message) error {
	if msg.Origin != "" && msg.Origin == l.origin {
		return nil
	}

	keys := KeysFor(msg)
	if len(keys) == 0 {
		return nil
	}

	l.logger.InfoContext(ctx, "Ledger changed elsewhere",
		applog.FieldEventType, msg.Type,
		applog.FieldGroupID, msg.GroupID)
	return l.invalidator.Invalidate(ctx, keys...)
}

// KeysFor returns the queries a change event makes stale.
func KeysFor(msg Message) []query.Key {
	switch msg.Type {
	case GroupCreated:
		return query.AfterCreateGroup()
	case GroupJoined:
		return query.AfterMembershipChange(msg.GroupID)
	case TransactionRecorded:
		return query.AfterRecordTransaction(msg.GroupID)
	}
	return nil
}
