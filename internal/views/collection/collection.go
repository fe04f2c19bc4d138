// Package collection implements the group collection view: the list of
// groups the signed-in user belongs to plus the create and join actions.
package collection

import (
	"context"
	"strings"
	"sync"

	"frintab/internal/core"
	"frintab/internal/events"
	"frintab/internal/gateway"
	applog "frintab/internal/log"
	"frintab/internal/notify"
	"frintab/internal/query"
	"frintab/internal/views"
)

// Per-action lock names.
const (
	ActionCreate = "create"
	ActionJoin   = "join"
)

// Lister is the read the view refreshes from, usually a query.Reader.
type Lister interface {
	ListMyGroups(ctx context.Context) ([]core.Group, error)
}

// Options wires a View. A nil Dispatcher, Notifier, Publisher or Logger is
// replaced with a no-op.
type Options struct {
	Session    views.Session
	Groups     Lister
	Writer     gateway.GroupWriter
	Dispatcher *query.Dispatcher
	Notifier   notify.Notifier
	Publisher  views.Publisher
	Logger     *applog.Logger
}

// State is what a renderer reads.
type State struct {
	Status        views.Status `json:"status"`
	Groups        []core.Group `json:"groups"`
	ActionLoading []string     `json:"actionLoading,omitempty"`
	CreateName    string       `json:"createName"`
	JoinCode      string       `json:"joinCode"`
}

// View holds the group list and the create and join inputs. It is safe for
// concurrent use.
type View struct {
	mu         sync.Mutex
	status     views.Status
	groups     []core.Group
	createName string
	joinCode   string
	seq        uint64

	locks      views.ActionLocks
	session    views.Session
	lister     Lister
	writer     gateway.GroupWriter
	dispatcher *query.Dispatcher
	notifier   notify.Notifier
	publisher  views.Publisher
	logger     *applog.Logger
	unregister func()
}

// New creates the view and subscribes it to group list invalidations until
// Close.
func New(opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Publisher == nil {
		opts.Publisher = views.NopPublisher{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = query.NewDispatcher(nil, opts.Logger)
	}
	v := &View{
		status:     views.StatusIdle,
		session:    opts.Session,
		lister:     opts.Groups,
		writer:     opts.Writer,
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		logger:     opts.Logger.WithComponent(applog.ComponentCollection),
	}
	v.unregister = v.dispatcher.Register(query.GroupList(), v.refresh)
	return v
}

// Close stops the view from reacting to invalidations.
func (v *View) Close() {
	v.unregister()
}

// ListMyGroups refreshes the list and returns it keyed by group id. On
// failure the previously shown list is kept.
func (v *View) ListMyGroups(ctx context.Context) (map[string]core.Group, error) {
	if _, err := v.session.RequireUser(applog.OpListGroups); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return nil, err
	}
	if err := v.refresh(ctx); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to sync groups"))
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]core.Group, len(v.groups))
	for _, g := range v.groups {
		out[g.ID] = g
	}
	return out, nil
}

// refresh is also the GroupList refetcher.
func (v *View) refresh(ctx context.Context) error {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.status = v.status.Begin()
	v.mu.Unlock()

	groups, err := v.lister.ListMyGroups(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		v.logger.DebugContext(ctx, "Discarding stale group list", applog.FieldSeq, seq)
		return nil
	}
	v.status = v.status.Finish(err)
	if err != nil {
		v.logger.WarnContext(ctx, "Failed to list groups",
			applog.FieldOperation, applog.OpListGroups,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		return err
	}
	if groups == nil {
		groups = []core.Group{}
	}
	v.groups = groups
	return nil
}

// SetCreateName updates the create-group input.
func (v *View) SetCreateName(name string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.createName = name
}

// SetJoinCode updates the join-group input.
func (v *View) SetJoinCode(code string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.joinCode = code
}

// CreateGroup creates a group named name with the caller as its only
// member, then refreshes the list.
func (v *View) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	const op = applog.OpCreateGroup
	if _, err := v.session.RequireUser(op); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return core.Group{}, err
	}
	v.SetCreateName(name)

	name = strings.TrimSpace(name)
	if name == "" {
		err := core.Validation(op, "group name is required")
		v.notifier.Notify(ctx, notify.Failure(err, ""))
		return core.Group{}, err
	}

	release, err := v.locks.TryAcquire(ActionCreate)
	if err != nil {
		return core.Group{}, err
	}
	defer release()

	g, err := v.writer.CreateGroup(ctx, name)
	if err != nil {
		v.logger.WarnContext(ctx, "Create group failed",
			applog.FieldOperation, op,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to create group"))
		return core.Group{}, err
	}

	v.SetCreateName("")
	v.afterWrite(ctx, query.AfterCreateGroup(), events.NewMessage(events.GroupCreated, g.ID))
	v.notifier.Notify(ctx, notify.Success("Group "+g.Name+" created"))
	return g, nil
}

// JoinGroup adds the caller to the group using code, sent as typed apart
// from surrounding spaces. An unknown code keeps the typed code so it can be
// corrected.
func (v *View) JoinGroup(ctx context.Context, code string) (core.Group, error) {
	const op = applog.OpJoinGroup
	if _, err := v.session.RequireUser(op); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return core.Group{}, err
	}
	v.SetJoinCode(code)

	code = strings.TrimSpace(code)
	if code == "" {
		err := core.Validation(op, "group code is required")
		v.notifier.Notify(ctx, notify.Failure(err, ""))
		return core.Group{}, err
	}

	release, err := v.locks.TryAcquire(ActionJoin)
	if err != nil {
		return core.Group{}, err
	}
	defer release()

	g, err := v.writer.JoinGroup(ctx, code)
	if err != nil {
		v.logger.WarnContext(ctx, "Join group failed",
			applog.FieldOperation, op,
			applog.FieldGroupCode, code,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		v.notifier.Notify(ctx, notify.Failure(err, "Invalid group code"))
		return core.Group{}, err
	}

	v.SetJoinCode("")
	v.afterWrite(ctx, query.AfterJoinGroup(), events.NewMessage(events.GroupJoined, g.ID))
	v.notifier.Notify(ctx, notify.Success("Joined "+g.Name))
	return g, nil
}

func (v *View) afterWrite(ctx context.Context, keys []query.Key, msg events.Message) {
	if err := v.dispatcher.Invalidate(ctx, keys...); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to sync groups"))
	}
	views.Announce(ctx, v.publisher, v.logger, msg)
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		Status:        v.status,
		Groups:        append([]core.Group(nil), v.groups...),
		ActionLoading: v.locks.Snapshot(),
		CreateName:    v.createName,
		JoinCode:      v.joinCode,
	}
}
