// Package ledger implements the group ledger view: one group's metadata,
// its balance and a paginated transaction feed, plus recording new
// transactions.
//
// Page fetches are numbered as they are issued. A response is applied only
// when it belongs to the latest issued fetch, so out-of-order completions
// never replace a newer page with an older one.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"frintab/internal/core"
	"frintab/internal/events"
	"frintab/internal/gateway"
	applog "frintab/internal/log"
	"frintab/internal/notify"
	"frintab/internal/query"
	"frintab/internal/views"
)

// ActionSave locks the record-transaction submit.
const ActionSave = "save"

// Source is the read side the view loads from, usually a query.Reader.
type Source interface {
	GetGroup(ctx context.Context, groupID string) (core.Group, error)
	gateway.TransactionReader
}

// Form is the record-transaction dialog input.
type Form struct {
	Amount string               `json:"amount"`
	Type   core.TransactionType `json:"type"`
	Note   string               `json:"note"`
}

// Options wires a View. Limit defaults to core.DefaultPageLimit; a nil
// Dispatcher, Notifier or Publisher is replaced with a no-op.
type Options struct {
	GroupID    string
	Limit      int
	Session    views.Session
	Reader     Source
	Writer     gateway.TransactionWriter
	Dispatcher *query.Dispatcher
	Notifier   notify.Notifier
	Publisher  views.Publisher
	Logger     *applog.Logger
}

// State is what a renderer reads.
type State struct {
	GroupID       string             `json:"groupId"`
	Status        views.Status       `json:"status"`
	Loading       bool               `json:"loading"`
	Group         core.Group         `json:"group"`
	TotalBalance  decimal.Decimal    `json:"totalBalance"`
	Transactions  []core.Transaction `json:"transactions"`
	Window        core.PageWindow    `json:"window"`
	DialogOpen    bool               `json:"dialogOpen"`
	Form          Form               `json:"form"`
	ActionLoading []string           `json:"actionLoading,omitempty"`
}

// View holds one group's ledger state. It is safe for concurrent use.
type View struct {
	groupID string

	mu           sync.Mutex
	status       views.Status
	loading      bool
	group        core.Group
	metaLoaded   bool
	transactions []core.Transaction
	window       core.PageWindow
	seq          uint64
	refetchTo    int
	dialogOpen   bool
	form         Form

	locks      views.ActionLocks
	session    views.Session
	reader     Source
	writer     gateway.TransactionWriter
	dispatcher *query.Dispatcher
	notifier   notify.Notifier
	publisher  views.Publisher
	logger     *applog.Logger
	unregister []func()
}

// New creates the view for one group and subscribes it to invalidations of
// that group's pages and detail until Close.
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
		groupID:    opts.GroupID,
		status:     views.StatusIdle,
		window:     core.NewPageWindow(opts.Limit),
		session:    opts.Session,
		reader:     opts.Reader,
		writer:     opts.Writer,
		dispatcher: opts.Dispatcher,
		notifier:   opts.Notifier,
		publisher:  opts.Publisher,
		logger:     opts.Logger.WithComponent(applog.ComponentLedger).With(applog.FieldGroupID, opts.GroupID),
	}
	v.unregister = []func(){
		v.dispatcher.Register(query.TransactionPages(v.groupID), v.refetchPage),
		v.dispatcher.Register(query.GroupDetail(v.groupID), v.fetchMeta),
	}
	return v
}

// Close unsubscribes the view.
func (v *View) Close() {
	for _, fn := range v.unregister {
		fn()
	}
}

// Open runs the combined load: the current page and the group metadata are
// fetched concurrently and Loading clears only once both have finished.
func (v *View) Open(ctx context.Context) error {
	if _, err := v.session.RequireUser(applog.OpPage); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return err
	}

	v.mu.Lock()
	v.loading = true
	v.status = v.status.Begin()
	page := v.window.Page
	v.mu.Unlock()

	var g errgroup.Group
	g.Go(func() error { return v.fetchMeta(ctx) })
	g.Go(func() error { return v.fetchPage(ctx, page) })
	err := g.Wait()

	v.mu.Lock()
	v.loading = false
	v.status = v.status.Finish(err)
	v.mu.Unlock()

	if err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to load group data"))
		return err
	}
	return nil
}

// LoadGroupMeta reloads name, code and members.
func (v *View) LoadGroupMeta(ctx context.Context) error {
	if _, err := v.session.RequireUser(applog.OpGroupMeta); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return err
	}
	if err := v.fetchMeta(ctx); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to load group details"))
		return err
	}
	return nil
}

func (v *View) fetchMeta(ctx context.Context) error {
	g, err := v.reader.GetGroup(ctx, v.groupID)
	if err != nil {
		v.logger.WarnContext(ctx, "Failed to load group metadata",
			applog.FieldOperation, applog.OpGroupMeta,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	balance := v.group.TotalBalance
	v.group = g
	v.group.TotalBalance = balance
	v.metaLoaded = true
	return nil
}

// LoadTransactionPage fetches page. A page past the end yields an empty list.
func (v *View) LoadTransactionPage(ctx context.Context, page int) error {
	const op = applog.OpPage
	if _, err := v.session.RequireUser(op); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return err
	}
	if page < 1 {
		return core.Validation(op, "page must be at least 1")
	}

	v.mu.Lock()
	v.status = v.status.Begin()
	v.mu.Unlock()

	err := v.fetchPage(ctx, page)

	v.mu.Lock()
	v.status = v.status.Finish(err)
	v.mu.Unlock()

	if err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to load transactions"))
		return err
	}
	return nil
}

// refetchPage reloads whatever page the cursor is on, or the page a write
// asked for. The cursor only moves once that page has loaded.
func (v *View) refetchPage(ctx context.Context) error {
	v.mu.Lock()
	page := v.window.Page
	if v.refetchTo > 0 {
		page = v.refetchTo
	}
	v.mu.Unlock()
	return v.fetchPage(ctx, page)
}

func (v *View) fetchPage(ctx context.Context, page int) error {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	limit := v.window.Limit
	v.mu.Unlock()

	p, err := v.reader.GetTransactionPage(ctx, v.groupID, page, limit)

	v.mu.Lock()
	defer v.mu.Unlock()
	if seq != v.seq {
		v.logger.DebugContext(ctx, "Discarding stale transaction page",
			applog.FieldPage, page,
			applog.FieldSeq, seq,
			"latest_seq", v.seq)
		return nil
	}
	if err != nil {
		v.logger.WarnContext(ctx, "Failed to load transaction page",
			applog.FieldOperation, applog.OpPage,
			applog.FieldPage, page,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		return err
	}

	v.window.Page = page
	v.window = v.window.Apply(p)
	v.transactions = p.Transactions
	if v.transactions == nil || page > p.TotalPages {
		v.transactions = []core.Transaction{}
	}
	v.group.TotalBalance = p.Group.TotalBalance
	if !v.metaLoaded {
		meta := p.Group
		meta.ID = v.groupID
		v.group = meta
	}
	return nil
}

// GoToPage moves the cursor. Pages outside [1, totalPages] are rejected
// without a request.
func (v *View) GoToPage(ctx context.Context, page int) error {
	v.mu.Lock()
	w := v.window
	v.mu.Unlock()
	if !w.CanGoTo(page) {
		return core.Validation(applog.OpPage, fmt.Sprintf("page %d is outside 1..%d", page, w.TotalPages))
	}
	return v.LoadTransactionPage(ctx, page)
}

// NextPage and PrevPage step the cursor by one page.
func (v *View) NextPage(ctx context.Context) error {
	v.mu.Lock()
	page := v.window.Page + 1
	v.mu.Unlock()
	return v.GoToPage(ctx, page)
}

func (v *View) PrevPage(ctx context.Context) error {
	v.mu.Lock()
	page := v.window.Page - 1
	v.mu.Unlock()
	return v.GoToPage(ctx, page)
}

func (v *View) OpenDialog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dialogOpen = true
}

func (v *View) CloseDialog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dialogOpen = false
}

func (v *View) SetForm(f Form) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = f
}

// RecordTransaction validates f, records it and brings page 1 up to date
// before the dialog closes. On failure the dialog and form stay as they are.
func (v *View) RecordTransaction(ctx context.Context, f Form) (core.Transaction, error) {
	const op = applog.OpRecord
	if _, err := v.session.RequireUser(op); err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Please log in first"))
		return core.Transaction{}, err
	}
	v.SetForm(f)

	amount, err := core.ParseAmount(f.Amount)
	if err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Amount is required"))
		return core.Transaction{}, err
	}
	if !f.Type.Valid() {
		err := core.Validation(op, "type must be INCOME or EXPENSE")
		v.notifier.Notify(ctx, notify.Failure(err, ""))
		return core.Transaction{}, err
	}

	release, err := v.locks.TryAcquire(ActionSave)
	if err != nil {
		return core.Transaction{}, err
	}
	defer release()

	tx, err := v.writer.RecordTransaction(ctx, gateway.NewTransaction{
		GroupID: v.groupID,
		Amount:  amount,
		Type:    f.Type,
		Note:    core.NormalizeNote(f.Note),
	})
	if err != nil {
		v.logger.WarnContext(ctx, "Record transaction failed",
			applog.FieldOperation, op,
			applog.FieldAmount, amount.String(),
			applog.FieldTxType, f.Type,
			applog.FieldErrorKind, core.KindOf(err),
			applog.FieldError, err)
		v.notifier.Notify(ctx, notify.Failure(err, "Failed to save transaction"))
		return core.Transaction{}, err
	}

	v.mu.Lock()
	v.refetchTo = 1
	v.mu.Unlock()

	err = v.dispatcher.Invalidate(ctx, query.AfterRecordTransaction(v.groupID)...)

	v.mu.Lock()
	v.refetchTo = 0
	v.mu.Unlock()
	if err != nil {
		v.notifier.Notify(ctx, notify.Failure(err, "Transaction saved, but the ledger could not be refreshed"))
	}

	v.mu.Lock()
	v.dialogOpen = false
	v.form = Form{}
	v.mu.Unlock()

	views.Announce(ctx, v.publisher, v.logger, events.NewMessage(events.TransactionRecorded, v.groupID))
	v.notifier.Notify(ctx, notify.Success("Transaction saved"))
	return tx, nil
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return State{
		GroupID:       v.groupID,
		Status:        v.status,
		Loading:       v.loading,
		Group:         v.group,
		TotalBalance:  v.group.TotalBalance,
		Transactions:  append([]core.Transaction(nil), v.transactions...),
		Window:        v.window,
		DialogOpen:    v.dialogOpen,
		Form:          v.form,
		ActionLoading: v.locks.Snapshot(),
	}
}

// CollectAll walks every page of a group's history, newest first.
func CollectAll(ctx context.Context, reader gateway.TransactionReader, groupID string, limit int) (core.Group, []core.Transaction, error) {
	if limit < 1 {
		limit = core.DefaultPageLimit
	}
	var (
		group core.Group
		all   []core.Transaction
	)
	for page := 1; ; page++ {
		p, err := reader.GetTransactionPage(ctx, groupID, page, limit)
		if err != nil {
			return core.Group{}, nil, err
		}
		if page == 1 {
			group = p.Group
		}
		all = append(all, p.Transactions...)
		if page >= p.TotalPages || len(p.Transactions) == 0 {
			break
		}
	}
	return group, all, nil
}
