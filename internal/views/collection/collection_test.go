package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"frintab/internal/core"
	"frintab/internal/events"
	"frintab/internal/gateway"
	"frintab/internal/gateway/memory"
	"frintab/internal/notify"
	"frintab/internal/query"
	"frintab/internal/session"
	"frintab/internal/views"
)

// countingLedger counts calls that reach the remote ledger.
type countingLedger struct {
	gateway.Ledger

	mu       sync.Mutex
	calls    map[string]int
	listFail error
}

func (c *countingLedger) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[name]++
}

func (c *countingLedger) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingLedger) ListMyGroups(ctx context.Context) ([]core.Group, error) {
	c.hit("list")
	c.mu.Lock()
	fail := c.listFail
	c.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return c.Ledger.ListMyGroups(ctx)
}

func (c *countingLedger) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	c.hit("create")
	return c.Ledger.CreateGroup(ctx, name)
}

func (c *countingLedger) JoinGroup(ctx context.Context, code string) (core.Group, error) {
	c.hit("join")
	return c.Ledger.JoinGroup(ctx, code)
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (p *recordingPublisher) Publish(_ context.Context, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

type fixture struct {
	store      *memory.Store
	sess       *session.Store
	api        *countingLedger
	dispatcher *query.Dispatcher
	notes      *notify.Recorder
	pub        *recordingPublisher
	view       *View
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost), memory.WithSigningKey([]byte("test-key")))

	var sess *session.Store
	client := store.Client(gateway.TokenFunc(func(ctx context.Context) (string, error) {
		return sess.Token(ctx)
	}))
	sess = session.New(session.Options{Auth: client})

	api := &countingLedger{Ledger: client}
	reader := query.NewReader(api, query.ReaderOptions{TTL: time.Minute, Size: 32})
	dispatcher := query.NewDispatcher(reader, nil)

	f := &fixture{
		store:      store,
		sess:       sess,
		api:        api,
		dispatcher: dispatcher,
		notes:      &notify.Recorder{},
		pub:        &recordingPublisher{},
	}
	f.view = New(Options{
		Session:    sess,
		Groups:     reader,
		Writer:     api,
		Dispatcher: dispatcher,
		Notifier:   f.notes,
		Publisher:  f.pub,
	})
	t.Cleanup(f.view.Close)
	return f
}

func (f *fixture) login(t *testing.T, name string) core.User {
	t.Helper()
	email := name + "@example.com"
	_, err := f.store.RegisterUser(name, email, "secret")
	require.NoError(t, err)
	u, err := f.sess.Login(context.Background(), core.Credentials{Email: email, Password: "secret"})
	require.NoError(t, err)
	return u
}

func lastLevel(t *testing.T, r *notify.Recorder) notify.Level {
	t.Helper()
	n, ok := r.Last()
	require.True(t, ok, "expected a notification")
	return n.Level
}

func TestListMyGroups(t *testing.T) {
	f := newFixture(t)
	u := f.login(t, "ani")
	g, err := f.store.CreateGroupFor(u.ID, "Kos Bersama")
	require.NoError(t, err)

	assert.Equal(t, views.StatusIdle, f.view.Snapshot().Status)

	groups, err := f.view.ListMyGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Kos Bersama", groups[g.ID].Name)
	assert.Equal(t, g.GroupCode, groups[g.ID].GroupCode)
	assert.Equal(t, 1, groups[g.ID].MemberCount())

	st := f.view.Snapshot()
	assert.Equal(t, views.StatusLoaded, st.Status)
	require.Len(t, st.Groups, 1)
}

func TestListRequiresSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.view.ListMyGroups(context.Background())
	require.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Zero(t, f.api.count("list"))
	assert.Equal(t, notify.LevelError, lastLevel(t, f.notes))
}

func TestFailedRefreshKeepsPreviousList(t *testing.T) {
	f := newFixture(t)
	u := f.login(t, "ani")
	_, err := f.store.CreateGroupFor(u.ID, "Kos Bersama")
	require.NoError(t, err)

	_, err = f.view.ListMyGroups(context.Background())
	require.NoError(t, err)

	f.api.mu.Lock()
	f.api.listFail = core.Sync("list groups", errors.New("connection reset"))
	f.api.mu.Unlock()
	f.dispatcher.Invalidate(context.Background(), query.GroupList())

	_, err = f.view.ListMyGroups(context.Background())
	require.ErrorIs(t, err, core.ErrSync)

	st := f.view.Snapshot()
	assert.Equal(t, views.StatusLoaded, st.Status)
	assert.Len(t, st.Groups, 1, "previous list must stay visible")
	n, _ := f.notes.Last()
	assert.Equal(t, "Failed to sync groups", n.Message)
}

func TestFirstLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")
	f.api.listFail = core.Sync("list groups", errors.New("timeout"))

	_, err := f.view.ListMyGroups(context.Background())
	require.Error(t, err)
	assert.Equal(t, views.StatusFailed, f.view.Snapshot().Status)

	f.api.mu.Lock()
	f.api.listFail = nil
	f.api.mu.Unlock()
	_, err = f.view.ListMyGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, views.StatusLoaded, f.view.Snapshot().Status)
}

func TestCreateGroupRejectsEmptyNameWithoutRequest(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")

	for _, name := range []string{"", "   "} {
		_, err := f.view.CreateGroup(context.Background(), name)
		require.ErrorIs(t, err, core.ErrValidation)
	}
	assert.Zero(t, f.api.count("create"))
	assert.Equal(t, notify.LevelError, lastLevel(t, f.notes))
}

func TestCreateGroupRefreshesList(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")

	_, err := f.view.ListMyGroups(context.Background())
	require.NoError(t, err)

	g, err := f.view.CreateGroup(context.Background(), "  Liburan  ")
	require.NoError(t, err)
	assert.Equal(t, "Liburan", g.Name)

	st := f.view.Snapshot()
	require.Len(t, st.Groups, 1)
	assert.Equal(t, g.ID, st.Groups[0].ID)
	assert.Empty(t, st.CreateName, "input is cleared on success")
	assert.Empty(t, st.ActionLoading)
	assert.Equal(t, 2, f.api.count("list"), "create must refetch the list past the cache")
	assert.Equal(t, notify.LevelSuccess, lastLevel(t, f.notes))

	require.Len(t, f.pub.msgs, 1)
	assert.Equal(t, events.GroupCreated, f.pub.msgs[0].Type)
	assert.Equal(t, g.ID, f.pub.msgs[0].GroupID)
}

func TestCreateGroupDuplicateNameIsConflict(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")

	_, err := f.view.CreateGroup(context.Background(), "Kos")
	require.NoError(t, err)
	_, err = f.view.CreateGroup(context.Background(), "kos")
	require.ErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, "kos", f.view.Snapshot().CreateName, "failed submit keeps the input")
}

func TestJoinInvalidCodeKeepsInput(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")

	_, err := f.view.JoinGroup(context.Background(), "zzzzzz")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, "zzzzzz", f.view.Snapshot().JoinCode)
	assert.Equal(t, 1, f.api.count("join"))
	assert.Empty(t, f.pub.msgs)
}

func TestJoinEmptyCodeIsValidationError(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")

	_, err := f.view.JoinGroup(context.Background(), " ")
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Zero(t, f.api.count("join"))
}

func TestJoinTwiceListsGroupOnce(t *testing.T) {
	f := newFixture(t)
	owner, err := f.store.RegisterUser("budi", "budi@example.com", "secret")
	require.NoError(t, err)
	g, err := f.store.CreateGroupFor(owner.ID, "Kos Bersama")
	require.NoError(t, err)

	f.login(t, "ani")
	for i := 0; i < 2; i++ {
		joined, err := f.view.JoinGroup(context.Background(), g.GroupCode)
		require.NoError(t, err)
		assert.Equal(t, g.ID, joined.ID)
	}

	groups, err := f.view.ListMyGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[g.ID].MemberCount())
	assert.Empty(t, f.view.Snapshot().JoinCode)
}

// codeRecorder records the codes that reach the ledger.
type codeRecorder struct {
	gateway.GroupWriter
	codes []string
}

func (w *codeRecorder) JoinGroup(ctx context.Context, code string) (core.Group, error) {
	w.codes = append(w.codes, code)
	return w.GroupWriter.JoinGroup(ctx, code)
}

func TestJoinSendsCodeAsTyped(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")
	f.view.Close()

	w := &codeRecorder{GroupWriter: f.api}
	view := New(Options{Session: f.sess, Groups: query.NewReader(f.api, query.ReaderOptions{}), Writer: w, Notifier: f.notes})
	defer view.Close()

	for _, typed := range []string{"abC9xq", "  kq7Z2m "} {
		_, _ = view.JoinGroup(context.Background(), typed)
	}
	assert.Equal(t, []string{"abC9xq", "kq7Z2m"}, w.codes)
}

// blockingWriter holds CreateGroup until released.
type blockingWriter struct {
	gateway.GroupWriter
	started chan struct{}
	release chan struct{}
}

func (w *blockingWriter) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	close(w.started)
	<-w.release
	return w.GroupWriter.CreateGroup(ctx, name)
}

func TestCreateIsLockedWhileInFlight(t *testing.T) {
	f := newFixture(t)
	f.login(t, "ani")
	f.view.Close()

	w := &blockingWriter{GroupWriter: f.api, started: make(chan struct{}), release: make(chan struct{})}
	reader := query.NewReader(f.api, query.ReaderOptions{})
	view := New(Options{Session: f.sess, Groups: reader, Writer: w, Notifier: f.notes})
	defer view.Close()

	done := make(chan error, 1)
	go func() {
		_, err := view.CreateGroup(context.Background(), "Kos")
		done <- err
	}()
	<-w.started

	assert.Equal(t, []string{ActionCreate}, view.Snapshot().ActionLoading)
	_, err := view.CreateGroup(context.Background(), "Kos")
	require.ErrorIs(t, err, views.ErrBusy)

	_, err = view.ListMyGroups(context.Background())
	require.NoError(t, err, "list refresh is not blocked by the create lock")

	close(w.release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.api.count("create"))
	assert.Empty(t, view.Snapshot().ActionLoading)
}
