package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	goption "google.golang.org/api/option"

	"frintab/internal/config"
	"frintab/internal/core"
	"frintab/internal/credstore"
	"frintab/internal/gateway"
	"frintab/internal/gateway/memory"
	"frintab/internal/notify"
)

type testCLI struct {
	store *memory.Store
	app   *App
	notes *notify.Recorder
}

func newTestCLI(t *testing.T, mutate func(*config.Config, *AppOptions)) *testCLI {
	t.Helper()
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost), memory.WithSigningKey([]byte("test-key")))
	cfg := &config.Config{
		Backend:   config.BackendMemory,
		PageSize:  5,
		CacheTTL:  time.Minute,
		CacheSize: 32,
		LogFormat: "text",
	}
	notes := &notify.Recorder{}
	opts := AppOptions{
		Config:   cfg,
		Creds:    credstore.NewMemory(),
		Store:    store,
		Notifier: notes,
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}
	app, err := NewApp(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	return &testCLI{store: store, app: app, notes: notes}
}

func (c *testCLI) run(args ...string) (string, error) {
	root := newRootCommand(func(*cobra.Command, *RootOptions) (*App, func(), error) {
		return c.app, func() {}, nil
	})
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func (c *testCLI) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := c.run(args...)
	require.NoError(t, err, "frintab %s", strings.Join(args, " "))
	return out
}

func (c *testCLI) signIn(t *testing.T, name string) core.User {
	t.Helper()
	email := name + "@example.com"
	u, err := c.store.RegisterUser(name, email, "secret")
	require.NoError(t, err)
	c.mustRun(t, "login", "--email", email, "--password", "secret")
	return u
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"register"}, {"login"}, {"logout"}, {"whoami"},
		{"groups"}, {"groups", "create"}, {"groups", "join"},
		{"ledger"}, {"record"}, {"export"}, {"watch"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, FormatText, format.DefValue)
}

func TestInvalidFormatIsUsageError(t *testing.T) {
	c := newTestCLI(t, nil)
	_, err := c.run("whoami", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestWrongArgCountIsUsageError(t *testing.T) {
	c := newTestCLI(t, nil)
	_, err := c.run("groups", "create")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRegisterLoginWhoami(t *testing.T) {
	c := newTestCLI(t, nil)

	out := c.mustRun(t, "register", "--name", "Ani", "--email", "ani@example.com", "--password", "secret")
	assert.Contains(t, out, "Registered ani@example.com")

	_, err := c.run("whoami")
	require.ErrorIs(t, err, core.ErrUnauthenticated, "register does not sign in")
	assert.Equal(t, ExitFailure, ExitCode(err))

	c.mustRun(t, "login", "--email", "ani@example.com", "--password", "secret")
	user := decode[userOutput](t, c.mustRun(t, "whoami", "--format", "json"))
	assert.Equal(t, "Ani", user.Name)
	assert.Equal(t, "ani@example.com", user.Email)
}

func TestLoginWrongPassword(t *testing.T) {
	c := newTestCLI(t, nil)
	_, err := c.store.RegisterUser("Ani", "ani@example.com", "secret")
	require.NoError(t, err)

	_, err = c.run("login", "--email", "ani@example.com", "--password", "nope")
	require.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestLoginPasswordFromEnv(t *testing.T) {
	c := newTestCLI(t, nil)
	_, err := c.store.RegisterUser("Ani", "ani@example.com", "secret")
	require.NoError(t, err)
	t.Setenv(passwordEnv, "secret")

	c.mustRun(t, "login", "--email", "ani@example.com")
	_, ok := c.app.Session.Current()
	assert.True(t, ok)
}

func TestGroupLedgerFlow(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")

	g := decode[groupOutput](t, c.mustRun(t, "groups", "create", "Kos Bersama", "--format", "json"))
	assert.Equal(t, "Kos Bersama", g.Name)
	assert.Len(t, g.Code, 6)

	groups := decode[[]groupOutput](t, c.mustRun(t, "groups", "--format", "json"))
	require.Len(t, groups, 1)
	assert.Equal(t, g.ID, groups[0].ID)

	c.mustRun(t, "record", g.ID, "--amount", "100000", "--type", "income")
	out := c.mustRun(t, "record", g.ID, "--amount", "50000", "--type", "income", "--note", "Gaji")
	assert.Contains(t, out, "Rp 150.000")

	l := decode[ledgerOutput](t, c.mustRun(t, "ledger", g.ID, "--format", "json"))
	assert.Equal(t, "150000", l.Group.Balance)
	assert.Equal(t, 1, l.Page)
	assert.Equal(t, 2, l.TotalTransactions)
	require.Len(t, l.Transactions, 2)
	assert.Equal(t, "Gaji", l.Transactions[0].Note, "newest first")
	assert.Equal(t, core.NotePlaceholder, l.Transactions[1].Note)
}

func TestSwitchingUserDropsCachedGroups(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")
	c.mustRun(t, "groups", "create", "Kos Bersama")
	require.Len(t, decode[[]groupOutput](t, c.mustRun(t, "groups", "--format", "json")), 1)

	c.signIn(t, "budi")
	groups := decode[[]groupOutput](t, c.mustRun(t, "groups", "--format", "json"))
	assert.Empty(t, groups, "budi must not see ani's cached list")
}

func TestJoinGroup(t *testing.T) {
	c := newTestCLI(t, nil)
	owner, err := c.store.RegisterUser("Budi", "budi@example.com", "secret")
	require.NoError(t, err)
	g, err := c.store.CreateGroupFor(owner.ID, "Liburan")
	require.NoError(t, err)

	c.signIn(t, "ani")
	joined := decode[groupOutput](t, c.mustRun(t, "groups", "join", strings.ToLower(g.GroupCode), "--format", "json"))
	assert.Equal(t, g.ID, joined.ID)
	assert.ElementsMatch(t, []string{"Budi", "ani"}, joined.Members)

	_, err = c.run("groups", "join", "ZZZZZZ")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestLedgerPaging(t *testing.T) {
	c := newTestCLI(t, nil)
	u := c.signIn(t, "ani")
	g, err := c.store.CreateGroupFor(u.ID, "Kos")
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		_, err := c.store.RecordFor(u.ID, gateway.NewTransaction{
			GroupID: g.ID,
			Amount:  decimal.NewFromInt(1000),
			Type:    core.Income,
			Note:    "-",
		})
		require.NoError(t, err)
	}

	l := decode[ledgerOutput](t, c.mustRun(t, "ledger", g.ID, "--page", "3", "--format", "json"))
	assert.Equal(t, 3, l.Page)
	assert.Equal(t, 3, l.TotalPages)
	assert.Len(t, l.Transactions, 2)
	assert.Equal(t, "12000", l.Group.Balance)

	_, err = c.run("ledger", g.ID, "--page", "4")
	require.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, ExitUsage, ExitCode(err))

	_, err = c.run("ledger", g.ID, "--page", "0")
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestRecordValidation(t *testing.T) {
	c := newTestCLI(t, nil)
	u := c.signIn(t, "ani")
	g, err := c.store.CreateGroupFor(u.ID, "Kos")
	require.NoError(t, err)

	for _, args := range [][]string{
		{"--amount", ""},
		{"--amount", "-5"},
		{"--amount", "abc"},
		{"--amount", "100", "--type", "transfer"},
	} {
		_, err := c.run(append([]string{"record", g.ID}, args...)...)
		require.ErrorIs(t, err, core.ErrValidation, "%v", args)
		assert.Equal(t, ExitUsage, ExitCode(err))
	}

	page, err := c.store.PageFor(u.ID, g.ID, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
}

func TestYAMLOutput(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")
	c.mustRun(t, "groups", "create", "Kos")

	out := c.mustRun(t, "groups", "--format", "yaml")
	assert.Contains(t, out, "- id: ")
	assert.Contains(t, out, "name: Kos")
	assert.Contains(t, out, "balance: \"0\"")
}

func TestLogoutSignsOut(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")
	c.mustRun(t, "groups")

	out := c.mustRun(t, "logout")
	assert.Contains(t, out, "Logged out")

	_, err := c.run("groups")
	require.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestExportNeedsSpreadsheet(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")

	_, err := c.run("export", "any")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExport(t *testing.T) {
	var rows int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		rows = len(body.Values)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"spreadsheetId": "sheet-1",
			"updates":       map[string]any{"updatedRange": "Kos!A1:E8"},
		})
	}))
	defer srv.Close()

	c := newTestCLI(t, func(cfg *config.Config, opts *AppOptions) {
		cfg.GoogleSpreadsheetID = "sheet-1"
		opts.SheetsClientOptions = []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		}
	})
	u := c.signIn(t, "ani")
	g, err := c.store.CreateGroupFor(u.ID, "Kos")
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := c.store.RecordFor(u.ID, gateway.NewTransaction{
			GroupID: g.ID, Amount: decimal.NewFromInt(500), Type: core.Expense, Note: "-",
		})
		require.NoError(t, err)
	}

	out := decode[exportOutput](t, c.mustRun(t, "export", g.ID, "--format", "json"))
	assert.Equal(t, 7, out.Rows)
	assert.Equal(t, "Kos", out.Sheet)
	assert.Equal(t, "Kos!A1:E8", out.UpdatedRange)
	assert.Equal(t, 8, rows, "header plus every transaction across pages")
}

func TestWatchNeedsEvents(t *testing.T) {
	c := newTestCLI(t, nil)
	c.signIn(t, "ani")

	_, err := c.run("watch")
	require.Error(t, err)
	assert.Equal(t, ExitUsage, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"explicit", NewExitError(ExitUsage, "bad"), ExitUsage},
		{"wrapped explicit", errors.Join(errors.New("ctx"), WrapExitError(ExitFailure, "x", nil)), ExitFailure},
		{"validation", core.Validation("record", "amount is required"), ExitUsage},
		{"sync", core.Sync("list", errors.New("timeout")), ExitFailure},
		{"plain", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
