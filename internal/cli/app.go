package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goption "google.golang.org/api/option"

	"frintab/internal/cache"
	"frintab/internal/config"
	"frintab/internal/credstore"
	"frintab/internal/events"
	"frintab/internal/export/sheets"
	"frintab/internal/gateway"
	"frintab/internal/gateway/httpapi"
	"frintab/internal/gateway/memory"
	applog "frintab/internal/log"
	"frintab/internal/notify"
	"frintab/internal/query"
	"frintab/internal/session"
	"frintab/internal/views"
	"frintab/internal/views/collection"
	"frintab/internal/views/ledger"
)

const cacheCleanupInterval = time.Minute

// App holds everything a command needs, wired once per process.
type App struct {
	Config     *config.Config
	Logger     *applog.Logger
	Session    *session.Store
	Ledger     gateway.Ledger
	Reader     *query.Reader
	Dispatcher *query.Dispatcher
	Notifier   notify.Notifier
	// Publisher is nil when change events are disabled.
	Publisher views.Publisher
	Events    *events.Client
	Registry  *prometheus.Registry
	// Origin identifies this client on published events.
	Origin string

	sheetsOpts []goption.ClientOption

	closers   []func()
	closeOnce sync.Once
}

// AppOptions overrides parts of the wiring. Only Config is required.
type AppOptions struct {
	Config   *config.Config
	Logger   *applog.Logger
	Notifier notify.Notifier
	Registry *prometheus.Registry
	// Creds replaces the SQLite credential store.
	Creds credstore.Store
	// Store backs the memory backend instead of a fresh or seeded one.
	Store *memory.Store
	// SheetsClientOptions replace the service account lookup for export.
	SheetsClientOptions []goption.ClientOption
}

// NewApp wires the gateway, session, read cache, dispatcher and optional
// event client from opts.Config.
func NewApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("cli: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(logger)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Notifier: opts.Notifier,
		Registry: opts.Registry,
		Origin:   uuid.NewString(),

		sheetsOpts: opts.SheetsClientOptions,
	}

	// The gateway needs the session's token and the session needs the
	// gateway to log in, so the token source reads through sess lazily.
	var sess *session.Store
	tokens := gateway.TokenFunc(func(ctx context.Context) (string, error) {
		return sess.Token(ctx)
	})

	auth, ledgerAPI, err := app.newBackend(opts.Store, tokens)
	if err != nil {
		return nil, err
	}
	app.Ledger = ledgerAPI

	creds := opts.Creds
	if creds == nil {
		sqlite, err := InitCredentials(logger, cfg.CredentialsDBPath)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		app.closers = append(app.closers, func() { _ = sqlite.Close() })
		creds = sqlite
	}

	sess = session.New(session.Options{Auth: auth, Creds: creds, Logger: logger})
	if err := sess.Restore(ctx); err != nil {
		logger.WarnContext(ctx, "Failed to restore session, continuing signed out", applog.FieldError, err)
	}
	app.Session = sess

	manager := cache.NewManager(logger)
	app.Reader = query.NewReader(ledgerAPI, query.ReaderOptions{
		TTL:     cfg.CacheTTL,
		Size:    cfg.CacheSize,
		Manager: manager,
	})
	manager.StartCleanup(cacheCleanupInterval)
	app.closers = append(app.closers, manager.Stop)
	sess.OnUserChange(app.Reader.Purge)

	app.Dispatcher = query.NewDispatcher(app.Reader, logger)

	if cfg.EventsEnabled() {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, app.Origin, logger)
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change events", applog.FieldError, err)
		} else {
			logger.InfoContext(ctx, "Initialized AMQP client", "exchange", cfg.AMQPExchange)
			app.Events = client
			app.Publisher = client
			app.closers = append(app.closers, func() { _ = client.Close() })
		}
	}

	logger.DebugContext(ctx, "Application wired",
		"backend", cfg.Backend,
		"events_enabled", app.Events != nil)
	return app, nil
}

func (a *App) newBackend(store *memory.Store, tokens gateway.TokenSource) (gateway.Authenticator, gateway.Ledger, error) {
	cfg := a.Config
	switch cfg.Backend {
	case config.BackendMemory:
		if store == nil {
			var err error
			if cfg.SeedFile != "" {
				if store, err = memory.NewFromSeedFile(cfg.SeedFile); err != nil {
					return nil, nil, fmt.Errorf("seed memory backend: %w", err)
				}
			} else {
				store = memory.New()
			}
		}
		a.Logger.Debug("Using memory backend", "seed_file", cfg.SeedFile)
		client := store.Client(tokens)
		return client, client, nil
	case config.BackendHTTP, "":
		client, err := httpapi.New(httpapi.Options{
			BaseURL:    cfg.APIURL,
			Timeout:    cfg.HTTPTimeout,
			Tokens:     tokens,
			Logger:     a.Logger,
			Registerer: a.Registry,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create ledger client: %w", err)
		}
		return client, client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", cfg.Backend)
	}
}

// Collection opens the group collection view. Callers Close it.
func (a *App) Collection() *collection.View {
	return collection.New(collection.Options{
		Session:    a.Session,
		Groups:     a.Reader,
		Writer:     a.Ledger,
		Dispatcher: a.Dispatcher,
		Notifier:   a.Notifier,
		Publisher:  a.Publisher,
		Logger:     a.Logger,
	})
}

// LedgerView opens the ledger view of groupID. Callers Close it.
func (a *App) LedgerView(groupID string) *ledger.View {
	return ledger.New(ledger.Options{
		GroupID:    groupID,
		Limit:      a.Config.PageSize,
		Session:    a.Session,
		Reader:     a.Reader,
		Writer:     a.Ledger,
		Dispatcher: a.Dispatcher,
		Notifier:   a.Notifier,
		Publisher:  a.Publisher,
		Logger:     a.Logger,
	})
}

// Exporter builds the spreadsheet exporter. sheetName overrides
// GOOGLE_SHEET_NAME when set.
func (a *App) Exporter(ctx context.Context, sheetName string) (*sheets.Exporter, error) {
	if sheetName == "" {
		sheetName = a.Config.GoogleSheetName
	}
	return sheets.New(ctx, sheets.Options{
		SpreadsheetID: a.Config.GoogleSpreadsheetID,
		SheetName:     sheetName,
		Logger:        a.Logger,
		ClientOptions: a.sheetsOpts,
	})
}

// Close releases everything NewApp opened, newest first.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			a.closers[i]()
		}
	})
}
