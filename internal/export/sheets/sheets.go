// Package sheets exports a group's transaction history to Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"frintab/internal/core"
	applog "frintab/internal/log"
)

// Header is the first row written by every export.
var Header = []any{"Date", "Type", "Amount", "Note", "Author"}

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *applog.Logger
}

// Options configures an Exporter. SheetName defaults to the group name.
// ClientOptions override the credential lookup, e.g. in tests.
type Options struct {
	SpreadsheetID string
	SheetName     string
	Logger        *applog.Logger
	ClientOptions []goption.ClientOption
}

func New(ctx context.Context, opts Options) (*Exporter, error) {
	id := strings.TrimSpace(opts.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	logger := opts.Logger.WithComponent(applog.ComponentExport)

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		creds, err := serviceAccountJSON(ctx, logger)
		if err != nil {
			return nil, err
		}
		clientOpts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Exporter{
		svc:           svc,
		spreadsheetID: id,
		sheetName:     strings.TrimSpace(opts.SheetName),
		logger:        logger,
	}, nil
}

// serviceAccountJSON reads GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS, in that order.
func serviceAccountJSON(ctx context.Context, logger *applog.Logger) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// SheetFor returns the tab a group is exported to.
func (e *Exporter) SheetFor(group core.Group) string {
	if e.sheetName != "" {
		return e.sheetName
	}
	return group.Name
}

// Export appends a header and one row per transaction and returns the range
// the service reports as updated.
func (e *Exporter) Export(ctx context.Context, group core.Group, txs []core.Transaction) (string, error) {
	if e.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	sheet := e.SheetFor(group)
	rng := fmt.Sprintf("'%s'!A:E", strings.ReplaceAll(sheet, "'", "''"))

	vr := &gsheet.ValueRange{Values: append([][]any{Header}, Rows(txs)...)}
	resp, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	updated := ""
	if resp.Updates != nil {
		updated = resp.Updates.UpdatedRange
	}
	e.logger.InfoContext(ctx, "Exported transactions",
		applog.FieldOperation, applog.OpExport,
		applog.FieldGroupID, group.ID,
		"rows", len(txs),
		"range", updated)
	return updated, nil
}

// Rows converts transactions to sheet rows: date, type, signed amount, note, author.
func Rows(txs []core.Transaction) [][]any {
	rows := make([][]any, 0, len(txs))
	for _, t := range txs {
		rows = append(rows, []any{
			t.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			string(t.Type),
			t.SignedAmount().String(),
			t.Note,
			t.AuthorName,
		})
	}
	return rows
}
