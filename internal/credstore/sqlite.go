package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	applog "frintab/internal/log"
)

// SQLite stores the credential in a single-row table.
type SQLite struct {
	db     *sql.DB
	logger *applog.Logger
}

var _ Store = (*SQLite)(nil)

func NewSQLite(dbPath string, logger *applog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, logger: logger.WithComponent(applog.ComponentCredstore)}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) (Credentials, error) {
	var (
		c       Credentials
		savedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, user_name, user_email, saved_at FROM credentials WHERE id = 1`,
	).Scan(&c.Token, &c.User.ID, &c.User.Name, &c.User.Email, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, savedAt); err == nil {
		c.SavedAt = t
	}
	return c, nil
}

func (s *SQLite) Save(ctx context.Context, c Credentials) error {
	if c.Token == "" {
		return errors.New("refusing to save empty token")
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, token, user_id, user_name, user_email, saved_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			token = excluded.token,
			user_id = excluded.user_id,
			user_name = excluded.user_name,
			user_email = excluded.user_email,
			saved_at = excluded.saved_at`,
		c.Token, c.User.ID, c.User.Name, c.User.Email, c.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	s.logger.DebugContext(ctx, "Credentials saved", applog.FieldUserID, c.User.ID)
	return nil
}

func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.DebugContext(ctx, "Credentials cleared")
	return nil
}
