// Package credstore persists the signed-in user's token between runs.
package credstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"frintab/internal/core"
)

// ErrNoCredentials is returned by Load when nothing is stored.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is what survives a restart.
type Credentials struct {
	Token   string    `json:"token"`
	User    core.User `json:"user"`
	SavedAt time.Time `json:"savedAt"`
}

// Store holds at most one credential.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Clear(ctx context.Context) error
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.Mutex
	creds *Credentials
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds == nil {
		return Credentials{}, ErrNoCredentials
	}
	return *m.creds, nil
}

func (m *Memory) Save(_ context.Context, c Credentials) error {
	if c.Token == "" {
		return errors.New("refusing to save empty token")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &c
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	return nil
}
