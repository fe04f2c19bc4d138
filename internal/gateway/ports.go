// Package gateway declares the ports through which the client talks to the
// remote ledger service. Implementations live in the httpapi and memory
// subpackages.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"frintab/internal/core"
)

// Ports for outbound adapters.
type (
	// Authenticator exchanges credentials for a session token.
	Authenticator interface {
		Register(ctx context.Context, name, email, password string) error
		Login(ctx context.Context, creds core.Credentials) (LoginResult, error)
	}

	GroupReader interface {
		// ListMyGroups returns the caller's groups in server order.
		ListMyGroups(ctx context.Context) ([]core.Group, error)
		// GetGroup returns the group detail (name, code, members).
		GetGroup(ctx context.Context, groupID string) (core.Group, error)
	}

	GroupWriter interface {
		CreateGroup(ctx context.Context, name string) (core.Group, error)
		JoinGroup(ctx context.Context, groupCode string) (core.Group, error)
	}

	TransactionReader interface {
		// GetTransactionPage returns one page of the group's history, newest
		// first, with the group payload embedded.
		GetTransactionPage(ctx context.Context, groupID string, page, limit int) (core.Page, error)
	}

	TransactionWriter interface {
		RecordTransaction(ctx context.Context, in NewTransaction) (core.Transaction, error)
	}

	// Ledger is everything a signed-in client needs.
	Ledger interface {
		GroupReader
		GroupWriter
		TransactionReader
		TransactionWriter
	}

	// TokenSource supplies the credential attached to each request.
	TokenSource interface {
		Token(ctx context.Context) (string, error)
	}
)

// LoginResult is what the service returns for a successful login.
type LoginResult struct {
	Token string    `json:"token"`
	User  core.User `json:"user"`
}

// NewTransaction is the record-transaction request body.
type NewTransaction struct {
	GroupID string
	Amount  decimal.Decimal
	Type    core.TransactionType
	Note    string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
func StaticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}
