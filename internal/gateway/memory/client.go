package memory

import (
	"context"

	"frintab/internal/core"
	"frintab/internal/gateway"
)

// Client exposes a Store through the gateway ports, authorizing each call
// with the token from its TokenSource the way the REST service does.
type Client struct {
	store  *Store
	tokens gateway.TokenSource
}

var (
	_ gateway.Authenticator = (*Client)(nil)
	_ gateway.Ledger        = (*Client)(nil)
)

// Client returns a gateway bound to tokens.
func (s *Store) Client(tokens gateway.TokenSource) *Client {
	return &Client{store: s, tokens: tokens}
}

func (c *Client) caller(ctx context.Context) (core.User, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, core.Sync("authorize", err)
	}
	token := ""
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return core.User{}, err
		}
		token = t
	}
	return c.store.UserForToken(token)
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	if err := ctx.Err(); err != nil {
		return core.Sync("register", err)
	}
	_, err := c.store.RegisterUser(name, email, password)
	return err
}

func (c *Client) Login(ctx context.Context, creds core.Credentials) (gateway.LoginResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.LoginResult{}, core.Sync("login", err)
	}
	return c.store.Authenticate(creds)
}

func (c *Client) ListMyGroups(ctx context.Context) ([]core.Group, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return nil, err
	}
	return c.store.GroupsFor(u.ID), nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return core.Group{}, err
	}
	return c.store.GroupFor(u.ID, groupID)
}

func (c *Client) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return core.Group{}, err
	}
	return c.store.CreateGroupFor(u.ID, name)
}

func (c *Client) JoinGroup(ctx context.Context, groupCode string) (core.Group, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return core.Group{}, err
	}
	return c.store.JoinGroupFor(u.ID, groupCode)
}

func (c *Client) GetTransactionPage(ctx context.Context, groupID string, page, limit int) (core.Page, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return core.Page{}, err
	}
	return c.store.PageFor(u.ID, groupID, page, limit)
}

func (c *Client) RecordTransaction(ctx context.Context, in gateway.NewTransaction) (core.Transaction, error) {
	u, err := c.caller(ctx)
	if err != nil {
		return core.Transaction{}, err
	}
	return c.store.RecordFor(u.ID, in)
}
