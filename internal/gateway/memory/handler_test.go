package memory_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"frintab/internal/core"
	"frintab/internal/gateway"
	"frintab/internal/gateway/httpapi"
	"frintab/internal/gateway/memory"
)

// The REST client and the in-memory handler must agree on the wire contract.
func TestHandlerRoundTripsThroughRESTClient(t *testing.T) {
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	srv := httptest.NewServer(memory.NewHandler(store))
	defer srv.Close()

	var token string
	client, err := httpapi.New(httpapi.Options{
		BaseURL:    srv.URL + memory.BasePath,
		HTTPClient: srv.Client(),
		Tokens: gateway.TokenFunc(func(context.Context) (string, error) {
			return token, nil
		}),
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.Register(ctx, "Ani", "ani@example.com", "secret"))
	err = client.Register(ctx, "Ani", "ani@example.com", "secret")
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = client.ListMyGroups(ctx)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)

	res, err := client.Login(ctx, core.Credentials{Email: "ani@example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "Ani", res.User.Name)
	token = res.Token

	g, err := client.CreateGroup(ctx, "Kos")
	require.NoError(t, err)
	assert.Len(t, g.GroupCode, 6)

	_, err = client.CreateGroup(ctx, "")
	assert.ErrorIs(t, err, core.ErrConflict)

	joined, err := client.JoinGroup(ctx, strings.ToLower(g.GroupCode))
	require.NoError(t, err)
	assert.Equal(t, g.ID, joined.ID)

	_, err = client.JoinGroup(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, core.ErrNotFound)

	tx, err := client.RecordTransaction(ctx, gateway.NewTransaction{
		GroupID: g.ID,
		Amount:  decimal.RequireFromString("50000"),
		Type:    core.Income,
		Note:    "Gaji",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ani", tx.AuthorName)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(50000)))

	page, err := client.GetTransactionPage(ctx, g.ID, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.TotalTransactions)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "Gaji", page.Transactions[0].Note)
	assert.True(t, page.Group.TotalBalance.Equal(decimal.NewFromInt(50000)))

	detail, err := client.GetGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kos", detail.Name)
	assert.Equal(t, 1, detail.MemberCount())

	_, err = client.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	groups, err := client.ListMyGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].TotalBalance.Equal(decimal.NewFromInt(50000)))
}

func TestHandlerRejectsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(memory.NewHandler(memory.New(memory.WithBcryptCost(bcrypt.MinCost))))
	defer srv.Close()

	resp, err := http.Post(srv.URL+memory.BasePath+"/auth/login", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
