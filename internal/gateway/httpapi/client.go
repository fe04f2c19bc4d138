package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"frintab/internal/core"
	"frintab/internal/gateway"
	applog "frintab/internal/log"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Client is the REST implementation of the gateway ports. It owns no ledger
// state; every call is one authenticated request.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  gateway.TokenSource
	logger  *applog.Logger
	metrics *Metrics
	newID   func() string
}

// Ensure interface conformance
var (
	_ gateway.Authenticator     = (*Client)(nil)
	_ gateway.GroupReader       = (*Client)(nil)
	_ gateway.GroupWriter       = (*Client)(nil)
	_ gateway.TransactionReader = (*Client)(nil)
	_ gateway.TransactionWriter = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     gateway.TokenSource
	Logger     *applog.Logger
	Registerer prometheus.Registerer
	// HTTPClient overrides the pooled client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// New validates the base URL and builds a client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClientWithPooling(opts.Timeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	metrics, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    httpClient,
		tokens:  opts.Tokens,
		logger:  logger.WithComponent(applog.ComponentGateway),
		metrics: metrics,
		newID:   uuid.NewString,
	}, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling,
// proper timeouts, and keep-alive settings
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := map[string]string{"name": name, "email": email, "password": password}
	return c.do(ctx, applog.OpRegister, http.MethodPost, "/auth/register", nil, body, nil, false)
}

func (c *Client) Login(ctx context.Context, creds core.Credentials) (gateway.LoginResult, error) {
	var out loginDTO
	if err := c.do(ctx, applog.OpLogin, http.MethodPost, "/auth/login", nil, creds, &out, false); err != nil {
		return gateway.LoginResult{}, err
	}
	if out.Token == "" {
		return gateway.LoginResult{}, core.Sync(applog.OpLogin, errors.New("login response carried no token"))
	}
	return out.toResult(), nil
}

func (c *Client) ListMyGroups(ctx context.Context) ([]core.Group, error) {
	var out []groupDTO
	if err := c.do(ctx, applog.OpListGroups, http.MethodGet, "/group/my", nil, nil, &out, true); err != nil {
		return nil, err
	}
	groups := make([]core.Group, 0, len(out))
	for _, g := range out {
		groups = append(groups, g.toCore())
	}
	return groups, nil
}

func (c *Client) GetGroup(ctx context.Context, groupID string) (core.Group, error) {
	var out groupDTO
	path := "/group/" + url.PathEscape(groupID)
	if err := c.do(ctx, applog.OpGroupMeta, http.MethodGet, path, nil, nil, &out, true); err != nil {
		return core.Group{}, err
	}
	return out.toCore(), nil
}

func (c *Client) CreateGroup(ctx context.Context, name string) (core.Group, error) {
	var out groupDTO
	body := map[string]string{"name": name}
	if err := c.do(ctx, applog.OpCreateGroup, http.MethodPost, "/group/create", nil, body, &out, true); err != nil {
		return core.Group{}, err
	}
	return out.toCore(), nil
}

func (c *Client) JoinGroup(ctx context.Context, groupCode string) (core.Group, error) {
	var out groupDTO
	body := map[string]string{"groupCode": groupCode}
	if err := c.do(ctx, applog.OpJoinGroup, http.MethodPost, "/group/join", nil, body, &out, true); err != nil {
		return core.Group{}, err
	}
	return out.toCore(), nil
}

func (c *Client) GetTransactionPage(ctx context.Context, groupID string, page, limit int) (core.Page, error) {
	if page < 1 {
		return core.Page{}, core.Validation(applog.OpPage, "page must be at least 1")
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out pageDTO
	path := "/transaction/" + url.PathEscape(groupID)
	if err := c.do(ctx, applog.OpPage, http.MethodGet, path, q, nil, &out, true); err != nil {
		return core.Page{}, err
	}
	return out.toCore(groupID), nil
}

func (c *Client) RecordTransaction(ctx context.Context, in gateway.NewTransaction) (core.Transaction, error) {
	body := recordDTO{
		GroupID: in.GroupID,
		Amount:  json.Number(in.Amount.String()),
		Type:    string(in.Type),
		Note:    core.NormalizeNote(in.Note),
	}
	var out transactionDTO
	if err := c.do(ctx, applog.OpRecord, http.MethodPost, "/transaction", nil, body, &out, true); err != nil {
		return core.Transaction{}, err
	}
	tx := out.toCore()
	if tx.GroupID == "" {
		tx.GroupID = in.GroupID
	}
	return tx, nil
}

// do issues one request and decodes the JSON response into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any, authed bool) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.observe(op, err, time.Since(start))
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return core.Sync(op, fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return core.Sync(op, fmt.Errorf("build request: %w", err))
	}
	requestID := c.newID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(applog.RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Request failed",
			applog.FieldOperation, op,
			applog.FieldRequestID, requestID,
			applog.FieldError, err)
		return core.Sync(op, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Request completed",
		applog.FieldOperation, op,
		applog.FieldRequestID, requestID,
		applog.FieldMethod, method,
		applog.FieldPath, path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode >= 400 {
		return errorForStatus(op, resp.StatusCode, readMessage(resp.Body))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.Sync(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorForStatus maps a failed response onto the client error taxonomy.
func errorForStatus(op string, status int, msg string) error {
	switch status {
	case http.StatusNotFound:
		if msg == "" {
			msg = "not found"
		}
		return core.NotFound(op, msg)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "request rejected by server"
		}
		return core.Conflict(op, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg == "" {
			msg = "session expired, please log in again"
		}
		return core.Unauthenticated(op, msg)
	default:
		return &core.Error{
			Kind:    core.KindSync,
			Op:      op,
			Message: msg,
			Err:     fmt.Errorf("unexpected status %d", status),
		}
	}
}

// readMessage extracts the "message" field of an error body, falling back to
// the trimmed body text.
func readMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
		return ""
	}
	return strings.TrimSpace(string(raw))
}
