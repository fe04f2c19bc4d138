// Package session holds the signed-in user for the whole process.
//
// There is a single writer discipline: only Login, Logout and Restore mutate
// the session, each under the write lock. Readers (Current, Token,
// RequireUser) take the read lock and therefore never observe a half-applied
// login or logout.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"frintab/internal/core"
	"frintab/internal/credstore"
	"frintab/internal/gateway"
	applog "frintab/internal/log"
)

// Options configures a Store.
type Options struct {
	Auth   gateway.Authenticator
	Creds  credstore.Store
	Logger *applog.Logger
	Now    func() time.Time
}

// Store is the session context.
type Store struct {
	mu     sync.RWMutex
	user   *core.User
	token  string
	hooks  map[int]func()
	nextID int

	auth   gateway.Authenticator
	creds  credstore.Store
	logger *applog.Logger
	now    func() time.Time
}

var _ gateway.TokenSource = (*Store)(nil)

func New(opts Options) *Store {
	if opts.Creds == nil {
		opts.Creds = credstore.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = applog.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		hooks:  map[int]func(){},
		auth:   opts.Auth,
		creds:  opts.Creds,
		logger: opts.Logger.WithComponent(applog.ComponentSession),
		now:    opts.Now,
	}
}

var (
	defaultOnce  sync.Once
	defaultStore *Store
)

// Init creates the process-wide store from opts. Only the first call (or the
// first Default) has an effect; later calls return the existing store.
func Init(opts Options) *Store {
	defaultOnce.Do(func() {
		defaultStore = New(opts)
	})
	return defaultStore
}

// Default returns the process-wide store, creating an unconfigured one if
// Init was never called.
func Default() *Store {
	return Init(Options{})
}

// Current returns the signed-in user.
func (s *Store) Current() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return core.User{}, false
	}
	return *s.user, true
}

// Token implements gateway.TokenSource.
func (s *Store) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", core.Unauthenticated("token", "please log in first")
	}
	return s.token, nil
}

// RequireUser is the gate every view operation passes before doing work.
func (s *Store) RequireUser(op string) (core.User, error) {
	u, ok := s.Current()
	if !ok {
		return core.User{}, core.Unauthenticated(op, "please log in first")
	}
	return u, nil
}

// Register creates an account. It does not sign the user in.
func (s *Store) Register(ctx context.Context, name, email, password string) error {
	const op = applog.OpRegister
	switch {
	case strings.TrimSpace(name) == "":
		return core.Validation(op, "name is required")
	case strings.TrimSpace(email) == "":
		return core.Validation(op, "email is required")
	case password == "":
		return core.Validation(op, "password is required")
	}
	if s.auth == nil {
		return core.Sync(op, errors.New("session has no authenticator"))
	}
	if err := s.auth.Register(ctx, strings.TrimSpace(name), strings.TrimSpace(email), password); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Account registered", applog.FieldOperation, op)
	return nil
}

// Login exchanges credentials for a token, then publishes the user and
// persists the credential.
func (s *Store) Login(ctx context.Context, creds core.Credentials) (core.User, error) {
	const op = applog.OpLogin
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return core.User{}, core.Validation(op, "email and password are required")
	}
	if s.auth == nil {
		return core.User{}, core.Sync(op, errors.New("session has no authenticator"))
	}

	res, err := s.auth.Login(ctx, creds)
	if err != nil {
		s.logger.WarnContext(ctx, "Login failed",
			applog.FieldOperation, op,
			applog.FieldErrorKind, core.KindOf(err))
		return core.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user := res.User
	switched := s.user != nil && s.user.ID != user.ID
	s.user = &user
	s.token = res.Token
	if switched {
		s.runHooks()
	}

	if err := s.creds.Save(ctx, credstore.Credentials{Token: res.Token, User: user, SavedAt: s.now()}); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist credentials",
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
	s.logger.InfoContext(ctx, "Logged in",
		applog.FieldOperation, op,
		applog.FieldUserID, user.ID)
	return user, nil
}

// Logout clears the user, revokes the persisted credential and runs the
// user change hooks, all while holding the write lock. Hooks must not call
// back into the Store.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.token = ""
	err := s.creds.Clear(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to clear persisted credentials",
			applog.FieldOperation, applog.OpLogout,
			applog.FieldError, err)
	}
	s.runHooks()
	s.logger.InfoContext(ctx, "Logged out", applog.FieldOperation, applog.OpLogout)
	return err
}

// OnUserChange registers fn to run on Logout and whenever Login signs in a
// different user over an existing session. The returned func removes it.
func (s *Store) OnUserChange(fn func()) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.hooks[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.hooks, id)
	}
}

// runHooks must be called with s.mu held.
func (s *Store) runHooks() {
	ids := make([]int, 0, len(s.hooks))
	for id := range s.hooks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		s.hooks[id]()
	}
}

// Restore reloads a persisted credential. An expired token is dropped and
// the session stays signed out.
func (s *Store) Restore(ctx context.Context) error {
	c, err := s.creds.Load(ctx)
	if errors.Is(err, credstore.ErrNoCredentials) {
		return nil
	}
	if err != nil {
		return err
	}

	if exp, ok := TokenExpiry(c.Token); ok && !s.now().Before(exp) {
		s.logger.InfoContext(ctx, "Stored session expired",
			applog.FieldUserID, c.User.ID)
		return s.creds.Clear(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	user := c.User
	s.user = &user
	s.token = c.Token
	s.logger.DebugContext(ctx, "Session restored", applog.FieldUserID, user.ID)
	return nil
}

// TokenExpiry reads the exp claim without verifying the signature; the client
// does not hold the signing key and only needs to know when to give up.
func TokenExpiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
