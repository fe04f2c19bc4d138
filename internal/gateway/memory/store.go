// Package memory is an in-process stand-in for the remote ledger service.
// It backs the development server and the view tests with the same
// semantics the real service exposes over REST.
package memory

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"frintab/internal/core"
	"frintab/internal/gateway"
)

const (
	groupCodeLength   = 6
	groupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultTokenTTL   = 24 * time.Hour
	maxPageLimit      = 100
)

type userRecord struct {
	user         core.User
	passwordHash []byte
}

type groupRecord struct {
	id      string
	name    string
	code    string
	ownerID string
	members []string
	// newest first
	txs []core.Transaction
}

// Claims are the token claims issued by Store.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Store holds users, groups and transactions. Every method is safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	users   map[string]*userRecord
	byEmail map[string]*userRecord
	groups  []*groupRecord
	byID    map[string]*groupRecord
	byCode  map[string]*groupRecord

	signingKey []byte
	tokenTTL   time.Duration
	now        func() time.Time
	newID      func() string
	newCode    func() string
	bcryptCost int
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSigningKey sets the HMAC key for issued tokens.
func WithSigningKey(key []byte) Option {
	return func(s *Store) { s.signingKey = append([]byte(nil), key...) }
}

// WithTokenTTL sets how long issued tokens stay valid.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Store) { s.tokenTTL = ttl }
}

// WithCodeGenerator replaces the random group code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *Store) { s.newCode = gen }
}

// WithIDGenerator replaces uuid-based identifiers.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

func New(opts ...Option) *Store {
	s := &Store{
		users:      map[string]*userRecord{},
		byEmail:    map[string]*userRecord{},
		byID:       map[string]*groupRecord{},
		byCode:     map[string]*groupRecord{},
		tokenTTL:   defaultTokenTTL,
		now:        time.Now,
		newID:      uuid.NewString,
		newCode:    randomGroupCode,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.signingKey) == 0 {
		s.signingKey = []byte(uuid.NewString())
	}
	return s
}

func randomGroupCode() string {
	var b strings.Builder
	alphabet := big.NewInt(int64(len(groupCodeAlphabet)))
	for i := 0; i < groupCodeLength; i++ {
		n, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			panic(fmt.Sprintf("read random group code: %v", err))
		}
		b.WriteByte(groupCodeAlphabet[n.Int64()])
	}
	return b.String()
}

// RegisterUser creates an account. Emails are unique case-insensitively.
func (s *Store) RegisterUser(name, email, password string) (core.User, error) {
	const op = "register"
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	switch {
	case name == "":
		return core.User{}, core.Conflict(op, "name is required")
	case email == "":
		return core.User{}, core.Conflict(op, "email is required")
	case password == "":
		return core.User{}, core.Conflict(op, "password is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, core.Conflict(op, "email is not valid")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return core.User{}, core.Sync(op, fmt.Errorf("hash password: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byEmail[email]; exists {
		return core.User{}, core.Conflict(op, "email is already registered")
	}
	rec := &userRecord{
		user:         core.User{ID: s.newID(), Name: name, Email: email},
		passwordHash: hash,
	}
	s.users[rec.user.ID] = rec
	s.byEmail[email] = rec
	return rec.user, nil
}

// Authenticate checks credentials and issues a signed token.
func (s *Store) Authenticate(creds core.Credentials) (gateway.LoginResult, error) {
	const op = "login"
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	s.mu.Lock()
	rec, ok := s.byEmail[email]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(creds.Password)) != nil {
		return gateway.LoginResult{}, core.Unauthenticated(op, "invalid email or password")
	}

	token, err := s.issueToken(rec.user)
	if err != nil {
		return gateway.LoginResult{}, core.Sync(op, err)
	}
	return gateway.LoginResult{Token: token, User: rec.user}, nil
}

func (s *Store) issueToken(u core.User) (string, error) {
	now := s.now()
	claims := &Claims{
		Name:  u.Name,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// UserForToken validates a token and returns the user it was issued to.
func (s *Store) UserForToken(token string) (core.User, error) {
	const op = "authorize"
	if token == "" {
		return core.User{}, core.Unauthenticated(op, "authorization token required")
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return core.User{}, core.Unauthenticated(op, "invalid or expired token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return core.User{}, core.Unauthenticated(op, "invalid or expired token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[claims.Subject]
	if !ok {
		return core.User{}, core.Unauthenticated(op, "account no longer exists")
	}
	return rec.user, nil
}

// GroupsFor lists the groups userID belongs to, in creation order.
func (s *Store) GroupsFor(userID string) []core.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.Group{}
	for _, g := range s.groups {
		if g.hasMember(userID) {
			out = append(out, s.groupView(g))
		}
	}
	return out
}

// CreateGroupFor creates a group owned by userID with a fresh join code.
func (s *Store) CreateGroupFor(userID, name string) (core.Group, error) {
	const op = "create_group"
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Group{}, core.Conflict(op, "group name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return core.Group{}, core.Unauthenticated(op, "unknown user")
	}
	for _, g := range s.groups {
		if g.ownerID == userID && strings.EqualFold(g.name, name) {
			return core.Group{}, core.Conflict(op, "you already have a group with this name")
		}
	}

	code, err := s.uniqueCode()
	if err != nil {
		return core.Group{}, core.Sync(op, err)
	}
	g := &groupRecord{
		id:      s.newID(),
		name:    name,
		code:    code,
		ownerID: userID,
		members: []string{userID},
	}
	s.groups = append(s.groups, g)
	s.byID[g.id] = g
	s.byCode[g.code] = g
	return s.groupView(g), nil
}

func (s *Store) uniqueCode() (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		code := strings.ToUpper(s.newCode())
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique group code")
}

// JoinGroupFor adds userID to the group with the given code. Joining a group
// the user already belongs to returns it unchanged.
func (s *Store) JoinGroupFor(userID, code string) (core.Group, error) {
	const op = "join_group"
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return core.Group{}, core.Conflict(op, "group code is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return core.Group{}, core.Unauthenticated(op, "unknown user")
	}
	g, ok := s.byCode[code]
	if !ok {
		return core.Group{}, core.NotFound(op, "no group uses this code")
	}
	if !g.hasMember(userID) {
		g.members = append(g.members, userID)
	}
	return s.groupView(g), nil
}

// GroupFor returns the group detail. Non-members get not-found so group ids
// cannot be probed.
func (s *Store) GroupFor(userID, groupID string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.memberGroup("group_meta", userID, groupID)
	if err != nil {
		return core.Group{}, err
	}
	return s.groupView(g), nil
}

// PageFor returns one page of the group's history, newest first. Pages past
// the end are empty but still carry the totals.
func (s *Store) PageFor(userID, groupID string, page, limit int) (core.Page, error) {
	const op = "transaction_page"
	if page < 1 {
		return core.Page{}, core.Conflict(op, "page must be at least 1")
	}
	if limit < 1 || limit > maxPageLimit {
		return core.Page{}, core.Conflict(op, fmt.Sprintf("limit must be between 1 and %d", maxPageLimit))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.memberGroup(op, userID, groupID)
	if err != nil {
		return core.Page{}, err
	}

	n := len(g.txs)
	start, end := core.PageBounds(n, page, limit)
	txs := make([]core.Transaction, end-start)
	copy(txs, g.txs[start:end])
	return core.Page{
		Group:             s.groupView(g),
		Transactions:      txs,
		TotalPages:        core.TotalPagesFor(n, limit),
		TotalTransactions: n,
	}, nil
}

// RecordFor appends a transaction authored by userID.
func (s *Store) RecordFor(userID string, in gateway.NewTransaction) (core.Transaction, error) {
	const op = "record_transaction"
	if !in.Amount.IsPositive() {
		return core.Transaction{}, core.Conflict(op, "amount must be greater than zero")
	}
	if !in.Type.Valid() {
		return core.Transaction{}, core.Conflict(op, "type must be INCOME or EXPENSE")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	g, err := s.memberGroup(op, userID, in.GroupID)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := core.Transaction{
		ID:         s.newID(),
		GroupID:    g.id,
		Amount:     in.Amount,
		Type:       in.Type,
		Note:       core.NormalizeNote(in.Note),
		CreatedAt:  s.now().UTC(),
		AuthorName: s.users[userID].user.Name,
	}
	g.txs = append([]core.Transaction{tx}, g.txs...)
	return tx, nil
}

// memberGroup must be called with s.mu held.
func (s *Store) memberGroup(op, userID, groupID string) (*groupRecord, error) {
	if _, ok := s.users[userID]; !ok {
		return nil, core.Unauthenticated(op, "unknown user")
	}
	g, ok := s.byID[groupID]
	if !ok || !g.hasMember(userID) {
		return nil, core.NotFound(op, "group not found")
	}
	return g, nil
}

// groupView must be called with s.mu held.
func (s *Store) groupView(g *groupRecord) core.Group {
	members := make([]core.User, 0, len(g.members))
	for _, id := range g.members {
		if rec, ok := s.users[id]; ok {
			members = append(members, rec.user)
		}
	}
	return core.Group{
		ID:           g.id,
		Name:         g.name,
		GroupCode:    g.code,
		Members:      members,
		TotalBalance: core.Balance(g.txs),
	}
}

func (g *groupRecord) hasMember(userID string) bool {
	for _, id := range g.members {
		if id == userID {
			return true
		}
	}
	return false
}
