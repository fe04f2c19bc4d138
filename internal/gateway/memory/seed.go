package memory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"frintab/internal/core"
	"frintab/internal/gateway"
)

// Seed describes initial data for a development store.
type Seed struct {
	Users  []SeedUser  `yaml:"users"`
	Groups []SeedGroup `yaml:"groups"`
}

type SeedUser struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type SeedGroup struct {
	Name string `yaml:"name"`
	// Code pins the join code; a random one is used when empty.
	Code    string   `yaml:"code"`
	Owner   string   `yaml:"owner"`
	Members []string `yaml:"members"`
	// Transactions without createdAt are stamped in listed order; the feed
	// is always ordered by createdAt, newest first.
	Transactions []SeedTransaction `yaml:"transactions"`
}

type SeedTransaction struct {
	Amount    string `yaml:"amount"`
	Type      string `yaml:"type"`
	Note      string `yaml:"note"`
	Author    string `yaml:"author"`
	CreatedAt string `yaml:"createdAt"`
}

// DefaultSeed is used when no seed file exists.
func DefaultSeed() Seed {
	return Seed{
		Users: []SeedUser{
			{Name: "Demo", Email: "demo@frintab.dev", Password: "demo"},
		},
		Groups: []SeedGroup{
			{
				Name:  "Kos Bersama",
				Owner: "demo@frintab.dev",
				Transactions: []SeedTransaction{
					{Amount: "100000", Type: "INCOME", Note: "Iuran", Author: "demo@frintab.dev"},
				},
			},
		},
	}
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// NewFromSeedFile builds a store from the seed at path, falling back to
// DefaultSeed when the file does not exist.
func NewFromSeedFile(path string, opts ...Option) (*Store, error) {
	seed := DefaultSeed()
	if path != "" {
		loaded, err := LoadSeed(path)
		switch {
		case err == nil:
			seed = loaded
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, err
		}
	}
	s := New(opts...)
	if err := s.ApplySeed(seed); err != nil {
		return nil, err
	}
	return s, nil
}

// ApplySeed registers the seed's users, then creates its groups with their
// members and history. It must run before the store is shared.
func (s *Store) ApplySeed(seed Seed) error {
	ids := map[string]string{}
	for _, u := range seed.Users {
		user, err := s.RegisterUser(u.Name, u.Email, u.Password)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		ids[strings.ToLower(u.Email)] = user.ID
	}
	lookup := func(email string) (string, error) {
		id, ok := ids[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return "", fmt.Errorf("unknown seed user %q", email)
		}
		return id, nil
	}

	for _, sg := range seed.Groups {
		ownerID, err := lookup(sg.Owner)
		if err != nil {
			return fmt.Errorf("seed group %s: %w", sg.Name, err)
		}
		var created core.Group
		if sg.Code != "" {
			code := sg.Code
			prev := s.newCode
			s.newCode = func() string { return code }
			created, err = s.CreateGroupFor(ownerID, sg.Name)
			s.newCode = prev
		} else {
			created, err = s.CreateGroupFor(ownerID, sg.Name)
		}
		if err != nil {
			return fmt.Errorf("seed group %s: %w", sg.Name, err)
		}
		s.mu.Lock()
		g := s.byID[created.ID]
		s.mu.Unlock()

		for _, m := range sg.Members {
			memberID, err := lookup(m)
			if err != nil {
				return fmt.Errorf("seed group %s: %w", sg.Name, err)
			}
			if _, err := s.JoinGroupFor(memberID, g.code); err != nil {
				return fmt.Errorf("seed group %s: %w", sg.Name, err)
			}
		}

		for i, st := range sg.Transactions {
			if err := s.seedTransaction(g, st, lookup); err != nil {
				return fmt.Errorf("seed group %s transaction %d: %w", sg.Name, i+1, err)
			}
		}
		s.mu.Lock()
		slices.SortStableFunc(g.txs, func(a, b core.Transaction) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) seedTransaction(g *groupRecord, st SeedTransaction, lookup func(string) (string, error)) error {
	authorID, err := lookup(st.Author)
	if err != nil {
		return err
	}
	amount, err := core.ParseAmount(st.Amount)
	if err != nil {
		return err
	}
	typ, err := core.ParseTransactionType(st.Type)
	if err != nil {
		return err
	}
	tx, err := s.RecordFor(authorID, gateway.NewTransaction{
		GroupID: g.id,
		Amount:  amount,
		Type:    typ,
		Note:    st.Note,
	})
	if err != nil {
		return err
	}
	if st.CreatedAt == "" {
		return nil
	}
	at, err := parseSeedTime(st.CreatedAt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range g.txs {
		if g.txs[i].ID == tx.ID {
			g.txs[i].CreatedAt = at
			break
		}
	}
	return nil
}

func parseSeedTime(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid createdAt %q: use RFC3339 or YYYY-MM-DD", v)
}
