package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

// NotePlaceholder is stored as the note when the user leaves it empty.
const NotePlaceholder = "-"

type (
	TransactionType string

	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	Group struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		GroupCode    string          `json:"groupCode"`
		Members      []User          `json:"members"`
		TotalBalance decimal.Decimal `json:"totalBalance"`
	}

	Transaction struct {
		ID         string          `json:"id"`
		GroupID    string          `json:"groupId"`
		Amount     decimal.Decimal `json:"amount"`
		Type       TransactionType `json:"type"`
		Note       string          `json:"note"`
		CreatedAt  time.Time       `json:"createdAt"`
		AuthorName string          `json:"authorName"`
	}

	// Page is one window of a group's transaction history together with the
	// group payload the server embeds alongside it.
	Page struct {
		Group             Group         `json:"group"`
		Transactions      []Transaction `json:"transactions"`
		TotalPages        int           `json:"totalPages"`
		TotalTransactions int           `json:"totalTransactions"`
	}
)

// Valid reports whether t is one of the two known transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// Sign returns +1 for income and -1 for expense.
func (t TransactionType) Sign() int64 {
	if t == Expense {
		return -1
	}
	return 1
}

// ParseTransactionType accepts the wire names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", Validation("parse type", "type must be INCOME or EXPENSE")
	}
	return t, nil
}

// SignedAmount is the contribution of the transaction to the group balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	return t.Amount.Mul(decimal.NewFromInt(t.Type.Sign()))
}

// MemberCount returns the number of members.
func (g Group) MemberCount() int {
	return len(g.Members)
}

// HasMember reports whether the user with the given id belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// NormalizeNote returns the placeholder for blank notes.
func NormalizeNote(note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return NotePlaceholder
	}
	return note
}

// Balance is the signed sum of txs.
func Balance(txs []Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		total = total.Add(t.SignedAmount())
	}
	return total
}
