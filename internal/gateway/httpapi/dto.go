package httpapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"frintab/internal/core"
	"frintab/internal/gateway"
)

// flexID accepts identifiers sent either as JSON strings or numbers.
type flexID string

func (id *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = flexID(n.String())
	return nil
}

type userDTO struct {
	ID       flexID `json:"id"`
	Name     string `json:"name"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

func (u userDTO) toCore() core.User {
	name := u.Name
	if name == "" {
		name = u.UserName
	}
	return core.User{ID: string(u.ID), Name: name, Email: u.Email}
}

type loginDTO struct {
	Token string  `json:"token"`
	User  userDTO `json:"user"`
}

func (l loginDTO) toResult() gateway.LoginResult {
	return gateway.LoginResult{Token: l.Token, User: l.User.toCore()}
}

type groupDTO struct {
	ID           flexID          `json:"id"`
	Name         string          `json:"name"`
	GroupCode    string          `json:"groupCode"`
	Members      []userDTO       `json:"members"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
}

func (g groupDTO) toCore() core.Group {
	out := core.Group{
		ID:           string(g.ID),
		Name:         g.Name,
		GroupCode:    g.GroupCode,
		TotalBalance: g.TotalBalance,
	}
	if len(g.Members) > 0 {
		out.Members = make([]core.User, 0, len(g.Members))
		for _, m := range g.Members {
			out.Members = append(out.Members, m.toCore())
		}
	}
	return out
}

type transactionDTO struct {
	ID        flexID          `json:"id"`
	GroupID   flexID          `json:"groupId"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Note      string          `json:"note"`
	CreatedAt time.Time       `json:"createdAt"`

	// The author is reported under different names depending on the server
	// version; the first non-empty one wins.
	AuthorName string   `json:"authorName"`
	Name       string   `json:"name"`
	UserName   string   `json:"userName"`
	User       *userDTO `json:"user"`
}

func (t transactionDTO) toCore() core.Transaction {
	author := firstNonEmpty(t.AuthorName, t.Name, t.UserName)
	if author == "" && t.User != nil {
		author = t.User.toCore().Name
	}
	return core.Transaction{
		ID:         string(t.ID),
		GroupID:    string(t.GroupID),
		Amount:     t.Amount,
		Type:       core.TransactionType(strings.ToUpper(t.Type)),
		Note:       core.NormalizeNote(t.Note),
		CreatedAt:  t.CreatedAt,
		AuthorName: author,
	}
}

// pageDTO accepts both the nested {group, transactions, ...} shape and the
// flat shape where the group fields sit next to the transactions.
type pageDTO struct {
	groupDTO
	Group             *groupDTO        `json:"group"`
	Transactions      []transactionDTO `json:"transactions"`
	TotalPages        int              `json:"totalPages"`
	TotalTransactions int              `json:"totalTransactions"`
}

func (p pageDTO) toCore(groupID string) core.Page {
	group := p.groupDTO.toCore()
	if p.Group != nil {
		group = p.Group.toCore()
	}
	if group.ID == "" {
		group.ID = groupID
	}

	txs := make([]core.Transaction, 0, len(p.Transactions))
	for _, t := range p.Transactions {
		tx := t.toCore()
		if tx.GroupID == "" {
			tx.GroupID = group.ID
		}
		txs = append(txs, tx)
	}
	return core.Page{
		Group:             group,
		Transactions:      txs,
		TotalPages:        p.TotalPages,
		TotalTransactions: p.TotalTransactions,
	}
}

type recordDTO struct {
	GroupID string      `json:"groupId"`
	Amount  json.Number `json:"amount"`
	Type    string      `json:"type"`
	Note    string      `json:"note"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
