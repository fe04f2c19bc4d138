package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"frintab/internal/core"
	"frintab/internal/format"
)

// Exit codes for CLI commands.
const (
	ExitSuccess = 0 // Command completed
	ExitFailure = 1 // Remote or runtime failure
	ExitUsage   = 2 // Bad arguments, flags, configuration or input
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode maps err to a process exit code. Client-side validation errors
// count as usage errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if core.KindOf(err) == core.KindValidation {
		return ExitUsage
	}
	return ExitFailure
}

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Print writes data in the configured format. text renders the human
// version; when nil data is printed with %v.
func (f *OutputFormatter) Print(data any, text func(w io.Writer)) error {
	switch f.Format {
	case FormatJSON:
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	default:
		if text == nil {
			_, err := fmt.Fprintln(f.Writer, data)
			return err
		}
		text(f.Writer)
		return nil
	}
}

type userOutput struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

func toUserOutput(u core.User) userOutput {
	return userOutput{ID: u.ID, Name: u.Name, Email: u.Email}
}

type groupOutput struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Code    string   `json:"code" yaml:"code"`
	Members []string `json:"members" yaml:"members"`
	Balance string   `json:"balance" yaml:"balance"`
}

func toGroupOutput(g core.Group) groupOutput {
	members := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, m.Name)
	}
	return groupOutput{
		ID:      g.ID,
		Name:    g.Name,
		Code:    g.GroupCode,
		Members: members,
		Balance: g.TotalBalance.String(),
	}
}

type transactionOutput struct {
	ID     string `json:"id" yaml:"id"`
	Date   string `json:"date" yaml:"date"`
	Type   string `json:"type" yaml:"type"`
	Amount string `json:"amount" yaml:"amount"`
	Note   string `json:"note" yaml:"note"`
	Author string `json:"author" yaml:"author"`
}

func toTransactionOutput(tx core.Transaction) transactionOutput {
	return transactionOutput{
		ID:     tx.ID,
		Date:   tx.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Type:   string(tx.Type),
		Amount: tx.Amount.String(),
		Note:   tx.Note,
		Author: tx.AuthorName,
	}
}

type ledgerOutput struct {
	Group             groupOutput         `json:"group" yaml:"group"`
	Page              int                 `json:"page" yaml:"page"`
	TotalPages        int                 `json:"totalPages" yaml:"totalPages"`
	TotalTransactions int                 `json:"totalTransactions" yaml:"totalTransactions"`
	Transactions      []transactionOutput `json:"transactions" yaml:"transactions"`
}

func writeGroupText(w io.Writer, g core.Group) {
	fmt.Fprintf(w, "%s  [%s]  %s\n", g.Name, g.GroupCode, format.Money(g.TotalBalance))
	fmt.Fprintf(w, "  id: %s  members: %d\n", g.ID, g.MemberCount())
}

func writeTransactionText(w io.Writer, tx core.Transaction) {
	fmt.Fprintf(w, "  %-10s %-14s %-20s %s\n",
		format.Date(tx.CreatedAt), format.Signed(tx), tx.Note, tx.AuthorName)
}
