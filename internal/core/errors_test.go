package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{Validation("create group", "name is required"), ErrValidation},
		{NotFound("join group", "group not found"), ErrNotFound},
		{Conflict("create group", "name taken"), ErrConflict},
		{Sync("list groups", errors.New("connection refused")), ErrSync},
		{Unauthenticated("list groups", "login required"), ErrUnauthenticated},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("outer: %w", tc.err)
		if !errors.Is(wrapped, tc.want) {
			t.Errorf("%v should match %v", tc.err, tc.want)
		}
		if errors.Is(wrapped, ErrValidation) && tc.want != ErrValidation {
			t.Errorf("%v should not match validation", tc.err)
		}
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(NotFound("op", "x")) != KindNotFound {
		t.Fatalf("expected not_found")
	}
	if KindOf(errors.New("plain")) != KindSync {
		t.Fatalf("foreign errors count as sync failures")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(Conflict("op", "Nama grup sudah dipakai")); got != "Nama grup sudah dipakai" {
		t.Fatalf("unexpected message %q", got)
	}
	inner := errors.New("dial tcp: refused")
	if got := UserMessage(Sync("op", inner)); got != "op: sync: dial tcp: refused" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(Sync("op", inner), inner) {
		t.Fatalf("sync errors unwrap to their cause")
	}
}
