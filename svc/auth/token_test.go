package auth

import (
	"testing"
	"time"

	"pasteor/pkg/domain"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewTokensRejectsWeakSecret(t *testing.T) {
	if _, err := NewTokens([]byte("short"), time.Hour); err == nil {
		t.Error("expected error for a short secret")
	}
	if _, err := NewTokens(testSecret, 0); err == nil {
		t.Error("expected error for non-positive ttl")
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	user := &domain.User{
		ID:        42,
		Email:     "dev@example.com",
		Name:      "Dev",
		AvatarURL: "https://example.com/a.png",
	}
	signed, err := tokens.Issue(user, time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ident, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ident.UserID != 42 || ident.Email != "dev@example.com" || ident.Name != "Dev" {
		t.Errorf("identity mismatch: %+v", ident)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	tokens, err := NewTokens(testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, err := tokens.Issue(&domain.User{ID: 1, Email: "a@b.c"}, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := tokens.Verify(signed); err == nil {
		t.Error("expected expired token to fail verification")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokens(testSecret, time.Hour)
	verifier, _ := NewTokens([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	signed, err := issuer.Issue(&domain.User{ID: 1, Email: "a@b.c"}, time.Now())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := verifier.Verify(signed); err == nil {
		t.Error("expected mismatched secret to fail verification")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tokens, _ := NewTokens(testSecret, time.Hour)
	for _, s := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		if _, err := tokens.Verify(s); err == nil {
			t.Errorf("expected %q to fail verification", s)
		}
	}
}
