package auth

import (
	"testing"
	"time"

	"campaign-callsync/internal/config"
)

func TestIssueAndVerifyOpsToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "issuer",
		JWTAudience: "aud",
		TokenTTL:    15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.Issue(now, "operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected token string")
	}

	claims, err := m.Verify(tok, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "operator-1" || claims.Scope != ScopeOps {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	now := time.Unix(1700000000, 0).UTC()

	tok, err := m.Issue(now, "operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Past the TTL plus the 30s leeway.
	if _, err := m.Verify(tok, now.Add(2*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	issuerMgr, _ := NewManager(config.AuthConfig{JWTSecret: "secret-a", TokenTTL: time.Minute})
	verifyMgr, _ := NewManager(config.AuthConfig{JWTSecret: "secret-b", TokenTTL: time.Minute})

	tok, err := issuerMgr.Issue(now, "operator-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifyMgr.Verify(tok, now); err == nil {
		t.Fatalf("expected signature error")
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", TokenTTL: time.Minute})
	if _, err := m.Issue(time.Unix(1700000000, 0).UTC(), ""); err == nil {
		t.Fatalf("expected subject error")
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(config.AuthConfig{}); err == nil {
		t.Fatalf("expected secret error")
	}
}
