package auth

import (
	"context"
	"testing"
	"time"

	"bank-risk-audit/internal/config"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, Session{UserID: "aud-1", Name: "Alice", Role: "AUDITOR_JUNIOR"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	s := claims.Session()
	if s.UserID != "aud-1" || s.Name != "Alice" || s.Role != "AUDITOR_JUNIOR" {
		t.Fatalf("unexpected session: %+v", s)
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), Session{UserID: "u", Role: "USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, Session{UserID: "u", Role: "USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, now.Add(10*time.Minute)); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestIssuePairRequiresRole(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if _, err := m.IssuePair(time.Now(), Session{UserID: "u"}); err == nil {
		t.Fatalf("expected error for missing role")
	}
}

func TestSessionFromContext(t *testing.T) {
	if _, err := SessionFrom(context.Background()); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	ctx := WithSession(context.Background(), Session{UserID: "u", Role: "USER"})
	s, err := SessionFrom(ctx)
	if err != nil || s.UserID != "u" {
		t.Fatalf("unexpected session %+v err=%v", s, err)
	}
}

func TestRefreshTokenCarriesSession(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, Session{UserID: "cust-1", Name: "Carol", Role: "USER"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := m.Verify(p.RefreshToken, TokenTypeRefresh, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if s := claims.Session(); s.UserID != "cust-1" || s.Role != "USER" || s.Name != "Carol" {
		t.Fatalf("unexpected refresh session: %+v", s)
	}
	if _, err := m.Verify(p.AccessToken, TokenTypeRefresh, now); err == nil {
		t.Fatalf("access token must not verify as a refresh token")
	}
}
