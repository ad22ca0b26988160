package auth

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService(nil, ServiceConfig{HMACSecret: "test-secret", TokenTTL: time.Hour})
	user := &User{ID: 42, Username: "mina", Role: "teacher"}

	token, err := svc.IssueToken(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Role != "teacher" {
		t.Fatalf("role = %q, want teacher", claims.Role)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id != 42 {
		t.Fatalf("subject = %q, want 42", claims.Subject)
	}
	if claims.Issuer != "toeicprep" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("token id not set")
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	issuer := NewService(nil, ServiceConfig{HMACSecret: "secret-a", TokenTTL: time.Hour})
	verifier := NewService(nil, ServiceConfig{HMACSecret: "secret-b", TokenTTL: time.Hour})

	token, err := issuer.IssueToken(&User{ID: 1, Role: "student"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := verifier.ParseToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on secret mismatch, got %v", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	// Constructed directly to get a negative TTL past the config defaulting.
	svc := &Service{hmacSecret: []byte("test-secret"), tokenTTL: -time.Minute}
	token, err := svc.IssueToken(&User{ID: 1, Role: "student"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := svc.ParseToken(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired token, got %v", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	svc := NewService(nil, ServiceConfig{HMACSecret: "test-secret"})
	if _, err := svc.ParseToken("not.a.token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
