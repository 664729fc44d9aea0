package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        DefaultIssuer,
		TokenTTL:      30 * time.Minute,
		Clock:         func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	tokenString, expiresIn, err := issuer.IssueSessionToken(Customer{ID: "customer-123", Email: "buyer@example.com"})
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds %d", expiresIn)
	}

	claims := &SessionClaims{}
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return clockNow }))
	if _, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	}); err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}
	if claims.Subject != "customer-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != DefaultIssuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.CustomerEmail != "buyer@example.com" {
		t.Fatalf("unexpected email %s", claims.CustomerEmail)
	}
}

func TestTokenIssuerRejectsMissingInputs(t *testing.T) {
	if _, err := NewTokenIssuer(TokenIssuerConfig{Issuer: DefaultIssuer}); err == nil {
		t.Fatalf("expected constructor error for missing secret")
	}
	if _, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: " "}); err == nil {
		t.Fatalf("expected constructor error for missing issuer")
	}

	issuer, err := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret"), Issuer: DefaultIssuer})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	if _, _, err := issuer.IssueSessionToken(Customer{ID: "  "}); err == nil {
		t.Fatalf("expected error for missing subject")
	}
}
