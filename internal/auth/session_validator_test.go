package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testSessionSigningSecret = "secret"
	testSessionCookieName    = "app_session"
	testCustomerID           = "customer-123"
	testCustomerEmail        = "buyer@example.com"
)

func newTestValidator(t *testing.T, clock func() time.Time) *SessionValidator {
	t.Helper()
	validator, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        DefaultIssuer,
		CookieName:    testSessionCookieName,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	return validator
}

func signClaims(t *testing.T, claims SessionClaims, secret string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestSessionValidatorValidateToken(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })

	signed := signClaims(t, SessionClaims{
		CustomerEmail: testCustomerEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   testCustomerID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(clockNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}, testSessionSigningSecret)

	claims, err := validator.ValidateToken(signed)
	if err != nil {
		t.Fatalf("unexpected validation failure: %v", err)
	}
	if claims.CustomerID() != testCustomerID {
		t.Fatalf("unexpected customer id: %s", claims.CustomerID())
	}
	if claims.CustomerEmail != testCustomerEmail {
		t.Fatalf("unexpected email: %s", claims.CustomerEmail)
	}
}

func TestSessionValidatorRejectsBadTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })
	valid := jwt.RegisteredClaims{
		Issuer:    DefaultIssuer,
		Subject:   testCustomerID,
		IssuedAt:  jwt.NewNumericDate(clockNow.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
	}

	expired := valid
	expired.IssuedAt = jwt.NewNumericDate(clockNow.Add(-2 * time.Hour))
	expired.ExpiresAt = jwt.NewNumericDate(clockNow.Add(-time.Hour))

	foreignIssuer := valid
	foreignIssuer.Issuer = "someone-else"

	noSubject := valid
	noSubject.Subject = " "

	noExpiry := valid
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name     string
		token    string
		expected error
	}{
		{name: "empty", token: " ", expected: ErrMissingSessionToken},
		{name: "expired", token: signClaims(t, SessionClaims{RegisteredClaims: expired}, testSessionSigningSecret), expected: ErrExpiredSessionToken},
		{name: "foreign issuer", token: signClaims(t, SessionClaims{RegisteredClaims: foreignIssuer}, testSessionSigningSecret), expected: ErrInvalidSessionToken},
		{name: "wrong secret", token: signClaims(t, SessionClaims{RegisteredClaims: valid}, "other"), expected: ErrInvalidSessionToken},
		{name: "missing subject", token: signClaims(t, SessionClaims{RegisteredClaims: noSubject}, testSessionSigningSecret), expected: ErrMissingSessionSubject},
		{name: "missing expiry", token: signClaims(t, SessionClaims{RegisteredClaims: noExpiry}, testSessionSigningSecret), expected: ErrInvalidSessionToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := validator.ValidateToken(tt.token); !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestSessionValidatorValidateRequestUsesCookie(t *testing.T) {
	validator := newTestValidator(t, nil)
	issuer, err := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        DefaultIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	signed, _, err := issuer.IssueSessionToken(Customer{ID: testCustomerID})
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/cart", http.NoBody)
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token without cookie, got %v", err)
	}

	request.AddCookie(&http.Cookie{Name: testSessionCookieName, Value: signed})
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if claims.CustomerID() != testCustomerID {
		t.Fatalf("unexpected customer id: %s", claims.CustomerID())
	}
}

func TestSessionValidatorAcceptsBearerTokens(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	validator := newTestValidator(t, func() time.Time { return clockNow })
	signed := signClaims(t, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   testCustomerID,
			IssuedAt:  jwt.NewNumericDate(clockNow),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}, testSessionSigningSecret)

	request := httptest.NewRequest(http.MethodGet, "/orders", http.NoBody)
	request.Header.Set("Authorization", "bearer "+signed)
	claims, err := validator.ValidateRequest(request)
	if err != nil {
		t.Fatalf("bearer validation failed: %v", err)
	}
	if claims.CustomerID() != testCustomerID {
		t.Fatalf("unexpected customer id: %s", claims.CustomerID())
	}

	request.Header.Set("Authorization", "Basic "+signed)
	if _, err := validator.ValidateRequest(request); !errors.Is(err, ErrMissingSessionToken) {
		t.Fatalf("expected missing token for non-bearer scheme, got %v", err)
	}
}

func TestSessionValidatorRejectsTokensIssuedInTheFuture(t *testing.T) {
	clockNow := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   testCustomerID,
			IssuedAt:  jwt.NewNumericDate(clockNow.Add(30 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(clockNow.Add(time.Hour)),
		},
	}
	signed := signClaims(t, claims, testSessionSigningSecret)

	strict := newTestValidator(t, func() time.Time { return clockNow })
	if _, err := strict.ValidateToken(signed); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected ErrInvalidSessionToken, got %v", err)
	}

	tolerant, err := NewSessionValidator(SessionValidatorConfig{
		SigningSecret: []byte(testSessionSigningSecret),
		Issuer:        DefaultIssuer,
		CookieName:    testSessionCookieName,
		Leeway:        time.Minute,
		Clock:         func() time.Time { return clockNow },
	})
	if err != nil {
		t.Fatalf("failed to construct validator: %v", err)
	}
	if _, err := tolerant.ValidateToken(signed); err != nil {
		t.Fatalf("expected leeway to absorb skew, got %v", err)
	}
}

func TestNewSessionValidatorRequiresConfiguration(t *testing.T) {
	tests := []struct {
		name     string
		config   SessionValidatorConfig
		expected error
	}{
		{name: "secret", config: SessionValidatorConfig{Issuer: DefaultIssuer, CookieName: "c"}, expected: ErrMissingSessionSigningKey},
		{name: "issuer", config: SessionValidatorConfig{SigningSecret: []byte("s"), CookieName: "c"}, expected: ErrMissingSessionIssuer},
		{name: "cookie", config: SessionValidatorConfig{SigningSecret: []byte("s"), Issuer: DefaultIssuer}, expected: ErrMissingSessionCookieName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSessionValidator(tt.config); !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, err)
			}
		})
	}
}
