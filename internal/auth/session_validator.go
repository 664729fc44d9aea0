package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the issuer claim storefront sessions carry unless configured otherwise.
const DefaultIssuer = "packstudio"

const bearerPrefix = "Bearer "

var (
	ErrMissingSessionSigningKey = errors.New("session validator: signing key required")
	ErrMissingSessionIssuer     = errors.New("session validator: issuer required")
	ErrMissingSessionCookieName = errors.New("session validator: cookie name required")
	ErrMissingSessionToken      = errors.New("session validator: token required")
	ErrInvalidSessionToken      = errors.New("session validator: invalid token")
	ErrExpiredSessionToken      = errors.New("session validator: token expired")
	ErrMissingSessionSubject    = errors.New("session validator: subject required")
)

// SessionClaims is the JWT payload of a storefront session. The subject is
// the customer id carts and orders are keyed by.
type SessionClaims struct {
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	jwt.RegisteredClaims
}

// CustomerID returns the trimmed subject.
func (c SessionClaims) CustomerID() string {
	return strings.TrimSpace(c.Subject)
}

// SessionValidatorConfig describes how storefront sessions are checked.
type SessionValidatorConfig struct {
	SigningSecret []byte
	Issuer        string
	CookieName    string
	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration
	Clock  func() time.Time
}

// SessionValidator authenticates customers from an HS256 session token.
// Browsers send it as a cookie; API clients may send it as a bearer token.
type SessionValidator struct {
	secret     []byte
	cookieName string
	parser     *jwt.Parser
}

func NewSessionValidator(cfg SessionValidatorConfig) (*SessionValidator, error) {
	switch {
	case len(cfg.SigningSecret) == 0:
		return nil, ErrMissingSessionSigningKey
	case strings.TrimSpace(cfg.Issuer) == "":
		return nil, ErrMissingSessionIssuer
	case strings.TrimSpace(cfg.CookieName) == "":
		return nil, ErrMissingSessionCookieName
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(strings.TrimSpace(cfg.Issuer)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithTimeFunc(clock),
	)
	return &SessionValidator{
		secret:     append([]byte(nil), cfg.SigningSecret...),
		cookieName: strings.TrimSpace(cfg.CookieName),
		parser:     parser,
	}, nil
}

// CookieName is the cookie the storefront session travels in.
func (v *SessionValidator) CookieName() string {
	return v.cookieName
}

// ValidateToken parses a session token and returns its claims.
func (v *SessionValidator) ValidateToken(raw string) (SessionClaims, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return SessionClaims{}, ErrMissingSessionToken
	}
	var claims SessionClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.signingKey); err != nil {
		return SessionClaims{}, classifySessionError(err)
	}
	if claims.CustomerID() == "" {
		return SessionClaims{}, ErrMissingSessionSubject
	}
	return claims, nil
}

// ValidateRequest reads the session cookie, falling back to an
// Authorization bearer token.
func (v *SessionValidator) ValidateRequest(r *http.Request) (SessionClaims, error) {
	if r == nil {
		return SessionClaims{}, ErrMissingSessionToken
	}
	if cookie, err := r.Cookie(v.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return v.ValidateToken(cookie.Value)
	}
	header := r.Header.Get("Authorization")
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return v.ValidateToken(header[len(bearerPrefix):])
	}
	return SessionClaims{}, ErrMissingSessionToken
}

func (v *SessionValidator) signingKey(*jwt.Token) (any, error) {
	return v.secret, nil
}

func classifySessionError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", ErrExpiredSessionToken, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
}
