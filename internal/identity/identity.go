// Package identity verifies bearer tokens and carries the verified caller through request contexts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates clock skew between the identity provider and this service.
const DefaultLeeway = 30 * time.Second

// Status is a verified caller. It is valid until ExpiresAt and must be re-verified afterwards.
type Status struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// Valid reports whether s is usable at now.
func (s Status) Valid(now time.Time) bool {
	return s.Subject != "" && now.Before(s.ExpiresAt)
}

// Claims are the token claims issued by the identity provider.
type Claims struct {
	Email      string `json:"email,omitempty"`
	GivenName  string `json:"given_name,omitempty"`
	FamilyName string `json:"family_name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns a bearer token into a Status.
type Verifier interface {
	Verify(ctx context.Context, token string) (Status, error)
}

// JWTVerifier checks HS256 tokens signed with a shared key.
type JWTVerifier struct {
	key    []byte
	leeway time.Duration
}

var _ Verifier = (*JWTVerifier)(nil)

// NewJWTVerifier constructs a verifier. A non-positive leeway uses DefaultLeeway.
func NewJWTVerifier(key []byte, leeway time.Duration) *JWTVerifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &JWTVerifier{key: key, leeway: leeway}
}

// Verify validates signature, expiry and subject. Every failure matches errs.ErrUnauthorized.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Status, error) {
	if token == "" {
		return Status{}, errs.ErrUnauthorized
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.key, nil
	}, jwt.WithLeeway(v.leeway), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Status{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Status{}, fmt.Errorf("%w: missing subject", errs.ErrUnauthorized)
	}
	return Status{
		Subject:   claims.Subject,
		Email:     claims.Email,
		FirstName: claims.GivenName,
		LastName:  claims.FamilyName,
		ExpiresAt: claims.ExpiresAt.Time.Add(v.leeway),
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: no bearer token", errs.ErrUnauthorized)
}

type ctxKey string

const statusKey ctxKey = "pe.identity"

// WithStatus stores the verified caller in ctx.
func WithStatus(ctx context.Context, s Status) context.Context {
	return context.WithValue(ctx, statusKey, s)
}

// FromContext fetches the verified caller.
func FromContext(ctx context.Context) (Status, bool) {
	s, ok := ctx.Value(statusKey).(Status)
	return s, ok
}
