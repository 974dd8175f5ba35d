// Package adminauth issues and verifies the HS256 bearer tokens that guard the admin API.
package adminauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultClockSkew is tolerated on exp/nbf/iat.
const DefaultClockSkew = 30 * time.Second

type Verifier struct {
	secret []byte
	issuer string
	clock  Clock
	skew   time.Duration
}

func NewVerifier(secret, issuer string, clock Clock) *Verifier {
	if clock == nil {
		clock = realClock{}
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, clock: clock, skew: DefaultClockSkew}
}

// Verify checks signature, algorithm, issuer and expiry and returns the `sub` claim.
// Every failure is reported as ErrUnauthorized.
func (v *Verifier) Verify(_ context.Context, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.skew),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || claims.Subject == "" {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// Issue mints a token for subject valid for ttl from now.
func Issue(secret, issuer, subject string, now time.Time, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("adminauth: empty signing secret")
	}
	if subject == "" {
		return "", errors.New("adminauth: empty subject")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("adminauth: ttl must be positive, got %s", ttl)
	}
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
