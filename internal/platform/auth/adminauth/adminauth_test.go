package adminauth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lakay-digital/recharge-relay/internal/platform/auth/adminauth"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

const (
	secret = "0123456789abcdef0123456789abcdef"
	issuer = "recharge-relay"
)

func TestVerifier_ValidToken(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v := adminauth.NewVerifier(secret, issuer, clk)

	tok, err := adminauth.Issue(secret, issuer, "ops@lakay", clk.Now(), time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	sub, err := v.Verify(context.Background(), tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "ops@lakay" {
		t.Fatalf("sub mismatch: got %q", sub)
	}
}

func TestVerifier_Expired(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	v := adminauth.NewVerifier(secret, issuer, clk)
	tok, err := adminauth.Issue(secret, issuer, "ops", clk.Now(), time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clk.Advance(time.Minute + adminauth.DefaultClockSkew - time.Second)
	if _, err := v.Verify(context.Background(), tok); err != nil {
		t.Fatalf("within skew: %v", err)
	}
	clk.Advance(2 * time.Second)
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, adminauth.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after expiry, got %v", err)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	v := adminauth.NewVerifier(secret, issuer, &fakeClock{now: now})

	wrongSecret, _ := adminauth.Issue("another-secret-another-secret!!", issuer, "ops", now, time.Hour)
	wrongIssuer, _ := adminauth.Issue(secret, "someone-else", "ops", now, time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: issuer, Subject: "ops"}).SignedString([]byte(secret))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Issuer: issuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}).SignedString([]byte(secret))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Issuer: issuer, Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}).SignedString([]byte(secret))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Issuer: issuer, Subject: "ops", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"garbage":      "not.a.jwt",
		"empty":        "",
		"wrong_secret": wrongSecret,
		"wrong_issuer": wrongIssuer,
		"no_exp":       noExp,
		"no_sub":       noSub,
		"hs512":        hs512,
		"alg_none":     none,
	} {
		if _, err := v.Verify(context.Background(), tok); !errors.Is(err, adminauth.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestIssue_RejectsBadInput(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	if _, err := adminauth.Issue("", issuer, "ops", now, time.Hour); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := adminauth.Issue(secret, issuer, "", now, time.Hour); err == nil {
		t.Fatalf("expected error for empty subject")
	}
	if _, err := adminauth.Issue(secret, issuer, "ops", now, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
