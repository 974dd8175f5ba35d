// Package tokencache holds the provider bearer token for the whole process.
package tokencache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/clock"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

// DefaultRefreshMargin is how long before expiry a token is treated as stale.
const DefaultRefreshMargin = 60 * time.Second

var ErrEmptyToken = errors.New("credential source returned an empty token")

// Cache returns a valid token, fetching a new one when none is held or the held one is
// within the refresh margin of expiry. Concurrent callers share a single fetch.
type Cache struct {
	src    provider.CredentialSource
	clock  clock.Clock
	margin time.Duration

	group singleflight.Group

	mu        sync.Mutex
	token     string
	refreshAt time.Time
}

func New(src provider.CredentialSource, clk clock.Clock, margin time.Duration) *Cache {
	if margin < 0 {
		margin = 0
	}
	return &Cache{src: src, clock: clk, margin: margin}
}

func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.fresh(); ok {
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		if tok, ok := c.fresh(); ok {
			return tok, nil
		}
		// Shared by every waiter; one caller's cancellation must not fail the rest.
		t, err := c.src.FetchToken(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		if t.AccessToken == "" {
			return "", ErrEmptyToken
		}
		c.mu.Lock()
		c.token = t.AccessToken
		c.refreshAt = c.clock.Now().Add(t.ExpiresIn - c.marginFor(t.ExpiresIn))
		c.mu.Unlock()
		return t.AccessToken, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the held token so the next call fetches a new one.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.refreshAt = time.Time{}
}

// marginFor caps the refresh margin at half the token lifetime so short-lived tokens
// are still reused.
func (c *Cache) marginFor(lifetime time.Duration) time.Duration {
	if half := lifetime / 2; c.margin > half {
		return half
	}
	return c.margin
}

func (c *Cache) fresh() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if !c.clock.Now().Before(c.refreshAt) {
		return "", false
	}
	return c.token, true
}
