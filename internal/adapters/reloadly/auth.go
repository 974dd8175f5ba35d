// Package reloadly is the HTTP client for the airtime provider.
package reloadly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

const (
	DefaultAuthURL     = "https://auth.reloadly.com/oauth/token"
	ProductionAPIURL   = "https://topups.reloadly.com"
	SandboxAPIURL      = "https://topups-sandbox.reloadly.com"
	EnvProduction      = "production"
	EnvSandbox         = "sandbox"
	defaultHTTPTimeout = 15 * time.Second
)

// APIURLFor maps RELOADLY_ENV to the top-up API base URL. Anything other than
// "production" selects the sandbox.
func APIURLFor(env string) string {
	if env == EnvProduction {
		return ProductionAPIURL
	}
	return SandboxAPIURL
}

// Auth fetches bearer tokens with the client_credentials grant.
type Auth struct {
	authURL      string
	clientID     string
	clientSecret string
	audience     string
	client       *http.Client
}

func NewAuth(authURL, clientID, clientSecret, audience string, httpClient *http.Client) *Auth {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Auth{
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		audience:     audience,
		client:       httpClient,
	}
}

type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Audience     string `json:"audience"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (a *Auth) FetchToken(ctx context.Context) (provider.Token, error) {
	body, err := json.Marshal(tokenRequest{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		GrantType:    "client_credentials",
		Audience:     a.audience,
	})
	if err != nil {
		return provider.Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL, bytes.NewReader(body))
	if err != nil {
		return provider.Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return provider.Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return provider.Token{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Token{}, decodeError("token", resp.StatusCode, raw)
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return provider.Token{}, fmt.Errorf("decode token response: %w", err)
	}
	return provider.Token{
		AccessToken: tr.AccessToken,
		ExpiresIn:   time.Duration(tr.ExpiresIn) * time.Second,
	}, nil
}
