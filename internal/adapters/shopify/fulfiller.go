// Package shopify marks orders fulfilled through the store's Admin REST API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/fulfillment"
)

const DefaultAPIVersion = "2024-10"

type Fulfiller struct {
	baseURL     string
	accessToken string
	apiVersion  string
	client      *http.Client
}

var _ fulfillment.Fulfiller = (*Fulfiller)(nil)

// New builds a Fulfiller for shopDomain (e.g. "example.myshopify.com"). A domain that
// already carries a scheme is used as-is, which lets tests point it at httptest.
func New(shopDomain, accessToken, apiVersion string, httpClient *http.Client) *Fulfiller {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(shopDomain, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &Fulfiller{baseURL: base, accessToken: accessToken, apiVersion: apiVersion, client: httpClient}
}

type fulfillmentBody struct {
	Fulfillment struct {
		NotifyCustomer bool `json:"notify_customer"`
	} `json:"fulfillment"`
}

func (f *Fulfiller) MarkFulfilled(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("mark fulfilled: empty order id")
	}
	body, err := json.Marshal(fulfillmentBody{})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/orders/%s/fulfillments.json", f.baseURL, f.apiVersion, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", f.accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("mark fulfilled: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mark fulfilled: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
