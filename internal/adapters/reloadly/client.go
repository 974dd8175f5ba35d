package reloadly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

const (
	acceptTopupsV1   = "application/com.reloadly.topups-v1+json"
	maxResponseBytes = 1 << 20
)

// TokenSource supplies the bearer token for each call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client implements provider.Client against the top-up API.
type Client struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	log     *zap.Logger

	// useLocalAmount selects localFixedAmounts for denomination checks.
	useLocalAmount bool
}

type ClientOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *zap.Logger
	UseLocalAmount bool
}

func NewClient(tokens TokenSource, opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = SandboxAPIURL
	}
	return &Client{
		baseURL:        opts.BaseURL,
		tokens:         tokens,
		client:         opts.HTTPClient,
		log:            opts.Logger,
		useLocalAmount: opts.UseLocalAmount,
	}
}

var _ provider.Client = (*Client)(nil)

type operatorPayload struct {
	OperatorID int64  `json:"operatorId"`
	Name       string `json:"name"`
	Country    struct {
		IsoName string `json:"isoName"`
	} `json:"country"`
	DenominationType  string            `json:"denominationType"`
	FixedAmounts      []decimal.Decimal `json:"fixedAmounts"`
	LocalFixedAmounts []decimal.Decimal `json:"localFixedAmounts"`
}

func (c *Client) toOperator(p operatorPayload) provider.Operator {
	amounts := p.FixedAmounts
	if c.useLocalAmount && len(p.LocalFixedAmounts) > 0 {
		amounts = p.LocalFixedAmounts
	}
	return provider.Operator{
		ID:           p.OperatorID,
		Name:         p.Name,
		CountryCode:  p.Country.IsoName,
		FixedAmounts: amounts,
	}
}

func (c *Client) DetectOperator(ctx context.Context, phone, countryCode string) (provider.Operator, error) {
	path := fmt.Sprintf("/operators/auto-detect/phone/%s/countries/%s?suggestedAmountsMap=false",
		url.PathEscape(phone), url.PathEscape(countryCode))
	var p operatorPayload
	if err := c.do(ctx, "detect operator", http.MethodGet, path, nil, &p); err != nil {
		return provider.Operator{}, err
	}
	return c.toOperator(p), nil
}

func (c *Client) ListOperators(ctx context.Context, countryCode string) ([]provider.Operator, error) {
	path := fmt.Sprintf("/operators/countries/%s?suggestedAmountsMap=false", url.PathEscape(countryCode))
	var ps []operatorPayload
	if err := c.do(ctx, "list operators", http.MethodGet, path, nil, &ps); err != nil {
		return nil, err
	}
	out := make([]provider.Operator, 0, len(ps))
	for _, p := range ps {
		out = append(out, c.toOperator(p))
	}
	return out, nil
}

func (c *Client) OperatorDenominations(ctx context.Context, operatorID int64) ([]decimal.Decimal, error) {
	path := "/operators/" + strconv.FormatInt(operatorID, 10)
	var p operatorPayload
	if err := c.do(ctx, "operator denominations", http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return c.toOperator(p).FixedAmounts, nil
}

type topupPayload struct {
	OperatorID       int64           `json:"operatorId"`
	Amount           decimal.Decimal `json:"amount"`
	UseLocalAmount   bool            `json:"useLocalAmount"`
	CustomIdentifier string          `json:"customIdentifier,omitempty"`
	RecipientPhone   struct {
		CountryCode string `json:"countryCode"`
		Number      string `json:"number"`
	} `json:"recipientPhone"`
}

type topupResponse struct {
	TransactionID json.Number `json:"transactionId"`
	Status        string      `json:"status"`
}

func (c *Client) Topup(ctx context.Context, req provider.TopupRequest) (provider.TopupResult, error) {
	var body topupPayload
	body.OperatorID = req.OperatorID
	body.Amount = req.Amount
	body.UseLocalAmount = req.UseLocalAmount
	body.CustomIdentifier = req.CustomIdentifier
	body.RecipientPhone.CountryCode = req.CountryCode
	body.RecipientPhone.Number = req.Number

	var resp topupResponse
	if err := c.do(ctx, "topup", http.MethodPost, "/topups", body, &resp); err != nil {
		return provider.TopupResult{}, err
	}
	if resp.TransactionID == "" {
		return provider.TopupResult{}, &provider.Error{Op: "topup", StatusCode: http.StatusBadGateway, Message: "response missing transactionId"}
	}
	return provider.TopupResult{TransactionID: resp.TransactionID.String(), Status: resp.Status}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%s: token: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptTopupsV1)
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := decodeError(op, resp.StatusCode, raw)
		c.log.Debug("provider call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("code", perr.Code),
		)
		return perr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type errorBody struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	// The auth endpoint uses OAuth-style fields.
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func decodeError(op string, status int, raw []byte) *provider.Error {
	e := &provider.Error{Op: op, StatusCode: status}
	var b errorBody
	if json.Unmarshal(raw, &b) == nil {
		e.Code = b.ErrorCode
		e.Message = b.Message
		if e.Code == "" {
			e.Code = b.Error
		}
		if e.Message == "" {
			e.Message = b.ErrorDescription
		}
	}
	return e
}
