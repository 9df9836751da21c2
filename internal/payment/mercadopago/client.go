// Package mercadopago is a small client for the MercadoPago checkout API.
package mercadopago

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
)

// DefaultBaseURL is the production API.
const DefaultBaseURL = "https://api.mercadopago.com"

// Client calls the MercadoPago REST API with an access token.
type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
}

// NewClient creates a client. baseURL may be empty for the production API.
func NewClient(accessToken, baseURL string) (*Client, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("MP_ACCESS_TOKEN is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		accessToken: accessToken,
		baseURL:     strings.TrimRight(baseURL, "/"),
	}, nil
}

// Item is one line of a checkout preference.
type Item struct {
	ID         string  `json:"id,omitempty"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs are where the payer returns after checkout.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Pending string `json:"pending,omitempty"`
	Failure string `json:"failure,omitempty"`
}

// PreferenceRequest is the body of POST /checkout/preferences.
type PreferenceRequest struct {
	Items             []Item   `json:"items"`
	ExternalReference string   `json:"external_reference"`
	NotificationURL   string   `json:"notification_url,omitempty"`
	BackURLs          BackURLs `json:"back_urls"`
	AutoReturn        string   `json:"auto_return,omitempty"`
}

// Preference is a created checkout preference.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// Payment is the subset of a payment resource the marketplace uses.
type Payment struct {
	ID                int64   `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("mercadopago: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("mercadopago: status %d: %s", e.StatusCode, e.Message)
}

// CreatePreference creates a checkout preference.
func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("preference needs at least one item")
	}

	var pref Preference
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &pref); err != nil {
		return nil, fmt.Errorf("creating preference: %w", err)
	}
	if pref.ID == "" || pref.InitPoint == "" {
		return nil, fmt.Errorf("creating preference: response without id or init_point")
	}
	return &pref, nil
}

// GetPayment fetches a payment by its MercadoPago id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if id == "" {
		return nil, fmt.Errorf("payment id is required")
	}

	var p Payment
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, fmt.Errorf("fetching payment %s: %w", id, err)
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (err error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing body: %w", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(raw, &apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
