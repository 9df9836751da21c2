// Package client provides an HTTP client for the Misiones Arrienda REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/misiones-arrienda/arrienda/internal/auth"
	"github.com/misiones-arrienda/arrienda/internal/chat"
	"github.com/misiones-arrienda/arrienda/internal/inquiry"
	"github.com/misiones-arrienda/arrienda/internal/notification"
	"github.com/misiones-arrienda/arrienda/internal/property"
)

// Client is an HTTP client for the arrienda API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new API client. token may be empty for public calls.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "server error: " + http.StatusText(e.StatusCode)
}

// LoginResult is the response of a password login.
type LoginResult struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var res LoginResult
	if err := c.post(context.Background(), "/api/auth/login", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Me returns the signed-in user.
func (c *Client) Me() (*auth.User, error) {
	var u auth.User
	if err := c.get(context.Background(), "/api/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListOptions controls filtering for ListProperties.
type ListOptions struct {
	Query     string
	City      string
	Operation string // rent, sale (empty = all)
	Type      string
	MaxPrice  int64
	Featured  bool
	Mine      bool
	Limit     int
	Offset    int
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	set := func(key, value string) {
		if value != "" {
			v.Set(key, value)
		}
	}
	set("q", o.Query)
	set("city", o.City)
	set("operation", o.Operation)
	set("type", o.Type)
	if o.MaxPrice > 0 {
		v.Set("max_price", strconv.FormatInt(o.MaxPrice, 10))
	}
	if o.Featured {
		v.Set("featured", "true")
	}
	if o.Mine {
		v.Set("owner", "me")
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		v.Set("offset", strconv.Itoa(o.Offset))
	}
	return v
}

// ListProperties returns a page of listings matching opts.
func (c *Client) ListProperties(opts ListOptions) (*property.Page, error) {
	path := "/api/properties"
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}

	var page property.Page
	if err := c.get(context.Background(), path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetProperty returns a listing with its images.
func (c *Client) GetProperty(id int64) (*property.Property, error) {
	var p property.Property
	if err := c.get(context.Background(), fmt.Sprintf("/api/properties/%d", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProperty publishes a listing.
func (c *Client) CreateProperty(in property.Input) (*property.Property, error) {
	var p property.Property
	if err := c.post(context.Background(), "/api/properties", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProperty removes a listing.
func (c *Client) DeleteProperty(id int64) error {
	return c.doDelete(fmt.Sprintf("/api/properties/%d", id))
}

// Inquire sends a question to the owner of a listing.
func (c *Client) Inquire(propertyID int64, text string) (*inquiry.Inquiry, error) {
	var q inquiry.Inquiry
	path := fmt.Sprintf("/api/properties/%d/inquiries", propertyID)
	if err := c.post(context.Background(), path, map[string]string{"text": text}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Inquiries returns the questions received on one of the caller's listings.
func (c *Client) Inquiries(propertyID int64) ([]*inquiry.Inquiry, error) {
	var list []*inquiry.Inquiry
	if err := c.get(context.Background(), fmt.Sprintf("/api/properties/%d/inquiries", propertyID), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Favorites returns the caller's saved listings.
func (c *Client) Favorites() ([]*property.Property, error) {
	var list []*property.Property
	if err := c.get(context.Background(), "/api/favorites", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AddFavorite saves a listing.
func (c *Client) AddFavorite(id int64) error {
	return c.post(context.Background(), fmt.Sprintf("/api/properties/%d/favorite", id), nil, nil)
}

// RemoveFavorite un-saves a listing.
func (c *Client) RemoveFavorite(id int64) error {
	return c.doDelete(fmt.Sprintf("/api/properties/%d/favorite", id))
}

// Notifications returns the caller's notifications, newest first.
func (c *Client) Notifications(unreadOnly bool) ([]notification.Notification, error) {
	path := "/api/notifications"
	if unreadOnly {
		path += "?unread=true"
	}
	var list []notification.Notification
	if err := c.get(context.Background(), path, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkNotificationsRead marks every notification read and returns how many
// changed.
func (c *Client) MarkNotificationsRead() (int64, error) {
	var res struct {
		Marked int64 `json:"marked"`
	}
	if err := c.post(context.Background(), "/api/notifications/read-all", nil, &res); err != nil {
		return 0, err
	}
	return res.Marked, nil
}

// Conversations returns the caller's conversations.
func (c *Client) Conversations() ([]chat.Conversation, error) {
	var list []chat.Conversation
	if err := c.get(context.Background(), "/api/conversations", &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Messages returns messages of a conversation with ids above afterID,
// oldest first. limit 0 uses the server default.
func (c *Client) Messages(ctx context.Context, conversationID string, afterID int64, limit int) ([]chat.Message, error) {
	v := url.Values{}
	if afterID > 0 {
		v.Set("after", strconv.FormatInt(afterID, 10))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if q := v.Encode(); q != "" {
		path += "?" + q
	}

	var msgs []chat.Message
	if err := c.get(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts a message to a conversation.
func (c *Client) SendMessage(conversationID, body string) (*chat.Message, error) {
	var msg chat.Message
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.post(context.Background(), path, map[string]string{"body": body}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// get performs a GET request and decodes the response.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

// post performs a POST request with an optional JSON body and decodes the
// response.
func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

// doDelete performs a DELETE request.
func (c *Client) doDelete(path string) error {
	req, err := http.NewRequest("DELETE", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, nil)
}

// authHeader returns the headers every request carries.
func (c *Client) authHeader() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

// do executes an HTTP request with auth header and handles errors.
func (c *Client) do(req *http.Request, result any) error {
	for k, v := range c.authHeader() {
		req.Header[k] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("closing response body", "error", cerr)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
