// Package backend is the HTTP client of the commerce backend that executes
// the functions called by the realtime model.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/codewandler/orderrt-go/store"
)

const (
	pathEphemeralKey = "/openai/ephemeral-key"
	pathFunctionCall = "/openai/function-call"
	pathProducts     = "/products"
	pathCart         = "/cart/"
)

// Credential is a short-lived key authorizing one realtime negotiation.
type Credential struct {
	SessionID string `json:"session_id"`
	Key       string `json:"ephemeral_key"`
}

type Cart struct {
	Items    []store.CartItem `json:"items"`
	Total    float64          `json:"total"`
	Customer store.Customer   `json:"customer"`
}

// Error is a non-2xx response.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.http = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// New returns a client for the backend rooted at baseURL, e.g.
// http://localhost:8000/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IssueEphemeralCredential asks for a realtime credential. An empty sessionID
// lets the backend mint a new session; the returned id is authoritative.
func (c *Client) IssueEphemeralCredential(ctx context.Context, sessionID string) (Credential, error) {
	req := struct {
		SessionID string `json:"session_id,omitempty"`
	}{SessionID: sessionID}

	var cred Credential
	if err := c.do(ctx, http.MethodPost, pathEphemeralKey, req, &cred); err != nil {
		return Credential{}, err
	}
	if cred.Key == "" {
		return Credential{}, fmt.Errorf("backend: empty ephemeral key")
	}
	if cred.SessionID == "" {
		return Credential{}, fmt.Errorf("backend: empty session id")
	}
	return cred, nil
}

// InvokeFunction executes a model function call and returns the raw result.
func (c *Client) InvokeFunction(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	req := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{Name: name, Arguments: args}

	var res json.RawMessage
	if err := c.do(ctx, http.MethodPost, pathFunctionCall, req, &res); err != nil {
		return nil, err
	}
	c.logger.Debug("function invoked", slog.String("name", name), slog.Int("bytes", len(res)))
	return res, nil
}

func (c *Client) Products(ctx context.Context) ([]store.Product, error) {
	var res struct {
		Products []store.Product `json:"products"`
	}
	if err := c.do(ctx, http.MethodGet, pathProducts, nil, &res); err != nil {
		return nil, err
	}
	return res.Products, nil
}

func (c *Client) Cart(ctx context.Context, sessionID string) (Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, pathCart+url.PathEscape(sessionID), nil, &cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return &Error{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
