// Package api is the HTTP client for the marketplace backend. Error bodies
// are mapped back to apperr kinds so callers branch the same way on both
// sides of the wire.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/apperr"
)

// MaxResponseSize bounds how much of a response body is read.
const MaxResponseSize = 10 << 20

// TokenSource yields the identity token sent as the Bearer credential.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// Client handles communication with the marketplace server
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewClient creates a client for baseURL. tokens may be nil, in which case
// only public endpoints work.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
	}
}

// WithTokens returns a copy of c that authenticates with tokens.
func (c *Client) WithTokens(tokens TokenSource) *Client {
	cp := *c
	cp.tokens = tokens
	return &cp
}

type errorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields"`
}

// decodeError turns a non-2xx response into an *apperr.Error. The body's
// category wins over the status code.
func decodeError(status int, data []byte) error {
	kind := apperr.FromStatus(status)
	msg := fmt.Sprintf("server returned status %d", status)
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil {
		if k := apperr.ParseKind(eb.Error); k != apperr.KindUnknown {
			kind = k
		}
		if eb.Message != "" {
			msg = eb.Message
		}
	}
	return &apperr.Error{Kind: kind, Message: msg, Fields: eb.Fields}
}

func readLimitedResponse(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
	}
	return data, nil
}

// token fetches the caller's identity token. When required is false a
// missing token is not an error.
func (c *Client) token(ctx context.Context, required bool) (string, error) {
	if c.tokens == nil {
		if required {
			return "", apperr.New(apperr.KindAuthRequired, "not signed in")
		}
		return "", nil
	}
	tok, err := c.tokens.IDToken(ctx)
	if err != nil || tok == "" {
		if required {
			return "", apperr.Wrap(apperr.KindAuthRequired, "not signed in", err)
		}
		return "", nil
	}
	return tok, nil
}

// do sends one request. A transport failure is StorageUnavailable.
func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUnavailable, "failed to connect to server", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := readLimitedResponse(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// HealthResponse represents the server health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Storage   string    `json:"storage"`
	Timestamp time.Time `json:"timestamp"`
}

// Health checks if the server is healthy
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var h HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", "", nil, &h)
	return h, err
}
