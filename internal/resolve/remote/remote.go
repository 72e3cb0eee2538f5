// Package remote implements resolve.RemoteResolver against the brainball
// text-to-animal HTTP backend.
//
// The backend is called with:
//
//	POST {base}/v1/text-to-animal
//	{"text": "moo"}
//
// and answers {"animal": "cow", "confidence": 0.93}. Status codes map onto the
// resolver's failure classes: 400 is ErrInvalid, any other non-2xx status is
// ErrUnavailable, and transport errors, timeouts and undecodable bodies are
// ErrUnreachable.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/brainball/internal/resolve"
)

// Path is the endpoint path appended to the base URL.
const Path = "/v1/text-to-animal"

const defaultTimeout = 2 * time.Second

// Client resolves words through the HTTP backend.
type Client struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its own timeout, if any, applies
// in addition to the per-request one. The client is never modified.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

// WithTimeout sets the per-request timeout. Defaults to 2s; zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d >= 0 {
			cl.timeout = d
		}
	}
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("remote: base URL must not be empty")
	}
	c := &Client{
		endpoint: base + Path,
		client:   &http.Client{},
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type request struct {
	Text string `json:"text"`
}

type response struct {
	Animal     string  `json:"animal"`
	Confidence float64 `json:"confidence"`
}

// Resolve implements resolve.RemoteResolver.
func (c *Client) Resolve(ctx context.Context, word string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	body, err := json.Marshal(request{Text: word})
	if err != nil {
		return "", fmt.Errorf("remote: marshal request: %w: %w", resolve.ErrInvalid, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("remote: build request: %w: %w", resolve.ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote: %w: %w", resolve.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("remote: status %d: %w", resp.StatusCode, resolve.ErrInvalid)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("remote: status %d: %w", resp.StatusCode, resolve.ErrUnavailable)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("remote: decode response: %w: %w", resolve.ErrUnreachable, err)
	}
	animal := strings.ToLower(strings.TrimSpace(out.Animal))
	if animal == "" {
		return "", fmt.Errorf("remote: empty animal in response: %w", resolve.ErrUnavailable)
	}
	return animal, nil
}

var _ resolve.RemoteResolver = (*Client)(nil)
