// Package gateway talks to the session gateway: a local HTTP service that
// holds authenticated chat sessions on disk and exposes the handful of
// account actions a mission needs as JSON endpoints under
// /v1/sessions/{identity}/.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Dicklesworthstone/missionctl/internal/pool"
)

// DefaultTimeout bounds a single gateway request.
const DefaultTimeout = 60 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string

	// RequestsPerSecond and Burst pace requests across all sessions.
	RequestsPerSecond float64
	Burst             int

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a pool.SessionOpener backed by the gateway.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a gateway client.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		limiter: rate.NewLimiter(limit, max(opts.Burst, 1)),
		timeout: timeout,
		logger:  logger,
	}
}

// APIError is a gateway response that reported failure.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %d %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("gateway %d: %s", e.Status, e.Description)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

type envelope struct {
	OK        bool            `json:"ok"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Open opens the session stored under identity.
func (c *Client) Open(ctx context.Context, identity string) (pool.Session, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, errors.New("identity is empty")
	}
	if err := c.call(ctx, http.MethodPost, identity, "open", nil, nil, nil); err != nil {
		return nil, err
	}
	c.logger.Debug("gateway session opened", "identity", identity)
	return &Session{client: c, identity: identity}, nil
}

func (c *Client) endpoint(identity, action string, query url.Values) string {
	u := fmt.Sprintf("%s/v1/sessions/%s/%s", c.baseURL, url.PathEscape(identity), action)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// call performs one paced request and decodes the result into out when
// out is non-nil.
func (c *Client) call(ctx context.Context, method, identity, action string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return c.do(ctx, method, identity, action, query, body, out)
}

func (c *Client) do(ctx context.Context, method, identity, action string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", action, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(identity, action, query), reader)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	_ = resp.Body.Close()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%s: %w", action, &APIError{Status: resp.StatusCode, Description: strings.TrimSpace(string(raw))})
		}
		return fmt.Errorf("%s: decode response: %w", action, err)
	}
	if !env.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		desc := env.Error
		if desc == "" {
			desc = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s: %w", action, &APIError{Status: resp.StatusCode, Code: env.ErrorCode, Description: desc})
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", action, err)
		}
	}
	return nil
}
