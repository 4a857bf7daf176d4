// Package resolver follows HTTP redirects to find where a tracking link
// finally points.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds the whole redirect chain.
const DefaultTimeout = 10 * time.Second

const maxRedirects = 10

// HTTPResolver resolves links with a plain GET. Redirects to a non-HTTP
// scheme (tg:, mailto:) end the chain and that target is returned.
type HTTPResolver struct {
	client *http.Client
}

// New returns a resolver whose chain is bounded by timeout.
func New(timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return NewWithClient(&http.Client{Timeout: timeout})
}

// NewWithClient wraps an existing client. Its CheckRedirect is replaced.
func NewWithClient(c *http.Client) *HTTPResolver {
	clone := *c
	clone.CheckRedirect = checkRedirect
	return &HTTPResolver{client: &clone}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return http.ErrUseLastResponse
	}
	return nil
}

// Resolve returns the final URL of rawURL's redirect chain. On failure it
// returns rawURL together with the error.
func (r *HTTPResolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return rawURL, fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return rawURL, fmt.Errorf("resolve %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if isRedirect(resp.StatusCode) {
		loc, err := resp.Location()
		if err != nil {
			if errors.Is(err, http.ErrNoLocation) {
				return resp.Request.URL.String(), nil
			}
			return rawURL, fmt.Errorf("redirect location: %w", err)
		}
		return loc.String(), nil
	}
	return finalURL(resp, rawURL), nil
}

func finalURL(resp *http.Response, fallback string) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return fallback
	}
	return resp.Request.URL.String()
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
