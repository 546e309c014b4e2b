// Package iracing is a small client for the iRacing members data API: record
// datasets, session results and a driver's recent races. Most data endpoints
// answer with a short-lived link that must be followed to get the payload.
package iracing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/lap-trend/backend/telemetry"
)

// ErrUnavailable reports that the upstream API cannot be used at all, usually
// because authentication failed.
var ErrUnavailable = errors.New("iracing api unavailable")

const (
	DefaultBaseURL  = "https://members-ng.iracing.com"
	DefaultTokenURL = "https://oauth.iracing.com/oauth2/token"
	DefaultTimeout  = 10 * time.Second
)

// TokenGetter supplies bearer tokens for data requests.
type TokenGetter interface {
	Get(ctx context.Context) (string, error)
}

// Client calls the data API. The zero value is not usable; Tokens must be set.
type Client struct {
	BaseURL    string
	Tokens     TokenGetter
	HTTPClient *http.Client
	// Timeout bounds every request; 0 means DefaultTimeout.
	Timeout time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Ready checks that a token can be obtained.
func (c *Client) Ready(ctx context.Context) error {
	if c.Tokens == nil {
		return fmt.Errorf("%w: no credentials configured", ErrUnavailable)
	}
	if _, err := c.Tokens.Get(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// getData performs an authenticated GET on path and decodes the payload into
// out, following the link indirection when the response carries one.
func (c *Client) getData(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "iracing", "get "+path, attribute.String("iracing.path", path))
	defer span.End()

	err := c.doGetData(ctx, path, query, out)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return nil
}

func (c *Client) doGetData(ctx context.Context, path string, query url.Values, out any) error {
	if c.Tokens == nil {
		return fmt.Errorf("%w: no credentials configured", ErrUnavailable)
	}
	tok, err := c.Tokens.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	u := c.baseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	body, err := c.fetch(ctx, u, tok)
	if err != nil {
		return err
	}
	var link struct {
		Link string `json:"link"`
	}
	if err := json.Unmarshal(body, &link); err == nil && link.Link != "" {
		body, err = c.fetch(ctx, link.Link, "")
		if err != nil {
			return fmt.Errorf("follow link: %w", err)
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// fetch GETs u, with a bearer token when tok is set, and returns the body.
func (c *Client) fetch(ctx context.Context, u, tok string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err), slog.String("component", "iracing"))
		}
	}()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("iracing request failed: %s: %s", resp.Status, truncate(string(b), 200))
	}
	return b, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func itoa(v int) string { return strconv.Itoa(v) }
