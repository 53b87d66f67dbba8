package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elevateanalytics/star-go/internal/session"
)

// SessionProvider supplies a usable session before each authenticated call.
// Defined here, at the consumer, per Go convention "accept interfaces,
// return structs". auth.Refresher provides the real implementation.
// (nil, nil) means no session exists at all.
type SessionProvider interface {
	Ensure(ctx context.Context) (*session.Session, error)
}

// Client is the gateway for HTTP calls against the backend. It attaches the
// API key and bearer token, normalizes success and error responses, and
// performs no retries, caching, or timeouts of its own; those belong to
// the caller's layer.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	sessions   SessionProvider
	logger     *slog.Logger
}

// NewClient creates a gateway client. baseURL is the project base URL
// (no trailing slash); paths passed to Do are appended to it.
func NewClient(baseURL, apiKey string, httpClient *http.Client, sessions SessionProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		sessions:   sessions,
		logger:     logger,
	}
}

// BaseURL returns the project base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// requestOptions accumulates per-request overrides.
type requestOptions struct {
	headers [][2]string
	rawBody bool
	noAuth  bool
}

// RequestOption customizes a single gateway request.
type RequestOption func(*requestOptions)

// WithHeader adds a caller-supplied header. Caller headers win over the
// gateway's own (apikey, Authorization, Content-Type).
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		o.headers = append(o.headers, [2]string{key, value})
	}
}

// WithRawBody marks the body as raw binary/form data: the gateway omits
// Content-Type so the transport (or the caller via WithHeader) sets it.
func WithRawBody() RequestOption {
	return func(o *requestOptions) {
		o.rawBody = true
	}
}

// WithoutAuth issues the request with only the API key, skipping the
// session lookup entirely.
func WithoutAuth() RequestOption {
	return func(o *requestOptions) {
		o.noAuth = true
	}
}

// Do executes one HTTP request against the backend. The path is appended to
// the base URL and is used as given. The gateway never re-encodes
// caller-supplied path segments. The full response body is read as text;
// a non-success status becomes a *RequestError carrying the body text (or
// a generic message when empty) and the status code. A successful empty
// body yields a nil result; otherwise the raw JSON is returned.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, opts ...RequestOption) (json.RawMessage, error) {
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("rest: creating request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)

	if !o.noAuth {
		s, err := c.ensureSession(ctx)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}

	if body != nil && !o.rawBody {
		req.Header.Set("Content-Type", "application/json")
	}

	// Caller overrides win, applied last.
	for _, h := range o.headers {
		req.Header.Set(h[0], h[1])
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rest: reading response for %s %s: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := string(text)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}

		c.logger.Debug("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Message:    msg,
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if len(text) == 0 {
		return nil, nil
	}

	return json.RawMessage(text), nil
}

// ensureSession obtains a usable session from the provider, failing with
// ErrAuthRequired when none is available.
func (c *Client) ensureSession(ctx context.Context) (*session.Session, error) {
	if c.sessions == nil {
		return nil, ErrAuthRequired
	}

	s, err := c.sessions.Ensure(ctx)
	if err != nil {
		return nil, fmt.Errorf("rest: obtaining session: %w", err)
	}

	if !s.Authenticated() {
		return nil, ErrAuthRequired
	}

	return s, nil
}
