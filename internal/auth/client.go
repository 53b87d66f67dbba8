// Package auth talks to the backend's auth endpoints (password sign-in,
// signup, sign-out, token refresh, password recovery) and keeps the
// persisted session current. The Refresher implements the session-providing
// side consumed by the rest gateway.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elevateanalytics/star-go/internal/session"
)

// ErrNoActiveSession is returned by operations that need a stored session
// when none exists.
var ErrNoActiveSession = errors.New("auth: no active session")

// Client issues requests against the auth endpoints. Successful grants are
// normalized into the canonical session shape and persisted immediately.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	store      session.Store
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates an auth client persisting sessions to store.
func NewClient(baseURL, apiKey string, httpClient *http.Client, store session.Store, logger *slog.Logger) *Client {
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
		store:      store,
		logger:     logger,
		now:        time.Now,
	}
}

// SignInWithPassword exchanges credentials for a session and persists it.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	body, err := c.post(ctx, "/auth/v1/token?grant_type=password",
		map[string]string{"email": email, "password": password}, "")
	if err != nil {
		return nil, err
	}

	s, err := session.Normalize(body, c.now())
	if err != nil {
		return nil, fmt.Errorf("auth: sign-in response: %w", err)
	}

	if s == nil {
		return nil, fmt.Errorf("auth: sign-in returned no session")
	}

	if saveErr := c.store.Save(s); saveErr != nil {
		return nil, fmt.Errorf("auth: persisting session: %w", saveErr)
	}

	c.logger.Info("signed in",
		slog.String("email", email),
		slog.Int64("expires_at", s.ExpiresAt),
	)

	return s, nil
}

// SignUp registers a new account. When the backend requires email
// confirmation it returns no session; that case is (nil, nil) here and the
// caller should tell the user to check their inbox.
func (c *Client) SignUp(ctx context.Context, email, password string) (*session.Session, error) {
	body, err := c.post(ctx, "/auth/v1/signup",
		map[string]string{"email": email, "password": password}, "")
	if err != nil {
		return nil, err
	}

	s, err := session.Normalize(body, c.now())
	if err != nil {
		return nil, fmt.Errorf("auth: signup response: %w", err)
	}

	if s == nil {
		c.logger.Info("signup pending email confirmation", slog.String("email", email))
		return nil, nil //nolint:nilnil // sentinel for "confirmation pending"
	}

	if saveErr := c.store.Save(s); saveErr != nil {
		return nil, fmt.Errorf("auth: persisting session: %w", saveErr)
	}

	return s, nil
}

// SignOut revokes the session on the backend (best effort) and always
// clears the persisted session locally.
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.store.Load()
	if err != nil {
		c.logger.Warn("reading session for sign-out", slog.String("error", err.Error()))
	}

	if s.Authenticated() {
		if _, err := c.post(ctx, "/auth/v1/logout",
			map[string]string{"scope": "global"}, s.AccessToken); err != nil {
			// Remote revocation failing must not keep the user signed in
			// locally.
			c.logger.Warn("remote logout failed", slog.String("error", err.Error()))
		}
	}

	return c.store.Clear()
}

// Refresh exchanges the refresh token of old for a new session, preserving
// the user identity when the refresh response omits it, and persists the
// result before returning it.
func (c *Client) Refresh(ctx context.Context, old *session.Session) (*session.Session, error) {
	if old == nil || old.RefreshToken == "" {
		return nil, ErrNoActiveSession
	}

	body, err := c.post(ctx, "/auth/v1/token?grant_type=refresh_token",
		map[string]string{"refresh_token": old.RefreshToken}, "")
	if err != nil {
		return nil, err
	}

	fresh, err := session.Normalize(body, c.now())
	if err != nil {
		return nil, fmt.Errorf("auth: refresh response: %w", err)
	}

	if fresh == nil {
		return nil, fmt.Errorf("auth: refresh returned no session")
	}

	if fresh.User == nil {
		fresh.User = old.User
	}

	if saveErr := c.store.Save(fresh); saveErr != nil {
		return nil, fmt.Errorf("auth: persisting refreshed session: %w", saveErr)
	}

	c.logger.Debug("session refreshed", slog.Int64("expires_at", fresh.ExpiresAt))

	return fresh, nil
}

// RequestPasswordRecovery asks the backend to send a recovery email.
// redirectTo, when non-empty, is where the recovery link lands.
func (c *Client) RequestPasswordRecovery(ctx context.Context, email, redirectTo string) error {
	payload := map[string]string{"email": email}
	if redirectTo != "" {
		payload["redirect_to"] = redirectTo
	}

	_, err := c.post(ctx, "/auth/v1/recover", payload, "")

	return err
}

// authError is the union of error shapes the auth endpoints produce.
type authError struct {
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// message picks the most specific populated field.
func (e authError) message() string {
	for _, m := range []string{e.ErrorDescription, e.ErrorCode, e.Msg, e.Message} {
		if m != "" {
			return m
		}
	}

	return ""
}

// post issues one JSON POST to an auth endpoint. Auth endpoints are
// unauthenticated except where a bearer token is passed explicitly.
func (c *Client) post(ctx context.Context, path string, payload map[string]string, bearer string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("auth: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("auth: creating request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("auth: reading response for %s: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := extractErrorMessage(text)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}

		return nil, fmt.Errorf("auth: %s failed (HTTP %d): %s", path, resp.StatusCode, msg)
	}

	return text, nil
}

// extractErrorMessage pulls the human-readable message out of an auth error
// body, falling back to the raw text.
func extractErrorMessage(body []byte) string {
	var e authError
	if err := json.Unmarshal(body, &e); err == nil {
		if m := e.message(); m != "" {
			return m
		}
	}

	return string(body)
}
