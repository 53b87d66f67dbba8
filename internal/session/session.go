// Package session defines the authenticated session model and its durable
// client-side persistence. It is a leaf package imported by auth/, rest/ and
// storage/ so the session shape is defined exactly once.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTokenType is used when an auth payload omits token_type.
const DefaultTokenType = "bearer"

// User is the identity record attached to a session. Metadata carries the
// backend's free-form user_metadata object (display name and similar).
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is an authenticated principal: access credential, optional refresh
// credential, absolute expiry, and the user identity.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// Authenticated reports whether the session carries an access token.
// A session without one is treated as "not logged in".
func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

// Remaining returns the session lifetime left at the given instant.
// A session with no known expiry reports zero and (false) for known.
func (s *Session) Remaining(now time.Time) (time.Duration, bool) {
	if s == nil || s.ExpiresAt == 0 {
		return 0, false
	}

	return time.Duration(s.ExpiresAt-now.Unix()) * time.Second, true
}

// Clone returns a deep copy, so identity overrides never alias the stored
// session's metadata map.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s

	if s.User != nil {
		u := *s.User
		if s.User.Metadata != nil {
			u.Metadata = make(map[string]any, len(s.User.Metadata))
			for k, v := range s.User.Metadata {
				u.Metadata[k] = v
			}
		}

		out.User = &u
	}

	return &out
}

// ErrMalformedPayload is returned by Normalize for auth response bodies that
// match neither of the backend's observed session shapes.
var ErrMalformedPayload = errors.New("session: malformed auth payload")

// authPayload is the union of the two response shapes the auth endpoints
// produce: token grants return a flat session, signup nests it under
// "session" with the user alongside.
type authPayload struct {
	Session      *Session `json:"session"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *User    `json:"user"`
}

// Normalize maps an auth response body onto the canonical Session shape.
// It accepts both the nested and the flat payload form; anything else is
// ErrMalformedPayload. expires_at is derived from expires_in relative to now
// when the payload only carries a relative lifetime. A nil session with a
// nil error means the payload is valid but carries no session (signup with
// email confirmation pending).
func Normalize(raw []byte, now time.Time) (*Session, error) {
	if len(raw) == 0 {
		return nil, ErrMalformedPayload
	}

	var p authPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("session: decoding auth payload: %w", err)
	}

	if p.Session != nil {
		s := p.Session.Clone()
		fillDefaults(s, now)

		if s.User == nil {
			s.User = p.User
		}

		return s, nil
	}

	if p.AccessToken == "" {
		// Valid envelope without a session: signup pending confirmation.
		if p.User != nil {
			return nil, nil
		}

		return nil, ErrMalformedPayload
	}

	s := &Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
		ExpiresAt:    p.ExpiresAt,
		User:         p.User,
	}

	fillDefaults(s, now)

	return s, nil
}

// fillDefaults resolves the expiry invariant (expires_at derivable from
// expires_in) and the token type default.
func fillDefaults(s *Session, now time.Time) {
	if s.TokenType == "" {
		s.TokenType = DefaultTokenType
	}

	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Unix() + s.ExpiresIn
	}
}
