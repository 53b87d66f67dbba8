package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/elevateanalytics/star-go/internal/session"
)

// DefaultRefreshMargin is the safety margin: a session whose remaining
// lifetime is within this window gets refreshed before use.
const DefaultRefreshMargin = 60 * time.Second

// Refresher lazily renews an expiring session before it is used. It never
// returns an error for refresh problems: a transient refresh failure must
// not block reads that might still succeed with the near-expired token, so
// it degrades to the original, possibly-expired session and lets the
// backend's per-request auth check be the ultimate authority.
type Refresher struct {
	store  session.Store
	client *Client
	demo   session.Identity
	logger *slog.Logger

	margin time.Duration
	now    func() time.Time
}

// NewRefresher builds a Refresher over the given store and auth client.
// demo, when non-empty, is the cosmetic display identity substituted on
// every returned session (tokens are never altered).
func NewRefresher(store session.Store, client *Client, demo session.Identity, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		store:  store,
		client: client,
		demo:   demo,
		logger: logger,
		margin: DefaultRefreshMargin,
		now:    time.Now,
	}
}

// Ensure returns a session valid for at least the safety margin, or (nil,
// nil) when no session exists. It performs zero network calls when the
// stored session is comfortably within its lifetime, and at most one
// refresh call otherwise. Implements rest.SessionProvider.
func (r *Refresher) Ensure(ctx context.Context) (*session.Session, error) {
	s, err := r.store.Load()
	if err != nil {
		// A corrupt store degrades to "logged out" rather than failing
		// every page-load path.
		r.logger.Warn("loading session failed, treating as logged out",
			slog.String("error", err.Error()))

		return nil, nil
	}

	if s == nil {
		return nil, nil
	}

	remaining, known := s.Remaining(r.now())
	if !known {
		// No expiry to reason about: use as-is.
		return session.ApplyDemoIdentity(s, r.demo), nil
	}

	if remaining > r.margin {
		return session.ApplyDemoIdentity(s, r.demo), nil
	}

	if s.RefreshToken == "" {
		return session.ApplyDemoIdentity(s, r.demo), nil
	}

	fresh, err := r.client.Refresh(ctx, s)
	if err != nil {
		r.logger.Warn("session refresh failed, using stale session",
			slog.Int64("expires_at", s.ExpiresAt),
			slog.String("error", err.Error()),
		)

		return session.ApplyDemoIdentity(s, r.demo), nil
	}

	return session.ApplyDemoIdentity(fresh, r.demo), nil
}
