package main

import (
	"context"
	"net/http"
	"testing"

	"github.com/elevateanalytics/star-go/internal/rest"
	"github.com/elevateanalytics/star-go/internal/session"
)

// nilSessions is a session provider for tests that never reach the network.
type nilSessions struct{}

func (nilSessions) Ensure(context.Context) (*session.Session, error) {
	return nil, nil //nolint:nilnil // sentinel for "logged out"
}

// newOfflineGateway builds a gateway suitable for querystring rendering
// tests. Any request through it would fail, which is the point.
func newOfflineGateway(t *testing.T) *rest.Client {
	t.Helper()

	return rest.NewClient("http://localhost:1", "anon", &http.Client{}, nilSessions{}, nil)
}
