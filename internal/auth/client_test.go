package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateanalytics/star-go/internal/session"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// authServer records auth endpoint hits and serves canned responses per path+query.
type authServer struct {
	*httptest.Server
	requests []recordedRequest
}

type recordedRequest struct {
	path   string
	body   map[string]any
	bearer string
}

func newAuthServer(t *testing.T, handler func(r *http.Request) (int, string)) *authServer {
	t.Helper()

	as := &authServer{}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)

		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		as.requests = append(as.requests, recordedRequest{
			path:   r.URL.RequestURI(),
			body:   body,
			bearer: r.Header.Get("Authorization"),
		})

		status, resp := handler(r)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(as.Close)

	return as
}

func newTestClient(srv *authServer, store session.Store) *Client {
	c := NewClient(srv.URL, "anon-key", http.DefaultClient, store, nil)
	c.now = func() time.Time { return testNow }

	return c
}

func TestSignInWithPassword_SavesSession(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, `{
			"access_token": "a1", "refresh_token": "r1", "expires_in": 3600,
			"user": {"id": "u1", "email": "pat@example.com"}
		}`
	})
	store := session.NewMemoryStore()

	s, err := newTestClient(srv, store).SignInWithPassword(context.Background(), "pat@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AccessToken)
	assert.Equal(t, testNow.Unix()+3600, s.ExpiresAt)

	require.Len(t, srv.requests, 1)
	assert.Equal(t, "/auth/v1/token?grant_type=password", srv.requests[0].path)
	assert.Equal(t, "pat@example.com", srv.requests[0].body["email"])

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a1", persisted.AccessToken)
}

func TestSignInWithPassword_ErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error_description", `{"error_description":"Invalid login credentials"}`, "Invalid login credentials"},
		{"msg field", `{"msg":"Email not confirmed"}`, "Email not confirmed"},
		{"raw text", `plain failure`, "plain failure"},
		{"empty body", ``, "Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newAuthServer(t, func(_ *http.Request) (int, string) {
				return http.StatusBadRequest, tt.body
			})

			_, err := newTestClient(srv, session.NewMemoryStore()).
				SignInWithPassword(context.Background(), "pat@example.com", "nope")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSignUp_PendingConfirmation(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		// No session until the email is confirmed.
		return http.StatusOK, `{"user": {"id": "u2", "email": "new@example.com"}}`
	})
	store := session.NewMemoryStore()

	s, err := newTestClient(srv, store).SignUp(context.Background(), "new@example.com", "hunter2")
	require.NoError(t, err)
	assert.Nil(t, s)

	persisted, _ := store.Load()
	assert.Nil(t, persisted)
}

func TestSignUp_AutoConfirmedSavesSession(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, `{
			"session": {"access_token": "a3", "refresh_token": "r3", "expires_at": 1900000000},
			"user": {"id": "u3", "email": "new@example.com"}
		}`
	})
	store := session.NewMemoryStore()

	s, err := newTestClient(srv, store).SignUp(context.Background(), "new@example.com", "hunter2")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "u3", s.User.ID)

	persisted, _ := store.Load()
	assert.Equal(t, "a3", persisted.AccessToken)
}

func TestSignOut_ClearsEvenWhenRemoteLogoutFails(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusInternalServerError, `{"message":"boom"}`
	})
	store := session.NewMemoryStore()
	require.NoError(t, store.Save(&session.Session{AccessToken: "a1", ExpiresAt: 1}))

	require.NoError(t, newTestClient(srv, store).SignOut(context.Background()))

	require.Len(t, srv.requests, 1)
	assert.Equal(t, "/auth/v1/logout", srv.requests[0].path)
	assert.Equal(t, "Bearer a1", srv.requests[0].bearer)

	persisted, _ := store.Load()
	assert.Nil(t, persisted)
}

func TestSignOut_NoSession(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, ``
	})
	store := session.NewMemoryStore()

	require.NoError(t, newTestClient(srv, store).SignOut(context.Background()))
	// No remote call without a token to revoke.
	assert.Empty(t, srv.requests)
}

func TestRefresh_PreservesUserWhenOmitted(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, `{"access_token": "a2", "refresh_token": "r2", "expires_in": 3600}`
	})
	store := session.NewMemoryStore()

	old := &session.Session{
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresAt:    testNow.Unix() + 10,
		User:         &session.User{ID: "u1", Email: "pat@example.com"},
	}

	fresh, err := newTestClient(srv, store).Refresh(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, "a2", fresh.AccessToken)
	require.NotNil(t, fresh.User)
	assert.Equal(t, "u1", fresh.User.ID)

	require.Len(t, srv.requests, 1)
	assert.Equal(t, "/auth/v1/token?grant_type=refresh_token", srv.requests[0].path)
	assert.Equal(t, "r1", srv.requests[0].body["refresh_token"])

	persisted, _ := store.Load()
	assert.Equal(t, "a2", persisted.AccessToken)
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, `{}`
	})

	_, err := newTestClient(srv, session.NewMemoryStore()).
		Refresh(context.Background(), &session.Session{AccessToken: "a1"})
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Empty(t, srv.requests)
}

func TestRequestPasswordRecovery(t *testing.T) {
	srv := newAuthServer(t, func(_ *http.Request) (int, string) {
		return http.StatusOK, `{}`
	})

	err := newTestClient(srv, session.NewMemoryStore()).
		RequestPasswordRecovery(context.Background(), "pat@example.com", "https://app.example.com/reset")
	require.NoError(t, err)

	require.Len(t, srv.requests, 1)
	assert.Equal(t, "/auth/v1/recover", srv.requests[0].path)
	assert.Equal(t, "https://app.example.com/reset", srv.requests[0].body["redirect_to"])
}
