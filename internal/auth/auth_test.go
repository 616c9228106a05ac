package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService("test-secret-test-secret-test-secret", "ai-pass", time.Hour)
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService()

	token, err := svc.Issue("user-1", "Kim", "")
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Kim", claims.Name)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestIssueRequiresUser(t *testing.T) {
	_, err := newTestService().Issue("", "", "")
	assert.ErrorIs(t, err, ErrAuthRequired)
}

func TestVerifyRejectsForeignSecretAndIssuer(t *testing.T) {
	svc := newTestService()

	other := NewService("another-secret-another-secret-12", "ai-pass", time.Hour)
	token, err := other.Issue("user-1", "", "")
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherIssuer := NewService("test-secret-test-secret-test-secret", "someone-else", time.Hour)
	token, err = otherIssuer.Issue("user-1", "", "")
	require.NoError(t, err)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyExpired(t *testing.T) {
	svc := newTestService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.Issue("user-1", "", "")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestOwnerID(t *testing.T) {
	_, err := OwnerID(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "user-1"})
	owner, err := OwnerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", owner)
}

func TestMiddleware(t *testing.T) {
	svc := newTestService()
	token, err := svc.Issue("user-1", "Kim", RoleAdmin)
	require.NoError(t, err)

	var seen Principal
	var authenticated bool
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authenticated = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		wantAuth   bool
	}{
		{"no token", func(r *http.Request) {}, http.StatusNoContent, false},
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent, true},
		{"query parameter", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("access_token", token)
			r.URL.RawQuery = q.Encode()
		}, http.StatusNoContent, true},
		{"invalid token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized, false},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token") }, http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen, authenticated = Principal{}, false
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAuth, authenticated)
			if tt.wantAuth {
				assert.Equal(t, "user-1", seen.UserID)
				assert.True(t, seen.IsAdmin())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ctx context.Context) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(context.Background()))
	assert.Equal(t, http.StatusForbidden, serve(WithPrincipal(context.Background(), Principal{UserID: "u", Role: RoleUser})))
	assert.Equal(t, http.StatusOK, serve(WithPrincipal(context.Background(), Principal{UserID: "u", Role: RoleAdmin})))
}
