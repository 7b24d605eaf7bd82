package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func TestIdentityMiddlewareResolvesHeaders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got shared.Identity
	var ok bool
	handler := IdentityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = shared.IdentityFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("X-Tenant-ID", "3")
	req.Header.Set("X-User-ID", "12")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	require.Equal(t, shared.Identity{TenantID: 3, UserID: 12}, got)
}

func TestIdentityMiddlewareRejectsMissingTenant(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := IdentityMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without tenant context")
	}))

	for _, tenant := range []string{"", "0", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		if tenant != "" {
			req.Header.Set("X-Tenant-ID", tenant)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "tenant header %q", tenant)
	}
}
