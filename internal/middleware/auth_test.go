package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dvvvvv411/meta-backend-sub001/internal/auth"
)

const testSecret = "middleware-test-secret"

func protected(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Error("user id missing from context")
		}
		if userID != wantUserID {
			t.Errorf("user id = %q, want %q", userID, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthAcceptsValidToken(t *testing.T) {
	token, err := auth.GenerateToken(testSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	handler := Auth(testSecret)(protected(t, "user-1"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRejections(t *testing.T) {
	expired, err := auth.GenerateToken(testSecret, "user-1", -time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	foreign, err := auth.GenerateToken("other-secret", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired token", "Bearer " + expired},
		{"wrong secret", "Bearer " + foreign},
	}
	for _, tc := range cases {
		called := false
		handler := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tc.name, rec.Code)
		}
		if called {
			t.Errorf("%s: next handler reached", tc.name)
		}
	}
}

type roleCheckerFn func(ctx context.Context, userID string) (bool, error)

func (f roleCheckerFn) IsAdmin(ctx context.Context, userID string) (bool, error) {
	return f(ctx, userID)
}

func TestRequireAdmin(t *testing.T) {
	admins := roleCheckerFn(func(ctx context.Context, userID string) (bool, error) {
		return userID == "admin-1", nil
	})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if userID != "" {
			req = req.WithContext(context.WithValue(req.Context(), userIDKey, userID))
		}
		rec := httptest.NewRecorder()
		RequireAdmin(admins)(next).ServeHTTP(rec, req)
		return rec.Code
	}

	if code := serve("admin-1"); code != http.StatusOK {
		t.Errorf("admin: status = %d, want 200", code)
	}
	if code := serve("user-1"); code != http.StatusForbidden {
		t.Errorf("non-admin: status = %d, want 403", code)
	}
	if code := serve(""); code != http.StatusUnauthorized {
		t.Errorf("no identity: status = %d, want 401", code)
	}
}
