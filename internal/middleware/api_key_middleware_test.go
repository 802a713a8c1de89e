package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"meter_gateway/internal/auth"
)

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetCaller(r.Context()); !ok {
			t.Error("caller not found in context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyMiddleware_ValidKey(t *testing.T) {
	caller := testCaller(true)
	apiKeys := auth.NewInMemoryCallerStore()
	apiKeys.Add("ak-tokens", caller)

	handler := APIKeyMiddleware(apiKeys)(okHandler(t))

	req := httptest.NewRequest("POST", "/v1/tokens", nil)
	req.Header.Set("X-API-Key", "ak-tokens")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_MissingKey(t *testing.T) {
	handler := APIKeyMiddleware(auth.NewInMemoryCallerStore())(okHandler(t))

	req := httptest.NewRequest("POST", "/v1/tokens", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_UnknownKey(t *testing.T) {
	handler := APIKeyMiddleware(auth.NewInMemoryCallerStore())(okHandler(t))

	req := httptest.NewRequest("POST", "/v1/tokens", nil)
	req.Header.Set("X-API-Key", "ak-unknown")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_InactiveCaller(t *testing.T) {
	apiKeys := auth.NewInMemoryCallerStore()
	apiKeys.Add("ak-disabled", testCaller(false))

	handler := APIKeyMiddleware(apiKeys)(okHandler(t))

	req := httptest.NewRequest("POST", "/v1/tokens", nil)
	req.Header.Set("X-API-Key", "ak-disabled")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAPIKeyMiddleware_IgnoresBearerToken(t *testing.T) {
	handler := APIKeyMiddleware(auth.NewInMemoryCallerStore())(okHandler(t))

	req := httptest.NewRequest("POST", "/v1/tokens", nil)
	req.Header.Set("Authorization", "Bearer tok-demo")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}
