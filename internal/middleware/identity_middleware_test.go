package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/auth"
	"meter_gateway/internal/models"
)

type fakeCredentialResolver struct {
	creds map[string]*models.Credential
	err   error
}

func (f *fakeCredentialResolver) Lookup(ctx context.Context, value string) (*models.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	if cred, ok := f.creds[value]; ok {
		return cred, nil
	}
	return nil, apperrors.New(apperrors.KindAuthentication, "unknown credential")
}

type fakeCallerByID struct {
	callers map[uuid.UUID]*models.Caller
}

func (f *fakeCallerByID) GetByID(ctx context.Context, id uuid.UUID) (*models.Caller, error) {
	if caller, ok := f.callers[id]; ok {
		return caller, nil
	}
	return nil, apperrors.New(apperrors.KindStorage, "caller not found")
}

func testCaller(active bool) *models.Caller {
	return &models.Caller{
		ID:     uuid.New(),
		Name:   "acme",
		Scope:  1,
		Active: active,
	}
}

func TestIdentityMiddleware_APIKey(t *testing.T) {
	caller := testCaller(true)
	apiKeys := auth.NewInMemoryCallerStore()
	apiKeys.Add("ak-demo", caller)

	middleware := IdentityMiddleware(apiKeys, &fakeCredentialResolver{}, &fakeCallerByID{})

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetCaller(r.Context())
		if !ok {
			t.Error("caller not found in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if got.ID != caller.ID {
			t.Errorf("unexpected caller ID: %s", got.ID)
		}
		if _, ok := GetCredential(r.Context()); ok {
			t.Error("credential should not be set on API key requests")
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(nextHandler)

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	req.Header.Set("X-API-Key", "ak-demo")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestIdentityMiddleware_BearerCredential(t *testing.T) {
	caller := testCaller(true)
	cred := &models.Credential{
		ID:        uuid.New(),
		OwnerID:   caller.ID,
		Value:     "tok-demo",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	middleware := IdentityMiddleware(
		auth.NewInMemoryCallerStore(),
		&fakeCredentialResolver{creds: map[string]*models.Credential{"tok-demo": cred}},
		&fakeCallerByID{callers: map[uuid.UUID]*models.Caller{caller.ID: caller}},
	)

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := GetCredential(r.Context())
		if !ok {
			t.Error("credential not found in context")
		} else if got.ID != cred.ID {
			t.Errorf("unexpected credential ID: %s", got.ID)
		}
		gotCaller, ok := GetCaller(r.Context())
		if !ok || gotCaller.ID != caller.ID {
			t.Error("caller not resolved from credential owner")
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware(nextHandler)

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	req.Header.Set("Authorization", "Bearer tok-demo")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestIdentityMiddleware_Missing(t *testing.T) {
	middleware := IdentityMiddleware(auth.NewInMemoryCallerStore(), &fakeCredentialResolver{}, &fakeCallerByID{})

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called without credentials")
	})

	handler := middleware(nextHandler)

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestIdentityMiddleware_UnknownAPIKey(t *testing.T) {
	middleware := IdentityMiddleware(auth.NewInMemoryCallerStore(), &fakeCredentialResolver{}, &fakeCallerByID{})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	req.Header.Set("X-API-Key", "ak-wrong")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestIdentityMiddleware_InactiveCaller(t *testing.T) {
	caller := testCaller(false)
	apiKeys := auth.NewInMemoryCallerStore()
	apiKeys.Add("ak-disabled", caller)

	middleware := IdentityMiddleware(apiKeys, &fakeCredentialResolver{}, &fakeCallerByID{})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called for inactive callers")
	}))

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	req.Header.Set("X-API-Key", "ak-disabled")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestIdentityMiddleware_ProviderDown(t *testing.T) {
	middleware := IdentityMiddleware(
		auth.NewInMemoryCallerStore(),
		&fakeCredentialResolver{err: apperrors.New(apperrors.KindProvider, "identity provider unreachable")},
		&fakeCallerByID{},
	)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("next handler should not be called")
	}))

	req := httptest.NewRequest("POST", "/v1/forecast", nil)
	req.Header.Set("Authorization", "Bearer tok-any")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", w.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("request ID missing from context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/forecast", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header not set")
	}

	t.Run("propagates inbound request ID", func(t *testing.T) {
		var got string
		handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetRequestID(r.Context())
		}))
		req := httptest.NewRequest("GET", "/v1/forecast", nil)
		req.Header.Set("X-Request-Id", "req-upstream-1")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		if got != "req-upstream-1" {
			t.Errorf("Expected propagated request ID, got %q", got)
		}
	})
}
