package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/config"
)

func newProviderForTest(tokenURL, introspectURL string) *ProviderClient {
	return NewProviderClient(config.IdentityProviderConfig{
		TokenURL:        tokenURL,
		IntrospectURL:   introspectURL,
		ClientID:        "gateway",
		ClientSecret:    "shh",
		Scope:           "metered",
		RequestTimeout:  5 * time.Second,
		ProbeTimeout:    2 * time.Second,
		DefaultTokenTTL: time.Hour,
	})
}

func TestExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "gateway", r.FormValue("client_id"))
		assert.Equal(t, "shh", r.FormValue("client_secret"))
		assert.Equal(t, "metered", r.FormValue("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-abc123","token_type":"Bearer","expires_in":3600}`))
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	grant, err := client.Exchange(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc123", grant.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), grant.ExpiresAt, 5*time.Second)
}

func TestExchangeDefaultTTL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-no-expiry","token_type":"Bearer"}`))
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	grant, err := client.Exchange(context.Background(), "metered")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), grant.ExpiresAt, 5*time.Second)
}

func TestExchangeProviderRejects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	_, err := client.Exchange(context.Background(), "metered")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
}

func TestExchangeMissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type":"Bearer","expires_in":60}`))
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	_, err := client.Exchange(context.Background(), "metered")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
}

func TestExchangeProviderUnreachable(t *testing.T) {
	client := newProviderForTest("http://127.0.0.1:1", "http://127.0.0.1:1")

	_, err := client.Exchange(context.Background(), "metered")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
}

func TestProbe(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "gateway", user)
		assert.Equal(t, "shh", pass)

		require.NoError(t, r.ParseForm())
		gotToken = r.FormValue("token")
		w.Write([]byte(`{"active":true}`))
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	active, err := client.Probe(context.Background(), "tok-abc123")
	require.NoError(t, err)
	assert.True(t, active)
	assert.Equal(t, "tok-abc123", gotToken)
}

func TestProbeInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"active":false}`))
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	active, err := client.Probe(context.Background(), "tok-revoked")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProbeUnauthorizedMeansInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	active, err := client.Probe(context.Background(), "tok-abc123")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestProbeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newProviderForTest(server.URL, server.URL)

	_, err := client.Probe(context.Background(), "tok-abc123")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
}

func TestProbeTimeoutIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{"active":true}`))
	}))
	defer server.Close()

	cfg := config.IdentityProviderConfig{
		TokenURL:        server.URL,
		IntrospectURL:   server.URL,
		ClientID:        "gateway",
		ClientSecret:    "shh",
		RequestTimeout:  5 * time.Second,
		ProbeTimeout:    50 * time.Millisecond,
		DefaultTokenTTL: time.Hour,
	}
	client := NewProviderClient(cfg)

	start := time.Now()
	_, err := client.Probe(context.Background(), "tok-abc123")
	require.Error(t, err)
	assert.True(t, apperrors.IsProvider(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}
