package upstream

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/config"
)

func newTestForwarder(baseURL string) *Forwarder {
	return NewForwarder(config.UpstreamConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
	})
}

func TestForwardPassesBodyAndStatus(t *testing.T) {
	var gotBody string
	var gotPath string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer downstream.Close()

	forwarder := newTestForwarder(downstream.URL)

	req := httptest.NewRequest("POST", "/v1/forecast", strings.NewReader(`{"city":"Lisbon"}`))
	rec := httptest.NewRecorder()

	status, err := forwarder.Forward(rec, req, "/v1/forecast")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"result":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"city":"Lisbon"}`, gotBody)
	assert.Equal(t, "/v1/forecast", gotPath)
}

func TestForwardStripsGatewayCredentials(t *testing.T) {
	var gotAuth, gotAPIKey, gotCustom string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("X-Api-Key")
		gotCustom = r.Header.Get("X-Request-Trace")
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	forwarder := newTestForwarder(downstream.URL)

	req := httptest.NewRequest("GET", "/v1/forecast", nil)
	req.Header.Set("Authorization", "Bearer tok-secret")
	req.Header.Set("X-Api-Key", "ak-secret")
	req.Header.Set("X-Request-Trace", "trace-1")

	status, err := forwarder.Forward(httptest.NewRecorder(), req, "/v1/forecast")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, gotAuth)
	assert.Empty(t, gotAPIKey)
	assert.Equal(t, "trace-1", gotCustom)
}

func TestForwardPreservesQueryString(t *testing.T) {
	var gotQuery string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	forwarder := newTestForwarder(downstream.URL)

	req := httptest.NewRequest("GET", "/v1/forecast?city=Lisbon&days=3", nil)
	_, err := forwarder.Forward(httptest.NewRecorder(), req, "/v1/forecast")
	require.NoError(t, err)
	assert.Equal(t, "city=Lisbon&days=3", gotQuery)
}

func TestForwardDownstreamErrorStatus(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer downstream.Close()

	forwarder := newTestForwarder(downstream.URL)

	req := httptest.NewRequest("GET", "/v1/forecast", nil)
	rec := httptest.NewRecorder()

	status, err := forwarder.Forward(rec, req, "/v1/forecast")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestForwardUnreachableDownstream(t *testing.T) {
	forwarder := newTestForwarder("http://127.0.0.1:1")

	req := httptest.NewRequest("GET", "/v1/forecast", nil)
	status, err := forwarder.Forward(httptest.NewRecorder(), req, "/v1/forecast")
	require.Error(t, err)
	assert.Equal(t, 0, status)
	assert.True(t, apperrors.IsProvider(err))
}
