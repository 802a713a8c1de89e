package audit

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer tok-secret")
	headers.Set("X-Api-Key", "ak-secret")
	headers.Set("Content-Type", "application/json")
	headers.Add("Accept", "application/json")
	headers.Add("Accept", "text/plain")

	out := RedactHeaders(headers)

	assert.Equal(t, RedactionMarker, out["Authorization"])
	assert.Equal(t, RedactionMarker, out["X-Api-Key"])
	assert.Equal(t, "application/json", out["Content-Type"])
	assert.Equal(t, []string{"application/json", "text/plain"}, out["Accept"])
}

func TestRedactHeadersEmpty(t *testing.T) {
	assert.Nil(t, RedactHeaders(nil))
	assert.Nil(t, RedactHeaders(http.Header{}))
}

func TestRedactBody(t *testing.T) {
	body := []byte(`{
		"query": "forecast",
		"password": "hunter2",
		"options": {"access_token": "tok-123", "units": "metric"},
		"batch": [{"client_secret": "shh"}, {"region": "eu"}]
	}`)

	out := RedactBody(body)
	require.NotNil(t, out)

	assert.Equal(t, "forecast", out["query"])
	assert.Equal(t, RedactionMarker, out["password"])

	options := out["options"].(map[string]any)
	assert.Equal(t, RedactionMarker, options["access_token"])
	assert.Equal(t, "metric", options["units"])

	batch := out["batch"].([]any)
	assert.Equal(t, RedactionMarker, batch[0].(map[string]any)["client_secret"])
	assert.Equal(t, "eu", batch[1].(map[string]any)["region"])
}

func TestRedactBodyNonJSON(t *testing.T) {
	assert.Nil(t, RedactBody(nil))
	assert.Nil(t, RedactBody([]byte("")))
	assert.Nil(t, RedactBody([]byte("plain text payload")))
	assert.Nil(t, RedactBody([]byte(`["top", "level", "array"]`)))
}

func TestRedactBodyDoesNotMutateMarkerCase(t *testing.T) {
	out := RedactBody([]byte(`{"PASSWORD": "x", "Token": "y"}`))
	require.NotNil(t, out)
	assert.Equal(t, RedactionMarker, out["PASSWORD"])
	assert.Equal(t, RedactionMarker, out["Token"])
}
