package audit

import (
	"encoding/json"
	"net/http"
	"strings"

	"meter_gateway/internal/models"
)

// RedactionMarker replaces every sensitive value before an entry is built.
const RedactionMarker = "[REDACTED]"

// sensitiveKeys is the fixed set of header and body field names whose
// values never reach the audit trail. Matching is case-insensitive.
var sensitiveKeys = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"api-key":             {},
	"api_key":             {},
	"apikey":              {},
	"cookie":              {},
	"set-cookie":          {},
	"password":            {},
	"secret":              {},
	"client_secret":       {},
	"token":               {},
	"access_token":        {},
	"refresh_token":       {},
	"credential":          {},
	"private_key":         {},
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// RedactHeaders copies request headers into an audit-safe map. Sensitive
// headers keep their key with the marker as value, so the trail still
// shows the header was present.
func RedactHeaders(headers http.Header) models.JSONB {
	if len(headers) == 0 {
		return nil
	}

	out := make(models.JSONB, len(headers))
	for key, values := range headers {
		if isSensitive(key) {
			out[key] = RedactionMarker
			continue
		}
		if len(values) == 1 {
			out[key] = values[0]
		} else {
			out[key] = values
		}
	}
	return out
}

// RedactBody parses a JSON request body and replaces sensitive field
// values at every nesting depth. Non-JSON and non-object bodies yield nil;
// the audit trail records structure, not payloads it cannot vet.
func RedactBody(body []byte) models.JSONB {
	if len(body) == 0 {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}

	return models.JSONB(redactValue(parsed).(map[string]any))
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			if isSensitive(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = redactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = redactValue(inner)
		}
		return out
	default:
		return v
	}
}
