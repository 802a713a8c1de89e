package upstream

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/config"
	"meter_gateway/internal/utils"
)

// hopByHopHeaders never cross the gateway in either direction.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Forwarder relays metered requests to the downstream service. The gateway
// meters and audits; it does not interpret payloads, so bodies pass
// through byte for byte in both directions.
type Forwarder struct {
	baseURL string
	client  *http.Client
	logger  *utils.Logger
}

// NewForwarder creates a forwarder for the downstream base URL.
func NewForwarder(cfg config.UpstreamConfig) *Forwarder {
	return &Forwarder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: utils.NewLogger("upstream", utils.Info),
	}
}

// Forward relays the request to baseURL+path, streams the downstream
// response to the client, and returns the downstream status code. By the
// time Forward runs the balance has already been deducted, so errors here
// are reported but never refunded.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, path string) (int, error) {
	url := f.baseURL + path
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, url, r.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to create upstream request: %w", err)
	}

	for key, values := range r.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		// Gateway credentials are not the downstream's business.
		if key == "Authorization" || key == "X-Api-Key" {
			continue
		}
		req.Header[key] = values
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindProvider, "downstream service unreachable", err)
	}
	defer resp.Body.Close()

	header := w.Header()
	for key, values := range resp.Header {
		if _, hop := hopByHopHeaders[key]; hop {
			continue
		}
		header[key] = values
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		// The status line is already out; log and report the truncation.
		f.logger.Error("Failed to stream downstream response", "url", url, "error", err)
		return resp.StatusCode, fmt.Errorf("failed to stream downstream response: %w", err)
	}

	return resp.StatusCode, nil
}
