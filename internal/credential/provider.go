package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meter_gateway/internal/apperrors"
	"meter_gateway/internal/config"
)

// ProviderClient talks to the external OAuth2-style identity provider. Two
// HTTP clients are kept deliberately: the exchange client for minting
// tokens and a tighter probe client for introspection, so a slow provider
// cannot stall the request pipeline beyond the probe budget.
type ProviderClient struct {
	tokenURL      string
	introspectURL string
	clientID      string
	clientSecret  string
	scope         string
	defaultTTL    time.Duration

	exchangeClient *http.Client
	probeClient    *http.Client
}

// TokenGrant is the provider's answer to a client-credentials exchange.
type TokenGrant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// tokenResponse is the provider's wire format.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// introspectionResponse is the provider's answer to a validity probe.
type introspectionResponse struct {
	Active bool `json:"active"`
}

// NewProviderClient creates a client from the identity provider settings.
func NewProviderClient(cfg config.IdentityProviderConfig) *ProviderClient {
	return &ProviderClient{
		tokenURL:       cfg.TokenURL,
		introspectURL:  cfg.IntrospectURL,
		clientID:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		scope:          cfg.Scope,
		defaultTTL:     cfg.DefaultTokenTTL,
		exchangeClient: &http.Client{Timeout: cfg.RequestTimeout},
		probeClient:    &http.Client{Timeout: cfg.ProbeTimeout},
	}
}

// Exchange performs the client-credentials grant and returns the opaque
// token together with its expiry. When the provider omits expires_in, the
// configured default lifetime applies.
func (c *ProviderClient) Exchange(ctx context.Context, scope string) (*TokenGrant, error) {
	if scope == "" {
		scope = c.scope
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.exchangeClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindProvider, "identity provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.Newf(apperrors.KindProvider, "token exchange rejected: status=%d body=%s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, apperrors.Wrap(apperrors.KindProvider, "failed to decode token response", err)
	}
	if tr.AccessToken == "" {
		return nil, apperrors.New(apperrors.KindProvider, "token response missing access_token")
	}

	ttl := c.defaultTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}

	return &TokenGrant{
		AccessToken: tr.AccessToken,
		ExpiresAt:   time.Now().Add(ttl),
	}, nil
}

// Probe asks the provider whether a token value is currently active. The
// token format is provider-controlled, so this round trip is the only
// source of truth beyond expiry; callers are expected to do the cheap
// local expiry check first.
func (c *ProviderClient) Probe(ctx context.Context, value string) (bool, error) {
	form := url.Values{}
	form.Set("token", value)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.introspectURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindProvider, "identity provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return false, apperrors.Newf(apperrors.KindProvider, "introspection failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return false, apperrors.Wrap(apperrors.KindProvider, "failed to decode introspection response", err)
	}

	return ir.Active, nil
}
