package fortnox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ledgerflow/backend/internal/domain/integration"
)

// defaultTokenLifetime is assumed when neither expires_in nor a JWT exp claim is present.
const defaultTokenLifetime = time.Hour

// TokenClient exchanges grants at the Fortnox OAuth endpoint.
type TokenClient struct {
	config     *Config
	httpClient *http.Client
	now        func() time.Time
}

// NewTokenClient creates a token endpoint client.
func NewTokenClient(config *Config, httpClient *http.Client) (*TokenClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second}
	}
	return &TokenClient{config: config, httpClient: httpClient, now: time.Now}, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
// A rejected refresh token is reported as an Auth error.
func (c *TokenClient) RefreshToken(ctx context.Context, refreshToken string) (integration.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.exchange(ctx, form)
}

// ExchangeCode completes the authorization-code grant.
func (c *TokenClient) ExchangeCode(ctx context.Context, code, redirectURI string) (integration.TokenSet, error) {
	if redirectURI == "" {
		redirectURI = c.config.RedirectURI
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	return c.exchange(ctx, form)
}

func (c *TokenClient) exchange(ctx context.Context, form url.Values) (integration.TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return integration.TokenSet{}, fmt.Errorf("fortnox: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return integration.TokenSet{}, integration.Classify(err, 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return integration.TokenSet{}, integration.Classify(fmt.Errorf("fortnox: failed to read token response: %w", err), 0)
	}
	if resp.StatusCode >= 400 {
		httpErr := newHTTPError(resp.StatusCode, body, parseRetryAfter(resp.Header, c.now()))
		switch httpErr.OAuthError {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return integration.TokenSet{}, integration.NewError(integration.KindAuth, httpErr.Error(),
				integration.WithStatusCode(resp.StatusCode), integration.WithCause(httpErr))
		}
		return integration.TokenSet{}, integration.Classify(httpErr, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return integration.TokenSet{}, integration.NewError(integration.KindTransient,
			"fortnox: invalid token response", integration.WithCause(err))
	}
	if tr.AccessToken == "" {
		return integration.TokenSet{}, integration.NewError(integration.KindTransient, "fortnox: token response without access token")
	}
	return integration.TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Scope:        tr.Scope,
		ExpiresAt:    c.expiresAt(tr),
	}, nil
}

func (c *TokenClient) expiresAt(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if exp, ok := JWTExpiry(tr.AccessToken); ok {
		return exp
	}
	return c.now().Add(defaultTokenLifetime)
}

// JWTExpiry reads the exp claim of a JWT access token without verifying it.
// The token is only used to schedule a refresh; Fortnox verifies it.
func JWTExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

var _ integration.TokenExchanger = (*TokenClient)(nil)
