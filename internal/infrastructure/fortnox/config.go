package fortnox

import (
	"errors"
	"strings"
)

const (
	// ProductionTokenURL is the OAuth token endpoint
	ProductionTokenURL = "https://apps.fortnox.se/oauth-v1/token"
	// ProductionAPIURL is the REST API base
	ProductionAPIURL = "https://api.fortnox.se/3"
	// DefaultVoucherSeries is used when no series is configured
	DefaultVoucherSeries = "A"
)

// Errors for Fortnox configuration
var (
	ErrConfigMissingClientID     = errors.New("fortnox: client id is required")
	ErrConfigMissingClientSecret = errors.New("fortnox: client secret is required")
)

// Config holds configuration for the Fortnox integration
type Config struct {
	// ClientID is the OAuth client id of the integration
	ClientID string
	// ClientSecret is the OAuth client secret
	ClientSecret string
	// RedirectURI must match the one registered for the authorization-code grant
	RedirectURI string
	// TokenURL is the OAuth token endpoint
	TokenURL string
	// APIBaseURL is the REST API base, including the /3 version segment
	APIBaseURL string
	// TimeoutSeconds bounds every HTTP attempt
	TimeoutSeconds int
	// VoucherSeries is the series new vouchers are created in
	VoucherSeries string
}

// Validate checks required fields and fills defaults
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	if c.TokenURL == "" {
		c.TokenURL = ProductionTokenURL
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = ProductionAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.VoucherSeries == "" {
		c.VoucherSeries = DefaultVoucherSeries
	}
	return nil
}
