package integration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCredentialNotFound  = errors.New("integration: credential not found")
	ErrCredentialConflict  = errors.New("integration: credential was modified by another process")
	ErrCredentialExists    = errors.New("integration: credential already exists")
	ErrInvalidCredentialID = errors.New("integration: invalid credential key")
)

// Integration names a connected remote system.
type Integration string

const IntegrationFortnox Integration = "fortnox"

// CredentialKey identifies a credential record.
type CredentialKey struct {
	UserID      uuid.UUID
	Integration Integration
}

// Validate checks that both parts of the key are set.
func (k CredentialKey) Validate() error {
	if k.UserID == uuid.Nil || strings.TrimSpace(string(k.Integration)) == "" {
		return ErrInvalidCredentialID
	}
	return nil
}

func (k CredentialKey) String() string {
	return string(k.Integration) + ":" + k.UserID.String()
}

// Credential is the stored OAuth token pair for one user and integration.
// Version increases on every successful compare-and-swap update.
type Credential struct {
	ID            uuid.UUID
	Key           CredentialKey
	AccessToken   string
	RefreshToken  string
	Scope         string
	ExpiresAt     time.Time
	LastRefreshAt *time.Time
	RefreshCount  int
	Version       int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewCredential creates the record for a first authorization.
func NewCredential(key CredentialKey, tokens TokenSet, now time.Time) (*Credential, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &Credential{
		ID:           uuid.New(),
		Key:          key,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Scope:        tokens.Scope,
		ExpiresAt:    tokens.ExpiresAt,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NeedsRefresh reports whether the access token expires within skew.
func (c *Credential) NeedsRefresh(now time.Time, skew time.Duration) bool {
	return c.AccessToken == "" || !now.Add(skew).Before(c.ExpiresAt)
}

// ValidFor reports whether the access token is usable for at least d more.
func (c *Credential) ValidFor(now time.Time, d time.Duration) bool {
	return c.AccessToken != "" && now.Add(d).Before(c.ExpiresAt)
}

// Refreshed returns a copy carrying new tokens. The version is left to the repository.
func (c *Credential) Refreshed(tokens TokenSet, now time.Time) *Credential {
	next := *c
	next.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		next.RefreshToken = tokens.RefreshToken
	}
	if tokens.Scope != "" {
		next.Scope = tokens.Scope
	}
	next.ExpiresAt = tokens.ExpiresAt
	refreshed := now
	next.LastRefreshAt = &refreshed
	next.RefreshCount = c.RefreshCount + 1
	next.UpdatedAt = now
	return &next
}

// TokenSet is the result of a token exchange.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    time.Time
}

// CredentialRepository stores credentials with optimistic concurrency.
type CredentialRepository interface {
	// Find returns ErrCredentialNotFound when no record exists.
	Find(ctx context.Context, key CredentialKey) (*Credential, error)
	// Create inserts a new record or returns ErrCredentialExists.
	Create(ctx context.Context, cred *Credential) error
	// CompareAndSwap writes next only if the stored version still equals expectedVersion.
	// It returns ErrCredentialConflict when another writer got there first.
	// On success next.Version holds the new version.
	CompareAndSwap(ctx context.Context, expectedVersion int, next *Credential) error
}

// TokenExchanger talks to the platform's token endpoint.
type TokenExchanger interface {
	RefreshToken(ctx context.Context, refreshToken string) (TokenSet, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (TokenSet, error)
}

// TokenSource hands out a currently valid access token.
type TokenSource interface {
	AccessToken(ctx context.Context, key CredentialKey) (string, error)
}
