package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/infrastructure/resilience"
)

// ErrReconnectRequired means the stored refresh token is no longer accepted and
// the user has to authorize the integration again. It is always wrapped in an
// Auth-kind *integration.Error.
var ErrReconnectRequired = errors.New("integration: reconnect required")

// CredentialManagerConfig tunes token refresh.
type CredentialManagerConfig struct {
	// RefreshSkew refreshes tokens that expire within this window. Default: 5m
	RefreshSkew time.Duration
	// MinValidity is the remaining lifetime a concurrently refreshed token
	// must have to be reused. Default: 60s
	MinValidity time.Duration
	// ExchangeTimeout bounds one token endpoint call. Default: 30s
	ExchangeTimeout time.Duration
}

// DefaultCredentialManagerConfig returns the default refresh settings.
func DefaultCredentialManagerConfig() CredentialManagerConfig {
	return CredentialManagerConfig{
		RefreshSkew:     5 * time.Minute,
		MinValidity:     60 * time.Second,
		ExchangeTimeout: 30 * time.Second,
	}
}

// refreshState is a step of the refresh protocol.
type refreshState int

const (
	stateRead refreshState = iota
	stateExchange
	stateSwap
	stateReread
)

func (s refreshState) String() string {
	switch s {
	case stateRead:
		return "read"
	case stateExchange:
		return "exchange"
	case stateSwap:
		return "swap"
	case stateReread:
		return "reread"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// maxRefreshSteps bounds the state machine; the longest path is
// read, exchange, swap, reread.
const maxRefreshSteps = 5

// CredentialManager hands out valid access tokens and refreshes them with
// optimistic concurrency. No lock is held across the token exchange; refreshes
// of the same key within one process are coalesced, refreshes racing across
// processes are settled by the repository's compare-and-swap.
type CredentialManager struct {
	repo      integration.CredentialRepository
	exchanger integration.TokenExchanger
	retrier   *resilience.Retrier
	config    CredentialManagerConfig
	group     singleflight.Group
	now       func() time.Time
	logger    *zap.Logger
}

// NewCredentialManager creates a CredentialManager.
func NewCredentialManager(
	repo integration.CredentialRepository,
	exchanger integration.TokenExchanger,
	retrier *resilience.Retrier,
	config CredentialManagerConfig,
	logger *zap.Logger,
) *CredentialManager {
	def := DefaultCredentialManagerConfig()
	if config.RefreshSkew <= 0 {
		config.RefreshSkew = def.RefreshSkew
	}
	if config.MinValidity <= 0 {
		config.MinValidity = def.MinValidity
	}
	if config.ExchangeTimeout <= 0 {
		config.ExchangeTimeout = def.ExchangeTimeout
	}
	if retrier == nil {
		retrier = resilience.NewRetrier(resilience.DefaultRetryConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialManager{
		repo:      repo,
		exchanger: exchanger,
		retrier:   retrier,
		config:    config,
		now:       time.Now,
		logger:    logger,
	}
}

// AccessToken implements integration.TokenSource.
func (m *CredentialManager) AccessToken(ctx context.Context, key integration.CredentialKey) (string, error) {
	return m.GetAccessToken(ctx, key)
}

// GetAccessToken returns a token that is valid beyond the refresh skew,
// refreshing the stored credential first when needed.
func (m *CredentialManager) GetAccessToken(ctx context.Context, key integration.CredentialKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	cred, err := m.find(ctx, key)
	if err != nil {
		return "", err
	}
	if !cred.NeedsRefresh(m.now(), m.config.RefreshSkew) {
		return cred.AccessToken, nil
	}

	// The flight outlives a single caller's cancellation; the exchange has its own timeout.
	ch := m.group.DoChan(key.String(), func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", integration.Classify(ctx.Err(), 0)
	}
}

// Connect stores the credential obtained from an authorization code. An
// existing record for the key is replaced through compare-and-swap.
func (m *CredentialManager) Connect(ctx context.Context, key integration.CredentialKey, code, redirectURI string) (*integration.Credential, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	tokens, err := m.exchange(ctx, func(ctx context.Context) (integration.TokenSet, error) {
		return m.exchanger.ExchangeCode(ctx, code, redirectURI)
	})
	if err != nil {
		return nil, err
	}

	now := m.now()
	existing, err := m.repo.Find(ctx, key)
	switch {
	case errors.Is(err, integration.ErrCredentialNotFound):
		cred, err := integration.NewCredential(key, tokens, now)
		if err != nil {
			return nil, err
		}
		if err := m.repo.Create(ctx, cred); err != nil {
			return nil, err
		}
		m.logger.Info("integration connected", zap.String("key", key.String()))
		return cred, nil
	case err != nil:
		return nil, err
	}

	next := existing.Refreshed(tokens, now)
	next.RefreshToken = tokens.RefreshToken
	next.RefreshCount = 0
	next.LastRefreshAt = nil
	if err := m.repo.CompareAndSwap(ctx, existing.Version, next); err != nil {
		return nil, err
	}
	m.logger.Info("integration reconnected", zap.String("key", key.String()), zap.Int("version", next.Version))
	return next, nil
}

// refresh runs Read → Exchange → Swap with Reread on a lost race or a
// rejected refresh token.
func (m *CredentialManager) refresh(ctx context.Context, key integration.CredentialKey) (string, error) {
	var (
		state    = stateRead
		cred     *integration.Credential
		tokens   integration.TokenSet
		cause    error
		conflict bool
	)
	for step := 0; step < maxRefreshSteps; step++ {
		switch state {
		case stateRead:
			c, err := m.find(ctx, key)
			if err != nil {
				return "", err
			}
			// Another flight may have refreshed while this one was queued.
			if !c.NeedsRefresh(m.now(), m.config.RefreshSkew) {
				return c.AccessToken, nil
			}
			cred = c
			state = stateExchange

		case stateExchange:
			t, err := m.exchange(ctx, func(ctx context.Context) (integration.TokenSet, error) {
				return m.exchanger.RefreshToken(ctx, cred.RefreshToken)
			})
			if err != nil {
				if integration.KindOf(err) != integration.KindAuth {
					return "", err
				}
				cause = err
				state = stateReread
				continue
			}
			tokens = t
			state = stateSwap

		case stateSwap:
			next := cred.Refreshed(tokens, m.now())
			err := m.repo.CompareAndSwap(ctx, cred.Version, next)
			if err == nil {
				m.logger.Debug("access token refreshed",
					zap.String("key", key.String()),
					zap.Int("version", next.Version),
					zap.Time("expires_at", next.ExpiresAt))
				return next.AccessToken, nil
			}
			if !errors.Is(err, integration.ErrCredentialConflict) {
				return "", err
			}
			conflict = true
			state = stateReread

		case stateReread:
			latest, err := m.find(ctx, key)
			if err != nil {
				return "", err
			}
			if latest.Version != cred.Version && latest.ValidFor(m.now(), m.config.MinValidity) {
				m.logger.Debug("reusing concurrently refreshed token",
					zap.String("key", key.String()),
					zap.Int("version", latest.Version))
				return latest.AccessToken, nil
			}
			if conflict {
				return "", integration.NewError(integration.KindTransient,
					"credential was refreshed concurrently but the stored token is not usable",
					integration.WithCause(integration.ErrCredentialConflict))
			}
			m.logger.Warn("refresh token rejected, reconnect required",
				zap.String("key", key.String()), zap.Error(cause))
			return "", integration.NewError(integration.KindAuth, "refresh token rejected for "+key.String(),
				integration.WithCause(fmt.Errorf("%w: %w", ErrReconnectRequired, cause)))
		}
	}
	return "", fmt.Errorf("integration: credential refresh did not settle (last state %s)", state)
}

func (m *CredentialManager) find(ctx context.Context, key integration.CredentialKey) (*integration.Credential, error) {
	cred, err := m.repo.Find(ctx, key)
	if errors.Is(err, integration.ErrCredentialNotFound) {
		return nil, integration.NewError(integration.KindAuth, "no credential stored for "+key.String(),
			integration.WithCause(fmt.Errorf("%w: %w", ErrReconnectRequired, err)))
	}
	return cred, err
}

func (m *CredentialManager) exchange(ctx context.Context, call func(context.Context) (integration.TokenSet, error)) (integration.TokenSet, error) {
	return resilience.RunWithRetry(ctx, m.retrier, func(ctx context.Context) (integration.TokenSet, error) {
		ctx, cancel := context.WithTimeout(ctx, m.config.ExchangeTimeout)
		defer cancel()
		return call(ctx)
	})
}

var _ integration.TokenSource = (*CredentialManager)(nil)
