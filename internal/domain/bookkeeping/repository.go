package bookkeeping

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/backend/internal/domain/guardrail"
)

// CounterpartyProfile is what is known about a counterparty for one user.
type CounterpartyProfile struct {
	Known           bool
	HasActiveRule   bool
	ExpectedVATRate *int
}

// PolicyRepository reads auto-post policy and the live guardrail signals.
type PolicyRepository interface {
	// FindPolicy returns (nil, nil) when the company has no stored policy.
	FindPolicy(ctx context.Context, userID, companyID uuid.UUID) (*guardrail.Policy, error)
	SavePolicy(ctx context.Context, userID, companyID uuid.UUID, p guardrail.Policy) error
	Counterparty(ctx context.Context, userID uuid.UUID, counterparty string) (CounterpartyProfile, error)
	IsPeriodLocked(ctx context.Context, companyID uuid.UUID, date time.Time) (bool, error)
}

// TransmissionStore prevents one event from being posted twice.
type TransmissionStore interface {
	// Claim returns true if the caller now owns the transmission of eventID.
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Complete stores the voucher reference for a finished transmission.
	Complete(ctx context.Context, eventID, voucherRef string) error
	// Release gives up a claim after a failed transmission.
	Release(ctx context.Context, eventID string) error
	// VoucherRef returns the reference of a completed transmission.
	VoucherRef(ctx context.Context, eventID string) (string, bool, error)
}

// ArchiveStore keeps exported files for the statutory retention period.
type ArchiveStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}
