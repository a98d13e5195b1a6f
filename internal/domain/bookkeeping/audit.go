package bookkeeping

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditOutcome is the result of one transmission attempt.
type AuditOutcome string

const (
	OutcomePosted      AuditOutcome = "posted"
	OutcomeQueued      AuditOutcome = "queued_for_review"
	OutcomeFailed      AuditOutcome = "failed"
	OutcomeLedgerError AuditOutcome = "ledger_error"
	OutcomeDuplicate   AuditOutcome = "duplicate"
)

// AuditRecord is an append-only trace of one transmission attempt.
type AuditRecord struct {
	ID         uuid.UUID       `json:"id"`
	EventID    uuid.UUID       `json:"event_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Operation  string          `json:"operation"`
	Outcome    AuditOutcome    `json:"outcome"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Confidence decimal.Decimal `json:"confidence"`
	Provider   string          `json:"provider,omitempty"`
	Model      string          `json:"model,omitempty"`
	ErrorKind  string          `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// AuditLog only ever appends.
type AuditLog interface {
	Append(ctx context.Context, rec *AuditRecord) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*AuditRecord, error)
}
