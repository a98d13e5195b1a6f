package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/ledger"
)

// AuditRecordModel is an append-only row per transmission attempt.
type AuditRecordModel struct {
	ID         uuid.UUID       `gorm:"type:uuid;primary_key"`
	EventID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Operation  string          `gorm:"type:varchar(32);not null"`
	Outcome    string          `gorm:"type:varchar(32);not null"`
	Input      []byte          `gorm:"type:jsonb"`
	Output     []byte          `gorm:"type:jsonb"`
	Confidence decimal.Decimal `gorm:"type:numeric(5,4);not null"`
	Provider   string          `gorm:"type:varchar(64)"`
	Model      string          `gorm:"type:varchar(64)"`
	ErrorKind  string          `gorm:"type:varchar(32)"`
	Error      string          `gorm:"type:text"`
	StartedAt  time.Time       `gorm:"not null"`
	FinishedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AuditRecordModel) TableName() string {
	return "audit_records"
}

// AuditRecordModelFromDomain maps an audit record.
func AuditRecordModelFromDomain(r *bookkeeping.AuditRecord) *AuditRecordModel {
	return &AuditRecordModel{
		ID:         r.ID,
		EventID:    r.EventID,
		UserID:     r.UserID,
		Operation:  r.Operation,
		Outcome:    string(r.Outcome),
		Input:      r.Input,
		Output:     r.Output,
		Confidence: r.Confidence,
		Provider:   r.Provider,
		Model:      r.Model,
		ErrorKind:  r.ErrorKind,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// ToDomain converts the model to a domain audit record.
func (m *AuditRecordModel) ToDomain() *bookkeeping.AuditRecord {
	return &bookkeeping.AuditRecord{
		ID:         m.ID,
		EventID:    m.EventID,
		UserID:     m.UserID,
		Operation:  m.Operation,
		Outcome:    bookkeeping.AuditOutcome(m.Outcome),
		Input:      json.RawMessage(m.Input),
		Output:     json.RawMessage(m.Output),
		Confidence: m.Confidence,
		Provider:   m.Provider,
		Model:      m.Model,
		ErrorKind:  m.ErrorKind,
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// AutoPostPolicyModel holds the guardrail thresholds of one (user, company).
type AutoPostPolicyModel struct {
	UserID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CompanyID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Enabled                  bool            `gorm:"not null;default:true"`
	MinConfidence            decimal.Decimal `gorm:"type:numeric(5,4);not null"`
	MaxAmount                decimal.Decimal `gorm:"type:numeric(18,2);not null"`
	RequireKnownCounterparty bool            `gorm:"not null;default:true"`
	AllowVATDeviation        bool            `gorm:"not null;default:false"`
	UpdatedAt                time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AutoPostPolicyModel) TableName() string {
	return "autopost_policies"
}

// ToDomain converts the model to a guardrail policy.
func (m *AutoPostPolicyModel) ToDomain() *guardrail.Policy {
	return &guardrail.Policy{
		Enabled:                  m.Enabled,
		MinConfidence:            m.MinConfidence,
		MaxAmount:                m.MaxAmount,
		RequireKnownCounterparty: m.RequireKnownCounterparty,
		AllowVATDeviation:        m.AllowVATDeviation,
	}
}

// CounterpartyRuleModel is a known counterparty and its posting rule.
type CounterpartyRuleModel struct {
	BaseModel
	UserID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_counterparty_user_name,priority:1"`
	Name            string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_counterparty_user_name,priority:2"`
	Active          bool      `gorm:"not null;default:true"`
	ExpectedVATRate *int
}

// TableName returns the table name for GORM
func (CounterpartyRuleModel) TableName() string {
	return "counterparty_rules"
}

// PeriodLockModel closes a date range of a company's books.
type PeriodLockModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index"`
	PeriodStart time.Time `gorm:"not null"`
	PeriodEnd   time.Time `gorm:"not null"`
	LockedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PeriodLockModel) TableName() string {
	return "period_locks"
}

// ReviewItemModel is a queued voucher. Event, entries and reasons are kept as one JSON payload.
type ReviewItemModel struct {
	AggregateModel
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_review_user_status,priority:1"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Status     string    `gorm:"type:varchar(16);not null;index:idx_review_user_status,priority:2"`
	Payload    []byte    `gorm:"type:jsonb;not null"`
	Approver   string    `gorm:"type:varchar(255)"`
	VoucherRef string    `gorm:"type:varchar(32)"`
	LastError  string    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReviewItemModel) TableName() string {
	return "review_items"
}

type reviewPayload struct {
	Event   bookkeeping.FinancialEvent `json:"event"`
	Entries ledger.EntrySet            `json:"entries"`
	Reasons []guardrail.Reason         `json:"reasons"`
}

// ReviewItemModelFromDomain maps a review item.
func ReviewItemModelFromDomain(r *bookkeeping.ReviewItem) (*ReviewItemModel, error) {
	payload, err := json.Marshal(reviewPayload{Event: r.Event, Entries: r.Entries, Reasons: r.Reasons})
	if err != nil {
		return nil, fmt.Errorf("encode review payload: %w", err)
	}
	return &ReviewItemModel{
		AggregateModel: AggregateModel{
			BaseModel: BaseModel{ID: r.ID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt},
			Version:   r.Version,
		},
		UserID:     r.Event.UserID,
		EventID:    r.Event.ID,
		Status:     string(r.Status),
		Payload:    payload,
		Approver:   r.Approver,
		VoucherRef: r.VoucherRef,
		LastError:  r.LastError,
	}, nil
}

// ToDomain converts the model to a review item.
func (m *ReviewItemModel) ToDomain() (*bookkeeping.ReviewItem, error) {
	var p reviewPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode review payload %s: %w", m.ID, err)
	}
	return &bookkeeping.ReviewItem{
		ID:         m.ID,
		Event:      p.Event,
		Entries:    p.Entries,
		Reasons:    p.Reasons,
		Status:     bookkeeping.ReviewStatus(m.Status),
		Approver:   m.Approver,
		VoucherRef: m.VoucherRef,
		LastError:  m.LastError,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}, nil
}
