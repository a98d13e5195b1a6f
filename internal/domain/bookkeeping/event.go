package bookkeeping

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEvent        = errors.New("bookkeeping: invalid financial event")
	ErrUnsupportedCurrency = errors.New("bookkeeping: only SEK amounts can be booked")
	ErrAlreadyTransmitted  = errors.New("bookkeeping: event already transmitted")
	ErrTransmissionPending = errors.New("bookkeeping: event transmission in progress")
)

// EventKind is the type of source event.
type EventKind string

const (
	EventSale          EventKind = "sale"
	EventCost          EventKind = "cost"
	EventVATSettlement EventKind = "vat_settlement"
)

// BookingCurrency is the only currency vouchers are kept in.
const BookingCurrency = "SEK"

// Extraction is the opaque result of the AI document step.
type Extraction struct {
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence decimal.Decimal   `json:"confidence"`
	Provider   string            `json:"provider,omitempty"`
	Model      string            `json:"model,omitempty"`
}

// FinancialEvent is one inbound event to be booked.
type FinancialEvent struct {
	ID           uuid.UUID       `json:"id" validate:"required"`
	UserID       uuid.UUID       `json:"user_id" validate:"required"`
	CompanyID    uuid.UUID       `json:"company_id" validate:"required"`
	Kind         EventKind       `json:"kind" validate:"required,oneof=sale cost vat_settlement"`
	OccurredOn   time.Time       `json:"occurred_on" validate:"required"`
	Description  string          `json:"description" validate:"required,max=200"`
	Counterparty string          `json:"counterparty,omitempty" validate:"max=100"`
	Currency     string          `json:"currency" validate:"omitempty,len=3"`
	Net          decimal.Decimal `json:"net"`
	VAT          decimal.Decimal `json:"vat"`
	Gross        decimal.Decimal `json:"gross"`
	VATRate      int             `json:"vat_rate" validate:"oneof=0 6 12 25"`
	Roaming      bool            `json:"roaming,omitempty"`
	// OutgoingVAT and IncomingVAT are only set for VAT settlements.
	OutgoingVAT map[int]decimal.Decimal `json:"outgoing_vat,omitempty"`
	IncomingVAT decimal.Decimal         `json:"incoming_vat"`
	Period      string                  `json:"period,omitempty"`
	Extraction  *Extraction             `json:"extraction,omitempty"`
}

// Confidence returns the extraction confidence; manually entered events count as certain.
func (e *FinancialEvent) Confidence() decimal.Decimal {
	if e.Extraction == nil {
		return decimal.NewFromInt(1)
	}
	return e.Extraction.Confidence
}

// Amount is the gross amount the guardrail limits apply to.
func (e *FinancialEvent) Amount() decimal.Decimal {
	if !e.Gross.IsZero() {
		return e.Gross
	}
	return e.Net.Add(e.VAT)
}

// Provider returns the extraction provider and model, if any.
func (e *FinancialEvent) Provider() (string, string) {
	if e.Extraction == nil {
		return "", ""
	}
	return e.Extraction.Provider, e.Extraction.Model
}
