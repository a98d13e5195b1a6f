// Package guardrail decides whether a generated voucher may be posted without human review.
package guardrail

import (
	"github.com/shopspring/decimal"
)

// Reason names a blocking rule.
type Reason string

const (
	ReasonAutopostDisabled    Reason = "autopost_disabled"
	ReasonInvalidConfidence   Reason = "invalid_confidence"
	ReasonLowConfidence       Reason = "low_confidence"
	ReasonAmountAboveLimit    Reason = "amount_above_limit"
	ReasonUnknownCounterparty Reason = "unknown_counterparty"
	ReasonVATDeviation        Reason = "vat_deviation"
	ReasonPeriodLocked        Reason = "period_locked"
)

// State of an evaluation.
type State string

const (
	StatePending State = "pending"
	StateAllowed State = "allowed"
	StateBlocked State = "blocked"
)

// Policy holds the auto-post thresholds for one (user, company).
type Policy struct {
	Enabled                  bool            `json:"enabled"`
	MinConfidence            decimal.Decimal `json:"min_confidence"`
	MaxAmount                decimal.Decimal `json:"max_amount"`
	RequireKnownCounterparty bool            `json:"require_known_counterparty"`
	AllowVATDeviation        bool            `json:"allow_vat_deviation"`
}

// DefaultPolicy is used when no policy record exists.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:                  true,
		MinConfidence:            decimal.New(8, -1),
		MaxAmount:                decimal.NewFromInt(10000),
		RequireKnownCounterparty: true,
	}
}

// Signals are the live inputs of one evaluation.
type Signals struct {
	Confidence        decimal.Decimal
	Amount            decimal.Decimal
	CounterpartyKnown bool
	HasActiveRule     bool
	VATDeviates       bool
	PeriodLocked      bool
}

// Decision is derived on every evaluation and never stored.
type Decision struct {
	State   State    `json:"state"`
	Reasons []Reason `json:"reasons"`
}

// Allowed reports whether the voucher may be auto-posted.
func (d Decision) Allowed() bool {
	return d.State == StateAllowed
}

// Has reports whether r is among the blocking reasons.
func (d Decision) Has(r Reason) bool {
	for _, x := range d.Reasons {
		if x == r {
			return true
		}
	}
	return false
}

// Rule is one row of the evaluation table. Blocks returns true when the rule fires.
type Rule struct {
	Reason Reason
	Blocks func(p Policy, s Signals) bool
}

var (
	one = decimal.NewFromInt(1)
)

func confidenceValid(c decimal.Decimal) bool {
	return !c.IsNegative() && c.LessThanOrEqual(one)
}

// Rules is the evaluation table in reporting order.
var Rules = []Rule{
	{ReasonAutopostDisabled, func(p Policy, _ Signals) bool {
		return !p.Enabled
	}},
	{ReasonInvalidConfidence, func(_ Policy, s Signals) bool {
		return !confidenceValid(s.Confidence)
	}},
	{ReasonLowConfidence, func(p Policy, s Signals) bool {
		return confidenceValid(s.Confidence) && s.Confidence.LessThan(p.MinConfidence)
	}},
	{ReasonAmountAboveLimit, func(p Policy, s Signals) bool {
		return s.Amount.Abs().GreaterThan(p.MaxAmount)
	}},
	{ReasonUnknownCounterparty, func(p Policy, s Signals) bool {
		return p.RequireKnownCounterparty && !s.CounterpartyKnown && !s.HasActiveRule
	}},
	{ReasonVATDeviation, func(p Policy, s Signals) bool {
		return s.VATDeviates && !p.AllowVATDeviation
	}},
	{ReasonPeriodLocked, func(_ Policy, s Signals) bool {
		return s.PeriodLocked
	}},
}

// Evaluate runs every rule and collects all blocking reasons.
func Evaluate(p Policy, s Signals) Decision {
	d := Decision{State: StatePending}
	for _, r := range Rules {
		if r.Blocks(p, s) {
			d.Reasons = append(d.Reasons, r.Reason)
		}
	}
	if len(d.Reasons) == 0 {
		d.State = StateAllowed
		d.Reasons = []Reason{}
	} else {
		d.State = StateBlocked
	}
	return d
}
