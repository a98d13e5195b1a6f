// Package bookkeeping turns financial events into posted vouchers.
package bookkeeping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/domain/ledger"
)

// DefaultClaimTTL bounds how long one worker owns an event's transmission.
const DefaultClaimTTL = 10 * time.Minute

// DecisionObserver receives every guardrail decision.
type DecisionObserver interface {
	ObserveDecision(ctx context.Context, decision guardrail.Decision)
}

// PostingConfig configures the PostingService.
type PostingConfig struct {
	VoucherSeries string
	ClaimTTL      time.Duration
	// Integration is the platform credentials are looked up for.
	Integration integration.Integration
	// DefaultPolicy applies to companies without a stored policy.
	// Nil means guardrail.DefaultPolicy.
	DefaultPolicy *guardrail.Policy
}

// PostingResult reports what happened to one event.
type PostingResult struct {
	EventID    uuid.UUID                   `json:"event_id"`
	State      guardrail.State             `json:"state"`
	Reasons    []guardrail.Reason          `json:"reasons,omitempty"`
	Entries    *ledger.EntrySet            `json:"entries,omitempty"`
	VoucherRef string                      `json:"voucher_ref,omitempty"`
	ReviewID   *uuid.UUID                  `json:"review_id,omitempty"`
	Duplicate  bool                        `json:"duplicate,omitempty"`
	Receipt    *integration.VoucherReceipt `json:"receipt,omitempty"`
}

// PostingService validates events, builds their vouchers, applies the
// auto-post guardrail and transmits or queues the result.
type PostingService struct {
	generator     *ledger.Generator
	validate      *validator.Validate
	policies      bookkeeping.PolicyRepository
	reviews       bookkeeping.ReviewRepository
	transmissions bookkeeping.TransmissionStore
	platform      integration.AccountingPlatform
	audit         bookkeeping.AuditLog
	observer      DecisionObserver
	config        PostingConfig
	now           func() time.Time
	logger        *zap.Logger
}

// PostingOption customizes a PostingService.
type PostingOption func(*PostingService)

// WithDecisionObserver reports guardrail decisions, e.g. to metrics.
func WithDecisionObserver(o DecisionObserver) PostingOption {
	return func(s *PostingService) { s.observer = o }
}

// WithPostingLogger sets the logger.
func WithPostingLogger(l *zap.Logger) PostingOption {
	return func(s *PostingService) { s.logger = l }
}

// WithGenerator replaces the default ledger generator.
func WithGenerator(g *ledger.Generator) PostingOption {
	return func(s *PostingService) { s.generator = g }
}

// NewPostingService creates a PostingService.
func NewPostingService(
	policies bookkeeping.PolicyRepository,
	reviews bookkeeping.ReviewRepository,
	transmissions bookkeeping.TransmissionStore,
	platform integration.AccountingPlatform,
	audit bookkeeping.AuditLog,
	config PostingConfig,
	opts ...PostingOption,
) *PostingService {
	if config.VoucherSeries == "" {
		config.VoucherSeries = "A"
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = DefaultClaimTTL
	}
	if config.Integration == "" {
		config.Integration = integration.IntegrationFortnox
	}
	s := &PostingService{
		generator:     ledger.NewGenerator(nil),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		policies:      policies,
		reviews:       reviews,
		transmissions: transmissions,
		platform:      platform,
		audit:         audit,
		config:        config,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

// Submit books one event. A blocked event is queued for review and reported
// with its reasons; it is not an error.
func (s *PostingService) Submit(ctx context.Context, event bookkeeping.FinancialEvent) (*PostingResult, error) {
	started := s.now()
	if err := s.ValidateEvent(&event); err != nil {
		return nil, err
	}

	entries, err := s.BuildEntries(event)
	if err != nil {
		s.record(ctx, event, "submit", bookkeeping.OutcomeLedgerError, started, event, nil, err)
		return nil, err
	}
	result := &PostingResult{EventID: event.ID, State: guardrail.StatePending, Entries: entries}

	if ref, done, err := s.transmissions.VoucherRef(ctx, event.ID.String()); err != nil {
		return nil, err
	} else if done {
		entries.VoucherRef = ref
		result.State = guardrail.StateAllowed
		result.VoucherRef = ref
		result.Duplicate = true
		s.record(ctx, event, "submit", bookkeeping.OutcomeDuplicate, started, entries, result, nil)
		return result, nil
	}

	if item, err := s.reviews.FindOpenByEvent(ctx, event.ID); err == nil {
		return s.alreadyQueued(ctx, event, item, started), nil
	} else if !errors.Is(err, bookkeeping.ErrReviewNotFound) {
		return nil, fmt.Errorf("bookkeeping: find review: %w", err)
	}

	decision, err := s.evaluate(ctx, event)
	if err != nil {
		return nil, err
	}
	result.State = decision.State
	result.Reasons = decision.Reasons

	if !decision.Allowed() {
		item := bookkeeping.NewReviewItem(event, *entries, decision.Reasons, s.now())
		if err := s.reviews.Enqueue(ctx, item); err != nil {
			if !errors.Is(err, bookkeeping.ErrReviewExists) {
				return nil, fmt.Errorf("bookkeeping: enqueue review: %w", err)
			}
			// A concurrent submit of the same event queued it first.
			existing, findErr := s.reviews.FindOpenByEvent(ctx, event.ID)
			if findErr != nil {
				return nil, fmt.Errorf("bookkeeping: find review: %w", findErr)
			}
			return s.alreadyQueued(ctx, event, existing, started), nil
		}
		result.ReviewID = &item.ID
		s.logger.Info("voucher queued for review",
			zap.String("event_id", event.ID.String()),
			zap.String("review_id", item.ID.String()),
			zap.Any("reasons", decision.Reasons))
		s.record(ctx, event, "submit", bookkeeping.OutcomeQueued, started, entries, result, nil)
		return result, nil
	}

	receipt, duplicate, err := s.transmit(ctx, event, entries, "auto_post", started)
	if err != nil {
		return nil, err
	}
	result.VoucherRef = entries.VoucherRef
	result.Receipt = receipt
	result.Duplicate = duplicate
	return result, nil
}

// alreadyQueued reports the open review item of a resubmitted event.
func (s *PostingService) alreadyQueued(ctx context.Context, event bookkeeping.FinancialEvent, item *bookkeeping.ReviewItem, started time.Time) *PostingResult {
	entries := item.Entries
	result := &PostingResult{
		EventID:   event.ID,
		State:     guardrail.StateBlocked,
		Reasons:   item.Reasons,
		Entries:   &entries,
		ReviewID:  &item.ID,
		Duplicate: true,
	}
	s.logger.Info("event already queued for review",
		zap.String("event_id", event.ID.String()),
		zap.String("review_id", item.ID.String()),
		zap.String("status", string(item.Status)))
	s.record(ctx, event, "submit", bookkeeping.OutcomeDuplicate, started, &entries, result, nil)
	return result
}

// ValidateEvent checks struct tags and the rules that depend on the event kind.
// It fills the default currency.
func (s *PostingService) ValidateEvent(event *bookkeeping.FinancialEvent) error {
	if err := s.validate.Struct(event); err != nil {
		return fmt.Errorf("%w: %w", bookkeeping.ErrInvalidEvent, err)
	}
	if event.Currency == "" {
		event.Currency = bookkeeping.BookingCurrency
	}
	if event.Currency != bookkeeping.BookingCurrency {
		return fmt.Errorf("%w: %s", bookkeeping.ErrUnsupportedCurrency, event.Currency)
	}
	switch event.Kind {
	case bookkeeping.EventSale:
		if event.Net.IsZero() && event.Gross.IsZero() {
			return fmt.Errorf("%w: sale without amount", bookkeeping.ErrInvalidEvent)
		}
	case bookkeeping.EventCost:
		if event.Net.IsZero() && event.Gross.IsZero() {
			return fmt.Errorf("%w: cost without amount", bookkeeping.ErrInvalidEvent)
		}
	case bookkeeping.EventVATSettlement:
		if event.Period == "" {
			return fmt.Errorf("%w: settlement without period", bookkeeping.ErrInvalidEvent)
		}
	}
	return nil
}

// BuildEntries generates the voucher lines of an event.
func (s *PostingService) BuildEntries(event bookkeeping.FinancialEvent) (*ledger.EntrySet, error) {
	rate := ledger.VATRate(event.VATRate)
	switch event.Kind {
	case bookkeeping.EventSale:
		net, vat := event.Net, event.VAT
		if net.IsZero() {
			net = ledger.NetFromGross(event.Gross, rate.Percent())
			vat = ledger.RoundMoney(event.Gross).Sub(net)
		}
		return s.generator.BuildSaleEntries(net, vat, rate, event.Roaming)
	case bookkeeping.EventCost:
		if event.Net.IsZero() {
			return s.generator.BuildCostEntriesFromGross(event.Gross, rate, event.Description)
		}
		return s.generator.BuildCostEntries(event.Net, event.VAT, rate, event.Description)
	case bookkeeping.EventVATSettlement:
		summary := ledger.VATSummary{
			Period:      event.Period,
			OutgoingVAT: make(map[ledger.VATRate]decimal.Decimal, len(event.OutgoingVAT)),
			IncomingVAT: event.IncomingVAT,
		}
		for r, v := range event.OutgoingVAT {
			summary.OutgoingVAT[ledger.VATRate(r)] = v
		}
		return s.generator.BuildVATSettlementEntries(summary)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", bookkeeping.ErrInvalidEvent, event.Kind)
}

// evaluate loads the policy and live signals; decisions are never cached.
func (s *PostingService) evaluate(ctx context.Context, event bookkeeping.FinancialEvent) (guardrail.Decision, error) {
	policy := guardrail.DefaultPolicy()
	if s.config.DefaultPolicy != nil {
		policy = *s.config.DefaultPolicy
	}
	stored, err := s.policies.FindPolicy(ctx, event.UserID, event.CompanyID)
	if err != nil {
		return guardrail.Decision{}, fmt.Errorf("bookkeeping: load policy: %w", err)
	}
	if stored != nil {
		policy = *stored
	}

	signals := guardrail.Signals{
		Confidence: event.Confidence(),
		Amount:     event.Amount(),
	}
	if event.Kind == bookkeeping.EventVATSettlement {
		// Settlements only move balances between VAT accounts.
		signals.CounterpartyKnown = true
	} else if event.Counterparty != "" {
		profile, err := s.policies.Counterparty(ctx, event.UserID, event.Counterparty)
		if err != nil {
			return guardrail.Decision{}, fmt.Errorf("bookkeeping: load counterparty: %w", err)
		}
		signals.CounterpartyKnown = profile.Known
		signals.HasActiveRule = profile.HasActiveRule
		signals.VATDeviates = profile.ExpectedVATRate != nil && *profile.ExpectedVATRate != event.VATRate
	}
	if vatMismatch(event) {
		signals.VATDeviates = true
	}
	locked, err := s.policies.IsPeriodLocked(ctx, event.CompanyID, event.OccurredOn)
	if err != nil {
		return guardrail.Decision{}, fmt.Errorf("bookkeeping: check period lock: %w", err)
	}
	signals.PeriodLocked = locked

	decision := guardrail.Evaluate(policy, signals)
	if s.observer != nil {
		s.observer.ObserveDecision(ctx, decision)
	}
	return decision, nil
}

// vatMismatch reports a declared VAT amount that is not the declared rate of
// the net amount. Amounts given only as gross have their VAT derived and cannot mismatch.
func vatMismatch(event bookkeeping.FinancialEvent) bool {
	if event.Kind != bookkeeping.EventSale && event.Kind != bookkeeping.EventCost {
		return false
	}
	if event.Net.IsZero() {
		return false
	}
	rate := ledger.VATRate(event.VATRate)
	return !ledger.ValidateVATCalculation(event.Net, event.VAT, rate.Percent(), ledger.DefaultTolerance).Valid
}

// ---------------------------------------------------------------------------
// Review queue
// ---------------------------------------------------------------------------

// Approve transmits a queued voucher after human review.
func (s *PostingService) Approve(ctx context.Context, reviewID uuid.UUID, approver string) (*PostingResult, error) {
	started := s.now()
	item, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if err := item.Approve(approver, s.now()); err != nil {
		return nil, err
	}
	if err := s.reviews.Save(ctx, item); err != nil {
		return nil, err
	}

	entries := item.Entries
	receipt, duplicate, err := s.transmit(ctx, item.Event, &entries, "approve", started)
	if err != nil {
		item.MarkFailed(err.Error(), s.now())
		if saveErr := s.reviews.Save(ctx, item); saveErr != nil {
			s.logger.Error("failed to record review failure",
				zap.String("review_id", item.ID.String()), zap.Error(saveErr))
		}
		return nil, err
	}
	item.MarkPosted(entries.VoucherRef, s.now())
	if err := s.reviews.Save(ctx, item); err != nil {
		// The voucher is posted; the transmission store keeps the reference.
		s.logger.Error("failed to mark review item posted",
			zap.String("review_id", item.ID.String()),
			zap.String("voucher_ref", entries.VoucherRef),
			zap.Error(err))
	}
	return &PostingResult{
		EventID:    item.Event.ID,
		State:      guardrail.StateAllowed,
		Entries:    &entries,
		VoucherRef: entries.VoucherRef,
		ReviewID:   &item.ID,
		Duplicate:  duplicate,
		Receipt:    receipt,
	}, nil
}

// PendingReviews lists queued vouchers of a user.
func (s *PostingService) PendingReviews(ctx context.Context, userID uuid.UUID, limit int) ([]*bookkeeping.ReviewItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.reviews.ListPending(ctx, userID, limit)
}

// ---------------------------------------------------------------------------
// Transmission
// ---------------------------------------------------------------------------

// transmit sends one complete voucher. The transmission store claim makes
// sure one event is never posted twice, across retries and workers.
func (s *PostingService) transmit(ctx context.Context, event bookkeeping.FinancialEvent, entries *ledger.EntrySet, operation string, started time.Time) (*integration.VoucherReceipt, bool, error) {
	eventID := event.ID.String()
	claimed, err := s.transmissions.Claim(ctx, eventID, s.config.ClaimTTL)
	if err != nil {
		return nil, false, fmt.Errorf("bookkeeping: claim transmission: %w", err)
	}
	if !claimed {
		ref, done, err := s.transmissions.VoucherRef(ctx, eventID)
		if err != nil {
			return nil, false, err
		}
		if !done {
			return nil, false, bookkeeping.ErrTransmissionPending
		}
		entries.VoucherRef = ref
		s.record(ctx, event, operation, bookkeeping.OutcomeDuplicate, started, entries, map[string]string{"voucher_ref": ref}, nil)
		return nil, true, nil
	}

	voucher, err := entries.ToVoucher(s.config.VoucherSeries, event.OccurredOn, event.Description)
	if err != nil {
		s.release(ctx, eventID)
		s.record(ctx, event, operation, bookkeeping.OutcomeLedgerError, started, entries, nil, err)
		return nil, false, err
	}

	key := integration.CredentialKey{UserID: event.UserID, Integration: s.config.Integration}
	receipt, err := s.platform.CreateVoucher(ctx, key, voucher)
	if err != nil {
		s.release(ctx, eventID)
		s.record(ctx, event, operation, bookkeeping.OutcomeFailed, started, voucher, nil, err)
		return nil, false, err
	}

	entries.MarkTransmitted(receipt.Series, receipt.Number)
	if err := s.transmissions.Complete(ctx, eventID, entries.VoucherRef); err != nil {
		s.logger.Error("failed to record transmitted voucher",
			zap.String("event_id", eventID),
			zap.String("voucher_ref", entries.VoucherRef),
			zap.Error(err))
	}
	s.logger.Info("voucher posted",
		zap.String("event_id", eventID),
		zap.String("operation", operation),
		zap.String("voucher_ref", entries.VoucherRef))
	s.record(ctx, event, operation, bookkeeping.OutcomePosted, started, voucher, receipt, nil)
	return receipt, false, nil
}

func (s *PostingService) release(ctx context.Context, eventID string) {
	if err := s.transmissions.Release(ctx, eventID); err != nil {
		s.logger.Warn("failed to release transmission claim", zap.String("event_id", eventID), zap.Error(err))
	}
}

// record appends one audit record. Audit failures are logged, not returned:
// the outcome they describe has already happened.
func (s *PostingService) record(ctx context.Context, event bookkeeping.FinancialEvent, operation string, outcome bookkeeping.AuditOutcome, started time.Time, input, output any, cause error) {
	provider, model := event.Provider()
	rec := &bookkeeping.AuditRecord{
		ID:         uuid.New(),
		EventID:    event.ID,
		UserID:     event.UserID,
		Operation:  operation,
		Outcome:    outcome,
		Input:      marshalAudit(input),
		Output:     marshalAudit(output),
		Confidence: event.Confidence(),
		Provider:   provider,
		Model:      model,
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
		rec.ErrorKind = errorKind(cause)
	}
	if err := s.audit.Append(ctx, rec); err != nil {
		s.logger.Error("failed to append audit record",
			zap.String("event_id", event.ID.String()),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

func errorKind(err error) string {
	if kind := integration.KindOf(err); kind != "" {
		return string(kind)
	}
	var ledgerErr *ledger.LedgerError
	if errors.As(err, &ledgerErr) {
		return "ledger"
	}
	return "internal"
}

func marshalAudit(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
