package bookkeeping

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/ledger"
)

var (
	ErrReviewNotFound   = errors.New("bookkeeping: review item not found")
	ErrReviewNotPending = errors.New("bookkeeping: review item is not pending")
	ErrReviewConflict   = errors.New("bookkeeping: review item was modified by another process")
	ErrApproverRequired = errors.New("bookkeeping: approver is required")
	// ErrReviewExists is returned by Enqueue when the event already has an open item.
	ErrReviewExists = errors.New("bookkeeping: event already has an open review item")
)

// OpenReviewStatuses are the statuses that still own their event.
var OpenReviewStatuses = []ReviewStatus{ReviewPending, ReviewApproved, ReviewFailed}

// ReviewStatus tracks a queued voucher.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewPosted   ReviewStatus = "posted"
	ReviewRejected ReviewStatus = "rejected"
	ReviewFailed   ReviewStatus = "failed"
)

// ReviewItem is a voucher waiting for human approval.
type ReviewItem struct {
	ID         uuid.UUID          `json:"id"`
	Event      FinancialEvent     `json:"event"`
	Entries    ledger.EntrySet    `json:"entries"`
	Reasons    []guardrail.Reason `json:"reasons"`
	Status     ReviewStatus       `json:"status"`
	Approver   string             `json:"approver,omitempty"`
	VoucherRef string             `json:"voucher_ref,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	Version    int                `json:"version"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewReviewItem queues a blocked voucher.
func NewReviewItem(event FinancialEvent, entries ledger.EntrySet, reasons []guardrail.Reason, now time.Time) *ReviewItem {
	return &ReviewItem{
		ID:        uuid.New(),
		Event:     event,
		Entries:   entries,
		Reasons:   reasons,
		Status:    ReviewPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Approve moves a pending item to approved.
func (r *ReviewItem) Approve(approver string, now time.Time) error {
	if approver == "" {
		return ErrApproverRequired
	}
	if r.Status != ReviewPending && r.Status != ReviewFailed {
		return ErrReviewNotPending
	}
	r.Status = ReviewApproved
	r.Approver = approver
	r.UpdatedAt = now
	return nil
}

// Open reports whether the item still owns its event in the queue.
func (r *ReviewItem) Open() bool {
	for _, st := range OpenReviewStatuses {
		if r.Status == st {
			return true
		}
	}
	return false
}

// MarkPosted records the platform voucher reference.
func (r *ReviewItem) MarkPosted(voucherRef string, now time.Time) {
	r.Status = ReviewPosted
	r.VoucherRef = voucherRef
	r.Entries.VoucherRef = voucherRef
	r.LastError = ""
	r.UpdatedAt = now
}

// MarkFailed keeps the item approvable again after a failed transmission.
func (r *ReviewItem) MarkFailed(reason string, now time.Time) {
	r.Status = ReviewFailed
	r.LastError = reason
	r.UpdatedAt = now
}

// ReviewRepository persists the review queue.
type ReviewRepository interface {
	// Enqueue stores a new item; ErrReviewExists when the event already has an open one.
	Enqueue(ctx context.Context, item *ReviewItem) error
	// FindOpenByEvent returns the open item of an event or ErrReviewNotFound.
	FindOpenByEvent(ctx context.Context, eventID uuid.UUID) (*ReviewItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*ReviewItem, error)
	// Save updates item if its version is unchanged and bumps item.Version.
	Save(ctx context.Context, item *ReviewItem) error
	ListPending(ctx context.Context, userID uuid.UUID, limit int) ([]*ReviewItem, error)
}
