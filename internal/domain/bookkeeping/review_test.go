package bookkeeping

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/domain/ledger"
)

func TestReviewItem_Lifecycle(t *testing.T) {
	now := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	item := NewReviewItem(FinancialEvent{Description: "Konsultarvode"}, ledger.EntrySet{Description: "Konsultarvode"},
		[]guardrail.Reason{guardrail.ReasonLowConfidence}, now)

	assert.Equal(t, ReviewPending, item.Status)
	assert.Equal(t, 1, item.Version)

	assert.ErrorIs(t, item.Approve("", now), ErrApproverRequired)
	require.NoError(t, item.Approve("anna@example.se", now.Add(time.Hour)))
	assert.Equal(t, ReviewApproved, item.Status)
	assert.ErrorIs(t, item.Approve("anna@example.se", now), ErrReviewNotPending)

	item.MarkFailed("integration transient: bad gateway", now)
	assert.Equal(t, ReviewFailed, item.Status)
	require.NoError(t, item.Approve("anna@example.se", now), "failed items can be approved again")

	item.MarkPosted("A42", now)
	assert.Equal(t, ReviewPosted, item.Status)
	assert.Equal(t, "A42", item.VoucherRef)
	assert.Equal(t, "A42", item.Entries.VoucherRef)
	assert.Empty(t, item.LastError)
	assert.ErrorIs(t, item.Approve("anna@example.se", now), ErrReviewNotPending)
}

func TestFinancialEvent_ConfidenceAndAmount(t *testing.T) {
	manual := FinancialEvent{Net: decimal.NewFromInt(100), VAT: decimal.NewFromInt(25)}
	assert.True(t, manual.Confidence().Equal(decimal.NewFromInt(1)))
	assert.True(t, manual.Amount().Equal(decimal.NewFromInt(125)))
	provider, model := manual.Provider()
	assert.Empty(t, provider)
	assert.Empty(t, model)

	extracted := FinancialEvent{
		Gross:      decimal.RequireFromString("99.50"),
		Extraction: &Extraction{Confidence: decimal.RequireFromString("0.42"), Provider: "openai", Model: "gpt-4o"},
	}
	assert.True(t, extracted.Confidence().Equal(decimal.RequireFromString("0.42")))
	assert.True(t, extracted.Amount().Equal(decimal.RequireFromString("99.50")))
	provider, model = extracted.Provider()
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4o", model)
}
