package bookkeeping

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/domain/ledger"
	"github.com/ledgerflow/backend/internal/infrastructure/sie"
)

func quarterTransactions() []ledger.Transaction {
	d := decimal.RequireFromString
	return []ledger.Transaction{
		{ID: "1", Kind: ledger.TransactionSale, Net: d("10000"), VAT: d("2500"), Gross: d("12500"), RatePercent: d("25")},
		{ID: "2", Kind: ledger.TransactionSale, Net: d("1000"), VAT: d("60"), Gross: d("1060"), RatePercent: d("6")},
		{ID: "3", Kind: ledger.TransactionCost, Net: d("3200"), VAT: d("800"), Gross: d("4000"), RatePercent: d("25")},
	}
}

func vatRequest() VATReportRequest {
	return VATReportRequest{
		UserID:       uuid.New(),
		CompanyID:    uuid.New(),
		CompanyName:  "Laddkompaniet AB",
		OrgNumber:    "556036-0793",
		Period:       "2025-Q1",
		PeriodEnd:    time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Transactions: quarterTransactions(),
	}
}

func TestVATReportService_GenerateReportOnly(t *testing.T) {
	s := NewVATReportService(nil, nil, nil, nil, nil)

	result, err := s.Generate(context.Background(), vatRequest())
	require.NoError(t, err)
	assert.True(t, result.Report.IsValid())
	assert.True(t, result.ToPay.Equal(decimal.RequireFromString("1760")))
	assert.True(t, result.ToRefund.IsZero())

	require.NotNil(t, result.Settlement)
	assert.True(t, result.Settlement.IsBalanced())
	last := result.Settlement.Lines[len(result.Settlement.Lines)-1]
	assert.Equal(t, "2650", last.Account.Code)
	assert.True(t, last.Credit.Equal(decimal.RequireFromString("1760")))
	assert.Nil(t, result.Posting)
	assert.Empty(t, result.ArchiveURI)
}

func TestVATReportService_EmptyPeriodHasNoSettlement(t *testing.T) {
	s := NewVATReportService(nil, nil, nil, nil, nil)
	req := vatRequest()
	req.Transactions = nil

	result, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, result.Settlement)
}

func TestVATReportService_PostAndArchiveSettlement(t *testing.T) {
	f := newPostingFixture()
	archive := newMemoryArchive()
	s := NewVATReportService(f.service, nil, archive, sie.NewExporter("ledgerflow", "test"), nil)

	f.platform.On("CreateVoucher", mock.Anything, mock.Anything, mock.MatchedBy(func(v integration.VoucherRequest) bool {
		return v.Description == "Momsredovisning 2025-Q1" && v.TransactionDate.Equal(time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC))
	})).Return(&integration.VoucherReceipt{Series: "A", Number: 30}, nil).Once()

	req := vatRequest()
	req.PostSettlement = true
	req.ArchiveSIE = true
	result, err := s.Generate(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, result.Posting)
	assert.Equal(t, "A30", result.Posting.VoucherRef)
	assert.Equal(t, "A30", result.Settlement.VoucherRef)

	key := "sie/" + req.CompanyID.String() + "/2025/2025-Q1.se"
	assert.Equal(t, "mem://"+key, result.ArchiveURI)
	assert.Equal(t, sie.ContentType, archive.types[key])
	assert.Contains(t, string(archive.objects[key]), "#TRANS 2650 {} -1760.00")

	// The settlement event id is derived from company and period.
	again, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Posting.Duplicate)
	f.platform.AssertNumberOfCalls(t, "CreateVoucher", 1)
}

func TestVATReportService_ArchivesPlatformExport(t *testing.T) {
	platform := new(MockPlatform)
	archive := newMemoryArchive()
	s := NewVATReportService(nil, platform, archive, nil, nil)

	req := vatRequest()
	req.ArchiveSIE = true
	req.FinancialYear = 3
	platform.On("ExportSIE", mock.Anything, integration.CredentialKey{UserID: req.UserID, Integration: integration.IntegrationFortnox}, 3).
		Return([]byte("#FLAGGA 0\n"), nil).Once()

	result, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mem://sie/"+req.CompanyID.String()+"/3/2025-Q1.se", result.ArchiveURI)
	platform.AssertExpectations(t)
}

func TestVATReportService_InvalidReportIsNotPosted(t *testing.T) {
	f := newPostingFixture()
	s := NewVATReportService(f.service, nil, nil, nil, nil)
	req := vatRequest()
	req.OrgNumber = "556036-0794"
	req.PostSettlement = true

	result, err := s.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrReportInvalid)
	require.NotNil(t, result)
	assert.False(t, result.Report.IsValid())
	f.platform.AssertNotCalled(t, "CreateVoucher", mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementEvent(t *testing.T) {
	req := vatRequest()
	report := ledger.BuildVATReport(req.Period, req.CompanyName, req.OrgNumber, req.Transactions)

	event := SettlementEvent(req, report)
	assert.Equal(t, bookkeeping.EventVATSettlement, event.Kind)
	assert.Equal(t, event.ID, SettlementEvent(req, report).ID)
	assert.Len(t, event.OutgoingVAT, 2)
	assert.True(t, event.OutgoingVAT[25].Equal(decimal.NewFromInt(2500)))
	assert.True(t, event.IncomingVAT.Equal(decimal.NewFromInt(800)))

	other := req
	other.Period = "2025-Q2"
	assert.NotEqual(t, event.ID, SettlementEvent(other, report).ID)
}

func TestVATReportService_RequiresPeriod(t *testing.T) {
	s := NewVATReportService(nil, nil, nil, nil, nil)
	_, err := s.Generate(context.Background(), VATReportRequest{})
	assert.ErrorIs(t, err, bookkeeping.ErrInvalidEvent)
}
