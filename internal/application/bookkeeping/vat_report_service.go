package bookkeeping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/domain/ledger"
	"github.com/ledgerflow/backend/internal/infrastructure/sie"
)

// ErrReportInvalid is returned when a report has error findings and a
// settlement was requested.
var ErrReportInvalid = errors.New("bookkeeping: VAT report has errors")

// settlementNamespace derives stable event ids for period settlements, so
// requesting the same settlement twice posts it once.
var settlementNamespace = uuid.MustParse("6f0c2b1e-8d7a-4c3e-9a51-2b7f0e4d9c88")

// VATReportRequest asks for the VAT return of one period.
type VATReportRequest struct {
	UserID         uuid.UUID            `json:"user_id"`
	CompanyID      uuid.UUID            `json:"company_id"`
	CompanyName    string               `json:"company_name"`
	OrgNumber      string               `json:"org_number"`
	Period         string               `json:"period"`
	PeriodEnd      time.Time            `json:"period_end"`
	Transactions   []ledger.Transaction `json:"transactions"`
	PostSettlement bool                 `json:"post_settlement"`
	// ArchiveSIE stores a SIE file of the settlement; with FinancialYear set
	// the platform's full ledger export is archived instead.
	ArchiveSIE    bool `json:"archive_sie"`
	FinancialYear int  `json:"financial_year,omitempty"`
}

// VATReportResult is the report plus what was done with it.
type VATReportResult struct {
	Report     *ledger.VATReport `json:"report"`
	ToPay      decimal.Decimal   `json:"to_pay"`
	ToRefund   decimal.Decimal   `json:"to_refund"`
	Settlement *ledger.EntrySet  `json:"settlement,omitempty"`
	Posting    *PostingResult    `json:"posting,omitempty"`
	ArchiveURI string            `json:"archive_uri,omitempty"`
}

// VATReportService builds VAT returns and their settlement vouchers.
type VATReportService struct {
	generator *ledger.Generator
	postings  *PostingService
	platform  integration.AccountingPlatform
	archive   bookkeeping.ArchiveStore
	exporter  *sie.Exporter
	logger    *zap.Logger
}

// NewVATReportService creates a VATReportService. postings, platform and
// archive may be nil when the respective features are unused.
func NewVATReportService(
	postings *PostingService,
	platform integration.AccountingPlatform,
	archive bookkeeping.ArchiveStore,
	exporter *sie.Exporter,
	logger *zap.Logger,
) *VATReportService {
	if exporter == nil {
		exporter = sie.NewExporter("ledgerflow", "1.0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VATReportService{
		generator: ledger.NewGenerator(nil),
		postings:  postings,
		platform:  platform,
		archive:   archive,
		exporter:  exporter,
		logger:    logger,
	}
}

// Generate aggregates the period and optionally posts and archives the settlement.
func (s *VATReportService) Generate(ctx context.Context, req VATReportRequest) (*VATReportResult, error) {
	if req.Period == "" {
		return nil, fmt.Errorf("%w: period is required", bookkeeping.ErrInvalidEvent)
	}
	report := ledger.BuildVATReport(req.Period, req.CompanyName, req.OrgNumber, req.Transactions)
	result := &VATReportResult{Report: report, ToPay: report.ToPay(), ToRefund: report.ToRefund()}

	settlement, err := s.generator.BuildVATSettlementEntries(report.Summary())
	switch {
	case errors.Is(err, ledger.ErrEmptyEntrySet):
		// Nothing to settle.
	case err != nil:
		return nil, err
	default:
		result.Settlement = settlement
	}

	if !req.PostSettlement && !req.ArchiveSIE {
		return result, nil
	}
	if !report.IsValid() {
		return result, ErrReportInvalid
	}

	if req.PostSettlement && result.Settlement != nil {
		if s.postings == nil {
			return nil, errors.New("bookkeeping: settlement posting is not configured")
		}
		posting, err := s.postings.Submit(ctx, SettlementEvent(req, report))
		if err != nil {
			return nil, err
		}
		result.Posting = posting
		if posting.Entries != nil {
			result.Settlement = posting.Entries
		}
	}

	if req.ArchiveSIE {
		uri, err := s.archiveSIE(ctx, req, result.Settlement)
		if err != nil {
			return nil, err
		}
		result.ArchiveURI = uri
	}
	return result, nil
}

// SettlementEvent is the financial event that books a report's settlement.
func SettlementEvent(req VATReportRequest, report *ledger.VATReport) bookkeeping.FinancialEvent {
	outgoing := make(map[int]decimal.Decimal, len(report.OutgoingVAT))
	for rate, v := range report.OutgoingVAT {
		if !v.IsZero() {
			outgoing[int(rate)] = v
		}
	}
	occurred := req.PeriodEnd
	if occurred.IsZero() {
		occurred = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return bookkeeping.FinancialEvent{
		ID:          uuid.NewSHA1(settlementNamespace, []byte(req.CompanyID.String()+"/"+req.Period)),
		UserID:      req.UserID,
		CompanyID:   req.CompanyID,
		Kind:        bookkeeping.EventVATSettlement,
		OccurredOn:  occurred,
		Description: "Momsredovisning " + req.Period,
		Currency:    bookkeeping.BookingCurrency,
		OutgoingVAT: outgoing,
		IncomingVAT: report.IncomingVAT,
		Period:      req.Period,
	}
}

func (s *VATReportService) archiveSIE(ctx context.Context, req VATReportRequest, settlement *ledger.EntrySet) (string, error) {
	if s.archive == nil {
		return "", errors.New("bookkeeping: SIE archive is not configured")
	}

	var (
		data []byte
		err  error
	)
	year := req.PeriodEnd.Year()
	if req.FinancialYear > 0 && s.platform != nil {
		key := integration.CredentialKey{UserID: req.UserID, Integration: integration.IntegrationFortnox}
		data, err = s.platform.ExportSIE(ctx, key, req.FinancialYear)
		year = req.FinancialYear
	} else {
		if req.PeriodEnd.IsZero() {
			year = time.Now().Year()
		}
		var vouchers []sie.Voucher
		if settlement != nil {
			vouchers = append(vouchers, sie.Voucher{
				Date:  req.PeriodEnd,
				Text:  settlement.Description,
				Lines: settlement.Lines,
			})
		}
		data, err = s.exporter.Export(sie.DocumentFor(req.CompanyName, req.OrgNumber, year, vouchers))
	}
	if err != nil {
		return "", err
	}

	objectKey := fmt.Sprintf("sie/%s/%s/%s.se", req.CompanyID, strconv.Itoa(year), req.Period)
	uri, err := s.archive.Put(ctx, objectKey, data, sie.ContentType)
	if err != nil {
		return "", fmt.Errorf("bookkeeping: archive SIE: %w", err)
	}
	s.logger.Info("SIE export archived",
		zap.String("company_id", req.CompanyID.String()),
		zap.String("period", req.Period),
		zap.String("uri", uri),
		zap.Int("bytes", len(data)))
	return uri, nil
}
