package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind tells sales and costs apart.
type TransactionKind string

const (
	TransactionSale TransactionKind = "sale"
	TransactionCost TransactionKind = "cost"
)

// Transaction is a normalized line of a period's transaction export.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Kind        TransactionKind `json:"kind"`
	Net         decimal.Decimal `json:"net"`
	VAT         decimal.Decimal `json:"vat"`
	Gross       decimal.Decimal `json:"gross"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	Roaming     bool            `json:"roaming"`
}

// Severity of a report finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a report validation message.
type Finding struct {
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// VATSummary holds the totals the settlement voucher is built from.
type VATSummary struct {
	Period      string
	OutgoingVAT map[VATRate]decimal.Decimal
	IncomingVAT decimal.Decimal
}

// VATReport is the per-rate VAT return for one period.
type VATReport struct {
	Period        string                      `json:"period"`
	CompanyName   string                      `json:"company_name"`
	OrgNumber     string                      `json:"org_number"`
	Sales         map[VATRate]decimal.Decimal `json:"sales"`
	OutgoingVAT   map[VATRate]decimal.Decimal `json:"outgoing_vat"`
	Purchases     map[VATRate]decimal.Decimal `json:"purchases"`
	IncomingVAT   decimal.Decimal             `json:"incoming_vat"`
	TotalOutgoing decimal.Decimal             `json:"total_outgoing_vat"`
	NetVAT        decimal.Decimal             `json:"net_vat"`
	Findings      []Finding                   `json:"findings"`
}

// IsValid is false when any finding is an error.
func (r *VATReport) IsValid() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return false
		}
	}
	return true
}

// ToPay is the positive part of NetVAT.
func (r *VATReport) ToPay() decimal.Decimal {
	if r.NetVAT.IsPositive() {
		return r.NetVAT
	}
	return decimal.Zero
}

// ToRefund is the negated negative part of NetVAT.
func (r *VATReport) ToRefund() decimal.Decimal {
	if r.NetVAT.IsNegative() {
		return r.NetVAT.Neg()
	}
	return decimal.Zero
}

// Summary returns the settlement input for this report.
func (r *VATReport) Summary() VATSummary {
	out := make(map[VATRate]decimal.Decimal, len(r.OutgoingVAT))
	for k, v := range r.OutgoingVAT {
		out[k] = v
	}
	return VATSummary{Period: r.Period, OutgoingVAT: out, IncomingVAT: r.IncomingVAT}
}

func emptyRateMap() map[VATRate]decimal.Decimal {
	m := make(map[VATRate]decimal.Decimal, len(SupportedVATRates))
	for _, r := range SupportedVATRates {
		m[r] = decimal.Zero
	}
	return m
}

// BuildVATReport aggregates transactions into a VAT report. Unknown rates are
// reported as warnings and counted as 25%.
func BuildVATReport(period, companyName, orgNumber string, txs []Transaction) *VATReport {
	report := &VATReport{
		Period:        period,
		CompanyName:   companyName,
		OrgNumber:     orgNumber,
		Sales:         emptyRateMap(),
		OutgoingVAT:   emptyRateMap(),
		Purchases:     emptyRateMap(),
		IncomingVAT:   decimal.Zero,
		TotalOutgoing: decimal.Zero,
		NetVAT:        decimal.Zero,
	}
	if orgNumber != "" {
		if res := ValidateOrgNumber(orgNumber); !res.Valid {
			report.Findings = append(report.Findings, Finding{Field: "org_number", Message: res.Message, Severity: SeverityError})
		}
	}

	for _, tx := range txs {
		field := "transaction_" + tx.ID
		rate, err := ParseVATRate(tx.RatePercent)
		if err != nil {
			report.Findings = append(report.Findings, Finding{
				Field:    field,
				Message:  fmt.Sprintf("Okänd momssats %s%%, räknas som 25%%", tx.RatePercent.String()),
				Severity: SeverityWarning,
			})
			rate = VATRate25
		}
		net := RoundMoney(tx.Net.Abs())
		vat := RoundMoney(tx.VAT.Abs())

		switch tx.Kind {
		case TransactionSale:
			if !rate.IsZero() {
				if res := ValidateVATCalculation(net, vat, rate.Percent(), ReportTolerance); !res.Valid {
					report.Findings = append(report.Findings, Finding{Field: field, Message: res.Message, Severity: SeverityWarning})
				}
			}
			if !tx.Gross.IsZero() {
				if res := ValidateGrossAmount(net, vat, RoundMoney(tx.Gross.Abs()), ReportTolerance); !res.Valid {
					report.Findings = append(report.Findings, Finding{Field: field, Message: res.Message, Severity: SeverityWarning})
				}
			}
			report.Sales[rate] = report.Sales[rate].Add(net)
			if !rate.IsZero() {
				report.OutgoingVAT[rate] = report.OutgoingVAT[rate].Add(vat)
			}
		case TransactionCost:
			report.Purchases[rate] = report.Purchases[rate].Add(net)
			if !rate.IsZero() {
				report.IncomingVAT = report.IncomingVAT.Add(vat)
			}
		default:
			report.Findings = append(report.Findings, Finding{
				Field:    field,
				Message:  fmt.Sprintf("Okänd transaktionstyp %q", tx.Kind),
				Severity: SeverityError,
			})
		}
	}

	report.TotalOutgoing = SumRounded([]decimal.Decimal{
		report.OutgoingVAT[VATRate25], report.OutgoingVAT[VATRate12], report.OutgoingVAT[VATRate6],
	})
	report.NetVAT = RoundMoney(report.TotalOutgoing.Sub(report.IncomingVAT))
	return report
}
