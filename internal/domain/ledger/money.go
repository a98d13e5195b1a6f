package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places amounts are kept at (öre).
const MoneyPlaces int32 = 2

var (
	hundred = decimal.NewFromInt(100)

	// DefaultTolerance is the accepted difference between two amounts (1 öre).
	DefaultTolerance = decimal.New(1, -2)

	// ReportTolerance is the looser tolerance used when checking imported transactions.
	ReportTolerance = decimal.New(2, -2)
)

// RoundMoney rounds x to 2 decimal places, half away from zero.
func RoundMoney(x decimal.Decimal) decimal.Decimal {
	return x.Round(MoneyPlaces)
}

// SumRounded rounds every element before adding it.
func SumRounded(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(RoundMoney(v))
	}
	return total
}

// VATAmount returns net * rate/100 rounded.
func VATAmount(net, ratePercent decimal.Decimal) decimal.Decimal {
	return RoundMoney(net.Mul(ratePercent).Div(hundred))
}

// GrossAmount returns net + vat rounded.
func GrossAmount(net, vat decimal.Decimal) decimal.Decimal {
	return RoundMoney(net.Add(vat))
}

// NetFromGross strips VAT from a gross amount.
func NetFromGross(gross, ratePercent decimal.Decimal) decimal.Decimal {
	divisor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	return RoundMoney(gross.Div(divisor))
}

// WithinTolerance reports whether |expected - actual| <= tol.
func WithinTolerance(expected, actual, tol decimal.Decimal) bool {
	return expected.Sub(actual).Abs().LessThanOrEqual(tol)
}

// ValidationResult is the outcome of a soft check. Checks never fail with an error.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidateVATCalculation checks that vat matches rate% of net.
func ValidateVATCalculation(net, vat, ratePercent, tol decimal.Decimal) ValidationResult {
	expected := VATAmount(net, ratePercent)
	if !WithinTolerance(expected, vat, tol) {
		return ValidationResult{
			Field: "vat",
			Message: fmt.Sprintf("Momsbelopp %s stämmer inte med %s%% av %s (förväntat %s)",
				vat.StringFixed(2), ratePercent.String(), net.StringFixed(2), expected.StringFixed(2)),
		}
	}
	return ValidationResult{Valid: true}
}

// ValidateGrossAmount checks that gross = net + vat.
func ValidateGrossAmount(net, vat, gross, tol decimal.Decimal) ValidationResult {
	expected := net.Add(vat)
	if !WithinTolerance(expected, gross, tol) {
		return ValidationResult{
			Field: "gross",
			Message: fmt.Sprintf("Bruttobelopp %s ≠ netto %s + moms %s (diff: %s)",
				gross.StringFixed(2), net.StringFixed(2), vat.StringFixed(2),
				gross.Sub(expected).Abs().StringFixed(2)),
		}
	}
	return ValidationResult{Valid: true}
}
