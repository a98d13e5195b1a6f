package ledger

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// VAT rates
// ---------------------------------------------------------------------------

// VATRate is a Swedish VAT rate in whole percent.
type VATRate int

const (
	VATRate25 VATRate = 25
	VATRate12 VATRate = 12
	VATRate6  VATRate = 6
	VATRate0  VATRate = 0
)

// SupportedVATRates lists the rates in reporting order.
var SupportedVATRates = []VATRate{VATRate25, VATRate12, VATRate6, VATRate0}

// IsValid returns true for 25, 12, 6 and 0.
func (r VATRate) IsValid() bool {
	switch r {
	case VATRate25, VATRate12, VATRate6, VATRate0:
		return true
	}
	return false
}

// Percent returns the rate as a decimal percentage.
func (r VATRate) Percent() decimal.Decimal {
	return decimal.NewFromInt(int64(r))
}

// IsZero reports whether no VAT applies.
func (r VATRate) IsZero() bool {
	return r == VATRate0
}

func (r VATRate) String() string {
	return fmt.Sprintf("%d%%", int(r))
}

// ParseVATRate converts a percentage into a supported rate.
func ParseVATRate(percent decimal.Decimal) (VATRate, error) {
	if !percent.Equal(percent.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedVATRate, percent.String())
	}
	r := VATRate(percent.IntPart())
	if !r.IsValid() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedVATRate, percent.String())
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// BAS chart of accounts
// ---------------------------------------------------------------------------

// Account is an entry of the BAS chart.
type Account struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var (
	AccountReceivable        = Account{Code: "1510", Name: "Kundfordringar"}
	AccountBank              = Account{Code: "1930", Name: "Företagskonto/checkkonto"}
	AccountPayable           = Account{Code: "2440", Name: "Leverantörsskulder"}
	AccountOutputVAT25       = Account{Code: "2611", Name: "Utgående moms 25%"}
	AccountOutputVAT12       = Account{Code: "2621", Name: "Utgående moms 12%"}
	AccountOutputVAT6        = Account{Code: "2631", Name: "Utgående moms 6%"}
	AccountInputVAT          = Account{Code: "2641", Name: "Ingående moms"}
	AccountVATSettlement     = Account{Code: "2650", Name: "Momsredovisning"}
	AccountSales25Goods      = Account{Code: "3001", Name: "Försäljning inom Sverige, 25% moms"}
	AccountSales12           = Account{Code: "3002", Name: "Försäljning inom Sverige, 12% moms"}
	AccountSales6            = Account{Code: "3003", Name: "Försäljning inom Sverige, 6% moms"}
	AccountSales25           = Account{Code: "3010", Name: "Försäljning tjänster 25% moms"}
	AccountSalesZero         = Account{Code: "3011", Name: "Försäljning tjänster momsfri"}
	AccountSalesRoaming      = Account{Code: "3012", Name: "Roaming-intäkter"}
	AccountSalesServicesEU   = Account{Code: "3045", Name: "Försäljning tjänster till annat EU-land"}
	AccountInsurance         = Account{Code: "6310", Name: "Företagsförsäkringar"}
	AccountAccounting        = Account{Code: "6530", Name: "Redovisningstjänster"}
	AccountITServices        = Account{Code: "6540", Name: "IT-tjänster"}
	AccountConsulting        = Account{Code: "6550", Name: "Konsultarvoden"}
	AccountBankFees          = Account{Code: "6570", Name: "Bankkostnader"}
	AccountExternalServices  = Account{Code: "6590", Name: "Övriga externa tjänster"}
	AccountPlatformFees      = Account{Code: "6591", Name: "Plattformsavgifter"}
	AccountSubscriptions     = Account{Code: "6592", Name: "Abonnemangskostnader"}
	AccountExternalZeroRated = Account{Code: "6593", Name: "Övriga externa tjänster, momsfria"}
)

var chart = func() map[string]Account {
	m := make(map[string]Account)
	for _, a := range []Account{
		AccountReceivable, AccountBank, AccountPayable,
		AccountOutputVAT25, AccountOutputVAT12, AccountOutputVAT6, AccountInputVAT, AccountVATSettlement,
		AccountSales25Goods, AccountSales12, AccountSales6, AccountSales25, AccountSalesZero,
		AccountSalesRoaming, AccountSalesServicesEU,
		AccountInsurance, AccountAccounting, AccountITServices, AccountConsulting, AccountBankFees,
		AccountExternalServices, AccountPlatformFees, AccountSubscriptions, AccountExternalZeroRated,
	} {
		m[a.Code] = a
	}
	return m
}()

// LookupAccount returns the chart entry for code.
func LookupAccount(code string) (Account, bool) {
	a, ok := chart[code]
	return a, ok
}

// ChartAccounts returns the chart sorted by code.
func ChartAccounts() []Account {
	out := make([]Account, 0, len(chart))
	for _, a := range chart {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SalesAccount picks the revenue account for a sale.
// Roaming revenue is booked separately regardless of rate.
func SalesAccount(rate VATRate, special bool) Account {
	if special {
		return AccountSalesRoaming
	}
	switch rate {
	case VATRate12:
		return AccountSales12
	case VATRate6:
		return AccountSales6
	case VATRate0:
		return AccountSalesZero
	default:
		return AccountSales25
	}
}

// OutputVATAccount returns the outgoing VAT account. ok is false for 0%.
func OutputVATAccount(rate VATRate) (Account, bool) {
	switch rate {
	case VATRate25:
		return AccountOutputVAT25, true
	case VATRate12:
		return AccountOutputVAT12, true
	case VATRate6:
		return AccountOutputVAT6, true
	}
	return Account{}, false
}

// InputVATAccount returns the deductible VAT account.
func InputVATAccount() Account {
	return AccountInputVAT
}

var basAccountPattern = regexp.MustCompile(`^[1-8]\d{3}$`)

// ValidateBASAccount checks the shape of a BAS account code.
func ValidateBASAccount(code string) ValidationResult {
	if !basAccountPattern.MatchString(code) {
		return ValidationResult{Field: "account", Message: "BAS-konto måste vara 4 siffror och börja med 1-8"}
	}
	return ValidationResult{Valid: true}
}
