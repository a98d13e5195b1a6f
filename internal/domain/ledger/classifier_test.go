package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_ClassifyCost(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name        string
		rate        VATRate
		description string
		want        Account
	}{
		{"insurance", VATRate0, "Länsförsäkringar företagsförsäkring", AccountInsurance},
		{"insurance english", VATRate25, "Liability INSURANCE 2025", AccountInsurance},
		{"bank fee", VATRate0, "Bankavgift januari", AccountBankFees},
		{"accounting before consulting", VATRate25, "Redovisningskonsult AB", AccountAccounting},
		{"consulting", VATRate25, "Konsultarvode projekt", AccountConsulting},
		{"platform fee", VATRate25, "Plattformsavgift laddoperatör", AccountPlatformFees},
		{"subscription", VATRate25, "Abonnemang mobil", AccountSubscriptions},
		{"it services", VATRate25, "Hosting december", AccountITServices},
		{"generic external services", VATRate25, "Fortum elräkning", AccountExternalServices},
		{"zero rate without keyword", VATRate0, "Roamingavgift partner", AccountExternalZeroRated},
		{"zero rate with keyword", VATRate0, "Subscription fee", AccountSubscriptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ClassifyCost(tt.rate, tt.description))
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier(nil)
	first := c.ClassifyCost(VATRate25, "Bokföring och konsult")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.ClassifyCost(VATRate25, "Bokföring och konsult"))
	}
	assert.Equal(t, AccountAccounting, first)
}

func TestClassifier_Explain(t *testing.T) {
	c := NewClassifier(nil)
	acc, rule := c.Explain(VATRate25, "Försäkring bil")
	assert.Equal(t, AccountInsurance, acc)
	assert.Equal(t, "insurance", rule)

	_, rule = c.Explain(VATRate25, "Okänd leverantör")
	assert.Empty(t, rule)
}

func TestClassifier_CustomRules(t *testing.T) {
	c := NewClassifier([]ClassificationRule{
		{Name: "consulting", Match: Keywords("konsult"), Account: AccountConsulting},
		{Name: "accounting", Match: Keywords("redovisning"), Account: AccountAccounting},
	})
	// Order of the table decides.
	assert.Equal(t, AccountConsulting, c.ClassifyCost(VATRate25, "Redovisningskonsult AB"))
}

func TestSalesAndVATAccounts(t *testing.T) {
	assert.Equal(t, AccountSales25, SalesAccount(VATRate25, false))
	assert.Equal(t, AccountSales12, SalesAccount(VATRate12, false))
	assert.Equal(t, AccountSales6, SalesAccount(VATRate6, false))
	assert.Equal(t, AccountSalesZero, SalesAccount(VATRate0, false))
	assert.Equal(t, AccountSalesRoaming, SalesAccount(VATRate25, true))

	acc, ok := OutputVATAccount(VATRate6)
	assert.True(t, ok)
	assert.Equal(t, "2631", acc.Code)
	_, ok = OutputVATAccount(VATRate0)
	assert.False(t, ok)
	assert.Equal(t, "2641", InputVATAccount().Code)
}

func TestParseVATRate(t *testing.T) {
	r, err := ParseVATRate(d("12"))
	assert.NoError(t, err)
	assert.Equal(t, VATRate12, r)

	_, err = ParseVATRate(d("7"))
	assert.ErrorIs(t, err, ErrUnsupportedVATRate)
	_, err = ParseVATRate(d("12.5"))
	assert.ErrorIs(t, err, ErrUnsupportedVATRate)
}

func TestValidateBASAccount(t *testing.T) {
	assert.True(t, ValidateBASAccount("1510").Valid)
	assert.True(t, ValidateBASAccount("8999").Valid)
	assert.False(t, ValidateBASAccount("9100").Valid)
	assert.False(t, ValidateBASAccount("151").Valid)
	assert.False(t, ValidateBASAccount("0510").Valid)
}

func TestChartAccounts_Sorted(t *testing.T) {
	accounts := ChartAccounts()
	for i := 1; i < len(accounts); i++ {
		assert.Less(t, accounts[i-1].Code, accounts[i].Code)
	}
	acc, ok := LookupAccount("6590")
	assert.True(t, ok)
	assert.Equal(t, "Övriga externa tjänster", acc.Name)
}
