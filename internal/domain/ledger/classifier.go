package ledger

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ClassificationRule maps a matching cost description to an account.
type ClassificationRule struct {
	Name    string
	Match   func(description string) bool
	Account Account
}

// Keywords builds a predicate matching any of the keywords, case-insensitively.
func Keywords(words ...string) func(string) bool {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = lowerSwedish(w)
	}
	return func(description string) bool {
		d := lowerSwedish(description)
		for _, w := range lowered {
			if strings.Contains(d, w) {
				return true
			}
		}
		return false
	}
}

// lowerSwedish folds case with Swedish rules. Casers are not shared between goroutines.
func lowerSwedish(s string) string {
	return cases.Lower(language.Swedish).String(s)
}

// DefaultCostRules is evaluated top-down. Narrow categories must stay above
// the broad ones they overlap with (accounting before consulting).
func DefaultCostRules() []ClassificationRule {
	return []ClassificationRule{
		{Name: "insurance", Match: Keywords("försäkring", "insurance"), Account: AccountInsurance},
		{Name: "bank_fee", Match: Keywords("bankavgift", "bankkostnad", "bank fee", "bank charge"), Account: AccountBankFees},
		{Name: "accounting", Match: Keywords("redovisning", "bokföring", "revision", "accounting", "bookkeeping"), Account: AccountAccounting},
		{Name: "platform_fee", Match: Keywords("plattformsavgift", "platform fee", "transaktionsavgift"), Account: AccountPlatformFees},
		{Name: "subscription", Match: Keywords("abonnemang", "prenumeration", "subscription"), Account: AccountSubscriptions},
		{Name: "it_services", Match: Keywords("it-tjänst", "hosting", "webbhotell", "software", "licens"), Account: AccountITServices},
		{Name: "consulting", Match: Keywords("konsult", "consulting", "advisory"), Account: AccountConsulting},
	}
}

// Classifier assigns cost accounts. It is deterministic and safe for concurrent use.
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier creates a classifier; nil rules means DefaultCostRules.
func NewClassifier(rules []ClassificationRule) *Classifier {
	if rules == nil {
		rules = DefaultCostRules()
	}
	return &Classifier{rules: rules}
}

// ClassifyCost returns the first matching rule's account. Unmatched zero-rated
// costs go to the dedicated zero-rate account, everything else to external services.
func (c *Classifier) ClassifyCost(rate VATRate, description string) Account {
	account, _ := c.Explain(rate, description)
	return account
}

// Explain is ClassifyCost that also returns the matched rule name ("" for fallbacks).
func (c *Classifier) Explain(rate VATRate, description string) (Account, string) {
	for _, r := range c.rules {
		if r.Match(description) {
			return r.Account, r.Name
		}
	}
	if rate.IsZero() {
		return AccountExternalZeroRated, ""
	}
	return AccountExternalServices, ""
}
