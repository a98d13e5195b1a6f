package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Generator builds balanced entry sets from financial events.
type Generator struct {
	classifier *Classifier
}

// NewGenerator creates a generator. A nil classifier uses the default rule table.
func NewGenerator(classifier *Classifier) *Generator {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Generator{classifier: classifier}
}

// Classifier returns the classifier used for cost lines.
func (g *Generator) Classifier() *Classifier {
	return g.classifier
}

func checkAmounts(rate VATRate, net, vat decimal.Decimal, desc string) error {
	if !rate.IsValid() {
		return &LedgerError{Reason: fmt.Errorf("%w: %d", ErrUnsupportedVATRate, int(rate)), Description: desc}
	}
	if net.IsNegative() || vat.IsNegative() {
		return &LedgerError{Reason: ErrNegativeAmount, Description: desc}
	}
	return nil
}

// BuildSaleEntries books a sale: receivable for gross against revenue and outgoing VAT.
// special marks roaming revenue, which has its own revenue account.
func (g *Generator) BuildSaleEntries(net, vat decimal.Decimal, rate VATRate, special bool) (*EntrySet, error) {
	desc := fmt.Sprintf("Försäljning %s moms", rate)
	if special {
		desc = "Roaming-intäkter"
	}
	if err := checkAmounts(rate, net, vat, desc); err != nil {
		return nil, err
	}
	net, vat = RoundMoney(net), RoundMoney(vat)
	gross := GrossAmount(net, vat)

	set := &EntrySet{Description: desc}
	set.debit(AccountReceivable, gross, desc)
	set.credit(SalesAccount(rate, special), net, desc)
	if vatAccount, ok := OutputVATAccount(rate); ok {
		set.credit(vatAccount, vat, "Utgående moms")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// BuildCostEntries books a supplier cost: classified cost account and incoming VAT
// against accounts payable.
func (g *Generator) BuildCostEntries(net, vat decimal.Decimal, rate VATRate, description string) (*EntrySet, error) {
	if err := checkAmounts(rate, net, vat, description); err != nil {
		return nil, err
	}
	net, vat = RoundMoney(net), RoundMoney(vat)
	gross := GrossAmount(net, vat)

	set := &EntrySet{Description: description}
	set.debit(g.classifier.ClassifyCost(rate, description), net, description)
	if !rate.IsZero() {
		set.debit(InputVATAccount(), vat, "Ingående moms")
	}
	set.credit(AccountPayable, gross, description)
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// BuildCostEntriesFromGross splits a gross supplier amount and books it.
func (g *Generator) BuildCostEntriesFromGross(gross decimal.Decimal, rate VATRate, description string) (*EntrySet, error) {
	net := NetFromGross(gross, rate.Percent())
	vat := RoundMoney(gross).Sub(net)
	return g.BuildCostEntries(net, vat, rate, description)
}

// BuildVATSettlementEntries moves the period's VAT balances to the settlement account.
func (g *Generator) BuildVATSettlementEntries(summary VATSummary) (*EntrySet, error) {
	desc := "Momsredovisning " + summary.Period
	set := &EntrySet{Description: desc}
	for _, rate := range []VATRate{VATRate25, VATRate12, VATRate6} {
		amount := RoundMoney(summary.OutgoingVAT[rate])
		if amount.IsZero() {
			continue
		}
		account, _ := OutputVATAccount(rate)
		if amount.IsNegative() {
			set.credit(account, amount.Neg(), "Utgående moms "+rate.String())
		} else {
			set.debit(account, amount, "Utgående moms "+rate.String())
		}
	}
	incoming := RoundMoney(summary.IncomingVAT)
	if incoming.IsPositive() {
		set.credit(AccountInputVAT, incoming, "Ingående moms")
	} else if incoming.IsNegative() {
		set.debit(AccountInputVAT, incoming.Neg(), "Ingående moms")
	}

	net := set.TotalDebit().Sub(set.TotalCredit())
	switch {
	case net.IsPositive():
		set.credit(AccountVATSettlement, net, "Moms att betala")
	case net.IsNegative():
		set.debit(AccountVATSettlement, net.Neg(), "Moms att återfå")
	}
	if len(set.Lines) == 0 {
		return nil, &LedgerError{Reason: ErrEmptyEntrySet, Description: desc}
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}
