package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerflow/backend/internal/domain/integration"
)

// Line is one row of a voucher. Exactly one of Debit and Credit is non-zero.
type Line struct {
	Account     Account         `json:"account"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
}

// EntrySet is the ordered set of lines making up one voucher.
type EntrySet struct {
	Description string `json:"description"`
	Lines       []Line `json:"lines"`
	// VoucherRef is the identifier assigned by the accounting platform after transmission.
	VoucherRef string `json:"voucher_ref,omitempty"`
}

func (s *EntrySet) debit(a Account, amount decimal.Decimal, desc string) {
	s.Lines = append(s.Lines, Line{Account: a, Debit: RoundMoney(amount), Credit: decimal.Zero, Description: desc})
}

func (s *EntrySet) credit(a Account, amount decimal.Decimal, desc string) {
	s.Lines = append(s.Lines, Line{Account: a, Debit: decimal.Zero, Credit: RoundMoney(amount), Description: desc})
}

// TotalDebit sums the debit side.
func (s *EntrySet) TotalDebit() decimal.Decimal {
	vals := make([]decimal.Decimal, len(s.Lines))
	for i, l := range s.Lines {
		vals[i] = l.Debit
	}
	return SumRounded(vals)
}

// TotalCredit sums the credit side.
func (s *EntrySet) TotalCredit() decimal.Decimal {
	vals := make([]decimal.Decimal, len(s.Lines))
	for i, l := range s.Lines {
		vals[i] = l.Credit
	}
	return SumRounded(vals)
}

// IsBalanced reports whether debit and credit agree within one öre.
func (s *EntrySet) IsBalanced() bool {
	return WithinTolerance(s.TotalDebit(), s.TotalCredit(), DefaultTolerance)
}

// Validate checks line shape and the balance invariant.
func (s *EntrySet) Validate() error {
	if len(s.Lines) == 0 {
		return &LedgerError{Reason: ErrEmptyEntrySet, Description: s.Description}
	}
	for i, l := range s.Lines {
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return &LedgerError{Reason: fmt.Errorf("%w (line %d)", ErrNegativeAmount, i), Description: s.Description}
		}
		if !ValidateBASAccount(l.Account.Code).Valid {
			return &LedgerError{Reason: fmt.Errorf("%w: account %q on line %d", ErrInvalidLine, l.Account.Code, i), Description: s.Description}
		}
		if !l.Debit.IsZero() && !l.Credit.IsZero() {
			return &LedgerError{Reason: fmt.Errorf("%w: line %d has both debit and credit", ErrInvalidLine, i), Description: s.Description}
		}
	}
	if !s.IsBalanced() {
		return &LedgerError{
			Reason:      ErrUnbalanced,
			Description: s.Description,
			Debit:       s.TotalDebit(),
			Credit:      s.TotalCredit(),
		}
	}
	return nil
}

// IsTransmitted reports whether the platform has accepted the voucher.
func (s *EntrySet) IsTransmitted() bool {
	return s.VoucherRef != ""
}

// MarkTransmitted records the platform's voucher reference.
func (s *EntrySet) MarkTransmitted(series string, number int) {
	s.VoucherRef = series + strconv.Itoa(number)
}

// ToVoucher maps the entry set to the platform voucher shape.
func (s *EntrySet) ToVoucher(series string, date time.Time, description string) (integration.VoucherRequest, error) {
	if err := s.Validate(); err != nil {
		return integration.VoucherRequest{}, err
	}
	if description == "" {
		description = s.Description
	}
	v := integration.VoucherRequest{
		Description:     description,
		VoucherSeries:   series,
		TransactionDate: date,
		Rows:            make([]integration.VoucherRowRequest, 0, len(s.Lines)),
	}
	for _, l := range s.Lines {
		code, err := strconv.Atoi(l.Account.Code)
		if err != nil {
			return integration.VoucherRequest{}, &LedgerError{Reason: fmt.Errorf("%w: account %q", ErrInvalidLine, l.Account.Code), Description: s.Description}
		}
		v.Rows = append(v.Rows, integration.VoucherRowRequest{Account: code, Debit: l.Debit, Credit: l.Credit, Description: l.Description})
	}
	return v, nil
}
