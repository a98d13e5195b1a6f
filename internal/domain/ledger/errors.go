package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnbalanced         = errors.New("ledger: entry set does not balance")
	ErrEmptyEntrySet      = errors.New("ledger: entry set has no lines")
	ErrInvalidLine        = errors.New("ledger: invalid entry line")
	ErrNegativeAmount     = errors.New("ledger: amounts must not be negative")
	ErrUnsupportedVATRate = errors.New("ledger: unsupported VAT rate")
)

// LedgerError reports a voucher that must not be transmitted.
// It is never retried and never corrected automatically.
type LedgerError struct {
	Reason      error
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

func (e *LedgerError) Error() string {
	if errors.Is(e.Reason, ErrUnbalanced) {
		return fmt.Sprintf("%v: %q debit %s credit %s", e.Reason, e.Description,
			e.Debit.StringFixed(2), e.Credit.StringFixed(2))
	}
	return fmt.Sprintf("%v: %q", e.Reason, e.Description)
}

func (e *LedgerError) Unwrap() error {
	return e.Reason
}

// IsLedgerError reports whether err carries a LedgerError.
func IsLedgerError(err error) bool {
	var le *LedgerError
	return errors.As(err, &le)
}
