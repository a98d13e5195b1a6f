// Package bookkeeping contains the Bookkeeping bounded context.
// It carries a financial event from intake to a posted (or queued) voucher.
//
// Key concepts:
//   - FinancialEvent: one sale, cost or VAT settlement together with its AI extraction metadata
//   - ReviewItem: a voucher the guardrail blocked, waiting for a human decision
//   - AuditRecord: append-only trace of every transmission attempt
//   - TransmissionStore: guard against posting the same event twice
package bookkeeping
