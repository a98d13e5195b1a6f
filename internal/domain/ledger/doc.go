// Package ledger contains the Ledger bounded context.
// It turns financial events into balanced double-entry vouchers using the Swedish BAS chart.
//
// Key concepts:
//   - Money math: every amount is rounded to öre (2 places, half-up) at the point of computation
//   - Account: BAS chart entry; Classifier maps cost descriptions to accounts through an ordered rule table
//   - EntrySet: one voucher; sum(debit) must equal sum(credit) within one öre
//   - Generator: builds sale, cost and VAT settlement entry sets and refuses to return unbalanced ones
//   - VATReport: per-rate aggregation of a period's transactions (momsdeklaration)
package ledger
