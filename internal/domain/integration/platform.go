package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// VoucherRequest is a complete voucher handed to the platform in one call.
type VoucherRequest struct {
	Description     string
	VoucherSeries   string
	TransactionDate time.Time
	Rows            []VoucherRowRequest
}

// VoucherRowRequest is one voucher row.
type VoucherRowRequest struct {
	Account     int
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// VoucherReceipt is what the platform assigned to an accepted voucher.
type VoucherReceipt struct {
	Series          string
	Number          int
	Year            int
	TransactionDate time.Time
}

// Customer is a remote customer record.
type Customer struct {
	Number         string
	Name           string
	OrganisationNo string
	Email          string
	Active         bool
}

// RemoteAccount is a chart entry on the platform.
type RemoteAccount struct {
	Number    int
	Desc      string
	Active    bool
	VATCode   string
	BalanceBF decimal.Decimal
	BalanceCF decimal.Decimal
	SRUCode   int
	Year      int
}

// InvoiceRow is one invoice line.
type InvoiceRow struct {
	ArticleNumber     string
	Description       string
	DeliveredQuantity decimal.Decimal
	Price             decimal.Decimal
	VAT               int
	AccountNumber     int
}

// InvoiceRequest creates a customer invoice.
type InvoiceRequest struct {
	CustomerNumber string
	InvoiceDate    time.Time
	DueDate        time.Time
	Currency       string
	Rows           []InvoiceRow
}

// InvoiceReceipt is the created invoice.
type InvoiceReceipt struct {
	DocumentNumber string
	Total          decimal.Decimal
	TotalVAT       decimal.Decimal
}

// AccountingPlatform is the port to the remote accounting system.
type AccountingPlatform interface {
	CreateVoucher(ctx context.Context, key CredentialKey, voucher VoucherRequest) (*VoucherReceipt, error)
	GetVoucher(ctx context.Context, key CredentialKey, series string, number int) (*VoucherRequest, error)
	GetCustomers(ctx context.Context, key CredentialKey) ([]Customer, error)
	GetAccounts(ctx context.Context, key CredentialKey, financialYear int) ([]RemoteAccount, error)
	CreateInvoice(ctx context.Context, key CredentialKey, invoice InvoiceRequest) (*InvoiceReceipt, error)
	ExportSIE(ctx context.Context, key CredentialKey, financialYear int) ([]byte, error)
}
