package fortnox

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Vouchers
// ---------------------------------------------------------------------------

type voucherEnvelope struct {
	Voucher voucherPayload `json:"Voucher"`
}

type voucherPayload struct {
	Description     string              `json:"Description"`
	VoucherSeries   string              `json:"VoucherSeries"`
	TransactionDate string              `json:"TransactionDate"`
	VoucherNumber   int                 `json:"VoucherNumber,omitempty"`
	Year            int                 `json:"Year,omitempty"`
	VoucherRows     []voucherRowPayload `json:"VoucherRows"`
}

type voucherRowPayload struct {
	Account     int         `json:"Account"`
	Debit       json.Number `json:"Debit"`
	Credit      json.Number `json:"Credit"`
	Description string      `json:"Description,omitempty"`
}

func amount(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func parseAmount(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ---------------------------------------------------------------------------
// Customers, accounts, invoices
// ---------------------------------------------------------------------------

type metaInformation struct {
	TotalResources int `json:"@TotalResources"`
	TotalPages     int `json:"@TotalPages"`
	CurrentPage    int `json:"@CurrentPage"`
}

type customerPayload struct {
	CustomerNumber     string `json:"CustomerNumber"`
	Name               string `json:"Name"`
	OrganisationNumber string `json:"OrganisationNumber"`
	Email              string `json:"Email"`
	Active             bool   `json:"Active"`
}

type customersResponse struct {
	Customers       []customerPayload `json:"Customers"`
	MetaInformation metaInformation   `json:"MetaInformation"`
}

type accountPayload struct {
	Number                int         `json:"Number"`
	Description           string      `json:"Description"`
	Active                bool        `json:"Active"`
	VATCode               string      `json:"VATCode"`
	BalanceBroughtForward json.Number `json:"BalanceBroughtForward"`
	BalanceCarriedForward json.Number `json:"BalanceCarriedForward"`
	SRU                   int         `json:"SRU"`
	Year                  int         `json:"Year"`
}

type accountsResponse struct {
	Accounts        []accountPayload `json:"Accounts"`
	MetaInformation metaInformation  `json:"MetaInformation"`
}

type invoiceEnvelope struct {
	Invoice invoicePayload `json:"Invoice"`
}

type invoicePayload struct {
	CustomerNumber string              `json:"CustomerNumber"`
	InvoiceDate    string              `json:"InvoiceDate,omitempty"`
	DueDate        string              `json:"DueDate,omitempty"`
	Currency       string              `json:"Currency,omitempty"`
	InvoiceRows    []invoiceRowPayload `json:"InvoiceRows,omitempty"`
	DocumentNumber string              `json:"DocumentNumber,omitempty"`
	Total          json.Number         `json:"Total,omitempty"`
	TotalVAT       json.Number         `json:"TotalVAT,omitempty"`
}

type invoiceRowPayload struct {
	ArticleNumber     string      `json:"ArticleNumber,omitempty"`
	Description       string      `json:"Description,omitempty"`
	DeliveredQuantity json.Number `json:"DeliveredQuantity"`
	Price             json.Number `json:"Price"`
	VAT               int         `json:"VAT"`
	AccountNumber     int         `json:"AccountNumber,omitempty"`
}

// ---------------------------------------------------------------------------
// Errors and tokens
// ---------------------------------------------------------------------------

type errorResponse struct {
	ErrorInformation struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"ErrorInformation"`
	// OAuth endpoint errors
	OAuthError       string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
