package fortnox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/infrastructure/resilience"
)

// maxResponseSize is the maximum allowed response size from Fortnox (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxPages bounds paginated listings
const maxPages = 100

// Observer receives per-operation call statistics.
type Observer interface {
	ObserveCall(ctx context.Context, operation string, kind integration.ErrorKind, d time.Duration)
	ObserveRetries(ctx context.Context, operation string, retries int)
}

// Slotter is the rate limiter every outbound call passes through.
type Slotter interface {
	AwaitSlot(ctx context.Context) error
}

// Client implements integration.AccountingPlatform against the Fortnox REST API.
// Every attempt waits for a rate-limit slot, fetches a fresh access token and
// is retried by the shared Retrier when the failure is retryable. POSTs are
// retried only after a rate-limit rejection, so one CreateVoucher call sends
// at most one request the server may have booked.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    Slotter
	retrier    *resilience.Retrier
	tokens     integration.TokenSource
	tracer     trace.Tracer
	observer   Observer
	logger     *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) ClientOption {
	return func(c *Client) { c.tracer = t }
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Fortnox API client.
func NewClient(config *Config, limiter Slotter, retrier *resilience.Retrier, tokens integration.TokenSource, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		config:     config,
		httpClient: &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
		limiter:    limiter,
		retrier:    retrier,
		tokens:     tokens,
		tracer:     otel.Tracer("github.com/ledgerflow/backend/internal/infrastructure/fortnox"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = resilience.NewSlidingWindowLimiter(resilience.DefaultLimiterConfig())
	}
	if c.retrier == nil {
		c.retrier = resilience.NewRetrier(resilience.DefaultRetryConfig())
	}
	return c, nil
}

// VoucherSeries returns the configured series for new vouchers.
func (c *Client) VoucherSeries() string {
	return c.config.VoucherSeries
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// CreateVoucher posts one complete voucher.
func (c *Client) CreateVoucher(ctx context.Context, key integration.CredentialKey, v integration.VoucherRequest) (*integration.VoucherReceipt, error) {
	series := v.VoucherSeries
	if series == "" {
		series = c.config.VoucherSeries
	}
	payload := voucherEnvelope{Voucher: voucherPayload{
		Description:     v.Description,
		VoucherSeries:   series,
		TransactionDate: v.TransactionDate.Format(dateLayout),
		VoucherRows:     make([]voucherRowPayload, 0, len(v.Rows)),
	}}
	for _, r := range v.Rows {
		payload.Voucher.VoucherRows = append(payload.Voucher.VoucherRows, voucherRowPayload{
			Account:     r.Account,
			Debit:       amount(r.Debit),
			Credit:      amount(r.Credit),
			Description: r.Description,
		})
	}

	var out voucherEnvelope
	if err := c.doJSON(ctx, "create_voucher", key, http.MethodPost, "/vouchers", nil, payload, &out); err != nil {
		return nil, err
	}
	receipt := &integration.VoucherReceipt{
		Series: out.Voucher.VoucherSeries,
		Number: out.Voucher.VoucherNumber,
		Year:   out.Voucher.Year,
	}
	if t, err := time.Parse(dateLayout, out.Voucher.TransactionDate); err == nil {
		receipt.TransactionDate = t
	}
	if receipt.Number == 0 {
		return nil, integration.NewError(integration.KindTransient, "fortnox: voucher response without voucher number")
	}
	return receipt, nil
}

// GetVoucher fetches a voucher by series and number.
func (c *Client) GetVoucher(ctx context.Context, key integration.CredentialKey, series string, number int) (*integration.VoucherRequest, error) {
	var out voucherEnvelope
	path := "/vouchers/" + url.PathEscape(series) + "/" + strconv.Itoa(number)
	if err := c.doJSON(ctx, "get_voucher", key, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	v := &integration.VoucherRequest{
		Description:   out.Voucher.Description,
		VoucherSeries: out.Voucher.VoucherSeries,
	}
	if t, err := time.Parse(dateLayout, out.Voucher.TransactionDate); err == nil {
		v.TransactionDate = t
	}
	for _, r := range out.Voucher.VoucherRows {
		v.Rows = append(v.Rows, integration.VoucherRowRequest{
			Account:     r.Account,
			Debit:       parseAmount(r.Debit),
			Credit:      parseAmount(r.Credit),
			Description: r.Description,
		})
	}
	return v, nil
}

// GetCustomers lists all customers, following pagination.
func (c *Client) GetCustomers(ctx context.Context, key integration.CredentialKey) ([]integration.Customer, error) {
	var customers []integration.Customer
	for page := 1; page <= maxPages; page++ {
		q := url.Values{"page": {strconv.Itoa(page)}}
		var out customersResponse
		if err := c.doJSON(ctx, "get_customers", key, http.MethodGet, "/customers", q, nil, &out); err != nil {
			return nil, err
		}
		for _, cp := range out.Customers {
			customers = append(customers, integration.Customer{
				Number:         cp.CustomerNumber,
				Name:           cp.Name,
				OrganisationNo: cp.OrganisationNumber,
				Email:          cp.Email,
				Active:         cp.Active,
			})
		}
		if out.MetaInformation.TotalPages <= page {
			break
		}
	}
	return customers, nil
}

// GetAccounts lists the chart of accounts for a financial year (0 = current).
func (c *Client) GetAccounts(ctx context.Context, key integration.CredentialKey, financialYear int) ([]integration.RemoteAccount, error) {
	var accounts []integration.RemoteAccount
	for page := 1; page <= maxPages; page++ {
		q := url.Values{"page": {strconv.Itoa(page)}}
		if financialYear > 0 {
			q.Set("financialyear", strconv.Itoa(financialYear))
		}
		var out accountsResponse
		if err := c.doJSON(ctx, "get_accounts", key, http.MethodGet, "/accounts", q, nil, &out); err != nil {
			return nil, err
		}
		for _, a := range out.Accounts {
			accounts = append(accounts, integration.RemoteAccount{
				Number:    a.Number,
				Desc:      a.Description,
				Active:    a.Active,
				VATCode:   a.VATCode,
				BalanceBF: parseAmount(a.BalanceBroughtForward),
				BalanceCF: parseAmount(a.BalanceCarriedForward),
				SRUCode:   a.SRU,
				Year:      a.Year,
			})
		}
		if out.MetaInformation.TotalPages <= page {
			break
		}
	}
	return accounts, nil
}

// CreateInvoice creates a customer invoice.
func (c *Client) CreateInvoice(ctx context.Context, key integration.CredentialKey, inv integration.InvoiceRequest) (*integration.InvoiceReceipt, error) {
	payload := invoiceEnvelope{Invoice: invoicePayload{
		CustomerNumber: inv.CustomerNumber,
		Currency:       inv.Currency,
	}}
	if !inv.InvoiceDate.IsZero() {
		payload.Invoice.InvoiceDate = inv.InvoiceDate.Format(dateLayout)
	}
	if !inv.DueDate.IsZero() {
		payload.Invoice.DueDate = inv.DueDate.Format(dateLayout)
	}
	for _, r := range inv.Rows {
		payload.Invoice.InvoiceRows = append(payload.Invoice.InvoiceRows, invoiceRowPayload{
			ArticleNumber:     r.ArticleNumber,
			Description:       r.Description,
			DeliveredQuantity: json.Number(r.DeliveredQuantity.String()),
			Price:             amount(r.Price),
			VAT:               r.VAT,
			AccountNumber:     r.AccountNumber,
		})
	}

	var out invoiceEnvelope
	if err := c.doJSON(ctx, "create_invoice", key, http.MethodPost, "/invoices", nil, payload, &out); err != nil {
		return nil, err
	}
	return &integration.InvoiceReceipt{
		DocumentNumber: out.Invoice.DocumentNumber,
		Total:          parseAmount(out.Invoice.Total),
		TotalVAT:       parseAmount(out.Invoice.TotalVAT),
	}, nil
}

// ExportSIE downloads the SIE type 4 ledger dump for a financial year.
// The bytes are returned as sent (CP437).
func (c *Client) ExportSIE(ctx context.Context, key integration.CredentialKey, financialYear int) ([]byte, error) {
	q := url.Values{}
	if financialYear > 0 {
		q.Set("financialyear", strconv.Itoa(financialYear))
	}
	return c.do(ctx, "export_sie", key, http.MethodGet, "/sie/4", q, nil, "text/plain")
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (c *Client) doJSON(ctx context.Context, operation string, key integration.CredentialKey, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return integration.NewError(integration.KindClientInput, "fortnox: failed to encode request", integration.WithCause(err))
		}
	}
	data, err := c.do(ctx, operation, key, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return integration.NewError(integration.KindTransient, "fortnox: invalid response body", integration.WithCause(err))
	}
	return nil
}

func (c *Client) do(ctx context.Context, operation string, key integration.CredentialKey, method, path string, query url.Values, body []byte, accept string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "fortnox."+operation, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("fortnox.path", path),
			attribute.String("integration.key", key.String()),
		))
	defer span.End()

	start := time.Now()
	attempts := 0
	data, err := resilience.RunWithRetry(ctx, c.retrier, func(ctx context.Context) ([]byte, error) {
		attempts++
		data, err := c.attempt(ctx, key, method, path, query, body, accept)
		if err != nil && method == http.MethodPost && outcomeUnknown(err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	})

	var kind integration.ErrorKind
	if err != nil {
		kind = integration.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		c.logger.Warn("fortnox call failed",
			zap.String("operation", operation),
			zap.String("kind", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
	span.SetAttributes(attribute.Int("fortnox.attempts", attempts))
	if c.observer != nil {
		c.observer.ObserveCall(ctx, operation, kind, time.Since(start))
		if attempts > 1 {
			c.observer.ObserveRetries(ctx, operation, attempts-1)
		}
	}
	return data, err
}

func (c *Client) attempt(ctx context.Context, key integration.CredentialKey, method, path string, query url.Values, body []byte, accept string) ([]byte, error) {
	if err := c.limiter.AwaitSlot(ctx); err != nil {
		return nil, err
	}
	token, err := c.tokens.AccessToken(ctx, key)
	if err != nil {
		return nil, err
	}

	u := c.config.APIBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, integration.NewError(integration.KindClientInput, "fortnox: failed to create request", integration.WithCause(err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, integration.Classify(fmt.Errorf("fortnox: %s %s: %w", method, path, err), 0)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, integration.Classify(fmt.Errorf("fortnox: failed to read response: %w", err), 0)
	}
	if resp.StatusCode >= 400 {
		httpErr := newHTTPError(resp.StatusCode, data, parseRetryAfter(resp.Header, time.Now()))
		return nil, integration.Classify(httpErr, resp.StatusCode)
	}
	return data, nil
}

// outcomeUnknown reports whether the server may have applied the request before
// failing. A POST that fails this way is not replayed; a rate-limit rejection is.
func outcomeUnknown(err error) bool {
	switch integration.KindOf(err) {
	case integration.KindTransient, integration.KindTimeout:
		return true
	}
	return false
}

var _ integration.AccountingPlatform = (*Client)(nil)
