// Package sie writes SIE type 4 files, the Swedish interchange format for
// bookkeeping data.
package sie

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/ledgerflow/backend/internal/domain/ledger"
)

const (
	sieDate = "20060102"
	// ChartType is the BAS chart version announced in #KPTYP.
	ChartType = "BAS2024"
	// ContentType is the MIME type of an exported file.
	ContentType = "text/plain; charset=IBM437"
)

// Voucher is one #VER block.
type Voucher struct {
	Series string
	Number int
	Date   time.Time
	Text   string
	Lines  []ledger.Line
}

// Document is the content of one SIE file.
type Document struct {
	CompanyName string
	OrgNumber   string
	// FiscalYearStart and FiscalYearEnd bound #RAR 0.
	FiscalYearStart time.Time
	FiscalYearEnd   time.Time
	Accounts        []ledger.Account
	// OpeningBalances by account code, written as #IB 0.
	OpeningBalances map[string]decimal.Decimal
	Vouchers        []Voucher
}

// FiscalYear returns the calendar-year bounds used when no broken fiscal year is configured.
func FiscalYear(year int) (time.Time, time.Time) {
	return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
}

// Exporter renders documents.
type Exporter struct {
	program string
	version string
	now     func() time.Time
}

// NewExporter creates an exporter announcing itself as program/version in #PROGRAM.
func NewExporter(program, version string) *Exporter {
	return &Exporter{program: program, version: version, now: time.Now}
}

// Export renders doc and encodes it as CP437 (#FORMAT PC8).
func (e *Exporter) Export(doc Document) ([]byte, error) {
	enc := encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder())
	out, err := enc.Bytes([]byte(e.Render(doc)))
	if err != nil {
		return nil, fmt.Errorf("sie: encode CP437: %w", err)
	}
	return out, nil
}

// Render returns the UTF-8 text of doc.
func (e *Exporter) Render(doc Document) string {
	var b bytes.Buffer
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("#FLAGGA 0")
	line("#FORMAT PC8")
	line("#SIETYP 4")
	line("#PROGRAM %s %s", quote(e.program), e.version)
	line("#GEN %s", e.now().Format(sieDate))
	line("#FNAMN %s", quote(doc.CompanyName))
	if org := cleanOrgNumber(doc.OrgNumber); org != "" {
		line("#ORGNR %s", org)
	}
	if !doc.FiscalYearStart.IsZero() {
		line("#RAR 0 %s %s", doc.FiscalYearStart.Format(sieDate), doc.FiscalYearEnd.Format(sieDate))
	}
	line("#KPTYP %s", ChartType)

	accounts := append([]ledger.Account(nil), doc.Accounts...)
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Code < accounts[j].Code })
	for _, a := range accounts {
		line("#KONTO %s %s", a.Code, quote(a.Name))
	}

	codes := make([]string, 0, len(doc.OpeningBalances))
	for code := range doc.OpeningBalances {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		line("#IB 0 %s %s", code, formatAmount(doc.OpeningBalances[code]))
	}

	for _, v := range doc.Vouchers {
		number := `""`
		if v.Number > 0 {
			number = strconv.Itoa(v.Number)
		}
		line("#VER %s %s %s %s", quote(v.Series), number, v.Date.Format(sieDate), quote(v.Text))
		line("{")
		for _, l := range v.Lines {
			amount := ledger.RoundMoney(l.Debit).Sub(ledger.RoundMoney(l.Credit))
			if amount.IsZero() {
				continue
			}
			line("   #TRANS %s {} %s", l.Account.Code, formatAmount(amount))
		}
		line("}")
	}
	return b.String()
}

// DocumentFor builds a document holding the given vouchers and every chart
// account they touch.
func DocumentFor(companyName, orgNumber string, year int, vouchers []Voucher) Document {
	start, end := FiscalYear(year)
	seen := map[string]bool{}
	var accounts []ledger.Account
	for _, v := range vouchers {
		for _, l := range v.Lines {
			if !seen[l.Account.Code] {
				seen[l.Account.Code] = true
				accounts = append(accounts, l.Account)
			}
		}
	}
	return Document{
		CompanyName:     companyName,
		OrgNumber:       orgNumber,
		FiscalYearStart: start,
		FiscalYearEnd:   end,
		Accounts:        accounts,
		Vouchers:        vouchers,
	}
}

var nonDigit = regexp.MustCompile(`\D`)

func cleanOrgNumber(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}

func formatAmount(d decimal.Decimal) string {
	return ledger.RoundMoney(d).StringFixed(2)
}
