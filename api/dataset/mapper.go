package dataset

import (
	"strings"

	"FinLedgerSaas/api/constants"
)

// columnKind distinguishes how a mapped cell is typed.
type columnKind int

const (
	kindText columnKind = iota
	kindAmount
	kindDate
)

// column binds one canonical source header to a Record field.
type column struct {
	Canonical string
	Kind      columnKind
	assign    func(*Record, string)
}

// columns is the single, data-driven mapping table: canonical header form on
// the left, target field via the assign closure. Variant matching happens
// through NormalizeHeader, not through scattered special cases.
var columns = []column{
	{"Company Code", kindText, func(r *Record, v string) { r.CompanyCode = textPtr(v) }},
	{"Company Name", kindText, func(r *Record, v string) { r.CompanyName = textPtr(v) }},
	{"Account Group Code", kindText, func(r *Record, v string) { r.AccountGroupCode = textPtr(v) }},
	{"Account Group Name", kindText, func(r *Record, v string) { r.AccountGroupName = textPtr(v) }},
	{"Account Code", kindText, func(r *Record, v string) { r.AccountCode = textPtr(v) }},
	{"Account Name", kindText, func(r *Record, v string) { r.AccountName = textPtr(v) }},
	{"Sub Account Code", kindText, func(r *Record, v string) { r.SubAccountCode = textPtr(v) }},
	{"Sub Account Name", kindText, func(r *Record, v string) { r.SubAccountName = textPtr(v) }},
	{"Division Code", kindText, func(r *Record, v string) { r.DivisionCode = textPtr(v) }},
	{"Division Name", kindText, func(r *Record, v string) { r.DivisionName = textPtr(v) }},
	{"Department Code", kindText, func(r *Record, v string) { r.DepartmentCode = textPtr(v) }},
	{"Department Name", kindText, func(r *Record, v string) { r.DepartmentName = textPtr(v) }},
	{"Location Code", kindText, func(r *Record, v string) { r.LocationCode = textPtr(v) }},
	{"Location Name", kindText, func(r *Record, v string) { r.LocationName = textPtr(v) }},
	{"Region Code", kindText, func(r *Record, v string) { r.RegionCode = textPtr(v) }},
	{"Region Name", kindText, func(r *Record, v string) { r.RegionName = textPtr(v) }},
	{"Cost Center Code", kindText, func(r *Record, v string) { r.CostCenterCode = textPtr(v) }},
	{"Cost Center Name", kindText, func(r *Record, v string) { r.CostCenterName = textPtr(v) }},
	{"Profit Center Code", kindText, func(r *Record, v string) { r.ProfitCenterCode = textPtr(v) }},
	{"Profit Center Name", kindText, func(r *Record, v string) { r.ProfitCenterName = textPtr(v) }},
	{"Ledger Code", kindText, func(r *Record, v string) { r.LedgerCode = textPtr(v) }},
	{"Ledger Name", kindText, func(r *Record, v string) { r.LedgerName = textPtr(v) }},
	{"Currency Code", kindText, func(r *Record, v string) { r.CurrencyCode = textPtr(v) }},
	{"Document Number", kindText, func(r *Record, v string) { r.DocumentNumber = textPtr(v) }},
	{"Reference Number", kindText, func(r *Record, v string) { r.ReferenceNumber = textPtr(v) }},
	{"Partner Code", kindText, func(r *Record, v string) { r.PartnerCode = textPtr(v) }},
	{"Partner Name", kindText, func(r *Record, v string) { r.PartnerName = textPtr(v) }},
	{"Segment", kindText, func(r *Record, v string) { r.Segment = textPtr(v) }},
	{"Remarks", kindText, func(r *Record, v string) { r.Remarks = textPtr(v) }},
	{"Fiscal Period", kindText, func(r *Record, v string) { r.FiscalPeriod = textPtr(v) }},

	{"Debit", kindAmount, func(r *Record, v string) { r.DebitAmount = ParseFinancialAmount(v) }},
	{"Credit", kindAmount, func(r *Record, v string) { r.CreditAmount = ParseFinancialAmount(v) }},
	{"Balance", kindAmount, func(r *Record, v string) { r.Balance = ParseFinancialAmount(v) }},

	{"Date", kindDate, func(r *Record, v string) { r.EntryDate = ParseEntryDate(v) }},
}

// headerAliases are variant spellings seen across exports, folded onto the
// canonical forms before lookup.
var headerAliases = map[string]string{
	"currency":         "Currency Code",
	"doc no":           "Document Number",
	"doc number":       "Document Number",
	"document no":      "Document Number",
	"reference":        "Reference Number",
	"ref no":           "Reference Number",
	"debit amount":     "Debit",
	"debit amt":        "Debit",
	"credit amount":    "Credit",
	"credit amt":       "Credit",
	"balance amount":   "Balance",
	"balance amt":      "Balance",
	"entry date":       "Date",
	"posting date":     "Date",
	"transaction date": "Date",
	"period":           "Fiscal Period",
	"narration":        "Remarks",
	"description":      "Remarks",
}

var columnIndex = buildColumnIndex()

func buildColumnIndex() map[string]*column {
	idx := make(map[string]*column, len(columns)+len(headerAliases))
	for i := range columns {
		idx[NormalizeHeader(columns[i].Canonical)] = &columns[i]
	}
	for alias, canonical := range headerAliases {
		if c, ok := idx[NormalizeHeader(canonical)]; ok {
			idx[NormalizeHeader(alias)] = c
		}
	}
	return idx
}

// NormalizeHeader trims, strips non-breaking spaces, collapses internal
// whitespace and lowercases, so "Account  Group Name " and "account group
// name" address the same column.
func NormalizeHeader(s string) string {
	s = strings.ReplaceAll(s, constants.NBSP, " ")
	s = strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
	return strings.ToLower(s)
}

// MapRow projects one raw row onto a Record. Pure and total: unrecognized
// headers are dropped, missing headers leave nil/zero fields, and no input
// ever produces an error. File-level validity is the engine's job.
func MapRow(cells map[string]string) Record {
	var rec Record
	for header, value := range cells {
		if c, ok := columnIndex[NormalizeHeader(header)]; ok {
			c.assign(&rec, value)
		}
	}
	return rec
}

// RecognizedNumericHeaders counts how many of the given raw headers map onto
// amount columns. The engine requires at least one before inserting anything.
func RecognizedNumericHeaders(headers []string) int {
	n := 0
	for _, h := range headers {
		if c, ok := columnIndex[NormalizeHeader(h)]; ok && c.Kind == kindAmount {
			n++
		}
	}
	return n
}
