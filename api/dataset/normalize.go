package dataset

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"FinLedgerSaas/api/constants"
)

// ParseFinancialAmount turns a spreadsheet cell into a fixed-point amount.
// Total by contract: every input maps to some number and nothing panics.
// Handles thousands commas, surrounding quotes, and accounting parentheses
// for negatives ("(1,200.50)" -> -1200.50). Anything unparsable is 0.
func ParseFinancialAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.ReplaceAll(s, constants.NBSP, "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, ",", "")

	// Keep digits and the decimal point; a minus only counts in front.
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && i == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" || cleaned == "." || cleaned == "-." {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	if negative {
		d = d.Neg()
	}
	return d.Round(2)
}

// entryDateLayouts is ordered: dd/mm variants before mm/dd so European and
// Indian ledger exports don't get misread, then named-month and ISO forms.
var entryDateLayouts = []string{
	constants.DateFormat, "2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339,
	"02/01/2006", "02/01/06", "2/1/2006", "2/1/06",
	"01/02/2006", "1/2/2006",
	"02-01-2006", "2-1-2006",
	constants.DateFormatDash, constants.DateFormatSlash,
	"02-Jan-06", "2-Jan-2006", "02 Jan 2006",
	"Jan 2, 2006", "January 2, 2006",
	"2006/01/02", "2006.01.02", "02.01.2006",
	"20060102",
}

// ParseEntryDate parses a ledger date cell. Failure is nil, never zero time
// and never "today": the column is nullable and a bad date must not invent
// data.
func ParseEntryDate(s string) *time.Time {
	s = strings.TrimSpace(strings.ReplaceAll(s, constants.NBSP, " "))
	if s == "" {
		return nil
	}
	for _, layout := range entryDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if t, ok := parseExcelSerialDate(s); ok {
		return &t
	}
	return nil
}

// parseExcelSerialDate converts an Excel serial day count (fractional part is
// time of day) into a date. Excel's calendar includes a fictitious 1900-02-29
// at serial 60, so serials past it count from a 1899-12-30 epoch while earlier
// serials count from 1899-12-31 (serial 1 is 1900-01-01).
func parseExcelSerialDate(s string) (time.Time, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 1 || f > 2958465 { // 2958465 = 9999-12-31
		return time.Time{}, false
	}
	days := int(f)
	frac := f - float64(days)
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	if days < 60 {
		base = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	d := base.AddDate(0, 0, days)
	d = d.Add(time.Duration(frac * float64(24*time.Hour)))
	return d, true
}

// sanitizeText makes a cell safe for storage: control characters collapse to
// spaces, NUL bytes vanish, backslashes become slashes so standard conforming
// string mode never trips on them.
func sanitizeText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\\", "/")
	s = strings.ReplaceAll(s, "\x00", "")
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == 0 {
			continue
		}
		out = append(out, r)
	}
	return strings.TrimSpace(string(out))
}

// textPtr returns nil for empty cells so the column stays NULL.
func textPtr(s string) *string {
	s = sanitizeText(s)
	if s == "" {
		return nil
	}
	return &s
}
