package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFinancialAmount(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain integer", "100", "100"},
		{"thousands commas", "1,200.50", "1200.5"},
		{"accounting negative", "(1,200.50)", "-1200.5"},
		{"leading minus", "-50", "-50"},
		{"quoted", `"2,500.00"`, "2500"},
		{"currency prefix stripped", "INR 1,000.25", "1000.25"},
		{"nbsp and spaces", "  750.10 ", "750.1"},
		{"rounds to two decimals", "10.005", "10.01"},
		{"empty", "", "0"},
		{"whitespace only", "   ", "0"},
		{"garbage", "abc", "0"},
		{"lone minus", "-", "0"},
		{"lone dot", ".", "0"},
		{"minus not in front ignored", "10-5", "105"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseFinancialAmount(tc.in)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestParseEntryDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		in   string
		want *time.Time
	}{
		{"iso", "2024-03-15", ptrTime(day(2024, time.March, 15))},
		{"day first slash", "15/03/2024", ptrTime(day(2024, time.March, 15))},
		{"ambiguous prefers day first", "05/03/2024", ptrTime(day(2024, time.March, 5))},
		{"named month", "15-Mar-24", ptrTime(day(2024, time.March, 15))},
		{"compact", "20240315", ptrTime(day(2024, time.March, 15))},
		{"empty is nil", "", nil},
		{"garbage is nil", "not a date", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseEntryDate(tc.in)
			if tc.want == nil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.True(t, tc.want.Equal(*got), "want %s got %s", tc.want, got)
		})
	}
}

func TestParseEntryDateExcelSerial(t *testing.T) {
	serial := func(t *testing.T, in, want string) {
		t.Helper()
		got := ParseEntryDate(in)
		require.NotNil(t, got)
		require.Equal(t, want, got.Format("2006-01-02"))
	}

	serial(t, "45000", "2023-03-15")
	serial(t, "45292", "2024-01-01")

	// Around the phantom 1900-02-29 the two epochs must meet cleanly:
	// serial 59 is the real Feb 28 and serial 61 is Mar 1, one day later.
	serial(t, "1", "1900-01-01")
	serial(t, "2", "1900-01-02")
	serial(t, "59", "1900-02-28")
	serial(t, "61", "1900-03-01")

	require.Nil(t, ParseEntryDate("0"))
	require.Nil(t, ParseEntryDate("99999999"))
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"tab\there", "tab here"},
		{`back\slash`, "back/slash"},
		{"nul\x00byte", "nulbyte"},
		{"  padded  ", "padded"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, sanitizeText(tc.in))
	}
}

func TestTextPtr(t *testing.T) {
	require.Nil(t, textPtr(""))
	require.Nil(t, textPtr("   "))
	p := textPtr(" hello ")
	require.NotNil(t, p)
	require.Equal(t, "hello", *p)
}

func ptrTime(t time.Time) *time.Time { return &t }
