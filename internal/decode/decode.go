// Package decode streams CSV and Excel workbooks into header-keyed rows with
// bounded memory. Cell values only; styles, formats and macros are ignored.
package decode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("file does not exist")
	ErrUnsupported   = errors.New("unsupported file format")
	ErrInvalidSheet  = errors.New("sheet not found in workbook")
	ErrSheetRequired = errors.New("workbook has multiple sheets and none was selected")
	ErrTimeout       = errors.New("decode exceeded its time budget")
)

// Row is one data row keyed by the raw header cell text. Headers and cells
// arrive trimmed; blank rows are dropped before emit.
type Row struct {
	// Line is the 1-based position in the source, counting the header as 1.
	Line  int
	Cells map[string]string
}

// Options tunes one decode pass.
type Options struct {
	// Sheet selects a worksheet by name. Ignored for CSV. When empty, a
	// single-sheet workbook decodes its only sheet; a multi-sheet workbook
	// fails with ErrSheetRequired.
	Sheet string
	// Budget is the wall-clock limit for the pass, excluding time spent in
	// the emit callback. Zero means no limit.
	Budget time.Duration
	// OnHeaders, when set, receives the trimmed header row once, before any
	// data row is emitted. A non-nil error aborts the pass and is returned
	// as-is. Data rows can be narrower than the header, so this is the only
	// place the full column set is visible.
	OnHeaders func(headers []string) error
}

// Decode streams the file at path through emit, one row at a time. The first
// non-empty row is the header; every later row is keyed by it. A non-nil
// error from emit aborts the pass and is returned as-is.
func Decode(ctx context.Context, path string, opts Options, emit func(Row) error) error {
	if _, err := os.Stat(path); err != nil {
		return ErrNotFound
	}
	clock := newBudgetClock(opts.Budget)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return decodeCSV(ctx, path, opts, clock, emit)
	case ".xlsx":
		return decodeXLSX(ctx, path, opts, clock, emit)
	case ".xls":
		return decodeXLS(ctx, path, opts, clock, emit)
	default:
		return ErrUnsupported
	}
}

// ListSheets enumerates worksheet names in document order without decoding
// any cell data. CSV files report a single pseudo-sheet.
func ListSheets(path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, ErrNotFound
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return []string{"data"}, nil
	case ".xlsx":
		return listSheetsXLSX(path)
	case ".xls":
		return listSheetsXLS(path)
	default:
		return nil, ErrUnsupported
	}
}

// SupportedExt reports whether the extension (with or without leading dot)
// names a decodable format.
func SupportedExt(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return ext == "csv" || ext == "xls" || ext == "xlsx"
}

// budgetClock enforces the decode wall-clock budget. Time spent inside the
// emit callback (mapping, batch inserts) does not count against it.
type budgetClock struct {
	start   time.Time
	emitDur time.Duration
	budget  time.Duration
}

func newBudgetClock(budget time.Duration) *budgetClock {
	return &budgetClock{start: time.Now(), budget: budget}
}

func (b *budgetClock) exceeded() bool {
	if b.budget <= 0 {
		return false
	}
	return time.Since(b.start)-b.emitDur > b.budget
}

// exclude runs fn with its duration subtracted from the budget.
func (b *budgetClock) exclude(fn func() error) error {
	t := time.Now()
	err := fn()
	b.emitDur += time.Since(t)
	return err
}

func (b *budgetClock) emit(emit func(Row) error, r Row) error {
	return b.exclude(func() error { return emit(r) })
}

// announceHeaders hands the header row to the OnHeaders hook, off the budget
// like any other caller code.
func announceHeaders(opts Options, clock *budgetClock, headers []string) error {
	if opts.OnHeaders == nil {
		return nil
	}
	return clock.exclude(func() error { return opts.OnHeaders(headers) })
}

// rowFromCells builds a header-keyed row, skipping it when every cell is
// blank. Extra cells beyond the header width are dropped.
func rowFromCells(headers []string, cells []string, line int) (Row, bool) {
	blank := true
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			blank = false
			break
		}
	}
	if blank {
		return Row{}, false
	}
	m := make(map[string]string, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if i < len(cells) {
			m[h] = strings.TrimSpace(cells[i])
		}
	}
	return Row{Line: line, Cells: m}, true
}

func trimHeaders(raw []string) []string {
	out := make([]string, len(raw))
	for i, h := range raw {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
