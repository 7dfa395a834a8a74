package decode

import (
	"context"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// resolveSheet picks the worksheet to decode. An explicit name must exist; no
// name is only acceptable for a single-sheet workbook.
func resolveSheet(names []string, want string) (string, error) {
	if want != "" {
		for _, n := range names {
			if n == want {
				return n, nil
			}
		}
		return "", fmt.Errorf("%w: %q", ErrInvalidSheet, want)
	}
	if len(names) == 1 {
		return names[0], nil
	}
	return "", ErrSheetRequired
}

func listSheetsXLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// decodeXLSX walks the sheet through excelize's streaming row iterator so
// large workbooks never materialize in full.
func decodeXLSX(ctx context.Context, path string, opts Options, clock *budgetClock, emit func(Row) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	name, err := resolveSheet(f.GetSheetList(), opts.Sheet)
	if err != nil {
		return err
	}
	rows, err := f.Rows(name)
	if err != nil {
		return fmt.Errorf("open sheet %q: %w", name, err)
	}
	defer rows.Close()

	var headers []string
	line := 0
	for rows.Next() {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if clock.exceeded() {
			return ErrTimeout
		}
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("read row %d: %w", line+1, err)
		}
		line++
		if headers == nil {
			headers = trimHeaders(cells)
			if err := announceHeaders(opts, clock, headers); err != nil {
				return err
			}
			continue
		}
		row, ok := rowFromCells(headers, cells, line)
		if !ok {
			continue
		}
		if err := clock.emit(emit, row); err != nil {
			return err
		}
	}
	return rows.Error()
}

func listSheetsXLS(path string) ([]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	names := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		if s := wb.GetSheet(i); s != nil {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// decodeXLS handles legacy BIFF workbooks. The library loads sheets whole;
// acceptable because .xls caps out well below modern file sizes.
func decodeXLS(ctx context.Context, path string, opts Options, clock *budgetClock, emit func(Row) error) error {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return fmt.Errorf("open xls: %w", err)
	}
	names, err := listSheetsXLS(path)
	if err != nil {
		return err
	}
	name, err := resolveSheet(names, opts.Sheet)
	if err != nil {
		return err
	}
	var ws *xls.WorkSheet
	for i := 0; i < wb.NumSheets(); i++ {
		if s := wb.GetSheet(i); s != nil && s.Name == name {
			ws = s
			break
		}
	}
	if ws == nil {
		return fmt.Errorf("%w: %q", ErrInvalidSheet, name)
	}

	var headers []string
	line := 0
	for i := 0; i <= int(ws.MaxRow); i++ {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if clock.exceeded() {
			return ErrTimeout
		}
		r := ws.Row(i)
		if r == nil {
			continue
		}
		cells := make([]string, 0, r.LastCol())
		for j := 0; j < r.LastCol(); j++ {
			cells = append(cells, r.Col(j))
		}
		line++
		if headers == nil {
			headers = trimHeaders(cells)
			if err := announceHeaders(opts, clock, headers); err != nil {
				return err
			}
			continue
		}
		row, ok := rowFromCells(headers, cells, line)
		if !ok {
			continue
		}
		if err := clock.emit(emit, row); err != nil {
			return err
		}
	}
	return nil
}
