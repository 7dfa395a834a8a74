package decode

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// decodeCSV reads record-at-a-time so memory stays flat regardless of file
// size. Ragged rows are tolerated; the header row bounds the keyed width.
func decodeCSV(ctx context.Context, path string, opts Options, clock *budgetClock, emit func(Row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return ErrNotFound
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReaderSize(f, 64<<10))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var headers []string
	line := 0
	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if clock.exceeded() {
			return ErrTimeout
		}
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("csv read at line %d: %w", line+1, err)
		}
		line++
		if headers == nil {
			headers = trimHeaders(record)
			if err := announceHeaders(opts, clock, headers); err != nil {
				return err
			}
			continue
		}
		row, ok := rowFromCells(headers, record, line)
		if !ok {
			continue
		}
		if err := clock.emit(emit, row); err != nil {
			return err
		}
	}
}
