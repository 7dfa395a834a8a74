package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/internal/decode"
)

var (
	// ErrNoRows means the file decoded cleanly but held no data rows.
	ErrNoRows = errors.New("file contains no data rows")
	// ErrNoNumericColumns means no recognized amount column was present, so
	// nothing in the file can be a ledger line.
	ErrNoNumericColumns = errors.New("no recognized numeric columns in file header")
)

// BatchError marks a batch transaction that rolled back mid-run. Batches
// before it stay committed; the run stops and the dataset goes to failed.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed: %v", e.Batch, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Processor runs one ingestion end to end. The local engine and the
// accelerator gateway both satisfy it, so either can sit behind the upload
// handlers.
type Processor interface {
	Process(ctx context.Context, req IngestRequest) (IngestResult, error)
}

// Engine is the in-process ingestion orchestrator: decode, map, normalize,
// insert in per-batch transactions, verify, transition the dataset.
type Engine struct {
	datasets     DatasetStore
	records      RecordStore
	audit        AuditSink
	batchSize    int
	decodeBudget time.Duration
}

func NewEngine(datasets DatasetStore, records RecordStore, audit AuditSink) *Engine {
	return &Engine{
		datasets:     datasets,
		records:      records,
		audit:        audit,
		batchSize:    config.BatchSize,
		decodeBudget: config.DecodeTimeout,
	}
}

// WithBatchSize overrides the per-transaction batch size; zero keeps the
// default.
func (e *Engine) WithBatchSize(n int) *Engine {
	if n > 0 {
		e.batchSize = n
	}
	return e
}

// WithDecodeBudget overrides the decode wall-clock limit.
func (e *Engine) WithDecodeBudget(d time.Duration) *Engine {
	e.decodeBudget = d
	return e
}

// Process runs one ingestion. On any failure the dataset is marked failed
// with a human-readable reason; batches committed before the failure stay
// put and are cleaned up only by an explicit reprocess or delete.
func (e *Engine) Process(ctx context.Context, req IngestRequest) (IngestResult, error) {
	start := time.Now()
	api.LogInfo("[Engine] ingest start dataset=%s file=%s sheet=%q", req.DatasetID, req.Path, req.Sheet)

	if err := e.datasets.MarkProcessing(ctx, req.DatasetID); err != nil {
		return IngestResult{}, fmt.Errorf("mark processing: %w", err)
	}

	inserted, err := e.run(ctx, req)
	if err != nil {
		reason := FailureReason(err)
		if markErr := e.datasets.MarkFailed(ctx, req.DatasetID, reason); markErr != nil {
			api.LogError("[Engine] mark failed errored for dataset %s: %v", req.DatasetID, markErr)
		}
		e.audit.Record(ctx, req.Actor, "INGEST_FAILED", "datasets", req.DatasetID, nil,
			map[string]interface{}{"status": constants.StatusFailed, "reason": reason})
		return IngestResult{}, err
	}

	// Integrity verification: the persisted count is ground truth. A
	// mismatch is logged, never fatal, and the verified number is what the
	// dataset row carries.
	verified, err := e.records.Count(ctx, req.DatasetID)
	if err != nil {
		api.LogError("[Engine] verify count failed for dataset %s, falling back to inserted count: %v", req.DatasetID, err)
		verified = inserted
	}
	if verified != inserted {
		api.LogError("[Engine] integrity mismatch dataset=%s inserted=%d persisted=%d (persisted wins)", req.DatasetID, inserted, verified)
	}

	if err := e.datasets.MarkCompleted(ctx, req.DatasetID, verified); err != nil {
		return IngestResult{}, fmt.Errorf("mark completed: %w", err)
	}
	e.audit.Record(ctx, req.Actor, "INGEST_COMPLETED", "datasets", req.DatasetID, nil,
		map[string]interface{}{"status": constants.StatusCompleted, "record_count": verified})

	api.LogInfo("[Engine] ingest done dataset=%s rows=%d in %s", req.DatasetID, verified, time.Since(start))
	return IngestResult{Inserted: inserted, Verified: verified, ProcessingPath: constants.PathLocal}, nil
}

// run streams decode -> map -> batch insert and returns the inserted count.
func (e *Engine) run(ctx context.Context, req IngestRequest) (int64, error) {
	var (
		batch    = make([]Record, 0, e.batchSize)
		batchNum = 0
		inserted int64
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchNum++
		if err := e.records.InsertBatch(ctx, req.DatasetID, batch); err != nil {
			return &BatchError{Batch: batchNum, Err: err}
		}
		inserted += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	opts := decode.Options{
		Sheet:  req.Sheet,
		Budget: e.decodeBudget,
		// The header row is the only place the full column set is visible;
		// data rows may omit trailing cells and must not fail this check.
		OnHeaders: func(headers []string) error {
			if RecognizedNumericHeaders(headers) == 0 {
				return ErrNoNumericColumns
			}
			return nil
		},
	}
	err := decode.Decode(ctx, req.Path, opts, func(row decode.Row) error {
		batch = append(batch, MapRow(row.Cells))
		if len(batch) >= e.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return inserted, err
	}
	if err := flush(); err != nil {
		return inserted, err
	}
	if inserted == 0 {
		return 0, ErrNoRows
	}
	return inserted, nil
}

// FailureReason turns pipeline errors into the message retained on the
// dataset row for the UI.
func FailureReason(err error) string {
	var be *BatchError
	switch {
	case errors.Is(err, ErrNoRows):
		return constants.ErrNoDataRows
	case errors.Is(err, ErrNoNumericColumns):
		return constants.ErrNoRecognizedColumns
	case errors.Is(err, decode.ErrNotFound):
		return "The uploaded file could not be found on disk"
	case errors.Is(err, decode.ErrUnsupported):
		return constants.ErrUnsupportedFileType
	case errors.Is(err, decode.ErrInvalidSheet):
		return "The selected sheet does not exist in the workbook"
	case errors.Is(err, decode.ErrSheetRequired):
		return constants.ErrSheetSelectionNeeded
	case errors.Is(err, decode.ErrTimeout):
		return "Decoding took too long and was aborted"
	case errors.As(err, &be):
		return fmt.Sprintf("Batch %d failed to commit; earlier batches were kept. Reprocess the dataset to retry", be.Batch)
	default:
		return "Ingestion failed: " + err.Error()
	}
}
