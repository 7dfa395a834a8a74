package dataset

import (
	"context"
	"time"
)

// DatasetStore persists dataset rows and their status transitions.
type DatasetStore interface {
	Create(ctx context.Context, name, sourceFilename, uploadedBy, status string) (string, error)
	Get(ctx context.Context, id string) (*Dataset, error)
	List(ctx context.Context) ([]Dataset, error)

	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, recordCount int64) error
	MarkFailed(ctx context.Context, id, reason string) error

	SetSourcePath(ctx context.Context, id, path string) error
	ClearSourcePath(ctx context.Context, id string) error
	ListRetainedBefore(ctx context.Context, cutoff time.Time) ([]Dataset, error)

	// Delete removes the dataset row; records go with it via FK cascade.
	Delete(ctx context.Context, id string) error
}

// RecordStore persists normalized ledger rows. InsertBatch is atomic for the
// batch it is given and for nothing else: the engine's per-batch transaction
// discipline lives behind this boundary.
type RecordStore interface {
	InsertBatch(ctx context.Context, datasetID string, recs []Record) error
	Count(ctx context.Context, datasetID string) (int64, error)
	DeleteByDataset(ctx context.Context, datasetID string) (int64, error)
}

// AuditSink records who did what. Fire-and-forget: implementations log
// failures and never propagate them into the ingestion run.
type AuditSink interface {
	Record(ctx context.Context, actor, action, tableName, recordID string, before, after interface{})
}

// NopAudit is used in tests and wherever audit is not wired.
type NopAudit struct{}

func (NopAudit) Record(ctx context.Context, actor, action, tableName, recordID string, before, after interface{}) {
}
