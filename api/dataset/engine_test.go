package dataset

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FinLedgerSaas/api/constants"
	"FinLedgerSaas/internal/decode"
)

// fakeDatasetStore records status transitions in memory.
type fakeDatasetStore struct {
	mu            sync.Mutex
	status        map[string]string
	recordCount   map[string]int64
	failureReason map[string]string
	sourcePath    map[string]*string
}

func newFakeDatasetStore() *fakeDatasetStore {
	return &fakeDatasetStore{
		status:        make(map[string]string),
		recordCount:   make(map[string]int64),
		failureReason: make(map[string]string),
		sourcePath:    make(map[string]*string),
	}
}

func (f *fakeDatasetStore) Create(ctx context.Context, name, sourceFilename, uploadedBy, status string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "ds-" + name
	f.status[id] = status
	return id, nil
}

func (f *fakeDatasetStore) Get(ctx context.Context, id string) (*Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.status[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &Dataset{ID: id, Status: st, RecordCount: f.recordCount[id], SourcePath: f.sourcePath[id]}, nil
}

func (f *fakeDatasetStore) List(ctx context.Context) ([]Dataset, error) { return nil, nil }

func (f *fakeDatasetStore) MarkProcessing(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = constants.StatusProcessing
	return nil
}

func (f *fakeDatasetStore) MarkCompleted(ctx context.Context, id string, recordCount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = constants.StatusCompleted
	f.recordCount[id] = recordCount
	return nil
}

func (f *fakeDatasetStore) MarkFailed(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[id] = constants.StatusFailed
	f.failureReason[id] = reason
	return nil
}

func (f *fakeDatasetStore) SetSourcePath(ctx context.Context, id, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourcePath[id] = &path
	return nil
}

func (f *fakeDatasetStore) ClearSourcePath(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourcePath[id] = nil
	return nil
}

func (f *fakeDatasetStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.status[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.status, id)
	return nil
}
func (f *fakeDatasetStore) ListRetainedBefore(ctx context.Context, cutoff time.Time) ([]Dataset, error) {
	return nil, nil
}

func (f *fakeDatasetStore) statusOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status[id]
}

func (f *fakeDatasetStore) reasonOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failureReason[id]
}

// fakeRecordStore keeps inserted batches and can be told to fail a given
// batch number, or to misreport the count.
type fakeRecordStore struct {
	mu            sync.Mutex
	batches       [][]Record
	failAtBatch   int
	countOverride *int64
}

func (f *fakeRecordStore) InsertBatch(ctx context.Context, datasetID string, recs []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAtBatch > 0 && len(f.batches)+1 == f.failAtBatch {
		return errors.New("deadlock detected")
	}
	cp := make([]Record, len(recs))
	copy(cp, recs)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeRecordStore) Count(ctx context.Context, datasetID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countOverride != nil {
		return *f.countOverride, nil
	}
	var n int64
	for _, b := range f.batches {
		n += int64(len(b))
	}
	return n, nil
}

func (f *fakeRecordStore) DeleteByDataset(ctx context.Context, datasetID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.batches {
		n += int64(len(b))
	}
	f.batches = nil
	return n, nil
}

func (f *fakeRecordStore) inserted() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, b := range f.batches {
		n += int64(len(b))
	}
	return n
}

func writeLedgerCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestEngineProcessHappyPath(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{}
	eng := NewEngine(datasets, records, NopAudit{})

	path := writeLedgerCSV(t, "Account Code,Debit,Credit,Balance\nA100,100.00,0,100.00\n,,,\nA200,0,50.00,(50.00)\n")
	res, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1", Actor: "admin"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Inserted)
	require.Equal(t, int64(2), res.Verified)
	require.Equal(t, constants.PathLocal, res.ProcessingPath)
	require.Equal(t, constants.StatusCompleted, datasets.statusOf("ds1"))

	require.Equal(t, int64(2), records.inserted())
	first := records.batches[0][0]
	require.Equal(t, "100", first.Balance.String())
	second := records.batches[0][1]
	require.Equal(t, "-50", second.Balance.String())
}

func TestEngineBatchBoundaries(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{}
	eng := NewEngine(datasets, records, NopAudit{}).WithBatchSize(2)

	path := writeLedgerCSV(t, "Debit\n1\n2\n3\n4\n5\n")
	res, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.NoError(t, err)
	require.Equal(t, int64(5), res.Inserted)
	require.Len(t, records.batches, 3)
	require.Len(t, records.batches[0], 2)
	require.Len(t, records.batches[1], 2)
	require.Len(t, records.batches[2], 1)
}

func TestEngineBatchFailureKeepsEarlierBatches(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{failAtBatch: 2}
	eng := NewEngine(datasets, records, NopAudit{}).WithBatchSize(2)

	path := writeLedgerCSV(t, "Debit\n1\n2\n3\n4\n5\n")
	_, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.Error(t, err)

	var be *BatchError
	require.ErrorAs(t, err, &be)
	require.Equal(t, 2, be.Batch)

	// Batch 1 stays committed, the run stops, the dataset fails.
	require.Equal(t, int64(2), records.inserted())
	require.Equal(t, constants.StatusFailed, datasets.statusOf("ds1"))
	require.Contains(t, datasets.reasonOf("ds1"), "Batch 2")
}

func TestEngineNoDataRows(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{}
	eng := NewEngine(datasets, records, NopAudit{})

	path := writeLedgerCSV(t, "Debit,Credit\n")
	_, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.ErrorIs(t, err, ErrNoRows)
	require.Equal(t, constants.StatusFailed, datasets.statusOf("ds1"))
	require.Equal(t, constants.ErrNoDataRows, datasets.reasonOf("ds1"))
}

func TestEngineRaggedFirstRowStillIngests(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{}
	eng := NewEngine(datasets, records, NopAudit{})

	// The first data row stops short of the Debit column; the header row,
	// not the row shape, decides whether the file has numeric columns.
	path := writeLedgerCSV(t, "Account Code,Debit\nA100\nA200,25.00\n")
	res, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Inserted)
	require.Equal(t, constants.StatusCompleted, datasets.statusOf("ds1"))

	require.Equal(t, "0", records.batches[0][0].DebitAmount.String())
	require.Equal(t, "25", records.batches[0][1].DebitAmount.String())
}

func TestEngineNoRecognizedNumericColumns(t *testing.T) {
	datasets := newFakeDatasetStore()
	records := &fakeRecordStore{}
	eng := NewEngine(datasets, records, NopAudit{})

	path := writeLedgerCSV(t, "Foo,Bar\n1,2\n3,4\n")
	_, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.ErrorIs(t, err, ErrNoNumericColumns)
	require.Equal(t, int64(0), records.inserted())
	require.Equal(t, constants.StatusFailed, datasets.statusOf("ds1"))
	require.Equal(t, constants.ErrNoRecognizedColumns, datasets.reasonOf("ds1"))
}

func TestEngineMissingFile(t *testing.T) {
	datasets := newFakeDatasetStore()
	eng := NewEngine(datasets, &fakeRecordStore{}, NopAudit{})

	_, err := eng.Process(context.Background(), IngestRequest{Path: filepath.Join(t.TempDir(), "gone.csv"), DatasetID: "ds1"})
	require.ErrorIs(t, err, decode.ErrNotFound)
	require.Equal(t, constants.StatusFailed, datasets.statusOf("ds1"))
}

func TestEngineVerifiedCountWins(t *testing.T) {
	datasets := newFakeDatasetStore()
	persisted := int64(1)
	records := &fakeRecordStore{countOverride: &persisted}
	eng := NewEngine(datasets, records, NopAudit{})

	path := writeLedgerCSV(t, "Debit\n1\n2\n")
	res, err := eng.Process(context.Background(), IngestRequest{Path: path, DatasetID: "ds1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Inserted)
	require.Equal(t, int64(1), res.Verified)

	d, err := datasets.Get(context.Background(), "ds1")
	require.NoError(t, err)
	require.Equal(t, int64(1), d.RecordCount)
}

func TestFailureReasonMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrNoRows, constants.ErrNoDataRows},
		{ErrNoNumericColumns, constants.ErrNoRecognizedColumns},
		{decode.ErrUnsupported, constants.ErrUnsupportedFileType},
		{decode.ErrSheetRequired, constants.ErrSheetSelectionNeeded},
		{&BatchError{Batch: 3, Err: errors.New("x")}, "Batch 3 failed to commit; earlier batches were kept. Reprocess the dataset to retry"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, FailureReason(tc.err))
	}
	require.Contains(t, FailureReason(errors.New("odd")), "odd")
}
