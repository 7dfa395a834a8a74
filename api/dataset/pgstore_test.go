package dataset

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PGDatasetStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGDatasetStore(db), mock
}

func datasetMockRows(id, name, status string, count int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"dataset_id", "dataset_name", "source_filename", "uploaded_by", "status",
		"record_count", "failure_reason", "source_path", "created_at", "updated_at",
	}).AddRow(id, name, "ledger.csv", "admin", status, count, nil, nil, now, now)
}

func TestPGDatasetStoreCreate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO finledger\.datasets`).
		WithArgs(sqlmock.AnyArg(), "March Ledger", "ledger.csv", "admin", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Create(context.Background(), "March Ledger", "ledger.csv", "admin", "pending")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM finledger\.datasets WHERE dataset_id`).
		WithArgs("ds1").
		WillReturnRows(datasetMockRows("ds1", "March Ledger", "completed", 42))

	d, err := store.Get(context.Background(), "ds1")
	require.NoError(t, err)
	require.Equal(t, "ds1", d.ID)
	require.Equal(t, int64(42), d.RecordCount)
	require.Nil(t, d.FailureReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .+ FROM finledger\.datasets WHERE dataset_id`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreList(t *testing.T) {
	store, mock := newMockStore(t)
	rows := datasetMockRows("ds1", "A", "completed", 1).
		AddRow("ds2", "B", "b.csv", "admin", "failed", int64(0), "bad file", nil, time.Now(), time.Now())
	mock.ExpectQuery(`SELECT .+ FROM finledger\.datasets ORDER BY created_at DESC`).
		WillReturnRows(rows)

	out, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "ds2", out[1].ID)
	require.NotNil(t, out[1].FailureReason)
	require.Equal(t, "bad file", *out[1].FailureReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreStatusTransitions(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE finledger\.datasets`).
		WithArgs("ds1", "processing", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.MarkProcessing(context.Background(), "ds1"))

	mock.ExpectExec(`UPDATE finledger\.datasets`).
		WithArgs("ds1", "completed", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.MarkCompleted(context.Background(), "ds1", 42))

	mock.ExpectExec(`UPDATE finledger\.datasets`).
		WithArgs("ds1", "failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.MarkFailed(context.Background(), "ds1", "boom"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreTransitionUnknownID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE finledger\.datasets`).
		WithArgs("nope", "processing", nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkProcessing(context.Background(), "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreDelete(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM finledger\.datasets WHERE dataset_id`).
		WithArgs("ds1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.Delete(context.Background(), "ds1"))

	mock.ExpectExec(`DELETE FROM finledger\.datasets WHERE dataset_id`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, store.Delete(context.Background(), "nope"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreSourcePath(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE finledger\.datasets SET source_path = \$2`).
		WithArgs("ds1", "/uploads/datasets/ds1.csv").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SetSourcePath(context.Background(), "ds1", "/uploads/datasets/ds1.csv"))

	mock.ExpectExec(`UPDATE finledger\.datasets SET source_path = NULL`).
		WithArgs("ds1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.ClearSourcePath(context.Background(), "ds1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDatasetStoreListRetainedBefore(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	mock.ExpectQuery(`WHERE source_path IS NOT NULL AND created_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(datasetMockRows("ds-old", "Old", "completed", 9))

	out, err := store.ListRetainedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "ds-old", out[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAuditSinkSwallowsFailures(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	sink := NewPGAuditSink(db)
	mock.ExpectExec(`INSERT INTO finledger\.ingestion_audit_log`).
		WithArgs("admin", "CREATE", "datasets", "ds1", nil, `{"status":"pending"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	sink.Record(context.Background(), "admin", "CREATE", "datasets", "ds1", nil, map[string]string{"status": "pending"})

	mock.ExpectExec(`INSERT INTO finledger\.ingestion_audit_log`).
		WillReturnError(sql.ErrConnDone)
	// Must not panic or surface the error.
	sink.Record(context.Background(), "admin", "DELETE", "datasets", "ds1", nil, nil)

	require.NoError(t, mock.ExpectationsWereMet())
}
