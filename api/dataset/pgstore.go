package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
)

// PGDatasetStore keeps dataset metadata through database/sql (lib/pq), the
// same handle the rest of the dashboard uses for its reads.
type PGDatasetStore struct {
	db *sql.DB
}

func NewPGDatasetStore(db *sql.DB) *PGDatasetStore {
	return &PGDatasetStore{db: db}
}

const datasetColumns = `dataset_id, dataset_name, source_filename, uploaded_by, status, record_count, failure_reason, source_path, created_at, updated_at`

func (s *PGDatasetStore) Create(ctx context.Context, name, sourceFilename, uploadedBy, status string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO finledger.datasets (dataset_id, dataset_name, source_filename, uploaded_by, status)
		VALUES ($1, $2, $3, $4, $5)
	`, id, name, sourceFilename, uploadedBy, status)
	if err != nil {
		return "", fmt.Errorf("insert dataset: %w", err)
	}
	return id, nil
}

func (s *PGDatasetStore) Get(ctx context.Context, id string) (*Dataset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM finledger.datasets WHERE dataset_id = $1`, id)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	return d, nil
}

func (s *PGDatasetStore) List(ctx context.Context) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM finledger.datasets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	defer rows.Close()
	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDataset(r rowScanner) (*Dataset, error) {
	var d Dataset
	if err := r.Scan(&d.ID, &d.Name, &d.SourceFilename, &d.UploadedBy, &d.Status,
		&d.RecordCount, &d.FailureReason, &d.SourcePath, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PGDatasetStore) MarkProcessing(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, constants.StatusProcessing, nil)
}

func (s *PGDatasetStore) MarkCompleted(ctx context.Context, id string, recordCount int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE finledger.datasets
		SET status = $2, record_count = $3, failure_reason = NULL, updated_at = now()
		WHERE dataset_id = $1
	`, id, constants.StatusCompleted, recordCount)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireAffected(res)
}

func (s *PGDatasetStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.setStatus(ctx, id, constants.StatusFailed, &reason)
}

func (s *PGDatasetStore) setStatus(ctx context.Context, id, status string, reason *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE finledger.datasets
		SET status = $2, failure_reason = $3, updated_at = now()
		WHERE dataset_id = $1
	`, id, status, reason)
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	return requireAffected(res)
}

func (s *PGDatasetStore) SetSourcePath(ctx context.Context, id, path string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE finledger.datasets SET source_path = $2, updated_at = now() WHERE dataset_id = $1
	`, id, path)
	if err != nil {
		return fmt.Errorf("set source path: %w", err)
	}
	return requireAffected(res)
}

func (s *PGDatasetStore) ClearSourcePath(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE finledger.datasets SET source_path = NULL, updated_at = now() WHERE dataset_id = $1
	`, id)
	return err
}

func (s *PGDatasetStore) ListRetainedBefore(ctx context.Context, cutoff time.Time) ([]Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+datasetColumns+` FROM finledger.datasets
		WHERE source_path IS NOT NULL AND created_at < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf(constants.ErrQueryFailed+"%w", err)
	}
	defer rows.Close()
	var out []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *PGDatasetStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM finledger.datasets WHERE dataset_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PGRecordStore writes ledger rows through pgx. Each InsertBatch is one
// transaction around one CopyFrom, which is how multi-thousand-row batches
// stay fast without building giant VALUES strings.
type PGRecordStore struct {
	pool *pgxpool.Pool
}

func NewPGRecordStore(pool *pgxpool.Pool) *PGRecordStore {
	return &PGRecordStore{pool: pool}
}

var recordColumns = []string{
	"dataset_id",
	"company_code", "company_name",
	"account_group_code", "account_group_name",
	"account_code", "account_name",
	"sub_account_code", "sub_account_name",
	"division_code", "division_name",
	"department_code", "department_name",
	"location_code", "location_name",
	"region_code", "region_name",
	"cost_center_code", "cost_center_name",
	"profit_center_code", "profit_center_name",
	"ledger_code", "ledger_name",
	"currency_code", "document_number", "reference_number",
	"partner_code", "partner_name",
	"segment", "remarks", "fiscal_period",
	"debit_amount", "credit_amount", "balance_amount",
	"entry_date",
}

func (s *PGRecordStore) InsertBatch(ctx context.Context, datasetID string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf(constants.ErrTxBeginFailed+"%w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]interface{}, 0, len(recs))
	for i := range recs {
		rows = append(rows, recordValues(datasetID, &recs[i]))
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"finledger", "dataset_records"}, recordColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy batch of %d records: %w", len(recs), err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf(constants.ErrTxCommitFailed+"%w", err)
	}
	return nil
}

func recordValues(datasetID string, r *Record) []interface{} {
	return []interface{}{
		datasetID,
		r.CompanyCode, r.CompanyName,
		r.AccountGroupCode, r.AccountGroupName,
		r.AccountCode, r.AccountName,
		r.SubAccountCode, r.SubAccountName,
		r.DivisionCode, r.DivisionName,
		r.DepartmentCode, r.DepartmentName,
		r.LocationCode, r.LocationName,
		r.RegionCode, r.RegionName,
		r.CostCenterCode, r.CostCenterName,
		r.ProfitCenterCode, r.ProfitCenterName,
		r.LedgerCode, r.LedgerName,
		r.CurrencyCode, r.DocumentNumber, r.ReferenceNumber,
		r.PartnerCode, r.PartnerName,
		r.Segment, r.Remarks, r.FiscalPeriod,
		amountValue(r.DebitAmount), amountValue(r.CreditAmount), amountValue(r.Balance),
		r.EntryDate,
	}
}

// amountValue crosses the pgx boundary as float64; amounts were already
// rounded to 2 decimals so the conversion is exact for any realistic ledger.
func amountValue(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func (s *PGRecordStore) Count(ctx context.Context, datasetID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM finledger.dataset_records WHERE dataset_id = $1`, datasetID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *PGRecordStore) DeleteByDataset(ctx context.Context, datasetID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM finledger.dataset_records WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return 0, fmt.Errorf("delete records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PGAuditSink appends to the ingestion audit log. Failures are logged and
// swallowed; audit must never take an ingestion run down with it.
type PGAuditSink struct {
	db *sql.DB
}

func NewPGAuditSink(db *sql.DB) *PGAuditSink {
	return &PGAuditSink{db: db}
}

func (s *PGAuditSink) Record(ctx context.Context, actor, action, tableName, recordID string, before, after interface{}) {
	beforeJSON := auditJSON(before)
	afterJSON := auditJSON(after)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO finledger.ingestion_audit_log (actor, action, table_name, record_id, before_state, after_state, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, actor, action, tableName, recordID, beforeJSON, afterJSON)
	if err != nil {
		api.LogError("audit record failed (action=%s record=%s): %v", action, recordID, err)
	}
}

func auditJSON(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(b)
}
