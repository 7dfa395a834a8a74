package dataset

import (
	"time"

	"github.com/shopspring/decimal"
)

// Dataset is one uploaded file's logical import and its lifecycle state.
// Status moves forward only: pending/uploading -> processing ->
// completed/failed. Reprocess is the single sanctioned way back to
// processing, and it deletes the dataset's records first.
type Dataset struct {
	ID             string     `json:"dataset_id"`
	Name           string     `json:"dataset_name"`
	SourceFilename string     `json:"source_filename"`
	UploadedBy     string     `json:"uploaded_by"`
	Status         string     `json:"status"`
	RecordCount    int64      `json:"record_count"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	SourcePath     *string    `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Record is one normalized ledger line. Descriptive fields are nullable;
// amounts are total (unparsable input becomes zero) and fixed to 2 decimals.
// Records are only ever written by the ingestion engine and only ever
// removed at whole-dataset granularity.
type Record struct {
	CompanyCode      *string
	CompanyName      *string
	AccountGroupCode *string
	AccountGroupName *string
	AccountCode      *string
	AccountName      *string
	SubAccountCode   *string
	SubAccountName   *string
	DivisionCode     *string
	DivisionName     *string
	DepartmentCode   *string
	DepartmentName   *string
	LocationCode     *string
	LocationName     *string
	RegionCode       *string
	RegionName       *string
	CostCenterCode   *string
	CostCenterName   *string
	ProfitCenterCode *string
	ProfitCenterName *string
	LedgerCode       *string
	LedgerName       *string
	CurrencyCode     *string
	DocumentNumber   *string
	ReferenceNumber  *string
	PartnerCode      *string
	PartnerName      *string
	Segment          *string
	Remarks          *string
	FiscalPeriod     *string

	DebitAmount  decimal.Decimal
	CreditAmount decimal.Decimal
	Balance      decimal.Decimal

	EntryDate *time.Time
}

// IngestRequest asks a Processor to run one ingestion against a file on
// disk. Sheet is only meaningful for workbooks.
type IngestRequest struct {
	Path      string
	DatasetID string
	Sheet     string
	Actor     string
}

// IngestResult reports one finished run. Verified is the post-insert row
// count re-read from storage and is what lands on the dataset row.
type IngestResult struct {
	Inserted       int64  `json:"inserted_count"`
	Verified       int64  `json:"verified_count"`
	ProcessingPath string `json:"processing_path"`
}
