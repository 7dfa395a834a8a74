package constants

// ============================================================================
// REQUEST VALIDATION ERRORS
// ============================================================================

const (
	ErrMethodNotAllowed    = "Method Not Allowed"
	ErrInvalidJSON         = "Invalid JSON body"
	ErrFailedToParseForm   = "Failed to parse multipart form: "
	ErrDatasetNameRequired = "Dataset name is required"
	ErrNoFileUploaded      = "No file uploaded"
	ErrUnsupportedFileType = "Unsupported file type. Please upload a .csv, .xls or .xlsx file"
	ErrFileTooLarge        = "File is too large for a single upload. Please use the chunked upload routes"
	ErrUnauthorized        = "You are not authorized to perform this action"
	ErrInternalServer      = "Internal server error"
)

// ============================================================================
// CHUNKED UPLOAD ERRORS
// ============================================================================

const (
	ErrUploadInitFields   = "file_name, file_size, total_chunks and dataset_name are all required and must be positive"
	ErrSessionNotFound    = "Upload session not found. It may have expired or already been completed"
	ErrIncompleteUpload   = "Upload is incomplete. Send the remaining chunks before completing"
	ErrChunkIndexRange    = "chunk_index is out of range for this session"
	ErrChecksumMismatch   = "Assembled file does not match the declared checksum. Please retry the upload"
	ErrAssemblyFailed     = "Failed to assemble uploaded chunks: "
	ErrChunkWriteFailed   = "Failed to store chunk: "
	ErrSessionInitFailed  = "Failed to initialize upload session: "
	ErrDeclaredSizeTooBig = "Declared file size exceeds the upload limit"
)

// ============================================================================
// INGESTION ERRORS
// ============================================================================

const (
	ErrDatasetNotFound      = "Dataset not found"
	ErrDatasetCreateFailed  = "Failed to create dataset: "
	ErrSourceNotRetained    = "The original file for this dataset is no longer retained; reprocess is unavailable"
	ErrIngestionFailed      = "Ingestion failed: "
	ErrReprocessFailed      = "Reprocess failed: "
	ErrDeleteFailed         = "Failed to delete dataset: "
	ErrNoDataRows           = "The file contains no data rows"
	ErrNoRecognizedColumns  = "No recognized ledger columns were found in the file header"
	ErrSheetListFailed      = "Failed to read workbook sheets: "
	ErrSheetSelectionNeeded = "The workbook has multiple sheets. Enumerate them via /dataset/sheets and pass 'sheet'"
)

// ============================================================================
// DB / SQL ERROR TEMPLATES
// ============================================================================

const (
	ErrTxBeginFailed  = "failed to begin transaction: "
	ErrTxCommitFailed = "failed to commit transaction: "
	ErrQueryFailed    = "query failed: "
)
