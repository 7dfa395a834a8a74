package constants

// Content types
const (
	ContentTypeJSON   = "application/json"
	HeaderContentType = "Content-Type"
)

// Date formats
const (
	DateFormat      = "2006-01-02"
	DateTimeFormat  = "2006-01-02 15:04:05"
	DateFormatSlash = "02/Jan/2006"
	DateFormatDash  = "02-Jan-2006"
)

// Request keys
const (
	KeyDatasetName = "name"
	KeyFile        = "file"
	KeySheet       = "sheet"
	KeyTempRef     = "temp_ref"
	KeySessionID   = "session_id"
	KeyChunkIndex  = "chunk_index"
	KeyChunk       = "chunk"
	KeyFileHash    = "file_hash"
)

// Identity headers injected by the upstream auth proxy. The ingestion
// service never validates credentials itself.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	RoleAdmin      = "admin"
)

// Dataset statuses
const (
	StatusPending    = "pending"
	StatusUploading  = "uploading"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Processing paths reported on ingestion responses
const (
	PathLocal       = "local"
	PathAccelerated = "accelerated"
)

// NBSP is the non-breaking space some spreadsheets embed in header cells.
const NBSP = " "
