package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// BatchSize is the number of mapped records committed per transaction
	// during ingestion. Each batch is atomic on its own; a failed batch does
	// not roll back batches that already committed.
	BatchSize = 1000

	// SingleShotMaxBytes is the largest file accepted on the one-request
	// upload route. Anything bigger must go through the chunked protocol.
	SingleShotMaxBytes = 32 << 20 // 32 MB

	// ChunkedMaxBytes bounds the declared size of a chunked upload.
	ChunkedMaxBytes = 300 << 20 // 300 MB

	// DecodeTimeout is the wall-clock budget for one decode pass over a file,
	// measured excluding time spent in downstream row handling.
	DecodeTimeout = 30 * time.Second

	// AcceleratorProbeTimeout bounds the health probe before delegation.
	AcceleratorProbeTimeout = 3 * time.Second

	// AcceleratorProcessTimeout bounds the delegated processing call.
	AcceleratorProcessTimeout = 10 * time.Minute

	// SessionMaxAge is how long an incomplete chunked-upload session may sit
	// idle before the sweep reclaims its staging files.
	SessionMaxAge = 2 * time.Hour

	// DefaultSweepSchedule runs the abandoned-session sweep every 15 minutes.
	DefaultSweepSchedule = "*/15 * * * *"

	// DefaultRetentionSchedule prunes retained source artifacts daily.
	DefaultRetentionSchedule = "30 2 * * *"

	// SourceRetentionDays is how long ingested source files are kept on disk
	// so that a dataset can be reprocessed.
	SourceRetentionDays = 30

	// TempReferenceMaxAge is how long a file parked by the sheet-enumeration
	// route stays referencable before cleanup.
	TempReferenceMaxAge = 1 * time.Hour
)

const (
	DefaultUploadDir   = "./uploads"
	DefaultDatasetPort = ":6151"
	DefaultGatewayPort = ":6150"
)

// UploadDir returns the root directory for chunk staging, temp references and
// retained dataset sources.
func UploadDir() string {
	if d := strings.TrimSpace(os.Getenv("UPLOAD_DIR")); d != "" {
		return d
	}
	return DefaultUploadDir
}

// AcceleratorURLs returns the configured accelerator base URLs, comma
// separated in ACCELERATOR_URLS. Empty means no accelerator is deployed.
func AcceleratorURLs() []string {
	raw := strings.TrimSpace(os.Getenv("ACCELERATOR_URLS"))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnvInt reads an integer env var with a fallback.
func EnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
