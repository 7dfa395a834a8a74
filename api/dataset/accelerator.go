package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/pkg/loadbalancer"
)

// ErrAcceleratorUnavailable is returned by the client when no endpoint is
// configured or the health probe fails. The fallback decorator treats it the
// same as any other accelerator error: use the local engine.
var ErrAcceleratorUnavailable = errors.New("accelerator unavailable")

// acceleratorAPI is what the fallback decorator needs from the external
// processor. Split out so tests can stub it without HTTP. Available hands back
// the endpoint it probed so Delegate talks to the same one; the rotation
// happens between runs, not between the probe and the delegation.
type acceleratorAPI interface {
	Available(ctx context.Context) (endpoint string, ok bool)
	Delegate(ctx context.Context, endpoint string, req IngestRequest) (int64, error)
}

// AcceleratorClient talks to the external high-throughput processor:
// GET /health as a bounded probe, POST /process to delegate a whole run.
// Endpoints rotate round-robin when several are configured.
type AcceleratorClient struct {
	lb             *loadbalancer.RoundRobin
	client         *http.Client
	probeTimeout   time.Duration
	processTimeout time.Duration
}

func NewAcceleratorClient(urls []string) *AcceleratorClient {
	return &AcceleratorClient{
		lb:             loadbalancer.NewRoundRobin(urls),
		client:         &http.Client{},
		probeTimeout:   config.AcceleratorProbeTimeout,
		processTimeout: config.AcceleratorProcessTimeout,
	}
}

// Available probes the next endpoint in rotation with GET /health; any 2xx
// within the probe budget counts, and the probed endpoint is returned for the
// delegation call.
func (c *AcceleratorClient) Available(ctx context.Context) (string, bool) {
	base := c.lb.Next()
	if base == "" {
		return "", false
	}
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return "", false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}
	return base, true
}

type delegateRequest struct {
	FilePath  string `json:"file_path"`
	DatasetID string `json:"dataset_id"`
	Sheet     string `json:"sheet,omitempty"`
}

type delegateResponse struct {
	Success          bool   `json:"success"`
	RecordsProcessed int64  `json:"records_processed"`
	Error            string `json:"error,omitempty"`
}

// Delegate hands the whole decode+map+insert run to the endpoint that passed
// the health probe and returns its self-reported record count. The caller
// must re-verify against the database before trusting it.
func (c *AcceleratorClient) Delegate(ctx context.Context, base string, req IngestRequest) (int64, error) {
	if base == "" {
		return 0, ErrAcceleratorUnavailable
	}
	body, err := json.Marshal(delegateRequest{FilePath: req.Path, DatasetID: req.DatasetID, Sheet: req.Sheet})
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.processTimeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/process", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("accelerator call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("accelerator returned status %d", resp.StatusCode)
	}
	var out delegateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode accelerator response: %w", err)
	}
	if !out.Success {
		return 0, fmt.Errorf("accelerator reported failure: %s", out.Error)
	}
	return out.RecordsProcessed, nil
}

// FallbackProcessor is the probe-then-fall-back decorator over the two
// processing strategies. Accelerator problems are swallowed here and never
// surface to the caller as a distinct failure class; the local engine is the
// correctness path, the accelerator only an optimization.
type FallbackProcessor struct {
	accel    acceleratorAPI
	local    Processor
	datasets DatasetStore
	records  RecordStore
	audit    AuditSink
}

func NewFallbackProcessor(accel *AcceleratorClient, local Processor, datasets DatasetStore, records RecordStore, audit AuditSink) *FallbackProcessor {
	var a acceleratorAPI
	if accel != nil && accel.lb.Len() > 0 {
		a = accel
	}
	return &FallbackProcessor{accel: a, local: local, datasets: datasets, records: records, audit: audit}
}

func (f *FallbackProcessor) Process(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if f.accel == nil {
		return f.local.Process(ctx, req)
	}
	endpoint, ok := f.accel.Available(ctx)
	if !ok {
		return f.local.Process(ctx, req)
	}

	if err := f.datasets.MarkProcessing(ctx, req.DatasetID); err != nil {
		return IngestResult{}, fmt.Errorf("mark processing: %w", err)
	}
	claimed, err := f.accel.Delegate(ctx, endpoint, req)
	if err != nil {
		api.LogError("[Accelerator] delegation failed for dataset %s, falling back to local engine: %v", req.DatasetID, err)
		return f.local.Process(ctx, req)
	}

	// Same integrity discipline as the local path: trust the database, not
	// the accelerator's self-reported count.
	verified, err := f.records.Count(ctx, req.DatasetID)
	if err != nil {
		api.LogError("[Accelerator] verify count failed for dataset %s: %v", req.DatasetID, err)
		verified = claimed
	}
	if verified != claimed {
		api.LogError("[Accelerator] integrity mismatch dataset=%s claimed=%d persisted=%d (persisted wins)", req.DatasetID, claimed, verified)
	}
	if verified == 0 {
		api.LogError("[Accelerator] dataset %s has no persisted rows after delegation, falling back to local engine", req.DatasetID)
		return f.local.Process(ctx, req)
	}

	if err := f.datasets.MarkCompleted(ctx, req.DatasetID, verified); err != nil {
		return IngestResult{}, fmt.Errorf("mark completed: %w", err)
	}
	f.audit.Record(ctx, req.Actor, "INGEST_COMPLETED", "datasets", req.DatasetID, nil,
		map[string]interface{}{"status": constants.StatusCompleted, "record_count": verified, "path": constants.PathAccelerated})
	return IngestResult{Inserted: claimed, Verified: verified, ProcessingPath: constants.PathAccelerated}, nil
}
