package dataset

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/internal/decode"
	"FinLedgerSaas/internal/uploadsession"
)

type uploadInitRequest struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	TotalChunks int    `json:"total_chunks"`
	DatasetName string `json:"dataset_name"`
	FileHash    string `json:"file_hash,omitempty"`
}

// handleUploadInit opens a chunked transfer: the dataset row is created up
// front in "uploading" status so the dashboard can show it immediately.
func (s *Service) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	var req uploadInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	req.FileName = strings.TrimSpace(req.FileName)
	req.DatasetName = strings.TrimSpace(req.DatasetName)
	if req.FileName == "" || req.DatasetName == "" || req.FileSize <= 0 || req.TotalChunks <= 0 {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrUploadInitFields)
		return
	}
	if req.FileSize > config.ChunkedMaxBytes {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrDeclaredSizeTooBig)
		return
	}
	if !decode.SupportedExt(filepath.Ext(req.FileName)) {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnsupportedFileType)
		return
	}

	actor := api.ActorFromContext(r.Context()).UserID
	datasetID, err := s.datasets.Create(r.Context(), req.DatasetName, req.FileName, actor, constants.StatusUploading)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDatasetCreateFailed+friendlyPGMessage(err))
		return
	}
	sess, err := s.sessions.Init(req.FileName, req.FileSize, req.TotalChunks, datasetID, req.FileHash)
	if err != nil {
		s.datasets.MarkFailed(r.Context(), datasetID, "Upload session could not be created")
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrSessionInitFailed+err.Error())
		return
	}
	s.audit.Record(r.Context(), actor, "CREATE", "datasets", datasetID, nil,
		map[string]interface{}{"dataset_name": req.DatasetName, "source_filename": req.FileName, "chunked": true})

	api.RespondWithData(w, "Upload session created", map[string]interface{}{
		"session_id": sess.ID,
		"dataset_id": datasetID,
	})
}

// handleUploadChunk stores one chunk. Multipart form: session_id,
// chunk_index, chunk (file part). Re-sending an index is an idempotent
// overwrite, so clients can retry freely.
func (s *Service) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.SingleShotMaxBytes); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFailedToParseForm+err.Error())
		return
	}
	sessionID := strings.TrimSpace(r.FormValue(constants.KeySessionID))
	indexRaw := strings.TrimSpace(r.FormValue(constants.KeyChunkIndex))
	index, idxErr := strconv.Atoi(indexRaw)
	chunks := r.MultipartForm.File[constants.KeyChunk]
	if sessionID == "" || idxErr != nil || len(chunks) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, "session_id, chunk_index and a chunk file part are required")
		return
	}
	part, err := chunks[0].Open()
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, "Failed to open chunk part: "+err.Error())
		return
	}
	defer part.Close()

	received, total, err := s.sessions.ReceiveChunk(sessionID, index, part)
	if err != nil {
		status, msg := chunkedErrorStatus(err)
		api.RespondWithError(w, status, msg)
		return
	}
	api.RespondWithData(w, "", map[string]interface{}{
		"received_count":   received,
		"total_chunks":     total,
		"progress_percent": received * 100 / total,
	})
}

type uploadCompleteRequest struct {
	SessionID string `json:"session_id"`
	Sheet     string `json:"sheet,omitempty"`
}

// handleUploadComplete assembles the chunks and hands the file to the
// ingestion pipeline. The session is gone after this call either way.
func (s *Service) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	var req uploadCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
		return
	}
	sess, err := s.sessions.Get(strings.TrimSpace(req.SessionID))
	if err != nil {
		api.RespondWithError(w, http.StatusNotFound, constants.ErrSessionNotFound)
		return
	}
	datasetID := sess.DatasetID
	actor := api.ActorFromContext(r.Context()).UserID

	assembled, err := s.sessions.Complete(sess.ID)
	if err != nil {
		if errors.Is(err, uploadsession.ErrChecksum) {
			s.datasets.MarkFailed(r.Context(), datasetID, constants.ErrChecksumMismatch)
		}
		status, msg := chunkedErrorStatus(err)
		api.RespondWithError(w, status, msg)
		return
	}

	retained, err := s.archiver.Retain(r.Context(), datasetID, assembled)
	if err != nil {
		s.datasets.MarkFailed(r.Context(), datasetID, "Failed to retain assembled file")
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrIngestionFailed+err.Error())
		return
	}

	res, err := s.processor.Process(r.Context(), IngestRequest{Path: retained, DatasetID: datasetID, Sheet: strings.TrimSpace(req.Sheet), Actor: actor})
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, constants.ErrIngestionFailed+FailureReason(err))
		return
	}
	api.RespondWithData(w, "Dataset ingested successfully", map[string]interface{}{
		"dataset_id":      datasetID,
		"inserted_count":  res.Verified,
		"processing_path": res.ProcessingPath,
	})
}

func chunkedErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, uploadsession.ErrSessionNotFound):
		return http.StatusNotFound, constants.ErrSessionNotFound
	case errors.Is(err, uploadsession.ErrAlreadyConsumed):
		return http.StatusConflict, constants.ErrSessionNotFound
	case errors.Is(err, uploadsession.ErrIncompleteUpload):
		return http.StatusBadRequest, constants.ErrIncompleteUpload
	case errors.Is(err, uploadsession.ErrChunkIndex):
		return http.StatusBadRequest, constants.ErrChunkIndexRange
	case errors.Is(err, uploadsession.ErrChecksum):
		return http.StatusBadRequest, constants.ErrChecksumMismatch
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
