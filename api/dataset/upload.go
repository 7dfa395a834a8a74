package dataset

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/internal/decode"
)

// handleUpload is the single-shot route for files under the size threshold.
// Form fields: name (required), file or temp_ref (one required), sheet
// (required for multi-sheet workbooks).
func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.SingleShotMaxBytes); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFailedToParseForm+err.Error())
		return
	}
	name := strings.TrimSpace(r.FormValue(constants.KeyDatasetName))
	if name == "" {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrDatasetNameRequired)
		return
	}
	sheet := strings.TrimSpace(r.FormValue(constants.KeySheet))

	path, origName, err := s.resolveUploadFile(r)
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Multi-sheet workbooks need an explicit choice before any dataset row
	// exists; the /dataset/sheets route is the enumeration half of that
	// handshake.
	if sheet == "" && isWorkbook(path) {
		sheets, err := decode.ListSheets(path)
		if err == nil && len(sheets) > 1 {
			os.Remove(path)
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrSheetSelectionNeeded)
			return
		}
	}

	actor := api.ActorFromContext(r.Context()).UserID
	datasetID, err := s.datasets.Create(r.Context(), name, origName, actor, constants.StatusProcessing)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDatasetCreateFailed+friendlyPGMessage(err))
		return
	}
	s.audit.Record(r.Context(), actor, "CREATE", "datasets", datasetID, nil,
		map[string]interface{}{"dataset_name": name, "source_filename": origName})

	retained, err := s.archiver.Retain(r.Context(), datasetID, path)
	if err != nil {
		s.datasets.MarkFailed(r.Context(), datasetID, "Failed to retain uploaded file")
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrIngestionFailed+err.Error())
		return
	}

	res, err := s.processor.Process(r.Context(), IngestRequest{Path: retained, DatasetID: datasetID, Sheet: sheet, Actor: actor})
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

// handleSheets enumerates workbook sheets without committing to ingestion.
// The uploaded file is parked under a temp reference id so the follow-up
// /dataset/upload call can use temp_ref instead of re-sending the bytes.
func (s *Service) handleSheets(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(config.SingleShotMaxBytes); err != nil {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFailedToParseForm+err.Error())
		return
	}
	files := r.MultipartForm.File[constants.KeyFile]
	if len(files) == 0 {
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoFileUploaded)
		return
	}
	path, _, err := s.saveIncoming(files[0])
	if err != nil {
		api.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	sheets, err := decode.ListSheets(path)
	if err != nil {
		os.Remove(path)
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrSheetListFailed+err.Error())
		return
	}
	api.RespondWithData(w, "", map[string]interface{}{
		"sheets":            sheets,
		"temp_reference_id": filepath.Base(path),
	})
}

// resolveUploadFile returns a local path for the upload: either the parked
// temp-reference file or the multipart file saved to the tmp area.
func (s *Service) resolveUploadFile(r *http.Request) (path, origName string, err error) {
	if ref := strings.TrimSpace(r.FormValue(constants.KeyTempRef)); ref != "" {
		// Base() strips any traversal the client might try.
		p := filepath.Join(s.uploadDir, "tmp", filepath.Base(ref))
		if _, statErr := os.Stat(p); statErr != nil {
			return "", "", fmt.Errorf("temp reference %q not found or expired", ref)
		}
		return p, filepath.Base(ref), nil
	}
	files := r.MultipartForm.File[constants.KeyFile]
	if len(files) == 0 {
		return "", "", fmt.Errorf("%s", constants.ErrNoFileUploaded)
	}
	return s.saveIncoming(files[0])
}

// saveIncoming validates the extension and streams the multipart file to the
// tmp area. Unsupported formats are rejected before any state exists.
func (s *Service) saveIncoming(fh *multipart.FileHeader) (path, origName string, err error) {
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !decode.SupportedExt(ext) {
		return "", "", fmt.Errorf("%s", constants.ErrUnsupportedFileType)
	}
	if fh.Size > config.SingleShotMaxBytes {
		return "", "", fmt.Errorf("%s", constants.ErrFileTooLarge)
	}
	src, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	dir := filepath.Join(s.uploadDir, "tmp")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("create tmp dir: %w", err)
	}
	dst := filepath.Join(dir, uuid.NewString()+ext)
	out, err := os.Create(dst)
	if err != nil {
		return "", "", fmt.Errorf("create tmp file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", "", fmt.Errorf("store uploaded file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", "", err
	}
	return dst, fh.Filename, nil
}

func isWorkbook(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".xlsx" || ext == ".xls"
}
