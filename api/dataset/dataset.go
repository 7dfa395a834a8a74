package dataset

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"FinLedgerSaas/api"
	"FinLedgerSaas/api/constants"
)

// friendlyPGMessage maps Postgres error codes onto messages the dashboard
// can show directly.
func friendlyPGMessage(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err.Error()
	}
	switch pqErr.Code {
	case "23505":
		return "A dataset with the same unique value already exists."
	case "23503":
		return "Some referenced data was not found (please refresh and try again)."
	case "23514":
		return "Some fields have invalid values. Please check and try again."
	default:
		return "Database error while processing the request. Please try again."
	}
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.datasets.List(r.Context())
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, friendlyPGMessage(err))
		return
	}
	api.RespondWithData(w, "", map[string]interface{}{"datasets": datasets})
}

// handleGet serves status polling for in-flight and finished imports.
func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, err := s.datasets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondWithError(w, http.StatusNotFound, constants.ErrDatasetNotFound)
			return
		}
		api.RespondWithError(w, http.StatusInternalServerError, friendlyPGMessage(err))
		return
	}
	api.RespondWithData(w, "", d)
}

// handleDelete removes the dataset; records cascade with it. The retained
// source file goes too.
func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := api.ActorFromContext(r.Context()).UserID

	d, err := s.datasets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondWithError(w, http.StatusNotFound, constants.ErrDatasetNotFound)
			return
		}
		api.RespondWithError(w, http.StatusInternalServerError, friendlyPGMessage(err))
		return
	}
	if err := s.datasets.Delete(r.Context(), id); err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDeleteFailed+friendlyPGMessage(err))
		return
	}
	if d.SourcePath != nil {
		os.Remove(*d.SourcePath)
	}
	s.audit.Record(r.Context(), actor, "DELETE", "datasets", id, d, nil)
	api.RespondWithData(w, "Dataset deleted", nil)
}

type reprocessRequest struct {
	Sheet string `json:"sheet,omitempty"`
}

// handleReprocess wipes the dataset's records and re-runs ingestion from the
// retained source artifact. Only possible while the artifact is still on
// disk; after the retention window it is gone and so is this option.
func (s *Service) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	actor := api.ActorFromContext(r.Context()).UserID

	var req reprocessRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	d, err := s.datasets.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.RespondWithError(w, http.StatusNotFound, constants.ErrDatasetNotFound)
			return
		}
		api.RespondWithError(w, http.StatusInternalServerError, friendlyPGMessage(err))
		return
	}
	if d.SourcePath == nil {
		api.RespondWithError(w, http.StatusGone, constants.ErrSourceNotRetained)
		return
	}
	if _, err := os.Stat(*d.SourcePath); err != nil {
		api.RespondWithError(w, http.StatusGone, constants.ErrSourceNotRetained)
		return
	}

	deleted, err := s.records.DeleteByDataset(r.Context(), id)
	if err != nil {
		api.RespondWithError(w, http.StatusInternalServerError, constants.ErrReprocessFailed+err.Error())
		return
	}
	api.LogInfo("[Reprocess] dataset=%s cleared %d records", id, deleted)
	s.audit.Record(r.Context(), actor, "REPROCESS", "datasets", id,
		map[string]interface{}{"record_count": d.RecordCount}, nil)

	res, err := s.processor.Process(r.Context(), IngestRequest{Path: *d.SourcePath, DatasetID: id, Sheet: strings.TrimSpace(req.Sheet), Actor: actor})
	if err != nil {
		api.RespondWithError(w, http.StatusUnprocessableEntity, constants.ErrReprocessFailed+FailureReason(err))
		return
	}
	api.RespondWithData(w, "Dataset reprocessed", map[string]interface{}{
		"dataset_id":      id,
		"inserted_count":  res.Verified,
		"processing_path": res.ProcessingPath,
	})
}
