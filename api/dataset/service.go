package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"FinLedgerSaas/api"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/internal/serviceiface"
	"FinLedgerSaas/internal/uploadsession"
)

// Service owns the ingestion HTTP surface and the pipeline behind it.
type Service struct {
	cfg  map[string]interface{}
	db   *sql.DB
	pool *pgxpool.Pool

	datasets  DatasetStore
	records   RecordStore
	audit     AuditSink
	sessions  *uploadsession.Manager
	archiver  *Archiver
	processor Processor
	uploadDir string

	srv *http.Server
}

func NewService(cfg map[string]interface{}, db *sql.DB, pool *pgxpool.Pool) serviceiface.Service {
	return &Service{cfg: cfg, db: db, pool: pool, uploadDir: config.UploadDir()}
}

func (s *Service) Name() string {
	return "dataset"
}

func (s *Service) Start() error {
	s.datasets = NewPGDatasetStore(s.db)
	s.records = NewPGRecordStore(s.pool)
	s.audit = NewPGAuditSink(s.db)

	sessions, err := uploadsession.NewManager(s.uploadDir)
	if err != nil {
		return fmt.Errorf("init upload sessions: %w", err)
	}
	s.sessions = sessions

	s.archiver, err = NewArchiver(s.uploadDir, s.datasets)
	if err != nil {
		return fmt.Errorf("init archiver: %w", err)
	}

	engine := NewEngine(s.datasets, s.records, s.audit)
	if n, ok := s.cfg["batch_size"].(int); ok {
		engine.WithBatchSize(n)
	}
	accel := NewAcceleratorClient(config.AcceleratorURLs())
	s.processor = NewFallbackProcessor(accel, engine, s.datasets, s.records, s.audit)

	port := config.DefaultDatasetPort
	if p, ok := s.cfg["port"].(string); ok && p != "" {
		port = p
	}
	s.srv = &http.Server{Addr: port, Handler: s.router()}
	go func() {
		log.Println("Dataset Service started on", port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Dataset Service failed: %v", err)
		}
	}()
	return nil
}

func (s *Service) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Service) router() http.Handler {
	r := mux.NewRouter()
	ds := r.PathPrefix("/dataset").Subrouter()
	ds.Use(api.RequireAdmin)

	ds.HandleFunc("/upload/init", s.handleUploadInit).Methods(http.MethodPost)
	ds.HandleFunc("/upload/chunk", s.handleUploadChunk).Methods(http.MethodPost)
	ds.HandleFunc("/upload/complete", s.handleUploadComplete).Methods(http.MethodPost)
	ds.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	ds.HandleFunc("/sheets", s.handleSheets).Methods(http.MethodPost)
	ds.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	ds.HandleFunc("/{id}/reprocess", s.handleReprocess).Methods(http.MethodPost)
	ds.HandleFunc("/{id}", s.handleGet).Methods(http.MethodGet)
	ds.HandleFunc("/{id}", s.handleDelete).Methods(http.MethodDelete)
	return r
}

// SessionManager exposes the chunk-session store so the cron sweep can
// reclaim abandoned uploads.
func (s *Service) SessionManager() *uploadsession.Manager {
	return s.sessions
}

// SourceArchiver exposes source-file retention for the cron pruning job.
func (s *Service) SourceArchiver() *Archiver {
	return s.archiver
}

// Datasets exposes the dataset store for cross-service wiring.
func (s *Service) Datasets() DatasetStore {
	return s.datasets
}
