package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"FinLedgerSaas/api/dataset"
	"FinLedgerSaas/internal/config"
	"FinLedgerSaas/internal/logger"
	"FinLedgerSaas/internal/uploadsession"
)

// CronService runs the operational sweeps: abandoned chunk-upload sessions,
// retained-source retention, and temp-reference cleanup.
type CronService struct {
	cfg      map[string]interface{}
	sessions *uploadsession.Manager
	archiver *dataset.Archiver
	datasets dataset.DatasetStore
	cron     *cron.Cron
}

func NewCronService(cfg map[string]interface{}, sessions *uploadsession.Manager, archiver *dataset.Archiver, datasets dataset.DatasetStore) *CronService {
	return &CronService{cfg: cfg, sessions: sessions, archiver: archiver, datasets: datasets}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	sweepSchedule := config.DefaultSweepSchedule
	if v, ok := s.cfg["sweep_schedule"].(string); ok && v != "" {
		sweepSchedule = v
	}
	retentionSchedule := config.DefaultRetentionSchedule
	if v, ok := s.cfg["retention_schedule"].(string); ok && v != "" {
		retentionSchedule = v
	}
	retentionDays := config.SourceRetentionDays
	if v, ok := s.cfg["source_retention_days"].(int); ok && v > 0 {
		retentionDays = v
	}

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(sweepSchedule, s.sweepSessions); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(retentionSchedule, func() { s.pruneRetained(retentionDays) }); err != nil {
		return fmt.Errorf("schedule retention prune: %w", err)
	}
	s.cron.Start()

	if logger.GlobalLogger != nil {
		logger.GlobalLogger.LogAudit("Cron service started with session sweep and retention prune")
	}
	log.Printf("Cron service started: sweep %q, retention %q (%d days)", sweepSchedule, retentionSchedule, retentionDays)
	return nil
}

func (s *CronService) Stop() error {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	return nil
}

// sweepSessions reclaims chunk sessions whose client vanished mid-transfer:
// staging files are removed and the orphaned dataset row goes to failed.
func (s *CronService) sweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reclaimed := s.sessions.Sweep(config.SessionMaxAge, func(datasetID string) {
		if err := s.datasets.MarkFailed(ctx, datasetID, "Upload was abandoned and its session expired"); err != nil {
			log.Printf("[CronService] mark abandoned dataset %s failed: %v", datasetID, err)
		}
	})
	if reclaimed > 0 {
		log.Printf("[CronService] reclaimed %d abandoned upload sessions (%d still live)", reclaimed, s.sessions.Len())
	}
}

func (s *CronService) pruneRetained(retentionDays int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	pruned := s.archiver.PruneRetained(ctx, time.Duration(retentionDays)*24*time.Hour)
	tmp := s.archiver.PruneTempRefs(config.TempReferenceMaxAge)
	if pruned > 0 || tmp > 0 {
		log.Printf("[CronService] pruned %d retained sources, %d temp references", pruned, tmp)
	}
}
