package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LoggerService owns the process log file: size-based rotation plus daily
// zip-and-prune of logs older than the retention window.
type LoggerService struct {
	mu            sync.Mutex
	file          *os.File
	currentLog    string
	folderPath    string
	maxFileBytes  int64
	retentionDays int
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

func NewLoggerService(cfg map[string]interface{}) *LoggerService {
	maxMB := cfgInt(cfg, "max_file_mb", 50)
	retention := cfgInt(cfg, "retention_days", 14)
	folder, _ := cfg["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	return &LoggerService{
		folderPath:    folder,
		maxFileBytes:  int64(maxMB) * 1024 * 1024,
		retentionDays: retention,
		stopCh:        make(chan struct{}),
	}
}

func cfgInt(cfg map[string]interface{}, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.folderPath, 0755); err != nil {
		return err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentLog = logFile
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.Println("[LoggerService] Started, writing to", logFile)

	l.wg.Add(1)
	go l.backgroundWorker()
	return nil
}

func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		log.Println("[LoggerService] Stopping")
		log.SetOutput(os.Stdout)
		return l.file.Close()
	}
	return nil
}

func (l *LoggerService) nextLogFileName() string {
	timestamp := time.Now().Format("20060102_150405")
	return filepath.Join(l.folderPath, fmt.Sprintf("ingest_%s.log", timestamp))
}

func (l *LoggerService) backgroundWorker() {
	defer l.wg.Done()
	rotate := time.NewTicker(30 * time.Second)
	retain := time.NewTicker(24 * time.Hour)
	defer rotate.Stop()
	defer retain.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-rotate.C:
			if err := l.rotateIfNeeded(); err != nil {
				log.Println("[LoggerService] rotation error:", err)
			}
		case <-retain.C:
			l.zipAndCleanOldLogs()
		}
	}
}

func (l *LoggerService) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxFileBytes {
		return nil
	}
	l.file.Close()
	newLog := l.nextLogFileName()
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentLog = newLog
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	log.Println("[LoggerService] Rotated log file to", newLog)
	return nil
}

func (l *LoggerService) zipAndCleanOldLogs() {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.retentionDays)
	entries, err := os.ReadDir(l.folderPath)
	if err != nil {
		return
	}
	zipName := filepath.Join(l.folderPath, fmt.Sprintf("ingest_logs_%s.zip", time.Now().Format("20060102")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, e.Name())
		if fullPath == l.currentLog {
			continue
		}
		info, err := os.Stat(fullPath)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		w, err := zw.Create(e.Name())
		if err != nil {
			continue
		}
		src, err := os.Open(fullPath)
		if err != nil {
			continue
		}
		io.Copy(w, src)
		src.Close()
		os.Remove(fullPath)
	}
}

// LogAudit writes an operator-facing audit line through the shared log file.
func (l *LoggerService) LogAudit(msg string) {
	log.Printf("[AUDIT] %s", msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}
