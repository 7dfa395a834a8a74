package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"FinLedgerSaas/api"
	"FinLedgerSaas/internal/checksum"
)

const (
	archiveDefaultBucket = "finledger"
	archiveDefaultRegion = "ap-south-1"
	archivePrefix        = "datasets/"
)

func archiveBucket() string {
	if b := strings.TrimSpace(os.Getenv("DATASET_S3_BUCKET")); b != "" {
		return b
	}
	return archiveDefaultBucket
}

func archiveRegion() string {
	if r := strings.TrimSpace(os.Getenv("DATASET_S3_REGION")); r != "" {
		return r
	}
	return archiveDefaultRegion
}

// isArchiveEnabled reads DATASET_S3_ENABLED. Defaults to false: S3 archival
// is opt-in and purely for off-box backup, never read back.
func isArchiveEnabled() bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv("DATASET_S3_ENABLED")))
	return v == "1" || v == "true" || v == "yes"
}

// Archiver retains ingested source files so a dataset can be reprocessed,
// and prunes them once the retention window lapses.
type Archiver struct {
	root     string
	datasets DatasetStore
}

func NewArchiver(root string, datasets DatasetStore) (*Archiver, error) {
	dir := filepath.Join(root, "datasets")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create retention dir: %w", err)
	}
	return &Archiver{root: root, datasets: datasets}, nil
}

// Retain moves the ingested file into the retention area, records its path
// on the dataset row and kicks off the optional S3 copy. The file hash is
// logged so duplicate uploads are traceable.
func (a *Archiver) Retain(ctx context.Context, datasetID, srcPath string) (string, error) {
	dst := filepath.Join(a.root, "datasets", datasetID+strings.ToLower(filepath.Ext(srcPath)))
	if err := moveFile(srcPath, dst); err != nil {
		return "", fmt.Errorf("retain source for dataset %s: %w", datasetID, err)
	}
	if hash, err := checksum.FileSHA256(dst); err == nil {
		api.LogInfo("[Archiver] retained dataset=%s file=%s sha256=%s", datasetID, dst, hash)
	}
	if err := a.datasets.SetSourcePath(ctx, datasetID, dst); err != nil {
		return "", err
	}
	if isArchiveEnabled() {
		go a.uploadToS3(datasetID, dst)
	}
	return dst, nil
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func (a *Archiver) uploadToS3(datasetID, path string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(archiveRegion()))
	if err != nil {
		api.LogError("[Archiver] load AWS config: %v", err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		api.LogError("[Archiver] open %s for S3 upload: %v", path, err)
		return
	}
	defer f.Close()
	client := s3.NewFromConfig(cfg)
	key := archivePrefix + datasetID + filepath.Ext(path)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(archiveBucket()),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		api.LogError("[Archiver] S3 upload failed (bucket %s, key %s): %v", archiveBucket(), key, err)
		return
	}
	api.LogInfo("[Archiver] archived dataset %s to s3://%s/%s", datasetID, archiveBucket(), key)
}

// PruneRetained deletes retained source files older than the retention
// window and clears their paths, after which reprocess for those datasets
// reports the source as no longer available. Returns how many were pruned.
func (a *Archiver) PruneRetained(ctx context.Context, olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	stale, err := a.datasets.ListRetainedBefore(ctx, cutoff)
	if err != nil {
		api.LogError("[Archiver] list retained sources: %v", err)
		return 0
	}
	pruned := 0
	for _, d := range stale {
		if d.SourcePath == nil {
			continue
		}
		if err := os.Remove(*d.SourcePath); err != nil && !os.IsNotExist(err) {
			api.LogError("[Archiver] remove retained file %s: %v", *d.SourcePath, err)
			continue
		}
		if err := a.datasets.ClearSourcePath(ctx, d.ID); err != nil {
			api.LogError("[Archiver] clear source path for dataset %s: %v", d.ID, err)
			continue
		}
		pruned++
	}
	return pruned
}

// PruneTempRefs removes files parked by the sheet-enumeration route once
// they outlive their referencable window.
func (a *Archiver) PruneTempRefs(maxAge time.Duration) int {
	dir := filepath.Join(a.root, "tmp")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			pruned++
		}
	}
	return pruned
}
