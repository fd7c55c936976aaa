// Package archive exports the full event history of a cleared job as JSON
// Lines, for long-term retention outside Postgres. Export never deletes
// anything; the durable rows stay queryable.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"listing-sync/internal/store"
)

const exportPageSize = 500

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Exporter walks a job's event log oldest-page-last and writes one JSONL
// object per event to the configured destination.
type Exporter struct {
	store    store.Store
	uploader uploader
}

// NewLocalExporter writes archives under baseDir.
func NewLocalExporter(st store.Store, baseDir string) *Exporter {
	return &Exporter{store: st, uploader: &localUploader{baseDir: baseDir}}
}

// NewS3Exporter writes archives to the given bucket.
func NewS3Exporter(ctx context.Context, st store.Store, bucket, region string) (*Exporter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &Exporter{store: st, uploader: &s3Uploader{client: client, bucket: bucket}}, nil
}

// Export serializes every event of jobID and uploads one object named by
// job and export time.
func (e *Exporter) Export(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	cursor := int64(0)
	for {
		events, err := e.store.ListEvents(ctx, jobID, exportPageSize, cursor)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(events) == 0 {
			break
		}
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return fmt.Errorf("encode event: %w", err)
			}
		}
		cursor = events[len(events)-1].TimestampMs
		if len(events) < exportPageSize {
			break
		}
	}

	if buf.Len() == 0 {
		return nil
	}

	key := fmt.Sprintf("sync-events/%s/%s.jsonl", jobID, time.Now().UTC().Format("20060102T150405Z"))
	if _, err := e.uploader.Upload(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
