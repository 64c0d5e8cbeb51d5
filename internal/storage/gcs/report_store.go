// Package gcs uploads run reports to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	reportstorage "github.com/JakeFAU/wikititles-crawler/internal/storage"
)

// Config captures the bucket and object prefix for reports.
type Config struct {
	Bucket string
	Prefix string
}

// ReportStore writes one object per run.
type ReportStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed report store.
func New(client *storage.Client, cfg Config) (*ReportStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &ReportStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// SaveReport uploads report as JSON and returns its gs:// URI.
func (s *ReportStore) SaveReport(ctx context.Context, report crawler.Report) (string, error) {
	data, err := reportstorage.Encode(report)
	if err != nil {
		return "", err
	}
	name := reportstorage.ObjectName(s.prefix, report)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = reportstorage.ContentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}
