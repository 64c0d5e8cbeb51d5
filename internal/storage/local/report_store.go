// Package local writes run reports to the local filesystem.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
	"github.com/JakeFAU/wikititles-crawler/internal/storage"
)

// Config captures the parameters for the local report store.
type Config struct {
	// Dir is the directory reports are written into.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ReportStore writes one JSON file per run.
type ReportStore struct {
	dir string
}

// New creates the directory if needed and verifies it is writable.
func New(cfg Config) (*ReportStore, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("report directory is required")
	}

	info, err := os.Stat(cfg.Dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create report directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat report directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("report path %q is not a directory", cfg.Dir)
	}

	probe := filepath.Join(cfg.Dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("report directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &ReportStore{dir: cfg.Dir}, nil
}

// SaveReport writes report as <run id>.json and returns a file:// URI.
func (s *ReportStore) SaveReport(_ context.Context, report crawler.Report) (string, error) {
	data, err := storage.Encode(report)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.dir, storage.ObjectName("", report))
	cleanBase := filepath.Clean(s.dir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("report name escapes %s", s.dir)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return "file://" + fullPath, nil
}
