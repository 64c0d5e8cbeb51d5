// Package storage holds helpers shared by the report stores.
package storage

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/JakeFAU/wikititles-crawler/internal/crawler"
)

// ContentType is the media type of encoded reports.
const ContentType = "application/json"

// ObjectName returns the file or object name for report under prefix.
// Reports without a run id are named after their finish time.
func ObjectName(prefix string, report crawler.Report) string {
	name := report.RunID
	if name == "" {
		name = "report-" + report.FinishedAt.UTC().Format("20060102T150405Z")
	}
	return path.Join(prefix, name+".json")
}

// Encode renders report as indented JSON.
func Encode(report crawler.Report) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return append(data, '\n'), nil
}
