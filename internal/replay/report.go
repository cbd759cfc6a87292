package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// Summary describes one replay run.
type Summary struct {
	Total         int    `json:"total"`
	Applied       int    `json:"applied"`
	Rejected      int    `json:"rejected"`
	Failed        int    `json:"failed"`
	Snapshots     int    `json:"snapshots"`
	LastTimestamp uint32 `json:"last_timestamp"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// ReportStore persists the run summary to disk.
type ReportStore struct {
	path string
}

func NewReportStore(path string) *ReportStore {
	return &ReportStore{path: path}
}

func (r *ReportStore) Load() (Summary, bool, error) {
	if r == nil || r.path == "" {
		return Summary{}, false, nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, false, nil
		}
		return Summary{}, false, fmt.Errorf("read report: %w", err)
	}
	var s Summary
	if err := sonnet.Unmarshal(data, &s); err != nil {
		return Summary{}, false, fmt.Errorf("parse report: %w", err)
	}
	return s, true, nil
}

func (r *ReportStore) Save(s Summary) error {
	if r == nil || r.path == "" {
		return nil
	}

	dir := filepath.Dir(r.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}

	s.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := sonnet.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmpPath := r.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write report tmp: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
