package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"flowSwap/internal/model"
)

const (
	PoolsFile     = "pools.jsonl"
	SnapshotsFile = "snapshots.jsonl"
	PositionsFile = "positions.jsonl"
	RejectedFile  = "rejected.jsonl"
)

// JsonlSink appends records to one JSONL file per record kind under dir.
type JsonlSink struct {
	dir string
	mu  sync.Mutex
}

func NewJsonlSink(dir string) *JsonlSink {
	return &JsonlSink{dir: dir}
}

func (s *JsonlSink) PutPoolMeta(_ context.Context, meta model.PoolMeta) error {
	return appendLines(s, PoolsFile, []model.PoolMeta{meta})
}

func (s *JsonlSink) PutSnapshots(_ context.Context, snaps []model.PoolSnapshot) error {
	return appendLines(s, SnapshotsFile, snaps)
}

func (s *JsonlSink) PutPositions(_ context.Context, positions []model.PositionSnapshot) error {
	return appendLines(s, PositionsFile, positions)
}

func (s *JsonlSink) PutEventErrors(_ context.Context, rejected []model.EventError) error {
	return appendLines(s, RejectedFile, rejected)
}

func (s *JsonlSink) Close() error { return nil }

func appendLines[T any](s *JsonlSink, name string, records []T) error {
	if len(records) == 0 {
		return nil
	}

	if s.dir != "" && s.dir != "." {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := sonnet.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", name, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s record: %w", name, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
