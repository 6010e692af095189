package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vitos/trade_engine/internal/domain"
)

// Log is the append-only decision journal: one newline-delimited JSON file
// per calendar day. Writers are serialized by a mutex scoped to the log, each
// append verifies the file ends with a newline first (self-healing against a
// partially written prior line) and syncs so a crash cannot lose the most
// recent decision.
type Log struct {
	dir string

	mu          sync.Mutex
	lastReasons []string
	timeNow     func() time.Time // for testing
}

func NewLog(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &Log{dir: dir, timeNow: time.Now}, nil
}

func (l *Log) Append(entry domain.DecisionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Time.IsZero() {
		entry.Time = l.timeNow()
	}
	if len(entry.Reasons) > 0 {
		l.lastReasons = append([]string(nil), entry.Reasons...)
	}

	record := map[string]any{
		"ts":    entry.Time.UTC().Format(time.RFC3339Nano),
		"stage": entry.Stage,
	}
	if entry.CycleID != "" {
		record["cycle_id"] = entry.CycleID
	}
	if len(entry.Reasons) > 0 {
		record["reasons"] = entry.Reasons
	}
	for k, v := range entry.Payload {
		record[k] = v
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	path := filepath.Join(l.dir, entry.Time.Format("2006-01-02")+".ndjson")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ensureTrailingNewline(f); err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// LastReasons returns the reason set from the most recent entry that carried
// one, for real-time display.
func (l *Log) LastReasons() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lastReasons...)
}

// ensureTrailingNewline positions the file at its end, appending a newline
// first when the last byte is not one.
func ensureTrailingNewline(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			if _, err := f.WriteAt([]byte{'\n'}, size); err != nil {
				return err
			}
			size++
		}
	}
	_, err = f.Seek(size, 0)
	return err
}
