package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry represents a single journal entry.
type Entry struct {
	Timestamp string `json:"ts"` // RFC3339 with microseconds.
	Operation string `json:"op"` // Operation name.

	// Optional fields depending on operation.
	PlaylistID string   `json:"playlist_id,omitempty"` // For download/convert/author.
	VideoID    string   `json:"video_id,omitempty"`    // For per-video operations.
	Files      []string `json:"files,omitempty"`       // Produced artifacts.
	Count      int      `json:"count,omitempty"`       // Items processed or removed.
	Bytes      int64    `json:"bytes,omitempty"`       // Bytes written or freed.
	Duration   string   `json:"duration,omitempty"`    // Wall-clock time of the operation.
}

// Log is an append-only JSON Lines journal of pipeline runs. A nil
// *Log is valid and records nothing, so callers never have to guard
// their Record calls.
type Log struct {
	mu   sync.Mutex
	path string
}

// Open returns a journal writing to audit.jsonl under logDir.
// Returns nil if logDir is empty, which disables journaling.
func Open(logDir string) *Log {
	if logDir == "" {
		return nil
	}
	return &Log{path: filepath.Join(logDir, "audit.jsonl")}
}

// Path returns the journal file path, or empty for a nil journal.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Record appends an entry to the journal.
// If journaling fails, the failure is swallowed: pipeline operations
// should not fail just because the journal could not be written.
func (l *Log) Record(entry Entry) {
	if l == nil {
		return
	}

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return
	}

	// #nosec G306 -- the journal is informational, not sensitive.
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// Entries reads all entries from the journal.
// Returns an empty slice if the journal doesn't exist.
func (l *Log) Entries() ([]Entry, error) {
	if l == nil {
		return nil, nil
	}

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into journal entries.
// Malformed lines are silently skipped.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	start := 0

	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1

			if len(line) == 0 {
				continue
			}

			var entry Entry
			if err := json.Unmarshal(line, &entry); err != nil {
				// Skip malformed entries.
				continue
			}
			entries = append(entries, entry)
		}
	}

	return entries, nil
}
