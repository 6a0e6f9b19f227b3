package bubble

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JobLog is an append-only record of per-sheet answer-export progress. The
// full answer export issues one paginated sub-query per sheet across tens of
// thousands of sheets; without mid-entity checkpointing an interrupted run
// would refetch everything. Each completed sheet appends one JSONL line with
// the sheet id and its raw answer records; on resume, logged sheets are
// skipped and their records replayed from the log.
type JobLog struct {
	path string
	done map[string]bool
	file *os.File
}

type jobLogEntry struct {
	SheetID string            `json:"sheet_id"`
	Records []json.RawMessage `json:"records"`
}

// decodeEntries parses JSONL content, stopping at the first corrupt line —
// the usual result of a kill mid-write — so at most one sheet's progress is
// lost.
func decodeEntries(data []byte) []jobLogEntry {
	var entries []jobLogEntry
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry jobLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			break
		}
		entries = append(entries, entry)
	}
	return entries
}

// OpenJobLog opens (or creates) the progress log under dir and loads the set
// of already-completed sheet ids.
func OpenJobLog(dir string) (*JobLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, "answers.progress.jsonl")

	log := &JobLog{path: path, done: make(map[string]bool)}

	if data, err := os.ReadFile(path); err == nil {
		for _, entry := range decodeEntries(data) {
			log.done[entry.SheetID] = true
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read answer progress log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open answer progress log: %w", err)
	}
	log.file = f
	return log, nil
}

// Done reports whether a sheet's answers were already exported.
func (l *JobLog) Done(sheetID string) bool {
	return l.done[sheetID]
}

// Completed returns how many sheets the log already covers.
func (l *JobLog) Completed() int {
	return len(l.done)
}

// Append records a completed sheet and its raw answers. The line is flushed
// before returning so a crash after Append never repeats the sheet.
func (l *JobLog) Append(sheetID string, records []json.RawMessage) error {
	line, err := json.Marshal(jobLogEntry{SheetID: sheetID, Records: records})
	if err != nil {
		return err
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append answer progress: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync answer progress: %w", err)
	}
	l.done[sheetID] = true
	return nil
}

// Replay returns every record logged so far, in log order.
func (l *JobLog) Replay() ([]json.RawMessage, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay answer progress log: %w", err)
	}
	var all []json.RawMessage
	for _, entry := range decodeEntries(data) {
		all = append(all, entry.Records...)
	}
	return all, nil
}

// Close closes the underlying file.
func (l *JobLog) Close() error {
	return l.file.Close()
}

// Remove deletes the log after a completed export has been promoted to the
// entity cache.
func (l *JobLog) Remove() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
