package bubble

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/complyera/chainmigrate/internal/legacy"
)

// Fetcher is the slice of Client the exporter needs; tests substitute a stub.
type Fetcher interface {
	FetchAll(ctx context.Context, entity legacy.EntityType) ([]json.RawMessage, error)
	FetchSheetAnswers(ctx context.Context, sheetID string) ([]json.RawMessage, error)
}

// Exporter combines the API client with the file cache and the answer
// progress log. It is the extract phase of the import: everything it returns
// is raw JSON, typed later by the legacy package.
type Exporter struct {
	Client Fetcher
	Cache  ExportCache
	Log    *zap.SugaredLogger
}

// ExportEntity returns all records of one entity type, from cache when a
// cache file exists, otherwise from the network (and saves the result).
func (e *Exporter) ExportEntity(ctx context.Context, entity legacy.EntityType) ([]json.RawMessage, error) {
	records, ok, err := e.Cache.Load(entity)
	if err != nil {
		return nil, err
	}
	if ok {
		e.Log.Infow("using cached export", "entity", entity, "records", len(records))
		return records, nil
	}

	records, err = e.Client.FetchAll(ctx, entity)
	if err != nil {
		return nil, err
	}
	if err := e.Cache.Save(entity, records); err != nil {
		return nil, err
	}
	return records, nil
}

// AnswerExportStats tallies the per-sheet answer export.
type AnswerExportStats struct {
	Sheets        int
	Resumed       int // sheets replayed from the progress log
	Fetched       int // sheets fetched this run
	SkippedSheets int // sheets abandoned after fetch failures (best-effort)
	Records       int // unique answer records
	Duplicates    int // records dropped by the seen-id union
}

// ExportAnswers drains the answer table one sheet at a time. A fetch failure
// for a sheet logs and skips that sheet rather than aborting: across tens of
// thousands of sheets the goal is best-effort completeness, not
// all-or-nothing correctness. Sub-results are unioned under a seen-_id set.
// Completed sheets checkpoint to the progress log, and the finished union is
// promoted to the regular entity cache, after which the log is removed.
func (e *Exporter) ExportAnswers(ctx context.Context, sheetIDs []string) ([]json.RawMessage, AnswerExportStats, error) {
	stats := AnswerExportStats{Sheets: len(sheetIDs)}

	if cached, ok, err := e.Cache.Load(legacy.EntityAnswer); err != nil {
		return nil, stats, err
	} else if ok {
		e.Log.Infow("using cached answer export", "records", len(cached))
		stats.Records = len(cached)
		return cached, stats, nil
	}

	jobLog, err := OpenJobLog(e.Cache.Dir)
	if err != nil {
		return nil, stats, err
	}

	seen := make(map[string]bool)
	var all []json.RawMessage
	union := func(records []json.RawMessage) {
		for _, r := range records {
			var probe struct {
				ID string `json:"_id"`
			}
			if err := json.Unmarshal(r, &probe); err != nil || probe.ID == "" {
				continue
			}
			if seen[probe.ID] {
				stats.Duplicates++
				continue
			}
			seen[probe.ID] = true
			all = append(all, r)
		}
	}

	if jobLog.Completed() > 0 {
		replayed, err := jobLog.Replay()
		if err != nil {
			return nil, stats, err
		}
		union(replayed)
		stats.Resumed = jobLog.Completed()
		e.Log.Infow("resuming answer export", "sheets_done", stats.Resumed, "records", len(all))
	}

	for i, sheetID := range sheetIDs {
		if err := ctx.Err(); err != nil {
			_ = jobLog.Close()
			return nil, stats, err
		}
		if jobLog.Done(sheetID) {
			continue
		}

		records, err := e.Client.FetchSheetAnswers(ctx, sheetID)
		if err != nil {
			// Best-effort: incomplete coverage for one sheet beats
			// blocking the whole import.
			e.Log.Warnw("skipping sheet after answer fetch failure", "sheet", sheetID, "error", err)
			stats.SkippedSheets++
			continue
		}
		union(records)
		if err := jobLog.Append(sheetID, records); err != nil {
			_ = jobLog.Close()
			return nil, stats, err
		}
		stats.Fetched++

		if done := i + 1; done%1000 == 0 {
			e.Log.Infof("answer export progress: %d/%d sheets (%.1f%%), %d records",
				done, len(sheetIDs), 100*float64(done)/float64(len(sheetIDs)), len(all))
		}
	}

	if err := e.Cache.Save(legacy.EntityAnswer, all); err != nil {
		_ = jobLog.Close()
		return nil, stats, err
	}
	if err := jobLog.Remove(); err != nil {
		return nil, stats, fmt.Errorf("remove answer progress log: %w", err)
	}

	stats.Records = len(all)
	e.Log.Infow("answer export complete",
		"records", stats.Records, "duplicates", stats.Duplicates, "skipped_sheets", stats.SkippedSheets)
	return all, stats, nil
}
