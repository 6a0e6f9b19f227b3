package bubble

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/complyera/chainmigrate/internal/legacy"
)

// stubFetcher serves canned records and fails for configured sheet ids.
type stubFetcher struct {
	entities    map[legacy.EntityType][]json.RawMessage
	sheets      map[string][]json.RawMessage
	failSheets  map[string]bool
	entityCalls int
	sheetCalls  []string
}

func (s *stubFetcher) FetchAll(_ context.Context, entity legacy.EntityType) ([]json.RawMessage, error) {
	s.entityCalls++
	return s.entities[entity], nil
}

func (s *stubFetcher) FetchSheetAnswers(_ context.Context, sheetID string) ([]json.RawMessage, error) {
	s.sheetCalls = append(s.sheetCalls, sheetID)
	if s.failSheets[sheetID] {
		return nil, errors.New("simulated rate limit")
	}
	return s.sheets[sheetID], nil
}

func raw(ids ...string) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(fmt.Sprintf(`{"_id":%q}`, id)))
	}
	return out
}

func testExporter(t *testing.T, fetcher Fetcher) *Exporter {
	t.Helper()
	return &Exporter{
		Client: fetcher,
		Cache:  ExportCache{Dir: t.TempDir()},
		Log:    zap.NewNop().Sugar(),
	}
}

func TestExportEntityCachesResult(t *testing.T) {
	stub := &stubFetcher{entities: map[legacy.EntityType][]json.RawMessage{
		legacy.EntityCompany: raw("c1", "c2"),
	}}
	e := testExporter(t, stub)

	first, err := e.ExportEntity(context.Background(), legacy.EntityCompany)
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	second, err := e.ExportEntity(context.Background(), legacy.EntityCompany)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}

	if len(first) != 2 || len(second) != 2 {
		t.Errorf("records = %d then %d, want 2 and 2", len(first), len(second))
	}
	if stub.entityCalls != 1 {
		t.Errorf("network calls = %d, want 1 (second run must hit the cache)", stub.entityCalls)
	}
}

func TestExportAnswersUnionsAndSkips(t *testing.T) {
	stub := &stubFetcher{
		sheets: map[string][]json.RawMessage{
			"s1": raw("a1", "a2"),
			"s2": raw("a2", "a3"), // a2 duplicated across sheets
		},
		failSheets: map[string]bool{"s3": true},
	}
	e := testExporter(t, stub)

	records, stats, err := e.ExportAnswers(context.Background(), []string{"s1", "s2", "s3"})
	if err != nil {
		t.Fatalf("ExportAnswers: %v", err)
	}

	if len(records) != 3 {
		t.Errorf("records = %d, want 3 unique", len(records))
	}
	if stats.Duplicates != 1 {
		t.Errorf("duplicates = %d, want 1", stats.Duplicates)
	}
	if stats.SkippedSheets != 1 {
		t.Errorf("skipped sheets = %d, want 1 (best-effort, not fatal)", stats.SkippedSheets)
	}
}

func TestExportAnswersResumesFromJobLog(t *testing.T) {
	dir := t.TempDir()

	// Simulate a run killed after checkpointing s1 but before the final
	// cache write: only the progress log exists.
	log, err := OpenJobLog(dir)
	if err != nil {
		t.Fatalf("seed job log: %v", err)
	}
	if err := log.Append("s1", raw("a1")); err != nil {
		t.Fatalf("seed append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("seed close: %v", err)
	}

	stub2 := &stubFetcher{sheets: map[string][]json.RawMessage{"s2": raw("a2")}}
	e2 := &Exporter{Client: stub2, Cache: ExportCache{Dir: dir}, Log: zap.NewNop().Sugar()}
	records, stats, err := e2.ExportAnswers(context.Background(), []string{"s1", "s2"})
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}

	for _, got := range stub2.sheetCalls {
		if got == "s1" {
			t.Errorf("s1 was refetched despite the progress log")
		}
	}
	if stats.Resumed != 1 {
		t.Errorf("resumed = %d, want 1", stats.Resumed)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2 (replayed a1 + fetched a2)", len(records))
	}
}

func TestExportAnswersUsesCacheWhenComplete(t *testing.T) {
	stub := &stubFetcher{sheets: map[string][]json.RawMessage{"s1": raw("a1")}}
	e := testExporter(t, stub)

	if _, _, err := e.ExportAnswers(context.Background(), []string{"s1"}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, _, err := e.ExportAnswers(context.Background(), []string{"s1"}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(stub.sheetCalls) != 1 {
		t.Errorf("sheet fetches = %d, want 1 (second run must hit the cache)", len(stub.sheetCalls))
	}
}

func TestJobLogRoundTrip(t *testing.T) {
	dir := t.TempDir()

	log, err := OpenJobLog(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := log.Append("s1", raw("a1", "a2")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenJobLog(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	if !reopened.Done("s1") || reopened.Done("s2") {
		t.Errorf("done set wrong after reopen")
	}
	records, err := reopened.Replay()
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("replayed records = %d, want 2", len(records))
	}
}
