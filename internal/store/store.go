// Package store persists migrated entities into the target Postgres schema.
// Entity writes are upserts keyed by the bubble_id external-id column, which
// is what makes failed runs safely re-invokable; answers are plain batched
// inserts, write-once per migration run. Individual row failures log and
// count rather than aborting — there is no transaction spanning an import.
package store

import (
	"context"

	"github.com/complyera/chainmigrate/internal/legacy"
	"github.com/complyera/chainmigrate/internal/reconcile"
)

// RowStats counts the outcome of a per-row write loop.
type RowStats struct {
	Written int
	Skipped int
}

// Add merges another tally into this one.
func (s *RowStats) Add(other RowStats) {
	s.Written += other.Written
	s.Skipped += other.Skipped
}

// IDMap translates legacy bubble ids to target-store row ids.
type IDMap = map[string]string

// CanonicalQuestion is a database question as seen by the spreadsheet
// matcher: scoped by section, typed so dropdowns get choice handling.
type CanonicalQuestion struct {
	ID      string
	Name    string
	Type    string
	Section string
}

// IsDropdown reports whether the question's answers reference choices.
func (q CanonicalQuestion) IsDropdown() bool {
	return q.Type == "dropdown"
}

// ChoiceRow is an existing dropdown option.
type ChoiceRow struct {
	ID   string
	Name string
}

// SheetAnswer is one answer written by the spreadsheet path, upserted per
// (sheet, question).
type SheetAnswer struct {
	SheetID    string
	QuestionID string
	ChoiceID   string // set for dropdown questions
	Value      string
	Comment    string
}

// Store is the write surface of the target schema. The concrete
// implementation is Postgres via pgx; the importer depends on this interface
// so reconciliation runs are testable without a database.
type Store interface {
	// Bubble path, in dependency order. Each upsert returns the bubble id →
	// row id translation the dependents need.
	UpsertCompanies(ctx context.Context, companies []legacy.Company) (IDMap, RowStats, error)
	UpsertUsers(ctx context.Context, users []legacy.User, companyIDs IDMap) (IDMap, RowStats, error)
	UpsertSections(ctx context.Context, sections []legacy.Section) (IDMap, RowStats, error)
	UpsertSubsections(ctx context.Context, subsections []legacy.Subsection, sectionIDs IDMap) (IDMap, RowStats, error)
	UpsertTags(ctx context.Context, tags []legacy.Tag) (IDMap, RowStats, error)
	UpsertQuestions(ctx context.Context, questions []legacy.Question, subsectionIDs IDMap) (IDMap, RowStats, error)
	LinkQuestionParents(ctx context.Context, questions []legacy.Question, questionIDs IDMap) (RowStats, error)
	UpsertQuestionTags(ctx context.Context, questions []legacy.Question, questionIDs, tagIDs IDMap) (RowStats, error)
	UpsertChoices(ctx context.Context, choices []legacy.Choice, questionIDs IDMap) (IDMap, RowStats, error)
	UpsertListTableColumns(ctx context.Context, columns []legacy.ListTableColumn, questionIDs IDMap) (IDMap, RowStats, error)
	UpsertCompositeSheets(ctx context.Context, sheets []reconcile.CompositeSheet, companyIDs, userIDs IDMap) (IDMap, RowStats, error)
	UpsertSheetTags(ctx context.Context, sheets []reconcile.CompositeSheet, sheetIDs, tagIDs IDMap) (RowStats, error)
	InsertAnswers(ctx context.Context, answers []reconcile.ResolvedAnswer, sheetIDs, columnIDs IDMap, batchSize int) (RowStats, error)

	// Excel path.
	ListQuestions(ctx context.Context) ([]CanonicalQuestion, error)
	ListChoices(ctx context.Context) (map[string][]ChoiceRow, error)
	CreateChoice(ctx context.Context, questionID, name string) (string, error)
	UpsertSheetAnswer(ctx context.Context, answer SheetAnswer) error

	Close()
}
