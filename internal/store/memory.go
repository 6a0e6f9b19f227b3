package store

import (
	"context"
	"fmt"

	"github.com/complyera/chainmigrate/internal/legacy"
	"github.com/complyera/chainmigrate/internal/reconcile"
)

// Memory is an in-memory Store used by tests and by dry runs, which need a
// Store value but never write. It mirrors
// the Postgres upsert semantics closely enough to exercise the importer:
// bubble_id-keyed idempotent upserts, duplicate-ignoring join tables, and
// write-once answers.
type Memory struct {
	nextID int

	Companies   map[string]string // bubble id -> row id
	Users       map[string]string
	Sections    map[string]string
	Subsections map[string]string
	Tags        map[string]string
	Questions   map[string]string
	Choices     map[string]string
	Columns     map[string]string
	Sheets      map[string]string // latest legacy sheet bubble id -> row id

	QuestionTags map[string]bool // "questionID/tagID"
	SheetTags    map[string]bool
	Parents      map[string]string // child row id -> parent row id
	Answers      []reconcile.ResolvedAnswer
	SheetAnswers []SheetAnswer

	CanonicalQuestions []CanonicalQuestion
	ChoiceRows         map[string][]ChoiceRow

	// FailBubbleIDs makes upserts of the listed bubble ids fail, to test the
	// row-skip policy.
	FailBubbleIDs map[string]bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		Companies:     make(map[string]string),
		Users:         make(map[string]string),
		Sections:      make(map[string]string),
		Subsections:   make(map[string]string),
		Tags:          make(map[string]string),
		Questions:     make(map[string]string),
		Choices:       make(map[string]string),
		Columns:       make(map[string]string),
		Sheets:        make(map[string]string),
		QuestionTags:  make(map[string]bool),
		SheetTags:     make(map[string]bool),
		Parents:       make(map[string]string),
		ChoiceRows:    make(map[string][]ChoiceRow),
		FailBubbleIDs: make(map[string]bool),
	}
}

func (m *Memory) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *Memory) upsert(table map[string]string, prefix, bubbleID string, stats *RowStats) (string, bool) {
	if m.FailBubbleIDs[bubbleID] {
		stats.Skipped++
		return "", false
	}
	id, ok := table[bubbleID]
	if !ok {
		id = m.newID(prefix)
		table[bubbleID] = id
	}
	stats.Written++
	return id, true
}

func (m *Memory) upsertAll(table map[string]string, prefix string, bubbleIDs []string) (IDMap, RowStats, error) {
	ids := make(IDMap, len(bubbleIDs))
	var stats RowStats
	for _, bubbleID := range bubbleIDs {
		if id, ok := m.upsert(table, prefix, bubbleID, &stats); ok {
			ids[bubbleID] = id
		}
	}
	return ids, stats, nil
}

func (m *Memory) UpsertCompanies(_ context.Context, companies []legacy.Company) (IDMap, RowStats, error) {
	return m.upsertAll(m.Companies, "company", ids(companies, func(c legacy.Company) string { return c.ID }))
}

func (m *Memory) UpsertUsers(_ context.Context, users []legacy.User, _ IDMap) (IDMap, RowStats, error) {
	return m.upsertAll(m.Users, "user", ids(users, func(u legacy.User) string { return u.ID }))
}

func (m *Memory) UpsertSections(_ context.Context, sections []legacy.Section) (IDMap, RowStats, error) {
	return m.upsertAll(m.Sections, "section", ids(sections, func(s legacy.Section) string { return s.ID }))
}

func (m *Memory) UpsertSubsections(_ context.Context, subsections []legacy.Subsection, _ IDMap) (IDMap, RowStats, error) {
	return m.upsertAll(m.Subsections, "subsection", ids(subsections, func(s legacy.Subsection) string { return s.ID }))
}

func (m *Memory) UpsertTags(_ context.Context, tags []legacy.Tag) (IDMap, RowStats, error) {
	return m.upsertAll(m.Tags, "tag", ids(tags, func(t legacy.Tag) string { return t.ID }))
}

func (m *Memory) UpsertQuestions(_ context.Context, questions []legacy.Question, _ IDMap) (IDMap, RowStats, error) {
	return m.upsertAll(m.Questions, "question", ids(questions, func(q legacy.Question) string { return q.ID }))
}

func (m *Memory) LinkQuestionParents(_ context.Context, questions []legacy.Question, questionIDs IDMap) (RowStats, error) {
	var stats RowStats
	for _, q := range questions {
		if q.ParentQuestion == "" {
			continue
		}
		childID, okChild := questionIDs[q.ID]
		parentID, okParent := questionIDs[q.ParentQuestion]
		if !okChild || !okParent {
			stats.Skipped++
			continue
		}
		m.Parents[childID] = parentID
		stats.Written++
	}
	return stats, nil
}

func (m *Memory) UpsertQuestionTags(_ context.Context, questions []legacy.Question, questionIDs, tagIDs IDMap) (RowStats, error) {
	var stats RowStats
	for _, q := range questions {
		questionID, ok := questionIDs[q.ID]
		if !ok {
			continue
		}
		for _, tag := range q.Tags {
			tagID, ok := tagIDs[tag]
			if !ok {
				stats.Skipped++
				continue
			}
			m.QuestionTags[questionID+"/"+tagID] = true
			stats.Written++
		}
	}
	return stats, nil
}

func (m *Memory) UpsertChoices(_ context.Context, choices []legacy.Choice, _ IDMap) (IDMap, RowStats, error) {
	return m.upsertAll(m.Choices, "choice", ids(choices, func(c legacy.Choice) string { return c.ID }))
}

func (m *Memory) UpsertListTableColumns(_ context.Context, columns []legacy.ListTableColumn, _ IDMap) (IDMap, RowStats, error) {
	return m.upsertAll(m.Columns, "column", ids(columns, func(c legacy.ListTableColumn) string { return c.ID }))
}

func (m *Memory) UpsertCompositeSheets(_ context.Context, sheets []reconcile.CompositeSheet, _, _ IDMap) (IDMap, RowStats, error) {
	out := make(IDMap, len(sheets))
	var stats RowStats
	for _, s := range sheets {
		if m.FailBubbleIDs[s.BubbleID] {
			stats.Skipped++
			continue
		}
		// Conflict on bubble_id: a re-run converges on the existing row.
		id, ok := m.Sheets[s.BubbleID]
		if !ok {
			id = m.newID("sheet")
			m.Sheets[s.BubbleID] = id
		}
		out[s.ID] = id
		stats.Written++
	}
	return out, stats, nil
}

func (m *Memory) UpsertSheetTags(_ context.Context, sheets []reconcile.CompositeSheet, sheetIDs, tagIDs IDMap) (RowStats, error) {
	var stats RowStats
	for _, s := range sheets {
		sheetID, ok := sheetIDs[s.ID]
		if !ok {
			continue
		}
		for _, tag := range s.TagIDs {
			tagID, ok := tagIDs[tag]
			if !ok {
				stats.Skipped++
				continue
			}
			m.SheetTags[sheetID+"/"+tagID] = true
			stats.Written++
		}
	}
	return stats, nil
}

func (m *Memory) InsertAnswers(_ context.Context, answers []reconcile.ResolvedAnswer, sheetIDs, _ IDMap, _ int) (RowStats, error) {
	var stats RowStats
	for _, a := range answers {
		if _, ok := sheetIDs[a.CompositeID]; !ok {
			stats.Skipped++
			continue
		}
		m.Answers = append(m.Answers, a)
		stats.Written++
	}
	return stats, nil
}

func (m *Memory) ListQuestions(_ context.Context) ([]CanonicalQuestion, error) {
	return m.CanonicalQuestions, nil
}

func (m *Memory) ListChoices(_ context.Context) (map[string][]ChoiceRow, error) {
	out := make(map[string][]ChoiceRow, len(m.ChoiceRows))
	for k, v := range m.ChoiceRows {
		out[k] = append([]ChoiceRow(nil), v...)
	}
	return out, nil
}

func (m *Memory) CreateChoice(_ context.Context, questionID, name string) (string, error) {
	if m.FailBubbleIDs[name] {
		return "", fmt.Errorf("simulated choice failure")
	}
	id := m.newID("choice")
	m.ChoiceRows[questionID] = append(m.ChoiceRows[questionID], ChoiceRow{ID: id, Name: name})
	return id, nil
}

func (m *Memory) UpsertSheetAnswer(_ context.Context, a SheetAnswer) error {
	for i, existing := range m.SheetAnswers {
		if existing.SheetID == a.SheetID && existing.QuestionID == a.QuestionID {
			m.SheetAnswers[i] = a
			return nil
		}
	}
	m.SheetAnswers = append(m.SheetAnswers, a)
	return nil
}

func (m *Memory) Close() {}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}

var _ Store = (*Memory)(nil)

// FindSheetAnswer returns the stored answer for a question, for assertions.
func (m *Memory) FindSheetAnswer(sheetID, questionID string) (SheetAnswer, bool) {
	for _, a := range m.SheetAnswers {
		if a.SheetID == sheetID && a.QuestionID == questionID {
			return a, true
		}
	}
	return SheetAnswer{}, false
}

// choiceNames lists a question's option names, for assertions.
func (m *Memory) ChoiceNames(questionID string) []string {
	var names []string
	for _, c := range m.ChoiceRows[questionID] {
		names = append(names, c.Name)
	}
	return names
}
