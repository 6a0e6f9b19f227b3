// Package importer orchestrates the two migration runs: the Bubble→relational
// import and the spreadsheet import. It owns phase ordering and tallying;
// the actual policies live in the packages it composes (bubble for the
// export, reconcile for version collapsing, excel/match for the spreadsheet
// path, store for persistence).
package importer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/complyera/chainmigrate/internal/bubble"
	"github.com/complyera/chainmigrate/internal/legacy"
	"github.com/complyera/chainmigrate/internal/reconcile"
	"github.com/complyera/chainmigrate/internal/store"
)

// Source is the extract side of the Bubble import; the concrete
// implementation is bubble.Exporter.
type Source interface {
	ExportEntity(ctx context.Context, entity legacy.EntityType) ([]json.RawMessage, error)
	ExportAnswers(ctx context.Context, sheetIDs []string) ([]json.RawMessage, bubble.AnswerExportStats, error)
}

// Options configures a Bubble import run.
type Options struct {
	// DryRun runs export, grouping, and reconciliation but writes nothing to
	// the target store.
	DryRun bool
	// BatchSize overrides the answer insert batch size.
	BatchSize int
}

// EntityTally is the per-entity outcome of the load phase.
type EntityTally struct {
	Fetched int // raw records exported
	Dropped int // undecodable or id-less records
	Written int
	Skipped int // individual upsert failures
}

// BubbleResult is the final tally of a Bubble import run.
type BubbleResult struct {
	Entities    map[legacy.EntityType]EntityTally
	Groups      int
	ExportStats bubble.AnswerExportStats
	AnswerStats reconcile.AnswerStats
	Answers     store.RowStats
}

// RunBubble performs the full Bubble→relational import: export every entity
// (cache-aware), upsert the primary tables in dependency order, collapse
// sheet versions into composite sheets, reconcile answers, and batch-insert
// the winners.
func RunBubble(ctx context.Context, src Source, st store.Store, opts Options, log *zap.SugaredLogger) (*BubbleResult, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	result := &BubbleResult{Entities: make(map[legacy.EntityType]EntityTally)}

	// Extract phase: everything up front, so a network failure aborts before
	// any write happens.
	rawByEntity := make(map[legacy.EntityType][]json.RawMessage, len(legacy.PrimaryEntities))
	for _, entity := range legacy.PrimaryEntities {
		raw, err := src.ExportEntity(ctx, entity)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", entity, err)
		}
		rawByEntity[entity] = raw
	}

	companies, companiesStats := legacy.ParseCompanies(rawByEntity[legacy.EntityCompany])
	users, usersStats := legacy.ParseUsers(rawByEntity[legacy.EntityUser])
	sections, sectionsStats := legacy.ParseSections(rawByEntity[legacy.EntitySection])
	subsections, subsectionsStats := legacy.ParseSubsections(rawByEntity[legacy.EntitySubsection])
	tags, tagsStats := legacy.ParseTags(rawByEntity[legacy.EntityTag])
	questions, questionsStats := legacy.ParseQuestions(rawByEntity[legacy.EntityQuestion])
	choices, choicesStats := legacy.ParseChoices(rawByEntity[legacy.EntityChoice])
	columns, columnsStats := legacy.ParseListTableColumns(rawByEntity[legacy.EntityListTableColumn])
	sheets, sheetsStats := legacy.ParseSheets(rawByEntity[legacy.EntitySheet])

	tally := func(entity legacy.EntityType, parse legacy.ParseStats, rows store.RowStats) {
		result.Entities[entity] = EntityTally{
			Fetched: parse.Total,
			Dropped: parse.Dropped,
			Written: rows.Written,
			Skipped: rows.Skipped,
		}
	}

	// Load phase: dependency order, each upsert feeding the id maps its
	// dependents resolve against. In dry-run mode the maps are identities on
	// the legacy ids so grouping and reconciliation still produce real
	// tallies.
	var (
		companyIDs, userIDs, sectionIDs, subsectionIDs store.IDMap
		tagIDs, questionIDs, columnIDs                 store.IDMap
		err                                            error
		rows                                           store.RowStats
	)

	if opts.DryRun {
		companyIDs = identity(companies, func(c legacy.Company) string { return c.ID })
		userIDs = identity(users, func(u legacy.User) string { return u.ID })
		sectionIDs = identity(sections, func(s legacy.Section) string { return s.ID })
		subsectionIDs = identity(subsections, func(s legacy.Subsection) string { return s.ID })
		tagIDs = identity(tags, func(t legacy.Tag) string { return t.ID })
		questionIDs = identity(questions, func(q legacy.Question) string { return q.ID })
		columnIDs = identity(columns, func(c legacy.ListTableColumn) string { return c.ID })

		tally(legacy.EntityCompany, companiesStats, store.RowStats{})
		tally(legacy.EntityUser, usersStats, store.RowStats{})
		tally(legacy.EntitySection, sectionsStats, store.RowStats{})
		tally(legacy.EntitySubsection, subsectionsStats, store.RowStats{})
		tally(legacy.EntityTag, tagsStats, store.RowStats{})
		tally(legacy.EntityQuestion, questionsStats, store.RowStats{})
		tally(legacy.EntityChoice, choicesStats, store.RowStats{})
		tally(legacy.EntityListTableColumn, columnsStats, store.RowStats{})
	} else {
		if companyIDs, rows, err = st.UpsertCompanies(ctx, companies); err != nil {
			return nil, err
		}
		tally(legacy.EntityCompany, companiesStats, rows)

		if userIDs, rows, err = st.UpsertUsers(ctx, users, companyIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntityUser, usersStats, rows)

		if sectionIDs, rows, err = st.UpsertSections(ctx, sections); err != nil {
			return nil, err
		}
		tally(legacy.EntitySection, sectionsStats, rows)

		if subsectionIDs, rows, err = st.UpsertSubsections(ctx, subsections, sectionIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntitySubsection, subsectionsStats, rows)

		if tagIDs, rows, err = st.UpsertTags(ctx, tags); err != nil {
			return nil, err
		}
		tally(legacy.EntityTag, tagsStats, rows)

		if questionIDs, rows, err = st.UpsertQuestions(ctx, questions, subsectionIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntityQuestion, questionsStats, rows)

		if rows, err = st.LinkQuestionParents(ctx, questions, questionIDs); err != nil {
			return nil, err
		}
		log.Infow("linked question parents", "written", rows.Written, "skipped", rows.Skipped)

		if rows, err = st.UpsertQuestionTags(ctx, questions, questionIDs, tagIDs); err != nil {
			return nil, err
		}
		log.Infow("upserted question tags", "written", rows.Written, "skipped", rows.Skipped)

		if _, rows, err = st.UpsertChoices(ctx, choices, questionIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntityChoice, choicesStats, rows)

		if columnIDs, rows, err = st.UpsertListTableColumns(ctx, columns, questionIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntityListTableColumn, columnsStats, rows)
	}

	// Version collapsing.
	groups := reconcile.GroupSheets(sheets)
	composites, mapping := reconcile.BuildComposites(groups, nil)
	result.Groups = len(groups)
	log.Infow("grouped sheet versions",
		"legacy_sheets", len(sheets), "composites", len(composites))

	var sheetIDs store.IDMap
	if opts.DryRun {
		sheetIDs = identity(composites, func(c reconcile.CompositeSheet) string { return c.ID })
		tally(legacy.EntitySheet, sheetsStats, store.RowStats{})
	} else {
		if sheetIDs, rows, err = st.UpsertCompositeSheets(ctx, composites, companyIDs, userIDs); err != nil {
			return nil, err
		}
		tally(legacy.EntitySheet, sheetsStats, rows)

		if rows, err = st.UpsertSheetTags(ctx, composites, sheetIDs, tagIDs); err != nil {
			return nil, err
		}
		log.Infow("upserted sheet tags", "written", rows.Written, "skipped", rows.Skipped)
	}

	// Answer export is per legacy sheet id: every version, not just the
	// latest, because scalar answers from older versions are still
	// candidates.
	legacySheetIDs := make([]string, 0, len(sheets))
	for _, s := range sheets {
		legacySheetIDs = append(legacySheetIDs, s.ID)
	}
	rawAnswers, exportStats, err := src.ExportAnswers(ctx, legacySheetIDs)
	if err != nil {
		return nil, fmt.Errorf("export answers: %w", err)
	}
	result.ExportStats = exportStats

	answers, answersParse := legacy.ParseAnswers(rawAnswers)
	if answersParse.Dropped > 0 {
		log.Warnw("dropped undecodable answer records", "dropped", answersParse.Dropped)
	}

	winners, answerStats := reconcile.ReconcileAnswers(answers, mapping, questionIDs)
	result.AnswerStats = answerStats
	log.Infow("reconciled answers",
		"considered", answerStats.Considered,
		"winners", answerStats.Winners,
		"superseded", answerStats.Superseded,
		"stale_table_rows", answerStats.StaleTableRows,
		"unmapped_sheet", answerStats.UnmappedSheet,
		"unmapped_question", answerStats.UnmappedQuest)

	if !opts.DryRun {
		result.Answers, err = st.InsertAnswers(ctx, winners, sheetIDs, columnIDs, opts.BatchSize)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func identity[T any](items []T, id func(T) string) store.IDMap {
	m := make(store.IDMap, len(items))
	for _, item := range items {
		m[id(item)] = id(item)
	}
	return m
}
