package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/complyera/chainmigrate/internal/legacy"
	"github.com/complyera/chainmigrate/internal/reconcile"
)

// DefaultBatchSize is the answer insert batch size (BATCH_SIZE).
const DefaultBatchSize = 500

// Postgres implements Store over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

var _ Store = (*Postgres)(nil)

// Connect opens a pool against the target database and verifies it with a
// ping.
func Connect(ctx context.Context, dsn string, log *zap.SugaredLogger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to target database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping target database: %w", err)
	}
	return &Postgres{pool: pool, log: log}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// nullable converts zero values to NULL for optional columns.
func nullableTime(t legacy.Timestamp) any {
	if t.IsZero() {
		return nil
	}
	return t.Time
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// lookup resolves a bubble id through an id map, returning NULL when the
// reference is absent or unmapped.
func lookup(ids IDMap, bubbleID string) any {
	if bubbleID == "" {
		return nil
	}
	if id, ok := ids[bubbleID]; ok {
		return id
	}
	return nil
}

type upsertRow struct {
	bubbleID string
	args     []any
}

// upsertRows runs a RETURNING-id upsert row by row, collecting the bubble id
// translation. A failed row logs, counts as skipped, and processing
// continues; only context cancellation aborts.
func (p *Postgres) upsertRows(ctx context.Context, table, sql string, rows []upsertRow) (IDMap, RowStats, error) {
	ids := make(IDMap, len(rows))
	var stats RowStats
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return ids, stats, err
		}
		var id string
		if err := p.pool.QueryRow(ctx, sql, row.args...).Scan(&id); err != nil {
			p.log.Warnw("row upsert failed", "table", table, "bubble_id", row.bubbleID, "error", err)
			stats.Skipped++
			continue
		}
		ids[row.bubbleID] = id
		stats.Written++
	}
	return ids, stats, nil
}

func (p *Postgres) UpsertCompanies(ctx context.Context, companies []legacy.Company) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO companies (bubble_id, name, created_at, updated_at)
		VALUES ($1, $2, COALESCE($3::timestamptz, now()), COALESCE($4::timestamptz, now()))
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
		RETURNING id`
	rows := make([]upsertRow, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, upsertRow{c.ID, []any{c.ID, c.Name, nullableTime(c.CreatedAt), nullableTime(c.ModifiedAt)}})
	}
	return p.upsertRows(ctx, "companies", sql, rows)
}

func (p *Postgres) UpsertUsers(ctx context.Context, users []legacy.User, companyIDs IDMap) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO users (bubble_id, email, name, company_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bubble_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, company_id = EXCLUDED.company_id
		RETURNING id`
	rows := make([]upsertRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, upsertRow{u.ID, []any{u.ID, u.Email, u.Name, lookup(companyIDs, u.Company)}})
	}
	return p.upsertRows(ctx, "users", sql, rows)
}

func (p *Postgres) UpsertSections(ctx context.Context, sections []legacy.Section) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO sections (bubble_id, name, sort_order)
		VALUES ($1, $2, $3)
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, sort_order = EXCLUDED.sort_order
		RETURNING id`
	rows := make([]upsertRow, 0, len(sections))
	for _, s := range sections {
		rows = append(rows, upsertRow{s.ID, []any{s.ID, s.Name, s.Order}})
	}
	return p.upsertRows(ctx, "sections", sql, rows)
}

func (p *Postgres) UpsertSubsections(ctx context.Context, subsections []legacy.Subsection, sectionIDs IDMap) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO subsections (bubble_id, name, section_id, sort_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, section_id = EXCLUDED.section_id, sort_order = EXCLUDED.sort_order
		RETURNING id`
	rows := make([]upsertRow, 0, len(subsections))
	for _, s := range subsections {
		rows = append(rows, upsertRow{s.ID, []any{s.ID, s.Name, lookup(sectionIDs, s.Section), s.Order}})
	}
	return p.upsertRows(ctx, "subsections", sql, rows)
}

func (p *Postgres) UpsertTags(ctx context.Context, tags []legacy.Tag) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO tags (bubble_id, name)
		VALUES ($1, $2)
		ON CONFLICT (bubble_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	rows := make([]upsertRow, 0, len(tags))
	for _, t := range tags {
		rows = append(rows, upsertRow{t.ID, []any{t.ID, t.Name}})
	}
	return p.upsertRows(ctx, "tags", sql, rows)
}

func (p *Postgres) UpsertQuestions(ctx context.Context, questions []legacy.Question, subsectionIDs IDMap) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO questions (bubble_id, name, subsection_id, type, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, subsection_id = EXCLUDED.subsection_id,
		    type = EXCLUDED.type, sort_order = EXCLUDED.sort_order
		RETURNING id`
	rows := make([]upsertRow, 0, len(questions))
	for _, q := range questions {
		rows = append(rows, upsertRow{q.ID, []any{q.ID, q.Name, lookup(subsectionIDs, q.Subsection), q.Type, q.Order}})
	}
	return p.upsertRows(ctx, "questions", sql, rows)
}

// LinkQuestionParents runs after all questions exist, so parent references
// can resolve regardless of export order.
func (p *Postgres) LinkQuestionParents(ctx context.Context, questions []legacy.Question, questionIDs IDMap) (RowStats, error) {
	const sql = `UPDATE questions SET parent_question_id = $2 WHERE id = $1`
	var stats RowStats
	for _, q := range questions {
		if q.ParentQuestion == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		childID, okChild := questionIDs[q.ID]
		parentID, okParent := questionIDs[q.ParentQuestion]
		if !okChild || !okParent {
			p.log.Warnw("unresolvable question parent", "question", q.ID, "parent", q.ParentQuestion)
			stats.Skipped++
			continue
		}
		if _, err := p.pool.Exec(ctx, sql, childID, parentID); err != nil {
			p.log.Warnw("parent link failed", "question", q.ID, "error", err)
			stats.Skipped++
			continue
		}
		stats.Written++
	}
	return stats, nil
}

func (p *Postgres) UpsertQuestionTags(ctx context.Context, questions []legacy.Question, questionIDs, tagIDs IDMap) (RowStats, error) {
	const sql = `
		INSERT INTO question_tags (question_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (question_id, tag_id) DO NOTHING`
	var stats RowStats
	for _, q := range questions {
		questionID, ok := questionIDs[q.ID]
		if !ok {
			continue
		}
		for _, tag := range q.Tags {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			tagID, ok := tagIDs[tag]
			if !ok {
				stats.Skipped++
				continue
			}
			if _, err := p.pool.Exec(ctx, sql, questionID, tagID); err != nil {
				p.log.Warnw("question tag upsert failed", "question", q.ID, "tag", tag, "error", err)
				stats.Skipped++
				continue
			}
			stats.Written++
		}
	}
	return stats, nil
}

func (p *Postgres) UpsertChoices(ctx context.Context, choices []legacy.Choice, questionIDs IDMap) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO choices (bubble_id, name, question_id, sort_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, question_id = EXCLUDED.question_id, sort_order = EXCLUDED.sort_order
		RETURNING id`
	rows := make([]upsertRow, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, upsertRow{c.ID, []any{c.ID, c.Name, lookup(questionIDs, c.Question), c.Order}})
	}
	return p.upsertRows(ctx, "choices", sql, rows)
}

func (p *Postgres) UpsertListTableColumns(ctx context.Context, columns []legacy.ListTableColumn, questionIDs IDMap) (IDMap, RowStats, error) {
	const sql = `
		INSERT INTO list_table_columns (bubble_id, name, question_id, sort_order)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, question_id = EXCLUDED.question_id, sort_order = EXCLUDED.sort_order
		RETURNING id`
	rows := make([]upsertRow, 0, len(columns))
	for _, c := range columns {
		rows = append(rows, upsertRow{c.ID, []any{c.ID, c.Name, lookup(questionIDs, c.Question), c.Order}})
	}
	return p.upsertRows(ctx, "list_table_columns", sql, rows)
}

func (p *Postgres) UpsertCompositeSheets(ctx context.Context, sheets []reconcile.CompositeSheet, companyIDs, userIDs IDMap) (IDMap, RowStats, error) {
	// The bubble_id column carries the latest legacy sheet id so re-running
	// the import converges on the same row instead of duplicating sheets.
	const sql = `
		INSERT INTO sheets (id, bubble_id, name, status, version, company_id, created_by,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        COALESCE($8::timestamptz, now()), COALESCE($9::timestamptz, now()))
		ON CONFLICT (bubble_id) DO UPDATE
		SET name = EXCLUDED.name, status = EXCLUDED.status, version = EXCLUDED.version,
		    company_id = EXCLUDED.company_id, updated_at = EXCLUDED.updated_at
		RETURNING id`
	ids := make(IDMap, len(sheets))
	var stats RowStats
	for _, s := range sheets {
		if err := ctx.Err(); err != nil {
			return ids, stats, err
		}
		var id string
		err := p.pool.QueryRow(ctx, sql,
			s.ID, s.BubbleID, s.Name, nullableString(s.Status), s.Version,
			lookup(companyIDs, s.CompanyID), lookup(userIDs, s.CreatorID),
			nullableTime(s.CreatedAt), nullableTime(s.ModifiedAt),
		).Scan(&id)
		if err != nil {
			// No transaction spans the import: one bad group is skipped and
			// the rest proceed.
			p.log.Warnw("composite sheet upsert failed", "sheet", s.Name, "bubble_id", s.BubbleID, "error", err)
			stats.Skipped++
			continue
		}
		// On a re-run the conflict path returns the existing row id, which
		// may differ from the freshly generated one.
		ids[s.ID] = id
		stats.Written++
	}
	return ids, stats, nil
}

func (p *Postgres) UpsertSheetTags(ctx context.Context, sheets []reconcile.CompositeSheet, sheetIDs, tagIDs IDMap) (RowStats, error) {
	const sql = `
		INSERT INTO sheet_tags (sheet_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT (sheet_id, tag_id) DO NOTHING`
	var stats RowStats
	for _, s := range sheets {
		sheetID, ok := sheetIDs[s.ID]
		if !ok {
			continue
		}
		for _, tag := range s.TagIDs {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			tagID, ok := tagIDs[tag]
			if !ok {
				stats.Skipped++
				continue
			}
			if _, err := p.pool.Exec(ctx, sql, sheetID, tagID); err != nil {
				p.log.Warnw("sheet tag upsert failed", "sheet", s.Name, "tag", tag, "error", err)
				stats.Skipped++
				continue
			}
			stats.Written++
		}
	}
	return stats, nil
}

const insertAnswerSQL = `
	INSERT INTO answers (bubble_id, sheet_id, question_id, table_row, list_table_column_id,
	                     value, comment, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8::timestamptz, now()))`

func answerArgs(a reconcile.ResolvedAnswer, sheetID string, columnIDs IDMap) []any {
	return []any{
		a.BubbleID, sheetID, a.QuestionID,
		nullableString(a.RowID), lookup(columnIDs, a.ColumnID),
		a.Value, nullableString(a.Comment), nullableTime(a.ModifiedAt),
	}
}

// InsertAnswers writes the reconciliation winners in fixed-size batches. A
// failed batch falls back to inserting its records one at a time so a single
// bad record does not void the rest of the batch.
func (p *Postgres) InsertAnswers(ctx context.Context, answers []reconcile.ResolvedAnswer, sheetIDs, columnIDs IDMap, batchSize int) (RowStats, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var stats RowStats

	for start := 0; start < len(answers); start += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := min(start+batchSize, len(answers))
		chunk := answers[start:end]

		batch := &pgx.Batch{}
		resolved := make([]reconcile.ResolvedAnswer, 0, len(chunk))
		for _, a := range chunk {
			sheetID, ok := sheetIDs[a.CompositeID]
			if !ok {
				stats.Skipped++
				continue
			}
			batch.Queue(insertAnswerSQL, answerArgs(a, sheetID, columnIDs)...)
			resolved = append(resolved, a)
		}
		if batch.Len() == 0 {
			continue
		}

		if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
			p.log.Warnw("answer batch failed, retrying rows individually",
				"batch_start", start, "batch_size", batch.Len(), "error", err)
			fallback := p.insertAnswersOneByOne(ctx, resolved, sheetIDs, columnIDs)
			stats.Add(fallback)
			continue
		}
		stats.Written += batch.Len()

		if stats.Written%10000 < batchSize {
			p.log.Infof("answer insert progress: %d/%d", stats.Written, len(answers))
		}
	}
	return stats, nil
}

func (p *Postgres) insertAnswersOneByOne(ctx context.Context, answers []reconcile.ResolvedAnswer, sheetIDs, columnIDs IDMap) RowStats {
	var stats RowStats
	for _, a := range answers {
		sheetID := sheetIDs[a.CompositeID]
		if _, err := p.pool.Exec(ctx, insertAnswerSQL, answerArgs(a, sheetID, columnIDs)...); err != nil {
			p.log.Warnw("answer insert failed", "bubble_id", a.BubbleID, "error", err)
			stats.Skipped++
			continue
		}
		stats.Written++
	}
	return stats
}

func (p *Postgres) ListQuestions(ctx context.Context) ([]CanonicalQuestion, error) {
	const sql = `
		SELECT q.id, q.name, q.type, COALESCE(sec.name, '')
		FROM questions q
		LEFT JOIN subsections sub ON sub.id = q.subsection_id
		LEFT JOIN sections sec ON sec.id = sub.section_id
		ORDER BY q.sort_order`
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []CanonicalQuestion
	for rows.Next() {
		var q CanonicalQuestion
		if err := rows.Scan(&q.ID, &q.Name, &q.Type, &q.Section); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (p *Postgres) ListChoices(ctx context.Context) (map[string][]ChoiceRow, error) {
	const sql = `SELECT question_id, id, name FROM choices WHERE question_id IS NOT NULL`
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("list choices: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]ChoiceRow)
	for rows.Next() {
		var questionID string
		var c ChoiceRow
		if err := rows.Scan(&questionID, &c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan choice: %w", err)
		}
		out[questionID] = append(out[questionID], c)
	}
	return out, rows.Err()
}

func (p *Postgres) CreateChoice(ctx context.Context, questionID, name string) (string, error) {
	const sql = `INSERT INTO choices (question_id, name) VALUES ($1, $2) RETURNING id`
	var id string
	if err := p.pool.QueryRow(ctx, sql, questionID, name).Scan(&id); err != nil {
		return "", fmt.Errorf("create choice %q: %w", name, err)
	}
	return id, nil
}

func (p *Postgres) UpsertSheetAnswer(ctx context.Context, a SheetAnswer) error {
	const sql = `
		INSERT INTO answers (sheet_id, question_id, choice_id, value, comment, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sheet_id, question_id) WHERE table_row IS NULL DO UPDATE
		SET choice_id = EXCLUDED.choice_id, value = EXCLUDED.value,
		    comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at`
	_, err := p.pool.Exec(ctx, sql,
		a.SheetID, a.QuestionID, nullableString(a.ChoiceID),
		a.Value, nullableString(a.Comment), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert answer for question %s: %w", a.QuestionID, err)
	}
	return nil
}
