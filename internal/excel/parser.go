package excel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// DefaultMinQuestionLen is the minimum trimmed length for a cell to count as
// question text. Shorter cells are labels and headers, not questions.
// Overridable through config (MIN_QUESTION_LEN).
const DefaultMinQuestionLen = 20

// ParsedQuestion is one extracted question/answer pair, carrying enough
// provenance (sheet, row) to report unmatched questions usefully.
type ParsedQuestion struct {
	Sheet       string `json:"sheet"`
	Row         int    `json:"row"` // 1-based worksheet row
	Question    string `json:"question"`
	SubQuestion string `json:"sub_question,omitempty"`
	Answer      string `json:"answer"`
	Comment     string `json:"comment,omitempty"`
	Section     string `json:"section"`
	InTable     bool   `json:"in_table,omitempty"`
}

// ParseStats tallies one workbook parse.
type ParseStats struct {
	SheetsParsed  int
	SheetsMissing int // configured sheets absent from the workbook
	RowsSeen      int
	RowsBlank     int
	RowsSkipped   int // matched a skip pattern
	RowsNoAnswer  int // question extracted but answer cell empty
	RowsNoText    int // no qualifying question text found
	Parsed        int
}

// Parser reads workbooks according to a set of sheet configurations.
type Parser struct {
	configs        []compiledConfig
	minQuestionLen int
	log            *zap.SugaredLogger
}

// NewParser compiles the sheet configurations. minQuestionLen <= 0 selects
// the default.
func NewParser(configs []SheetConfig, minQuestionLen int, log *zap.SugaredLogger) (*Parser, error) {
	if minQuestionLen <= 0 {
		minQuestionLen = DefaultMinQuestionLen
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Parser{minQuestionLen: minQuestionLen, log: log}
	for _, c := range configs {
		compiled, err := c.compile()
		if err != nil {
			return nil, err
		}
		p.configs = append(p.configs, compiled)
	}
	return p, nil
}

// ParseWorkbook opens the workbook and parses every configured sheet.
// Configured sheets missing from the workbook are counted and skipped.
func (p *Parser) ParseWorkbook(path string) ([]ParsedQuestion, ParseStats, error) {
	var stats ParseStats

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, stats, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var parsed []ParsedQuestion
	for _, cfg := range p.configs {
		rows, err := f.GetRows(cfg.Name)
		if err != nil {
			p.log.Warnw("configured sheet missing from workbook", "sheet", cfg.Name)
			stats.SheetsMissing++
			continue
		}
		stats.SheetsParsed++
		sheetQuestions := p.parseSheet(rows, cfg, &stats)
		p.log.Infow("parsed sheet", "sheet", cfg.Name, "rows", len(rows), "questions", len(sheetQuestions))
		parsed = append(parsed, sheetQuestions...)
	}
	stats.Parsed = len(parsed)
	return parsed, stats, nil
}

// parseSheet applies the row heuristics from the sheet config. rows come from
// excelize.GetRows: ragged row-as-array cell values with trailing blanks
// already trimmed.
func (p *Parser) parseSheet(rows [][]string, cfg compiledConfig, stats *ParseStats) []ParsedQuestion {
	var out []ParsedQuestion
	inTable := false

	for i, row := range rows {
		stats.RowsSeen++

		rowText := strings.TrimSpace(strings.Join(row, " "))
		if rowText == "" {
			stats.RowsBlank++
			continue
		}

		if matchesAny(cfg.tableHeaders, rowText) {
			inTable = true
		}
		if matchesAny(cfg.skip, rowText) {
			stats.RowsSkipped++
			continue
		}

		question, subQuestion := p.extractQuestion(row, cfg)
		if question == "" {
			stats.RowsNoText++
			continue
		}

		answer := strings.TrimSpace(cell(row, cfg.AnswerCol))
		if answer == "" {
			stats.RowsNoAnswer++
			continue
		}

		pq := ParsedQuestion{
			Sheet:       cfg.Name,
			Row:         i + 1,
			Question:    question,
			SubQuestion: subQuestion,
			Answer:      answer,
			Section:     cfg.Section,
			InTable:     inTable,
		}
		if cfg.CommentCol >= 0 {
			pq.Comment = strings.TrimSpace(cell(row, cfg.CommentCol))
		}
		out = append(out, pq)
	}
	return out
}

// extractQuestion scans the configured question columns in order: the first
// cell whose trimmed text exceeds the minimum length and matches no skip
// pattern becomes the main question, the next qualifying cell the
// sub-question.
func (p *Parser) extractQuestion(row []string, cfg compiledConfig) (question, subQuestion string) {
	for _, col := range cfg.QuestionCols {
		text := strings.TrimSpace(cell(row, col))
		if len(text) <= p.minQuestionLen || matchesAny(cfg.skip, text) {
			continue
		}
		if question == "" {
			question = text
			continue
		}
		subQuestion = text
		break
	}
	return question, subQuestion
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
