package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/complyera/chainmigrate/internal/excel"
	"github.com/complyera/chainmigrate/internal/match"
	"github.com/complyera/chainmigrate/internal/store"
)

// ExcelOptions configures a spreadsheet import run.
type ExcelOptions struct {
	// WorkbookPath is the .xlsx file to parse.
	WorkbookPath string
	// SheetID is the target sheet row the answers attach to.
	SheetID string
	// SheetConfigPath optionally replaces the built-in parse configs.
	SheetConfigPath string
	// Threshold is the fuzzy-match acceptance score; 0 selects the default.
	Threshold float64
	// MinQuestionLen is the question-text length heuristic; 0 selects the
	// default.
	MinQuestionLen int
	// DryRun parses and matches but writes nothing — no answers, no
	// choices, no report file.
	DryRun bool
}

// UnmatchedQuestion is one parsed question no canonical question accepted,
// reported with its best rejected candidate so the threshold can be audited.
type UnmatchedQuestion struct {
	excel.ParsedQuestion
	BestCandidate string  `json:"best_candidate,omitempty"`
	BestScore     float64 `json:"best_score"`
}

// ExcelResult is the final tally of a spreadsheet import run.
type ExcelResult struct {
	Parse           excel.ParseStats
	Matched         int
	MatchedPlain    int
	MatchedCombined int
	Unmatched       []UnmatchedQuestion
	ChoicesCreated  int
	Written         int
	Failed          int
	ReportPath      string
}

// RunExcel parses the workbook, fuzzy-matches every parsed question against
// the canonical questions of its declared section, and upserts the matched
// answers, creating missing dropdown choices on the fly. Unmatched questions
// are written to a JSON report next to the workbook.
func RunExcel(ctx context.Context, st store.Store, opts ExcelOptions, log *zap.SugaredLogger) (*ExcelResult, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.SheetID == "" && !opts.DryRun {
		return nil, fmt.Errorf("a target sheet id is required")
	}
	if opts.Threshold == 0 {
		opts.Threshold = match.DefaultThreshold
	}

	configs := excel.DefaultConfigs()
	if opts.SheetConfigPath != "" {
		loaded, err := excel.LoadConfigs(opts.SheetConfigPath)
		if err != nil {
			return nil, err
		}
		configs = loaded
	}

	parser, err := excel.NewParser(configs, opts.MinQuestionLen, log)
	if err != nil {
		return nil, err
	}
	parsed, parseStats, err := parser.ParseWorkbook(opts.WorkbookPath)
	if err != nil {
		return nil, err
	}
	result := &ExcelResult{Parse: parseStats}

	canonical, err := st.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	bySection := make(map[string][]match.Candidate)
	byID := make(map[string]store.CanonicalQuestion, len(canonical))
	for _, q := range canonical {
		bySection[q.Section] = append(bySection[q.Section], match.Candidate{ID: q.ID, Name: q.Name})
		byID[q.ID] = q
	}

	choicesByQuestion, err := st.ListChoices(ctx)
	if err != nil {
		return nil, err
	}

	for _, pq := range parsed {
		candidates := bySection[pq.Section]
		best, ok := match.Best(pq.Question, pq.SubQuestion, candidates, opts.Threshold)
		if !ok {
			result.Unmatched = append(result.Unmatched, UnmatchedQuestion{
				ParsedQuestion: pq,
				BestCandidate:  best.CandidateName,
				BestScore:      best.Score,
			})
			continue
		}
		result.Matched++
		switch best.Method {
		case match.MethodCombined:
			result.MatchedCombined++
		default:
			result.MatchedPlain++
		}

		if opts.DryRun {
			continue
		}

		answer := store.SheetAnswer{
			SheetID:    opts.SheetID,
			QuestionID: best.CandidateID,
			Value:      pq.Answer,
			Comment:    pq.Comment,
		}

		if byID[best.CandidateID].IsDropdown() {
			choiceID, created, err := resolveChoice(ctx, st, choicesByQuestion, best.CandidateID, pq.Answer)
			if err != nil {
				log.Warnw("choice resolution failed",
					"question", best.CandidateName, "answer", pq.Answer, "error", err)
				result.Failed++
				continue
			}
			if created {
				result.ChoicesCreated++
			}
			answer.ChoiceID = choiceID
		}

		if err := st.UpsertSheetAnswer(ctx, answer); err != nil {
			log.Warnw("answer upsert failed",
				"sheet", pq.Sheet, "row", pq.Row, "question", best.CandidateName, "error", err)
			result.Failed++
			continue
		}
		result.Written++
	}

	if len(result.Unmatched) > 0 && !opts.DryRun {
		result.ReportPath = opts.WorkbookPath + ".unmatched.json"
		if err := writeUnmatchedReport(result.ReportPath, result.Unmatched); err != nil {
			log.Warnw("could not write unmatched report", "path", result.ReportPath, "error", err)
			result.ReportPath = ""
		}
	}

	log.Infow("spreadsheet import complete",
		"parsed", parseStats.Parsed,
		"matched", result.Matched,
		"unmatched", len(result.Unmatched),
		"written", result.Written,
		"choices_created", result.ChoicesCreated,
		"failed", result.Failed)
	return result, nil
}

// resolveChoice finds an existing choice matching the answer text
// (case-insensitive) or creates one. The in-memory choice map is updated so
// repeated answers within a run create the option once.
func resolveChoice(ctx context.Context, st store.Store, choices map[string][]store.ChoiceRow, questionID, value string) (string, bool, error) {
	for _, c := range choices[questionID] {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(value)) {
			return c.ID, false, nil
		}
	}
	id, err := st.CreateChoice(ctx, questionID, strings.TrimSpace(value))
	if err != nil {
		return "", false, err
	}
	choices[questionID] = append(choices[questionID], store.ChoiceRow{ID: id, Name: value})
	return id, true, nil
}

func writeUnmatchedReport(path string, unmatched []UnmatchedQuestion) error {
	data, err := json.MarshalIndent(unmatched, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
