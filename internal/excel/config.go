// Package excel parses questionnaire workbooks into flat question/answer
// records using a declarative per-sheet configuration. Parsing is heuristic:
// worksheets were filled in by hand, so the config names which columns may
// hold question text and which patterns mark rows to skip, and anything the
// heuristics cannot place is dropped and counted rather than guessed at.
package excel

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SheetConfig describes how to parse one worksheet.
type SheetConfig struct {
	// Name is the worksheet name as it appears in the workbook.
	Name string `yaml:"name"`
	// Section is the canonical section label used to scope fuzzy matching.
	Section string `yaml:"section"`
	// QuestionCols are zero-based column indexes scanned in order for
	// question text. The first qualifying cell is the main question, the
	// next qualifying cell the sub-question.
	QuestionCols []int `yaml:"question_cols"`
	// AnswerCol is the zero-based column holding the answer value. A row
	// without an answer contributes nothing.
	AnswerCol int `yaml:"answer_col"`
	// CommentCol is an optional zero-based comment column; -1 disables it.
	CommentCol int `yaml:"comment_col"`
	// SkipPatterns are regexps matched against both individual question
	// cells and the concatenated row text; matches are instructional text,
	// disclaimers, or headers and are skipped.
	SkipPatterns []string `yaml:"skip_patterns"`
	// TableHeaderPatterns mark rows that open a tabular region. The parser
	// tracks the resulting table mode but does not filter on it; the flag is
	// recorded on parsed rows for downstream auditing.
	TableHeaderPatterns []string `yaml:"table_header_patterns"`
}

type compiledConfig struct {
	SheetConfig
	skip         []*regexp.Regexp
	tableHeaders []*regexp.Regexp
}

func (c SheetConfig) compile() (compiledConfig, error) {
	out := compiledConfig{SheetConfig: c}
	for _, p := range c.SkipPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return out, fmt.Errorf("sheet %q: skip pattern %q: %w", c.Name, p, err)
		}
		out.skip = append(out.skip, re)
	}
	for _, p := range c.TableHeaderPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return out, fmt.Errorf("sheet %q: table header pattern %q: %w", c.Name, p, err)
		}
		out.tableHeaders = append(out.tableHeaders, re)
	}
	return out, nil
}

// DefaultConfigs returns the built-in parse configuration for the supplier
// compliance workbook: one entry per worksheet region the importer consumes.
func DefaultConfigs() []SheetConfig {
	commonSkips := []string{
		`(?i)^instructions?\b`,
		`(?i)please fill`,
		`(?i)^note:`,
		`(?i)^disclaimer`,
		`(?i)^section\s+\d`,
		`(?i)^question\s*$`,
	}
	return []SheetConfig{
		{
			Name:         "General",
			Section:      "General Information",
			QuestionCols: []int{0, 1},
			AnswerCol:    2,
			CommentCol:   3,
			SkipPatterns: commonSkips,
		},
		{
			Name:                "Substances",
			Section:             "Restricted Substances",
			QuestionCols:        []int{0, 1},
			AnswerCol:           2,
			CommentCol:          3,
			SkipPatterns:        commonSkips,
			TableHeaderPatterns: []string{`(?i)substance\s+cas\s+number`},
		},
		{
			Name:         "Packaging",
			Section:      "Packaging",
			QuestionCols: []int{0, 1},
			AnswerCol:    2,
			CommentCol:   -1,
			SkipPatterns: commonSkips,
		},
		{
			Name:                "Environment",
			Section:             "Environmental Compliance",
			QuestionCols:        []int{0, 1, 2},
			AnswerCol:           3,
			CommentCol:          4,
			SkipPatterns:        commonSkips,
			TableHeaderPatterns: []string{`(?i)certificate\s+issuer`},
		},
	}
}

// LoadConfigs reads sheet configurations from a YAML file, replacing the
// built-in defaults entirely.
func LoadConfigs(path string) ([]SheetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sheet config: %w", err)
	}
	var configs []SheetConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse sheet config: %w", err)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("sheet config %s defines no sheets", path)
	}
	return configs, nil
}
