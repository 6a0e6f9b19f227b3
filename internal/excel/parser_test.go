package excel

import (
	"testing"

	"go.uber.org/zap"
)

func testConfig(t *testing.T) compiledConfig {
	t.Helper()
	cfg := SheetConfig{
		Name:                "Substances",
		Section:             "Restricted Substances",
		QuestionCols:        []int{0, 1},
		AnswerCol:           2,
		CommentCol:          3,
		SkipPatterns:        []string{`(?i)^instructions?\b`, `(?i)please fill`},
		TableHeaderPatterns: []string{`(?i)substance\s+cas\s+number`},
	}
	compiled, err := cfg.compile()
	if err != nil {
		t.Fatalf("compile config: %v", err)
	}
	return compiled
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(nil, 0, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	return p
}

func TestParseSheetExtractsQuestionAndAnswer(t *testing.T) {
	p := newTestParser(t)
	cfg := testConfig(t)

	rows := [][]string{
		{"Does the product contain substances of very high concern?", "", "No", "checked against SVHC list"},
	}

	var stats ParseStats
	parsed := p.parseSheet(rows, cfg, &stats)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 parsed question, got %d", len(parsed))
	}
	q := parsed[0]
	if q.Question != "Does the product contain substances of very high concern?" {
		t.Errorf("question = %q", q.Question)
	}
	if q.Answer != "No" || q.Comment != "checked against SVHC list" {
		t.Errorf("answer/comment = %q / %q", q.Answer, q.Comment)
	}
	if q.Section != "Restricted Substances" || q.Row != 1 {
		t.Errorf("provenance = section %q row %d", q.Section, q.Row)
	}
}

func TestParseSheetRowHeuristics(t *testing.T) {
	p := newTestParser(t)
	cfg := testConfig(t)

	tests := []struct {
		name   string
		row    []string
		parsed bool
	}{
		{
			name:   "blank row",
			row:    []string{"", "", ""},
			parsed: false,
		},
		{
			name:   "instructional row",
			row:    []string{"Instructions: please fill in every yellow cell", "", "x"},
			parsed: false,
		},
		{
			name:   "short label is not a question",
			row:    []string{"CAS number", "", "7439-92-1"},
			parsed: false,
		},
		{
			name:   "question without answer is dropped",
			row:    []string{"Does the product contain intentionally added microplastics?", "", ""},
			parsed: false,
		},
		{
			name:   "qualifying question with answer",
			row:    []string{"Does the product contain intentionally added microplastics?", "", "Yes"},
			parsed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stats ParseStats
			parsed := p.parseSheet([][]string{tt.row}, cfg, &stats)
			if got := len(parsed) == 1; got != tt.parsed {
				t.Errorf("parsed = %v, want %v (stats %+v)", got, tt.parsed, stats)
			}
		})
	}
}

func TestParseSheetSubQuestion(t *testing.T) {
	p := newTestParser(t)
	cfg := testConfig(t)

	rows := [][]string{
		{
			"Has the packaging been tested for heavy metal content?",
			"Include test reports covering lead, cadmium, mercury and chromium VI",
			"Yes, reports attached",
		},
	}

	var stats ParseStats
	parsed := p.parseSheet(rows, cfg, &stats)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 parsed question, got %d", len(parsed))
	}
	if parsed[0].SubQuestion != "Include test reports covering lead, cadmium, mercury and chromium VI" {
		t.Errorf("sub-question = %q", parsed[0].SubQuestion)
	}
}

func TestParseSheetTableModeTracking(t *testing.T) {
	p := newTestParser(t)
	cfg := testConfig(t)

	rows := [][]string{
		{"Which restricted substances are present in the product?", "", "See table below"},
		{"Substance CAS number concentration", "", ""},
		{"Does the concentration exceed the declarable threshold?", "", "No"},
	}

	var stats ParseStats
	parsed := p.parseSheet(rows, cfg, &stats)
	if len(parsed) != 2 {
		t.Fatalf("expected 2 parsed questions, got %d", len(parsed))
	}
	if parsed[0].InTable {
		t.Errorf("row before the table header must not be flagged")
	}
	if !parsed[1].InTable {
		t.Errorf("row after the table header should carry the table flag")
	}
}

func TestParseSheetStats(t *testing.T) {
	p := newTestParser(t)
	cfg := testConfig(t)

	rows := [][]string{
		{"", ""},
		{"Instructions: read before answering", "", ""},
		{"short", "", "x"},
		{"Does the product comply with the POP regulation limits?", "", ""},
		{"Does the product comply with the RoHS substance restrictions?", "", "Yes"},
	}

	var stats ParseStats
	parsed := p.parseSheet(rows, cfg, &stats)
	if len(parsed) != 1 {
		t.Fatalf("expected 1 parsed question, got %d", len(parsed))
	}
	want := ParseStats{RowsSeen: 5, RowsBlank: 1, RowsSkipped: 1, RowsNoText: 1, RowsNoAnswer: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}

func TestCompileRejectsBadPattern(t *testing.T) {
	cfg := SheetConfig{Name: "Broken", SkipPatterns: []string{"("}}
	if _, err := cfg.compile(); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestDefaultConfigsCompile(t *testing.T) {
	if _, err := NewParser(DefaultConfigs(), 0, nil); err != nil {
		t.Fatalf("default configs must compile: %v", err)
	}
}
