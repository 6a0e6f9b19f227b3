package importer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/complyera/chainmigrate/internal/store"
)

// writeWorkbook builds an .xlsx fixture in a temp dir. Each sheet's rows are
// written left to right starting at A1; empty strings leave cells unset.
func writeWorkbook(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := true
	for name, rows := range sheets {
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range rows {
			for c, value := range row {
				if value == "" {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellValue(name, cell, value))
			}
		}
	}

	path := filepath.Join(t.TempDir(), "questionnaire.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func generalRows() [][]string {
	return [][]string{
		{"Instructions: please fill in every white cell"},
		{"What is the full registered company name of the supplier?", "", "Acme GmbH", "Registered in 2001"},
		{"Does the product contain any recycled material content?", "", "Yes"},
		{"Describe the lubricant viscosity grade used in bearings", "", "ISO VG 46"},
	}
}

// excelStore seeds a memory store with the canonical questions the fixture
// workbook should hit: one exact text question and one close dropdown.
func excelStore() *store.Memory {
	mem := store.NewMemory()
	mem.CanonicalQuestions = []store.CanonicalQuestion{
		{ID: "qa", Name: "What is the full registered company name of the supplier?", Type: "text", Section: "General Information"},
		{ID: "qb", Name: "Does the product contain any recycled material?", Type: "dropdown", Section: "General Information"},
	}
	return mem
}

func TestRunExcelImportsWorkbook(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{"General": generalRows()})
	mem := excelStore()

	result, err := RunExcel(context.Background(), mem, ExcelOptions{
		WorkbookPath: path,
		SheetID:      "sheet-42",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Parse.Parsed)
	assert.Equal(t, 3, result.Parse.SheetsMissing)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 2, result.MatchedPlain)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 0, result.Failed)

	// Exact question: value and comment carried through.
	text, ok := mem.FindSheetAnswer("sheet-42", "qa")
	require.True(t, ok)
	assert.Equal(t, "Acme GmbH", text.Value)
	assert.Equal(t, "Registered in 2001", text.Comment)
	assert.Empty(t, text.ChoiceID)

	// Dropdown with no existing options: a choice is created and linked.
	assert.Equal(t, 1, result.ChoicesCreated)
	dropdown, ok := mem.FindSheetAnswer("sheet-42", "qb")
	require.True(t, ok)
	assert.NotEmpty(t, dropdown.ChoiceID)
	assert.Equal(t, []string{"Yes"}, mem.ChoiceNames("qb"))

	// The lubricant question matches nothing above the threshold and lands
	// in the report with its best rejected candidate.
	require.Len(t, result.Unmatched, 1)
	assert.Less(t, result.Unmatched[0].BestScore, 0.6)
	assert.NotEmpty(t, result.Unmatched[0].BestCandidate)

	require.Equal(t, path+".unmatched.json", result.ReportPath)
	data, err := os.ReadFile(result.ReportPath)
	require.NoError(t, err)
	var report []UnmatchedQuestion
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report, 1)
	assert.Equal(t, "ISO VG 46", report[0].Answer)
}

func TestRunExcelDryRun(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{"General": generalRows()})
	mem := excelStore()

	result, err := RunExcel(context.Background(), mem, ExcelOptions{
		WorkbookPath: path,
		DryRun:       true,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Matched)
	assert.Len(t, result.Unmatched, 1)
	assert.Zero(t, result.Written)
	assert.Zero(t, result.ChoicesCreated)
	assert.Empty(t, mem.SheetAnswers)
	assert.Empty(t, mem.ChoiceNames("qb"))

	// No report file in dry-run mode.
	assert.Empty(t, result.ReportPath)
	_, err = os.Stat(path + ".unmatched.json")
	assert.True(t, os.IsNotExist(err))
}

func TestRunExcelRequiresSheetID(t *testing.T) {
	_, err := RunExcel(context.Background(), store.NewMemory(), ExcelOptions{
		WorkbookPath: "irrelevant.xlsx",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheet id")
}

func TestRunExcelReusesExistingChoice(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{"General": generalRows()})
	mem := excelStore()
	mem.ChoiceRows["qb"] = []store.ChoiceRow{{ID: "ch-existing", Name: "yes"}}

	result, err := RunExcel(context.Background(), mem, ExcelOptions{
		WorkbookPath: path,
		SheetID:      "sheet-42",
	}, nil)
	require.NoError(t, err)

	// "Yes" resolves case-insensitively to the seeded option.
	assert.Zero(t, result.ChoicesCreated)
	dropdown, ok := mem.FindSheetAnswer("sheet-42", "qb")
	require.True(t, ok)
	assert.Equal(t, "ch-existing", dropdown.ChoiceID)
}

func TestRunExcelCustomSheetConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "sheets.yaml")
	config := `
- name: Data
  section: General Information
  question_cols: [0]
  answer_col: 1
  comment_col: -1
`
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o644))

	path := writeWorkbook(t, map[string][][]string{
		"Data": {
			{"What is the full registered company name of the supplier?", "Acme GmbH"},
		},
	})
	mem := excelStore()

	result, err := RunExcel(context.Background(), mem, ExcelOptions{
		WorkbookPath:    path,
		SheetID:         "sheet-42",
		SheetConfigPath: configPath,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Parse.Parsed)
	assert.Equal(t, 1, result.Written)
	answer, ok := mem.FindSheetAnswer("sheet-42", "qa")
	require.True(t, ok)
	assert.Equal(t, "Acme GmbH", answer.Value)
}
