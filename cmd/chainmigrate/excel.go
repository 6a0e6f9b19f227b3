package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complyera/chainmigrate/internal/config"
	"github.com/complyera/chainmigrate/internal/importer"
	"github.com/complyera/chainmigrate/internal/store"
)

var (
	excelSheetID    string
	excelConfigPath string
)

var excelCmd = &cobra.Command{
	Use:   "excel <workbook.xlsx>",
	Short: "Import one supplier workbook against the migrated question catalog",
	Long: `excel parses a filled-in supplier questionnaire workbook, fuzzy-matches
every extracted question against the canonical questions of its section, and
attaches the matched answers to the sheet given with --sheet. Dropdown
answers with no existing option create the option.

Questions that match nothing are written to <workbook>.unmatched.json for
manual review. Use --dry-run to see match results without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runExcelCmd,
}

func init() {
	excelCmd.Flags().StringVar(&excelSheetID, "sheet", "", "target sheet row id the answers attach to")
	excelCmd.Flags().StringVar(&excelConfigPath, "sheet-config", "", "YAML file replacing the built-in worksheet parse configuration")
	excelCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "parse and match but write nothing")
	rootCmd.AddCommand(excelCmd)
}

func runExcelCmd(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return err
	}
	pg, err := store.Connect(cmd.Context(), dsn, log)
	if err != nil {
		return err
	}
	defer pg.Close()

	result, err := importer.RunExcel(cmd.Context(), pg, importer.ExcelOptions{
		WorkbookPath:    args[0],
		SheetID:         excelSheetID,
		SheetConfigPath: excelConfigPath,
		Threshold:       cfg.MatchThreshold,
		MinQuestionLen:  cfg.MinQuestionLen,
		DryRun:          dryRunFlag,
	}, log)
	if err != nil {
		return err
	}

	printExcelSummary(result)
	return nil
}

func printExcelSummary(result *importer.ExcelResult) {
	if dryRunFlag {
		fmt.Println("Dry run: nothing was written to the database.")
	}
	fmt.Printf("Parsed: %d questions from %d sheets (%d configured sheets missing)\n",
		result.Parse.Parsed, result.Parse.SheetsParsed, result.Parse.SheetsMissing)
	fmt.Printf("Matched: %d (%d exact question, %d with sub-question)\n",
		result.Matched, result.MatchedPlain, result.MatchedCombined)
	if !dryRunFlag {
		fmt.Printf("Written: %d answers, %d new dropdown choices, %d failed\n",
			result.Written, result.ChoicesCreated, result.Failed)
	}
	if len(result.Unmatched) > 0 {
		fmt.Printf("Unmatched: %d", len(result.Unmatched))
		if result.ReportPath != "" {
			fmt.Printf(" (see %s)", result.ReportPath)
		}
		fmt.Println()
	}
}
