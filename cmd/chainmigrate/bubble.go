package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complyera/chainmigrate/internal/bubble"
	"github.com/complyera/chainmigrate/internal/config"
	"github.com/complyera/chainmigrate/internal/importer"
	"github.com/complyera/chainmigrate/internal/legacy"
	"github.com/complyera/chainmigrate/internal/store"
)

var bubbleCmd = &cobra.Command{
	Use:   "bubble",
	Short: "Run the full Bubble API export and database import",
	Long: `bubble exports every entity from the Bubble Data API, collapses sheet
versions, reconciles answers, and upserts the result into Postgres.

Exports are cached under EXPORT_DIR, so a re-run after a failure skips
everything already fetched. The answer export additionally checkpoints
per sheet and resumes mid-export. Use --dry-run to export and reconcile
without touching the database.`,
	RunE: runBubbleCmd,
}

func init() {
	bubbleCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "export and reconcile but write nothing to the database")
	rootCmd.AddCommand(bubbleCmd)
}

func runBubbleCmd(cmd *cobra.Command, _ []string) error {
	log := newLogger()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireBubble(); err != nil {
		return err
	}

	client := bubble.NewClient(cfg.BubbleAPIURL, cfg.BubbleAPIToken, log)
	exporter := &bubble.Exporter{
		Client: client,
		Cache:  bubble.ExportCache{Dir: cfg.ExportDir},
		Log:    log,
	}

	// A dry run never writes, so it needs no database connection.
	var st store.Store = store.NewMemory()
	if !dryRunFlag {
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
		st = pg
	}

	result, err := importer.RunBubble(cmd.Context(), exporter, st, importer.Options{
		DryRun:    dryRunFlag,
		BatchSize: cfg.BatchSize,
	}, log)
	if err != nil {
		return err
	}

	printBubbleSummary(result)
	return nil
}

func printBubbleSummary(result *importer.BubbleResult) {
	if dryRunFlag {
		fmt.Println("Dry run: nothing was written to the database.")
	}
	fmt.Println("Entities:")
	for _, entity := range legacy.PrimaryEntities {
		t := result.Entities[entity]
		fmt.Printf("  %-16s fetched %d, dropped %d, written %d, skipped %d\n",
			entity, t.Fetched, t.Dropped, t.Written, t.Skipped)
	}
	fmt.Printf("Sheet groups: %d\n", result.Groups)
	fmt.Printf("Answer export: %d sheets (%d resumed, %d skipped), %d records, %d duplicates\n",
		result.ExportStats.Sheets, result.ExportStats.Resumed,
		result.ExportStats.SkippedSheets, result.ExportStats.Records,
		result.ExportStats.Duplicates)
	fmt.Printf("Answers: %d considered, %d winners, %d superseded, %d stale table rows, %d unmapped\n",
		result.AnswerStats.Considered, result.AnswerStats.Winners,
		result.AnswerStats.Superseded, result.AnswerStats.StaleTableRows,
		result.AnswerStats.UnmappedSheet+result.AnswerStats.UnmappedQuest)
	if !dryRunFlag {
		fmt.Printf("Answers written: %d (skipped %d)\n",
			result.Answers.Written, result.Answers.Skipped)
	}
}
