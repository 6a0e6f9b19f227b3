// chainmigrate migrates the legacy Bubble questionnaire platform into the
// Supabase Postgres schema. Two subcommands cover the two sources: "bubble"
// runs the full API export and reconciliation import, "excel" imports one
// supplier workbook against the already-migrated question catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verboseFlag bool
	dryRunFlag  bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "chainmigrate",
	Short: "Migrate the legacy Bubble questionnaire data into Postgres",
	Long: `chainmigrate moves supplier compliance questionnaires out of the legacy
Bubble backend and into the new Postgres schema.

The bubble subcommand drains the Bubble Data API (with a local file cache and
a resumable answer export), collapses duplicated sheet versions into single
sheets, deduplicates answers, and writes everything to the database.

The excel subcommand parses one supplier workbook, fuzzy-matches its
questions against the migrated question catalog, and attaches the answers to
an existing sheet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newLogger builds the CLI logger: human console output, debug level when
// --verbose is set.
func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if !verboseFlag {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
