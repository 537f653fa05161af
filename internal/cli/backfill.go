package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"khabar/internal/config"
	"khabar/internal/ingest"
)

var (
	backfillStartYear int
	backfillEndYear   int
	backfillBatchSize int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest past articles listed in the enabled sitemaps",
	Long: `Walks the enabled sitemaps year by year, oldest first, and ingests
the articles the store has not seen. Every batch is persisted before the
next one is fetched, so an interrupted run can simply be started again.
Years default to the last BACKFILL_YEARS up to the current one.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().IntVar(&backfillStartYear, "start-year", 0, "first year to backfill (default: current year minus BACKFILL_YEARS)")
	backfillCmd.Flags().IntVar(&backfillEndYear, "end-year", 0, "last year to backfill (default: current year)")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "urls fetched and persisted per batch (default: BACKFILL_BATCH_SIZE)")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}

	opts := backfillOptions(time.Now(), s.cfg, backfillStartYear, backfillEndYear, backfillBatchSize)
	cmd.Printf("Backfilling %d-%d in batches of %d...\n", opts.StartYear, opts.EndYear, opts.BatchSize)

	res, runErr := s.app.Pipeline.Backfill(s.ctx, s.app.SitemapSource, s.app.SitemapSource, opts)
	printResult(cmd.OutOrStdout(), "Backfill", res.Result)
	cmd.Printf("%d years, %d batches persisted.\n", res.Years, res.Batches)

	if err := s.finish(cmd); err != nil && runErr == nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("backfill: %w", runErr)
	}
	return nil
}

// backfillOptions fills unset flags from configuration.
func backfillOptions(now time.Time, cfg *config.Config, start, end, batch int) ingest.BackfillOptions {
	if end == 0 {
		end = now.Year()
	}
	if start == 0 {
		start = now.Year() - cfg.BackfillYears
	}
	if batch == 0 {
		batch = cfg.BackfillBatchSize
	}
	return ingest.BackfillOptions{StartYear: start, EndYear: end, BatchSize: batch}
}
