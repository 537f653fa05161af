package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"khabar/internal/ingest"
	"khabar/internal/scraper"
)

var refreshProbe bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ingest new articles from the enabled RSS feeds",
	Long: `Reads every enabled RSS feed, fetches the articles the store has
not seen yet and ingests them. With --probe, feeds that currently return
no entries are left out of the run.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshProbe, "probe", false, "test feeds and skip the ones returning no entries")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd, true)
	if err != nil {
		return err
	}
	ctx := s.ctx

	var src ingest.ArticleSource = s.app.FeedSource
	if refreshProbe {
		feeds, err := s.app.Feeds.Feeds(ctx, scraper.KindRSS)
		if err != nil {
			_ = s.close()
			return fmt.Errorf("list feeds: %w", err)
		}
		working := scraper.ProbeFeeds(ctx, s.app.Client, feeds)
		slog.InfoContext(ctx, "feeds probed", "configured", len(feeds), "working", len(working))
		cmd.Printf("%d of %d feeds are working.\n", len(working), len(feeds))
		src = scraper.NewFeedSource(s.app.Client, s.app.Fetcher, scraper.FeedList(working), s.cfg.MaxPerFeed)
	}

	res, runErr := s.app.Pipeline.Refresh(ctx, src)
	printResult(cmd.OutOrStdout(), "Refresh", res)
	if err := s.finish(cmd); err != nil && runErr == nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("refresh: %w", runErr)
	}
	return nil
}

func printResult(w io.Writer, label string, r ingest.Result) {
	if r.Articles == 0 {
		_, _ = fmt.Fprintf(w, "%s: no new articles.\n", label)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %d articles, %d chunks, %d rows, %d vectors (%d invalid, %d already seen).\n",
		label, r.Articles, r.Chunks, r.Rows, r.Vectors, r.Invalid, r.Seen)
}
