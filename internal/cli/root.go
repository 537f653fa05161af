package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"khabar/internal/app"
	"khabar/internal/config"
	"khabar/internal/logger"
	"khabar/internal/middleware"
	"khabar/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "khabar",
	Short: "News article ingestion and retrieval",
	Long: `khabar keeps a searchable index of news articles.
Articles are scraped from RSS feeds and sitemaps, split into chunks,
embedded and stored; questions are answered from the freshest matching
passages.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// session is what one command run opens: configuration, the wired app and
// a context cancelled on SIGINT or SIGTERM that carries a run correlation id.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	app    *app.App
}

func openSession(cmd *cobra.Command, withModels bool) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx = middleware.NewRunContext(ctx)

	deps, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		cancel()
		return nil, err
	}
	a, err := app.New(ctx, cfg, deps, log)
	if err != nil {
		_ = deps.Close()
		cancel()
		return nil, err
	}
	s := &session{ctx: ctx, cancel: cancel, cfg: cfg, app: a}

	if withModels {
		if err := a.LoadModels(ctx); err != nil {
			_ = s.close()
			return nil, fmt.Errorf("load models: %w", err)
		}
	}
	return s, nil
}

// newLogger keeps logs off stdout, which carries command output, and
// writes text instead of JSON when a person is watching.
func newLogger(f *os.File, level string) *slog.Logger {
	if term.IsTerminal(int(f.Fd())) {
		return logger.NewText(f, level)
	}
	return logger.New(f, level)
}

// finish prints the storage report and releases the session.
func (s *session) finish(cmd *cobra.Command) error {
	// The run context may already be cancelled by a signal.
	reportErr := printReport(context.WithoutCancel(s.ctx), cmd.OutOrStdout(), s.app.Store)
	if err := s.close(); err != nil {
		slog.Error("failed to close cleanly", "error", err)
	}
	return reportErr
}

func (s *session) close() error {
	defer s.cancel()
	return s.app.Close()
}

type reporter interface {
	StorageReport(ctx context.Context) (store.Report, error)
}

func printReport(ctx context.Context, w io.Writer, r reporter) error {
	rep, err := r.StorageReport(ctx)
	if err != nil {
		return fmt.Errorf("storage report: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return rep.WriteText(w)
}
