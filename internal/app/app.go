package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"
	"golang.org/x/sync/errgroup"

	"khabar/features/ask"
	"khabar/features/feed"
	"khabar/features/job"
	"khabar/features/mcp"
	"khabar/features/stats"
	"khabar/internal/adapter/gemini"
	"khabar/internal/adapter/reranker"
	"khabar/internal/config"
	"khabar/internal/inbox"
	"khabar/internal/ingest"
	"khabar/internal/middleware"
	"khabar/internal/retrieval"
	"khabar/internal/scraper"
	"khabar/internal/settings"
	"khabar/internal/store"
	"khabar/internal/worker"
)

// consumerChannel is the NSQ channel every khabar instance shares, so each
// message is handled once.
const consumerChannel = "khabar"

// App holds the wired services for one process.
type App struct {
	cfg  *config.Config
	deps *Dependencies

	Handler   http.Handler
	Models    *gemini.Client
	Store     *store.Store
	Pipeline  *ingest.Pipeline
	Retrieval *retrieval.Service
	Ask       *ask.Service
	Feeds     *feed.Service
	Jobs      *job.Service
	Settings  *settings.Service
	Client    *scraper.Client
	Fetcher   *scraper.Fetcher

	FeedSource    *scraper.FeedSource
	SitemapSource *scraper.SitemapSource

	ArticleConsumer *worker.ArticleConsumer
	FetchConsumer   *worker.FetchConsumer

	queryLog io.Closer
}

func New(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, deps: deps}

	// Feature: Settings
	settingsService := settings.NewService(settings.NewPostgresRepo(deps.DB))
	defaults := settings.Settings{
		TopK:          cfg.TopK,
		MaxAgeDays:    cfg.MaxAgeDays,
		MinSimilarity: cfg.MinSimilarity,
		SemWeight:     cfg.SemWeight,
		FreshWeight:   cfg.FreshWeight,
		DecayRate:     cfg.DecayRate,
	}
	if err := settingsService.Seed(ctx, &defaults); err != nil {
		slog.WarnContext(ctx, "failed to seed retrieval settings", "error", err)
	}
	a.Settings = settingsService

	// Feature: Feeds
	a.Feeds = feed.NewService(feed.NewPostgresRepo(deps.DB))
	catalog, err := feed.LoadCatalog(cfg.FeedCatalogPath)
	if err != nil {
		slog.WarnContext(ctx, "failed to load feed catalog", "path", cfg.FeedCatalogPath, "error", err)
	} else if _, err := a.Feeds.Seed(ctx, catalog); err != nil {
		return nil, fmt.Errorf("seed feeds: %w", err)
	}

	// Feature: Jobs
	var pub job.EventPublisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}
	jobRepo := job.NewPostgresRepo(deps.DB)
	a.Jobs = job.NewService(jobRepo, pub, logger)
	ledger := worker.NewFailureLedger(a.Jobs)

	// Storage and models
	a.Store = store.New(deps.DB, deps.Index, logger)
	a.Models = gemini.New(gemini.Config{
		APIKey:          cfg.GeminiAPIKey,
		EmbeddingModel:  cfg.EmbeddingModel,
		GenerationModel: cfg.GenerationModel,
		MaxOutputTokens: cfg.MaxNewTokens,
	})
	rr, err := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey)
	if err != nil {
		return nil, err
	}
	if cfg.RerankURL != "" {
		rr.SetBaseURL(cfg.RerankURL)
	}

	a.Pipeline = ingest.NewPipeline(a.Store, a.Models, ingest.Config{
		ChunkSize:      cfg.ChunkSize,
		ChunkOverlap:   cfg.ChunkOverlap,
		EmbedBatchSize: cfg.EmbedBatchSize,
	})

	// Scraping
	a.Client = scraper.NewClient(scraper.ClientConfig{
		Timeout:   time.Duration(cfg.FetchTimeoutSeconds) * time.Second,
		Retries:   cfg.FetchRetries,
		Delay:     time.Duration(cfg.RequestDelayMS) * time.Millisecond,
		UserAgent: cfg.UserAgent,
	})
	a.Fetcher = scraper.NewFetcher(a.Client, scraper.FetcherConfig{
		MinWords:    cfg.MinWordCount,
		Concurrency: cfg.FetchConcurrency,
	}, ledger)
	a.FeedSource = scraper.NewFeedSource(a.Client, a.Fetcher, a.Feeds, cfg.MaxPerFeed)
	a.SitemapSource = scraper.NewSitemapSource(a.Client, a.Fetcher, a.Feeds, cfg.SitemapExclusions)

	// Feature: Retrieval
	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.WarnContext(ctx, "failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		a.queryLog = closer
	}
	a.Retrieval = retrieval.NewService(a.Models, a.Store, rr, settingsService, retrieval.OptionsFromSettings(defaults), queryLogger)
	a.Ask = ask.NewService(a.Retrieval, a.Models, cfg.ContextChars)

	// Workers
	a.ArticleConsumer = worker.NewArticleConsumer(a.Pipeline)
	a.FetchConsumer = worker.NewFetchConsumer(a.Store, a.Fetcher, a.Pipeline, ledger)

	// Routes
	mcpHandler, err := mcp.NewHandler(a.Retrieval, a.Ask, a.Store)
	if err != nil {
		return nil, err
	}
	a.Handler = routes(
		settings.NewHandler(settingsService),
		feed.NewHandler(a.Feeds),
		job.NewHandler(a.Jobs),
		stats.NewHandler(a.Store, jobRepo, a.Feeds),
		ask.NewHandler(a.Ask),
		mcpHandler,
	)
	return a, nil
}

func routes(
	settingsHandler *settings.Handler,
	feedHandler *feed.Handler,
	jobHandler *job.Handler,
	statsHandler *stats.Handler,
	askHandler *ask.Handler,
	mcpHandler *mcp.Handler,
) http.Handler {
	wrap := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.CORS(h))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /settings", wrap(settingsHandler.GetSettings))
	mux.Handle("PUT /settings", wrap(settingsHandler.UpdateSettings))
	mux.Handle("PATCH /settings", wrap(settingsHandler.PatchSettings))

	mux.Handle("POST /feeds", wrap(feedHandler.Create))
	mux.Handle("GET /feeds", wrap(feedHandler.List))
	mux.Handle("DELETE /feeds/{id}", wrap(feedHandler.Delete))

	mux.Handle("GET /jobs/failed", wrap(jobHandler.List))
	mux.Handle("POST /jobs/retry", wrap(jobHandler.RetryAll))
	mux.Handle("POST /jobs/{id}/retry", wrap(jobHandler.Retry))
	mux.Handle("DELETE /jobs/{id}", wrap(jobHandler.Dismiss))

	mux.Handle("GET /stats", wrap(statsHandler.GetStats))

	mux.Handle("POST /search", wrap(askHandler.Search))
	mux.Handle("POST /ask", wrap(askHandler.Ask))

	mux.Handle("/mcp", middleware.CorrelationID(mcpHandler))

	// Preflight for every route; CORS answers OPTIONS itself.
	mux.Handle("OPTIONS /", wrap(func(http.ResponseWriter, *http.Request) {}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// LoadModels connects the embedding and generation client. Commands that
// only read the report do not need it.
func (a *App) LoadModels(ctx context.Context) error {
	return a.Models.Load(ctx)
}

// Serve runs the HTTP API, the NSQ consumers and the inbox watcher until
// ctx is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		slog.InfoContext(gctx, "server starting", "port", a.cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.EnableNSQ {
		consumers, err := a.startConsumers()
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			for _, c := range consumers {
				c.Stop()
				<-c.StopChan
			}
			return nil
		})
	}

	if a.cfg.InboxDir != "" {
		w := inbox.NewWatcher(a.cfg.InboxDir, a.Pipeline)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	return g.Wait()
}

func (a *App) startConsumers() ([]*nsq.Consumer, error) {
	handlers := map[string]nsq.Handler{
		config.TopicArticle: a.ArticleConsumer,
		config.TopicFetch:   a.FetchConsumer,
	}

	var consumers []*nsq.Consumer
	for topic, h := range handlers {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = 1
		c, err := nsq.NewConsumer(topic, consumerChannel, nsqCfg)
		if err != nil {
			return nil, fmt.Errorf("nsq consumer %s: %w", topic, err)
		}
		c.AddHandler(h)
		if err := c.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
			return nil, fmt.Errorf("nsq lookupd %s: %w", topic, err)
		}
		slog.Info("consumer started", "topic", topic, "channel", consumerChannel)
		consumers = append(consumers, c)
	}
	return consumers, nil
}

// Close flushes and releases everything the app and its dependencies hold.
func (a *App) Close() error {
	var errs []error
	if a.queryLog != nil {
		errs = append(errs, a.queryLog.Close())
	}
	errs = append(errs, a.Models.Close(), a.Store.Close(), a.deps.Close())
	return errors.Join(errs...)
}
