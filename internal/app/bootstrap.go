package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	windex "khabar/internal/adapter/weaviate"
	"khabar/internal/config"
	"khabar/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	Index       vector.Index
	NSQProducer *nsq.Producer
}

// Close releases what Bootstrap opened. The index is owned by the store
// once one is built on it, so it is not closed here.
func (d *Dependencies) Close() error {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	return d.DB.Close()
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Bootstrap connects to Postgres, applies migrations, opens the configured
// vector backend and, when enabled, the NSQ producer.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := pingWithRetry(ctx, db, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}

	index, err := OpenIndex(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := &Dependencies{DB: db, Index: index}
	if cfg.EnableNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			index.Close()
			db.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.NSQProducer = producer
		createTopics(ctx, cfg.NSQDHTTP)
	}
	return deps, nil
}

func pingWithRetry(ctx context.Context, db *sql.DB, attempts int, delay time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			return nil
		}
		slog.WarnContext(ctx, "failed to ping db, retrying...", "attempt", i+1, "max_attempts", attempts)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

// Migrate applies every pending migration under path.
func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// OpenIndex opens the vector backend named by VECTOR_BACKEND.
func OpenIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vector.Index, error) {
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		idx := windex.NewIndex(client, logger)
		delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
		if err := EnsureSchemaWithRetry(ctx, idx, cfg.BootstrapRetryAttempts, delay); err != nil {
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		return idx, nil
	default:
		idx, err := vector.OpenFile(ctx, cfg.IndexDir, vector.Options{
			Flavor:          cfg.IndexFlavor,
			ExactThreshold:  cfg.IndexExactThreshold,
			NList:           cfg.IndexNList,
			NProbe:          cfg.IndexNProbe,
			TrainIterations: cfg.IndexTrainIterations,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		return idx, nil
	}
}

func createTopics(ctx context.Context, nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return
		}
		resp, err := http.DefaultClient.Do(req) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicArticle)
		create(config.TopicFetch)
	}()
}

// EnsureSchemaWithRetry retries schema creation while the backend starts.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
