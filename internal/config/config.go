package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BackendFile     = "file"
	BackendWeaviate = "weaviate"

	FlavorAuto = "auto"
	FlavorFlat = "flat"
	FlavorIVF  = "ivf"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"khabar"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"khabar"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Vector index
	VectorBackend        string `envconfig:"VECTOR_BACKEND" default:"file"`
	IndexDir             string `envconfig:"INDEX_DIR" default:"data/index"`
	IndexFlavor          string `envconfig:"INDEX_FLAVOR" default:"auto"`
	IndexExactThreshold  int    `envconfig:"INDEX_EXACT_THRESHOLD" default:"500000"`
	IndexNList           int    `envconfig:"INDEX_NLIST" default:"4096"`
	IndexNProbe          int    `envconfig:"INDEX_NPROBE" default:"64"`
	IndexTrainIterations int    `envconfig:"INDEX_TRAIN_ITERATIONS" default:"20"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	EnableNSQ  bool   `envconfig:"ENABLE_NSQ" default:"true"`

	// Models
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"gemini-2.0-flash"`
	EmbedBatchSize  int    `envconfig:"EMBED_BATCH_SIZE" default:"64"`
	RerankProvider  string `envconfig:"RERANK_PROVIDER" default:"none"`
	RerankAPIKey    string `envconfig:"RERANK_API_KEY"`
	RerankURL       string `envconfig:"RERANK_URL"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"50"`

	// Retrieval defaults
	TopK          int     `envconfig:"TOP_K" default:"5"`
	MaxAgeDays    int     `envconfig:"MAX_AGE_DAYS" default:"1825"`
	MinSimilarity float64 `envconfig:"MIN_SIMILARITY" default:"0.45"`
	SemWeight     float64 `envconfig:"SEM_WEIGHT" default:"0.7"`
	FreshWeight   float64 `envconfig:"FRESH_WEIGHT" default:"0.3"`
	DecayRate     float64 `envconfig:"DECAY_RATE" default:"0.02"`
	ContextChars  int     `envconfig:"CONTEXT_CHARS" default:"1200"`
	MaxNewTokens  int32   `envconfig:"MAX_NEW_TOKENS" default:"150"`

	// Scraping
	FetchTimeoutSeconds int    `envconfig:"FETCH_TIMEOUT_SECONDS" default:"15"`
	FetchRetries        int    `envconfig:"FETCH_RETRIES" default:"3"`
	RequestDelayMS      int    `envconfig:"REQUEST_DELAY_MS" default:"1000"`
	FetchConcurrency    int    `envconfig:"FETCH_CONCURRENCY" default:"4"`
	MinWordCount        int    `envconfig:"MIN_WORD_COUNT" default:"80"`
	MaxPerFeed          int    `envconfig:"MAX_PER_FEED" default:"100"`
	UserAgent           string `envconfig:"USER_AGENT" default:"Mozilla/5.0 (compatible; khabar/1.0)"`
	BackfillBatchSize   int    `envconfig:"BACKFILL_BATCH_SIZE" default:"3000"`
	BackfillYears       int    `envconfig:"BACKFILL_YEARS" default:"5"`
	FeedCatalogPath     string `envconfig:"FEED_CATALOG_PATH" default:"feeds.yaml"`
	// Regular expressions; matching sitemap urls are never fetched.
	SitemapExclusions []string `envconfig:"SITEMAP_EXCLUSIONS" default:"/tag/,/tags/,/author/,/video/,/videos/,/gallery/,/photo/"`
	InboxDir          string   `envconfig:"INBOX_DIR"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.VectorBackend {
	case BackendFile, BackendWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND=%q", ErrInvalidValue, c.VectorBackend)
	}
	switch c.IndexFlavor {
	case FlavorAuto, FlavorFlat, FlavorIVF:
	default:
		return fmt.Errorf("%w: INDEX_FLAVOR=%q", ErrInvalidValue, c.IndexFlavor)
	}
	if c.VectorBackend == BackendFile && c.IndexDir == "" {
		return fmt.Errorf("%w: INDEX_DIR", ErrMissingRequired)
	}
	if c.IndexNList <= 0 || c.IndexNProbe <= 0 || c.IndexNProbe > c.IndexNList {
		return fmt.Errorf("%w: INDEX_NPROBE must be in [1, INDEX_NLIST]", ErrInvalidValue)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: TOP_K must be positive", ErrInvalidValue)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: EMBED_BATCH_SIZE must be positive", ErrInvalidValue)
	}
	return nil
}

// DSN builds the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
