package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	BrowserRod  = "rod"
	BrowserHTTP = "http"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"quill"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"quill"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd    string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxMsgSize int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"10485760"` // 10MB

	EnableAPI     bool   `envconfig:"ENABLE_API" default:"true"`
	EnableWorkers bool   `envconfig:"ENABLE_WORKERS" default:"true"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	// Providers. Keys stored in settings take precedence.
	GeminiAPIKey         string `envconfig:"GEMINI_API_KEY"`
	GeminiModel          string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	GeminiEmbeddingModel string `envconfig:"GEMINI_EMBEDDING_MODEL" default:"gemini-embedding-001"`
	SerperAPIKey         string `envconfig:"SERPER_API_KEY"`
	RerankAPIKey         string `envconfig:"RERANK_API_KEY"`

	// Chunking
	Tokenizer          string `envconfig:"TOKENIZER" default:"cl100k_base"`
	LibraryChunkTokens int    `envconfig:"LIBRARY_CHUNK_TOKENS" default:"100"`
	SearchChunkTokens  int    `envconfig:"SEARCH_CHUNK_TOKENS" default:"100"`

	// Sources and pages
	SourcesFile           string  `envconfig:"SOURCES_FILE" default:"sources.yaml"`
	BrowserMode           string  `envconfig:"BROWSER_MODE" default:"rod"`
	ChromeBin             string  `envconfig:"CHROME_BIN"`
	ChromeControlURL      string  `envconfig:"CHROME_CONTROL_URL"`
	ChromeNoSandbox       bool    `envconfig:"CHROME_NO_SANDBOX" default:"false"`
	PageTimeoutSeconds    int     `envconfig:"PAGE_TIMEOUT_SECONDS" default:"30"`
	FetchRatePerSecond    float64 `envconfig:"FETCH_RATE_PER_SECOND" default:"2"`
	SearchIncludeSnippets bool    `envconfig:"SEARCH_INCLUDE_SNIPPETS" default:"false"`

	// Drafting
	PromptsFile string `envconfig:"PROMPTS_FILE"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"./new_post"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"QUILL_UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// env vars set in the shell win; both files are optional
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
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

	switch c.BrowserMode {
	case "", BrowserRod, BrowserHTTP:
	default:
		return fmt.Errorf("%w: BROWSER_MODE must be %q or %q, got %q", ErrInvalidValue, BrowserRod, BrowserHTTP, c.BrowserMode)
	}
	if c.LibraryChunkTokens < 0 || c.SearchChunkTokens < 0 {
		return fmt.Errorf("%w: chunk token sizes must not be negative", ErrInvalidValue)
	}
	return nil
}

// DSN is the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
