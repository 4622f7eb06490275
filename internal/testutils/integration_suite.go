package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"quill/internal/config"
)

// Component selects which containers a suite starts.
type Component int

const (
	Postgres Component = iota
	Weaviate
	NSQ
)

// IntegrationSuite starts real backing services in containers. Tests using it
// must skip under -short.
type IntegrationSuite struct {
	T        *testing.T
	DB       *sql.DB
	Weaviate *weaviate.Client
	NSQ      *nsq.Producer
	NSQAddr  string

	cfg config.Config

	containers []testcontainers.Container
}

func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	return &IntegrationSuite{T: t}
}

// Setup starts the given components, or all of them when none are named.
func (s *IntegrationSuite) Setup(components ...Component) {
	if len(components) == 0 {
		components = []Component{Postgres, Weaviate, NSQ}
	}
	ctx := context.Background()
	for _, c := range components {
		switch c {
		case Postgres:
			s.setupPostgres(ctx)
		case Weaviate:
			s.setupWeaviate(ctx)
		case NSQ:
			s.setupNSQ(ctx)
		}
	}
}

func (s *IntegrationSuite) setupPostgres(ctx context.Context) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("quill_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(s.T, err)
	s.containers = append(s.containers, pgContainer)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(s.T, err)

	s.DB, err = sql.Open("postgres", connStr)
	require.NoError(s.T, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(s.T, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(s.T, err)
	s.cfg.DBHost, s.cfg.DBPort = host, port.Int()
	s.cfg.DBUser, s.cfg.DBPass, s.cfg.DBName = "test", "test", "quill_test"

	_, b, _, _ := runtime.Caller(0)
	migrationPath := fmt.Sprintf("file://%s/../../migrations", filepath.Dir(b))

	m, err := migrate.New(migrationPath, connStr)
	require.NoError(s.T, err)
	require.NoError(s.T, m.Up())
}

func (s *IntegrationSuite) setupWeaviate(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "semitechnologies/weaviate:1.33.6",
		ExposedPorts: []string{"8080/tcp", "50051/tcp"},
		Env: map[string]string{
			"AUTHENTICATION_ANONYMOUS_ACCESS_ENABLED": "true",
			"DEFAULT_VECTORIZER_MODULE":               "none",
			"PERSISTENCE_DATA_PATH":                   "/var/lib/weaviate",
		},
		WaitingFor: wait.ForHTTP("/v1/meta").WithPort("8080/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "8080")
	require.NoError(s.T, err)

	s.cfg.WeaviateHost, s.cfg.WeaviateScheme = fmt.Sprintf("%s:%s", host, port.Port()), "http"
	s.Weaviate, err = weaviate.NewClient(weaviate.Config{
		Host:   s.cfg.WeaviateHost,
		Scheme: s.cfg.WeaviateScheme,
	})
	require.NoError(s.T, err)
}

func (s *IntegrationSuite) setupNSQ(ctx context.Context) {
	req := testcontainers.ContainerRequest{
		Image:        "nsqio/nsq:v1.3.0",
		ExposedPorts: []string{"4150/tcp", "4151/tcp"},
		Cmd:          []string{"/nsqd", "--broadcast-address=localhost"},
		WaitingFor:   wait.ForLog("TCP: listening on").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T, err)
	s.containers = append(s.containers, c)

	host, err := c.Host(ctx)
	require.NoError(s.T, err)
	port, err := c.MappedPort(ctx, "4150")
	require.NoError(s.T, err)

	httpPort, err := c.MappedPort(ctx, "4151")
	require.NoError(s.T, err)

	s.NSQAddr = fmt.Sprintf("%s:%s", host, port.Port())
	s.cfg.NSQDHost = s.NSQAddr
	s.cfg.NSQDHTTP = fmt.Sprintf("%s:%s", host, httpPort.Port())
	s.NSQ, err = nsq.NewProducer(s.NSQAddr, nsq.NewConfig())
	require.NoError(s.T, err)
}

// GetAppConfig returns a config pointing at the started containers, with
// everything else at its defaults and no provider keys.
func (s *IntegrationSuite) GetAppConfig() *config.Config {
	cfg := s.cfg
	cfg.EnableAPI = true
	cfg.Tokenizer = "approx"
	cfg.LibraryChunkTokens, cfg.SearchChunkTokens = 100, 100
	cfg.BrowserMode = config.BrowserHTTP
	cfg.FetchRatePerSecond = 2
	cfg.ServerPort = 8081
	cfg.QueryLogPath = filepath.Join(s.T.TempDir(), "query.log")
	cfg.UploadDir = s.T.TempDir()
	cfg.OutputDir = s.T.TempDir()
	cfg.MaxUploadSizeMB = 10
	cfg.BootstrapRetryAttempts = 3
	cfg.BootstrapRetryDelaySeconds = 1
	return &cfg
}

func (s *IntegrationSuite) Teardown() {
	ctx := context.Background()
	if s.NSQ != nil {
		s.NSQ.Stop()
	}
	if s.DB != nil {
		s.DB.Close()
	}
	for i := len(s.containers) - 1; i >= 0; i-- {
		if err := s.containers[i].Terminate(ctx); err != nil {
			s.T.Logf("terminate container: %v", err)
		}
	}
}
