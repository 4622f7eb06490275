package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"quill/features/draft"
	"quill/features/job"
	"quill/features/mcp"
	"quill/features/report"
	"quill/features/source"
	"quill/features/stats"
	"quill/internal/adapter/browser"
	"quill/internal/adapter/gemini"
	"quill/internal/adapter/reranker"
	"quill/internal/adapter/serper"
	"quill/internal/config"
	"quill/internal/document"
	"quill/internal/ingest"
	"quill/internal/middleware"
	"quill/internal/prompt"
	"quill/internal/retrieval"
	"quill/internal/scraper"
	"quill/internal/settings"
	"quill/internal/text"
	"quill/internal/worker"
)

// VectorStore is everything the app needs from the document store.
type VectorStore interface {
	ingest.Store
	retrieval.LibraryStore
	source.ReportLister
	stats.LibraryStore
	EnsureSchema(ctx context.Context) error
}

type TaskPublisher = worker.TaskPublisher

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options replace the provider adapters built from config. Nil fields keep
// the defaults.
type Options struct {
	Embedder  Embedder
	Generator retrieval.Generator
	Search    retrieval.SearchClient
}

type App struct {
	Handler   http.Handler
	Ingest    *ingest.Service
	Sources   *source.Service
	Drafts    *draft.Service
	Retrieval *retrieval.Service
	Jobs      *job.Service
	Publisher TaskPublisher
	Bindings  []worker.Binding

	port    int
	closers []io.Closer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &App{port: cfg.ServerPort, Publisher: taskPub}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	seedKeys(context.Background(), settingsService, cfg)
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters
	counter, err := text.NewCounter(cfg.Tokenizer)
	if err != nil {
		return nil, err
	}
	embedder := opts.Embedder
	if embedder == nil {
		e := gemini.NewEmbedder(settingsService, cfg.GeminiAPIKey, cfg.GeminiEmbeddingModel)
		a.closers = append(a.closers, e)
		embedder = e
	}
	generator := opts.Generator
	if generator == nil {
		g := gemini.NewGenerator(settingsService, cfg.GeminiAPIKey, cfg.GeminiModel)
		a.closers = append(a.closers, g)
		generator = g
	}
	search := opts.Search
	if search == nil {
		search = serper.NewClient(settingsService, cfg.SerperAPIKey)
	}

	var fetchOpts []browser.HTTPOption
	if cfg.FetchRatePerSecond > 0 {
		fetchOpts = append(fetchOpts, browser.WithRateLimit(cfg.FetchRatePerSecond, 4))
	}
	httpFetcher := browser.NewHTTPFetcher(fetchOpts...)
	var pageFetcher browser.Fetcher = httpFetcher
	if cfg.BrowserMode == config.BrowserRod {
		rod := browser.NewRodFetcher(browser.RodOptions{
			Bin:        cfg.ChromeBin,
			ControlURL: cfg.ChromeControlURL,
			NoSandbox:  cfg.ChromeNoSandbox,
			Timeout:    time.Duration(cfg.PageTimeoutSeconds) * time.Second,
		})
		a.closers = append(a.closers, rod)
		pageFetcher = rod
	}

	prompts := prompt.DefaultSet()
	if cfg.PromptsFile != "" {
		if prompts, err = prompt.LoadSet(cfg.PromptsFile); err != nil {
			return nil, fmt.Errorf("failed to load prompts: %w", err)
		}
	}

	// Ingestion
	loader := ingest.NewLoader(vecStore, embedder)
	a.Ingest = ingest.NewService(document.NewBuilder(cfg.LibraryChunkTokens, counter), loader)

	// Feature: Source
	registry, err := scraper.LoadRegistry(cfg.SourcesFile, pageFetcher)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	sourceRepo := source.NewPostgresRepo(db)
	a.Sources = source.NewService(sourceRepo, registry, a.Ingest)
	sourceHandler := source.NewHandler(a.Sources, vecStore, taskPub)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	a.Jobs = job.NewService(jobRepo, taskPub)
	jobHandler := job.NewHandler(a.Jobs)

	// Feature: Report upload
	reportHandler := report.NewHandler(cfg.UploadDir, cfg.MaxUploadSizeMB, taskPub)

	// Feature: Stats
	statsHandler := stats.NewHandler(sourceRepo, jobRepo, vecStore)

	// Retrieval
	queryLogger, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	} else {
		a.closers = append(a.closers, closer)
	}

	a.Retrieval = retrieval.NewService(retrieval.Dependencies{
		Embedder:  embedder,
		Library:   vecStore,
		Generator: generator,
		Search:    search,
		Pages:     retrieval.NewWebPageLoader(pageFetcher, httpFetcher, counter, cfg.SearchChunkTokens),
		Reranker:  reranker.NewDynamicClient(settingsService),
		Settings:  settingsService,
		Prompts:   prompts,
		Logger:    queryLogger,
	})

	// Feature: Draft
	a.Drafts = draft.NewService(a.Retrieval, generator, draft.Options{
		Prompts:    prompts,
		Snippets:   cfg.SearchIncludeSnippets,
		DefaultDir: cfg.OutputDir,
	})
	draftHandler := draft.NewHandler(a.Drafts, taskPub)

	// Feature: MCP
	mcpServer := mcp.NewServer(a.Retrieval)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.HeaderCorrelationID)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("GET /sources", middleware.CorrelationID(enableCORS(sourceHandler.List)))
	mux.Handle("GET /sources/{name}/reports", middleware.CorrelationID(enableCORS(sourceHandler.Reports)))
	mux.Handle("POST /sources/{name}/check", middleware.CorrelationID(enableCORS(sourceHandler.Check)))
	mux.Handle("POST /sources/{name}/posts", middleware.CorrelationID(enableCORS(sourceHandler.Posts)))

	mux.Handle("POST /reports/upload", middleware.CorrelationID(enableCORS(reportHandler.Upload)))
	mux.Handle("POST /drafts", middleware.CorrelationID(enableCORS(draftHandler.Create)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.Handle("/mcp", middleware.CorrelationID(mcpServer.Handler()))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux

	// Workers
	a.Bindings = []worker.Binding{
		{Topic: config.TopicIngestFile, Handler: worker.NewFileConsumer(a.Ingest, jobRepo)},
		{Topic: config.TopicIngestSource, Handler: worker.NewSourceConsumer(&sourceIngester{svc: a.Sources}, jobRepo)},
		{Topic: config.TopicDraft, Handler: worker.NewDraftConsumer(a.Drafts, jobRepo)},
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the browser, model clients and query log.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// seedKeys copies provider keys from the environment into settings when the
// stored value is empty.
func seedKeys(ctx context.Context, svc *settings.Service, cfg *config.Config) {
	if cfg.GeminiAPIKey == "" && cfg.SerperAPIKey == "" && cfg.RerankAPIKey == "" {
		return
	}

	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}

	changed := false
	for _, k := range []struct {
		env    string
		stored *string
	}{
		{cfg.GeminiAPIKey, &set.GeminiAPIKey},
		{cfg.SerperAPIKey, &set.SerperAPIKey},
		{cfg.RerankAPIKey, &set.RerankAPIKey},
	} {
		if k.env != "" && *k.stored == "" {
			*k.stored = k.env
			changed = true
		}
	}
	if !changed {
		return
	}

	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed api keys", "error", err)
		return
	}
	slog.Info("seeded api keys from environment")
}

// sourceIngester adapts source.Service to the worker's view of it.
type sourceIngester struct {
	svc *source.Service
}

func (s *sourceIngester) IngestLatest(ctx context.Context, name string) (bool, error) {
	out, err := s.svc.Ingest(ctx, name)
	if err != nil {
		return false, err
	}
	return out.Decision.Novel, nil
}

func (s *sourceIngester) IngestURL(ctx context.Context, name, url string) error {
	_, err := s.svc.IngestURL(ctx, name, url)
	return err
}
