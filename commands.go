package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"quill/internal/app"
	"quill/internal/config"
	applog "quill/internal/logger"
	"quill/internal/pipeline"
	"quill/internal/worker"
)

type cli struct {
	cfg    *config.Config
	logger *slog.Logger
	// logs go to stdout for serve and stderr for one-shot commands
	logOut io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{logOut: os.Stderr}

	root := &cobra.Command{
		Use:          "quill",
		Short:        "Threat intelligence library and blog drafting service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			c.cfg = cfg
			c.logger = applog.New(c.logOut, cfg.LogLevel)
			slog.SetDefault(c.logger)
			return nil
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.checkCmd(),
		c.fetchCmd(),
		c.draftCmd(),
	)
	return root
}

// open bootstraps the backing services for a one-shot command.
func (c *cli) open(ctx context.Context) (*app.App, func(), error) {
	deps, err := app.Bootstrap(ctx, c.cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(c.cfg, deps.DB, deps.VectorStore, deps.NSQProducer, c.logger, nil)
	if err != nil {
		deps.Close()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
		deps.Close()
	}, nil
}

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, MCP endpoint and task consumers",
		Args:  cobra.NoArgs,
		PreRun: func(_ *cobra.Command, _ []string) {
			c.logger = applog.New(os.Stdout, c.cfg.LogLevel)
			slog.SetDefault(c.logger)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			return run(ctx, c.cfg, c.logger)
		},
	}
	return cmd
}

func (c *cli) ingestCmd() *cobra.Command {
	var queue bool
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Load PDF or JSON reports into the library",
		Long: `Chunks, embeds and stores each report with its metadata.
Re-ingesting a file only completes what is missing. With --queue the files
are handed to the running workers instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			failed := 0
			for _, path := range args {
				if queue {
					if err := worker.Enqueue(a.Publisher, worker.FileTask{Path: path, FileName: filepath.Base(path), CorrelationID: worker.CorrelationFrom(ctx)}); err != nil {
						return err
					}
					cmd.Printf("queued %s\n", path)
					continue
				}

				res, err := a.Ingest.IngestFile(ctx, path, "")
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", path, err)
					continue
				}
				cmd.Printf("%s: report %s, %d new chunks of %d\n", path, res.ReportID, res.ChunksCreated, len(res.ChunkIDs))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "enqueue the files for the workers instead of loading them here")
	return cmd
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <source>",
		Short: "Ingest a source's newest post if it has not been seen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			out, err := a.Sources.Ingest(ctx, args[0])
			if err != nil {
				return err
			}
			if !out.Decision.Novel {
				cmd.Printf("%s: nothing new since %s\n", args[0], out.Decision.LastIngestedAt.Format("2006-01-02"))
				return nil
			}
			cmd.Printf("%s: ingested %q (%s)\n", args[0], out.Decision.Latest.Title, out.Decision.Latest.URL)
			return nil
		},
	}
}

func (c *cli) fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <source> <url>",
		Short: "Ingest one specific post of a source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			res, err := a.Sources.IngestURL(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			cmd.Printf("%s: report %s, %d new chunks\n", args[1], res.ReportID, res.ChunksCreated)
			return nil
		},
	}
}

func (c *cli) draftCmd() *cobra.Command {
	var outlinePath, outDir string
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Write a blog post section by section from an outline",
		Long: `Reads an outline of "SECTION:" entries and drafts each one with
library and live search context. Each section's prompt and draft are saved
under the output directory as they complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outline, err := readOutline(outlinePath)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			a, done, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer done()

			res, err := a.Drafts.Draft(ctx, outline, outDir)
			if err != nil {
				return err
			}
			cmd.Printf("drafted %d sections\n", len(res.Sections))
			return nil
		},
	}
	cmd.Flags().StringVar(&outlinePath, "outline", "", "outline file")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default OUTPUT_DIR)")
	_ = cmd.MarkFlagRequired("outline")
	return cmd
}

func readOutline(path string) (string, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path is a CLI argument
	if err != nil {
		return "", fmt.Errorf("failed to read outline: %w", err)
	}
	outline := string(raw)
	if len(pipeline.Decompose(outline)) == 0 {
		return "", fmt.Errorf("outline %s has no SECTION: entries", path)
	}
	return outline, nil
}
