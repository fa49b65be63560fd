package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/poiesic/scholar"
	"github.com/poiesic/scholar/citation"
	"github.com/poiesic/scholar/config"
	"github.com/poiesic/scholar/core"
	"github.com/poiesic/scholar/metrics"
	"github.com/poiesic/scholar/server"
	"github.com/poiesic/scholar/watch"
	"github.com/urfave/cli/v2"
)

// runner holds what every command needs to open the assistant.
type runner struct {
	opts []scholar.Option
}

func (r *runner) open(c *cli.Context, extra ...scholar.Option) (*scholar.Assistant, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	opts := append([]scholar.Option{}, r.opts...)
	a, err := scholar.Open(c.Context, cfg, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open assistant: %w", err)
	}
	return a, nil
}

func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, _, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func queryArg(c *cli.Context, what string) (string, error) {
	q := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if q == "" {
		return "", fmt.Errorf("%s is required", what)
	}
	return q, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func (r *runner) indexCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one document file is required")
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	var failedFiles int
	for _, path := range c.Args().Slice() {
		docs, err := watch.LoadDocuments(path)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
			failedFiles++
			continue
		}

		result, err := a.IndexDocuments(c.Context, docs, filepath.Base(path))
		if err != nil {
			if result != nil && result.Unavailable {
				return fmt.Errorf("indexing %s: %w", path, err)
			}
			fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
			failedFiles++
			continue
		}

		fmt.Fprintf(c.App.Writer, "%s: %d indexed, %d failed\n", path, result.Succeeded, result.Failed)
		for _, item := range result.Items {
			if item.Err != nil {
				fmt.Fprintf(c.App.ErrWriter, "  document %d: %v\n", item.Index+1, item.Err)
			}
		}
	}

	if failedFiles > 0 {
		return fmt.Errorf("%d file(s) could not be indexed", failedFiles)
	}
	return nil
}

func (r *runner) searchCommand(c *cli.Context) error {
	query, err := queryArg(c, "query")
	if err != nil {
		return err
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	searcher, err := a.NewSearcher()
	if err != nil {
		return err
	}
	results := searcher.Search(c.Context, query, c.Int("k"))

	if c.Bool("json") {
		return printJSON(c.App.Writer, results)
	}
	printResults(c.App.Writer, results)
	return nil
}

func (r *runner) askCommand(c *cli.Context) error {
	query, err := queryArg(c, "question")
	if err != nil {
		return err
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.NewOrchestrator()
	if err != nil {
		return err
	}
	answer, err := orch.ProcessQuery(c.Context, query)
	if answer == nil {
		return err
	}

	if c.Bool("json") {
		if perr := printJSON(c.App.Writer, answer); perr != nil {
			return perr
		}
	} else {
		printAnswer(c.App.Writer, answer)
	}
	return err
}

func (r *runner) reportCommand(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(c.App.Writer, a.Ledger().Report())
}

func (r *runner) exportCommand(c *cli.Context) error {
	format, err := citation.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Ledger().Export(format)
	if err != nil {
		return err
	}

	if path := c.String("output"); path != "" {
		if err := os.WriteFile(path, []byte(out+"\n"), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Fprintf(c.App.ErrWriter, "Exported %s bibliography to %s\n", format, path)
		return nil
	}
	fmt.Fprintln(c.App.Writer, out)
	return nil
}

func (r *runner) reindexCommand(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	rc := a.ReindexConfig()
	if n := c.Int("batch-size"); n != 0 {
		rc.BatchSize = n
	}
	if n := c.Int("max-retries"); n != 0 {
		rc.MaxRetries = n
	}
	rc.ReportInterval = c.Int("report-interval")
	rc.RetryDelay = c.Duration("retry-delay")

	if rc.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if rc.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if rc.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	reindexer, err := a.NewReindexer(a.Indexer(), rc, c.App.ErrWriter)
	if err != nil {
		return err
	}

	cfg := a.Config()
	fmt.Fprintf(c.App.ErrWriter, "Store: %s\n", cfg.Store.Type)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	ctx, cancel := signalContext(c)
	defer cancel()
	if _, err := reindexer.Run(ctx); err != nil {
		return fmt.Errorf("reindexing failed: %w", err)
	}
	return nil
}

func (r *runner) watchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("exactly one directory is required")
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := watch.NewWatcher(c.Args().First(), a,
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithProcessExisting(c.Bool("existing")),
		watch.WithOnProcessed(func(res watch.FileResult) {
			if res.Err != nil {
				fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", res.Path, res.Err)
				return
			}
			fmt.Fprintf(c.App.Writer, "%s: %d indexed, %d failed\n", res.Path, res.Result.Succeeded, res.Result.Failed)
		}))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl-C to stop)\n", c.Args().First())
	return w.Run(ctx)
}

func (r *runner) serveCommand(c *cli.Context) error {
	m := metrics.New()
	a, err := r.open(c, scholar.WithMetrics(m))
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []server.Option
	if addr := c.String("addr"); addr != "" {
		opts = append(opts, server.WithAddr(addr))
	}
	srv, err := a.NewServer(opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	return srv.Start(ctx)
}

func (r *runner) collectionsListCommand(c *cli.Context) error {
	var contentType core.ContentType
	if raw := c.String("type"); raw != "" {
		ct, err := core.ParseContentType(raw)
		if err != nil {
			return err
		}
		contentType = ct
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Collections().ListCollections(c.Context, contentType, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return err
	}
	printCollections(c.App.Writer, items)
	return nil
}

func (r *runner) collectionsSearchCommand(c *cli.Context) error {
	q, err := queryArg(c, "search text")
	if err != nil {
		return err
	}

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	items, err := a.Collections().SearchCollections(c.Context, q, 50)
	if err != nil {
		return err
	}
	printCollections(c.App.Writer, items)
	return nil
}

func (r *runner) collectionsStatsCommand(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Collections().Statistics(c.Context)
	if err != nil {
		return err
	}
	printStats(c.App.Writer, stats)
	return nil
}

