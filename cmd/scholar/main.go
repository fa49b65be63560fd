// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/scholar"
	"github.com/poiesic/scholar/config"
	"github.com/poiesic/scholar/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the CLI. opts are passed to every scholar.Open call.
func newApp(opts ...scholar.Option) *cli.App {
	r := &runner{opts: opts}

	return &cli.App{
		Name:  "scholar",
		Usage: "Index research material and answer questions with citations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default ./scholar.yaml, then ~/.config/scholar/config.yaml)",
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "Load environment variables from these files",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return config.LoadEnv(c.StringSlice("env-file")...)
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index documents from .json or .jsonl files",
				ArgsUsage: "<file>...",
				Action:    r.indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid search",
				ArgsUsage: "<query>",
				Action:    r.searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "k",
						Aliases: []string{"n"},
						Usage:   "Number of results",
						Value:   search.DefaultK,
					},
					jsonFlag(),
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed material",
				ArgsUsage: "<question>",
				Action:    r.askCommand,
				Flags:     []cli.Flag{jsonFlag()},
			},
			{
				Name:   "report",
				Usage:  "Summarize recorded citations",
				Action: r.reportCommand,
			},
			{
				Name:   "export",
				Usage:  "Export recorded citations as a bibliography",
				Action: r.exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (bibtex, apa, json)",
						Value:   "bibtex",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to this file instead of stdout",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every stored document with the configured embedding model",
				Action: r.reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch (default from config)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed batches (default from config)",
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Index document files dropped into a directory",
				ArgsUsage: "<dir>",
				Action:    r.watchCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Wait this long after the last write before reading a file",
						Value: 500 * time.Millisecond,
					},
					&cli.BoolFlag{
						Name:  "existing",
						Usage: "Index files already in the directory on startup",
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API",
				Action: r.serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (default from config)",
					},
				},
			},
			{
				Name:  "collections",
				Usage: "Inspect tracked collections",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List tracked items, newest first",
						Action: r.collectionsListCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "type",
								Usage: "Only list this content type (paper, video, podcast)",
							},
							&cli.IntFlag{
								Name:  "limit",
								Value: 50,
							},
							&cli.IntFlag{
								Name: "offset",
							},
						},
					},
					{
						Name:      "search",
						Usage:     "Find tracked items by title or source",
						ArgsUsage: "<text>",
						Action:    r.collectionsSearchCommand,
					},
					{
						Name:   "stats",
						Usage:  "Show collection statistics",
						Action: r.collectionsStatsCommand,
					},
				},
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "json",
		Usage: "Print JSON instead of text",
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
