package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/renderinc/briefing/internal/archive"
	"github.com/renderinc/briefing/internal/config"
	"github.com/renderinc/briefing/internal/ingest"
	"github.com/renderinc/briefing/internal/mcpserver"
	"github.com/renderinc/briefing/internal/scheduler"
	"github.com/renderinc/briefing/internal/web"
)

// withApp opens the archive for the duration of fn
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, flags)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve archive tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				sched := scheduler.New(a.logger)
				if err := a.scheduleJobs(ctx, sched, false); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()

				srv, err := mcpserver.New(a.cfg.MCP.Name, Version, a.registry, a.archive, a.logger)
				if err != nil {
					return err
				}
				return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
			})
		},
	}
}

func serveCmd(flags *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API with scheduled retention and ingestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Addr
				}

				sched := scheduler.New(a.logger)
				if err := a.scheduleJobs(ctx, sched, true); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()

				srv := &http.Server{
					Addr:              addr,
					Handler:           web.NewServer(a.archive, a.registry, a.metrics, a.logger).Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.logger.Info("Starting server", "addr", "http://"+addr)
					errCh <- srv.ListenAndServe()
				}()

				select {
				case err := <-errCh:
					if !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("serve: %w", err)
					}
					return nil
				case <-ctx.Done():
				}

				a.logger.Info("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func printIngestStats(w io.Writer, s *ingest.Stats) {
	fmt.Fprintln(w, "=== Ingest Complete ===")
	fmt.Fprintf(w, "Total:      %d\n", s.Total)
	fmt.Fprintf(w, "Stored:     %d\n", s.Stored)
	fmt.Fprintf(w, "Skipped:    %d\n", s.Skipped)
	fmt.Fprintf(w, "Fallbacks:  %d\n", s.ScrapeFallbacks)
	fmt.Fprintf(w, "Failed:     %d\n", s.Failed)
	fmt.Fprintf(w, "Duration:   %v\n", s.Duration.Round(time.Millisecond))
}

func ingestCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Archive the current Hacker News top stories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				if limit <= 0 {
					limit = a.cfg.HN.TopStories
				}
				if len(topics) == 0 {
					topics = a.cfg.HN.Topics
				}
				stats, err := a.worker.IngestTopStories(ctx, limit, topics)
				if stats != nil {
					printIngestStats(cmd.OutOrStdout(), stats)
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Number of top stories (default from config)")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "Topics to tag the stories with")
	return cmd
}

func ingestURLCmd(flags *globalFlags) *cobra.Command {
	var (
		source string
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "ingest-url <url>...",
		Short: "Scrape pages and archive them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				stats, err := a.worker.IngestURLs(ctx, args, source, topics)
				if stats != nil {
					printIngestStats(cmd.OutOrStdout(), stats)
					for _, id := range stats.Items {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Source tag (default web)")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "Topics to tag the pages with")
	return cmd
}

func searchCmd(flags *globalFlags) *cobra.Command {
	var (
		q      archive.ItemQuery
		weight float64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search archived items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Query = strings.Join(args, " ")
			if cmd.Flags().Changed("weight") {
				q.KeywordWeight = &weight
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				results, err := a.archive.SearchItems(ctx, q)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, results)
				}
				if len(results) == 0 {
					fmt.Fprintln(out, "No results found")
					return nil
				}

				fmt.Fprintf(out, "Found %d results:\n\n", len(results))
				for i, r := range results {
					fmt.Fprintf(out, "%d. %s\n", i+1, r.Title)
					fmt.Fprintf(out, "   ID: %s\n", r.ContentID)
					fmt.Fprintf(out, "   URL: %s\n", r.URL)
					fmt.Fprintf(out, "   Source: %s  Date: %s\n", r.Source, r.Timestamp)
					fmt.Fprintf(out, "   Score: %.3f\n", r.Similarity)
					if r.Preview != "" {
						fmt.Fprintf(out, "   %s\n", strings.ReplaceAll(r.Preview, "\n", " "))
					}
					fmt.Fprintln(out)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&q.Limit, "limit", 5, "Maximum results")
	cmd.Flags().StringVar(&q.Mode, "mode", archive.ModeSemantic, "semantic, keyword or hybrid")
	cmd.Flags().StringVar(&q.Source, "source", "", "Only items from this source")
	cmd.Flags().StringVar(&q.Topic, "topic", "", "Only items tagged with this topic")
	cmd.Flags().Float64Var(&weight, "weight", 0.7, "Keyword weight for hybrid mode (0-1)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func getCmd(flags *globalFlags) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get <content-id>",
		Short: "Show an archived item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				item, err := a.archive.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item not found: %s", args[0])
				}

				doc := fmt.Sprintf("# %s\n\n*%s · %s · %d min read*\n\n%s\n\n%s\n",
					item.Title, item.Source, item.Timestamp, item.ReadingTimeMinutes, item.URL, item.Body)
				if raw {
					_, err := io.WriteString(cmd.OutOrStdout(), doc)
					return err
				}

				r, err := glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(100),
				)
				if err != nil {
					return fmt.Errorf("create renderer: %w", err)
				}
				rendered, err := r.Render(doc)
				if err != nil {
					return fmt.Errorf("render item: %w", err)
				}
				_, err = io.WriteString(cmd.OutOrStdout(), rendered)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print Markdown without terminal styling")
	return cmd
}

func deleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <content-id>",
		Short: "Delete an archived item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				removed, err := a.archive.DeleteItem(ctx, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("item not found: %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func digestsCmd(flags *globalFlags) *cobra.Command {
	var (
		days  int
		query string
	)

	cmd := &cobra.Command{
		Use:   "digests",
		Short: "List recent digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				digests, err := a.archive.SearchDigests(ctx, days, query)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), digests)
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "How far back to look")
	cmd.Flags().StringVar(&query, "query", "", "Rank by similarity to this text")
	return cmd
}

func putDigestCmd(flags *globalFlags) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "put-digest <file.json|->",
		Short: "Store an assembled digest read from a JSON file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read digest: %w", err)
			}

			var d archive.Digest
			if err := json.Unmarshal(data, &d); err != nil {
				return fmt.Errorf("decode digest: %w", err)
			}

			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				res := a.archive.PutDigest(ctx, id, &d)
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("store digest: %s", res.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Digest id (default digest_<timestamp>)")
	return cmd
}

func summaryCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show recent digests and trending topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				s, err := a.archive.ContextSummary(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func statsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show archive statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				s, err := a.archive.Stats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func sweepCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict items and digests past the age or size limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, func(ctx context.Context, a *app) error {
				return printJSON(cmd.OutOrStdout(), a.archive.RunRetentionSweep(ctx))
			})
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	var path string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "Where to write (default $XDG_CONFIG_HOME/briefing/config.yaml)")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "briefing %s\n", Version)
		},
	}
}
