package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sjsage522/bidnoticeworker/config"
	"sjsage522/bidnoticeworker/helpers"
	"sjsage522/bidnoticeworker/internal/classifier"
	"sjsage522/bidnoticeworker/internal/crawler"
	"sjsage522/bidnoticeworker/internal/models"
	"sjsage522/bidnoticeworker/internal/ruleset"
	"sjsage522/bidnoticeworker/internal/service"
	"sjsage522/bidnoticeworker/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()

	rootCmd := &cobra.Command{
		Use:   "bidnoticeworker",
		Short: "Government bid notice collector",
		Long: `bidnoticeworker collects Korean public procurement notices.

It gathers notices from:
  - the public data bid notice API (daily, latest N days or a date range)
  - organization listing pages described by scraping rulesets

and classifies, stores and publishes the new ones.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(govCmd())
	rootCmd.AddCommand(detailsCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(noticesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration
func loadConfig() (*config.Config, error) {
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// withApp runs fn with a connected App and a context cancelled on SIGINT/SIGTERM
func withApp(withPublisher bool, fn func(ctx context.Context, a *App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, withPublisher)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func runCmd() *cobra.Command {
	var apiAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the periodic worker and the optional HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(ctx context.Context, a *App) error {
				log := logger.Default
				if apiAddr == "" {
					apiAddr = a.Config.APIAddr
				}

				log.Info().
					Str("environment", a.Config.Environment).
					Dur("collect_interval", a.Config.CollectInterval).
					Str("api_addr", apiAddr).
					Msg("Starting application")

				apiDone := make(chan error, 1)
				if apiAddr != "" {
					srv := a.APIServer()
					go func() {
						apiDone <- srv.Start(ctx, apiAddr)
					}()
				}

				workerDone := make(chan struct{})
				go func() {
					log.Info().Msg("Starting bid notice worker")
					a.Worker().Start(ctx)
					close(workerDone)
				}()

				select {
				case <-ctx.Done():
					log.Info().Msg("Received shutdown signal")
				case err := <-apiDone:
					if err != nil {
						log.Error().Err(err).Msg("API server exited with error")
						return err
					}
				}

				<-workerDone
				log.Info().Msg("Shutting down gracefully...")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "", "HTTP API listen address (overrides API_ADDR)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// opening the store applies pending migrations
			return withApp(false, func(ctx context.Context, a *App) error {
				fmt.Printf("Migrations applied (%s)\n", a.Store.Driver())
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import scraping rulesets or keyword rules from YAML",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rulesets <file>",
		Short: "Import scraping rulesets into scraping_settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesets, err := ruleset.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(false, func(ctx context.Context, a *App) error {
				n, err := a.Store.Settings().Import(ctx, rulesets)
				fmt.Printf("Imported %d of %d rulesets\n", n, len(rulesets))
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rules <file>",
		Short: "Import keyword rules and category settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, categories, err := classifier.LoadRulesFile(args[0])
			if err != nil {
				return err
			}
			return withApp(false, func(ctx context.Context, a *App) error {
				for _, r := range rules {
					if _, err := a.Store.AddKeywordRule(ctx, r); err != nil {
						return err
					}
				}
				for i, c := range categories {
					if err := a.Store.SaveCategorySetting(ctx, c, i+1); err != nil {
						return err
					}
				}
				fmt.Printf("Imported %d keyword rules and %d categories\n", len(rules), len(categories))
				return nil
			})
		},
	})
	return cmd
}

func collectCmd() *cobra.Command {
	var (
		opts    = service.DefaultCollectOptions()
		noSave  bool
		noMatch bool
		days    int
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect notices from the public data API",
	}
	cmd.PersistentFlags().StringVar(&opts.AreaCode, "area", "", "region filter")
	cmd.PersistentFlags().StringVar(&opts.OrgName, "org", "", "institution name filter")
	cmd.PersistentFlags().StringVar(&opts.BidKind, "kind", "", "notice kind filter (ntceKindNm)")
	cmd.PersistentFlags().BoolVar(&noSave, "no-save", false, "do not write to the database")
	cmd.PersistentFlags().BoolVar(&noMatch, "no-match", false, "skip keyword matching")

	run := func(collect func(ctx context.Context, a *App, o service.CollectOptions) service.ServiceResult) error {
		o := opts
		o.SaveToDatabase = !noSave
		o.ApplyKeywordMatching = !noMatch
		return withApp(true, func(ctx context.Context, a *App) error {
			res := collect(ctx, a, o)
			if a.Publisher != nil {
				a.Publisher.PublishNotices(ctx, res.NewNotices)
			}
			printServiceResult(res)
			if !res.Success {
				return fmt.Errorf("collection finished with errors")
			}
			return nil
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "today",
		Short: "Collect today's notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *App, o service.CollectOptions) service.ServiceResult {
				return a.Orchestrator.CollectToday(ctx, o)
			})
		},
	})

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Collect the last N days",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *App, o service.CollectOptions) service.ServiceResult {
				return a.Orchestrator.CollectLatest(ctx, days, o)
			})
		},
	}
	latest.Flags().IntVar(&days, "days", 3, "number of days")
	cmd.AddCommand(latest)

	cmd.AddCommand(&cobra.Command{
		Use:   "range <start> <end>",
		Short: "Collect every day from start to end (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.ParseInLocation(time.DateOnly, args[0], helpers.KST)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			end, err := time.ParseInLocation(time.DateOnly, args[1], helpers.KST)
			if err != nil {
				return fmt.Errorf("end: %w", err)
			}
			return run(func(ctx context.Context, a *App, o service.CollectOptions) service.ServiceResult {
				return a.Orchestrator.CollectRange(ctx, start, end, o)
			})
		},
	})
	return cmd
}

func scrapeCmd() *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "scrape [org...]",
		Short: "Scrape organizations (all active rulesets when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(true, func(ctx context.Context, a *App) error {
				orgs := args
				if len(orgs) == 0 {
					var err error
					if orgs, err = a.Workflow.ActiveAgencies(ctx); err != nil {
						return err
					}
				}
				batch := a.Workflow.RunAgencies(ctx, orgs, debug)
				if a.Publisher != nil {
					a.Publisher.PublishNotices(ctx, batch.Inserted)
				}
				printBatch(batch)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "log per page details")
	return cmd
}

func govCmd() *cobra.Command {
	var opts service.GovOptions
	cmd := &cobra.Command{
		Use:   "gov",
		Short: "Scrape a limited number of government agencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(!opts.DryRun, func(ctx context.Context, a *App) error {
				res := a.Workflow.CollectGovNotices(ctx, opts)
				if a.Publisher != nil {
					a.Publisher.PublishNotices(ctx, res.Inserted)
				}
				fmt.Printf("success=%t agencies=%d scraped=%d inserted=%d\n",
					res.Success, res.Agencies, res.TotalScraped, res.TotalInserted)
				for _, e := range res.Errors {
					fmt.Println("  -", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "notice limit; one agency per 10")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report without scraping")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "log per page details")
	cmd.Flags().StringSliceVar(&opts.Agencies, "agency", nil, "agencies to scrape")
	return cmd
}

func detailsCmd() *cobra.Command {
	var opts crawler.DetailOptions
	cmd := &cobra.Command{
		Use:   "details",
		Short: "Collect detail pages of stored notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *App) error {
				res := a.Details.CollectDetails(ctx, opts)
				fmt.Printf("success=%t processed=%d updated=%d\n", res.Success, res.Processed, res.Updated)
				for _, e := range res.Errors {
					fmt.Println("  -", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.OrgName, "org", "", "organization name")
	cmd.Flags().StringVar(&opts.NoticeID, "id", "", "notice number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "maximum notices")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "extract without saving")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "log extracted content")
	return cmd
}

func classifyCmd() *cobra.Command {
	var (
		reset bool
		limit int
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify unprocessed notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *App) error {
				var (
					res models.KeywordProcessingResult
					err error
				)
				if reset {
					res, err = a.Orchestrator.ReprocessKeywordMatching(ctx, limit)
				} else {
					res, err = a.Orchestrator.ApplyKeywordMatching(ctx, limit)
				}
				if err != nil {
					return err
				}
				fmt.Printf("processed=%d matched=%d skipped=%d\n", res.Processed, res.Matched, res.Skipped)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear API classifications first")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum notices (default KEYWORD_MATCH_LIMIT, 100 with --reset)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored notice statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *App) error {
				st, err := a.Orchestrator.Statistics(ctx)
				if err != nil {
					return err
				}
				ps, err := a.Orchestrator.ProcessingStatus(ctx)
				if err != nil {
					return err
				}
				printStats(st, ps)

				logs, err := a.Store.RecentScrapingLogs(ctx, 10)
				if err != nil {
					return err
				}
				if len(logs) > 0 {
					fmt.Println()
					printScrapingLogs(logs)
				}
				return nil
			})
		},
	}
}

func noticesCmd() *cobra.Command {
	var (
		source string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List the newest stored notices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(false, func(ctx context.Context, a *App) error {
				notices, err := a.Store.RecentNotices(ctx, source, limit)
				if err != nil {
					return err
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"No", "Name", "Institution", "Source", "Category"})
				for _, n := range notices {
					t.AppendRow(table.Row{n.BidNoticeNo, truncate(n.BidNoticeName, 40), n.NoticeInstitutionName, n.Source, n.Category})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "api or scrape (default both)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of notices")
	return cmd
}

func printServiceResult(res service.ServiceResult) {
	cr := res.CollectionResult
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Success", "Total", "Collected", "New", "Updated", "Errors", "Duration"})
	t.AppendRow(table.Row{res.Success, cr.TotalCount, cr.CollectedCount, cr.NewCount, cr.UpdatedCount, cr.ErrorCount,
		(time.Duration(res.DurationMS) * time.Millisecond).String()})
	if kp := res.KeywordProcessing; kp != nil {
		t.AppendFooter(table.Row{"Keywords", fmt.Sprintf("processed %d", kp.Processed), fmt.Sprintf("matched %d", kp.Matched)})
	}
	t.Render()

	printErrors(append(append([]string{}, cr.Errors...), res.Errors...))
}

func printBatch(b service.BatchResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Org", "Code", "Scraped", "New", "Inserted", "Time"})
	for _, l := range b.Logs {
		code := "SUCCESS"
		if l.Error != nil {
			code = l.Error.Code.String()
		}
		t.AppendRow(table.Row{l.OrgName, code, l.ScrapedCount, l.NewCount, l.InsertedCount, l.Time})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d agencies, %d failed", b.TotalAgencies, b.ErrorAgencies), "", b.TotalScraped, b.TotalNew, b.TotalInserted, ""})
	t.Render()

	printErrors(b.Errors)
}

func printStats(st models.Statistics, ps models.ProcessingStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Total notices", st.TotalNotices},
		{"Today", st.TodayNotices},
		{"Scraped", st.ScrapedNotices},
		{"Processed", fmt.Sprintf("%d / %d (%.2f%%)", ps.Processed, ps.Total, ps.ProcessingRate)},
		{"Matched", st.MatchedNotices},
	})
	for cat, n := range st.ByCategory {
		t.AppendRow(table.Row{"  " + cat, n})
	}
	if l := st.LastCollection; l != nil {
		t.AppendRow(table.Row{"Last collection", fmt.Sprintf("%s %s (new %d, errors %d)",
			l.StartedAt.In(helpers.KST).Format(helpers.TimestampLayout), l.Status, l.NewCount, l.ErrorCount)})
	}
	t.Render()
}

func printScrapingLogs(logs []models.ScrapingLog) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Org", "Code", "Scraped", "New", "Inserted", "Time"})
	for _, l := range logs {
		code := "SUCCESS"
		if l.Error != nil {
			code = l.Error.Code.String()
		}
		t.AppendRow(table.Row{l.OrgName, code, l.ScrapedCount, l.NewCount, l.InsertedCount, l.Time})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func printErrors(errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("%d errors:\n", len(errs))
	for _, e := range errs[:min(len(errs), 10)] {
		fmt.Println("  -", strings.TrimSpace(e))
	}
}
