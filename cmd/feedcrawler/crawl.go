package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"feedcrawler/internal/browser"
	"feedcrawler/pkg/auth"
	"feedcrawler/pkg/checkpoint"
	"feedcrawler/pkg/collector"
	"feedcrawler/pkg/config"
	"feedcrawler/pkg/crawler"
	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ratelimit"
	"feedcrawler/pkg/submission"
	"feedcrawler/pkg/surface"
	"feedcrawler/pkg/ui"
	"feedcrawler/pkg/ui/tui"
)

var (
	crawlMaxItems   int
	crawlCookies    string
	crawlEndpoint   string
	crawlLedger     string
	crawlLedgerPath string
	crawlLedgerDSN  string
	crawlHeadless   bool
	crawlParallel   int
	crawlScope      string
	crawlTUI        bool
	crawlDryRun     bool
	crawlVerbose    bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [target-url...]",
	Short: "Collect new posts from one or more group feeds",
	Long: `Restore the browser session from the cookie bundle, scroll every target
feed and deliver each post link the ledger has not seen yet.

Targets given on the command line replace the targets from the config file.`,
	Example: `  # Crawl one group with the configured defaults
  feedcrawler crawl https://www.facebook.com/groups/123456

  # Crawl two groups side by side, at most 20 new posts each
  feedcrawler crawl --parallel 2 --max-items 20 https://www.facebook.com/groups/1 https://www.facebook.com/groups/2

  # Show what would be delivered without posting anything
  feedcrawler crawl --dry-run https://www.facebook.com/groups/123456

  # Use a SQLite ledger and the live dashboard
  feedcrawler crawl --ledger sqlite --tui`,
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().IntVarP(&crawlMaxItems, "max-items", "m", 0, "new posts to deliver per target (default from config)")
	crawlCmd.Flags().StringVar(&crawlCookies, "cookies", "", "cookie bundle path")
	crawlCmd.Flags().StringVar(&crawlEndpoint, "endpoint", "", "ingestion endpoint URL")
	crawlCmd.Flags().StringVar(&crawlLedger, "ledger", "", "ledger backend (file, bolt, sqlite, postgres, memory)")
	crawlCmd.Flags().StringVar(&crawlLedgerPath, "ledger-path", "", "ledger file path")
	crawlCmd.Flags().StringVar(&crawlLedgerDSN, "ledger-dsn", "", "PostgreSQL connection string")
	crawlCmd.Flags().BoolVar(&crawlHeadless, "headless", true, "run the browser without a window")
	crawlCmd.Flags().IntVarP(&crawlParallel, "parallel", "p", 0, "targets crawled at once (default from config)")
	crawlCmd.Flags().StringVar(&crawlScope, "scope", "", "link scope (container, document)")
	crawlCmd.Flags().BoolVar(&crawlTUI, "tui", false, "show the live dashboard")
	crawlCmd.Flags().BoolVar(&crawlDryRun, "dry-run", false, "print new posts instead of delivering them")
	crawlCmd.Flags().BoolVarP(&crawlVerbose, "verbose", "v", false, "print every discovered and delivered post")

	rootCmd.AddCommand(crawlCmd)
}

func crawlFlags(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := map[string]interface{}{
		"targets":     args,
		"max-items":   crawlMaxItems,
		"cookies":     crawlCookies,
		"endpoint":    crawlEndpoint,
		"ledger":      crawlLedger,
		"ledger-path": crawlLedgerPath,
		"ledger-dsn":  crawlLedgerDSN,
		"parallel":    crawlParallel,
		"scope":       crawlScope,
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = crawlHeadless
	}
	if crawlTUI {
		flags["log-console"] = false
	}
	return flags
}

func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(crawlFlags(cmd, args))
	if err != nil {
		return err
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if crawlTUI && cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(dataDir, "feedcrawler.log")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close(log)

	targets := cfg.ResolvedTargets()
	if len(targets) == 0 {
		return errors.New("no targets given; pass feed URLs or list them under targets in the config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := openCrawlLedger(ctx, cfg, dataDir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			log.WithError(err).Warn("Failed to close ledger")
		}
	}()

	deliverer, err := newDeliverer(cfg, log)
	if err != nil {
		return err
	}

	var history *checkpoint.Manager
	if !crawlDryRun {
		if history, err = openHistory(log); err != nil {
			return err
		}
	}

	browsers := browser.NewManager(cfg.Browser, log)
	defer func() {
		if err := browsers.Close(); err != nil {
			log.WithError(err).Warn("Failed to close browser")
		}
	}()
	factory := func(ctx context.Context) (surface.Surface, error) {
		page, err := browsers.NewSurface(ctx)
		if err != nil {
			return nil, err
		}
		return page, nil
	}

	pacer := ratelimit.NewPacer(cfg.Submission.PaceMin, cfg.Submission.PaceMax, cfg.Submission.RequestsPerMinute, cfg.Submission.BurstSize)
	opts := crawler.OptionsFromConfig(cfg)

	if !quiet {
		ui.PrintInfo("Targets", fmt.Sprintf("%d", len(targets)))
		ui.PrintInfo("Endpoint", cfg.Submission.Endpoint)
		ui.PrintInfo("Ledger", cfg.Ledger.Backend)
		if crawlDryRun {
			ui.PrintWarning("Dry run: nothing will be delivered or recorded")
		}
	}

	notifier := ui.NewNotifier(cfg.Notifications)

	var results []models.RunResult
	if crawlTUI {
		results, err = crawlWithDashboard(ctx, targets, factory, l, deliverer, pacer, opts, history, log)
	} else {
		var reporter collector.Reporter = ui.NewConsoleReporter(os.Stderr, crawlVerbose)
		if quiet {
			reporter = collector.NopReporter{}
		}
		runner := crawler.New(factory, l, deliverer, pacer, opts,
			crawler.WithLogger(log),
			crawler.WithReporter(reporter),
			crawler.WithHistory(history),
		)
		results, err = runner.Run(ctx, targets)
	}

	if !quiet {
		ui.PrintSummary(os.Stdout, results)
	}
	notifier.CrawlFinished(results, err)
	return err
}

// crawlWithDashboard runs the crawl behind the TUI. Quitting the dashboard
// early cancels the crawl.
func crawlWithDashboard(ctx context.Context, targets []config.TargetConfig, factory crawler.SurfaceFactory,
	l ledger.Ledger, d submission.Deliverer, pacer ratelimit.Limiter, opts crawler.Options,
	history *checkpoint.Manager, log logger.Logger) ([]models.RunResult, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dashboard := tui.NewTUI(len(targets))
	runner := crawler.New(factory, l, d, ratelimit.Chain{dashboard.Gate(), pacer}, opts,
		crawler.WithLogger(log),
		crawler.WithReporter(dashboard),
		crawler.WithHistory(history),
	)

	var (
		results []models.RunResult
		runErr  error
	)
	crawlDone := make(chan struct{})
	go func() {
		defer close(crawlDone)
		results, runErr = runner.Run(ctx, targets)
		dashboard.Done(runErr)
	}()

	tuiDone := make(chan error, 1)
	go func() {
		tuiDone <- dashboard.Start()
	}()

	select {
	case err := <-tuiDone:
		cancel()
		<-crawlDone
		if err != nil {
			log.WithError(err).Warn("Dashboard exited with error")
		}
	case <-crawlDone:
		// the dashboard stays up until the user quits
		if err := <-tuiDone; err != nil {
			log.WithError(err).Warn("Dashboard exited with error")
		}
	}
	return results, runErr
}

// openCrawlLedger opens the configured ledger. A dry run gets an in-memory
// copy so nothing is recorded.
func openCrawlLedger(ctx context.Context, cfg *config.Config, dataDir string, log logger.Logger) (ledger.Ledger, error) {
	l, err := ledger.Open(ctx, cfg.Ledger, dataDir, log)
	if err != nil || !crawlDryRun {
		return l, err
	}
	defer l.Close()

	refs, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewMemory(refs...), nil
}

func newDeliverer(cfg *config.Config, log logger.Logger) (submission.Deliverer, error) {
	if crawlDryRun {
		return dryRunDeliverer{out: os.Stdout}, nil
	}

	token := cfg.Submission.Token
	if manager, err := auth.NewManager(""); err != nil {
		log.WithError(err).Warn("Token storage unavailable")
	} else if token, err = manager.Resolve(cfg.Submission.Token, cfg.Submission.TokenName); err != nil {
		return nil, fmt.Errorf("failed to resolve API token: %w", err)
	}

	return submission.NewClient(submission.Options{
		Endpoint:  cfg.Submission.Endpoint,
		Timeout:   cfg.Submission.Timeout,
		Token:     token,
		UserAgent: cfg.Submission.UserAgent,
	}, log), nil
}

// dryRunDeliverer prints references instead of posting them
type dryRunDeliverer struct {
	out io.Writer
}

func (d dryRunDeliverer) Deliver(ctx context.Context, ref models.Reference) submission.Outcome {
	fmt.Fprintln(d.out, ref)
	return submission.Outcome{Kind: submission.Delivered}
}
