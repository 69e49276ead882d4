package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"feedcrawler/internal/browser"
	"feedcrawler/pkg/auth"
	"feedcrawler/pkg/cookies"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/session"
	"feedcrawler/pkg/ui"
)

var (
	sessionCookies string
	sessionLive    bool
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and capture the cookie bundle",
	Long:  `Check that the cookie bundle is usable or capture a fresh one from a browser login.`,
}

var sessionCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Parse the cookie bundle and report problems",
	Long: `Parse the cookie bundle the same way a crawl does and list skipped lines
and missing login cookies. With --live the bundle is also restored into a
browser and the login marker is checked.`,
	Example: `  feedcrawler session check
  feedcrawler session check --cookies ./cookies.txt --live`,
	RunE: runSessionCheck,
}

var sessionCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Log in through a browser window and save the cookies",
	Long: `Open a visible browser on the site origin. Log in by hand, then press
Enter in the terminal to save the browser's cookies as the bundle.`,
	RunE: runSessionCapture,
}

var sessionGuideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Show how to export a cookie bundle by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(sessionFlags())
		if err != nil {
			return err
		}
		auth.ShowBundleExportGuide(os.Stdout, cfg.Session.BundlePath)
		return nil
	},
}

func init() {
	sessionCmd.PersistentFlags().StringVar(&sessionCookies, "cookies", "", "cookie bundle path")
	sessionCheckCmd.Flags().BoolVar(&sessionLive, "live", false, "restore the bundle in a browser and verify the login")

	sessionCmd.AddCommand(sessionCheckCmd)
	sessionCmd.AddCommand(sessionCaptureCmd)
	sessionCmd.AddCommand(sessionGuideCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionFlags() map[string]interface{} {
	return map[string]interface{}{"cookies": sessionCookies}
}

func runSessionCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(sessionFlags())
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close(log)

	path := cfg.Session.BundlePath
	ui.PrintInfo("Cookie bundle", path)

	bundle, err := cookies.LoadBundle(path, cfg.Session.PrimaryDomain, log)
	if err != nil {
		auth.ShowQuickBundleGuide(os.Stdout)
		return err
	}

	fmt.Printf("  Cookies: %d\n", len(bundle.Records))
	if len(bundle.Skipped) > 0 {
		ui.PrintWarning(fmt.Sprintf("%d lines skipped", len(bundle.Skipped)))
		for _, s := range bundle.Skipped {
			fmt.Printf("  - line %d: %s\n", s.Line, s.Reason)
		}
	}

	missing := cookies.MissingEssential(bundle.Records)
	if len(missing) > 0 {
		ui.PrintWarning("Missing login cookies", strings.Join(missing, ", "))
	}

	if len(bundle.Records) == 0 {
		auth.ShowQuickBundleGuide(os.Stdout)
		return errors.New("cookie bundle holds no usable cookies")
	}

	if !sessionLive {
		if len(missing) == 0 {
			ui.PrintSuccess("Cookie bundle looks usable")
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browsers := browser.NewManager(cfg.Browser, log)
	defer browsers.Close()

	page, err := browsers.NewSurface(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	restorer := session.NewRestorer(page, session.Options{
		Origin:        cfg.Session.Origin,
		PrimaryDomain: cfg.Session.PrimaryDomain,
		ProbePattern:  cfg.Session.ProbePattern,
		ProbeTimeout:  cfg.Session.ProbeTimeout,
		SettleDelay:   cfg.Session.SettleDelay,
	}, log)

	ok, err := restorer.Restore(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		auth.ShowQuickBundleGuide(os.Stdout)
		return errors.New("session restored but the login marker was not found; the cookies have probably expired")
	}
	ui.PrintSuccess("Logged in with the cookie bundle")
	return nil
}

func runSessionCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(sessionFlags())
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browserCfg := cfg.Browser
	browserCfg.Headless = false
	browserCfg.ResourceBlocking = nil
	browsers := browser.NewManager(browserCfg, log)
	defer browsers.Close()

	page, err := browsers.NewSurface(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	confirm := func() error {
		ui.PrintHighlight("Log in in the browser window, then press Enter here")
		reader := bufio.NewReader(os.Stdin)
		if _, err := reader.ReadString('\n'); err != nil {
			return err
		}
		return ctx.Err()
	}

	n, err := session.Capture(ctx, page, cfg.Session.Origin, cfg.Session.BundlePath, confirm, log)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Saved %d cookies to %s", n, cfg.Session.BundlePath))
	return nil
}
