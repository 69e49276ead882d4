package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"feedcrawler/pkg/config"
	"feedcrawler/pkg/ledger"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ui"
)

var (
	ledgerBackend string
	ledgerPath    string
	ledgerDSN     string
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the delivery ledger",
	Long:  `Inspect the store of post links that have already been delivered.`,
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every delivered post link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l ledger.Ledger) error {
			refs, err := l.List(ctx)
			if err != nil {
				return err
			}
			for _, ref := range refs {
				fmt.Println(ref)
			}
			return nil
		})
	},
}

var ledgerCheckCmd = &cobra.Command{
	Use:     "check <post-url>",
	Short:   "Report whether a post link has been delivered",
	Example: `  feedcrawler ledger check "https://www.facebook.com/groups/1/posts/2/?comment_id=3"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := models.Canonicalize(args[0])
		return withLedger(func(ctx context.Context, l ledger.Ledger) error {
			ok, err := l.Contains(ctx, ref)
			if err != nil {
				return err
			}
			if !ok {
				ui.PrintInfo("Not delivered", ref.String())
				return nil
			}
			ui.PrintSuccess("Delivered: " + ref.String())
			if bl, isBolt := l.(*ledger.BoltLedger); isBolt {
				if at, found, err := bl.DeliveredAt(ref); err == nil && found {
					ui.PrintInfo("Delivered at", at.Local().Format(time.RFC1123))
				}
			}
			return nil
		})
	},
}

var ledgerCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of delivered post links",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(ctx context.Context, l ledger.Ledger) error {
			n, err := l.Len(ctx)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		})
	},
}

func init() {
	ledgerCmd.PersistentFlags().StringVar(&ledgerBackend, "ledger", "", "ledger backend (file, bolt, sqlite, postgres)")
	ledgerCmd.PersistentFlags().StringVar(&ledgerPath, "ledger-path", "", "ledger file path")
	ledgerCmd.PersistentFlags().StringVar(&ledgerDSN, "ledger-dsn", "", "PostgreSQL connection string")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerCheckCmd)
	ledgerCmd.AddCommand(ledgerCountCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// withLedger opens the configured ledger for the duration of fn
func withLedger(fn func(ctx context.Context, l ledger.Ledger) error) error {
	cfg, err := loadConfig(map[string]interface{}{
		"ledger":      ledgerBackend,
		"ledger-path": ledgerPath,
		"ledger-dsn":  ledgerDSN,
	})
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close(log)

	dataDir, err := config.DataDir()
	if err != nil {
		return err
	}

	ctx := context.Background()
	l, err := ledger.Open(ctx, cfg.Ledger, dataDir, log)
	if err != nil {
		return err
	}
	defer l.Close()

	return fn(ctx, l)
}
