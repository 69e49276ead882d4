package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"feedcrawler/pkg/checkpoint"
	"feedcrawler/pkg/config"
	"feedcrawler/pkg/logger"
	"feedcrawler/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last run of every target",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// openHistory opens the per-target run history under the data directory
func openHistory(log logger.Logger) (*checkpoint.Manager, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	return checkpoint.NewManager(filepath.Join(dataDir, "runs"), log)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close(log)

	history, err := openHistory(log)
	if err != nil {
		return err
	}
	records, err := history.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.PrintInfo("No runs recorded", "use 'feedcrawler crawl' to start one")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tRUNS\tLAST RUN\tNEW\tTOTAL\tSTATUS")
	for _, rec := range records {
		status := "ok"
		if !rec.Succeeded() {
			status = "failed: " + rec.LastError
		} else if rec.LastRun.Exhausted {
			status = "ok (feed exhausted)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%s\n",
			rec.Target,
			rec.Runs,
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
			rec.LastRun.Delivered,
			rec.TotalDelivered,
			status,
		)
	}
	return w.Flush()
}
