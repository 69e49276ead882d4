package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"feedcrawler/pkg/auth"
	"feedcrawler/pkg/config"
	"feedcrawler/pkg/ui"
)

const defaultConfigPath = ".feedcrawler.yaml"

const configHeader = `# feedcrawler configuration
#
# Values here are overridden by environment variables (FEEDCRAWLER_*, also
# read from .env) and by command line flags. For example:
#   FEEDCRAWLER_ENDPOINT, FEEDCRAWLER_COOKIE_FILE, FEEDCRAWLER_MAX_ITEMS
#
# Durations use Go syntax: 500ms, 2s, 1m30s.
# Store the API token with 'feedcrawler auth set' rather than in this file.

`

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage feedcrawler configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (FEEDCRAWLER_*)
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every option",
	Long: `Write a configuration file holding the default value of every option and
one example target. The file is created as .feedcrawler.yaml unless --config
names another path.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after merging every source. The API token is masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s (remove it first to start over)", path)
	}

	cfg := config.DefaultConfig()
	cfg.Targets = []config.TargetConfig{
		{URL: "https://www.facebook.com/groups/YOUR_GROUP_ID", MaxItems: config.DefaultMaxItems},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.PrintSuccess("Configuration written to " + path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Replace the example target with your group URLs")
	fmt.Println("  2. Export a cookie bundle ('feedcrawler session guide') or run 'feedcrawler session capture'")
	fmt.Println("  3. Store the API token with 'feedcrawler auth set'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Submission.Token != "" {
		display.Submission.Token = auth.Sanitize(&auth.Token{Value: display.Submission.Token}).Value
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var warnings []string
	if len(cfg.ResolvedTargets()) == 0 {
		warnings = append(warnings, "no targets configured; pass them to 'crawl' instead")
	}
	if _, err := os.Stat(cfg.Session.BundlePath); err != nil {
		warnings = append(warnings, fmt.Sprintf("cookie bundle not found at %s", cfg.Session.BundlePath))
	}
	if cfg.Submission.Endpoint == config.DefaultEndpoint {
		warnings = append(warnings, "submission endpoint is the built-in default")
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Targets: %d\n", len(cfg.ResolvedTargets()))
	fmt.Printf("  Cookie bundle: %s\n", cfg.Session.BundlePath)
	fmt.Printf("  Endpoint: %s\n", cfg.Submission.Endpoint)
	fmt.Printf("  Ledger: %s\n", cfg.Ledger.Backend)
	fmt.Printf("  Scope: %s\n", cfg.Crawl.Scope)
	fmt.Printf("  Parallelism: %d\n", cfg.Crawl.Parallelism)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
