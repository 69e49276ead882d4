package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"feedcrawler/pkg/auth"
	"feedcrawler/pkg/ui"
)

var authEndpoint string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage ingestion API tokens",
	Long: `Store ingestion API tokens in the system keychain, or in an encrypted
file when no keychain is available. A crawl picks the token named by
submission.token_name unless submission.token is set.`,
}

var authSetCmd = &cobra.Command{
	Use:   "set [name]",
	Short: "Store an API token",
	Example: `  # Prompt for the default token
  feedcrawler auth set

  # Store a second token for a staging endpoint
  feedcrawler auth set staging --endpoint https://staging.example.com/ingest`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuthSet,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a stored API token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthRemove,
}

var authListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored API tokens",
	Args:  cobra.NoArgs,
	RunE:  runAuthList,
}

func init() {
	authSetCmd.Flags().StringVar(&authEndpoint, "endpoint", "", "endpoint this token belongs to")

	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authRemoveCmd)
	authCmd.AddCommand(authListCmd)
	rootCmd.AddCommand(authCmd)
}

func tokenName(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0])
	}
	return auth.DefaultTokenName
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize token storage: %w", err)
	}

	name := tokenName(args)
	value, err := readToken(fmt.Sprintf("API token for %q: ", name))
	if err != nil {
		return err
	}
	if value == "" {
		return errors.New("token cannot be empty")
	}

	token := &auth.Token{
		Name:         name,
		Value:        value,
		Endpoint:     authEndpoint,
		LastModified: time.Now(),
	}
	if err := manager.Store(token); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	ui.PrintSuccess("Token stored: " + name)
	return nil
}

// readToken reads a secret without echo when stdin is a terminal
func readToken(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize token storage: %w", err)
	}

	name := tokenName(args)
	if err := manager.Delete(name); err != nil {
		return err
	}
	ui.PrintSuccess("Token removed: " + name)
	return nil
}

func runAuthList(cmd *cobra.Command, args []string) error {
	manager, err := auth.NewManager("")
	if err != nil {
		return fmt.Errorf("failed to initialize token storage: %w", err)
	}

	tokens, err := manager.List()
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		ui.PrintInfo("No stored tokens", "use 'feedcrawler auth set' to add one")
		return nil
	}

	ui.PrintHighlight("Stored Tokens")
	for _, token := range tokens {
		t := auth.Sanitize(token)
		fmt.Printf("  %s  %s", t.Name, t.Value)
		if t.Endpoint != "" {
			fmt.Printf("  (%s)", t.Endpoint)
		}
		if !t.LastModified.IsZero() {
			fmt.Printf("  updated %s", t.LastModified.Local().Format("2006-01-02 15:04"))
		}
		fmt.Println()
	}
	return nil
}
