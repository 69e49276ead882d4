package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcrawler/pkg/auth"
	"feedcrawler/pkg/models"
	"feedcrawler/pkg/submission"
)

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"crawl"},
		{"session", "check"},
		{"session", "capture"},
		{"session", "guide"},
		{"ledger", "list"},
		{"ledger", "check"},
		{"ledger", "count"},
		{"status"},
		{"auth", "set"},
		{"auth", "remove"},
		{"auth", "list"},
		{"config", "init"},
		{"config", "show"},
		{"config", "validate"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestCrawlFlagsHeadlessOnlyWhenChanged(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().BoolVar(&crawlHeadless, "headless", true, "")

	flags := crawlFlags(cmd, []string{"https://www.facebook.com/groups/1"})
	_, set := flags["headless"]
	assert.False(t, set)
	assert.Equal(t, []string{"https://www.facebook.com/groups/1"}, flags["targets"])

	require.NoError(t, cmd.Flags().Set("headless", "false"))
	flags = crawlFlags(cmd, nil)
	assert.Equal(t, false, flags["headless"])
}

func TestDryRunDelivererPrints(t *testing.T) {
	var buf bytes.Buffer
	d := dryRunDeliverer{out: &buf}

	out := d.Deliver(context.Background(), models.Reference("https://www.facebook.com/groups/1/posts/2/"))
	assert.Equal(t, submission.Delivered, out.Kind)
	assert.NoError(t, out.Err())
	assert.Equal(t, "https://www.facebook.com/groups/1/posts/2/\n", buf.String())
}

func TestTokenName(t *testing.T) {
	assert.Equal(t, auth.DefaultTokenName, tokenName(nil))
	assert.Equal(t, auth.DefaultTokenName, tokenName([]string{"  "}))
	assert.Equal(t, "staging", tokenName([]string{" staging "}))
}
