// Package checkpoint keeps the run history of each crawl target.
//
// Every finished run is folded into a per-target RunRecord: the last run's
// counters and error, the number of runs and the running delivery total.
// Records live as JSON files under the data directory:
//   - Linux: ~/.local/share/feedcrawler/runs/ (or $XDG_DATA_HOME)
//   - macOS: ~/Library/Application Support/feedcrawler/runs/
//   - Windows: %APPDATA%/feedcrawler/runs/
//
// Files are replaced atomically so an interrupted write never leaves a
// truncated record. The history is informational; which items were
// delivered is the ledger's job.
package checkpoint
