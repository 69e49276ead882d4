package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"feedcrawler/pkg/models"
)

// targetProgress is the console state of one target
type targetProgress struct {
	maxItems   int
	delivered  int
	discovered int
	dropped    int
	stale      int
	recoveries int
	startTime  time.Time
}

// ConsoleReporter prints crawl progress as a single refreshed line per
// event, or one line per event in verbose mode. It is safe for concurrent
// targets.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
	targets map[string]*targetProgress
}

// NewConsoleReporter writes progress to out
func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:     out,
		verbose: verbose,
		targets: make(map[string]*targetProgress),
	}
}

func (p *ConsoleReporter) state(target string) *targetProgress {
	st, ok := p.targets[target]
	if !ok {
		st = &targetProgress{startTime: time.Now()}
		p.targets[target] = st
	}
	return st
}

// RunStarted resets the target's counters
func (p *ConsoleReporter) RunStarted(target string, maxItems int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(target)
	st.maxItems = maxItems
	if p.verbose {
		fmt.Fprintf(p.out, "%s %s (up to %d items)\n", Magenta("→"), target, maxItems)
	}
}

func (p *ConsoleReporter) ItemDiscovered(target string, ref models.Reference) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state(target).discovered++
	if p.verbose {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("seen"), ref)
	}
}

func (p *ConsoleReporter) ItemDelivered(target string, ref models.Reference, collected int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(target)
	st.delivered = collected
	if p.verbose {
		fmt.Fprintf(p.out, "  %s %s\n", Green("✓"), ref)
		return
	}
	p.printProgress(target, st)
}

func (p *ConsoleReporter) ItemDropped(target string, ref models.Reference, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(target)
	st.dropped++
	if p.verbose {
		fmt.Fprintf(p.out, "  %s %s - %v\n", Red("✗"), ref, err)
		return
	}
	p.printProgress(target, st)
}

func (p *ConsoleReporter) ScrollCompleted(target string, extent float64, stale int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(target)
	st.stale = stale
	if p.verbose {
		fmt.Fprintf(p.out, "  %s no new items at %.0fpx (%d in a row)\n", Yellow("…"), extent, stale)
	}
}

func (p *ConsoleReporter) Recovered(target string, recoveries int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state(target).recoveries = recoveries
	fmt.Fprintf(p.out, "\n%s %s reloaded after: %v\n", Yellow("⚠"), target, cause)
}

// RunFinished prints the target's summary
func (p *ConsoleReporter) RunFinished(res models.RunResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		fmt.Fprintln(p.out)
	}
	if res.Err != nil {
		fmt.Fprintf(p.out, "%s %s: %d delivered before failing: %v\n", Red("✗"), res.Target, res.Delivered, res.Err)
		return
	}

	fmt.Fprintf(p.out, "%s %s: delivered %d new items\n", Green("✓"), res.Target, res.Delivered)
	fmt.Fprintf(p.out, "  %s %d seen, %d scrolls in %s\n",
		Dim("•"),
		res.Discovered,
		res.Iterations,
		formatDuration(res.Duration()),
	)
	if res.Dropped > 0 {
		fmt.Fprintf(p.out, "  %s %d deliveries dropped\n", Dim("•"), res.Dropped)
	}
	if res.Exhausted {
		fmt.Fprintf(p.out, "  %s feed ran out of new items\n", Dim("•"))
	}
}

// printProgress prints the minimal progress line
func (p *ConsoleReporter) printProgress(target string, st *targetProgress) {
	elapsed := time.Since(st.startTime)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(st.delivered) / elapsed.Minutes()
	}

	progress := 0.0
	if st.maxItems > 0 {
		progress = float64(st.delivered) / float64(st.maxItems)
	}
	if progress > 1 {
		progress = 1
	}
	barWidth := 20
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s [%s] %d/%d • %.1f/min • %s",
		Cyan(target),
		bar,
		st.delivered,
		st.maxItems,
		rate,
		eta(st, elapsed),
	)
	if st.dropped > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d dropped", st.dropped)))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

// Totals sums delivered and dropped items over every target seen
func (p *ConsoleReporter) Totals() (delivered, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, st := range p.targets {
		delivered += st.delivered
		dropped += st.dropped
	}
	return delivered, dropped
}

// PrintSummary writes a table of results
func PrintSummary(w io.Writer, results []models.RunResult) {
	sorted := append([]models.RunResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Target < sorted[j].Target })

	total := 0
	for _, res := range sorted {
		status := Green("ok")
		if res.Err != nil {
			status = Red("failed")
		}
		fmt.Fprintf(w, "%-8s %4d delivered  %4d dropped  %s\n", status, res.Delivered, res.Dropped, res.Target)
		total += res.Delivered
	}
	fmt.Fprintf(w, "%s %d new items across %d targets\n", Cyan("Total:"), total, len(sorted))
}

// eta estimates time to fill the budget
func eta(st *targetProgress, elapsed time.Duration) string {
	if st.delivered == 0 {
		return "calculating..."
	}
	rate := float64(st.delivered) / elapsed.Seconds()
	if rate == 0 {
		return "calculating..."
	}
	remaining := st.maxItems - st.delivered
	if remaining <= 0 {
		return "done"
	}
	return formatDuration(time.Duration(float64(remaining)/rate) * time.Second)
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
