// Package tui is the full-screen crawl dashboard. A TUI receives collector
// events as a collector.Reporter and can hold delivery while paused.
package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"feedcrawler/pkg/models"
	"feedcrawler/pkg/ratelimit"
)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a dashboard for the given number of targets
func NewTUI(targets int, opts ...tea.ProgramOption) *TUI {
	model := NewModel(targets)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}

	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the program until the user quits
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) RunStarted(target string, maxItems int) {
	t.Send(RunStartedMsg{Target: target, MaxItems: maxItems})
}

func (t *TUI) ItemDiscovered(target string, ref models.Reference) {
	t.Send(ItemDiscoveredMsg{Target: target, Ref: ref})
}

func (t *TUI) ItemDelivered(target string, ref models.Reference, collected int) {
	t.Send(ItemDeliveredMsg{Target: target, Ref: ref, Collected: collected})
}

func (t *TUI) ItemDropped(target string, ref models.Reference, err error) {
	t.Send(ItemDroppedMsg{Target: target, Ref: ref, Err: err})
}

func (t *TUI) ScrollCompleted(target string, extent float64, stale int) {
	t.Send(ScrollMsg{Target: target, Extent: extent, Stale: stale})
}

func (t *TUI) Recovered(target string, recoveries int, cause error) {
	t.Send(RecoveredMsg{Target: target, Recoveries: recoveries, Cause: cause})
}

func (t *TUI) RunFinished(result models.RunResult) {
	t.Send(RunFinishedMsg{Result: result})
}

// Done tells the dashboard every target has finished
func (t *TUI) Done(err error) {
	t.Send(CrawlDoneMsg{Err: err})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(SendLog(level, fmt.Sprintf(format, args...)))
}

// IsPaused returns whether delivery is paused
func (t *TUI) IsPaused() bool {
	return t.model.IsPaused()
}

// Gate returns a limiter that blocks while the dashboard is paused. Chain
// it in front of the delivery pacer.
func (t *TUI) Gate() ratelimit.Limiter {
	return &pauseGate{paused: t.model.IsPaused, poll: 200 * time.Millisecond}
}

// pauseGate polls paused until it turns false
type pauseGate struct {
	paused func() bool
	poll   time.Duration
}

func (g *pauseGate) Wait(ctx context.Context) error {
	for g.paused() {
		if err := ratelimit.Sleep(ctx, g.poll); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (g *pauseGate) Reset() {}
