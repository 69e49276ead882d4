package tui

import (
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TargetState represents where a target is in its run
type TargetState int

const (
	TargetPending TargetState = iota
	TargetActive
	TargetCompleted
	TargetFailed
)

func (s TargetState) String() string {
	switch s {
	case TargetActive:
		return "active"
	case TargetCompleted:
		return "done"
	case TargetFailed:
		return "failed"
	default:
		return "pending"
	}
}

// TargetItem is one feed being crawled
type TargetItem struct {
	URL        string
	MaxItems   int
	Delivered  int
	Discovered int
	Dropped    int
	Stale      int
	Extent     float64
	Recoveries int
	State      TargetState
	StartTime  time.Time
	Error      error
}

// Progress returns the share of the budget delivered
func (t *TargetItem) Progress() float64 {
	if t.MaxItems <= 0 {
		return 0
	}
	p := float64(t.Delivered) / float64(t.MaxItems)
	if p > 1 {
		return 1
	}
	return p
}

// Model represents the TUI model
type Model struct {
	// UI components
	spinner      spinner.Model
	progressBars map[string]progress.Model

	targets     map[string]*TargetItem
	targetOrder []string
	expected    int

	totalDelivered   int
	totalDropped     int
	totalDiscovered  int
	sessionStartTime time.Time
	finished         bool

	// UI state
	width          int
	height         int
	showHelp       bool
	isPaused       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model expecting the given number of targets
func NewModel(expected int) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accent)

	return &Model{
		spinner:          s,
		progressBars:     make(map[string]progress.Model),
		targets:          make(map[string]*TargetItem),
		expected:         expected,
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// target returns the item for url, adding it when new. Caller holds mu.
func (m *Model) target(url string) *TargetItem {
	item, ok := m.targets[url]
	if !ok {
		item = &TargetItem{URL: url, State: TargetPending}
		m.targets[url] = item
		m.targetOrder = append(m.targetOrder, url)

		p := progress.New(progress.WithDefaultGradient())
		p.Width = 40
		m.progressBars[url] = p
	}
	return item
}

// StartTarget marks a target active. A retried target keeps its counters.
func (m *Model) StartTarget(url string, maxItems int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.target(url)
	if item.State == TargetPending {
		item.MaxItems = maxItems
		item.StartTime = time.Now()
	}
	item.State = TargetActive
	item.Stale = 0
}

// Discover counts a newly seen reference
func (m *Model) Discover(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.target(url).Discovered++
	m.totalDiscovered++
}

// Deliver counts a delivered reference
func (m *Model) Deliver(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.target(url)
	item.Delivered++
	item.Stale = 0
	m.totalDelivered++
}

// Drop counts a reference whose delivery failed
func (m *Model) Drop(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.target(url).Dropped++
	m.totalDropped++
}

// Scrolled records a scroll that produced nothing new
func (m *Model) Scrolled(url string, extent float64, stale int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.target(url)
	item.Extent = extent
	item.Stale = stale
}

// Recover records a reload
func (m *Model) Recover(url string, recoveries int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.target(url).Recoveries = recoveries
}

// FinishTarget marks a target done or failed
func (m *Model) FinishTarget(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.target(url)
	item.Error = err
	if err != nil {
		item.State = TargetFailed
	} else {
		item.State = TargetCompleted
	}
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := muted
	switch level {
	case "ERROR":
		color = alertRed
	case "WARN":
		color = caution
	case "SUCCESS":
		color = okGreen
	case "INFO":
		color = accent
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// Targets returns copies of the targets in the given state, in start order
func (m *Model) Targets(state TargetState) []TargetItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []TargetItem
	for _, url := range m.targetOrder {
		if item := m.targets[url]; item != nil && item.State == state {
			out = append(out, *item)
		}
	}
	return out
}

// IsPaused reports whether delivery is paused
func (m *Model) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

func (m *Model) setPaused(paused bool) {
	m.mu.Lock()
	m.isPaused = paused
	m.mu.Unlock()
}

// Stats returns crawl-wide statistics
func (m *Model) Stats() (perMinute float64, dropRate float64, eta time.Duration) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats()
}

// stats is Stats for callers holding mu
func (m *Model) stats() (perMinute float64, dropRate float64, eta time.Duration) {
	elapsed := time.Since(m.sessionStartTime)
	if m.totalDelivered > 0 && elapsed > 0 {
		perMinute = float64(m.totalDelivered) / elapsed.Minutes()
	}

	if attempts := m.totalDelivered + m.totalDropped; attempts > 0 {
		dropRate = float64(m.totalDropped) / float64(attempts) * 100
	}

	remaining := 0
	for _, item := range m.targets {
		if item.State == TargetActive || item.State == TargetPending {
			if r := item.MaxItems - item.Delivered; r > 0 {
				remaining += r
			}
		}
	}
	if perMinute > 0 && remaining > 0 {
		eta = time.Duration(float64(remaining) / perMinute * float64(time.Minute))
	}
	return perMinute, dropRate, eta
}
