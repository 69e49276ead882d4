package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"feedcrawler/pkg/models"
)

// Message types for the TUI

// RunStartedMsg is sent when a target's run starts
type RunStartedMsg struct {
	Target   string
	MaxItems int
}

// ItemDiscoveredMsg is sent for every newly seen reference
type ItemDiscoveredMsg struct {
	Target string
	Ref    models.Reference
}

// ItemDeliveredMsg is sent when a reference was delivered
type ItemDeliveredMsg struct {
	Target    string
	Ref       models.Reference
	Collected int
}

// ItemDroppedMsg is sent when delivery of a reference failed for good
type ItemDroppedMsg struct {
	Target string
	Ref    models.Reference
	Err    error
}

// ScrollMsg is sent after a scroll that yielded nothing new
type ScrollMsg struct {
	Target string
	Extent float64
	Stale  int
}

// RecoveredMsg is sent after a reload
type RecoveredMsg struct {
	Target     string
	Recoveries int
	Cause      error
}

// RunFinishedMsg is sent when a target's run ends
type RunFinishedMsg struct {
	Result models.RunResult
}

// CrawlDoneMsg is sent once every target has finished
type CrawlDoneMsg struct {
	Err error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case RunStartedMsg:
		m.StartTarget(msg.Target, msg.MaxItems)
		m.AddLogMessage("INFO", fmt.Sprintf("Crawling %s (up to %d)", msg.Target, msg.MaxItems))
		return m, nil

	case ItemDiscoveredMsg:
		m.Discover(msg.Target)
		return m, nil

	case ItemDeliveredMsg:
		m.Deliver(msg.Target)
		m.AddLogMessage("SUCCESS", "Delivered: "+msg.Ref.String())
		return m, nil

	case ItemDroppedMsg:
		m.Drop(msg.Target)
		m.AddLogMessage("ERROR", fmt.Sprintf("Dropped: %s - %v", msg.Ref, msg.Err))
		return m, nil

	case ScrollMsg:
		m.Scrolled(msg.Target, msg.Extent, msg.Stale)
		return m, nil

	case RecoveredMsg:
		m.Recover(msg.Target, msg.Recoveries)
		m.AddLogMessage("WARN", fmt.Sprintf("Reloaded %s: %v", msg.Target, msg.Cause))
		return m, nil

	case RunFinishedMsg:
		m.FinishTarget(msg.Result.Target, msg.Result.Err)
		if msg.Result.Err != nil {
			m.AddLogMessage("ERROR", fmt.Sprintf("%s failed: %v", msg.Result.Target, msg.Result.Err))
		} else {
			m.AddLogMessage("SUCCESS", fmt.Sprintf("%s: %d new items", msg.Result.Target, msg.Result.Delivered))
		}
		return m, nil

	case CrawlDoneMsg:
		m.mu.Lock()
		m.finished = true
		m.mu.Unlock()
		if msg.Err != nil {
			m.AddLogMessage("ERROR", "Crawl finished with errors, press q to exit")
		} else {
			m.AddLogMessage("SUCCESS", "Crawl finished, press q to exit")
		}
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil
	}

	return m, nil
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "p", "P":
		paused := !m.IsPaused()
		m.setPaused(paused)
		if paused {
			m.AddLogMessage("WARN", "Delivery paused by user")
		} else {
			m.AddLogMessage("INFO", "Delivery resumed by user")
		}
		return m, nil

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// SendLog creates a log message
func SendLog(level, message string) tea.Msg {
	return LogMsg{Level: level, Message: message}
}
