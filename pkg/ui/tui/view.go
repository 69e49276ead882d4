package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var sections []string
	sections = append(sections, m.renderLogo())

	mainContent := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderLeftColumn(),
		"  ",
		m.renderRightColumn(),
	)
	sections = append(sections, mainContent)

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo() string {
	logo := `
╔═══════════════════════════════════════════════╗
║  ┏━╸┏━╸┏━╸╺┳┓   ┏━╸┏━┓┏━┓╻ ╻╻  ┏━╸┏━┓         ║
║  ┣╸ ┣╸ ┣╸  ┃┃   ┃  ┣┳┛┣━┫┃╻┃┃  ┣╸ ┣┳┛         ║
║  ╹  ┗━╸┗━╸╺┻┛   ┗━╸╹┗╸╹ ╹┗┻┛┗━╸┗━╸╹┗╸         ║
║        INCREMENTAL GROUP FEED COLLECTOR       ║
╚═══════════════════════════════════════════════╝`

	return logoStyle.Width(m.width).Render(logo)
}

func (m *Model) renderLeftColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(width),
		m.renderActivePanel(width),
		m.renderQueuePanel(width),
	)
}

func (m *Model) renderRightColumn() string {
	width := (m.width - 4) / 2
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderDeliveryPanel(width),
		m.renderLogsPanel(width),
	)
}

// itemsIn lists targets in state. Caller holds mu.
func (m *Model) itemsIn(state TargetState) []*TargetItem {
	var out []*TargetItem
	for _, url := range m.targetOrder {
		if item := m.targets[url]; item != nil && item.State == state {
			out = append(out, item)
		}
	}
	return out
}

func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" CRAWL STATS ")

	elapsed := time.Since(m.sessionStartTime)
	perMinute, _, eta := m.stats()

	stats := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Session Time:"), statsValueStyle.Render(formatDuration(elapsed))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Targets:"), statsValueStyle.Render(fmt.Sprintf("%d/%d started", len(m.targetOrder), m.expected))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Seen:"), statsValueStyle.Render(fmt.Sprintf("%d links", m.totalDiscovered))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Delivered:"), statsValueStyle.Render(fmt.Sprintf("%d new items", m.totalDelivered))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Rate:"), rateStyle.Render(fmt.Sprintf("%.1f/min", perMinute))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("ETA:"), statsValueStyle.Render(formatDuration(eta))),
	}

	if m.isPaused {
		stats = append(stats, warningStyle.Render("⏸  PAUSED"))
	}
	if m.finished {
		stats = append(stats, successStyle.Render(m.spinner.View()+" FINISHED"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

func (m *Model) renderActivePanel(width int) string {
	title := titleStyle.Render(" ACTIVE TARGETS ")

	active := m.itemsIn(TargetActive)
	if len(active) == 0 {
		content := lipgloss.NewStyle().Foreground(muted).Render("No active targets")
		return panelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var rows []string
	for _, item := range active {
		rows = append(rows, m.renderTargetItem(item, width-4))
	}
	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, rows...)),
	)
}

// renderTargetItem renders a single target with its budget bar
func (m *Model) renderTargetItem(item *TargetItem, width int) string {
	bar, ok := m.progressBars[item.URL]
	if !ok {
		return ""
	}
	if w := width - 20; w > 10 {
		bar.Width = w
	}

	info := fmt.Sprintf("%s %s %s",
		m.spinner.View(),
		targetActiveStyle.Render(truncate(item.URL, width-24)),
		lipgloss.NewStyle().Foreground(muted).Render(fmt.Sprintf("%d/%d", item.Delivered, item.MaxItems)),
	)
	if item.Stale > 0 {
		info += " " + warningStyle.Render(fmt.Sprintf("stale %d", item.Stale))
	}
	if item.Recoveries > 0 {
		info += " " + warningStyle.Render(fmt.Sprintf("↻%d", item.Recoveries))
	}

	return lipgloss.JoinVertical(lipgloss.Left, info, bar.ViewAs(item.Progress()))
}

func (m *Model) renderQueuePanel(width int) string {
	title := titleStyle.Render(" TARGET QUEUE ")

	var items []string
	if pending := m.expected - len(m.targetOrder); pending > 0 {
		items = append(items, warningStyle.Render(fmt.Sprintf("⏳ %d waiting", pending)))
	}

	completed := m.itemsIn(TargetCompleted)
	if n := len(completed); n > 0 {
		items = append(items, successStyle.Render(fmt.Sprintf("✓ %d completed", n)))
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, item := range completed[start:] {
			items = append(items, targetDoneStyle.Render(fmt.Sprintf("✓ %s (%d)", truncate(item.URL, width-16), item.Delivered)))
		}
	}

	failed := m.itemsIn(TargetFailed)
	if len(failed) > 0 {
		items = append(items, errorStyle.Render(fmt.Sprintf("✗ %d failed", len(failed))))
		for _, item := range failed {
			items = append(items, targetRowStyle.Render("✗ "+truncate(item.URL, width-12)))
		}
	}

	if len(items) == 0 {
		items = append(items, lipgloss.NewStyle().Foreground(muted).Render("Nothing finished yet"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

// renderDeliveryPanel shows how many deliveries the endpoint refused
func (m *Model) renderDeliveryPanel(width int) string {
	title := titleStyle.Render(" DELIVERY HEALTH ")

	_, dropRate, _ := m.stats()

	barWidth := width - 8
	if barWidth < 0 {
		barWidth = 0
	}
	filled := int(dropRate * float64(barWidth) / 100)
	barStyle := GetDropRateStyle(dropRate)
	bar := barStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))

	content := []string{
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Dropped:"),
			barStyle.Render(fmt.Sprintf("%d/%d (%.0f%%)", m.totalDropped, m.totalDelivered+m.totalDropped, dropRate))),
		bar,
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(content, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := titleStyle.Render(" CRAWL LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(muted).Render("No logs yet...")
	}

	logsHeight := m.height - 35
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/Q      - Quit the dashboard
    p/P      - Pause/Resume delivery
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status Indicators:
    ` + successStyle.Render("Green") + `    - Delivered/Healthy
    ` + warningStyle.Render("Orange") + `   - Stale scrolls/Reloads
    ` + errorStyle.Render("Red") + `      - Dropped/Failed

  Icons:
    ⏳       - Waiting target
    ✓        - Finished target
    ↻        - Page reloads
    ⏸        - Paused
`

	return panelStyle.Width(m.width).Render(help)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
