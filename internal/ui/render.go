package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/tracksync/internal/cache"
	"github.com/five82/tracksync/internal/outbox"
	"github.com/five82/tracksync/internal/tracking"
)

// LayoutCompactWidth is the width below which panels stack vertically.
const LayoutCompactWidth = 100

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderPanels())
	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	conn := m.data.conn

	parts := []string{
		styles.Logo.Render("tracksync"),
		styles.StatusStyle(string(conn.Status)).Render(strings.ToUpper(string(conn.Status))),
	}
	if conn.Attempt > 0 {
		parts = append(parts, styles.WarningText.Render(fmt.Sprintf("attempt %d", conn.Attempt)))
	}
	if m.data.online {
		parts = append(parts, styles.SuccessText.Render("online"))
	} else {
		parts = append(parts, styles.DangerText.Render("offline"))
	}
	if !m.lastUpdated.IsZero() {
		parts = append(parts, styles.FaintText.Render("updated "+m.lastUpdated.Format("15:04:05")))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, "  "))
}

func (m Model) renderPanels() string {
	panels := []string{
		m.panel("Stream", m.streamLines()),
		m.panel("Queue", m.queueLines()),
		m.panel("Cache", m.cacheLines()),
		m.panel("Live", m.liveLines()),
	}
	if m.width < LayoutCompactWidth {
		return lipgloss.JoinVertical(lipgloss.Left, panels...)
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top, panels[0], panels[1])
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, panels[2], panels[3])
	return lipgloss.JoinVertical(lipgloss.Left, top, bottom)
}

func (m Model) panel(title string, lines []string) string {
	styles := m.theme.Styles()
	width := m.width - 2
	if m.width >= LayoutCompactWidth {
		width = m.width/2 - 2
	}
	body := styles.PanelTitle.Render(title) + "\n" + strings.Join(lines, "\n")
	return styles.Panel.Width(width).Render(body)
}

func (m Model) streamLines() []string {
	styles := m.theme.Styles()
	conn := m.data.conn
	lines := []string{
		label(styles, "status", string(conn.Status)),
		label(styles, "attempt", fmt.Sprintf("%d", conn.Attempt)),
		label(styles, "ping sent", formatClock(conn.LastHeartbeatSentAt)),
		label(styles, "pong", formatClock(conn.LastHeartbeatAckAt)),
	}
	return lines
}

func (m Model) queueLines() []string {
	styles := m.theme.Styles()
	stats := m.data.stats
	lanes := make([]string, 0, len(outbox.Lanes))
	for _, lane := range outbox.Lanes {
		lanes = append(lanes, fmt.Sprintf("%s %d", lane, stats.ByPriority[lane]))
	}
	lines := []string{
		label(styles, "pending", fmt.Sprintf("%d  (%s)", stats.Pending, strings.Join(lanes, ", "))),
		label(styles, "failed", fmt.Sprintf("%d", stats.Failed)),
	}
	failed := m.data.failed
	if len(failed) > failedItemLimit {
		failed = failed[:failedItemLimit]
	}
	for _, item := range failed {
		lines = append(lines, fmt.Sprintf("%s %s %s",
			styles.DangerText.Render("✗"),
			styles.Text.Render(item.Endpoint),
			styles.MutedText.Render(truncate(item.LastError, 48)),
		))
	}
	if extra := len(m.data.failed) - len(failed); extra > 0 {
		lines = append(lines, styles.FaintText.Render(fmt.Sprintf("+%d more", extra)))
	}
	return lines
}

func (m Model) cacheLines() []string {
	styles := m.theme.Styles()
	if len(m.data.entries) == 0 {
		return []string{styles.FaintText.Render("no collections cached yet")}
	}
	now := time.Now()
	lines := make([]string, 0, len(m.data.entries))
	for _, e := range m.data.entries {
		state := freshness(e, now)
		line := fmt.Sprintf("%-12s %4d  %-6s %s",
			truncate(e.Key, 12), len(e.Items), formatAge(e.Age(now)),
			styles.StatusStyle(state).Render(state),
		)
		if e.LastError != "" {
			line += " " + styles.DangerText.Render(truncate(e.LastError, 32))
		}
		lines = append(lines, line)
	}
	return lines
}

func (m Model) liveLines() []string {
	styles := m.theme.Styles()
	live := m.data.live
	lines := []string{
		label(styles, "animals", fmt.Sprintf("%d", live.AnimalCount())),
		label(styles, "following", truncate(orDash(strings.Join(m.prefs.Following, ",")), 48)),
	}
	if live.HasBackendState {
		backend := live.Backend.Status
		if live.Backend.Message != "" {
			backend += ": " + live.Backend.Message
		}
		lines = append(lines, label(styles, "backend", truncate(backend, 48)))
	}
	for _, a := range recentAlerts(live.Alerts, alertLimit) {
		severity := strings.ToLower(a.Severity)
		lines = append(lines, fmt.Sprintf("%s %s %s %s",
			styles.FaintText.Render(formatClock(a.ParsedTime())),
			styles.StatusStyle(severity).Render(orDash(severity)),
			styles.Text.Render(orDash(a.AnimalID)),
			styles.MutedText.Render(truncate(orDash(a.Kind), 32)),
		))
	}
	return lines
}

// recentAlerts returns up to limit alerts, newest first. Alerts with a
// timestamp are ordered by it; the rest follow in reverse arrival order.
func recentAlerts(alerts []tracking.Alert, limit int) []tracking.Alert {
	out := slices.Clone(alerts)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b tracking.Alert) int {
		ta, tb := a.ParsedTime(), b.ParsedTime()
		switch {
		case ta.IsZero() && tb.IsZero():
			return 0
		case ta.IsZero():
			return 1
		case tb.IsZero():
			return -1
		}
		return tb.Compare(ta)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m Model) renderLogs() string {
	return m.logViewport.View()
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	if m.promptKind != "" {
		return styles.Footer.Width(m.width).Render(m.prompt.View() + styles.FaintText.Render("  enter apply  esc cancel"))
	}
	hints := "s flush  r refresh  R requeue  f follow  u unfollow  t theme  ? help  q quit"
	if !m.follow {
		hints = "G follow  " + hints
	}
	line := hints
	if m.notice != "" {
		notice := styles.AccentText.Render(m.notice)
		if m.noticeIsError {
			notice = styles.DangerText.Render(m.notice)
		}
		line = notice + "  " + styles.FaintText.Render(hints)
	}
	return styles.Footer.Width(m.width).Render(line)
}

func (m Model) renderHelp() string {
	styles := m.theme.Styles()
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning)).Width(12)

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n\n")
	for _, group := range m.keys.helpGroups() {
		for _, binding := range group {
			h := binding.Help()
			b.WriteString(keyStyle.Render(h.Key))
			b.WriteString(styles.Text.Render(h.Desc))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(styles.FaintText.Render("Press any key to close"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		styles.Panel.Render(b.String()))
}

func label(styles Styles, name, value string) string {
	return styles.MutedText.Render(fmt.Sprintf("%-10s", name)) + " " + styles.Text.Render(value)
}

// freshness names the cache state shown next to an entry.
func freshness(e cache.Entry, now time.Time) string {
	switch {
	case e.FetchedAt.IsZero() && !e.PushedAt.IsZero():
		return "pushed"
	case e.FetchedAt.IsZero():
		return "empty"
	case e.Fresh(now):
		return "fresh"
	default:
		return "stale"
	}
}
