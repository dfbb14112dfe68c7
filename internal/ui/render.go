package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/five82/buddy/internal/engine"
	"github.com/five82/buddy/internal/filmbuddy"
	"github.com/five82/buddy/internal/logtail"
	"github.com/five82/buddy/internal/notify"
)

const (
	minLeftWidth = 30
	chatIndent   = 2
)

type layout struct {
	leftWidth   int
	rightWidth  int
	bodyHeight  int
	friendsRows int
}

func (m Model) layout() layout {
	left := max(minLeftWidth, m.width/3)
	if left > m.width {
		left = m.width
	}
	// header, footer, one notice line and the toast rows
	body := max(6, m.height-3-m.toastRows)
	return layout{
		leftWidth:   left,
		rightWidth:  max(0, m.width-left),
		bodyHeight:  body,
		friendsRows: body / 2,
	}
}

func (m *Model) resize() {
	l := m.layout()
	// border and padding take four columns and two rows; one row for the title
	m.chatViewport.Width = max(0, l.rightWidth-4)
	m.chatViewport.Height = max(1, l.bodyHeight-3)
	m.logViewport.Width = m.width
	m.logViewport.Height = max(1, m.height-2)
}

// renderChatViewport redraws the open conversation. Without force it only
// redraws when the conversation version moved.
func (m *Model) renderChatViewport(force bool) {
	conv := m.snap.Chat
	if !force && conv.Version == m.chatVersion {
		return
	}
	m.chatVersion = conv.Version
	if m.chatPeer == 0 {
		m.chatViewport.SetContent("")
		return
	}
	messages := conv.Messages
	if len(messages) == 0 {
		messages = m.archived
	}
	styles := m.theme.Styles()
	content := formatChat(styles, messages, m.chatPeer, m.userID, m.peerName(m.chatPeer), m.chatViewport.Width)
	if content == "" {
		content = styles.FaintText.Render("No messages yet. Press c to write one.")
	}
	m.chatViewport.SetContent(content)
	m.chatViewport.GotoBottom()
}

func (m Model) renderMain() string {
	if m.view == ViewLogs {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader(),
			m.logViewport.View(),
			m.renderFooter(),
		)
	}

	l := m.layout()
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderFriendsPane(l.leftWidth, l.friendsRows),
		m.renderRequestsPane(l.leftWidth, l.bodyHeight-l.friendsRows),
	)
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, m.renderChatPane(l.rightWidth, l.bodyHeight))

	parts := []string{m.renderHeader(), body}
	if toasts := m.renderToasts(); toasts != "" {
		parts = append(parts, toasts)
	}
	parts = append(parts, m.renderNotices(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	status := fmt.Sprintf("%d friends · %d incoming · %d outgoing",
		len(m.snap.Friends), len(m.snap.Incoming), len(m.snap.Outgoing))
	line := styles.Logo.Render("buddy") + "  " + styles.MutedText.Render(status)
	if m.snap.Offline {
		line += "  " + styles.Banner.Render("OFFLINE")
	} else if !m.snap.Seeded {
		line += "  " + styles.FaintText.Render("syncing…")
	}
	return styles.Header.Width(m.width).Render(line)
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	var parts []string
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	if m.view == ViewLogs {
		parts = []string{"L/esc back", "pgup/pgdown scroll"}
	}
	return styles.Footer.Width(m.width).Render(strings.Join(parts, " · "))
}

func (m Model) paneStyle(focused bool, width, height int) lipgloss.Style {
	styles := m.theme.Styles()
	style := styles.Pane
	if focused {
		style = styles.PaneFocus
	}
	// lipgloss sizes exclude the border
	return style.Width(max(0, width-2)).Height(max(0, height-2))
}

func (m Model) renderFriendsPane(width, height int) string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Friends"))
	for i, f := range m.snap.Friends {
		b.WriteString("\n")
		line := f.Username
		if f.UserID == m.chatPeer {
			line += " •"
		}
		if i == m.friendIdx && m.focus == paneFriends {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
	}
	if len(m.snap.Friends) == 0 {
		b.WriteString("\n" + styles.FaintText.Render("No friends yet. Press a to add one."))
	}
	return m.paneStyle(m.focus == paneFriends, width, height).Render(b.String())
}

func (m Model) renderRequestsPane(width, height int) string {
	styles := m.theme.Styles()
	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Requests"))
	for i, r := range m.snap.Incoming {
		b.WriteString("\n")
		line := "← " + r.FromUsername
		if i == m.requestIdx && m.focus == paneRequests {
			b.WriteString(styles.Selected.Render(line))
		} else {
			b.WriteString(styles.Text.Render(line))
		}
	}
	for _, r := range m.snap.Outgoing {
		b.WriteString("\n" + styles.MutedText.Render("→ "+r.ToUsername+" (pending)"))
	}
	if len(m.snap.Incoming)+len(m.snap.Outgoing) == 0 {
		b.WriteString("\n" + styles.FaintText.Render("No pending requests."))
	}
	return m.paneStyle(m.focus == paneRequests, width, height).Render(b.String())
}

func (m Model) renderChatPane(width, height int) string {
	styles := m.theme.Styles()
	if m.chatPeer == 0 {
		hint := styles.FaintText.Render("Select a friend and press enter to chat.")
		return m.paneStyle(false, width, height).Render(hint)
	}
	title := styles.AccentText.Bold(true).Render("Chat with " + m.peerName(m.chatPeer))
	if len(m.snap.Chat.Messages) == 0 && len(m.archived) > 0 {
		title += styles.FaintText.Render("  (archived)")
	}
	if h, ok := m.snap.Health[engine.StreamChat]; ok && h.IsOffline() {
		title += "  " + styles.WarningText.Render("not updating")
	}
	return m.paneStyle(false, width, height).Render(title + "\n" + m.chatViewport.View())
}

func (m Model) renderToasts() string {
	lines := toastLines(m.snap.Toasts, m.toastRows)
	if len(lines) == 0 {
		return ""
	}
	styles := m.theme.Styles()
	for i, line := range lines {
		lines[i] = styles.Toast.Render(line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNotices() string {
	if len(m.notices) == 0 {
		return ""
	}
	styles := m.theme.Styles()
	n := m.notices[len(m.notices)-1]
	if n.err {
		return styles.DangerText.Render(n.text)
	}
	return styles.SuccessText.Render(n.text)
}

func (m Model) renderLogLines(lines []string) string {
	styles := m.theme.Styles()
	out := make([]string, len(lines))
	for i, line := range lines {
		switch logtail.Classify(line) {
		case logtail.LevelError:
			out[i] = styles.DangerText.Render(line)
		case logtail.LevelWarn:
			out[i] = styles.WarningText.Render(line)
		default:
			out[i] = styles.Text.Render(line)
		}
	}
	if len(out) == 0 {
		return styles.FaintText.Render("Log is empty.")
	}
	return strings.Join(out, "\n")
}

// toastLines returns the newest rows toasts, oldest first.
func toastLines(toasts []notify.Toast, rows int) []string {
	if rows <= 0 || len(toasts) == 0 {
		return nil
	}
	start := max(0, len(toasts)-rows)
	lines := make([]string, 0, len(toasts)-start)
	for _, t := range toasts[start:] {
		lines = append(lines, "✉ "+t.Content)
	}
	return lines
}

// formatChat renders a conversation, one header line per message followed by
// the word-wrapped text.
func formatChat(styles Styles, messages []filmbuddy.ChatMessage, peerID, selfID int64, peerName string, width int) string {
	if len(messages) == 0 {
		return ""
	}
	wrap := max(10, width-chatIndent)
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		sender := senderLabel(msg.FromUserID, peerID, selfID, peerName)
		header := sender + " · " + formatTimestamp(msg.Timestamp)
		if msg.FromUserID == peerID {
			b.WriteString(styles.AccentText.Render(header))
		} else {
			b.WriteString(styles.MutedText.Render(header))
		}
		b.WriteString("\n")
		indent := strings.Repeat(" ", chatIndent)
		for _, line := range strings.Split(wordwrap.String(msg.Text, wrap), "\n") {
			b.WriteString(indent + styles.Text.Render(line) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func senderLabel(from, peerID, selfID int64, peerName string) string {
	switch {
	case from == peerID:
		return peerName
	case selfID == 0 || from == selfID:
		return "you"
	default:
		return fmt.Sprintf("user %d", from)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

// formatTimestamp shortens server timestamps for display. Timestamps are
// opaque to the engine; anything unparseable is shown as is.
func formatTimestamp(ts string) string {
	for _, format := range timestampLayouts {
		if t, err := time.Parse(format, ts); err == nil {
			return t.Local().Format("Jan 2 15:04")
		}
	}
	return ts
}
