package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jwulff/echo/internal/archive"
	"github.com/jwulff/echo/internal/errs"
	"github.com/jwulff/echo/internal/session"
	"github.com/jwulff/echo/internal/speaker"
	"github.com/jwulff/echo/internal/transcript"
	"github.com/jwulff/echo/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusSpeakers PanelFocus = iota
	FocusTranscript
)

// Session is the part of session.Manager the UI drives.
type Session interface {
	Start(ctx context.Context) error
	Stop() error
	Pause() error
	Resume(ctx context.Context) error
	ClearTranscript()
	SendAudio(ctx context.Context, pcm []byte) error
	Snapshot() session.Snapshot
	Changes() <-chan struct{}
}

// Archiver saves finished transcripts.
type Archiver interface {
	Archive(ctx context.Context, in archive.Input) (*archive.Transcript, error)
}

// CaptureFunc streams microphone frames to send until ctx is cancelled or
// send fails.
type CaptureFunc func(ctx context.Context, send func(context.Context, []byte) error) error

// Deps wires the model to the rest of the application.
type Deps struct {
	Session      Session
	Archive      Archiver
	Speakers     *speaker.Cache
	Capture      CaptureFunc // nil disables audio capture
	MaxRecording time.Duration
	Now          func() time.Time
}

// Model is the root bubbletea model for the echo TUI.
type Model struct {
	deps Deps

	snap session.Snapshot

	// Audio capture
	captureID   int
	stopCapture context.CancelFunc

	// Archive
	archiving    bool
	archivedText string

	// UI state
	focusedPanel     PanelFocus
	selectedSpeaker  int
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool
	now              time.Time

	// Messages
	errorMessage string
	notice       string
}

// New creates a Model in the idle state.
func New(deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Speakers == nil {
		deps.Speakers = speaker.NewCache()
	}
	if deps.MaxRecording <= 0 {
		deps.MaxRecording = time.Hour
	}
	m := Model{
		deps:           deps,
		transcriptLive: true,
		focusedPanel:   FocusTranscript,
		now:            deps.Now(),
	}
	if deps.Session != nil {
		m.snap = deps.Session.Snapshot()
	}
	return m
}

// Init starts listening for session changes and the timer.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForChangeCmd(m.deps.Session), tickCmd())
}

// waitForChangeCmd blocks until the session signals a change.
func waitForChangeCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		<-s.Changes()
		return SnapshotMsg{Snapshot: s.Snapshot()}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func startCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		return OpResultMsg{Op: "start", Err: s.Start(context.Background())}
	}
}

func resumeCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		return OpResultMsg{Op: "resume", Err: s.Resume(context.Background())}
	}
}

func stopCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		return OpResultMsg{Op: "stop", Err: s.Stop()}
	}
}

func pauseCmd(s Session) tea.Cmd {
	return func() tea.Msg {
		return OpResultMsg{Op: "pause", Err: s.Pause()}
	}
}

func archiveCmd(a Archiver, in archive.Input) tea.Cmd {
	return func() tea.Msg {
		t, err := a.Archive(context.Background(), in)
		return ArchivedMsg{Transcript: t, Text: in.Text, Err: err}
	}
}

func captureCmd(ctx context.Context, id int, capture CaptureFunc, send func(context.Context, []byte) error) tea.Cmd {
	return func() tea.Msg {
		return CaptureEndedMsg{ID: id, Err: capture(ctx, send)}
	}
}

// clearNoticeCmd fires after a delay to clear transient messages.
func clearNoticeCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		cmd := m.applySnapshot(msg.Snapshot)
		return m, tea.Batch(cmd, waitForChangeCmd(m.deps.Session))

	case OpResultMsg:
		if msg.Err != nil {
			m.errorMessage = errs.UserMessage(msg.Err)
		}
		return m, nil

	case ArchivedMsg:
		m.archiving = false
		if msg.Err != nil {
			m.errorMessage = errs.UserMessage(msg.Err)
			// A failed write still leaves the record in the archive list.
			if msg.Transcript != nil {
				m.archivedText = msg.Text
			}
			return m, nil
		}
		if msg.Transcript == nil {
			m.notice = "Nothing to archive"
			return m, clearNoticeCmd()
		}
		m.archivedText = msg.Text
		m.notice = fmt.Sprintf("Archived %q", msg.Transcript.Title)
		return m, clearNoticeCmd()

	case CaptureEndedMsg:
		if msg.ID != m.captureID {
			return m, nil
		}
		if m.stopCapture != nil {
			m.stopCapture()
			m.stopCapture = nil
		}
		if msg.Err != nil && !errors.Is(msg.Err, context.Canceled) && !errors.Is(msg.Err, errs.ErrInvalidState) {
			m.errorMessage = "Audio capture stopped: " + msg.Err.Error()
		}
		return m, nil

	case TickMsg:
		m.now = time.Time(msg)
		if m.snap.Status == session.StatusConnected && !m.snap.StartedAt.IsZero() &&
			m.now.Sub(m.snap.StartedAt) >= m.deps.MaxRecording {
			m.notice = "Maximum recording time reached"
			return m, tea.Batch(stopCmd(m.deps.Session), tickCmd())
		}
		return m, tickCmd()

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil
	}

	return m, nil
}

// applySnapshot stores the new state and starts or stops audio capture to
// match it.
func (m *Model) applySnapshot(snap session.Snapshot) tea.Cmd {
	m.snap = snap
	if snap.Err != nil {
		m.errorMessage = errs.UserMessage(snap.Err)
	} else if snap.Status == session.StatusConnected {
		m.errorMessage = ""
	}
	if m.selectedSpeaker >= len(snap.Speakers) {
		m.selectedSpeaker = max(0, len(snap.Speakers)-1)
	}
	if m.transcriptLive {
		m.scrollToBottom()
	}

	switch {
	case snap.Status == session.StatusConnected && m.stopCapture == nil && m.deps.Capture != nil:
		ctx, cancel := context.WithCancel(context.Background())
		m.captureID++
		m.stopCapture = cancel
		return captureCmd(ctx, m.captureID, m.deps.Capture, m.deps.Session.SendAudio)
	case snap.Status != session.StatusConnected && m.stopCapture != nil:
		m.stopCapture()
		m.stopCapture = nil
	}
	return nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.stopCapture != nil {
			m.stopCapture()
			m.stopCapture = nil
		}
		if m.snap.Status != session.StatusIdle {
			return m, tea.Sequence(stopCmd(m.deps.Session), tea.Quit)
		}
		return m, tea.Quit

	case KeySpace:
		m.errorMessage = ""
		switch m.snap.Status {
		case session.StatusIdle, session.StatusError:
			return m, startCmd(m.deps.Session)
		default:
			return m, stopCmd(m.deps.Session)
		}

	case KeyPause:
		switch m.snap.Status {
		case session.StatusConnected:
			return m, pauseCmd(m.deps.Session)
		case session.StatusPaused, session.StatusError:
			m.errorMessage = ""
			return m, resumeCmd(m.deps.Session)
		}
		return m, nil

	case KeyClear:
		if m.snap.Status == session.StatusConnected {
			m.notice = "Stop or pause before clearing"
			return m, clearNoticeCmd()
		}
		m.deps.Session.ClearTranscript()
		m.archivedText = ""
		m.transcriptScroll = 0
		m.transcriptLive = true
		return m, nil

	case KeyArchive:
		return m.archiveCurrent()

	case KeyTab:
		if m.focusedPanel == FocusSpeakers {
			m.focusedPanel = FocusTranscript
		} else {
			m.focusedPanel = FocusSpeakers
		}
		return m, nil

	case KeyJ:
		if m.focusedPanel == FocusSpeakers && m.selectedSpeaker < len(m.snap.Speakers)-1 {
			m.selectedSpeaker++
		}
		return m, nil

	case KeyK:
		if m.focusedPanel == FocusSpeakers && m.selectedSpeaker > 0 {
			m.selectedSpeaker--
		}
		return m, nil

	case KeyUp:
		if m.focusedPanel == FocusTranscript {
			m.transcriptLive = false
			if m.transcriptScroll > 0 {
				m.transcriptScroll--
			}
		}
		return m, nil

	case KeyDown:
		if m.focusedPanel == FocusTranscript {
			maxScroll := m.maxTranscriptScroll()
			m.transcriptScroll++
			if m.transcriptScroll >= maxScroll {
				m.transcriptScroll = maxScroll
				m.transcriptLive = true
			}
		}
		return m, nil
	}

	return m, nil
}

// archiveCurrent saves the visible transcript unless it was already saved.
func (m Model) archiveCurrent() (tea.Model, tea.Cmd) {
	if m.deps.Archive == nil || m.archiving {
		return m, nil
	}
	text := m.snap.Transcript()
	if strings.TrimSpace(text) == "" {
		text = m.snap.Partial
	}
	if strings.TrimSpace(text) == "" {
		m.notice = "Nothing to archive"
		return m, clearNoticeCmd()
	}
	if text == m.archivedText {
		m.notice = "Already archived"
		return m, clearNoticeCmd()
	}

	var speakers []archive.Speaker
	for _, id := range m.snap.Speakers {
		speakers = append(speakers, archive.Speaker{ID: id, Name: m.identity(id).Name})
	}

	m.archiving = true
	return m, archiveCmd(m.deps.Archive, archive.Input{
		Text:       text,
		Segments:   m.snap.Segments,
		Speakers:   speakers,
		HasConsent: true,
	})
}

// identity returns the speaker's cached identity, assigning one if the session
// has not.
func (m Model) identity(id string) speaker.Identity {
	if ident, ok := m.deps.Speakers.Lookup(id); ok {
		return ident
	}
	return m.deps.Speakers.IdentityFor(id)
}

func (m *Model) scrollToBottom() {
	m.transcriptScroll = m.maxTranscriptScroll()
}

func (m Model) maxTranscriptScroll() int {
	total := len(m.transcriptLines(m.transcriptPanelWidth()))
	visible := m.transcriptVisibleLines() - 1
	if total <= visible {
		return 0
	}
	return total - visible
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + message(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) speakerPanelWidth() int {
	if m.width == 0 {
		return 24
	}
	return max(18, m.width*25/100)
}

func (m Model) transcriptPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.speakerPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	if line := m.renderMessageBar(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("ECHO")
	words := len(strings.Fields(m.snap.Transcript()))
	return title + ui.DimStyle.Render(fmt.Sprintf(" · %d words", words))
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.snap.Status {
	case session.StatusConnected:
		dot = ui.RecordingDotStyle.Render("● REC")
	case session.StatusPaused:
		dot = ui.PausedDotStyle.Render("‖ PAUSED")
	case session.StatusConnecting:
		dot = ui.ConnectingDotStyle.Render("… CONNECTING")
	case session.StatusError:
		dot = ui.ErrorStyle.Render("✕ ERROR")
	default:
		dot = ui.IdleDotStyle.Render("○ IDLE")
	}

	var timer string
	if !m.snap.StartedAt.IsZero() && m.snap.Status != session.StatusIdle {
		elapsed := m.now.Sub(m.snap.StartedAt)
		timer = "  " + ui.TimerStyle.Render(formatElapsed(elapsed)) +
			ui.StatusStyle.Render(" / "+formatElapsed(m.deps.MaxRecording))
	}
	return dot + timer
}

// formatElapsed renders d as M:SS or H:MM:SS.
func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h, mins, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, s)
	}
	return fmt.Sprintf("%d:%02d", mins, s)
}

func (m Model) renderMainContent() string {
	speakerW := m.speakerPanelWidth()
	transcriptW := m.transcriptPanelWidth()
	contentH := m.transcriptVisibleLines()

	speakerLines := strings.Split(m.renderSpeakerPanel(speakerW, contentH), "\n")
	transcriptLines := strings.Split(m.renderTranscriptPanel(transcriptW, contentH), "\n")
	divider := ui.DividerStyle.Render("│")

	for len(speakerLines) < contentH {
		speakerLines = append(speakerLines, strings.Repeat(" ", speakerW))
	}

	var rows []string
	for i := 0; i < contentH; i++ {
		tr := ""
		if i < len(transcriptLines) {
			tr = transcriptLines[i]
		}
		rows = append(rows, speakerLines[i]+divider+tr)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderSpeakerPanel(width, height int) string {
	title := fmt.Sprintf("SPEAKERS (%d)", len(m.snap.Speakers))
	var header string
	if m.focusedPanel == FocusSpeakers {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{padRight(header, width)}
	if len(m.snap.Speakers) == 0 {
		lines = append(lines, ui.DimStyle.Render("  No speakers yet..."))
	}
	for i, id := range m.snap.Speakers {
		ident := m.identity(id)
		prefix := "  "
		if i == m.selectedSpeaker && m.focusedPanel == FocusSpeakers {
			prefix = ui.SelectedStyle.Render("> ")
		}
		// Truncate before styling so escape sequences are never cut.
		name := truncateToWidth(ident.Name, width-2)
		lines = append(lines, prefix+ui.SpeakerStyle(ident.Color).Render(name))
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

// transcriptLines lays out paragraphs with speaker labels, then the partial.
func (m Model) transcriptLines(width int) []string {
	textWidth := max(10, width-4)

	var out []string
	for i, p := range transcript.SpeakerParagraphs(m.snap.Segments) {
		if i > 0 {
			out = append(out, "")
		}
		if p.SpeakerID != "" {
			ident := m.identity(p.SpeakerID)
			out = append(out, ui.SpeakerStyle(ident.Color).Render(ident.Name))
		}
		out = append(out, wrapText(p.Text, textWidth)...)
	}

	if m.snap.Partial != "" {
		if len(out) > 0 {
			out = append(out, "")
		}
		for _, wl := range wrapText(m.snap.Partial+"▌", textWidth) {
			out = append(out, ui.PartialTextStyle.Render(wl))
		}
	}
	return out
}

func (m Model) renderTranscriptPanel(width, height int) string {
	badge := ui.LiveBadgeStyle.Render(" LIVE")
	if !m.transcriptLive {
		badge = ui.ScrollBadgeStyle.Render(" SCROLL")
	}
	var header string
	if m.focusedPanel == FocusTranscript {
		header = ui.PanelTitleActiveStyle.Render("TRANSCRIPT") + badge
	} else {
		header = ui.PanelTitleStyle.Render("TRANSCRIPT") + badge
	}

	lines := []string{header}
	contentHeight := height - 1

	display := m.transcriptLines(width)
	if len(display) == 0 {
		lines = append(lines, "")
		switch m.snap.Status {
		case session.StatusConnecting:
			lines = append(lines, ui.DimStyle.Render("  Connecting..."))
		case session.StatusConnected:
			lines = append(lines, ui.DimStyle.Render("  Listening..."))
		default:
			lines = append(lines, ui.DimStyle.Render("  Press Space to start recording"))
		}
	} else {
		start := m.transcriptScroll
		if m.transcriptLive && len(display) > contentHeight {
			start = len(display) - contentHeight
		}
		start = max(0, min(start, len(display)))
		end := min(start+contentHeight, len(display))
		for i := start; i < end; i++ {
			lines = append(lines, "  "+display[i])
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderMessageBar() string {
	if m.errorMessage != "" {
		return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
	}
	if m.notice != "" {
		return ui.NoticeStyle.Render(m.notice)
	}
	return ""
}

func (m Model) renderFooter() string {
	key := func(k, desc string) string {
		return ui.FooterKeyStyle.Render(k) + ui.FooterDescStyle.Render(" "+desc)
	}

	var parts []string
	switch m.snap.Status {
	case session.StatusIdle, session.StatusError:
		parts = append(parts, key("Space", "Record"))
	default:
		parts = append(parts, key("Space", "Stop"))
	}
	switch m.snap.Status {
	case session.StatusConnected:
		parts = append(parts, key("p", "Pause"))
	case session.StatusPaused, session.StatusError:
		parts = append(parts, key("p", "Resume"))
	}
	if m.snap.HasContent() {
		parts = append(parts, key("s", "Archive"))
		if m.snap.Status != session.StatusConnected {
			parts = append(parts, key("c", "Clear"))
		}
	}
	parts = append(parts, key("Tab", "Focus"))
	parts = append(parts, key("↑↓", "Scroll"))
	parts = append(parts, key("q", "Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// truncateToWidth shortens unstyled text to width cells, ending in "…".
func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		if current != "" {
			lines = append(lines, current)
		} else {
			lines = append(lines, "")
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
