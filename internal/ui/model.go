// ABOUTME: Bubbletea model for the call console
// ABOUTME: Captions, call status, per-voice volume and playback stats
package ui

import (
	"fmt"

	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	tea "github.com/charmbracelet/bubbletea"
)

// maxCaptions is how many caption lines are kept on screen
const maxCaptions = 8

// caption is one rendered transcript line
type caption struct {
	source     string
	original   string
	translated string
	final      bool
}

// Model represents the TUI state
type Model struct {
	// Call
	callStatus  string
	callSid     string
	serverName  string
	destination string
	promptState string
	languages   string
	degraded    bool

	// Sync
	syncOffset  int64
	syncRTT     int64
	syncQuality clocksync.Quality

	// Captions; interim lines are replaced by the next line from the same
	// source
	captions []caption

	// Volume, percent
	originalVolume   int
	translatedVolume int
	muted            bool

	// Stats
	originalPlayed   int64
	translatedPlayed int64
	promptPlayed     int64
	failed           int64
	dropped          int64
	cacheHits        uint64
	cacheMisses      uint64

	// Runtime
	goroutines int
	memAlloc   uint64

	showDebug  bool
	volumeCtrl *VolumeControl

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case CaptionMsg:
		m.addCaption(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderCaptions()
	s += m.renderControls()
	s += m.renderStats()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders call and sync status
func (m Model) renderHeader() string {
	status := m.callStatus
	if status == "" {
		status = "idle"
	}
	if m.destination != "" {
		status = fmt.Sprintf("%s (%s)", status, m.destination)
	}

	syncIcon := "✗"
	syncText := "No clock sync"
	switch m.syncQuality {
	case clocksync.QualityGood:
		syncIcon = "✓"
		syncText = fmt.Sprintf("offset %+dms, rtt %dms", m.syncOffset, m.syncRTT)
	case clocksync.QualityDegraded:
		syncIcon = "⚠"
		syncText = "Degraded"
	}

	audioText := "ok"
	if m.degraded {
		audioText = "UNAVAILABLE, captions only"
	}

	return fmt.Sprintf(`┌─ Evatrad ────────────────────────────────────────────┐
│ Call:   %-45s │
│ Lang:   %-45s │
│ Audio:  %-45s │
│ Sync:   %s %-43s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 45), truncate(m.languages, 45), audioText, syncIcon, truncate(syncText, 43))
}

// renderCaptions renders the transcript tail
func (m Model) renderCaptions() string {
	if len(m.captions) == 0 {
		if m.promptState != "" && m.promptState != "stopped" {
			return fmt.Sprintf("│ Waiting for answer (%s)%-*s │\n", m.promptState, 30-len(m.promptState), "")
		}
		return "│ No conversation yet                                  │\n"
	}

	s := ""
	for _, c := range m.captions {
		marker := " "
		if !c.final {
			marker = "…"
		}
		text := c.translated
		if text == "" {
			text = c.original
		}
		s += row(fmt.Sprintf("%-8s%s %s", c.source+":", marker, text))
	}
	return s
}

// renderControls renders the per-voice volume bars
func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	return row("") +
		row(fmt.Sprintf("Translation: [%s] %3d%%%s", renderBar(m.translatedVolume, 100, 10), m.translatedVolume, muteIcon)) +
		row(fmt.Sprintf("Original:    [%s] %3d%%", renderBar(m.originalVolume, 100, 10), m.originalVolume))
}

// renderStats renders playback statistics
func (m Model) renderStats() string {
	return "├──────────────────────────────────────────────────────┤\n" +
		row(fmt.Sprintf("Played: tr %d  orig %d  prompt %d", m.translatedPlayed, m.originalPlayed, m.promptPlayed)) +
		row(fmt.Sprintf("Failed: %d  Dropped: %d  Cache: %d/%d", m.failed, m.dropped, m.cacheHits, m.cacheHits+m.cacheMisses))
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Translation  ←/→:Original  m:Mute  d:Debug  q:Hang up │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Call SID:   %-38s │
│   Server:     %-38s │
│   Goroutines: %-38d │
│   Mem alloc:  %-38s │
`, truncate(m.callSid, 38), truncate(m.serverName, 38), m.goroutines, formatBytes(m.memAlloc))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.volumeCtrl != nil {
			select {
			case m.volumeCtrl.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.translatedVolume = clampPercent(m.translatedVolume + 5)
		m.sendVolume()
	case "down":
		m.translatedVolume = clampPercent(m.translatedVolume - 5)
		m.sendVolume()
	case "right":
		m.originalVolume = clampPercent(m.originalVolume + 5)
		m.sendVolume()
	case "left":
		m.originalVolume = clampPercent(m.originalVolume - 5)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// sendVolume publishes the current volume without blocking the UI
func (m Model) sendVolume() {
	if m.volumeCtrl == nil {
		return
	}
	select {
	case m.volumeCtrl.Changes <- VolumeChangeMsg{
		Original:   m.originalVolume,
		Translated: m.translatedVolume,
		Muted:      m.muted,
	}:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.CallStatus != "" {
		m.callStatus = msg.CallStatus
	}
	if msg.CallSid != "" {
		m.callSid = msg.CallSid
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Destination != "" {
		m.destination = msg.Destination
	}
	if msg.Languages != "" {
		m.languages = msg.Languages
	}
	if msg.PromptState != "" {
		m.promptState = msg.PromptState
	}
	if msg.Degraded {
		m.degraded = true
	}
	if msg.SyncRTT != 0 || msg.SyncOffset != 0 {
		m.syncOffset = msg.SyncOffset
		m.syncRTT = msg.SyncRTT
		m.syncQuality = msg.SyncQuality
	}
	if msg.OriginalVolume != nil {
		m.originalVolume = *msg.OriginalVolume
	}
	if msg.TranslatedVolume != nil {
		m.translatedVolume = *msg.TranslatedVolume
	}
	if msg.Stats != nil {
		st := msg.Stats
		m.originalPlayed = st.OriginalPlayed
		m.translatedPlayed = st.TranslatedPlayed
		m.promptPlayed = st.PromptPlayed
		m.failed = st.Failed
		m.dropped = st.Dropped
		m.cacheHits = st.CacheHits
		m.cacheMisses = st.CacheMisses
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
	}
}

// addCaption appends a transcript line, replacing the interim line from
// the same source
func (m *Model) addCaption(msg CaptionMsg) {
	c := caption{
		source:     msg.Source,
		original:   msg.Original,
		translated: msg.Translated,
		final:      msg.Final,
	}

	for i := len(m.captions) - 1; i >= 0; i-- {
		if m.captions[i].source == msg.Source && !m.captions[i].final {
			m.captions[i] = c
			return
		}
	}

	m.captions = append(m.captions, c)
	if len(m.captions) > maxCaptions {
		m.captions = m.captions[len(m.captions)-maxCaptions:]
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	CallStatus       string
	CallSid          string
	ServerName       string
	Destination      string
	Languages        string
	PromptState      string
	Degraded         bool
	SyncOffset       int64
	SyncRTT          int64
	SyncQuality      clocksync.Quality
	OriginalVolume   *int
	TranslatedVolume *int
	Stats            *PlaybackStats
	Goroutines       int
	MemAlloc         uint64
}

// PlaybackStats is the stats block of a StatusMsg
type PlaybackStats struct {
	OriginalPlayed   int64
	TranslatedPlayed int64
	PromptPlayed     int64
	Failed           int64
	Dropped          int64
	CacheHits        uint64
	CacheMisses      uint64
}

// CaptionMsg adds a transcript line
type CaptionMsg struct {
	Source     string
	Original   string
	Translated string
	Final      bool
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := (value * width) / max
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return bar
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// row renders one bordered line, padded or truncated to the box width
func row(content string) string {
	return fmt.Sprintf("│ %-52s │\n", truncate(content, 52))
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
