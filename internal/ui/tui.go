// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the call console
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg carries volume set from the keyboard, in percent
type VolumeChangeMsg struct {
	Original   int
	Translated int
	Muted      bool
}

// QuitMsg is sent when the user hangs up from the console
type QuitMsg struct{}

// VolumeControl holds channels for volume control communication
type VolumeControl struct {
	Changes chan VolumeChangeMsg
	Quit    chan QuitMsg
}

// NewVolumeControl creates a new volume control handler
func NewVolumeControl() *VolumeControl {
	return &VolumeControl{
		Changes: make(chan VolumeChangeMsg, 10),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model with the given starting volumes
func NewModel(volCtrl *VolumeControl, originalVolume, translatedVolume int) Model {
	return Model{
		originalVolume:   clampPercent(originalVolume),
		translatedVolume: clampPercent(translatedVolume),
		volumeCtrl:       volCtrl,
	}
}

// Run creates the TUI program. The caller starts it with Run.
func Run(volCtrl *VolumeControl, originalVolume, translatedVolume int) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(volCtrl, originalVolume, translatedVolume), tea.WithAltScreen())
	return p, nil
}
