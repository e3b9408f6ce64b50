// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, captions and keyboard volume control
package ui

import (
	"strings"
	"testing"

	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil, 30, 100) // VolumeControl is optional for testing

	if model.originalVolume != 30 {
		t.Errorf("expected original volume 30, got %d", model.originalVolume)
	}
	if model.translatedVolume != 100 {
		t.Errorf("expected translated volume 100, got %d", model.translatedVolume)
	}
	if model.muted {
		t.Error("expected muted to be false initially")
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestNewModelClampsVolume(t *testing.T) {
	model := NewModel(nil, -10, 150)
	if model.originalVolume != 0 || model.translatedVolume != 100 {
		t.Errorf("expected 0/100, got %d/%d", model.originalVolume, model.translatedVolume)
	}
}

func TestStatusMsgCall(t *testing.T) {
	model := NewModel(nil, 30, 100)

	model.applyStatus(StatusMsg{
		CallStatus:  "ringing",
		CallSid:     "CA1",
		Destination: "+33100000000",
		Languages:   "en-US → fr-FR",
	})

	if model.callStatus != "ringing" {
		t.Errorf("expected callStatus 'ringing', got '%s'", model.callStatus)
	}
	if model.callSid != "CA1" {
		t.Errorf("expected callSid 'CA1', got '%s'", model.callSid)
	}

	// Empty fields leave state alone
	model.applyStatus(StatusMsg{PromptState: "waiting"})
	if model.callStatus != "ringing" {
		t.Errorf("expected callStatus to be kept, got '%s'", model.callStatus)
	}
	if model.promptState != "waiting" {
		t.Errorf("expected promptState 'waiting', got '%s'", model.promptState)
	}
}

func TestStatusMsgSync(t *testing.T) {
	model := NewModel(nil, 30, 100)

	model.applyStatus(StatusMsg{
		SyncOffset:  12,
		SyncRTT:     40,
		SyncQuality: clocksync.QualityGood,
	})

	if model.syncRTT != 40 {
		t.Errorf("expected syncRTT 40, got %d", model.syncRTT)
	}
	if model.syncQuality != clocksync.QualityGood {
		t.Errorf("expected QualityGood, got %v", model.syncQuality)
	}
}

func TestStatusMsgStats(t *testing.T) {
	model := NewModel(nil, 30, 100)

	model.applyStatus(StatusMsg{Stats: &PlaybackStats{
		OriginalPlayed:   3,
		TranslatedPlayed: 4,
		PromptPlayed:     2,
		Failed:           1,
		Dropped:          5,
		CacheHits:        7,
		CacheMisses:      2,
	}})

	if model.translatedPlayed != 4 || model.originalPlayed != 3 || model.promptPlayed != 2 {
		t.Errorf("unexpected played counts %d/%d/%d", model.translatedPlayed, model.originalPlayed, model.promptPlayed)
	}
	if model.cacheHits != 7 || model.cacheMisses != 2 {
		t.Errorf("unexpected cache counts %d/%d", model.cacheHits, model.cacheMisses)
	}
}

func TestStatusMsgVolume(t *testing.T) {
	model := NewModel(nil, 30, 100)
	orig, trans := 50, 80

	model.applyStatus(StatusMsg{OriginalVolume: &orig, TranslatedVolume: &trans})

	if model.originalVolume != 50 || model.translatedVolume != 80 {
		t.Errorf("expected 50/80, got %d/%d", model.originalVolume, model.translatedVolume)
	}
}

func TestCaptionsReplaceInterim(t *testing.T) {
	model := NewModel(nil, 30, 100)

	model.addCaption(CaptionMsg{Source: "receiver", Translated: "hel", Final: false})
	model.addCaption(CaptionMsg{Source: "caller", Translated: "bonjour", Final: true})
	model.addCaption(CaptionMsg{Source: "receiver", Translated: "hello there", Final: true})

	if len(model.captions) != 2 {
		t.Fatalf("expected 2 captions, got %d", len(model.captions))
	}
	if model.captions[0].translated != "hello there" || !model.captions[0].final {
		t.Errorf("expected interim line to be replaced, got %+v", model.captions[0])
	}
}

func TestCaptionsBounded(t *testing.T) {
	model := NewModel(nil, 30, 100)
	for i := 0; i < maxCaptions+5; i++ {
		model.addCaption(CaptionMsg{Source: "caller", Translated: "line", Final: true})
	}
	if len(model.captions) != maxCaptions {
		t.Errorf("expected %d captions, got %d", maxCaptions, len(model.captions))
	}
}

func TestKeyVolumeControl(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl, 30, 100)

	tests := []struct {
		key        tea.KeyType
		orig, tran int
	}{
		{tea.KeyDown, 30, 95},
		{tea.KeyRight, 35, 95},
		{tea.KeyLeft, 30, 95},
		{tea.KeyUp, 30, 100},
		{tea.KeyUp, 30, 100},
	}

	for _, tt := range tests {
		updated, _ := model.Update(tea.KeyMsg{Type: tt.key})
		model = updated.(Model)

		select {
		case change := <-ctrl.Changes:
			if change.Original != tt.orig || change.Translated != tt.tran {
				t.Errorf("key %v: expected %d/%d, got %d/%d", tt.key, tt.orig, tt.tran, change.Original, change.Translated)
			}
		default:
			t.Errorf("key %v: expected a volume change", tt.key)
		}
	}
}

func TestKeyMuteAndQuit(t *testing.T) {
	ctrl := NewVolumeControl()
	model := NewModel(ctrl, 30, 100)

	updated, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	model = updated.(Model)
	if !model.muted {
		t.Error("expected muted after 'm'")
	}
	if change := <-ctrl.Changes; !change.Muted {
		t.Error("expected muted volume change")
	}

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Error("expected quit command")
	}
	select {
	case <-ctrl.Quit:
	default:
		t.Error("expected quit signal")
	}
}

func TestViewRenders(t *testing.T) {
	model := NewModel(nil, 30, 100)
	if model.View() != "Loading..." {
		t.Error("expected loading view before window size")
	}

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = updated.(Model)
	model.addCaption(CaptionMsg{Source: "receiver", Translated: "hello", Final: true})
	model.applyStatus(StatusMsg{CallStatus: "in-progress", Degraded: true})

	view := model.View()
	for _, want := range []string{"Evatrad", "in-progress", "hello", "UNAVAILABLE"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 8); got != "héllo..." {
		t.Errorf("expected 'héllo...', got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected 'short', got %q", got)
	}
}
