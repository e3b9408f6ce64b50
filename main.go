// ABOUTME: Entry point for the Evatrad call console
// ABOUTME: Places a translated call and plays it through the audio engine
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/Evatrad/evatrad-go/internal/config"
	"github.com/Evatrad/evatrad-go/internal/discovery"
	"github.com/Evatrad/evatrad-go/internal/metrics"
	"github.com/Evatrad/evatrad-go/internal/ui"
	"github.com/Evatrad/evatrad-go/internal/version"
	"github.com/Evatrad/evatrad-go/pkg/audio/decode"
	"github.com/Evatrad/evatrad-go/pkg/audio/output"
	"github.com/Evatrad/evatrad-go/pkg/callctl"
	"github.com/Evatrad/evatrad-go/pkg/evatrad"
	"github.com/Evatrad/evatrad-go/pkg/prompt"
	"github.com/Evatrad/evatrad-go/pkg/protocol"
	clocksync "github.com/Evatrad/evatrad-go/pkg/sync"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
)

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	useTUI := !cfg.UI.Disabled

	// Set up logging
	f, err := os.OpenFile(cfg.Logging.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	var logOut io.Writer = f
	if !useTUI {
		// Streaming logs mode: log to both stdout and file
		logOut = io.MultiWriter(os.Stdout, f)
	}
	log.SetDefault(log.NewWithOptions(logOut, log.Options{
		ReportTimestamp: true,
		Level:           cfg.Logging.LogLevel(),
	}))

	log.Info("Starting call console", "version", version.Version, "to", cfg.Call.To,
		"caller", cfg.Call.CallerLanguage, "receiver", cfg.Call.ReceiverLanguage)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverURL := cfg.Server.URL
	if cfg.Server.Discover {
		serverURL, err = discoverServer(ctx)
		if err != nil {
			log.Fatal("Bridge discovery failed", "err", err)
		}
	}

	control, err := callctl.New(callctl.Config{
		BaseURL:            serverURL,
		PartialTTSInterval: cfg.Call.PartialTTSInterval,
		Timeout:            cfg.Server.Timeout,
		UserAgent:          version.UserAgent(),
	})
	if err != nil {
		log.Fatal("Invalid bridge URL", "err", err)
	}
	wsURL, err := protocol.WebSocketURL(serverURL)
	if err != nil {
		log.Fatal("Invalid bridge URL", "err", err)
	}

	// TUI setup
	var tuiProg *tea.Program
	var volumeCtrl *ui.VolumeControl

	if useTUI {
		volumeCtrl = ui.NewVolumeControl()
		tuiProg, err = ui.Run(volumeCtrl, percent(cfg.Audio.OriginalGain), percent(cfg.Audio.TranslatedGain))
		if err != nil {
			log.Fatal("Failed to start TUI", "err", err)
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				log.Error("TUI stopped", "err", err)
			}
		}()
	}

	// Helper to update TUI
	updateTUI := func(msg tea.Msg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	updateTUI(ui.StatusMsg{
		ServerName:  serverURL,
		Destination: cfg.Call.To,
		Languages: fmt.Sprintf("%s → %s", config.LanguageName(cfg.Call.CallerLanguage),
			config.LanguageName(cfg.Call.ReceiverLanguage)),
	})

	var out output.Output = output.NewOto()
	if cfg.Audio.Disabled {
		out = output.NewNull()
	}

	clock := clocksync.NewClockSync()

	var session *evatrad.Session
	m := metrics.New(func() evatrad.SessionStats { return session.Stats() })

	session = evatrad.NewSession(evatrad.SessionConfig{
		Output:         out,
		SampleRate:     cfg.Audio.SampleRate,
		OriginalGain:   cfg.Audio.OriginalGain,
		TranslatedGain: cfg.Audio.TranslatedGain,
		PromptGain:     cfg.Audio.PromptGain,
		FadeOut:        cfg.Audio.FadeOut,
		CacheSize:      cfg.Audio.CacheSize,
		DecodeWorkers:  cfg.Audio.DecodeWorkers,
		WrapRaw:        cfg.Audio.WrapRaw,
		SyncGap:        cfg.Sync.Gap,
		SyncLead:       cfg.Sync.Lead,
		MaxOriginal:    cfg.Sync.MaxOriginal,
		Clock:          clock,
		Fetcher:        control,
		Language:       cfg.Call.CallerLanguage,
		LoopDelay:      cfg.Prompts.LoopDelay,
		SafetyTimeout:  cfg.Prompts.SafetyTimeout,
		OnError: func(err error) {
			m.AudioErrors.Inc()
		},
		OnFatal: func(err error) {
			updateTUI(ui.StatusMsg{Degraded: true})
		},
		OnPromptState: func(state prompt.State) {
			updateTUI(ui.StatusMsg{PromptState: state.String()})
		},
	})
	// Zero gains are legal settings; the session treats zero as unset
	session.SetVolumes(cfg.Audio.OriginalGain, cfg.Audio.TranslatedGain)

	if cfg.Metrics.Address != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	dial := func(ctx context.Context, callSid string) (evatrad.Stream, error) {
		client := protocol.NewClient(protocol.Config{
			URL:              wsURL,
			CallSid:          callSid,
			Clock:            clock,
			SyncInterval:     cfg.Sync.TimeSync,
			HandshakeTimeout: cfg.Server.Timeout,
		})
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		log.Info("Connected to bridge", "url", wsURL)

		if cfg.Audio.SendFile != "" {
			go sendFile(ctx, client, cfg.Audio.SendFile, cfg.Call.CallerLanguage, m)
		}
		return client, nil
	}

	call := evatrad.NewCall(session, control, dial, evatrad.CallConfig{
		Destination:      cfg.Call.To,
		CallerLanguage:   cfg.Call.CallerLanguage,
		ReceiverLanguage: cfg.Call.ReceiverLanguage,
		StatusInterval:   cfg.Call.StatusInterval,
		OnMessage: func(msg protocol.Message) {
			m.Messages.WithLabelValues(protocol.Type(msg)).Inc()
		},
		OnTranscript: func(tr protocol.Transcription) {
			if !useTUI && tr.Final {
				log.Info("Transcript", "source", tr.Source, "original", tr.OriginalText, "translated", tr.TranslatedText)
			}
			updateTUI(ui.CaptionMsg{
				Source:     tr.Source,
				Original:   tr.OriginalText,
				Translated: tr.TranslatedText,
				Final:      tr.Final,
			})
		},
		OnStatus: func(status string) {
			m.StatusSeen.WithLabelValues(status).Inc()
			updateTUI(ui.StatusMsg{CallStatus: status})
		},
		OnEnded: func(reason string) {
			m.CallsEnded.WithLabelValues(reason).Inc()
			updateTUI(ui.StatusMsg{CallStatus: "ended: " + reason})
		},
	})

	// Start volume control handler if TUI is enabled
	if volumeCtrl != nil {
		go handleVolumeControl(session, volumeCtrl, call.Done())
	}

	// Start stats update loop
	go statsUpdateLoop(call, clock, m, updateTUI)

	runErr := make(chan error, 1)
	go func() { runErr <- call.Run(ctx) }()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit <-chan ui.QuitMsg
	if volumeCtrl != nil {
		quit = volumeCtrl.Quit
	}

	select {
	case <-quit:
		log.Info("Hangup requested from console")
		call.Hangup()
	case <-sigChan:
		log.Info("Shutdown signal received")
		call.Hangup()
	case <-call.Done():
	}

	exitCode := 0
	if err := <-runErr; err != nil {
		log.Error("Call failed", "err", err)
		exitCode = 1
	}
	log.Info("Call ended", "reason", call.Reason(), "call_sid", call.SID())

	if tuiProg != nil {
		tuiProg.Quit()
		tuiProg.Wait()
	}
	if exitCode != 0 {
		_ = f.Close()
		os.Exit(exitCode)
	}
}

// discoverServer browses mDNS for a bridge and returns its API root
func discoverServer(ctx context.Context) (string, error) {
	log.Info("Starting bridge discovery...")
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	server, err := disc.Find(findCtx)
	if err != nil {
		return "", err
	}
	log.Info("Discovered bridge", "name", server.Name, "url", server.BaseURL())
	return server.BaseURL(), nil
}

// sendFile decodes an audio file and streams it as caller voice
func sendFile(ctx context.Context, client *protocol.Client, path, language string, m *metrics.Metrics) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read caller audio", "path", path, "err", err)
		return
	}
	buf, err := decode.NewContainer().Decode(ctx, data)
	if err != nil {
		log.Error("Failed to decode caller audio", "path", path, "err", err)
		return
	}

	uplink := evatrad.NewUplink(client, nil, language)
	frames, err := uplink.Send(ctx, buf)
	m.FramesSent.Add(float64(frames))
	if err != nil {
		log.Error("Caller audio interrupted", "frames", frames, "err", err)
		return
	}
	log.Info("Caller audio sent", "path", path, "frames", frames, "duration", buf.Duration())
}

// handleVolumeControl processes volume changes from TUI
func handleVolumeControl(session *evatrad.Session, volumeCtrl *ui.VolumeControl, done <-chan struct{}) {
	for {
		select {
		case vol := <-volumeCtrl.Changes:
			log.Debug("Volume change", "original", vol.Original, "translated", vol.Translated, "muted", vol.Muted)
			if vol.Muted {
				session.SetVolumes(0, 0)
				continue
			}
			session.SetVolumes(float64(vol.Original)/100, float64(vol.Translated)/100)
		case <-done:
			return
		}
	}
}

// statsUpdateLoop periodically updates TUI and metrics with call statistics
func statsUpdateLoop(call *evatrad.Call, clock *clocksync.ClockSync, m *metrics.Metrics, updateTUI func(tea.Msg)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	// Use a slower ticker for expensive runtime stats to avoid GC pauses
	runtimeStatsTicker := time.NewTicker(2 * time.Second)
	defer runtimeStatsTicker.Stop()

	var lastGoroutines int
	var lastMemAlloc uint64

	for {
		select {
		case <-call.Done():
			return

		case <-runtimeStatsTicker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			lastGoroutines = runtime.NumGoroutine()
			lastMemAlloc = ms.Alloc

		case <-ticker.C:
			stats := call.Session().Stats()
			offset, rtt, _ := clock.Stats()
			quality := clock.CheckQuality()

			m.SyncOffset.Set(float64(offset) / 1000)
			m.SyncRTT.Set(float64(rtt) / 1000)

			updateTUI(ui.StatusMsg{
				CallSid:     call.SID(),
				Degraded:    stats.Degraded,
				SyncOffset:  offset,
				SyncRTT:     rtt,
				SyncQuality: quality,
				Stats: &ui.PlaybackStats{
					OriginalPlayed:   stats.Original.Played,
					TranslatedPlayed: stats.Translated.Played,
					PromptPlayed:     stats.Prompt.Played,
					Failed:           stats.Original.Failed + stats.Translated.Failed + stats.Prompt.Failed,
					Dropped:          stats.Original.Dropped + stats.Translated.Dropped + stats.Prompt.Dropped,
					CacheHits:        stats.Cache.Hits,
					CacheMisses:      stats.Cache.Misses,
				},
				Goroutines: lastGoroutines,
				MemAlloc:   lastMemAlloc,
			})
		}
	}
}

// percent converts a gain to a whole percentage for the console
func percent(gain float64) int {
	return int(gain*100 + 0.5)
}
