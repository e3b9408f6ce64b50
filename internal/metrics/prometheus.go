// ABOUTME: Prometheus metrics for the call console
// ABOUTME: Session counters are read at scrape time; call events are counted
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Evatrad/evatrad-go/pkg/audio/mix"
	"github.com/Evatrad/evatrad-go/pkg/evatrad"
	"github.com/Evatrad/evatrad-go/pkg/playback"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "evatrad"

// StatsFunc returns a snapshot of the current session
type StatsFunc func() evatrad.SessionStats

// Metrics contains the console's Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	Messages    *prometheus.CounterVec
	CallsEnded  *prometheus.CounterVec
	StatusSeen  *prometheus.CounterVec
	FramesSent  prometheus.Counter
	SyncOffset  prometheus.Gauge
	SyncRTT     prometheus.Gauge
	AudioErrors prometheus.Counter
}

// New creates a registry holding the console metrics. stats may be nil
// when no session exists yet.
func New(stats StatsFunc) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Server messages received, by type",
		}, []string{"type"}),
		CallsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_ended_total",
			Help:      "Calls ended, by reason",
		}, []string{"reason"}),
		StatusSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_status_total",
			Help:      "Call status updates, by status",
		}, []string{"status"}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uplink_frames_sent_total",
			Help:      "Caller audio frames sent to the bridge",
		}),
		SyncOffset: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_offset_seconds",
			Help:      "Estimated server clock offset",
		}),
		SyncRTT: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_rtt_seconds",
			Help:      "Last clock sync round trip",
		}),
		AudioErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_errors_total",
			Help:      "Non-fatal audio item and payload errors",
		}),
	}

	if stats != nil {
		reg.MustRegister(newSessionCollector(stats))
	}
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sessionCollector converts session snapshots into metrics on each scrape
type sessionCollector struct {
	stats StatsFunc

	items       *prometheus.Desc
	enqueued    *prometheus.Desc
	queued      *prometheus.Desc
	playing     *prometheus.Desc
	gain        *prometheus.Desc
	turns       *prometheus.Desc
	late        *prometheus.Desc
	immediate   *prometheus.Desc
	originalLen *prometheus.Desc
	prompts     *prometheus.Desc
	cacheSize   *prometheus.Desc
	cacheLookup *prometheus.Desc
	evictions   *prometheus.Desc
	degraded    *prometheus.Desc
}

func newSessionCollector(stats StatsFunc) *sessionCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &sessionCollector{
		stats:       stats,
		items:       desc("playback_items_total", "Finished playback items, by bus and outcome", "bus", "outcome"),
		enqueued:    desc("playback_enqueued_total", "Items accepted by a channel", "bus"),
		queued:      desc("playback_queue_depth", "Items waiting on a channel", "bus"),
		playing:     desc("playback_playing", "Whether a channel is playing", "bus"),
		gain:        desc("bus_gain", "Current bus gain", "bus"),
		turns:       desc("scheduler_turns_total", "Dispatched conversation turns, by kind", "kind"),
		late:        desc("scheduler_late_total", "Turns whose target time had already passed"),
		immediate:   desc("scheduler_immediate_total", "Turns without a timestamp"),
		originalLen: desc("scheduler_held_original_seconds", "Receiver voice held for the next translation"),
		prompts:     desc("prompt_events_total", "Prompt controller events", "event"),
		cacheSize:   desc("cache_entries", "Decoded buffers in the cache"),
		cacheLookup: desc("cache_lookups_total", "Cache lookups, by result", "result"),
		evictions:   desc("cache_evictions_total", "Cache evictions"),
		degraded:    desc("audio_degraded", "1 when the output device is unusable"),
	}
}

// Describe implements prometheus.Collector
func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.items, c.enqueued, c.queued, c.playing, c.gain, c.turns, c.late,
		c.immediate, c.originalLen, c.prompts, c.cacheSize, c.cacheLookup,
		c.evictions, c.degraded,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()

	buses := []struct {
		name  string
		stats playback.Stats
		gain  float64
	}{
		{mix.BusOriginal, st.Original, st.Gains.Original},
		{mix.BusTranslated, st.Translated, st.Gains.Translated},
		{mix.BusPrompt, st.Prompt, st.Gains.Prompt},
	}
	for _, b := range buses {
		counter := func(outcome string, v int64) {
			ch <- prometheus.MustNewConstMetric(c.items, prometheus.CounterValue, float64(v), b.name, outcome)
		}
		counter("played", b.stats.Played)
		counter("failed", b.stats.Failed)
		counter("timed_out", b.stats.TimedOut)
		counter("preempted", b.stats.Preempted)
		counter("dropped", b.stats.Dropped)

		ch <- prometheus.MustNewConstMetric(c.enqueued, prometheus.CounterValue, float64(b.stats.Enqueued), b.name)
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(b.stats.Queued), b.name)
		ch <- prometheus.MustNewConstMetric(c.playing, prometheus.GaugeValue, boolValue(b.stats.Playing), b.name)
		ch <- prometheus.MustNewConstMetric(c.gain, prometheus.GaugeValue, b.gain, b.name)
	}

	turns := map[string]int64{
		"pair":      st.Scheduler.Pairs,
		"solo":      st.Scheduler.Solo,
		"caller":    st.Scheduler.Caller,
		"text_only": st.Scheduler.TextOnly,
	}
	for kind, v := range turns {
		ch <- prometheus.MustNewConstMetric(c.turns, prometheus.CounterValue, float64(v), kind)
	}
	ch <- prometheus.MustNewConstMetric(c.late, prometheus.CounterValue, float64(st.Scheduler.Late))
	ch <- prometheus.MustNewConstMetric(c.immediate, prometheus.CounterValue, float64(st.Scheduler.Immediate))
	ch <- prometheus.MustNewConstMetric(c.originalLen, prometheus.GaugeValue, st.Scheduler.OriginalLen.Seconds())

	events := map[string]int64{
		"fetched":      st.Prompts.Fetched,
		"fetch_errors": st.Prompts.FetchErrors,
		"played":       st.Prompts.Played,
		"skipped":      st.Prompts.Skipped,
	}
	for event, v := range events {
		ch <- prometheus.MustNewConstMetric(c.prompts, prometheus.CounterValue, float64(v), event)
	}

	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(st.Cache.Entries))
	ch <- prometheus.MustNewConstMetric(c.cacheLookup, prometheus.CounterValue, float64(st.Cache.Hits), "hit")
	ch <- prometheus.MustNewConstMetric(c.cacheLookup, prometheus.CounterValue, float64(st.Cache.Misses), "miss")
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(st.Cache.Evictions))
	ch <- prometheus.MustNewConstMetric(c.degraded, prometheus.GaugeValue, boolValue(st.Degraded))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
