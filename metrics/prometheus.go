package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pong"

type prometheusMetrics struct {
	activeGames     prometheus.GaugeVec
	gamesFinished   prometheus.CounterVec
	queueDepth      prometheus.GaugeVec
	tickDuration    prometheus.Histogram
	publishFailures prometheus.CounterVec
	connections     prometheus.Gauge
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	activeGames := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Number of games currently held by the engine",
		}, []string{"mode"})

	gamesFinished := factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games removed from the engine, by how they ended",
		}, []string{"mode", "reason"})

	queueDepth := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Players waiting in the matchmaking queue",
		}, []string{"mode"})

	tickDuration := factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent applying one simulation step",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
		})

	publishFailures := factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Records that could not be delivered to the stats service after all attempts",
		}, []string{"kind"})

	connections := factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open player websocket connections",
		})

	return prometheusMetrics{
		activeGames:     *activeGames,
		gamesFinished:   *gamesFinished,
		queueDepth:      *queueDepth,
		tickDuration:    tickDuration,
		publishFailures: *publishFailures,
		connections:     connections,
	}
}

func (m prometheusMetrics) GameStarted(mode string) {
	m.activeGames.With(prometheus.Labels{"mode": mode}).Inc()
}

func (m prometheusMetrics) GameEnded(mode string, reason string) {
	m.activeGames.With(prometheus.Labels{"mode": mode}).Dec()
	m.gamesFinished.With(prometheus.Labels{"mode": mode, "reason": reason}).Inc()
}

func (m prometheusMetrics) SetQueueDepth(mode string, depth int) {
	m.queueDepth.With(prometheus.Labels{"mode": mode}).Set(float64(depth))
}

func (m prometheusMetrics) ObserveTick(elapsed time.Duration) {
	m.tickDuration.Observe(elapsed.Seconds())
}

func (m prometheusMetrics) AddPublishFailure(kind string) {
	m.publishFailures.With(prometheus.Labels{"kind": kind}).Inc()
}

func (m prometheusMetrics) SetConnections(n int) {
	m.connections.Set(float64(n))
}
