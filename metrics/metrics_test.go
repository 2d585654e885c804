package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameLifecycleCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry).(prometheusMetrics)

	m.GameStarted("classic")
	m.GameStarted("classic")
	m.GameEnded("classic", "win")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeGames.WithLabelValues("classic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gamesFinished.WithLabelValues("classic", "win")))
}

func TestGaugesAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry).(prometheusMetrics)

	m.SetQueueDepth("tournament", 3)
	m.SetConnections(7)
	m.AddPublishFailure("match_history")
	m.ObserveTick(250 * time.Microsecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth.WithLabelValues("tournament")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.connections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishFailures.WithLabelValues("match_history")))

	families, err := registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "pong_tick_duration_seconds")
}
