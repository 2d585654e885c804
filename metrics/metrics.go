package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type GameMetrics interface {
	GameStarted(mode string)
	GameEnded(mode string, reason string)
	SetQueueDepth(mode string, depth int)
	ObserveTick(elapsed time.Duration)
	AddPublishFailure(kind string)
	SetConnections(n int)
}

func NewMetrics(registry *prometheus.Registry) GameMetrics {
	return setupPrometheusMetrics(registry)
}
