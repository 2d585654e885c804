package services

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dosada05/pong-server/metrics"
	"github.com/Dosada05/pong-server/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() metrics.GameMetrics {
	return metrics.NewMetrics(prometheus.NewRegistry())
}

func participant(id string) models.Participant {
	return models.Participant{ID: id, Name: id}
}

func cohort(ids ...string) []models.Participant {
	out := make([]models.Participant, len(ids))
	for i, id := range ids {
		out[i] = participant(id)
	}
	return out
}
