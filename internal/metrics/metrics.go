package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Rooms currently present in the directory.",
	})
	ParticipantsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_participants_active",
		Help: "Participants currently registered across all rooms.",
	})
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_events_total",
		Help: "Inbound events processed by rooms, by event type.",
	}, []string{"type"})
	SlowDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_slow_drops_total",
		Help: "Participants dropped because their outbox stayed full.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
