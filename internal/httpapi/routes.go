package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/codepair/session-relay/internal/config"
	"github.com/codepair/session-relay/internal/hub"
	"github.com/codepair/session-relay/internal/metrics"
	"github.com/codepair/session-relay/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/rooms", ListRooms(h))
	r.Get("/ws", ws.Handler(h, log, cfg))

	c := cors.New(cors.Options{AllowedOrigins: cfg.CORSAllow})
	return c.Handler(r)
}
