package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	pushDelivery "voicelog-backend/internal/push/delivery"
	reminderDelivery "voicelog-backend/internal/reminder/delivery"
	"voicelog-backend/internal/reminder/repository"
	"voicelog-backend/pkg/logger"
	"voicelog-backend/pkg/metrics"
	"voicelog-backend/pkg/sse"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// StoreHealth reports which reminder store backend is serving
type StoreHealth interface {
	Health() repository.HealthStatus
}

// Dependencies are the pieces the HTTP layer is assembled from
type Dependencies struct {
	Reminders   *reminderDelivery.ReminderHandler
	Push        *pushDelivery.PushHandler
	Settings    *SettingsStore
	SSE         *sse.Manager
	Store       StoreHealth
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
	CORSOrigins string
	Logger      zerolog.Logger
}

type Handler struct {
	deps Dependencies

	mu     sync.Mutex
	server *http.Server
}

func NewHandler(deps Dependencies) *Handler {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{deps: deps}
}

// Engine builds the gin engine with middleware and routes
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(h.deps.Logger))
	r.Use(h.deps.Metrics.Middleware())
	r.Use(cors.New(corsConfig(h.deps.CORSOrigins)))

	SetupRoutes(r, h.deps)
	return r
}

// Start serves HTTP on addr until Shutdown is called
func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// no WriteTimeout: /api/events streams for the life of the connection
	}
	// event streams never end on their own
	server.RegisterOnShutdown(h.deps.SSE.CloseAll)

	h.mu.Lock()
	h.server = server
	h.mu.Unlock()

	h.deps.Logger.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	server := h.server
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Cache-Control", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length", "Content-Type"},
		MaxAge:        12 * time.Hour,
	}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	cfg.AllowCredentials = true
	return cfg
}
