// Package handlers exposes relay runs over HTTP: an event stream at
// /api/run-demo and a WebSocket mirror at /api/run-demo/ws.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/gitoutofhere7/japan-post-demo/internal/common/errors"
	"github.com/gitoutofhere7/japan-post-demo/internal/common/logger"
	"github.com/gitoutofhere7/japan-post-demo/internal/events"
	"github.com/gitoutofhere7/japan-post-demo/internal/events/bus"
	"github.com/gitoutofhere7/japan-post-demo/internal/relay"
)

const maxClientMessage = 4 * 1024

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The event stream is open to any origin as well.
		return true
	},
}

type Handlers struct {
	orchestrator *relay.Orchestrator
	limiter      *relay.Limiter
	eventBus     bus.EventBus
	stats        *events.RunStats
	logger       *logger.Logger
}

// NewHandlers creates the relay handlers. stats may be nil.
func NewHandlers(orch *relay.Orchestrator, limiter *relay.Limiter, eventBus bus.EventBus, stats *events.RunStats, log *logger.Logger) *Handlers {
	return &Handlers{
		orchestrator: orch,
		limiter:      limiter,
		eventBus:     eventBus,
		stats:        stats,
		logger:       log.WithFields(zap.String("component", "relay-handlers")),
	}
}

func RegisterRoutes(router *gin.Engine, orch *relay.Orchestrator, limiter *relay.Limiter, eventBus bus.EventBus, stats *events.RunStats, log *logger.Logger) {
	handlers := NewHandlers(orch, limiter, eventBus, stats, log)
	router.GET("/health", handlers.httpHealth)

	api := router.Group("/api")
	api.GET("/run-demo", handlers.httpRunDemo)
	api.GET("/run-demo/ws", handlers.wsRunDemo)
}

func (h *Handlers) httpHealth(c *gin.Context) {
	eventsConnected := h.eventBus != nil && h.eventBus.IsConnected()
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"service":          "redelivery-relay",
		"events_connected": eventsConnected,
		"runs_in_flight":   h.limiter.InFlight(),
		"runs":             h.stats.Snapshot(),
	})
}

func (h *Handlers) httpRunDemo(c *gin.Context) {
	release, err := h.limiter.Acquire()
	if err != nil {
		h.reject(c, err)
		return
	}
	defer release()

	sink, err := relay.NewSSESink(c.Writer)
	if err != nil {
		h.logger.Error("streaming unsupported", zap.Error(err))
		apperrors.Abort(c, apperrors.InternalError("streaming unsupported", err))
		return
	}

	res := h.orchestrator.Run(c.Request.Context(), sink)
	h.logger.Debug("event stream finished",
		zap.String("run_id", res.RunID),
		zap.String("state", string(res.State)))
}

func (h *Handlers) wsRunDemo(c *gin.Context) {
	release, err := h.limiter.Acquire()
	if err != nil {
		h.reject(c, err)
		return
	}
	defer release()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxClientMessage)
	sink := relay.NewWebSocketSink(conn)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Client messages are ignored; a read error means the peer left or the
		// sink closed the connection.
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if gorillaws.IsUnexpectedCloseError(err, gorillaws.CloseNormalClosure, gorillaws.CloseGoingAway) {
					h.logger.Debug("websocket read ended", zap.Error(err))
				}
				return nil
			}
		}
	})
	g.Go(func() error {
		res := h.orchestrator.Run(gctx, sink)
		h.logger.Debug("websocket run finished",
			zap.String("run_id", res.RunID),
			zap.String("state", string(res.State)))
		return nil
	})
	_ = g.Wait()
}

func (h *Handlers) reject(c *gin.Context, err error) {
	h.logger.Warn("run rejected", zap.Error(err))
	switch {
	case errors.Is(err, relay.ErrRateLimited):
		apperrors.Abort(c, apperrors.TooManyRequests(err.Error()))
	default:
		apperrors.Abort(c, apperrors.ServiceUnavailable("run-demo"))
	}
}
