package http

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 2 * time.Second

// Pinger es cualquier dependencia que se pueda sondear (base, redis).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapta una funcion a Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reporta liveness y el estado de cada dependencia.
type HealthHandler struct {
	logger *zap.Logger
	checks map[string]Pinger
	// mode describe el almacenamiento activo (postgres, sqlite, memory).
	mode string
}

func NewHealthHandler(logger *zap.Logger, mode string, checks map[string]Pinger) *HealthHandler {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &HealthHandler{logger: logger, checks: checks, mode: mode}
}

// Healthz maneja GET /healthz. Siempre 200 mientras el proceso responda;
// status es "degraded" si alguna dependencia falla.
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(names))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		pinger := h.checks[name]
		g.Go(func() error {
			state := "ok"
			if err := pinger.Ping(gctx); err != nil {
				h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				state = "error"
			}
			mu.Lock()
			results[name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := "ok"
	for _, state := range results {
		if state != "ok" {
			status = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"storage":      h.mode,
		"dependencies": results,
	})
}
