package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/observability"
	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function, such as a redis PING, to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	db   Pinger
	deps map[string]Pinger
}

// NewHealthHandler checks db on every readiness probe, plus each named dependency in deps.
func NewHealthHandler(db Pinger, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{db: db, deps: deps}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": observability.ServiceName,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{}
	ready := true
	report := func(name string, p Pinger) {
		if p == nil || p.Ping(ctx) != nil {
			body[name] = "error"
			ready = false
			return
		}
		body[name] = "ok"
	}

	report("database", h.db)
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report(name, h.deps[name])
	}

	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}
