package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"huddle/internal/core/services"
	"huddle/pkg/cache"
)

// PushCounter reports open push connections.
type PushCounter interface {
	ConnectedCount() int
}

type CacheReporter interface {
	CacheStats() cache.Stats
}

type StatsHandler struct {
	metrics *services.MetricsService
	push    PushCounter
	cache   CacheReporter
}

func NewStatsHandler(metrics *services.MetricsService, push PushCounter) *StatsHandler {
	return &StatsHandler{metrics: metrics, push: push}
}

// WithChannelCache adds channel cache counters to the report.
func (h *StatsHandler) WithChannelCache(c CacheReporter) *StatsHandler {
	h.cache = c
	return h
}

func (h *StatsHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/stats", h.GetStats)
}

func (h *StatsHandler) GetStats(c *gin.Context) {
	resp := gin.H{"service": h.metrics.Stats()}
	if h.push != nil {
		resp["push_connections"] = h.push.ConnectedCount()
	}
	if h.cache != nil {
		resp["channel_cache"] = h.cache.CacheStats()
	}
	c.JSON(http.StatusOK, resp)
}
