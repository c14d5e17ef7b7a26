package handler

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storegen/backend/internal/infrastructure/assets"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"github.com/storegen/backend/internal/infrastructure/render"
)

// Pinger is a dependency whose connectivity the health check probes
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler exposes health and pipeline statistics endpoints
type SystemHandler struct {
	BaseHandler
	cache     *cache.TieredCache
	engine    *render.Engine
	optimizer *assets.Optimizer
	pingers   map[string]Pinger
	startTime time.Time
}

// NewSystemHandler creates a system handler. pingers maps dependency
// names to their connectivity probes.
func NewSystemHandler(c *cache.TieredCache, engine *render.Engine, optimizer *assets.Optimizer, pingers map[string]Pinger) *SystemHandler {
	return &SystemHandler{
		cache:     c,
		engine:    engine,
		optimizer: optimizer,
		pingers:   pingers,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers the system endpoints
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/cache/stats", h.CacheStats)
	rg.GET("/pipeline/stats", h.PipelineStats)
}

// HealthResponse reports service liveness and dependency reachability
type HealthResponse struct {
	Status       string            `json:"status"`
	GoVersion    string            `json:"go_version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Health probes each registered dependency with a short budget. The
// endpoint answers 200 as long as the process itself is serving;
// dependency failures are reported in the body.
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if len(h.pingers) > 0 {
		resp.Dependencies = make(map[string]string, len(h.pingers))
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for name, p := range h.pingers {
			if err := p.Ping(ctx); err != nil {
				resp.Dependencies[name] = "unreachable: " + err.Error()
				resp.Status = "degraded"
			} else {
				resp.Dependencies[name] = "ok"
			}
		}
	}
	h.Success(c, resp)
}

// CacheStats returns the per-tier hit and miss counters
func (h *SystemHandler) CacheStats(c *gin.Context) {
	h.Success(c, h.cache.Stats())
}

// PipelineStatsResponse aggregates the render and optimizer counters
type PipelineStatsResponse struct {
	ComponentRenders  int64 `json:"component_renders"`
	ComponentMemoHits int64 `json:"component_memo_hits"`
	VariantsBuilt     int64 `json:"variants_built"`
	VariantsReused    int64 `json:"variants_reused"`
	SourceBytes       int64 `json:"source_bytes"`
	OutputBytes       int64 `json:"output_bytes"`
}

// PipelineStats returns cumulative pipeline work counters
func (h *SystemHandler) PipelineStats(c *gin.Context) {
	renderStats := h.engine.Stats()
	optStats := h.optimizer.Stats()
	h.Success(c, PipelineStatsResponse{
		ComponentRenders:  renderStats.ComponentRenders,
		ComponentMemoHits: renderStats.ComponentMemoHits,
		VariantsBuilt:     optStats.VariantsBuilt,
		VariantsReused:    optStats.VariantsReused,
		SourceBytes:       optStats.SourceBytes,
		OutputBytes:       optStats.OutputBytes,
	})
}
