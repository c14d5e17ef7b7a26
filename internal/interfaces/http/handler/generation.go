package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appgen "github.com/storegen/backend/internal/application/generation"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/interfaces/http/dto"
)

// GenerationHandler exposes the orchestrator API: submit, status,
// cancel, plus the job management surface built on top of it.
type GenerationHandler struct {
	BaseHandler
	orchestrator *appgen.Orchestrator
}

// NewGenerationHandler creates a generation handler
func NewGenerationHandler(orchestrator *appgen.Orchestrator) *GenerationHandler {
	return &GenerationHandler{orchestrator: orchestrator}
}

// RegisterRoutes registers the generation endpoints
func (h *GenerationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	jobs := rg.Group("/jobs")
	{
		jobs.POST("", h.Submit)
		jobs.GET("", h.List)
		jobs.GET("/:id", h.Status)
		jobs.GET("/:id/structure", h.Structure)
		jobs.POST("/:id/cancel", h.Cancel)
		jobs.POST("/:id/retry", h.Retry)
		jobs.DELETE("/:id", h.Purge)
	}
}

// Submit validates and enqueues a generation request. Identical
// in-flight requests return the already-active job.
func (h *GenerationHandler) Submit(c *gin.Context) {
	var req generation.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	snap, err := h.orchestrator.Submit(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, snap)
}

// Status returns a coherent snapshot of one job, including any partial
// deployment results already available.
func (h *GenerationHandler) Status(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	snap, err := h.orchestrator.Status(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snap)
}

// Structure returns the rendered store structure of a job
func (h *GenerationHandler) Structure(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	structure, err := h.orchestrator.Structure(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, structure)
}

// List returns recent jobs, newest first, optionally filtered by status
func (h *GenerationHandler) List(c *gin.Context) {
	query := dto.ListJobsRequest{Limit: 50}
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	snaps, err := h.orchestrator.List(c.Request.Context(), generation.Status(query.Status), query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, snaps, len(snaps), query.Limit)
}

// Cancel requests best-effort cancellation of a job
func (h *GenerationHandler) Cancel(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	snap, err := h.orchestrator.Cancel(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, snap)
}

// Retry resubmits the request of a failed or cancelled job as a new job
func (h *GenerationHandler) Retry(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	snap, err := h.orchestrator.Retry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, snap)
}

// Purge deletes a terminal job record
func (h *GenerationHandler) Purge(c *gin.Context) {
	id, ok := h.jobID(c)
	if !ok {
		return
	}
	if err := h.orchestrator.Purge(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *GenerationHandler) jobID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "Invalid job id")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.BadRequest(c, "Invalid job id")
		return uuid.Nil, false
	}
	return id, true
}
