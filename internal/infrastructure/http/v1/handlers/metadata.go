package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"entigraph/internal/edit"
	"entigraph/internal/infrastructure/http/v1/dto"
	"entigraph/pkg/logger"
)

// MetadataHandler exposes entity definitions and dry-run evaluation.
type MetadataHandler struct {
	*BaseHandler
}

func NewMetadataHandler(base *BaseHandler) *MetadataHandler {
	return &MetadataHandler{BaseHandler: base}
}

// ListEntities returns a summary of every entity type.
// GET /api/v1/meta
func (h *MetadataHandler) ListEntities(c *gin.Context) {
	types := h.domain.List()
	out := make([]dto.EntitySummary, len(types))
	for i, et := range types {
		out[i] = dto.NewEntitySummary(et)
	}
	c.JSON(http.StatusOK, out)
}

// GetEntity returns the definitions and evaluation order of one entity type.
// GET /api/v1/meta/:name
func (h *MetadataHandler) GetEntity(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewEntityDetail(et))
}

// Evaluate applies writes to a blank entity and returns the resulting state
// with every delivered value change. Nothing is stored.
// POST /api/v1/meta/:name/evaluate
func (h *MetadataHandler) Evaluate(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req dto.EvaluateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	s := edit.New(et,
		edit.WithLogger(logger.FromContext(c.Request.Context())),
		edit.WithEntityOptions(h.entityOpts...))
	changes, stop := h.recordChanges(s)
	err := h.applyWrites(s, req.Writes)
	stop()
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, h.stateResponse(s, *changes))
}
