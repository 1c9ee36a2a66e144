// Package handlers provides HTTP request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"entigraph/internal/core/apperror"
	"entigraph/internal/edit"
	"entigraph/internal/entity"
	"entigraph/internal/infrastructure/http/v1/dto"
	"entigraph/internal/metadata"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct {
	domain     *metadata.Domain
	dateLayout string
	entityOpts []entity.Option
}

// NewBaseHandler creates a base handler over domain. Dates are rendered and
// parsed with dateLayout; entityOpts apply to every entity the handlers create.
func NewBaseHandler(domain *metadata.Domain, dateLayout string, entityOpts ...entity.Option) *BaseHandler {
	return &BaseHandler{domain: domain, dateLayout: dateLayout, entityOpts: entityOpts}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewInvalidInput("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// entityType resolves the :name path parameter.
func (h *BaseHandler) entityType(c *gin.Context) (*metadata.EntityType, bool) {
	name := c.Param("name")
	et, ok := h.domain.Entity(name)
	if !ok {
		h.Error(c, apperror.NewNotFound("entity type", name))
	}
	return et, ok
}

// applyWrites decodes and writes each value in order, stopping at the first
// rejected write.
func (h *BaseHandler) applyWrites(s *edit.State, writes []dto.Write) error {
	et := s.Type()
	for _, w := range writes {
		a, ok := et.Attribute(w.Attribute)
		if !ok {
			return apperror.NewUnknownAttribute(et.Name(), w.Attribute)
		}
		def, _ := et.Definition(a)
		v, err := dto.DecodeValue(def, w.Value, h.dateLayout)
		if err != nil {
			return err
		}
		if err := s.Set(a, v); err != nil {
			return err
		}
	}
	return nil
}

// recordChanges collects value-change notifications of s until the returned
// function is called.
func (h *BaseHandler) recordChanges(s *edit.State) (*[]dto.Change, func()) {
	changes := &[]dto.Change{}
	sub := s.OnAnyValueChanged(func(vc entity.ValueChange) {
		*changes = append(*changes, dto.Change{
			Attribute: vc.Attribute.Name,
			Value:     dto.RenderValue(vc.Value, h.dateLayout),
			Previous:  dto.RenderValue(vc.Previous, h.dateLayout),
		})
	})
	return changes, sub.Cancel
}

// stateResponse renders the observable state of s.
func (h *BaseHandler) stateResponse(s *edit.State, changes []dto.Change) dto.EntityState {
	et := s.Type()
	resp := dto.EntityState{
		Entity:   et.Name(),
		Status:   s.Status().String(),
		Exists:   s.Exists(),
		Values:   make(map[string]any),
		Modified: []string{},
		Changes:  changes,
	}
	for a, v := range s.CurrentValues() {
		resp.Values[a.Name] = dto.RenderValue(v, h.dateLayout)
	}
	for _, a := range s.ModifiedAttributes() {
		resp.Modified = append(resp.Modified, a.Name)
	}
	for _, def := range et.Definitions() {
		if _, derived := def.(*metadata.Derived); derived {
			continue
		}
		if err := s.Validate(def.Attribute()); err != nil {
			if resp.Validation == nil {
				resp.Validation = make(map[string]string)
			}
			resp.Validation[def.Attribute().Name] = err.Error()
		}
	}
	return resp
}
