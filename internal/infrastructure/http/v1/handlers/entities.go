package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"entigraph/internal/core/apperror"
	"entigraph/internal/edit"
	"entigraph/internal/entity"
	"entigraph/internal/event"
	"entigraph/internal/infrastructure/http/v1/dto"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

// EntityStore loads and saves entities. The postgres repository implements it.
type EntityStore interface {
	Get(ctx context.Context, et *metadata.EntityType, key ...any) (*entity.Entity, error)
	Save(ctx context.Context, s *edit.State) error
}

// ForeignKeyResolver loads referenced entities. The postgres resolver
// implements it.
type ForeignKeyResolver interface {
	Attach(s *edit.State) *event.Subscription
	Resolve(ctx context.Context, s *edit.State) error
	ResolveLoaded(ctx context.Context, e *entity.Entity) error
}

// EntityHandler reads and saves stored entities.
type EntityHandler struct {
	*BaseHandler
	store    EntityStore
	resolver ForeignKeyResolver
}

func NewEntityHandler(base *BaseHandler, store EntityStore, resolver ForeignKeyResolver) *EntityHandler {
	return &EntityHandler{BaseHandler: base, store: store, resolver: resolver}
}

// Get returns a stored entity. Composite keys are comma separated in key
// order.
// GET /api/v1/entities/:name/:key
func (h *EntityHandler) Get(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	key, err := h.parseKey(et, c.Param("key"))
	if err != nil {
		h.Error(c, err)
		return
	}
	s, err := h.open(c.Request.Context(), et, key)
	if err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(s, nil))
}

// Save applies writes to the stored entity with the given key, or to a new
// entity, resolves invalidated foreign keys and stores the result.
// PUT /api/v1/entities/:name
func (h *EntityHandler) Save(c *gin.Context) {
	et, ok := h.entityType(c)
	if !ok {
		return
	}
	var req dto.SaveRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	var key []any
	if len(req.Key) > 0 {
		var err error
		key, err = h.decodeKey(et, req.Key, func(def metadata.Definition, v any) (any, error) {
			return dto.DecodeValue(def, v, h.dateLayout)
		})
		if err != nil {
			h.Error(c, err)
			return
		}
	}
	s, err := h.open(ctx, et, key)
	if err != nil {
		h.Error(c, err)
		return
	}

	sub := h.resolver.Attach(s)
	defer sub.Cancel()

	changes, stop := h.recordChanges(s)
	err = h.applyWrites(s, req.Writes)
	if err == nil {
		err = h.resolver.Resolve(ctx, s)
	}
	stop()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.store.Save(ctx, s); err != nil {
		h.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, h.stateResponse(s, *changes))
}

// open returns an edit state holding the stored entity with key, or a blank
// one when key is nil.
func (h *EntityHandler) open(ctx context.Context, et *metadata.EntityType, key []any) (*edit.State, error) {
	s := edit.New(et,
		edit.WithLogger(logger.FromContext(ctx)),
		edit.WithEntityOptions(h.entityOpts...))
	if key == nil {
		return s, nil
	}
	e, err := h.store.Get(ctx, et, key...)
	if err != nil {
		return nil, err
	}
	if err := h.resolver.ResolveLoaded(ctx, e); err != nil {
		logger.Warn(ctx, "foreign keys not resolved", "entity", et.Name(), "error", err)
	}
	if err := s.SetEntity(e); err != nil {
		return nil, err
	}
	return s, nil
}

// parseKey decodes a comma separated path key.
func (h *EntityHandler) parseKey(et *metadata.EntityType, raw string) ([]any, error) {
	parts := strings.Split(raw, ",")
	values := make([]any, len(parts))
	for i, p := range parts {
		values[i] = p
	}
	return h.decodeKey(et, values, func(def metadata.Definition, v any) (any, error) {
		return dto.DecodeText(def, v.(string), h.dateLayout)
	})
}

// decodeKey converts values to the primary key attributes of et, in key
// order.
func (h *EntityHandler) decodeKey(et *metadata.EntityType, values []any,
	decode func(metadata.Definition, any) (any, error)) ([]any, error) {
	pk := et.PrimaryKey()
	if len(pk) == 0 {
		return nil, apperror.NewInvalidInput(et.Name() + " has no primary key")
	}
	if len(values) != len(pk) {
		return nil, apperror.NewInvalidInput(
			fmt.Sprintf("%s key has %d attributes, got %d values", et.Name(), len(pk), len(values)))
	}
	key := make([]any, len(pk))
	for i, a := range pk {
		def, _ := et.Definition(a)
		v, err := decode(def, values[i])
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, apperror.NewInvalidInput(fmt.Sprintf("%s key value %s is null", et.Name(), a.Name))
		}
		key[i] = v
	}
	return key, nil
}
