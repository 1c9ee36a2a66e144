package postgres

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"entigraph/internal/core/apperror"
	"entigraph/internal/core/tx"
	"entigraph/internal/edit"
	"entigraph/internal/entity"
	"entigraph/internal/event"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

// Finder loads a single entity by attribute values. Repository implements it.
type Finder interface {
	Find(ctx context.Context, et *metadata.EntityType, where map[metadata.Attribute]any) (*entity.Entity, error)
}

// Resolver reloads foreign keys cleared by reference column writes. It is
// safe for concurrent use across edit states.
type Resolver struct {
	domain *metadata.Domain
	finder Finder
	txm    tx.ReadOnlyManager

	mu      sync.Mutex
	pending map[*edit.State]map[metadata.Attribute]struct{}
}

// NewResolver creates a resolver looking up referenced types in domain.
// When txm is not nil, the lookups of one Resolve or ResolveLoaded call share a
// read-only transaction.
func NewResolver(domain *metadata.Domain, finder Finder, txm tx.ReadOnlyManager) *Resolver {
	return &Resolver{
		domain:  domain,
		finder:  finder,
		txm:     txm,
		pending: make(map[*edit.State]map[metadata.Attribute]struct{}),
	}
}

// Attach queues every foreign key of s that gets invalidated until the next
// Resolve. Cancelling the subscription stops queueing and drops the queue.
func (r *Resolver) Attach(s *edit.State) *event.Subscription {
	sub := s.OnInvalidated(func(fk metadata.Attribute) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.pending[s] == nil {
			r.pending[s] = make(map[metadata.Attribute]struct{})
		}
		r.pending[s][fk] = struct{}{}
	})
	return event.NewSubscription(func() {
		sub.Cancel()
		r.mu.Lock()
		delete(r.pending, s)
		r.mu.Unlock()
	})
}

// Pending returns the queued foreign keys of s in declaration order.
func (r *Resolver) Pending(s *edit.State) []metadata.Attribute {
	r.mu.Lock()
	queued := r.pending[s]
	r.mu.Unlock()

	var out []metadata.Attribute
	for _, def := range s.Type().Definitions() {
		if _, ok := queued[def.Attribute()]; ok {
			out = append(out, def.Attribute())
		}
	}
	return out
}

// Resolve loads the referenced entity of every queued foreign key of s from
// its current reference columns. A foreign key with a null column stays null.
// Lookups that fail are reported together; the rest are still resolved.
func (r *Resolver) Resolve(ctx context.Context, s *edit.State) error {
	ctx, span := tracer.Start(ctx, "resolver.resolve", trace.WithAttributes(attribute.String("entity", s.Type().Name())))
	defer span.End()

	fks := r.Pending(s)
	r.mu.Lock()
	delete(r.pending, s)
	r.mu.Unlock()

	if len(fks) == 0 {
		return nil
	}

	var errs []error
	err := r.readOnly(ctx, func(ctx context.Context) error {
		for _, fk := range fks {
			if err := r.resolve(ctx, s, fk); err != nil {
				logger.Warn(ctx, "foreign key not resolved", "entity", s.Type().Name(), "attribute", fk.Name, "error", err)
				errs = append(errs, err)
			}
		}
		return nil
	})
	return errors.Join(append(errs, err)...)
}

// ResolveLoaded fills every null foreign key of a freshly loaded entity
// whose reference columns are all set. The referenced entities become part of
// the loaded state, so e stays unmodified.
func (r *Resolver) ResolveLoaded(ctx context.Context, e *entity.Entity) error {
	if e.Modified() {
		return apperror.NewInvalidInput(e.String() + " has unsaved changes")
	}
	ctx, span := tracer.Start(ctx, "resolver.resolve_loaded", trace.WithAttributes(attribute.String("entity", e.EntityTypeName())))
	defer span.End()

	values := e.Values()
	resolved := 0
	var errs []error
	err := r.readOnly(ctx, func(ctx context.Context) error {
		for _, def := range e.Type().Definitions() {
			fk, ok := def.(*metadata.ForeignKey)
			if !ok || e.Get(fk.Attr) != nil {
				continue
			}
			ref, err := r.lookup(ctx, fk, e.Get)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if ref != nil {
				values[fk.Attr] = ref
				resolved++
			}
		}
		return nil
	})
	if err != nil {
		errs = append(errs, err)
	}
	if resolved > 0 {
		if err := e.Replace(values, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resolver) readOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.txm == nil {
		return fn(ctx)
	}
	return r.txm.ReadOnly(ctx, fn)
}

func (r *Resolver) resolve(ctx context.Context, s *edit.State, a metadata.Attribute) error {
	if s.Get(a) != nil {
		return nil
	}
	def, _ := s.Type().Definition(a)
	fk, ok := def.(*metadata.ForeignKey)
	if !ok {
		return apperror.NewTypeMismatch(a.String(), "foreign key", def)
	}
	ref, err := r.lookup(ctx, fk, s.Get)
	if err != nil || ref == nil {
		return err
	}
	return s.SetForeignKey(a, ref)
}

// lookup finds the entity referenced by the current column values. It
// returns nil when a column is null.
func (r *Resolver) lookup(ctx context.Context, fk *metadata.ForeignKey, get func(metadata.Attribute) any) (*entity.Entity, error) {
	refType, ok := r.domain.Entity(fk.Referenced)
	if !ok {
		return nil, apperror.NewUnknownAttribute(fk.Referenced, fk.Attr.String())
	}
	where := make(map[metadata.Attribute]any, len(fk.References))
	for _, ref := range fk.References {
		v := get(ref.Column)
		if v == nil {
			return nil, nil
		}
		where[ref.Referenced] = v
	}
	return r.finder.Find(ctx, refType, where)
}
