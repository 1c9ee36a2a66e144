package postgres

import (
	"context"
	"maps"

	"github.com/georgysavva/scany/v2/pgxscan"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"entigraph/internal/core/apperror"
	"entigraph/internal/edit"
	"entigraph/internal/entity"
	"entigraph/internal/metadata"
	"entigraph/pkg/logger"
)

// Repository reads and writes entities of any registered type. Rows are
// scanned into column maps, so no Go struct per entity type is needed.
type Repository struct {
	txm        *TxManager
	entityOpts []entity.Option
}

// NewRepository creates a repository. opts are applied to every loaded entity.
func NewRepository(txm *TxManager, opts ...entity.Option) *Repository {
	return &Repository{txm: txm, entityOpts: opts}
}

// Get loads the entity of type et with the given primary key values.
func (r *Repository) Get(ctx context.Context, et *metadata.EntityType, key ...any) (*entity.Entity, error) {
	ctx, span := tracer.Start(ctx, "repository.get", trace.WithAttributes(attribute.String("entity", et.Name())))
	defer span.End()

	sql, args, err := SelectByKey(et, key...)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, et, "get "+et.Name(), key, sql, args)
}

// Find loads the first entity of type et whose stored attributes equal where.
func (r *Repository) Find(ctx context.Context, et *metadata.EntityType, where map[metadata.Attribute]any) (*entity.Entity, error) {
	ctx, span := tracer.Start(ctx, "repository.find", trace.WithAttributes(attribute.String("entity", et.Name())))
	defer span.End()

	sql, args, err := SelectWhere(et, where)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, et, "find "+et.Name(), args, sql, args)
}

func (r *Repository) load(ctx context.Context, et *metadata.EntityType, op string, key any, sql string, args []any) (*entity.Entity, error) {
	var row map[string]any
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(et.Name(), key)
		}
		logger.Error(ctx, "query failed", "op", op, "error", err)
		return nil, apperror.NewDatabase(op, err)
	}
	values, err := rowValues(et, row)
	if err != nil {
		return nil, err
	}
	return entity.Load(et, values, r.entityOpts...)
}

// Save inserts the entity of s when it was never stored and updates it
// otherwise.
func (r *Repository) Save(ctx context.Context, s *edit.State) error {
	for _, v := range s.Entity().OriginalKeyValues() {
		if v == nil {
			return r.Insert(ctx, s)
		}
	}
	if len(s.Type().PrimaryKey()) == 0 {
		return r.Insert(ctx, s)
	}
	return r.Update(ctx, s)
}

// Insert validates and inserts the entity of s, then commits s with the
// stored row so that generated columns become current.
func (r *Repository) Insert(ctx context.Context, s *edit.State) error {
	ctx, span := tracer.Start(ctx, "repository.insert", trace.WithAttributes(attribute.String("entity", s.Type().Name())))
	defer span.End()

	if err := s.ValidateAll(); err != nil {
		return err
	}
	sql, args, err := InsertStatement(s.Entity())
	if err != nil {
		return err
	}
	return r.write(ctx, s, "insert "+s.Type().Name(), sql, args)
}

// Update validates s and writes its modified columns, matching the original
// primary key. A missing row is reported as NOT_FOUND.
func (r *Repository) Update(ctx context.Context, s *edit.State) error {
	ctx, span := tracer.Start(ctx, "repository.update", trace.WithAttributes(attribute.String("entity", s.Type().Name())))
	defer span.End()

	if err := s.ValidateAll(); err != nil {
		return err
	}
	sql, args, err := UpdateStatement(s.Entity())
	if err != nil {
		return err
	}
	if sql == "" {
		return s.Commit(nil)
	}
	return r.write(ctx, s, "update "+s.Type().Name(), sql, args)
}

func (r *Repository) write(ctx context.Context, s *edit.State, op, sql string, args []any) error {
	et := s.Type()
	var row map[string]any
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...)
	})
	if err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(et.Name(), s.Entity().OriginalKeyValues())
		}
		logger.Error(ctx, "statement failed", "op", op, "error", err)
		return apperror.NewDatabase(op, err)
	}

	stored, err := rowValues(et, row)
	if err != nil {
		return err
	}
	values := s.CurrentValues()
	maps.Copy(values, stored)
	saved, err := entity.Load(et, values, r.entityOpts...)
	if err != nil {
		return err
	}
	return s.Commit(saved)
}
