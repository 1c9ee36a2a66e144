// Package tx declares the transaction contract used by entity storage.
// The PostgreSQL implementation lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction carried by the context passed to fn.
// An error from fn rolls the transaction back; nested calls join the
// transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager adds read-only transactions. Foreign key resolution reads
// every referenced row of one edit inside a single read-only transaction so
// the lookups see one snapshot.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
