// Package repository exposes CRUD and relation-aware queries over the
// collections of a storage.TabularStore. A Repository is bound to one entity
// of a relation.Registry; it holds no rows between calls.
package repository

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/relation"
	"github.com/sheetql/sheetql/pkg/storage"
)

var tracer = otel.Tracer("sheetql/pkg/repository")

var (
	// ErrReadFailed wraps a fetch failure surfaced under ReadPolicyStrict.
	ErrReadFailed = errors.New("read failed")
	// ErrQueryConsumed if a Query is executed a second time.
	ErrQueryConsumed = errors.New("query already executed")
	// ErrUnknownEntity if the repository is created for an entity missing from the registry.
	ErrUnknownEntity = errors.New("entity not registered")
	// ErrMissingID if update or delete is called without an id.
	ErrMissingID = errors.New("missing id")
)

// Repository is safe for concurrent use. Queries it hands out are not.
type Repository struct {
	store      storage.TabularStore
	registry   *relation.Registry
	entity     *relation.Entity
	logger     logger.Logger
	readPolicy ReadPolicy
	locks      *WriteLocks
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l logger.Logger) RepositoryOption {
	return func(r *Repository) {
		r.logger = l
	}
}

// WithReadPolicy sets how fetch failures on the read path are handled.
func WithReadPolicy(p ReadPolicy) RepositoryOption {
	return func(r *Repository) {
		r.readPolicy = p
	}
}

// WithWriteLocks shares write serialization between repositories of the
// same process that target the same collections.
func WithWriteLocks(l *WriteLocks) RepositoryOption {
	return func(r *Repository) {
		r.locks = l
	}
}

// New returns a repository for entity, looked up in registry by entity or
// collection name.
func New(store storage.TabularStore, registry *relation.Registry, entity string, opts ...RepositoryOption) (*Repository, error) {
	e, ok := registry.Lookup(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}

	r := &Repository{
		store:      store,
		registry:   registry,
		entity:     e,
		logger:     logger.NewNoopLogger(),
		readPolicy: ReadPolicyDegrade,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.locks == nil {
		r.locks = NewWriteLocks()
	}
	return r, nil
}

// Entity returns the descriptor the repository is bound to.
func (r *Repository) Entity() *relation.Entity {
	return r.entity
}

// DescribeRelations lists the relations declared on the entity, in
// declaration order.
func (r *Repository) DescribeRelations() []relation.Relation {
	return r.entity.Relations()
}

// All returns every row of the collection, without relations.
func (r *Repository) All(ctx context.Context) ([]*record.Record, error) {
	return r.Query().Get(ctx)
}

// Find returns the row whose id is exactly id, or nil.
func (r *Repository) Find(ctx context.Context, id string) (*record.Record, error) {
	ctx, span := tracer.Start(ctx, "repository.Find")
	defer span.End()

	rows, err := r.read(ctx, r.store, r.entity.Collection)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ID() == id {
			return row, nil
		}
	}
	return nil, nil
}

// Query starts a query over a fresh fetch of the collection.
func (r *Repository) Query() *Query {
	return newQuery(r, nil, false)
}

// Preload starts a query over rows instead of fetching the collection. The
// OR-list is still evaluated against a fresh fetch.
func (r *Repository) Preload(rows []*record.Record) *Query {
	return newQuery(r, rows, true)
}

// read fetches a collection under the read policy.
func (r *Repository) read(ctx context.Context, store storage.TabularStore, collection string) ([]*record.Record, error) {
	table, err := store.FetchRows(ctx, collection)
	if err == nil {
		return record.FromTable(table), nil
	}

	if r.readPolicy == ReadPolicyStrict || isCancellation(ctx, err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailed, collection, err)
	}

	r.logger.ErrorWithContext(ctx, "fetching rows failed, returning no rows",
		zap.String("collection", collection),
		zap.Error(err),
	)
	return []*record.Record{}, nil
}

// fetcher adapts store to the relation loaders, under the read policy.
func (r *Repository) fetcher(store storage.TabularStore) relation.Fetcher {
	return relation.FetcherFunc(func(ctx context.Context, collection string) ([]*record.Record, error) {
		return r.read(ctx, store, collection)
	})
}

func isCancellation(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, storage.ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
