package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/query"
	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/relation"
	"github.com/sheetql/sheetql/pkg/storage/storagewrappers"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

// Query accumulates conditions, sorting, windowing, projection and relations
// for one execution. The chain methods mutate and return the same Query.
// Executing it a second time returns ErrQueryConsumed.
type Query struct {
	repo      *Repository
	builder   *query.Builder
	specs     []relation.Spec
	base      []*record.Record
	preloaded bool
	consumed  bool

	// err is the first invalid relation declaration, reported on execution.
	err error
}

func newQuery(repo *Repository, base []*record.Record, preloaded bool) *Query {
	return &Query{
		repo:      repo,
		builder:   query.NewBuilder(),
		base:      base,
		preloaded: preloaded,
	}
}

// Where keeps rows whose column equals value.
func (q *Query) Where(column string, value any) *Query {
	q.builder.Where(column, value)
	return q
}

// WhereOp keeps rows whose column matches value under op.
func (q *Query) WhereOp(column string, op query.Operator, value any) *Query {
	q.builder.WhereOp(column, op, value)
	return q
}

// OrWhere adds, from the whole collection, rows whose column equals value.
func (q *Query) OrWhere(column string, value any) *Query {
	q.builder.OrWhere(column, value)
	return q
}

// OrWhereOp adds, from the whole collection, rows whose column matches value under op.
func (q *Query) OrWhereOp(column string, op query.Operator, value any) *Query {
	q.builder.OrWhereOp(column, op, value)
	return q
}

// WhereIn keeps rows whose column is one of values.
func (q *Query) WhereIn(column string, values []string) *Query {
	q.builder.WhereIn(column, values)
	return q
}

func (q *Query) Select(columns ...string) *Query {
	q.builder.Select(columns...)
	return q
}

func (q *Query) OrderBy(column string, direction string) *Query {
	q.builder.OrderBy(column, direction)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.builder.SetLimit(n)
	return q
}

func (q *Query) Offset(n int) *Query {
	q.builder.SetOffset(n)
	return q
}

// With requests relations to be attached to the results. See relation.Parse
// for the accepted forms.
func (q *Query) With(relations ...any) *Query {
	specs, err := relation.Parse(relations...)
	if err != nil {
		if q.err == nil {
			q.err = err
		}
		return q
	}
	q.specs = append(q.specs, specs...)
	return q
}

// Get runs the query. Columns, when given, replace any Select.
func (q *Query) Get(ctx context.Context, columns ...string) ([]*record.Record, error) {
	if len(columns) > 0 {
		q.builder.Select(columns...)
	}

	var out []*record.Record
	err := q.execute(ctx, "Get", func(ctx context.Context, ex *execution) (int, error) {
		rows, err := q.builder.Run(ctx, ex.base, ex.source)
		if err != nil {
			return 0, err
		}
		if err := ex.resolve(ctx, rows); err != nil {
			return 0, err
		}
		out = rows
		return len(rows), nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// First returns the first row of the query limited to one row, or nil.
func (q *Query) First(ctx context.Context, columns ...string) (*record.Record, error) {
	q.builder.SetLimit(1)
	rows, err := q.Get(ctx, columns...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Paginate returns page (1-based) of perPage rows of the query result.
// Relations are resolved on the rows of that page only.
func (q *Query) Paginate(ctx context.Context, perPage, page int) (query.Page, error) {
	var out query.Page
	err := q.execute(ctx, "Paginate", func(ctx context.Context, ex *execution) (int, error) {
		rows, err := q.builder.Run(ctx, ex.base, ex.source)
		if err != nil {
			return 0, err
		}
		out = query.Paginate(rows, perPage, page)
		if err := ex.resolve(ctx, out.Data); err != nil {
			return 0, err
		}
		return len(out.Data), nil
	})
	if err != nil {
		return query.Page{}, err
	}
	return out, nil
}

// Count returns the number of rows the query yields. Relations do not change
// the count and are not resolved.
func (q *Query) Count(ctx context.Context) (int, error) {
	var n int
	err := q.execute(ctx, "Count", func(ctx context.Context, ex *execution) (int, error) {
		rows, err := q.builder.Run(ctx, ex.base, ex.source)
		if err != nil {
			return 0, err
		}
		n = len(rows)
		return n, nil
	})
	return n, err
}

// execution is the per-run state of a Query.
type execution struct {
	repo   *Repository
	store  *storagewrappers.InstrumentedStore
	base   []*record.Record
	source query.Source
	specs  []relation.Spec
}

func (ex *execution) resolve(ctx context.Context, rows []*record.Record) error {
	if len(ex.specs) == 0 {
		return nil
	}
	resolver := relation.NewResolver(ex.repo.registry, ex.repo.fetcher(ex.store), ex.repo.logger)
	return resolver.Resolve(ctx, ex.repo.entity, rows, ex.specs)
}

func (q *Query) execute(ctx context.Context, operation string, fn func(context.Context, *execution) (int, error)) error {
	if q.consumed {
		return ErrQueryConsumed
	}
	q.consumed = true
	if q.err != nil {
		return q.err
	}

	repo := q.repo
	ctx = logger.ContextWithQueryID(ctx, uuid.NewString())
	ctx, span := tracer.Start(ctx, "repository."+operation, trace.WithAttributes(
		attribute.String("entity", repo.entity.Name),
		attribute.String("collection", repo.entity.Collection),
	))
	defer span.End()

	start := time.Now()
	ex := &execution{
		repo:  repo,
		store: storagewrappers.NewInstrumentedStore(repo.store),
		specs: q.specs,
	}
	ex.source = func(ctx context.Context) ([]*record.Record, error) {
		return repo.read(ctx, ex.store, repo.entity.Collection)
	}

	if q.preloaded {
		ex.base = q.base
	} else {
		base, err := ex.source(ctx)
		if err != nil {
			telemetry.TraceError(span, err)
			return err
		}
		ex.base = base
	}

	n, err := fn(ctx, ex)
	metrics := ex.store.GetMetrics()
	span.SetAttributes(attribute.Int64("datastore_query_count", int64(metrics.DatastoreQueryCount)))
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}

	repo.logger.DebugWithContext(ctx, "query executed",
		zap.String("entity", repo.entity.Name),
		zap.String("operation", operation),
		zap.Int("rows", n),
		zap.Int("relations", len(q.specs)),
		zap.Uint32("datastore_query_count", metrics.DatastoreQueryCount),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
