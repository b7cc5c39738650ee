package relation

import (
	"context"
	"errors"

	"github.com/emirpasic/gods/stacks/arraystack"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sheetql/sheetql/pkg/logger"
	"github.com/sheetql/sheetql/pkg/record"
	"github.com/sheetql/sheetql/pkg/telemetry"
)

var tracer = otel.Tracer("sheetql/pkg/relation")

var (
	// ErrCycleDetected marks a relation skipped because it is already being
	// resolved further up the chain.
	ErrCycleDetected = errors.New("circular relation detected")
	// ErrUnknownRelation marks a relation the entity does not declare.
	ErrUnknownRelation = errors.New("relation not found")
	// ErrUnknownEntity marks a relation whose related entity is not registered.
	ErrUnknownEntity = errors.New("related entity not registered")
)

// Resolver resolves relation specs onto row batches. It keeps the stack of
// relations in progress, so one Resolver serves one query and is not safe
// for concurrent use.
type Resolver struct {
	registry   *Registry
	fetcher    Fetcher
	logger     logger.Logger
	inProgress *arraystack.Stack
}

// NewResolver returns a resolver over the given registry and fetcher.
func NewResolver(registry *Registry, fetcher Fetcher, l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &Resolver{
		registry:   registry,
		fetcher:    fetcher,
		logger:     l,
		inProgress: arraystack.New(),
	}
}

// Resolve loads and attaches every spec, in order, onto rows of entity.
// Nested specs are resolved depth-first before the next sibling. Relations
// that form a cycle or are not declared are skipped with a warning; only
// fetch failures are returned.
func (r *Resolver) Resolve(ctx context.Context, entity *Entity, rows []*record.Record, specs []Spec) error {
	if len(specs) == 0 || len(rows) == 0 {
		return nil
	}

	for _, spec := range specs {
		if err := r.resolveOne(ctx, entity, rows, spec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) resolveOne(ctx context.Context, entity *Entity, rows []*record.Record, spec Spec) error {
	if r.contains(spec.Name) {
		r.skip(ctx, entity, spec, ErrCycleDetected)
		return nil
	}

	rel, ok := entity.Relation(spec.Name)
	if !ok {
		r.skip(ctx, entity, spec, ErrUnknownRelation)
		return nil
	}

	related, ok := r.registry.Entity(rel.Related)
	if !ok {
		r.skip(ctx, entity, spec, ErrUnknownEntity)
		return nil
	}

	ctx, span := tracer.Start(ctx, "relation.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity", entity.Name),
		attribute.String("relation", rel.Name),
		attribute.String("kind", string(rel.Kind)),
		attribute.Int("parents", len(rows)),
	)

	r.inProgress.Push(spec.Name)
	defer r.inProgress.Pop()

	loaded, err := Load(ctx, r.fetcher, rel, related, rows)
	if err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	span.SetAttributes(attribute.Int("related", len(loaded.Rows)))

	if len(spec.Nested) > 0 && len(loaded.Rows) > 0 {
		if err := r.Resolve(ctx, related, loaded.Rows, spec.Nested); err != nil {
			return err
		}
	}

	loaded.Attach(rows)

	r.logger.DebugWithContext(ctx, "relation resolved",
		zap.String("entity", entity.Name),
		zap.String("relation", rel.Name),
		zap.String("kind", string(rel.Kind)),
		zap.Int("parents", len(rows)),
		zap.Int("related", len(loaded.Rows)),
	)
	return nil
}

func (r *Resolver) contains(name string) bool {
	for _, v := range r.inProgress.Values() {
		if v == name {
			return true
		}
	}
	return false
}

func (r *Resolver) skip(ctx context.Context, entity *Entity, spec Spec, reason error) {
	r.logger.WarnWithContext(ctx, reason.Error(),
		zap.String("entity", entity.Name),
		zap.String("relation", spec.Name),
	)
}
