package results

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/genprop/genprop/pkg/engine"
	"github.com/genprop/genprop/pkg/telemetry"
)

// DefaultParallelism is the number of samples bootstrapped at once when
// Builder.Parallelism is not set.
const DefaultParallelism = 4

// Builder assigns a set of sample caches against one property tree and
// combines them into result tables.
type Builder struct {
	// Tree is shared read-only by every sample.
	Tree *engine.Tree

	// Parallelism bounds the number of samples assigned concurrently.
	Parallelism int
}

// NewBuilder creates a builder for tree.
func NewBuilder(tree *engine.Tree) *Builder {
	return &Builder{Tree: tree, Parallelism: DefaultParallelism}
}

// sampleOutcome is what one sample contributes to the build.
type sampleOutcome struct {
	properties *Table[string]
	steps      *Table[StepKey]
}

// Build synchronizes and assigns every cache, then waits for all of them
// before combining the per-sample tables. Columns follow the order of caches.
// The input caches are not modified.
func (b *Builder) Build(ctx context.Context, caches ...*engine.AssignmentCache) (res *Results, err error) {
	if b.Tree == nil {
		return nil, engine.NewPermanentError("builder has no property tree", nil).
			WithCode(engine.ErrCodeValidation)
	}
	if err := validateSamples(caches); err != nil {
		return nil, err
	}

	tel := telemetry.FromTelemetryContext(ctx)
	ctx, span := b.startBuildSpan(ctx, tel, len(caches))
	logger := telemetry.FromContext(ctx).NewComponentLogger("results")
	timer := telemetry.NewTimer()

	defer func() {
		if span != nil {
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.RecordSuccess(span)
			}
			span.End()
		}
		if tel != nil {
			status := "success"
			if err != nil {
				status = "failed"
				tel.Metrics.RecordError(errorClass(err), engine.ErrorCode(err))
			}
			tel.Metrics.RecordBuildCompleted(status, timer.Duration())
		}
	}()

	parallelism := b.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	outcomes := make([]sampleOutcome, len(caches))
	assigner := engine.NewAssigner(b.Tree)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, cache := range caches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return engine.NewTransientError("build cancelled", err).
					WithCode(engine.ErrCodeCancelled).
					WithResource(cache.SampleName)
			}
			out, err := b.assignSample(gctx, assigner, cache)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	propertyParts := make([]*Table[string], len(outcomes))
	stepParts := make([]*Table[StepKey], len(outcomes))
	for i, out := range outcomes {
		propertyParts[i] = out.properties
		stepParts[i] = out.steps
	}

	res = &Results{
		tree:       b.Tree,
		properties: concat(lessString, propertyParts...),
		steps:      concat(lessStepKey, stepParts...),
	}

	logger.Zerolog().Info().
		Int("samples", len(caches)).
		Int("properties", res.properties.Len()).
		Int("steps", res.steps.Len()).
		Dur("duration", timer.Duration()).
		Msg("result tables built")

	return res, nil
}

// assignSample bootstraps one sample on a synchronized private copy of its cache.
func (b *Builder) assignSample(ctx context.Context, assigner *engine.Assigner, cache *engine.AssignmentCache) (out sampleOutcome, err error) {
	synced, flushed := engine.Reconcile(cache, b.Tree)

	sctx := telemetry.WithSampleContext(ctx, cache.SampleName)
	defer func() { telemetry.EndSampleContext(sctx, len(flushed), err) }()
	logger := telemetry.FromContext(sctx)

	if err := assigner.Assign(synced); err != nil {
		logger.WithError(err).Error("assignment failed")
		return sampleOutcome{}, fmt.Errorf("sample %q: %w", cache.SampleName, err)
	}

	out.properties, out.steps = SampleTables(synced)

	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		for _, key := range out.properties.keys {
			tel.Metrics.RecordPropertyResult(out.properties.rows[key][0].String())
		}
		for _, key := range out.steps.keys {
			tel.Metrics.RecordStepResult(out.steps.rows[key][0].String())
		}
	}

	logger.Zerolog().Debug().
		Int("flushed", len(flushed)).
		Strs("flushed_ids", flushed).
		Int("properties", out.properties.Len()).
		Int("steps", out.steps.Len()).
		Msg("sample assigned")

	return out, nil
}

// Assemble combines caches that already hold assigned results, such as those
// reloaded from a store, into result tables without re-running assignment.
func Assemble(tree *engine.Tree, caches ...*engine.AssignmentCache) (*Results, error) {
	if tree == nil {
		return nil, engine.NewPermanentError("no property tree", nil).
			WithCode(engine.ErrCodeValidation)
	}
	if err := validateSamples(caches); err != nil {
		return nil, err
	}

	propertyParts := make([]*Table[string], len(caches))
	stepParts := make([]*Table[StepKey], len(caches))
	for i, cache := range caches {
		propertyParts[i], stepParts[i] = SampleTables(cache)
	}

	return &Results{
		tree:       tree,
		properties: concat(lessString, propertyParts...),
		steps:      concat(lessStepKey, stepParts...),
	}, nil
}

func (b *Builder) startBuildSpan(ctx context.Context, tel *telemetry.Telemetry, samples int) (context.Context, trace.Span) {
	if tel == nil {
		return ctx, nil
	}
	return tel.Tracer.StartBuildSpan(ctx, b.Tree.RootID(), samples)
}

// validateSamples rejects empty and duplicate sample names, which would make
// table columns ambiguous.
func validateSamples(caches []*engine.AssignmentCache) error {
	seen := make(map[string]bool, len(caches))
	for i, cache := range caches {
		if cache == nil {
			return engine.NewPermanentError(fmt.Sprintf("cache %d is nil", i), nil).
				WithCode(engine.ErrCodeValidation)
		}
		if cache.SampleName == "" {
			return engine.NewPermanentError(fmt.Sprintf("cache %d has no sample name", i), nil).
				WithCode(engine.ErrCodeValidation)
		}
		if seen[cache.SampleName] {
			return engine.NewPermanentError("duplicate sample name", nil).
				WithCode(engine.ErrCodeValidation).
				WithResource(cache.SampleName)
		}
		seen[cache.SampleName] = true
	}
	return nil
}

func errorClass(err error) string {
	if engine.IsTransient(err) {
		return string(engine.ErrorClassTransient)
	}
	return string(engine.ErrorClassPermanent)
}
