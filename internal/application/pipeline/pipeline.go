package pipeline

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// Common errors.
var (
	ErrNotSuspended      = errors.New("operation is not suspended")
	ErrUnknownProcessor  = errors.New("unknown processor")
	ErrDuplicateName     = errors.New("duplicate processor name")
	ErrProcessorRequired = errors.New("processor cannot be disabled")
)

// Metrics records per processor timings.
type Metrics interface {
	// ObserveStageDuration records how long a processor took and how it ended.
	ObserveStageDuration(ctx context.Context, processor string, outcome string, duration time.Duration)
}

// StepResult tracks the execution of an individual processor.
type StepResult struct {
	Processor   string
	Outcome     Outcome
	Error       error
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Report is the consolidated outcome of one pass through the chain.
type Report struct {
	Operation provisioning.Operation
	// Outcome is OutcomeContinue when every processor let the operation
	// through.
	Outcome Outcome
	// StoppedAt names the processor that closed or suspended the chain.
	StoppedAt   string
	StepResults []StepResult
	CompletedAt time.Time
}

// Option configures a Pipeline.
type Option func(*config)

type config struct{ disabled []string }

// WithDisabled removes the named processors from the chain. Disabling a
// processor that is not closable fails construction.
func WithDisabled(names ...string) Option {
	return func(c *config) { c.disabled = append(c.disabled, names...) }
}

// Pipeline is an ordered, immutable chain of processors.
type Pipeline struct {
	processors []Processor

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// New sorts processors by ascending order once. Processors sharing an order
// keep their registration order.
func New(
	processors []Processor,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics Metrics,
	opts ...Option,
) (*Pipeline, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	seen := make(map[string]struct{}, len(processors))
	chain := make([]Processor, 0, len(processors))
	for _, p := range processors {
		if _, dup := seen[p.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name())
		}
		seen[p.Name()] = struct{}{}

		if !slices.Contains(cfg.disabled, p.Name()) {
			chain = append(chain, p)
			continue
		}
		if !p.Closable() {
			return nil, fmt.Errorf("%w: %s", ErrProcessorRequired, p.Name())
		}
	}
	for _, name := range cfg.disabled {
		if _, ok := seen[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
		}
	}

	slices.SortStableFunc(chain, func(a, b Processor) int { return cmp.Compare(a.Order(), b.Order()) })

	return &Pipeline{
		processors: chain,
		logger:     logger.With("component", "provisioning_pipeline"),
		tracer:     tracer,
		metrics:    metrics,
	}, nil
}

// Processors returns the chain in execution order.
func (p *Pipeline) Processors() []Processor { return slices.Clone(p.processors) }

// Run passes op through the whole chain.
func (p *Pipeline) Run(ctx context.Context, op provisioning.Operation) (Report, error) {
	return p.run(ctx, op, 0)
}

// Resume re-enters the chain right after the processor that suspended op.
func (p *Pipeline) Resume(ctx context.Context, op provisioning.Operation) (Report, error) {
	if !op.IsSuspended() {
		return Report{Operation: op}, ErrNotSuspended
	}
	idx := slices.IndexFunc(p.processors, func(proc Processor) bool { return proc.Name() == op.SuspendedAt })
	if idx < 0 {
		return Report{Operation: op}, fmt.Errorf("%w: %s", ErrUnknownProcessor, op.SuspendedAt)
	}
	op = op.Clone()
	op.SuspendedAt = ""
	return p.run(ctx, op, idx+1)
}

func (p *Pipeline) run(ctx context.Context, op provisioning.Operation, start int) (Report, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.String("operation_id", op.ID.String()),
		attribute.String("operation_type", string(op.Type)),
		attribute.Int("start", start),
	))
	defer span.End()

	report := Report{
		Operation:   op,
		Outcome:     OutcomeContinue,
		StepResults: make([]StepResult, 0, len(p.processors)-start),
	}

	for _, proc := range p.processors[start:] {
		current := report.Operation
		if !proc.Supports(current) || !proc.Conditional(ctx, current) {
			continue
		}

		step := StepResult{Processor: proc.Name(), StartedAt: time.Now()}
		res, err := p.process(ctx, proc, current)
		step.CompletedAt = time.Now()
		step.Duration = step.CompletedAt.Sub(step.StartedAt)
		step.Outcome = res.Outcome
		p.metrics.ObserveStageDuration(ctx, proc.Name(), res.Outcome.String(), step.Duration)

		if err != nil {
			step.Error = err
			report.StepResults = append(report.StepResults, step)
			report.StoppedAt = proc.Name()
			report.CompletedAt = time.Now()
			span.RecordError(err)
			span.SetStatus(codes.Error, "processor failed")
			p.logger.Error(ctx, "processor failed",
				"processor", proc.Name(),
				"operation_id", current.ID,
				"error", err,
			)
			return report, fmt.Errorf("processor %s failed: %w", proc.Name(), err)
		}

		report.StepResults = append(report.StepResults, step)
		report.Operation = res.Operation

		switch res.Outcome {
		case OutcomeClosed:
			report.Outcome = OutcomeClosed
			report.StoppedAt = proc.Name()
		case OutcomeSuspended:
			report.Outcome = OutcomeSuspended
			report.StoppedAt = proc.Name()
			report.Operation = report.Operation.Clone()
			report.Operation.SuspendedAt = proc.Name()
		}
		if report.Outcome != OutcomeContinue {
			span.AddEvent("chain stopped", trace.WithAttributes(
				attribute.String("processor", proc.Name()),
				attribute.String("outcome", res.Outcome.String()),
			))
			break
		}
	}

	report.CompletedAt = time.Now()
	span.SetAttributes(attribute.String("result_state", string(report.Operation.Result.State)))
	span.SetStatus(codes.Ok, "pipeline completed")
	return report, nil
}

func (p *Pipeline) process(ctx context.Context, proc Processor, op provisioning.Operation) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+proc.Name(), trace.WithAttributes(
		attribute.Int("order", proc.Order()),
	))
	defer span.End()

	res, err := proc.Process(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "processor returned error")
		return Result{Operation: op, Outcome: OutcomeClosed}, err
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	return res, nil
}
