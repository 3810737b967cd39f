// Package provisioning wires the provisioning processors into a pipeline
// and exposes the entry points the rest of the platform calls.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/provisioner/internal/application/breaker"
	"github.com/ahrav/provisioner/internal/application/pipeline"
	"github.com/ahrav/provisioner/internal/application/reconcile"
	"github.com/ahrav/provisioner/internal/domain/approval"
	breakerDomain "github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/pkg/common/keylock"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// Common errors.
var (
	ErrOperationSuspended = errors.New("operation is waiting for approval")
	ErrCancelNotAllowed   = errors.New("cancel operations cannot be submitted directly")
)

// Config holds the tunables of the service.
type Config struct {
	// Enabled is the global provisioning switch.
	Enabled bool
	// MaxInFlight bounds asynchronous and batch submissions.
	MaxInFlight int64
	// DisabledProcessors removes closable processors from the chain.
	DisabledProcessors []string
}

// Dependencies are the collaborators the service needs.
type Dependencies struct {
	Operations provisioning.Repository
	Systems    system.Repository
	Mappings   mapping.Resolver
	Gateway    connector.Gateway
	Breaker    *breaker.Service
	Approver   approval.Approver
	Notifier   notification.Notifier
}

// ProvisionRequest describes a change of an identity-platform entity that
// must reach a target system.
type ProvisionRequest struct {
	SystemID        uuid.UUID
	EntityType      provisioning.EntityType
	EntityID        string
	SystemEntityUID string
	Type            provisioning.OperationType
	// Attributes are the entity's current identity attributes; they are
	// projected through the active mapping set.
	Attributes       map[string]any
	SecretAttributes []string
	// TransactionID correlates operations of one originating change. A new
	// one is generated when empty.
	TransactionID uuid.UUID
	// Async queues the operation instead of waiting for its outcome.
	Async bool
}

// Service runs provisioning operations through the processor chain.
// Operations on the same target object are serialized.
type Service struct {
	ops      provisioning.Repository
	engine   *reconcile.Engine
	breaker  *breaker.Service
	pipeline *pipeline.Pipeline

	locks       *keylock.Locker
	sem         *semaphore.Weighted
	maxInFlight int64
	wg          sync.WaitGroup

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// NewService builds the processor chain and the service around it.
func NewService(
	cfg Config,
	deps Dependencies,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics Metrics,
) (*Service, error) {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	log := logger.With("component", "provisioning_service")
	rec := recorder{
		ops:      deps.Operations,
		systems:  deps.Systems,
		notifier: deps.Notifier,
		logger:   log,
	}
	engine := reconcile.NewEngine(deps.Mappings, deps.Gateway, tracer)

	processors := []pipeline.Processor{
		&disabledGate{Base: pipeline.NewBase(NameDisabledGate, OrderDisabledGate), recorder: rec, enabled: cfg.Enabled},
		&approvalGate{Base: pipeline.NewBase(NameApproval, OrderApproval), recorder: rec, approver: deps.Approver},
		&breakerGate{Base: pipeline.NewRequiredBase(NameBreaker, OrderBreaker), recorder: rec, breaker: deps.Breaker},
		&reconcileStep{Base: pipeline.NewBase(NameReconcile, OrderReconcile), recorder: rec, engine: engine},
		&readonlyGate{Base: pipeline.NewBase(NameReadonlyGate, OrderReadonlyGate), recorder: rec},
		&createStep{Base: pipeline.NewBase(NameCreate, OrderExecute), recorder: rec, gateway: deps.Gateway},
		&updateStep{Base: pipeline.NewBase(NameUpdate, OrderExecute), recorder: rec, gateway: deps.Gateway},
		&deleteStep{Base: pipeline.NewBase(NameDelete, OrderExecute), recorder: rec, gateway: deps.Gateway, engine: engine},
		&cancelStep{Base: pipeline.NewBase(NameCancel, OrderExecute), recorder: rec},
		&secretDelivery{Base: pipeline.NewBase(NameSecretDelivery, OrderSecretDelivery), recorder: rec},
		&cleanup{Base: pipeline.NewBase(NameCleanup, OrderCleanup), recorder: rec},
	}
	p, err := pipeline.New(processors, logger, tracer, metrics, pipeline.WithDisabled(cfg.DisabledProcessors...))
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioning pipeline: %w", err)
	}

	return &Service{
		ops:         deps.Operations,
		engine:      engine,
		breaker:     deps.Breaker,
		pipeline:    p,
		locks:       keylock.New(),
		sem:         semaphore.NewWeighted(cfg.MaxInFlight),
		maxInFlight: cfg.MaxInFlight,
		logger:      log,
		tracer:      tracer,
		metrics:     metrics,
	}, nil
}

// Submit queues op and processes it in the background.
func (s *Service) Submit(ctx context.Context, op provisioning.Operation) error {
	ctx, span := s.tracer.Start(ctx, "provisioning.Submit", trace.WithAttributes(
		attribute.String("operation_id", op.ID.String()),
		attribute.String("operation_type", string(op.Type)),
	))
	defer span.End()

	if err := s.enqueue(ctx, op); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to queue operation")
		return err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire slot")
		return fmt.Errorf("operation %s queued but not started: %w", op.ID, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		bg := context.WithoutCancel(ctx)
		if _, err := s.run(bg, op, false); err != nil {
			s.logger.Error(bg, "async provisioning failed", "operation_id", op.ID, "error", err)
		}
	}()

	span.AddEvent("async run started")
	span.SetStatus(codes.Ok, "operation submitted")
	return nil
}

// SubmitSync queues op and waits for the pipeline to finish with it.
func (s *Service) SubmitSync(ctx context.Context, op provisioning.Operation) (provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.SubmitSync", trace.WithAttributes(
		attribute.String("operation_id", op.ID.String()),
		attribute.String("operation_type", string(op.Type)),
	))
	defer span.End()

	if err := s.enqueue(ctx, op); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to queue operation")
		return op, err
	}

	out, err := s.run(ctx, op, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return out, err
	}
	span.SetAttributes(attribute.String("result_state", string(out.Result.State)))
	span.SetStatus(codes.Ok, "operation processed")
	return out, nil
}

// SubmitBatch processes ops concurrently and returns their final snapshots
// in input order. A failing operation never stops its siblings; the
// returned error joins every failure.
func (s *Service) SubmitBatch(ctx context.Context, ops []provisioning.Operation) ([]provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.SubmitBatch", trace.WithAttributes(
		attribute.Int("operations", len(ops)),
	))
	defer span.End()

	return s.batch(ctx, span, ops, s.SubmitSync)
}

func (s *Service) batch(
	ctx context.Context,
	span trace.Span,
	ops []provisioning.Operation,
	fn func(context.Context, provisioning.Operation) (provisioning.Operation, error),
) ([]provisioning.Operation, error) {
	results := make([]provisioning.Operation, len(ops))
	errs := make([]error, len(ops))

	var g errgroup.Group
	g.SetLimit(int(s.maxInFlight))
	for i, op := range ops {
		g.Go(func() error {
			results[i], errs[i] = fn(ctx, op)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch had failures")
		return results, err
	}
	span.SetStatus(codes.Ok, "batch processed")
	return results, nil
}

// Provision turns a change event into an operation and submits it.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.Provision", trace.WithAttributes(
		attribute.String("system_id", req.SystemID.String()),
		attribute.String("entity_type", string(req.EntityType)),
		attribute.String("operation_type", string(req.Type)),
	))
	defer span.End()

	// Without a usable mapping the raw attributes are carried along so the
	// pipeline records the configuration error on the operation.
	desired := maps.Clone(req.Attributes)
	if req.Type != provisioning.OpDelete {
		if set, err := s.engine.MappingSet(ctx, req.SystemID, req.EntityType); err == nil {
			desired = set.Desired(req.Attributes)
		}
	}

	op, err := provisioning.NewOperation(req.Type, req.SystemID, req.EntityType, req.EntityID, req.SystemEntityUID, desired)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid provisioning request")
		return provisioning.Operation{}, fmt.Errorf("failed to create operation: %w", err)
	}
	if req.TransactionID != uuid.Nil {
		op.TransactionID = req.TransactionID
	}
	op.Context.SecretAttributes = append(op.Context.SecretAttributes, req.SecretAttributes...)
	span.SetAttributes(attribute.String("operation_id", op.ID.String()))

	if req.Async {
		return op, s.Submit(ctx, op)
	}
	return s.SubmitSync(ctx, op)
}

// Resume continues a suspended operation after its approval decision.
// A rejection cancels the operation.
func (s *Service) Resume(ctx context.Context, id uuid.UUID, approved bool) (provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.Resume", trace.WithAttributes(
		attribute.String("operation_id", id.String()),
		attribute.Bool("approved", approved),
	))
	defer span.End()

	op, err := s.ops.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find operation")
		return provisioning.Operation{}, fmt.Errorf("failed to find operation %s: %w", id, err)
	}
	if !op.IsSuspended() {
		span.RecordError(pipeline.ErrNotSuspended)
		span.SetStatus(codes.Error, "operation not suspended")
		return op, fmt.Errorf("operation %s: %w", id, pipeline.ErrNotSuspended)
	}

	if approved {
		op = op.WithApproval()
	} else {
		op = rejected(op)
	}

	out, err := s.run(ctx, op, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return out, err
	}
	span.SetStatus(codes.Ok, "operation resumed")
	return out, nil
}

// Cancel cancels a queued operation. Canceling an operation that already
// finished is a no-op that returns its final snapshot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.Cancel", trace.WithAttributes(
		attribute.String("operation_id", id.String()),
	))
	defer span.End()

	op, err := s.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find operation")
		return provisioning.Operation{}, err
	}
	if op.IsTerminal() {
		span.AddEvent("already terminal")
		return op, nil
	}

	canceled := op.WithType(provisioning.OpCancel)
	canceled.SuspendedAt = ""
	out, err := s.run(ctx, canceled, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		return out, err
	}
	span.SetStatus(codes.Ok, "operation canceled")
	return out, nil
}

// Retry runs a queued operation through the chain again. Reconciliation
// recomputes the delta, so retrying is safe.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (provisioning.Operation, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.Retry", trace.WithAttributes(
		attribute.String("operation_id", id.String()),
	))
	defer span.End()

	op, err := s.ops.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to find operation")
		return provisioning.Operation{}, fmt.Errorf("failed to find operation %s: %w", id, err)
	}

	out, err := s.retry(ctx, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retry failed")
		return out, err
	}
	span.SetStatus(codes.Ok, "operation retried")
	return out, nil
}

func (s *Service) retry(ctx context.Context, op provisioning.Operation) (provisioning.Operation, error) {
	if op.IsSuspended() {
		return op, fmt.Errorf("operation %s: %w", op.ID, ErrOperationSuspended)
	}
	return s.run(ctx, op, false)
}

// RetryFailed retries up to limit queued operations whose last attempt
// failed with a retryable error. It returns how many were retried.
func (s *Service) RetryFailed(ctx context.Context, limit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "provisioning.RetryFailed", trace.WithAttributes(
		attribute.Int("limit", limit),
	))
	defer span.End()

	retryable, err := s.ops.FindRetryable(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list failed operations")
		return 0, fmt.Errorf("failed to list failed operations: %w", err)
	}
	span.SetAttributes(attribute.Int("retryable", len(retryable)))
	if len(retryable) == 0 {
		return 0, nil
	}

	s.logger.Info(ctx, "retrying failed operations", "count", len(retryable))
	_, err = s.batch(ctx, span, retryable, s.retry)
	return len(retryable), err
}

// Get returns a queued or archived operation.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (provisioning.Operation, error) {
	op, err := s.ops.FindByID(ctx, id)
	if errors.Is(err, provisioning.ErrOperationNotFound) {
		op, err = s.ops.FindArchived(ctx, id)
	}
	if err != nil {
		return provisioning.Operation{}, fmt.Errorf("failed to find operation %s: %w", id, err)
	}
	return op, nil
}

// Unblock resets the provisioning break of a system and operation type.
func (s *Service) Unblock(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) error {
	return s.breaker.Unblock(ctx, systemID, t)
}

// BreakerState reports the provisioning break state of a system and type.
func (s *Service) BreakerState(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) (breakerDomain.State, error) {
	return s.breaker.State(ctx, systemID, t)
}

// Wait blocks until every asynchronous submission finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) enqueue(ctx context.Context, op provisioning.Operation) error {
	if op.Type == provisioning.OpCancel {
		return ErrCancelNotAllowed
	}
	if err := s.ops.Save(ctx, op); err != nil {
		return fmt.Errorf("failed to queue operation %s: %w", op.ID, err)
	}
	return nil
}

// run processes op while holding the lock of its target object.
func (s *Service) run(ctx context.Context, op provisioning.Operation, resume bool) (provisioning.Operation, error) {
	log := logger.NewLoggerContext(s.logger.With(
		"operation_id", op.ID,
		"system_id", op.SystemID,
		"operation_type", op.Type,
	))

	unlock, err := s.locks.Lock(ctx, op.LockKey())
	if err != nil {
		return op, fmt.Errorf("failed to lock target object of operation %s: %w", op.ID, err)
	}
	defer unlock()

	s.metrics.AddInFlight(ctx, 1)
	defer s.metrics.AddInFlight(ctx, -1)

	start := time.Now()
	op = op.Clone()
	op.Attempts++

	var report pipeline.Report
	if resume {
		report, err = s.pipeline.Resume(ctx, op)
	} else {
		report, err = s.pipeline.Run(ctx, op)
	}
	out := report.Operation
	if err != nil {
		log.Error(ctx, "provisioning pipeline failed", "error", err)
		return out, err
	}

	if report.Outcome == pipeline.OutcomeSuspended {
		if err := s.ops.Save(ctx, out); err != nil {
			return out, fmt.Errorf("failed to save suspended operation %s: %w", out.ID, err)
		}
	}

	s.metrics.IncOperations(ctx, string(out.Type), string(out.Result.State))
	s.metrics.ObserveOperationDuration(ctx, string(out.Type), time.Since(start))

	log.Add("state", out.Result.State, "code", out.Result.Code, "attempt", out.Attempts)
	if report.StoppedAt != "" {
		log.Add("stopped_at", report.StoppedAt)
	}
	log.Info(ctx, "provisioning operation processed")
	return out, nil
}
