// Package breaker implements the provisioning break: a per system and
// operation type rate limiter that warns, then blocks, and only reopens on
// an explicit unblock.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/domain/breaker"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/pkg/common/logger"
	"github.com/ahrav/provisioner/pkg/common/timeutil"
)

// Decision is the verdict for one attempt.
type Decision int

const (
	// Allow lets the operation through.
	Allow Decision = iota
	// Warn lets the operation through after the warning threshold was hit.
	Warn
	// Block rejects the operation; this attempt tripped the disable limit.
	Block
	// AlreadyBlocked rejects the operation; the type was blocked before.
	AlreadyBlocked
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Warn:
		return "warn"
	case Block:
		return "block"
	case AlreadyBlocked:
		return "already_blocked"
	default:
		return "unknown"
	}
}

// Rejects reports whether the operation must not reach the target.
func (d Decision) Rejects() bool { return d == Block || d == AlreadyBlocked }

// Metrics records breaker escalations.
type Metrics interface {
	IncBreakWarnings(ctx context.Context, opType string)
	IncBreakBlocks(ctx context.Context, opType string)
}

// Service evaluates and administers provisioning breaks.
type Service struct {
	configs    breaker.ConfigRepository
	windows    breaker.WindowStore
	recipients breaker.RecipientResolver
	systems    system.Repository
	notifier   notification.Notifier
	clock      timeutil.Provider

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics Metrics
}

// NewService creates a breaker service.
func NewService(
	configs breaker.ConfigRepository,
	windows breaker.WindowStore,
	recipients breaker.RecipientResolver,
	systems system.Repository,
	notifier notification.Notifier,
	clock timeutil.Provider,
	logger *logger.Logger,
	tracer trace.Tracer,
	metrics Metrics,
) *Service {
	return &Service{
		configs:    configs,
		windows:    windows,
		recipients: recipients,
		systems:    systems,
		notifier:   notifier,
		clock:      clock,
		logger:     logger.With("component", "provisioning_break"),
		tracer:     tracer,
		metrics:    metrics,
	}
}

// Check counts an attempt of type t on sys and decides whether it may
// proceed. The attempt itself is part of the count. An already blocked
// type is rejected without being counted.
func (s *Service) Check(ctx context.Context, sys system.System, t provisioning.OperationType) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "breaker.Check", trace.WithAttributes(
		attribute.String("system_id", sys.ID.String()),
		attribute.String("operation_type", string(t)),
	))
	defer span.End()

	if sys.IsBlocked(t) {
		span.SetAttributes(attribute.String("decision", AlreadyBlocked.String()))
		return AlreadyBlocked, nil
	}

	cfg, err := s.configs.Find(ctx, sys.ID, t)
	if errors.Is(err, breaker.ErrConfigNotFound) || (err == nil && !cfg.Active()) {
		span.SetAttributes(attribute.String("decision", Allow.String()))
		return Allow, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load break config")
		return Allow, fmt.Errorf("failed to load break config for system %s: %w", sys.ID, err)
	}

	now := s.clock.Now()
	cutoff := cfg.Cutoff(now)
	var (
		decision = Allow
		count    int
	)
	// The block bit is re-read and set under the window lock so that only
	// one concurrent attempt trips the disable limit.
	err = s.windows.Update(ctx, sys.ID, func(w *breaker.Window) error {
		current, err := s.systems.FindByID(ctx, sys.ID)
		if err != nil {
			return fmt.Errorf("failed to reload system %s: %w", sys.ID, err)
		}
		if current.IsBlocked(t) {
			decision = AlreadyBlocked
			return nil
		}

		w.Append(t, timeutil.Millis(now))
		w.Prune(cutoff)
		count = w.Count(t, cutoff)
		switch {
		case cfg.ShouldDisable(count):
			decision = Block
		case cfg.ShouldWarn(count):
			decision = Warn
		}
		if decision != Block {
			return nil
		}
		if err := s.systems.SetBlocked(ctx, sys.ID, t, true); err != nil {
			return fmt.Errorf("failed to block %s on system %s: %w", t, sys.ID, err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update break window")
		return Allow, fmt.Errorf("failed to update break window for system %s: %w", sys.ID, err)
	}
	span.SetAttributes(
		attribute.Int("count", count),
		attribute.String("decision", decision.String()),
	)

	// Escalations run outside the window update.
	switch decision {
	case Block:
		s.metrics.IncBreakBlocks(ctx, string(t))
		s.logger.Warn(ctx, "provisioning break blocked operation type",
			"system_id", sys.ID, "operation_type", t, "count", count, "period", cfg.Period)
		s.escalate(ctx, notification.TopicBreakDisabled, notification.LevelError, cfg, sys, count)
	case Warn:
		s.metrics.IncBreakWarnings(ctx, string(t))
		s.logger.Warn(ctx, "provisioning break warning",
			"system_id", sys.ID, "operation_type", t, "count", count, "period", cfg.Period)
		s.escalate(ctx, notification.TopicBreakWarning, notification.LevelWarning, cfg, sys, count)
	}

	span.SetStatus(codes.Ok, "checked")
	return decision, nil
}

// escalate notifies the recipients of cfg. Failures are logged only.
func (s *Service) escalate(
	ctx context.Context,
	topic notification.Topic,
	level notification.Level,
	cfg breaker.Config,
	sys system.System,
	count int,
) {
	recipients, err := s.recipients.Recipients(ctx, cfg.ID)
	if err != nil {
		s.logger.Warn(ctx, "failed to resolve break recipients", "config_id", cfg.ID, "error", err)
		return
	}

	msg := notification.Messagef(level, "Provisioning break on "+sys.Name, map[string]string{
		"system_id":      sys.ID.String(),
		"system_name":    sys.Name,
		"operation_type": string(cfg.OperationType),
		"count":          strconv.Itoa(count),
		"period":         cfg.Period.String(),
	}, "%d %s operations on %s within %s", count, cfg.OperationType, sys.Name, cfg.Period)

	if err := s.notifier.Send(ctx, topic, msg, recipients...); err != nil {
		s.logger.Warn(ctx, "failed to send break notification", "topic", topic, "error", err)
	}
}

// Unblock clears the block bit of a type and forgets its window entries,
// returning the breaker to OPEN.
func (s *Service) Unblock(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) error {
	ctx, span := s.tracer.Start(ctx, "breaker.Unblock", trace.WithAttributes(
		attribute.String("system_id", systemID.String()),
		attribute.String("operation_type", string(t)),
	))
	defer span.End()

	if err := s.systems.SetBlocked(ctx, systemID, t, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to clear block")
		return fmt.Errorf("failed to unblock %s on system %s: %w", t, systemID, err)
	}

	err := s.windows.Update(ctx, systemID, func(w *breaker.Window) error {
		w.Reset(t)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reset window")
		return fmt.Errorf("failed to reset break window of system %s: %w", systemID, err)
	}

	s.logger.Info(ctx, "provisioning break reset", "system_id", systemID, "operation_type", t)
	span.SetStatus(codes.Ok, "unblocked")
	return nil
}

// State reports the breaker state of a system and type without counting
// an attempt.
func (s *Service) State(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) (breaker.State, error) {
	ctx, span := s.tracer.Start(ctx, "breaker.State", trace.WithAttributes(
		attribute.String("system_id", systemID.String()),
		attribute.String("operation_type", string(t)),
	))
	defer span.End()

	sys, err := s.systems.FindByID(ctx, systemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load system")
		return "", fmt.Errorf("failed to load system %s: %w", systemID, err)
	}
	if sys.IsBlocked(t) {
		return breaker.StateBlocked, nil
	}

	cfg, err := s.configs.Find(ctx, systemID, t)
	if errors.Is(err, breaker.ErrConfigNotFound) || (err == nil && !cfg.Active()) {
		return breaker.StateOpen, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load break config")
		return "", fmt.Errorf("failed to load break config for system %s: %w", systemID, err)
	}

	w, err := s.windows.Load(ctx, systemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load window")
		return "", fmt.Errorf("failed to load break window of system %s: %w", systemID, err)
	}

	if cfg.ShouldWarn(w.Count(t, cfg.Cutoff(s.clock.Now()))) {
		return breaker.StateWarned, nil
	}
	return breaker.StateOpen, nil
}
