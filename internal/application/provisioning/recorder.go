package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// recorder persists results and tells the provisioning topic about them.
// Every processor that ends an attempt goes through it.
type recorder struct {
	ops      provisioning.Repository
	systems  system.Repository
	notifier notification.Notifier
	logger   *logger.Logger
}

// record saves op with result and notifies. A save failure is returned; a
// notification failure is only logged.
func (r recorder) record(ctx context.Context, op provisioning.Operation, result provisioning.Result) (provisioning.Operation, error) {
	out := op.WithResult(result)
	if err := r.ops.Save(ctx, out); err != nil {
		return out, fmt.Errorf("failed to save operation %s: %w", op.ID, err)
	}

	logArgs := []any{
		"operation_id", out.ID,
		"system_id", out.SystemID,
		"operation_type", out.Type,
		"state", result.State,
		"code", result.Code,
	}
	if result.State == provisioning.StateException {
		r.logger.Error(ctx, "provisioning operation failed", append(logArgs, "cause", result.Cause)...)
	} else {
		r.logger.Info(ctx, "provisioning operation recorded", logArgs...)
	}

	r.notify(ctx, out)
	return out, nil
}

// fail records err as the EXCEPTION outcome of op.
func (r recorder) fail(ctx context.Context, op provisioning.Operation, err error, fallback provisioning.Code) (provisioning.Operation, error) {
	return r.record(ctx, op, provisioning.ExceptionResult(err, fallback))
}

func (r recorder) notify(ctx context.Context, op provisioning.Operation) {
	msg := notification.NewMessage(levelOf(op.Result.State), op.Result.Model, op.Result.Cause, map[string]string{
		"operation_id":   op.ID.String(),
		"system_id":      op.SystemID.String(),
		"entity_type":    string(op.EntityType),
		"entity_id":      op.EntityID,
		"uid":            op.SystemEntityUID,
		"operation_type": string(op.Type),
		"state":          string(op.Result.State),
		"code":           string(op.Result.Code),
		"transaction_id": op.TransactionID.String(),
	})
	if err := r.notifier.Send(ctx, notification.TopicProvisioning, msg); err != nil {
		r.logger.Warn(ctx, "failed to send provisioning notification", "operation_id", op.ID, "error", err)
	}
}

func levelOf(state provisioning.State) notification.Level {
	switch state {
	case provisioning.StateExecuted:
		return notification.LevelSuccess
	case provisioning.StateException:
		return notification.LevelError
	case provisioning.StateBlocked, provisioning.StateNotExecuted:
		return notification.LevelWarning
	default:
		return notification.LevelInfo
	}
}

// loadSystem reads the target system of op. A missing system is a
// configuration error, anything else an internal one.
func (r recorder) loadSystem(ctx context.Context, op provisioning.Operation) (system.System, error) {
	sys, err := r.systems.FindByID(ctx, op.SystemID)
	if errors.Is(err, system.ErrSystemNotFound) {
		return sys, provisioning.NewError(provisioning.CodeSystemNotFound, err)
	}
	if err != nil {
		return sys, provisioning.NewError(provisioning.CodeInternal, fmt.Errorf("failed to load system %s: %w", op.SystemID, err))
	}
	return sys, nil
}
