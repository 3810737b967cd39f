package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/provisioner/internal/application/pipeline"
	"github.com/ahrav/provisioner/internal/application/reconcile"
	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/notification"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// reconcileStep resolves CREATE versus UPDATE and computes the delta.
type reconcileStep struct {
	pipeline.Base
	recorder
	engine *reconcile.Engine
}

func (p *reconcileStep) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpCreate, provisioning.OpUpdate)
}

func (p *reconcileStep) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	out, err := p.engine.Reconcile(ctx, sys, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}
	return pipeline.Continue(out), nil
}

// createStep creates the object on the target system.
type createStep struct {
	pipeline.Base
	recorder
	gateway connector.Gateway
}

func (p *createStep) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpCreate)
}

func (p *createStep) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	obj := op.Context.TargetObject
	uid, err := p.gateway.CreateObject(ctx, sys.ConnectorKey, sys.ConnectorConfig, obj.ObjectClass, obj.Attributes)
	if err != nil {
		out, err := p.fail(ctx, op, provisioning.NewError(provisioning.CodeTargetCreateFailed, err), provisioning.CodeTargetCreateFailed)
		return pipeline.Close(out), err
	}

	created := op.Clone()
	created.SystemEntityUID = uid
	created.Context.TargetObject.UID = uid
	out, err := p.record(ctx, created, provisioning.NewResult(provisioning.StateExecuted,
		provisioning.CodeExecuted, provisioning.CodeExecuted.Describe()))
	return pipeline.Continue(out), err
}

// updateStep sends the computed delta. An empty delta never reaches the
// target.
type updateStep struct {
	pipeline.Base
	recorder
	gateway connector.Gateway
}

func (p *updateStep) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpUpdate)
}

func (p *updateStep) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	obj := op.Context.TargetObject
	if len(obj.Attributes) == 0 {
		out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateExecuted,
			provisioning.CodeNothingChanged, provisioning.CodeNothingChanged.Describe()))
		return pipeline.Continue(out), err
	}

	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	if err := p.gateway.UpdateObject(ctx, sys.ConnectorKey, sys.ConnectorConfig, obj.ObjectClass, op.SystemEntityUID, obj.Attributes); err != nil {
		out, err := p.fail(ctx, op, provisioning.NewError(provisioning.CodeTargetUpdateFailed, err), provisioning.CodeTargetUpdateFailed)
		return pipeline.Close(out), err
	}

	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateExecuted,
		provisioning.CodeExecuted, provisioning.CodeExecuted.Describe()))
	return pipeline.Continue(out), err
}

// deleteStep removes the object. An object that is already gone counts as
// deleted.
type deleteStep struct {
	pipeline.Base
	recorder
	gateway connector.Gateway
	engine  *reconcile.Engine
}

func (p *deleteStep) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpDelete)
}

func (p *deleteStep) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	set, err := p.engine.MappingSet(ctx, op.SystemID, op.EntityType)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	err = p.gateway.DeleteObject(ctx, sys.ConnectorKey, sys.ConnectorConfig, set.ObjectClass, op.SystemEntityUID)
	if err != nil && !errors.Is(err, connector.ErrObjectNotFound) {
		out, err := p.fail(ctx, op, provisioning.NewError(provisioning.CodeTargetDeleteFailed, err), provisioning.CodeTargetDeleteFailed)
		return pipeline.Close(out), err
	}

	model := provisioning.CodeExecuted.Describe()
	if err != nil {
		model = "object was already absent on the target system"
	}
	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateExecuted, provisioning.CodeExecuted, model))
	return pipeline.Continue(out), err
}

// cancelStep marks the operation canceled. Canceling a terminal operation
// changes nothing.
type cancelStep struct {
	pipeline.Base
	recorder
}

func (p *cancelStep) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpCancel)
}

func (p *cancelStep) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	if op.IsTerminal() {
		return pipeline.Continue(op), nil
	}

	code := provisioning.CodeCanceled
	if op.Result.Code == provisioning.CodeApprovalRejected {
		code = provisioning.CodeApprovalRejected
	}
	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateCanceled, code, code.Describe()))
	return pipeline.Continue(out), err
}

// secretDelivery sends generated credentials of a freshly created object to
// the owning entity.
type secretDelivery struct {
	pipeline.Base
	recorder
}

func (p *secretDelivery) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, provisioning.OpCreate)
}

func (p *secretDelivery) Conditional(_ context.Context, op provisioning.Operation) bool {
	return op.Result.State == provisioning.StateExecuted && op.Context.HasSecret()
}

func (p *secretDelivery) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	params := map[string]string{
		"system_id": op.SystemID.String(),
		"uid":       op.SystemEntityUID,
	}
	for _, name := range op.Context.SecretAttributes {
		if v, ok := op.Context.DesiredAttributes[name]; ok && v != nil {
			params[name] = fmt.Sprint(v)
		}
	}

	msg := notification.NewMessage(notification.LevelInfo, "Credentials for new account", "", params)
	if err := p.notifier.Send(ctx, notification.TopicPasswordDelivery, msg, op.EntityID); err != nil {
		p.logger.Warn(ctx, "failed to deliver credentials", "operation_id", op.ID, "error", err)
		return pipeline.Continue(op), nil
	}
	p.logger.Info(ctx, "credentials delivered", "operation_id", op.ID, "entity_id", op.EntityID)
	return pipeline.Continue(op), nil
}

// cleanup archives terminal operations. Anything else stays queued for
// retry or inspection.
type cleanup struct {
	pipeline.Base
	recorder
}

func (p *cleanup) Supports(provisioning.Operation) bool { return true }

func (p *cleanup) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	if !op.IsTerminal() {
		return pipeline.Continue(op), nil
	}
	if err := p.ops.Archive(ctx, op); err != nil {
		p.logger.Error(ctx, "failed to archive operation", "operation_id", op.ID, "error", err)
		return pipeline.Continue(op), nil
	}
	p.logger.Debug(ctx, "operation archived", "operation_id", op.ID, "state", op.Result.State)
	return pipeline.Continue(op), nil
}
