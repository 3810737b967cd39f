package provisioning

import (
	"context"
	"fmt"

	"github.com/ahrav/provisioner/internal/application/breaker"
	"github.com/ahrav/provisioner/internal/application/pipeline"
	"github.com/ahrav/provisioner/internal/domain/approval"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Processor names and orders.
const (
	NameDisabledGate   = "disabled-gate"
	NameApproval       = "approval"
	NameBreaker        = "provisioning-break"
	NameReconcile      = "reconcile"
	NameReadonlyGate   = "readonly-gate"
	NameCreate         = "create"
	NameUpdate         = "update"
	NameDelete         = "delete"
	NameCancel         = "cancel"
	NameSecretDelivery = "secret-delivery"
	NameCleanup        = "cleanup"

	OrderDisabledGate   = -5000
	OrderApproval       = -2000
	OrderBreaker        = -1000
	OrderReconcile      = 0
	OrderReadonlyGate   = 500
	OrderExecute        = 1000
	OrderSecretDelivery = 2000
	OrderCleanup        = 5000
)

var writeTypes = []provisioning.OperationType{provisioning.OpCreate, provisioning.OpUpdate, provisioning.OpDelete}

// disabledGate closes the chain when provisioning is switched off globally
// or for the target system, or when the system cannot be provisioned at all.
type disabledGate struct {
	pipeline.Base
	recorder
	enabled bool
}

func (p *disabledGate) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, writeTypes...)
}

func (p *disabledGate) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	var code provisioning.Code
	switch {
	case !p.enabled:
		code = provisioning.CodeProvisioningDisabled
	case sys.Disabled:
		code = provisioning.CodeSystemDisabled
	case sys.DisabledProvisioning:
		code = provisioning.CodeProvisioningDisabled
	case !sys.HasConnector():
		out, err := p.fail(ctx, op, provisioning.Errorf(provisioning.CodeConnectorKeyMissing,
			"system %s has no connector", sys.Name), provisioning.CodeConnectorKeyMissing)
		return pipeline.Close(out), err
	default:
		return pipeline.Continue(op), nil
	}

	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateNotExecuted, code, code.Describe()))
	return pipeline.Close(out), err
}

// approvalGate starts the approval process of systems that require one and
// suspends the chain until a decision arrives. An operation approved once
// is not sent for approval again when it is retried.
type approvalGate struct {
	pipeline.Base
	recorder
	approver approval.Approver
}

func (p *approvalGate) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, writeTypes...)
}

// Conditional fails closed: a system lookup error runs Process, which
// records it.
func (p *approvalGate) Conditional(ctx context.Context, op provisioning.Operation) bool {
	if op.Context.Approved {
		return false
	}
	sys, err := p.loadSystem(ctx, op)
	return err != nil || sys.ApprovalDefinition != ""
}

func (p *approvalGate) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	res, err := p.approver.StartProcess(ctx, sys.ApprovalDefinition, map[string]any{
		"operation_id":   op.ID.String(),
		"system_id":      op.SystemID.String(),
		"system_name":    sys.Name,
		"entity_type":    string(op.EntityType),
		"entity_id":      op.EntityID,
		"operation_type": string(op.Type),
	})
	if err != nil {
		out, err := p.fail(ctx, op, provisioning.NewError(provisioning.CodeApprovalFailed,
			fmt.Errorf("failed to start approval %s: %w", sys.ApprovalDefinition, err)), provisioning.CodeApprovalFailed)
		return pipeline.Close(out), err
	}

	switch {
	case res.Ended && res.Approved:
		return pipeline.Continue(op.WithApproval()), nil
	case res.Ended:
		return pipeline.Continue(rejected(op)), nil
	}

	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateCreated,
		provisioning.CodeAwaitApproval, "approval process "+res.ProcessID))
	return pipeline.Suspend(out), err
}

// rejected turns op into a cancellation carrying the rejection code.
func rejected(op provisioning.Operation) provisioning.Operation {
	return op.WithType(provisioning.OpCancel).WithResult(provisioning.NewResult(
		provisioning.StateNotExecuted, provisioning.CodeApprovalRejected, provisioning.CodeApprovalRejected.Describe()))
}

// breakerGate consults the provisioning break. It cannot be disabled.
type breakerGate struct {
	pipeline.Base
	recorder
	breaker *breaker.Service
}

func (p *breakerGate) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, writeTypes...)
}

func (p *breakerGate) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}

	decision, err := p.breaker.Check(ctx, sys, op.Type)
	if err != nil {
		out, err := p.fail(ctx, op, provisioning.NewError(provisioning.CodeInternal, err), provisioning.CodeInternal)
		return pipeline.Close(out), err
	}
	if !decision.Rejects() {
		return pipeline.Continue(op), nil
	}

	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateBlocked,
		provisioning.CodeOperationBlocked, fmt.Sprintf("%s is blocked on %s", op.Type, sys.Name)))
	return pipeline.Close(out), err
}

// readonlyGate stops writes to read-only systems after the payload has
// been prepared.
type readonlyGate struct {
	pipeline.Base
	recorder
}

func (p *readonlyGate) Supports(op provisioning.Operation) bool {
	return pipeline.SupportsTypes(op, writeTypes...)
}

func (p *readonlyGate) Process(ctx context.Context, op provisioning.Operation) (pipeline.Result, error) {
	sys, err := p.loadSystem(ctx, op)
	if err != nil {
		out, err := p.fail(ctx, op, err, provisioning.CodeInternal)
		return pipeline.Close(out), err
	}
	if !sys.Readonly {
		return pipeline.Continue(op), nil
	}

	out, err := p.record(ctx, op, provisioning.NewResult(provisioning.StateNotExecuted,
		provisioning.CodeSystemReadonly, provisioning.CodeSystemReadonly.Describe()))
	return pipeline.Close(out), err
}
