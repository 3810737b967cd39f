// Package reconcile computes the minimal write that makes a target-system
// object match the desired state of an operation.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/mapping"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
	"github.com/ahrav/provisioner/internal/domain/system"
)

// Engine resolves CREATE versus UPDATE and diffs attributes.
type Engine struct {
	mappings mapping.Resolver
	gateway  connector.Gateway
	tracer   trace.Tracer
}

// NewEngine creates a reconciliation engine.
func NewEngine(mappings mapping.Resolver, gateway connector.Gateway, tracer trace.Tracer) *Engine {
	return &Engine{mappings: mappings, gateway: gateway, tracer: tracer}
}

// MappingSet returns the single active mapping set of a system and entity
// type. Zero or several sets are configuration errors.
func (e *Engine) MappingSet(ctx context.Context, systemID uuid.UUID, entityType provisioning.EntityType) (mapping.Set, error) {
	sets, err := e.mappings.FindActive(ctx, systemID, entityType)
	var perr *provisioning.Error
	switch {
	case errors.As(err, &perr):
		return mapping.Set{}, fmt.Errorf("failed to load mapping sets: %w", err)
	case err != nil:
		return mapping.Set{}, provisioning.NewError(provisioning.CodeInternal, fmt.Errorf("failed to find mapping sets: %w", err))
	}
	switch len(sets) {
	case 0:
		return mapping.Set{}, provisioning.Errorf(provisioning.CodeMappingNotFound,
			"no active %s mapping for system %s", entityType, systemID)
	case 1:
		return sets[0], nil
	default:
		return mapping.Set{}, provisioning.Errorf(provisioning.CodeMappingAmbiguous,
			"%d active %s mappings for system %s", len(sets), entityType, systemID)
	}
}

// Reconcile returns a snapshot of op whose type is CREATE or UPDATE and
// whose target object carries exactly the attributes to send. Operations
// of other types are returned unchanged. Failures are *provisioning.Error
// values carrying a stable code.
func (e *Engine) Reconcile(ctx context.Context, sys system.System, op provisioning.Operation) (provisioning.Operation, error) {
	if op.Type != provisioning.OpCreate && op.Type != provisioning.OpUpdate {
		return op, nil
	}

	ctx, span := e.tracer.Start(ctx, "reconcile.Reconcile", trace.WithAttributes(
		attribute.String("operation_id", op.ID.String()),
		attribute.String("system_id", sys.ID.String()),
		attribute.String("requested_type", string(op.Type)),
	))
	defer span.End()

	out, err := e.reconcile(ctx, sys, op)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconciliation failed")
		return op, err
	}

	span.SetAttributes(
		attribute.String("resolved_type", string(out.Type)),
		attribute.Int("attributes", len(out.Context.TargetObject.Attributes)),
	)
	span.SetStatus(codes.Ok, "reconciled")
	return out, nil
}

func (e *Engine) reconcile(ctx context.Context, sys system.System, op provisioning.Operation) (provisioning.Operation, error) {
	if !sys.HasConnector() {
		return op, provisioning.Errorf(provisioning.CodeConnectorKeyMissing, "system %s has no connector", sys.ID)
	}

	set, err := e.MappingSet(ctx, op.SystemID, op.EntityType)
	if err != nil {
		return op, err
	}

	existing, err := e.read(ctx, sys, set.ObjectClass, op.SystemEntityUID)
	if err != nil {
		return op, err
	}

	desired := op.Context.DesiredAttributes
	if existing == nil {
		attrs, err := createAttributes(ctx, set, desired)
		if err != nil {
			return op, err
		}
		out := op.WithType(provisioning.OpCreate)
		return out.WithTargetObject(connector.Object{
			UID:         op.SystemEntityUID,
			ObjectClass: set.ObjectClass,
			Attributes:  attrs,
		}), nil
	}

	attrs, err := updateAttributes(ctx, set, desired, *existing)
	if err != nil {
		return op, err
	}
	out := op.WithType(provisioning.OpUpdate)
	uid := existing.UID
	if uid == "" {
		uid = op.SystemEntityUID
	}
	out.SystemEntityUID = uid
	return out.WithTargetObject(connector.Object{
		UID:         uid,
		ObjectClass: set.ObjectClass,
		Attributes:  attrs,
	}), nil
}

// read returns nil when the object does not exist. Operations without an
// identifier cannot have a target object yet.
func (e *Engine) read(ctx context.Context, sys system.System, objectClass, uid string) (*connector.Object, error) {
	if uid == "" {
		return nil, nil
	}
	obj, err := e.gateway.ReadObject(ctx, sys.ConnectorKey, sys.ConnectorConfig, objectClass, uid)
	if errors.Is(err, connector.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, provisioning.NewError(provisioning.CodeTargetReadFailed, fmt.Errorf("failed to read object %s: %w", uid, err))
	}
	return obj, nil
}

func createAttributes(ctx context.Context, set mapping.Set, desired map[string]any) ([]connector.Attribute, error) {
	attrs := make([]connector.Attribute, 0, len(set.Mappings))
	for _, m := range set.Mappings {
		if !m.Createable {
			continue
		}
		value, ok := desired[m.Name]
		if !ok {
			continue
		}
		attr, err := toConnector(ctx, m, value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// updateAttributes emits an attribute for every updateable mapping whose
// desired value differs from the value on the target. Attributes the
// target does not return by default cannot be compared and are skipped.
func updateAttributes(ctx context.Context, set mapping.Set, desired map[string]any, existing connector.Object) ([]connector.Attribute, error) {
	attrs := make([]connector.Attribute, 0)
	for _, m := range set.Mappings {
		if !m.Updateable || !m.ReturnedByDefault {
			continue
		}
		value, ok := desired[m.Name]
		if !ok {
			continue
		}

		current, _ := existing.Attribute(m.Name)
		equal, err := matches(ctx, m, value, current)
		if err != nil {
			return nil, err
		}
		if equal {
			continue
		}

		attr, err := toConnector(ctx, m, value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func matches(ctx context.Context, m mapping.AttributeMapping, desired any, current connector.Attribute) (bool, error) {
	tr := m.Transformer()
	if m.Multivalued {
		back, err := tr.FromConnector(ctx, current.Values)
		if err != nil {
			return false, transformError(m, err)
		}
		equal, err := sameSet(asList(desired), asList(back))
		if err != nil {
			return false, transformError(m, err)
		}
		return equal, nil
	}

	back, err := tr.FromConnector(ctx, current.Value())
	if err != nil {
		return false, transformError(m, err)
	}
	equal, err := sameValue(desired, back)
	if err != nil {
		return false, transformError(m, err)
	}
	return equal, nil
}

func toConnector(ctx context.Context, m mapping.AttributeMapping, value any) (connector.Attribute, error) {
	out, err := m.Transformer().ToConnector(ctx, value)
	if err != nil {
		return connector.Attribute{}, transformError(m, err)
	}
	if m.Multivalued {
		return connector.NewMultiAttribute(m.Name, asList(out)), nil
	}
	return connector.NewAttribute(m.Name, out), nil
}

func transformError(m mapping.AttributeMapping, err error) error {
	return provisioning.NewError(provisioning.CodeTransformFailed, fmt.Errorf("failed to transform attribute %s: %w", m.Name, err))
}
