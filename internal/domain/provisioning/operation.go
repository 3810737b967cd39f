// Package provisioning contains the provisioning operation entity, its
// result model and the error taxonomy shared by the pipeline.
package provisioning

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/connector"
)

// Common errors that can be returned by operation functions.
var (
	ErrOperationNotFound = errors.New("provisioning operation not found")
	ErrInvalidOperation  = errors.New("invalid provisioning operation")
)

// OperationType is the kind of write a provisioning operation performs.
type OperationType string

// Supported operation types.
const (
	OpCreate OperationType = "CREATE"
	OpUpdate OperationType = "UPDATE"
	OpDelete OperationType = "DELETE"
	OpCancel OperationType = "CANCEL"
)

// IsValid checks if the operation type is one of the supported types.
func (t OperationType) IsValid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete, OpCancel:
		return true
	default:
		return false
	}
}

func (t OperationType) String() string { return string(t) }

// ParseOperationType converts a string to an operation type with validation.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid operation type: %s", s)
	}
	return t, nil
}

// EntityType is the kind of identity-platform entity an operation provisions.
type EntityType string

// Supported entity types.
const (
	EntityIdentity EntityType = "IDENTITY"
	EntityGroup    EntityType = "GROUP"
	EntityRole     EntityType = "ROLE"
	EntityContract EntityType = "CONTRACT"
)

// IsValid checks if the entity type is supported.
func (e EntityType) IsValid() bool {
	switch e {
	case EntityIdentity, EntityGroup, EntityRole, EntityContract:
		return true
	default:
		return false
	}
}

// ValidationError represents a domain validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// Context holds the payload an operation carries through the pipeline.
type Context struct {
	// DesiredAttributes maps schema attribute names to the values the
	// target system should hold. Multivalued attributes hold []any.
	DesiredAttributes map[string]any `json:"desired_attributes,omitempty"`
	// SecretAttributes names desired attributes that carry generated
	// credentials to be delivered to the owner after a successful create.
	SecretAttributes []string `json:"secret_attributes,omitempty"`
	// TargetObject is the connector object sent to the target system.
	TargetObject connector.Object `json:"target_object"`
	// Approved is set once an approval process granted the operation, so
	// retries do not ask again.
	Approved bool `json:"approved,omitempty"`
}

// Clone returns a deep copy of the context.
func (c Context) Clone() Context {
	out := Context{
		SecretAttributes: slices.Clone(c.SecretAttributes),
		TargetObject:     c.TargetObject.Clone(),
		Approved:         c.Approved,
	}
	if c.DesiredAttributes != nil {
		out.DesiredAttributes = make(map[string]any, len(c.DesiredAttributes))
		for k, v := range c.DesiredAttributes {
			if list, ok := v.([]any); ok {
				v = slices.Clone(list)
			}
			out.DesiredAttributes[k] = v
		}
	}
	return out
}

// HasSecret reports whether any secret attribute carries a value.
func (c Context) HasSecret() bool {
	for _, name := range c.SecretAttributes {
		if v, ok := c.DesiredAttributes[name]; ok && v != nil {
			return true
		}
	}
	return false
}

// Operation is a single provisioning operation: one write intent for one
// object on one target system. Operations are handled as values; every
// pipeline step returns a new snapshot instead of mutating a shared one.
type Operation struct {
	ID              uuid.UUID
	SystemID        uuid.UUID
	EntityType      EntityType
	EntityID        string
	SystemEntityUID string
	Type            OperationType
	Context         Context
	Result          Result
	TransactionID   uuid.UUID
	// SuspendedAt names the processor that suspended the chain, empty when
	// the operation is not waiting for an external event.
	SuspendedAt string
	Attempts    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOperation creates a queued operation in the NOT_EXECUTED state.
func NewOperation(
	opType OperationType,
	systemID uuid.UUID,
	entityType EntityType,
	entityID string,
	systemEntityUID string,
	desired map[string]any,
) (Operation, error) {
	if !opType.IsValid() || opType == OpCancel {
		return Operation{}, NewValidationError("type", "invalid operation type")
	}
	if systemID == uuid.Nil {
		return Operation{}, NewValidationError("system_id", "system is required")
	}
	if !entityType.IsValid() {
		return Operation{}, NewValidationError("entity_type", "invalid entity type")
	}
	if entityID == "" {
		return Operation{}, NewValidationError("entity_id", "owning entity is required")
	}
	if opType == OpDelete && systemEntityUID == "" {
		return Operation{}, NewValidationError("system_entity_uid", "delete requires the target identifier")
	}

	now := time.Now().UTC()
	op := Operation{
		ID:              uuid.New(),
		SystemID:        systemID,
		EntityType:      entityType,
		EntityID:        entityID,
		SystemEntityUID: systemEntityUID,
		Type:            opType,
		Result:          Result{State: StateNotExecuted},
		TransactionID:   uuid.New(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	op.Context.DesiredAttributes = desired
	return op.Clone(), nil
}

// Clone returns a deep copy of the operation.
func (o Operation) Clone() Operation {
	o.Context = o.Context.Clone()
	return o
}

// WithType returns a copy with the operation type replaced.
func (o Operation) WithType(t OperationType) Operation {
	out := o.Clone()
	out.Type = t
	return out
}

// WithResult returns a copy carrying the given result.
func (o Operation) WithResult(r Result) Operation {
	out := o.Clone()
	out.Result = r
	out.UpdatedAt = time.Now().UTC()
	return out
}

// WithTargetObject returns a copy whose connector object is replaced.
func (o Operation) WithTargetObject(obj connector.Object) Operation {
	out := o.Clone()
	out.Context.TargetObject = obj.Clone()
	return out
}

// IsTerminal reports whether the operation left the active queue for good.
func (o Operation) IsTerminal() bool { return o.Result.State.IsTerminal() }

// IsSuspended reports whether the operation is waiting for an external event.
func (o Operation) IsSuspended() bool { return o.SuspendedAt != "" }

// LockKey returns the key used to serialize operations on the same target
// object. Before the object has an identifier the owning entity stands in.
func (o Operation) LockKey() string {
	if o.SystemEntityUID != "" {
		return o.SystemID.String() + "/uid/" + o.SystemEntityUID
	}
	return o.SystemID.String() + "/" + string(o.EntityType) + "/" + o.EntityID
}

// WithApproval returns a copy marked as granted by an approval process.
func (o Operation) WithApproval() Operation {
	out := o.Clone()
	out.Context.Approved = true
	return out
}

// IsRetryable reports whether the scheduler may resubmit the operation.
// Only target-system and internal failures qualify; configuration errors
// wait for an operator.
func (o Operation) IsRetryable() bool {
	return o.Result.State == StateException && o.Result.Code.Retryable()
}
