// Package mapping describes how identity attributes map onto target-system
// schema attributes.
package mapping

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Transform converts values between the identity platform and a connector.
// Implementations must be pure: the same input always yields the same
// output, so diffing stays deterministic.
type Transform interface {
	// ToConnector converts a desired value into the value sent to the target.
	ToConnector(ctx context.Context, value any) (any, error)

	// FromConnector converts a value read from the target into the
	// representation desired values are compared against.
	FromConnector(ctx context.Context, value any) (any, error)
}

// Identity is the transform used when a mapping has none configured.
type Identity struct{}

func (Identity) ToConnector(_ context.Context, value any) (any, error)   { return value, nil }
func (Identity) FromConnector(_ context.Context, value any) (any, error) { return value, nil }

// TransformFuncs adapts plain functions to Transform. Nil functions act as
// the identity.
type TransformFuncs struct {
	To   func(any) (any, error)
	From func(any) (any, error)
}

func (f TransformFuncs) ToConnector(_ context.Context, value any) (any, error) {
	if f.To == nil {
		return value, nil
	}
	return f.To(value)
}

func (f TransformFuncs) FromConnector(_ context.Context, value any) (any, error) {
	if f.From == nil {
		return value, nil
	}
	return f.From(value)
}

// AttributeMapping maps one schema attribute of a target system.
type AttributeMapping struct {
	SchemaAttributeID uuid.UUID
	// Name is the schema attribute name on the target system.
	Name string
	// IdmAttribute is the identity attribute feeding this mapping. Empty
	// means the schema name is used.
	IdmAttribute      string
	UID               bool
	Createable        bool
	Updateable        bool
	ReturnedByDefault bool
	Multivalued       bool
	// Script is the stored source of a scripted transform. Stores compile
	// it into Transform when loading the mapping.
	Script    Script
	Transform Transform
}

// Transformer returns the mapping transform or Identity.
func (m AttributeMapping) Transformer() Transform {
	if m.Transform == nil {
		return Identity{}
	}
	return m.Transform
}

func (m AttributeMapping) source() string {
	if m.IdmAttribute != "" {
		return m.IdmAttribute
	}
	return m.Name
}

// Set is the ordered list of attribute mappings for one system and entity
// type.
type Set struct {
	ID          uuid.UUID
	SystemID    uuid.UUID
	EntityType  provisioning.EntityType
	ObjectClass string
	Active      bool
	Mappings    []AttributeMapping
}

// Desired projects identity attributes onto schema attribute names. Only
// attributes present in source are emitted, so an absent identity
// attribute never becomes an explicit empty value.
func (s Set) Desired(source map[string]any) map[string]any {
	desired := make(map[string]any, len(s.Mappings))
	for _, m := range s.Mappings {
		v, ok := source[m.source()]
		if !ok {
			continue
		}
		if list, isList := v.([]any); isList {
			v = slices.Clone(list)
		}
		desired[m.Name] = v
	}
	return desired
}

// UIDMapping returns the mapping flagged as the object identifier.
func (s Set) UIDMapping() (AttributeMapping, bool) {
	for _, m := range s.Mappings {
		if m.UID {
			return m, true
		}
	}
	return AttributeMapping{}, false
}

// Script holds the source of a scripted transform. Either direction may be
// empty, which acts as the identity.
type Script struct {
	ToConnector   string
	FromConnector string
}

// IsZero reports whether neither direction is scripted.
func (s Script) IsZero() bool { return s.ToConnector == "" && s.FromConnector == "" }

// Compiler turns transform scripts into a Transform. name identifies the
// script in error messages.
type Compiler interface {
	Compile(name string, script Script) (Transform, error)
}

// Resolver finds the active mapping sets of a system.
type Resolver interface {
	// FindActive returns every active set for the system and entity type.
	// Callers decide what zero or several sets mean.
	FindActive(ctx context.Context, systemID uuid.UUID, entityType provisioning.EntityType) ([]Set, error)
}
