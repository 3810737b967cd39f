// Package connector defines the normalized target-system object model and
// the gateway contract used to read and write objects on target systems.
package connector

import (
	"context"
	"errors"
	"slices"
)

// ErrObjectNotFound is returned by a Gateway when the requested object does
// not exist on the target system.
var ErrObjectNotFound = errors.New("connector object not found")

// Key identifies a connector implementation, for example
// "net.tirasa.connid.bundles.ldap:1.5.9".
type Key string

// Config is the connector configuration of a target system.
type Config map[string]any

// Attribute is a single attribute of a connector object. Single-valued
// attributes carry at most one element in Values.
type Attribute struct {
	Name        string `json:"name"`
	Values      []any  `json:"values,omitempty"`
	Multivalued bool   `json:"multivalued,omitempty"`
}

// NewAttribute builds a single-valued attribute. A nil value yields an
// attribute with no values, which clears the attribute on the target.
func NewAttribute(name string, value any) Attribute {
	if value == nil {
		return Attribute{Name: name}
	}
	return Attribute{Name: name, Values: []any{value}}
}

// NewMultiAttribute builds a multivalued attribute.
func NewMultiAttribute(name string, values []any) Attribute {
	return Attribute{Name: name, Values: slices.Clone(values), Multivalued: true}
}

// Value returns the single value of the attribute or nil when empty.
func (a Attribute) Value() any {
	if len(a.Values) == 0 {
		return nil
	}
	return a.Values[0]
}

// Clone returns a copy that shares no backing arrays with a.
func (a Attribute) Clone() Attribute {
	a.Values = slices.Clone(a.Values)
	return a
}

// Object is the normalized representation of an entity on a target system.
type Object struct {
	UID         string      `json:"uid,omitempty"`
	ObjectClass string      `json:"object_class,omitempty"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Attribute looks up an attribute by name.
func (o Object) Attribute(name string) (Attribute, bool) {
	for _, attr := range o.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Clone returns a deep copy of the object.
func (o Object) Clone() Object {
	if o.Attributes != nil {
		attrs := make([]Attribute, len(o.Attributes))
		for i, attr := range o.Attributes {
			attrs[i] = attr.Clone()
		}
		o.Attributes = attrs
	}
	return o
}

// Names returns the attribute names in order.
func (o Object) Names() []string {
	names := make([]string, 0, len(o.Attributes))
	for _, attr := range o.Attributes {
		names = append(names, attr.Name)
	}
	return names
}

// Gateway is the abstraction over a connector framework. Every method may
// block on network I/O and must honor ctx cancellation.
type Gateway interface {
	// ReadObject returns the object identified by uid or ErrObjectNotFound.
	ReadObject(ctx context.Context, key Key, cfg Config, objectClass, uid string) (*Object, error)

	// CreateObject creates an object and returns its generated identifier.
	CreateObject(ctx context.Context, key Key, cfg Config, objectClass string, attrs []Attribute) (string, error)

	// UpdateObject replaces the given attributes of an existing object.
	UpdateObject(ctx context.Context, key Key, cfg Config, objectClass, uid string, attrs []Attribute) error

	// DeleteObject removes the object identified by uid.
	DeleteObject(ctx context.Context, key Key, cfg Config, objectClass, uid string) error
}
