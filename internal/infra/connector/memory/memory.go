// Package memory is an in-process target system. It backs the "memory"
// connector used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/connector"
)

// Key is the connector key served by this package.
const Key connector.Key = "memory"

// Method names recorded in Call.
const (
	MethodRead   = "read"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodDelete = "delete"
)

// Call records a gateway invocation.
type Call struct {
	Method      string
	ObjectClass string
	UID         string
	Attributes  []connector.Attribute
}

type objectRef struct {
	key         connector.Key
	objectClass string
	uid         string
}

// Gateway stores objects in memory and records every call.
type Gateway struct {
	mu       sync.Mutex
	objects  map[objectRef]connector.Object
	calls    []Call
	failures map[string]error
}

var _ connector.Gateway = (*Gateway)(nil)

// New creates an empty target system.
func New() *Gateway {
	return &Gateway{
		objects:  make(map[objectRef]connector.Object),
		failures: make(map[string]error),
	}
}

// Put stores obj under key as if it already existed on the target.
func (g *Gateway) Put(key connector.Key, obj connector.Object) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[objectRef{key, obj.ObjectClass, obj.UID}] = obj.Clone()
}

// Get returns a stored object.
func (g *Gateway) Get(key connector.Key, objectClass, uid string) (connector.Object, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	obj, ok := g.objects[objectRef{key, objectClass, uid}]
	return obj.Clone(), ok
}

// Len returns the number of stored objects.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}

// FailOn makes every call of method return err. A nil err clears it.
func (g *Gateway) FailOn(method string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, method)
		return
	}
	g.failures[method] = err
}

// Calls returns the recorded calls in order.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

// CallsOf returns the recorded calls of one method.
func (g *Gateway) CallsOf(method string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Call
	for _, c := range g.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// record must be called with mu held.
func (g *Gateway) record(method, objectClass, uid string, attrs []connector.Attribute) error {
	c := Call{Method: method, ObjectClass: objectClass, UID: uid}
	for _, a := range attrs {
		c.Attributes = append(c.Attributes, a.Clone())
	}
	g.calls = append(g.calls, c)
	return g.failures[method]
}

func (g *Gateway) ReadObject(ctx context.Context, key connector.Key, _ connector.Config, objectClass, uid string) (*connector.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(MethodRead, objectClass, uid, nil); err != nil {
		return nil, err
	}

	obj, ok := g.objects[objectRef{key, objectClass, uid}]
	if !ok {
		return nil, connector.ErrObjectNotFound
	}
	out := obj.Clone()
	return &out, nil
}

func (g *Gateway) CreateObject(ctx context.Context, key connector.Key, _ connector.Config, objectClass string, attrs []connector.Attribute) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(MethodCreate, objectClass, "", attrs); err != nil {
		return "", err
	}

	uid := uuid.NewString()
	obj := connector.Object{UID: uid, ObjectClass: objectClass}
	for _, a := range attrs {
		if len(a.Values) > 0 {
			obj.Attributes = append(obj.Attributes, a.Clone())
		}
	}
	g.objects[objectRef{key, objectClass, uid}] = obj
	return uid, nil
}

func (g *Gateway) UpdateObject(ctx context.Context, key connector.Key, _ connector.Config, objectClass, uid string, attrs []connector.Attribute) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(MethodUpdate, objectClass, uid, attrs); err != nil {
		return err
	}

	ref := objectRef{key, objectClass, uid}
	obj, ok := g.objects[ref]
	if !ok {
		return fmt.Errorf("update %s: %w", uid, connector.ErrObjectNotFound)
	}
	for _, a := range attrs {
		obj.Attributes = slices.DeleteFunc(obj.Attributes, func(cur connector.Attribute) bool { return cur.Name == a.Name })
		if len(a.Values) > 0 {
			obj.Attributes = append(obj.Attributes, a.Clone())
		}
	}
	g.objects[ref] = obj
	return nil
}

func (g *Gateway) DeleteObject(ctx context.Context, key connector.Key, _ connector.Config, objectClass, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.record(MethodDelete, objectClass, uid, nil); err != nil {
		return err
	}

	ref := objectRef{key, objectClass, uid}
	if _, ok := g.objects[ref]; !ok {
		return connector.ErrObjectNotFound
	}
	delete(g.objects, ref)
	return nil
}
