// Package connector holds the gateway plumbing shared by all connector
// implementations: a registry routing calls by connector key and a guarded
// decorator applying timeouts, throttling, tracing and metrics.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	connectorDomain "github.com/ahrav/provisioner/internal/domain/connector"
)

// ErrUnknownConnector is returned when no gateway is registered for a key.
var ErrUnknownConnector = errors.New("unknown connector")

// Registry routes gateway calls to the implementation registered for the
// connector key of each call.
type Registry struct {
	mu       sync.RWMutex
	gateways map[connectorDomain.Key]connectorDomain.Gateway
}

var _ connectorDomain.Gateway = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[connectorDomain.Key]connectorDomain.Gateway)}
}

// Register binds key to gw, replacing any previous binding.
func (r *Registry) Register(key connectorDomain.Key, gw connectorDomain.Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[key] = gw
}

// Keys returns the registered connector keys.
func (r *Registry) Keys() []connectorDomain.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]connectorDomain.Key, 0, len(r.gateways))
	for k := range r.gateways {
		keys = append(keys, k)
	}
	return keys
}

func (r *Registry) lookup(key connectorDomain.Key) (connectorDomain.Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, key)
	}
	return gw, nil
}

func (r *Registry) ReadObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
) (*connectorDomain.Object, error) {
	gw, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return gw.ReadObject(ctx, key, cfg, objectClass, uid)
}

func (r *Registry) CreateObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass string,
	attrs []connectorDomain.Attribute,
) (string, error) {
	gw, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	return gw.CreateObject(ctx, key, cfg, objectClass, attrs)
}

func (r *Registry) UpdateObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
	attrs []connectorDomain.Attribute,
) error {
	gw, err := r.lookup(key)
	if err != nil {
		return err
	}
	return gw.UpdateObject(ctx, key, cfg, objectClass, uid, attrs)
}

func (r *Registry) DeleteObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
) error {
	gw, err := r.lookup(key)
	if err != nil {
		return err
	}
	return gw.DeleteObject(ctx, key, cfg, objectClass, uid)
}
