package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	connectorDomain "github.com/ahrav/provisioner/internal/domain/connector"
)

// Method names used for spans and metrics.
const (
	MethodRead   = "read"
	MethodCreate = "create"
	MethodUpdate = "update"
	MethodDelete = "delete"
)

// Metrics records connector call latency and failures.
type Metrics interface {
	ObserveConnectorCall(ctx context.Context, connectorKey string, method string, duration time.Duration)
	IncConnectorFailures(ctx context.Context, connectorKey string, method string)
}

// GuardConfig bounds the calls made through a Guarded gateway.
type GuardConfig struct {
	// Timeout caps every call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
	// Rate is the sustained calls per second allowed per connector key.
	// Zero or less disables throttling.
	Rate  float64
	Burst int
}

// Guarded decorates a gateway with a per-call timeout, a token bucket per
// connector key, a client span per call and call metrics.
type Guarded struct {
	next    connectorDomain.Gateway
	cfg     GuardConfig
	tracer  trace.Tracer
	metrics Metrics

	mu       sync.Mutex
	limiters map[connectorDomain.Key]*rate.Limiter
}

var _ connectorDomain.Gateway = (*Guarded)(nil)

// NewGuarded wraps next.
func NewGuarded(next connectorDomain.Gateway, cfg GuardConfig, tracer trace.Tracer, metrics Metrics) *Guarded {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &Guarded{
		next:     next,
		cfg:      cfg,
		tracer:   tracer,
		metrics:  metrics,
		limiters: make(map[connectorDomain.Key]*rate.Limiter),
	}
}

func (g *Guarded) limiter(key connectorDomain.Key) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[key]
	if !ok {
		limit := rate.Inf
		if g.cfg.Rate > 0 {
			limit = rate.Limit(g.cfg.Rate)
		}
		l = rate.NewLimiter(limit, g.cfg.Burst)
		g.limiters[key] = l
	}
	return l
}

// guard runs fn under the timeout, limiter and span of one call.
func (g *Guarded) guard(
	ctx context.Context,
	key connectorDomain.Key,
	method, objectClass string,
	fn func(ctx context.Context) error,
) error {
	ctx, span := g.tracer.Start(ctx, "connector."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connector.key", string(key)),
			attribute.String("connector.object_class", objectClass),
		))
	defer span.End()

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	if err := g.limiter(key).Wait(ctx); err != nil {
		err = fmt.Errorf("connector %s throttled: %w", key, err)
		g.fail(ctx, span, key, method, err)
		return err
	}

	start := time.Now()
	err := fn(ctx)
	g.metrics.ObserveConnectorCall(ctx, string(key), method, time.Since(start))

	// A missing object is an answer, not a failure.
	if err != nil && !errors.Is(err, connectorDomain.ErrObjectNotFound) {
		g.fail(ctx, span, key, method, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return err
}

func (g *Guarded) fail(ctx context.Context, span trace.Span, key connectorDomain.Key, method string, err error) {
	g.metrics.IncConnectorFailures(ctx, string(key), method)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (g *Guarded) ReadObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
) (*connectorDomain.Object, error) {
	var obj *connectorDomain.Object
	err := g.guard(ctx, key, MethodRead, objectClass, func(ctx context.Context) error {
		var err error
		obj, err = g.next.ReadObject(ctx, key, cfg, objectClass, uid)
		return err
	})
	return obj, err
}

func (g *Guarded) CreateObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass string,
	attrs []connectorDomain.Attribute,
) (string, error) {
	var uid string
	err := g.guard(ctx, key, MethodCreate, objectClass, func(ctx context.Context) error {
		var err error
		uid, err = g.next.CreateObject(ctx, key, cfg, objectClass, attrs)
		return err
	})
	return uid, err
}

func (g *Guarded) UpdateObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
	attrs []connectorDomain.Attribute,
) error {
	return g.guard(ctx, key, MethodUpdate, objectClass, func(ctx context.Context) error {
		return g.next.UpdateObject(ctx, key, cfg, objectClass, uid, attrs)
	})
}

func (g *Guarded) DeleteObject(
	ctx context.Context,
	key connectorDomain.Key,
	cfg connectorDomain.Config,
	objectClass, uid string,
) error {
	return g.guard(ctx, key, MethodDelete, objectClass, func(ctx context.Context) error {
		return g.next.DeleteObject(ctx, key, cfg, objectClass, uid)
	})
}
