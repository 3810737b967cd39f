// Package pipeline runs provisioning operations through an ordered chain of
// processors. Each processor may let the operation continue, close the
// chain, or suspend it until an external event resumes it.
package pipeline

import (
	"context"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Outcome tells the pipeline what to do after a processor ran.
type Outcome int

const (
	// OutcomeContinue passes the operation to the next processor.
	OutcomeContinue Outcome = iota
	// OutcomeClosed stops the chain; the processor fully handled the operation.
	OutcomeClosed
	// OutcomeSuspended stops the chain until the operation is resumed.
	OutcomeSuspended
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeClosed:
		return "closed"
	case OutcomeSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Result is what a processor hands back: a new operation snapshot and the
// outcome.
type Result struct {
	Operation provisioning.Operation
	Outcome   Outcome
}

// Continue lets op flow to the next processor.
func Continue(op provisioning.Operation) Result { return Result{Operation: op, Outcome: OutcomeContinue} }

// Close stops the chain with op as the final snapshot.
func Close(op provisioning.Operation) Result { return Result{Operation: op, Outcome: OutcomeClosed} }

// Suspend stops the chain until the operation is resumed.
func Suspend(op provisioning.Operation) Result { return Result{Operation: op, Outcome: OutcomeSuspended} }

// Processor is a single step of the provisioning chain.
type Processor interface {
	// Name identifies the processor in logs, metrics and suspension records.
	// Names must be unique within a pipeline.
	Name() string

	// Order positions the processor in the chain. Lower runs first.
	Order() int

	// Supports filters operations by type.
	Supports(op provisioning.Operation) bool

	// Conditional is an additional runtime gate evaluated after Supports.
	Conditional(ctx context.Context, op provisioning.Operation) bool

	// Process handles the operation. Operational failures must be recorded
	// on the returned operation; a returned error means a bug.
	Process(ctx context.Context, op provisioning.Operation) (Result, error)

	// Closable reports whether the processor may be disabled by the host.
	Closable() bool
}

// Base carries the name and order of a processor and supplies the default
// Conditional and Closable behavior. Processors embed it.
type Base struct {
	name     string
	order    int
	closable bool
}

// NewBase creates a closable processor base.
func NewBase(name string, order int) Base { return Base{name: name, order: order, closable: true} }

// NewRequiredBase creates a base for processors that cannot be disabled.
func NewRequiredBase(name string, order int) Base { return Base{name: name, order: order} }

func (b Base) Name() string   { return b.name }
func (b Base) Order() int     { return b.order }
func (b Base) Closable() bool { return b.closable }

// Conditional always allows processing.
func (Base) Conditional(context.Context, provisioning.Operation) bool { return true }

// SupportsTypes reports whether op is one of types. Processors use it to
// implement Supports.
func SupportsTypes(op provisioning.Operation, types ...provisioning.OperationType) bool {
	for _, t := range types {
		if op.Type == t {
			return true
		}
	}
	return false
}
