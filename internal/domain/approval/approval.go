// Package approval is the contract of the workflow engine used for human
// approval of provisioning operations.
package approval

import (
	"context"
	"errors"
)

// ErrDefinitionNotFound is returned when the process definition is unknown.
var ErrDefinitionNotFound = errors.New("approval definition not found")

// Result is the state of an approval process right after it was started.
type Result struct {
	// ProcessID identifies the running process so a decision can be matched
	// back to the operation.
	ProcessID string
	// Ended is true when the process finished synchronously, for example
	// through an auto-approve rule.
	Ended bool
	// Approved is only meaningful when Ended is true.
	Approved bool
}

// Approver starts approval processes.
type Approver interface {
	StartProcess(ctx context.Context, definitionKey string, variables map[string]any) (Result, error)
}
