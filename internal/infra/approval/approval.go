// Package approval provides a rule-based approver for deployments without
// an external workflow engine.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	approvalDomain "github.com/ahrav/provisioner/internal/domain/approval"
	"github.com/ahrav/provisioner/pkg/common/logger"
)

// Decision is the outcome a rule produces when a process starts.
type Decision int

// Rule outcomes.
const (
	// Pending leaves the process running until Decide is called.
	Pending Decision = iota
	Approve
	Reject
)

// Rules decides approval processes locally. Definitions without a rule are
// unknown to it.
type Rules struct {
	logger *logger.Logger

	mu      sync.Mutex
	rules   map[string]Decision
	pending map[string]string // process id -> operation id
}

var _ approvalDomain.Approver = (*Rules)(nil)

// NewRules creates an approver with the given definition rules.
func NewRules(rules map[string]Decision, log *logger.Logger) *Rules {
	r := &Rules{
		logger:  log.With("component", "approver"),
		rules:   make(map[string]Decision, len(rules)),
		pending: make(map[string]string),
	}
	for k, v := range rules {
		r.rules[k] = v
	}
	return r
}

// StartProcess applies the rule of definitionKey.
func (r *Rules) StartProcess(ctx context.Context, definitionKey string, variables map[string]any) (approvalDomain.Result, error) {
	if err := ctx.Err(); err != nil {
		return approvalDomain.Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	decision, ok := r.rules[definitionKey]
	if !ok {
		return approvalDomain.Result{}, fmt.Errorf("%w: %s", approvalDomain.ErrDefinitionNotFound, definitionKey)
	}

	res := approvalDomain.Result{ProcessID: uuid.NewString()}
	switch decision {
	case Approve:
		res.Ended, res.Approved = true, true
	case Reject:
		res.Ended = true
	default:
		opID, _ := variables["operation_id"].(string)
		r.pending[res.ProcessID] = opID
	}

	r.logger.Info(ctx, "approval process started",
		"definition", definitionKey,
		"process_id", res.ProcessID,
		"ended", res.Ended,
		"approved", res.Approved,
		"operation_id", variables["operation_id"],
	)
	return res, nil
}

// Decide ends a pending process and returns the operation it guards, which
// the caller resumes with its decision. It reports false when processID is
// not pending.
func (r *Rules) Decide(processID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	opID, ok := r.pending[processID]
	if !ok {
		return "", false
	}
	delete(r.pending, processID)
	return opID, true
}

// Pending returns the number of processes waiting for a decision.
func (r *Rules) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
