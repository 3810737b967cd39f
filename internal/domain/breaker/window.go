package breaker

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Entry records one provisioning attempt.
type Entry struct {
	Type provisioning.OperationType `json:"type"`
	// At is the attempt time in Unix milliseconds.
	At int64 `json:"at"`
}

// Window is the sliding record of recent attempts for one system. Entries
// are kept in append order.
type Window struct {
	SystemID uuid.UUID `json:"system_id"`
	Entries  []Entry   `json:"entries"`
}

// NewWindow creates an empty window for a system.
func NewWindow(systemID uuid.UUID) Window { return Window{SystemID: systemID} }

// Count returns the number of entries of type t at or after cutoff.
func (w *Window) Count(t provisioning.OperationType, cutoff int64) int {
	n := 0
	for _, e := range w.Entries {
		if e.Type == t && e.At >= cutoff {
			n++
		}
	}
	return n
}

// Append records an attempt.
func (w *Window) Append(t provisioning.OperationType, at int64) {
	w.Entries = append(w.Entries, Entry{Type: t, At: at})
}

// Prune drops entries older than cutoff and returns how many were removed.
func (w *Window) Prune(cutoff int64) int {
	before := len(w.Entries)
	w.Entries = slices.DeleteFunc(w.Entries, func(e Entry) bool { return e.At < cutoff })
	return before - len(w.Entries)
}

// Reset drops every entry of type t.
func (w *Window) Reset(t provisioning.OperationType) {
	w.Entries = slices.DeleteFunc(w.Entries, func(e Entry) bool { return e.Type == t })
}

// Clone returns a copy that shares no backing array with w.
func (w Window) Clone() Window {
	w.Entries = slices.Clone(w.Entries)
	return w
}

// WindowStore keeps windows between invocations. Update must run fn
// atomically with respect to other Updates of the same system; windows of
// different systems are independent.
type WindowStore interface {
	// Load returns the stored window or an empty one.
	Load(ctx context.Context, systemID uuid.UUID) (Window, error)

	// Store replaces the stored window.
	Store(ctx context.Context, w Window) error

	// Update loads, mutates and stores a window as one atomic step. The
	// window is not stored when fn returns an error.
	Update(ctx context.Context, systemID uuid.UUID, fn func(w *Window) error) error
}
