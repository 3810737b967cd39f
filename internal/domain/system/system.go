// Package system models the target systems provisioning writes to.
package system

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/connector"
	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Common errors.
var ErrSystemNotFound = errors.New("system not found")

// BlockedOperation holds the per operation type block bits. Only the
// provisioning break changes them; operators clear them with an unblock.
type BlockedOperation struct {
	CreateBlocked bool
	UpdateBlocked bool
	DeleteBlocked bool
}

// System is a target system as seen by the provisioning core.
type System struct {
	ID              uuid.UUID
	Name            string
	ConnectorKey    connector.Key
	ConnectorConfig connector.Config
	Disabled        bool
	// DisabledProvisioning keeps the system usable for reads while writes
	// are switched off.
	DisabledProvisioning bool
	Readonly             bool
	Blocked              BlockedOperation
	// ApprovalDefinition names the approval process that must finish before
	// operations reach the target. Empty means no approval.
	ApprovalDefinition string
	UpdatedAt          time.Time
}

// IsBlocked reports whether the given operation type is blocked.
func (s System) IsBlocked(t provisioning.OperationType) bool {
	switch t {
	case provisioning.OpCreate:
		return s.Blocked.CreateBlocked
	case provisioning.OpUpdate:
		return s.Blocked.UpdateBlocked
	case provisioning.OpDelete:
		return s.Blocked.DeleteBlocked
	default:
		return false
	}
}

// SetBlocked returns a copy of the system with the block bit for t set to
// blocked. Types without a block bit are ignored.
func (s System) SetBlocked(t provisioning.OperationType, blocked bool) System {
	switch t {
	case provisioning.OpCreate:
		s.Blocked.CreateBlocked = blocked
	case provisioning.OpUpdate:
		s.Blocked.UpdateBlocked = blocked
	case provisioning.OpDelete:
		s.Blocked.DeleteBlocked = blocked
	}
	s.UpdatedAt = time.Now().UTC()
	return s
}

// HasConnector reports whether the connector is configured.
func (s System) HasConnector() bool { return s.ConnectorKey != "" }

// Repository defines data access for target systems.
type Repository interface {
	// FindByID retrieves a system or ErrSystemNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (System, error)

	// Save inserts or replaces a system.
	Save(ctx context.Context, s System) error

	// SetBlocked persists a single block bit without touching the rest of
	// the system record.
	SetBlocked(ctx context.Context, id uuid.UUID, t provisioning.OperationType, blocked bool) error
}
