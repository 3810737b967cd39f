// Package breaker models the provisioning break: per system and operation
// type thresholds that first warn about and then block bursts of writes.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ahrav/provisioner/internal/domain/provisioning"
)

// Common errors.
var (
	ErrConfigNotFound = errors.New("provisioning break config not found")
	ErrInvalidConfig  = errors.New("invalid provisioning break config")
)

// Config holds the thresholds of one (system, operation type) pair. A nil
// limit disables that threshold.
type Config struct {
	ID            uuid.UUID                  `validate:"required"`
	SystemID      uuid.UUID                  `validate:"required"`
	OperationType provisioning.OperationType `validate:"oneof=CREATE UPDATE DELETE"`
	Period        time.Duration              `validate:"gt=0"`
	WarningLimit  *int                       `validate:"omitempty,gte=1"`
	DisableLimit  *int                       `validate:"omitempty,gte=1"`
	Disabled      bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		if cfg.WarningLimit != nil && cfg.DisableLimit != nil && *cfg.DisableLimit < *cfg.WarningLimit {
			sl.ReportError(cfg.DisableLimit, "DisableLimit", "DisableLimit", "gtefield", "WarningLimit")
		}
	}, Config{})
	return v
}

// Validate checks the thresholds. The disable limit must not be lower than
// the warning limit.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Active reports whether the config takes part in decisions.
func (c Config) Active() bool { return !c.Disabled }

// ShouldDisable reports whether n attempts reach the disable threshold.
func (c Config) ShouldDisable(n int) bool { return c.DisableLimit != nil && n >= *c.DisableLimit }

// ShouldWarn reports whether n attempts reach the warning threshold.
func (c Config) ShouldWarn(n int) bool { return c.WarningLimit != nil && n >= *c.WarningLimit }

// Cutoff returns the oldest instant, in Unix milliseconds, still inside the
// period ending at now.
func (c Config) Cutoff(now time.Time) int64 { return now.Add(-c.Period).UnixMilli() }

// Limit is a helper for building configs.
func Limit(n int) *int { return &n }

// ConfigRepository stores break configurations.
type ConfigRepository interface {
	// Find returns the config for a system and operation type or
	// ErrConfigNotFound.
	Find(ctx context.Context, systemID uuid.UUID, t provisioning.OperationType) (Config, error)

	// Save validates and stores a config.
	Save(ctx context.Context, cfg Config) error
}

// RecipientResolver resolves who receives escalation notifications for a
// config. It is consulted on every send so changes apply immediately.
type RecipientResolver interface {
	Recipients(ctx context.Context, configID uuid.UUID) ([]string, error)
}

// State is the externally visible breaker state of a system and type.
type State string

// Breaker states.
const (
	StateOpen    State = "OPEN"
	StateWarned  State = "WARNED"
	StateBlocked State = "BLOCKED"
)
