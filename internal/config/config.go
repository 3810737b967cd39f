// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Notifier backends.
const (
	NotifierLog    = "log"
	NotifierOutbox = "outbox"
)

// Config is the process configuration. Each field names the variable it is
// read from.
type Config struct {
	ServiceName string `env:"PROVISIONER_SERVICE_NAME" validate:"required"`
	LogLevel    string `env:"PROVISIONER_LOG_LEVEL" validate:"oneof=debug info warn error"`

	Storage        string `env:"PROVISIONER_STORAGE" validate:"oneof=postgres memory"`
	DatabaseURL    string `env:"DATABASE_URL" validate:"required_if=Storage postgres"`
	DBMinConns     int32  `env:"PROVISIONER_DB_MIN_CONNS" validate:"gte=0,ltefield=DBMaxConns"`
	DBMaxConns     int32  `env:"PROVISIONER_DB_MAX_CONNS" validate:"gte=2"`
	MigrationsPath string `env:"PROVISIONER_MIGRATIONS_PATH" validate:"required_if=Storage postgres"`

	OTLPEndpoint  string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure  bool    `env:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampling float64 `env:"PROVISIONER_TRACE_SAMPLING" validate:"gte=0,lte=1"`

	ProvisioningEnabled bool     `env:"PROVISIONER_ENABLED"`
	DisabledProcessors  []string `env:"PROVISIONER_DISABLED_PROCESSORS"`
	MaxInFlight         int64    `env:"PROVISIONER_MAX_IN_FLIGHT" validate:"gte=1"`

	ConnectorTimeout time.Duration `env:"PROVISIONER_CONNECTOR_TIMEOUT" validate:"gt=0"`
	ConnectorRate    float64       `env:"PROVISIONER_CONNECTOR_RATE" validate:"gte=0"`
	ConnectorBurst   int           `env:"PROVISIONER_CONNECTOR_BURST" validate:"gte=1"`

	RetryInterval  time.Duration `env:"PROVISIONER_RETRY_INTERVAL" validate:"gte=0"`
	RetryBatchSize int           `env:"PROVISIONER_RETRY_BATCH_SIZE" validate:"gte=1"`

	Notifier            string        `env:"PROVISIONER_NOTIFIER" validate:"oneof=log outbox"`
	OutboxRelayInterval time.Duration `env:"PROVISIONER_OUTBOX_RELAY_INTERVAL" validate:"gte=0"`

	// ApprovalRules maps approval definitions to approve, reject or manual.
	ApprovalRules map[string]string `env:"PROVISIONER_APPROVAL_RULES" validate:"dive,oneof=approve reject manual"`

	HealthAddr string `env:"PROVISIONER_HEALTH_ADDR" validate:"required"`
	DebugAddr  string `env:"PROVISIONER_DEBUG_ADDR"`
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		ServiceName:         "provisioner",
		LogLevel:            "info",
		Storage:             StoragePostgres,
		DBMinConns:          5,
		DBMaxConns:          20,
		MigrationsPath:      "file:///app/db/migrations",
		TraceSampling:       0.1,
		ProvisioningEnabled: true,
		MaxInFlight:         16,
		ConnectorTimeout:    30 * time.Second,
		ConnectorBurst:      1,
		RetryInterval:       time.Minute,
		RetryBatchSize:      100,
		Notifier:            NotifierLog,
		OutboxRelayInterval: 10 * time.Second,
		HealthAddr:          ":8080",
	}
}

// LookupFunc reads one variable.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration from the process environment.
func Load() (Config, error) { return LoadFrom(os.LookupEnv) }

// LoadFrom reads the configuration through lookup and validates it.
func LoadFrom(lookup LookupFunc) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	r.str("PROVISIONER_SERVICE_NAME", &cfg.ServiceName)
	r.str("PROVISIONER_LOG_LEVEL", &cfg.LogLevel)
	r.str("PROVISIONER_STORAGE", &cfg.Storage)
	cfg.DatabaseURL = databaseURL(lookup)
	r.int32("PROVISIONER_DB_MIN_CONNS", &cfg.DBMinConns)
	r.int32("PROVISIONER_DB_MAX_CONNS", &cfg.DBMaxConns)
	r.str("PROVISIONER_MIGRATIONS_PATH", &cfg.MigrationsPath)

	r.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)
	r.bool("OTEL_EXPORTER_OTLP_INSECURE", &cfg.OTLPInsecure)
	r.float("PROVISIONER_TRACE_SAMPLING", &cfg.TraceSampling)

	r.bool("PROVISIONER_ENABLED", &cfg.ProvisioningEnabled)
	r.list("PROVISIONER_DISABLED_PROCESSORS", &cfg.DisabledProcessors)
	r.int64("PROVISIONER_MAX_IN_FLIGHT", &cfg.MaxInFlight)

	r.duration("PROVISIONER_CONNECTOR_TIMEOUT", &cfg.ConnectorTimeout)
	r.float("PROVISIONER_CONNECTOR_RATE", &cfg.ConnectorRate)
	r.int("PROVISIONER_CONNECTOR_BURST", &cfg.ConnectorBurst)

	r.duration("PROVISIONER_RETRY_INTERVAL", &cfg.RetryInterval)
	r.int("PROVISIONER_RETRY_BATCH_SIZE", &cfg.RetryBatchSize)

	r.str("PROVISIONER_NOTIFIER", &cfg.Notifier)
	r.duration("PROVISIONER_OUTBOX_RELAY_INTERVAL", &cfg.OutboxRelayInterval)
	r.pairs("PROVISIONER_APPROVAL_RULES", &cfg.ApprovalRules)

	r.str("PROVISIONER_HEALTH_ADDR", &cfg.HealthAddr)
	r.str("PROVISIONER_DEBUG_ADDR", &cfg.DebugAddr)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from the
// POSTGRES_* variables.
func databaseURL(lookup LookupFunc) string {
	if dsn, ok := lookup("DATABASE_URL"); ok && dsn != "" {
		return dsn
	}

	get := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}
	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable",
		get("POSTGRES_USER", "postgres"),
		get("POSTGRES_PASSWORD", "postgres"),
		get("POSTGRES_HOST", "postgres"),
		get("POSTGRES_DB", "provisioner"),
	)
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	locale := en.New()
	translator, _ = ut.New(locale, locale).GetTranslator("en")

	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	if err := enTranslations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(fmt.Sprintf("config: registering validation translations: %v", err))
	}
}

// Validate checks the configuration and reports every violation in one
// error.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, msg := range verrs.Translate(translator) {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// reader parses variables into typed fields, collecting errors.
type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) get(key string) (string, bool) {
	v, ok := r.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *reader) fail(key, v string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s=%q: %w", key, v, err))
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *reader) bool(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = b
}

func (r *reader) int(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *reader) int32(key string, dst *int32) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = int32(n)
}

func (r *reader) int64(key string, dst *int64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = n
}

func (r *reader) float(key string, dst *float64) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = f
}

func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return
	}
	*dst = d
}

// list reads a comma separated list.
func (r *reader) list(key string, dst *[]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

// pairs reads a comma separated list of key=value pairs.
func (r *reader) pairs(key string, dst *map[string]string) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	out := make(map[string]string)
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, val, found := strings.Cut(item, "=")
		if !found || strings.TrimSpace(k) == "" {
			r.fail(key, v, fmt.Errorf("expected key=value, got %q", item))
			return
		}
		out[strings.TrimSpace(k)] = strings.ToLower(strings.TrimSpace(val))
	}
	*dst = out
}
