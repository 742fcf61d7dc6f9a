// Package config loads the walk engine server configuration.
//
// Values are resolved in three layers, each overriding the previous one:
//   - the YAML file named by --config or WALKS_CONFIG (optional),
//   - WALKS_* environment variables (DATABASE_URL is accepted for the DSN),
//   - command-line flags that were explicitly set.
//
// Anything left unset keeps the value from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Driver names the persistence backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config is the full server configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Booking   BookingConfig   `yaml:"booking"`
	Cache     CacheConfig     `yaml:"cache"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Log       LogConfig       `yaml:"log"`
	Seed      SeedConfig      `yaml:"seed"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	// Addr is the listen address.
	// Default: :8080
	Addr string `yaml:"addr"`

	// CORSOrigins lists origins allowed by the CORS middleware.
	CORSOrigins []string `yaml:"cors_origins"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	// Driver is one of memory, sqlite, postgres.
	// Default: sqlite
	Driver Driver `yaml:"driver"`

	// DSN is a file path (":memory:" allowed) for sqlite, or a connection URL
	// for postgres. Ignored by the memory driver.
	// Default: walks.db
	DSN string `yaml:"dsn"`

	// MaxOpenConns caps the postgres pool. SQLite always uses one connection.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// BookingConfig holds engine policy.
type BookingConfig struct {
	// CapacityPerSlot applies to walkers created without their own capacity
	// and caps the capacity of every walker.
	// Default: 6
	CapacityPerSlot int `yaml:"capacity_per_slot"`

	// RefundOnMidWalkCancellation returns the credit when an in-progress walk
	// is cancelled.
	// Default: false
	RefundOnMidWalkCancellation bool `yaml:"refund_on_mid_walk_cancellation"`
}

// CacheConfig configures the walker/plan read cache of the SQL store.
type CacheConfig struct {
	// TTL of cached entries. Zero disables caching.
	// Default: 30s
	TTL time.Duration `yaml:"ttl"`
}

// SchedulerConfig configures the subscription expiry sweeper.
type SchedulerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// SeedConfig names a demo scenario to load at startup.
type SeedConfig struct {
	Scenario string `yaml:"scenario"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			DSN:          "walks.db",
			MaxOpenConns: 10,
		},
		Booking: BookingConfig{
			CapacityPerSlot: 6,
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:             true,
			ExpirySweepInterval: time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads path over the defaults. An empty path returns the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("WALKS_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv("WALKS_DB_DRIVER"); v != "" {
		c.Database.Driver = Driver(v)
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("WALKS_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("WALKS_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("WALKS_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getenv("WALKS_REFUND_ON_MID_WALK_CANCELLATION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WALKS_REFUND_ON_MID_WALK_CANCELLATION: %w", err)
		}
		c.Booking.RefundOnMidWalkCancellation = b
	}
	if v := getenv("WALKS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WALKS_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	return nil
}

// =============================================================================
// FLAGS
// =============================================================================

const (
	flagConfig    = "config"
	flagAddr      = "addr"
	flagDriver    = "db-driver"
	flagDSN       = "dsn"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagCapacity  = "capacity"
	flagRefund    = "refund-mid-walk"
	flagSeed      = "seed"
)

// BindFlags registers the server flags on fs. Flag defaults are only shown in
// help output; a flag overrides the file and environment when it is set.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(flagConfig, "", "path to YAML config file (env WALKS_CONFIG)")
	fs.String(flagAddr, d.HTTP.Addr, "HTTP listen address")
	fs.String(flagDriver, string(d.Database.Driver), "store driver: memory, sqlite or postgres")
	fs.String(flagDSN, d.Database.DSN, "sqlite path or postgres URL")
	fs.String(flagLogLevel, d.Log.Level, "log level: debug, info, warn, error")
	fs.String(flagLogFormat, d.Log.Format, "log format: text or json")
	fs.Int(flagCapacity, d.Booking.CapacityPerSlot, "default dogs per walker slot")
	fs.Bool(flagRefund, d.Booking.RefundOnMidWalkCancellation, "refund credits for walks cancelled mid-walk")
	fs.String(flagSeed, "", "demo scenario to load at startup")
}

// ApplyFlags copies every flag that was explicitly set on fs.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if !fs.Changed(name) {
			return
		}
		v, err := fs.GetString(name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}

	str(flagAddr, &c.HTTP.Addr)
	str(flagDSN, &c.Database.DSN)
	str(flagLogLevel, &c.Log.Level)
	str(flagLogFormat, &c.Log.Format)
	str(flagSeed, &c.Seed.Scenario)

	var driver string
	str(flagDriver, &driver)
	if driver != "" {
		c.Database.Driver = Driver(driver)
	}
	if fs.Changed(flagCapacity) {
		v, err := fs.GetInt(flagCapacity)
		errs = append(errs, err)
		c.Booking.CapacityPerSlot = v
	}
	if fs.Changed(flagRefund) {
		v, err := fs.GetBool(flagRefund)
		errs = append(errs, err)
		c.Booking.RefundOnMidWalkCancellation = v
	}
	return errors.Join(errs...)
}

// Resolve builds the configuration from a parsed flag set and the environment.
func Resolve(fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	path := getenv("WALKS_CONFIG")
	if fs.Changed(flagConfig) {
		p, err := fs.GetString(flagConfig)
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(fs); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}
	if c.Database.Driver != DriverMemory && strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if c.Booking.CapacityPerSlot < 1 {
		errs = append(errs, fmt.Errorf("booking.capacity_per_slot: must be at least 1, got %d", c.Booking.CapacityPerSlot))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl: must not be negative"))
	}
	if c.Scheduler.Enabled && c.Scheduler.ExpirySweepInterval <= 0 {
		errs = append(errs, errors.New("scheduler.expiry_sweep_interval: must be positive"))
	}
	if c.HTTP.ReadTimeout < 0 || c.HTTP.WriteTimeout < 0 || c.HTTP.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("http: timeouts must not be negative"))
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr: required"))
	}
	return errors.Join(errs...)
}
