// Package config provides the unified configuration system for cartsync.
// It defines a single Config structure covering the sync pipeline, the
// catalog API transport, persistence, and observability.
//
// The configuration is organized into logical sections:
//   - API: Catalog endpoint, authentication, request timeouts
//   - Sync: Page, batch, and chunk sizing plus target tables
//   - Reliability: Retry logic, backoff bounds, circuit breaker
//   - Memory: Heap threshold for guard-triggered cache eviction
//   - Storage: Sink driver and connection settings
//   - Observability: Logging and metrics exposure
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.API.Endpoint = "https://shop.example.com/admin/api/graphql"
//	cfg.Sync.ChunkSize = 500
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the single configuration structure for a cartsync engine instance.
type Config struct {
	// Name identifies the sync engine instance
	Name string `yaml:"name" json:"name"`

	// API settings for the remote catalog transport
	API APIConfig `yaml:"api" json:"api"`

	// Sync settings control paging, batching, and chunking
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Reliability settings for retries and resilience
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Memory management configuration
	Memory MemoryConfig `yaml:"memory" json:"memory"`

	// Storage configuration for the persistence sink
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// APIConfig contains remote catalog API transport settings.
type APIConfig struct {
	// Endpoint is the GraphQL endpoint URL
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// AccessToken authenticates requests via header when set
	AccessToken string `yaml:"access_token" json:"access_token"`
	// Auth selects an alternative authentication mode
	Auth AuthConfig `yaml:"auth" json:"auth"`
	// TimeoutMs bounds a single HTTP request round trip
	TimeoutMs int `yaml:"timeout_ms" json:"timeout_ms"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// Authentication modes accepted by AuthConfig.Type.
const (
	AuthTypeToken  = "token"
	AuthTypeOAuth2 = "oauth2"
)

// AuthConfig selects how the transport authenticates.
// Type "token" uses APIConfig.AccessToken; "oauth2" uses the
// client-credentials flow against TokenURL.
type AuthConfig struct {
	Type         string   `yaml:"type" json:"type"`
	ClientID     string   `yaml:"client_id" json:"client_id"`
	ClientSecret string   `yaml:"client_secret" json:"client_secret"`
	TokenURL     string   `yaml:"token_url" json:"token_url"`
	Scopes       []string `yaml:"scopes" json:"scopes"`
}

// SyncConfig contains pipeline sizing settings.
type SyncConfig struct {
	// BatchSize is the remote page size and the identifier count per
	// batched lookup query
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// ChunkSize is the local transform and persistence group size
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ProductsTable is the sink table for flattened products
	ProductsTable string `yaml:"products_table" json:"products_table"`
	// VariantsTable is the sink table for flattened variants
	VariantsTable string `yaml:"variants_table" json:"variants_table"`
}

// ReliabilityConfig contains retry and resilience settings.
type ReliabilityConfig struct {
	// MaxRetries sets the total attempt budget per request
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// BaseDelayMs is the first backoff delay in milliseconds
	BaseDelayMs int `yaml:"base_delay_ms" json:"base_delay_ms"`
	// MaxDelayMs caps the backoff delay in milliseconds
	MaxDelayMs int `yaml:"max_delay_ms" json:"max_delay_ms"`
	// CircuitBreaker wraps the transport in a circuit breaker when true
	CircuitBreaker bool `yaml:"circuit_breaker" json:"circuit_breaker"`
	// RecheckAfterWait re-evaluates capacity after a rate limit wait
	// instead of proceeding unconditionally
	RecheckAfterWait bool `yaml:"recheck_after_wait" json:"recheck_after_wait"`
}

// MemoryConfig contains memory guard settings.
type MemoryConfig struct {
	// ThresholdBytes is the heap usage above which registered caches are
	// evicted wholesale
	ThresholdBytes uint64 `yaml:"threshold_bytes" json:"threshold_bytes"`
}

// Storage drivers accepted by StorageConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// StorageConfig contains persistence sink settings.
type StorageConfig struct {
	// Driver selects the sink implementation: postgres, mysql, or memory
	Driver string `yaml:"driver" json:"driver"`
	// DSN is the driver-specific connection string
	DSN string `yaml:"dsn" json:"dsn"`
	// MaxConns bounds the connection pool
	MaxConns int `yaml:"max_conns" json:"max_conns"`
	// MinConns keeps warm connections in the pool
	MinConns int `yaml:"min_conns" json:"min_conns"`
}

// ObservabilityConfig contains logging and metrics settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Development switches to console encoding with colored levels
	Development bool `yaml:"development" json:"development"`
	// MetricsAddr exposes a Prometheus endpoint when set (e.g. ":9090")
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// DefaultConfig creates a Config with production-ready defaults. Callers
// override the endpoint, credentials, and DSN, then call Validate.
func DefaultConfig() *Config {
	return &Config{
		Name: "cartsync",
		API: APIConfig{
			TimeoutMs: 30000,
			UserAgent: "cartsync/1.0",
			Auth: AuthConfig{
				Type: AuthTypeToken,
			},
		},
		Sync: SyncConfig{
			BatchSize:     50,
			ChunkSize:     250,
			ProductsTable: "products",
			VariantsTable: "variants",
		},
		Reliability: ReliabilityConfig{
			MaxRetries:       3,
			BaseDelayMs:      1000,
			MaxDelayMs:       30000,
			CircuitBreaker:   false,
			RecheckAfterWait: false,
		},
		Memory: MemoryConfig{
			ThresholdBytes: 512 * 1024 * 1024, // 512MB
		},
		Storage: StorageConfig{
			Driver:   DriverPostgres,
			MaxConns: 10,
			MinConns: 2,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			Development: false,
		},
	}
}

// Validate validates the configuration for correctness. It checks required
// fields and ensures sizing values are positive.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.Sync.ProductsTable == "" || c.Sync.VariantsTable == "" {
		return fmt.Errorf("products_table and variants_table are required")
	}
	if c.Reliability.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	if c.Reliability.BaseDelayMs <= 0 {
		return fmt.Errorf("base_delay_ms must be positive")
	}
	if c.Reliability.MaxDelayMs <= 0 {
		return fmt.Errorf("max_delay_ms must be positive")
	}
	if c.Reliability.MaxDelayMs < c.Reliability.BaseDelayMs {
		return fmt.Errorf("max_delay_ms must be at least base_delay_ms")
	}
	if c.Memory.ThresholdBytes == 0 {
		return fmt.Errorf("threshold_bytes must be positive")
	}
	if c.API.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive")
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.API.Auth.Type {
	case "", AuthTypeToken, AuthTypeOAuth2:
	default:
		return fmt.Errorf("unknown auth type %q", c.API.Auth.Type)
	}
	return nil
}

// BaseDelay returns the initial backoff delay as a duration
func (r *ReliabilityConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff delay cap as a duration
func (r *ReliabilityConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMs) * time.Millisecond
}

// Timeout returns the per-request timeout as a duration
func (a *APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// UsesOAuth returns true when client-credentials authentication is configured
func (a *AuthConfig) UsesOAuth() bool {
	return a.Type == AuthTypeOAuth2
}
