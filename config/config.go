// Package config provides configuration management for Fusemem.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the global configuration for Fusemem.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP API server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Retrieval is the query pipeline configuration.
	Retrieval RetrievalConfig `mapstructure:"retrieval"`

	// Sources configures the individual retrieval engines.
	Sources SourcesConfig `mapstructure:"sources"`

	// Cache is the fused-result cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Storage is the persistence configuration for failure events and
	// tuner state.
	Storage StorageConfig `mapstructure:"storage"`

	// EventBus is the miss/retune event publishing configuration.
	EventBus EventBusConfig `mapstructure:"eventbus"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// RateLimit is the per-client request throttle configuration.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds request handling end to end.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// RateLimitConfig holds request throttle settings.
type RateLimitConfig struct {
	// Enabled enables per-client rate limiting.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained per-client rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the per-client burst allowance.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// RetrievalConfig holds the query pipeline settings.
type RetrievalConfig struct {
	// DefaultLimit is the fused result count when the caller passes none.
	DefaultLimit int `mapstructure:"default_limit" validate:"min=1"`

	// MaxLimit caps the caller-supplied result limit.
	MaxLimit int `mapstructure:"max_limit" validate:"min=1"`

	// CandidateMultiplier scales the per-source fetch limit relative to
	// the fused limit.
	CandidateMultiplier int `mapstructure:"candidate_multiplier" validate:"min=1"`

	// SourceTimeout bounds each individual source fetch.
	SourceTimeout time.Duration `mapstructure:"source_timeout"`

	// Classifier holds the query classification thresholds.
	Classifier ClassifierConfig `mapstructure:"classifier"`

	// Fusion holds the score fusion parameters.
	Fusion FusionConfig `mapstructure:"fusion"`

	// Guard holds the early-exit guard parameters.
	Guard GuardConfig `mapstructure:"guard"`

	// Tuner holds the adaptive weight tuner parameters.
	Tuner TunerConfig `mapstructure:"tuner"`

	// Recorder holds the miss recorder parameters.
	Recorder RecorderConfig `mapstructure:"recorder"`

	// Adaptive switches profile selection to the continuously tuned
	// profile instead of the deterministic label map.
	Adaptive bool `mapstructure:"adaptive"`
}

// ClassifierConfig holds query classification thresholds.
type ClassifierConfig struct {
	// IdentifierBelow is the resonance threshold below which a query is
	// classified as identifier-like.
	IdentifierBelow float64 `mapstructure:"identifier_below" validate:"min=0,max=1"`

	// AbstractAbove is the resonance threshold above which a query is
	// classified as abstract.
	AbstractAbove float64 `mapstructure:"abstract_above" validate:"min=0,max=1"`
}

// FusionConfig holds score fusion settings.
type FusionConfig struct {
	// K is the reciprocal-rank damping constant.
	K float64 `mapstructure:"k" validate:"min=1"`

	// AdaptiveK scales K with candidate density between KMin and KMax.
	AdaptiveK bool    `mapstructure:"adaptive_k"`
	KMin      float64 `mapstructure:"k_min" validate:"min=0"`
	KMax      float64 `mapstructure:"k_max" validate:"min=0"`

	// SynergyBoost multiplies the fused score of items found by more than
	// one engine. Must be >= 1.
	SynergyBoost float64 `mapstructure:"synergy_boost" validate:"min=1"`

	// ClipMin and ClipMax bound composite scores.
	ClipMin float64 `mapstructure:"clip_min"`
	ClipMax float64 `mapstructure:"clip_max"`
}

// GuardConfig holds early-exit guard settings.
type GuardConfig struct {
	// Enabled enables skipping deferred sources for specific queries.
	Enabled bool `mapstructure:"enabled"`

	// PrimaryEngine is the engine whose result count drives the skip
	// decision. Empty selects the profile's highest-weighted engine.
	PrimaryEngine string `mapstructure:"primary_engine"`

	// MinResults is the specificity threshold: skipping is only permitted
	// when the primary engine returned fewer results than this.
	MinResults int `mapstructure:"min_results" validate:"min=1"`

	// ConfidenceThreshold is the primary engine's raw top score at which a
	// narrow result set promotes the lexical-first profile.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"min=0"`
}

// TunerConfig holds adaptive weight tuner settings.
type TunerConfig struct {
	// Enabled enables background retuning.
	Enabled bool `mapstructure:"enabled"`

	// PriorAlpha and PriorBeta are the Beta prior pseudo-counts.
	PriorAlpha float64 `mapstructure:"prior_alpha" validate:"min=0"`
	PriorBeta  float64 `mapstructure:"prior_beta" validate:"min=0"`

	// Decay multiplies all counts at each retune. Must be in (0, 1].
	Decay float64 `mapstructure:"decay" validate:"gt=0,max=1"`

	// Interval is the background retune cadence.
	Interval time.Duration `mapstructure:"interval"`

	// RetuneAfter triggers an off-schedule retune after this many feedback
	// events. Zero disables the batch trigger.
	RetuneAfter int `mapstructure:"retune_after" validate:"min=0"`

	// MinWeight floors every engine's tuned weight.
	MinWeight float64 `mapstructure:"min_weight" validate:"min=0"`
}

// RecorderConfig holds miss recorder settings.
type RecorderConfig struct {
	// Enabled enables miss detection and recording.
	Enabled bool `mapstructure:"enabled"`

	// RelevanceFloor is the minimum top fused score for a retrieval to
	// count as a hit.
	RelevanceFloor float64 `mapstructure:"relevance_floor" validate:"min=0,max=1"`
}

// SourcesConfig holds the per-engine settings.
type SourcesConfig struct {
	// Vector is the dense vector engine configuration.
	Vector VectorSourceConfig `mapstructure:"vector"`

	// Lexical is the BM25 engine configuration.
	Lexical LexicalSourceConfig `mapstructure:"lexical"`

	// Graph is the graph walk engine configuration.
	Graph GraphSourceConfig `mapstructure:"graph"`
}

// VectorSourceConfig holds dense vector engine settings.
type VectorSourceConfig struct {
	// Enabled enables the vector source.
	Enabled bool `mapstructure:"enabled"`

	// Dimension is the embedding dimension.
	Dimension int `mapstructure:"dimension" validate:"min=1"`

	// IndexPath is an optional snapshot file loaded at startup and saved
	// on shutdown. Empty keeps the index in memory only.
	IndexPath string `mapstructure:"index_path"`
}

// LexicalSourceConfig holds BM25 engine settings.
type LexicalSourceConfig struct {
	// Enabled enables the lexical source.
	Enabled bool `mapstructure:"enabled"`

	// K1 is the BM25 term-frequency saturation parameter.
	K1 float64 `mapstructure:"k1" validate:"min=0"`

	// B is the BM25 length normalization parameter.
	B float64 `mapstructure:"b" validate:"min=0,max=1"`
}

// GraphSourceConfig holds graph walk engine settings.
type GraphSourceConfig struct {
	// Enabled enables the graph source.
	Enabled bool `mapstructure:"enabled"`

	// DefaultDepth is the traversal depth when the caller passes none.
	DefaultDepth int `mapstructure:"default_depth" validate:"min=1"`

	// Decay attenuates scores per traversal hop. Must be in (0, 1].
	Decay float64 `mapstructure:"decay" validate:"gt=0,max=1"`
}

// CacheConfig holds fused-result cache settings.
type CacheConfig struct {
	// Enabled enables the Redis result cache.
	Enabled bool `mapstructure:"enabled"`

	// TTL is the cache entry lifetime.
	TTL time.Duration `mapstructure:"ttl"`

	// KeyPrefix namespaces cache keys.
	KeyPrefix string `mapstructure:"key_prefix"`

	// Redis is the Redis connection configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address" validate:"omitempty,host"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// FailureTTL expires recorded failure events. Zero keeps them forever.
	FailureTTL time.Duration `mapstructure:"failure_ttl"`

	// GCInterval is the value-log garbage collection cadence.
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// EventBusConfig holds event publishing settings.
type EventBusConfig struct {
	// Enabled enables miss and retune event publishing.
	Enabled bool `mapstructure:"enabled"`

	// BufferSize is the per-subscription channel buffer.
	BufferSize int `mapstructure:"buffer_size" validate:"min=1"`

	// MaxRetries bounds publish retries before the publisher degrades.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`

	// RetryBackoff is the initial publish retry backoff.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the trace exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are additional headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds span export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler selects the sampling strategy
	// (always_on, always_off, parentbased_traceidratio).
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off parentbased_traceidratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Normalize canonicalizes string fields before validation.
func (c *Config) Normalize() {
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "otlpgrpc"
	}
	c.Tracing.Sampler = strings.ToLower(strings.TrimSpace(c.Tracing.Sampler))
	if c.Tracing.Sampler == "" {
		c.Tracing.Sampler = "parentbased_traceidratio"
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Retrieval.Classifier.IdentifierBelow > c.Retrieval.Classifier.AbstractAbove {
		return fmt.Errorf("config validation failed: classifier identifier_below must not exceed abstract_above")
	}
	if c.Retrieval.MaxLimit < c.Retrieval.DefaultLimit {
		return fmt.Errorf("config validation failed: retrieval max_limit must be >= default_limit")
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
