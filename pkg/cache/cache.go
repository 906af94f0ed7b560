// Package cache provides a Redis-backed result cache for fused retrievals.
// The cache is strictly an accelerator: every failure mode degrades to a
// miss and the engine recomputes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// Config holds cache configuration.
type Config struct {
	// TTL bounds staleness of cached fused results.
	TTL time.Duration

	// KeyPrefix namespaces this deployment's keys.
	KeyPrefix string
}

// DefaultConfig returns the default cache parameters.
func DefaultConfig() Config {
	return Config{
		TTL:       5 * time.Minute,
		KeyPrefix: "fusemem:result:",
	}
}

// cacheLogger is the minimal logger interface used by the cache.
type cacheLogger interface {
	Warn(msg string, args ...any)
}

// Telemetry records cache behavior.
type Telemetry interface {
	CacheError(op string)
}

type nopTelemetry struct{}

func (nopTelemetry) CacheError(op string) {}

// ResultCache implements retrieval.ResultCache over Redis.
type ResultCache struct {
	client    redis.Cmdable
	cfg       Config
	logger    cacheLogger
	telemetry Telemetry
}

// NewResultCache creates a result cache. logger and telemetry may be nil.
func NewResultCache(client redis.Cmdable, cfg Config, log cacheLogger, tel Telemetry) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultConfig().KeyPrefix
	}
	if tel == nil {
		tel = nopTelemetry{}
	}
	return &ResultCache{client: client, cfg: cfg, logger: log, telemetry: tel}
}

// NewClient creates a Redis client from standard options.
func NewClient(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}

// Ping verifies connectivity.
func Ping(ctx context.Context, client redis.Cmdable) error {
	return client.Ping(ctx).Err()
}

// Get implements retrieval.ResultCache. Any Redis or decode error is a miss.
func (c *ResultCache) Get(ctx context.Context, q retrieval.Query, opts retrieval.Options) (*retrieval.Result, bool) {
	data, err := c.client.Get(ctx, c.key(q, opts)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.telemetry.CacheError("get")
			if c.logger != nil {
				c.logger.Warn("result cache read failed", "error", err)
			}
		}
		return nil, false
	}

	var res retrieval.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.telemetry.CacheError("decode")
		if c.logger != nil {
			c.logger.Warn("result cache entry corrupt", "error", err)
		}
		return nil, false
	}
	return &res, true
}

// Set implements retrieval.ResultCache. Write failures are absorbed.
func (c *ResultCache) Set(ctx context.Context, q retrieval.Query, opts retrieval.Options, res retrieval.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		c.telemetry.CacheError("encode")
		return
	}
	if err := c.client.Set(ctx, c.key(q, opts), data, c.cfg.TTL).Err(); err != nil {
		c.telemetry.CacheError("set")
		if c.logger != nil {
			c.logger.Warn("result cache write failed", "error", err)
		}
	}
}

// key derives a deterministic cache key from everything that affects the
// fused result: query text, filters, depth, limit and any forced profile.
func (c *ResultCache) key(q retrieval.Query, opts retrieval.Options) string {
	var sb strings.Builder
	sb.WriteString(q.Text)
	sb.WriteByte('\n')

	filterKeys := make([]string, 0, len(q.Filters))
	for k := range q.Filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(q.Filters[k])
		sb.WriteByte('\n')
	}

	fmt.Fprintf(&sb, "depth=%d\nlimit=%d\nprofile=%s", q.Depth, opts.Limit, opts.ForceProfile)

	sum := sha256.Sum256([]byte(sb.String()))
	return c.cfg.KeyPrefix + hex.EncodeToString(sum[:])
}
