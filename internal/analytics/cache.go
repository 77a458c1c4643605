package analytics

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pharmalytics/pharmalytics/internal/period"
	"github.com/pharmalytics/pharmalytics/internal/query"
)

const (
	cacheVersionKey = "analytics:version"
	// BumpChannel carries version bumps published after an ETL refresh.
	BumpChannel = "analytics.bump"
)

// Cache wraps Redis based caching with versioning controls. Lookups are
// advisory: a Redis failure falls through to the loader.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics Recorder
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger, metrics Recorder) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Cache{client: client, ttl: ttl, logger: logger, metrics: metrics}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. Loader
// errors are returned as-is and never cached.
func FetchJSON[T any](ctx context.Context, c *Cache, name string, parts []string, loader func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	var out T
	key, err := c.BuildKey(ctx, parts...)
	if err != nil {
		c.logger.Warn("analytics cache unavailable", slog.String("cache", name), slog.Any("error", err))
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(payload, &out); jsonErr == nil {
			c.metrics.ObserveCache(name, "hit")
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("analytics cache read", slog.String("key", key), slog.Any("error", err))
	}
	c.metrics.ObserveCache(name, "miss")

	value, err := loader(ctx)
	if err != nil {
		return value, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return value, nil
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("analytics cache write", slog.String("key", key), slog.Any("error", err))
	}
	return value, nil
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by the ETL until ctx
// is done.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = BumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("analytics cache: subscribe %s: %w", channel, err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil && ver > 0 {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
					continue
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func rangeToken(r period.DateRange) string {
	return r.Start.String() + "_" + r.End.String()
}

// filterToken is order independent so permuted filter lists share an entry.
func filterToken(f query.Filters) string {
	if f.Count() == 0 {
		return "all"
	}
	ids := f.PharmacyStrings()
	sort.Strings(ids)
	labs := append([]string(nil), f.BrandLabs...)
	sort.Strings(labs)
	sum := sha1.Sum([]byte(strings.Join(ids, ",") + "|" + strings.Join(labs, ",")))
	return hex.EncodeToString(sum[:8])
}

func keyKPIs(req Request) []string {
	return []string{"analytics", "kpis", rangeToken(req.Periods.Analysis.Range), rangeToken(req.Periods.Comparison.Range), filterToken(req.Filters)}
}

func keyEvolution(req Request) []string {
	return []string{"analytics", "evolution", rangeToken(req.Periods.Analysis.Range), rangeToken(req.Periods.Comparison.Range), filterToken(req.Filters)}
}

func keyTop(req query.TopRequest) []string {
	return []string{"analytics", "top", string(req.View), string(req.SortBy), strconv.Itoa(req.Limit),
		strconv.Itoa(req.Year), strconv.Itoa(req.Month), filterToken(req.Filters)}
}
