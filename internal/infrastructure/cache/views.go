package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"medstock/pkg/logger"
)

// BumpChannel receives "<tenant>:<company>:<view>:<version>" on every invalidation.
const BumpChannel = "views.bump"

const keyPrefix = "views"

// ViewCache caches derived read views per tenant and company.
// Each view has a version counter; bumping it orphans every key built with
// the old version, which then expire by TTL.
type ViewCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewViewCache creates a view cache. A nil client disables caching.
func NewViewCache(client *redis.Client, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func versionKey(tenantID, companyID, view string) string {
	return strings.Join([]string{keyPrefix, "version", tenantID, companyID, view}, ":")
}

// Version returns the current version of a view, 0 when it was never bumped.
func (c *ViewCache) Version(ctx context.Context, tenantID, companyID, view string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(tenantID, companyID, view)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes a cache key bound to the view's current version.
func (c *ViewCache) BuildKey(ctx context.Context, tenantID, companyID, view string, parts ...string) (string, error) {
	ver, err := c.Version(ctx, tenantID, companyID, view)
	if err != nil {
		return "", err
	}
	all := append([]string{keyPrefix, view, tenantID, companyID}, parts...)
	return fmt.Sprintf("%s:v%d", strings.Join(all, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
// Redis read failures fall through to the loader.
func (c *ViewCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "view cache read failed", "key", key, "error", err)
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			logger.Warn(ctx, "view cache write failed", "key", key, "error", err)
		}
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the version of each view and publishes the bump.
// All views are attempted; the errors are joined.
func (c *ViewCache) Invalidate(ctx context.Context, tenantID, companyID string, views ...string) error {
	if c == nil || c.client == nil {
		return nil
	}

	var errs []error
	for _, view := range views {
		ver, err := c.client.Incr(ctx, versionKey(tenantID, companyID, view)).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("bump %s: %w", view, err))
			continue
		}
		msg := strings.Join([]string{tenantID, companyID, view, strconv.FormatInt(ver, 10)}, ":")
		if err := c.client.Publish(ctx, BumpChannel, msg).Err(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", view, err))
		}
	}
	return errors.Join(errs...)
}
