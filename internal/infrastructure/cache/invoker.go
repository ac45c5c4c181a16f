package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	appctx "txcalc/internal/core/context"
	"txcalc/internal/domain/fetcher"
	"txcalc/pkg/logger"
)

const keyPrefix = "txcalc:rpc:"

// DefaultMethods are the procedures whose answers depend only on their
// arguments. Item details and price list lookups are left out since
// pricing rules change underneath them.
var DefaultMethods = []string{
	fetcher.MethodConversionFactor,
	fetcher.MethodWeightPerUnit,
	fetcher.MethodItemTaxMap,
	fetcher.MethodTaxesTemplate,
	fetcher.MethodExchangeRate,
}

// Invoker caches successful answers of selected methods and coalesces
// concurrent identical calls. Redis failures fall through to the next
// invoker.
type Invoker struct {
	next    fetcher.Invoker
	client  *redis.Client
	ttl     time.Duration
	methods map[string]struct{}
	group   singleflight.Group
}

var _ fetcher.Invoker = (*Invoker)(nil)

// NewInvoker wraps next. With no methods given, DefaultMethods are cached.
func NewInvoker(next fetcher.Invoker, client *redis.Client, ttl time.Duration, methods ...string) *Invoker {
	if len(methods) == 0 {
		methods = DefaultMethods
	}
	set := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	return &Invoker{next: next, client: client, ttl: ttl, methods: set}
}

// Invoke implements fetcher.Invoker.
func (c *Invoker) Invoke(ctx context.Context, method string, args map[string]any) (fetcher.Response, error) {
	if _, ok := c.methods[method]; !ok || c.client == nil {
		return c.next.Invoke(ctx, method, args)
	}

	key, err := Key(method, args)
	if err != nil {
		return c.next.Invoke(ctx, method, args)
	}
	if resp, ok := c.lookup(ctx, key); ok {
		return resp, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// the flight outlives the caller that started it
		flightCtx := appctx.Detach(ctx)
		if resp, ok := c.lookup(flightCtx, key); ok {
			return resp, nil
		}
		resp, err := c.next.Invoke(flightCtx, method, args)
		if err != nil {
			return fetcher.Response{}, err
		}
		if !resp.Failed() {
			c.store(flightCtx, key, resp)
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return fetcher.Response{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fetcher.Response{}, res.Err
		}
		return res.Val.(fetcher.Response), nil
	}
}

func (c *Invoker) lookup(ctx context.Context, key string) (fetcher.Response, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "cache read failed", "key", key, "error", err)
		}
		return fetcher.Response{}, false
	}
	var resp fetcher.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		logger.Warn(ctx, "cache entry corrupt", "key", key, "error", err)
		return fetcher.Response{}, false
	}
	return resp, true
}

func (c *Invoker) store(ctx context.Context, key string, resp fetcher.Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Warn(ctx, "cache write failed", "key", key, "error", err)
	}
}

// Flush removes every cached answer and returns how many were removed.
func (c *Invoker) Flush(ctx context.Context) (int64, error) {
	var removed int64
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return removed, fmt.Errorf("cache: delete %s: %w", iter.Val(), err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache: scan: %w", err)
	}
	return removed, nil
}

// Key derives the cache key of a call. Map keys are marshalled in sorted
// order, so equal arguments give equal keys.
func Key(method string, args map[string]any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return keyPrefix + method + ":" + hex.EncodeToString(sum[:16]), nil
}

// Ping checks the Redis connection.
func (c *Invoker) Ping(ctx context.Context) error {
	if c.client == nil {
		return errors.New("redis is not configured")
	}
	return c.client.Ping(ctx).Err()
}
