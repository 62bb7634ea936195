/**
 * @description
 * This package resolves the tunable numeric limits that govern point grants:
 * the per-transaction grant cap, the per-customer balance cap, and the
 * default expiry window. Values live in the point_policy table as strings; a
 * missing or malformed value silently falls back to the compiled-in default,
 * so a bad policy row can never take the service down.
 *
 * An optional Redis cache sits in front of the table because policy lookups
 * are on the hot path of every grant and spend.
 *
 * @dependencies
 * - context, strconv, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: Optional read-through cache.
 * - internal/store: For the policy table lookups.
 */

package policy

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/pointsystem/point-service/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	MaxGrantPerTransactionKey = "MAX_GRANT_PER_TRANSACTION"
	MaxBalancePerCustomerKey  = "MAX_BALANCE_PER_CUSTOMER"
	DefaultExpireDaysKey      = "DEFAULT_EXPIRE_DAYS"

	DefaultMaxGrantPerTransaction = 100_000
	DefaultMaxBalancePerCustomer  = 5_000_000
	DefaultExpireDays             = 365
)

// Store is the slice of the repository the provider needs.
type Store interface {
	FindPolicyValue(ctx context.Context, key string) (string, error)
}

// Provider resolves policy values with compiled-in fallbacks.
type Provider struct {
	store       Store
	cache       redis.UniversalClient
	cachePrefix string
	cacheTTL    time.Duration
}

// NewProvider creates a provider reading straight from the store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// WithCache attaches a Redis read-through cache. A nil client leaves caching
// disabled.
func (p *Provider) WithCache(client redis.UniversalClient, prefix string, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "pointsystem:policy"
	}
	p.cache = client
	p.cachePrefix = prefix
	p.cacheTTL = ttl
	return p
}

// MaxGrantPerTransaction is the largest amount one grant request may carry.
func (p *Provider) MaxGrantPerTransaction(ctx context.Context) int64 {
	return p.GetInt(ctx, MaxGrantPerTransactionKey, DefaultMaxGrantPerTransaction)
}

// MaxBalancePerCustomer caps a customer's total available balance.
func (p *Provider) MaxBalancePerCustomer(ctx context.Context) int64 {
	return p.GetInt(ctx, MaxBalancePerCustomerKey, DefaultMaxBalancePerCustomer)
}

// DefaultExpireDays is the expiry window applied when a grant request carries
// no explicit expiry, and the window given to restore grants.
func (p *Provider) DefaultExpireDays(ctx context.Context) int64 {
	return p.GetInt(ctx, DefaultExpireDaysKey, DefaultExpireDays)
}

// GetInt resolves one policy key, tolerating missing and malformed stored
// values by falling back to the supplied default.
func (p *Provider) GetInt(ctx context.Context, key string, defaultValue int64) int64 {
	raw, found := p.cachedValue(ctx, key)
	if !found {
		var err error
		raw, err = p.store.FindPolicyValue(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrPolicyNotFound) {
				log.Printf("level=warn component=policy msg=\"policy lookup failed; using default\" key=%s default=%d err=%v", key, defaultValue, err)
			}
			return defaultValue
		}
		p.storeCached(ctx, key, raw)
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("level=warn component=policy msg=\"malformed policy value; using default\" key=%s value=%q default=%d", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

// Refresh re-reads the three known policy keys into the cache. The cron job
// in cmd/main calls this periodically so hot-path reads stay warm.
func (p *Provider) Refresh(ctx context.Context) {
	if p.cache == nil {
		return
	}
	for _, key := range []string{MaxGrantPerTransactionKey, MaxBalancePerCustomerKey, DefaultExpireDaysKey} {
		raw, err := p.store.FindPolicyValue(ctx, key)
		if err != nil {
			continue
		}
		p.storeCached(ctx, key, raw)
	}
}

func (p *Provider) cachedValue(ctx context.Context, key string) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	raw, err := p.cache.Get(ctx, p.cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("level=warn component=policy msg=\"cache read failed\" key=%s err=%v", key, err)
		}
		return "", false
	}
	return raw, true
}

func (p *Provider) storeCached(ctx context.Context, key, value string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, p.cacheKey(key), value, p.cacheTTL).Err(); err != nil {
		log.Printf("level=warn component=policy msg=\"cache write failed\" key=%s err=%v", key, err)
	}
}

func (p *Provider) cacheKey(key string) string {
	return p.cachePrefix + ":" + key
}
