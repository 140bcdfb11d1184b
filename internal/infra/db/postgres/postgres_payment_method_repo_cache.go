package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
	"crypto-role-subscription/internal/infra/metrics"
	red "crypto-role-subscription/internal/infra/redis"
)

var _ repository.PaymentMethodRepository = (*methodRepoCacheDecorator)(nil)

// methodRepoCacheDecorator caches method lookups outside transactions.
// Reads that carry a tx go straight to the database so row locks still apply.
type methodRepoCacheDecorator struct {
	inner repository.PaymentMethodRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewMethodRepoCacheDecorator(inner repository.PaymentMethodRepository, cache red.RedisClient, ttl time.Duration) repository.PaymentMethodRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &methodRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func methodKey(id string) string           { return fmt.Sprintf("method:%s", id) }
func methodListKey(community string) string { return fmt.Sprintf("methods:%s", community) }

func (d *methodRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	key := methodKey(id)
	var m model.PaymentMethod
	if d.lookup(ctx, "method", key, &m) {
		return &m, nil
	}
	found, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, found)
	return found, nil
}

func (d *methodRepoCacheDecorator) FindByName(ctx context.Context, tx repository.Tx, communityID, name string) (*model.PaymentMethod, error) {
	return d.inner.FindByName(ctx, tx, communityID, name)
}

func (d *methodRepoCacheDecorator) ListByCommunity(ctx context.Context, tx repository.Tx, communityID string) ([]*model.PaymentMethod, error) {
	if tx != nil {
		return d.inner.ListByCommunity(ctx, tx, communityID)
	}
	key := methodListKey(communityID)
	var list []*model.PaymentMethod
	if d.lookup(ctx, "method_list", key, &list) {
		return list, nil
	}
	list, err := d.inner.ListByCommunity(ctx, tx, communityID)
	if err != nil {
		return nil, err
	}
	if len(list) > 0 {
		d.store(ctx, key, list)
	}
	return list, nil
}

// Writes invalidate both the entry and the community list, before the write
// and again once it succeeded, so a read that refilled the cache while the
// write was in flight does not outlive it.
func (d *methodRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	d.invalidate(ctx, m)
	if err := d.inner.Save(ctx, tx, m); err != nil {
		return err
	}
	d.invalidate(ctx, m)
	return nil
}

func (d *methodRepoCacheDecorator) Delete(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	d.invalidate(ctx, m)
	if err := d.inner.Delete(ctx, tx, m); err != nil {
		return err
	}
	d.invalidate(ctx, m)
	return nil
}

func (d *methodRepoCacheDecorator) lookup(ctx context.Context, cache, key string, dst any) bool {
	val, err := d.cache.Get(ctx, key)
	switch {
	case err == nil:
		if json.Unmarshal([]byte(val), dst) == nil {
			metrics.IncCacheRequest(cache, "hit")
			return true
		}
		metrics.IncCacheRequest(cache, "corrupt")
	case errors.Is(err, red.ErrCacheMiss):
		metrics.IncCacheRequest(cache, "miss")
	default:
		metrics.IncCacheRequest(cache, "error")
	}
	return false
}

func (d *methodRepoCacheDecorator) store(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, key, b, d.ttl)
}

func (d *methodRepoCacheDecorator) invalidate(ctx context.Context, m *model.PaymentMethod) {
	_ = d.cache.Del(ctx, methodKey(m.ID))
	_ = d.cache.Del(ctx, methodListKey(m.CommunityID))
}
