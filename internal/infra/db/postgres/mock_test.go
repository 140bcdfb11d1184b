//go:build !integration

package postgres

import (
	"context"
	"time"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
	red "crypto-role-subscription/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerMethodRepo mocks the database repository that the method decorator wraps.
type mockInnerMethodRepo struct {
	SaveFunc            func(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error
	FindByIDFunc        func(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error)
	FindByNameFunc      func(ctx context.Context, tx repository.Tx, communityID, name string) (*model.PaymentMethod, error)
	ListByCommunityFunc func(ctx context.Context, tx repository.Tx, communityID string) ([]*model.PaymentMethod, error)
	DeleteFunc          func(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error
}

func (m *mockInnerMethodRepo) Save(ctx context.Context, tx repository.Tx, pm *model.PaymentMethod) error {
	return m.SaveFunc(ctx, tx, pm)
}
func (m *mockInnerMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerMethodRepo) FindByName(ctx context.Context, tx repository.Tx, communityID, name string) (*model.PaymentMethod, error) {
	return m.FindByNameFunc(ctx, tx, communityID, name)
}
func (m *mockInnerMethodRepo) ListByCommunity(ctx context.Context, tx repository.Tx, communityID string) ([]*model.PaymentMethod, error) {
	return m.ListByCommunityFunc(ctx, tx, communityID)
}
func (m *mockInnerMethodRepo) Delete(ctx context.Context, tx repository.Tx, pm *model.PaymentMethod) error {
	return m.DeleteFunc(ctx, tx, pm)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.ErrCacheMiss
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return nil }
