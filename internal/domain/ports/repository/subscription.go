package repository

import (
	"context"
	"time"

	"crypto-role-subscription/internal/domain/model"
)

type SubscriptionRepository interface {
	// Save inserts or updates by id.
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	// FindByKey finds the (community, member, method) subscription in any state.
	FindByKey(ctx context.Context, tx Tx, communityID, memberID, methodID string) (*model.Subscription, error)

	// ListDueForNotice returns active subscriptions expiring within window of now.
	ListDueForNotice(ctx context.Context, tx Tx, now time.Time, window time.Duration, limit int) ([]*model.Subscription, error)
	// ListDueForExpiry returns live subscriptions with expires_at <= now.
	ListDueForExpiry(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Subscription, error)
	ListLiveByMethod(ctx context.Context, tx Tx, methodID string) ([]*model.Subscription, error)
	ListByMember(ctx context.Context, tx Tx, communityID, memberID string) ([]*model.Subscription, error)

	// MarkNotified moves active -> expiring_notified if the notice is still due.
	MarkNotified(ctx context.Context, tx Tx, id string, now time.Time, window time.Duration) (bool, error)
	// MarkExpired moves a live subscription to expired.
	MarkExpired(ctx context.Context, tx Tx, id string, at time.Time) (bool, error)
	// CutShortByMethod pulls expires_at of every live subscription of a method back to at.
	CutShortByMethod(ctx context.Context, tx Tx, methodID string, at time.Time) (int64, error)

	CountByState(ctx context.Context, tx Tx) (map[model.SubscriptionState]int, error)
}
