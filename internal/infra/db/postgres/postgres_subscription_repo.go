package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, community_id, member_id, method_id, role_id, webhook_url, state,
  started_at, expires_at, notified_at, expired_at, last_attempt_id, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, community_id, member_id, method_id, role_id, webhook_url, state,
  started_at, expires_at, notified_at, expired_at, last_attempt_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  role_id=EXCLUDED.role_id, webhook_url=EXCLUDED.webhook_url, state=EXCLUDED.state,
  started_at=EXCLUDED.started_at, expires_at=EXCLUDED.expires_at,
  notified_at=EXCLUDED.notified_at, expired_at=EXCLUDED.expired_at,
  last_attempt_id=EXCLUDED.last_attempt_id, updated_at=EXCLUDED.updated_at`
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.CommunityID, s.MemberID, s.MethodID, s.RoleID, s.WebhookURL, string(s.State),
		s.StartedAt, s.ExpiresAt, s.NotifiedAt, s.ExpiredAt, s.LastAttemptID, s.CreatedAt, s.UpdatedAt)
	return mapErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1` + lockClause(tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindByKey(ctx context.Context, tx repository.Tx, communityID, memberID, methodID string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE community_id=$1 AND member_id=$2 AND method_id=$3` + lockClause(tx)
	return r.queryOne(ctx, tx, q, communityID, memberID, methodID)
}

func (r *subscriptionRepo) ListDueForNotice(ctx context.Context, tx repository.Tx, now time.Time, window time.Duration, limit int) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE state='active' AND expires_at > $1 AND expires_at <= $2
 ORDER BY expires_at ASC
 LIMIT $3`
	return r.queryList(ctx, tx, q, now, now.Add(window), limit)
}

func (r *subscriptionRepo) ListDueForExpiry(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE state IN ('active','expiring_notified') AND expires_at <= $1
 ORDER BY expires_at ASC
 LIMIT $2`
	return r.queryList(ctx, tx, q, now, limit)
}

func (r *subscriptionRepo) ListLiveByMethod(ctx context.Context, tx repository.Tx, methodID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE method_id=$1 AND state IN ('active','expiring_notified')
 ORDER BY expires_at ASC`
	return r.queryList(ctx, tx, q, methodID)
}

func (r *subscriptionRepo) ListByMember(ctx context.Context, tx repository.Tx, communityID, memberID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE community_id=$1 AND member_id=$2
 ORDER BY expires_at DESC`
	return r.queryList(ctx, tx, q, communityID, memberID)
}

func (r *subscriptionRepo) MarkNotified(ctx context.Context, tx repository.Tx, id string, now time.Time, window time.Duration) (bool, error) {
	const q = `
UPDATE subscriptions
   SET state='expiring_notified', notified_at=$2, updated_at=$2
 WHERE id=$1 AND state='active' AND expires_at > $2 AND expires_at <= $3`
	tag, err := execSQL(ctx, r.pool, tx, q, id, now, now.Add(window))
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	const q = `
UPDATE subscriptions
   SET state='expired', expired_at=$2, updated_at=$2
 WHERE id=$1 AND state IN ('active','expiring_notified')`
	tag, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) CutShortByMethod(ctx context.Context, tx repository.Tx, methodID string, at time.Time) (int64, error) {
	const q = `
UPDATE subscriptions
   SET expires_at=GREATEST($2, started_at), updated_at=$2
 WHERE method_id=$1 AND state IN ('active','expiring_notified') AND expires_at > $2`
	tag, err := execSQL(ctx, r.pool, tx, q, methodID, at)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *subscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.SubscriptionState]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT state, COUNT(*) FROM subscriptions GROUP BY state`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionState(state)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) queryList(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row scanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var state string
	if err := row.Scan(&s.ID, &s.CommunityID, &s.MemberID, &s.MethodID, &s.RoleID, &s.WebhookURL, &state,
		&s.StartedAt, &s.ExpiresAt, &s.NotifiedAt, &s.ExpiredAt, &s.LastAttemptID, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if mapped := mapErr(err); mapped == domain.ErrNotFound {
			return nil, mapped
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.State = model.SubscriptionState(state)
	return s, nil
}
