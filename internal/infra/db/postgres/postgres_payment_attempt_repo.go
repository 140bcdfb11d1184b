package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentAttemptRepository = (*paymentAttemptRepo)(nil)

const attemptColumns = `id, method_id, community_id, member_id, gateway_id, checkout_url, status_url,
  gateway_status, status, amount::text, currency, payload, webhook_url, poll_failures,
  next_poll_at, deadline_at, created_at, updated_at, resolved_at, subscription_id`

type paymentAttemptRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentAttemptRepo(pool *pgxpool.Pool) *paymentAttemptRepo {
	return &paymentAttemptRepo{pool: pool}
}

func (r *paymentAttemptRepo) Save(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) error {
	const q = `
INSERT INTO payment_attempts (
  id, method_id, community_id, member_id, gateway_id, checkout_url, status_url,
  gateway_status, status, amount, currency, payload, webhook_url, poll_failures,
  next_poll_at, deadline_at, created_at, updated_at, resolved_at, subscription_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11,COALESCE($12::jsonb,'{}'::jsonb),$13,$14,$15,$16,$17,$18,$19,$20)`
	payload, err := jsonArg(a.Payload)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		a.ID, a.MethodID, a.CommunityID, a.MemberID, a.GatewayID, a.CheckoutURL, a.StatusURL,
		a.GatewayStatus, string(a.Status), decimalArg(a.Amount), a.Currency, payload, a.WebhookURL, a.PollFailures,
		a.NextPollAt, a.DeadlineAt, a.CreatedAt, a.UpdatedAt, a.ResolvedAt, a.SubscriptionID)
	return mapErr(err)
}

func (r *paymentAttemptRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentAttempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE id=$1` + lockClause(tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanAttempt(row)
}

func (r *paymentAttemptRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PaymentAttempt, error) {
	const q = `SELECT ` + attemptColumns + `
  FROM payment_attempts
 WHERE status='pending' AND next_poll_at <= $1
 ORDER BY next_poll_at ASC
 LIMIT $2`
	return r.queryList(ctx, tx, q, now, limit)
}

func (r *paymentAttemptRepo) ListByMember(ctx context.Context, tx repository.Tx, communityID, memberID string, limit int) ([]*model.PaymentAttempt, error) {
	const q = `SELECT ` + attemptColumns + `
  FROM payment_attempts
 WHERE community_id=$1 AND member_id=$2
 ORDER BY created_at DESC
 LIMIT $3`
	return r.queryList(ctx, tx, q, communityID, memberID, limit)
}

func (r *paymentAttemptRepo) ReschedulePoll(ctx context.Context, tx repository.Tx, id string, failures int, next time.Time) (bool, error) {
	const q = `
UPDATE payment_attempts
   SET poll_failures=$2, next_poll_at=$3, updated_at=NOW()
 WHERE id=$1 AND status='pending'`
	tag, err := execSQL(ctx, r.pool, tx, q, id, failures, next)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentAttemptRepo) RecordProgress(ctx context.Context, tx repository.Tx, id, prevStatus, status string, payload map[string]any, next time.Time) (bool, error) {
	const q = `
UPDATE payment_attempts
   SET gateway_status=$3, payload=COALESCE($4::jsonb, payload), poll_failures=0, next_poll_at=$5, updated_at=NOW()
 WHERE id=$1 AND status='pending' AND gateway_status=$2`
	js, err := jsonArg(payload)
	if err != nil {
		return false, err
	}
	tag, err := execSQL(ctx, r.pool, tx, q, id, prevStatus, status, js, next)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentAttemptRepo) Resolve(ctx context.Context, tx repository.Tx, res repository.AttemptResolution) (bool, error) {
	if !res.Status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payment_attempts
   SET status=$2, gateway_status=$3,
       amount=COALESCE($4::numeric, amount),
       currency=COALESCE(NULLIF($5::text,''), currency),
       payload=COALESCE($6::jsonb, payload),
       resolved_at=$7, updated_at=$7, subscription_id=$8
 WHERE id=$1 AND status='pending'`
	js, err := jsonArg(res.Payload)
	if err != nil {
		return false, err
	}
	tag, err := execSQL(ctx, r.pool, tx, q,
		res.ID, string(res.Status), res.GatewayStatus, decimalArg(res.Amount), res.Currency, js, res.ResolvedAt, res.SubscriptionID)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentAttemptRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM payment_attempts GROUP BY status`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	counts := make(map[model.PaymentStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.PaymentStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *paymentAttemptRepo) queryList(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.PaymentAttempt, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanAttempt(row scanner) (*model.PaymentAttempt, error) {
	a := &model.PaymentAttempt{}
	var (
		status  string
		amount  *string
		payload []byte
	)
	if err := row.Scan(&a.ID, &a.MethodID, &a.CommunityID, &a.MemberID, &a.GatewayID, &a.CheckoutURL, &a.StatusURL,
		&a.GatewayStatus, &status, &amount, &a.Currency, &payload, &a.WebhookURL, &a.PollFailures,
		&a.NextPollAt, &a.DeadlineAt, &a.CreatedAt, &a.UpdatedAt, &a.ResolvedAt, &a.SubscriptionID); err != nil {
		if mapped := mapErr(err); mapped == domain.ErrNotFound {
			return nil, mapped
		}
		return nil, domain.ErrReadDatabaseRow
	}
	a.Status = model.PaymentStatus(status)
	d, err := parseDecimal(amount)
	if err != nil {
		return nil, err
	}
	a.Amount = d
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &a.Payload); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return a, nil
}
