package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

var _ repository.PaymentMethodRepository = (*paymentMethodRepo)(nil)

const methodColumns = `id, community_id, name, kind, payout_address, coin, network, role_id,
  duration_seconds, amount::text, params, webhook_url, created_at, updated_at`

type paymentMethodRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentMethodRepo(pool *pgxpool.Pool) *paymentMethodRepo {
	return &paymentMethodRepo{pool: pool}
}

// Save inserts or updates by id. Payout fields are never rewritten: they are
// a snapshot taken when the method was created.
func (r *paymentMethodRepo) Save(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	const q = `
INSERT INTO payment_methods (
  id, community_id, name, kind, payout_address, coin, network, role_id,
  duration_seconds, amount, params, webhook_url, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,COALESCE($11::jsonb,'{}'::jsonb),$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, kind=EXCLUDED.kind, role_id=EXCLUDED.role_id,
  duration_seconds=EXCLUDED.duration_seconds, amount=EXCLUDED.amount,
  params=EXCLUDED.params, webhook_url=EXCLUDED.webhook_url, updated_at=EXCLUDED.updated_at`
	params, err := jsonArg(m.Params)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		m.ID, m.CommunityID, m.Name, string(m.Kind), m.PayoutAddress, m.Coin, m.Network, m.RoleID,
		durationArg(m.Duration), decimalArg(m.Amount), params, m.WebhookURL, m.CreatedAt, m.UpdatedAt)
	return mapErr(err)
}

func (r *paymentMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	q := `SELECT ` + methodColumns + ` FROM payment_methods WHERE id=$1` + lockClause(tx)
	return r.queryOne(ctx, tx, q, id)
}

func (r *paymentMethodRepo) FindByName(ctx context.Context, tx repository.Tx, communityID, name string) (*model.PaymentMethod, error) {
	q := `SELECT ` + methodColumns + ` FROM payment_methods WHERE community_id=$1 AND lower(name)=lower($2)` + lockClause(tx)
	return r.queryOne(ctx, tx, q, communityID, name)
}

func (r *paymentMethodRepo) ListByCommunity(ctx context.Context, tx repository.Tx, communityID string) ([]*model.PaymentMethod, error) {
	const q = `SELECT ` + methodColumns + ` FROM payment_methods WHERE community_id=$1 ORDER BY created_at ASC, name ASC`
	rows, err := queryRows(ctx, r.pool, tx, q, communityID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()
	var out []*model.PaymentMethod
	for rows.Next() {
		m, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentMethodRepo) Delete(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM payment_methods WHERE id=$1`, m.ID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentMethodRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.PaymentMethod, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	return scanMethod(row)
}

func scanMethod(row scanner) (*model.PaymentMethod, error) {
	m := &model.PaymentMethod{}
	var (
		kind     string
		secs     *int64
		amount   *string
		paramsJS []byte
	)
	if err := row.Scan(&m.ID, &m.CommunityID, &m.Name, &kind, &m.PayoutAddress, &m.Coin, &m.Network, &m.RoleID,
		&secs, &amount, &paramsJS, &m.WebhookURL, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if mapped := mapErr(err); mapped == domain.ErrNotFound {
			return nil, mapped
		}
		return nil, domain.ErrReadDatabaseRow
	}
	m.Kind = model.MethodKind(kind)
	m.Duration = durationFrom(secs)
	d, err := parseDecimal(amount)
	if err != nil {
		return nil, err
	}
	m.Amount = d
	m.Params = map[string]string{}
	if len(paramsJS) > 0 {
		if err := json.Unmarshal(paramsJS, &m.Params); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return m, nil
}
