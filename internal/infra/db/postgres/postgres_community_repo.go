package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

var _ repository.CommunityRepository = (*communityRepo)(nil)

type communityRepo struct {
	pool *pgxpool.Pool
}

func NewCommunityRepo(pool *pgxpool.Pool) *communityRepo {
	return &communityRepo{pool: pool}
}

func (r *communityRepo) Save(ctx context.Context, tx repository.Tx, c *model.Community) error {
	const q = `
INSERT INTO communities (id, name, payout_address, coin, network, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  name=EXCLUDED.name, payout_address=EXCLUDED.payout_address, coin=EXCLUDED.coin,
  network=EXCLUDED.network, updated_at=EXCLUDED.updated_at`
	_, err := execSQL(ctx, r.pool, tx, q, c.ID, c.Name, c.PayoutAddress, c.Coin, c.Network, c.CreatedAt, c.UpdatedAt)
	return mapErr(err)
}

func (r *communityRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Community, error) {
	q := `
SELECT id, name, payout_address, coin, network, created_at, updated_at
  FROM communities
 WHERE id=$1` + lockClause(tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	c := &model.Community{}
	if err := row.Scan(&c.ID, &c.Name, &c.PayoutAddress, &c.Coin, &c.Network, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}
