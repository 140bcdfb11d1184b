package repository

import (
	"context"

	"crypto-role-subscription/internal/domain/model"
)

type CommunityRepository interface {
	// Save inserts or updates payout settings.
	Save(ctx context.Context, tx Tx, c *model.Community) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Community, error)
}
