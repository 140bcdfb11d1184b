package repository

import (
	"context"

	"crypto-role-subscription/internal/domain/model"
)

type PaymentMethodRepository interface {
	// Save inserts a method; a duplicate name in the community is domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, m *model.PaymentMethod) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentMethod, error)
	// FindByName matches case-insensitively within the community.
	FindByName(ctx context.Context, tx Tx, communityID, name string) (*model.PaymentMethod, error)
	// ListByCommunity orders by creation time, oldest first.
	ListByCommunity(ctx context.Context, tx Tx, communityID string) ([]*model.PaymentMethod, error)
	// Delete removes the method and cascades to its payment attempts.
	Delete(ctx context.Context, tx Tx, m *model.PaymentMethod) error
}
