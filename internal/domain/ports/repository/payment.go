package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain/model"
)

// AttemptResolution carries the fields written by the pending -> terminal CAS.
type AttemptResolution struct {
	ID             string
	Status         model.PaymentStatus
	GatewayStatus  string
	Amount         *decimal.Decimal
	Currency       string
	Payload        map[string]any
	ResolvedAt     time.Time
	SubscriptionID *string
}

type PaymentAttemptRepository interface {
	Save(ctx context.Context, tx Tx, a *model.PaymentAttempt) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentAttempt, error)
	// ListDue returns pending attempts whose next poll is at or before now.
	ListDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.PaymentAttempt, error)
	ListByMember(ctx context.Context, tx Tx, communityID, memberID string, limit int) ([]*model.PaymentAttempt, error)

	// ReschedulePoll stores poll bookkeeping while the attempt is still pending.
	ReschedulePoll(ctx context.Context, tx Tx, id string, failures int, next time.Time) (bool, error)
	// RecordProgress stores a new non-terminal gateway status only if the
	// previous one is still prevStatus; the winner reports true.
	RecordProgress(ctx context.Context, tx Tx, id, prevStatus, status string, payload map[string]any, next time.Time) (bool, error)
	// Resolve applies the terminal transition only if the attempt is pending.
	Resolve(ctx context.Context, tx Tx, r AttemptResolution) (bool, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.PaymentStatus]int, error)
}
