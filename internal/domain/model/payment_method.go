package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain"
)

type MethodKind string

const (
	MethodKindPayment  MethodKind = "payment"
	MethodKindDonation MethodKind = "donation"
)

const (
	MinDurationDays = 1
	MaxDurationDays = 3650
)

// PaymentMethod is an admin-defined template members pay against.
// Payout fields are copied from the community when the method is created.
type PaymentMethod struct {
	ID            string // UUID
	CommunityID   string
	Name          string
	Kind          MethodKind
	PayoutAddress string
	Coin          string
	Network       string
	RoleID        *string           // role granted on payment, optional
	Duration      *time.Duration    // nil means one-time / non-expiring
	Amount        *decimal.Decimal  // fixed amount requested from the gateway, optional
	Params        map[string]string // advanced gateway parameters
	WebhookURL    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPaymentMethod builds a method for a configured community.
func NewPaymentMethod(id string, c *Community, name string, kind MethodKind) (*PaymentMethod, error) {
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !c.Configured() {
		return nil, domain.ErrCommunityNotConfigured
	}
	if kind == "" {
		kind = MethodKindPayment
	}
	if kind != MethodKindPayment && kind != MethodKindDonation {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &PaymentMethod{
		ID:            id,
		CommunityID:   c.ID,
		Name:          name,
		Kind:          kind,
		PayoutAddress: c.PayoutAddress,
		Coin:          c.Coin,
		Network:       c.Network,
		Params:        map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SetDurationDays sets a subscription period. Zero clears it.
func (m *PaymentMethod) SetDurationDays(days int) error {
	if days == 0 {
		m.Duration = nil
		return nil
	}
	if days < MinDurationDays || days > MaxDurationDays {
		return domain.ErrInvalidArgument
	}
	d := time.Duration(days) * 24 * time.Hour
	m.Duration = &d
	return nil
}

func (m *PaymentMethod) GrantsSubscription() bool {
	return m != nil && m.Duration != nil && *m.Duration > 0
}

func (m *PaymentMethod) GrantsRole() bool {
	return m != nil && m.RoleID != nil && *m.RoleID != ""
}
