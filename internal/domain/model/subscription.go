package model

import (
	"time"

	"crypto-role-subscription/internal/domain"
)

type SubscriptionState string

const (
	SubscriptionStateActive           SubscriptionState = "active"
	SubscriptionStateExpiringNotified SubscriptionState = "expiring_notified"
	SubscriptionStateExpired          SubscriptionState = "expired"
)

func (s SubscriptionState) Live() bool {
	return s == SubscriptionStateActive || s == SubscriptionStateExpiringNotified
}

// Subscription is a member's time-bound access granted by a paid attempt.
// Community and method are weak references: either may be gone when the
// subscription expires.
type Subscription struct {
	ID            string // UUID
	CommunityID   string
	MemberID      string
	MethodID      string
	RoleID        *string
	WebhookURL    *string
	State         SubscriptionState
	StartedAt     time.Time
	ExpiresAt     time.Time
	NotifiedAt    *time.Time
	ExpiredAt     *time.Time
	LastAttemptID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSubscription starts a fresh period at now.
func NewSubscription(id string, a *PaymentAttempt, m *PaymentMethod, now time.Time) (*Subscription, error) {
	if id == "" || a == nil || !m.GrantsSubscription() {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:            id,
		CommunityID:   a.CommunityID,
		MemberID:      a.MemberID,
		MethodID:      m.ID,
		RoleID:        m.RoleID,
		WebhookURL:    m.WebhookURL,
		State:         SubscriptionStateActive,
		StartedAt:     now,
		ExpiresAt:     now.Add(*m.Duration),
		LastAttemptID: a.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Renew extends the subscription by the method's duration:
// expires_at = max(now, expires_at) + duration. An expired subscription
// restarts from now. The state returns to Active so the next cycle gets its
// own expiring notice.
func (s *Subscription) Renew(a *PaymentAttempt, m *PaymentMethod, now time.Time) error {
	if a == nil || !m.GrantsSubscription() {
		return domain.ErrInvalidArgument
	}
	base := now
	if s.State.Live() && s.ExpiresAt.After(now) {
		base = s.ExpiresAt
	}
	if s.State == SubscriptionStateExpired {
		s.StartedAt = now
		s.ExpiredAt = nil
	}
	s.ExpiresAt = base.Add(*m.Duration)
	s.State = SubscriptionStateActive
	s.NotifiedAt = nil
	s.RoleID = m.RoleID
	s.WebhookURL = m.WebhookURL
	s.LastAttemptID = a.ID
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) NoticeDue(now time.Time, window time.Duration) bool {
	return s.State == SubscriptionStateActive && !now.Before(s.ExpiresAt.Add(-window)) && now.Before(s.ExpiresAt)
}

func (s *Subscription) ExpiryDue(now time.Time) bool {
	return s.State.Live() && !now.Before(s.ExpiresAt)
}

func (s *Subscription) MarkNotified(now time.Time) error {
	if s.State != SubscriptionStateActive {
		return domain.ErrStoreConflict
	}
	s.State = SubscriptionStateExpiringNotified
	s.NotifiedAt = &now
	s.UpdatedAt = now
	return nil
}

func (s *Subscription) MarkExpired(now time.Time) error {
	if !s.State.Live() {
		return domain.ErrStoreConflict
	}
	s.State = SubscriptionStateExpired
	s.ExpiredAt = &now
	s.UpdatedAt = now
	return nil
}
