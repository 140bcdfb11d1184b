package model

import (
	"time"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // waiting on the gateway
	PaymentStatusPaid     PaymentStatus = "paid"     // gateway finished the payment
	PaymentStatusExpired  PaymentStatus = "expired"  // gateway expiry or local horizon
	PaymentStatusFailed   PaymentStatus = "failed"   // failed, halted, partial, unknown id
	PaymentStatusRefunded PaymentStatus = "refunded" // gateway refunded
)

// Raw gateway statuses recorded for local decisions.
const (
	GatewayStatusLocalTimeout = "local_timeout"
	GatewayStatusUnknownID    = "unknown_id"
)

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusPaid, PaymentStatusExpired, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// PaymentAttempt is one member's payment against a method. Poll scheduling is
// persisted so a restarted process resumes where the last one stopped.
type PaymentAttempt struct {
	ID            string // ULID
	MethodID      string
	CommunityID   string
	MemberID      string
	GatewayID     string
	CheckoutURL   string
	StatusURL     string
	GatewayStatus string // raw gateway vocabulary
	Status        PaymentStatus
	Amount        *decimal.Decimal // as reported by the gateway
	Currency      string
	Payload       map[string]any // last raw gateway payload
	WebhookURL    *string        // copied from the method
	PollFailures  int
	NextPollAt    time.Time
	DeadlineAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ResolvedAt    *time.Time // set iff Status is terminal
	// Set when the Paid transition created or renewed a subscription.
	SubscriptionID *string
}

// NewPaymentAttempt creates a pending attempt whose first poll is one interval away.
func NewPaymentAttempt(id string, m *PaymentMethod, memberID string, now time.Time, interval, horizon time.Duration) (*PaymentAttempt, error) {
	if id == "" || m == nil || memberID == "" || interval <= 0 || horizon <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	deadline := now.Add(horizon)
	next := now.Add(interval)
	if next.After(deadline) {
		next = deadline
	}
	return &PaymentAttempt{
		ID:          id,
		MethodID:    m.ID,
		CommunityID: m.CommunityID,
		MemberID:    memberID,
		Status:      PaymentStatusPending,
		WebhookURL:  m.WebhookURL,
		NextPollAt:  next,
		DeadlineAt:  deadline,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (a *PaymentAttempt) HorizonExceeded(now time.Time) bool {
	return !now.Before(a.DeadlineAt)
}

// Backoff returns interval*2^failures capped at max.
func Backoff(interval, max time.Duration, failures int) time.Duration {
	d := interval
	for i := 0; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// ScheduleRetry records a failed poll and pushes the next poll out, never past the deadline.
func (a *PaymentAttempt) ScheduleRetry(now time.Time, interval, max time.Duration) {
	a.PollFailures++
	a.schedule(now.Add(Backoff(interval, max, a.PollFailures)))
}

// ScheduleNext records a successful poll.
func (a *PaymentAttempt) ScheduleNext(now time.Time, interval time.Duration) {
	a.PollFailures = 0
	a.schedule(now.Add(interval))
}

func (a *PaymentAttempt) schedule(next time.Time) {
	if next.After(a.DeadlineAt) {
		next = a.DeadlineAt
	}
	a.NextPollAt = next
}

// Resolve moves a pending attempt to a terminal status.
func (a *PaymentAttempt) Resolve(status PaymentStatus, at time.Time) error {
	if !status.IsTerminal() {
		return domain.ErrInvalidArgument
	}
	if a.Status != PaymentStatusPending {
		return domain.ErrStoreConflict
	}
	a.Status = status
	a.ResolvedAt = &at
	a.UpdatedAt = at
	return nil
}
