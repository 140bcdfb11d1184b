// File: internal/usecase/mock_test.go
package usecase_test

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/adapter"
	"crypto-role-subscription/internal/domain/ports/repository"
	"crypto-role-subscription/internal/infra/i18n"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return tr
}

// testClock is a settable clock shared by the use cases under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================
// Repositories
// =============================

// ---- MockCommunityRepo ----

type MockCommunityRepo struct {
	mu   sync.RWMutex
	data map[string]*model.Community
}

var _ repository.CommunityRepository = (*MockCommunityRepo)(nil)

func NewMockCommunityRepo() *MockCommunityRepo {
	return &MockCommunityRepo{data: map[string]*model.Community{}}
}

func (r *MockCommunityRepo) Save(ctx context.Context, tx repository.Tx, c *model.Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.data[c.ID] = &cp
	return nil
}

func (r *MockCommunityRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- MockMethodRepo ----

type MockMethodRepo struct {
	mu   sync.RWMutex
	data map[string]*model.PaymentMethod

	SaveFunc func(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error
}

var _ repository.PaymentMethodRepository = (*MockMethodRepo)(nil)

func NewMockMethodRepo() *MockMethodRepo {
	return &MockMethodRepo{data: map[string]*model.PaymentMethod{}}
}

func (r *MockMethodRepo) Save(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, m)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.data {
		if other.ID != m.ID && other.CommunityID == m.CommunityID && strings.EqualFold(other.Name, m.Name) {
			return domain.ErrAlreadyExists
		}
	}
	cp := *m
	r.data[m.ID] = &cp
	return nil
}

func (r *MockMethodRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MockMethodRepo) FindByName(ctx context.Context, tx repository.Tx, communityID, name string) (*model.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.data {
		if m.CommunityID == communityID && strings.EqualFold(m.Name, name) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMethodRepo) ListByCommunity(ctx context.Context, tx repository.Tx, communityID string) ([]*model.PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PaymentMethod
	for _, m := range r.data {
		if m.CommunityID == communityID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MockMethodRepo) Delete(ctx context.Context, tx repository.Tx, m *model.PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[m.ID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.data, m.ID)
	return nil
}

// ---- MockAttemptRepo ----
// Update methods honour the same compare-and-set predicates as the SQL.

type MockAttemptRepo struct {
	mu   sync.RWMutex
	data map[string]*model.PaymentAttempt

	ResolveCalls int
}

var _ repository.PaymentAttemptRepository = (*MockAttemptRepo)(nil)

func NewMockAttemptRepo() *MockAttemptRepo {
	return &MockAttemptRepo{data: map[string]*model.PaymentAttempt{}}
}

func (r *MockAttemptRepo) Save(ctx context.Context, tx repository.Tx, a *model.PaymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.data[a.ID] = &cp
	return nil
}

func (r *MockAttemptRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MockAttemptRepo) ListDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PaymentAttempt
	for _, a := range r.data {
		if a.Status == model.PaymentStatusPending && !a.NextPollAt.After(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextPollAt.Before(out[j].NextPollAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockAttemptRepo) ListByMember(ctx context.Context, tx repository.Tx, communityID, memberID string, limit int) ([]*model.PaymentAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.PaymentAttempt
	for _, a := range r.data {
		if a.CommunityID == communityID && a.MemberID == memberID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockAttemptRepo) ReschedulePoll(ctx context.Context, tx repository.Tx, id string, failures int, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[id]
	if !ok || a.Status != model.PaymentStatusPending {
		return false, nil
	}
	a.PollFailures = failures
	a.NextPollAt = next
	return true, nil
}

func (r *MockAttemptRepo) RecordProgress(ctx context.Context, tx repository.Tx, id, prevStatus, status string, payload map[string]any, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[id]
	if !ok || a.Status != model.PaymentStatusPending || a.GatewayStatus != prevStatus {
		return false, nil
	}
	a.GatewayStatus = status
	a.Payload = payload
	a.PollFailures = 0
	a.NextPollAt = next
	return true, nil
}

func (r *MockAttemptRepo) Resolve(ctx context.Context, tx repository.Tx, res repository.AttemptResolution) (bool, error) {
	if !res.Status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ResolveCalls++
	a, ok := r.data[res.ID]
	if !ok || a.Status != model.PaymentStatusPending {
		return false, nil
	}
	at := res.ResolvedAt
	a.Status = res.Status
	a.GatewayStatus = res.GatewayStatus
	a.Amount = res.Amount
	a.Currency = res.Currency
	a.Payload = res.Payload
	a.ResolvedAt = &at
	a.SubscriptionID = res.SubscriptionID
	return true, nil
}

func (r *MockAttemptRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[model.PaymentStatus]int{}
	for _, a := range r.data {
		out[a.Status]++
	}
	return out, nil
}

// ---- MockSubscriptionRepo ----

type MockSubscriptionRepo struct {
	mu   sync.RWMutex
	data map[string]*model.Subscription

	MarkExpiredFunc func(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.data[s.ID] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) FindByKey(ctx context.Context, tx repository.Tx, communityID, memberID, methodID string) (*model.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.data {
		if s.CommunityID == communityID && s.MemberID == memberID && s.MethodID == methodID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) list(pred func(*model.Subscription) bool, limit int) []*model.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if pred(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MockSubscriptionRepo) ListDueForNotice(ctx context.Context, tx repository.Tx, now time.Time, window time.Duration, limit int) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.NoticeDue(now, window) }, limit), nil
}

func (r *MockSubscriptionRepo) ListDueForExpiry(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.ExpiryDue(now) }, limit), nil
}

func (r *MockSubscriptionRepo) ListLiveByMethod(ctx context.Context, tx repository.Tx, methodID string) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.MethodID == methodID && s.State.Live() }, 0), nil
}

func (r *MockSubscriptionRepo) ListByMember(ctx context.Context, tx repository.Tx, communityID, memberID string) ([]*model.Subscription, error) {
	return r.list(func(s *model.Subscription) bool { return s.CommunityID == communityID && s.MemberID == memberID }, 0), nil
}

func (r *MockSubscriptionRepo) MarkNotified(ctx context.Context, tx repository.Tx, id string, now time.Time, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok || !s.NoticeDue(now, window) {
		return false, nil
	}
	return s.MarkNotified(now) == nil, nil
}

func (r *MockSubscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, id string, at time.Time) (bool, error) {
	if r.MarkExpiredFunc != nil {
		return r.MarkExpiredFunc(ctx, tx, id, at)
	}
	return r.markExpired(id, at)
}

func (r *MockSubscriptionRepo) markExpired(id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok || !s.ExpiryDue(at) {
		return false, nil
	}
	return s.MarkExpired(at) == nil, nil
}

func (r *MockSubscriptionRepo) CutShortByMethod(ctx context.Context, tx repository.Tx, methodID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.data {
		if s.MethodID != methodID || !s.State.Live() {
			continue
		}
		s.ExpiresAt = at
		if s.StartedAt.After(at) {
			s.ExpiresAt = s.StartedAt
		}
		n++
	}
	return n, nil
}

func (r *MockSubscriptionRepo) CountByState(ctx context.Context, tx repository.Tx) (map[model.SubscriptionState]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[model.SubscriptionState]int{}
	for _, s := range r.data {
		out[s.State]++
	}
	return out, nil
}

// get returns the stored row without copying; tests only read it.
func (r *MockSubscriptionRepo) get(id string) *model.Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[id]
}

// ---- MockTxManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error

	// Serial runs transactions one at a time, standing in for row locks.
	Serial bool
	mu     sync.Mutex
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	if m.Serial {
		m.mu.Lock()
		defer m.mu.Unlock()
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- MockGateway ----

type MockGateway struct {
	CreatePaymentFunc func(ctx context.Context, req adapter.CreatePaymentRequest) (*adapter.CreatedPayment, error)
	GetStatusFunc     func(ctx context.Context, gatewayID, statusURL string) (*adapter.StatusReport, error)

	mu          sync.Mutex
	statusCalls int
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

func (g *MockGateway) Name() string { return "mockpay" }

func (g *MockGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (*adapter.CreatedPayment, error) {
	if g.CreatePaymentFunc != nil {
		return g.CreatePaymentFunc(ctx, req)
	}
	return &adapter.CreatedPayment{
		GatewayID:   "GW-1",
		CheckoutURL: "https://pay.example/checkout/GW-1",
		StatusURL:   "https://pay.example/status/GW-1",
		RawStatus:   "waiting",
		Payload:     map[string]any{"ID": "GW-1", "Status": "waiting"},
	}, nil
}

func (g *MockGateway) GetStatus(ctx context.Context, gatewayID, statusURL string) (*adapter.StatusReport, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	if g.GetStatusFunc != nil {
		return g.GetStatusFunc(ctx, gatewayID, statusURL)
	}
	return &adapter.StatusReport{Status: model.PaymentStatusPending, RawStatus: "waiting"}, nil
}

func (g *MockGateway) StatusCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

// scriptedStatuses returns raw statuses in order, repeating the last one.
func scriptedStatuses(raws ...string) func(ctx context.Context, gatewayID, statusURL string) (*adapter.StatusReport, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, gatewayID, statusURL string) (*adapter.StatusReport, error) {
		mu.Lock()
		raw := raws[i]
		if i < len(raws)-1 {
			i++
		}
		mu.Unlock()
		st := model.PaymentStatusPending
		switch raw {
		case "finished":
			st = model.PaymentStatusPaid
		case "failed":
			st = model.PaymentStatusFailed
		case "expired":
			st = model.PaymentStatusExpired
		}
		return &adapter.StatusReport{
			Status:    st,
			RawStatus: raw,
			Payload:   map[string]any{"ID": gatewayID, "Status": raw},
		}, nil
	}
}

// ---- MockRoleEffector ----

type effectCall struct {
	Op, CommunityID, MemberID, RoleID string
}

type MockRoleEffector struct {
	GrantFunc  func(ctx context.Context, communityID, memberID, roleID string) error
	RevokeFunc func(ctx context.Context, communityID, memberID, roleID string) error

	mu    sync.Mutex
	calls []effectCall
}

var _ adapter.RoleEffector = (*MockRoleEffector)(nil)

func (e *MockRoleEffector) Grant(ctx context.Context, communityID, memberID, roleID string) error {
	e.record("grant", communityID, memberID, roleID)
	if e.GrantFunc != nil {
		return e.GrantFunc(ctx, communityID, memberID, roleID)
	}
	return nil
}

func (e *MockRoleEffector) Revoke(ctx context.Context, communityID, memberID, roleID string) error {
	e.record("revoke", communityID, memberID, roleID)
	if e.RevokeFunc != nil {
		return e.RevokeFunc(ctx, communityID, memberID, roleID)
	}
	return nil
}

func (e *MockRoleEffector) record(op, communityID, memberID, roleID string) {
	e.mu.Lock()
	e.calls = append(e.calls, effectCall{op, communityID, memberID, roleID})
	e.mu.Unlock()
}

func (e *MockRoleEffector) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ---- MockSink ----

type sentNotification struct {
	URL     string
	Payload map[string]any
}

type MockSink struct {
	NotifyFunc func(ctx context.Context, url string, payload map[string]any) error

	mu   sync.Mutex
	sent []sentNotification
}

var _ adapter.NotificationSink = (*MockSink)(nil)

func (s *MockSink) Notify(ctx context.Context, url string, payload map[string]any) error {
	s.mu.Lock()
	s.sent = append(s.sent, sentNotification{URL: url, Payload: payload})
	s.mu.Unlock()
	if s.NotifyFunc != nil {
		return s.NotifyFunc(ctx, url, payload)
	}
	return nil
}

func (s *MockSink) Sent() []sentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentNotification(nil), s.sent...)
}

// events returns the "event" field of each payload, "" for status updates.
func (s *MockSink) events() []string {
	var out []string
	for _, n := range s.Sent() {
		ev, _ := n.Payload["event"].(string)
		out = append(out, ev)
	}
	return out
}

// ---- MockMessenger ----

type MockMessenger struct {
	mu   sync.Mutex
	sent map[string][]string
}

var _ adapter.MemberMessenger = (*MockMessenger)(nil)

func (m *MockMessenger) SendDirect(ctx context.Context, memberID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[memberID] = append(m.sent[memberID], text)
	return nil
}

func (m *MockMessenger) To(memberID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent[memberID]...)
}

// ---- MockLocker ----

type MockLocker struct {
	mu   sync.Mutex
	held map[string]string
	ttls []time.Duration
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker { return &MockLocker{held: map[string]string{}} }

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttls = append(l.ttls, ttl)
	if _, ok := l.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	l.held[key] = key + "-token"
	return l.held[key], nil
}

func (l *MockLocker) TTLs() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.ttls...)
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// ---- MockRateLimiter ----

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (r *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[key]++
	return r.counts[key] <= limit, nil
}
