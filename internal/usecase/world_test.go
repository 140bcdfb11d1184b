//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/usecase"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	testCommunityID = "guild-1"
	testMemberID    = "member-1"
	testRoleID      = "role-vip"
	testWebhook     = "https://hooks.example/pay"
	testPayoutURL   = "https://trocador.app/anonpay/?ticker_to=xmr&network_to=Mainnet&address=4AdUndXHHZ6cfufTMvppY6JwXNouMBzSkbLYfpAV5Usx"
)

// world wires the use cases against in-memory collaborators.
type world struct {
	clock       *testClock
	communities *MockCommunityRepo
	methods     *MockMethodRepo
	attempts    *MockAttemptRepo
	subs        *MockSubscriptionRepo
	tm          *MockTxManager
	gateway     *MockGateway
	roles       *MockRoleEffector
	sink        *MockSink
	msgr        *MockMessenger
	locker      *MockLocker
	limiter     *MockRateLimiter

	effects     *usecase.Effects
	communityUC usecase.CommunityUseCase
	methodUC    usecase.MethodUseCase
	subUC       usecase.SubscriptionUseCase
	paymentCfg  usecase.PaymentConfig
	paymentUC   usecase.PaymentUseCase
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{
		clock:       newTestClock(t0),
		communities: NewMockCommunityRepo(),
		methods:     NewMockMethodRepo(),
		attempts:    NewMockAttemptRepo(),
		subs:        NewMockSubscriptionRepo(),
		tm:          NewMockTxManager(),
		gateway:     &MockGateway{},
		roles:       &MockRoleEffector{},
		sink:        &MockSink{},
		msgr:        &MockMessenger{},
		locker:      NewMockLocker(),
		limiter:     &MockRateLimiter{},
	}
	logger := newTestLogger()
	w.effects = usecase.NewEffects(w.roles, w.sink, w.msgr, newTestTranslator(), usecase.EffectsConfig{MaxAttempts: 3, Backoff: time.Millisecond}, logger)
	w.communityUC = usecase.NewCommunityUseCase(w.communities, logger)
	w.subUC = usecase.NewSubscriptionUseCase(w.subs, w.methods, w.communities, w.tm, w.effects, usecase.SubscriptionConfig{
		NoticeWindow: 24 * time.Hour,
		Batch:        100,
		Now:          w.clock.Now,
	}, logger)
	w.methodUC = usecase.NewMethodUseCase(w.communities, w.methods, w.subUC, logger)
	w.paymentCfg = usecase.PaymentConfig{
		Interval:   time.Minute,
		SessionTTL: 20 * time.Minute,
		MaxBackoff: 5 * time.Minute,
		Now:        w.clock.Now,
	}
	w.paymentUC = w.newPaymentUC(w.paymentCfg, true)
	return w
}

func (w *world) newPaymentUC(cfg usecase.PaymentConfig, withLocker bool) usecase.PaymentUseCase {
	deps := usecase.PaymentDeps{
		Communities:   w.communities,
		Methods:       w.methods,
		Attempts:      w.attempts,
		Tx:            w.tm,
		Gateway:       w.gateway,
		Subscriptions: w.subUC,
		Effects:       w.effects,
		Limiter:       w.limiter,
	}
	if withLocker {
		deps.Locker = w.locker
	}
	return usecase.NewPaymentUseCase(deps, cfg, newTestLogger())
}

func (w *world) setupCommunity(t *testing.T) *model.Community {
	t.Helper()
	c, err := w.communityUC.Setup(context.Background(), testCommunityID, "Cats", testPayoutURL)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return c
}

// seedMethod creates a subscription method with a role and webhook.
func (w *world) seedMethod(t *testing.T, name string, days int) *model.PaymentMethod {
	t.Helper()
	if _, err := w.communities.FindByID(context.Background(), nil, testCommunityID); err != nil {
		w.setupCommunity(t)
	}
	m, err := w.methodUC.Create(context.Background(), usecase.CreateMethodInput{
		CommunityID:  testCommunityID,
		Name:         name,
		RoleID:       testRoleID,
		DurationDays: days,
		WebhookURL:   testWebhook,
	})
	if err != nil {
		t.Fatalf("Create method: %v", err)
	}
	return m
}

func (w *world) start(t *testing.T, methodName string) *model.PaymentAttempt {
	t.Helper()
	a, err := w.paymentUC.StartPayment(context.Background(), testCommunityID, testMemberID, methodName)
	if err != nil {
		t.Fatalf("StartPayment: %v", err)
	}
	return a
}

// activate creates or renews a subscription for the member directly.
func (w *world) activate(t *testing.T, m *model.PaymentMethod, attemptID string) *model.Subscription {
	t.Helper()
	a, err := model.NewPaymentAttempt(attemptID, m, testMemberID, w.clock.Now(), time.Minute, 20*time.Minute)
	if err != nil {
		t.Fatalf("NewPaymentAttempt: %v", err)
	}
	s, err := w.subUC.Activate(context.Background(), nil, a, m)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return s
}
