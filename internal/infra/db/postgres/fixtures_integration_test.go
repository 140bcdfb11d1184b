//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

func seedCommunity(t *testing.T, id string) *model.Community {
	t.Helper()
	c, err := model.NewCommunity(id, "Cats", "4AdUndXHHZ6cfufTMvppY6JwXNouMBzSkbLYfpAV5Usx", "xmr", "mainnet")
	if err != nil {
		t.Fatalf("NewCommunity: %v", err)
	}
	if err := NewCommunityRepo(testPool).Save(context.Background(), repository.NoTX, c); err != nil {
		t.Fatalf("save community: %v", err)
	}
	return c
}

func seedMethod(t *testing.T, c *model.Community, name string, days int) *model.PaymentMethod {
	t.Helper()
	m, err := model.NewPaymentMethod(uuid.NewString(), c, name, model.MethodKindPayment)
	if err != nil {
		t.Fatalf("NewPaymentMethod: %v", err)
	}
	if err := m.SetDurationDays(days); err != nil {
		t.Fatalf("SetDurationDays: %v", err)
	}
	role := "role-1"
	m.RoleID = &role
	if err := NewPaymentMethodRepo(testPool).Save(context.Background(), repository.NoTX, m); err != nil {
		t.Fatalf("save method: %v", err)
	}
	return m
}

func seedAttempt(t *testing.T, m *model.PaymentMethod, member string, now time.Time) *model.PaymentAttempt {
	t.Helper()
	a, err := model.NewPaymentAttempt(ulid.Make().String(), m, member, now, time.Minute, 20*time.Minute)
	if err != nil {
		t.Fatalf("NewPaymentAttempt: %v", err)
	}
	a.GatewayID = "gw-" + a.ID
	a.CheckoutURL = "https://trocador.app/anonpay/checkout/" + a.ID
	a.GatewayStatus = "waiting"
	if err := NewPaymentAttemptRepo(testPool).Save(context.Background(), repository.NoTX, a); err != nil {
		t.Fatalf("save attempt: %v", err)
	}
	return a
}
