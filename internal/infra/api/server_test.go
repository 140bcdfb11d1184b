//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/infra/api"
	"crypto-role-subscription/internal/usecase"
)

// --- Mock use cases ---

type mockCommunityUC struct {
	usecase.CommunityUseCase
	setupURL string
}

func (m *mockCommunityUC) Setup(ctx context.Context, communityID, name, paymentURL string) (*model.Community, error) {
	m.setupURL = paymentURL
	return &model.Community{ID: communityID, Name: name, PayoutAddress: "addr", Coin: "XMR", Network: "MAINNET"}, nil
}

type mockMethodUC struct {
	usecase.MethodUseCase
	created usecase.CreateMethodInput
	err     error
}

func (m *mockMethodUC) Create(ctx context.Context, in usecase.CreateMethodInput) (*model.PaymentMethod, error) {
	m.created = in
	if m.err != nil {
		return nil, m.err
	}
	d := time.Duration(in.DurationDays) * 24 * time.Hour
	return &model.PaymentMethod{ID: "m-1", CommunityID: in.CommunityID, Name: in.Name, Kind: model.MethodKindPayment, Duration: &d}, nil
}

func (m *mockMethodUC) List(ctx context.Context, communityID string) ([]*model.PaymentMethod, error) {
	return []*model.PaymentMethod{{ID: "m-1", Name: "VIP"}}, nil
}

func (m *mockMethodUC) Delete(ctx context.Context, communityID, name string) (*usecase.DeleteResult, error) {
	if name != "VIP" {
		return nil, domain.ErrNotFound
	}
	return &usecase.DeleteResult{Method: &model.PaymentMethod{ID: "m-1", Name: name}, Expired: 2}, nil
}

type mockPaymentUC struct {
	usecase.PaymentUseCase
	err error
}

func (m *mockPaymentUC) StartPayment(ctx context.Context, communityID, memberID, methodName string) (*model.PaymentAttempt, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.PaymentAttempt{ID: "01HATTEMPT", CommunityID: communityID, MemberID: memberID, CheckoutURL: "https://pay.example/1", Status: model.PaymentStatusPending}, nil
}

func (m *mockPaymentUC) Get(ctx context.Context, id string) (*model.PaymentAttempt, error) {
	return nil, domain.ErrNotFound
}

func (m *mockPaymentUC) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int, error) {
	return map[model.PaymentStatus]int{model.PaymentStatusPending: 2, model.PaymentStatusPaid: 5}, nil
}

type mockSubUC struct {
	usecase.SubscriptionUseCase
}

func (m *mockSubUC) Sweep(ctx context.Context) (*usecase.SweepReport, error) {
	return &usecase.SweepReport{Notified: 1, Expired: 2}, nil
}

// --- helpers ---

type fixture struct {
	handler http.Handler
	auth    *api.AuthManager
	methods *mockMethodUC
	pays    *mockPaymentUC
	comm    *mockCommunityUC
}

func newFixture() *fixture {
	l := zerolog.Nop()
	f := &fixture{
		auth:    api.NewAuthManager("test-secret", time.Hour),
		methods: &mockMethodUC{},
		pays:    &mockPaymentUC{},
		comm:    &mockCommunityUC{},
	}
	srv := api.NewServer(f.comm, f.methods, f.pays, &mockSubUC{}, f.auth, &l)
	f.handler = srv.Router()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	tok, err := f.auth.Mint("ops")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	return tok
}

// --- tests ---

func TestServer_Auth(t *testing.T) {
	f := newFixture()

	t.Run("should serve health without a token", func(t *testing.T) {
		if rec := f.do(t, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("should reject api calls without a token", func(t *testing.T) {
		if rec := f.do(t, http.MethodGet, "/api/v1/communities/g/methods", nil, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		other, _ := api.NewAuthManager("other-secret", time.Hour).Mint("ops")
		if rec := f.do(t, http.MethodGet, "/api/v1/communities/g/methods", nil, other); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should accept a minted token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/communities/g/methods", nil, f.token(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out []map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if len(out) != 1 || out[0]["name"] != "VIP" {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
	})

	t.Run("should refuse to mint without a secret", func(t *testing.T) {
		if _, err := api.NewAuthManager("", time.Hour).Mint("ops"); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestServer_Routes(t *testing.T) {
	t.Run("should create a method from the request body", func(t *testing.T) {
		// Arrange
		f := newFixture()
		body := map[string]any{"name": "VIP", "duration_days": 30, "role_id": "r-1", "params": map[string]string{"memo": "hi"}}

		// Act
		rec := f.do(t, http.MethodPost, "/api/v1/communities/guild-1/methods", body, f.token(t))

		// Assert
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if f.methods.created.CommunityID != "guild-1" || f.methods.created.DurationDays != 30 || f.methods.created.Params["memo"] != "hi" {
			t.Errorf("unexpected input %+v", f.methods.created)
		}
		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out["duration_days"] != float64(30) {
			t.Errorf("expected duration_days 30, got %v", out["duration_days"])
		}
	})

	t.Run("should map domain errors to status codes", func(t *testing.T) {
		cases := []struct {
			err  error
			want int
		}{
			{domain.ErrInvalidArgument, http.StatusBadRequest},
			{domain.ErrAlreadyExists, http.StatusConflict},
			{domain.ErrCommunityNotConfigured, http.StatusUnprocessableEntity},
			{domain.ErrRateLimited, http.StatusTooManyRequests},
			{domain.ErrTransientGateway, http.StatusBadGateway},
			{context.DeadlineExceeded, http.StatusInternalServerError},
		}
		for _, tc := range cases {
			f := newFixture()
			f.pays.err = tc.err
			rec := f.do(t, http.MethodPost, "/api/v1/communities/g/payments", map[string]string{"member_id": "m"}, f.token(t))
			if rec.Code != tc.want {
				t.Errorf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
			}
		}
	})

	t.Run("should start a payment and return the checkout url", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/v1/communities/g/payments", map[string]string{"member_id": "m-1", "method": "VIP"}, f.token(t))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}
		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out["checkout_url"] != "https://pay.example/1" || out["status"] != "pending" {
			t.Errorf("unexpected body %v", out)
		}
	})

	t.Run("should return 404 for an unknown attempt", func(t *testing.T) {
		f := newFixture()
		if rec := f.do(t, http.MethodGet, "/api/v1/payments/nope", nil, f.token(t)); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("should delete a method and report expired subscriptions", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodDelete, "/api/v1/communities/g/methods/VIP", nil, f.token(t))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var out map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if out["subscriptions_expired"] != float64(2) {
			t.Errorf("unexpected body %v", out)
		}
	})

	t.Run("should set the payout from a payment url", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPut, "/api/v1/communities/g/payout", map[string]string{"payment_url": "https://x/?a=1"}, f.token(t))
		if rec.Code != http.StatusOK || f.comm.setupURL != "https://x/?a=1" {
			t.Errorf("expected Setup with the url, got %d %q", rec.Code, f.comm.setupURL)
		}
	})

	t.Run("should run a sweep on demand", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodPost, "/api/v1/sweep", nil, f.token(t))
		var out map[string]int
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if rec.Code != http.StatusOK || out["expired"] != 2 {
			t.Errorf("unexpected sweep response %d %v", rec.Code, out)
		}
	})

	t.Run("should report attempt counts by status", func(t *testing.T) {
		f := newFixture()
		rec := f.do(t, http.MethodGet, "/api/v1/stats", nil, f.token(t))
		var out struct {
			Payments map[string]int `json:"payments"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
		if rec.Code != http.StatusOK || out.Payments["paid"] != 5 || out.Payments["pending"] != 2 {
			t.Errorf("unexpected stats response %d %v", rec.Code, out.Payments)
		}
	})

	t.Run("should reject a malformed body", func(t *testing.T) {
		f := newFixture()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/communities/g/methods", bytes.NewBufferString("{"))
		req.Header.Set("Authorization", "Bearer "+f.token(t))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}
