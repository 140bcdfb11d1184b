package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/infra/logging"
	"crypto-role-subscription/internal/usecase"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP codes; unexpected errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCommunityNotConfigured):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrTransientGateway), errors.Is(err, domain.ErrUnknownGatewayPayment):
		status = http.StatusBadGateway
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidArgument
	}
	return nil
}

type payoutRequest struct {
	Name       string `json:"name"`
	PaymentURL string `json:"payment_url"`
	Address    string `json:"address"`
	Coin       string `json:"coin"`
	Network    string `json:"network"`
}

type communityView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	PayoutAddress string    `json:"payout_address"`
	Coin          string    `json:"coin"`
	Network       string    `json:"network"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Server) handleSetPayout(w http.ResponseWriter, r *http.Request) {
	communityID := chi.URLParam(r, "communityID")
	var req payoutRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var (
		c   *model.Community
		err error
	)
	if req.PaymentURL != "" {
		c, err = s.communities.Setup(r.Context(), communityID, req.Name, req.PaymentURL)
	} else {
		c, err = s.communities.SetPayout(r.Context(), communityID, req.Name, req.Address, req.Coin, req.Network)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, communityView{
		ID:            c.ID,
		Name:          c.Name,
		PayoutAddress: c.PayoutAddress,
		Coin:          c.Coin,
		Network:       c.Network,
		UpdatedAt:     c.UpdatedAt,
	})
}

type createMethodRequest struct {
	Name         string            `json:"name"`
	RoleID       string            `json:"role_id"`
	DurationDays int               `json:"duration_days"`
	Amount       string            `json:"amount"`
	Donation     bool              `json:"donation"`
	WebhookURL   string            `json:"webhook_url"`
	Params       map[string]string `json:"params"`
}

type methodView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Kind         string            `json:"kind"`
	Coin         string            `json:"coin"`
	Network      string            `json:"network"`
	RoleID       *string           `json:"role_id,omitempty"`
	DurationDays int               `json:"duration_days,omitempty"`
	Amount       string            `json:"amount,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
	HasWebhook   bool              `json:"has_webhook"`
	CreatedAt    time.Time         `json:"created_at"`
}

func toMethodView(m *model.PaymentMethod) methodView {
	v := methodView{
		ID:         m.ID,
		Name:       m.Name,
		Kind:       string(m.Kind),
		Coin:       m.Coin,
		Network:    m.Network,
		RoleID:     m.RoleID,
		Params:     m.Params,
		HasWebhook: m.WebhookURL != nil && *m.WebhookURL != "",
		CreatedAt:  m.CreatedAt,
	}
	if m.Duration != nil {
		v.DurationDays = int(*m.Duration / (24 * time.Hour))
	}
	if m.Amount != nil {
		v.Amount = m.Amount.String()
	}
	return v
}

func (s *Server) handleListMethods(w http.ResponseWriter, r *http.Request) {
	list, err := s.methods.List(r.Context(), chi.URLParam(r, "communityID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]methodView, 0, len(list))
	for _, m := range list {
		out = append(out, toMethodView(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateMethod(w http.ResponseWriter, r *http.Request) {
	var req createMethodRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.methods.Create(r.Context(), usecase.CreateMethodInput{
		CommunityID:  chi.URLParam(r, "communityID"),
		Name:         req.Name,
		RoleID:       req.RoleID,
		DurationDays: req.DurationDays,
		Amount:       req.Amount,
		Donation:     req.Donation,
		WebhookURL:   req.WebhookURL,
		Params:       req.Params,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMethodView(m))
}

func (s *Server) handleDeleteMethod(w http.ResponseWriter, r *http.Request) {
	res, err := s.methods.Delete(r.Context(), chi.URLParam(r, "communityID"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"method":                 toMethodView(res.Method),
		"subscriptions_expired":  res.Expired,
		"subscriptions_retrying": res.Failed,
	})
}

type startPaymentRequest struct {
	MemberID string `json:"member_id"`
	Method   string `json:"method"`
}

type attemptView struct {
	ID             string     `json:"id"`
	MethodID       string     `json:"method_id"`
	CommunityID    string     `json:"community_id"`
	MemberID       string     `json:"member_id"`
	GatewayID      string     `json:"gateway_id"`
	CheckoutURL    string     `json:"checkout_url"`
	Status         string     `json:"status"`
	GatewayStatus  string     `json:"gateway_status"`
	Amount         string     `json:"amount,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	NextPollAt     time.Time  `json:"next_poll_at"`
	DeadlineAt     time.Time  `json:"deadline_at"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	SubscriptionID *string    `json:"subscription_id,omitempty"`
}

func toAttemptView(a *model.PaymentAttempt) attemptView {
	v := attemptView{
		ID:             a.ID,
		MethodID:       a.MethodID,
		CommunityID:    a.CommunityID,
		MemberID:       a.MemberID,
		GatewayID:      a.GatewayID,
		CheckoutURL:    a.CheckoutURL,
		Status:         string(a.Status),
		GatewayStatus:  a.GatewayStatus,
		Currency:       a.Currency,
		NextPollAt:     a.NextPollAt,
		DeadlineAt:     a.DeadlineAt,
		CreatedAt:      a.CreatedAt,
		ResolvedAt:     a.ResolvedAt,
		SubscriptionID: a.SubscriptionID,
	}
	if a.Amount != nil {
		v.Amount = a.Amount.String()
	}
	return v
}

func (s *Server) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	var req startPaymentRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := s.payments.StartPayment(r.Context(), chi.URLParam(r, "communityID"), req.MemberID, req.Method)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttemptView(a))
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	a, err := s.payments.Get(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttemptView(a))
}

func (s *Server) handleMemberPayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := s.payments.ListForMember(r.Context(), chi.URLParam(r, "communityID"), chi.URLParam(r, "memberID"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]attemptView, 0, len(list))
	for _, a := range list {
		out = append(out, toAttemptView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type subscriptionView struct {
	ID        string     `json:"id"`
	MethodID  string     `json:"method_id"`
	RoleID    *string    `json:"role_id,omitempty"`
	State     string     `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
}

func (s *Server) handleMemberSubscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := s.subs.ListForMember(r.Context(), chi.URLParam(r, "communityID"), chi.URLParam(r, "memberID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]subscriptionView, 0, len(list))
	for _, sub := range list {
		out = append(out, subscriptionView{
			ID:        sub.ID,
			MethodID:  sub.MethodID,
			RoleID:    sub.RoleID,
			State:     string(sub.State),
			StartedAt: sub.StartedAt,
			ExpiresAt: sub.ExpiresAt,
			ExpiredAt: sub.ExpiredAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	rep, err := s.subs.Sweep(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"notified": rep.Notified,
		"expired":  rep.Expired,
		"failed":   rep.Failed,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.payments.CountByStatus(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make(map[string]int, len(counts))
	for st, n := range counts {
		out[string(st)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}
