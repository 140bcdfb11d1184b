// File: internal/infra/adapters/payment/anonpay_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/config"
	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/adapter"
	"crypto-role-subscription/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*AnonPayGateway)(nil)

const snippetLimit = 500

// AnonPayGateway implements adapter.PaymentGateway against Trocador AnonPay.
// Both endpoints are plain GETs returning JSON.
type AnonPayGateway struct {
	base      string
	userAgent string
	client    *http.Client
	log       *zerolog.Logger
}

func NewAnonPayGateway(cfg config.GatewayConfig, logger *zerolog.Logger) (*AnonPayGateway, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid gateway base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	l := logger.With().Str("component", "AnonPayGateway").Logger()
	return &AnonPayGateway{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
		log:       &l,
	}, nil
}

func (g *AnonPayGateway) Name() string { return "anonpay" }

// CreatePayment opens a checkout. Caller params go in first; direct, address,
// ticker_to and network_to always overwrite them.
func (g *AnonPayGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (out *adapter.CreatedPayment, err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayRequest("create", started, err) }()

	if req.PayoutAddress == "" || req.Coin == "" || req.Network == "" {
		return nil, domain.ErrInvalidArgument
	}
	q := url.Values{}
	for k, v := range req.Params {
		q.Set(k, v)
	}
	q.Set("direct", "false")
	q.Set("address", req.PayoutAddress)
	q.Set("ticker_to", req.Coin)
	q.Set("network_to", req.Network)
	if req.Amount != nil {
		q.Set("amount", req.Amount.String())
	}
	if req.Donation {
		q.Set("donation", "true")
	}

	body, err := g.getJSON(ctx, "creating checkout", g.base+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	id := stringField(body, "id")
	checkout := stringField(body, "url")
	statusURL := stringField(body, "status_url")
	if id == "" || checkout == "" {
		return nil, fmt.Errorf("%w: response missing id or url", domain.ErrTransientGateway)
	}
	raw := strings.ToLower(stringField(body, "status"))
	if raw == "" {
		raw = "waiting"
	}
	return &adapter.CreatedPayment{
		GatewayID:   id,
		CheckoutURL: checkout,
		StatusURL:   statusURL,
		RawStatus:   raw,
		Payload:     body,
	}, nil
}

// GetStatus fetches and maps the current status of a checkout from the
// stored status URL, falling back to base/status/<id>.
func (g *AnonPayGateway) GetStatus(ctx context.Context, gatewayID, statusURL string) (out *adapter.StatusReport, err error) {
	started := time.Now()
	defer func() { metrics.ObserveGatewayRequest("status", started, err) }()

	if strings.TrimSpace(gatewayID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	body, err := g.getJSON(ctx, "fetching status", g.statusTarget(gatewayID, statusURL))
	if err != nil {
		return nil, err
	}
	raw := strings.ToLower(strings.TrimSpace(stringField(body, "status")))
	status, partial := MapStatus(raw)
	rep := &adapter.StatusReport{
		Status:    status,
		RawStatus: raw,
		Partial:   partial,
		Currency:  strings.ToUpper(firstString(body, "ticker_to", "currency")),
		Payload:   body,
	}
	if amt, ok := decimalField(body, "amount_to", "amount"); ok {
		rep.Amount = &amt
	}
	return rep, nil
}

func (g *AnonPayGateway) statusTarget(gatewayID, statusURL string) string {
	if u, err := url.Parse(strings.TrimSpace(statusURL)); err == nil && u.Host != "" && (u.Scheme == "http" || u.Scheme == "https") {
		return u.String()
	}
	return g.base + "/status/" + url.PathEscape(gatewayID)
}

// MapStatus maps AnonPay vocabulary; anything unrecognised stays pending.
func MapStatus(raw string) (model.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "finished":
		return model.PaymentStatusPaid, false
	case "paid partially":
		return model.PaymentStatusFailed, true
	case "failed", "halted":
		return model.PaymentStatusFailed, false
	case "expired":
		return model.PaymentStatusExpired, false
	case "refunded":
		return model.PaymentStatusRefunded, false
	default:
		// waiting, confirming, exchanging, sending, unknown
		return model.PaymentStatusPending, false
	}
}

func (g *AnonPayGateway) getJSON(ctx context.Context, action, target string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransientGateway, action, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrTransientGateway, action, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s: http %d", domain.ErrUnknownGatewayPayment, action, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s: http %d", domain.ErrTransientGateway, action, resp.StatusCode)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		g.log.Error().
			Str("action", action).
			Int("status", resp.StatusCode).
			Str("content_type", resp.Header.Get("Content-Type")).
			Str("body", snippet(raw)).
			Msg("gateway returned non-JSON payload")
		return nil, fmt.Errorf("%w: %s: unexpected payload", domain.ErrTransientGateway, action)
	}
	return body, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "<empty body>"
	}
	if r := []rune(s); len(r) > snippetLimit {
		return string(r[:snippetLimit]) + "…"
	}
	return s
}

// stringField looks a key up case-insensitively; AnonPay mixes "ID" and "id".
func stringField(m map[string]any, key string) string {
	v, ok := lookup(m, key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return fmt.Sprint(t)
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func decimalField(m map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		s := stringField(m, k)
		if s == "" {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err == nil {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}
