// File: internal/usecase/method_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
)

// Compile-time check
var _ MethodUseCase = (*methodUC)(nil)

// CreateMethodInput carries admin input for a new payment method.
type CreateMethodInput struct {
	CommunityID  string
	Name         string
	RoleID       string
	DurationDays int // 0 means one-time
	Amount       string
	Donation     bool
	WebhookURL   string
	Params       map[string]string
}

// DeleteResult reports what happened to the method's live subscriptions.
type DeleteResult struct {
	Method  *model.PaymentMethod
	Expired int
	Failed  int
}

type MethodUseCase interface {
	Create(ctx context.Context, in CreateMethodInput) (*model.PaymentMethod, error)
	List(ctx context.Context, communityID string) ([]*model.PaymentMethod, error)
	// Get returns the named method, or the first one when name is empty.
	Get(ctx context.Context, communityID, name string) (*model.PaymentMethod, error)
	Delete(ctx context.Context, communityID, name string) (*DeleteResult, error)
}

type methodUC struct {
	communities repository.CommunityRepository
	methods     repository.PaymentMethodRepository
	subs        SubscriptionUseCase
	log         *zerolog.Logger
}

func NewMethodUseCase(communities repository.CommunityRepository, methods repository.PaymentMethodRepository, subs SubscriptionUseCase, logger *zerolog.Logger) *methodUC {
	return &methodUC{communities: communities, methods: methods, subs: subs, log: logger}
}

func (u *methodUC) Create(ctx context.Context, in CreateMethodInput) (*model.PaymentMethod, error) {
	c, err := u.communities.FindByID(ctx, repository.NoTX, in.CommunityID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrCommunityNotConfigured
	}
	if err != nil {
		return nil, err
	}

	kind := model.MethodKindPayment
	if in.Donation {
		kind = model.MethodKindDonation
	}
	m, err := model.NewPaymentMethod(uuid.NewString(), c, in.Name, kind)
	if err != nil {
		return nil, err
	}
	if err := m.SetDurationDays(in.DurationDays); err != nil {
		return nil, fmt.Errorf("%w: duration must be between %d and %d days", domain.ErrInvalidArgument, model.MinDurationDays, model.MaxDurationDays)
	}
	if r := strings.TrimSpace(in.RoleID); r != "" {
		m.RoleID = &r
	}
	if w := strings.TrimSpace(in.WebhookURL); w != "" {
		if err := validateHTTPURL(w); err != nil {
			return nil, fmt.Errorf("%w: webhook url must be an http(s) link", domain.ErrInvalidArgument)
		}
		m.WebhookURL = &w
	}
	if a := strings.TrimSpace(in.Amount); a != "" {
		d, err := decimal.NewFromString(a)
		if err != nil || !d.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be a positive number", domain.ErrInvalidArgument)
		}
		m.Amount = &d
	}
	params, err := NormalizeParams(in.Params)
	if err != nil {
		return nil, err
	}
	m.Params = params

	if err := u.methods.Save(ctx, repository.NoTX, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: a payment method named %q already exists", domain.ErrAlreadyExists, m.Name)
		}
		return nil, err
	}
	u.log.Info().Str("community_id", m.CommunityID).Str("method_id", m.ID).Str("name", m.Name).Msg("payment method created")
	return m, nil
}

func (u *methodUC) List(ctx context.Context, communityID string) ([]*model.PaymentMethod, error) {
	return u.methods.ListByCommunity(ctx, repository.NoTX, communityID)
}

func (u *methodUC) Get(ctx context.Context, communityID, name string) (*model.PaymentMethod, error) {
	return findMethod(ctx, u.methods, communityID, name)
}

func (u *methodUC) Delete(ctx context.Context, communityID, name string) (*DeleteResult, error) {
	m, err := u.methods.FindByName(ctx, repository.NoTX, communityID, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}
	// Deleting first cascades to pending attempts, so no poll can renew a
	// subscription of this method once its expiry has started.
	if err := u.methods.Delete(ctx, repository.NoTX, m); err != nil {
		return nil, err
	}
	expired, failed, err := u.subs.ExpireForMethod(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("method %s deleted, expiring its subscriptions: %w", m.Name, err)
	}
	u.log.Info().Str("community_id", communityID).Str("method_id", m.ID).Int("expired", expired).Int("failed", failed).Msg("payment method deleted")
	return &DeleteResult{Method: m, Expired: expired, Failed: failed}, nil
}

func findMethod(ctx context.Context, methods repository.PaymentMethodRepository, communityID, name string) (*model.PaymentMethod, error) {
	name = strings.TrimSpace(name)
	if name != "" {
		return methods.FindByName(ctx, repository.NoTX, communityID, name)
	}
	all, err := methods.ListByCommunity(ctx, repository.NoTX, communityID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrNotFound
	}
	return all[0], nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

type paramKind int

const (
	paramText paramKind = iota
	paramUpper
	paramBool
	paramNumber
	paramColor
)

// Gateway parameters accepted on a method beyond amount, donation and webhook.
var allowedParams = map[string]paramKind{
	"memo":              paramText,
	"ticker_from":       paramUpper,
	"network_from":      paramUpper,
	"description":       paramText,
	"ref":               paramText,
	"buttonbgcolor":     paramText,
	"textcolor":         paramText,
	"bgcolor":           paramColor,
	"email":             paramText,
	"fiat_equiv":        paramUpper,
	"remove_direct_pay": paramBool,
	"min_logpolicy":     paramUpper,
	"simple_mode":       paramBool,
	"maximum":           paramNumber,
}

// NormalizeParams validates keys against the accepted set and formats values
// the way the gateway expects them.
func NormalizeParams(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.ToLower(strings.TrimSpace(k))
		kind, ok := allowedParams[key]
		if !ok {
			return nil, fmt.Errorf("%w: unsupported parameter %q", domain.ErrInvalidArgument, k)
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		switch kind {
		case paramUpper:
			v = strings.ToUpper(v)
		case paramBool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidArgument, key)
			}
			v = strconv.FormatBool(b)
		case paramColor:
			// bgcolor also accepts a boolean to toggle the transparent background
			if b, err := strconv.ParseBool(v); err == nil {
				v = strconv.FormatBool(b)
			}
		case paramNumber:
			d, err := decimal.NewFromString(v)
			if err != nil || !d.IsPositive() {
				return nil, fmt.Errorf("%w: %s must be a positive number", domain.ErrInvalidArgument, key)
			}
			v = formatNumber(d)
		}
		out[key] = v
	}
	return out, nil
}

// formatNumber renders d with at most 12 significant digits.
func formatNumber(d decimal.Decimal) string {
	f, _ := d.Float64()
	return strconv.FormatFloat(f, 'g', 12, 64)
}
