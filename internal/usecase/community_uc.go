// File: internal/usecase/community_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/model"
	"crypto-role-subscription/internal/domain/ports/repository"
	"crypto-role-subscription/internal/infra/logging"
)

// Compile-time check
var _ CommunityUseCase = (*communityUC)(nil)

type CommunityUseCase interface {
	// Setup reads the payout destination from a "regular payment" URL.
	Setup(ctx context.Context, communityID, name, paymentURL string) (*model.Community, error)
	SetPayout(ctx context.Context, communityID, name, address, coin, network string) (*model.Community, error)
	Get(ctx context.Context, communityID string) (*model.Community, error)
}

type communityUC struct {
	communities repository.CommunityRepository
	log         *zerolog.Logger
}

func NewCommunityUseCase(communities repository.CommunityRepository, logger *zerolog.Logger) *communityUC {
	return &communityUC{communities: communities, log: logger}
}

func (u *communityUC) Setup(ctx context.Context, communityID, name, paymentURL string) (*model.Community, error) {
	address, coin, network, err := ParsePayoutURL(paymentURL)
	if err != nil {
		return nil, err
	}
	return u.SetPayout(ctx, communityID, name, address, coin, network)
}

func (u *communityUC) SetPayout(ctx context.Context, communityID, name, address, coin, network string) (*model.Community, error) {
	c, err := model.NewCommunity(communityID, name, address, coin, network)
	if err != nil {
		return nil, err
	}
	existing, err := u.communities.FindByID(ctx, repository.NoTX, c.ID)
	switch {
	case err == nil:
		c.CreatedAt = existing.CreatedAt
		if c.Name == "" {
			c.Name = existing.Name
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	c.UpdatedAt = time.Now().UTC()
	if err := u.communities.Save(ctx, repository.NoTX, c); err != nil {
		return nil, err
	}
	u.log.Info().Str("community_id", c.ID).Str("coin", c.Coin).Str("network", c.Network).
		Str("address", logging.Redact(c.PayoutAddress, false)).Msg("payout settings saved")
	return c, nil
}

func (u *communityUC) Get(ctx context.Context, communityID string) (*model.Community, error) {
	return u.communities.FindByID(ctx, repository.NoTX, communityID)
}

// ParsePayoutURL extracts address, ticker_to and network_to from an AnonPay
// checkout link such as https://trocador.app/anonpay/?ticker_to=xmr&network_to=Mainnet&address=...
func ParsePayoutURL(raw string) (address, coin, network string, err error) {
	u, perr := url.Parse(strings.TrimSpace(raw))
	if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", "", "", fmt.Errorf("%w: payment url must be an http(s) link", domain.ErrInvalidArgument)
	}
	q := u.Query()
	get := func(name string) (string, error) {
		v := strings.TrimSpace(q.Get(name))
		if v == "" {
			return "", fmt.Errorf("%w: the payment url is missing the %s parameter", domain.ErrInvalidArgument, name)
		}
		return v, nil
	}
	if address, err = get("address"); err != nil {
		return "", "", "", err
	}
	if coin, err = get("ticker_to"); err != nil {
		return "", "", "", err
	}
	if network, err = get("network_to"); err != nil {
		return "", "", "", err
	}
	return address, strings.ToUpper(coin), strings.ToUpper(network), nil
}
