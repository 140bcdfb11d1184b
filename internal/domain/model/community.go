package model

import (
	"strings"
	"time"

	"crypto-role-subscription/internal/domain"
)

// Community holds the payout destination of one chat community.
type Community struct {
	ID            string // chat platform id (guild id / chat id)
	Name          string // display name, optional
	PayoutAddress string
	Coin          string // upper-cased ticker, e.g. XMR
	Network       string // upper-cased network, e.g. MAINNET
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewCommunity validates and normalises payout settings.
func NewCommunity(id, name, address, coin, network string) (*Community, error) {
	id = strings.TrimSpace(id)
	address = strings.TrimSpace(address)
	coin = strings.ToUpper(strings.TrimSpace(coin))
	network = strings.ToUpper(strings.TrimSpace(network))
	if id == "" || address == "" || coin == "" || network == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Community{
		ID:            id,
		Name:          strings.TrimSpace(name),
		PayoutAddress: address,
		Coin:          coin,
		Network:       network,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (c *Community) Configured() bool {
	return c != nil && c.PayoutAddress != "" && c.Coin != "" && c.Network != ""
}
