package adapter

import (
	"context"

	"github.com/shopspring/decimal"

	"crypto-role-subscription/internal/domain/model"
)

// CreatePaymentRequest is what the gateway needs to open a checkout.
type CreatePaymentRequest struct {
	PayoutAddress string
	Coin          string
	Network       string
	Amount        *decimal.Decimal  // optional fixed amount
	Params        map[string]string // advanced gateway parameters, passed through
	Donation      bool
}

// CreatedPayment is the gateway's answer to CreatePayment.
type CreatedPayment struct {
	GatewayID   string
	CheckoutURL string
	StatusURL   string
	RawStatus   string
	Payload     map[string]any
}

// StatusReport is a gateway status mapped into the internal vocabulary.
type StatusReport struct {
	Status    model.PaymentStatus
	RawStatus string
	Partial   bool // paid partially; reported as failed
	Amount    *decimal.Decimal
	Currency  string
	Payload   map[string]any
}

// PaymentGateway is the hex port for payment providers. Implementations
// never retry; transient failures wrap domain.ErrTransientGateway and an id
// the provider does not know wraps domain.ErrUnknownGatewayPayment.
type PaymentGateway interface {
	Name() string
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatedPayment, error)
	// GetStatus polls statusURL, the address returned at creation, or the
	// provider's own status endpoint for gatewayID when statusURL is empty.
	GetStatus(ctx context.Context, gatewayID, statusURL string) (*StatusReport, error)
}
