package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotImplemented     = errors.New("payment provider is not implemented")
	ErrManualVerification = errors.New("payment is verified manually by an operator")
	ErrUnknownMethod      = errors.New("unknown payment method")
)

type Invoice struct {
	Method       string
	Reference    string
	Amount       decimal.Decimal
	Instructions string
	PayURL       string
}

// Gateway issues and checks invoices for one payment method.
type Gateway interface {
	Method() string
	CreateInvoice(ctx context.Context, reference string, amount decimal.Decimal) (Invoice, error)
	CheckInvoice(ctx context.Context, invoice Invoice) (bool, error)
}

type Registry struct {
	gateways map[string]Gateway
	fallback Gateway
}

// NewRegistry registers gateways by method. The fallback serves methods whose
// gateway is missing or not implemented yet.
func NewRegistry(fallback Gateway, gateways ...Gateway) *Registry {
	registry := &Registry{
		gateways: make(map[string]Gateway, len(gateways)+1),
		fallback: fallback,
	}

	registry.gateways[fallback.Method()] = fallback
	for _, gateway := range gateways {
		registry.gateways[gateway.Method()] = gateway
	}

	return registry
}

func (r *Registry) Gateway(method string) (Gateway, error) {
	gateway, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	return gateway, nil
}

// Invoice issues an invoice for order amount, falling back to the manual
// gateway when the requested provider cannot serve it.
func (r *Registry) Invoice(ctx context.Context, order entities.Order, reference string, amount decimal.Decimal) (Invoice, error) {
	gateway, err := r.Gateway(order.PaymentMethod)
	if err == nil {
		invoice, err := gateway.CreateInvoice(ctx, reference, amount)
		if err == nil {
			return invoice, nil
		}

		if !errors.Is(err, ErrNotImplemented) {
			return Invoice{}, err
		}
	}

	zap.L().Debug(
		"payment method falls back to manual transfer",
		zap.Int64("order_id", order.ID),
		zap.String("method", order.PaymentMethod),
	)

	return r.fallback.CreateInvoice(ctx, reference, amount)
}
