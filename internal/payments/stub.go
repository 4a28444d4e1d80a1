package payments

import (
	"context"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
)

// Stub is a provider whose integration does not exist yet.
type Stub struct {
	method   string
	provider string
}

func NewCryptoBot() *Stub {
	return &Stub{method: entities.PaymentMethodCrypto, provider: "CryptoBot"}
}

func NewYooKassa() *Stub {
	return &Stub{method: entities.PaymentMethodCard, provider: "YooKassa"}
}

func (s *Stub) Method() string {
	return s.method
}

func (s *Stub) CreateInvoice(context.Context, string, decimal.Decimal) (Invoice, error) {
	return Invoice{}, fmt.Errorf("%s: %w", s.provider, ErrNotImplemented)
}

func (s *Stub) CheckInvoice(context.Context, Invoice) (bool, error) {
	return false, fmt.Errorf("%s: %w", s.provider, ErrNotImplemented)
}
