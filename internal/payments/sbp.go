package payments

import (
	"context"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
)

type SBPDetails struct {
	Phone     string
	Bank      string
	Recipient string
}

// SBP is a manual bank transfer: the user pays by phone number and an operator
// checks the incoming transfer by its comment.
type SBP struct {
	details SBPDetails
}

func NewSBP(details SBPDetails) *SBP {
	return &SBP{details: details}
}

func (s *SBP) Method() string {
	return entities.PaymentMethodSBP
}

func (s *SBP) CreateInvoice(_ context.Context, reference string, amount decimal.Decimal) (Invoice, error) {
	return Invoice{
		Method:    entities.PaymentMethodSBP,
		Reference: reference,
		Amount:    amount,
		Instructions: fmt.Sprintf(
			"🏦 <b>Оплата через СБП</b>\n\n"+
				"Переведи <b>%s₽</b> по номеру:\n"+
				"📱 <code>%s</code> (%s)\n"+
				"👤 Получатель: <b>%s</b>\n\n"+
				"⚠️ Комментарий к переводу: <code>#%s</code>\n\n"+
				"После перевода нажми кнопку ниже 👇",
			amount.StringFixed(2), s.details.Phone, s.details.Bank, s.details.Recipient, reference,
		),
	}, nil
}

func (s *SBP) CheckInvoice(context.Context, Invoice) (bool, error) {
	return false, ErrManualVerification
}
