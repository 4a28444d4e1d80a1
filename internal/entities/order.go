package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending        = "pending"
	OrderStatusWaitingConfirm = "waiting_confirm"
	OrderStatusPaid           = "paid"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
)

const (
	PaymentMethodSBP    = "sbp"
	PaymentMethodCrypto = "crypto"
	PaymentMethodCard   = "card"
)

type Order struct {
	ID            int64           `db:"id"`
	UserID        int64           `db:"user_id"`
	ServiceID     int64           `db:"service_id"`
	VariantID     int64           `db:"variant_id"`
	Amount        decimal.Decimal `db:"amount"`
	Status        string          `db:"status"`
	PaymentMethod string          `db:"payment_method"`
	CorrelationID string          `db:"correlation_id"`
	ExpiresAt     *time.Time      `db:"expires_at"`
	Reminded      bool            `db:"reminded"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`

	// Filled by joins on read.
	ServiceName string `db:"service_name"`
	Duration    string `db:"duration"`
	Username    string `db:"username"`
}

// IsTerminal reports whether no further transition can leave the current status.
func (o Order) IsTerminal() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusCancelled
}

// Label joins the service name and duration for display.
func (o Order) Label() string {
	if o.Duration == "" {
		return o.ServiceName
	}

	return o.ServiceName + " — " + o.Duration
}

type StatusTotal struct {
	Status string          `db:"status"`
	Count  int64           `db:"count"`
	Amount decimal.Decimal `db:"amount"`
}

type MethodTotal struct {
	Method string          `db:"payment_method"`
	Amount decimal.Decimal `db:"amount"`
}
