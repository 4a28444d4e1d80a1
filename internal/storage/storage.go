package storage

import (
	"context"
	"errors"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
)

var (
	ErrConflict         = errors.New("conflict")
	ErrNoRows           = errors.New("no rows")
	ErrStatusMismatch   = errors.New("order status mismatch")
	ErrNotEnoughBalance = errors.New("not enough balance")
)

// Storage is the durable record of users, catalog, orders and withdrawals.
// Every method is a single atomic operation.
type Storage interface {
	CreateOrder(context.Context, entities.Order) (int64, error)
	GetOrder(context.Context, int64) (entities.Order, error)
	GetOrderByCorrelationID(context.Context, string) (entities.Order, error)
	GetOrdersByCorrelationID(context.Context, string) ([]entities.Order, error)
	// UpdateOrderStatus moves the order to status only if its current status is one of from.
	// On a lost race it returns the current row together with ErrStatusMismatch.
	UpdateOrderStatus(ctx context.Context, id int64, status string, from ...string) (entities.Order, error)
	SetOrderExpiry(context.Context, int64, time.Time) error
	MarkOrderReminded(context.Context, int64) (bool, error)
	GetUserOrders(context.Context, int64, int) ([]entities.Order, error)
	GetActiveOrders(context.Context, int) ([]entities.Order, error)
	GetExpiringOrders(context.Context, time.Time) ([]entities.Order, error)

	UpsertUser(context.Context, entities.User) (entities.User, bool, error)
	GetUser(context.Context, int64) (entities.User, error)
	GetUserByReferralCode(context.Context, string) (entities.User, error)
	GetUserIDs(context.Context) ([]int64, error)
	GetRecentUsers(context.Context, int) ([]entities.User, error)
	CountUsers(context.Context) (int64, error)
	CountReferrals(context.Context, int64) (int64, error)
	// CreditReferralBonus credits the referrer of referredID once per referred user.
	CreditReferralBonus(ctx context.Context, referredID int64, amount decimal.Decimal) (int64, bool, error)

	GetServices(context.Context) ([]entities.Service, error)
	GetService(context.Context, int64) (entities.Service, error)
	GetServiceVariants(context.Context, int64) ([]entities.Variant, error)
	GetVariant(context.Context, int64) (entities.Variant, error)
	ToggleService(context.Context, int64) (entities.Service, error)

	// CreateWithdrawal inserts a completed withdrawal unless it exceeds the available balance.
	CreateWithdrawal(context.Context, entities.Withdrawal) (int64, error)
	GetWithdrawals(context.Context, int) ([]entities.Withdrawal, error)

	GetOrderTotals(context.Context) ([]entities.StatusTotal, error)
	GetRevenueSince(context.Context, time.Time) (decimal.Decimal, error)
	CountOrdersSince(context.Context, time.Time) (int64, error)
	GetRevenueByMethod(context.Context) ([]entities.MethodTotal, error)
	GetWithdrawnTotal(context.Context) (decimal.Decimal, error)
}

const dateLayout = "2006-01-02"
