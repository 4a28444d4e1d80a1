package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrEmptyDetails        = errors.New("empty withdrawal details")
)

type Balance struct {
	TotalEarned decimal.Decimal
	Available   decimal.Decimal
	Frozen      decimal.Decimal
	Withdrawn   decimal.Decimal
}

type Period struct {
	Orders  int64
	Revenue decimal.Decimal
}

type Stats struct {
	Users    int64
	ByStatus map[string]entities.StatusTotal
	ByMethod map[string]decimal.Decimal
	Today    Period
	Week     Period
	Month    Period
	Total    Period
}

// Ledger derives money figures from orders and withdrawals on every call.
// Nothing is cached.
type Ledger struct {
	storage       storage.Storage
	referralBonus decimal.Decimal
	now           func() time.Time
}

func New(storage storage.Storage, referralBonus decimal.Decimal, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}

	return &Ledger{
		storage:       storage,
		referralBonus: referralBonus,
		now:           now,
	}
}

func (l *Ledger) ReferralBonus() decimal.Decimal {
	return l.referralBonus
}

func (l *Ledger) Balance(ctx context.Context) (Balance, error) {
	totals, err := l.storage.GetOrderTotals(ctx)
	if err != nil {
		return Balance{}, fmt.Errorf("error get order totals: %w", err)
	}

	withdrawn, err := l.storage.GetWithdrawnTotal(ctx)
	if err != nil {
		return Balance{}, fmt.Errorf("error get withdrawn total: %w", err)
	}

	balance := Balance{
		TotalEarned: decimal.Zero,
		Frozen:      decimal.Zero,
		Withdrawn:   withdrawn.Round(2),
	}

	for _, total := range totals {
		switch total.Status {
		case entities.OrderStatusCompleted:
			balance.TotalEarned = balance.TotalEarned.Add(total.Amount)
		case entities.OrderStatusCancelled, entities.OrderStatusPending:
		default:
			balance.Frozen = balance.Frozen.Add(total.Amount)
		}
	}

	balance.TotalEarned = balance.TotalEarned.Round(2)
	balance.Frozen = balance.Frozen.Round(2)
	balance.Available = balance.TotalEarned.Sub(balance.Withdrawn)

	return balance, nil
}

func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	users, err := l.storage.CountUsers(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("error count users: %w", err)
	}

	totals, err := l.storage.GetOrderTotals(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("error get order totals: %w", err)
	}

	methods, err := l.storage.GetRevenueByMethod(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("error get revenue by method: %w", err)
	}

	stats := Stats{
		Users:    users,
		ByStatus: make(map[string]entities.StatusTotal, len(totals)),
		ByMethod: make(map[string]decimal.Decimal, len(methods)),
		Total:    Period{Revenue: decimal.Zero},
	}

	for _, total := range totals {
		total.Amount = total.Amount.Round(2)
		stats.ByStatus[total.Status] = total
		stats.Total.Orders += total.Count

		if total.Status == entities.OrderStatusCompleted {
			stats.Total.Revenue = total.Amount
		}
	}

	for _, method := range methods {
		stats.ByMethod[method.Method] = method.Amount.Round(2)
	}

	now := l.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for _, period := range []struct {
		since  time.Time
		target *Period
	}{
		{today, &stats.Today},
		{now.AddDate(0, 0, -7), &stats.Week},
		{time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), &stats.Month},
	} {
		if *period.target, err = l.period(ctx, period.since); err != nil {
			return Stats{}, err
		}
	}

	return stats, nil
}

func (l *Ledger) period(ctx context.Context, since time.Time) (Period, error) {
	orders, err := l.storage.CountOrdersSince(ctx, since)
	if err != nil {
		return Period{}, fmt.Errorf("error count orders since %s: %w", since, err)
	}

	revenue, err := l.storage.GetRevenueSince(ctx, since)
	if err != nil {
		return Period{}, fmt.Errorf("error get revenue since %s: %w", since, err)
	}

	return Period{Orders: orders, Revenue: revenue.Round(2)}, nil
}

// CreditReferralBonus credits the referrer of referee with the fixed referral
// bonus. It is the only way a bonus balance grows and pays at most once per
// referred user.
func (l *Ledger) CreditReferralBonus(ctx context.Context, referee entities.User) (int64, bool, error) {
	if referee.ReferredBy == nil || referee.ReferralRewarded || !l.referralBonus.IsPositive() {
		return 0, false, nil
	}

	referrerID, credited, err := l.storage.CreditReferralBonus(ctx, referee.ID, l.referralBonus)
	if err != nil {
		return 0, false, fmt.Errorf("error credit referral bonus: %w", err)
	}

	return referrerID, credited, nil
}

func (l *Ledger) Withdraw(ctx context.Context, operatorID int64, amount decimal.Decimal, details string) (entities.Withdrawal, error) {
	if !amount.IsPositive() {
		return entities.Withdrawal{}, ErrInvalidAmount
	}

	details = strings.TrimSpace(details)
	if details == "" {
		return entities.Withdrawal{}, ErrEmptyDetails
	}

	amount = amount.Round(2)

	balance, err := l.Balance(ctx)
	if err != nil {
		return entities.Withdrawal{}, err
	}

	if amount.GreaterThan(balance.Available) {
		return entities.Withdrawal{}, fmt.Errorf("%w: available %s", ErrInsufficientBalance, balance.Available.StringFixed(2))
	}

	withdrawal := entities.Withdrawal{
		OperatorID: operatorID,
		Amount:     amount,
		Details:    details,
		Status:     entities.WithdrawalStatusCompleted,
	}

	id, err := l.storage.CreateWithdrawal(ctx, withdrawal)
	if err != nil {
		if errors.Is(err, storage.ErrNotEnoughBalance) {
			return entities.Withdrawal{}, ErrInsufficientBalance
		}

		return entities.Withdrawal{}, fmt.Errorf("error create withdrawal: %w", err)
	}

	withdrawal.ID = id
	withdrawal.CreatedAt = l.now()

	return withdrawal, nil
}

func (l *Ledger) Withdrawals(ctx context.Context, limit int) ([]entities.Withdrawal, error) {
	return l.storage.GetWithdrawals(ctx, limit)
}
