package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
)

var now = time.Date(2026, 5, 20, 15, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

// seed creates one order per amount and walks it up to status.
func seed(t *testing.T, s storage.Storage, status string, amounts ...int64) {
	t.Helper()

	path := []string{
		entities.OrderStatusPending,
		entities.OrderStatusWaitingConfirm,
		entities.OrderStatusPaid,
		entities.OrderStatusCompleted,
	}

	ctx := context.Background()
	for _, amount := range amounts {
		id, err := s.CreateOrder(ctx, entities.Order{
			UserID:        1,
			ServiceID:     1,
			VariantID:     1,
			Amount:        decimal.NewFromInt(amount),
			PaymentMethod: entities.PaymentMethodSBP,
		})
		if err != nil {
			t.Fatal(err)
		}

		if status == entities.OrderStatusCancelled {
			s.UpdateOrderStatus(ctx, id, entities.OrderStatusWaitingConfirm, entities.OrderStatusPending)
			s.UpdateOrderStatus(ctx, id, entities.OrderStatusCancelled, entities.OrderStatusWaitingConfirm)
			continue
		}

		for i := 1; i < len(path) && path[i-1] != status; i++ {
			if _, err := s.UpdateOrderStatus(ctx, id, path[i], path[i-1]); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestBalance(t *testing.T) {
	s := storage.NewMemoryStorage(storage.WithClock(clock))
	l := ledger.New(s, decimal.NewFromInt(100), clock)

	seed(t, s, entities.OrderStatusCompleted, 1490, 199)
	seed(t, s, entities.OrderStatusPaid, 549)
	seed(t, s, entities.OrderStatusWaitingConfirm, 999)
	seed(t, s, entities.OrderStatusPending, 299)
	seed(t, s, entities.OrderStatusCancelled, 1799)

	if _, err := l.Withdraw(context.Background(), 1, decimal.NewFromInt(500), "card 1234"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	balance, err := l.Balance(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  decimal.Decimal
		want int64
	}{
		{"total earned", balance.TotalEarned, 1689},
		{"frozen", balance.Frozen, 1548},
		{"withdrawn", balance.Withdrawn, 500},
		{"available", balance.Available, 1189},
	}

	for _, tt := range tests {
		if !tt.got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("%s = %s, want %d", tt.name, tt.got, tt.want)
		}
	}

	if !balance.Available.Equal(balance.TotalEarned.Sub(balance.Withdrawn)) {
		t.Error("available != total earned - withdrawn")
	}
}

func TestWithdrawRejectsOverdraft(t *testing.T) {
	s := storage.NewMemoryStorage(storage.WithClock(clock))
	l := ledger.New(s, decimal.NewFromInt(100), clock)

	seed(t, s, entities.OrderStatusCompleted, 1000)
	seed(t, s, entities.OrderStatusPaid, 5000)

	ctx := context.Background()

	_, err := l.Withdraw(ctx, 1, decimal.NewFromFloat(1000.01), "card")
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	withdrawals, _ := l.Withdrawals(ctx, 10)
	if len(withdrawals) != 0 {
		t.Errorf("withdrawals = %d, want none", len(withdrawals))
	}

	if _, err := l.Withdraw(ctx, 1, decimal.Zero, "card"); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Errorf("zero amount err = %v, want ErrInvalidAmount", err)
	}

	if _, err := l.Withdraw(ctx, 1, decimal.NewFromInt(10), "  "); !errors.Is(err, ledger.ErrEmptyDetails) {
		t.Errorf("empty details err = %v, want ErrEmptyDetails", err)
	}

	withdrawal, err := l.Withdraw(ctx, 1, decimal.NewFromInt(1000), "card")
	if err != nil {
		t.Fatalf("withdraw all: %v", err)
	}

	if withdrawal.ID == 0 || withdrawal.Status != entities.WithdrawalStatusCompleted {
		t.Errorf("withdrawal = %+v", withdrawal)
	}

	balance, _ := l.Balance(ctx)
	if !balance.Available.IsZero() {
		t.Errorf("available = %s, want 0", balance.Available)
	}
}

func TestStats(t *testing.T) {
	s := storage.NewMemoryStorage(storage.WithClock(clock))
	l := ledger.New(s, decimal.NewFromInt(100), clock)

	s.UpsertUser(context.Background(), entities.User{ID: 1, ReferralCode: "00000018"})
	seed(t, s, entities.OrderStatusCompleted, 1490, 199)
	seed(t, s, entities.OrderStatusPending, 299)

	stats, err := l.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if stats.Users != 1 {
		t.Errorf("users = %d, want 1", stats.Users)
	}

	if stats.Total.Orders != 3 {
		t.Errorf("total orders = %d, want 3", stats.Total.Orders)
	}

	if !stats.Today.Revenue.Equal(decimal.NewFromInt(1689)) {
		t.Errorf("today revenue = %s, want 1689", stats.Today.Revenue)
	}

	if stats.ByStatus[entities.OrderStatusCompleted].Count != 2 {
		t.Errorf("completed count = %d, want 2", stats.ByStatus[entities.OrderStatusCompleted].Count)
	}

	if !stats.ByMethod[entities.PaymentMethodSBP].Equal(decimal.NewFromInt(1689)) {
		t.Errorf("sbp revenue = %s, want 1689", stats.ByMethod[entities.PaymentMethodSBP])
	}
}

func TestCreditReferralBonus(t *testing.T) {
	s := storage.NewMemoryStorage()
	l := ledger.New(s, decimal.NewFromInt(100), nil)
	ctx := context.Background()

	referrer, _, _ := s.UpsertUser(ctx, entities.User{ID: 1, ReferralCode: "00000018"})
	referee, _, _ := s.UpsertUser(ctx, entities.User{ID: 2, ReferralCode: "00000026", ReferredBy: &referrer.ID})

	referrerID, credited, err := l.CreditReferralBonus(ctx, referee)
	if err != nil || !credited || referrerID != 1 {
		t.Fatalf("credit = (%d, %v, %v), want (1, true, nil)", referrerID, credited, err)
	}

	if _, credited, _ := l.CreditReferralBonus(ctx, referee); credited {
		t.Error("bonus credited twice")
	}

	user, _ := s.GetUser(ctx, 1)
	if !user.BonusBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("bonus = %s, want 100", user.BonusBalance)
	}
}
