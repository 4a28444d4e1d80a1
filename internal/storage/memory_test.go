package storage_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// storages returns the stores under test: always the in-memory one, plus Postgres
// when TEST_DATABASE_URI points at a scratch database.
func storages(t *testing.T) map[string]storage.Storage {
	t.Helper()

	result := map[string]storage.Storage{
		"memory": storage.NewMemoryStorage(),
	}

	uri := os.Getenv("TEST_DATABASE_URI")
	if uri == "" {
		return result
	}

	db, err := sqlx.Connect("postgres", uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"withdrawals", "orders", "users"} {
		db.MustExec("DROP TABLE IF EXISTS " + table + " CASCADE")
	}

	postgres, err := storage.NewPostgresStorage(db)
	if err != nil {
		t.Fatalf("postgres storage: %v", err)
	}

	result["postgres"] = postgres

	return result
}

func newOrder(userID int64, amount int64) entities.Order {
	return entities.Order{
		UserID:        userID,
		ServiceID:     2,
		VariantID:     5,
		Amount:        decimal.NewFromInt(amount),
		PaymentMethod: entities.PaymentMethodSBP,
	}
}

func mustUser(t *testing.T, s storage.Storage, id int64, code string, referredBy *int64) entities.User {
	t.Helper()

	user, inserted, err := s.UpsertUser(context.Background(), entities.User{
		ID:           id,
		Username:     "user",
		FullName:     "User",
		ReferralCode: code,
		ReferredBy:   referredBy,
	})
	if err != nil {
		t.Fatalf("upsert user %d: %v", id, err)
	}

	if !inserted {
		t.Fatalf("user %d expected to be inserted", id)
	}

	return user
}

func TestOrderRoundTrip(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			id, err := s.CreateOrder(ctx, newOrder(10, 1490))
			if err != nil {
				t.Fatalf("create order: %v", err)
			}

			for _, step := range [][2]string{
				{entities.OrderStatusWaitingConfirm, entities.OrderStatusPending},
				{entities.OrderStatusPaid, entities.OrderStatusWaitingConfirm},
				{entities.OrderStatusCompleted, entities.OrderStatusPaid},
			} {
				if _, err := s.UpdateOrderStatus(ctx, id, step[0], step[1]); err != nil {
					t.Fatalf("update to %s: %v", step[0], err)
				}
			}

			order, err := s.GetOrder(ctx, id)
			if err != nil {
				t.Fatalf("get order: %v", err)
			}

			if order.Status != entities.OrderStatusCompleted {
				t.Errorf("status = %s, want completed", order.Status)
			}

			if order.ExpiresAt != nil {
				t.Errorf("expires_at = %v, want nil", order.ExpiresAt)
			}

			if order.Reminded {
				t.Error("reminded = true, want false")
			}

			if !order.Amount.Equal(decimal.NewFromInt(1490)) {
				t.Errorf("amount = %s, want 1490", order.Amount)
			}

			if order.ServiceName != "ChatGPT Plus" {
				t.Errorf("service name = %q, want joined catalog name", order.ServiceName)
			}
		})
	}
}

func TestUpdateOrderStatusMismatch(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			id, _ := s.CreateOrder(ctx, newOrder(10, 199))

			current, err := s.UpdateOrderStatus(ctx, id, entities.OrderStatusPaid, entities.OrderStatusWaitingConfirm)
			if !errors.Is(err, storage.ErrStatusMismatch) {
				t.Fatalf("err = %v, want ErrStatusMismatch", err)
			}

			if current.Status != entities.OrderStatusPending {
				t.Errorf("current status = %s, want pending", current.Status)
			}

			if _, err := s.UpdateOrderStatus(ctx, 999, entities.OrderStatusPaid, entities.OrderStatusPending); !errors.Is(err, storage.ErrNoRows) {
				t.Errorf("missing order err = %v, want ErrNoRows", err)
			}
		})
	}
}

func TestUpdateOrderStatusSingleWinner(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			id, _ := s.CreateOrder(ctx, newOrder(10, 199))
			if _, err := s.UpdateOrderStatus(ctx, id, entities.OrderStatusWaitingConfirm, entities.OrderStatusPending); err != nil {
				t.Fatal(err)
			}

			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				wins int
			)

			for i := 0; i < 8; i++ {
				target := entities.OrderStatusPaid
				if i%2 == 1 {
					target = entities.OrderStatusCancelled
				}

				wg.Add(1)
				go func(target string) {
					defer wg.Done()

					if _, err := s.UpdateOrderStatus(ctx, id, target, entities.OrderStatusWaitingConfirm); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}(target)
			}

			wg.Wait()

			if wins != 1 {
				t.Errorf("winners = %d, want 1", wins)
			}
		})
	}
}

func TestSetOrderExpiryOnce(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			id, _ := s.CreateOrder(ctx, newOrder(10, 199))
			expiry := time.Date(2026, 5, 27, 0, 0, 0, 0, time.UTC)

			if err := s.SetOrderExpiry(ctx, id, expiry); err != nil {
				t.Fatalf("set expiry: %v", err)
			}

			if err := s.SetOrderExpiry(ctx, id, expiry.AddDate(0, 1, 0)); !errors.Is(err, storage.ErrConflict) {
				t.Errorf("second set expiry err = %v, want ErrConflict", err)
			}

			order, _ := s.GetOrder(ctx, id)
			if order.ExpiresAt == nil || order.ExpiresAt.Format("2006-01-02") != "2026-05-27" {
				t.Errorf("expires_at = %v, want 2026-05-27", order.ExpiresAt)
			}
		})
	}
}

func TestExpiringOrdersAndReminded(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			target := time.Date(2026, 5, 27, 0, 0, 0, 0, time.UTC)

			completed, _ := s.CreateOrder(ctx, newOrder(10, 199))
			paid, _ := s.CreateOrder(ctx, newOrder(10, 549))

			if _, err := s.MarkOrderReminded(ctx, completed); err != nil {
				t.Fatal(err)
			}

			for _, id := range []int64{completed, paid} {
				s.UpdateOrderStatus(ctx, id, entities.OrderStatusWaitingConfirm, entities.OrderStatusPending)
				s.UpdateOrderStatus(ctx, id, entities.OrderStatusPaid, entities.OrderStatusWaitingConfirm)
				s.SetOrderExpiry(ctx, id, target)
			}

			s.UpdateOrderStatus(ctx, completed, entities.OrderStatusCompleted, entities.OrderStatusPaid)

			orders, err := s.GetExpiringOrders(ctx, target)
			if err != nil {
				t.Fatal(err)
			}

			if len(orders) != 1 || orders[0].ID != completed {
				t.Fatalf("expiring orders = %+v, want only order %d", orders, completed)
			}

			if ok, _ := s.MarkOrderReminded(ctx, paid); ok {
				t.Error("paid order must not be marked reminded")
			}

			if ok, _ := s.MarkOrderReminded(ctx, completed); !ok {
				t.Error("first mark reminded should succeed")
			}

			if ok, _ := s.MarkOrderReminded(ctx, completed); ok {
				t.Error("second mark reminded should be a no-op")
			}

			orders, _ = s.GetExpiringOrders(ctx, target)
			if len(orders) != 0 {
				t.Errorf("expiring orders after reminder = %d, want 0", len(orders))
			}
		})
	}
}

func TestUpsertUserKeepsReferrer(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			referrer := mustUser(t, s, 1, "00000018", nil)
			mustUser(t, s, 2, "00000026", &referrer.ID)

			other := int64(3)
			mustUser(t, s, 3, "00000034", nil)

			user, inserted, err := s.UpsertUser(ctx, entities.User{
				ID:           2,
				Username:     "renamed",
				ReferralCode: "00000042",
				ReferredBy:   &other,
			})
			if err != nil {
				t.Fatal(err)
			}

			if inserted {
				t.Error("second upsert reported insert")
			}

			if user.Username != "renamed" {
				t.Errorf("username = %q, want renamed", user.Username)
			}

			if user.ReferredBy == nil || *user.ReferredBy != 1 {
				t.Errorf("referred_by = %v, want 1", user.ReferredBy)
			}

			if user.ReferralCode != "00000026" {
				t.Errorf("ref code = %q, want original", user.ReferralCode)
			}

			count, _ := s.CountReferrals(ctx, 1)
			if count != 1 {
				t.Errorf("referrals = %d, want 1", count)
			}

			self := int64(4)
			if _, _, err := s.UpsertUser(ctx, entities.User{ID: 4, ReferralCode: "00000059", ReferredBy: &self}); !errors.Is(err, storage.ErrConflict) {
				t.Errorf("self referral err = %v, want ErrConflict", err)
			}

			if _, _, err := s.UpsertUser(ctx, entities.User{ID: 5, ReferralCode: "00000018"}); !errors.Is(err, storage.ErrConflict) {
				t.Errorf("duplicate code err = %v, want ErrConflict", err)
			}
		})
	}
}

func TestCreditReferralBonusOnce(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			referrer := mustUser(t, s, 1, "00000018", nil)
			mustUser(t, s, 2, "00000026", &referrer.ID)
			mustUser(t, s, 3, "00000034", nil)

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				credits int
			)

			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()

					_, ok, err := s.CreditReferralBonus(ctx, 2, decimal.NewFromInt(100))
					if err == nil && ok {
						mu.Lock()
						credits++
						mu.Unlock()
					}
				}()
			}

			wg.Wait()

			if credits != 1 {
				t.Errorf("credits = %d, want 1", credits)
			}

			user, _ := s.GetUser(ctx, 1)
			if !user.BonusBalance.Equal(decimal.NewFromInt(100)) {
				t.Errorf("bonus = %s, want 100", user.BonusBalance)
			}

			if _, ok, _ := s.CreditReferralBonus(ctx, 3, decimal.NewFromInt(100)); ok {
				t.Error("user without referrer credited a bonus")
			}
		})
	}
}

func TestCreateWithdrawalGuarded(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mustUser(t, s, 10, "00000018", nil)

			id, _ := s.CreateOrder(ctx, newOrder(10, 1000))
			s.UpdateOrderStatus(ctx, id, entities.OrderStatusWaitingConfirm, entities.OrderStatusPending)
			s.UpdateOrderStatus(ctx, id, entities.OrderStatusPaid, entities.OrderStatusWaitingConfirm)
			s.UpdateOrderStatus(ctx, id, entities.OrderStatusCompleted, entities.OrderStatusPaid)

			_, err := s.CreateWithdrawal(ctx, entities.Withdrawal{OperatorID: 1, Amount: decimal.NewFromInt(1001), Details: "card"})
			if !errors.Is(err, storage.ErrNotEnoughBalance) {
				t.Fatalf("err = %v, want ErrNotEnoughBalance", err)
			}

			if _, err := s.CreateWithdrawal(ctx, entities.Withdrawal{OperatorID: 1, Amount: decimal.NewFromInt(600), Details: "card"}); err != nil {
				t.Fatalf("withdraw 600: %v", err)
			}

			if _, err := s.CreateWithdrawal(ctx, entities.Withdrawal{OperatorID: 1, Amount: decimal.NewFromInt(600), Details: "card"}); !errors.Is(err, storage.ErrNotEnoughBalance) {
				t.Errorf("second withdraw err = %v, want ErrNotEnoughBalance", err)
			}

			withdrawals, _ := s.GetWithdrawals(ctx, 10)
			if len(withdrawals) != 1 {
				t.Errorf("withdrawals = %d, want 1", len(withdrawals))
			}

			withdrawn, _ := s.GetWithdrawnTotal(ctx)
			if !withdrawn.Equal(decimal.NewFromInt(600)) {
				t.Errorf("withdrawn = %s, want 600", withdrawn)
			}
		})
	}
}

func TestToggleService(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			service, err := s.ToggleService(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}

			if service.IsActive {
				t.Error("service still active after toggle")
			}

			service, _ = s.ToggleService(ctx, 1)
			if !service.IsActive {
				t.Error("service inactive after second toggle")
			}

			if _, err := s.ToggleService(ctx, 404); !errors.Is(err, storage.ErrNoRows) {
				t.Errorf("missing service err = %v, want ErrNoRows", err)
			}

			variants, _ := s.GetServiceVariants(ctx, 1)
			if len(variants) == 0 || !variants[0].Price.Equal(decimal.NewFromInt(199)) {
				t.Errorf("variants = %+v, want cheapest first", variants)
			}
		})
	}
}
