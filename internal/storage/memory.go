package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// MemoryStorage keeps everything in process memory. A single mutex serializes
// writers, which gives the same compare-and-set guarantees as row locks.
type MemoryStorage struct {
	mu sync.RWMutex

	now func() time.Time

	orders      *btree.BTreeG[entities.Order]
	lastOrderID int64

	users     map[int64]entities.User
	userOrder []int64

	services map[int64]entities.Service
	variants map[int64]entities.Variant

	withdrawals      []entities.Withdrawal
	lastWithdrawalID int64
}

type MemoryOption func(*MemoryStorage)

// WithClock overrides the timestamp source used for created_at/updated_at.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) {
		s.now = now
	}
}

func NewMemoryStorage(options ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		now: time.Now,
		orders: btree.NewG(32, func(a, b entities.Order) bool {
			return a.ID < b.ID
		}),
		users:    make(map[int64]entities.User),
		services: make(map[int64]entities.Service),
		variants: make(map[int64]entities.Variant),
	}

	for _, option := range options {
		option(s)
	}

	for _, service := range seedServices() {
		s.services[service.ID] = service
	}

	for _, variant := range seedVariants() {
		s.variants[variant.ID] = variant
	}

	return s
}

// join fills the read-side fields the Postgres queries obtain with LEFT JOINs.
func (s *MemoryStorage) join(order entities.Order) entities.Order {
	order.ServiceName = s.services[order.ServiceID].Name
	order.Duration = s.variants[order.VariantID].Duration
	order.Username = s.users[order.UserID].Username

	return order
}

func (s *MemoryStorage) collect(limit int, descending bool, match func(entities.Order) bool) []entities.Order {
	var orders []entities.Order

	visit := func(order entities.Order) bool {
		if match(order) {
			orders = append(orders, s.join(order))
		}

		return limit <= 0 || len(orders) < limit
	}

	if descending {
		s.orders.Descend(visit)
	} else {
		s.orders.Ascend(visit)
	}

	return orders
}

func (s *MemoryStorage) CreateOrder(_ context.Context, order entities.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !order.Amount.IsPositive() {
		return 0, ErrConflict
	}

	s.lastOrderID++

	now := s.now()
	order.ID = s.lastOrderID
	order.Status = entities.OrderStatusPending
	order.ExpiresAt = nil
	order.Reminded = false
	order.CreatedAt = now
	order.UpdatedAt = now

	s.orders.ReplaceOrInsert(order)

	return order.ID, nil
}

func (s *MemoryStorage) GetOrder(_ context.Context, id int64) (entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders.Get(entities.Order{ID: id})
	if !ok {
		return entities.Order{}, ErrNoRows
	}

	return s.join(order), nil
}

func (s *MemoryStorage) GetOrderByCorrelationID(_ context.Context, correlationID string) (entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := s.collect(1, true, func(order entities.Order) bool {
		return order.CorrelationID == correlationID
	})

	if len(orders) == 0 {
		return entities.Order{}, ErrNoRows
	}

	return orders[0], nil
}

func (s *MemoryStorage) GetOrdersByCorrelationID(_ context.Context, correlationID string) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(0, false, func(order entities.Order) bool {
		return order.CorrelationID == correlationID
	}), nil
}

func (s *MemoryStorage) UpdateOrderStatus(_ context.Context, id int64, status string, from ...string) (entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders.Get(entities.Order{ID: id})
	if !ok {
		return entities.Order{}, ErrNoRows
	}

	if !contains(from, order.Status) {
		return s.join(order), ErrStatusMismatch
	}

	order.Status = status
	order.UpdatedAt = s.now()
	s.orders.ReplaceOrInsert(order)

	return s.join(order), nil
}

func (s *MemoryStorage) SetOrderExpiry(_ context.Context, id int64, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders.Get(entities.Order{ID: id})
	if !ok || order.ExpiresAt != nil {
		return ErrConflict
	}

	date := truncateDay(expiresAt)
	order.ExpiresAt = &date
	order.UpdatedAt = s.now()
	s.orders.ReplaceOrInsert(order)

	return nil
}

func (s *MemoryStorage) MarkOrderReminded(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders.Get(entities.Order{ID: id})
	if !ok || order.Status != entities.OrderStatusCompleted || order.ExpiresAt == nil || order.Reminded {
		return false, nil
	}

	order.Reminded = true
	s.orders.ReplaceOrInsert(order)

	return true, nil
}

func (s *MemoryStorage) GetUserOrders(_ context.Context, userID int64, limit int) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, true, func(order entities.Order) bool {
		return order.UserID == userID
	}), nil
}

func (s *MemoryStorage) GetActiveOrders(_ context.Context, limit int) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.collect(limit, true, func(order entities.Order) bool {
		return !order.IsTerminal()
	}), nil
}

func (s *MemoryStorage) GetExpiringOrders(_ context.Context, date time.Time) ([]entities.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	day := date.Format(dateLayout)

	return s.collect(0, false, func(order entities.Order) bool {
		return order.Status == entities.OrderStatusCompleted &&
			order.ExpiresAt != nil &&
			order.ExpiresAt.Format(dateLayout) == day &&
			!order.Reminded
	}), nil
}

func (s *MemoryStorage) UpsertUser(_ context.Context, user entities.User) (entities.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[user.ID]; ok {
		existing.Username = user.Username
		existing.FullName = user.FullName
		s.users[user.ID] = existing

		return existing, false, nil
	}

	if user.ReferredBy != nil && *user.ReferredBy == user.ID {
		return entities.User{}, false, ErrConflict
	}

	for _, other := range s.users {
		if other.ReferralCode == user.ReferralCode {
			return entities.User{}, false, ErrConflict
		}
	}

	user.BonusBalance = decimal.Zero
	user.ReferralRewarded = false
	user.CreatedAt = s.now()

	s.users[user.ID] = user
	s.userOrder = append(s.userOrder, user.ID)

	return user, true, nil
}

func (s *MemoryStorage) GetUser(_ context.Context, id int64) (entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return entities.User{}, ErrNoRows
	}

	return user, nil
}

func (s *MemoryStorage) GetUserByReferralCode(_ context.Context, code string) (entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.ReferralCode == code {
			return user, nil
		}
	}

	return entities.User{}, ErrNoRows
}

func (s *MemoryStorage) GetUserIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]int64(nil), s.userOrder...), nil
}

func (s *MemoryStorage) GetRecentUsers(_ context.Context, limit int) ([]entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []entities.User
	for i := len(s.userOrder) - 1; i >= 0 && len(users) < limit; i-- {
		users = append(users, s.users[s.userOrder[i]])
	}

	return users, nil
}

func (s *MemoryStorage) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

func (s *MemoryStorage) CountReferrals(_ context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, user := range s.users {
		if user.ReferredBy != nil && *user.ReferredBy == userID {
			count++
		}
	}

	return count, nil
}

func (s *MemoryStorage) CreditReferralBonus(_ context.Context, referredID int64, amount decimal.Decimal) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	referred, ok := s.users[referredID]
	if !ok || referred.ReferredBy == nil || referred.ReferralRewarded {
		return 0, false, nil
	}

	referred.ReferralRewarded = true
	s.users[referredID] = referred

	referrer, ok := s.users[*referred.ReferredBy]
	if !ok {
		return 0, false, nil
	}

	referrer.BonusBalance = referrer.BonusBalance.Add(amount)
	s.users[referrer.ID] = referrer

	return referrer.ID, true, nil
}

func (s *MemoryStorage) GetServices(_ context.Context) ([]entities.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	services := make([]entities.Service, 0, len(s.services))
	for _, service := range s.services {
		services = append(services, service)
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].ID < services[j].ID
	})

	return services, nil
}

func (s *MemoryStorage) GetService(_ context.Context, id int64) (entities.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	service, ok := s.services[id]
	if !ok {
		return entities.Service{}, ErrNoRows
	}

	return service, nil
}

func (s *MemoryStorage) GetServiceVariants(_ context.Context, serviceID int64) ([]entities.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var variants []entities.Variant
	for _, variant := range s.variants {
		if variant.ServiceID == serviceID {
			variants = append(variants, variant)
		}
	}

	sort.Slice(variants, func(i, j int) bool {
		return variants[i].Price.LessThan(variants[j].Price)
	})

	return variants, nil
}

func (s *MemoryStorage) GetVariant(_ context.Context, id int64) (entities.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variant, ok := s.variants[id]
	if !ok {
		return entities.Variant{}, ErrNoRows
	}

	return variant, nil
}

func (s *MemoryStorage) ToggleService(_ context.Context, id int64) (entities.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	service, ok := s.services[id]
	if !ok {
		return entities.Service{}, ErrNoRows
	}

	service.IsActive = !service.IsActive
	s.services[id] = service

	return service, nil
}

func (s *MemoryStorage) CreateWithdrawal(_ context.Context, withdrawal entities.Withdrawal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !withdrawal.Amount.IsPositive() {
		return 0, ErrConflict
	}

	if withdrawal.Amount.GreaterThan(s.earned().Sub(s.withdrawn())) {
		return 0, ErrNotEnoughBalance
	}

	s.lastWithdrawalID++

	withdrawal.ID = s.lastWithdrawalID
	withdrawal.Status = entities.WithdrawalStatusCompleted
	withdrawal.CreatedAt = s.now()
	s.withdrawals = append(s.withdrawals, withdrawal)

	return withdrawal.ID, nil
}

func (s *MemoryStorage) GetWithdrawals(_ context.Context, limit int) ([]entities.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var withdrawals []entities.Withdrawal
	for i := len(s.withdrawals) - 1; i >= 0 && len(withdrawals) < limit; i-- {
		withdrawals = append(withdrawals, s.withdrawals[i])
	}

	return withdrawals, nil
}

func (s *MemoryStorage) GetOrderTotals(_ context.Context) ([]entities.StatusTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[string]entities.StatusTotal)
	s.orders.Ascend(func(order entities.Order) bool {
		total := byStatus[order.Status]
		total.Status = order.Status
		total.Count++
		total.Amount = total.Amount.Add(order.Amount)
		byStatus[order.Status] = total

		return true
	})

	totals := make([]entities.StatusTotal, 0, len(byStatus))
	for _, total := range byStatus {
		totals = append(totals, total)
	}

	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Status < totals[j].Status
	})

	return totals, nil
}

func (s *MemoryStorage) GetRevenueSince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revenue := decimal.Zero
	s.orders.Ascend(func(order entities.Order) bool {
		if order.Status == entities.OrderStatusCompleted && !order.CreatedAt.Before(since) {
			revenue = revenue.Add(order.Amount)
		}

		return true
	})

	return revenue, nil
}

func (s *MemoryStorage) CountOrdersSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	s.orders.Ascend(func(order entities.Order) bool {
		if !order.CreatedAt.Before(since) {
			count++
		}

		return true
	})

	return count, nil
}

func (s *MemoryStorage) GetRevenueByMethod(_ context.Context) ([]entities.MethodTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMethod := make(map[string]decimal.Decimal)
	s.orders.Ascend(func(order entities.Order) bool {
		if order.Status == entities.OrderStatusCompleted {
			byMethod[order.PaymentMethod] = byMethod[order.PaymentMethod].Add(order.Amount)
		}

		return true
	})

	totals := make([]entities.MethodTotal, 0, len(byMethod))
	for method, amount := range byMethod {
		totals = append(totals, entities.MethodTotal{Method: method, Amount: amount})
	}

	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Method < totals[j].Method
	})

	return totals, nil
}

func (s *MemoryStorage) GetWithdrawnTotal(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.withdrawn(), nil
}

func (s *MemoryStorage) earned() decimal.Decimal {
	earned := decimal.Zero
	s.orders.Ascend(func(order entities.Order) bool {
		if order.Status == entities.OrderStatusCompleted {
			earned = earned.Add(order.Amount)
		}

		return true
	})

	return earned
}

func (s *MemoryStorage) withdrawn() decimal.Decimal {
	withdrawn := decimal.Zero
	for _, withdrawal := range s.withdrawals {
		if withdrawal.Status == entities.WithdrawalStatusCompleted {
			withdrawn = withdrawn.Add(withdrawal.Amount)
		}
	}

	return withdrawn
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}

	return false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
