package orders

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Request is a single-item purchase.
type Request struct {
	UserID        int64
	ServiceID     int64
	VariantID     int64
	Amount        decimal.Decimal
	PaymentMethod string
	CorrelationID string
}

type CartItem struct {
	ServiceID int64
	VariantID int64
	Amount    decimal.Decimal
	Qty       int
}

// CartRequest becomes one order per item, all sharing CorrelationID.
type CartRequest struct {
	UserID        int64
	Items         []CartItem
	Total         decimal.Decimal
	PaymentMethod string
	CorrelationID string
}

func (s *Service) Create(ctx context.Context, request Request) (entities.Order, error) {
	user, err := s.user(ctx, request.UserID)
	if err != nil {
		return entities.Order{}, err
	}

	if err := s.resolve(ctx, request.ServiceID, request.VariantID, request.Amount); err != nil {
		return entities.Order{}, err
	}

	order, created, err := s.createOnce(ctx, request)
	if err != nil || !created {
		return order, err
	}

	reference := request.CorrelationID
	if reference == "" {
		reference = strconv.FormatInt(order.ID, 10)
	}

	s.announce(ctx, user, order, order.Label(), order.Amount, reference)

	return order, nil
}

// createOnce inserts the order unless its correlation id is already taken.
func (s *Service) createOnce(ctx context.Context, request Request) (entities.Order, bool, error) {
	if request.CorrelationID != "" {
		unlock := s.lockCorrelation(request.CorrelationID)
		defer unlock()

		existing, err := s.storage.GetOrderByCorrelationID(ctx, request.CorrelationID)
		switch {
		case err == nil && existing.UserID != request.UserID:
			return entities.Order{}, false, ErrCorrelationInUse
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, storage.ErrNoRows):
			return entities.Order{}, false, fmt.Errorf("error get order by correlation id: %w", err)
		}
	}

	order, err := s.insert(ctx, entities.Order{
		UserID:        request.UserID,
		ServiceID:     request.ServiceID,
		VariantID:     request.VariantID,
		Amount:        request.Amount.Round(2),
		PaymentMethod: paymentMethod(request.PaymentMethod),
		CorrelationID: request.CorrelationID,
	})
	if err != nil {
		return entities.Order{}, false, err
	}

	return order, true, nil
}

func (s *Service) CreateCart(ctx context.Context, request CartRequest) ([]entities.Order, error) {
	if len(request.Items) == 0 {
		return nil, ErrEmptyCart
	}

	user, err := s.user(ctx, request.UserID)
	if err != nil {
		return nil, err
	}

	for _, item := range request.Items {
		if item.Qty < 0 {
			return nil, ErrInvalidAmount
		}

		if err := s.resolve(ctx, item.ServiceID, item.VariantID, item.Amount); err != nil {
			return nil, err
		}
	}

	if request.CorrelationID == "" {
		request.CorrelationID = uuid.NewString()
	} else {
		unlock := s.lockCorrelation(request.CorrelationID)
		defer unlock()

		existing, err := s.storage.GetOrdersByCorrelationID(ctx, request.CorrelationID)
		if err != nil {
			return nil, fmt.Errorf("error get orders by correlation id: %w", err)
		}

		if len(existing) > 0 {
			for _, order := range existing {
				if order.UserID != request.UserID {
					return nil, ErrCorrelationInUse
				}
			}

			return existing, nil
		}
	}

	var (
		orders = make([]entities.Order, 0, len(request.Items))
		labels = make([]string, 0, len(request.Items))
		total  = decimal.Zero
	)

	for _, item := range request.Items {
		qty := item.Qty
		if qty == 0 {
			qty = 1
		}

		order, err := s.insert(ctx, entities.Order{
			UserID:        request.UserID,
			ServiceID:     item.ServiceID,
			VariantID:     item.VariantID,
			Amount:        item.Amount.Mul(decimal.NewFromInt(int64(qty))).Round(2),
			PaymentMethod: paymentMethod(request.PaymentMethod),
			CorrelationID: request.CorrelationID,
		})
		if err != nil {
			s.abandonCart(ctx, user, request.CorrelationID, orders, err)
			return orders, err
		}

		label := order.Label()
		if qty > 1 {
			label = fmt.Sprintf("%s ×%d", label, qty)
		}

		orders = append(orders, order)
		labels = append(labels, label)
		total = total.Add(order.Amount)
	}

	if !request.Total.IsZero() && !request.Total.Round(2).Equal(total) {
		zap.L().Warn(
			"cart total differs from items",
			zap.String("correlation_id", request.CorrelationID),
			zap.String("total", request.Total.String()),
			zap.String("items_total", total.String()),
		)
	}

	s.announce(ctx, user, orders[0], strings.Join(labels, ", "), total, request.CorrelationID)

	return orders, nil
}

// Reorder creates an independent order with the original's service, variant
// and amount. The original order is not touched.
func (s *Service) Reorder(ctx context.Context, userID, orderID int64) (entities.Order, error) {
	original, err := s.Order(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if original.UserID != userID {
		return entities.Order{}, ErrOrderNotFound
	}

	return s.Create(ctx, Request{
		UserID:        userID,
		ServiceID:     original.ServiceID,
		VariantID:     original.VariantID,
		Amount:        original.Amount,
		PaymentMethod: original.PaymentMethod,
	})
}

func (s *Service) user(ctx context.Context, userID int64) (entities.User, error) {
	user, err := s.storage.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.User{}, ErrUnknownUser
		}

		return entities.User{}, fmt.Errorf("error get user: %w", err)
	}

	return user, nil
}

func (s *Service) resolve(ctx context.Context, serviceID, variantID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	service, err := s.storage.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return ErrUnknownService
		}

		return fmt.Errorf("error get service: %w", err)
	}

	if !service.IsActive {
		return ErrServiceInactive
	}

	variant, err := s.storage.GetVariant(ctx, variantID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return ErrUnknownVariant
		}

		return fmt.Errorf("error get variant: %w", err)
	}

	if variant.ServiceID != serviceID {
		return ErrUnknownVariant
	}

	return nil
}

func (s *Service) insert(ctx context.Context, order entities.Order) (entities.Order, error) {
	id, err := s.storage.CreateOrder(ctx, order)
	if err != nil {
		return entities.Order{}, fmt.Errorf("error create order: %w", err)
	}

	created, err := s.Order(ctx, id)
	if err != nil {
		return entities.Order{}, err
	}

	zap.L().Info(
		"order created",
		zap.Int64("order_id", created.ID),
		zap.Int64("user_id", created.UserID),
		zap.String("amount", created.Amount.String()),
		zap.String("correlation_id", created.CorrelationID),
	)

	s.changed(ctx, ActionCreate, created)

	return created, nil
}

// announce sends the order summary and payment instructions to the user and a
// new-order notice to operators. order is the first order of the request.
func (s *Service) announce(ctx context.Context, user entities.User, order entities.Order, label string, total decimal.Decimal, reference string) {
	_ = s.notify(ctx, user.ID, order.ID, orderCreatedMessage(order.ID, label, total))

	invoice, err := s.payments.Invoice(ctx, order, reference, total)
	if err != nil {
		zap.L().Error("error create invoice", zap.Int64("order_id", order.ID), zap.Error(err))
	} else {
		_ = s.notify(ctx, user.ID, order.ID, paymentMessage(order.ID, invoice.Instructions))
	}

	s.notifyOperators(ctx, order.ID, s.newOrderMessage(order.ID, user, label, total, order.PaymentMethod))
}

// lockCorrelation serializes lookups and inserts sharing a correlation id
// within this process. Rows of one cart share the id, so the store cannot
// enforce it with a unique index.
func (s *Service) lockCorrelation(correlationID string) func() {
	hash := fnv.New32a()
	hash.Write([]byte(correlationID))

	mu := &s.correlations[hash.Sum32()%correlationStripes]
	mu.Lock()

	return mu.Unlock
}

// abandonCart reports a cart that failed after some rows were inserted. The
// inserted orders stay pending and are announced so they can be claimed or
// left to the operators.
func (s *Service) abandonCart(ctx context.Context, user entities.User, correlationID string, created []entities.Order, cause error) {
	if len(created) == 0 {
		return
	}

	ids := make([]int64, 0, len(created))
	labels := make([]string, 0, len(created))
	total := decimal.Zero

	for _, order := range created {
		ids = append(ids, order.ID)
		labels = append(labels, order.Label())
		total = total.Add(order.Amount)
	}

	zap.L().Error(
		"cart created partially",
		zap.String("correlation_id", correlationID),
		zap.Int64s("order_ids", ids),
		zap.Error(cause),
	)

	s.announce(ctx, user, created[0], strings.Join(labels, ", "), total, correlationID)
}

func paymentMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return entities.PaymentMethodSBP
	}

	return method
}
