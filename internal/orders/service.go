package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/payments"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ActionCreate  = "create"
	ActionClaim   = "claim"
	ActionConfirm = "confirm"
	ActionReject  = "reject"
	ActionDeliver = "deliver"

	// ActionCancelPaid withdraws a confirmed order before delivery.
	ActionCancelPaid = "cancel_paid"
)

const (
	listLimit          = 20
	correlationStripes = 64
)

type transition struct {
	to   string
	from []string
}

// transitions is the complete set of legal status edges.
var transitions = map[string]transition{
	ActionClaim:      {to: entities.OrderStatusWaitingConfirm, from: []string{entities.OrderStatusPending}},
	ActionConfirm:    {to: entities.OrderStatusPaid, from: []string{entities.OrderStatusWaitingConfirm}},
	ActionReject:     {to: entities.OrderStatusCancelled, from: []string{entities.OrderStatusWaitingConfirm}},
	ActionDeliver:    {to: entities.OrderStatusCompleted, from: []string{entities.OrderStatusPaid}},
	ActionCancelPaid: {to: entities.OrderStatusCancelled, from: []string{entities.OrderStatusPaid}},
}

// Hook observes committed order changes.
type Hook interface {
	OrderChanged(ctx context.Context, action string, order entities.Order)
}

type Options struct {
	Operators        []int64
	ReferralDiscount decimal.Decimal
	Support          string
	WebAppURL        string
	BotUsername      string
	BroadcastRate    rate.Limit
	Now              func() time.Time
}

type Service struct {
	storage   storage.Storage
	ledger    *ledger.Ledger
	notifier  notifier.Notifier
	payments  *payments.Registry
	options   Options
	operators map[int64]struct{}
	limiter   *rate.Limiter
	hooks     []Hook

	correlations [correlationStripes]sync.Mutex
}

func NewService(
	storage storage.Storage,
	ledger *ledger.Ledger,
	notifier notifier.Notifier,
	payments *payments.Registry,
	options Options,
	hooks ...Hook,
) *Service {
	if options.Now == nil {
		options.Now = time.Now
	}

	if options.BroadcastRate <= 0 {
		options.BroadcastRate = rate.Inf
	}

	operators := make(map[int64]struct{}, len(options.Operators))
	for _, id := range options.Operators {
		operators[id] = struct{}{}
	}

	return &Service{
		storage:   storage,
		ledger:    ledger,
		notifier:  notifier,
		payments:  payments,
		options:   options,
		operators: operators,
		limiter:   rate.NewLimiter(options.BroadcastRate, 1),
		hooks:     hooks,
	}
}

func (s *Service) IsOperator(userID int64) bool {
	_, ok := s.operators[userID]
	return ok
}

func (s *Service) authorize(operatorID int64) error {
	if !s.IsOperator(operatorID) {
		zap.L().Warn("operator action rejected", zap.Int64("user_id", operatorID))
		return ErrUnauthorized
	}

	return nil
}

// transition moves the order along the action's edge. The precondition is
// checked by the store inside the same atomic update.
func (s *Service) transition(ctx context.Context, orderID int64, action string) (entities.Order, error) {
	edge, ok := transitions[action]
	if !ok {
		return entities.Order{}, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}

	order, err := s.storage.UpdateOrderStatus(ctx, orderID, edge.to, edge.from...)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNoRows):
			return entities.Order{}, ErrOrderNotFound
		case errors.Is(err, storage.ErrStatusMismatch):
			return order, &TransitionError{OrderID: orderID, Action: action, Current: order.Status}
		default:
			return entities.Order{}, fmt.Errorf("error update order status: %w", err)
		}
	}

	zap.L().Info(
		"order transition",
		zap.Int64("order_id", order.ID),
		zap.String("action", action),
		zap.String("status", order.Status),
	)

	s.changed(ctx, action, order)

	return order, nil
}

func (s *Service) changed(ctx context.Context, action string, order entities.Order) {
	for _, hook := range s.hooks {
		hook.OrderChanged(ctx, action, order)
	}
}

// notify never fails the caller's transition; the error is returned only for
// callers that surface it.
func (s *Service) notify(ctx context.Context, recipientID, orderID int64, message notifier.Message) error {
	if err := s.notifier.Notify(ctx, recipientID, message); err != nil {
		zap.L().Warn(
			"notification failed",
			zap.Int64("recipient_id", recipientID),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("%w: %v", ErrNotificationFailure, err)
	}

	return nil
}

func (s *Service) notifyOperators(ctx context.Context, orderID int64, message notifier.Message) {
	for _, operatorID := range s.options.Operators {
		_ = s.notify(ctx, operatorID, orderID, message)
	}
}

func (s *Service) Order(ctx context.Context, orderID int64) (entities.Order, error) {
	order, err := s.storage.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, ErrOrderNotFound
		}

		return entities.Order{}, fmt.Errorf("error get order: %w", err)
	}

	return order, nil
}

func (s *Service) UserOrders(ctx context.Context, userID int64) ([]entities.Order, error) {
	return s.storage.GetUserOrders(ctx, userID, listLimit)
}

type CatalogEntry struct {
	Service  entities.Service
	Variants []entities.Variant
}

func (s *Service) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	services, err := s.storage.GetServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("error get services: %w", err)
	}

	catalog := make([]CatalogEntry, 0, len(services))
	for _, service := range services {
		if !service.IsActive {
			continue
		}

		variants, err := s.storage.GetServiceVariants(ctx, service.ID)
		if err != nil {
			return nil, fmt.Errorf("error get service variants: %w", err)
		}

		catalog = append(catalog, CatalogEntry{Service: service, Variants: variants})
	}

	return catalog, nil
}
