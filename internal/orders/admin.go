package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/notifier"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) ActiveOrders(ctx context.Context, operatorID int64) ([]entities.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}

	return s.storage.GetActiveOrders(ctx, listLimit)
}

func (s *Service) Balance(ctx context.Context, operatorID int64) (ledger.Balance, error) {
	if err := s.authorize(operatorID); err != nil {
		return ledger.Balance{}, err
	}

	return s.ledger.Balance(ctx)
}

func (s *Service) Stats(ctx context.Context, operatorID int64) (ledger.Stats, error) {
	if err := s.authorize(operatorID); err != nil {
		return ledger.Stats{}, err
	}

	return s.ledger.Stats(ctx)
}

func (s *Service) Withdraw(ctx context.Context, operatorID int64, amount decimal.Decimal, details string) (entities.Withdrawal, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Withdrawal{}, err
	}

	withdrawal, err := s.ledger.Withdraw(ctx, operatorID, amount, details)
	if err != nil {
		return entities.Withdrawal{}, err
	}

	zap.L().Info(
		"withdrawal recorded",
		zap.Int64("withdrawal_id", withdrawal.ID),
		zap.Int64("operator_id", operatorID),
		zap.String("amount", withdrawal.Amount.String()),
	)

	return withdrawal, nil
}

func (s *Service) Withdrawals(ctx context.Context, operatorID int64, limit int) ([]entities.Withdrawal, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}

	return s.ledger.Withdrawals(ctx, limit)
}

func (s *Service) RecentUsers(ctx context.Context, operatorID int64, limit int) ([]entities.User, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}

	return s.storage.GetRecentUsers(ctx, limit)
}

func (s *Service) Services(ctx context.Context, operatorID int64) ([]entities.Service, error) {
	if err := s.authorize(operatorID); err != nil {
		return nil, err
	}

	return s.storage.GetServices(ctx)
}

func (s *Service) ToggleService(ctx context.Context, operatorID, serviceID int64) (entities.Service, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Service{}, err
	}

	service, err := s.storage.ToggleService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Service{}, ErrUnknownService
		}

		return entities.Service{}, fmt.Errorf("error toggle service: %w", err)
	}

	zap.L().Info("service toggled", zap.Int64("service_id", service.ID), zap.Bool("active", service.IsActive))

	return service, nil
}

type BroadcastResult struct {
	Sent  int
	Total int
}

// Broadcast sends text to every known user at the configured rate. Failed
// recipients are skipped.
func (s *Service) Broadcast(ctx context.Context, operatorID int64, text string) (BroadcastResult, error) {
	if err := s.authorize(operatorID); err != nil {
		return BroadcastResult{}, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return BroadcastResult{}, ErrEmptyPayload
	}

	ids, err := s.storage.GetUserIDs(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("error get user ids: %w", err)
	}

	result := BroadcastResult{Total: len(ids)}

	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		if err := s.notifier.Notify(ctx, id, notifier.Message{Text: text}); err != nil {
			zap.L().Debug("broadcast message dropped", zap.Int64("recipient_id", id), zap.Error(err))
			continue
		}

		result.Sent++
	}

	zap.L().Info("broadcast finished", zap.Int("sent", result.Sent), zap.Int("total", result.Total))

	return result, nil
}
