package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"go.uber.org/zap"
)

// ClaimPayment records that the user says the order is paid. Pending siblings
// from the same cart are claimed along with it. Claiming an order that already
// moved on fails with an error matching ErrAlreadyClaimed and changes nothing.
func (s *Service) ClaimPayment(ctx context.Context, userID, orderID int64) (entities.Order, error) {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.UserID != userID {
		return entities.Order{}, ErrUnauthorized
	}

	order, err = s.claim(ctx, order.ID)
	if err != nil {
		return order, err
	}

	if order.CorrelationID != "" {
		siblings, err := s.storage.GetOrdersByCorrelationID(ctx, order.CorrelationID)
		if err != nil {
			zap.L().Error("error get cart orders", zap.String("correlation_id", order.CorrelationID), zap.Error(err))
		}

		for _, sibling := range siblings {
			if sibling.ID == order.ID || sibling.UserID != userID || sibling.Status != entities.OrderStatusPending {
				continue
			}

			if _, err := s.claim(ctx, sibling.ID); err != nil && !errors.Is(err, ErrInvalidTransition) {
				zap.L().Error("error claim cart order", zap.Int64("order_id", sibling.ID), zap.Error(err))
			}
		}
	}

	_ = s.notify(ctx, userID, order.ID, claimedMessage(order.ID))

	return order, nil
}

// ClaimPaymentByCorrelation claims the most recent order created under correlationID.
func (s *Service) ClaimPaymentByCorrelation(ctx context.Context, userID int64, correlationID string) (entities.Order, error) {
	order, err := s.storage.GetOrderByCorrelationID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, storage.ErrNoRows) {
			return entities.Order{}, ErrOrderNotFound
		}

		return entities.Order{}, fmt.Errorf("error get order by correlation id: %w", err)
	}

	return s.ClaimPayment(ctx, userID, order.ID)
}

func (s *Service) claim(ctx context.Context, orderID int64) (entities.Order, error) {
	order, err := s.transition(ctx, orderID, ActionClaim)
	if err != nil {
		return order, err
	}

	s.notifyOperators(ctx, order.ID, s.claimedOperatorMessage(order))

	return order, nil
}

func (s *Service) Confirm(ctx context.Context, operatorID, orderID int64) (entities.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Order{}, err
	}

	order, err := s.transition(ctx, orderID, ActionConfirm)
	if err != nil {
		return order, err
	}

	_ = s.notify(ctx, order.UserID, order.ID, confirmedMessage(order.ID))

	return order, nil
}

func (s *Service) Reject(ctx context.Context, operatorID, orderID int64) (entities.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Order{}, err
	}

	order, err := s.transition(ctx, orderID, ActionReject)
	if err != nil {
		return order, err
	}

	_ = s.notify(ctx, order.UserID, order.ID, s.rejectedMessage(order.ID))

	return order, nil
}

// CancelPaid cancels a confirmed order that has not been delivered yet. Reject
// never leaves paid.
func (s *Service) CancelPaid(ctx context.Context, operatorID, orderID int64) (entities.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Order{}, err
	}

	order, err := s.transition(ctx, orderID, ActionCancelPaid)
	if err != nil {
		return order, err
	}

	_ = s.notify(ctx, order.UserID, order.ID, s.cancelledMessage(order.ID))

	return order, nil
}

// Deliver completes a paid order, stores its expiry, credits the referral bonus
// and hands payload to the user. Once the status is committed the remaining
// steps never undo it: a failed handover comes back as *DeliveryError holding
// the payload.
func (s *Service) Deliver(ctx context.Context, operatorID, orderID int64, payload string, expiresAt *time.Time) (entities.Order, error) {
	if err := s.authorize(operatorID); err != nil {
		return entities.Order{}, err
	}

	payload = strings.TrimSpace(payload)
	if payload == "" {
		return entities.Order{}, ErrEmptyPayload
	}

	order, err := s.transition(ctx, orderID, ActionDeliver)
	if err != nil {
		return order, err
	}

	var errs []error

	if expiresAt != nil {
		if err := s.storage.SetOrderExpiry(ctx, order.ID, *expiresAt); err != nil {
			zap.L().Error("error set order expiry", zap.Int64("order_id", order.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("error set order expiry: %w", err))
		} else if updated, err := s.Order(ctx, order.ID); err == nil {
			order = updated
		}
	}

	s.creditReferrer(ctx, order)

	if err := s.notify(ctx, order.UserID, order.ID, s.deliveryMessage(order, payload)); err != nil {
		errs = append(errs, &DeliveryError{
			OrderID:     order.ID,
			RecipientID: order.UserID,
			Payload:     payload,
			Err:         err,
		})
	}

	return order, errors.Join(errs...)
}

func (s *Service) creditReferrer(ctx context.Context, order entities.Order) {
	user, err := s.storage.GetUser(ctx, order.UserID)
	if err != nil {
		zap.L().Error("error get order owner", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	referrerID, credited, err := s.ledger.CreditReferralBonus(ctx, user)
	if err != nil {
		zap.L().Error("error credit referral bonus", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}

	if !credited {
		return
	}

	zap.L().Info(
		"referral bonus credited",
		zap.Int64("order_id", order.ID),
		zap.Int64("referrer_id", referrerID),
		zap.String("amount", s.ledger.ReferralBonus().String()),
	)

	_ = s.notify(ctx, referrerID, order.ID, referralBonusMessage(s.ledger.ReferralBonus()))
}

// RemindRenewal sends the renewal prompt for an order expiring in daysLeft days.
func (s *Service) RemindRenewal(ctx context.Context, order entities.Order, daysLeft int) error {
	return s.notify(ctx, order.UserID, order.ID, s.reminderMessage(order, daysLeft))
}
