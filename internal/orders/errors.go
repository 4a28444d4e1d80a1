package orders

import (
	"errors"
	"fmt"

	"github.com/VladKvetkin/keyflow/internal/ledger"
)

var (
	ErrInvalidAmount       = ledger.ErrInvalidAmount
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrEmptyDetails        = ledger.ErrEmptyDetails

	ErrUnknownReference = errors.New("unknown reference")
	ErrUnknownService   = fmt.Errorf("service: %w", ErrUnknownReference)
	ErrUnknownVariant   = fmt.Errorf("variant: %w", ErrUnknownReference)
	ErrOrderNotFound    = fmt.Errorf("order: %w", ErrUnknownReference)
	ErrUnknownUser      = fmt.Errorf("user: %w", ErrUnknownReference)

	ErrInvalidTransition = errors.New("invalid order transition")
	ErrAlreadyClaimed    = fmt.Errorf("payment already claimed: %w", ErrInvalidTransition)

	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotificationFailure = errors.New("notification failure")
	ErrServiceInactive     = errors.New("service is inactive")
	ErrCorrelationInUse    = errors.New("correlation id belongs to another user")
	ErrEmptyCart           = errors.New("empty cart")
	ErrEmptyPayload        = errors.New("empty payload")
)

// TransitionError reports a transition whose precondition did not hold. The
// order row is left as it was.
type TransitionError struct {
	OrderID int64
	Action  string
	Current string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s order #%d: status is %s", e.Action, e.OrderID, e.Current)
}

func (e *TransitionError) Unwrap() error {
	if e.Action == ActionClaim {
		return ErrAlreadyClaimed
	}

	return ErrInvalidTransition
}

// DeliveryError is returned by Deliver when the order is already completed but
// the payload did not reach the user. Payload is kept for manual handover.
type DeliveryError struct {
	OrderID     int64
	RecipientID int64
	Payload     string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver order #%d to %d: %v", e.OrderID, e.RecipientID, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrNotificationFailure, e.Err}
}
