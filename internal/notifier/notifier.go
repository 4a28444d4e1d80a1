package notifier

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Button actions understood by the transports.
const (
	ActionClaim      = "claim"
	ActionConfirm    = "confirm"
	ActionReject     = "reject"
	ActionCancelPaid = "cancel_paid"
	ActionDeliver    = "deliver"
	ActionReorder    = "reorder"
	ActionOrders     = "orders"
	ActionReferral   = "referral"
)

var ErrUnreachable = errors.New("recipient unreachable")

type Button struct {
	Text   string
	Action string
	Args   []string
	URL    string
	WebApp string
}

// Message text is Telegram HTML. Untrusted parts go through Escape.
type Message struct {
	Text    string
	Buttons [][]Button
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape makes text safe to embed in a message.
func Escape(text string) string {
	return htmlEscaper.Replace(text)
}

// Notifier delivers a message to a user or operator. A returned error means the
// message did not reach the recipient; it is never fatal for the caller.
type Notifier interface {
	Notify(ctx context.Context, recipientID int64, message Message) error
}

type Func func(ctx context.Context, recipientID int64, message Message) error

func (f Func) Notify(ctx context.Context, recipientID int64, message Message) error {
	return f(ctx, recipientID, message)
}

// Log writes messages to the global logger instead of sending them. It is used
// when no chat transport is configured.
type Log struct{}

func (Log) Notify(_ context.Context, recipientID int64, message Message) error {
	var actions []string
	for _, row := range message.Buttons {
		for _, button := range row {
			actions = append(actions, button.Action)
		}
	}

	zap.L().Info(
		"notification",
		zap.Int64("recipient_id", recipientID),
		zap.String("text", message.Text),
		zap.String("actions", strings.Join(actions, ",")),
	)

	return nil
}
