package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	requestIDHeader = "X-Request-ID"
	maxInFlight     = 8
)

type StatusEvent struct {
	OrderID       int64     `json:"order_id"`
	UserID        int64     `json:"user_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Action        string    `json:"action"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Options struct {
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	Timeout      time.Duration
}

// Notifier posts every committed order change to an external URL. Delivery is
// best effort: failures are logged after retries and never reach the caller.
type Notifier struct {
	url    string
	client *resty.Client
	group  errgroup.Group
}

func NewNotifier(url string, options Options) *Notifier {
	if options.RetryCount == 0 {
		options.RetryCount = 3
	}

	if options.RetryWait == 0 {
		options.RetryWait = 2 * time.Second
	}

	if options.RetryMaxWait == 0 {
		options.RetryMaxWait = 10 * time.Second
	}

	if options.Timeout == 0 {
		options.Timeout = 10 * time.Second
	}

	client := resty.New()

	client.
		SetRetryCount(options.RetryCount).
		SetRetryWaitTime(options.RetryWait).
		SetRetryMaxWaitTime(options.RetryMaxWait).
		SetTimeout(options.Timeout).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(response *resty.Response, err error) bool {
			return err != nil || response.StatusCode() == http.StatusTooManyRequests || response.StatusCode() >= http.StatusInternalServerError
		})

	notifier := &Notifier{
		url:    url,
		client: client,
	}

	notifier.group.SetLimit(maxInFlight)

	return notifier
}

func (n *Notifier) OrderChanged(ctx context.Context, action string, order entities.Order) {
	event := StatusEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		CorrelationID: order.CorrelationID,
		Action:        action,
		Status:        order.Status,
		Amount:        order.Amount.StringFixed(2),
		UpdatedAt:     order.UpdatedAt,
	}

	ctx = context.WithoutCancel(ctx)

	n.group.Go(func() error {
		if err := n.Send(ctx, event); err != nil {
			zap.L().Warn("error send status webhook", zap.Int64("order_id", event.OrderID), zap.Error(err))
		}

		return nil
	})
}

func (n *Notifier) Send(ctx context.Context, event StatusEvent) error {
	response, err := n.client.R().
		SetContext(ctx).
		SetHeader(requestIDHeader, uuid.NewString()).
		SetBody(event).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("error post status webhook: %w", err)
	}

	if response.IsError() {
		return fmt.Errorf("error post status webhook, invalid status: %v", response.Status())
	}

	return nil
}

// Wait blocks until every queued event has been sent or dropped.
func (n *Notifier) Wait() {
	_ = n.group.Wait()
}
