package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/shopspring/decimal"
)

const (
	actionCreateOrder     = "create_order"
	actionCreateCartOrder = "create_cart_order"
	actionSBPPaid         = "sbp_paid"
)

var (
	ErrInvalidExpiry  = errors.New("invalid expiry date")
	ErrUnknownWebApp  = errors.New("unknown web app action")
	ErrInvalidWebApp  = errors.New("invalid web app data")
	expiryLayouts     = []string{"02.01.2006", "2006-01-02"}
	expirySkipAnswers = map[string]struct{}{"пропустить": {}, "skip": {}, "-": {}}
)

// ParseExpiry reads the subscription end date typed by an operator. A skip
// answer yields nil.
func ParseExpiry(input string, location *time.Location) (*time.Time, error) {
	input = strings.ToLower(strings.TrimSpace(input))
	if _, ok := expirySkipAnswers[input]; ok {
		return nil, nil
	}

	if location == nil {
		location = time.UTC
	}

	for _, layout := range expiryLayouts {
		if date, err := time.ParseInLocation(layout, input, location); err == nil {
			return &date, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidExpiry, input)
}

// reference is an order id from the web app, sent either as a string or as a
// number.
type reference string

func (r *reference) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}

		*r = reference(strings.TrimSpace(value))

		return nil
	}

	var value json.Number
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	*r = reference(value.String())

	return nil
}

type webAppItem struct {
	ServiceID int64           `json:"service_id"`
	VariantID int64           `json:"variant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Qty       int             `json:"qty"`
}

type webAppData struct {
	Action    string          `json:"action"`
	OrderID   reference       `json:"order_id"`
	ServiceID int64           `json:"service_id"`
	VariantID int64           `json:"variant_id"`
	Amount    decimal.Decimal `json:"amount"`
	Payment   string          `json:"payment"`
	Items     []webAppItem    `json:"items"`
	Total     decimal.Decimal `json:"total"`
}

// WebAppRequest is one decoded web app submission. Exactly one of Order, Cart
// or Paid is set.
type WebAppRequest struct {
	Action string
	Order  *orders.Request
	Cart   *orders.CartRequest
	// Paid is the correlation id the user reports as paid.
	Paid string
}

func ParseWebAppData(userID int64, raw string) (WebAppRequest, error) {
	var data webAppData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return WebAppRequest{}, fmt.Errorf("%w: %v", ErrInvalidWebApp, err)
	}

	request := WebAppRequest{Action: data.Action}

	switch data.Action {
	case actionCreateOrder:
		if data.ServiceID == 0 || data.VariantID == 0 {
			return WebAppRequest{}, fmt.Errorf("%w: service and variant are required", ErrInvalidWebApp)
		}

		request.Order = &orders.Request{
			UserID:        userID,
			ServiceID:     data.ServiceID,
			VariantID:     data.VariantID,
			Amount:        data.Amount,
			PaymentMethod: data.Payment,
			CorrelationID: string(data.OrderID),
		}
	case actionCreateCartOrder:
		items := make([]orders.CartItem, 0, len(data.Items))
		for _, item := range data.Items {
			items = append(items, orders.CartItem{
				ServiceID: item.ServiceID,
				VariantID: item.VariantID,
				Amount:    item.Amount,
				Qty:       item.Qty,
			})
		}

		request.Cart = &orders.CartRequest{
			UserID:        userID,
			Items:         items,
			Total:         data.Total,
			PaymentMethod: data.Payment,
			CorrelationID: string(data.OrderID),
		}
	case actionSBPPaid:
		if data.OrderID == "" {
			return WebAppRequest{}, fmt.Errorf("%w: order_id is required", ErrInvalidWebApp)
		}

		request.Paid = string(data.OrderID)
	default:
		return WebAppRequest{}, fmt.Errorf("%w: %q", ErrUnknownWebApp, data.Action)
	}

	return request, nil
}
