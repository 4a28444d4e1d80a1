package telegram

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseExpiry(t *testing.T) {
	want := time.Date(2026, 5, 27, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		input   string
		want    *time.Time
		wantErr bool
	}{
		{input: "27.05.2026", want: &want},
		{input: " 2026-05-27 ", want: &want},
		{input: "пропустить"},
		{input: "Пропустить"},
		{input: "skip"},
		{input: "27/05/2026", wantErr: true},
		{input: "31.02.2026", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseExpiry(tt.input, time.UTC)

		if tt.wantErr {
			if !errors.Is(err, ErrInvalidExpiry) {
				t.Errorf("ParseExpiry(%q) err = %v, want ErrInvalidExpiry", tt.input, err)
			}

			continue
		}

		if err != nil {
			t.Errorf("ParseExpiry(%q) err = %v", tt.input, err)
			continue
		}

		switch {
		case tt.want == nil && got != nil:
			t.Errorf("ParseExpiry(%q) = %v, want nil", tt.input, got)
		case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
			t.Errorf("ParseExpiry(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseWebAppOrder(t *testing.T) {
	request, err := ParseWebAppData(100, `{"action":"create_order","order_id":1716000000,"service_id":2,"variant_id":5,"amount":1490,"payment":"sbp","service_name":"ChatGPT"}`)
	if err != nil {
		t.Fatal(err)
	}

	if request.Order == nil || request.Cart != nil {
		t.Fatalf("request = %+v, want a single order", request)
	}

	order := request.Order
	if order.UserID != 100 || order.ServiceID != 2 || order.VariantID != 5 || order.CorrelationID != "1716000000" {
		t.Errorf("order = %+v", order)
	}

	if !order.Amount.Equal(decimal.NewFromInt(1490)) {
		t.Errorf("amount = %s, want 1490", order.Amount)
	}
}

func TestParseWebAppCart(t *testing.T) {
	request, err := ParseWebAppData(100, `{
		"action": "create_cart_order",
		"order_id": "cart-1",
		"payment": "crypto",
		"total": 1347,
		"items": [
			{"service_id": 1, "variant_id": 1, "amount": 199, "qty": 2},
			{"service_id": 9, "variant_id": 21, "amount": "149.50"}
		]
	}`)
	if err != nil {
		t.Fatal(err)
	}

	cart := request.Cart
	if cart == nil {
		t.Fatalf("request = %+v, want a cart", request)
	}

	if cart.CorrelationID != "cart-1" || cart.PaymentMethod != "crypto" || len(cart.Items) != 2 {
		t.Fatalf("cart = %+v", cart)
	}

	if cart.Items[0].Qty != 2 || cart.Items[1].Qty != 0 {
		t.Errorf("qty = %d, %d", cart.Items[0].Qty, cart.Items[1].Qty)
	}

	if !cart.Items[1].Amount.Equal(decimal.RequireFromString("149.50")) {
		t.Errorf("second amount = %s", cart.Items[1].Amount)
	}
}

func TestParseWebAppPaid(t *testing.T) {
	request, err := ParseWebAppData(100, `{"action":"sbp_paid","order_id":"web-7"}`)
	if err != nil {
		t.Fatal(err)
	}

	if request.Paid != "web-7" {
		t.Errorf("paid = %q, want web-7", request.Paid)
	}
}

func TestParseWebAppRejects(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{`not json`, ErrInvalidWebApp},
		{`{"action":"sbp_paid"}`, ErrInvalidWebApp},
		{`{"action":"create_order","variant_id":5}`, ErrInvalidWebApp},
		{`{"action":"refund"}`, ErrUnknownWebApp},
	}

	for _, tt := range tests {
		if _, err := ParseWebAppData(1, tt.raw); !errors.Is(err, tt.want) {
			t.Errorf("ParseWebAppData(%s) err = %v, want %v", tt.raw, err, tt.want)
		}
	}
}
