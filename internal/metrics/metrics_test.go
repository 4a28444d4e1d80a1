package metrics

import (
	"context"
	"testing"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestHookCountsTransitions(t *testing.T) {
	before := testutil.ToFloat64(OrderTransitionsTotal.WithLabelValues("deliver", entities.OrderStatusCompleted))
	revenue := testutil.ToFloat64(CompletedRevenueTotal.WithLabelValues(entities.PaymentMethodSBP))

	Hook{}.OrderChanged(context.Background(), "deliver", entities.Order{
		Status:        entities.OrderStatusCompleted,
		PaymentMethod: entities.PaymentMethodSBP,
		Amount:        decimal.NewFromInt(1490),
	})

	if got := testutil.ToFloat64(OrderTransitionsTotal.WithLabelValues("deliver", entities.OrderStatusCompleted)); got != before+1 {
		t.Errorf("transitions = %v, want %v", got, before+1)
	}

	if got := testutil.ToFloat64(CompletedRevenueTotal.WithLabelValues(entities.PaymentMethodSBP)); got != revenue+1490 {
		t.Errorf("revenue = %v, want %v", got, revenue+1490)
	}
}
