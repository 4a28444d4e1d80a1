package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/shopspring/decimal"
)

func TestOrderChangedPostsEvent(t *testing.T) {
	var (
		mu     sync.Mutex
		events []StatusEvent
		ids    []string
		calls  int
	)

	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		calls++
		if calls == 1 {
			res.WriteHeader(http.StatusBadGateway)
			return
		}

		var event StatusEvent
		if err := json.NewDecoder(req.Body).Decode(&event); err != nil {
			t.Errorf("decode: %v", err)
		}

		events = append(events, event)
		ids = append(ids, req.Header.Get(requestIDHeader))
		res.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, Options{RetryCount: 2, RetryWait: time.Millisecond, RetryMaxWait: 5 * time.Millisecond})

	notifier.OrderChanged(context.Background(), "confirm", entities.Order{
		ID:            7,
		UserID:        100,
		CorrelationID: "web-7",
		Status:        entities.OrderStatusPaid,
		Amount:        decimal.NewFromInt(1490),
	})
	notifier.Wait()

	mu.Lock()
	defer mu.Unlock()

	if calls != 2 {
		t.Errorf("calls = %d, want 2 with one retry", calls)
	}

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}

	event := events[0]
	if event.OrderID != 7 || event.Status != entities.OrderStatusPaid || event.Action != "confirm" || event.Amount != "1490.00" {
		t.Errorf("event = %+v", event)
	}

	if ids[0] == "" {
		t.Error("request id header missing")
	}
}

func TestSendReportsClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(res http.ResponseWriter, _ *http.Request) {
		res.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL, Options{RetryCount: 1, RetryWait: time.Millisecond, RetryMaxWait: time.Millisecond})

	if err := notifier.Send(context.Background(), StatusEvent{OrderID: 1}); err == nil {
		t.Error("400 response reported as success")
	}
}
