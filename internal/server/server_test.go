package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/VladKvetkin/keyflow/internal/config"
	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/handler"
	"github.com/VladKvetkin/keyflow/internal/ledger"
	"github.com/VladKvetkin/keyflow/internal/models"
	"github.com/VladKvetkin/keyflow/internal/notifier/notifiertest"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/payments"
	"github.com/VladKvetkin/keyflow/internal/server"
	"github.com/VladKvetkin/keyflow/internal/services/initdata"
	"github.com/VladKvetkin/keyflow/internal/services/jwttoken"
	"github.com/VladKvetkin/keyflow/internal/storage"
	"github.com/shopspring/decimal"
)

const (
	botToken   = "123:test"
	operatorID = 900
	buyerID    = 100
)

type client struct {
	t      *testing.T
	server *httptest.Server
}

func newClient(t *testing.T) (*client, *notifiertest.Recorder) {
	t.Helper()

	store := storage.NewMemoryStorage()
	recorder := notifiertest.New()

	service := orders.NewService(
		store,
		ledger.New(store, decimal.NewFromInt(100), nil),
		recorder,
		payments.NewRegistry(payments.NewSBP(payments.SBPDetails{Phone: "+79001234567"})),
		orders.Options{Operators: []int64{operatorID}, BotUsername: "keyflow_bot"},
	)

	tokens := jwttoken.NewManager("secret", time.Hour)
	srv := server.NewServer(config.Config{Address: "localhost:0"}, handler.NewHandler(service, tokens, botToken), tokens)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &client{t: t, server: ts}, recorder
}

func (c *client) do(method, path, token string, body interface{}) (int, []byte) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	if err != nil {
		c.t.Fatal(err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.server.Client().Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.t.Fatal(err)
	}

	return resp.StatusCode, data
}

func (c *client) login(userID int64, startParam string) string {
	c.t.Helper()

	values := url.Values{
		"auth_date":   {strconv.FormatInt(time.Now().Unix(), 10)},
		"start_param": {startParam},
		"user":        {fmt.Sprintf(`{"id":%d,"first_name":"User","username":"user%d"}`, userID, userID)},
	}
	values.Set("hash", initdata.Sign(values, botToken))

	status, body := c.do(http.MethodPost, "/api/user/login", "", models.LoginRequest{InitData: values.Encode()})
	if status != http.StatusOK {
		c.t.Fatalf("login status = %d", status)
	}

	var response models.LoginResponse
	if err := json.Unmarshal(body, &response); err != nil {
		c.t.Fatal(err)
	}

	if response.UserID != userID || response.Token == "" {
		c.t.Fatalf("login response = %+v", response)
	}

	return response.Token
}

func decodeOrder(t *testing.T, body []byte) models.OrderResponse {
	t.Helper()

	var order models.OrderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		t.Fatalf("decode order %s: %v", body, err)
	}

	return order
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	c, recorder := newClient(t)

	status, body := c.do(http.MethodGet, "/api/catalog", "", nil)
	if status != http.StatusOK {
		t.Fatalf("catalog status = %d", status)
	}

	var catalog models.GetCatalogResponse
	if err := json.Unmarshal(body, &catalog); err != nil || len(catalog) == 0 {
		t.Fatalf("catalog = %s, %v", body, err)
	}

	if status, _ := c.do(http.MethodGet, "/api/user/orders", "", nil); status != http.StatusUnauthorized {
		t.Errorf("anonymous orders status = %d, want 401", status)
	}

	buyer := c.login(buyerID, "")
	operator := c.login(operatorID, "")

	create := models.CreateOrderRequest{ServiceID: 2, VariantID: 5, Amount: decimal.NewFromInt(1490), Payment: "sbp", OrderID: "web-1"}

	status, body = c.do(http.MethodPost, "/api/user/orders", buyer, create)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}

	order := decodeOrder(t, body)
	if order.Status != entities.OrderStatusPending {
		t.Fatalf("created order = %+v", order)
	}

	_, body = c.do(http.MethodPost, "/api/user/orders", buyer, create)
	if again := decodeOrder(t, body); again.ID != order.ID {
		t.Errorf("repeated create made order #%d, want #%d", again.ID, order.ID)
	}

	claim := fmt.Sprintf("/api/user/orders/%d/claim", order.ID)

	status, body = c.do(http.MethodPost, claim, buyer, nil)
	if status != http.StatusOK || decodeOrder(t, body).Status != entities.OrderStatusWaitingConfirm {
		t.Fatalf("claim = %d %s", status, body)
	}

	if status, _ := c.do(http.MethodPost, claim, buyer, nil); status != http.StatusConflict {
		t.Errorf("second claim status = %d, want 409", status)
	}

	confirm := fmt.Sprintf("/api/admin/orders/%d/confirm", order.ID)

	if status, _ := c.do(http.MethodPost, confirm, buyer, nil); status != http.StatusForbidden {
		t.Errorf("buyer confirm status = %d, want 403", status)
	}

	if status, _ := c.do(http.MethodPost, confirm, operator, nil); status != http.StatusOK {
		t.Fatalf("confirm status = %d", status)
	}

	reject := fmt.Sprintf("/api/admin/orders/%d/reject", order.ID)
	if status, _ := c.do(http.MethodPost, reject, operator, nil); status != http.StatusConflict {
		t.Errorf("reject after confirm status = %d, want 409", status)
	}

	status, body = c.do(
		http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/deliver", order.ID), operator,
		models.DeliverOrderRequest{Payload: "login: a", ExpiresAt: "2026-06-27"},
	)
	if status != http.StatusOK {
		t.Fatalf("deliver status = %d %s", status, body)
	}

	var delivered models.DeliverOrderResponse
	if err := json.Unmarshal(body, &delivered); err != nil {
		t.Fatal(err)
	}

	if !delivered.Delivered || delivered.Order.Status != entities.OrderStatusCompleted || delivered.Order.ExpiresAt != "2026-06-27" {
		t.Errorf("delivered = %+v", delivered)
	}

	if len(recorder.Containing(buyerID, "login: a")) != 1 {
		t.Error("payload did not reach the buyer")
	}

	_, body = c.do(http.MethodGet, "/api/admin/balance", operator, nil)

	var balance models.GetBalanceResponse
	if err := json.Unmarshal(body, &balance); err != nil {
		t.Fatal(err)
	}

	if !balance.TotalEarned.Equal(decimal.NewFromInt(1490)) || !balance.Available.Equal(decimal.NewFromInt(1490)) {
		t.Errorf("balance = %+v", balance)
	}

	withdraw := models.WithdrawRequest{Amount: decimal.NewFromInt(5000), Details: "card 2200"}
	if status, _ := c.do(http.MethodPost, "/api/admin/withdrawals", operator, withdraw); status != http.StatusPaymentRequired {
		t.Errorf("overdraw status = %d, want 402", status)
	}

	withdraw.Amount = decimal.NewFromInt(1000)
	if status, _ := c.do(http.MethodPost, "/api/admin/withdrawals", operator, withdraw); status != http.StatusOK {
		t.Errorf("withdraw status = %d, want 200", status)
	}

	status, body = c.do(http.MethodGet, "/metrics", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), "keyflow_http_requests_total") {
		t.Errorf("metrics = %d", status)
	}
}

func TestLoginRejectsForgedInitData(t *testing.T) {
	c, _ := newClient(t)

	values := url.Values{
		"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)},
		"user":      {`{"id":100}`},
	}
	values.Set("hash", initdata.Sign(values, "another:token"))

	if status, _ := c.do(http.MethodPost, "/api/user/login", "", models.LoginRequest{InitData: values.Encode()}); status != http.StatusUnauthorized {
		t.Errorf("forged login status = %d, want 401", status)
	}

	if status, _ := c.do(http.MethodPost, "/api/user/login", "", models.LoginRequest{}); status != http.StatusBadRequest {
		t.Errorf("empty login status = %d, want 400", status)
	}
}

func TestReferralAndReorder(t *testing.T) {
	c, _ := newClient(t)

	referrer := c.login(200, "")

	status, body := c.do(http.MethodGet, "/api/user/referral", referrer, nil)
	if status != http.StatusOK {
		t.Fatalf("referral status = %d", status)
	}

	var referral models.ReferralResponse
	if err := json.Unmarshal(body, &referral); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(referral.Link, "https://t.me/keyflow_bot?start=") || len(referral.Code) != 8 {
		t.Errorf("referral = %+v", referral)
	}

	buyer := c.login(buyerID, referral.Code)

	_, body = c.do(http.MethodGet, "/api/user/referral", referrer, nil)
	if err := json.Unmarshal(body, &referral); err != nil {
		t.Fatal(err)
	}

	if referral.Count != 1 {
		t.Errorf("referral count = %d, want 1", referral.Count)
	}

	status, body = c.do(http.MethodPost, "/api/user/orders", buyer, models.CreateOrderRequest{ServiceID: 1, VariantID: 1, Amount: decimal.NewFromInt(199)})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d", status)
	}

	order := decodeOrder(t, body)

	if status, _ := c.do(http.MethodPost, fmt.Sprintf("/api/user/orders/%d/reorder", order.ID), referrer, nil); status != http.StatusNotFound {
		t.Errorf("foreign reorder status = %d, want 404", status)
	}

	status, body = c.do(http.MethodPost, fmt.Sprintf("/api/user/orders/%d/reorder", order.ID), buyer, nil)
	if status != http.StatusCreated {
		t.Fatalf("reorder status = %d", status)
	}

	if again := decodeOrder(t, body); again.ID == order.ID || !again.Amount.Equal(order.Amount) {
		t.Errorf("reorder = %+v", again)
	}
}

func TestCancelPaidOverHTTP(t *testing.T) {
	c, recorder := newClient(t)

	buyer := c.login(buyerID, "")
	operator := c.login(operatorID, "")

	_, body := c.do(http.MethodPost, "/api/user/orders", buyer, models.CreateOrderRequest{ServiceID: 1, VariantID: 1, Amount: decimal.NewFromInt(199)})
	order := decodeOrder(t, body)

	cancel := fmt.Sprintf("/api/admin/orders/%d/cancel", order.ID)

	if status, _ := c.do(http.MethodPost, cancel, operator, nil); status != http.StatusConflict {
		t.Errorf("cancel pending status = %d, want 409", status)
	}

	c.do(http.MethodPost, fmt.Sprintf("/api/user/orders/%d/claim", order.ID), buyer, nil)
	c.do(http.MethodPost, fmt.Sprintf("/api/admin/orders/%d/confirm", order.ID), operator, nil)

	if status, _ := c.do(http.MethodPost, cancel, buyer, nil); status != http.StatusForbidden {
		t.Errorf("buyer cancel status = %d, want 403", status)
	}

	status, body := c.do(http.MethodPost, cancel, operator, nil)
	if status != http.StatusOK || decodeOrder(t, body).Status != entities.OrderStatusCancelled {
		t.Fatalf("cancel = %d %s", status, body)
	}

	if len(recorder.Containing(buyerID, "отменён")) != 1 {
		t.Error("buyer was not told about the cancellation")
	}
}
