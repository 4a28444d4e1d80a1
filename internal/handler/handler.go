package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/middleware"
	"github.com/VladKvetkin/keyflow/internal/models"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/services/jwttoken"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	dateLayout  = "2006-01-02"
	initDataTTL = 24 * time.Hour
)

type Handler struct {
	service  *orders.Service
	tokens   *jwttoken.Manager
	botToken string
	now      func() time.Time
}

func NewHandler(service *orders.Service, tokens *jwttoken.Manager, botToken string) *Handler {
	return &Handler{
		service:  service,
		tokens:   tokens,
		botToken: botToken,
		now:      time.Now,
	}
}

func (h *Handler) getUserIDFromReqContext(req *http.Request) int64 {
	userID, _ := middleware.UserID(req.Context())
	return userID
}

func (h *Handler) getOrderIDFromURL(req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) writeJSON(res http.ResponseWriter, status int, body interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)

	jsonEncoder := json.NewEncoder(res)
	if err := jsonEncoder.Encode(body); err != nil {
		zap.L().Info("cannot encode response JSON body", zap.Error(err))
	}
}

// writeError maps a domain error to its status code.
func (h *Handler) writeError(res http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	} else {
		zap.L().Info("request rejected", zap.Int("status", status), zap.Error(err))
	}

	res.WriteHeader(status)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, orders.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrUnknownUser):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, orders.ErrCorrelationInUse):
		return http.StatusConflict
	case errors.Is(err, orders.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, orders.ErrUnknownReference),
		errors.Is(err, orders.ErrServiceInactive),
		errors.Is(err, orders.ErrInvalidAmount),
		errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrEmptyPayload),
		errors.Is(err, orders.ErrEmptyDetails):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func toOrderResponse(order entities.Order) models.OrderResponse {
	response := models.OrderResponse{
		ID:            order.ID,
		UserID:        order.UserID,
		ServiceID:     order.ServiceID,
		VariantID:     order.VariantID,
		Service:       order.ServiceName,
		Duration:      order.Duration,
		Username:      order.Username,
		Amount:        order.Amount,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		CorrelationID: order.CorrelationID,
		CreatedAt:     order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     order.UpdatedAt.Format(time.RFC3339),
	}

	if order.ExpiresAt != nil {
		response.ExpiresAt = order.ExpiresAt.Format(dateLayout)
	}

	return response
}

func toOrdersResponse(list []entities.Order) models.GetOrdersReponse {
	response := make(models.GetOrdersReponse, 0, len(list))
	for _, order := range list {
		response = append(response, toOrderResponse(order))
	}

	return response
}
