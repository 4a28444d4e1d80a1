package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/VladKvetkin/keyflow/internal/models"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (h *Handler) GetActiveOrders(res http.ResponseWriter, req *http.Request) {
	list, err := h.service.ActiveOrders(req.Context(), h.getUserIDFromReqContext(req))
	if err != nil {
		h.writeError(res, err)
		return
	}

	if len(list) == 0 {
		res.WriteHeader(http.StatusNoContent)
		return
	}

	h.writeJSON(res, http.StatusOK, toOrdersResponse(list))
}

func (h *Handler) ConfirmOrder(res http.ResponseWriter, req *http.Request) {
	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.Confirm(req.Context(), h.getUserIDFromReqContext(req), orderID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) RejectOrder(res http.ResponseWriter, req *http.Request) {
	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.Reject(req.Context(), h.getUserIDFromReqContext(req), orderID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, toOrderResponse(order))
}

// CancelPaidOrder cancels a confirmed order before delivery.
func (h *Handler) CancelPaidOrder(res http.ResponseWriter, req *http.Request) {
	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.CancelPaid(req.Context(), h.getUserIDFromReqContext(req), orderID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, toOrderResponse(order))
}

// DeliverOrder completes a paid order. A committed delivery whose follow-up
// steps failed still answers 200 with delivered=false and a warning, so the
// operator can hand the payload over manually.
func (h *Handler) DeliverOrder(res http.ResponseWriter, req *http.Request) {
	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	var requestModel models.DeliverOrderRequest
	if err := json.NewDecoder(req.Body).Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode request to json", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	var expiresAt *time.Time
	if requestModel.ExpiresAt != "" {
		date, err := time.ParseInLocation(dateLayout, requestModel.ExpiresAt, time.Local)
		if err != nil {
			zap.L().Info("invalid expiry date", zap.String("expires_at", requestModel.ExpiresAt))

			res.WriteHeader(http.StatusBadRequest)
			return
		}

		expiresAt = &date
	}

	order, err := h.service.Deliver(req.Context(), h.getUserIDFromReqContext(req), orderID, requestModel.Payload, expiresAt)
	if err != nil && (order.ID == 0 || errors.Is(err, orders.ErrInvalidTransition)) {
		h.writeError(res, err)
		return
	}

	response := models.DeliverOrderResponse{
		Order:     toOrderResponse(order),
		Delivered: err == nil,
	}

	if err != nil {
		zap.L().Warn("order delivered with errors", zap.Int64("order_id", order.ID), zap.Error(err))
		response.Warning = err.Error()
	}

	h.writeJSON(res, http.StatusOK, response)
}

func (h *Handler) ToggleService(res http.ResponseWriter, req *http.Request) {
	serviceID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	service, err := h.service.ToggleService(req.Context(), h.getUserIDFromReqContext(req), serviceID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, models.ServiceResponse{
		ID:          service.ID,
		Name:        service.Name,
		Emoji:       service.Emoji,
		Description: service.Description,
		Category:    service.Category,
		MinPrice:    service.MinPrice,
		IsActive:    service.IsActive,
	})
}

func (h *Handler) Broadcast(res http.ResponseWriter, req *http.Request) {
	var requestModel models.BroadcastRequest
	if err := json.NewDecoder(req.Body).Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode request to json", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := h.service.Broadcast(req.Context(), h.getUserIDFromReqContext(req), requestModel.Text)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, models.BroadcastResponse{Sent: result.Sent, Total: result.Total})
}

func (h *Handler) GetServices(res http.ResponseWriter, req *http.Request) {
	services, err := h.service.Services(req.Context(), h.getUserIDFromReqContext(req))
	if err != nil {
		h.writeError(res, err)
		return
	}

	response := make(models.GetCatalogResponse, 0, len(services))
	for _, service := range services {
		response = append(response, models.ServiceResponse{
			ID:          service.ID,
			Name:        service.Name,
			Emoji:       service.Emoji,
			Description: service.Description,
			Category:    service.Category,
			MinPrice:    service.MinPrice,
			IsActive:    service.IsActive,
		})
	}

	h.writeJSON(res, http.StatusOK, response)
}

func (h *Handler) GetUsers(res http.ResponseWriter, req *http.Request) {
	users, err := h.service.RecentUsers(req.Context(), h.getUserIDFromReqContext(req), defaultListLimit)
	if err != nil {
		h.writeError(res, err)
		return
	}

	response := make([]models.UserResponse, 0, len(users))
	for _, user := range users {
		response = append(response, models.UserResponse{
			ID:        user.ID,
			Username:  user.Username,
			FullName:  user.FullName,
			Referred:  user.ReferredBy != nil,
			CreatedAt: user.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(res, http.StatusOK, response)
}
