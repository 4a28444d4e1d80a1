package handler

import (
	"encoding/json"
	"net/http"

	"github.com/VladKvetkin/keyflow/internal/models"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"go.uber.org/zap"
)

func (h *Handler) SaveOrder(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.CreateOrderRequest
	if err := json.NewDecoder(req.Body).Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode request to json", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.Create(req.Context(), orders.Request{
		UserID:        userID,
		ServiceID:     requestModel.ServiceID,
		VariantID:     requestModel.VariantID,
		Amount:        requestModel.Amount,
		PaymentMethod: requestModel.Payment,
		CorrelationID: requestModel.OrderID,
	})
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) SaveCart(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	var requestModel models.CreateCartRequest
	if err := json.NewDecoder(req.Body).Decode(&requestModel); err != nil {
		zap.L().Info("cannot decode request to json", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	items := make([]orders.CartItem, 0, len(requestModel.Items))
	for _, item := range requestModel.Items {
		items = append(items, orders.CartItem{
			ServiceID: item.ServiceID,
			VariantID: item.VariantID,
			Amount:    item.Amount,
			Qty:       item.Qty,
		})
	}

	created, err := h.service.CreateCart(req.Context(), orders.CartRequest{
		UserID:        userID,
		Items:         items,
		Total:         requestModel.Total,
		PaymentMethod: requestModel.Payment,
		CorrelationID: requestModel.OrderID,
	})
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusCreated, toOrdersResponse(created))
}

func (h *Handler) GetOrders(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	list, err := h.service.UserOrders(req.Context(), userID)
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

func (h *Handler) ClaimOrder(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.ClaimPayment(req.Context(), userID, orderID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) Reorder(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	orderID, ok := h.getOrderIDFromURL(req)
	if !ok {
		res.WriteHeader(http.StatusBadRequest)
		return
	}

	order, err := h.service.Reorder(req.Context(), userID, orderID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetReferral(res http.ResponseWriter, req *http.Request) {
	userID := h.getUserIDFromReqContext(req)
	if userID == 0 {
		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	referral, err := h.service.ReferralInfo(req.Context(), userID)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, models.ReferralResponse{
		Code:           referral.Code,
		Link:           referral.Link,
		Count:          referral.Count,
		BonusBalance:   referral.BonusBalance,
		BonusPerFriend: referral.BonusPerFriend,
		Discount:       referral.Discount,
	})
}
