package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/VladKvetkin/keyflow/internal/entities"
	"github.com/VladKvetkin/keyflow/internal/models"
	"go.uber.org/zap"
)

const defaultListLimit = 20

func (h *Handler) GetWithdrawals(res http.ResponseWriter, req *http.Request) {
	limit := defaultListLimit
	if value := req.URL.Query().Get("limit"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			res.WriteHeader(http.StatusBadRequest)
			return
		}

		limit = parsed
	}

	withdrawals, err := h.service.Withdrawals(req.Context(), h.getUserIDFromReqContext(req), limit)
	if err != nil {
		h.writeError(res, err)
		return
	}

	if len(withdrawals) == 0 {
		res.WriteHeader(http.StatusNoContent)
		return
	}

	responseWithdrawals := make(models.GetWithdrawalsResponse, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		responseWithdrawals = append(responseWithdrawals, toWithdrawalResponse(withdrawal))
	}

	h.writeJSON(res, http.StatusOK, responseWithdrawals)
}

func (h *Handler) Withdraw(res http.ResponseWriter, req *http.Request) {
	var withdrawRequest models.WithdrawRequest
	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(&withdrawRequest); err != nil {
		zap.L().Info("cannot decode request to json", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	withdrawal, err := h.service.Withdraw(req.Context(), h.getUserIDFromReqContext(req), withdrawRequest.Amount, withdrawRequest.Details)
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func toWithdrawalResponse(withdrawal entities.Withdrawal) models.WithdrawalResponse {
	return models.WithdrawalResponse{
		ID:         withdrawal.ID,
		OperatorID: withdrawal.OperatorID,
		Amount:     withdrawal.Amount,
		Details:    withdrawal.Details,
		Status:     withdrawal.Status,
		CreatedAt:  withdrawal.CreatedAt.Format(time.RFC3339),
	}
}
