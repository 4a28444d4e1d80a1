package handler

import (
	"net/http"

	"github.com/VladKvetkin/keyflow/internal/models"
)

func (h *Handler) GetBalance(res http.ResponseWriter, req *http.Request) {
	balance, err := h.service.Balance(req.Context(), h.getUserIDFromReqContext(req))
	if err != nil {
		h.writeError(res, err)
		return
	}

	h.writeJSON(res, http.StatusOK, models.GetBalanceResponse{
		TotalEarned: balance.TotalEarned,
		Available:   balance.Available,
		Frozen:      balance.Frozen,
		Withdrawn:   balance.Withdrawn,
	})
}

func (h *Handler) GetStats(res http.ResponseWriter, req *http.Request) {
	stats, err := h.service.Stats(req.Context(), h.getUserIDFromReqContext(req))
	if err != nil {
		h.writeError(res, err)
		return
	}

	response := models.GetStatsResponse{
		Users:    stats.Users,
		ByStatus: make(map[string]models.StatusTotalResponse, len(stats.ByStatus)),
		ByMethod: stats.ByMethod,
		Today:    models.PeriodResponse{Orders: stats.Today.Orders, Revenue: stats.Today.Revenue},
		Week:     models.PeriodResponse{Orders: stats.Week.Orders, Revenue: stats.Week.Revenue},
		Month:    models.PeriodResponse{Orders: stats.Month.Orders, Revenue: stats.Month.Revenue},
		Total:    models.PeriodResponse{Orders: stats.Total.Orders, Revenue: stats.Total.Revenue},
	}

	for status, total := range stats.ByStatus {
		response.ByStatus[status] = models.StatusTotalResponse{Count: total.Count, Amount: total.Amount}
	}

	h.writeJSON(res, http.StatusOK, response)
}
