package handler

import (
	"net/http"

	"github.com/VladKvetkin/keyflow/internal/models"
)

func (h *Handler) GetCatalog(res http.ResponseWriter, req *http.Request) {
	catalog, err := h.service.Catalog(req.Context())
	if err != nil {
		h.writeError(res, err)
		return
	}

	response := make(models.GetCatalogResponse, 0, len(catalog))
	for _, entry := range catalog {
		service := models.ServiceResponse{
			ID:          entry.Service.ID,
			Name:        entry.Service.Name,
			Emoji:       entry.Service.Emoji,
			Description: entry.Service.Description,
			Category:    entry.Service.Category,
			MinPrice:    entry.Service.MinPrice,
			IsActive:    entry.Service.IsActive,
		}

		for _, variant := range entry.Variants {
			service.Variants = append(service.Variants, models.VariantResponse{
				ID:       variant.ID,
				Duration: variant.Duration,
				Price:    variant.Price,
			})
		}

		response = append(response, service)
	}

	h.writeJSON(res, http.StatusOK, response)
}
