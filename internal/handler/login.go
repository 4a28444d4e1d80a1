package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/VladKvetkin/keyflow/internal/middleware"
	"github.com/VladKvetkin/keyflow/internal/models"
	"github.com/VladKvetkin/keyflow/internal/orders"
	"github.com/VladKvetkin/keyflow/internal/services/initdata"
	"go.uber.org/zap"
)

// Login exchanges signed web-app init data for a session token. The first
// login registers the user, honoring the referral code in start_param.
func (h *Handler) Login(res http.ResponseWriter, req *http.Request) {
	requestModel, err := h.validateLoginRequest(req)
	if err != nil {
		zap.L().Info("error validate login request", zap.Error(err))

		res.WriteHeader(http.StatusBadRequest)
		return
	}

	data, err := initdata.Validate(requestModel.InitData, h.botToken, initDataTTL, h.now())
	if err != nil {
		zap.L().Info("error validate init data", zap.Error(err))

		res.WriteHeader(http.StatusUnauthorized)
		return
	}

	registration, err := h.service.RegisterUser(req.Context(), orders.Profile{
		ID:       data.User.ID,
		Username: data.User.Username,
		FullName: strings.TrimSpace(data.User.FirstName + " " + data.User.LastName),
	}, data.StartParam)
	if err != nil {
		zap.L().Error("error register user", zap.Error(err))

		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.generateTokenAndSetCookie(res, models.LoginResponse{
		UserID:   registration.User.ID,
		Referred: registration.Referred,
		Operator: h.service.IsOperator(registration.User.ID),
	})
}

func (h *Handler) validateLoginRequest(req *http.Request) (models.LoginRequest, error) {
	var requestModel models.LoginRequest

	jsonDecoder := json.NewDecoder(req.Body)

	if err := jsonDecoder.Decode(&requestModel); err != nil {
		return models.LoginRequest{}, fmt.Errorf("cannot decode request to json: %w", err)
	}

	if requestModel.InitData == "" {
		return models.LoginRequest{}, errors.New("empty init data")
	}

	if h.botToken == "" {
		return models.LoginRequest{}, errors.New("web-app login is disabled without a bot token")
	}

	return requestModel, nil
}

func (h *Handler) generateTokenAndSetCookie(res http.ResponseWriter, response models.LoginResponse) {
	accessToken, err := h.tokens.Generate(response.UserID)
	if err != nil {
		res.WriteHeader(http.StatusInternalServerError)
		return
	}

	http.SetCookie(res, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    accessToken,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	response.Token = accessToken

	h.writeJSON(res, http.StatusOK, response)
}
