package rest

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/paygate/internal/logging"
	"github.com/dmitrijs2005/paygate/internal/server/models"
	"github.com/dmitrijs2005/paygate/internal/server/services"
	"github.com/go-playground/validator/v10"
)

type MerchantHandler struct {
	merchants *services.MerchantService
	validate  *validator.Validate
	logger    logging.Logger
}

func NewMerchantHandler(merchants *services.MerchantService, logger logging.Logger) *MerchantHandler {
	return &MerchantHandler{merchants: merchants, validate: newValidator(), logger: logger}
}

type merchantResponse struct {
	ID           string                `json:"id"`
	BusinessName string                `json:"business_name"`
	Status       models.MerchantStatus `json:"status"`
	APIKey       string                `json:"api_key"`
	WebhookURL   *string               `json:"webhook_url"`
	CreatedAt    time.Time             `json:"created_at"`
}

func toMerchantResponse(m *models.Merchant) merchantResponse {
	return merchantResponse{
		ID:           m.ID,
		BusinessName: m.BusinessName,
		Status:       m.Status,
		APIKey:       m.APIKey,
		WebhookURL:   m.WebhookURL,
		CreatedAt:    m.CreatedAt,
	}
}

type credentialsResponse struct {
	Merchant    merchantResponse    `json:"merchant"`
	Credentials *models.Credentials `json:"credentials"`
}

func (h *MerchantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BusinessName string  `json:"businessName" validate:"required,min=2,max=200"`
		WebhookURL   *string `json:"webhook_url" validate:"omitempty,url,max=2048"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}

	m, creds, err := h.merchants.Create(r.Context(), UserFromContext(r.Context()).ID, body.BusinessName, body.WebhookURL)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, credentialsResponse{Merchant: toMerchantResponse(m), Credentials: creds})
}

func (h *MerchantHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	m, err := h.merchants.GetForUser(r.Context(), UserFromContext(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMerchantResponse(m))
}

func (h *MerchantHandler) UpdateMine(w http.ResponseWriter, r *http.Request) {
	var body struct {
		BusinessName *string `json:"business_name" validate:"omitempty,min=2,max=200"`
		WebhookURL   *string `json:"webhook_url" validate:"omitempty,max=2048"`
	}
	if !decode(w, r, h.validate, &body) {
		return
	}
	if body.WebhookURL != nil && *body.WebhookURL != "" {
		if err := h.validate.Var(*body.WebhookURL, "url"); err != nil {
			writeErr(w, http.StatusBadRequest, "webhook_url must be a valid URL")
			return
		}
	}

	m, err := h.merchants.UpdateForUser(r.Context(), UserFromContext(r.Context()).ID, body.BusinessName, body.WebhookURL)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toMerchantResponse(m))
}

func (h *MerchantHandler) RotateCredentials(w http.ResponseWriter, r *http.Request) {
	m, creds, err := h.merchants.RotateForUser(r.Context(), UserFromContext(r.Context()).ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse{Merchant: toMerchantResponse(m), Credentials: creds})
}
