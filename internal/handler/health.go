package handler

import (
	"net/http"
	"summit-webhook/internal/dto"
	"summit-webhook/internal/service"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	serviceName    string
	webhookService service.WebhookService
}

func NewHealthHandler(serviceName string, webhookService service.WebhookService) *HealthHandler {
	return &HealthHandler{
		serviceName:    serviceName,
		webhookService: webhookService,
	}
}

// Health reports degraded signature verification instead of failing, so
// an unsigned deployment is visible without taking it out of rotation.
func (h *HealthHandler) Health(c echo.Context) error {
	resp := &dto.HealthResponse{
		Status:                "ok",
		Service:               h.serviceName,
		SignatureVerification: "enabled",
		Fulfillment:           "enabled",
	}
	if !h.webhookService.SignatureVerificationEnabled() {
		resp.SignatureVerification = "degraded"
	}
	if !h.webhookService.FulfillmentEnabled() {
		resp.Fulfillment = "disabled"
	}

	return c.JSON(http.StatusOK, resp)
}
