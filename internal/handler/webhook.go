package handler

import (
	"errors"
	"net/http"
	"summit-webhook/internal/dto"
	"summit-webhook/internal/middleware"
	"summit-webhook/internal/service"

	"github.com/labstack/echo/v4"
)

type WebhookHandler struct {
	webhookService service.WebhookService
}

func NewWebhookHandler(webhookService service.WebhookService) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
	}
}

// Receive acknowledges every authenticated delivery with 200, including
// ones that failed to fulfill; providers retry anything else indefinitely.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.webhookService.HandleWebhook(ctx, c.Param("provider"), c.Request().Header, middleware.RawBodyFrom(c))
	switch {
	case errors.Is(err, service.ErrUnknownProvider):
		return c.JSON(http.StatusNotFound, &dto.ErrorResponse{Error: "Unknown provider"})
	case errors.Is(err, service.ErrInvalidSignature):
		return c.JSON(http.StatusUnauthorized, &dto.ErrorResponse{Error: "Invalid signature"})
	case err != nil:
		return err
	}

	resp := &dto.WebhookResponse{Received: true}
	switch result.Outcome {
	case service.OutcomeDuplicate:
		resp.Duplicate = true
	case service.OutcomeFailed:
		resp.Error = "Processing failed"
	case service.OutcomeFulfillmentDisabled:
		resp.Error = "Fulfillment disabled"
	}

	return c.JSON(http.StatusOK, resp)
}
