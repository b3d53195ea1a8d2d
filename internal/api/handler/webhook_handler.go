package handler

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zenspa/identity-service/internal/api/middleware"
	"github.com/zenspa/identity-service/internal/core/domain"
	"github.com/zenspa/identity-service/internal/core/ports"
)

const (
	signatureHeader = "X-Supabase-Signature"
	maxWebhookBody  = 1 << 20
)

// WebhookHandler receives auth provider callbacks. It reads the raw body
// because the signature covers the exact bytes sent.
type WebhookHandler struct {
	service ports.WebhookService
}

func NewWebhookHandler(service ports.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// UserCreated provisions a newly registered user.
//
// @Summary      User created webhook
// @Description  Body is signed with HMAC-SHA256; the hex digest travels in X-Supabase-Signature.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Supabase-Signature  header    string  true  "Hex HMAC-SHA256 of the raw body"
// @Success      200                   {object}  webhookResponse
// @Failure      400                   {object}  errorResponse
// @Failure      401                   {object}  errorResponse
// @Failure      503                   {object}  errorResponse
// @Router       /auth/webhooks/user-created [post]
func (h *WebhookHandler) UserCreated(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return fmt.Errorf("%w: unreadable body", domain.ErrInvalidInput)
	}
	if len(body) > maxWebhookBody {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	res, err := h.service.HandleUserCreated(
		c.Request().Context(),
		body,
		c.Request().Header.Get(signatureHeader),
		middleware.RequestMeta(c),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, webhookResponse{Status: res.Status, UserID: res.UserID, Message: res.Message})
}
