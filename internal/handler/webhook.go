package handler

import (
	"io"
	"net/http"
	"strings"

	"subscription-bridge/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	webhookService service.WebhookService
	providers      map[string]bool
	log            zerolog.Logger
}

func NewWebhookHandler(webhookService service.WebhookService, providers []string, logger zerolog.Logger) *WebhookHandler {
	allowed := make(map[string]bool, len(providers))
	for _, p := range providers {
		allowed[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return &WebhookHandler{
		webhookService: webhookService,
		providers:      allowed,
		log:            logger.With().Str("handler", "webhook").Logger(),
	}
}

// Receive answers a payment notification. Anything short of a transient
// failure is acknowledged so the provider stops retrying.
func (h *WebhookHandler) Receive(c echo.Context) error {
	ctx := c.Request().Context()

	provider := strings.ToLower(c.Param("provider"))
	if !h.providers[provider] {
		return c.String(http.StatusNotFound, "unknown provider")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		h.log.Warn().Err(err).Str("provider", provider).Msg("could not read webhook body")
		return c.String(http.StatusBadRequest, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return c.String(http.StatusRequestEntityTooLarge, "body too large")
	}

	out, err := h.webhookService.Handle(ctx, service.Delivery{
		Provider:    provider,
		Body:        body,
		ContentType: c.Request().Header.Get(echo.HeaderContentType),
		Header:      c.Request().Header,
	})
	if err != nil {
		if ctx.Err() != nil {
			h.log.Warn().Err(err).Str("provider", provider).Msg("webhook aborted by client")
		} else {
			h.log.Error().Err(err).Str("provider", provider).Msg("webhook processing failed")
		}
		return c.String(http.StatusInternalServerError, "error")
	}

	switch out.Kind {
	case service.OutcomeRejected:
		return c.String(http.StatusBadRequest, "bad signature")
	case service.OutcomeIgnored:
		return c.String(http.StatusOK, "ok (ignored)")
	default:
		return c.String(http.StatusOK, "ok")
	}
}
