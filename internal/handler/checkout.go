package handler

import (
	"net/http"

	"subscription-bridge/internal/dto"
	"subscription-bridge/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

func (h *CheckoutHandler) CreatePaymentLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	result, err := h.checkoutService.CreatePaymentLink(ctx, req.UserID, req.Tariff)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}
