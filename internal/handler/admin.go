package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"subscription-bridge/internal/dto"
	"subscription-bridge/internal/enforcer"
	"subscription-bridge/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var timeNow = time.Now

type EnforcerRunner interface {
	RunOnce(ctx context.Context) (enforcer.Report, error)
}

// AdminHandler serves operator actions: manual grants, revocation and
// on-demand enforcement.
type AdminHandler struct {
	ledger   service.LedgerService
	enforcer EnforcerRunner
	log      zerolog.Logger
}

func NewAdminHandler(ledger service.LedgerService, enforcer EnforcerRunner, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:   ledger,
		enforcer: enforcer,
		log:      logger.With().Str("handler", "admin").Logger(),
	}
}

func userIDParam(c echo.Context) (int64, error) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return userID, nil
}

func (h *AdminHandler) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	expiresAt, found, err := h.ledger.Expiry(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "no subscription")
	}

	return c.JSON(http.StatusOK, &dto.SubscriptionResponse{
		UserID:    userID,
		Active:    expiresAt.After(timeNow()),
		ExpiresAt: &expiresAt,
	})
}

func (h *AdminHandler) GrantSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.GrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	sub, err := h.ledger.Grant(ctx, nil, req.UserID, req.Days)
	if err != nil {
		return err
	}

	h.log.Info().Int64("user_id", req.UserID).Int("days", req.Days).Msg("manual grant")

	expiresAt := sub.ExpiresAt()
	return c.JSON(http.StatusOK, &dto.SubscriptionResponse{
		UserID:    req.UserID,
		Active:    sub.Active(timeNow()),
		ExpiresAt: &expiresAt,
	})
}

func (h *AdminHandler) RevokeSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := userIDParam(c)
	if err != nil {
		return err
	}

	deleted, err := h.ledger.Revoke(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "no subscription")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "revoked",
	})
}

func (h *AdminHandler) RunEnforcer(c echo.Context) error {
	ctx := c.Request().Context()

	report, err := h.enforcer.RunOnce(ctx)
	if errors.Is(err, enforcer.ErrRunInProgress) {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.EnforcerRunResponse{
		Candidates: report.Candidates,
		Removed:    report.Removed,
		Failed:     report.Failed,
	})
}
