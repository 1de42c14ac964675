package server

import (
	"context"
	"net/http"

	"subscription-bridge/internal/handler"
	appmw "subscription-bridge/internal/middleware"
	"subscription-bridge/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Deps struct {
	WebhookService   service.WebhookService
	CheckoutService  service.CheckoutService
	LedgerService    service.LedgerService
	Enforcer         handler.EnforcerRunner
	WebhookProviders []string
	AdminToken       string
	Logger           zerolog.Logger
}

type Server struct {
	echo            *echo.Echo
	webhookHandler  *handler.WebhookHandler
	checkoutHandler *handler.CheckoutHandler
	adminHandler    *handler.AdminHandler
	adminToken      string
}

func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(e, deps.Logger)

	e.Use(requestLogger(deps.Logger))
	e.Use(middleware.Recover())

	s := &Server{
		echo:            e,
		webhookHandler:  handler.NewWebhookHandler(deps.WebhookService, deps.WebhookProviders, deps.Logger),
		checkoutHandler: handler.NewCheckoutHandler(deps.CheckoutService),
		adminHandler:    handler.NewAdminHandler(deps.LedgerService, deps.Enforcer, deps.Logger),
		adminToken:      deps.AdminToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// -------- payment provider callbacks --------
	s.echo.POST("/webhook/:provider", s.webhookHandler.Receive)

	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api.POST("/checkout", s.checkoutHandler.CreatePaymentLink)

	// -------- operator --------
	admin := api.Group("/admin", appmw.AdminAuth(s.adminToken))
	admin.GET("/subscriptions/:user_id", s.adminHandler.GetSubscription)
	admin.POST("/subscriptions", s.adminHandler.GrantSubscription)
	admin.DELETE("/subscriptions/:user_id", s.adminHandler.RevokeSubscription)
	admin.POST("/enforcer/run", s.adminHandler.RunEnforcer)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				ev = logger.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
