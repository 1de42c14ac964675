package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"subscription-bridge/internal/client"
	"subscription-bridge/internal/config"
	"subscription-bridge/internal/enforcer"
	"subscription-bridge/internal/logging"
	"subscription-bridge/internal/reconcile"
	"subscription-bridge/internal/repository"
	"subscription-bridge/internal/server"
	"subscription-bridge/internal/service"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "subscription-bridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.Init(logging.Config{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})

	if cfg.Prodamus.Secret == "" {
		logger.Warn().Msg("PRODAMUS_INSECURE_SKIP_SIGNATURE is set: webhook signatures are NOT verified")
	}

	db, err := client.InitDB(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return err
	}
	telegramClient := client.NewTelegramClient(&cfg.Telegram)

	orderRepo := repository.NewOrderRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	priceDays, err := cfg.PriceDaysTable()
	if err != nil {
		return err
	}
	reconciler := reconcile.NewDefault(reconcile.Options{
		LinkSecret: cfg.Link.Secret,
		PriceDays:  priceDays,
		NameUnits:  cfg.NameUnitsTable(),
	}, orderRepo)

	ledgerService := service.NewLedgerService(db, subscriptionRepo, logger)
	accessService := service.NewAccessService(telegramClient, settingRepo, cfg.Telegram.GroupID, logger)
	checkoutService := service.NewCheckoutService(cfg, orderRepo, logger)
	webhookService := service.NewWebhookService(
		db,
		service.WebhookOptions{
			Secret:        cfg.Prodamus.Secret,
			Strict:        cfg.SignatureStrict(),
			SuccessStatus: cfg.Prodamus.SuccessStatus,
		},
		reconciler,
		ledgerService,
		accessService,
		orderRepo,
		webhookEventRepo,
		logger,
	)

	membership := enforcer.New(enforcer.Options{
		GroupID:     cfg.Telegram.GroupID,
		Schedule:    cfg.Enforcer.Schedule,
		BanDuration: cfg.Enforcer.BanDuration,
		Pause:       cfg.Enforcer.Pause,
	}, telegramClient, ledgerService, logger)

	srv := server.NewServer(server.Deps{
		WebhookService:   webhookService,
		CheckoutService:  checkoutService,
		LedgerService:    ledgerService,
		Enforcer:         membership,
		WebhookProviders: cfg.WebhookProviders,
		AdminToken:       cfg.Admin.Token,
		Logger:           logging.WithComponent("http"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := membership.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr()).Str("env", cfg.Environment.Name).Msg("starting HTTP server")
		if err := srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}

		select {
		case <-membership.Stop().Done():
		case <-shutdownCtx.Done():
			logger.Warn().Msg("enforcement run still in progress at shutdown deadline")
		}

		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
