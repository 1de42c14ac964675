package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"subscription-bridge/internal/config"
	"subscription-bridge/internal/dto"
	apperrors "subscription-bridge/internal/errors"
	"subscription-bridge/internal/linktoken"
	"subscription-bridge/internal/model"
	"subscription-bridge/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CheckoutService issues payment links and records the pending order behind each.
type CheckoutService interface {
	CreatePaymentLink(ctx context.Context, userID int64, tariffCode string) (*dto.CheckoutResponse, error)
}

type checkoutServiceImpl struct {
	cfg        *config.Config
	linkSecret string
	orderRepo  repository.OrderRepository
	log        zerolog.Logger
}

func NewCheckoutService(
	cfg *config.Config,
	orderRepo repository.OrderRepository,
	logger zerolog.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		cfg:        cfg,
		linkSecret: cfg.Link.Secret,
		orderRepo:  orderRepo,
		log:        logger.With().Str("component", "checkout").Logger(),
	}
}

func (s *checkoutServiceImpl) CreatePaymentLink(ctx context.Context, userID int64, tariffCode string) (*dto.CheckoutResponse, error) {
	if userID <= 0 {
		return nil, apperrors.Validationf("checkout.create", "user_id must be positive")
	}
	tariff, ok := s.cfg.Tariff(tariffCode)
	if !ok {
		return nil, apperrors.Validationf("checkout.create", "unknown tariff %q", tariffCode)
	}

	order := &model.Order{
		OrderID:  uuid.NewString(),
		UserID:   userID,
		Plan:     tariff.Code,
		Days:     tariff.Days,
		Amount:   tariff.Price,
		Currency: s.cfg.Prodamus.Currency,
		Token:    linktoken.Build(userID, tariff.Days, s.linkSecret),
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, apperrors.Transient("checkout.create", fmt.Errorf("store order in db: %w", err))
	}

	link, err := s.paymentURL(order, tariff)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("user_id", userID).
		Str("order_id", order.OrderID).
		Str("tariff", tariff.Code).
		Int("days", tariff.Days).
		Msg("payment link issued")

	return &dto.CheckoutResponse{
		OrderID:    order.OrderID,
		PaymentURL: link,
		Days:       order.Days,
		Amount:     order.Amount.StringFixed(2),
	}, nil
}

func (s *checkoutServiceImpl) paymentURL(order *model.Order, tariff config.Tariff) (string, error) {
	base, err := url.Parse(s.cfg.Prodamus.PayformURL)
	if err != nil {
		return "", apperrors.Configuration("checkout.payform_url", err)
	}

	price := tariff.Price.String()
	q := base.Query()
	q.Set("do", "pay")
	q.Set("order_id", order.OrderID)
	// the provider echoes order_num back in its notification
	q.Set("order_num", order.Token)
	q.Set("customer_extra", strconv.FormatInt(order.UserID, 10))
	q.Set("products[0][price]", price)
	q.Set("products[0][quantity]", "1")
	q.Set("products[0][name]", tariff.ProductName)
	q.Set("sum", price)
	base.RawQuery = q.Encode()

	return base.String(), nil
}
