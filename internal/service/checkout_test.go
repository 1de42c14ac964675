package service

import (
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subscription-bridge/internal/config"
	apperrors "subscription-bridge/internal/errors"
	"subscription-bridge/internal/linktoken"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Link.Secret = linkSecret
	cfg.Prodamus.PayformURL = "https://pay.example.test/"
	cfg.Prodamus.Currency = "rub"
	cfg.Tariffs = []config.Tariff{
		{Code: "month", Days: 30, Price: decimal.NewFromInt(1299), ProductName: "Доступ 1 месяц"},
	}
	return cfg
}

func TestCreatePaymentLink(t *testing.T) {
	h := newHarness(t)
	svc := NewCheckoutService(testConfig(), h.orders, zerolog.Nop())

	res, err := svc.CreatePaymentLink(context.Background(), 12345, "MONTH")
	require.NoError(t, err)
	assert.Equal(t, 30, res.Days)
	assert.Equal(t, "1299.00", res.Amount)

	link, err := url.Parse(res.PaymentURL)
	require.NoError(t, err)
	assert.Equal(t, "pay.example.test", link.Host)

	q := link.Query()
	assert.Equal(t, "pay", q.Get("do"))
	assert.Equal(t, res.OrderID, q.Get("order_id"))
	assert.Equal(t, "12345", q.Get("customer_extra"))
	assert.Equal(t, "1299", q.Get("products[0][price]"))
	assert.Equal(t, "Доступ 1 месяц", q.Get("products[0][name]"))

	claims, ok := linktoken.Parse(q.Get("order_num"), linkSecret)
	require.True(t, ok)
	assert.Equal(t, linktoken.Claims{UserID: 12345, Days: 30}, claims)

	order, err := h.orders.FindByOrderID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), order.UserID)
	assert.Equal(t, "month", order.Plan)
	assert.Nil(t, order.PaidAt)
}

func TestCreatePaymentLinkValidation(t *testing.T) {
	h := newHarness(t)
	svc := NewCheckoutService(testConfig(), h.orders, zerolog.Nop())

	_, err := svc.CreatePaymentLink(context.Background(), 0, "month")
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.CreatePaymentLink(context.Background(), 1, "lifetime")
	assert.True(t, apperrors.IsValidation(err))
}

// A link issued here and echoed back by the provider reconciles to the same grant.
func TestPaymentLinkRoundTrip(t *testing.T) {
	h := newHarness(t)
	checkout := NewCheckoutService(testConfig(), h.orders, zerolog.Nop())

	res, err := checkout.CreatePaymentLink(context.Background(), 55, "month")
	require.NoError(t, err)
	link, err := url.Parse(res.PaymentURL)
	require.NoError(t, err)

	q := link.Query()
	q.Set("payment_id", "P-55")
	q.Set("payment_status", "success")
	out, err := h.service(WebhookOptions{Strict: true}).Handle(context.Background(), formDelivery(q))
	require.NoError(t, err)

	assert.Equal(t, OutcomeGranted, out.Kind)
	assert.Equal(t, int64(55), out.Match.UserID)
	assert.Equal(t, 30, out.Match.Days)

	order, err := h.orders.FindByOrderID(context.Background(), res.OrderID)
	require.NoError(t, err)
	assert.NotNil(t, order.PaidAt)
}
