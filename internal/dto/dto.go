package dto

import "time"

type CheckoutRequest struct {
	UserID int64  `json:"user_id"`
	Tariff string `json:"tariff"`
}

type CheckoutResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	Days       int    `json:"days"`
	Amount     string `json:"amount"`
}

type GrantRequest struct {
	UserID int64 `json:"user_id"`
	Days   int   `json:"days"`
}

type SubscriptionResponse struct {
	UserID    int64      `json:"user_id"`
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type EnforcerRunResponse struct {
	Candidates int `json:"candidates"`
	Removed    int `json:"removed"`
	Failed     int `json:"failed"`
}
