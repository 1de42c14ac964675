package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "subscription-bridge/internal/errors"
	"subscription-bridge/internal/metrics"
	"subscription-bridge/internal/model"
	"subscription-bridge/internal/payload"
	"subscription-bridge/internal/reconcile"
	"subscription-bridge/internal/repository"
	"subscription-bridge/internal/signature"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type OutcomeKind string

const (
	OutcomeGranted   OutcomeKind = "granted"
	OutcomeDuplicate OutcomeKind = "duplicate"
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Outcome is the terminal state of one webhook delivery.
type Outcome struct {
	Kind      OutcomeKind
	Reason    string
	EventID   string
	Match     reconcile.Match
	ExpiresAt time.Time
	// Err carries the categorized cause of a rejected or ignored delivery.
	Err error
}

// Delivery is one raw webhook request.
type Delivery struct {
	Provider    string
	Body        []byte
	ContentType string
	Header      http.Header
}

// EventIDFields hold the provider's payment id, most specific first.
var EventIDFields = []string{"payment_id", "transaction_id", "order_id", "order_num"}

// StatusFields hold the payment status, checked in order.
var StatusFields = []string{"payment_status", "status"}

type Reconciler interface {
	Reconcile(ctx context.Context, f payload.Fields) (reconcile.Match, bool, error)
}

type WebhookOptions struct {
	Secret        string
	Strict        bool
	SuccessStatus string
}

type WebhookService interface {
	// Handle runs a delivery through verification, reconciliation,
	// deduplication and grant. Only transient failures return an error.
	Handle(ctx context.Context, d Delivery) (Outcome, error)
}

type webhookServiceImpl struct {
	db            *gorm.DB
	opts          WebhookOptions
	reconciler    Reconciler
	ledger        LedgerService
	access        AccessService
	orderRepo     repository.OrderRepository
	webhookEvents repository.WebhookEventRepository
	now           func() time.Time
	log           zerolog.Logger
}

func NewWebhookService(
	db *gorm.DB,
	opts WebhookOptions,
	reconciler Reconciler,
	ledger LedgerService,
	access AccessService,
	orderRepo repository.OrderRepository,
	webhookEvents repository.WebhookEventRepository,
	logger zerolog.Logger,
) WebhookService {
	if opts.SuccessStatus == "" {
		opts.SuccessStatus = "success"
	}
	return &webhookServiceImpl{
		db:            db,
		opts:          opts,
		reconciler:    reconciler,
		ledger:        ledger,
		access:        access,
		orderRepo:     orderRepo,
		webhookEvents: webhookEvents,
		now:           time.Now,
		log:           logger.With().Str("component", "webhook").Logger(),
	}
}

func (s *webhookServiceImpl) Handle(ctx context.Context, d Delivery) (Outcome, error) {
	out, err := s.handle(ctx, d)
	if err != nil {
		metrics.RecordWebhook(d.Provider, "error")
		return out, err
	}
	metrics.RecordWebhook(d.Provider, string(out.Kind))
	return out, nil
}

func (s *webhookServiceImpl) handle(ctx context.Context, d Delivery) (Outcome, error) {
	log := s.log.With().Str("provider", d.Provider).Int("raw_len", len(d.Body)).Logger()

	if !s.verify(d) {
		flat, _ := payload.Resolve(d.Body, d.ContentType)
		reason := "provider signature mismatch"
		sigErr := apperrors.Signature("webhook.verify", errors.New(reason))
		log.Warn().Err(sigErr).Interface("payload", payload.Sanitize(flat)).Bool("strict", s.opts.Strict).Msg(reason)
		if s.opts.Strict {
			return Outcome{Kind: OutcomeRejected, Reason: reason, Err: sigErr}, nil
		}
		return Outcome{Kind: OutcomeIgnored, Reason: reason, Err: sigErr}, nil
	}

	fields, err := payload.Resolve(d.Body, d.ContentType)
	if err != nil {
		log.Warn().Err(err).Msg("unparseable webhook payload")
		return Outcome{Kind: OutcomeIgnored, Reason: "unparseable payload"}, nil
	}

	_, status := fields.First(StatusFields...)
	if !strings.EqualFold(status, s.opts.SuccessStatus) {
		log.Info().Str("status", status).Msg("non-success status ignored")
		return Outcome{Kind: OutcomeIgnored, Reason: "status " + status}, nil
	}

	match, ok, err := s.reconciler.Reconcile(ctx, fields)
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile: %w", err)
	}
	if !ok {
		log.Warn().Interface("payload", payload.Sanitize(fields)).Msg("insufficient data to grant subscription")
		return Outcome{Kind: OutcomeIgnored, Reason: "unmatched"}, nil
	}

	eventID := EventID(fields, d.Body)
	log = log.With().
		Str("event_id", eventID).
		Int64("user_id", match.UserID).
		Int("days", match.Days).
		Str("strategy", string(match.Strategy)).
		Logger()

	orderID := s.paidOrderID(ctx, match, fields)

	var sub *model.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, err := s.webhookEvents.MarkProcessed(ctx, tx, d.Provider, eventID)
		if err != nil {
			return apperrors.Transient("webhook.mark_processed", err)
		}
		if !first {
			return apperrors.Duplicate("webhook.mark_processed", nil)
		}

		sub, err = s.ledger.Grant(ctx, tx, match.UserID, match.Days)
		if err != nil {
			return err
		}

		if orderID != "" {
			if _, err := s.orderRepo.MarkPaid(ctx, tx, orderID, s.now()); err != nil {
				return apperrors.Transient("webhook.mark_paid", err)
			}
		}
		return nil
	})

	switch {
	case apperrors.IsDuplicate(err):
		log.Info().Msg("duplicate delivery acknowledged")
		return Outcome{Kind: OutcomeDuplicate, EventID: eventID, Match: match}, nil
	case apperrors.IsValidation(err):
		log.Warn().Err(err).Interface("payload", payload.Sanitize(fields)).Msg("grant refused")
		return Outcome{Kind: OutcomeIgnored, Reason: "grant refused", EventID: eventID, Match: match}, nil
	case err != nil:
		return Outcome{}, fmt.Errorf("apply grant: %w", err)
	}

	metrics.RecordGrant(string(match.Strategy))
	log.Info().Time("expires_at", sub.ExpiresAt()).Msg("payment reconciled")

	if s.access != nil {
		if err := s.access.DeliverAccess(ctx, match.UserID, sub.ExpiresAt()); err != nil {
			log.Warn().Err(err).Msg("access delivery failed after grant")
		}
	}

	return Outcome{
		Kind:      OutcomeGranted,
		EventID:   eventID,
		Match:     match,
		ExpiresAt: sub.ExpiresAt(),
	}, nil
}

// paidOrderID names the stored order a grant settles. Token matches carry
// no order, so the payload's order_id is used when it belongs to the same user.
func (s *webhookServiceImpl) paidOrderID(ctx context.Context, match reconcile.Match, f payload.Fields) string {
	if match.OrderID != "" {
		return match.OrderID
	}
	id := f.Get("order_id")
	if id == "" {
		return ""
	}
	order, err := s.orderRepo.FindByOrderID(ctx, id)
	if err != nil || order.UserID != match.UserID {
		return ""
	}
	return order.OrderID
}

// verify checks the provider signature from a header, or from a JSON body
// field signed over the remaining object.
func (s *webhookServiceImpl) verify(d Delivery) bool {
	if !signature.Enabled(s.opts.Secret) {
		s.log.Debug().Msg("provider signature check disabled")
		return true
	}

	if sig := signature.FromHeader(d.Header); sig != "" {
		return signature.Verify(d.Body, sig, s.opts.Secret)
	}

	if payload.IsJSON(d.ContentType) {
		fields, err := payload.Resolve(d.Body, d.ContentType)
		if err != nil {
			return false
		}
		name, sig := fields.First(signature.FieldNames...)
		if sig == "" {
			return false
		}
		signed, err := payload.WithoutJSONField(d.Body, name)
		if err != nil {
			return false
		}
		return signature.Verify(signed, sig, s.opts.Secret)
	}

	return false
}

// EventID picks the idempotency key for a delivery: the provider's payment
// id when present, then order identifiers, then a digest of the body.
func EventID(f payload.Fields, raw []byte) string {
	if _, id := f.First(EventIDFields...); id != "" {
		return id
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:])
}
