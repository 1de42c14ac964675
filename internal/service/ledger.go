package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "subscription-bridge/internal/errors"
	"subscription-bridge/internal/model"
	"subscription-bridge/internal/repository"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// LedgerService owns per-user subscription expiry.
type LedgerService interface {
	// Grant extends userID by days using additive renewal. tx may be nil.
	Grant(ctx context.Context, tx *gorm.DB, userID int64, days int) (*model.Subscription, error)
	Expiry(ctx context.Context, userID int64) (time.Time, bool, error)
	Revoke(ctx context.Context, userID int64) (bool, error)
	ListExpiredSince(ctx context.Context, now time.Time) ([]int64, error)
}

type ledgerServiceImpl struct {
	db      *gorm.DB
	subRepo repository.SubscriptionRepository
	now     func() time.Time
	log     zerolog.Logger
}

func NewLedgerService(
	db *gorm.DB,
	subRepo repository.SubscriptionRepository,
	logger zerolog.Logger,
) LedgerService {
	return &ledgerServiceImpl{
		db:      db,
		subRepo: subRepo,
		now:     time.Now,
		log:     logger.With().Str("component", "ledger").Logger(),
	}
}

func (s *ledgerServiceImpl) Grant(ctx context.Context, tx *gorm.DB, userID int64, days int) (*model.Subscription, error) {
	if userID <= 0 || days <= 0 {
		s.log.Warn().
			Int64("user_id", userID).
			Int("days", days).
			Msg("grant refused: user id and days must be positive")
		return nil, apperrors.Validationf("ledger.grant", "refusing grant user_id=%d days=%d", userID, days)
	}

	nowMillis := s.now().UnixMilli()
	addMillis := model.DaysToMillis(days)

	var sub *model.Subscription
	extend := func(tx *gorm.DB) error {
		var err error
		sub, err = s.subRepo.Extend(ctx, tx, userID, nowMillis, addMillis)
		return err
	}

	var err error
	if tx != nil {
		err = extend(tx)
	} else {
		err = s.db.WithContext(ctx).Transaction(extend)
	}
	if err != nil {
		return nil, apperrors.Transient("ledger.grant", fmt.Errorf("extend subscription %d: %w", userID, err))
	}

	s.log.Info().
		Int64("user_id", userID).
		Int("days", days).
		Time("expires_at", sub.ExpiresAt()).
		Msg("subscription granted")

	return sub, nil
}

func (s *ledgerServiceImpl) Expiry(ctx context.Context, userID int64) (time.Time, bool, error) {
	sub, err := s.subRepo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperrors.Transient("ledger.expiry", err)
	}
	return sub.ExpiresAt(), true, nil
}

func (s *ledgerServiceImpl) Revoke(ctx context.Context, userID int64) (bool, error) {
	deleted, err := s.subRepo.Delete(ctx, userID)
	if err != nil {
		return false, apperrors.Transient("ledger.revoke", err)
	}
	if deleted {
		s.log.Info().Int64("user_id", userID).Msg("subscription revoked")
	}
	return deleted, nil
}

func (s *ledgerServiceImpl) ListExpiredSince(ctx context.Context, now time.Time) ([]int64, error) {
	ids, err := s.subRepo.ListExpiredSince(ctx, now.UnixMilli())
	if err != nil {
		return nil, apperrors.Transient("ledger.list_expired", err)
	}
	return ids, nil
}
