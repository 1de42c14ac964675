package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-bridge/internal/client"
	"subscription-bridge/internal/model"
	"subscription-bridge/internal/repository"

	"github.com/rs/zerolog"
)

// AccessService hands a paid user the way into the private group.
type AccessService interface {
	DeliverAccess(ctx context.Context, userID int64, expiresAt time.Time) error
	InviteLink(ctx context.Context) (string, error)
}

type accessServiceImpl struct {
	telegram    client.TelegramClient
	settingRepo repository.SettingRepository
	groupID     string
	log         zerolog.Logger
}

func NewAccessService(
	telegram client.TelegramClient,
	settingRepo repository.SettingRepository,
	groupID string,
	logger zerolog.Logger,
) AccessService {
	return &accessServiceImpl{
		telegram:    telegram,
		settingRepo: settingRepo,
		groupID:     groupID,
		log:         logger.With().Str("component", "access").Logger(),
	}
}

// InviteLink returns the cached group invite link, creating and caching one
// when none is stored. It returns "" without error when no group is configured.
func (s *accessServiceImpl) InviteLink(ctx context.Context) (string, error) {
	link, err := s.settingRepo.Get(ctx, model.SettingGroupInviteURL)
	if err == nil && link != "" {
		return link, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("read cached invite link: %w", err)
	}

	if s.groupID == "" {
		return "", nil
	}

	link, err = s.telegram.CreateInviteLink(ctx, s.groupID)
	if err != nil {
		return "", fmt.Errorf("create invite link: %w", err)
	}

	if err := s.settingRepo.Set(ctx, model.SettingGroupInviteURL, link); err != nil {
		s.log.Warn().Err(err).Msg("could not cache invite link")
	}

	return link, nil
}

func (s *accessServiceImpl) DeliverAccess(ctx context.Context, userID int64, expiresAt time.Time) error {
	link, err := s.InviteLink(ctx)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("invite link unavailable")
	}

	text := fmt.Sprintf("Благодарю за оплату! ✨\nДоступ активен до %s.", expiresAt.UTC().Format("02.01.2006 15:04 MST"))
	if link != "" {
		text += "\nВот ссылка для входа в закрытый чат:\n" + link
	} else {
		text += "\nМы скоро пришлём ссылку для входа в чат."
	}

	if err := s.telegram.SendMessage(ctx, userID, text); err != nil {
		return fmt.Errorf("send access message to %d: %w", userID, err)
	}

	return nil
}
