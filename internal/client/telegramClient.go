package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subscription-bridge/internal/config"
)

// TelegramClient is the subset of the Bot API the payment path needs.
// Calls are bounded by the configured timeout and never retried here.
type TelegramClient interface {
	CreateInviteLink(ctx context.Context, chatID string) (string, error)
	BanMember(ctx context.Context, chatID string, userID int64, until time.Time) error
	SendMessage(ctx context.Context, userID int64, text string) error
}

type telegramClientImpl struct {
	httpClient *http.Client
	baseApiURL string
	botToken   string
}

type telegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

type chatInviteLink struct {
	InviteLink string `json:"invite_link"`
}

func NewTelegramClient(tgCfg *config.Telegram) TelegramClient {
	timeout := tgCfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &telegramClientImpl{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseApiURL: strings.TrimRight(tgCfg.BaseApiURL, "/"),
		botToken:   tgCfg.BotToken,
	}
}

func (c *telegramClientImpl) CreateInviteLink(ctx context.Context, chatID string) (string, error) {
	var link chatInviteLink
	err := c.call(ctx, "createChatInviteLink", map[string]interface{}{
		"chat_id": chatID,
	}, &link)
	if err != nil {
		return "", err
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("telegram createChatInviteLink: empty invite link")
	}

	return link.InviteLink, nil
}

func (c *telegramClientImpl) BanMember(ctx context.Context, chatID string, userID int64, until time.Time) error {
	return c.call(ctx, "banChatMember", map[string]interface{}{
		"chat_id":    chatID,
		"user_id":    userID,
		"until_date": until.Unix(),
	}, nil)
}

func (c *telegramClientImpl) SendMessage(ctx context.Context, userID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id": strconv.FormatInt(userID, 10),
		"text":    text,
	}, nil)
}

func (c *telegramClientImpl) call(ctx context.Context, method string, payload map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal req payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseApiURL, c.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the url embeds the bot token; report the method only
		return fmt.Errorf("telegram %s request failed: %w", method, redactToken(err, c.botToken))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var result telegramResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("telegram %s: status=%d: decode response: %w", method, resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram %s failed: code=%d description=%s", method, result.ErrorCode, result.Description)
	}

	if out != nil && len(result.Result) > 0 {
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}

	return nil
}

func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<token>"))
}
