package channel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"tripbot/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	telegramChannel        = "telegram"
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxPhotoBytes  = 10 << 20
)

// Telegram implements domain.Channel for a Telegram bot. Text messages and
// photos become turns for the sending user.
type Telegram struct {
	token       string
	allowFrom   []int64 // empty allows everyone
	parseMode   string
	displayName string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	http   *resty.Client
	logger *slog.Logger
}

type TelegramConfig struct {
	Token       string
	AllowFrom   []string // user IDs as strings
	ParseMode   string
	DisplayName string
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:       cfg.Token,
		allowFrom:   allowed,
		parseMode:   cfg.ParseMode,
		displayName: cfg.DisplayName,
		http:        resty.New().SetTimeout(30 * time.Second),
		logger:      cfg.Logger,
	}
}

func (t *Telegram) Name() string { return telegramChannel }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	bus.OnOutbound(telegramChannel, func(msg domain.OutboundMessage) {
		if err := t.Send(ctx, msg); err != nil {
			t.logger.Error("telegram outbound failed", "chat_id", msg.ChatID, "err", err)
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// StopReceivingUpdates panics when called twice.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if t.bot == nil {
		return errors.New("telegram bot not started")
	}
	id, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	content := msg.Content
	if msg.IsError {
		content = "⚠️ " + content
	}
	for _, chunk := range splitMessage(content, telegramMaxMsgLen) {
		if err := t.sendChunk(ctx, id, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil {
		return
	}
	if !t.isAllowed(m.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", m.From.ID, "username", m.From.UserName)
		_ = t.sendChunk(ctx, m.Chat.ID, "⛔ 您的用户 ID 不在允许列表中。")
		return
	}
	if m.IsCommand() && m.Command() == "start" {
		_ = t.sendChunk(ctx, m.Chat.ID, fmt.Sprintf("👋 你好！我是%s，可以帮你查天气、路况、景点，规划行程和准备行李。发送 /help 查看命令。", t.displayName))
		return
	}

	var images []string
	if photo, ok := largestPhoto(m.Photo); ok {
		data, err := t.downloadPhoto(ctx, photo.FileID)
		if err != nil {
			t.logger.Error("telegram photo download failed", "file_id", photo.FileID, "err", err)
			_ = t.sendChunk(ctx, m.Chat.ID, "⚠️ 图片下载失败，请重试。")
			return
		}
		images = []string{data}
	}

	msg, ok := inboundFromTelegram(m, images)
	if !ok {
		return
	}
	t.logger.Info("telegram message received",
		"user_id", m.From.ID,
		"chat_id", m.Chat.ID,
		"text_len", len(msg.Content),
		"images", len(images),
	)
	_, _ = t.bot.Request(tgbotapi.NewChatAction(m.Chat.ID, tgbotapi.ChatTyping))
	t.bus.Publish(msg)
}

// inboundFromTelegram builds the turn for m. A photo's caption is its text.
func inboundFromTelegram(m *tgbotapi.Message, images []string) (domain.InboundMessage, bool) {
	text := strings.TrimSpace(m.Text)
	if len(images) > 0 {
		text = strings.TrimSpace(m.Caption)
	}
	if text == "" && len(images) == 0 {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Kind:      domain.InboundText,
		Channel:   telegramChannel,
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		Content:   text,
		Images:    images,
		Timestamp: time.Unix(int64(m.Date), 0),
	}, true
}

// largestPhoto picks the highest-resolution size Telegram offers.
func largestPhoto(sizes []tgbotapi.PhotoSize) (tgbotapi.PhotoSize, bool) {
	if len(sizes) == 0 {
		return tgbotapi.PhotoSize{}, false
	}
	return slices.MaxFunc(sizes, func(a, b tgbotapi.PhotoSize) int {
		return a.Width*a.Height - b.Width*b.Height
	}), true
}

func (t *Telegram) downloadPhoto(ctx context.Context, fileID string) (string, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("resolve file: %w", err)
	}
	resp, err := t.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("download file: HTTP %d", resp.StatusCode())
	}
	if len(resp.Body()) > telegramMaxPhotoBytes {
		return "", fmt.Errorf("photo too large: %d bytes", len(resp.Body()))
	}
	return base64.StdEncoding.EncodeToString(resp.Body()), nil
}

func (t *Telegram) isAllowed(userID int64) bool {
	return len(t.allowFrom) == 0 || slices.Contains(t.allowFrom, userID)
}

// sendChunk sends one message, first with the configured parse mode and
// then as plain text, retrying transient failures with backoff.
func (t *Telegram) sendChunk(ctx context.Context, chatID int64, text string) error {
	parseMode := t.parseMode
	op := func() error {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = parseMode
		_, err := t.bot.Send(msg)
		if err == nil {
			return nil
		}
		if parseMode != "" && strings.Contains(err.Error(), "can't parse entities") {
			t.logger.Warn("telegram markup rejected, retrying as plain text", "err", err)
			parseMode = ""
			return err
		}
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
			t.logger.Warn("telegram rate limited", "retry_after", tgErr.RetryAfter)
			select {
			case <-time.After(time.Duration(tgErr.RetryAfter) * time.Second):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), telegramMaxSendRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// splitMessage cuts text into pieces of at most limit runes, preferring to
// break at a newline in the second half of a piece.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i >= limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 || len(chunks) == 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
