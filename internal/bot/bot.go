// internal/bot/bot.go
package bot

import (
	"card-recommender/internal/auth"
	"card-recommender/internal/domain"
	"card-recommender/internal/recommend"
	"card-recommender/internal/storage"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "💳 *Card Recommender*\n\n" +
	"Commands:\n" +
	"`/link <access_token>` - link this chat to your account\n" +
	"`/cards` - list your cards\n" +
	"`/check 42.1688 -87.9745` - best card for a point\n" +
	"Or just share your location 📍"

const linkFirstText = "🔗 Link your account first: `/link <access_token>`"

// SecretTokenHeader: Telegram присылает в нём secret_token из setWebhook
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Sender: часть tgbotapi.BotAPI, которая нужна боту
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Store interface {
	storage.CardStorage
	storage.SettingsStorage
}

type Bot struct {
	sender  Sender
	store   Store
	tokens  *auth.TokenService
	service *recommend.Service
}

func New(sender Sender, store Store, tokens *auth.TokenService, service *recommend.Service) *Bot {
	return &Bot{sender: sender, store: store, tokens: tokens, service: service}
}

// HandleUpdate отвечает на одно входящее сообщение
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}

	reply := b.Reply(ctx, update.Message)
	if reply == "" {
		return
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.sender.Send(msg); err != nil {
		slog.Error("telegram send failed", "error", err, "chat_id", update.Message.Chat.ID)
	}
}

// Reply считает текст ответа, ничего не отправляя
func (b *Bot) Reply(ctx context.Context, m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	telegramID := m.From.ID

	if m.Location != nil {
		return b.check(ctx, telegramID, m.Location.Latitude, m.Location.Longitude)
	}

	text := sanitizeInput(fixEncoding(m.Text))
	if text == "" {
		return ""
	}
	slog.Info("telegram message", "telegram_id", telegramID, "text", text)

	command, args := splitCommand(text)
	switch command {
	case "/start", "/help":
		return helpText

	case "/link":
		return b.link(ctx, telegramID, args)

	case "/cards":
		return b.cards(ctx, telegramID)

	case "/check":
		fields := strings.Fields(args)
		if len(fields) != 2 {
			return "❌ Usage: `/check <lat> <lng>`"
		}
		lat, errLat := strconv.ParseFloat(fields[0], 64)
		lng, errLng := strconv.ParseFloat(fields[1], 64)
		if errLat != nil || errLng != nil {
			return "❌ Invalid location"
		}
		return b.check(ctx, telegramID, lat, lng)

	default:
		return "Unknown command. Type /help"
	}
}

// WebhookHandler принимает обновления от Telegram на /telegram.
// Запрос без правильного secret_token отклоняется: from.id в теле ничем не защищён.
func (b *Bot) WebhookHandler(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(SecretTokenHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			slog.Warn("telegram update rejected: bad secret token", "ip", c.ClientIP())
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			slog.Error("telegram update parse failed", "error", err)
			c.Status(http.StatusBadRequest)
			return
		}
		b.HandleUpdate(c.Request.Context(), update)
		c.Status(http.StatusOK)
	}
}

// SetWebhook регистрирует url вместе с secret_token.
// tgbotapi.WebhookConfig не умеет secret_token, поэтому параметры собираем сами.
func SetWebhook(api *tgbotapi.BotAPI, url, secret string) error {
	_, err := api.MakeRequest("setWebhook", tgbotapi.Params{
		"url":          url,
		"secret_token": secret,
	})
	if err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	return nil
}

// Poll читает обновления long polling'ом, пока не отменён ctx
func (b *Bot) Poll(ctx context.Context, api *tgbotapi.BotAPI) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) link(ctx context.Context, telegramID int64, token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return "❌ Usage: `/link <access_token>`"
	}

	userID, err := b.tokens.ParseToken(token)
	if err != nil {
		return "❌ Invalid or expired token"
	}
	if err := b.store.LinkTelegram(ctx, userID, telegramID); err != nil {
		slog.Error("LinkTelegram failed", "error", err, "user_id", userID, "telegram_id", telegramID)
		return "❌ Could not link account, try again later"
	}

	slog.Info("telegram linked", "user_id", userID, "telegram_id", telegramID)
	return "✅ Account linked"
}

// linkedUser: "" без ошибки значит, что аккаунт не привязан
func (b *Bot) linkedUser(ctx context.Context, telegramID int64) (string, error) {
	userID, err := b.store.UserByTelegram(ctx, telegramID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("user by telegram: %w", err)
	}
	return userID, nil
}

func (b *Bot) cards(ctx context.Context, telegramID int64) string {
	userID, err := b.linkedUser(ctx, telegramID)
	if err != nil {
		slog.Error("telegram cards failed", "error", err, "telegram_id", telegramID)
		return "❌ Internal error"
	}
	if userID == "" {
		return linkFirstText
	}

	cards, err := b.store.ListCards(ctx, userID)
	if err != nil {
		slog.Error("telegram cards failed", "error", err, "user_id", userID)
		return "❌ Internal error"
	}
	return formatCards(cards)
}

func (b *Bot) check(ctx context.Context, telegramID int64, lat, lng float64) string {
	if lat == 0 || lng == 0 || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return "❌ Invalid location"
	}

	userID, err := b.linkedUser(ctx, telegramID)
	if err != nil {
		slog.Error("telegram check failed", "error", err, "telegram_id", telegramID)
		return "❌ Internal error"
	}
	if userID == "" {
		return linkFirstText
	}

	rec, err := b.service.CheckLocation(ctx, userID, lat, lng)
	if err != nil {
		slog.Error("telegram check failed", "error", err, "user_id", userID)
		return "❌ Internal error"
	}
	return formatRecommendation(rec)
}

func splitCommand(text string) (command, args string) {
	command, args, _ = strings.Cut(text, " ")
	// /cards@MyBot -> /cards
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatCards(cards []domain.Card) string {
	if len(cards) == 0 {
		return "📭 No cards yet"
	}

	lines := []string{"💳 *Your cards*"}
	for _, c := range cards {
		lines = append(lines, fmt.Sprintf("\n*%s* (base %.1f%%)", escape(c.Name), c.BaseRate))
		for _, bonus := range c.CategoryBonuses {
			lines = append(lines, fmt.Sprintf("- %s: %.1f%%", escape(bonus.Category), bonus.Rate))
		}
	}
	return strings.Join(lines, "\n")
}

func formatRecommendation(rec *domain.Recommendation) string {
	if rec == nil {
		return "📭 No recommendation here: no cards or no known merchant within range"
	}

	m := rec.Merchant
	header := fmt.Sprintf("📍 *%s* (%s, %.2f mi)", escape(m.Name), escape(m.Category), m.Distance)
	if rec.Card == nil {
		return header + "\n🤷 None of your cards earns rewards here"
	}
	return header + fmt.Sprintf("\n💳 Use *%s*: %.1f%%", escape(rec.Card.Name), rec.Rate)
}
