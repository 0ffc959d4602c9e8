// Package bot is the Telegram intake: shared messages become intake records
// and /list shows what is still unread.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"linkkeeper/internal/domain"
	"linkkeeper/internal/intake"
	"linkkeeper/internal/view"
)

// listLimit caps the number of links /list replies with.
const listLimit = 10

// Enqueuer accepts share payloads.
type Enqueuer interface {
	Enqueue(ctx context.Context, p intake.Payload) (domain.SharedIntake, error)
}

// Lister lists saved links.
type Lister interface {
	List(ctx context.Context, q view.Query) ([]domain.Link, error)
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot   *tgbot.Bot
	queue Enqueuer
	links Lister
	log   logrus.FieldLogger
	clock func() time.Time
}

// NewHandler creates a new bot handler instance.
func NewHandler(token string, queue Enqueuer, links Lister, logger logrus.FieldLogger) (*Handler, error) {
	log := logger.WithField("component", "bot_handler")

	h := &Handler{
		queue: queue,
		links: links,
		log:   log,
		clock: time.Now,
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.shareHandler))
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b
	h.registerHandlers()

	log.Info("Telegram bot handler initialized")
	return h, nil
}

func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypePrefix, h.listHandler)
	h.log.Debug("Registered /start and /list command handlers")
}

// Start polls for updates until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID,
		"Send or forward me anything with a link and it lands in your link keeper inbox. /list shows what is still unread.")
}

func (h *Handler) listHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	links, err := h.links.List(ctx, view.Query{Filter: view.FilterUnread})
	if err != nil {
		h.log.WithError(err).Error("Failed to list links")
		h.reply(ctx, b, update.Message.Chat.ID, "Could not load your links right now.")
		return
	}
	h.reply(ctx, b, update.Message.Chat.ID, formatList(links, h.clock()))
}

// shareHandler enqueues any other message. The reconciler turns it into a
// link later, so the reply only confirms the hand-off.
func (h *Handler) shareHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	p, ok := payloadFromMessage(update.Message)
	if !ok {
		return
	}
	log := h.log.WithField("chat_id", update.Message.Chat.ID)

	rec, err := h.queue.Enqueue(ctx, p)
	if err != nil {
		log.WithError(err).Error("Failed to enqueue shared message")
		h.reply(ctx, b, update.Message.Chat.ID, "Sorry, that could not be saved.")
		return
	}
	log.WithField("intake_id", rec.ID).Debug("Queued shared message")
	h.reply(ctx, b, update.Message.Chat.ID, "Got it, saving that link.")
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
	}
}

// payloadFromMessage builds an intake payload from a message's text or
// caption. Commands and empty messages are skipped.
func payloadFromMessage(msg *models.Message) (intake.Payload, bool) {
	if msg == nil {
		return intake.Payload{}, false
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" || strings.HasPrefix(text, "/") {
		return intake.Payload{}, false
	}
	return intake.Payload{Text: text, Source: domain.SourceTelegram}, true
}

func formatList(links []domain.Link, now time.Time) string {
	if len(links) == 0 {
		return "Nothing unread."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d unread:\n", len(links))
	for i, l := range links {
		if i == listLimit {
			fmt.Fprintf(&sb, "...and %d more", len(links)-listLimit)
			break
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n%s\n", i+1, l.Title, view.RelativeTime(l.CreatedAt, now), l.URL)
	}
	return strings.TrimRight(sb.String(), "\n")
}
