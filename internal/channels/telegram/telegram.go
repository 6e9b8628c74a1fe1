// Package telegram implements the Telegram channel adapter on long polling.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/prismbot/prism/internal/channels"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/pkg/models"
)

// Config holds Telegram adapter configuration.
type Config struct {
	// Token is the bot token from @BotFather.
	Token string

	Logger *observability.Logger
}

// Adapter bridges Telegram chats to the agent. Each chat id becomes the
// channel id of the inbound coordinate.
type Adapter struct {
	cfg Config
	log *observability.Logger

	mu      sync.Mutex
	bot     *bot.Bot
	cancel  context.CancelFunc
	stopped bool
}

// New creates a Telegram adapter. The bot connection is established on
// Start.
func New(cfg Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewTestLogger()
	}
	return &Adapter{cfg: cfg, log: cfg.Logger}, nil
}

// Type returns the telegram channel type.
func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

// Start connects the bot and begins long polling on a goroutine.
func (a *Adapter) Start(ctx context.Context, send channels.SendFunc) error {
	handler := func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
		if update.Message == nil || update.Message.Text == "" {
			return
		}
		coordinate := models.ChannelCoordinate{
			Type:      models.ChannelTelegram,
			ChannelID: strconv.FormatInt(update.Message.Chat.ID, 10),
			ReplyTo:   strconv.Itoa(update.Message.ID),
		}
		if update.Message.From != nil {
			coordinate.UserID = strconv.FormatInt(update.Message.From.ID, 10)
		}
		send(models.Inbound{Text: update.Message.Text, Channel: coordinate})
	}

	b, err := bot.New(a.cfg.Token, bot.WithDefaultHandler(handler))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.bot = b
	a.cancel = cancel
	a.mu.Unlock()

	go b.Start(runCtx)
	a.log.Info("telegram adapter started")
	return nil
}

// Deliver sends a reply to the chat identified by the outbound channel id.
func (a *Adapter) Deliver(ctx context.Context, msg models.Outbound) error {
	a.mu.Lock()
	b := a.bot
	a.mu.Unlock()
	if b == nil {
		return fmt.Errorf("telegram: adapter not started")
	}

	chatID, err := strconv.ParseInt(msg.Channel.ChannelID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.Channel.ChannelID, err)
	}
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Text,
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// Stop halts long polling. Idempotent.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true
	if a.cancel != nil {
		a.cancel()
	}
	return nil
}
