// Package bot is the Telegram front end: it receives receipt photos,
// feeds them through the pipeline and reports the outcome back to the
// submitting user.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ledgerbot/internal/drive"
	"ledgerbot/internal/pipeline"
	"ledgerbot/internal/receipt"
	"ledgerbot/internal/scanning"
)

const (
	recentLimit = 5

	// photoQueueSize bounds how many receipts a single chat can have
	// waiting. Beyond that the bot asks the user to resend rather than
	// stalling the update loop.
	photoQueueSize = 16
)

// Pipeline is the part of the receipt pipeline the bot drives.
type Pipeline interface {
	ProcessPhoto(ctx context.Context, chatID int64, imageData []byte, contentType string) (*receipt.Record, error)
	Recent(limit int) ([]*receipt.ProcessedReceipt, error)
}

// Bot runs the Telegram update loop.
type Bot struct {
	api        *tgbotapi.BotAPI
	pipeline   Pipeline
	httpClient *http.Client
	queues     *chatQueues
}

// New creates a Bot.
func New(token string, p Pipeline) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Bot{
		api:        api,
		pipeline:   p,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		queues:     newChatQueues(photoQueueSize),
	}, nil
}

// Run polls for updates until ctx is cancelled. Photos are dispatched
// to a per-chat queue so two receipts from the same user land in the
// ledger in the order they were sent, while different chats are handled
// concurrently.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	slog.Info("bot started", "username", b.api.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	switch {
	case msg.IsCommand():
		go b.handleCommand(msg)
	case len(msg.Photo) > 0 || msg.Document != nil:
		if !b.queues.dispatch(ctx, msg, b.handlePhoto) {
			b.reply(msg.Chat.ID, "I'm still working through your earlier receipts. Please resend this one in a moment.")
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, welcomeMessage)
	case "recent":
		b.reply(msg.Chat.ID, b.recentMessage())
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	b.reply(chatID, "Processing your receipt, please wait...")

	img, err := b.acquire(ctx, msg)
	if err != nil {
		slog.Error("failed to acquire receipt image", "chat_id", chatID, "error", err)
		b.reply(chatID, errorReply(err))
		return
	}

	record, err := b.pipeline.ProcessPhoto(ctx, chatID, img.data, img.contentType)
	if err != nil {
		slog.Error("failed to process receipt", "chat_id", chatID, "file_id", img.fileID, "error", err)
		b.reply(chatID, errorReply(err))
		return
	}

	b.reply(chatID, successMessage(record))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("failed to send reply", "chat_id", chatID, "error", err)
	}
}

const welcomeMessage = `Receipt Ledger Bot

Send me a photo of your receipt and I will:
- extract the details with AI
- append a row to your ledger spreadsheet
- keep your expenses organized

Commands:
/recent - show the last processed receipts`

func successMessage(r *receipt.Record) string {
	return fmt.Sprintf(`Receipt recorded.

Merchant: %s
Date: %s
Total: %.2f %s
Payment: %s

The ledger has been updated.`,
		r.MerchantName, r.Date, r.TotalAmount, r.Currency, r.PaymentMethod)
}

func (b *Bot) recentMessage() string {
	processed, err := b.pipeline.Recent(recentLimit)
	if err != nil {
		slog.Error("failed to list recent receipts", "error", err)
		return "Could not load recent receipts. Please try again."
	}
	if len(processed) == 0 {
		return "No receipts processed yet. Send me a photo to get started."
	}

	var sb strings.Builder
	sb.WriteString("Recent receipts:\n")
	for _, p := range processed {
		fmt.Fprintf(&sb, "- %s | %s | %.2f %s\n",
			p.Record.Date, p.Record.MerchantName, p.Record.TotalAmount, p.Record.Currency)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// errorReply maps a pipeline error to the short human-readable message
// the submitting user sees. No failure is silently swallowed and none
// is fatal to the process.
func errorReply(err error) string {
	var acqErr *AcquisitionError
	var extErr *scanning.ExtractionError
	var normErr *receipt.NormalizationError
	var syncErr *drive.SyncError

	switch {
	case errors.Is(err, pipeline.ErrDuplicate):
		return "This receipt is already in your ledger, so I skipped it."
	case errors.As(err, &acqErr):
		return "I couldn't download that image. Please try sending it again."
	case errors.As(err, &extErr):
		return "The receipt reader is unavailable right now. Please try again in a moment."
	case errors.As(err, &normErr):
		return "I couldn't read that receipt. Please make sure the photo is clear and try again."
	case errors.As(err, &syncErr):
		return "The receipt was read but saving to your ledger failed. Please try again."
	default:
		return "Something went wrong processing your receipt. Please try again."
	}
}
