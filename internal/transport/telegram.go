package transport

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/types"
)

// Telegram adapts the bot client to the Transport interface and maps
// API failures onto the delivery error taxonomy.
type Telegram struct {
	bot *bot.Bot
}

func NewTelegram(b *bot.Bot) *Telegram {
	return &Telegram{bot: b}
}

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, payload types.Payload) error {
	var err error

	if payload.Media != nil {
		err = t.sendMedia(ctx, chatID, payload.Media, captionFor(payload))
	} else {
		_, err = t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      payload.Text,
			ParseMode: messages.ParseModeHTML,
		})
	}

	if err != nil {
		return classify(err)
	}
	return nil
}

// sendMedia re-sends an attachment by its file id without touching the
// content.
func (t *Telegram) sendMedia(ctx context.Context, chatID int64, media *types.MediaAttachment, caption string) error {
	var err error
	switch media.Kind {
	case types.MediaPhoto:
		_, err = t.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: media.FileID},
			Caption: caption,
		})
	case types.MediaVideo:
		_, err = t.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:  chatID,
			Video:   &models.InputFileString{Data: media.FileID},
			Caption: caption,
		})
	default:
		_, err = t.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID:   chatID,
			Document: &models.InputFileString{Data: media.FileID},
			Caption:  caption,
		})
	}
	return err
}

func captionFor(payload types.Payload) string {
	if payload.Media.Caption != "" {
		return payload.Media.Caption
	}
	return payload.Text
}

// classify sorts API errors into permanent (the recipient blocked the
// bot or the request itself is invalid) and transient (rate limits,
// timeouts, everything else worth a retry).
func classify(err error) error {
	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorNotFound):
		return types.NewPermanentError(err)
	}
	return types.NewTransientError(err)
}
