package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/dialog"
	"github.com/biamino/team-report-bot/internal/messages"
	"github.com/biamino/team-report-bot/internal/utils"
	"github.com/biamino/team-report-bot/types"
)

// Handlers adapts telegram updates to dialog inputs and dialog replies
// back to telegram calls. All conversation logic lives in the engine.
type Handlers struct {
	engine *dialog.Engine
	logger *zap.Logger
}

func NewHandlers(engine *dialog.Engine, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine: engine,
		logger: logger,
	}
}

func (h *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic recovered", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, b, update)
	case update.Message != nil:
		h.handleMessage(ctx, b, update)
	}
}

func (h *Handlers) handleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if cmd, ok := parseCommand(msg.Text); ok {
		if cmd == "logout" {
			reply, err := h.engine.Logout(ctx, userID)
			h.send(ctx, b, chatID, 0, reply, err)
			return
		}
		reply, err := h.engine.Advance(ctx, userID, dialog.Input{
			Kind:    dialog.InputCommand,
			ChatID:  chatID,
			Command: cmd,
		})
		h.send(ctx, b, chatID, 0, reply, err)
		return
	}

	in := dialog.Input{
		Kind:   dialog.InputText,
		ChatID: chatID,
		Text:   msg.Text,
	}
	if media := extractMedia(msg); media != nil {
		in.Media = media
		in.Text = msg.Caption
	}

	reply, err := h.engine.Advance(ctx, userID, in)
	h.send(ctx, b, chatID, 0, reply, err)
}

func (h *Handlers) handleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	userID := cq.From.ID

	chatID := userID
	messageID := 0
	if cq.Message.Message != nil {
		chatID = cq.Message.Message.Chat.ID
		messageID = cq.Message.Message.ID
	}

	_, _ = b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
	})

	reply, err := h.engine.Advance(ctx, userID, dialog.Input{
		Kind:     dialog.InputCallback,
		ChatID:   chatID,
		Callback: cq.Data,
	})
	h.send(ctx, b, chatID, messageID, reply, err)
}

func (h *Handlers) send(ctx context.Context, b *bot.Bot, chatID int64, messageID int, reply *dialog.Reply, err error) {
	if err != nil {
		h.logger.Error("dialog transition failed", zap.Int64("chat_id", chatID), zap.Error(err))
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      messages.ErrorDefault(),
			ParseMode: messages.ParseModeHTML,
		})
		return
	}
	if reply == nil {
		return
	}

	var markup *models.InlineKeyboardMarkup
	if len(reply.Buttons) > 0 {
		markup = utils.BuildInlineKeyboard(reply.Buttons)
	}

	if reply.Edit && messageID != 0 {
		params := &bot.EditMessageTextParams{
			ChatID:    chatID,
			MessageID: messageID,
			Text:      reply.Text,
			ParseMode: messages.ParseModeHTML,
		}
		if markup != nil {
			params.ReplyMarkup = markup
		}
		if _, err := b.EditMessageText(ctx, params); err == nil {
			return
		}
		// Fall through to a fresh message when the edit is rejected,
		// e.g. the original message is too old.
	}

	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      reply.Text,
		ParseMode: messages.ParseModeHTML,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := b.SendMessage(ctx, params); err != nil {
		h.logger.Error("send reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// parseCommand recognizes "/cmd" and "/cmd@BotName" at the start of a
// message and returns the bare command name.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(text, "/")
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}

func extractMedia(msg *models.Message) *types.MediaAttachment {
	switch {
	case len(msg.Photo) > 0:
		// Sizes come smallest first; keep the original resolution.
		return &types.MediaAttachment{
			Kind:   types.MediaPhoto,
			FileID: msg.Photo[len(msg.Photo)-1].FileID,
		}
	case msg.Video != nil:
		return &types.MediaAttachment{
			Kind:   types.MediaVideo,
			FileID: msg.Video.FileID,
		}
	case msg.Document != nil:
		return &types.MediaAttachment{
			Kind:   types.MediaDocument,
			FileID: msg.Document.FileID,
		}
	}
	return nil
}
