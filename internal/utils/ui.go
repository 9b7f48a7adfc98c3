package utils

import (
	"github.com/go-telegram/bot/models"

	"github.com/biamino/team-report-bot/internal/dialog"
)

// BuildInlineKeyboard turns dialog button rows into a telegram inline
// keyboard. Row layout is decided by the dialog layer and kept as is.
func BuildInlineKeyboard(rows [][]dialog.Button) *models.InlineKeyboardMarkup {
	pad := func(s string) string { return " " + s + " " }
	keyboard := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			line = append(line, models.InlineKeyboardButton{
				Text:         pad(b.Label),
				CallbackData: b.Data,
			})
		}
		keyboard = append(keyboard, line)
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: keyboard,
	}
}
