package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramSurface posts toasts and confirmation prompts as chat messages.
type telegramSurface struct {
	api telegram
}

func (s *telegramSurface) SendToast(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableNotification = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("✖️ 关闭", cbToastClose)),
	)
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (s *telegramSurface) DeleteMessage(chatID int64, messageID int) error {
	_, err := s.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (s *telegramSurface) SendPrompt(chatID int64, promptID, title, body string) (int, error) {
	text := fmt.Sprintf("❓ <b>%s</b>\n\n%s", escape(title), escape(body))
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button(btnConfirm, cbConfirmPrefix+promptID),
			button(btnCancel, cbCancelPrefix+promptID),
		),
	)
	sent, err := s.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// ClosePrompt replaces the prompt with the answer, which also drops its buttons.
func (s *telegramSurface) ClosePrompt(chatID int64, messageID int, confirmed bool) error {
	text := "↩️ 已取消"
	if confirmed {
		text = "✅ 已确认"
	}
	_, err := s.api.Request(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}
