package bot

import (
	"context"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"
	cbToastClose    = "toast:close"
	cbNoop          = "noop"

	cbTasksPage     = "tasks:page:"
	cbTasksFilter   = "tasks:filter:"
	cbTasksReload   = "tasks:reload"
	cbTaskView      = "task:view:"
	cbTaskToggle    = "task:toggle:"
	cbTaskRun       = "task:run:"
	cbTaskEdit      = "task:edit:"
	cbTaskDelete    = "task:delete:"
	cbTaskLogs      = "task:logs:"
	cbTaskClearLogs = "task:clearlogs:"
	cbTaskResult    = "task:result:"

	cbFormPrefix = "form:"
	cbRulePrefix = "rule:"
	cbCronPrefix = "cron:"

	cbLogsPage      = "logs:page:"
	cbLogsStatus    = "logs:status:"
	cbLogsTask      = "logs:task:"
	cbLogsReload    = "logs:reload"
	cbLogsDeleteAll = "logs:delall"
	cbBarkDeleteAll = "logs:delbark"
	cbStats         = "logs:stats"

	cbBarkPrefix     = "bark:"
	cbTaskBarkPrefix = "tbark:"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	log.Printf("[info] callback from %d: %s", cb.From.ID, data)

	if !b.config.Allowed(cb.From.ID) {
		return nil
	}

	switch {
	case data == cbNoop:
		return nil
	case data == cbToastClose:
		return b.toaster.Dismiss(chatID, messageID)
	case strings.HasPrefix(data, cbConfirmPrefix):
		if !b.confirmer.Resolve(strings.TrimPrefix(data, cbConfirmPrefix), true) {
			log.Printf("[info] stale confirmation %s", data)
		}
		return nil
	case strings.HasPrefix(data, cbCancelPrefix):
		b.confirmer.Resolve(strings.TrimPrefix(data, cbCancelPrefix), false)
		return nil
	}

	c, err := b.loggedInChat(ctx, cb.From, chatID)
	if err != nil || c == nil {
		return err
	}

	switch {
	case strings.HasPrefix(data, "tasks:"), strings.HasPrefix(data, "task:"):
		return b.handleTaskCallback(ctx, c, messageID, data)
	case strings.HasPrefix(data, cbFormPrefix):
		return b.handleFormCallback(ctx, c, cb.From.ID, messageID, strings.TrimPrefix(data, cbFormPrefix))
	case strings.HasPrefix(data, cbRulePrefix):
		return b.handleRuleCallback(ctx, c, cb.From.ID, messageID, strings.TrimPrefix(data, cbRulePrefix))
	case strings.HasPrefix(data, cbCronPrefix):
		return b.handleCronCallback(ctx, c, cb.From.ID, messageID, strings.TrimPrefix(data, cbCronPrefix))
	case strings.HasPrefix(data, "logs:"):
		return b.handleLogsCallback(ctx, c, messageID, data)
	case strings.HasPrefix(data, cbBarkPrefix):
		return b.handleBarkCallback(ctx, c, cb.From.ID, messageID, strings.TrimPrefix(data, cbBarkPrefix))
	case strings.HasPrefix(data, cbTaskBarkPrefix):
		return b.handleTaskBarkCallback(ctx, c, cb.From.ID, messageID, strings.TrimPrefix(data, cbTaskBarkPrefix))
	}
	return nil
}
