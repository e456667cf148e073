package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/notify"
	"autobot-console/internal/view"
)

func (b *Bot) handleCron(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	c.cron = cronbuilder.New(strings.TrimSpace(msg.CommandArguments()))
	return b.sendCron(c, 0)
}

func (b *Bot) sendCron(c *chat, messageID int) error {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, f := range cronbuilder.Fields() {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			button(fmt.Sprintf("%s: %s ↻", f, c.cron.Value(f)), fmt.Sprintf("%scycle:%d", cbCronPrefix, f)),
			button("✏️", fmt.Sprintf("%sset:%d", cbCronPrefix, f)),
		})
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		button("♻️ 重置", cbCronPrefix+"reset"),
		button("✅ 写入表单", cbCronPrefix+"apply"),
	})
	return b.show(c.id, messageID, view.CronBuilder(c.cron, b.now(), b.config.Location), markup(rows))
}

func (b *Bot) handleCronCallback(ctx context.Context, c *chat, userID int64, messageID int, data string) error {
	switch data {
	case "reset":
		c.cron = cronbuilder.New("")
		return b.sendCron(c, messageID)
	case "apply":
		if err := c.taskForm().ApplyCron(c.cron.Expression()); err != nil {
			c.notes.Notify(err.Error(), notify.Warning)
		}
		c.setScreen(screenForm)
		return b.sendForm(c, 0)
	}

	action, raw, ok := strings.Cut(data, ":")
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	field := cronbuilder.Field(n)

	switch action {
	case "cycle":
		c.cron.Cycle(field)
		return b.sendCron(c, messageID)
	case "set":
		b.setConversation(userID, &conversationState{stage: stageCronField, field: field})
		text := fmt.Sprintf("请输入「%s」字段的值，例如 <code>%s</code>:", field, strings.Join(cronbuilder.Options(field), "</code>、<code>"))
		return b.sendWithReplyMarkup(c.id, text, cancelKeyboard())
	}
	return nil
}

func (b *Bot) continueCronField(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	if strings.ContainsAny(text, " \t") || text == "" {
		return b.sendWithReplyMarkup(c.id, "字段值不能为空且不能包含空格，请重新输入:", cancelKeyboard())
	}
	c.cron.Set(state.field, text)
	b.clearConversation(msg.From.ID)
	if err := b.sendText(c.id, "👌 已记录。"); err != nil {
		return err
	}
	return b.sendCron(c, 0)
}
