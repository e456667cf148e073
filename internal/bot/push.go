package bot

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/service"
	"autobot-console/internal/view"
)

// Push settings callbacks, after cbTaskBarkPrefix.
const (
	pushOpen       = "open:"
	pushRecords    = "records:"
	pushRecordPage = "rpage:"
	pushReload     = "rreload"
	pushDevice     = "dev:"
	pushKey        = "key:"
	pushLevel      = "level"
	pushTitle      = "title"
	pushBody       = "body"
	pushSave       = "save"
	pushBack       = "back"
)

func (b *Bot) sendPushSettings(c *chat, messageID int) error {
	v := c.push.View()
	id := strconv.FormatUint(uint64(v.Task.ID), 10)
	text := view.TaskBarkSettings(v)

	if v.State == service.Failed {
		rows := [][]tgbotapi.InlineKeyboardButton{{
			button("🔄 重试", cbTaskBarkPrefix+pushOpen+id),
			button("⬅️ 返回", cbTaskBarkPrefix+pushBack),
		}}
		return b.show(c.id, messageID, text, markup(rows))
	}

	var devices []tgbotapi.InlineKeyboardButton
	for _, d := range v.Devices {
		label := "⬜ " + d.Name
		if v.Selected(d.ID) {
			label = "✅ " + d.Name
		}
		devices = append(devices, button(label, cbTaskBarkPrefix+pushDevice+strconv.FormatUint(uint64(d.ID), 10)))
	}
	rows := chunk(devices, 2)

	var keys []tgbotapi.InlineKeyboardButton
	for i, k := range v.Keys {
		keys = append(keys, button("➕ $"+k, cbTaskBarkPrefix+pushKey+strconv.Itoa(i)))
	}
	rows = append(rows, chunk(keys, 3)...)

	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{
			button("✏️ 标题", cbTaskBarkPrefix+pushTitle),
			button("✏️ 内容", cbTaskBarkPrefix+pushBody),
			button("📶 "+view.BarkLevel(v.Config.Level), cbTaskBarkPrefix+pushLevel),
		},
		[]tgbotapi.InlineKeyboardButton{
			button("💾 保存", cbTaskBarkPrefix+pushSave),
			button("📨 推送记录", cbTaskBarkPrefix+pushRecords+id),
			button("⬅️ 返回", cbTaskBarkPrefix+pushBack),
		},
	)
	return b.show(c.id, messageID, text, markup(rows))
}

func (b *Bot) sendPushRecords(c *chat, messageID int) error {
	task := c.push.Task()
	v := c.push.Records()
	rows := pagerRows(cbTaskBarkPrefix+pushRecordPage, view.NewPager(v.Page))
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		button("🔄 刷新", cbTaskBarkPrefix+pushReload),
		button("⬅️ 返回", cbTaskBarkPrefix+pushBack),
	})
	return b.show(c.id, messageID, view.BarkRecords(task, v, b.config.Location), markup(rows))
}

func (b *Bot) handleTaskBarkCallback(ctx context.Context, c *chat, userID int64, messageID int, data string) error {
	switch {
	case strings.HasPrefix(data, pushOpen), strings.HasPrefix(data, pushRecords):
		id, err := callbackID(data)
		if err != nil {
			return nil
		}
		task, err := b.findTask(ctx, c, id)
		if err != nil {
			return b.sendError(c.id, "获取任务失败", err)
		}
		if strings.HasPrefix(data, pushRecords) {
			logLoad("push records", c.push.OpenRecords(ctx, *task))
			return b.sendPushRecords(c, messageID)
		}
		logLoad("push settings", c.push.Open(ctx, *task))
		return b.sendPushSettings(c, messageID)

	case strings.HasPrefix(data, pushRecordPage):
		p, err := strconv.Atoi(strings.TrimPrefix(data, pushRecordPage))
		if err != nil {
			return nil
		}
		logLoad("push records", c.push.ChangeRecordPage(ctx, p))
		return b.sendPushRecords(c, messageID)

	case data == pushReload:
		logLoad("push records", c.push.LoadRecords(ctx))
		return b.sendPushRecords(c, messageID)

	case strings.HasPrefix(data, pushDevice):
		id, err := parseID(strings.TrimPrefix(data, pushDevice))
		if err != nil {
			return nil
		}
		c.push.ToggleDevice(id)
		return b.sendPushSettings(c, messageID)

	case strings.HasPrefix(data, pushKey):
		i, err := strconv.Atoi(strings.TrimPrefix(data, pushKey))
		if err != nil {
			return nil
		}
		c.push.InsertKey(i)
		return b.sendPushSettings(c, messageID)

	case data == pushLevel:
		c.push.CycleLevel()
		return b.sendPushSettings(c, messageID)

	case data == pushTitle:
		b.setConversation(userID, &conversationState{stage: stagePushTitle})
		return b.sendWithReplyMarkup(c.id, "🏷 请输入通知标题，可使用 <code>$变量</code>，发送 - 清空:", skipKeyboard())

	case data == pushBody:
		b.setConversation(userID, &conversationState{stage: stagePushBody})
		return b.sendWithReplyMarkup(c.id, "📝 请输入通知内容，可使用 <code>$变量</code>，发送 - 清空:", skipKeyboard())

	case data == pushSave:
		if err := c.push.Save(ctx); err != nil {
			if errors.Is(err, service.ErrBusy) {
				return nil
			}
			log.Printf("save push settings: %v", err)
		}
		return b.sendPushSettings(c, messageID)

	case data == pushBack:
		task := c.push.Task()
		if task.ID == 0 {
			return nil
		}
		return b.sendTaskDetail(c, messageID, task)
	}
	return nil
}

func (b *Bot) continuePushField(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	b.clearConversation(msg.From.ID)
	if isSkipInput(text) {
		text = ""
	}
	if state.stage == stagePushTitle {
		c.push.SetTitle(text)
	} else {
		c.push.SetBody(text)
	}
	if err := b.sendText(c.id, "👌 已记录。"); err != nil {
		log.Printf("send ack: %v", err)
	}
	return b.sendPushSettings(c, 0)
}
