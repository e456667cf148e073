package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/api"
	"autobot-console/internal/format"
	"autobot-console/internal/service"
	"autobot-console/internal/view"
)

var logStatuses = []string{"", "success", "execution_failed", "script_failed", "running"}

func (b *Bot) handleLogs(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}

	var filters service.LogFilters
	for _, arg := range strings.Fields(msg.CommandArguments()) {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return b.sendText(msg.Chat.ID, "用法: /logs [task=&lt;id&gt;] [status=&lt;状态&gt;] [date=YYYY-MM-DD]")
		}
		switch strings.ToLower(key) {
		case "task":
			id, err := parseID(value)
			if err != nil {
				return b.sendText(msg.Chat.ID, "任务ID必须是数字。")
			}
			filters.TaskID = id
		case "status":
			filters.Status = value
		case "date":
			filters.Date = value
		}
	}

	if err := c.logs.LoadTasks(ctx); err != nil {
		log.Printf("refresh log filter tasks: %v", err)
	}
	return b.applyLogFilters(ctx, c, 0, filters)
}

func (b *Bot) openTaskLogs(ctx context.Context, c *chat, taskID uint) error {
	return b.applyLogFilters(ctx, c, 0, service.LogFilters{TaskID: taskID})
}

func (b *Bot) applyLogFilters(ctx context.Context, c *chat, messageID int, f service.LogFilters) error {
	err := c.logs.ApplyFilters(ctx, f)
	var invalid *service.ValidationError
	if errors.As(err, &invalid) {
		return b.sendText(c.id, "⚠️ "+escape(invalid.Message))
	}
	logLoad("logs", err)
	c.setScreen(screenLogs)
	return b.sendLogs(c, messageID)
}

func (b *Bot) sendLogs(c *chat, messageID int) error {
	v := c.logs.View()
	text := view.LogList(v, b.now(), b.config.Location)

	var rows [][]tgbotapi.InlineKeyboardButton
	if v.State == service.Failed {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{button("🔄 重试", cbLogsReload)})
		return b.show(c.id, messageID, text, markup(rows))
	}

	var statuses []tgbotapi.InlineKeyboardButton
	for _, s := range logStatuses {
		label := "全部"
		if s != "" {
			label = format.StatusLabel(s)
		}
		statuses = append(statuses, button(selected(label, v.Filters.Status == s), cbLogsStatus+s))
	}
	rows = append(rows, chunk(statuses, 3)...)
	if v.Filters.TaskID != 0 {
		id := strconv.FormatUint(uint64(v.Filters.TaskID), 10)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			button("❌ 全部任务", cbLogsTask+"0"),
			button("🧹 清空该任务日志", cbTaskClearLogs+id),
		})
	}
	rows = append(rows, pagerRows(cbLogsPage, view.NewPager(v.Page))...)
	rows = append(rows,
		[]tgbotapi.InlineKeyboardButton{
			button("🔄 刷新", cbLogsReload),
			button("📊 统计", cbStats),
		},
		[]tgbotapi.InlineKeyboardButton{
			button("🗑 删除所有日志", cbLogsDeleteAll),
		},
	)
	return b.show(c.id, messageID, text, markup(rows))
}

func (b *Bot) handleLogsCallback(ctx context.Context, c *chat, messageID int, data string) error {
	switch {
	case data == cbLogsReload:
		c.setScreen(screenLogs)
		logLoad("logs", c.logs.Load(ctx))
		return b.sendLogs(c, messageID)

	case strings.HasPrefix(data, cbLogsPage):
		p, err := strconv.Atoi(strings.TrimPrefix(data, cbLogsPage))
		if err != nil {
			return nil
		}
		logLoad("logs", c.logs.ChangePage(ctx, p))
		return b.sendLogs(c, messageID)

	case strings.HasPrefix(data, cbLogsStatus):
		f := c.logs.View().Filters
		f.Status = strings.TrimPrefix(data, cbLogsStatus)
		return b.applyLogFilters(ctx, c, messageID, f)

	case strings.HasPrefix(data, cbLogsTask):
		id, err := callbackID(data)
		if err != nil {
			return nil
		}
		f := c.logs.View().Filters
		f.TaskID = id
		return b.applyLogFilters(ctx, c, messageID, f)

	case data == cbLogsDeleteAll:
		return c.logs.DeleteAll(ctx)

	case data == cbBarkDeleteAll:
		return c.logs.DeleteAllBark(ctx)

	case data == cbStats:
		c.setScreen(screenStats)
		return b.sendStats(ctx, c, messageID)
	}
	return nil
}

func (b *Bot) handleLogDetail(ctx context.Context, msg *tgbotapi.Message, raw string) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	id, err := parseID(raw)
	if err != nil {
		return b.sendText(msg.Chat.ID, "用法: /log &lt;日志ID&gt;")
	}

	entry, err := c.logs.FindLog(ctx, id, 0)
	if errors.Is(err, service.ErrLogNotFound) {
		return b.sendText(msg.Chat.ID, "📭 "+service.ErrLogNotFound.Error())
	}
	if err != nil {
		return b.sendError(msg.Chat.ID, "获取日志失败", err)
	}

	taskID := strconv.FormatUint(uint64(entry.TaskID), 10)
	rows := [][]tgbotapi.InlineKeyboardButton{{
		button("📜 该任务日志", cbTaskLogs+taskID),
		button("📦 最新结果", cbTaskResult+taskID),
	}}
	return b.show(msg.Chat.ID, 0, view.LogDetail(*entry, b.config.Location), markup(rows))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	c.setScreen(screenStats)
	return b.sendStats(ctx, c, 0)
}

func (b *Bot) sendStats(ctx context.Context, c *chat, messageID int) error {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button("🔄 刷新", cbStats),
			button("📜 日志", cbLogsReload),
		},
		{
			button("🗑 删除所有日志", cbLogsDeleteAll),
			button("🗑 删除所有Bark日志", cbBarkDeleteAll),
		},
	}

	stats, err := c.logs.Stats(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil
		}
		log.Printf("load stats: %v", err)
		return b.show(c.id, messageID, view.Failed(err), markup(rows[:1]))
	}
	return b.show(c.id, messageID, view.Stats(*stats, b.config.Location), markup(rows))
}

func (b *Bot) handleResult(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "用法: /result &lt;任务ID&gt;")
	}
	return b.sendResult(ctx, c, id)
}

func (b *Bot) sendResult(ctx context.Context, c *chat, taskID uint) error {
	res, err := c.logs.TaskResult(ctx, taskID)
	if err != nil {
		return b.sendError(c.id, fmt.Sprintf("获取任务 %d 的执行结果失败", taskID), err)
	}
	return b.show(c.id, 0, view.TaskResult(res, b.config.Location), markup(nil))
}
