package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/model"
	"autobot-console/internal/service"
	"autobot-console/internal/view"
)

var taskFilters = []struct {
	key    string
	status string
	label  string
}{
	{"all", "", "全部"},
	{model.StatusActive, model.StatusActive, "已激活"},
	{model.StatusInactive, model.StatusInactive, "已停用"},
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}

	status := ""
	switch strings.ToLower(strings.TrimSpace(msg.CommandArguments())) {
	case "":
	case model.StatusActive:
		status = model.StatusActive
	case model.StatusInactive:
		status = model.StatusInactive
	default:
		return b.sendText(msg.Chat.ID, "用法: /tasks [active|inactive]")
	}

	logLoad("task list", c.tasks.SetStatusFilter(ctx, status))
	c.setScreen(screenTasks)
	return b.sendTaskList(c, 0)
}

func (b *Bot) sendTaskList(c *chat, messageID int) error {
	v := c.tasks.View()
	text := view.TaskList(v, b.now(), b.config.Location)

	var rows [][]tgbotapi.InlineKeyboardButton
	if v.State == service.Failed {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{button("🔄 重试", cbTasksReload)})
		return b.show(c.id, messageID, text, markup(rows))
	}

	for _, task := range v.Tasks {
		toggle := "⏸ 停用"
		if !task.Active() {
			toggle = "▶️ 激活"
		}
		if c.tasks.Toggling(task.ID) {
			toggle = "⏳"
		}
		id := strconv.FormatUint(uint64(task.ID), 10)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			button(fmt.Sprintf("#%d", task.ID), cbTaskView+id),
			button(toggle, cbTaskToggle+id),
			button("🚀", cbTaskRun+id),
			button("✏️", cbTaskEdit+id),
			button("🗑", cbTaskDelete+id),
		})
	}

	var filters []tgbotapi.InlineKeyboardButton
	for _, f := range taskFilters {
		filters = append(filters, button(selected(f.label, v.Status == f.status), cbTasksFilter+f.key))
	}
	rows = append(rows, filters)
	rows = append(rows, pagerRows(cbTasksPage, view.NewPager(v.Page))...)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{button("🔄 刷新", cbTasksReload)})
	return b.show(c.id, messageID, text, markup(rows))
}

func (b *Bot) sendTaskDetail(c *chat, messageID int, task model.Task) error {
	id := strconv.FormatUint(uint64(task.ID), 10)
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button("✏️ 编辑", cbTaskEdit+id),
			button("🚀 执行", cbTaskRun+id),
			button("🗑 删除", cbTaskDelete+id),
		},
		{
			button("📜 日志", cbTaskLogs+id),
			button("📦 最新结果", cbTaskResult+id),
			button("🧹 清空日志", cbTaskClearLogs+id),
		},
		{
			button("🔔 推送设置", cbTaskBarkPrefix+"open:"+id),
			button("📨 推送记录", cbTaskBarkPrefix+"records:"+id),
		},
		{button("⬅️ 返回列表", cbTasksReload)},
	}
	return b.show(c.id, messageID, view.TaskDetail(task, b.config.Location), markup(rows))
}

func (b *Bot) handleTaskCallback(ctx context.Context, c *chat, messageID int, data string) error {
	switch {
	case data == cbTasksReload:
		c.setScreen(screenTasks)
		logLoad("task list", c.tasks.Load(ctx))
		return b.sendTaskList(c, messageID)

	case strings.HasPrefix(data, cbTasksPage):
		p, err := strconv.Atoi(strings.TrimPrefix(data, cbTasksPage))
		if err != nil {
			return nil
		}
		logLoad("task list", c.tasks.ChangePage(ctx, p))
		return b.sendTaskList(c, messageID)

	case strings.HasPrefix(data, cbTasksFilter):
		status := strings.TrimPrefix(data, cbTasksFilter)
		if status == "all" {
			status = ""
		}
		logLoad("task list", c.tasks.SetStatusFilter(ctx, status))
		return b.sendTaskList(c, messageID)
	}

	id, err := callbackID(data)
	if err != nil {
		return nil
	}

	switch {
	case strings.HasPrefix(data, cbTaskEdit):
		return b.openEditForm(ctx, c, id)
	case strings.HasPrefix(data, cbTaskRun):
		if err := c.tasks.RunNow(ctx, id); err != nil {
			log.Printf("run task %d: %v", id, err)
			return nil
		}
		if c.screen() == screenTasks {
			return b.sendTaskList(c, messageID)
		}
		return nil
	case strings.HasPrefix(data, cbTaskLogs):
		return b.openTaskLogs(ctx, c, id)
	case strings.HasPrefix(data, cbTaskResult):
		return b.sendResult(ctx, c, id)
	}

	task, err := b.findTask(ctx, c, id)
	if err != nil {
		return b.sendError(c.id, "获取任务失败", err)
	}

	switch {
	case strings.HasPrefix(data, cbTaskView):
		return b.sendTaskDetail(c, 0, *task)
	case strings.HasPrefix(data, cbTaskToggle):
		c.tasks.Toggle(ctx, *task, func() {
			if err := b.sendTaskList(c, messageID); err != nil {
				log.Printf("render toggle of task %d: %v", task.ID, err)
			}
		})
		return b.sendTaskList(c, messageID)
	case strings.HasPrefix(data, cbTaskDelete):
		c.setScreen(screenTasks)
		return c.tasks.Delete(ctx, *task)
	case strings.HasPrefix(data, cbTaskClearLogs):
		return c.logs.DeleteTaskLogs(ctx, *task)
	}
	return nil
}

func (b *Bot) handleRunTask(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "用法: /run &lt;任务ID&gt;")
	}
	if err := c.tasks.RunNow(ctx, id); err != nil {
		log.Printf("run task %d: %v", id, err)
	}
	return nil
}

func (b *Bot) handleDeleteTask(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "用法: /delete &lt;任务ID&gt;")
	}
	task, err := b.findTask(ctx, c, id)
	if err != nil {
		return b.sendError(msg.Chat.ID, "获取任务失败", err)
	}
	return c.tasks.Delete(ctx, *task)
}

// findTask prefers the loaded page and falls back to the API.
func (b *Bot) findTask(ctx context.Context, c *chat, id uint) (*model.Task, error) {
	for _, task := range c.tasks.View().Tasks {
		if task.ID == id {
			found := task
			return &found, nil
		}
	}
	return c.client.GetTask(ctx, id)
}

// callbackID parses the id after the last colon of callback data.
func callbackID(data string) (uint, error) {
	return parseID(data[strings.LastIndex(data, ":")+1:])
}

// logLoad logs a failed load. The page itself renders the failure.
func logLoad(what string, err error) {
	if err != nil && !errors.Is(err, service.ErrBusy) {
		log.Printf("load %s: %v", what, err)
	}
}
