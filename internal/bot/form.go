package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/exclusion"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
	"autobot-console/internal/service"
	"autobot-console/internal/view"
)

func (b *Bot) startNewTask(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	c.newForm()
	c.setScreen(screenForm)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTaskName})
	return b.promptFormField(c.id, stageTaskName)
}

func (b *Bot) handleEditTask(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	id, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "用法: /edit &lt;任务ID&gt;")
	}
	return b.openEditForm(ctx, c, id)
}

func (b *Bot) openEditForm(ctx context.Context, c *chat, id uint) error {
	f := service.NewTaskForm(c.client, c.notes, c.confirm)
	if err := f.Load(ctx, id); err != nil {
		return b.sendError(c.id, "加载任务失败", err)
	}
	c.form.Store(f)
	c.setScreen(screenForm)
	return b.sendForm(c, 0)
}

func (b *Bot) promptFormField(chatID int64, stage conversationStage) error {
	switch stage {
	case stageTaskName:
		return b.sendWithReplyMarkup(chatID, "🏷 请输入任务名称（最多 100 个字符）:", cancelKeyboard())
	case stageTaskDescription:
		return b.sendWithReplyMarkup(chatID, "📝 请输入任务描述，可跳过:", skipKeyboard())
	case stageTaskCron:
		return b.sendWithReplyMarkup(chatID, "⏰ 请输入 Cron 表达式（秒 分 时 日 月 周），例如 <code>0 */5 * * * *</code>:", cronKeyboard())
	case stageTaskScript:
		return b.sendWithReplyMarkup(chatID, "🧩 请发送 Python 脚本（必须包含 <code>def main():</code>），跳过则保留当前脚本:", skipKeyboard())
	}
	return nil
}

// continueTaskForm walks name → description → cron → script. In single mode
// it returns to the form after the one field.
func (b *Bot) continueTaskForm(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	f := c.taskForm()
	var next conversationStage

	switch state.stage {
	case stageTaskName:
		if err := f.SetName(text); err != nil {
			return b.retryField(c.id, state.stage, err)
		}
		next = stageTaskDescription
	case stageTaskDescription:
		if isSkipInput(text) {
			text = ""
		}
		f.SetDescription(text)
		next = stageTaskCron
	case stageTaskCron:
		if err := f.ApplyCron(text); err != nil {
			return b.retryField(c.id, state.stage, err)
		}
		next = stageTaskScript
	case stageTaskScript:
		if !isSkipInput(text) {
			if err := f.SetScript(msg.Text); err != nil {
				return b.retryField(c.id, state.stage, err)
			}
		}
		next = stageNone
	}

	if state.single || next == stageNone {
		b.clearConversation(msg.From.ID)
		c.setScreen(screenForm)
		if err := b.sendText(c.id, "👌 已记录。"); err != nil {
			log.Printf("send ack: %v", err)
		}
		return b.sendForm(c, 0)
	}

	state.stage = next
	b.setConversation(msg.From.ID, state)
	return b.promptFormField(c.id, next)
}

func (b *Bot) retryField(chatID int64, stage conversationStage, err error) error {
	if sendErr := b.sendText(chatID, "⚠️ "+escape(err.Error())); sendErr != nil {
		return sendErr
	}
	return b.promptFormField(chatID, stage)
}

func (b *Bot) sendForm(c *chat, messageID int) error {
	f := c.taskForm()
	v := f.Values()
	var rules string
	_ = f.Rules(func(e *exclusion.Editor) error {
		rules = view.RuleList(e.Rows(), e.Enabled, e.Visible)
		return nil
	})

	status := "状态: 已激活 ⇄"
	if v.Status == model.StatusInactive {
		status = "状态: 已停用 ⇄"
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button("🏷 名称", cbFormPrefix+"name"),
			button("📝 描述", cbFormPrefix+"desc"),
			button("⏰ Cron", cbFormPrefix+"cron"),
		},
		{
			button("🛠 生成器", cbFormPrefix+"builder"),
			button("🔮 预览执行时间", cbFormPrefix+"preview"),
		},
		{
			button("🧩 脚本", cbFormPrefix+"script"),
			button("🔍 检查语法", cbFormPrefix+"check"),
		},
	}
	var templates []tgbotapi.InlineKeyboardButton
	for _, key := range service.TemplateKeys() {
		templates = append(templates, button("📄 "+service.TemplateName(key), cbFormPrefix+"tpl:"+key))
	}
	rows = append(rows, templates,
		[]tgbotapi.InlineKeyboardButton{
			button(status, cbFormPrefix+"status"),
			button("⛔ 排除规则", cbFormPrefix+"rules"),
		},
		[]tgbotapi.InlineKeyboardButton{
			button("💾 保存", cbFormPrefix+"save"),
			button("♻️ 重置", cbFormPrefix+"reset"),
			button("✖️ 关闭", cbFormPrefix+"close"),
		},
	)
	return b.show(c.id, messageID, view.TaskForm(v, rules), markup(rows))
}

func (b *Bot) handleFormCallback(ctx context.Context, c *chat, userID int64, messageID int, action string) error {
	f := c.taskForm()

	switch action {
	case "name", "desc", "cron", "script":
		stage := map[string]conversationStage{
			"name":   stageTaskName,
			"desc":   stageTaskDescription,
			"cron":   stageTaskCron,
			"script": stageTaskScript,
		}[action]
		b.setConversation(userID, &conversationState{stage: stage, single: true})
		return b.promptFormField(c.id, stage)

	case "status":
		if f.Values().Status == model.StatusInactive {
			f.SetStatus(model.StatusActive)
		} else {
			f.SetStatus(model.StatusInactive)
		}
		return b.sendForm(c, messageID)

	case "check":
		return b.show(c.id, 0, view.ScriptCheck(f.CheckScript(ctx)), markup(nil))

	case "preview":
		return b.show(c.id, 0, view.CronPreview(f.Values().CronExpr, b.now(), b.config.Location), markup(nil))

	case "builder":
		c.cron = cronbuilder.New(f.Values().CronExpr)
		return b.sendCron(c, 0)

	case "rules":
		c.setScreen(screenRules)
		return b.sendRules(c, 0)

	case "reset":
		c.setScreen(screenForm)
		return f.Reset(ctx)

	case "save":
		return b.saveForm(ctx, c)

	case "close":
		c.setScreen(screenNone)
		return b.show(c.id, messageID, "📁 表单已关闭。", markup(nil))
	}

	if key, ok := strings.CutPrefix(action, "tpl:"); ok {
		if err := f.InsertTemplate(key); err != nil {
			log.Printf("insert template: %v", err)
			return nil
		}
		c.notes.Notify("已插入"+service.TemplateName(key), notify.Info)
		return b.sendForm(c, messageID)
	}
	return nil
}

func (b *Bot) saveForm(ctx context.Context, c *chat) error {
	task, err := c.taskForm().Submit(ctx)
	var invalid service.ValidationErrors
	switch {
	case errors.As(err, &invalid):
		return b.show(c.id, 0, view.ValidationErrors(invalid), markup(nil))
	case err != nil:
		log.Printf("submit task form: %v", err)
		return nil
	}

	c.newForm()
	c.setScreen(screenTasks)
	if err := b.sendTaskDetail(c, 0, *task); err != nil {
		log.Printf("send task detail: %v", err)
	}
	logLoad("task list", c.tasks.Load(ctx))
	return b.sendTaskList(c, 0)
}

func (b *Bot) sendRules(c *chat, messageID int) error {
	var (
		text string
		rows [][]tgbotapi.InlineKeyboardButton
	)
	_ = c.taskForm().Rules(func(e *exclusion.Editor) error {
		text = view.RuleList(e.Rows(), e.Enabled, true)
		for i, row := range e.Rows() {
			rows = append(rows, ruleButtons(i, row)...)
		}
		toggle := "🔛 启用规则"
		if e.Enabled {
			toggle = "📴 停用规则"
		}
		rows = append(rows,
			[]tgbotapi.InlineKeyboardButton{
				button("➕ 添加规则", cbRulePrefix+"add"),
				button(toggle, cbRulePrefix+"enable"),
			},
			[]tgbotapi.InlineKeyboardButton{button("⬅️ 返回表单", cbRulePrefix+"back")},
		)
		return nil
	})
	return b.show(c.id, messageID, text, markup(rows))
}

func ruleButtons(i int, row exclusion.Row) [][]tgbotapi.InlineKeyboardButton {
	data := func(action string, args ...any) string {
		s := fmt.Sprintf("%s%s:%d", cbRulePrefix, action, i)
		for _, a := range args {
			s += fmt.Sprintf(":%v", a)
		}
		return s
	}

	editing, ok := row.Editing()
	if !ok {
		return [][]tgbotapi.InlineKeyboardButton{{
			button(fmt.Sprintf("✏️ 编辑 %d", i+1), data("edit")),
			button(fmt.Sprintf("🗑 删除 %d", i+1), data("remove")),
		}}
	}

	draft := editing.Draft
	var types []tgbotapi.InlineKeyboardButton
	for _, t := range []string{model.RuleDaily, model.RuleWeekly, model.RuleDateRange} {
		types = append(types, button(selected(exclusion.TypeLabel(t), draft.Type == t), data("type", t)))
	}
	fields := []tgbotapi.InlineKeyboardButton{
		button(fmt.Sprintf("🕘 %s-%s", draft.StartTime, draft.EndTime), data("times")),
		button("🏷 名称", data("name")),
	}
	if draft.Type == model.RuleDateRange {
		fields = append(fields, button("🗓 日期", data("dates")))
	}
	rows := [][]tgbotapi.InlineKeyboardButton{types, fields}

	if draft.Type == model.RuleWeekly {
		var days []tgbotapi.InlineKeyboardButton
		for d := 0; d < 7; d++ {
			on := false
			for _, w := range draft.Weekdays {
				if w == d {
					on = true
				}
			}
			days = append(days, button(selected(exclusion.WeekdayName(d), on), data("day", d)))
		}
		rows = append(rows, days)
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		button(fmt.Sprintf("✅ 确定 %d", i+1), data("ok")),
		button(fmt.Sprintf("↩️ 取消 %d", i+1), data("cancel")),
		button("🗑", data("remove")),
	})
	return rows
}

func (b *Bot) handleRuleCallback(ctx context.Context, c *chat, userID int64, messageID int, data string) error {
	f := c.taskForm()
	parts := strings.Split(data, ":")
	action := parts[0]

	switch action {
	case "add":
		_ = f.Rules(func(e *exclusion.Editor) error {
			e.Add()
			return nil
		})
		return b.sendRules(c, messageID)
	case "enable":
		_ = f.Rules(func(e *exclusion.Editor) error {
			e.SetEnabled(!e.Enabled)
			return nil
		})
		return b.sendRules(c, messageID)
	case "back":
		c.setScreen(screenForm)
		return b.sendForm(c, messageID)
	}

	if len(parts) < 2 {
		return nil
	}
	var i int
	if _, err := fmt.Sscan(parts[1], &i); err != nil {
		return nil
	}
	arg := ""
	if len(parts) > 2 {
		arg = parts[2]
	}

	var err error
	switch action {
	case "edit":
		err = f.Rules(func(e *exclusion.Editor) error { return e.Edit(i) })
	case "cancel":
		err = f.Rules(func(e *exclusion.Editor) error { return e.Cancel(i) })
	case "ok":
		err = f.Rules(func(e *exclusion.Editor) error { return e.Confirm(i) })
	case "type":
		err = f.Rules(func(e *exclusion.Editor) error { return e.SetType(i, arg) })
	case "day":
		var day int
		if _, scanErr := fmt.Sscan(arg, &day); scanErr != nil {
			return nil
		}
		err = f.Rules(func(e *exclusion.Editor) error { return e.ToggleWeekday(i, day) })
	case "remove":
		c.setScreen(screenRules)
		err = f.RemoveRule(ctx, i)
	case "times", "dates", "name":
		stage := map[string]conversationStage{
			"times": stageRuleTimes,
			"dates": stageRuleDates,
			"name":  stageRuleName,
		}[action]
		b.setConversation(userID, &conversationState{stage: stage, rule: i})
		return b.promptRuleField(c.id, stage)
	default:
		return nil
	}

	if err != nil {
		c.notes.Notify(err.Error(), notify.Warning)
	}
	if action == "remove" {
		return nil
	}
	return b.sendRules(c, messageID)
}

func (b *Bot) promptRuleField(chatID int64, stage conversationStage) error {
	switch stage {
	case stageRuleTimes:
		return b.sendWithReplyMarkup(chatID, "🕘 请输入时间段，格式 <code>HH:MM-HH:MM</code>，例如 <code>22:00-06:00</code>:", cancelKeyboard())
	case stageRuleDates:
		return b.sendWithReplyMarkup(chatID, "🗓 请输入日期范围，格式 <code>YYYY-MM-DD YYYY-MM-DD</code>:", cancelKeyboard())
	case stageRuleName:
		return b.sendWithReplyMarkup(chatID, "🏷 请输入规则名称，可跳过:", skipKeyboard())
	}
	return nil
}

func (b *Bot) continueRule(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	var err error
	switch state.stage {
	case stageRuleTimes:
		start, end, ok := splitRange(text, "-~至 ")
		if !ok || !validClock(start) || !validClock(end) {
			return b.retryRule(c.id, state.stage, "时间格式应为 HH:MM-HH:MM")
		}
		err = c.taskForm().Rules(func(e *exclusion.Editor) error { return e.SetTimes(state.rule, start, end) })
	case stageRuleDates:
		start, end, ok := splitRange(text, "~至 ,")
		if !ok || !validDate(start) || !validDate(end) {
			return b.retryRule(c.id, state.stage, "日期格式应为 YYYY-MM-DD YYYY-MM-DD")
		}
		err = c.taskForm().Rules(func(e *exclusion.Editor) error { return e.SetDates(state.rule, start, end) })
	case stageRuleName:
		if isSkipInput(text) {
			text = ""
		}
		err = c.taskForm().Rules(func(e *exclusion.Editor) error { return e.SetName(state.rule, text) })
	}

	b.clearConversation(msg.From.ID)
	if err != nil {
		c.notes.Notify(err.Error(), notify.Error)
	}
	c.setScreen(screenRules)
	if err := b.sendText(c.id, "👌 已记录。"); err != nil {
		log.Printf("send ack: %v", err)
	}
	return b.sendRules(c, 0)
}

func (b *Bot) retryRule(chatID int64, stage conversationStage, problem string) error {
	if err := b.sendText(chatID, "⚠️ "+problem); err != nil {
		return err
	}
	return b.promptRuleField(chatID, stage)
}

// splitRange splits "a<sep>b" on any of seps and reports whether exactly two parts remain.
func splitRange(text, seps string) (string, string, bool) {
	parts := strings.FieldsFunc(text, func(r rune) bool { return strings.ContainsRune(seps, r) })
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func validClock(s string) bool {
	_, err := time.Parse("15:04", s)
	return err == nil
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
