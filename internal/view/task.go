package view

import (
	"fmt"
	"strings"
	"time"

	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/format"
	"autobot-console/internal/model"
	"autobot-console/internal/service"
)

const (
	maxScriptPreview = 1500
	maxDescription   = 120
)

// TaskCard is the compact block shown for every task in the list.
func TaskCard(task model.Task, now time.Time, loc *time.Location) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("<b>#%d %s</b>  %s\n", task.ID, format.Escape(task.Name), format.Badge(task.Status)))

	desc := strings.TrimSpace(task.Description)
	if desc == "" {
		desc = "无描述"
	}
	b.WriteString(fmt.Sprintf("<i>%s</i>\n", format.Escape(format.Truncate(desc, maxDescription))))

	b.WriteString(fmt.Sprintf("⏰ <code>%s</code> · %s\n", format.Escape(task.CronExpr), cronbuilder.Describe(task.CronExpr)))

	lastRun := "从未执行"
	if task.LastRun != nil {
		lastRun = format.Relative(*task.LastRun, now)
	}
	b.WriteString(fmt.Sprintf("▶️ 最后执行: %s\n", lastRun))
	b.WriteString(fmt.Sprintf("📅 下次执行: %s", format.DateTimePtr(task.NextRun, loc)))
	return b.String()
}

// TaskList renders the task page with its filter and pager footer.
func TaskList(v service.TaskListView, now time.Time, loc *time.Location) string {
	switch v.State {
	case service.Loading:
		return "⏳ 正在加载任务列表..."
	case service.Failed:
		return Failed(v.Err)
	}

	if len(v.Tasks) == 0 {
		return "📭 <b>暂无任务</b>\n还没有创建任何任务，发送 /newtask 创建第一个任务吧！"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>任务列表</b> · %s · 共 %d 个\n\n", statusFilterLabel(v.Status), v.Total))
	for _, task := range v.Tasks {
		b.WriteString(TaskCard(task, now, loc))
		b.WriteString("\n\n")
	}
	if pager := NewPager(v.Page); pager.Visible() {
		b.WriteString(pager.Summary())
	}
	return strings.TrimSpace(b.String())
}

// TaskDetail shows every field including a script preview.
func TaskDetail(task model.Task, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🧩 <b>%s</b> (#%d)\n", format.Escape(task.Name), task.ID))
	b.WriteString(fmt.Sprintf("状态: %s\n", format.Badge(task.Status)))
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("描述: %s\n", format.Escape(task.Description)))
	}
	b.WriteString(fmt.Sprintf("Cron: <code>%s</code> (%s)\n", format.Escape(task.CronExpr), cronbuilder.Describe(task.CronExpr)))
	b.WriteString(fmt.Sprintf("最后执行: %s\n", format.DateTimePtr(task.LastRun, loc)))
	b.WriteString(fmt.Sprintf("下次执行: %s\n", format.DateTimePtr(task.NextRun, loc)))
	b.WriteString(fmt.Sprintf("创建时间: %s\n", format.DateTime(task.CreatedAt, loc)))
	b.WriteString(fmt.Sprintf("\n<pre>%s</pre>", format.Escape(format.Truncate(task.Script, maxScriptPreview))))
	return b.String()
}

// TaskForm summarises the form being filled in.
func TaskForm(v service.FormValues, rules string) string {
	var b strings.Builder
	if v.Editing() {
		b.WriteString(fmt.Sprintf("✏️ <b>编辑任务</b> #%d\n\n", v.ID))
	} else {
		b.WriteString("🆕 <b>创建任务</b>\n\n")
	}
	b.WriteString(fmt.Sprintf("名称: %s\n", orDash(v.Name)))
	b.WriteString(fmt.Sprintf("描述: %s\n", orDash(v.Description)))
	cron := "-"
	if v.CronExpr != "" {
		cron = fmt.Sprintf("<code>%s</code> (%s)", format.Escape(v.CronExpr), cronbuilder.Describe(v.CronExpr))
	}
	b.WriteString(fmt.Sprintf("Cron: %s\n", cron))
	b.WriteString(fmt.Sprintf("状态: %s\n", format.Badge(v.Status)))
	if rules != "" {
		b.WriteString("\n")
		b.WriteString(rules)
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n<pre>%s</pre>", format.Escape(format.Truncate(v.Script, maxScriptPreview))))
	return b.String()
}

// ValidationErrors lists the failed fields, one per line.
func ValidationErrors(errs service.ValidationErrors) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>请修正以下问题</b>")
	for _, e := range errs {
		b.WriteString("\n• ")
		b.WriteString(format.Escape(e.Message))
	}
	return b.String()
}

// ScriptCheck renders the outcome of a syntax check.
func ScriptCheck(res service.ScriptCheck) string {
	if res.Valid {
		return "✅ " + format.Escape(res.Message)
	}
	return "❌ " + format.Escape(res.Message)
}

// Failed is the error state of a list with its retry hint.
func Failed(err error) string {
	msg := "未知错误"
	if err != nil {
		msg = service.ErrorText(err)
	}
	return fmt.Sprintf("⚠️ <b>加载失败</b>\n%s", format.Escape(msg))
}

func statusFilterLabel(status string) string {
	if status == "" {
		return "全部"
	}
	return format.StatusLabel(status)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return format.Escape(s)
}
