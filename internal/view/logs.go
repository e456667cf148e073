package view

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autobot-console/internal/format"
	"autobot-console/internal/model"
	"autobot-console/internal/service"
)

const maxOutput = 1500

// TaskName falls back to "任务 N" when the log carries no task.
func TaskName(l model.TaskLog) string {
	if l.Task.Name != "" {
		return l.Task.Name
	}
	return fmt.Sprintf("任务 %d", l.TaskID)
}

// LogRow is one line of the log list.
func LogRow(l model.TaskLog, now time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s · <b>%s</b> (ID: %d)\n   🕒 %s · ⏱ %s · %s  /log_%d",
		format.Badge(l.Status),
		format.Escape(TaskName(l)),
		l.TaskID,
		format.DateTime(l.StartTime, loc),
		format.Duration(l.Duration),
		format.Relative(l.StartTime, now),
		l.ID,
	)
}

// LogList renders the logs page with its active filters.
func LogList(v service.LogsView, now time.Time, loc *time.Location) string {
	switch v.State {
	case service.Loading:
		return "⏳ 正在加载日志..."
	case service.Failed:
		return Failed(v.Err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📜 <b>执行日志</b> · 共 %d 条\n", v.Total))
	if filters := filterSummary(v.Filters, v.Tasks); filters != "" {
		b.WriteString(filters)
		b.WriteString("\n")
	}
	if len(v.Skipped) > 0 {
		ids := make([]string, 0, len(v.Skipped))
		for _, id := range v.Skipped {
			ids = append(ids, fmt.Sprint(id))
		}
		b.WriteString(fmt.Sprintf("⚠️ 以下任务的日志加载失败: %s\n", strings.Join(ids, ", ")))
	}
	b.WriteString("\n")

	if len(v.Logs) == 0 {
		b.WriteString("📭 <b>暂无日志</b>\n还没有任务执行日志")
		return b.String()
	}
	for _, l := range v.Logs {
		b.WriteString(LogRow(l, now, loc))
		b.WriteString("\n")
	}
	if pager := NewPager(v.Page); pager.Visible() {
		b.WriteString("\n")
		b.WriteString(pager.Summary())
	}
	return strings.TrimSpace(b.String())
}

func filterSummary(f service.LogFilters, tasks []model.Task) string {
	var parts []string
	if f.TaskID != 0 {
		name := fmt.Sprintf("任务 %d", f.TaskID)
		for _, t := range tasks {
			if t.ID == f.TaskID {
				name = t.Name
				break
			}
		}
		parts = append(parts, "任务: "+format.Escape(name))
	}
	if f.Status != "" {
		parts = append(parts, "状态: "+format.StatusLabel(f.Status))
	}
	if f.Date != "" {
		parts = append(parts, "日期: "+format.Escape(f.Date))
	}
	if len(parts) == 0 {
		return ""
	}
	return "🔎 " + strings.Join(parts, " · ")
}

// LogDetail shows one execution with its output and error streams.
func LogDetail(l model.TaskLog, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📄 <b>日志详情</b> #%d\n\n", l.ID))
	b.WriteString(fmt.Sprintf("任务名称: %s\n", format.Escape(TaskName(l))))
	b.WriteString(fmt.Sprintf("状态: %s\n", format.Badge(l.Status)))
	b.WriteString(fmt.Sprintf("开始时间: %s\n", format.DateTime(l.StartTime, loc)))
	b.WriteString(fmt.Sprintf("结束时间: %s\n", format.DateTime(l.EndTime, loc)))
	b.WriteString(fmt.Sprintf("执行时长: %s\n", format.Duration(l.Duration)))

	if l.Output != "" {
		b.WriteString(fmt.Sprintf("\n💻 <b>标准输出</b>\n<pre>%s</pre>\n", format.Escape(format.Truncate(l.Output, maxOutput))))
	}
	if l.Error != "" {
		b.WriteString(fmt.Sprintf("\n⚠️ <b>错误输出</b>\n<pre>%s</pre>\n", format.Escape(format.Truncate(l.Error, maxOutput))))
	}
	return strings.TrimSpace(b.String())
}

// Stats renders the log and Bark storage overview.
func Stats(s service.Stats, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📊 <b>任务日志统计</b>\n")
	b.WriteString(fmt.Sprintf("总日志数: %d（最多 %d 条）\n", s.Log.TotalLogs, s.Log.MaxTotalLogs))
	b.WriteString(fmt.Sprintf("单任务限制: %d\n", s.Log.MaxLogsPerTask))
	b.WriteString(fmt.Sprintf("存储使用率: %d%%\n\n", s.LogUsage()))

	b.WriteString("🔔 <b>Bark通知统计</b>\n")
	b.WriteString(fmt.Sprintf("总通知数: %d（最多 %d 条）\n", s.Bark.TotalRecords, s.Bark.MaxRecords))
	b.WriteString(fmt.Sprintf("发送成功: %d\n", s.Bark.SuccessRecords))
	b.WriteString(fmt.Sprintf("跳过/失败: %d\n", s.BarkSkippedOrFailed()))
	b.WriteString(fmt.Sprintf("存储使用率: %d%%\n", s.BarkUsage()))

	if s.Log.TotalLogs > 0 || s.Bark.TotalRecords > 0 {
		b.WriteString("\n🕰 <b>时间范围</b>\n")
		if s.Log.TotalLogs > 0 {
			b.WriteString(fmt.Sprintf("任务日志: %s 至 %s\n", format.DateTimePtr(s.Log.OldestLog, loc), format.DateTimePtr(s.Log.NewestLog, loc)))
		}
		if s.Bark.TotalRecords > 0 {
			b.WriteString(fmt.Sprintf("通知记录: %s 至 %s\n", format.DateTimePtr(s.Bark.OldestRecord, loc), format.DateTimePtr(s.Bark.NewestRecord, loc)))
		}
	}
	return strings.TrimSpace(b.String())
}

// TaskResult pretty-prints the latest successful result of a task.
func TaskResult(res *model.TaskResult, loc *time.Location) string {
	body, err := json.MarshalIndent(res.Result, "", "  ")
	if err != nil {
		body = []byte(fmt.Sprint(res.Result))
	}
	return fmt.Sprintf("📦 <b>最新执行结果</b> · 任务 #%d · 日志 #%d\n%s\n<pre>%s</pre>",
		res.TaskID, res.LogID,
		format.DateTime(res.CreatedAt, loc),
		format.Escape(format.Truncate(string(body), maxOutput)),
	)
}
