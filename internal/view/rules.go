package view

import (
	"fmt"
	"strings"

	"autobot-console/internal/exclusion"
	"autobot-console/internal/format"
	"autobot-console/internal/model"
)

func ruleIcon(ruleType string) string {
	switch ruleType {
	case model.RuleWeekly:
		return "📅"
	case model.RuleDateRange:
		return "🗓"
	default:
		return "🕘"
	}
}

// RuleText describes one exclusion window in a single line.
func RuleText(r model.TimeExclusionRule) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s", ruleIcon(r.Type), exclusion.TypeLabel(r.Type)))
	if r.Name != "" {
		b.WriteString(fmt.Sprintf(" · %s", format.Escape(r.Name)))
	}
	b.WriteString(fmt.Sprintf(" %s - %s", r.StartTime, r.EndTime))

	switch r.Type {
	case model.RuleWeekly:
		days := make([]string, 0, len(r.Weekdays))
		for _, d := range r.Weekdays {
			days = append(days, exclusion.WeekdayName(d))
		}
		if len(days) == 0 {
			days = append(days, "未选择")
		}
		b.WriteString(" · " + strings.Join(days, "、"))
	case model.RuleDateRange:
		b.WriteString(fmt.Sprintf(" · %s 至 %s", r.StartDate, r.EndDate))
	}
	return b.String()
}

// RuleRow renders a row, showing the draft while it is being edited.
func RuleRow(i int, row exclusion.Row) string {
	if editing, ok := row.Editing(); ok {
		marker := "✏️ 编辑中"
		if editing.IsNew {
			marker = "🆕 新规则"
		}
		return fmt.Sprintf("%d. %s <i>(%s)</i>", i+1, RuleText(editing.Draft), marker)
	}
	return fmt.Sprintf("%d. %s", i+1, RuleText(row.Rule))
}

// RuleList is the exclusion block of the task form. It is empty when the
// feature is hidden.
func RuleList(rows []exclusion.Row, enabled, visible bool) string {
	if !visible {
		return ""
	}
	var b strings.Builder
	if enabled {
		b.WriteString("⛔ <b>时间排除规则</b> · 已启用")
	} else {
		b.WriteString("⛔ <b>时间排除规则</b> · 已停用（规则暂不生效）")
	}
	if len(rows) == 0 {
		b.WriteString("\n暂无规则")
		return b.String()
	}
	for i, row := range rows {
		b.WriteString("\n")
		line := RuleRow(i, row)
		if !enabled {
			line = "<s>" + line + "</s>"
		}
		b.WriteString(line)
	}
	return b.String()
}
