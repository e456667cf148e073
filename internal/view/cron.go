package view

import (
	"fmt"
	"strings"
	"time"

	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/format"
)

const previewRuns = 5

// CronBuilder shows each field, the joined expression and its next runs.
func CronBuilder(b *cronbuilder.Builder, now time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString("🛠 <b>Cron 表达式生成器</b>\n\n")
	for _, f := range cronbuilder.Fields() {
		sb.WriteString(fmt.Sprintf("%s: <code>%s</code>\n", f, format.Escape(b.Value(f))))
	}
	sb.WriteString("\n")
	sb.WriteString(CronPreview(b.Expression(), now, loc))
	return sb.String()
}

// CronPreview describes an expression and lists when it fires next.
func CronPreview(expr string, now time.Time, loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("表达式: <code>%s</code>\n说明: %s", format.Escape(expr), cronbuilder.Describe(expr)))
	if err := cronbuilder.Validate(expr); err != nil {
		sb.WriteString("\n⚠️ " + format.Escape(err.Error()))
		return sb.String()
	}
	runs, err := cronbuilder.NextRuns(expr, previewRuns, now.In(loc))
	if err != nil {
		sb.WriteString("\n⚠️ " + format.Escape(err.Error()))
		return sb.String()
	}
	sb.WriteString("\n\n接下来的执行时间:")
	for _, r := range runs {
		sb.WriteString("\n• " + format.DateTime(r, loc))
	}
	return sb.String()
}
