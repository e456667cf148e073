// Package format holds the display helpers shared by every view.
package format

import (
	"fmt"
	"html"
	"time"
)

const dateTimeLayout = "2006/01/02 15:04:05"

// DateTime formats t in loc, or "-" for the zero time.
func DateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(dateTimeLayout)
}

// DateTimePtr is DateTime for optional timestamps.
func DateTimePtr(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return DateTime(*t, loc)
}

// Relative renders how long ago t was, relative to now.
func Relative(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	diff := now.Sub(t)
	seconds := int64(diff / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%d天前", days)
	case hours > 0:
		return fmt.Sprintf("%d小时前", hours)
	case minutes > 0:
		return fmt.Sprintf("%d分钟前", minutes)
	default:
		return "刚刚"
	}
}

// Duration renders a millisecond count as "1h 2m 3s", "2m 3s" or "3s".
func Duration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes%60, seconds%60)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Escape escapes text for Telegram HTML messages.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Truncate cuts s to maxLen runes and appends "...".
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// StatusLabel maps task and log statuses to their display label.
func StatusLabel(status string) string {
	switch status {
	case "active":
		return "已激活"
	case "inactive":
		return "未激活"
	case "success":
		return "成功"
	case "execution_failed":
		return "执行失败"
	case "script_failed":
		return "脚本错误"
	case "failed":
		return "失败"
	case "running":
		return "运行中"
	case "":
		return "未知"
	default:
		return status
	}
}

// StatusIcon is the colored dot shown next to a status label.
func StatusIcon(status string) string {
	switch status {
	case "active", "success":
		return "🟢"
	case "execution_failed", "failed":
		return "🔴"
	case "script_failed":
		return "🟠"
	case "running":
		return "🔵"
	default:
		return "⚪"
	}
}

// Badge combines icon and label.
func Badge(status string) string {
	return StatusIcon(status) + " " + StatusLabel(status)
}
