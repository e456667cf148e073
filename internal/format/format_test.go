package format

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "-"},
		{-10, "-"},
		{999, "0s"},
		{45_000, "45s"},
		{125_000, "2m 5s"},
		{3_725_000, "1h 2m 5s"},
	}
	for _, tc := range cases {
		if got := Duration(tc.ms); got != tc.want {
			t.Fatalf("Duration(%d): expected %q, got %q", tc.ms, tc.want, got)
		}
	}
}

func TestRelative(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "刚刚"},
		{now.Add(-5 * time.Minute), "5分钟前"},
		{now.Add(-3 * time.Hour), "3小时前"},
		{now.Add(-50 * time.Hour), "2天前"},
		{time.Time{}, "-"},
	}
	for _, tc := range cases {
		if got := Relative(tc.at, now); got != tc.want {
			t.Fatalf("Relative(%v): expected %q, got %q", tc.at, tc.want, got)
		}
	}
}

func TestDateTime(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := DateTime(ts, time.UTC); got != "2025/01/02 03:04:05" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := DateTimePtr(nil, time.UTC); got != "-" {
		t.Fatalf("expected dash for nil, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("短文本", 100); got != "短文本" {
		t.Fatalf("expected untouched text, got %q", got)
	}
	if got := Truncate("日志输出内容", 2); got != "日志..." {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"active":           "已激活",
		"success":          "成功",
		"execution_failed": "执行失败",
		"script_failed":    "脚本错误",
		"failed":           "失败",
		"running":          "运行中",
		"":                 "未知",
		"paused":           "paused",
	}
	for status, want := range cases {
		if got := StatusLabel(status); got != want {
			t.Fatalf("StatusLabel(%q): expected %q, got %q", status, want, got)
		}
	}
}

func TestEscape(t *testing.T) {
	if got := Escape(`<b>"x"</b>`); got != "&lt;b&gt;&#34;x&#34;&lt;/b&gt;" {
		t.Fatalf("unexpected escape %q", got)
	}
}
