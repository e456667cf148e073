package view

import (
	"errors"
	"strings"
	"testing"
	"time"

	"autobot-console/internal/api"
	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/exclusion"
	"autobot-console/internal/model"
	"autobot-console/internal/service"
)

var (
	testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	utc     = time.UTC
)

func TestTaskCard(t *testing.T) {
	last := testNow.Add(-2 * time.Hour)
	card := TaskCard(model.Task{
		ID:       7,
		Name:     "<备份>",
		CronExpr: "0 0 2 * * *",
		Status:   model.StatusActive,
		LastRun:  &last,
	}, testNow, utc)

	for _, want := range []string{"#7 &lt;备份&gt;", "无描述", "每天凌晨2点执行", "2小时前", "下次执行: -", "🟢 已激活"} {
		if !strings.Contains(card, want) {
			t.Fatalf("expected %q in card:\n%s", want, card)
		}
	}

	never := TaskCard(model.Task{Name: "x"}, testNow, utc)
	if !strings.Contains(never, "从未执行") {
		t.Fatalf("expected never-run label, got:\n%s", never)
	}
}

func TestTaskListStates(t *testing.T) {
	if got := TaskList(service.TaskListView{State: service.Loading}, testNow, utc); !strings.Contains(got, "正在加载") {
		t.Fatalf("unexpected loading text %q", got)
	}

	failed := TaskList(service.TaskListView{State: service.Failed, Err: &api.HTTPError{Status: 500, Message: "数据库错误"}}, testNow, utc)
	if !strings.Contains(failed, "数据库错误") {
		t.Fatalf("expected server message, got %q", failed)
	}

	empty := TaskList(service.TaskListView{State: service.Loaded}, testNow, utc)
	if !strings.Contains(empty, "暂无任务") {
		t.Fatalf("expected empty state, got %q", empty)
	}

	v := service.TaskListView{
		State:  service.Loaded,
		Status: model.StatusInactive,
		Tasks:  []model.Task{{ID: 1, Name: "a"}},
		Page:   model.Page{Total: 20, Page: 2, Limit: 12},
	}
	got := TaskList(v, testNow, utc)
	if !strings.Contains(got, "未激活 · 共 20 个") || !strings.Contains(got, "第 2 页，共 2 页") {
		t.Fatalf("unexpected list:\n%s", got)
	}
}

func TestLogList(t *testing.T) {
	v := service.LogsView{
		State:   service.Loaded,
		Filters: service.LogFilters{TaskID: 2, Status: "failed", Date: "2024-03-10"},
		Tasks:   []model.Task{{ID: 2, Name: "报表"}},
		Skipped: []uint{4, 5},
		Logs: []model.TaskLog{{
			ID:        11,
			TaskID:    9,
			Status:    "failed",
			StartTime: testNow.Add(-5 * time.Minute),
			Duration:  65000,
		}},
		Page: model.Page{Total: 1, Page: 1, Limit: 12},
	}
	got := LogList(v, testNow, utc)
	for _, want := range []string{"任务: 报表", "状态: 失败", "日期: 2024-03-10", "4, 5", "任务 9", "1m 5s", "5分钟前", "/log_11"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in:\n%s", want, got)
		}
	}

	empty := LogList(service.LogsView{State: service.Loaded}, testNow, utc)
	if !strings.Contains(empty, "暂无日志") {
		t.Fatalf("expected empty state, got %q", empty)
	}
}

func TestLogDetailTruncatesAndEscapes(t *testing.T) {
	got := LogDetail(model.TaskLog{
		ID:     3,
		Task:   model.Task{Name: "a"},
		Status: "success",
		Output: strings.Repeat("x", maxOutput+10),
		Error:  "<oops>",
	}, utc)
	if !strings.Contains(got, strings.Repeat("x", maxOutput)+"...") {
		t.Fatalf("expected truncated output")
	}
	if !strings.Contains(got, "&lt;oops&gt;") {
		t.Fatalf("expected escaped error, got:\n%s", got)
	}
}

func TestStats(t *testing.T) {
	oldest := testNow.Add(-48 * time.Hour)
	got := Stats(service.Stats{
		Log:  model.LogStats{TotalLogs: 250, MaxTotalLogs: 1000, MaxLogsPerTask: 100, OldestLog: &oldest, NewestLog: &testNow},
		Bark: model.BarkStats{TotalRecords: 10, SuccessRecords: 7, MaxRecords: 0},
	}, utc)
	for _, want := range []string{"总日志数: 250（最多 1000 条）", "存储使用率: 25%", "跳过/失败: 3", "存储使用率: 0%", "2024/03/08 12:00:00 至 2024/03/10 12:00:00"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in:\n%s", want, got)
		}
	}
}

func TestTaskResult(t *testing.T) {
	got := TaskResult(&model.TaskResult{TaskID: 1, LogID: 2, Result: map[string]any{"ok": true}}, utc)
	if !strings.Contains(got, "&#34;ok&#34;: true") {
		t.Fatalf("expected pretty JSON, got:\n%s", got)
	}
}

func TestRuleList(t *testing.T) {
	e := exclusion.New()
	i := e.Add()
	if err := e.Confirm(i); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	j := e.Add()
	_ = e.SetType(j, model.RuleWeekly)
	_ = e.ToggleWeekday(j, 1)
	_ = e.ToggleWeekday(j, 3)

	got := RuleList(e.Rows(), e.Enabled, e.Visible)
	for _, want := range []string{"已启用", "1. 🕘 每日 22:00 - 06:00", "2. 📅 每周", "周一、周三", "新规则"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in:\n%s", want, got)
		}
	}

	e.SetEnabled(false)
	dimmed := RuleList(e.Rows(), e.Enabled, e.Visible)
	if !strings.Contains(dimmed, "已停用") || !strings.Contains(dimmed, "<s>") {
		t.Fatalf("expected dimmed list, got:\n%s", dimmed)
	}

	if got := RuleList(nil, false, false); got != "" {
		t.Fatalf("expected hidden list, got %q", got)
	}
}

func TestRuleTextDateRange(t *testing.T) {
	got := RuleText(model.TimeExclusionRule{
		Type:      model.RuleDateRange,
		StartTime: "00:00",
		EndTime:   "23:59",
		StartDate: "2024-10-01",
		EndDate:   "2024-10-07",
	})
	if got != "🗓 日期范围 00:00 - 23:59 · 2024-10-01 至 2024-10-07" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestDeviceRowServer(t *testing.T) {
	got := DeviceRow(model.BarkDevice{ID: 1, Name: "iPhone", DeviceKey: "abc", Status: model.StatusActive, IsDefault: true}, utc)
	if !strings.Contains(got, "默认服务器") || !strings.Contains(got, "⭐ 默认") {
		t.Fatalf("unexpected row %q", got)
	}
	got = DeviceRow(model.BarkDevice{ID: 2, Name: "iPad", ServerID: 3, Server: model.BarkServer{Name: "自建"}}, utc)
	if !strings.Contains(got, "自建") {
		t.Fatalf("expected server name, got %q", got)
	}
}

func TestServerTableFailed(t *testing.T) {
	got := ServerTable(service.TableView[model.BarkServer]{State: service.Failed, Err: errors.New("boom")}, utc)
	if !strings.Contains(got, "加载失败") || !strings.Contains(got, "boom") {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestTaskBarkSettings(t *testing.T) {
	v := service.TaskBarkView{
		State:   service.Loaded,
		Task:    model.Task{Name: "汇率<日报>"},
		Config:  model.TaskBarkConfig{SelectedDeviceIDs: []uint{1, 9}, Title: "今日 $rate", Level: model.BarkLevelPassive},
		Devices: []model.BarkDevice{{ID: 1, Name: "iPhone"}, {ID: 2, Name: "iPad"}},
		Keys:    []string{"rate"},
		Dirty:   true,
	}
	got := TaskBarkSettings(v)
	for _, want := range []string{"汇率&lt;日报&gt;", "设备: iPhone、1 个已停用设备", "标题: 今日 $rate", "级别: 静默通知", "<code>$rate</code>", "未保存"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in:\n%s", want, got)
		}
	}

	got = TaskBarkSettings(service.TaskBarkView{State: service.Loaded, HasResult: true})
	if !strings.Contains(got, "设备: 默认设备") || !strings.Contains(got, "暂无可用变量") {
		t.Fatalf("unexpected empty settings:\n%s", got)
	}
}

func TestBarkRecordRowShowsError(t *testing.T) {
	got := BarkRecordRow(model.BarkRecord{Title: "t", DeviceKey: "k", Status: "failed", ErrorMessage: "timeout"}, utc)
	if !strings.Contains(got, "🔴") || !strings.Contains(got, "❌ timeout") {
		t.Fatalf("unexpected row %q", got)
	}
}

func TestCronPreview(t *testing.T) {
	got := CronPreview("0 0 9 * * 1-5", testNow, utc)
	// 2024-03-10 is a Sunday.
	if !strings.Contains(got, "工作日上午9点执行") || !strings.Contains(got, "2024/03/11 09:00:00") {
		t.Fatalf("unexpected preview:\n%s", got)
	}

	bad := CronPreview("0 * *", testNow, utc)
	if !strings.Contains(bad, "6个字段") {
		t.Fatalf("expected field count error, got:\n%s", bad)
	}

	b := cronbuilder.New("")
	if !strings.Contains(CronBuilder(b, testNow, utc), "<code>0 * * * * *</code>") {
		t.Fatalf("expected default expression")
	}
}
