package exclusion

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"autobot-console/internal/model"
)

func TestAddEnablesAndStartsEditing(t *testing.T) {
	e := New()
	i := e.Add()

	if !e.Enabled || !e.Visible {
		t.Fatalf("expected add to enable and reveal the list")
	}
	row := e.Rows()[i]
	ed, ok := row.Editing()
	if !ok || !ed.IsNew {
		t.Fatalf("expected new row in editing mode, got %#v", row.Mode)
	}
	if row.Rule.Type != model.RuleDaily || row.Rule.StartTime != "22:00" || row.Rule.EndTime != "06:00" {
		t.Fatalf("unexpected default rule %#v", row.Rule)
	}
}

func TestCancelNewRowRemovesIt(t *testing.T) {
	e := New()
	i := e.Add()
	if err := e.Cancel(i); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if e.Len() != 0 {
		t.Fatalf("expected new row to be discarded, got %d rows", e.Len())
	}
}

func TestCancelConfirmedRowKeepsValues(t *testing.T) {
	e := New()
	i := e.Add()
	if err := e.SetTimes(i, "01:00", "02:00"); err != nil {
		t.Fatalf("set times: %v", err)
	}
	if err := e.Confirm(i); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := e.Edit(i); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := e.SetTimes(i, "10:00", "11:00"); err != nil {
		t.Fatalf("set times: %v", err)
	}
	if err := e.Cancel(i); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	rows := e.Rows()
	if len(rows) != 1 {
		t.Fatalf("expected row to survive cancel, got %d", len(rows))
	}
	if _, ok := rows[0].Mode.(Display); !ok {
		t.Fatalf("expected display mode after cancel, got %#v", rows[0].Mode)
	}
	if rows[0].Rule.StartTime != "01:00" || rows[0].Rule.EndTime != "02:00" {
		t.Fatalf("expected committed values kept, got %s-%s", rows[0].Rule.StartTime, rows[0].Rule.EndTime)
	}
}

func TestConfirmRejectsIncompleteTime(t *testing.T) {
	for _, tc := range []struct{ start, end string }{{"", "06:00"}, {"22:00", ""}} {
		e := New()
		i := e.Add()
		if err := e.SetTimes(i, tc.start, tc.end); err != nil {
			t.Fatalf("set times: %v", err)
		}
		if err := e.Confirm(i); !errors.Is(err, ErrIncompleteTime) {
			t.Fatalf("expected ErrIncompleteTime, got %v", err)
		}
		if e.Len() != 1 {
			t.Fatalf("expected rule count unchanged, got %d", e.Len())
		}
		if _, ok := e.Rows()[i].Editing(); !ok {
			t.Fatalf("expected row to stay in edit mode")
		}
	}
}

func TestConfirmDateRangeRequiresBothDates(t *testing.T) {
	e := New()
	i := e.Add()
	if err := e.SetType(i, model.RuleDateRange); err != nil {
		t.Fatalf("set type: %v", err)
	}
	if err := e.SetDates(i, "2025-01-01", ""); err != nil {
		t.Fatalf("set dates: %v", err)
	}
	if err := e.Confirm(i); !errors.Is(err, ErrIncompleteDateRange) {
		t.Fatalf("expected ErrIncompleteDateRange, got %v", err)
	}
	if _, ok := e.Rows()[i].Editing(); !ok {
		t.Fatalf("expected row to stay editing after rejected confirm")
	}

	if err := e.SetDates(i, "2025-01-01", "2025-01-07"); err != nil {
		t.Fatalf("set dates: %v", err)
	}
	if err := e.Confirm(i); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	rule := e.Rows()[i].Rule
	if rule.StartDate != "2025-01-01" || rule.EndDate != "2025-01-07" {
		t.Fatalf("expected dates committed, got %#v", rule)
	}
}

func TestConfirmWeeklyCapturesWeekdays(t *testing.T) {
	e := New()
	i := e.Add()
	_ = e.SetType(i, model.RuleWeekly)
	_ = e.ToggleWeekday(i, 6)
	_ = e.ToggleWeekday(i, 0)
	_ = e.ToggleWeekday(i, 3)
	_ = e.ToggleWeekday(i, 3)
	if err := e.Confirm(i); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got := e.Rows()[i].Rule.Weekdays
	if len(got) != 2 || got[0] != 0 || got[1] != 6 {
		t.Fatalf("expected weekdays [0 6], got %v", got)
	}
}

func TestRemoveWorksInAnyMode(t *testing.T) {
	e := New()
	a := e.Add()
	_ = e.Confirm(a)
	e.Add()
	if err := e.Remove(1); err != nil {
		t.Fatalf("remove editing row: %v", err)
	}
	if err := e.Remove(0); err != nil {
		t.Fatalf("remove displayed row: %v", err)
	}
	if e.Len() != 0 {
		t.Fatalf("expected empty editor, got %d", e.Len())
	}
	if err := e.Remove(0); !errors.Is(err, ErrNoSuchRule) {
		t.Fatalf("expected ErrNoSuchRule, got %v", err)
	}
}

func TestMarshalConfigStripsRowState(t *testing.T) {
	e := New()
	i := e.Add()
	_ = e.Confirm(i)
	_ = e.Edit(i)
	_ = e.SetTimes(i, "08:00", "09:00")
	e.Add()

	raw, err := e.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, leaked := range []string{"Draft", "IsNew", "_isEditing", "_isNew", "Mode"} {
		if strings.Contains(raw, leaked) {
			t.Fatalf("expected no UI state in %s", raw)
		}
	}

	var cfg model.TimeExclusionConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !cfg.Enabled || len(cfg.ExclusionRules) != 2 {
		t.Fatalf("expected both rules, got %#v", cfg)
	}
	if cfg.ExclusionRules[0].StartTime != "22:00" {
		t.Fatalf("expected committed value, not draft, got %s", cfg.ExclusionRules[0].StartTime)
	}
	if r := cfg.ExclusionRules[1]; r.Type != model.RuleDaily || r.StartTime != "22:00" || r.EndTime != "06:00" {
		t.Fatalf("expected the added default rule, got %#v", r)
	}
}

func TestMarshalConfigKeepsJustAddedRule(t *testing.T) {
	e := New()
	e.Add()

	var cfg model.TimeExclusionConfig
	raw, err := e.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !cfg.Enabled || len(cfg.ExclusionRules) != 1 || cfg.ExclusionRules[0].StartTime != "22:00" {
		t.Fatalf("expected the default 22:00-06:00 rule, got %s", raw)
	}
}

func TestRemoveIDFollowsShiftedRows(t *testing.T) {
	e := New()
	raw := `{"enabled":true,"exclusion_rules":[` +
		`{"type":"daily","name":"A","start_time":"01:00","end_time":"02:00"},` +
		`{"type":"daily","name":"B","start_time":"03:00","end_time":"04:00"},` +
		`{"type":"daily","name":"C","start_time":"05:00","end_time":"06:00"}]}`
	if err := e.Load(raw); err != nil {
		t.Fatalf("load: %v", err)
	}
	id := e.Rows()[1].ID

	if err := e.Remove(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := e.RemoveID(id); err != nil {
		t.Fatalf("remove by id: %v", err)
	}

	rows := e.Rows()
	if len(rows) != 1 || rows[0].Rule.Name != "C" {
		t.Fatalf("expected only C to remain, got %#v", rows)
	}
	if err := e.RemoveID(id); !errors.Is(err, ErrNoSuchRule) {
		t.Fatalf("expected ErrNoSuchRule for a removed row, got %v", err)
	}
}

func TestLoadShowsRowsInDisplayMode(t *testing.T) {
	raw := `{"enabled":false,"exclusion_rules":[{"type":"weekly","start_time":"12:00","end_time":"13:00","weekdays":[1,2]}]}`
	e := New()
	if err := e.Load(raw); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !e.Visible || e.Enabled {
		t.Fatalf("expected visible but disabled list, got enabled=%t visible=%t", e.Enabled, e.Visible)
	}
	if !e.Dimmed() {
		t.Fatalf("expected disabled list to be dimmed")
	}
	for _, row := range e.Rows() {
		if _, ok := row.Mode.(Display); !ok {
			t.Fatalf("expected display mode after load")
		}
	}

	again, err := e.MarshalConfig()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var cfg model.TimeExclusionConfig
	_ = json.Unmarshal([]byte(again), &cfg)
	if len(cfg.ExclusionRules) != 1 || cfg.ExclusionRules[0].Weekdays[1] != 2 {
		t.Fatalf("expected rules preserved, got %#v", cfg)
	}
}

func TestLoadEmptyConfig(t *testing.T) {
	e := New()
	if err := e.Load(""); err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if e.Visible || e.Enabled || e.Len() != 0 {
		t.Fatalf("expected hidden empty editor")
	}
	if err := e.Load("{broken"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestUpdateRequiresEditing(t *testing.T) {
	e := New()
	i := e.Add()
	_ = e.Confirm(i)
	if err := e.SetTimes(i, "00:00", "01:00"); !errors.Is(err, ErrNotEditing) {
		t.Fatalf("expected ErrNotEditing, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	r := model.TimeExclusionRule{Type: model.RuleWeekly, StartTime: "09:00", EndTime: "18:00"}
	if got := Summary(r); got != "每周 09:00-18:00" {
		t.Fatalf("unexpected summary %q", got)
	}
	if WeekdayName(0) != "周日" || WeekdayName(6) != "周六" {
		t.Fatalf("unexpected weekday names")
	}
}
