// Package exclusion edits the time-exclusion rules attached to a task.
//
// Each row is either displayed or being edited. Edits go to a draft that is
// committed on Confirm and dropped on Cancel, so row state never leaks into the
// serialized config.
package exclusion

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"autobot-console/internal/model"
)

var (
	ErrIncompleteTime      = errors.New("请设置完整的时间段")
	ErrIncompleteDateRange = errors.New("请设置完整的日期范围")
	ErrNoSuchRule          = errors.New("规则不存在")
	ErrNotEditing          = errors.New("规则未处于编辑状态")
)

// Mode is the row-level state: Display or Editing.
type Mode interface {
	isMode()
}

// Display shows the committed rule read-only.
type Display struct{}

// Editing holds the uncommitted draft of a row.
type Editing struct {
	IsNew bool
	Draft model.TimeExclusionRule
}

func (Display) isMode()  {}
func (*Editing) isMode() {}

// Row pairs a committed rule with its mode. ID stays fixed while other rows
// come and go.
type Row struct {
	ID   uint64
	Rule model.TimeExclusionRule
	Mode Mode
}

// Editing reports whether the row is in edit mode.
func (r Row) Editing() (*Editing, bool) {
	e, ok := r.Mode.(*Editing)
	return e, ok
}

// Editor is the in-memory rule list of one task form.
type Editor struct {
	Enabled bool
	Visible bool
	rows    []Row
	seq     uint64
}

// New returns an empty, disabled editor.
func New() *Editor {
	return &Editor{}
}

// Rows returns a snapshot of all rows.
func (e *Editor) Rows() []Row {
	out := make([]Row, len(e.rows))
	copy(out, e.rows)
	return out
}

func (e *Editor) Len() int {
	return len(e.rows)
}

// Dimmed reports a visible list whose rules are currently switched off.
func (e *Editor) Dimmed() bool {
	return e.Visible && !e.Enabled
}

// SetEnabled toggles the feature without discarding rules.
func (e *Editor) SetEnabled(enabled bool) {
	e.Enabled = enabled
	if enabled || len(e.rows) > 0 {
		e.Visible = true
	} else {
		e.Visible = false
	}
}

// Add appends a daily 22:00-06:00 rule in edit mode and switches the feature on.
func (e *Editor) Add() int {
	rule := model.TimeExclusionRule{
		Type:      model.RuleDaily,
		StartTime: "22:00",
		EndTime:   "06:00",
		Weekdays:  []int{},
	}
	e.seq++
	e.rows = append(e.rows, Row{
		ID:   e.seq,
		Rule: rule,
		Mode: &Editing{IsNew: true, Draft: cloneRule(rule)},
	})
	e.Enabled = true
	e.Visible = true
	return len(e.rows) - 1
}

// Edit switches a displayed row to edit mode. Rows already editing keep their draft.
func (e *Editor) Edit(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	if _, ok := e.rows[i].Editing(); ok {
		return nil
	}
	e.rows[i].Mode = &Editing{Draft: cloneRule(e.rows[i].Rule)}
	return nil
}

// Update mutates the draft of an editing row.
func (e *Editor) Update(i int, fn func(draft *model.TimeExclusionRule)) error {
	if err := e.check(i); err != nil {
		return err
	}
	ed, ok := e.rows[i].Editing()
	if !ok {
		return ErrNotEditing
	}
	fn(&ed.Draft)
	return nil
}

func (e *Editor) SetType(i int, ruleType string) error {
	switch ruleType {
	case model.RuleDaily, model.RuleWeekly, model.RuleDateRange:
	default:
		return fmt.Errorf("unknown rule type %q", ruleType)
	}
	return e.Update(i, func(d *model.TimeExclusionRule) { d.Type = ruleType })
}

func (e *Editor) SetTimes(i int, start, end string) error {
	return e.Update(i, func(d *model.TimeExclusionRule) {
		d.StartTime = strings.TrimSpace(start)
		d.EndTime = strings.TrimSpace(end)
	})
}

func (e *Editor) SetDates(i int, start, end string) error {
	return e.Update(i, func(d *model.TimeExclusionRule) {
		d.StartDate = strings.TrimSpace(start)
		d.EndDate = strings.TrimSpace(end)
	})
}

func (e *Editor) SetName(i int, name string) error {
	return e.Update(i, func(d *model.TimeExclusionRule) { d.Name = strings.TrimSpace(name) })
}

// ToggleWeekday flips one weekday (0 = Sunday) in the draft.
func (e *Editor) ToggleWeekday(i, day int) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("invalid weekday %d", day)
	}
	return e.Update(i, func(d *model.TimeExclusionRule) {
		for idx, existing := range d.Weekdays {
			if existing == day {
				d.Weekdays = append(d.Weekdays[:idx], d.Weekdays[idx+1:]...)
				return
			}
		}
		d.Weekdays = append(d.Weekdays, day)
		sort.Ints(d.Weekdays)
	})
}

// Confirm validates the draft and commits it. A rejected confirm leaves the row editing.
func (e *Editor) Confirm(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	ed, ok := e.rows[i].Editing()
	if !ok {
		return ErrNotEditing
	}
	draft := ed.Draft
	if draft.StartTime == "" || draft.EndTime == "" {
		return ErrIncompleteTime
	}

	committed := e.rows[i].Rule
	committed.Type = draft.Type
	committed.Name = draft.Name
	committed.StartTime = draft.StartTime
	committed.EndTime = draft.EndTime

	switch draft.Type {
	case model.RuleWeekly:
		committed.Weekdays = append([]int{}, draft.Weekdays...)
	case model.RuleDateRange:
		if draft.StartDate == "" || draft.EndDate == "" {
			return ErrIncompleteDateRange
		}
		committed.StartDate = draft.StartDate
		committed.EndDate = draft.EndDate
	}

	e.rows[i] = Row{ID: e.rows[i].ID, Rule: committed, Mode: Display{}}
	return nil
}

// Cancel drops a never-confirmed row, or returns an existing row to display
// mode with its committed values.
func (e *Editor) Cancel(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	ed, ok := e.rows[i].Editing()
	if !ok {
		return nil
	}
	if ed.IsNew {
		e.rows = append(e.rows[:i], e.rows[i+1:]...)
		return nil
	}
	e.rows[i].Mode = Display{}
	return nil
}

// Remove deletes a row regardless of its mode.
func (e *Editor) Remove(i int) error {
	if err := e.check(i); err != nil {
		return err
	}
	e.rows = append(e.rows[:i], e.rows[i+1:]...)
	return nil
}

// IndexOf returns the current position of the row with the given ID.
func (e *Editor) IndexOf(id uint64) (int, bool) {
	for i, row := range e.rows {
		if row.ID == id {
			return i, true
		}
	}
	return -1, false
}

// RemoveID deletes the row with the given ID wherever it is now.
func (e *Editor) RemoveID(id uint64) error {
	i, ok := e.IndexOf(id)
	if !ok {
		return ErrNoSuchRule
	}
	return e.Remove(i)
}

// Config returns the rule of every row. A row still being edited contributes
// its committed values; a new row contributes the defaults it was added with.
func (e *Editor) Config() model.TimeExclusionConfig {
	cfg := model.TimeExclusionConfig{
		Enabled:        e.Enabled,
		ExclusionRules: make([]model.TimeExclusionRule, 0, len(e.rows)),
	}
	for _, row := range e.rows {
		cfg.ExclusionRules = append(cfg.ExclusionRules, cloneRule(row.Rule))
	}
	return cfg
}

// MarshalConfig renders the config as stored in Task.TimeExclusionConfig.
func (e *Editor) MarshalConfig() (string, error) {
	data, err := json.Marshal(e.Config())
	if err != nil {
		return "", fmt.Errorf("marshal exclusion config: %w", err)
	}
	return string(data), nil
}

// Load replaces the editor content from a stored config. Every row starts displayed.
func (e *Editor) Load(raw string) error {
	var cfg model.TimeExclusionConfig
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return fmt.Errorf("parse exclusion config: %w", err)
		}
	}
	e.rows = make([]Row, 0, len(cfg.ExclusionRules))
	for _, rule := range cfg.ExclusionRules {
		e.seq++
		e.rows = append(e.rows, Row{ID: e.seq, Rule: rule, Mode: Display{}})
	}
	e.Enabled = cfg.Enabled
	e.Visible = cfg.Enabled || len(cfg.ExclusionRules) > 0
	return nil
}

// PendingEdits counts rows still in edit mode.
func (e *Editor) PendingEdits() int {
	n := 0
	for _, row := range e.rows {
		if _, ok := row.Editing(); ok {
			n++
		}
	}
	return n
}

func (e *Editor) check(i int) error {
	if i < 0 || i >= len(e.rows) {
		return ErrNoSuchRule
	}
	return nil
}

func cloneRule(r model.TimeExclusionRule) model.TimeExclusionRule {
	if r.Weekdays != nil {
		r.Weekdays = append([]int{}, r.Weekdays...)
	}
	return r
}

var weekdayNames = [7]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// WeekdayName returns the short Chinese name for 0 (Sunday) through 6.
func WeekdayName(day int) string {
	if day < 0 || day > 6 {
		return "?"
	}
	return weekdayNames[day]
}

// TypeLabel names a rule type the way the form offers it.
func TypeLabel(ruleType string) string {
	switch ruleType {
	case model.RuleDaily:
		return "每日"
	case model.RuleWeekly:
		return "每周"
	case model.RuleDateRange:
		return "日期范围"
	default:
		return ruleType
	}
}

// Summary is the short "<type> start-end" text used when asking to remove a rule.
func Summary(r model.TimeExclusionRule) string {
	return fmt.Sprintf("%s %s-%s", TypeLabel(r.Type), r.StartTime, r.EndTime)
}
