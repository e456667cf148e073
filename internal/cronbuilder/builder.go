// Package cronbuilder assembles and explains six-field cron expressions
// (second minute hour day-of-month month weekday).
package cronbuilder

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Field indexes a position in the expression.
type Field int

const (
	Seconds Field = iota
	Minutes
	Hours
	Days
	Months
	Weekdays
	fieldCount
)

var fieldNames = [fieldCount]string{"秒", "分", "时", "日", "月", "周"}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "?"
	}
	return fieldNames[f]
}

// Fields lists every field in expression order.
func Fields() []Field {
	return []Field{Seconds, Minutes, Hours, Days, Months, Weekdays}
}

var presets = [fieldCount][]string{
	Seconds:  {"0", "*/10", "*/30", "*"},
	Minutes:  {"*", "0", "*/5", "*/10", "*/15", "*/30"},
	Hours:    {"*", "0", "2", "9", "*/6", "*/12"},
	Days:     {"*", "1", "15", "?"},
	Months:   {"*", "1", "*/3"},
	Weekdays: {"*", "0", "1-5", "6,0"},
}

var descriptions = map[string]string{
	"0 * * * * *":    "每分钟执行一次",
	"0 */5 * * * *":  "每5分钟执行一次",
	"0 */10 * * * *": "每10分钟执行一次",
	"0 */15 * * * *": "每15分钟执行一次",
	"0 */30 * * * *": "每30分钟执行一次",
	"0 0 * * * *":    "每小时执行一次",
	"0 0 */6 * * *":  "每6小时执行一次",
	"0 0 */12 * * *": "每12小时执行一次",
	"0 0 0 * * *":    "每天执行一次",
	"0 0 2 * * *":    "每天凌晨2点执行",
	"0 0 9 * * 1-5":  "工作日上午9点执行",
	"0 0 0 * * 0":    "每周日执行",
	"0 0 0 1 * *":    "每月1号执行",
}

const customDescription = "自定义执行周期"

// Builder holds one value per field. Empty values fall back to "0" for
// seconds and "*" for everything else.
type Builder struct {
	values [fieldCount]string
}

// New returns a builder preloaded from expr when it has six fields.
func New(expr string) *Builder {
	b := &Builder{}
	parts := strings.Fields(expr)
	if len(parts) == int(fieldCount) {
		copy(b.values[:], parts)
	}
	return b
}

// Set replaces the value of one field.
func (b *Builder) Set(f Field, value string) {
	if f < 0 || f >= fieldCount {
		return
	}
	b.values[f] = strings.TrimSpace(value)
}

// Value returns the effective value of a field.
func (b *Builder) Value(f Field) string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	if v := b.values[f]; v != "" {
		return v
	}
	if f == Seconds {
		return "0"
	}
	return "*"
}

// Cycle advances a field to its next preset and returns the new value.
func (b *Builder) Cycle(f Field) string {
	if f < 0 || f >= fieldCount {
		return ""
	}
	options := presets[f]
	current := b.Value(f)
	next := options[0]
	for i, opt := range options {
		if opt == current {
			next = options[(i+1)%len(options)]
			break
		}
	}
	b.values[f] = next
	return next
}

// Options returns the preset values offered for a field.
func Options(f Field) []string {
	if f < 0 || f >= fieldCount {
		return nil
	}
	return append([]string(nil), presets[f]...)
}

// Expression joins the six effective values with single spaces.
func (b *Builder) Expression() string {
	parts := make([]string, 0, fieldCount)
	for _, f := range Fields() {
		parts = append(parts, b.Value(f))
	}
	return strings.Join(parts, " ")
}

// Describe maps well-known expressions to a human-readable label.
func Describe(expr string) string {
	if d, ok := descriptions[expr]; ok {
		return d
	}
	return customDescription
}

var (
	ErrEmpty      = errors.New("Cron表达式不能为空")
	ErrFieldCount = errors.New("Cron表达式必须包含6个字段（秒 分 时 日 月 周）")
	ErrMalformed  = errors.New("Cron表达式格式不正确")
)

var fieldPattern = regexp.MustCompile(`^[0-9*\-,/?LW#]+$`)

// Validate applies the quick client-side checks: six fields of allowed characters.
func Validate(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ErrEmpty
	}
	parts := strings.Fields(expr)
	if len(parts) != int(fieldCount) {
		return ErrFieldCount
	}
	for _, part := range parts {
		if !fieldPattern.MatchString(part) {
			return ErrMalformed
		}
	}
	return nil
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextRuns previews the next n activation times after from, using the same
// parser flags as the scheduler.
func NextRuns(expr string, n int, from time.Time) ([]time.Time, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	if n <= 0 {
		return nil, nil
	}
	runs := make([]time.Time, 0, n)
	next := from
	for i := 0; i < n; i++ {
		next = schedule.Next(next)
		if next.IsZero() {
			break
		}
		runs = append(runs, next)
	}
	return runs, nil
}
