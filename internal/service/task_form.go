package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"unicode/utf8"

	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/exclusion"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

const maxTaskNameLength = 100

// DefaultScript seeds a new task.
const DefaultScript = `def main():
    """
    任务的主要执行函数
    在这里编写您的代码逻辑
    """
    print("Hello, AutoBot!")

    # 在这里添加您的代码
    # 例如：
    # import requests
    # response = requests.get('https://api.example.com/data')
    # print(response.json())`

const (
	TemplateBasic      = "basic"
	TemplateWebRequest = "web_request"
)

var scriptTemplates = map[string]string{
	TemplateBasic: `def main():
    """基础模板"""
    print("Hello, AutoBot!"),
    print({"bark_key":"value"})`,
	TemplateWebRequest: `import requests

def main():
    """Web请求模板"""
    try:
        response = requests.get('https://api.example.com/data')
        response.raise_for_status()
        data = response.json()
        print(f"获取数据成功: {data}")
    except requests.RequestException as e:
        print(f"请求失败: {e}")`,
}

// TemplateKeys lists the insertable templates in display order.
func TemplateKeys() []string {
	return []string{TemplateBasic, TemplateWebRequest}
}

func TemplateName(key string) string {
	switch key {
	case TemplateBasic:
		return "基础模板"
	case TemplateWebRequest:
		return "Web请求模板"
	default:
		return key
	}
}

// ValidationErrors collects every failed field of a submit.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "\n")
}

func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "任务名称不能为空"}
	}
	if utf8.RuneCountInString(name) > maxTaskNameLength {
		return &ValidationError{Field: "name", Message: "任务名称长度不能超过100个字符"}
	}
	return nil
}

func ValidateCron(expr string) error {
	if err := cronbuilder.Validate(expr); err != nil {
		return &ValidationError{Field: "cron_expr", Message: err.Error()}
	}
	return nil
}

func ValidateScriptBody(script string) error {
	if strings.TrimSpace(script) == "" {
		return &ValidationError{Field: "script", Message: "脚本内容不能为空"}
	}
	if !strings.Contains(script, "def main():") {
		return &ValidationError{Field: "script", Message: "脚本必须包含 main() 函数定义"}
	}
	return nil
}

// FormValues is a copy of the form's scalar fields.
type FormValues struct {
	ID          uint
	Name        string
	Description string
	Script      string
	CronExpr    string
	Status      string
}

// Editing reports whether the form edits an existing task.
func (v FormValues) Editing() bool {
	return v.ID != 0
}

// ScriptCheck is the outcome of a server-side syntax check.
type ScriptCheck struct {
	Valid   bool
	Message string
}

// TaskForm is the create/edit form of one operator.
type TaskForm struct {
	api     TaskAPI
	notes   Notifier
	confirm Confirmer

	mu     sync.Mutex
	values FormValues
	rules  *exclusion.Editor
}

// NewTaskForm starts in create mode with the default script.
func NewTaskForm(taskAPI TaskAPI, notes Notifier, confirm Confirmer) *TaskForm {
	return &TaskForm{
		api:     taskAPI,
		notes:   notes,
		confirm: confirm,
		values:  FormValues{Script: DefaultScript, Status: model.StatusActive},
		rules:   exclusion.New(),
	}
}

// Load switches to edit mode for task id.
func (f *TaskForm) Load(ctx context.Context, id uint) error {
	task, err := f.api.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("load task form: %w", err)
	}

	rules := exclusion.New()
	if err := rules.Load(task.TimeExclusionConfig); err != nil {
		log.Printf("task %d has unreadable time exclusion config: %v", id, err)
		rules = exclusion.New()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = FormValues{
		ID:          task.ID,
		Name:        task.Name,
		Description: task.Description,
		Script:      task.Script,
		CronExpr:    task.CronExpr,
		Status:      task.Status,
	}
	f.rules = rules
	return nil
}

func (f *TaskForm) Values() FormValues {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

func (f *TaskForm) SetName(name string) error {
	f.mu.Lock()
	f.values.Name = strings.TrimSpace(name)
	f.mu.Unlock()
	return ValidateName(name)
}

func (f *TaskForm) SetDescription(desc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Description = strings.TrimSpace(desc)
}

func (f *TaskForm) SetScript(script string) error {
	f.mu.Lock()
	f.values.Script = script
	f.mu.Unlock()
	return ValidateScriptBody(script)
}

func (f *TaskForm) SetStatus(status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Status = status
}

// ApplyCron writes an expression into the form, typically from the cron builder.
// The value is kept even when it fails validation.
func (f *TaskForm) ApplyCron(expr string) error {
	expr = strings.TrimSpace(expr)
	f.mu.Lock()
	f.values.CronExpr = expr
	f.mu.Unlock()
	return ValidateCron(expr)
}

// InsertTemplate replaces the script with a named template.
func (f *TaskForm) InsertTemplate(key string) error {
	tpl, ok := scriptTemplates[key]
	if !ok {
		return fmt.Errorf("unknown template %q", key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.Script = tpl
	return nil
}

// Rules runs fn with the form's time-exclusion editor.
func (f *TaskForm) Rules(fn func(e *exclusion.Editor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f.rules)
}

// RemoveRule asks before dropping rule i. The row is tracked by its ID, so
// rows added or removed while the prompt is open do not change the target.
func (f *TaskForm) RemoveRule(ctx context.Context, i int) error {
	var (
		rule model.TimeExclusionRule
		id   uint64
	)
	err := f.Rules(func(e *exclusion.Editor) error {
		rows := e.Rows()
		if i < 0 || i >= len(rows) {
			return exclusion.ErrNoSuchRule
		}
		rule, id = rows[i].Rule, rows[i].ID
		return nil
	})
	if err != nil {
		return err
	}

	body := fmt.Sprintf("确定要删除规则 \"%s\" 吗？\n\n此操作不可撤销。", exclusion.Summary(rule))
	return f.confirm.Confirm(ctx, "删除时间排除规则", body, func(context.Context) {
		err := f.Rules(func(e *exclusion.Editor) error { return e.RemoveID(id) })
		if err != nil {
			f.notes.Notify(err.Error(), notify.Error)
			return
		}
		f.notes.Notify("时间排除规则已删除", notify.Success)
	})
}

// Validate runs every client-side check.
func (f *TaskForm) Validate() ValidationErrors {
	v := f.Values()
	var errs ValidationErrors
	for _, err := range []error{ValidateName(v.Name), ValidateCron(v.CronExpr), ValidateScriptBody(v.Script)} {
		var ve *ValidationError
		if errors.As(err, &ve) {
			errs = append(errs, ve)
		}
	}
	return errs
}

// Submit validates, then creates or updates the task.
func (f *TaskForm) Submit(ctx context.Context) (*model.Task, error) {
	if errs := f.Validate(); len(errs) > 0 {
		return nil, errs
	}

	f.mu.Lock()
	v := f.values
	rules, err := f.rules.MarshalConfig()
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("encode time exclusion config: %w", err)
	}

	in := model.TaskInput{
		Name:                strings.TrimSpace(v.Name),
		Description:         strings.TrimSpace(v.Description),
		Script:              v.Script,
		CronExpr:            strings.TrimSpace(v.CronExpr),
		Status:              v.Status,
		TimeExclusionConfig: rules,
	}

	var task *model.Task
	if v.Editing() {
		task, err = f.api.UpdateTask(ctx, v.ID, in)
		if err != nil {
			f.notes.Notify("更新任务失败: "+ErrorText(err), notify.Error)
			return nil, err
		}
		f.notes.Notify("任务更新成功", notify.Success)
	} else {
		if in.Status == "" {
			in.Status = model.StatusActive
		}
		task, err = f.api.CreateTask(ctx, in)
		if err != nil {
			f.notes.Notify("创建任务失败: "+ErrorText(err), notify.Error)
			return nil, err
		}
		f.notes.Notify("任务创建成功", notify.Success)
	}
	log.Printf("[info] task %d saved (%s)", task.ID, task.Name)
	return task, nil
}

// CheckScript asks the server to validate the current script.
func (f *TaskForm) CheckScript(ctx context.Context) ScriptCheck {
	script := f.Values().Script
	if strings.TrimSpace(script) == "" {
		return ScriptCheck{Message: "脚本内容不能为空"}
	}
	res, err := f.api.ValidateScript(ctx, script)
	switch {
	case err != nil:
		return ScriptCheck{Message: "验证失败: " + ErrorText(err)}
	case res.Valid:
		return ScriptCheck{Valid: true, Message: "脚本语法正确"}
	case res.Error != "":
		return ScriptCheck{Message: res.Error}
	default:
		return ScriptCheck{Message: "脚本语法错误"}
	}
}

// Reset asks, then clears the form back to the default template.
func (f *TaskForm) Reset(ctx context.Context) error {
	return f.confirm.Confirm(ctx, "重置表单", "确定要重置表单吗？这将清除所有已填写的内容。", func(context.Context) {
		f.ResetNow()
	})
}

// ResetNow clears every field. Edit mode is kept.
func (f *TaskForm) ResetNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = FormValues{ID: f.values.ID, Script: DefaultScript, Status: model.StatusActive}
	f.rules = exclusion.New()
}
