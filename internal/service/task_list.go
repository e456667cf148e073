package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"autobot-console/internal/api"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

// DefaultPageSize is the task list page size.
const DefaultPageSize = 12

// TaskAPI is the part of the autobot API the task pages use.
type TaskAPI interface {
	ListTasks(ctx context.Context, q api.TaskQuery) (*model.TaskPage, error)
	GetTask(ctx context.Context, id uint) (*model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error)
	UpdateTask(ctx context.Context, id uint, in model.TaskInput) (*model.Task, error)
	SetTaskStatus(ctx context.Context, id uint, status string) (*model.Task, error)
	DeleteTask(ctx context.Context, id uint) (*model.DeleteTaskResult, error)
	RunTask(ctx context.Context, id uint) (*model.Message, error)
	ValidateScript(ctx context.Context, script string) (*model.ScriptValidation, error)
}

// TaskListView is a consistent copy of the task list state for rendering.
type TaskListView struct {
	State  LoadState
	Err    error
	Status string
	Tasks  []model.Task
	model.Page
}

// TaskList is the paginated, filterable task grid of one operator.
type TaskList struct {
	api     TaskAPI
	notes   Notifier
	confirm Confirmer
	limit   int
	loading busyFlag

	mu       sync.Mutex
	page     int
	status   string
	total    int
	tasks    []model.Task
	state    LoadState
	err      error
	toggling map[uint]bool
}

func NewTaskList(taskAPI TaskAPI, notes Notifier, confirm Confirmer, pageSize int) *TaskList {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TaskList{
		api:      taskAPI,
		notes:    notes,
		confirm:  confirm,
		limit:    pageSize,
		page:     1,
		toggling: make(map[uint]bool),
	}
}

func (l *TaskList) View() TaskListView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return TaskListView{
		State:  l.state,
		Err:    l.err,
		Status: l.status,
		Tasks:  append([]model.Task(nil), l.tasks...),
		Page:   model.Page{Total: l.total, Page: l.page, Limit: l.limit},
	}
}

// Load fetches the current page. A second call while one is running returns ErrBusy.
func (l *TaskList) Load(ctx context.Context) error {
	if !l.loading.acquire() {
		return ErrBusy
	}
	defer l.loading.release()

	l.mu.Lock()
	q := api.TaskQuery{Page: l.page, Limit: l.limit, Status: l.status}
	l.state = Loading
	l.mu.Unlock()

	res, err := l.api.ListTasks(ctx, q)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Failed
		l.err = err
		return fmt.Errorf("load task list: %w", err)
	}
	l.state = Loaded
	l.err = nil
	l.tasks = res.Tasks
	l.total = res.Total
	return nil
}

// SetStatusFilter filters by status ("" for all) and reloads from page 1.
func (l *TaskList) SetStatusFilter(ctx context.Context, status string) error {
	l.mu.Lock()
	l.status = status
	l.page = 1
	l.mu.Unlock()
	return l.Load(ctx)
}

// ChangePage loads page p. Pages below 1 and the current page are ignored.
func (l *TaskList) ChangePage(ctx context.Context, p int) error {
	l.mu.Lock()
	if p < 1 || p == l.page {
		l.mu.Unlock()
		return nil
	}
	l.page = p
	l.mu.Unlock()
	return l.Load(ctx)
}

// Toggling reports whether a status toggle for the task is in flight.
func (l *TaskList) Toggling(id uint) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toggling[id]
}

// Toggle flips the task status and reloads the list whatever the outcome.
// A toggle already in flight for the same task is ignored. started, when set,
// runs once the task is marked as toggling and before the request goes out.
func (l *TaskList) Toggle(ctx context.Context, task model.Task, started func()) {
	l.mu.Lock()
	if l.toggling[task.ID] {
		l.mu.Unlock()
		return
	}
	l.toggling[task.ID] = true
	l.mu.Unlock()

	if started != nil {
		started()
	}

	next := model.StatusActive
	if task.Active() {
		next = model.StatusInactive
	}

	_, err := l.api.SetTaskStatus(ctx, task.ID, next)

	l.mu.Lock()
	delete(l.toggling, task.ID)
	l.mu.Unlock()

	switch {
	case err != nil:
		log.Printf("toggle task %d: %v", task.ID, err)
		l.notes.Notify("切换任务状态失败: "+ErrorText(err), notify.Error)
	case next == model.StatusActive:
		l.notes.Notify("任务已激活", notify.Success)
	default:
		l.notes.Notify("任务已停用", notify.Success)
	}

	l.reload(ctx)
}

// RunNow triggers an immediate execution.
func (l *TaskList) RunNow(ctx context.Context, id uint) error {
	if _, err := l.api.RunTask(ctx, id); err != nil {
		l.notes.Notify("执行任务失败: "+ErrorText(err), notify.Error)
		return err
	}
	log.Printf("[info] task %d started manually", id)
	l.notes.Notify("任务已开始执行", notify.Success)
	l.reload(ctx)
	return nil
}

// Delete asks for confirmation and then deletes the task with its logs.
func (l *TaskList) Delete(ctx context.Context, task model.Task) error {
	body := fmt.Sprintf("确定要删除任务 \"%s\" 吗？\n注意：此操作将同时删除该任务的所有执行日志，无法撤销。", task.Name)
	return l.confirm.Confirm(ctx, "确认删除任务", body, func(ctx context.Context) {
		_ = l.DeleteNow(ctx, task.ID)
	})
}

// DeleteNow deletes without asking.
func (l *TaskList) DeleteNow(ctx context.Context, id uint) error {
	res, err := l.api.DeleteTask(ctx, id)
	if err != nil {
		l.notes.Notify("删除任务失败: "+ErrorText(err), notify.Error)
		return err
	}
	l.notes.Notify(DeleteTaskMessage(res), notify.Success)
	l.reload(ctx)
	return nil
}

// DeleteTaskMessage reports the task name and the number of cascaded logs.
func DeleteTaskMessage(res *model.DeleteTaskResult) string {
	msg := fmt.Sprintf("任务 \"%s\" 删除成功", res.TaskName)
	if res.DeletedLogs > 0 {
		msg += fmt.Sprintf("，同时删除了 %d 条相关日志", res.DeletedLogs)
	}
	return msg
}

func (l *TaskList) reload(ctx context.Context) {
	if err := l.Load(ctx); err != nil && !errors.Is(err, ErrBusy) {
		log.Printf("reload task list: %v", err)
	}
}
