package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"autobot-console/internal/api"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

// TaskBarkAPI is the part of the autobot API behind a task's push settings.
type TaskBarkAPI interface {
	DeviceSelection(ctx context.Context) ([]model.BarkDevice, error)
	TaskBarkKeys(ctx context.Context, id uint) (*model.TaskBarkKeys, error)
	UpdateTaskBarkConfig(ctx context.Context, id uint, config string) (*model.Message, error)
	ListBarkRecords(ctx context.Context, q api.RecordQuery) (*model.BarkRecordPage, error)
}

// barkLevels is the order the level button cycles through. Empty leaves the
// level to the server default.
var barkLevels = []string{"", model.BarkLevelActive, model.BarkLevelTimeSensitive, model.BarkLevelPassive}

// TaskBarkView is a consistent copy of a task's push settings.
type TaskBarkView struct {
	State     LoadState
	Err       error
	Task      model.Task
	Config    model.TaskBarkConfig
	Devices   []model.BarkDevice
	Keys      []string
	HasResult bool
	Dirty     bool
}

// Selected reports whether the device is in the draft selection.
func (v TaskBarkView) Selected(id uint) bool {
	return slices.Contains(v.Config.SelectedDeviceIDs, id)
}

// TaskBark edits which devices a task pushes to and what it sends, and pages
// through the task's push history.
type TaskBark struct {
	api   TaskBarkAPI
	notes Notifier

	saving  busyFlag
	records *pagedTable[model.BarkRecord]

	mu        sync.Mutex
	task      model.Task
	raw       string
	cfg       model.TaskBarkConfig
	devices   []model.BarkDevice
	keys      []string
	hasResult bool
	dirty     bool
	state     LoadState
	err       error
}

func NewTaskBark(barkAPI TaskBarkAPI, notes Notifier) *TaskBark {
	tb := &TaskBark{api: barkAPI, notes: notes}
	tb.records = newPagedTable(func(ctx context.Context, page int) ([]model.BarkRecord, int, error) {
		res, err := barkAPI.ListBarkRecords(ctx, api.RecordQuery{TaskID: tb.taskID(), Page: page, PageSize: BarkPageSize})
		if err != nil {
			return nil, 0, err
		}
		return res.Records, res.Total, nil
	})
	return tb
}

func (tb *TaskBark) taskID() uint {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.task.ID
}

// Open starts a draft from the task's stored config and loads the selectable
// devices and the result keys of its latest run. A config that cannot be
// parsed is replaced on save.
func (tb *TaskBark) Open(ctx context.Context, task model.Task) error {
	raw := task.BarkConfig
	cfg, err := model.ParseTaskBarkConfig(raw)
	if err != nil {
		log.Printf("task %d: %v", task.ID, err)
		tb.notes.Notify("现有 Bark 配置格式无效，保存后将被覆盖", notify.Warning)
		raw = ""
	}

	tb.mu.Lock()
	tb.task = task
	tb.raw = raw
	tb.cfg = cfg
	tb.dirty = false
	tb.state = Loading
	tb.mu.Unlock()

	devices, err := tb.api.DeviceSelection(ctx)
	var keys *model.TaskBarkKeys
	if err == nil {
		keys, err = tb.api.TaskBarkKeys(ctx, task.ID)
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if err != nil {
		tb.state = Failed
		tb.err = err
		return fmt.Errorf("open bark settings of task %d: %w", task.ID, err)
	}
	tb.state = Loaded
	tb.err = nil
	tb.devices = devices
	tb.keys = keys.Keys
	tb.hasResult = keys.HasExecutionResult
	return nil
}

func (tb *TaskBark) View() TaskBarkView {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	cfg := tb.cfg
	cfg.SelectedDeviceIDs = slices.Clone(tb.cfg.SelectedDeviceIDs)
	return TaskBarkView{
		State:     tb.state,
		Err:       tb.err,
		Task:      tb.task,
		Config:    cfg,
		Devices:   slices.Clone(tb.devices),
		Keys:      slices.Clone(tb.keys),
		HasResult: tb.hasResult,
		Dirty:     tb.dirty,
	}
}

// ToggleDevice adds or removes a device from the selection. Selection order
// follows the order devices were picked.
func (tb *TaskBark) ToggleDevice(id uint) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if i := slices.Index(tb.cfg.SelectedDeviceIDs, id); i >= 0 {
		tb.cfg.SelectedDeviceIDs = slices.Delete(tb.cfg.SelectedDeviceIDs, i, i+1)
	} else {
		tb.cfg.SelectedDeviceIDs = append(tb.cfg.SelectedDeviceIDs, id)
	}
	tb.dirty = true
}

func (tb *TaskBark) SetTitle(title string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.cfg.Title = strings.TrimSpace(title)
	tb.dirty = true
}

func (tb *TaskBark) SetBody(body string) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.cfg.Body = strings.TrimSpace(body)
	tb.dirty = true
}

// CycleLevel moves to the next notification level and returns it.
func (tb *TaskBark) CycleLevel() string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	next := 0
	if i := slices.Index(barkLevels, tb.cfg.Level); i >= 0 {
		next = (i + 1) % len(barkLevels)
	}
	tb.cfg.Level = barkLevels[next]
	tb.dirty = true
	return tb.cfg.Level
}

// InsertKey appends the i-th result key to the body as a $key placeholder.
func (tb *TaskBark) InsertKey(i int) (string, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if i < 0 || i >= len(tb.keys) {
		return "", false
	}
	placeholder := "$" + tb.keys[i]
	if tb.cfg.Body == "" {
		tb.cfg.Body = placeholder
	} else {
		tb.cfg.Body += " " + placeholder
	}
	tb.dirty = true
	return placeholder, true
}

// Save writes the draft over the stored config, keeping the keys the console
// does not edit.
func (tb *TaskBark) Save(ctx context.Context) error {
	if !tb.saving.acquire() {
		return ErrBusy
	}
	defer tb.saving.release()

	tb.mu.Lock()
	id, raw, cfg := tb.task.ID, tb.raw, tb.cfg
	tb.mu.Unlock()
	if id == 0 {
		return errors.New("no task opened")
	}

	merged, err := model.MergeTaskBarkConfig(raw, cfg)
	if err != nil {
		tb.notes.Notify("保存 Bark 配置失败: "+err.Error(), notify.Error)
		return err
	}
	if _, err := tb.api.UpdateTaskBarkConfig(ctx, id, merged); err != nil {
		tb.notes.Notify("保存 Bark 配置失败: "+ErrorText(err), notify.Error)
		return err
	}

	tb.mu.Lock()
	tb.raw = merged
	tb.task.BarkConfig = merged
	tb.dirty = false
	tb.mu.Unlock()

	log.Printf("[info] bark config of task %d updated", id)
	tb.notes.Notify("Bark 配置更新成功", notify.Success)
	return nil
}

// OpenRecords shows the first page of the task's push history.
func (tb *TaskBark) OpenRecords(ctx context.Context, task model.Task) error {
	tb.mu.Lock()
	tb.task = task
	tb.mu.Unlock()

	tb.records.mu.Lock()
	tb.records.page = 1
	tb.records.mu.Unlock()
	return tb.LoadRecords(ctx)
}

func (tb *TaskBark) LoadRecords(ctx context.Context) error {
	if err := tb.records.load(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return fmt.Errorf("load bark records: %w", err)
	}
	return nil
}

func (tb *TaskBark) ChangeRecordPage(ctx context.Context, p int) error {
	return tb.records.changePage(ctx, p)
}

func (tb *TaskBark) Records() TableView[model.BarkRecord] {
	return tb.records.view()
}

// Task returns the task the settings or records belong to.
func (tb *TaskBark) Task() model.Task {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.task
}
