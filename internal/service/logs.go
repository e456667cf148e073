package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"autobot-console/internal/api"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

const (
	// fanOutLimit is the per-request limit used to gather every task's logs.
	fanOutLimit = 1000
	// findLogLimit is the limit of the re-fetch FindLog falls back to.
	findLogLimit = 100
	// fanOutWorkers bounds concurrent per-task log requests.
	fanOutWorkers = 4
)

// LogAPI is the part of the autobot API the logs page uses.
type LogAPI interface {
	ListTasks(ctx context.Context, q api.TaskQuery) (*model.TaskPage, error)
	ListTaskLogs(ctx context.Context, taskID uint, q api.LogQuery) (*model.LogPage, error)
	DeleteTaskLogs(ctx context.Context, taskID uint) (*model.BulkDeleteResult, error)
	DeleteAllLogs(ctx context.Context) (*model.BulkDeleteResult, error)
	DeleteAllBarkRecords(ctx context.Context) (*model.BulkDeleteResult, error)
	LogStats(ctx context.Context) (*model.LogStats, error)
	BarkStats(ctx context.Context) (*model.BarkStats, error)
	TaskResult(ctx context.Context, id uint) (*model.TaskResult, error)
}

// LogFilters narrow the log list. Zero values mean no filter.
type LogFilters struct {
	TaskID uint
	Status string
	Date   string // YYYY-MM-DD
}

// LogsView is a consistent copy of the logs page for rendering.
type LogsView struct {
	State   LoadState
	Err     error
	Filters LogFilters
	Logs    []model.TaskLog
	Tasks   []model.Task
	// Skipped holds the tasks whose logs could not be fetched during the last fan-out.
	Skipped []uint
	model.Page
}

// Logs is the execution log page of one operator.
type Logs struct {
	api     LogAPI
	notes   Notifier
	confirm Confirmer
	limit   int
	loc     *time.Location
	loading busyFlag

	mu          sync.Mutex
	page        int
	filters     LogFilters
	tasks       []model.Task
	tasksLoaded bool
	logs        []model.TaskLog
	total       int
	skipped     []uint
	state       LoadState
	err         error
}

func NewLogs(logAPI LogAPI, notes Notifier, confirm Confirmer, pageSize int, loc *time.Location) *Logs {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if loc == nil {
		loc = time.Local
	}
	return &Logs{
		api:     logAPI,
		notes:   notes,
		confirm: confirm,
		limit:   pageSize,
		loc:     loc,
		page:    1,
	}
}

func (l *Logs) View() LogsView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LogsView{
		State:   l.state,
		Err:     l.err,
		Filters: l.filters,
		Logs:    append([]model.TaskLog(nil), l.logs...),
		Tasks:   append([]model.Task(nil), l.tasks...),
		Skipped: append([]uint(nil), l.skipped...),
		Page:    model.Page{Total: l.total, Page: l.page, Limit: l.limit},
	}
}

// LoadTasks refreshes the task list used as filter source and fan-out input.
func (l *Logs) LoadTasks(ctx context.Context) error {
	res, err := l.api.ListTasks(ctx, api.TaskQuery{Limit: fanOutLimit})
	if err != nil {
		return fmt.Errorf("load filter tasks: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tasks = res.Tasks
	l.tasksLoaded = true
	return nil
}

// Load fetches the current page. Without a task filter every task's logs are
// gathered and filtered, sorted and paged here.
func (l *Logs) Load(ctx context.Context) error {
	if !l.loading.acquire() {
		return ErrBusy
	}
	defer l.loading.release()

	l.mu.Lock()
	page, filters, needTasks := l.page, l.filters, !l.tasksLoaded
	l.state = Loading
	l.mu.Unlock()

	var (
		logs    []model.TaskLog
		total   int
		skipped []uint
		err     error
	)
	if filters.TaskID != 0 {
		var res *model.LogPage
		res, err = l.api.ListTaskLogs(ctx, filters.TaskID, api.LogQuery{Page: page, Limit: l.limit, Status: filters.Status})
		if err == nil {
			logs, total = res.Logs, res.Total
		}
	} else {
		if needTasks {
			if terr := l.LoadTasks(ctx); terr != nil {
				log.Printf("load tasks for log fan-out: %v", terr)
			}
		}
		var all []model.TaskLog
		all, skipped, err = l.gather(ctx)
		if err == nil {
			all = filterLogs(all, filters, l.loc)
			total = len(all)
			logs = pageOf(all, page, l.limit)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = Failed
		l.err = err
		return fmt.Errorf("load logs: %w", err)
	}
	l.state = Loaded
	l.err = nil
	l.logs = logs
	l.total = total
	l.skipped = skipped
	return nil
}

// gather requests every known task's logs. Failed tasks are logged and skipped;
// only a cancelled context fails the whole fan-out.
func (l *Logs) gather(ctx context.Context) ([]model.TaskLog, []uint, error) {
	l.mu.Lock()
	tasks := append([]model.Task(nil), l.tasks...)
	l.mu.Unlock()

	results := make([][]model.TaskLog, len(tasks))
	failed := make([]bool, len(tasks))
	sem := make(chan struct{}, fanOutWorkers)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id uint) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := l.api.ListTaskLogs(ctx, id, api.LogQuery{Limit: fanOutLimit})
			if err != nil {
				log.Printf("load logs for task %d: %v", id, err)
				failed[i] = true
				return
			}
			results[i] = res.Logs
		}(i, task.ID)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var all []model.TaskLog
	var skipped []uint
	for i := range tasks {
		if failed[i] {
			skipped = append(skipped, tasks[i].ID)
			continue
		}
		all = append(all, results[i]...)
	}
	return all, skipped, nil
}

// filterLogs applies status and calendar-day filters and sorts newest first.
func filterLogs(all []model.TaskLog, f LogFilters, loc *time.Location) []model.TaskLog {
	var day time.Time
	if f.Date != "" {
		if d, err := time.ParseInLocation("2006-01-02", f.Date, loc); err == nil {
			day = d
		}
	}

	out := make([]model.TaskLog, 0, len(all))
	for _, entry := range all {
		if f.Status != "" && entry.Status != f.Status {
			continue
		}
		if !day.IsZero() && !sameDay(entry.StartTime.In(loc), day) {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func pageOf(all []model.TaskLog, page, limit int) []model.TaskLog {
	start := (page - 1) * limit
	if start >= len(all) || start < 0 {
		return nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// ApplyFilters replaces the filters and reloads from page 1.
func (l *Logs) ApplyFilters(ctx context.Context, f LogFilters) error {
	if f.Date != "" {
		if _, err := time.ParseInLocation("2006-01-02", f.Date, l.loc); err != nil {
			return &ValidationError{Field: "date", Message: "日期格式应为 YYYY-MM-DD"}
		}
	}
	l.mu.Lock()
	l.filters = f
	l.page = 1
	l.mu.Unlock()
	return l.Load(ctx)
}

// ChangePage loads page p. Pages below 1 and the current page are ignored.
func (l *Logs) ChangePage(ctx context.Context, p int) error {
	l.mu.Lock()
	if p < 1 || p == l.page {
		l.mu.Unlock()
		return nil
	}
	l.page = p
	l.mu.Unlock()
	return l.Load(ctx)
}

// FindLog looks in the loaded page first, then re-fetches the logs of taskHint
// or of the task filter.
func (l *Logs) FindLog(ctx context.Context, id, taskHint uint) (*model.TaskLog, error) {
	l.mu.Lock()
	for _, entry := range l.logs {
		if entry.ID == id {
			found := entry
			l.mu.Unlock()
			return &found, nil
		}
	}
	taskID := taskHint
	if taskID == 0 {
		taskID = l.filters.TaskID
	}
	l.mu.Unlock()

	if taskID == 0 {
		return nil, ErrLogNotFound
	}
	res, err := l.api.ListTaskLogs(ctx, taskID, api.LogQuery{Limit: findLogLimit})
	if err != nil {
		return nil, fmt.Errorf("find log %d: %w", id, err)
	}
	for _, entry := range res.Logs {
		if entry.ID == id {
			found := entry
			return &found, nil
		}
	}
	return nil, ErrLogNotFound
}

// DeleteAll asks, then removes every execution log.
func (l *Logs) DeleteAll(ctx context.Context) error {
	return l.confirm.Confirm(ctx, "删除所有日志", "确定要删除所有执行日志吗？此操作无法撤销，将清空所有任务的执行历史记录。", func(ctx context.Context) {
		_ = l.DeleteAllNow(ctx)
	})
}

func (l *Logs) DeleteAllNow(ctx context.Context) error {
	res, err := l.api.DeleteAllLogs(ctx)
	if err != nil {
		l.notes.Notify("删除日志失败: "+ErrorText(err), notify.Error)
		return err
	}
	log.Printf("[info] deleted %d logs", res.DeletedCount)
	l.notes.Notify(fmt.Sprintf("所有日志已删除 - 共删除 %d 条记录", res.DeletedCount), notify.Success)
	l.reload(ctx)
	return nil
}

// DeleteAllBark asks, then removes every Bark delivery record.
func (l *Logs) DeleteAllBark(ctx context.Context) error {
	return l.confirm.Confirm(ctx, "删除所有Bark日志", "确定要删除所有Bark通知记录吗？此操作无法撤销，将清空所有Bark发送历史记录。", func(ctx context.Context) {
		_ = l.DeleteAllBarkNow(ctx)
	})
}

func (l *Logs) DeleteAllBarkNow(ctx context.Context) error {
	res, err := l.api.DeleteAllBarkRecords(ctx)
	if err != nil {
		l.notes.Notify("删除Bark日志失败: "+ErrorText(err), notify.Error)
		return err
	}
	log.Printf("[info] deleted %d bark records", res.DeletedCount)
	l.notes.Notify(fmt.Sprintf("所有Bark日志已删除 - 共删除 %d 条记录", res.DeletedCount), notify.Success)
	return nil
}

// DeleteTaskLogs asks, then removes the logs of one task.
func (l *Logs) DeleteTaskLogs(ctx context.Context, task model.Task) error {
	body := fmt.Sprintf("确定要删除任务 \"%s\" 的所有执行日志吗？此操作无法撤销。", task.Name)
	return l.confirm.Confirm(ctx, "删除任务日志", body, func(ctx context.Context) {
		res, err := l.api.DeleteTaskLogs(ctx, task.ID)
		if err != nil {
			l.notes.Notify("删除日志失败: "+ErrorText(err), notify.Error)
			return
		}
		l.notes.Notify(fmt.Sprintf("任务日志已删除 - 共删除 %d 条记录", res.DeletedCount), notify.Success)
		l.reload(ctx)
	})
}

// Stats is the combined storage overview.
type Stats struct {
	Log  model.LogStats
	Bark model.BarkStats
}

// LogUsage is the task log storage use in percent.
func (s Stats) LogUsage() int {
	return percent(s.Log.TotalLogs, s.Log.MaxTotalLogs)
}

// BarkUsage is the Bark record storage use in percent.
func (s Stats) BarkUsage() int {
	return percent(s.Bark.TotalRecords, s.Bark.MaxRecords)
}

// BarkSkippedOrFailed counts notifications that were not delivered.
func (s Stats) BarkSkippedOrFailed() int64 {
	return s.Bark.TotalRecords - s.Bark.SuccessRecords
}

func percent(n, max int64) int {
	if max <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(max) * 100))
}

// Stats fetches log and Bark statistics in parallel.
func (l *Logs) Stats(ctx context.Context) (*Stats, error) {
	var (
		wg       sync.WaitGroup
		logStats *model.LogStats
		bark     *model.BarkStats
		logErr   error
		barkErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		logStats, logErr = l.api.LogStats(ctx)
	}()
	go func() {
		defer wg.Done()
		bark, barkErr = l.api.BarkStats(ctx)
	}()
	wg.Wait()

	if logErr != nil {
		return nil, logErr
	}
	if barkErr != nil {
		return nil, barkErr
	}
	return &Stats{Log: *logStats, Bark: *bark}, nil
}

// TaskResult returns the latest successful result of a task.
func (l *Logs) TaskResult(ctx context.Context, id uint) (*model.TaskResult, error) {
	return l.api.TaskResult(ctx, id)
}

func (l *Logs) reload(ctx context.Context) {
	if err := l.Load(ctx); err != nil && !errors.Is(err, ErrBusy) {
		log.Printf("reload logs: %v", err)
	}
}
