package bot

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/api"
	"autobot-console/internal/apitest"
	"autobot-console/internal/config"
	"autobot-console/internal/model"
	"autobot-console/internal/repository"
	"autobot-console/internal/service"
)

const operatorID int64 = 42

type fakeTelegram struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable

	// onRequest, when set, sees every Request call as it happens.
	onRequest func(tgbotapi.Chattable)
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, c)
	hook := f.onRequest
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func hasButtonText(markup *tgbotapi.InlineKeyboardMarkup, text string) bool {
	if markup == nil {
		return false
	}
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.Text == text {
				return true
			}
		}
	}
	return false
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeTelegram) StopReceivingUpdates() {}

// texts returns the text of every sent or edited message in order.
func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	for _, c := range f.requests {
		if m, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeTelegram) contains(part string) bool {
	return f.count(part) > 0
}

func (f *fakeTelegram) count(part string) int {
	n := 0
	for _, text := range f.texts() {
		if strings.Contains(text, part) {
			n++
		}
	}
	return n
}

// button returns the callback data of the first inline button whose data starts with prefix.
func (f *fakeTelegram) button(prefix string) (string, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		m, ok := f.sent[i].(tgbotapi.MessageConfig)
		if !ok {
			continue
		}
		kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			continue
		}
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				if btn.CallbackData != nil && strings.HasPrefix(*btn.CallbackData, prefix) {
					return *btn.CallbackData, i + 1, true
				}
			}
		}
	}
	return "", 0, false
}

// lastMarkup returns the keyboard of the latest edit of messageID.
func (f *fakeTelegram) lastMarkup(messageID int) *tgbotapi.InlineKeyboardMarkup {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if edit, ok := f.requests[i].(tgbotapi.EditMessageTextConfig); ok && edit.MessageID == messageID {
			return edit.ReplyMarkup
		}
	}
	return nil
}

func (f *fakeTelegram) deleted(messageID int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok && d.MessageID == messageID {
			return true
		}
	}
	return false
}

type fixture struct {
	bot       *Bot
	tg        *fakeTelegram
	srv       *apitest.Server
	users     *repository.UserRepository
	scheduler *service.SchedulerService
	cfg       *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.RequireSession(true)
	srv.AddAccount("admin", "secret")

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = repository.CloseDB(db) })
	users := repository.NewUserRepository(db)

	cfg := &config.Config{
		Location:       time.UTC,
		PageSize:       12,
		ToastDuration:  time.Hour,
		ReportInterval: 6 * time.Hour,
	}
	client := api.New(srv.URL, 5*time.Second)
	digests := service.NewDigestService(users, func(s string) service.DigestAPI {
		return client.WithSession(s, nil)
	}, time.UTC)
	scheduler := service.NewSchedulerService(time.UTC)

	tg := &fakeTelegram{}
	return &fixture{
		bot:       newBot(tg, users, client, digests, scheduler, cfg),
		tg:        tg,
		srv:       srv,
		users:     users,
		scheduler: scheduler,
		cfg:       cfg,
	}
}

func (fx *fixture) send(t *testing.T, text string) {
	t.Helper()
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: operatorID, FirstName: "Ada"},
		Chat:      &tgbotapi.Chat{ID: operatorID, Type: "private"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	fx.bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})
}

func (fx *fixture) press(t *testing.T, messageID int, data string) {
	t.Helper()
	fx.bot.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: operatorID},
		Message: &tgbotapi.Message{
			MessageID: messageID,
			Chat:      &tgbotapi.Chat{ID: operatorID, Type: "private"},
		},
		Data: data,
	}})
}

func (fx *fixture) login(t *testing.T) {
	t.Helper()
	fx.send(t, "/login")
	fx.send(t, "admin")
	fx.send(t, "secret")
	if !fx.tg.contains("登录成功") {
		t.Fatalf("expected login to succeed, got %q", fx.tg.texts())
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartWithoutLogin(t *testing.T) {
	fx := newFixture(t)

	fx.send(t, "/start")

	if !fx.tg.contains("尚未登录") {
		t.Fatalf("expected login hint, got %q", fx.tg.texts())
	}
}

func TestCommandsRequireLogin(t *testing.T) {
	fx := newFixture(t)

	fx.send(t, "/tasks")

	if !fx.tg.contains("请先发送 /login") {
		t.Fatalf("expected login prompt, got %q", fx.tg.texts())
	}
	if fx.srv.Hits("GET", "/api/tasks") != 0 {
		t.Fatalf("expected no task request without session")
	}
}

func TestLoginStoresSession(t *testing.T) {
	fx := newFixture(t)

	fx.login(t)

	user, err := fx.users.FindByTelegramID(context.Background(), operatorID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !user.LoggedIn() || user.APIUser != "admin" {
		t.Fatalf("expected stored session for admin, got %+v", user)
	}
	if !fx.tg.deleted(1) {
		t.Fatalf("expected password message to be deleted")
	}
}

func TestLoginWithWrongPassword(t *testing.T) {
	fx := newFixture(t)

	fx.send(t, "/login")
	fx.send(t, "admin")
	fx.send(t, "nope")

	if fx.tg.contains("登录成功") {
		t.Fatalf("expected login to fail")
	}
	if fx.tg.contains("登录已过期") {
		t.Fatalf("wrong password must not look like an expired session")
	}
	user, err := fx.users.FindByTelegramID(context.Background(), operatorID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.LoggedIn() {
		t.Fatalf("expected no session, got %q", user.APISession)
	}
}

func TestTaskListShowsTasks(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "备份数据库", CronExpr: "0 0 3 * * *", Status: model.StatusActive})
	fx.login(t)

	fx.send(t, "/tasks")

	if !fx.tg.contains("备份数据库") {
		t.Fatalf("expected task in list, got %q", fx.tg.texts())
	}
	if _, _, ok := fx.tg.button(cbTaskToggle + "1"); !ok {
		t.Fatalf("expected toggle button for task 1")
	}
}

func TestToggleShowsPendingBeforeRequest(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "同步订单", CronExpr: "0 0 * * * *", Status: model.StatusActive})
	fx.login(t)
	fx.send(t, "/tasks")

	data, listID, ok := fx.tg.button(cbTaskToggle + "1")
	if !ok {
		t.Fatalf("expected toggle button")
	}

	var mu sync.Mutex
	pendingPuts := -1
	var final *tgbotapi.InlineKeyboardMarkup
	fx.tg.mu.Lock()
	fx.tg.onRequest = func(c tgbotapi.Chattable) {
		edit, ok := c.(tgbotapi.EditMessageTextConfig)
		if !ok || edit.MessageID != listID {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if pendingPuts < 0 && hasButtonText(edit.ReplyMarkup, "⏳") {
			pendingPuts = fx.srv.Hits("PUT", "/api/tasks/1")
		}
		final = edit.ReplyMarkup
	}
	fx.tg.mu.Unlock()

	fx.press(t, listID, data)

	mu.Lock()
	defer mu.Unlock()
	if pendingPuts != 0 {
		t.Fatalf("expected ⏳ before the status request, got %d requests first", pendingPuts)
	}
	if hasButtonText(final, "⏳") || !hasButtonText(final, "▶️ 激活") {
		t.Fatalf("expected final list to offer activation")
	}
	if task, _ := fx.srv.Task(1); task.Status != model.StatusInactive {
		t.Fatalf("expected task 1 inactive, got %s", task.Status)
	}
}

func TestDeleteTaskAfterConfirmation(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "清理缓存", CronExpr: "0 0 * * * *", Status: model.StatusActive})
	fx.login(t)
	fx.send(t, "/tasks")

	_, listID, ok := fx.tg.button(cbTaskDelete + "1")
	if !ok {
		t.Fatalf("expected delete button")
	}
	fx.press(t, listID, cbTaskDelete+"1")

	confirm, promptID, ok := fx.tg.button(cbConfirmPrefix)
	if !ok {
		t.Fatalf("expected confirmation prompt, got %q", fx.tg.texts())
	}
	if _, exists := fx.srv.Task(1); !exists {
		t.Fatalf("task must not be deleted before confirmation")
	}

	fx.press(t, promptID, confirm)

	waitFor(t, "task deletion", func() bool {
		_, exists := fx.srv.Task(1)
		return !exists
	})
	waitFor(t, "prompt close", func() bool { return fx.tg.contains("已确认") })
}

func TestCancelledDeleteKeepsTask(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "清理缓存", CronExpr: "0 0 * * * *", Status: model.StatusActive})
	fx.login(t)

	fx.send(t, "/delete 1")
	cancel, promptID, ok := fx.tg.button(cbCancelPrefix)
	if !ok {
		t.Fatalf("expected confirmation prompt")
	}
	fx.press(t, promptID, cancel)

	waitFor(t, "prompt close", func() bool { return fx.tg.contains("已取消") })
	if _, exists := fx.srv.Task(1); !exists {
		t.Fatalf("expected task to survive a cancelled delete")
	}
	if fx.srv.Hits("DELETE", "/api/tasks/1") != 0 {
		t.Fatalf("expected no delete request")
	}
}

func TestExpiredSessionPromptsOnce(t *testing.T) {
	fx := newFixture(t)
	fx.login(t)
	fx.srv.ForceUnauthorized(true)

	fx.send(t, "/stats")

	if got := fx.tg.count("登录已过期"); got != 1 {
		t.Fatalf("expected one expiry prompt, got %d in %q", got, fx.tg.texts())
	}
	user, err := fx.users.FindByTelegramID(context.Background(), operatorID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.LoggedIn() {
		t.Fatalf("expected session to be cleared")
	}

	fx.send(t, "/tasks")
	if !fx.tg.contains("请先发送 /login") {
		t.Fatalf("expected login prompt after expiry")
	}
}

func TestRunTaskShowsClosableToast(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "同步", CronExpr: "0 0 * * * *", Status: model.StatusActive})
	fx.login(t)

	fx.send(t, "/run 1")

	if fx.srv.Hits("POST", "/api/tasks/1/run") != 1 {
		t.Fatalf("expected run request")
	}
	if !fx.tg.contains("任务已开始执行") {
		t.Fatalf("expected success toast, got %q", fx.tg.texts())
	}
	_, toastID, ok := fx.tg.button(cbToastClose)
	if !ok {
		t.Fatalf("expected close button on toast")
	}

	fx.press(t, toastID, cbToastClose)

	if !fx.tg.deleted(toastID) {
		t.Fatalf("expected toast %d to be deleted", toastID)
	}
}

func TestNewTaskWizardCreatesTask(t *testing.T) {
	fx := newFixture(t)
	fx.login(t)

	fx.send(t, "/newtask")
	fx.send(t, "每日签到")
	fx.send(t, btnSkip)
	fx.send(t, "0 30 8 * * *")
	fx.send(t, btnSkip)

	save, formID, ok := fx.tg.button(cbFormPrefix + "save")
	if !ok {
		t.Fatalf("expected form panel, got %q", fx.tg.texts())
	}
	fx.press(t, formID, save)

	task, exists := fx.srv.Task(1)
	if !exists {
		t.Fatalf("expected task to be created")
	}
	if task.Name != "每日签到" || task.CronExpr != "0 30 8 * * *" {
		t.Fatalf("unexpected task %+v", task)
	}
	if !fx.tg.contains("任务创建成功") {
		t.Fatalf("expected success toast")
	}
}

func TestNewTaskWizardRejectsBadCron(t *testing.T) {
	fx := newFixture(t)
	fx.login(t)

	fx.send(t, "/newtask")
	fx.send(t, "每日签到")
	fx.send(t, "-")
	fx.send(t, "every minute")

	if !fx.tg.contains("⚠️") {
		t.Fatalf("expected validation warning, got %q", fx.tg.texts())
	}
	state := fx.bot.getConversation(operatorID)
	if state == nil || state.stage != stageTaskCron {
		t.Fatalf("expected to stay on the cron step, got %+v", state)
	}
}

func TestIntervalReschedulesDigest(t *testing.T) {
	fx := newFixture(t)
	if err := fx.scheduler.ScheduleInterval(service.DigestJob, fx.cfg.ReportInterval, func() {}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	fx.login(t)

	fx.send(t, "/interval 2")

	if fx.cfg.ReportInterval != 2*time.Hour {
		t.Fatalf("expected 2h interval, got %s", fx.cfg.ReportInterval)
	}
	if !fx.tg.contains("每 2 小时") {
		t.Fatalf("expected confirmation, got %q", fx.tg.texts())
	}

	fx.send(t, "/interval zero")
	if fx.cfg.ReportInterval != 2*time.Hour {
		t.Fatalf("invalid input must keep the interval")
	}

	fx.send(t, "/interval 9999999999999")
	if fx.cfg.ReportInterval != 2*time.Hour {
		t.Fatalf("oversized input must keep the interval, got %s", fx.cfg.ReportInterval)
	}
	if !fx.tg.contains("1 到 168") {
		t.Fatalf("expected range hint, got %q", fx.tg.texts())
	}
}

func TestIntervalRequiresLogin(t *testing.T) {
	fx := newFixture(t)
	if err := fx.scheduler.ScheduleInterval(service.DigestJob, fx.cfg.ReportInterval, func() {}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	fx.send(t, "/interval 2")

	if fx.cfg.ReportInterval != 6*time.Hour {
		t.Fatalf("expected interval to stay 6h, got %s", fx.cfg.ReportInterval)
	}
	if fx.tg.contains("每 2 小时") {
		t.Fatalf("unauthenticated chat must not reschedule, got %q", fx.tg.texts())
	}
	if !fx.tg.contains("请先发送 /login") {
		t.Fatalf("expected login prompt, got %q", fx.tg.texts())
	}
}

func TestSendDigests(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "a", CronExpr: "0 0 * * * *", Status: model.StatusActive})
	fx.srv.AddTask(model.Task{Name: "b", CronExpr: "0 0 * * * *", Status: model.StatusInactive})
	fx.login(t)

	if err := fx.bot.SendDigests(context.Background()); err != nil {
		t.Fatalf("send digests: %v", err)
	}

	if !fx.tg.contains("活跃 1 / 共 2") {
		t.Fatalf("expected digest counts, got %q", fx.tg.texts())
	}
}

func TestDisallowedUserIsRejected(t *testing.T) {
	fx := newFixture(t)
	fx.cfg.AllowedUsers = map[int64]bool{7: true}

	fx.send(t, "/tasks")

	if !fx.tg.contains("没有权限") {
		t.Fatalf("expected rejection, got %q", fx.tg.texts())
	}
}

func TestUnknownTextGetsHint(t *testing.T) {
	fx := newFixture(t)

	fx.send(t, "hello")

	if !fx.tg.contains("/help") {
		t.Fatalf("expected help hint, got %q", fx.tg.texts())
	}
}

func TestPushSettingsSelectDeviceAndSave(t *testing.T) {
	fx := newFixture(t)
	task := fx.srv.AddTask(model.Task{Name: "汇率", CronExpr: "0 0 9 * * *", Status: model.StatusActive, BarkConfig: `{"sound":"bell"}`})
	fx.srv.AddLog(model.TaskLog{TaskID: task.ID, Status: "success", Result: `{"rate":"7.1"}`, StartTime: time.Now()})
	device := fx.srv.AddDevice(model.BarkDevice{Name: "iPhone", DeviceKey: "k"})
	fx.login(t)
	fx.send(t, "/tasks")

	data, listID, ok := fx.tg.button(cbTaskView + "1")
	if !ok {
		t.Fatalf("expected task detail button")
	}
	fx.press(t, listID, data)
	open, detailID, ok := fx.tg.button(cbTaskBarkPrefix + "open:")
	if !ok || open != cbTaskBarkPrefix+"open:1" {
		t.Fatalf("expected push settings action on task detail, got %q", open)
	}

	fx.press(t, detailID, open)
	if !fx.tg.contains("<code>$rate</code>") {
		t.Fatalf("expected result keys on settings page, got %q", fx.tg.texts())
	}
	fx.press(t, detailID, cbTaskBarkPrefix+"dev:"+strconv.FormatUint(uint64(device.ID), 10))
	if !hasButtonText(fx.tg.lastMarkup(detailID), "✅ iPhone") {
		t.Fatalf("expected iPhone to be selected")
	}
	fx.press(t, detailID, cbTaskBarkPrefix+"key:0")
	fx.press(t, detailID, cbTaskBarkPrefix+"title")
	fx.send(t, "今日汇率")
	if !fx.tg.contains("标题: 今日汇率") {
		t.Fatalf("expected settings page with new title, got %q", fx.tg.texts())
	}
	fx.press(t, detailID, cbTaskBarkPrefix+"save")

	if !fx.tg.contains("Bark 配置更新成功") {
		t.Fatalf("expected save toast, got %q", fx.tg.texts())
	}
	stored, _ := fx.srv.Task(task.ID)
	cfg, err := model.ParseTaskBarkConfig(stored.BarkConfig)
	if err != nil {
		t.Fatalf("parse stored config: %v", err)
	}
	if len(cfg.SelectedDeviceIDs) != 1 || cfg.SelectedDeviceIDs[0] != device.ID {
		t.Fatalf("expected device %d selected, got %v", device.ID, cfg.SelectedDeviceIDs)
	}
	if cfg.Title != "今日汇率" || cfg.Body != "$rate" {
		t.Fatalf("unexpected title/body %q %q", cfg.Title, cfg.Body)
	}
	if !strings.Contains(stored.BarkConfig, `"sound":"bell"`) {
		t.Fatalf("expected other keys kept, got %s", stored.BarkConfig)
	}
}

func TestPushRecordsShowTaskHistory(t *testing.T) {
	fx := newFixture(t)
	fx.srv.AddTask(model.Task{Name: "汇率", CronExpr: "0 0 9 * * *", Status: model.StatusActive})
	fx.srv.AddRecord(model.BarkRecord{TaskID: 1, Title: "今日汇率 7.1", DeviceKey: "k", Status: "success"})
	fx.srv.AddRecord(model.BarkRecord{TaskID: 99, Title: "别的任务", DeviceKey: "k", Status: "success"})
	fx.login(t)
	fx.send(t, "/tasks")
	_, listID, ok := fx.tg.button(cbTaskView + "1")
	if !ok {
		t.Fatalf("expected task list")
	}

	fx.press(t, listID, cbTaskBarkPrefix+"records:1")

	if !fx.tg.contains("今日汇率 7.1") {
		t.Fatalf("expected record of task 1, got %q", fx.tg.texts())
	}
	if fx.tg.contains("别的任务") {
		t.Fatalf("records of other tasks must be filtered out")
	}
	if !fx.tg.contains("推送记录</b> · 汇率 · 共 1 个") {
		t.Fatalf("expected history header with one record, got %q", fx.tg.texts())
	}
}
