package bot

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/api"
	"autobot-console/internal/cronbuilder"
	"autobot-console/internal/notify"
	"autobot-console/internal/service"
)

// screen is what a chat currently looks at; it decides what a confirmed action re-renders.
type screen int

const (
	screenNone screen = iota
	screenTasks
	screenForm
	screenRules
	screenLogs
	screenStats
	screenBark
)

// chat holds the view-states of one operator. It is rebuilt whenever the
// stored autobot session changes.
type chat struct {
	id      int64
	session string
	client  *api.Client
	expired atomic.Bool

	auth  *service.Auth
	tasks *service.TaskList
	form  atomic.Pointer[service.TaskForm]
	logs  *service.Logs
	bark  *service.Bark
	push  *service.TaskBark

	notes   chatNotifier
	confirm chatConfirmer

	// Only touched from the update loop.
	cron   *cronbuilder.Builder
	server *serverDraft
	device *deviceDraft

	current atomic.Int32
}

func (c *chat) screen() screen {
	return screen(c.current.Load())
}

func (c *chat) setScreen(s screen) {
	c.current.Store(int32(s))
}

// chatNotifier shows toasts in one chat. Error toasts are dropped once the
// session has expired; the login prompt replaces them.
type chatNotifier struct {
	toaster *notify.Toaster
	chat    *chat
}

func (n chatNotifier) Notify(message string, level notify.Level) {
	if level == notify.Error && n.chat.expired.Load() {
		return
	}
	if err := n.toaster.Show(n.chat.id, message, level); err != nil {
		log.Printf("show toast in chat %d: %v", n.chat.id, err)
	}
}

// chatConfirmer asks in one chat and re-renders the chat's page once a
// confirmed action has run.
type chatConfirmer struct {
	confirmer *notify.Confirmer
	chat      *chat
	refresh   func(ctx context.Context, c *chat)
}

func (c chatConfirmer) Confirm(ctx context.Context, title, body string, onConfirm func(context.Context)) error {
	return c.confirmer.Confirm(ctx, c.chat.id, title, body, func(ctx context.Context) {
		onConfirm(ctx)
		c.refresh(ctx, c.chat)
	})
}

// chatFor returns the chat of a Telegram user, building it on first use or
// after the stored session changed.
func (b *Bot) chatFor(ctx context.Context, from *tgbotapi.User, chatID int64) (*chat, error) {
	user, err := b.ensureUser(ctx, from)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chats[chatID]; ok && c.session == user.APISession && !c.expired.Load() {
		return c, nil
	}

	c := &chat{id: chatID, session: user.APISession}
	c.client = b.client.WithSession(user.APISession, func() { b.expire(c) })
	c.notes = chatNotifier{toaster: b.toaster, chat: c}
	c.confirm = chatConfirmer{confirmer: b.confirmer, chat: c, refresh: b.refresh}

	c.auth = service.NewAuth(c.client, b.users, c.notes, from.ID)
	c.tasks = service.NewTaskList(c.client, c.notes, c.confirm, b.config.PageSize)
	c.newForm()
	c.logs = service.NewLogs(c.client, c.notes, c.confirm, b.config.PageSize, b.config.Location)
	c.bark = service.NewBark(c.client, c.notes, c.confirm)
	c.push = service.NewTaskBark(c.client, c.notes)
	c.cron = cronbuilder.New("")
	b.chats[chatID] = c
	return c, nil
}

// loggedInChat is chatFor for commands that need a session. It prompts for
// /login and returns nil when there is none.
func (b *Bot) loggedInChat(ctx context.Context, from *tgbotapi.User, chatID int64) (*chat, error) {
	c, err := b.chatFor(ctx, from, chatID)
	if err != nil {
		return nil, err
	}
	if c.session == "" {
		return nil, b.sendText(chatID, "🔒 请先发送 /login 登录 AutoBot。")
	}
	return c, nil
}

// newForm replaces the task form with an empty one in create mode.
func (c *chat) newForm() *service.TaskForm {
	f := service.NewTaskForm(c.client, c.notes, c.confirm)
	c.form.Store(f)
	return f
}

func (c *chat) taskForm() *service.TaskForm {
	return c.form.Load()
}

func (b *Bot) dropChat(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.chats, chatID)
}

// expire runs when the server rejects a chat's session. Only the first
// rejection of a session clears it and prompts for login.
func (b *Bot) expire(c *chat) {
	if !c.expired.CompareAndSwap(false, true) {
		return
	}
	log.Printf("[info] session of chat %d expired", c.id)

	b.mu.Lock()
	if b.chats[c.id] == c {
		delete(b.chats, c.id)
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.auth.Forget(ctx); err != nil {
		log.Printf("clear session of %d: %v", c.id, err)
	}
	if err := b.sendText(c.id, "🔒 登录已过期，请发送 /login 重新登录。"); err != nil {
		log.Printf("send login prompt to %d: %v", c.id, err)
	}
}

// refresh re-renders the chat's current page after a confirmed action.
func (b *Bot) refresh(ctx context.Context, c *chat) {
	if c.expired.Load() {
		return
	}
	var err error
	switch c.screen() {
	case screenTasks:
		err = b.sendTaskList(c, 0)
	case screenForm:
		err = b.sendForm(c, 0)
	case screenRules:
		err = b.sendRules(c, 0)
	case screenLogs:
		err = b.sendLogs(c, 0)
	case screenStats:
		err = b.sendStats(ctx, c, 0)
	case screenBark:
		err = b.sendBark(c, 0)
	}
	if err != nil {
		log.Printf("refresh chat %d: %v", c.id, err)
	}
}
