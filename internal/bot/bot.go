package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/api"
	"autobot-console/internal/config"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
	"autobot-console/internal/repository"
	"autobot-console/internal/service"
)

// telegram is the part of *tgbotapi.BotAPI the bot uses.
type telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot connects the Telegram API with the console pages.
type Bot struct {
	api       telegram
	users     *repository.UserRepository
	client    *api.Client
	digests   *service.DigestService
	scheduler *service.SchedulerService
	config    *config.Config
	toaster   *notify.Toaster
	confirmer *notify.Confirmer
	now       func() time.Time

	chats         map[int64]*chat
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, users *repository.UserRepository, client *api.Client, digests *service.DigestService, scheduler *service.SchedulerService, cfg *config.Config) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", botAPI.Self.UserName)

	return newBot(botAPI, users, client, digests, scheduler, cfg), nil
}

func newBot(tg telegram, users *repository.UserRepository, client *api.Client, digests *service.DigestService, scheduler *service.SchedulerService, cfg *config.Config) *Bot {
	surface := &telegramSurface{api: tg}
	return &Bot{
		api:           tg,
		users:         users,
		client:        client,
		digests:       digests,
		scheduler:     scheduler,
		config:        cfg,
		toaster:       notify.NewToaster(surface, cfg.ToastDuration),
		confirmer:     notify.NewConfirmer(surface),
		now:           time.Now,
		chats:         make(map[int64]*chat),
		conversations: make(map[int64]*conversationState),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("handle callback: %v", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("handle message: %v", err)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !b.config.Allowed(msg.From.ID) {
		log.Printf("[info] rejected message from %d", msg.From.ID)
		return b.sendText(msg.Chat.ID, "⛔ 你没有权限使用此机器人。")
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ 已取消当前输入。")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "我没有理解这条消息。发送 /tasks 查看任务，或 /help 查看全部命令。")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	command := msg.Command()
	if command != "login" && command != "cancel" {
		b.clearConversation(msg.From.ID)
	}

	switch command {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "login":
		return b.startLogin(ctx, msg)
	case "logout":
		return b.handleLogout(ctx, msg)
	case "me":
		return b.handleMe(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "newtask":
		return b.startNewTask(ctx, msg)
	case "edit":
		return b.handleEditTask(ctx, msg)
	case "run":
		return b.handleRunTask(ctx, msg)
	case "delete":
		return b.handleDeleteTask(ctx, msg)
	case "logs":
		return b.handleLogs(ctx, msg)
	case "log":
		return b.handleLogDetail(ctx, msg, msg.CommandArguments())
	case "stats":
		return b.handleStats(ctx, msg)
	case "result":
		return b.handleResult(ctx, msg)
	case "bark":
		return b.handleBark(ctx, msg)
	case "cron":
		return b.handleCron(ctx, msg)
	case "interval":
		return b.handleInterval(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ 已取消当前输入。")
	default:
		if id, ok := strings.CutPrefix(command, "log_"); ok {
			return b.handleLogDetail(ctx, msg, id)
		}
		return b.sendText(msg.Chat.ID, "不支持的命令，请查看 /help。")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "朋友"
	}

	status := "🔒 尚未登录，请先发送 /login 登录 AutoBot。"
	if user.LoggedIn() {
		status = fmt.Sprintf("🔓 已登录为 <b>%s</b>。", escape(user.APIUser))
	}

	text := fmt.Sprintf(
		"👋 你好，%s！\n<b>我是 AutoBot 控制台，帮你管理定时任务。</b>\n\n%s\n\n常用命令:\n"+
			"• /tasks — 任务列表\n"+
			"• /newtask — 创建任务\n"+
			"• /logs — 执行日志\n"+
			"• /bark — Bark 推送管理\n"+
			"• /help — 全部命令",
		escape(name), status,
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>命令列表</b>\n" +
		"• /login — 登录 AutoBot\n" +
		"• /logout — 退出登录\n" +
		"• /me — 当前账号\n" +
		"• /tasks [active|inactive] — 任务列表\n" +
		"• /newtask — 创建任务\n" +
		"• /edit &lt;id&gt; — 编辑任务\n" +
		"• /run &lt;id&gt; — 立即执行任务\n" +
		"• /delete &lt;id&gt; — 删除任务及其日志\n" +
		"• /logs [task=&lt;id&gt;] [status=&lt;状态&gt;] [date=YYYY-MM-DD] — 执行日志\n" +
		"• /log &lt;id&gt; — 日志详情\n" +
		"• /result &lt;id&gt; — 任务最新执行结果\n" +
		"• /stats — 日志与通知统计\n" +
		"• /bark [servers|devices] — Bark 服务器与设备\n" +
		"• /cron — Cron 表达式生成器\n" +
		"• /interval &lt;小时&gt; — 运行摘要的发送间隔\n" +
		"• /cancel — 取消当前输入"
	return b.sendText(msg.Chat.ID, text)
}

// SendDigests sends the periodic summary to every logged-in operator.
func (b *Bot) SendDigests(ctx context.Context) error {
	digests, err := b.digests.Collect(ctx, b.now())
	if err != nil {
		return err
	}
	for _, d := range digests {
		if err := b.sendText(d.TelegramID, d.Text); err != nil {
			log.Printf("send digest to %d: %v", d.TelegramID, err)
		}
	}
	log.Printf("[info] sent %d digests", len(digests))
	return nil
}

// maxIntervalHours caps /interval at one week.
const maxIntervalHours = 24 * 7

func (b *Bot) handleInterval(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}

	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		b.mu.Lock()
		current := b.config.ReportInterval
		b.mu.Unlock()
		text := fmt.Sprintf("当前运行摘要间隔: %d 小时。", int(current.Hours()))
		if next, ok := b.scheduler.Next(service.DigestJob); ok {
			text += fmt.Sprintf("\n下次发送: %s", next.In(b.config.Location).Format("2006-01-02 15:04"))
		}
		return b.sendText(msg.Chat.ID, text+"\n修改示例: /interval 4")
	}

	hours, err := strconv.Atoi(args)
	if err != nil || hours <= 0 || hours > maxIntervalHours {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("间隔必须是 1 到 %d 之间的整数小时，例如 /interval 6", maxIntervalHours))
	}
	interval := time.Duration(hours) * time.Hour
	if err := b.scheduler.Reschedule(service.DigestJob, interval); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("修改间隔失败: %s", escape(err.Error())))
	}

	b.mu.Lock()
	b.config.ReportInterval = interval
	b.mu.Unlock()
	log.Printf("[info] digest interval set to %s by %d", interval, msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("运行摘要间隔已更新：每 %d 小时。", hours))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	var command string
	switch strings.TrimSpace(msg.Text) {
	case menuLabelTasks:
		command = "tasks"
	case menuLabelNewTask:
		command = "newtask"
	case menuLabelLogs:
		command = "logs"
	case menuLabelBark:
		command = "bark"
	case menuLabelStats:
		command = "stats"
	case menuLabelHelp:
		command = "help"
	default:
		return false, nil
	}
	b.clearConversation(msg.From.ID)
	alias := *msg
	alias.Text = "/" + command
	alias.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(alias.Text)}}
	return true, b.handleCommand(ctx, &alias)
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// show edits messageID in place, or sends a new message when it is 0.
func (b *Bot) show(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
		edit.ParseMode = tgbotapi.ModeHTML
		_, err := b.api.Request(edit)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		log.Printf("edit message %d: %v", messageID, err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(markup.InlineKeyboard) > 0 {
		msg.ReplyMarkup = markup
	}
	_, err := b.api.Send(msg)
	return err
}

// sendError reports a failed call. Rejected sessions are skipped; expire has
// already asked for a new login.
func (b *Bot) sendError(chatID int64, prefix string, err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return nil
	}
	return b.sendText(chatID, fmt.Sprintf("❌ %s: %s", prefix, escape(service.ErrorText(err))))
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

func escape(s string) string {
	return html.EscapeString(s)
}
