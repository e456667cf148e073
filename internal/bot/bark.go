package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/model"
	"autobot-console/internal/service"
	"autobot-console/internal/view"
)

type serverDraft struct {
	id uint
	in model.BarkServerInput
}

type deviceDraft struct {
	id      uint
	in      model.BarkDeviceInput
	servers []model.BarkServer
}

func (b *Bot) handleBark(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}

	tab := service.TabServers
	switch strings.ToLower(strings.TrimSpace(msg.CommandArguments())) {
	case "", service.TabServers:
	case service.TabDevices:
		tab = service.TabDevices
	default:
		return b.sendText(msg.Chat.ID, "用法: /bark [servers|devices]")
	}

	logLoad("bark table", c.bark.SwitchTab(ctx, tab))
	c.setScreen(screenBark)
	return b.sendBark(c, 0)
}

func (b *Bot) sendBark(c *chat, messageID int) error {
	tab := c.bark.Tab()
	rows := [][]tgbotapi.InlineKeyboardButton{{
		button(selected("🖥 服务器", tab == service.TabServers), cbBarkPrefix+"tab:"+service.TabServers),
		button(selected("📱 设备", tab == service.TabDevices), cbBarkPrefix+"tab:"+service.TabDevices),
	}}

	var (
		text  string
		state service.LoadState
		page  model.Page
	)
	if tab == service.TabDevices {
		v := c.bark.Devices()
		text, state, page = view.DeviceTable(v, b.config.Location), v.State, v.Page
		for _, d := range v.Items {
			id := strconv.FormatUint(uint64(d.ID), 10)
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				button(fmt.Sprintf("✏️ #%d %s", d.ID, d.Name), cbBarkPrefix+"editdevice:"+id),
				button("🗑", cbBarkPrefix+"deldevice:"+id),
			})
		}
		rows = append(rows, pagerRows(cbBarkPrefix+"dpage:", view.NewPager(page))...)
	} else {
		v := c.bark.Servers()
		text, state, page = view.ServerTable(v, b.config.Location), v.State, v.Page
		for _, s := range v.Items {
			id := strconv.FormatUint(uint64(s.ID), 10)
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				button(fmt.Sprintf("✏️ #%d %s", s.ID, s.Name), cbBarkPrefix+"editserver:"+id),
				button("🗑", cbBarkPrefix+"delserver:"+id),
			})
		}
		rows = append(rows, pagerRows(cbBarkPrefix+"spage:", view.NewPager(page))...)
	}

	if state == service.Failed {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{button("🔄 重试", cbBarkPrefix+"reload")})
		return b.show(c.id, messageID, text, markup(rows))
	}

	add := "➕ 添加服务器"
	if tab == service.TabDevices {
		add = "➕ 添加设备"
	}
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		button(add, cbBarkPrefix+"new"),
		button("🔄 刷新", cbBarkPrefix+"reload"),
	})
	return b.show(c.id, messageID, text, markup(rows))
}

func (b *Bot) handleBarkCallback(ctx context.Context, c *chat, userID int64, messageID int, data string) error {
	action, arg, _ := strings.Cut(data, ":")

	switch action {
	case "tab":
		c.setScreen(screenBark)
		logLoad("bark table", c.bark.SwitchTab(ctx, arg))
		return b.sendBark(c, messageID)

	case "reload":
		c.setScreen(screenBark)
		logLoad("bark table", c.bark.SwitchTab(ctx, c.bark.Tab()))
		return b.sendBark(c, messageID)

	case "spage", "dpage":
		p, err := strconv.Atoi(arg)
		if err != nil {
			return nil
		}
		if action == "spage" {
			logLoad("bark servers", c.bark.ChangeServerPage(ctx, p))
		} else {
			logLoad("bark devices", c.bark.ChangeDevicePage(ctx, p))
		}
		return b.sendBark(c, messageID)

	case "new":
		if c.bark.Tab() == service.TabDevices {
			servers, err := c.bark.ServerOptions(ctx)
			if err != nil {
				return b.sendError(c.id, "加载服务器列表失败", err)
			}
			c.device = &deviceDraft{servers: servers}
			b.setConversation(userID, &conversationState{stage: stageDeviceName})
			return b.promptBarkField(c.id, stageDeviceName)
		}
		c.server = &serverDraft{}
		b.setConversation(userID, &conversationState{stage: stageServerName})
		return b.promptBarkField(c.id, stageServerName)

	case "sf":
		return b.handleServerField(ctx, c, userID, messageID, arg)
	case "df":
		return b.handleDeviceField(ctx, c, userID, messageID, arg)
	}

	id, err := parseID(arg)
	if err != nil {
		return nil
	}

	switch action {
	case "editserver":
		server, err := c.bark.Server(ctx, id)
		if err != nil {
			return b.sendError(c.id, "加载服务器失败", err)
		}
		c.server = &serverDraft{id: id, in: model.BarkServerInput{
			Name:        server.Name,
			URL:         server.URL,
			Description: server.Description,
			IsDefault:   server.IsDefault,
			Status:      server.Status,
		}}
		return b.sendServerForm(c, 0)

	case "editdevice":
		device, err := c.bark.Device(ctx, id)
		if err != nil {
			return b.sendError(c.id, "加载设备失败", err)
		}
		servers, err := c.bark.ServerOptions(ctx)
		if err != nil {
			return b.sendError(c.id, "加载服务器列表失败", err)
		}
		c.device = &deviceDraft{id: id, servers: servers, in: model.BarkDeviceInput{
			Name:        device.Name,
			DeviceKey:   device.DeviceKey,
			Description: device.Description,
			ServerID:    device.ServerID,
			IsDefault:   device.IsDefault,
			Status:      device.Status,
		}}
		return b.sendDeviceForm(c, 0)

	case "delserver":
		server := model.BarkServer{ID: id, Name: fmt.Sprintf("#%d", id)}
		for _, s := range c.bark.Servers().Items {
			if s.ID == id {
				server = s
			}
		}
		c.setScreen(screenBark)
		return c.bark.DeleteServer(ctx, server)

	case "deldevice":
		device := model.BarkDevice{ID: id, Name: fmt.Sprintf("#%d", id)}
		for _, d := range c.bark.Devices().Items {
			if d.ID == id {
				device = d
			}
		}
		c.setScreen(screenBark)
		return c.bark.DeleteDevice(ctx, device)
	}
	return nil
}

func (b *Bot) promptBarkField(chatID int64, stage conversationStage) error {
	switch stage {
	case stageServerName:
		return b.sendWithReplyMarkup(chatID, "🏷 请输入服务器名称:", cancelKeyboard())
	case stageServerURL:
		return b.sendWithReplyMarkup(chatID, "🌐 请输入服务器 URL，例如 <code>https://api.day.app</code>:", cancelKeyboard())
	case stageServerDescription, stageDeviceDescription:
		return b.sendWithReplyMarkup(chatID, "📝 请输入描述，可跳过:", skipKeyboard())
	case stageDeviceName:
		return b.sendWithReplyMarkup(chatID, "🏷 请输入设备名称:", cancelKeyboard())
	case stageDeviceKey:
		return b.sendWithReplyMarkup(chatID, "🔑 请输入设备 Key:", cancelKeyboard())
	}
	return nil
}

func (b *Bot) continueServerForm(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	if c.server == nil {
		b.clearConversation(msg.From.ID)
		return nil
	}
	if text == "" && state.stage != stageServerDescription {
		return b.promptBarkField(c.id, state.stage)
	}

	var next conversationStage
	switch state.stage {
	case stageServerName:
		c.server.in.Name = text
		next = stageServerURL
	case stageServerURL:
		c.server.in.URL = text
		next = stageServerDescription
	case stageServerDescription:
		if isSkipInput(text) {
			text = ""
		}
		c.server.in.Description = text
	}

	if state.single || next == stageNone {
		b.clearConversation(msg.From.ID)
		if err := b.sendText(c.id, "👌 已记录。"); err != nil {
			log.Printf("send ack: %v", err)
		}
		return b.sendServerForm(c, 0)
	}
	state.stage = next
	b.setConversation(msg.From.ID, state)
	return b.promptBarkField(c.id, next)
}

func (b *Bot) continueDeviceForm(c *chat, msg *tgbotapi.Message, state *conversationState, text string) error {
	if c.device == nil {
		b.clearConversation(msg.From.ID)
		return nil
	}
	if text == "" && state.stage != stageDeviceDescription {
		return b.promptBarkField(c.id, state.stage)
	}

	var next conversationStage
	switch state.stage {
	case stageDeviceName:
		c.device.in.Name = text
		next = stageDeviceKey
	case stageDeviceKey:
		c.device.in.DeviceKey = text
		next = stageDeviceDescription
	case stageDeviceDescription:
		if isSkipInput(text) {
			text = ""
		}
		c.device.in.Description = text
	}

	if state.single || next == stageNone {
		b.clearConversation(msg.From.ID)
		if err := b.sendText(c.id, "👌 已记录。"); err != nil {
			log.Printf("send ack: %v", err)
		}
		return b.sendDeviceForm(c, 0)
	}
	state.stage = next
	b.setConversation(msg.From.ID, state)
	return b.promptBarkField(c.id, next)
}

func (b *Bot) sendServerForm(c *chat, messageID int) error {
	d := c.server
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button("🏷 名称", cbBarkPrefix+"sf:name"),
			button("🌐 URL", cbBarkPrefix+"sf:url"),
			button("📝 描述", cbBarkPrefix+"sf:desc"),
		},
		{
			button(selected("⭐ 默认", d.in.IsDefault), cbBarkPrefix+"sf:default"),
			button("⇄ 状态", cbBarkPrefix+"sf:status"),
		},
		{
			button("💾 保存", cbBarkPrefix+"sf:save"),
			button("✖️ 取消", cbBarkPrefix+"sf:cancel"),
		},
	}
	return b.show(c.id, messageID, view.ServerForm(d.id, d.in), markup(rows))
}

func (b *Bot) sendDeviceForm(c *chat, messageID int) error {
	d := c.device
	rows := [][]tgbotapi.InlineKeyboardButton{
		{
			button("🏷 名称", cbBarkPrefix+"df:name"),
			button("🔑 Key", cbBarkPrefix+"df:key"),
			button("📝 描述", cbBarkPrefix+"df:desc"),
		},
		{
			button("🖥 切换服务器", cbBarkPrefix+"df:server"),
			button(selected("⭐ 默认", d.in.IsDefault), cbBarkPrefix+"df:default"),
			button("⇄ 状态", cbBarkPrefix+"df:status"),
		},
		{
			button("💾 保存", cbBarkPrefix+"df:save"),
			button("✖️ 取消", cbBarkPrefix+"df:cancel"),
		},
	}
	return b.show(c.id, messageID, view.DeviceForm(d.id, d.in, d.servers), markup(rows))
}

func (b *Bot) handleServerField(ctx context.Context, c *chat, userID int64, messageID int, field string) error {
	d := c.server
	if d == nil {
		return b.show(c.id, messageID, "表单已失效，请重新打开 /bark。", markup(nil))
	}

	switch field {
	case "name", "url", "desc":
		stage := map[string]conversationStage{"name": stageServerName, "url": stageServerURL, "desc": stageServerDescription}[field]
		b.setConversation(userID, &conversationState{stage: stage, single: true})
		return b.promptBarkField(c.id, stage)
	case "default":
		d.in.IsDefault = !d.in.IsDefault
	case "status":
		d.in.Status = flipStatus(d.in.Status)
	case "cancel":
		c.server = nil
		return b.show(c.id, messageID, "↩️ 已取消编辑服务器。", markup(nil))
	case "save":
		if err := c.bark.SaveServer(ctx, d.id, d.in); err != nil {
			if !errors.Is(err, service.ErrRequiredFields) {
				log.Printf("save bark server: %v", err)
			}
			return nil
		}
		c.server = nil
		c.setScreen(screenBark)
		return b.sendBark(c, 0)
	}
	return b.sendServerForm(c, messageID)
}

func (b *Bot) handleDeviceField(ctx context.Context, c *chat, userID int64, messageID int, field string) error {
	d := c.device
	if d == nil {
		return b.show(c.id, messageID, "表单已失效，请重新打开 /bark devices。", markup(nil))
	}

	switch field {
	case "name", "key", "desc":
		stage := map[string]conversationStage{"name": stageDeviceName, "key": stageDeviceKey, "desc": stageDeviceDescription}[field]
		b.setConversation(userID, &conversationState{stage: stage, single: true})
		return b.promptBarkField(c.id, stage)
	case "server":
		d.in.ServerID = nextServer(d.servers, d.in.ServerID)
	case "default":
		d.in.IsDefault = !d.in.IsDefault
	case "status":
		d.in.Status = flipStatus(d.in.Status)
	case "cancel":
		c.device = nil
		return b.show(c.id, messageID, "↩️ 已取消编辑设备。", markup(nil))
	case "save":
		if err := c.bark.SaveDevice(ctx, d.id, d.in); err != nil {
			if !errors.Is(err, service.ErrRequiredFields) {
				log.Printf("save bark device: %v", err)
			}
			return nil
		}
		c.device = nil
		c.setScreen(screenBark)
		return b.sendBark(c, 0)
	}
	return b.sendDeviceForm(c, messageID)
}

// nextServer cycles none → each active server → none.
func nextServer(servers []model.BarkServer, current uint) uint {
	if current == 0 {
		if len(servers) == 0 {
			return 0
		}
		return servers[0].ID
	}
	for i, s := range servers {
		if s.ID == current && i+1 < len(servers) {
			return servers[i+1].ID
		}
	}
	return 0
}

func flipStatus(status string) string {
	if status == model.StatusInactive {
		return model.StatusActive
	}
	return model.StatusInactive
}
