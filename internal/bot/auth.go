package bot

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) startLogin(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}
	b.setConversation(msg.From.ID, &conversationState{stage: stageLoginUsername})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🔑 请输入 AutoBot 用户名:", cancelKeyboard())
}

func (b *Bot) continueLogin(ctx context.Context, msg *tgbotapi.Message, state *conversationState, text string) error {
	switch state.stage {
	case stageLoginUsername:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "用户名不能为空，请重新输入:", cancelKeyboard())
		}
		state.username = text
		state.stage = stageLoginPassword
		b.setConversation(msg.From.ID, state)
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔑 请输入密码（消息会在读取后删除）:", cancelKeyboard())

	case stageLoginPassword:
		// The password must not stay in the chat history.
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
			log.Printf("delete password message: %v", err)
		}
		b.clearConversation(msg.From.ID)

		c, err := b.chatFor(ctx, msg.From, msg.Chat.ID)
		if err != nil {
			return err
		}
		user, err := c.auth.Login(ctx, state.username, text)
		if err != nil {
			return b.sendError(msg.Chat.ID, "登录失败", err)
		}
		b.dropChat(msg.Chat.ID)
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ 登录成功，欢迎 <b>%s</b>！发送 /tasks 查看任务。", escape(user.Username)))
	}
	return nil
}

func (b *Bot) handleLogout(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	if err := c.auth.Logout(ctx); err != nil {
		log.Printf("logout %d: %v", msg.From.ID, err)
		return nil
	}
	b.dropChat(msg.Chat.ID)
	return nil
}

func (b *Bot) handleMe(ctx context.Context, msg *tgbotapi.Message) error {
	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		return err
	}
	user, err := c.auth.Me(ctx)
	if err != nil {
		return b.sendError(msg.Chat.ID, "获取账号信息失败", err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👤 当前账号: <b>%s</b> (#%d)", escape(user.Username), user.ID))
}
