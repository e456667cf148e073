package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/cronbuilder"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageLoginUsername
	stageLoginPassword
	stageTaskName
	stageTaskDescription
	stageTaskCron
	stageTaskScript
	stageRuleTimes
	stageRuleDates
	stageRuleName
	stageCronField
	stageServerName
	stageServerURL
	stageServerDescription
	stageDeviceName
	stageDeviceKey
	stageDeviceDescription
	stagePushTitle
	stagePushBody
)

type conversationState struct {
	stage conversationStage
	// single is set when one field is edited from a form panel; the panel is
	// shown again after the answer instead of moving to the next step.
	single bool

	username string
	rule     int
	field    cronbuilder.Field
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageLoginUsername, stageLoginPassword:
		return b.continueLogin(ctx, msg, state, text)
	}

	c, err := b.loggedInChat(ctx, msg.From, msg.Chat.ID)
	if err != nil || c == nil {
		b.clearConversation(msg.From.ID)
		return err
	}

	switch state.stage {
	case stageTaskName, stageTaskDescription, stageTaskCron, stageTaskScript:
		return b.continueTaskForm(c, msg, state, text)
	case stageRuleTimes, stageRuleDates, stageRuleName:
		return b.continueRule(c, msg, state, text)
	case stageCronField:
		return b.continueCronField(c, msg, state, text)
	case stageServerName, stageServerURL, stageServerDescription:
		return b.continueServerForm(c, msg, state, text)
	case stageDeviceName, stageDeviceKey, stageDeviceDescription:
		return b.continueDeviceForm(c, msg, state, text)
	case stagePushTitle, stagePushBody:
		return b.continuePushField(c, msg, state, text)
	}

	b.clearConversation(msg.From.ID)
	return nil
}
