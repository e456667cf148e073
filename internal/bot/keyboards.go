package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autobot-console/internal/view"
)

const (
	btnSkip          = "⏭️ 跳过"
	btnConfirm       = "✅ 确定"
	btnCancel        = "↩️ 取消"
	btnCancelDialog  = "⏪ 取消输入"
	menuLabelTasks   = "📋 任务"
	menuLabelNewTask = "➕ 新建任务"
	menuLabelLogs    = "📜 日志"
	menuLabelBark    = "🔔 Bark"
	menuLabelStats   = "📊 统计"
	menuLabelHelp    = "ℹ️ 帮助"
)

// Telegram allows at most eight buttons in one inline row.
const maxRowButtons = 8

func button(text, data string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, data)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelNewTask),
			tgbotapi.NewKeyboardButton(menuLabelLogs),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelBark),
			tgbotapi.NewKeyboardButton(menuLabelStats),
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSkip),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// cronKeyboard offers a few common expressions while typing one in.
func cronKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("0 */5 * * * *"),
			tgbotapi.NewKeyboardButton("0 0 * * * *"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("0 0 2 * * *"),
			tgbotapi.NewKeyboardButton("0 0 9 * * 1-5"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCancelDialog),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

// pagerRows renders page links and prev/next buttons as "<prefix><page>" callbacks.
func pagerRows(prefix string, p view.Pager) [][]tgbotapi.InlineKeyboardButton {
	if !p.Visible() {
		return nil
	}
	var links []tgbotapi.InlineKeyboardButton
	for _, l := range p.Links {
		if l.Gap {
			links = append(links, button(l.Label(), cbNoop))
			continue
		}
		links = append(links, button(l.Label(), fmt.Sprintf("%s%d", prefix, l.Page)))
	}
	rows := chunk(links, maxRowButtons)

	var nav []tgbotapi.InlineKeyboardButton
	if p.HasPrev {
		nav = append(nav, button("⬅️ 上一页", fmt.Sprintf("%s%d", prefix, p.Page-1)))
	}
	if p.HasNext {
		nav = append(nav, button("下一页 ➡️", fmt.Sprintf("%s%d", prefix, p.Page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return rows
}

func chunk(buttons []tgbotapi.InlineKeyboardButton, size int) [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for len(buttons) > size {
		rows = append(rows, buttons[:size])
		buttons = buttons[size:]
	}
	if len(buttons) > 0 {
		rows = append(rows, buttons)
	}
	return rows
}

func markup(rows [][]tgbotapi.InlineKeyboardButton) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// selected marks the active choice of a button group.
func selected(label string, on bool) string {
	if on {
		return "• " + label + " •"
	}
	return label
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "跳过" || value == "skip"
}

func isCancelDialogInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancelDialog) || value == "取消输入" || value == "取消"
}
