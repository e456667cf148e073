package view

import (
	"fmt"
	"strings"
	"time"

	"autobot-console/internal/format"
	"autobot-console/internal/model"
	"autobot-console/internal/service"
)

func defaultMark(isDefault bool) string {
	if isDefault {
		return " ⭐ 默认"
	}
	return ""
}

// ServerRow is one line of the server table.
func ServerRow(s model.BarkServer, loc *time.Location) string {
	return fmt.Sprintf("#%d <b>%s</b>%s  %s\n   🌐 %s · %s",
		s.ID, format.Escape(s.Name), defaultMark(s.IsDefault), format.Badge(s.Status),
		format.Escape(s.URL), format.DateTime(s.CreatedAt, loc))
}

// DeviceRow is one line of the device table. Devices without a server use the default one.
func DeviceRow(d model.BarkDevice, loc *time.Location) string {
	server := "默认服务器"
	if d.ServerID != 0 {
		server = d.Server.Name
		if server == "" {
			server = fmt.Sprintf("服务器 %d", d.ServerID)
		}
	}
	return fmt.Sprintf("#%d <b>%s</b>%s  %s\n   🔑 <code>%s</code> · %s · %s",
		d.ID, format.Escape(d.Name), defaultMark(d.IsDefault), format.Badge(d.Status),
		format.Escape(format.Truncate(d.DeviceKey, 16)), format.Escape(server),
		format.DateTime(d.CreatedAt, loc))
}

// ServerTable renders the servers tab.
func ServerTable(v service.TableView[model.BarkServer], loc *time.Location) string {
	return table("🖥 <b>Bark 服务器</b>", "暂无服务器", v.State, v.Err, v.Page, len(v.Items), func(b *strings.Builder) {
		for _, s := range v.Items {
			b.WriteString(ServerRow(s, loc))
			b.WriteString("\n")
		}
	})
}

// DeviceTable renders the devices tab.
func DeviceTable(v service.TableView[model.BarkDevice], loc *time.Location) string {
	return table("📱 <b>Bark 设备</b>", "暂无设备", v.State, v.Err, v.Page, len(v.Items), func(b *strings.Builder) {
		for _, d := range v.Items {
			b.WriteString(DeviceRow(d, loc))
			b.WriteString("\n")
		}
	})
}

func table(title, empty string, state service.LoadState, err error, page model.Page, n int, rows func(b *strings.Builder)) string {
	switch state {
	case service.Loading:
		return "⏳ 正在加载..."
	case service.Failed:
		return Failed(err)
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s · 共 %d 个\n\n", title, page.Total))
	if n == 0 {
		b.WriteString("📭 " + empty)
		return b.String()
	}
	rows(&b)
	if pager := NewPager(page); pager.Visible() {
		b.WriteString("\n")
		b.WriteString(pager.Summary())
	}
	return strings.TrimSpace(b.String())
}

// ServerForm summarises a server form being filled in.
func ServerForm(id uint, in model.BarkServerInput) string {
	title := "🆕 <b>添加服务器</b>"
	if id != 0 {
		title = fmt.Sprintf("✏️ <b>编辑服务器</b> #%d", id)
	}
	return fmt.Sprintf("%s\n\n名称: %s\nURL: %s\n描述: %s\n默认: %s\n状态: %s",
		title, orDash(in.Name), orDash(in.URL), orDash(in.Description), yesNo(in.IsDefault), format.Badge(statusOrActive(in.Status)))
}

// DeviceForm summarises a device form being filled in.
func DeviceForm(id uint, in model.BarkDeviceInput, servers []model.BarkServer) string {
	title := "🆕 <b>添加设备</b>"
	if id != 0 {
		title = fmt.Sprintf("✏️ <b>编辑设备</b> #%d", id)
	}
	server := "默认服务器"
	for _, s := range servers {
		if s.ID == in.ServerID {
			server = s.Name
			break
		}
	}
	return fmt.Sprintf("%s\n\n名称: %s\n设备Key: %s\n服务器: %s\n描述: %s\n默认: %s\n状态: %s",
		title, orDash(in.Name), orDash(in.DeviceKey), format.Escape(server), orDash(in.Description), yesNo(in.IsDefault), format.Badge(statusOrActive(in.Status)))
}

func yesNo(v bool) string {
	if v {
		return "是"
	}
	return "否"
}

func statusOrActive(status string) string {
	if status == "" {
		return model.StatusActive
	}
	return status
}

var barkLevelLabels = map[string]string{
	"":                           "默认",
	model.BarkLevelActive:        "立即显示",
	model.BarkLevelTimeSensitive: "时效性通知",
	model.BarkLevelPassive:       "静默通知",
}

// BarkLevel names a notification level.
func BarkLevel(level string) string {
	if label, ok := barkLevelLabels[level]; ok {
		return label
	}
	return format.Escape(level)
}

// TaskBarkSettings renders a task's push settings draft.
func TaskBarkSettings(v service.TaskBarkView) string {
	switch v.State {
	case service.Loading:
		return "⏳ 正在加载..."
	case service.Failed:
		return Failed(v.Err)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔔 <b>推送设置</b> · %s\n\n", format.Escape(v.Task.Name)))

	var names []string
	for _, d := range v.Devices {
		if v.Selected(d.ID) {
			names = append(names, format.Escape(d.Name))
		}
	}
	if missing := len(v.Config.SelectedDeviceIDs) - len(names); missing > 0 {
		names = append(names, fmt.Sprintf("%d 个已停用设备", missing))
	}
	devices := "默认设备"
	if len(names) > 0 {
		devices = strings.Join(names, "、")
	}
	b.WriteString(fmt.Sprintf("设备: %s\n", devices))
	b.WriteString(fmt.Sprintf("标题: %s\n", orDash(v.Config.Title)))
	b.WriteString(fmt.Sprintf("内容: %s\n", orDash(v.Config.Body)))
	b.WriteString(fmt.Sprintf("级别: %s\n", BarkLevel(v.Config.Level)))

	b.WriteString("\n")
	switch {
	case len(v.Keys) > 0:
		keys := make([]string, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = "<code>$" + format.Escape(k) + "</code>"
		}
		b.WriteString("可用变量: " + strings.Join(keys, " "))
	case v.HasResult:
		b.WriteString("💡 最近一次执行没有返回 JSON 结果，暂无可用变量")
	default:
		b.WriteString("💡 任务执行后可使用结果中的字段作为变量")
	}
	if v.Dirty {
		b.WriteString("\n\n✏️ 有未保存的修改")
	}
	return b.String()
}

// BarkRecordRow is one line of the push history.
func BarkRecordRow(r model.BarkRecord, loc *time.Location) string {
	row := fmt.Sprintf("%s <b>%s</b> · %s\n   🔑 <code>%s</code>",
		format.StatusIcon(r.Status), orDash(r.Title), format.DateTime(r.CreatedAt, loc),
		format.Escape(format.Truncate(r.DeviceKey, 16)))
	if r.Body != "" {
		row += "\n   " + format.Escape(format.Truncate(r.Body, 60))
	}
	if r.ErrorMessage != "" {
		row += "\n   ❌ " + format.Escape(format.Truncate(r.ErrorMessage, 60))
	}
	return row
}

// BarkRecords renders the push history of one task.
func BarkRecords(task model.Task, v service.TableView[model.BarkRecord], loc *time.Location) string {
	title := fmt.Sprintf("📨 <b>推送记录</b> · %s", format.Escape(task.Name))
	return table(title, "暂无推送记录", v.State, v.Err, v.Page, len(v.Items), func(b *strings.Builder) {
		for _, r := range v.Items {
			b.WriteString(BarkRecordRow(r, loc))
			b.WriteString("\n")
		}
	})
}
