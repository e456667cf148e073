package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

func TestBarkSaveServerRequiresFields(t *testing.T) {
	client, srv := newTestAPI(t)
	notes := &recordingNotifier{}
	bark := NewBark(client, notes, &answeringConfirmer{})

	err := bark.SaveServer(context.Background(), 0, model.BarkServerInput{Name: "主服务器", URL: "   "})
	if !errors.Is(err, ErrRequiredFields) {
		t.Fatalf("expected ErrRequiredFields, got %v", err)
	}
	if n := notes.last(t); n.message != "请填写必填字段" || n.level != notify.Error {
		t.Fatalf("unexpected toast %+v", n)
	}
	if hits := srv.Hits(http.MethodPost, "/api/bark/servers"); hits != 0 {
		t.Fatalf("expected no request, got %d", hits)
	}
}

func TestBarkServerCRUD(t *testing.T) {
	client, srv := newTestAPI(t)
	notes := &recordingNotifier{}
	bark := NewBark(client, notes, &answeringConfirmer{answer: true})
	ctx := context.Background()

	if err := bark.SaveServer(ctx, 0, model.BarkServerInput{Name: " 主服务器 ", URL: "https://api.day.app"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := notes.last(t); n.message != "服务器创建成功" {
		t.Fatalf("unexpected toast %q", n.message)
	}
	view := bark.Servers()
	if view.Total != 1 || view.Items[0].Name != "主服务器" || view.Limit != BarkPageSize {
		t.Fatalf("expected reloaded table with trimmed name, got %+v", view)
	}

	id := view.Items[0].ID
	if err := bark.SaveServer(ctx, id, model.BarkServerInput{Name: "备用", URL: "https://push.example.com"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if n := notes.last(t); n.message != "服务器更新成功" {
		t.Fatalf("unexpected toast %q", n.message)
	}

	if err := bark.DeleteServer(ctx, model.BarkServer{ID: id, Name: "备用"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := notes.last(t); n.message != "服务器删除成功" {
		t.Fatalf("unexpected toast %q", n.message)
	}
	if len(srv.Servers()) != 0 {
		t.Fatalf("expected server to be removed")
	}
}

func TestBarkDeleteFailure(t *testing.T) {
	client, srv := newTestAPI(t)
	d := srv.AddDevice(model.BarkDevice{Name: "iPhone", DeviceKey: "k"})
	srv.Inject(http.MethodDelete, "/api/bark/devices/1", http.StatusConflict, `{"error":"设备正在使用"}`)
	notes := &recordingNotifier{}
	confirm := &answeringConfirmer{answer: true}
	bark := NewBark(client, notes, confirm)

	if err := bark.DeleteDevice(context.Background(), d); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if confirm.bodies[0] != `确定要删除设备 "iPhone" 吗？此操作不可恢复。` {
		t.Fatalf("unexpected prompt %q", confirm.bodies[0])
	}
	if n := notes.last(t); n.message != "删除失败: 设备正在使用" {
		t.Fatalf("unexpected toast %q", n.message)
	}
}

func TestBarkSaveDevice(t *testing.T) {
	client, srv := newTestAPI(t)
	notes := &recordingNotifier{}
	bark := NewBark(client, notes, &answeringConfirmer{})
	ctx := context.Background()

	if err := bark.SaveDevice(ctx, 0, model.BarkDeviceInput{Name: "iPad"}); !errors.Is(err, ErrRequiredFields) {
		t.Fatalf("expected ErrRequiredFields without a device key, got %v", err)
	}
	if err := bark.SaveDevice(ctx, 0, model.BarkDeviceInput{Name: "iPad", DeviceKey: "abc"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := notes.last(t); n.message != "设备创建成功" {
		t.Fatalf("unexpected toast %q", n.message)
	}
	if devices := srv.Devices(); len(devices) != 1 || devices[0].ServerID != 0 {
		t.Fatalf("expected one device without a server, got %+v", devices)
	}
}

func TestBarkServerOptionsOnlyActive(t *testing.T) {
	client, srv := newTestAPI(t)
	srv.AddServer(model.BarkServer{Name: "on"})
	srv.AddServer(model.BarkServer{Name: "off", Status: model.StatusInactive})
	srv.AddServer(model.BarkServer{Name: "on2"})
	bark := NewBark(client, &recordingNotifier{}, &answeringConfirmer{})

	opts, err := bark.ServerOptions(context.Background())
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if len(opts) != 2 || opts[0].Name != "on" || opts[1].Name != "on2" {
		t.Fatalf("expected the two active servers, got %+v", opts)
	}
}

func TestBarkTabsAndPaging(t *testing.T) {
	client, srv := newTestAPI(t)
	for i := 0; i < 12; i++ {
		srv.AddDevice(model.BarkDevice{Name: "d", DeviceKey: "k"})
	}
	bark := NewBark(client, &recordingNotifier{}, &answeringConfirmer{})
	ctx := context.Background()

	if bark.Tab() != TabServers {
		t.Fatalf("expected servers tab by default")
	}
	if err := bark.SwitchTab(ctx, TabDevices); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if v := bark.Devices(); v.Total != 12 || len(v.Items) != 10 || v.TotalPages() != 2 {
		t.Fatalf("unexpected device page %+v", v.Page)
	}
	if err := bark.ChangeDevicePage(ctx, 2); err != nil {
		t.Fatalf("page: %v", err)
	}
	if v := bark.Devices(); len(v.Items) != 2 {
		t.Fatalf("expected 2 devices on page 2, got %d", len(v.Items))
	}
	if err := bark.SwitchTab(ctx, "records"); err == nil {
		t.Fatalf("expected unknown tab error")
	}
}
