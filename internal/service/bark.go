package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"autobot-console/internal/api"
	"autobot-console/internal/model"
	"autobot-console/internal/notify"
)

const (
	// BarkPageSize is the page size of both bark tables.
	BarkPageSize = 10
	// serverOptionsLimit bounds the server choices offered in the device form.
	serverOptionsLimit = 100
)

// Bark tabs.
const (
	TabServers = "servers"
	TabDevices = "devices"
)

// BarkAPI is the part of the autobot API the bark page uses.
type BarkAPI interface {
	ListServers(ctx context.Context, q api.PageQuery) (*model.ServerPage, error)
	GetServer(ctx context.Context, id uint) (*model.BarkServer, error)
	CreateServer(ctx context.Context, in model.BarkServerInput) (*model.BarkServer, error)
	UpdateServer(ctx context.Context, id uint, in model.BarkServerInput) (*model.BarkServer, error)
	DeleteServer(ctx context.Context, id uint) error
	ListDevices(ctx context.Context, q api.PageQuery) (*model.DevicePage, error)
	GetDevice(ctx context.Context, id uint) (*model.BarkDevice, error)
	CreateDevice(ctx context.Context, in model.BarkDeviceInput) (*model.BarkDevice, error)
	UpdateDevice(ctx context.Context, id uint, in model.BarkDeviceInput) (*model.BarkDevice, error)
	DeleteDevice(ctx context.Context, id uint) error
}

// TableView is a consistent copy of one paged table.
type TableView[T any] struct {
	State LoadState
	Err   error
	Items []T
	model.Page
}

type pagedTable[T any] struct {
	loading busyFlag
	fetch   func(ctx context.Context, page int) ([]T, int, error)

	mu    sync.Mutex
	page  int
	total int
	items []T
	state LoadState
	err   error
}

func newPagedTable[T any](fetch func(ctx context.Context, page int) ([]T, int, error)) *pagedTable[T] {
	return &pagedTable[T]{fetch: fetch, page: 1}
}

func (t *pagedTable[T]) load(ctx context.Context) error {
	if !t.loading.acquire() {
		return ErrBusy
	}
	defer t.loading.release()

	t.mu.Lock()
	page := t.page
	t.state = Loading
	t.mu.Unlock()

	items, total, err := t.fetch(ctx, page)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.state = Failed
		t.err = err
		return err
	}
	t.state = Loaded
	t.err = nil
	t.items = items
	t.total = total
	return nil
}

func (t *pagedTable[T]) changePage(ctx context.Context, p int) error {
	t.mu.Lock()
	if p < 1 || p == t.page {
		t.mu.Unlock()
		return nil
	}
	t.page = p
	t.mu.Unlock()
	return t.load(ctx)
}

func (t *pagedTable[T]) view() TableView[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TableView[T]{
		State: t.state,
		Err:   t.err,
		Items: append([]T(nil), t.items...),
		Page:  model.Page{Total: t.total, Page: t.page, Limit: BarkPageSize},
	}
}

// Bark manages push servers and devices behind two tabs.
type Bark struct {
	api     BarkAPI
	notes   Notifier
	confirm Confirmer

	servers *pagedTable[model.BarkServer]
	devices *pagedTable[model.BarkDevice]

	mu  sync.Mutex
	tab string
}

func NewBark(barkAPI BarkAPI, notes Notifier, confirm Confirmer) *Bark {
	b := &Bark{api: barkAPI, notes: notes, confirm: confirm, tab: TabServers}
	b.servers = newPagedTable(func(ctx context.Context, page int) ([]model.BarkServer, int, error) {
		res, err := barkAPI.ListServers(ctx, api.PageQuery{Page: page, Limit: BarkPageSize})
		if err != nil {
			return nil, 0, err
		}
		return res.Servers, res.Total, nil
	})
	b.devices = newPagedTable(func(ctx context.Context, page int) ([]model.BarkDevice, int, error) {
		res, err := barkAPI.ListDevices(ctx, api.PageQuery{Page: page, Limit: BarkPageSize})
		if err != nil {
			return nil, 0, err
		}
		return res.Devices, res.Total, nil
	})
	return b
}

func (b *Bark) Tab() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tab
}

// SwitchTab selects a tab and loads its table.
func (b *Bark) SwitchTab(ctx context.Context, tab string) error {
	if tab != TabServers && tab != TabDevices {
		return fmt.Errorf("unknown bark tab %q", tab)
	}
	b.mu.Lock()
	b.tab = tab
	b.mu.Unlock()
	if tab == TabDevices {
		return b.LoadDevices(ctx)
	}
	return b.LoadServers(ctx)
}

func (b *Bark) LoadServers(ctx context.Context) error {
	if err := b.servers.load(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return fmt.Errorf("load servers: %w", err)
	}
	return nil
}

func (b *Bark) LoadDevices(ctx context.Context) error {
	if err := b.devices.load(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			return err
		}
		return fmt.Errorf("load devices: %w", err)
	}
	return nil
}

func (b *Bark) ChangeServerPage(ctx context.Context, p int) error {
	return b.servers.changePage(ctx, p)
}

func (b *Bark) ChangeDevicePage(ctx context.Context, p int) error {
	return b.devices.changePage(ctx, p)
}

func (b *Bark) Servers() TableView[model.BarkServer] {
	return b.servers.view()
}

func (b *Bark) Devices() TableView[model.BarkDevice] {
	return b.devices.view()
}

func (b *Bark) Server(ctx context.Context, id uint) (*model.BarkServer, error) {
	return b.api.GetServer(ctx, id)
}

func (b *Bark) Device(ctx context.Context, id uint) (*model.BarkDevice, error) {
	return b.api.GetDevice(ctx, id)
}

// SaveServer creates the server when id is 0 and updates it otherwise.
func (b *Bark) SaveServer(ctx context.Context, id uint, in model.BarkServerInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.URL = strings.TrimSpace(in.URL)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" || in.URL == "" {
		b.notes.Notify(ErrRequiredFields.Error(), notify.Error)
		return ErrRequiredFields
	}

	var err error
	if id == 0 {
		_, err = b.api.CreateServer(ctx, in)
	} else {
		_, err = b.api.UpdateServer(ctx, id, in)
	}
	if err != nil {
		b.notes.Notify("保存失败: "+ErrorText(err), notify.Error)
		return err
	}

	if id == 0 {
		b.notes.Notify("服务器创建成功", notify.Success)
	} else {
		b.notes.Notify("服务器更新成功", notify.Success)
	}
	b.reload(ctx, b.servers.load)
	return nil
}

// DeleteServer asks, then deletes the server.
func (b *Bark) DeleteServer(ctx context.Context, server model.BarkServer) error {
	body := fmt.Sprintf("确定要删除服务器 \"%s\" 吗？此操作不可恢复。", server.Name)
	return b.confirm.Confirm(ctx, "删除服务器", body, func(ctx context.Context) {
		if err := b.api.DeleteServer(ctx, server.ID); err != nil {
			b.notes.Notify("删除失败: "+ErrorText(err), notify.Error)
			return
		}
		log.Printf("[info] bark server %d deleted", server.ID)
		b.notes.Notify("服务器删除成功", notify.Success)
		b.reload(ctx, b.servers.load)
	})
}

// SaveDevice creates the device when id is 0 and updates it otherwise.
func (b *Bark) SaveDevice(ctx context.Context, id uint, in model.BarkDeviceInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.DeviceKey = strings.TrimSpace(in.DeviceKey)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" || in.DeviceKey == "" {
		b.notes.Notify(ErrRequiredFields.Error(), notify.Error)
		return ErrRequiredFields
	}

	var err error
	if id == 0 {
		_, err = b.api.CreateDevice(ctx, in)
	} else {
		_, err = b.api.UpdateDevice(ctx, id, in)
	}
	if err != nil {
		b.notes.Notify("保存失败: "+ErrorText(err), notify.Error)
		return err
	}

	if id == 0 {
		b.notes.Notify("设备创建成功", notify.Success)
	} else {
		b.notes.Notify("设备更新成功", notify.Success)
	}
	b.reload(ctx, b.devices.load)
	return nil
}

// DeleteDevice asks, then deletes the device.
func (b *Bark) DeleteDevice(ctx context.Context, device model.BarkDevice) error {
	body := fmt.Sprintf("确定要删除设备 \"%s\" 吗？此操作不可恢复。", device.Name)
	return b.confirm.Confirm(ctx, "删除设备", body, func(ctx context.Context) {
		if err := b.api.DeleteDevice(ctx, device.ID); err != nil {
			b.notes.Notify("删除失败: "+ErrorText(err), notify.Error)
			return
		}
		log.Printf("[info] bark device %d deleted", device.ID)
		b.notes.Notify("设备删除成功", notify.Success)
		b.reload(ctx, b.devices.load)
	})
}

// ServerOptions lists the active servers a device can be bound to. It is
// fetched fresh every time the device form opens.
func (b *Bark) ServerOptions(ctx context.Context) ([]model.BarkServer, error) {
	res, err := b.api.ListServers(ctx, api.PageQuery{Limit: serverOptionsLimit})
	if err != nil {
		return nil, fmt.Errorf("load server options: %w", err)
	}
	var active []model.BarkServer
	for _, s := range res.Servers {
		if s.Status == model.StatusActive {
			active = append(active, s)
		}
	}
	return active, nil
}

func (b *Bark) reload(ctx context.Context, load func(context.Context) error) {
	if err := load(ctx); err != nil && !errors.Is(err, ErrBusy) {
		log.Printf("reload bark table: %v", err)
	}
}
