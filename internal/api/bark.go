package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"autobot-console/internal/model"
)

// PageQuery is the page/limit pair of the bark lists.
type PageQuery struct {
	Page  int
	Limit int
}

func (q PageQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) ListServers(ctx context.Context, q PageQuery) (*model.ServerPage, error) {
	var page model.ServerPage
	if err := c.Get(ctx, "/api/bark/servers", q.values(), &page); err != nil {
		return nil, fmt.Errorf("list bark servers: %w", err)
	}
	return &page, nil
}

func (c *Client) GetServer(ctx context.Context, id uint) (*model.BarkServer, error) {
	var server model.BarkServer
	if err := c.Get(ctx, idPath("/api/bark/servers/%d", id), nil, &server); err != nil {
		return nil, fmt.Errorf("get bark server %d: %w", id, err)
	}
	return &server, nil
}

func (c *Client) CreateServer(ctx context.Context, in model.BarkServerInput) (*model.BarkServer, error) {
	var server model.BarkServer
	if err := c.Post(ctx, "/api/bark/servers", in, &server); err != nil {
		return nil, fmt.Errorf("create bark server: %w", err)
	}
	return &server, nil
}

func (c *Client) UpdateServer(ctx context.Context, id uint, in model.BarkServerInput) (*model.BarkServer, error) {
	var server model.BarkServer
	if err := c.Put(ctx, idPath("/api/bark/servers/%d", id), in, &server); err != nil {
		return nil, fmt.Errorf("update bark server %d: %w", id, err)
	}
	return &server, nil
}

func (c *Client) DeleteServer(ctx context.Context, id uint) error {
	if err := c.Delete(ctx, idPath("/api/bark/servers/%d", id), nil); err != nil {
		return fmt.Errorf("delete bark server %d: %w", id, err)
	}
	return nil
}

func (c *Client) ListDevices(ctx context.Context, q PageQuery) (*model.DevicePage, error) {
	var page model.DevicePage
	if err := c.Get(ctx, "/api/bark/devices", q.values(), &page); err != nil {
		return nil, fmt.Errorf("list bark devices: %w", err)
	}
	return &page, nil
}

func (c *Client) GetDevice(ctx context.Context, id uint) (*model.BarkDevice, error) {
	var device model.BarkDevice
	if err := c.Get(ctx, idPath("/api/bark/devices/%d", id), nil, &device); err != nil {
		return nil, fmt.Errorf("get bark device %d: %w", id, err)
	}
	return &device, nil
}

func (c *Client) CreateDevice(ctx context.Context, in model.BarkDeviceInput) (*model.BarkDevice, error) {
	var device model.BarkDevice
	if err := c.Post(ctx, "/api/bark/devices", in, &device); err != nil {
		return nil, fmt.Errorf("create bark device: %w", err)
	}
	return &device, nil
}

func (c *Client) UpdateDevice(ctx context.Context, id uint, in model.BarkDeviceInput) (*model.BarkDevice, error) {
	var device model.BarkDevice
	if err := c.Put(ctx, idPath("/api/bark/devices/%d", id), in, &device); err != nil {
		return nil, fmt.Errorf("update bark device %d: %w", id, err)
	}
	return &device, nil
}

func (c *Client) DeleteDevice(ctx context.Context, id uint) error {
	if err := c.Delete(ctx, idPath("/api/bark/devices/%d", id), nil); err != nil {
		return fmt.Errorf("delete bark device %d: %w", id, err)
	}
	return nil
}

func (c *Client) BarkStats(ctx context.Context) (*model.BarkStats, error) {
	var stats model.BarkStats
	if err := c.Get(ctx, "/api/bark/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("get bark stats: %w", err)
	}
	return &stats, nil
}

func (c *Client) DeleteAllBarkRecords(ctx context.Context) (*model.BulkDeleteResult, error) {
	var res model.BulkDeleteResult
	if err := c.Delete(ctx, "/api/bark/records/all", &res); err != nil {
		return nil, fmt.Errorf("delete all bark records: %w", err)
	}
	return &res, nil
}

// RecordQuery filters /api/bark/records. A zero TaskID lists every task.
type RecordQuery struct {
	TaskID   uint
	Page     int
	PageSize int
}

func (q RecordQuery) values() url.Values {
	v := url.Values{}
	if q.TaskID != 0 {
		v.Set("task_id", strconv.FormatUint(uint64(q.TaskID), 10))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	return v
}

func (c *Client) ListBarkRecords(ctx context.Context, q RecordQuery) (*model.BarkRecordPage, error) {
	var page model.BarkRecordPage
	if err := c.Get(ctx, "/api/bark/records", q.values(), &page); err != nil {
		return nil, fmt.Errorf("list bark records: %w", err)
	}
	return &page, nil
}

// DeviceSelection lists the active devices a task can push to.
func (c *Client) DeviceSelection(ctx context.Context) ([]model.BarkDevice, error) {
	var res model.DeviceSelection
	if err := c.Get(ctx, "/api/bark/devices/selection", nil, &res); err != nil {
		return nil, fmt.Errorf("list selectable bark devices: %w", err)
	}
	return res.Devices, nil
}
