package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"autobot-console/internal/model"
)

// LogQuery filters /api/tasks/{id}/logs.
type LogQuery struct {
	Page   int
	Limit  int
	Status string
}

func (q LogQuery) values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	return v
}

func (c *Client) ListTaskLogs(ctx context.Context, taskID uint, q LogQuery) (*model.LogPage, error) {
	var page model.LogPage
	if err := c.Get(ctx, idPath("/api/tasks/%d/logs", taskID), q.values(), &page); err != nil {
		return nil, fmt.Errorf("list logs of task %d: %w", taskID, err)
	}
	return &page, nil
}

func (c *Client) DeleteTaskLogs(ctx context.Context, taskID uint) (*model.BulkDeleteResult, error) {
	var res model.BulkDeleteResult
	if err := c.Delete(ctx, idPath("/api/tasks/%d/logs", taskID), &res); err != nil {
		return nil, fmt.Errorf("delete logs of task %d: %w", taskID, err)
	}
	return &res, nil
}

func (c *Client) DeleteAllLogs(ctx context.Context) (*model.BulkDeleteResult, error) {
	var res model.BulkDeleteResult
	if err := c.Delete(ctx, "/api/logs/all", &res); err != nil {
		return nil, fmt.Errorf("delete all logs: %w", err)
	}
	return &res, nil
}

func (c *Client) LogStats(ctx context.Context) (*model.LogStats, error) {
	var stats model.LogStats
	if err := c.Get(ctx, "/api/logs/stats", nil, &stats); err != nil {
		return nil, fmt.Errorf("get log stats: %w", err)
	}
	return &stats, nil
}
