package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"autobot-console/internal/model"
)

// TaskQuery filters /api/tasks.
type TaskQuery struct {
	Page   int
	Limit  int
	Status string
}

func (q TaskQuery) values() url.Values {
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

func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (*model.TaskPage, error) {
	var page model.TaskPage
	if err := c.Get(ctx, "/api/tasks", q.values(), &page); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return &page, nil
}

func (c *Client) GetTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := c.Get(ctx, idPath("/api/tasks/%d", id), nil, &task); err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return &task, nil
}

func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.Post(ctx, "/api/tasks", in, &task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

// UpdateTask sends only the non-empty fields of in.
func (c *Client) UpdateTask(ctx context.Context, id uint, in model.TaskInput) (*model.Task, error) {
	var task model.Task
	if err := c.Put(ctx, idPath("/api/tasks/%d", id), in, &task); err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return &task, nil
}

// SetTaskStatus is the activate/deactivate toggle.
func (c *Client) SetTaskStatus(ctx context.Context, id uint, status string) (*model.Task, error) {
	return c.UpdateTask(ctx, id, model.TaskInput{Status: status})
}

func (c *Client) DeleteTask(ctx context.Context, id uint) (*model.DeleteTaskResult, error) {
	var res model.DeleteTaskResult
	if err := c.Delete(ctx, idPath("/api/tasks/%d", id), &res); err != nil {
		return nil, fmt.Errorf("delete task %d: %w", id, err)
	}
	return &res, nil
}

func (c *Client) RunTask(ctx context.Context, id uint) (*model.Message, error) {
	var msg model.Message
	if err := c.Post(ctx, idPath("/api/tasks/%d/run", id), nil, &msg); err != nil {
		return nil, fmt.Errorf("run task %d: %w", id, err)
	}
	return &msg, nil
}

func (c *Client) TaskResult(ctx context.Context, id uint) (*model.TaskResult, error) {
	var res model.TaskResult
	if err := c.Get(ctx, idPath("/api/tasks/%d/result", id), nil, &res); err != nil {
		return nil, fmt.Errorf("get result of task %d: %w", id, err)
	}
	return &res, nil
}

// UpdateTaskBarkConfig replaces the task's bark config with the given JSON document.
func (c *Client) UpdateTaskBarkConfig(ctx context.Context, id uint, config string) (*model.Message, error) {
	var msg model.Message
	body := map[string]string{"bark_config": config}
	if err := c.Put(ctx, idPath("/api/tasks/%d/bark-config", id), body, &msg); err != nil {
		return nil, fmt.Errorf("update bark config of task %d: %w", id, err)
	}
	return &msg, nil
}

func (c *Client) TaskBarkKeys(ctx context.Context, id uint) (*model.TaskBarkKeys, error) {
	var keys model.TaskBarkKeys
	if err := c.Get(ctx, idPath("/api/tasks/%d/bark-keys", id), nil, &keys); err != nil {
		return nil, fmt.Errorf("get bark keys of task %d: %w", id, err)
	}
	return &keys, nil
}

// ValidateScript asks the server to syntax-check a script. An invalid script is a
// normal response with Valid false.
func (c *Client) ValidateScript(ctx context.Context, script string) (*model.ScriptValidation, error) {
	var res model.ScriptValidation
	body := map[string]string{"script": script}
	if err := c.Post(ctx, "/api/validate-script", body, &res); err != nil {
		return nil, fmt.Errorf("validate script: %w", err)
	}
	return &res, nil
}
