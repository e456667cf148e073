package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BarkServer is a push gateway the scheduler delivers notifications through.
type BarkServer struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	IsDefault   bool      `json:"is_default"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BarkDevice is a device key, optionally bound to a server.
type BarkDevice struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	DeviceKey   string     `json:"device_key"`
	Description string     `json:"description"`
	ServerID    uint       `json:"server_id"`
	Server      BarkServer `json:"server"`
	IsDefault   bool       `json:"is_default"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type BarkServerInput struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
	Status      string `json:"status,omitempty"`
}

type BarkDeviceInput struct {
	Name        string `json:"name"`
	DeviceKey   string `json:"device_key"`
	Description string `json:"description"`
	ServerID    uint   `json:"server_id"`
	IsDefault   bool   `json:"is_default"`
	Status      string `json:"status,omitempty"`
}

// Notification levels of a task's bark config.
const (
	BarkLevelActive        = "active"
	BarkLevelTimeSensitive = "timeSensitive"
	BarkLevelPassive       = "passive"
)

// TaskBarkConfig is the part of Task.BarkConfig the console edits. Title and
// body may hold $key placeholders that the scheduler fills from the task result.
type TaskBarkConfig struct {
	SelectedDeviceIDs []uint `json:"selected_device_ids"`
	Title             string `json:"title"`
	Body              string `json:"body"`
	Level             string `json:"level"`
}

// ParseTaskBarkConfig reads a stored bark config. An empty string is the zero config.
func ParseTaskBarkConfig(raw string) (TaskBarkConfig, error) {
	var cfg TaskBarkConfig
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return TaskBarkConfig{}, fmt.Errorf("parse bark config: %w", err)
	}
	return cfg, nil
}

// MergeTaskBarkConfig writes cfg into raw and keeps every other key raw holds,
// such as sound, group or deduplication settings.
func MergeTaskBarkConfig(raw string, cfg TaskBarkConfig) (string, error) {
	fields := map[string]json.RawMessage{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return "", fmt.Errorf("parse bark config: %w", err)
		}
	}
	ids := cfg.SelectedDeviceIDs
	if ids == nil {
		ids = []uint{}
	}
	for key, value := range map[string]any{
		"selected_device_ids": ids,
		"title":               cfg.Title,
		"body":                cfg.Body,
		"level":               cfg.Level,
	} {
		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encode bark config %s: %w", key, err)
		}
		fields[key] = encoded
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode bark config: %w", err)
	}
	return string(out), nil
}

// TaskBarkKeys lists the result keys of a task's latest run, usable as $key placeholders.
type TaskBarkKeys struct {
	Keys               []string `json:"keys"`
	HasExecutionResult bool     `json:"has_execution_result"`
	TaskID             uint     `json:"task_id"`
}

// BarkRecord is one delivered or failed push.
type BarkRecord struct {
	ID           uint      `json:"id"`
	TaskID       uint      `json:"task_id"`
	DeviceKey    string    `json:"device_key"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Body         string    `json:"body"`
	Level        string    `json:"level"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
