package model

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Task is a scheduled script as served by the autobot API.
type Task struct {
	ID                  uint       `json:"id"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	Script              string     `json:"script"`
	CronExpr            string     `json:"cron_expr"`
	Status              string     `json:"status"`
	BarkConfig          string     `json:"bark_config"`
	TimeExclusionConfig string     `json:"time_exclusion_config"`
	LastRun             *time.Time `json:"last_run"`
	NextRun             *time.Time `json:"next_run"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Active reports whether the scheduler currently fires the task.
func (t Task) Active() bool {
	return t.Status == StatusActive
}

// TaskInput is the create/update body. Empty fields are left untouched by the server on update.
type TaskInput struct {
	Name                string `json:"name,omitempty"`
	Description         string `json:"description,omitempty"`
	Script              string `json:"script,omitempty"`
	CronExpr            string `json:"cron_expr,omitempty"`
	Status              string `json:"status,omitempty"`
	BarkConfig          string `json:"bark_config,omitempty"`
	TimeExclusionConfig string `json:"time_exclusion_config,omitempty"`
}

// TaskLog is one execution attempt.
type TaskLog struct {
	ID        uint      `json:"id"`
	TaskID    uint      `json:"task_id"`
	Task      Task      `json:"task"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
	Output    string    `json:"output"`
	Error     string    `json:"error"`
	Result    string    `json:"result"`
	Duration  int64     `json:"duration"` // milliseconds
	CreatedAt time.Time `json:"created_at"`
}

// TaskResult is the latest successful result of a task.
type TaskResult struct {
	TaskID    uint           `json:"task_id"`
	LogID     uint           `json:"log_id"`
	Result    map[string]any `json:"result"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	RuleDaily     = "daily"
	RuleWeekly    = "weekly"
	RuleDateRange = "date_range"
)

// TimeExclusionConfig is stored as JSON in Task.TimeExclusionConfig.
type TimeExclusionConfig struct {
	Enabled        bool                `json:"enabled"`
	ExclusionRules []TimeExclusionRule `json:"exclusion_rules"`
}

// TimeExclusionRule is a window during which the schedule must not fire.
type TimeExclusionRule struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Weekdays    []int  `json:"weekdays"` // 0 = Sunday
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Description string `json:"description"`
}
