package model

import "time"

// Page carries the paging fields shared by every list envelope.
type Page struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// TotalPages returns ceil(total/limit), zero when nothing can be paged.
func (p Page) TotalPages() int {
	if p.Limit <= 0 || p.Total <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

type TaskPage struct {
	Tasks []Task `json:"tasks"`
	Page
}

type LogPage struct {
	Logs []TaskLog `json:"logs"`
	Page
}

type ServerPage struct {
	Servers []BarkServer `json:"servers"`
	Page
}

type DevicePage struct {
	Devices []BarkDevice `json:"devices"`
	Page
}

// BarkRecordPage is /api/bark/records. It pages with page_size instead of limit.
type BarkRecordPage struct {
	Records  []BarkRecord `json:"records"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// DeviceSelection is /api/bark/devices/selection: active devices, defaults first.
type DeviceSelection struct {
	Devices []BarkDevice `json:"devices"`
}

// Message is the plain `{message}` acknowledgement.
type Message struct {
	Message string `json:"message"`
}

type DeleteTaskResult struct {
	Message     string `json:"message"`
	TaskName    string `json:"task_name"`
	DeletedLogs int64  `json:"deleted_logs"`
}

type BulkDeleteResult struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}

type ScriptValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type LoginResult struct {
	Message string      `json:"message"`
	User    AccountUser `json:"user"`
}

// LogStats mirrors /api/logs/stats.
type LogStats struct {
	TotalLogs      int64      `json:"total_logs"`
	MaxTotalLogs   int64      `json:"max_total_logs"`
	MaxLogsPerTask int64      `json:"max_logs_per_task"`
	OldestLog      *time.Time `json:"oldest_log"`
	NewestLog      *time.Time `json:"newest_log"`
}

// BarkStats mirrors /api/bark/stats.
type BarkStats struct {
	TotalRecords   int64      `json:"total_records"`
	SuccessRecords int64      `json:"success_records"`
	FailedRecords  int64      `json:"failed_records"`
	MaxRecords     int64      `json:"max_records"`
	OldestRecord   *time.Time `json:"oldest_record"`
	NewestRecord   *time.Time `json:"newest_record"`
}
