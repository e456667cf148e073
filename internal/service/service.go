package service

import (
	"context"
	"errors"
	"sync/atomic"

	"autobot-console/internal/api"
	"autobot-console/internal/notify"
)

var (
	// ErrBusy is returned when a load is triggered while one is already running.
	ErrBusy = errors.New("正在加载，请稍候")
	// ErrLogNotFound is returned when neither the loaded page nor a re-fetch has the log.
	ErrLogNotFound = errors.New("日志不存在")
	// ErrRequiredFields is returned by bark forms with a missing name, url or device key.
	ErrRequiredFields = errors.New("请填写必填字段")
)

// ValidationError names the form field that failed a client-side check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Notifier shows a toast to the operator the view belongs to.
type Notifier interface {
	Notify(message string, level notify.Level)
}

// Confirmer asks the operator before a destructive action. onConfirm runs only
// after an explicit confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, title, body string, onConfirm func(context.Context)) error
}

// LoadState is where a list view is in its idle → loading → loaded|failed cycle.
type LoadState int

const (
	Idle LoadState = iota
	Loading
	Loaded
	Failed
)

// busyFlag suppresses overlapping loads from the same view.
type busyFlag struct {
	flag atomic.Bool
}

func (b *busyFlag) acquire() bool {
	return b.flag.CompareAndSwap(false, true)
}

func (b *busyFlag) release() {
	b.flag.Store(false)
}

// ErrorText is the message shown to the operator for a failed call.
func ErrorText(err error) string {
	var httpErr *api.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Message
	case errors.Is(err, api.ErrUnauthorized):
		return api.ErrUnauthorized.Error()
	default:
		return err.Error()
	}
}
