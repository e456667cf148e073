// Package notify shows transient toasts and asks for confirmations in a chat.
package notify

import (
	"fmt"
	"log"
	"sync"
	"time"

	"autobot-console/internal/format"
)

// Level selects the toast icon.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

func (l Level) icon() string {
	switch l {
	case Success:
		return "✅"
	case Warning:
		return "⚠️"
	case Error:
		return "❌"
	default:
		return "ℹ️"
	}
}

// DefaultToastDuration applies when the toaster is built with a zero duration.
const DefaultToastDuration = 3000 * time.Millisecond

// Surface posts and removes toast messages.
type Surface interface {
	SendToast(chatID int64, text string) (int, error)
	DeleteMessage(chatID int64, messageID int) error
}

// Timer is the part of *time.Timer the toaster needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type toast struct {
	seq       uint64
	messageID int
	timer     Timer
}

// Toaster keeps at most one toast per chat. Telegram calls run outside the
// lock; latest records the newest request per chat so a slower older send
// removes its own message instead of replacing a newer toast.
type Toaster struct {
	surface   Surface
	duration  time.Duration
	afterFunc AfterFunc

	mu      sync.Mutex
	seq     uint64
	latest  map[int64]uint64
	current map[int64]*toast
}

func NewToaster(surface Surface, duration time.Duration) *Toaster {
	if duration == 0 {
		duration = DefaultToastDuration
	}
	return &Toaster{
		surface:   surface,
		duration:  duration,
		afterFunc: stdAfterFunc,
		latest:    make(map[int64]uint64),
		current:   make(map[int64]*toast),
	}
}

// WithAfterFunc replaces the timer source.
func (t *Toaster) WithAfterFunc(fn AfterFunc) *Toaster {
	t.afterFunc = fn
	return t
}

// Show posts a toast for the default duration.
func (t *Toaster) Show(chatID int64, message string, level Level) error {
	return t.ShowFor(chatID, message, level, t.duration)
}

// ShowFor replaces the chat's current toast. A non-positive duration keeps it until dismissed.
func (t *Toaster) ShowFor(chatID int64, message string, level Level, d time.Duration) error {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.latest[chatID] = seq
	prev := t.detachLocked(chatID)
	t.mu.Unlock()

	t.remove(chatID, prev)

	text := fmt.Sprintf("%s %s", level.icon(), format.Escape(message))
	messageID, err := t.surface.SendToast(chatID, text)
	if err != nil {
		return fmt.Errorf("send toast: %w", err)
	}

	t.mu.Lock()
	if t.latest[chatID] != seq {
		t.mu.Unlock()
		t.remove(chatID, &toast{messageID: messageID})
		return nil
	}
	entry := &toast{seq: seq, messageID: messageID}
	t.current[chatID] = entry
	if d > 0 {
		entry.timer = t.afterFunc(d, func() { t.expire(chatID, seq) })
	}
	t.mu.Unlock()
	return nil
}

// Dismiss closes a toast by its message id, as the close button does.
func (t *Toaster) Dismiss(chatID int64, messageID int) error {
	t.mu.Lock()
	entry, ok := t.current[chatID]
	if ok && entry.messageID == messageID {
		t.detachLocked(chatID)
		t.mu.Unlock()
		t.remove(chatID, entry)
		return nil
	}
	t.mu.Unlock()
	return t.surface.DeleteMessage(chatID, messageID)
}

// Current returns the message id of the chat's visible toast.
func (t *Toaster) Current(chatID int64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.current[chatID]
	if !ok {
		return 0, false
	}
	return entry.messageID, true
}

func (t *Toaster) expire(chatID int64, seq uint64) {
	t.mu.Lock()
	entry, ok := t.current[chatID]
	if !ok || entry.seq != seq {
		t.mu.Unlock()
		return
	}
	t.detachLocked(chatID)
	t.mu.Unlock()
	t.remove(chatID, entry)
}

// detachLocked forgets the chat's toast and stops its timer. The caller
// deletes the message after releasing the lock.
func (t *Toaster) detachLocked(chatID int64) *toast {
	entry, ok := t.current[chatID]
	if !ok {
		return nil
	}
	delete(t.current, chatID)
	if entry.timer != nil {
		entry.timer.Stop()
	}
	return entry
}

func (t *Toaster) remove(chatID int64, entry *toast) {
	if entry == nil {
		return
	}
	if err := t.surface.DeleteMessage(chatID, entry.messageID); err != nil {
		log.Printf("delete toast %d in chat %d: %v", entry.messageID, chatID, err)
	}
}
