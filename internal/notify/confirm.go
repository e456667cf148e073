package notify

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Prompter renders a confirm/cancel prompt and closes it once answered.
type Prompter interface {
	SendPrompt(chatID int64, promptID, title, body string) (int, error)
	ClosePrompt(chatID int64, messageID int, confirmed bool) error
}

// Pending is the operator's not-yet-given answer to one prompt.
type Pending struct {
	ID     string
	ChatID int64

	messageID int
	once      sync.Once
	done      chan struct{}
	confirmed bool
	onResolve func(p *Pending)
}

func newPending(chatID int64) *Pending {
	return &Pending{
		ID:     uuid.NewString(),
		ChatID: chatID,
		done:   make(chan struct{}),
	}
}

// Wait blocks until the prompt is answered, superseded or ctx ends.
// Only an explicit confirmation yields true.
func (p *Pending) Wait(ctx context.Context) (bool, error) {
	select {
	case <-p.done:
		return p.confirmed, nil
	case <-ctx.Done():
		p.resolve(false)
		return false, ctx.Err()
	}
}

// Done is closed once the prompt has been resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

func (p *Pending) resolve(confirmed bool) bool {
	resolved := false
	p.once.Do(func() {
		p.confirmed = confirmed
		close(p.done)
		resolved = true
		if p.onResolve != nil {
			p.onResolve(p)
		}
	})
	return resolved
}

// Confirmer tracks one open prompt per chat.
type Confirmer struct {
	prompter Prompter

	mu     sync.Mutex
	byChat map[int64]*Pending
	byID   map[string]*Pending
}

func NewConfirmer(prompter Prompter) *Confirmer {
	return &Confirmer{
		prompter: prompter,
		byChat:   make(map[int64]*Pending),
		byID:     make(map[string]*Pending),
	}
}

// Ask posts a prompt. An earlier open prompt in the same chat is cancelled.
func (c *Confirmer) Ask(ctx context.Context, chatID int64, title, body string) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	previous := c.byChat[chatID]
	c.mu.Unlock()
	if previous != nil {
		previous.resolve(false)
	}

	p := newPending(chatID)
	messageID, err := c.prompter.SendPrompt(chatID, p.ID, title, body)
	if err != nil {
		return nil, fmt.Errorf("send prompt: %w", err)
	}
	p.messageID = messageID
	p.onResolve = c.finish

	c.mu.Lock()
	c.byChat[chatID] = p
	c.byID[p.ID] = p
	c.mu.Unlock()
	return p, nil
}

// Resolve answers a prompt by id. It reports false for unknown or already answered prompts.
func (c *Confirmer) Resolve(promptID string, confirmed bool) bool {
	c.mu.Lock()
	p, ok := c.byID[promptID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return p.resolve(confirmed)
}

// Confirm asks and runs onConfirm only after an explicit confirmation.
// Cancellation, a newer prompt or ctx ending drop the callback.
func (c *Confirmer) Confirm(ctx context.Context, chatID int64, title, body string, onConfirm func(context.Context)) error {
	p, err := c.Ask(ctx, chatID, title, body)
	if err != nil {
		return err
	}
	go func() {
		ok, err := p.Wait(ctx)
		if err != nil || !ok {
			return
		}
		onConfirm(ctx)
	}()
	return nil
}

// Open reports whether the chat has an unanswered prompt.
func (c *Confirmer) Open(chatID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.byChat[chatID]
	return ok
}

func (c *Confirmer) finish(p *Pending) {
	c.mu.Lock()
	if c.byChat[p.ChatID] == p {
		delete(c.byChat, p.ChatID)
	}
	delete(c.byID, p.ID)
	c.mu.Unlock()

	if err := c.prompter.ClosePrompt(p.ChatID, p.messageID, p.confirmed); err != nil {
		log.Printf("close prompt %s: %v", p.ID, err)
	}
}
