package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSurface struct {
	mu      sync.Mutex
	nextID  int
	visible map[int]string
	deleted []int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{visible: make(map[int]string)}
}

func (s *fakeSurface) SendToast(chatID int64, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.visible[s.nextID] = text
	return s.nextID, nil
}

func (s *fakeSurface) DeleteMessage(chatID int64, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visible, messageID)
	s.deleted = append(s.deleted, messageID)
	return nil
}

func (s *fakeSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visible)
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	m.stopped = true
	return true
}

type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	timer := &manualTimer{fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func TestShowTwiceLeavesOneToast(t *testing.T) {
	surface := newFakeSurface()
	clock := &manualClock{}
	toaster := NewToaster(surface, 0).WithAfterFunc(clock.AfterFunc)

	if err := toaster.Show(1, "first", Info); err != nil {
		t.Fatalf("show: %v", err)
	}
	if err := toaster.Show(1, "second", Success); err != nil {
		t.Fatalf("show: %v", err)
	}

	if surface.count() != 1 {
		t.Fatalf("expected exactly one toast, got %d", surface.count())
	}
	id, ok := toaster.Current(1)
	if !ok || !strings.Contains(surface.visible[id], "second") {
		t.Fatalf("expected the second toast to be visible, got %v", surface.visible)
	}
	if !clock.timers[0].stopped {
		t.Fatalf("expected the replaced toast's timer to be stopped")
	}
}

func TestStaleTimerDoesNotRemoveReplacement(t *testing.T) {
	surface := newFakeSurface()
	clock := &manualClock{}
	toaster := NewToaster(surface, time.Second).WithAfterFunc(clock.AfterFunc)

	_ = toaster.Show(1, "first", Info)
	_ = toaster.Show(1, "second", Info)

	clock.timers[0].fn()
	if surface.count() != 1 {
		t.Fatalf("expected stale timer to keep the second toast, got %d visible", surface.count())
	}

	clock.timers[1].fn()
	if surface.count() != 0 {
		t.Fatalf("expected own timer to remove the toast, got %d visible", surface.count())
	}
	if _, ok := toaster.Current(1); ok {
		t.Fatalf("expected no current toast after expiry")
	}
}

func TestStickyToastAndDismiss(t *testing.T) {
	surface := newFakeSurface()
	clock := &manualClock{}
	toaster := NewToaster(surface, time.Second).WithAfterFunc(clock.AfterFunc)

	if err := toaster.ShowFor(7, "<b>boom</b>", Error, 0); err != nil {
		t.Fatalf("show: %v", err)
	}
	if len(clock.timers) != 0 {
		t.Fatalf("expected no timer for sticky toast")
	}
	id, _ := toaster.Current(7)
	if !strings.HasPrefix(surface.visible[id], "❌ &lt;b&gt;") {
		t.Fatalf("expected escaped error toast, got %q", surface.visible[id])
	}
	if err := toaster.Dismiss(7, id); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if surface.count() != 0 {
		t.Fatalf("expected toast to be closed")
	}
}

func TestToastsArePerChat(t *testing.T) {
	surface := newFakeSurface()
	toaster := NewToaster(surface, 0).WithAfterFunc((&manualClock{}).AfterFunc)
	_ = toaster.Show(1, "a", Info)
	_ = toaster.Show(2, "b", Info)
	if surface.count() != 2 {
		t.Fatalf("expected one toast per chat, got %d", surface.count())
	}
}

// gatedSurface holds the first SendToast for gatedChat until release is closed.
type gatedSurface struct {
	*fakeSurface
	gatedChat int64
	once      sync.Once
	entered   chan struct{}
	release   chan struct{}
}

func newGatedSurface(chatID int64) *gatedSurface {
	return &gatedSurface{
		fakeSurface: newFakeSurface(),
		gatedChat:   chatID,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedSurface) SendToast(chatID int64, text string) (int, error) {
	gated := false
	if chatID == s.gatedChat {
		s.once.Do(func() { gated = true })
	}
	if gated {
		close(s.entered)
		<-s.release
	}
	return s.fakeSurface.SendToast(chatID, text)
}

func TestSlowSendDoesNotBlockOtherChats(t *testing.T) {
	surface := newGatedSurface(1)
	toaster := NewToaster(surface, 0)

	done := make(chan error, 1)
	go func() { done <- toaster.ShowFor(1, "slow", Info, 0) }()
	<-surface.entered

	shown := make(chan error, 1)
	go func() { shown <- toaster.ShowFor(2, "fast", Info, 0) }()
	select {
	case err := <-shown:
		if err != nil {
			t.Fatalf("show: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("toast in chat 2 waited for chat 1")
	}

	close(surface.release)
	if err := <-done; err != nil {
		t.Fatalf("show: %v", err)
	}
	if surface.count() != 2 {
		t.Fatalf("expected one toast per chat, got %d", surface.count())
	}
}

func TestLateOlderSendRemovesItself(t *testing.T) {
	surface := newGatedSurface(1)
	toaster := NewToaster(surface, 0)

	done := make(chan error, 1)
	go func() { done <- toaster.ShowFor(1, "older", Info, 0) }()
	<-surface.entered

	if err := toaster.ShowFor(1, "newer", Success, 0); err != nil {
		t.Fatalf("show: %v", err)
	}
	newer, ok := toaster.Current(1)
	if !ok {
		t.Fatalf("expected newer toast to be current")
	}

	close(surface.release)
	if err := <-done; err != nil {
		t.Fatalf("show: %v", err)
	}

	if surface.count() != 1 {
		t.Fatalf("expected exactly one toast, got %d", surface.count())
	}
	id, ok := toaster.Current(1)
	if !ok || id != newer {
		t.Fatalf("expected toast %d to stay current, got %d (%v)", newer, id, ok)
	}
	surface.mu.Lock()
	text := surface.visible[newer]
	surface.mu.Unlock()
	if !strings.Contains(text, "newer") {
		t.Fatalf("expected newer text to stay visible, got %q", text)
	}
}

type fakePrompter struct {
	mu     sync.Mutex
	nextID int
	closed map[int]bool
	fail   bool
}

func newFakePrompter() *fakePrompter {
	return &fakePrompter{closed: make(map[int]bool)}
}

func (p *fakePrompter) SendPrompt(chatID int64, promptID, title, body string) (int, error) {
	if p.fail {
		return 0, errors.New("telegram down")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return p.nextID, nil
}

func (p *fakePrompter) ClosePrompt(chatID int64, messageID int, confirmed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed[messageID] = confirmed
	return nil
}

func TestConfirmRunsCallbackOnlyOnConfirm(t *testing.T) {
	ctx := context.Background()
	c := NewConfirmer(newFakePrompter())

	called := make(chan struct{}, 1)
	if err := c.Confirm(ctx, 1, "删除任务", "确定？", func(context.Context) { called <- struct{}{} }); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	id := onlyPrompt(t, c, 1)
	if !c.Resolve(id, true) {
		t.Fatalf("expected prompt to resolve")
	}

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatalf("expected callback after confirmation")
	}
	if c.Open(1) {
		t.Fatalf("expected prompt to be closed")
	}
	if c.Resolve(id, true) {
		t.Fatalf("expected second resolve to be ignored")
	}
}

func TestCancelDoesNotRunCallback(t *testing.T) {
	ctx := context.Background()
	c := NewConfirmer(newFakePrompter())

	called := make(chan struct{}, 1)
	p, err := c.Ask(ctx, 1, "t", "b")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	go func() {
		if ok, _ := p.Wait(ctx); ok {
			called <- struct{}{}
		}
	}()
	c.Resolve(p.ID, false)

	ok, err := p.Wait(ctx)
	if ok || err != nil {
		t.Fatalf("expected cancelled prompt, got ok=%t err=%v", ok, err)
	}
	select {
	case <-called:
		t.Fatalf("callback must not run on cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewPromptSupersedesOld(t *testing.T) {
	ctx := context.Background()
	prompter := newFakePrompter()
	c := NewConfirmer(prompter)

	first, _ := c.Ask(ctx, 1, "a", "a")
	second, _ := c.Ask(ctx, 1, "b", "b")

	select {
	case <-first.Done():
	default:
		t.Fatalf("expected first prompt to be resolved by the second")
	}
	if ok, _ := first.Wait(ctx); ok {
		t.Fatalf("superseded prompt must not count as confirmed")
	}
	if !c.Resolve(second.ID, true) {
		t.Fatalf("expected second prompt to stay open")
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConfirmer(newFakePrompter())
	p, _ := c.Ask(ctx, 1, "a", "a")
	cancel()
	ok, err := p.Wait(ctx)
	if ok || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got ok=%t err=%v", ok, err)
	}
	if c.Open(1) {
		t.Fatalf("expected prompt to be cleaned up")
	}
}

func TestAskPropagatesSendError(t *testing.T) {
	prompter := newFakePrompter()
	prompter.fail = true
	c := NewConfirmer(prompter)
	if _, err := c.Ask(context.Background(), 1, "a", "a"); err == nil {
		t.Fatalf("expected send error")
	}
}

func onlyPrompt(t *testing.T, c *Confirmer, chatID int64) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byChat[chatID]
	if !ok {
		t.Fatalf("expected an open prompt in chat %d", chatID)
	}
	return p.ID
}
