package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerService runs the console's periodic jobs.
type SchedulerService struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewSchedulerService(loc *time.Location) *SchedulerService {
	return &SchedulerService{
		cron:    cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		entries: make(map[string]cron.EntryID),
	}
}

func (s *SchedulerService) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *SchedulerService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// ScheduleInterval registers job under name, replacing an earlier job of the same name.
func (s *SchedulerService) ScheduleInterval(name string, interval time.Duration, job func()) error {
	spec, err := intervalSpec(interval)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	if old, ok := s.entries[name]; ok {
		s.cron.Remove(old)
	}
	s.entries[name] = id
	return nil
}

// Reschedule changes the interval of a named job and keeps its function.
func (s *SchedulerService) Reschedule(name string, interval time.Duration) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q is not scheduled", name)
	}
	entry := s.cron.Entry(id)
	if entry.Job == nil {
		return fmt.Errorf("job %q is not scheduled", name)
	}
	return s.ScheduleInterval(name, interval, entry.Job.Run)
}

// Next returns the next fire time of a named job.
func (s *SchedulerService) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(id).Next
	return next, !next.IsZero()
}

func intervalSpec(interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("@every %ds", seconds), nil
}
