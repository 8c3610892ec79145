package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops.
type TaskFn func(ctx context.Context)

// JobInfo describes a registered job.
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run,omitempty"`
}

// Scheduler runs named jobs on intervals or calendar boundaries in a fixed
// location. Registering a name twice replaces the earlier job.
type Scheduler struct {
	mu     sync.Mutex
	cron   gocron.Scheduler
	jobs   map[string]uuid.UUID
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates and starts a Scheduler whose calendar jobs fire in loc.
func New(logger *zap.Logger, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	cron, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron,
		jobs:   make(map[string]uuid.UUID),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	cron.Start()
	return s, nil
}

// AddTicker registers a task to run on a fixed interval.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler: %s: interval must be positive", name)
	}
	return s.add(name, gocron.DurationJob(interval), fn,
		zap.Duration("interval", interval))
}

// AddDaily registers a task to run every day at hh:mm.
func (s *Scheduler) AddDaily(name string, hh, mm uint, fn TaskFn) error {
	return s.add(name,
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hh, mm, 0))), fn,
		zap.String("at", fmt.Sprintf("daily %02d:%02d", hh, mm)))
}

// AddWeekly registers a task to run every week on day at hh:mm.
func (s *Scheduler) AddWeekly(name string, day time.Weekday, hh, mm uint, fn TaskFn) error {
	return s.add(name,
		gocron.WeeklyJob(1, gocron.NewWeekdays(day), gocron.NewAtTimes(gocron.NewAtTime(hh, mm, 0))), fn,
		zap.String("at", fmt.Sprintf("%s %02d:%02d", day, hh, mm)))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) error {
	return s.add(name,
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(delay))), fn,
		zap.Duration("delay", delay))
}

func (s *Scheduler) add(name string, def gocron.JobDefinition, fn TaskFn, field zap.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		_ = s.cron.RemoveJob(old)
		delete(s.jobs, name)
	}

	job, err := s.cron.NewJob(def,
		gocron.NewTask(s.wrap(name, fn)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	s.jobs[name] = job.ID()
	s.logger.Info("scheduler task registered", zap.String("name", name), field)
	return nil
}

func (s *Scheduler) wrap(name string, fn TaskFn) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler task panicked",
					zap.String("task", name),
					zap.Any("recover", r))
			}
		}()
		fn(s.ctx)
	}
}

// RunNow triggers a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	job, err := s.find(name)
	if err != nil {
		return err
	}
	return job.RunNow()
}

func (s *Scheduler) find(name string) (gocron.Job, error) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("scheduler: no job named %q", name)
	}
	for _, j := range s.cron.Jobs() {
		if j.ID() == id {
			return j, nil
		}
	}
	return nil, fmt.Errorf("scheduler: job %q is no longer scheduled", name)
}

// Remove stops and removes a task by name. It reports whether the task
// existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.jobs[name]
	if !ok {
		return false
	}
	_ = s.cron.RemoveJob(id)
	delete(s.jobs, name)
	return true
}

// Stop cancels running tasks' context and shuts the scheduler down.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		if err := s.cron.Shutdown(); err != nil {
			s.logger.Warn("scheduler shutdown", zap.Error(err))
		}
	})
}

// ListTickers returns the sorted names of all registered tasks.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Jobs describes every registered task, sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	byID := make(map[uuid.UUID]gocron.Job)
	for _, j := range s.cron.Jobs() {
		byID[j.ID()] = j
	}
	out := make([]JobInfo, 0)
	for _, name := range s.ListTickers() {
		s.mu.Lock()
		id := s.jobs[name]
		s.mu.Unlock()
		j, ok := byID[id]
		if !ok {
			continue
		}
		info := JobInfo{Name: name}
		info.NextRun, _ = j.NextRun()
		info.LastRun, _ = j.LastRun()
		out = append(out, info)
	}
	return out
}
