package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the scheduler stops or the task is removed.
type TaskFn func(ctx context.Context) error

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"` // 0 for one-shot delays
	Runs      uint64        `json:"runs"`
	Failures  uint64        `json:"failures"`
	LastRun   time.Time     `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
}

type task struct {
	info   TaskInfo
	cancel context.CancelFunc
	timer  *time.Timer // one-shot only
}

// Scheduler manages periodic and delayed tasks.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	ctx     context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   make(map[string]*task),
		ctx:     ctx,
		stopAll: cancel,
		logger:  logger,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.removeLocked(name)

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{info: TaskInfo{Name: name, Interval: interval}, cancel: cancel}
	s.tasks[name] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx, t, fn)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("scheduler task registered", zap.String("name", name), zap.Duration("interval", interval))
}

// AddDelay runs fn once after the given delay.
func (s *Scheduler) AddDelay(name string, delay time.Duration, fn TaskFn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	s.removeLocked(name)

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{info: TaskInfo{Name: name}, cancel: cancel}
	s.tasks[name] = t
	t.timer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, t, fn)
		s.mu.Lock()
		if s.tasks[name] == t {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		cancel()
	})
}

// run executes one invocation with panic recovery and bookkeeping.
func (s *Scheduler) run(ctx context.Context, t *task, fn TaskFn) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler task panicked",
					zap.String("task", t.info.Name),
					zap.Any("recover", r))
				err = errPanic
			}
		}()
		err = fn(ctx)
	}()

	s.mu.Lock()
	t.info.Runs++
	t.info.LastRun = time.Now()
	if err != nil {
		t.info.Failures++
		t.info.LastError = err.Error()
	} else {
		t.info.LastError = ""
	}
	s.mu.Unlock()

	if err != nil && err != errPanic {
		s.logger.Warn("scheduler task failed", zap.String("task", t.info.Name), zap.Error(err))
	}
}

// Remove stops and removes a ticker or delay task by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
}

func (s *Scheduler) removeLocked(name string) {
	t, ok := s.tasks[name]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.cancel()
	delete(s.tasks, name)
}

// Stop cancels every task and waits for running tickers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopAll()
	for name, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Tasks returns a snapshot of every registered task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
