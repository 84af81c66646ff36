// Package scheduler runs the periodic maintenance tasks: drift detection,
// health classification, dead letter checks, callback reaping, cleanup and
// archival.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one periodic maintenance task
type Task struct {
	// Name identifies the task in logs
	Name string
	// Interval is the run cadence
	Interval time.Duration
	// Run executes one iteration
	Run func(ctx context.Context)
}

// Scheduler runs each registered task on its own ticker goroutine.
// Iterations of the same task never overlap; a run that outlasts its
// interval skips the missed ticks.
type Scheduler struct {
	tasks  []Task
	logger *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a scheduler with the given tasks
func NewScheduler(tasks []Task, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  tasks,
		logger: logger,
	}
}

// Start launches every task loop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runLoop(ctx, task)
	}
	s.logger.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
}

// Stop cancels every task loop and waits for in-flight iterations
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runLoop drives one task until the scheduler stops
func (s *Scheduler) runLoop(ctx context.Context, task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	var busy int32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
				s.logger.Warn("scheduled task still running, skipping tick",
					zap.String("task", task.Name))
				continue
			}
			s.runOnce(ctx, task)
			atomic.StoreInt32(&busy, 0)
		}
	}
}

// runOnce executes one iteration with panic recovery
func (s *Scheduler) runOnce(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduled task",
				zap.String("task", task.Name),
				zap.Any("panic", r))
		}
	}()

	started := time.Now()
	task.Run(ctx)
	s.logger.Debug("scheduled task finished",
		zap.String("task", task.Name),
		zap.Duration("took", time.Since(started)))
}
