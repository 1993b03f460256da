// Package scheduler runs the coordinator's periodic refresh tasks. Each task
// owns its interval and its cancellation; a slow or failed run of one task
// never delays the others.
package scheduler

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "scheduler").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "scheduler").Logger()
}

// TaskFunc is one refresh run. The context carries the per-run timeout;
// errors are logged, never fatal.
type TaskFunc func(ctx context.Context) error

// Task is a single periodic refresher with independent cancellation.
type Task struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	fn       TaskFunc

	stopCh    chan struct{}
	stoppedCh chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewTask creates a task. The per-run timeout defaults to the interval when
// zero, so a hung fetch cannot overlap the next tick's work indefinitely.
func NewTask(name string, interval, timeout time.Duration, fn TaskFunc) *Task {
	if timeout <= 0 {
		timeout = interval
	}
	return &Task{
		name:      name,
		interval:  interval,
		timeout:   timeout,
		fn:        fn,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the task goroutine. The first run fires immediately.
func (t *Task) Start() {
	t.startOnce.Do(func() {
		go t.loop()
	})
}

func (t *Task) loop() {
	defer close(t.stoppedCh)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.run()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			// Re-check: the ticker may have fired concurrently with Stop.
			select {
			case <-t.stopCh:
				return
			default:
			}
			t.run()
		}
	}
}

func (t *Task) run() {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		log.Warn().
			Err(err).
			Str("task", t.name).
			Dur("duration", time.Since(start)).
			Msg("refresh task failed")
		return
	}
	log.Debug().
		Str("task", t.name).
		Dur("duration", time.Since(start)).
		Msg("refresh task completed")
}

// Stop cancels the task and waits for the loop to exit. After Stop returns
// the task never fires again, and a later Start is a no-op. In-flight chain
// calls complete or fail on their own.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		// Consume startOnce so an unstarted task has nothing to wait for
		// and cannot be started afterwards.
		t.startOnce.Do(func() {
			close(t.stoppedCh)
		})
		<-t.stoppedCh
	})
}

// Scheduler owns a set of tasks and tears them down together.
type Scheduler struct {
	mu    sync.Mutex
	tasks []*Task
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Add registers and starts a task.
func (s *Scheduler) Add(name string, interval time.Duration, fn TaskFunc) *Task {
	task := NewTask(name, interval, 0, fn)

	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()

	task.Start()
	log.Info().Str("task", name).Dur("interval", interval).Msg("task started")
	return task
}

// Stop cancels every task and blocks until all loops have exited. Pending
// timers are released; no task fires after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()

	for _, task := range tasks {
		task.Stop()
		log.Info().Str("task", task.name).Msg("task stopped")
	}
}
