package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a named long-running job.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type exit struct {
	name string
	err  error
}

// Supervise runs every task in its own goroutine and waits for the first one
// to return. That exit is logged, the context shared by the tasks is
// cancelled, and Supervise waits for the rest before returning the first
// task's error. Tasks are never restarted.
func Supervise(ctx context.Context, log *zap.Logger, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	exits := make(chan exit, len(tasks))
	for _, t := range tasks {
		go func(t Task) {
			exits <- exit{name: t.Name, err: t.Run(ctx)}
		}(t)
	}

	first := <-exits
	logExit(log, first)
	cancel()

	for i := 1; i < len(tasks); i++ {
		logExit(log, <-exits)
	}

	if first.err != nil {
		return fmt.Errorf("%s: %w", first.name, first.err)
	}
	return nil
}

func logExit(log *zap.Logger, e exit) {
	switch {
	case e.err == nil:
		log.Info(e.name+" successfully returned", zap.String("task", e.name))
	case errors.Is(e.err, context.Canceled):
		log.Info(e.name+" stopped", zap.String("task", e.name))
	default:
		log.Error(e.name+" returned with error", zap.String("task", e.name), zap.Error(e.err))
	}
}

// TaskStatus is the last known state of a supervised task.
type TaskStatus struct {
	Running  bool
	Err      error
	ExitedAt time.Time
}

// Registry records the liveness of supervised tasks for health reporting.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]TaskStatus
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]TaskStatus), now: time.Now}
}

// Track returns a copy of t whose state is recorded in the registry.
func (r *Registry) Track(t Task) Task {
	r.mu.Lock()
	r.tasks[t.Name] = TaskStatus{}
	r.mu.Unlock()

	run := t.Run
	t.Run = func(ctx context.Context) error {
		r.set(t.Name, TaskStatus{Running: true})
		err := run(ctx)
		r.set(t.Name, TaskStatus{Err: err, ExitedAt: r.now()})
		return err
	}
	return t
}

func (r *Registry) set(name string, s TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[name] = s
}

// Status returns a snapshot of every tracked task.
func (r *Registry) Status() map[string]TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]TaskStatus, len(r.tasks))
	for name, s := range r.tasks {
		out[name] = s
	}
	return out
}

// Check returns an error naming every tracked task that has exited. A task
// tracked but not started yet counts as running.
func (r *Registry) Check(context.Context) error {
	var stopped []string
	for name, s := range r.Status() {
		if !s.ExitedAt.IsZero() {
			stopped = append(stopped, name)
		}
	}
	if len(stopped) == 0 {
		return nil
	}
	sort.Strings(stopped)
	return fmt.Errorf("tasks not running: %s", strings.Join(stopped, ", "))
}
