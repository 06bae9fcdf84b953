// Package stage defines the lifecycle shared by every pipeline module and a
// Pipeline that starts and stops a set of them.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-wayfinder/pkg/clock"
	"github.com/teslashibe/go-wayfinder/pkg/control"
	"github.com/teslashibe/go-wayfinder/pkg/framebus"
	"github.com/teslashibe/go-wayfinder/pkg/resultbus"
)

// ErrPanic wraps a panic recovered from a stage task.
var ErrPanic = errors.New("stage: task panicked")

// Env is what a module receives at start. Modules communicate only through it.
type Env struct {
	Frames  *framebus.Bus
	Results *resultbus.Bus
	Control *control.State
	Clock   *clock.Clock
}

// Module is a pipeline stage.
//
// Start must subscribe before returning so that nothing published after it
// returns is missed. Stop must make every started task exit promptly.
type Module interface {
	Name() string
	Start(ctx context.Context, env Env) ([]*Task, error)
	Stop()
}

// Runner is embedded by modules to track the running flag.
type Runner struct {
	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Begin marks the runner as running and returns a context cancelled by Stop.
func (r *Runner) Begin(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	r.running.Store(true)
	return ctx
}

// Running reports whether Stop has not been called since Begin.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Stop clears the running flag and cancels the context returned by Begin.
func (r *Runner) Stop() {
	r.running.Store(false)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
}

// Task is one running goroutine of a module.
type Task struct {
	Name string
	done chan struct{}
	err  error
}

// Done is closed when the task returns.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the task's error once Done is closed.
func (t *Task) Err() error {
	<-t.done
	return t.err
}

// Go runs fn in a goroutine. A panic in fn is recovered and logged, and the
// task ends with an ErrPanic error; other tasks keep running.
func Go(logger *slog.Logger, name string, fn func() error) *Task {
	t := &Task{Name: name, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.err = fmt.Errorf("%w: %s: %v", ErrPanic, name, r)
				if logger != nil {
					logger.Error("task panicked", "task", name, "panic", r, "stack", string(debug.Stack()))
				}
			}
		}()
		t.err = fn()
		if logger == nil {
			return
		}
		if t.err != nil && !errors.Is(t.err, context.Canceled) {
			logger.Error("task exited", "task", name, "error", t.err)
		} else {
			logger.Debug("task exited", "task", name)
		}
	}()
	return t
}
