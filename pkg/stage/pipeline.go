package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/log"
)

// AbortTimeout bounds how long a failed Start waits for the tasks of the
// modules it already started.
const AbortTimeout = 2 * time.Second

// Pipeline owns an ordered set of modules and their tasks.
type Pipeline struct {
	env     Env
	logger  *slog.Logger
	modules []Module
	tasks   []*Task
	started []Module
}

// NewPipeline creates a pipeline over env.
func NewPipeline(env Env, logger *slog.Logger) *Pipeline {
	return &Pipeline{env: env, logger: log.Or(logger, "pipeline")}
}

// Add appends modules. Modules start in the order added.
func (p *Pipeline) Add(modules ...Module) {
	p.modules = append(p.modules, modules...)
}

// Start starts every module. If one fails, the pipeline is stopped as by
// Stop(AbortTimeout): buses shut down and started tasks have exited (or are
// logged as stuck) when the error is returned.
func (p *Pipeline) Start(ctx context.Context) error {
	for _, m := range p.modules {
		tasks, err := m.Start(ctx, p.env)
		if err != nil {
			p.Stop(AbortTimeout)
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
		p.started = append(p.started, m)
		p.tasks = append(p.tasks, tasks...)
		p.logger.Info("module started", "module", m.Name(), "tasks", len(tasks))
	}
	return nil
}

// Tasks returns the running tasks.
func (p *Pipeline) Tasks() []*Task {
	return p.tasks
}

// Wait blocks until every task has exited or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	for _, t := range p.tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop flips every module's running flag, shuts both buses down and waits up
// to timeout for the tasks to exit. It returns the names of stragglers.
func (p *Pipeline) Stop(timeout time.Duration) []string {
	for i := len(p.started) - 1; i >= 0; i-- {
		p.started[i].Stop()
	}
	if p.env.Frames != nil {
		p.env.Frames.Shutdown()
	}
	if p.env.Results != nil {
		p.env.Results.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stuck []string
	for _, t := range p.tasks {
		select {
		case <-t.Done():
		case <-ctx.Done():
			stuck = append(stuck, t.Name)
		}
	}
	if len(stuck) > 0 {
		p.logger.Warn("tasks did not stop in time", "tasks", stuck)
	} else {
		p.logger.Info("pipeline stopped", "tasks", len(p.tasks))
	}
	return stuck
}
