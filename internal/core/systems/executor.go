// Package systems runs the ordered list of update routines that make up
// one simulation tick.
package systems

import (
	"fmt"
	"reflect"
	"time"

	"github.com/zeusync/worldcore/internal/core/ecs"
	"github.com/zeusync/worldcore/internal/core/observability/log"
	"github.com/zeusync/worldcore/internal/core/observability/metrics"
)

// Context is the simulation state threaded through every system.
type Context interface {
	// Resources gives access to the singletons groups are keyed by.
	Resources() *ecs.Resources
	// EndTick runs once after every system has executed.
	EndTick()
}

// SysResult is what a system returns. A non-nil result aborts only that
// system for the current tick.
type SysResult = error

type system[G Context] struct {
	name  string
	group string
	run   func(G) SysResult
}

// Executor stores systems in the order they were added and runs all of
// them, one after the other, on every tick. Effects of a system are visible
// to every system after it.
type Executor[G Context] struct {
	systems []system[G]
	logger  log.Log
	metrics *metrics.TickCollector
}

// NewExecutor returns an empty executor. logger and collector may be nil.
func NewExecutor[G Context](logger log.Log, collector *metrics.TickCollector) *Executor[G] {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Executor[G]{
		logger:  logger.With(log.String("component", "systems")),
		metrics: collector,
	}
}

// AddSystem appends a system that only needs the simulation context.
func (e *Executor[G]) AddSystem(name string, fn func(G) SysResult) *Executor[G] {
	e.systems = append(e.systems, system[G]{name: name, run: fn})
	return e
}

// GroupBuilder adds systems that receive the resource R alongside the
// context. Groups only affect ordering at registration time.
type GroupBuilder[G Context, R any] struct {
	exec *Executor[G]
	name string
}

// Group starts a group of systems keyed by the resource type R.
func Group[R any, G Context](e *Executor[G]) *GroupBuilder[G, R] {
	return &GroupBuilder[G, R]{exec: e, name: reflect.TypeFor[R]().String()}
}

// AddSystem appends a system that is handed the group's resource. If the
// resource is missing when the tick runs, the system fails.
func (g *GroupBuilder[G, R]) AddSystem(name string, fn func(G, R) SysResult) *GroupBuilder[G, R] {
	g.exec.systems = append(g.exec.systems, system[G]{
		name:  name,
		group: g.name,
		run: func(ctx G) SysResult {
			res, err := ecs.Resource[R](ctx.Resources())
			if err != nil {
				return err
			}
			return fn(ctx, res)
		},
	})
	return g
}

// Names returns system names in execution order.
func (e *Executor[G]) Names() []string {
	out := make([]string, len(e.systems))
	for i, s := range e.systems {
		out[i] = s.name
	}
	return out
}

// Len returns the number of registered systems.
func (e *Executor[G]) Len() int {
	return len(e.systems)
}

// Run executes every system once, then closes the tick on ctx. It returns
// the number of systems that failed.
func (e *Executor[G]) Run(ctx G) int {
	tickStart := time.Now()
	failed := 0
	for _, s := range e.systems {
		start := time.Now()
		err := e.runOne(ctx, s)
		e.metrics.ObserveSystem(s.name, time.Since(start), err)
		if err != nil {
			failed++
			fields := []log.Field{log.String("system", s.name), log.Error(err)}
			if s.group != "" {
				fields = append(fields, log.String("group", s.group))
			}
			e.logger.Warn("System returned an error", fields...)
		}
	}
	ctx.EndTick()
	e.metrics.ObserveTick(time.Since(tickStart))
	return failed
}

func (e *Executor[G]) runOne(ctx G, s system[G]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("system %s panicked: %v", s.name, r)
		}
	}()
	return s.run(ctx)
}
