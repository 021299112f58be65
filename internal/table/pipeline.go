package table

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
)

// StepFunc is an initializer step. It runs once per instance construction
// and may read and write the config and derive instance state.
type StepFunc func(t *Table, cfg *Config) error

// FilterFunc transforms the accumulated record scope.
type FilterFunc func(t *Table, scope any) (any, error)

// Predicate gates a filter; the filter is skipped when it returns true.
type Predicate func(t *Table) bool

type pipelineKind int

const (
	initPipeline pipelineKind = iota
	filterPipeline
)

func (k pipelineKind) String() string {
	if k == filterPipeline {
		return "filter"
	}
	return "initializer"
}

type step struct {
	name   string
	seq    uint64
	before []string
	after  []string
	unless Predicate
	init   StepFunc
	filter FilterFunc
}

type stepOptions struct {
	before      []string
	after       []string
	unless      Predicate
	constrained bool
}

// StepOption configures a registered initializer or filter.
type StepOption func(*stepOptions)

// Before orders the step ahead of the named steps.
func Before(names ...string) StepOption {
	return func(o *stepOptions) {
		o.before = append(o.before, names...)
		o.constrained = true
	}
}

// After orders the step behind the named steps.
func After(names ...string) StepOption {
	return func(o *stepOptions) {
		o.after = append(o.after, names...)
		o.constrained = true
	}
}

// Unless skips a filter whenever p returns true.
func Unless(p Predicate) StepOption {
	return func(o *stepOptions) { o.unless = p }
}

// seq orders registrations across every definition; a parent's steps are
// normally registered before any child exists.
var seq atomic.Uint64

type resolvedOrder struct {
	version uint64
	steps   []*step
}

// RegisterInitializer adds (or replaces) a named initializer step.
// Unknown references and cycles are rejected immediately and leave the
// pipeline unchanged.
func (d *Definition) RegisterInitializer(name string, fn StepFunc, opts ...StepOption) error {
	if fn == nil {
		return fmt.Errorf("%w: initializer %q has no function", ErrConfiguration, name)
	}
	return d.register(initPipeline, &step{name: name, init: fn}, opts)
}

// RegisterFilter adds (or replaces) a named filter step.
func (d *Definition) RegisterFilter(name string, fn FilterFunc, opts ...StepOption) error {
	if fn == nil {
		return fmt.Errorf("%w: filter %q has no function", ErrConfiguration, name)
	}
	return d.register(filterPipeline, &step{name: name, filter: fn}, opts)
}

// MustRegisterInitializer is like RegisterInitializer but panics on error.
func (d *Definition) MustRegisterInitializer(name string, fn StepFunc, opts ...StepOption) {
	if err := d.RegisterInitializer(name, fn, opts...); err != nil {
		panic(err)
	}
}

// MustRegisterFilter is like RegisterFilter but panics on error.
func (d *Definition) MustRegisterFilter(name string, fn FilterFunc, opts ...StepOption) {
	if err := d.RegisterFilter(name, fn, opts...); err != nil {
		panic(err)
	}
}

func (d *Definition) register(kind pipelineKind, s *step, opts []StepOption) error {
	var o stepOptions
	for _, opt := range opts {
		opt(&o)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	merged := d.collectLocked(kind)
	if prev, ok := merged[s.name]; ok {
		// same name: new body, same slot unless the caller moves it
		s.seq = prev.seq
		s.before, s.after = prev.before, prev.after
		s.unless = prev.unless
	} else {
		s.seq = seq.Add(1)
	}
	if o.constrained {
		s.before, s.after = o.before, o.after
	}
	if o.unless != nil {
		s.unless = o.unless
	}

	merged[s.name] = s
	if _, err := sortSteps(merged); err != nil {
		return fmt.Errorf("register %s %q on %s: %w", kind, s.name, d.name, err)
	}

	d.pipelines[kind][s.name] = s
	d.touch()
	return nil
}

// collectLocked returns the inherited steps of kind with d's own entries
// layered on top. d.mu must be held.
func (d *Definition) collectLocked(kind pipelineKind) map[string]*step {
	var merged map[string]*step
	if d.parent != nil {
		merged = d.parent.collect(kind)
	} else {
		merged = make(map[string]*step)
	}
	maps.Copy(merged, d.pipelines[kind])
	return merged
}

func (d *Definition) collect(kind pipelineKind) map[string]*step {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collectLocked(kind)
}

// steps returns the resolved order of kind, cached until d or one of its
// ancestors changes.
func (d *Definition) steps(kind pipelineKind) ([]*step, error) {
	version := d.version()

	d.mu.Lock()
	defer d.mu.Unlock()

	if cached := d.orders[kind]; cached.steps != nil && cached.version == version {
		return cached.steps, nil
	}

	ordered, err := sortSteps(d.collectLocked(kind))
	if err != nil {
		return nil, fmt.Errorf("resolve %s pipeline of %s: %w", kind, d.name, err)
	}
	d.orders[kind] = resolvedOrder{version: version, steps: ordered}
	return ordered, nil
}

// StepNames returns the resolved initializer and filter order. Useful for
// diagnostics.
func (d *Definition) StepNames() (initializers, filters []string, err error) {
	inits, err := d.steps(initPipeline)
	if err != nil {
		return nil, nil, err
	}
	fs, err := d.steps(filterPipeline)
	if err != nil {
		return nil, nil, err
	}
	return stepNames(inits), stepNames(fs), nil
}

func stepNames(steps []*step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

// sortSteps orders steps topologically. Among steps that are ready at the
// same time the earliest registration wins, so unconstrained steps keep
// their registration order.
func sortSteps(all map[string]*step) ([]*step, error) {
	nodes := slices.SortedFunc(maps.Values(all), func(a, b *step) int {
		return cmp.Compare(a.seq, b.seq)
	})

	indegree := make(map[string]int, len(nodes))
	edges := make(map[string][]string, len(nodes))
	for _, s := range nodes {
		for _, dep := range s.after {
			if _, ok := all[dep]; !ok {
				return nil, fmt.Errorf("%w: %q must run after unknown step %q", ErrConfiguration, s.name, dep)
			}
			edges[dep] = append(edges[dep], s.name)
			indegree[s.name]++
		}
		for _, next := range s.before {
			if _, ok := all[next]; !ok {
				return nil, fmt.Errorf("%w: %q must run before unknown step %q", ErrConfiguration, s.name, next)
			}
			edges[s.name] = append(edges[s.name], next)
			indegree[next]++
		}
	}

	out := make([]*step, 0, len(nodes))
	done := make(map[string]bool, len(nodes))
	for len(out) < len(nodes) {
		var ready *step
		for _, s := range nodes {
			if !done[s.name] && indegree[s.name] == 0 {
				ready = s
				break
			}
		}
		if ready == nil {
			var stuck []string
			for _, s := range nodes {
				if !done[s.name] {
					stuck = append(stuck, s.name)
				}
			}
			return nil, fmt.Errorf("%w: ordering cycle between %s", ErrConfiguration, strings.Join(stuck, ", "))
		}
		done[ready.name] = true
		out = append(out, ready)
		for _, next := range edges[ready.name] {
			indegree[next]--
		}
	}
	return out, nil
}
