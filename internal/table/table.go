package table

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"

	"github.com/JonMunkholm/rapidtable/internal/logging"
)

// SourceFunc lazily produces the base record scope.
type SourceFunc func(ctx context.Context) (any, error)

// Options are per-instance overrides copied onto the config before the
// initializers run. "id" names the instance; every other key must be a
// config option of the table type.
type Options map[string]any

// Table is one rendering/query session over a base data source. It is
// built per request and is not safe for concurrent use.
type Table struct {
	def    *Definition
	id     string
	base   any
	config *Config

	params           url.Values
	paramName        string
	action           string
	registeredParams []string

	columns     []Column
	bulkActions []BulkAction

	page        int
	pageSet     bool
	perPage     int
	perPageSet  bool
	sortColumn  Column
	selectedIDs []string
	selectedSet bool

	records    any
	recordsSet bool
	exporting  bool

	state map[string]any
}

// New constructs a table instance: options are copied onto a fresh config,
// the initializers run in dependency order, and the config is frozen.
func (d *Definition) New(base any, opts Options) (*Table, error) {
	if base == nil {
		return nil, fmt.Errorf("%w: records or source func is required", ErrConfiguration)
	}

	schema, err := d.FindExtendable(KindConfig)
	if err != nil {
		return nil, err
	}

	t := &Table{
		def:    d,
		id:     d.name,
		base:   base,
		config: newConfig(schema),
		state:  make(map[string]any),
	}

	for _, k := range slices.Sorted(maps.Keys(opts)) {
		if k == "id" {
			if id, ok := toString(opts[k]); ok && id != "" {
				t.id = id
			}
			continue
		}
		if err := t.config.Set(k, opts[k]); err != nil {
			return nil, fmt.Errorf("table %s: option %q: %w", d.name, k, err)
		}
	}

	steps, err := d.steps(initPipeline)
	if err != nil {
		return nil, err
	}
	for _, s := range steps {
		if err := s.init(t, t.config); err != nil {
			return nil, fmt.Errorf("table %s: initialize %s: %w", d.name, s.name, err)
		}
	}

	t.config.freeze()
	return t, nil
}

// MustNew is like New but panics on error.
func (d *Definition) MustNew(base any, opts Options) *Table {
	t, err := d.New(base, opts)
	if err != nil {
		panic(err)
	}
	return t
}

// ID returns the instance id. It defaults to the table type name.
func (t *Table) ID() string { return t.id }

// Definition returns the table type.
func (t *Table) Definition() *Definition { return t.def }

// Name returns the table type name, used as the translation scope.
func (t *Table) Name() string { return t.def.name }

// Config returns the merged configuration.
func (t *Table) Config() *Config { return t.config }

// Base returns the unfiltered data source.
func (t *Table) Base() any { return t.base }

// State returns adapter-private per-instance state stored under key.
func (t *Table) State(key string) (any, bool) {
	v, ok := t.state[key]
	return v, ok
}

// SetState stores adapter-private per-instance state.
func (t *Table) SetState(key string, v any) { t.state[key] = v }

// Records applies every filter to the base scope and returns the result.
// The result is cached for the lifetime of the instance.
func (t *Table) Records(ctx context.Context) (any, error) {
	if t.recordsSet {
		return t.records, nil
	}

	scope, err := t.loadBase(ctx)
	if err != nil {
		return nil, fmt.Errorf("table %s: load records: %w", t.def.name, err)
	}

	steps, err := t.def.steps(filterPipeline)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	for _, s := range steps {
		if s.unless != nil && s.unless(t) {
			log.Debug("filter skipped", "table", t.id, "filter", s.name)
			continue
		}
		if scope, err = s.filter(t, scope); err != nil {
			return nil, fmt.Errorf("table %s: filter %s: %w", t.def.name, s.name, err)
		}
	}

	t.records, t.recordsSet = scope, true
	return scope, nil
}

func (t *Table) loadBase(ctx context.Context) (any, error) {
	switch src := t.base.(type) {
	case SourceFunc:
		return src(ctx)
	case func(context.Context) (any, error):
		return src(ctx)
	}
	return t.base, nil
}

// EachRecord iterates every matching record through the adapter, in
// batches of batchSize. With skipPagination the page limit is ignored.
func (t *Table) EachRecord(ctx context.Context, batchSize int, skipPagination bool, fn func(record any) error) error {
	a, ok := t.def.Adapter()
	if !ok {
		return fmt.Errorf("%w: %s has no collection adapter for each record", ErrExtensionRequired, t.def.name)
	}
	return a.EachRecord(ctx, t, batchSize, skipPagination, fn)
}

// RecordID returns the stable external identifier of record.
func (t *Table) RecordID(record any) (string, error) {
	a, ok := t.def.Adapter()
	if !ok {
		return "", fmt.Errorf("%w: %s has no collection adapter for record ids", ErrExtensionRequired, t.def.name)
	}
	return a.RecordID(t, record)
}
