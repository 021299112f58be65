package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/rapidtable/internal/adapter/array"
	"github.com/JonMunkholm/rapidtable/internal/adapter/pgrel"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/JonMunkholm/rapidtable/internal/tabledef"
)

// ErrTableNotFound is returned when no table is registered under a key.
var ErrTableNotFound = errors.New("table not found")

// Entry is a table type served under a key.
type Entry struct {
	Key        string
	Group      string
	Label      string
	Definition *table.Definition
	// Source produces the base record scope of each request.
	Source table.SourceFunc
	// Options are instance options applied before request options.
	Options table.Options
}

// TableInfo describes a catalog entry for listings.
type TableInfo struct {
	Key      string   `json:"key"`
	Group    string   `json:"group"`
	Label    string   `json:"label"`
	Features []string `json:"features"`
	Columns  []string `json:"columns"`
}

// Catalog is a named registry of table types. It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// Register adds an entry to the catalog.
// Panics if an entry with the same key is already registered.
func (c *Catalog) Register(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[e.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", e.Key))
	}
	if e.Label == "" {
		e.Label = table.Titleize(e.Key)
	}
	c.entries[e.Key] = e
}

// Get returns the entry registered under key.
func (c *Catalog) Get(key string) (Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrTableNotFound, key)
	}
	return e, nil
}

// All returns every entry, sorted by group then key.
func (c *Catalog) All() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Group != result[j].Group {
			return result[i].Group < result[j].Group
		}
		return result[i].Key < result[j].Key
	})
	return result
}

// Groups returns the unique group names, sorted.
func (c *Catalog) Groups() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, e := range c.entries {
		seen[e.Group] = true
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Len returns the number of registered tables.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Info describes every entry.
func (c *Catalog) Info() []TableInfo {
	entries := c.All()
	infos := make([]TableInfo, len(entries))
	for i, e := range entries {
		info := TableInfo{Key: e.Key, Group: e.Group, Label: e.Label}
		for _, f := range e.Definition.Features() {
			info.Features = append(info.Features, f.Name())
		}
		for _, col := range e.Definition.Columns() {
			info.Columns = append(info.Columns, col.ID())
		}
		infos[i] = info
	}
	return infos
}

// Sources supplies base scopes for tables loaded from a definitions file.
type Sources struct {
	// DB serves tables whose adapter is pgrel. Without it those tables are
	// rejected.
	DB pgrel.DBTX
	// Data serves array tables by table name.
	Data map[string]table.SourceFunc
}

func (s Sources) adapter(name string) (table.Adapter, error) {
	switch name {
	case "array":
		return array.Adapter(), nil
	case "pgrel":
		if s.DB == nil {
			return nil, fmt.Errorf("%w: pgrel tables need a database", table.ErrConfiguration)
		}
		return pgrel.Paged(s.DB), nil
	}
	return nil, fmt.Errorf("%w: unknown adapter %q", table.ErrConfiguration, name)
}

// Load registers every table of a definitions file. Abstract tables (no
// adapter and no source of their own) are built as parents but not served.
func (c *Catalog) Load(f *tabledef.File, src Sources) error {
	built, err := f.Build(src.adapter)
	if err != nil {
		return err
	}
	for _, b := range built {
		var source table.SourceFunc
		switch {
		case b.Spec.Source != "":
			rel := pgrel.From(b.Spec.Source)
			source = func(context.Context) (any, error) { return rel, nil }
		case src.Data[b.Spec.Name] != nil:
			source = src.Data[b.Spec.Name]
		}
		if source == nil {
			continue
		}
		if _, ok := b.Definition.Adapter(); !ok {
			return fmt.Errorf("%w: table %q has a source but no adapter", table.ErrConfiguration, b.Spec.Name)
		}
		c.Register(Entry{
			Key:        b.Spec.Name,
			Group:      "definitions",
			Label:      b.Spec.Label,
			Definition: b.Definition,
			Source:     source,
		})
	}
	return nil
}
