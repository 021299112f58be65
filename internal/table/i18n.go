package table

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Translator resolves a user-facing string for key in the scope of a table
// type. ok is false when no translation exists.
type Translator interface {
	Translate(table, key string) (string, bool)
}

// Catalog is a Translator backed by an x/text message catalog. Keys are
// looked up as "rapid_table.<table>.<key>" and then
// "rapid_table.default.<key>".
type Catalog struct {
	tag language.Tag

	mu      sync.RWMutex
	builder *catalog.Builder
	keys    map[string]bool
}

// NewCatalog returns an empty catalog for tag.
func NewCatalog(tag language.Tag) *Catalog {
	return &Catalog{
		tag:     tag,
		builder: catalog.NewBuilder(catalog.Fallback(tag)),
		keys:    make(map[string]bool),
	}
}

// Set stores msg under a fully qualified key.
func (c *Catalog) Set(key, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.builder.SetString(c.tag, key, msg); err != nil {
		return err
	}
	c.keys[key] = true
	return nil
}

// SetDefault stores msg for every table type.
func (c *Catalog) SetDefault(key, msg string) error {
	return c.Set("rapid_table.default."+key, msg)
}

// SetTable stores msg for one table type.
func (c *Catalog) SetTable(table, key, msg string) error {
	return c.Set("rapid_table."+table+"."+key, msg)
}

// Translate implements Translator.
func (c *Catalog) Translate(table, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := message.NewPrinter(c.tag, message.Catalog(c.builder))
	for _, full := range []string{"rapid_table." + table + "." + key, "rapid_table.default." + key} {
		if c.keys[full] {
			return p.Sprintf(full), true
		}
	}
	return "", false
}

// DefaultCatalog holds the English strings used by the built-in fragments.
var DefaultCatalog = newDefaultCatalog()

func newDefaultCatalog() *Catalog {
	c := NewCatalog(language.English)
	for key, msg := range map[string]string{
		"empty_message":             "No records found.",
		"pagination.first":          "« First",
		"pagination.prev":           "‹ Prev",
		"pagination.next":           "Next ›",
		"pagination.last":           "Last »",
		"pagination.gap":            "…",
		"pagination.per_page":       "Per page",
		"pagination.apply":          "Apply",
		"search.placeholder":        "Search",
		"search.button":             "Search",
		"bulk_actions.placeholder":  "Bulk actions",
		"bulk_actions.button":       "Apply",
		"bulk_actions.button_title": "Apply the selected action to the selected rows",
		"bulk_actions.select_all":   "Select all",
		"bulk_actions.select":       "Select",
		"export.label":              "Export",
	} {
		if err := c.SetDefault(key, msg); err != nil {
			panic(err)
		}
	}
	return c
}

// SetTranslator replaces the translator for d and its descendants.
func (d *Definition) SetTranslator(tr Translator) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.translator = tr
	return d
}

func (d *Definition) resolveTranslator() Translator {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		tr := cur.translator
		cur.mu.Unlock()
		if tr != nil {
			return tr
		}
	}
	return DefaultCatalog
}

// T translates key in the scope of the table type. Missing keys fall back
// to the default catalog and finally to "".
func (t *Table) T(key string) string {
	if s, ok := t.def.resolveTranslator().Translate(t.def.name, key); ok {
		return s
	}
	if s, ok := DefaultCatalog.Translate(t.def.name, key); ok {
		return s
	}
	return ""
}

func (t *Table) translate(key string) (string, bool) {
	return t.def.resolveTranslator().Translate(t.def.name, key)
}

// Titleize turns an identifier into a label: "created_at" becomes
// "Created At" and a trailing "_id" is dropped.
func Titleize(id string) string {
	if len(id) > 3 {
		id = strings.TrimSuffix(id, "_id")
	}
	id = strings.TrimSpace(strings.ReplaceAll(id, "_", " "))
	return cases.Title(language.English).String(id)
}
