package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/rapidtable/internal/logging"
	"github.com/a-h/templ"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Export formats.
const (
	FormatCSV     = "csv"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

var supportedFormats = []string{FormatCSV, FormatJSON, FormatYAML, FormatMsgpack}

// ExportContentType returns the response content type of format.
func ExportContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatMsgpack:
		return "application/vnd.msgpack"
	}
	return "application/octet-stream"
}

// SkipExport reports whether the column is left out of exports.
func (c Column) SkipExport() bool { return c.Bool("skip_export") }

type exportFeature struct{}

// Export writes the full filtered record set. It includes Columns.
func Export() Feature { return exportFeature{} }

func (exportFeature) Name() string { return "export" }

func (exportFeature) Register(d *Definition) error {
	if err := d.Include(Columns()); err != nil {
		return err
	}
	if _, err := d.ExtendExtendable(KindColumn, func(s *Schema) {
		s.Field("skip_export", nil)
	}); err != nil {
		return err
	}
	if _, err := d.ExtendExtendable(KindConfig, func(s *Schema) {
		s.Field("skip_export", nil).
			Field("csv_column_separator", nil).
			Field("export_batch_size", nil).
			Field("export_formats", nil).
			Field("export_header", nil)
	}); err != nil {
		return err
	}

	d.SetDefault("csv_column_separator", ",").SetDefault("export_batch_size", 1000)

	if err := d.RegisterInitializer("export", initExport); err != nil {
		return err
	}
	return d.RegisterInitializer("export_dsl", func(t *Table, c *Config) error {
		for _, name := range []string{"skip_export", "csv_column_separator", "export_batch_size", "export_formats", "export_header"} {
			if err := c.SetClassDefault(t.def, name); err != nil {
				return err
			}
		}
		return nil
	}, Before("export"))
}

func (exportFeature) Fragment(t *Table) templ.Component {
	if t.SkipExport() {
		return templ.NopComponent
	}
	return t.ExportLinks()
}

func initExport(t *Table, c *Config) error {
	if err := errors.Join(
		c.SetDefault("csv_column_separator", ","),
		c.SetDefault("export_batch_size", 1000),
		c.SetDefault("export_formats", []string{FormatCSV, FormatJSON}),
		c.SetDefault("export_header", "id"),
	); err != nil {
		return err
	}

	formats := c.Strings("export_formats")
	if err := c.SetDefault("skip_export", len(formats) == 0); err != nil {
		return err
	}

	for _, f := range formats {
		if !slices.Contains(supportedFormats, f) {
			return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
		}
	}
	if utf8.RuneCountInString(c.String("csv_column_separator")) != 1 {
		return fmt.Errorf("%w: csv_column_separator must be a single character", ErrConfiguration)
	}
	if c.Int("export_batch_size") < 1 {
		return fmt.Errorf("%w: export_batch_size must be positive", ErrConfiguration)
	}
	if h := c.String("export_header"); h != "id" && h != "label" {
		return fmt.Errorf("%w: export_header must be \"id\" or \"label\", got %q", ErrConfiguration, h)
	}
	return nil
}

// SkipExport reports whether export is disabled.
func (t *Table) SkipExport() bool { return t.config.Bool("skip_export") }

// ExportFormats returns the enabled export formats.
func (t *Table) ExportFormats() []string { return t.config.Strings("export_formats") }

// ExportBatchSize returns the number of records fetched per batch.
func (t *Table) ExportBatchSize() int { return t.config.Int("export_batch_size") }

// ExportColumns returns the columns included in exports.
func (t *Table) ExportColumns() []Column {
	return slices.DeleteFunc(slices.Clone(t.columns), Column.SkipExport)
}

// Exporting reports whether the table is inside an export. Cell functions
// use it to choose plain values over interactive markup.
func (t *Table) Exporting() bool { return t.exporting }

// enterExport switches export mode on and returns the function restoring
// the previous mode.
func (t *Table) enterExport() (restore func()) {
	prev := t.exporting
	t.exporting = true
	return func() { t.exporting = prev }
}

// WithExport runs fn in export mode. The previous mode is restored however
// fn returns, including by panic.
func (t *Table) WithExport(fn func() error) error {
	defer t.enterExport()()
	return fn()
}

// Export writes the records in format to w.
func (t *Table) Export(ctx context.Context, format string, w io.Writer) error {
	if t.SkipExport() {
		return fmt.Errorf("%w: %s", ErrExportDisabled, t.def.name)
	}
	if !slices.Contains(t.ExportFormats(), format) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	switch format {
	case FormatCSV:
		return t.WriteCSV(ctx, w)
	case FormatJSON:
		return t.WriteJSON(ctx, w)
	case FormatYAML:
		return t.WriteYAML(ctx, w)
	case FormatMsgpack:
		return t.WriteMsgpack(ctx, w)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (t *Table) exportHeader(cols []Column) []string {
	header := make([]string, len(cols))
	for i, c := range cols {
		if t.config.String("export_header") == "label" {
			header[i] = t.ColumnLabel(c)
		} else {
			header[i] = c.ID()
		}
	}
	return header
}

func columnIDs(cols []Column) []string {
	ids := make([]string, len(cols))
	for i, c := range cols {
		ids[i] = c.ID()
	}
	return ids
}

// eachExportRow runs fn with the plain cell values of every record, in
// export column order, inside export mode.
func (t *Table) eachExportRow(ctx context.Context, fn func(cells []any) error) error {
	return t.WithExport(func() error {
		cols := t.ExportColumns()
		log := logging.FromContext(ctx)
		log.Debug("export started", "table", t.id, "columns", len(cols), "batch_size", t.ExportBatchSize())

		rows := 0
		err := t.EachRecord(ctx, t.ExportBatchSize(), true, func(record any) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cells := make([]any, len(cols))
			for i, col := range cols {
				v, err := t.ColumnCell(ctx, record, col)
				if err != nil {
					return fmt.Errorf("column %s: %w", col.ID(), err)
				}
				if cells[i], err = plainValue(ctx, v); err != nil {
					return fmt.Errorf("column %s: %w", col.ID(), err)
				}
			}
			rows++
			return fn(cells)
		})
		if err != nil {
			return err
		}
		log.Debug("export finished", "table", t.id, "rows", rows)
		return nil
	})
}

// WriteCSV writes a header row followed by one row per record. The writer
// is flushed after every batch.
func (t *Table) WriteCSV(ctx context.Context, w io.Writer) error {
	sep, _ := utf8.DecodeRuneInString(t.config.String("csv_column_separator"))
	cw := csv.NewWriter(w)
	cw.Comma = sep

	if err := cw.Write(t.exportHeader(t.ExportColumns())); err != nil {
		return err
	}

	batch := t.ExportBatchSize()
	n := 0
	err := t.eachExportRow(ctx, func(cells []any) error {
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = CellText(c)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
		if n++; n%batch == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// ExportRecords returns one mapping per record keyed by column id.
func (t *Table) ExportRecords(ctx context.Context) ([]map[string]any, error) {
	cols := t.ExportColumns()
	out := make([]map[string]any, 0)
	err := t.eachExportRow(ctx, func(cells []any) error {
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col.ID()] = cells[i]
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteJSON streams a JSON array with one object per record, keyed by
// column id in export column order.
func (t *Table) WriteJSON(ctx context.Context, w io.Writer) error {
	keys := columnIDs(t.ExportColumns())
	if _, err := io.WriteString(w, "["); err != nil {
		return err
	}
	first := true
	err := t.eachExportRow(ctx, func(cells []any) error {
		data, err := json.Marshal(exportRow{keys: keys, values: cells})
		if err != nil {
			return err
		}
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, "]\n")
	return err
}

// WriteYAML streams a YAML sequence with one mapping per record.
func (t *Table) WriteYAML(ctx context.Context, w io.Writer) error {
	keys := columnIDs(t.ExportColumns())
	return t.eachExportRow(ctx, func(cells []any) error {
		data, err := yaml.Marshal([]exportRow{{keys: keys, values: cells}})
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// WriteMsgpack streams one msgpack map per record.
func (t *Table) WriteMsgpack(ctx context.Context, w io.Writer) error {
	keys := columnIDs(t.ExportColumns())
	enc := msgpack.NewEncoder(w)
	return t.eachExportRow(ctx, func(cells []any) error {
		return enc.Encode(exportRow{keys: keys, values: cells})
	})
}

// exportRow is a record mapping that keeps its keys in column order.
type exportRow struct {
	keys   []string
	values []any
}

func (r exportRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r exportRow) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for i, k := range r.keys {
		var val yaml.Node
		if err := val.Encode(r.values[i]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val,
		)
	}
	return node, nil
}

func (r exportRow) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(r.keys)); err != nil {
		return err
	}
	for i, k := range r.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.Encode(r.values[i]); err != nil {
			return err
		}
	}
	return nil
}

// plainValue renders components to text so every export format receives
// plain data.
func plainValue(ctx context.Context, v any) (any, error) {
	c, ok := v.(templ.Component)
	if !ok {
		return v, nil
	}
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return nil, err
	}
	return sb.String(), nil
}

// CellText formats a cell value as text.
func CellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}
