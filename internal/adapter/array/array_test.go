package array_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/adapter/array"
	"github.com/JonMunkholm/rapidtable/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPage(t *testing.T) {
	records := []any{1, 2, 3, 4, 5}

	p := array.NewPage(records, 2, 2)
	assert.Equal(t, []any{3, 4}, p.Items)
	assert.Equal(t, 3, p.TotalPages())
	assert.Equal(t, 5, p.TotalRecordsCount())
	assert.Equal(t, 2, p.CurrentPage())
	assert.Equal(t, records, p.Unpaginated())

	p = array.NewPage(records, 9, 2)
	assert.Empty(t, p.Items)

	p = array.NewPage(nil, 1, 25)
	assert.Equal(t, 0, p.TotalPages())
}

func TestSlice(t *testing.T) {
	got, err := array.Slice([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got)

	got, err = array.Slice(array.NewPage([]any{1, 2, 3}, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, got)

	_, err = array.Slice(42)
	assert.ErrorIs(t, err, table.ErrIncompatibleValue)
}

func TestCompare(t *testing.T) {
	now := time.Now()
	tests := []struct {
		a, b any
		want int
	}{
		{1, 2, -1},
		{2.5, 2, 1},
		{int64(3), 3, 0},
		{"b", "a", 1},
		{now, now.Add(time.Second), -1},
		{false, true, -1},
		{nil, 1, 1},
		{1, nil, -1},
		{nil, nil, 0},
		{"10", 9, -1},
	}
	for _, tt := range tests {
		if got := array.Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

type product struct {
	SKU   string `table:"sku"`
	Title string
	Price *float64
}

func price(v float64) *float64 { return &v }

func TestAdapter_RecordIDAttributeAndNilSort(t *testing.T) {
	d := table.MustDefine("products", table.Sorting(), array.Adapter()).
		Column("sku", nil).
		Column("price", table.Attrs{"sortable": true})

	records := []product{
		{SKU: "a", Price: price(3)},
		{SKU: "b"},
		{SKU: "c", Price: price(1)},
	}
	tbl, err := d.New(records, table.Options{
		"id_attribute": "sku",
		"params":       url.Values{"sort": {"price"}},
	})
	require.NoError(t, err)

	var skus []string
	require.NoError(t, tbl.EachRecord(t.Context(), 0, false, func(r any) error {
		id, err := tbl.RecordID(r)
		skus = append(skus, id)
		return err
	}))
	assert.Equal(t, []string{"c", "a", "b"}, skus, "nil prices sort last")
}

func TestAdapter_DescendingSortKeepsNilLastAndTiesStable(t *testing.T) {
	d := table.MustDefine("products_desc", table.Sorting(), array.Adapter()).
		Column("sku", nil).
		Column("price", table.Attrs{"sortable": true})

	records := []product{
		{SKU: "a", Price: price(3)},
		{SKU: "b"},
		{SKU: "c", Price: price(1)},
		{SKU: "d", Price: price(3)},
	}
	tbl, err := d.New(records, table.Options{
		"id_attribute": "sku",
		"params":       url.Values{"sort": {"price"}, "dir": {"desc"}},
	})
	require.NoError(t, err)

	var skus []string
	require.NoError(t, tbl.EachRecord(t.Context(), 0, false, func(r any) error {
		id, err := tbl.RecordID(r)
		skus = append(skus, id)
		return err
	}))
	assert.Equal(t, []string{"a", "d", "c", "b"}, skus)
}

func TestAdapter_SourceFunc(t *testing.T) {
	d := table.MustDefine("lazy", table.Columns(), table.Pagination(), array.Adapter()).
		Column("id", nil)

	calls := 0
	src := table.SourceFunc(func(ctx context.Context) (any, error) {
		calls++
		return []map[string]any{{"id": 1}, {"id": 2}}, nil
	})
	tbl, err := d.New(src, nil)
	require.NoError(t, err)

	n, err := tbl.TotalRecordsCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = tbl.TotalPages(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "records are materialized once per instance")
}

func TestAdapter_ContextCancelled(t *testing.T) {
	d := table.MustDefine("cancel", table.Columns(), array.Adapter()).Column("id", nil)
	tbl, err := d.New([]any{map[string]any{"id": 1}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = tbl.EachRecord(ctx, 0, false, func(any) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
