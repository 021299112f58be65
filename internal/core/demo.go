package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/JonMunkholm/rapidtable/internal/adapter/array"
	"github.com/JonMunkholm/rapidtable/internal/table"
)

// Account is a record of the demo "accounts" table.
type Account struct {
	ID        int       `table:"id"`
	Name      string    `table:"name"`
	Email     string    `table:"email"`
	Plan      string    `table:"plan"`
	Active    bool      `table:"active"`
	Balance   *float64  `table:"balance"`
	CreatedAt time.Time `table:"created_at"`
}

// DemoStore is the in-memory data behind the demo tables.
type DemoStore struct {
	mu       sync.RWMutex
	accounts []Account
}

// NewDemoStore returns a store seeded with n accounts.
func NewDemoStore(n int) *DemoStore {
	plans := []string{"free", "team", "enterprise"}
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	s := &DemoStore{accounts: make([]Account, n)}
	for i := range s.accounts {
		a := Account{
			ID:        i + 1,
			Name:      fmt.Sprintf("Account %03d", i+1),
			Email:     fmt.Sprintf("owner%03d@example.com", i+1),
			Plan:      plans[i%len(plans)],
			Active:    i%7 != 0,
			CreatedAt: start.Add(time.Duration(i) * 36 * time.Hour),
		}
		if i%5 != 0 {
			b := float64((i*7919)%100000) / 100
			a.Balance = &b
		}
		s.accounts[i] = a
	}
	return s
}

// Accounts returns a snapshot of the accounts.
func (s *DemoStore) Accounts(context.Context) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.accounts), nil
}

// update applies fn to the accounts whose id is in ids and returns how many
// matched.
func (s *DemoStore) update(ids []string, fn func(a *Account)) int {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.accounts {
		if want[fmt.Sprint(s.accounts[i].ID)] {
			fn(&s.accounts[i])
			n++
		}
	}
	return n
}

func (s *DemoStore) remove(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.accounts)
	s.accounts = slices.DeleteFunc(s.accounts, func(a Account) bool {
		return slices.Contains(ids, fmt.Sprint(a.ID))
	})
	return before - len(s.accounts)
}

// AccountsTable is the table type of the demo accounts.
func AccountsTable(store *DemoStore) *table.Definition {
	d := table.MustDefine("accounts",
		table.Columns(), table.Pagination(), table.Sorting(), table.Search(),
		table.Export(), table.BulkActions(), array.Adapter(),
	).
		Column("id", table.Attrs{"sortable": true}).
		Column("name", table.Attrs{"sortable": true, "searchable": true}).
		Column("email", table.Attrs{"searchable": true}).
		Column("plan", table.Attrs{"sortable": true, "searchable": true}).
		Column("active", table.Attrs{"sortable": true}).
		Column("balance", table.Attrs{"sortable": true, "sort_order": table.SortDesc}).
		Column("created_at", table.Attrs{"label": "Created", "sortable": true}).
		ColumnGroup("summary", []string{"name", "plan", "balance"}, table.Attrs{"sort_column": "balance"}).
		SortBy("id", table.SortAsc).
		SetDefault("export_header", "label").
		SetDefault("export_formats", []string{table.FormatCSV, table.FormatJSON, table.FormatYAML, table.FormatMsgpack})

	table.RegisterTypeCell(d, func(_ context.Context, t *table.Table, v bool) (any, error) {
		if t.Exporting() {
			return v, nil
		}
		if v {
			return "Yes", nil
		}
		return "No", nil
	})
	table.RegisterTypeCell(d, func(_ context.Context, t *table.Table, v time.Time) (any, error) {
		if t.Exporting() {
			return v, nil
		}
		return v.Format("2006-01-02"), nil
	})
	table.RegisterTypeCell(d, func(_ context.Context, t *table.Table, v float64) (any, error) {
		if t.Exporting() {
			return v, nil
		}
		return fmt.Sprintf("%.2f", v), nil
	})

	d.BulkAction("deactivate", nil, func(_ context.Context, _ *table.Table, req table.BulkActionRequest) (table.BulkActionResult, error) {
		n := store.update(req.RecordIDs, func(a *Account) { a.Active = false })
		return table.BulkActionResult{Affected: n, Message: fmt.Sprintf("%d accounts deactivated", n)}, nil
	})
	d.BulkAction("delete", table.Attrs{"label": "Delete permanently"}, func(_ context.Context, _ *table.Table, req table.BulkActionRequest) (table.BulkActionResult, error) {
		n := store.remove(req.RecordIDs)
		return table.BulkActionResult{Affected: n, Message: fmt.Sprintf("%d accounts deleted", n)}, nil
	})
	return d
}

// RegisterDemo adds the demo tables to c.
func RegisterDemo(c *Catalog, store *DemoStore) {
	accounts := AccountsTable(store)
	c.Register(Entry{
		Key:        "accounts",
		Group:      "demo",
		Label:      "Accounts",
		Definition: accounts,
		Source:     store.Accounts,
	})

	active := accounts.MustSubclass("active_accounts")
	active.SetDefault("per_page", 50)
	c.Register(Entry{
		Key:        "active_accounts",
		Group:      "demo",
		Label:      "Active accounts",
		Definition: active,
		Source: func(ctx context.Context) (any, error) {
			all, err := store.Accounts(ctx)
			if err != nil {
				return nil, err
			}
			return slices.DeleteFunc(all.([]Account), func(a Account) bool { return !a.Active }), nil
		},
		Options: table.Options{"column_ids": []string{"id", "name", "email", "balance"}},
	})
}
