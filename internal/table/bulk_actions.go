package table

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/JonMunkholm/rapidtable/internal/logging"
	"github.com/a-h/templ"
	"github.com/google/uuid"
)

// BulkAction is a named operation on a set of selected records.
type BulkAction struct{ *Value }

// ID returns the bulk action id.
func (b BulkAction) ID() string { return b.String("id") }

// Label returns the explicit label, or "".
func (b BulkAction) Label() string { return b.String("label") }

// BulkActionRequest is one requested run of a bulk action.
type BulkActionRequest struct {
	BatchID   uuid.UUID
	Action    BulkAction
	RecordIDs []string
}

// BulkActionResult summarizes a bulk action run.
type BulkActionResult struct {
	BatchID  uuid.UUID `json:"batch_id"`
	Action   string    `json:"action"`
	Affected int       `json:"affected"`
	Message  string    `json:"message,omitempty"`
}

// BulkActionFunc performs a bulk action.
type BulkActionFunc func(ctx context.Context, t *Table, req BulkActionRequest) (BulkActionResult, error)

type bulkActionsFeature struct{}

// BulkActions lets users run named actions on selected records.
func BulkActions() Feature { return bulkActionsFeature{} }

func (bulkActionsFeature) Name() string { return "bulk_actions" }

func (bulkActionsFeature) Register(d *Definition) error {
	d.DefineExtendable(KindBulkAction, func(s *Schema) {
		s.Field("id", nil).Field("label", nil)
	})
	if _, err := d.ExtendExtendable(KindConfig, func(s *Schema) {
		s.Field("skip_bulk_actions", nil).
			Field("bulk_actions", nil).
			Field("bulk_actions_param", nil).
			Field("bulk_action_ids", nil).
			Field("bulk_action_param", nil)
	}); err != nil {
		return err
	}

	d.SetDefault("skip_bulk_actions", false).
		SetDefault("bulk_actions_param", "ids").
		SetDefault("bulk_action_param", "bulk_action")

	if err := d.RegisterInitializer("bulk_actions", initBulkActions); err != nil {
		return err
	}
	return d.RegisterInitializer("bulk_actions_dsl", initBulkActionsDSL, Before("bulk_actions"))
}

func (bulkActionsFeature) Fragment(t *Table) templ.Component {
	if t.SkipBulkActions() {
		return templ.NopComponent
	}
	return t.BulkActionControls()
}

// initBulkActionsDSL resolves bulk_action_ids (or every declared bulk
// action) into the bulk_actions option unless the instance set it.
func initBulkActionsDSL(t *Table, c *Config) error {
	if err := errors.Join(
		c.SetClassDefault(t.def, "skip_bulk_actions"),
		c.SetClassDefault(t.def, "bulk_actions_param"),
		c.SetClassDefault(t.def, "bulk_action_param"),
	); err != nil {
		return err
	}
	if c.IsSet("bulk_actions") {
		return nil
	}

	if c.IsSet("bulk_action_ids") {
		ids := c.Strings("bulk_action_ids")
		actions := make([]BulkAction, 0, len(ids))
		for _, id := range ids {
			a, err := t.def.FindBulkAction(id)
			if err != nil {
				return err
			}
			actions = append(actions, a)
		}
		return c.Set("bulk_actions", actions)
	}
	return c.Set("bulk_actions", t.def.BulkActions())
}

func initBulkActions(t *Table, c *Config) error {
	var list []any
	if raw := c.Get("bulk_actions"); raw != nil {
		var ok bool
		if list, ok = toList(raw); !ok {
			return fmt.Errorf("%w: bulk_actions must be a list, got %T", ErrConfiguration, raw)
		}
	}
	vals, err := t.def.BuildAll(KindBulkAction, list)
	if err != nil {
		return err
	}
	t.bulkActions = make([]BulkAction, len(vals))
	for i, v := range vals {
		t.bulkActions[i] = BulkAction{v}
	}

	if err := errors.Join(
		c.SetDefault("bulk_actions_param", "ids"),
		c.SetDefault("bulk_action_param", "bulk_action"),
	); err != nil {
		return err
	}
	if len(t.bulkActions) == 0 {
		return c.Set("skip_bulk_actions", true)
	}
	return nil
}

// SkipBulkActions reports whether bulk actions are disabled. It is always
// true when the table has no bulk actions.
func (t *Table) SkipBulkActions() bool { return t.config.Bool("skip_bulk_actions") }

// BulkActions returns the instance's bulk actions.
func (t *Table) BulkActions() []BulkAction { return t.bulkActions }

// BulkActionsParam returns the un-namespaced selected ids parameter name.
func (t *Table) BulkActionsParam() string { return t.config.String("bulk_actions_param") }

// BulkActionLabel resolves the label of a: its label, the
// "bulk_actions.<id>" translation, or the titleized id.
func (t *Table) BulkActionLabel(a BulkAction) string {
	if l := a.Label(); l != "" {
		return l
	}
	if l, ok := t.translate("bulk_actions." + a.ID()); ok {
		return l
	}
	return Titleize(a.ID())
}

// SelectedRecordIDs returns the record ids selected in the request. It is
// computed once.
func (t *Table) SelectedRecordIDs() []string {
	if !t.selectedSet {
		t.selectedIDs = t.ParamValues(t.BulkActionsParam())
		t.selectedSet = true
	}
	return t.selectedIDs
}

// IsSelected reports whether record is among the selected records.
func (t *Table) IsSelected(record any) (bool, error) {
	id, err := t.RecordID(record)
	if err != nil {
		return false, err
	}
	return slices.Contains(t.SelectedRecordIDs(), id), nil
}

// FindInstanceBulkAction returns the instance bulk action id.
func (t *Table) FindInstanceBulkAction(id string) (BulkAction, error) {
	for _, a := range t.bulkActions {
		if a.ID() == id {
			return a, nil
		}
	}
	return BulkAction{}, fmt.Errorf("%w: %q in %s", ErrBulkActionNotFound, id, t.def.name)
}

// PerformBulkAction runs the bulk action named by the request's bulk action
// parameter on the selected records.
func (t *Table) PerformBulkAction(ctx context.Context) (BulkActionResult, error) {
	if t.SkipBulkActions() {
		return BulkActionResult{}, fmt.Errorf("%w: bulk actions are disabled for %s", ErrConfiguration, t.def.name)
	}

	action, err := t.FindInstanceBulkAction(t.Param(t.config.String("bulk_action_param")))
	if err != nil {
		return BulkActionResult{}, err
	}
	fn, ok := t.def.bulkHandler(action.ID())
	if !ok {
		return BulkActionResult{}, fmt.Errorf("%w: no handler for bulk action %q", ErrExtensionRequired, action.ID())
	}

	req := BulkActionRequest{
		BatchID:   uuid.New(),
		Action:    action,
		RecordIDs: t.SelectedRecordIDs(),
	}
	log := logging.WithFields(ctx, "table", t.id, "bulk_action", action.ID(), "batch_id", req.BatchID.String())
	log.Info("bulk action started", "records", len(req.RecordIDs))

	res, err := fn(ctx, t, req)
	if err != nil {
		log.Error("bulk action failed", "error", err)
		return res, err
	}
	res.BatchID, res.Action = req.BatchID, action.ID()
	log.Info("bulk action finished", "affected", res.Affected)
	return res, nil
}

// AddBulkAction declares a bulk action on the table type.
func (d *Definition) AddBulkAction(id string, attrs Attrs) (BulkAction, error) {
	a := Attrs{"id": id}
	for k, v := range attrs {
		if k != "id" {
			a[k] = v
		}
	}
	v, err := d.Build(KindBulkAction, a)
	if err != nil {
		return BulkAction{}, fmt.Errorf("bulk action %q: %w", id, err)
	}
	action := BulkAction{v}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.IndexFunc(d.bulkActions, func(b BulkAction) bool { return b.ID() == id }); i >= 0 {
		d.bulkActions[i] = action
	} else {
		d.bulkActions = append(d.bulkActions, action)
	}
	d.touch()
	return action, nil
}

// BulkAction is AddBulkAction for table type declarations; it panics on
// error. A non-nil fn is registered as the action's handler.
func (d *Definition) BulkAction(id string, attrs Attrs, fn BulkActionFunc) *Definition {
	if _, err := d.AddBulkAction(id, attrs); err != nil {
		panic(err)
	}
	if fn != nil {
		d.OnBulkAction(id, fn)
	}
	return d
}

// BulkActions returns the declared bulk actions, ancestors first.
func (d *Definition) BulkActions() []BulkAction {
	var out []BulkAction
	if d.parent != nil {
		out = d.parent.BulkActions()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range d.bulkActions {
		if i := slices.IndexFunc(out, func(b BulkAction) bool { return b.ID() == a.ID() }); i >= 0 {
			out[i] = a
			continue
		}
		out = append(out, a)
	}
	return out
}

// FindBulkAction looks a declared bulk action up by id.
func (d *Definition) FindBulkAction(id string) (BulkAction, error) {
	for _, a := range d.BulkActions() {
		if a.ID() == id {
			return a, nil
		}
	}
	return BulkAction{}, fmt.Errorf("%w: %q in %s", ErrBulkActionNotFound, id, d.name)
}

// OnBulkAction registers the handler of bulk action id.
func (d *Definition) OnBulkAction(id string, fn BulkActionFunc) *Definition {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bulkHandlers[id] = fn
	return d
}

func (d *Definition) bulkHandler(id string) (BulkActionFunc, bool) {
	for cur := d; cur != nil; cur = cur.parent {
		cur.mu.Lock()
		fn, ok := cur.bulkHandlers[id]
		cur.mu.Unlock()
		if ok {
			return fn, true
		}
	}
	return nil, false
}
