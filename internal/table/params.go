package table

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// registerParams gives every root table type its request parameter
// surface: config options params, param_name, action and live_update, and
// the "params" initializer that reads them.
func registerParams(d *Definition) error {
	d.DefineExtendable(KindConfig, func(s *Schema) {
		s.Field("params", nil).
			Field("param_name", nil).
			Field("action", nil).
			Field("live_update", nil)
	})

	return d.RegisterInitializer("params", func(t *Table, c *Config) error {
		params, err := toValues(c.Get("params"))
		if err != nil {
			return err
		}
		t.params = params
		t.paramName = c.String("param_name")
		t.action = c.String("action")
		return c.SetClassDefault(t.def, "live_update")
	})
}

func toValues(v any) (url.Values, error) {
	switch p := v.(type) {
	case nil:
		return url.Values{}, nil
	case url.Values:
		return p, nil
	case map[string][]string:
		return url.Values(p), nil
	case map[string]string:
		out := make(url.Values, len(p))
		for k, val := range p {
			out.Set(k, val)
		}
		return out, nil
	case map[string]any:
		out := make(url.Values, len(p))
		for k, val := range p {
			if ss, ok := toStrings(val); ok {
				out[k] = ss
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: params must be url.Values or a string map, got %T", ErrConfiguration, v)
}

// ParamName returns the request parameter key for name, nested under the
// instance namespace when one is configured ("users[page]").
func (t *Table) ParamName(name string) string {
	if t.paramName == "" {
		return name
	}
	return t.paramName + "[" + name + "]"
}

// Namespace returns the configured parameter namespace, or "".
func (t *Table) Namespace() string { return t.paramName }

// IDFor returns a DOM id for name that is unique per table namespace.
func (t *Table) IDFor(name string) string {
	if t.paramName == "" {
		return name
	}
	return t.paramName + "_" + name
}

// Param returns the first value of the namespaced parameter name.
func (t *Table) Param(name string) string {
	return strings.TrimSpace(t.params.Get(t.ParamName(name)))
}

// ParamValues returns every value of the namespaced list parameter name,
// accepting both "ids" and "ids[]" spellings. Only a single "ids" value is
// read as a comma separated list; repeated values are taken as they are.
func (t *Table) ParamValues(name string) []string {
	key := t.ParamName(name)
	plain := t.params[key]
	if len(plain) == 1 {
		plain = strings.Split(plain[0], ",")
	}
	var out []string
	for _, v := range append(slices.Clone(plain), t.params[key+"[]"]...) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Params returns the full request parameters.
func (t *Table) Params() url.Values { return t.params }

// Action returns the base path the table is rendered at.
func (t *Table) Action() string { return t.action }

// RegisterParamName marks parameters that must survive across requests,
// e.g. the current sort when changing pages.
func (t *Table) RegisterParamName(names ...string) {
	for _, n := range names {
		if n != "" && !slices.Contains(t.registeredParams, n) {
			t.registeredParams = append(t.registeredParams, n)
		}
	}
}

// RegisteredParamNames returns the names passed to RegisterParamName.
func (t *Table) RegisteredParamNames() []string { return slices.Clone(t.registeredParams) }

// RegisteredParams returns the current values of the registered parameters
// keyed by their un-namespaced name, with overrides applied. A nil
// override removes the parameter.
func (t *Table) RegisteredParams(overrides map[string]any) url.Values {
	out := url.Values{}
	for _, name := range t.registeredParams {
		if v := t.Param(name); v != "" {
			out.Set(name, v)
		}
	}
	for k, v := range overrides {
		if v == nil {
			out.Del(k)
			continue
		}
		if s, ok := toString(v); ok {
			out.Set(k, s)
		}
	}
	return out
}

// Path returns the table's URL with the registered parameters preserved.
func (t *Table) Path(overrides map[string]any) string {
	return t.PathFor("", overrides)
}

// PathFor is like Path for a sub-action of the table, e.g. "export".
func (t *Table) PathFor(action string, overrides map[string]any) string {
	base := t.action
	if action != "" {
		base = strings.TrimSuffix(base, "/") + "/" + action
	}

	q := url.Values{}
	for k, vs := range t.RegisteredParams(overrides) {
		q[t.ParamName(k)] = vs
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}
