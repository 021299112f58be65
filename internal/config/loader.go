package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// Load builds the server configuration from the environment and validates
// it. Every malformed variable is reported, not only the first.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("load table server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("table server config: %w", err)
	}
	return cfg, nil
}

// envField is the parsed env, envAlt, default and required tags of one
// settable field.
type envField struct {
	names    []string
	fallback string
	required bool
}

func parseEnvField(f reflect.StructField) (envField, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envField{}, false
	}
	ef := envField{
		names:    []string{name},
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}
	if alt := f.Tag.Get("envAlt"); alt != "" {
		ef.names = append(ef.names, alt)
	}
	return ef, true
}

// lookup returns the first non-empty variable among the field's names,
// then the default.
func (ef envField) lookup() (string, error) {
	for _, n := range ef.names {
		if v := os.Getenv(n); v != "" {
			return v, nil
		}
	}
	if ef.required {
		return "", fmt.Errorf("%s must be set", ef.names[0])
	}
	return ef.fallback, nil
}

// loadStruct fills the tagged fields of v, descending into section structs.
func loadStruct(v reflect.Value) error {
	var errs []error
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct && sf.Type != timeType {
			if err := loadStruct(fv); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		ef, ok := parseEnvField(sf)
		if !ok {
			continue
		}
		raw, err := ef.lookup()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", ef.names[0], raw, err))
		}
	}
	return errors.Join(errs...)
}

// assign parses raw into field according to its type.
func assign(field reflect.Value, raw string) error {
	switch {
	case field.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("not a duration: %w", err)
		}
		field.SetInt(int64(d))
	case field.Kind() == reflect.String:
		field.SetString(raw)
	case field.Kind() == reflect.Int || field.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %w", err)
		}
		field.SetInt(n)
	case field.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("not a boolean: %w", err)
		}
		field.SetBool(b)
	case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
		field.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("cannot load a %s from the environment", field.Type())
	}
	return nil
}

// splitList reads a comma separated list, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// problems collects validation failures per config section.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var p problems
	c.Database.validate(&p)
	c.Server.validate(&p)
	c.Tables.validate(&p)
	c.Export.validate(&p)
	c.Security.validate(&p)
	c.Logging.validate(&p)

	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("invalid settings:\n  - %s", strings.Join(p, "\n  - "))
}

// The pool limits are checked even without a URL so a later DATABASE_URL
// does not surface them at startup.
func (d DatabaseConfig) validate(p *problems) {
	if d.MaxConns <= 0 {
		p.addf("DB_MAX_CONNS must be positive")
	}
	if d.MinConns < 0 {
		p.addf("DB_MIN_CONNS must be non-negative")
	}
	if d.MaxConns < d.MinConns {
		p.addf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
	}
}

func (s ServerConfig) validate(p *problems) {
	if s.Port <= 0 || s.Port > 65535 {
		p.addf("SERVER_PORT (%d) must be 1-65535", s.Port)
	}
	if s.ReadTimeout < 0 {
		p.addf("SERVER_READ_TIMEOUT must be non-negative")
	}
	if s.WriteTimeout < 0 {
		p.addf("SERVER_WRITE_TIMEOUT must be non-negative")
	}
	if s.ShutdownTimeout <= 0 {
		p.addf("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if s.RequestTimeout <= 0 {
		p.addf("SERVER_REQUEST_TIMEOUT must be positive")
	}
}

func (t TablesConfig) validate(p *problems) {
	if t.BasePath != "" && (!strings.HasPrefix(t.BasePath, "/") || strings.HasSuffix(t.BasePath, "/")) {
		p.addf("TABLES_BASE_PATH (%q) must start with / and not end with /", t.BasePath)
	}
	if t.DefaultPerPage <= 0 {
		p.addf("TABLES_DEFAULT_PER_PAGE must be positive")
	}
	if t.Demo && t.DemoRecords < 0 {
		p.addf("TABLES_DEMO_RECORDS must be non-negative")
	}
}

func (e ExportConfig) validate(p *problems) {
	if e.MaxConcurrent <= 0 {
		p.addf("EXPORT_MAX_CONCURRENT must be positive")
	}
	if e.MaxWaitTime <= 0 {
		p.addf("EXPORT_MAX_WAIT_TIME must be positive")
	}
	if e.Timeout <= 0 {
		p.addf("EXPORT_TIMEOUT must be positive")
	}
}

func (s SecurityConfig) validate(p *problems) {
	if s.RequireAPIKey && len(s.APIKeys) == 0 {
		p.addf("REQUIRE_API_KEY needs at least one key in API_KEYS")
	}
}

func (l LoggingConfig) validate(p *problems) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.addf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p.addf("LOG_FORMAT (%q) must be one of: text, json", l.Format)
	}
}

// String renders the config for the startup log. The database URL is
// masked and API keys are only counted.
func (c *Config) String() string {
	dbURL := "[NONE]"
	if c.Database.Enabled() {
		dbURL = "[MASKED]"
	}
	sections := []string{
		fmt.Sprintf("Server: {Addr: %s, RequestTimeout: %s}", c.Server.Addr(), c.Server.RequestTimeout),
		fmt.Sprintf("Database: {URL: %s, MaxConns: %d, MinConns: %d}", dbURL, c.Database.MaxConns, c.Database.MinConns),
		fmt.Sprintf("Tables: {BasePath: %q, File: %q, DefaultPerPage: %d, LiveUpdate: %v, Demo: %v}",
			c.Tables.BasePath, c.Tables.DefinitionsFile, c.Tables.DefaultPerPage, c.Tables.LiveUpdate, c.Tables.Demo),
		fmt.Sprintf("Export: {MaxConcurrent: %d, MaxWaitTime: %s, Timeout: %s}",
			c.Export.MaxConcurrent, c.Export.MaxWaitTime, c.Export.Timeout),
		fmt.Sprintf("Security: {RequireAPIKey: %v, APIKeys: %d, TrustedProxies: %d}",
			c.Security.RequireAPIKey, len(c.Security.APIKeys), len(c.Security.TrustedProxies)),
		fmt.Sprintf("Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format),
	}
	return "Config{" + strings.Join(sections, ", ") + "}"
}
