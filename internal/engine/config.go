package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"binderd/internal/bind"
	"binderd/internal/macro"
	"binderd/internal/template"
)

// DefaultPrefix is used when a profile configures no trigger prefixes.
const DefaultPrefix = "."

// AppsFilter limits expansion to some applications. Both fields are comma
// separated executable names.
type AppsFilter struct {
	Only    string `json:"only" mapstructure:"only"`
	Exclude string `json:"exclude" mapstructure:"exclude"`
}

// Hotkeys holds the application hotkey combinations.
type Hotkeys struct {
	Toggle        string `json:"toggle" mapstructure:"toggle"`
	Open          string `json:"open" mapstructure:"open"`
	ProfileSwitch string `json:"profile_switch" mapstructure:"profile_switch"`
}

// Settings are the per-profile engine settings.
type Settings struct {
	BinderEnabled   bool       `json:"binder_enabled" mapstructure:"binder_enabled"`
	AutoLayout      bool       `json:"auto_layout" mapstructure:"auto_layout"`
	AllowNoPrefix   bool       `json:"allow_no_prefix" mapstructure:"allow_no_prefix"`
	TriggerPrefixes []string   `json:"trigger_prefixes" mapstructure:"trigger_prefixes"`
	CommitKeys      []string   `json:"commit_keys" mapstructure:"commit_keys"`
	AppsFilter      AppsFilter `json:"apps_filter" mapstructure:"apps_filter"`
	Hotkeys         Hotkeys    `json:"hotkeys" mapstructure:"hotkeys"`
}

// DefaultSettings returns the settings of a new profile.
func DefaultSettings() Settings {
	return Settings{
		BinderEnabled:   true,
		AutoLayout:      true,
		AllowNoPrefix:   false,
		TriggerPrefixes: []string{DefaultPrefix},
		CommitKeys:      []string{"space"},
		Hotkeys: Hotkeys{
			Toggle: "ctrl+alt+b",
			Open:   "ctrl+alt+m",
		},
	}
}

// UnmarshalJSON decodes settings on top of the defaults, so absent fields
// keep their default values.
func (s *Settings) UnmarshalJSON(data []byte) error {
	type plain Settings
	p := plain(DefaultSettings())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = Settings(p)
	return nil
}

// Prefixes returns the configured prefixes in order, or the default prefix
// when the list is empty. An empty entry matches every token as
// unprefixed.
func (s Settings) Prefixes() []string {
	if len(s.TriggerPrefixes) == 0 {
		return []string{DefaultPrefix}
	}
	return append([]string(nil), s.TriggerPrefixes...)
}

// Profile identifies the profile a configuration came from.
type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Config is everything the engine needs from the active profile.
type Config struct {
	Profile   Profile
	Settings  Settings
	Binds     []bind.Bind
	Variables template.Variables
	Hotkeys   []macro.Hotkey
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("engine: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks bind types, cursor offsets, macro step types and delays.
// It returns ValidationErrors or nil.
func (c Config) Validate() error {
	var errs ValidationErrors
	for i, b := range c.Binds {
		field := fmt.Sprintf("binds[%d]", i)
		if b.ID != "" {
			field = fmt.Sprintf("binds[%s]", b.ID)
		}
		if !b.Type.Valid() {
			errs = append(errs, ValidationError{Field: field + ".type", Message: fmt.Sprintf("unknown bind type %q", b.Type)})
		}
		if b.CursorBack < 0 {
			errs = append(errs, ValidationError{Field: field + ".cursor_back", Message: "must be non-negative"})
		}
	}
	for i, h := range c.Hotkeys {
		field := fmt.Sprintf("hotkeys[%d]", i)
		if h.ID != "" {
			field = fmt.Sprintf("hotkeys[%s]", h.ID)
		}
		errs = append(errs, validateSteps(field+".steps", h.Steps)...)
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateSteps(field string, steps []macro.Step) ValidationErrors {
	var errs ValidationErrors
	for i, s := range steps {
		if err := s.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s[%d]", field, i), Message: err.Error()})
		}
	}
	return errs
}

// splitList splits a comma separated list into trimmed, lower-cased,
// non-empty names.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// clone returns a copy of c sharing no slices or maps with it.
func (c Config) clone() Config {
	c.Binds = append([]bind.Bind(nil), c.Binds...)
	if c.Variables != nil {
		c.Variables = c.Variables.Clone()
	}
	hotkeys := make([]macro.Hotkey, len(c.Hotkeys))
	for i, h := range c.Hotkeys {
		h.Steps = append([]macro.Step(nil), h.Steps...)
		hotkeys[i] = h
	}
	c.Hotkeys = hotkeys
	c.Settings.TriggerPrefixes = append([]string(nil), c.Settings.TriggerPrefixes...)
	c.Settings.CommitKeys = append([]string(nil), c.Settings.CommitKeys...)
	return c
}

// snapshot is the immutable view of a Config used while handling keys.
type snapshot struct {
	cfg        Config
	matcher    *bind.Matcher
	prefixes   []string
	commitKeys map[string]bool
	only       []string
	exclude    []string
}

func newSnapshot(cfg Config) *snapshot {
	cfg = cfg.clone()
	if cfg.Variables == nil {
		cfg.Variables = template.Variables{}
	}

	keys := cfg.Settings.CommitKeys
	if len(keys) == 0 {
		keys = DefaultSettings().CommitKeys
	}
	commit := make(map[string]bool, len(keys))
	for _, k := range keys {
		commit[strings.ToLower(strings.TrimSpace(k))] = true
	}

	return &snapshot{
		cfg:        cfg,
		matcher:    bind.NewMatcher(cfg.Binds, cfg.Settings.AutoLayout),
		prefixes:   cfg.Settings.Prefixes(),
		commitKeys: commit,
		only:       splitList(cfg.Settings.AppsFilter.Only),
		exclude:    splitList(cfg.Settings.AppsFilter.Exclude),
	}
}

// splitPrefix returns the first configured prefix of token and the rest.
// ok is false when no prefix matches and unprefixed triggers are not
// allowed.
func (s *snapshot) splitPrefix(token string) (prefix, trigger string, ok bool) {
	for _, p := range s.prefixes {
		if strings.HasPrefix(token, p) {
			return p, token[len(p):], true
		}
	}
	if s.cfg.Settings.AllowNoPrefix {
		return "", token, true
	}
	return "", token, false
}

func (s *snapshot) filtersApps() bool {
	return len(s.only) > 0 || len(s.exclude) > 0
}

// appAllowed applies the application filter. An unknown application is
// allowed.
func (s *snapshot) appAllowed(app string) bool {
	if app == "" {
		return true
	}
	if len(s.only) > 0 && !contains(s.only, app) {
		return false
	}
	if len(s.exclude) > 0 && contains(s.exclude, app) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
