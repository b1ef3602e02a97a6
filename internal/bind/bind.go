// Package bind defines trigger binds and the matcher that resolves a typed
// trigger to a bind.
package bind

import (
	"encoding/json"
	"fmt"
)

// Type selects how bind content is emitted.
type Type string

const (
	// Text is written in a single pass.
	Text Type = "Text"
	// Command is written in a single pass, like Text.
	Command Type = "Command"
	// Multi is split into lines with enter pressed between them.
	Multi Type = "Multi"
)

// Types lists every bind type in display order.
var Types = []Type{Text, Command, Multi}

// ParseType returns the Type named by s. An empty name means Text.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "", Text:
		return Text, nil
	case Command:
		return Command, nil
	case Multi:
		return Multi, nil
	}
	return "", fmt.Errorf("bind: unknown type %q", s)
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	switch t {
	case Text, Command, Multi:
		return true
	}
	return false
}

// Options tune matching and emission for one bind.
type Options struct {
	DeleteTrigger bool `json:"delete_trigger" mapstructure:"delete_trigger"`
	CaseSensitive bool `json:"case_sensitive" mapstructure:"case_sensitive"`
	OnlyPrefix    bool `json:"only_prefix" mapstructure:"only_prefix"`
}

// DefaultOptions returns the options a bind gets when none are stored.
func DefaultOptions() Options {
	return Options{DeleteTrigger: true, CaseSensitive: false, OnlyPrefix: true}
}

// UnmarshalJSON decodes options, keeping defaults for absent fields.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw struct {
		DeleteTrigger *bool `json:"delete_trigger"`
		CaseSensitive *bool `json:"case_sensitive"`
		OnlyPrefix    *bool `json:"only_prefix"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = DefaultOptions()
	if raw.DeleteTrigger != nil {
		o.DeleteTrigger = *raw.DeleteTrigger
	}
	if raw.CaseSensitive != nil {
		o.CaseSensitive = *raw.CaseSensitive
	}
	if raw.OnlyPrefix != nil {
		o.OnlyPrefix = *raw.OnlyPrefix
	}
	return nil
}

// Bind maps a trigger to content.
type Bind struct {
	ID         string  `json:"id" mapstructure:"id"`
	Title      string  `json:"title" mapstructure:"title"`
	Category   string  `json:"category" mapstructure:"category"`
	Trigger    string  `json:"trigger" mapstructure:"trigger"`
	Type       Type    `json:"type" mapstructure:"type"`
	Content    string  `json:"content" mapstructure:"content"`
	Options    Options `json:"options" mapstructure:"options"`
	CursorBack int     `json:"cursor_back" mapstructure:"cursor_back"`
}

// UnmarshalJSON decodes a bind. Missing options take their defaults and a
// missing type means Text.
func (b *Bind) UnmarshalJSON(data []byte) error {
	type plain Bind
	p := plain{Options: DefaultOptions()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Type == "" {
		p.Type = Text
	}
	*b = Bind(p)
	return nil
}

// New returns a bind with default options.
func New(title, category, trigger string, typ Type, content string) Bind {
	return Bind{
		Title:    title,
		Category: category,
		Trigger:  trigger,
		Type:     typ,
		Content:  content,
		Options:  DefaultOptions(),
	}
}

// Defaults returns the sample binds seeded into a fresh profile.
func Defaults() []Bind {
	return []Bind{
		New("Приветствие", "Ответы", "ку", Text, "Привет, меня зовут {me_name}"),
		New("AJail", "Наказания", "ajail", Command, "/ajail {id} {time}"),
		New("Телепорт", "Телепорты", "tp", Command, "/tp {id}"),
	}
}
