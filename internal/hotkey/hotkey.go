// Package hotkey normalizes, validates and formats hotkey combinations.
//
// The canonical form is lower case with parts joined by "+", for example
// "ctrl+alt+b". Display form is "Ctrl + Alt + B".
package hotkey

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// Canonical modifier names.
const (
	Ctrl  = "ctrl"
	Alt   = "alt"
	AltGr = "alt gr"
	Shift = "shift"
	Cmd   = "cmd"
)

// ErrEmpty is returned when a combination has no parts.
var ErrEmpty = errors.New("hotkey: empty combination")

var partPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Key names containing a space that are still valid parts.
var spacedNames = map[string]bool{
	"alt gr":       true,
	"caps lock":    true,
	"page up":      true,
	"page down":    true,
	"print screen": true,
	"scroll lock":  true,
	"num lock":     true,
}

var modifierAliases = map[string]string{
	"ctrl":    Ctrl,
	"control": Ctrl,
	"alt":     Alt,
	"alt gr":  AltGr,
	"altgr":   AltGr,
	"shift":   Shift,
	"cmd":     Cmd,
	"command": Cmd,
	"win":     Cmd,
	"windows": Cmd,
	"super":   Cmd,
	"meta":    Cmd,
}

// modifierOrder is the order modifiers appear in a parsed combination.
var modifierOrder = []string{Ctrl, Alt, AltGr, Shift, Cmd}

var displayNames = map[string]string{
	"ctrl":      "Ctrl",
	"alt":       "Alt",
	"alt gr":    "AltGr",
	"shift":     "Shift",
	"cmd":       "Cmd",
	"win":       "Win",
	"windows":   "Win",
	"caps lock": "CapsLock",
	"capslock":  "CapsLock",
	"enter":     "Enter",
	"space":     "Space",
	"tab":       "Tab",
	"esc":       "Esc",
	"escape":    "Esc",
}

// Normalize lower-cases s, trims every part and joins non-empty parts
// with "+".
func Normalize(s string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	out := parts[:0]
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "+")
}

// Valid reports whether s normalizes to a usable combination. Parts must be
// ASCII letters, digits or dashes, or one of the known spaced key names.
func Valid(s string) bool {
	n := Normalize(s)
	if n == "" {
		return false
	}
	for _, r := range n {
		if r > unicode.MaxASCII {
			return false
		}
	}
	for _, p := range strings.Split(n, "+") {
		if !spacedNames[p] && !partPattern.MatchString(p) {
			return false
		}
	}
	return true
}

// Format returns the display form of s, or "" when s is empty.
func Format(s string) string {
	n := Normalize(s)
	if n == "" {
		return ""
	}
	parts := strings.Split(n, "+")
	for i, p := range parts {
		if d, ok := displayNames[p]; ok {
			parts[i] = d
			continue
		}
		parts[i] = title(p)
	}
	return strings.Join(parts, " + ")
}

func title(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// Combo is a parsed combination: a set of canonical modifiers and at most
// one non-modifier key.
type Combo struct {
	Modifiers []string
	Key       string
}

// String returns the canonical form of the combination.
func (c Combo) String() string {
	parts := slices.Clone(c.Modifiers)
	if c.Key != "" {
		parts = append(parts, c.Key)
	}
	return strings.Join(parts, "+")
}

// Has reports whether mod is part of the combination.
func (c Combo) Has(mod string) bool {
	return slices.Contains(c.Modifiers, mod)
}

// IsModifier reports whether name is a modifier key name or alias.
func IsModifier(name string) bool {
	_, ok := modifierAliases[Normalize(name)]
	return ok
}

// CanonicalModifier maps a modifier alias to its canonical name.
func CanonicalModifier(name string) (string, bool) {
	m, ok := modifierAliases[Normalize(name)]
	return m, ok
}

// Parse splits s into modifiers and a key. A combination made only of
// modifiers is allowed; two non-modifier keys are not.
func Parse(s string) (Combo, error) {
	if !Valid(s) {
		if Normalize(s) == "" {
			return Combo{}, ErrEmpty
		}
		return Combo{}, fmt.Errorf("hotkey: invalid combination %q", s)
	}
	var c Combo
	seen := make(map[string]bool)
	for _, p := range strings.Split(Normalize(s), "+") {
		if m, ok := modifierAliases[p]; ok {
			seen[m] = true
			continue
		}
		if c.Key != "" {
			return Combo{}, fmt.Errorf("hotkey: %q has more than one key", s)
		}
		c.Key = p
	}
	for _, m := range modifierOrder {
		if seen[m] {
			c.Modifiers = append(c.Modifiers, m)
		}
	}
	return c, nil
}
