package bind

import (
	"strings"

	"binderd/internal/layout"
)

// Method records which pass of the matcher found a bind.
type Method string

const (
	MethodExact  Method = "exact"
	MethodLayout Method = "layout"
	MethodNone   Method = "none"
)

// Matcher resolves triggers against an ordered, read-only list of binds.
type Matcher struct {
	binds      []Bind
	autoLayout bool
}

// NewMatcher returns a matcher over binds. The slice is not copied and must
// not be modified afterwards.
func NewMatcher(binds []Bind, autoLayout bool) *Matcher {
	return &Matcher{binds: binds, autoLayout: autoLayout}
}

// Find returns the first bind whose trigger matches. When the trigger was
// typed without a prefix, binds that require one are skipped. If nothing
// matches and layout correction is enabled the trigger is converted to the
// other keyboard layout and searched again.
func (m *Matcher) Find(trigger string, prefixed bool) (*Bind, Method) {
	if b := m.find(trigger, prefixed); b != nil {
		return b, MethodExact
	}
	if m.autoLayout {
		if b := m.find(layout.Convert(trigger), prefixed); b != nil {
			return b, MethodLayout
		}
	}
	return nil, MethodNone
}

func (m *Matcher) find(trigger string, prefixed bool) *Bind {
	for i := range m.binds {
		b := &m.binds[i]
		if b.Options.OnlyPrefix && !prefixed {
			continue
		}
		if b.Options.CaseSensitive {
			if b.Trigger == trigger {
				return b
			}
		} else if strings.EqualFold(b.Trigger, trigger) {
			return b
		}
	}
	return nil
}

// Len returns the number of binds.
func (m *Matcher) Len() int {
	return len(m.binds)
}
