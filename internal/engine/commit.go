package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"binderd/internal/bind"
	"binderd/internal/template"
)

// commit resolves the buffered token after a commit key. Caller holds e.mu.
func (e *Engine) commit(key string) {
	snap := e.snap.Load()
	if !snap.commitKeys[key] {
		e.debug(snap, ReasonCommitKeyDisabled, map[string]any{"key": key})
		return
	}

	token := string(e.buf)
	e.buf = e.buf[:0]
	if token == "" {
		return
	}

	if !snap.cfg.Settings.BinderEnabled {
		e.debug(snap, ReasonEngineDisabled, map[string]any{"token": token})
		return
	}

	if snap.filtersApps() {
		app := ""
		if e.apps != nil {
			app = e.apps.ForegroundApp()
		}
		if !snap.appAllowed(app) {
			e.debug(snap, ReasonAppNotAllowed, map[string]any{
				"app":     app,
				"only":    snap.only,
				"exclude": snap.exclude,
			})
			return
		}
	}

	prefix, trigger, ok := snap.splitPrefix(token)
	if !ok {
		e.debug(snap, ReasonPrefixNotMatched, map[string]any{"token": token})
		return
	}

	b, method := snap.matcher.Find(trigger, prefix != "")
	if b == nil {
		e.debug(snap, ReasonTriggerNotFound, map[string]any{
			"trigger": trigger,
			"method":  string(method),
			"token":   token,
		})
		return
	}

	if err := e.expand(snap, b, prefix, trigger); err != nil {
		e.log.Warn("expansion failed", "bind_id", b.ID, "error", err)
		e.debug(snap, ReasonInputError, map[string]any{"error": err.Error()})
		return
	}
	e.debug(snap, ReasonTriggerMatched, map[string]any{
		"trigger": trigger,
		"method":  string(method),
		"bind_id": b.ID,
		"title":   b.Title,
	})
}

// expand erases the typed trigger and emits the bind content. Panics from
// the keyboard are returned as errors.
func (e *Engine) expand(snap *snapshot, b *bind.Bind, prefix, trigger string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	if b.Options.DeleteTrigger {
		// One extra backspace for the commit key itself.
		n := utf8.RuneCountInString(prefix) + utf8.RuneCountInString(trigger) + 1
		if err := e.repeat("backspace", n); err != nil {
			return err
		}
	}
	return e.emitBind(snap, b)
}

func (e *Engine) emitBind(snap *snapshot, b *bind.Bind) error {
	now := e.now()
	switch b.Type {
	case bind.Multi:
		lines := contentLines(b.Content)
		for i, line := range lines {
			if err := e.kb.Write(template.ApplyAt(line, snap.cfg.Variables, now)); err != nil {
				return err
			}
			if i < len(lines)-1 {
				if err := e.kb.Send("enter"); err != nil {
					return err
				}
			}
		}
	case bind.Text, bind.Command:
		if err := e.kb.Write(template.ApplyAt(b.Content, snap.cfg.Variables, now)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown bind type %q", b.Type)
	}
	return e.repeat("left", b.CursorBack)
}

func (e *Engine) repeat(key string, n int) error {
	for i := 0; i < n; i++ {
		if err := e.kb.Send(key); err != nil {
			return err
		}
	}
	return nil
}

// contentLines splits multi-line content and drops blank lines.
func contentLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
