package keyboard

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultXdotoolPath is used when no path is configured.
const DefaultXdotoolPath = "xdotool"

const xdotoolTimeout = 30 * time.Second

// keysyms maps key names to X keysym names understood by xdotool.
var keysyms = map[string]string{
	"backspace":    "BackSpace",
	"enter":        "Return",
	"tab":          "Tab",
	"space":        "space",
	"esc":          "Escape",
	"escape":       "Escape",
	"left":         "Left",
	"right":        "Right",
	"up":           "Up",
	"down":         "Down",
	"home":         "Home",
	"end":          "End",
	"delete":       "Delete",
	"insert":       "Insert",
	"page up":      "Prior",
	"page down":    "Next",
	"caps lock":    "Caps_Lock",
	"print screen": "Print",
	"menu":         "Menu",
	"pause":        "Pause",
	"ctrl":         "ctrl",
	"alt":          "alt",
	"alt gr":       "ISO_Level3_Shift",
	"shift":        "shift",
	"cmd":          "super",
	"win":          "super",
}

// Keysym converts a key name or "+"-joined combination to xdotool syntax.
func Keysym(key string) string {
	parts := strings.Split(key, "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		lower := strings.ToLower(p)
		switch {
		case keysyms[lower] != "":
			parts[i] = keysyms[lower]
		case len(lower) >= 2 && lower[0] == 'f' && isDigits(lower[1:]):
			parts[i] = "F" + lower[1:]
		default:
			parts[i] = p
		}
	}
	return strings.Join(parts, "+")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// XdotoolWriter types text and presses keys by running xdotool.
type XdotoolWriter struct {
	Path  string
	Delay time.Duration

	run func(ctx context.Context, name string, args ...string) error
}

// NewXdotoolWriter returns a writer using the binary at path.
func NewXdotoolWriter(path string, delay time.Duration) *XdotoolWriter {
	if path == "" {
		path = DefaultXdotoolPath
	}
	return &XdotoolWriter{Path: path, Delay: delay, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return fmt.Errorf("%s %s: %w: %s", name, args[0], err, msg)
		}
		return fmt.Errorf("%s %s: %w", name, args[0], err)
	}
	return nil
}

// Available reports whether the xdotool binary can be found.
func (w *XdotoolWriter) Available() (bool, string) {
	p, err := exec.LookPath(w.Path)
	if err != nil {
		return false, fmt.Sprintf("xdotool not found: %v", err)
	}
	return true, "xdotool at " + p
}

// Write types text.
func (w *XdotoolWriter) Write(text string) error {
	if text == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), xdotoolTimeout)
	defer cancel()
	delay := strconv.FormatInt(w.Delay.Milliseconds(), 10)
	return w.run(ctx, w.Path, "type", "--clearmodifiers", "--delay", delay, "--", text)
}

// Send presses and releases key.
func (w *XdotoolWriter) Send(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), xdotoolTimeout)
	defer cancel()
	return w.run(ctx, w.Path, "key", "--clearmodifiers", Keysym(key))
}
