// Package focus resolves the executable name of the foreground
// application.
package focus

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 500 * time.Millisecond

// Detector looks up the foreground application. The zero value always
// reports an empty name.
type Detector struct {
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
	readlink func(string) (string, error)
}

func output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ForegroundApp returns the lower-cased executable basename of the
// focused window's process, or "" when it cannot be determined.
func (d *Detector) ForegroundApp() string {
	if d == nil || d.run == nil {
		return ""
	}
	pid, err := d.activePID()
	if err != nil || pid <= 0 {
		return ""
	}
	target, err := d.readlink("/proc/" + strconv.Itoa(pid) + "/exe")
	if err != nil {
		return ""
	}
	return ExeName(target)
}

func (d *Detector) activePID() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if out, err := d.run(ctx, "xdotool", "getactivewindow", "getwindowpid"); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(out))); err == nil {
			return pid, nil
		}
	}

	out, err := d.run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return 0, err
	}
	windowID, err := parseActiveWindow(string(out))
	if err != nil {
		return 0, err
	}
	out, err = d.run(ctx, "xprop", "-id", windowID, "_NET_WM_PID")
	if err != nil {
		return 0, err
	}
	return parseWindowPID(string(out))
}

// parseActiveWindow extracts the id from
// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007".
func parseActiveWindow(out string) (string, error) {
	parts := strings.Fields(out)
	if len(parts) < 5 {
		return "", errors.New("focus: failed to parse xprop output")
	}
	id := parts[len(parts)-1]
	if id == "0x0" {
		return "", errors.New("focus: no active window")
	}
	return id, nil
}

// parseWindowPID extracts the pid from "_NET_WM_PID(CARDINAL) = 12345".
func parseWindowPID(out string) (int, error) {
	idx := strings.Index(out, "= ")
	if idx < 0 {
		return 0, errors.New("focus: window has no pid")
	}
	return strconv.Atoi(strings.TrimSpace(out[idx+2:]))
}

// ExeName returns the lower-cased basename of an executable path.
func ExeName(path string) string {
	path = strings.TrimSuffix(strings.TrimSpace(path), " (deleted)")
	if path == "" {
		return ""
	}
	return strings.ToLower(filepath.Base(path))
}

func x11Detector() *Detector {
	if os.Getenv("DISPLAY") == "" {
		return &Detector{}
	}
	return &Detector{run: output, readlink: os.Readlink}
}
