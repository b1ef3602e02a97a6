package focus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCommands map[string]string

func (f fakeCommands) run(_ context.Context, name string, args ...string) ([]byte, error) {
	key := name + " " + strings.Join(args, " ")
	out, ok := f[key]
	if !ok {
		return nil, errors.New("exit status 1")
	}
	return []byte(out), nil
}

func readlink(m map[string]string) func(string) (string, error) {
	return func(p string) (string, error) {
		if v, ok := m[p]; ok {
			return v, nil
		}
		return "", errors.New("no such file")
	}
}

func TestForegroundAppXdotool(t *testing.T) {
	d := &Detector{
		run:      fakeCommands{"xdotool getactivewindow getwindowpid": "4242\n"}.run,
		readlink: readlink(map[string]string{"/proc/4242/exe": "/usr/lib/firefox/Firefox"}),
	}
	assert.Equal(t, "firefox", d.ForegroundApp())
}

func TestForegroundAppXpropFallback(t *testing.T) {
	d := &Detector{
		run: fakeCommands{
			"xprop -root _NET_ACTIVE_WINDOW":  "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007\n",
			"xprop -id 0x3a00007 _NET_WM_PID": "_NET_WM_PID(CARDINAL) = 77\n",
		}.run,
		readlink: readlink(map[string]string{"/proc/77/exe": "/opt/game/GTA5.exe"}),
	}
	assert.Equal(t, "gta5.exe", d.ForegroundApp())
}

func TestForegroundAppUnresolved(t *testing.T) {
	assert.Equal(t, "", (&Detector{}).ForegroundApp())
	var nilDetector *Detector
	assert.Equal(t, "", nilDetector.ForegroundApp())

	d := &Detector{run: fakeCommands{}.run, readlink: readlink(nil)}
	assert.Equal(t, "", d.ForegroundApp())

	d = &Detector{
		run:      fakeCommands{"xprop -root _NET_ACTIVE_WINDOW": "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x0"}.run,
		readlink: readlink(nil),
	}
	assert.Equal(t, "", d.ForegroundApp())
}

func TestExeName(t *testing.T) {
	assert.Equal(t, "code", ExeName("/usr/share/code/Code"))
	assert.Equal(t, "bash", ExeName("/usr/bin/bash (deleted)"))
	assert.Equal(t, "", ExeName(""))
}

func TestParseWindowPID(t *testing.T) {
	pid, err := parseWindowPID("_NET_WM_PID(CARDINAL) = 12345")
	assert.NoError(t, err)
	assert.Equal(t, 12345, pid)

	_, err = parseWindowPID("_NET_WM_PID:  not found.")
	assert.Error(t, err)
}
