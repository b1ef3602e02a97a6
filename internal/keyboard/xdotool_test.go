package keyboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	calls [][]string
	err   error
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) error {
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.err
}

func newFakeWriter(delay time.Duration) (*XdotoolWriter, *fakeRunner) {
	f := &fakeRunner{}
	w := NewXdotoolWriter("", delay)
	w.run = f.run
	return w, f
}

func TestKeysym(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"backspace", "BackSpace"},
		{"enter", "Return"},
		{"left", "Left"},
		{"a", "a"},
		{"F5", "F5"},
		{"f12", "F12"},
		{"ctrl+v", "ctrl+v"},
		{"ctrl+shift+enter", "ctrl+shift+Return"},
		{"cmd+l", "super+l"},
		{"page down", "Next"},
		{"fx", "fx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Keysym(tt.in), "Keysym(%q)", tt.in)
	}
}

func TestXdotoolWrite(t *testing.T) {
	w, f := newFakeWriter(12 * time.Millisecond)
	require.NoError(t, w.Write("/tp 5"))
	require.NoError(t, w.Write(""))
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"xdotool", "type", "--clearmodifiers", "--delay", "12", "--", "/tp 5"}, f.calls[0])
}

func TestXdotoolSend(t *testing.T) {
	w, f := newFakeWriter(0)
	require.NoError(t, w.Send("backspace"))
	require.NoError(t, w.Send(""))
	require.Len(t, f.calls, 1)
	assert.Equal(t, []string{"xdotool", "key", "--clearmodifiers", "BackSpace"}, f.calls[0])
}

func TestXdotoolError(t *testing.T) {
	w, f := newFakeWriter(0)
	f.err = errors.New("boom")
	assert.EqualError(t, w.Send("enter"), "boom")
}
