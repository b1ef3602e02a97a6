// Package notify shows desktop notifications through the
// org.freedesktop.Notifications service on the session bus.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

// D-Bus names of the notification service.
const (
	ServiceName   = "org.freedesktop.Notifications"
	ServicePath   = "/org/freedesktop/Notifications"
	NotifyMethod  = ServiceName + ".Notify"
	DefaultApp    = "binder"
	DefaultExpiry = 3 * time.Second
)

// ErrUnavailable is returned when no notification service can be reached.
var ErrUnavailable = errors.New("notify: notification service unavailable")

// caller is the part of dbus.BusObject used here.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Options configure a Notifier.
type Options struct {
	Enabled bool
	AppName string
	Icon    string
	// Expiry is how long a notification stays visible. Zero means
	// DefaultExpiry.
	Expiry time.Duration
	Logger *slog.Logger
}

// Notifier sends notifications. Each one replaces the previous, so rapid
// toggles do not stack up. A disabled Notifier, or one without a session
// bus, does nothing.
type Notifier struct {
	enabled bool
	app     string
	icon    string
	expiry  time.Duration
	log     *slog.Logger

	mu        sync.Mutex
	conn      *dbus.Conn
	obj       caller
	dialed    bool
	lastID    uint32
	dial      func() (*dbus.Conn, error)
	dialError error
}

func sessionBus() (*dbus.Conn, error) {
	return dbus.ConnectSessionBus()
}

// New returns a Notifier. The session bus is dialled on first use.
func New(opts Options) *Notifier {
	n := &Notifier{
		enabled: opts.Enabled,
		app:     opts.AppName,
		icon:    opts.Icon,
		expiry:  opts.Expiry,
		log:     opts.Logger,
		dial:    sessionBus,
	}
	if n.app == "" {
		n.app = DefaultApp
	}
	if n.expiry <= 0 {
		n.expiry = DefaultExpiry
	}
	if n.log == nil {
		n.log = slog.Default()
	}
	return n
}

// Enabled reports whether notifications are turned on.
func (n *Notifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// SetEnabled turns notifications on or off.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Notify shows summary and body. It returns nil when notifications are
// disabled and ErrUnavailable when the service cannot be reached.
func (n *Notifier) Notify(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.enabled {
		return nil
	}
	obj, err := n.object()
	if err != nil {
		return err
	}

	call := obj.Call(NotifyMethod, 0,
		n.app,
		n.lastID,
		n.icon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(n.expiry/time.Millisecond),
	)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: decode reply: %w", err)
	}
	n.lastID = id
	return nil
}

// Notifyf is Notify with a formatted body. Failures are logged rather than
// returned.
func (n *Notifier) Notifyf(summary, format string, args ...any) {
	if err := n.Notify(summary, fmt.Sprintf(format, args...)); err != nil {
		n.log.Debug("notification not shown", "summary", summary, "error", err)
	}
}

// object returns the service proxy, dialling once. Caller holds n.mu.
func (n *Notifier) object() (caller, error) {
	if n.obj != nil {
		return n.obj, nil
	}
	if n.dialed {
		return nil, n.dialError
	}
	n.dialed = true

	conn, err := n.dial()
	if err != nil {
		n.dialError = fmt.Errorf("%w: %v", ErrUnavailable, err)
		n.log.Info("desktop notifications unavailable", "error", err)
		return nil, n.dialError
	}
	n.conn = conn
	n.obj = conn.Object(ServiceName, dbus.ObjectPath(ServicePath))
	return n.obj, nil
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.obj = nil
	n.dialed = false
	n.dialError = nil
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}
