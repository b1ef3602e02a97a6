//go:build linux

package keyboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const pollTimeoutMs = 200

// Device reads key events from evdev keyboards and writes through xdotool.
type Device struct {
	Dispatcher
	writer  *XdotoolWriter
	devices []string

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPlatformBackend(opts Options) Backend {
	return &Device{
		writer:  NewXdotoolWriter(opts.XdotoolPath, opts.TypeDelay),
		devices: opts.Devices,
	}
}

func (d *Device) keyboards() ([]string, error) {
	if len(d.devices) > 0 {
		return d.devices, nil
	}
	f, err := os.Open(procDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseKeyboardDevices(f)
}

// Available checks that at least one keyboard can be read and that
// xdotool is installed.
func (d *Device) Available() (bool, string) {
	devices, err := d.keyboards()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}
	readable := ""
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == nil {
			unix.Close(fd)
			readable = dev
			break
		}
	}
	if readable == "" {
		return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
	}
	if ok, reason := d.writer.Available(); !ok {
		return false, reason
	}
	return true, fmt.Sprintf("found keyboard device: %s", readable)
}

// Write types text.
func (d *Device) Write(text string) error {
	return d.writer.Write(text)
}

// Send presses and releases key.
func (d *Device) Send(key string) error {
	return d.writer.Send(key)
}

// Start opens every readable keyboard and begins dispatching events.
func (d *Device) Start(ctx context.Context) error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}

	devices, err := d.keyboards()
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}
	var fds []int
	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err == nil {
			fds = append(fds, fd)
		}
	}
	if len(fds) == 0 {
		return fmt.Errorf("%w: no readable keyboard device", ErrNotAvailable)
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	d.running = true
	go d.readLoop(ctx, fds)
	return nil
}

func (d *Device) readLoop(ctx context.Context, fds []int) {
	defer close(d.done)
	defer func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	}()

	pfds := make([]unix.PollFd, len(fds))
	for i, fd := range fds {
		pfds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	buf := make([]byte, inputEventSize*64)
	var tr translator

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := unix.Poll(pfds, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}
		open := 0
		for i := range pfds {
			if pfds[i].Fd < 0 {
				continue
			}
			if pfds[i].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				// Device unplugged.
				pfds[i].Fd = -1
				continue
			}
			open++
			if pfds[i].Revents&unix.POLLIN == 0 {
				continue
			}
			r, err := unix.Read(int(pfds[i].Fd), buf)
			if err != nil || r < inputEventSize {
				continue
			}
			for _, raw := range parseInputEvents(buf[:r]) {
				if ev, ok := tr.translate(raw); ok {
					d.Dispatch(ev)
				}
			}
		}
		if open == 0 {
			return
		}
	}
}

// Stop ends the read loop and waits for it to exit.
func (d *Device) Stop() error {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if !d.running {
		return nil
	}
	d.cancel()
	<-d.done
	d.running = false
	return nil
}
