package keyboard

import "context"

// Unavailable is the backend used when no keyboard access is possible.
// Every operation fails with ErrNotAvailable.
type Unavailable struct {
	reason string
}

// NewUnavailable returns a backend that reports reason from Available.
func NewUnavailable(reason string) *Unavailable {
	return &Unavailable{reason: reason}
}

func (u *Unavailable) Hook(func(Event)) (Handle, error)         { return 0, ErrNotAvailable }
func (u *Unavailable) Unhook(Handle) error                      { return ErrNotAvailable }
func (u *Unavailable) Write(string) error                       { return ErrNotAvailable }
func (u *Unavailable) Send(string) error                        { return ErrNotAvailable }
func (u *Unavailable) AddHotkey(string, func()) (Handle, error) { return 0, ErrNotAvailable }
func (u *Unavailable) RemoveHotkey(Handle) error                { return ErrNotAvailable }
func (u *Unavailable) Start(context.Context) error              { return ErrNotAvailable }
func (u *Unavailable) Stop() error                              { return nil }

// Available always returns false.
func (u *Unavailable) Available() (bool, string) {
	return false, u.reason
}
