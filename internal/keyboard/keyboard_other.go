//go:build !linux

package keyboard

func newPlatformBackend(Options) Backend {
	return NewUnavailable("keyboard access not implemented for this platform")
}
