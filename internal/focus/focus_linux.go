//go:build linux

package focus

// New returns a detector for the running X11 session. Without a DISPLAY
// the detector always reports "".
func New() *Detector {
	return x11Detector()
}
