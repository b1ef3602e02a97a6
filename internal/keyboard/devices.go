package keyboard

import (
	"bufio"
	"io"
	"strings"
)

// procDevices lists input devices on Linux.
const procDevices = "/proc/bus/input/devices"

// parseKeyboardDevices returns the event device paths of keyboards listed
// in the /proc/bus/input/devices format. A device counts as a keyboard when
// its handlers include "kbd" and it reports key and repeat capabilities
// (EV bitmap with bits 1 and 20 set).
func parseKeyboardDevices(r io.Reader) ([]string, error) {
	var devices []string
	var handler string
	var kbd, repeat bool

	flush := func() {
		if kbd && repeat && handler != "" {
			devices = append(devices, "/dev/input/"+handler)
		}
		handler, kbd, repeat = "", false, false
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if part == "kbd" {
					kbd = true
				}
				if strings.HasPrefix(part, "event") {
					handler = part
				}
			}
		case strings.HasPrefix(line, "B: EV="):
			repeat = evBitsKeyboard(strings.TrimPrefix(line, "B: EV="))
		}
	}
	flush()
	return devices, scanner.Err()
}

// evBitsKeyboard checks the EV_KEY (1) and EV_REP (20) bits of a hex
// capability mask.
func evBitsKeyboard(mask string) bool {
	var v uint64
	for _, r := range strings.TrimSpace(mask) {
		var d uint64
		switch {
		case r >= '0' && r <= '9':
			d = uint64(r - '0')
		case r >= 'a' && r <= 'f':
			d = uint64(r-'a') + 10
		case r >= 'A' && r <= 'F':
			d = uint64(r-'A') + 10
		default:
			return false
		}
		v = v<<4 | d
	}
	return v&(1<<1) != 0 && v&(1<<20) != 0
}
