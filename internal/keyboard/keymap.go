package keyboard

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
)

// Linux input event constants (linux/input-event-codes.h).
const (
	evKey = 0x01

	keyReleased = 0
	keyPressed  = 1
	keyRepeated = 2

	codeLeftShift  = 42
	codeRightShift = 54
	codeCapsLock   = 58

	// inputEventSize is sizeof(struct input_event) on 64-bit platforms.
	inputEventSize = 24
)

// keyDef describes one key code. For printable keys base and shifted are
// the produced characters; for other keys base is the key name.
type keyDef struct {
	base    string
	shifted string
	letter  bool
}

var keyCodes = map[uint16]keyDef{
	1:  {base: "esc"},
	2:  {base: "1", shifted: "!"},
	3:  {base: "2", shifted: "@"},
	4:  {base: "3", shifted: "#"},
	5:  {base: "4", shifted: "$"},
	6:  {base: "5", shifted: "%"},
	7:  {base: "6", shifted: "^"},
	8:  {base: "7", shifted: "&"},
	9:  {base: "8", shifted: "*"},
	10: {base: "9", shifted: "("},
	11: {base: "0", shifted: ")"},
	12: {base: "-", shifted: "_"},
	13: {base: "=", shifted: "+"},
	14: {base: "backspace"},
	15: {base: "tab"},
	26: {base: "[", shifted: "{"},
	27: {base: "]", shifted: "}"},
	28: {base: "enter"},
	29: {base: "ctrl"},
	39: {base: ";", shifted: ":"},
	40: {base: "'", shifted: "\""},
	41: {base: "`", shifted: "~"},
	42: {base: "shift"},
	43: {base: "\\", shifted: "|"},
	51: {base: ",", shifted: "<"},
	52: {base: ".", shifted: ">"},
	53: {base: "/", shifted: "?"},
	54: {base: "shift"},
	55: {base: "*", shifted: "*"},
	56: {base: "alt"},
	57: {base: "space"},
	58: {base: "caps lock"},
	69: {base: "num lock"},
	70: {base: "scroll lock"},
	71: {base: "7", shifted: "7"},
	72: {base: "8", shifted: "8"},
	73: {base: "9", shifted: "9"},
	74: {base: "-", shifted: "-"},
	75: {base: "4", shifted: "4"},
	76: {base: "5", shifted: "5"},
	77: {base: "6", shifted: "6"},
	78: {base: "+", shifted: "+"},
	79: {base: "1", shifted: "1"},
	80: {base: "2", shifted: "2"},
	81: {base: "3", shifted: "3"},
	82: {base: "0", shifted: "0"},
	83: {base: ".", shifted: "."},
	87: {base: "f11"},
	88: {base: "f12"},
	96: {base: "enter"},
	97: {base: "ctrl"},
	98: {base: "/", shifted: "/"},
	99: {base: "print screen"},
	100: {base: "alt gr"},
	102: {base: "home"},
	103: {base: "up"},
	104: {base: "page up"},
	105: {base: "left"},
	106: {base: "right"},
	107: {base: "end"},
	108: {base: "down"},
	109: {base: "page down"},
	110: {base: "insert"},
	111: {base: "delete"},
	119: {base: "pause"},
	125: {base: "cmd"},
	126: {base: "cmd"},
	127: {base: "menu"},
}

func init() {
	rows := []struct {
		first   uint16
		letters string
	}{
		{16, "qwertyuiop"},
		{30, "asdfghjkl"},
		{44, "zxcvbnm"},
	}
	for _, row := range rows {
		for i, r := range row.letters {
			s := string(r)
			keyCodes[row.first+uint16(i)] = keyDef{base: s, shifted: strings.ToUpper(s), letter: true}
		}
	}
	for i := uint16(0); i < 10; i++ {
		keyCodes[59+i] = keyDef{base: "f" + strconv.Itoa(int(i)+1)}
	}
}

// rawEvent is a decoded struct input_event.
type rawEvent struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

// parseInputEvents decodes every complete input_event in buf.
func parseInputEvents(buf []byte) []rawEvent {
	out := make([]rawEvent, 0, len(buf)/inputEventSize)
	for len(buf) >= inputEventSize {
		sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
		usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
		out = append(out, rawEvent{
			Time:  time.Unix(sec, usec*int64(time.Microsecond)),
			Type:  binary.LittleEndian.Uint16(buf[16:18]),
			Code:  binary.LittleEndian.Uint16(buf[18:20]),
			Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
		})
		buf = buf[inputEventSize:]
	}
	return out
}

// translator turns raw key events into named events, tracking shift and
// caps lock.
type translator struct {
	leftShift  bool
	rightShift bool
	capsLock   bool
}

// translate returns the event for raw, or false when raw is not a key
// event or the code is unknown.
func (t *translator) translate(raw rawEvent) (Event, bool) {
	if raw.Type != evKey {
		return Event{}, false
	}
	down := raw.Value == keyPressed || raw.Value == keyRepeated
	if raw.Value != keyReleased && !down {
		return Event{}, false
	}
	switch raw.Code {
	case codeLeftShift:
		t.leftShift = down
	case codeRightShift:
		t.rightShift = down
	case codeCapsLock:
		if raw.Value == keyPressed {
			t.capsLock = !t.capsLock
		}
	}
	def, ok := keyCodes[raw.Code]
	if !ok {
		return Event{}, false
	}
	name := def.base
	if def.shifted != "" {
		upper := t.leftShift || t.rightShift
		if def.letter && t.capsLock {
			upper = !upper
		}
		if upper {
			name = def.shifted
		}
	}
	return Event{Name: name, Down: down, Time: raw.Time}, true
}
