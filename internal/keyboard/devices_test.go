package keyboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
H: Handlers=kbd event0
B: EV=3

I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd event3 leds
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
H: Handlers=mouse0 event5
B: EV=17

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Keyboard"
H: Handlers=sysrq kbd leds event6
B: EV=12001f`

func TestParseKeyboardDevices(t *testing.T) {
	devices, err := parseKeyboardDevices(strings.NewReader(sampleDevices))
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/input/event3", "/dev/input/event6"}, devices)
}

func TestEVBits(t *testing.T) {
	assert.True(t, evBitsKeyboard("120013"))
	assert.False(t, evBitsKeyboard("3"))
	assert.False(t, evBitsKeyboard("17"))
	assert.False(t, evBitsKeyboard("zz"))
}
