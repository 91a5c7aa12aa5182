package bus

import "github.com/voss-labs/dmgo/dmg/bit"

// Key identifies one of the eight Game Boy buttons.
type Key uint8

const (
	KeyRight Key = iota
	KeyLeft
	KeyUp
	KeyDown
	KeyA
	KeyB
	KeySelect
	KeyStart
)

// Joypad exposes the eight button booleans through the P1 register per
// spec.md §4.6: bits 4/5 select which 4-bit line (dpad, buttons) bits 0-3
// are mapped to (active-low), and a falling transition on any bit of a
// selected line latches the joypad interrupt.
type Joypad struct {
	buttons uint8 // low nibble: A,B,Select,Start (1 = released)
	dpad    uint8 // low nibble: Right,Left,Up,Down (1 = released)
	select_ uint8 // raw bits 4-5 as last written to P1

	InterruptHandler func()
}

func NewJoypad() *Joypad {
	return &Joypad{
		buttons: 0x0F,
		dpad:    0x0F,
		select_: 0x30,
	}
}

func (j *Joypad) line() uint8 {
	selectDpad := !bit.IsSet(4, j.select_)
	selectButtons := !bit.IsSet(5, j.select_)

	switch {
	case selectButtons && selectDpad:
		return j.buttons & j.dpad & 0x0F
	case selectButtons:
		return j.buttons & 0x0F
	case selectDpad:
		return j.dpad & 0x0F
	default:
		return 0x0F
	}
}

// Read returns the current P1 value: bits 6-7 always read as 1, bits 4-5
// echo the selection, bits 0-3 are the selected line.
func (j *Joypad) Read() uint8 {
	return 0xC0 | (j.select_ & 0x30) | j.line()
}

// Write updates the selection bits (4-5); the button-state bits are
// read-only from the CPU's perspective.
func (j *Joypad) Write(value uint8) {
	j.select_ = value & 0x30
}

// SetButton presses (pressed=true) or releases a button, posting the
// joypad interrupt on any newly-selected falling (pressed) edge.
func (j *Joypad) SetButton(key Key, pressed bool) {
	before := j.line()

	switch key {
	case KeyRight:
		j.dpad = setBit(j.dpad, 0, !pressed)
	case KeyLeft:
		j.dpad = setBit(j.dpad, 1, !pressed)
	case KeyUp:
		j.dpad = setBit(j.dpad, 2, !pressed)
	case KeyDown:
		j.dpad = setBit(j.dpad, 3, !pressed)
	case KeyA:
		j.buttons = setBit(j.buttons, 0, !pressed)
	case KeyB:
		j.buttons = setBit(j.buttons, 1, !pressed)
	case KeySelect:
		j.buttons = setBit(j.buttons, 2, !pressed)
	case KeyStart:
		j.buttons = setBit(j.buttons, 3, !pressed)
	}

	after := j.line()
	// falling edge: a bit that was 1 (released/unselected) is now 0 (pressed)
	if before&^after != 0 && j.InterruptHandler != nil {
		j.InterruptHandler()
	}
}

func setBit(v uint8, index uint8, set bool) uint8 {
	if set {
		return bit.Set(index, v)
	}
	return bit.Reset(index, v)
}
