// Package audio implements the DMG APU's clocking and mixer contract:
// the full register map, a frame sequencer stepped on each falling edge of
// bit 3 of the timer's DIV register (every 4096 T-cycles, 1024 Hz), and a stereo mixer with a single-pole high-pass filter.
// Channel synthesis itself is a stub (spec.md §4.8: "a stub that emits
// silence is acceptable for emulator correctness tests").
package audio

import (
	"github.com/voss-labs/dmgo/dmg/addr"
	"github.com/voss-labs/dmgo/dmg/bit"
)

// cyclesPerSample is a fixed downsample rate (4194304 Hz / 44100 Hz,
// rounded) the mixer accumulates at before a sample is buffered.
const cyclesPerSample = 95

// maxBufferedSamples bounds the internal ring so a host that stops
// pulling samples doesn't leak memory.
const maxBufferedSamples = 1 << 14

// Provider is the host-facing seam, grounded on the teacher's
// audio.Provider interface: pull buffered stereo samples, and toggle
// channels for debugging.
type Provider interface {
	Sink(count int) []float32
	GetChannelStatus() (ch1, ch2, ch3, ch4 bool)
	ToggleChannel(channel int)
	SoloChannel(channel int)
}

var _ Provider = (*APU)(nil)

// APU holds the raw register file, the frame sequencer, and the mixer.
// Per spec.md §4.8 it does not synthesize channel waveforms; the four
// channel-enabled flags exist only so Provider reads something sensible.
type APU struct {
	enabled bool

	NR10, NR11, NR12, NR13, NR14 uint8
	NR21, NR22, NR23, NR24       uint8
	NR30, NR31, NR32, NR33, NR34 uint8
	NR41, NR42, NR43, NR44       uint8
	NR50, NR51, NR52             uint8
	waveRAM                      [16]uint8

	chEnabled [4]bool
	chMuted   [4]bool

	lastDivBit3 bool
	step        int // frame sequencer step, 0-7

	capacitor float64 // high-pass filter state

	cycleAcc int
	buffer   []float32 // interleaved L,R,L,R... ring, oldest first
}

// highPassCoefficient is the single-pole filter coefficient used by the
// original implementation this spec was distilled from.
const highPassCoefficient = 0.999958

func New() *APU {
	return &APU{}
}

// Tick advances the APU by cycles T-cycles. div is the current value of
// the DIV register (0xFF04); the frame sequencer advances on every
// falling edge of its bit 3, per spec.md §4.8.
func (a *APU) Tick(cycles int, div byte) {
	for i := 0; i < cycles; i++ {
		bit3 := bit.IsSet(3, div)
		if a.lastDivBit3 && !bit3 {
			a.stepSequencer()
		}
		a.lastDivBit3 = bit3

		a.cycleAcc++
		if a.cycleAcc >= cyclesPerSample {
			a.cycleAcc -= cyclesPerSample
			a.sampleMixer()
		}
	}
}

// stepSequencer advances the frame sequencer (1024 Hz, one step per DIV
// bit 3 falling edge). Channel synthesis is
// stubbed, so the length/envelope/sweep sub-sequencers this would drive
// have nothing to act on; the counter itself is still exercised so a host
// reading sequencer phase (e.g. for test visibility) sees it moving.
func (a *APU) stepSequencer() {
	a.step = (a.step + 1) % 8
}

// sampleMixer mixes the (silent, stubbed) channel outputs, applies the
// high-pass filter, and buffers the resulting stereo pair.
func (a *APU) sampleMixer() {
	var mixed float64 // channels contribute nothing; this is the "contract" stub

	filtered := mixed - a.capacitor
	a.capacitor = mixed - filtered*highPassCoefficient

	left, right := a.pan(float32(filtered))

	a.buffer = append(a.buffer, left, right)
	if overflow := len(a.buffer) - maxBufferedSamples; overflow > 0 {
		a.buffer = a.buffer[overflow:]
	}
}

func (a *APU) pan(sample float32) (left, right float32) {
	volLeft := float32((a.NR50>>4)&0x07+1) / 8
	volRight := float32(a.NR50&0x07+1) / 8
	return sample * volLeft, sample * volRight
}

// Sink pops up to count interleaved stereo float32 samples (L,R,L,R...)
// from the buffered output, padding with silence if underrun.
func (a *APU) Sink(count int) []float32 {
	n := count
	if n > len(a.buffer) {
		n = len(a.buffer)
	}
	out := make([]float32, count)
	copy(out, a.buffer[:n])
	a.buffer = a.buffer[n:]
	return out
}

// ReadRegister returns masked register values: unused/write-only bits
// read back as 1, per hardware convention.
func (a *APU) ReadRegister(address uint16) uint8 {
	switch address {
	case addr.NR10:
		return a.NR10 | 0b1000_0000
	case addr.NR11:
		return a.NR11 | 0b0011_1111
	case addr.NR12:
		return a.NR12
	case addr.NR13:
		return 0xFF
	case addr.NR14:
		return a.NR14 | 0b1011_1111
	case addr.NR21:
		return a.NR21 | 0b0011_1111
	case addr.NR22:
		return a.NR22
	case addr.NR23:
		return 0xFF
	case addr.NR24:
		return a.NR24 | 0b1011_1111
	case addr.NR30:
		return a.NR30 | 0b0111_1111
	case addr.NR31:
		return 0xFF
	case addr.NR32:
		return a.NR32 | 0b1001_1111
	case addr.NR33:
		return 0xFF
	case addr.NR34:
		return a.NR34 | 0b1011_1111
	case addr.NR41:
		return 0xFF
	case addr.NR42:
		return a.NR42
	case addr.NR43:
		return a.NR43
	case addr.NR44:
		return a.NR44 | 0b1011_1111
	case addr.NR50:
		return a.NR50
	case addr.NR51:
		return a.NR51
	case addr.NR52:
		status := uint8(0b0111_0000)
		if a.enabled {
			status = bit.Set(7, status)
		}
		for i := range 4 {
			if a.chEnabled[i] {
				status = bit.Set(uint8(i), status)
			}
		}
		return status
	}
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return a.waveRAM[address-addr.WaveRAMStart]
	}
	return 0xFF
}

// WriteRegister stores a register write. Writes other than to NR52/wave
// RAM are ignored while the APU is powered off, matching hardware.
func (a *APU) WriteRegister(address uint16, value uint8) {
	isWaveRAM := address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd

	if !a.enabled && address != addr.NR52 && !isWaveRAM {
		return
	}

	switch address {
	case addr.NR10:
		a.NR10 = value
	case addr.NR11:
		a.NR11 = value
	case addr.NR12:
		a.NR12 = value
	case addr.NR13:
		a.NR13 = value
	case addr.NR14:
		a.NR14 = value
		if bit.IsSet(7, value) {
			a.chEnabled[0] = true
		}
	case addr.NR21:
		a.NR21 = value
	case addr.NR22:
		a.NR22 = value
	case addr.NR23:
		a.NR23 = value
	case addr.NR24:
		a.NR24 = value
		if bit.IsSet(7, value) {
			a.chEnabled[1] = true
		}
	case addr.NR30:
		a.NR30 = value
	case addr.NR31:
		a.NR31 = value
	case addr.NR32:
		a.NR32 = value
	case addr.NR33:
		a.NR33 = value
	case addr.NR34:
		a.NR34 = value
		if bit.IsSet(7, value) {
			a.chEnabled[2] = true
		}
	case addr.NR41:
		a.NR41 = value
	case addr.NR42:
		a.NR42 = value
	case addr.NR43:
		a.NR43 = value
	case addr.NR44:
		a.NR44 = value
		if bit.IsSet(7, value) {
			a.chEnabled[3] = true
		}
	case addr.NR50:
		a.NR50 = value
	case addr.NR51:
		a.NR51 = value
	case addr.NR52:
		a.NR52 = value
		a.enabled = bit.IsSet(7, value)
		if !a.enabled {
			a.chEnabled = [4]bool{}
			a.NR10, a.NR11, a.NR12, a.NR13, a.NR14 = 0, 0, 0, 0, 0
			a.NR21, a.NR22, a.NR23, a.NR24 = 0, 0, 0, 0
			a.NR30, a.NR31, a.NR32, a.NR33, a.NR34 = 0, 0, 0, 0, 0
			a.NR41, a.NR42, a.NR43, a.NR44 = 0, 0, 0, 0
			a.NR50, a.NR51 = 0, 0
		}
	}

	if isWaveRAM {
		a.waveRAM[address-addr.WaveRAMStart] = value
	}
}

func (a *APU) GetChannelStatus() (ch1, ch2, ch3, ch4 bool) {
	return a.chEnabled[0] && !a.chMuted[0],
		a.chEnabled[1] && !a.chMuted[1],
		a.chEnabled[2] && !a.chMuted[2],
		a.chEnabled[3] && !a.chMuted[3]
}

func (a *APU) ToggleChannel(channel int) {
	if channel < 0 || channel > 3 {
		return
	}
	a.chMuted[channel] = !a.chMuted[channel]
}

func (a *APU) SoloChannel(channel int) {
	if channel < 0 || channel > 3 {
		return
	}
	for i := range a.chMuted {
		a.chMuted[i] = i != channel
	}
}
