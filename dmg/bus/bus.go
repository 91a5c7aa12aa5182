// Package bus implements the DMG's memory-mapped address space: region
// decoding, DMA, cartridge mapper dispatch, and the fixed peripheral tick
// order {joypad, serial, timer, PPU, APU}.
package bus

import (
	"fmt"
	"log/slog"

	"github.com/voss-labs/dmgo/dmg/addr"
	"github.com/voss-labs/dmgo/dmg/audio"
	"github.com/voss-labs/dmgo/dmg/bit"
	"github.com/voss-labs/dmgo/dmg/serial"
	"github.com/voss-labs/dmgo/dmg/video"
)

type region uint8

const (
	regionROM region = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// Bus is the DMG's memory-mapped address space. It owns the cartridge,
// work/video/high RAM, and the peripherals that back the I/O register
// range, and fans out Tick to them in the fixed order spec.md §4.2 names.
type Bus struct {
	cart *Cartridge

	vram [0x2000]byte
	wram [0x2000]byte
	hram [0x7F]byte
	io   [0x80]byte

	ie byte
	ifReg byte

	PPU    *video.PPU
	APU    *audio.APU
	Timer  *Timer
	Joypad *Joypad
	Serial SerialPort

	regionMap [256]region
}

// SerialPort is the interface a serial device connected to SB/SC must
// implement. Implementations only ever see reads/writes to addr.SB/addr.SC.
type SerialPort interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(cycles int)
}

// New creates a Bus with no cartridge loaded (reads from ROM/ExtRAM return
// 0xFF and log a warning, matching an empty cartridge slot).
func New() *Bus {
	b := &Bus{
		PPU:    video.NewPPU(),
		APU:    audio.New(),
		Timer:  NewTimer(),
		Joypad: NewJoypad(),
	}
	b.Serial = serial.NewLogSink(func() { b.RequestInterrupt(addr.SerialInterrupt) })
	b.Timer.InterruptHandler = func() { b.RequestInterrupt(addr.TimerInterrupt) }
	b.Joypad.InterruptHandler = func() { b.RequestInterrupt(addr.JoypadInterrupt) }
	b.PPU.InterruptHandler = func(i addr.Interrupt) { b.RequestInterrupt(i) }
	initRegionMap(b)
	return b
}

// NewWithCartridge creates a Bus with the given cartridge already inserted.
func NewWithCartridge(cart *Cartridge) *Bus {
	b := New()
	b.cart = cart
	return b
}

func initRegionMap(b *Bus) {
	for i := 0x00; i <= 0x7F; i++ {
		b.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		b.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		b.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		b.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		b.regionMap[i] = regionEcho
	}
	b.regionMap[0xFE] = regionOAM
	b.regionMap[0xFF] = regionIO
}

// Tick advances every peripheral by cycles T-cycles, in the fixed order
// {joypad, serial, timer, PPU, APU}, ORing each one's posted interrupt
// into IF as it goes (peripherals call RequestInterrupt directly via the
// handlers wired in New/NewWithCartridge).
func (b *Bus) Tick(cycles int) {
	// Joypad interrupts are edge-triggered on SetButton, not on Tick; it has
	// nothing periodic to advance here but is listed first to keep the
	// fixed order explicit and match spec.md §4.2.
	b.Serial.Tick(cycles)
	b.Timer.Tick(cycles)
	b.PPU.Tick(cycles)
	b.APU.Tick(cycles, b.Timer.div())
}

// RequestInterrupt sets the given interrupt's bit in IF.
func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.ifReg = bit.Set(bitIndexOf(interrupt), b.ifReg)
}

func bitIndexOf(i addr.Interrupt) uint8 {
	switch i {
	case addr.VBlankInterrupt:
		return 0
	case addr.LCDSTATInterrupt:
		return 1
	case addr.TimerInterrupt:
		return 2
	case addr.SerialInterrupt:
		return 3
	case addr.JoypadInterrupt:
		return 4
	default:
		panic(fmt.Sprintf("bus: unknown interrupt 0x%02X", uint8(i)))
	}
}

// IF returns the current interrupt-flag register, masked to the 5 bits it
// actually uses (spec.md §8: "reads ... reflect only bits 0..4").
func (b *Bus) IF() byte { return b.ifReg & 0x1F }

// SetIF overwrites the interrupt-flag register (masked to 5 bits).
func (b *Bus) SetIF(value byte) { b.ifReg = value & 0x1F }

// ClearIF clears a single interrupt's bit in IF, used by the CPU once it
// services that interrupt.
func (b *Bus) ClearIF(interrupt addr.Interrupt) {
	b.ifReg = bit.Reset(bitIndexOf(interrupt), b.ifReg)
}

// IE returns the interrupt-enable register, masked to 5 bits.
func (b *Bus) IE() byte { return b.ie & 0x1F }

func (b *Bus) Read(address uint16) byte {
	switch b.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if b.cart == nil {
			slog.Warn("bus: read from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return b.cart.Read(address)
	case regionVRAM:
		return b.PPU.ReadVRAM(address - addr.VRAMStart)
	case regionWRAM:
		return b.wram[address-addr.WRAMStart]
	case regionEcho:
		return b.wram[address-addr.EchoStart]
	case regionOAM:
		if address <= addr.OAMEnd {
			return b.PPU.ReadOAM(address - addr.OAMStart)
		}
		return 0xFF // unused region 0xFEA0-0xFEFF
	case regionIO:
		return b.readIO(address)
	default:
		panic(fmt.Sprintf("bus: read at unmapped address 0x%04X", address))
	}
}

func (b *Bus) Write(address uint16, value byte) {
	switch b.regionMap[address>>8] {
	case regionROM:
		if b.cart == nil {
			slog.Warn("bus: write to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return
		}
		b.cart.Write(address, value)
	case regionVRAM:
		b.PPU.WriteVRAM(address-addr.VRAMStart, value)
	case regionExtRAM:
		if b.cart == nil {
			slog.Warn("bus: write to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return
		}
		b.cart.Write(address, value)
	case regionWRAM:
		b.wram[address-addr.WRAMStart] = value
	case regionEcho:
		b.wram[address-addr.EchoStart] = value
	case regionOAM:
		if address <= addr.OAMEnd {
			b.PPU.WriteOAM(address-addr.OAMStart, value)
		}
		// writes to 0xFEA0-0xFEFF are dropped, prohibited region
	case regionIO:
		b.writeIO(address, value)
	default:
		panic(fmt.Sprintf("bus: write at unmapped address 0x%04X", address))
	}
}

func (b *Bus) readIO(address uint16) byte {
	switch {
	case address == addr.IE:
		return b.IE()
	case address == addr.IF:
		return b.IF()
	case address == addr.P1:
		return b.Joypad.Read()
	case address == addr.SB || address == addr.SC:
		return b.Serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return b.Timer.Read(address)
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		return b.APU.ReadRegister(address)
	case address == addr.DMA:
		slog.Warn("bus: read of write-only DMA register", "addr", fmt.Sprintf("0x%04X", address))
		return 0xFF
	case address >= addr.LCDC && address <= addr.WX:
		return b.PPU.ReadRegister(address)
	case address >= addr.HRAMStart && address <= addr.HRAMEnd:
		return b.hram[address-addr.HRAMStart]
	default:
		return b.io[address-addr.IOStart]
	}
}

func (b *Bus) writeIO(address uint16, value byte) {
	switch {
	case address == addr.IE:
		b.ie = value & 0x1F
	case address == addr.IF:
		b.SetIF(value)
	case address == addr.P1:
		b.Joypad.Write(value)
	case address == addr.SB || address == addr.SC:
		b.Serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		b.Timer.Write(address, value)
	case address >= addr.AudioStart && address <= addr.WaveRAMEnd:
		b.APU.WriteRegister(address, value)
	case address == addr.DMA:
		b.doDMA(value)
	case address >= addr.LCDC && address <= addr.WX:
		b.PPU.WriteRegister(address, value)
	case address >= addr.HRAMStart && address <= addr.HRAMEnd:
		b.hram[address-addr.HRAMStart] = value
	default:
		slog.Warn("bus: write to unmapped I/O register", "addr", fmt.Sprintf("0x%04X", address))
		b.io[address-addr.IOStart] = value
	}
}

// doDMA performs the instantaneous 160-byte OAM copy described in
// spec.md §4.2: the source is (value << 8), copied byte-for-byte into OAM.
func (b *Bus) doDMA(value byte) {
	source := uint16(value) << 8
	for i := uint16(0); i < 160; i++ {
		b.PPU.WriteOAM(i, b.Read(source+i))
	}
}

// Cartridge returns the currently inserted cartridge, or nil.
func (b *Bus) Cartridge() *Cartridge { return b.cart }
