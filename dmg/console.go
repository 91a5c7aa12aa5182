// Package dmg ties the SM83 core, memory bus, and peripherals together
// into a single console the host drives one frame at a time.
package dmg

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/voss-labs/dmgo/dmg/bus"
	"github.com/voss-labs/dmgo/dmg/cpu"
	"github.com/voss-labs/dmgo/dmg/video"
)

// cyclesPerFrame is the T-cycle budget of one run_frame() call: a 60Hz
// refresh of the 4194304Hz clock (4194304/60 = 69905.06, truncated), not
// the PPU's own 154-scanline (70224-cycle) period. The two drift apart by
// design; RunFrame carries the per-frame remainder forward so the long-run
// average stays at exactly 69905 T-cycles per call rather than drifting.
const cyclesPerFrame = 69905

// Console owns the CPU and bus and drives them together one frame at a
// time. It is not safe for concurrent use from multiple goroutines; a
// host that wants a frame-paced loop on its own goroutine must own that
// synchronization itself.
type Console struct {
	cpu *cpu.CPU
	bus *bus.Bus
	cart *bus.Cartridge

	overshoot int // T-cycles run past the last frame's budget, carried forward
}

// NewConsole builds a console around an already-constructed cartridge.
func NewConsole(cart *bus.Cartridge) *Console {
	b := bus.NewWithCartridge(cart)
	return &Console{
		cpu:  cpu.New(b),
		bus:  b,
		cart: cart,
	}
}

// LoadROM reads a ROM file, parses its header, and builds the console
// around the matching cartridge/mapper. Returns a wrapped
// bus.ErrUnsupportedCartridge if the header names something this core
// doesn't model.
func LoadROM(path string) (*Console, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dmg: reading ROM %q: %w", path, err)
	}

	cart, err := bus.NewCartridge(data)
	if err != nil {
		return nil, fmt.Errorf("dmg: loading ROM %q: %w", path, err)
	}

	slog.Debug("loaded ROM", "path", path, "title", cart.Header.Title, "mapper", cart.Header.MBCType, "battery", cart.HasBattery())

	return NewConsole(cart), nil
}

// RunFrame steps the CPU until at least cyclesPerFrame T-cycles have
// elapsed since the last call, then returns. A Step nearly always
// overshoots the budget by a few cycles (instructions don't divide it
// evenly); rather than discard that excess, it's carried forward and
// deducted from next frame's budget so the long-run average cycle count
// per call stays exact instead of drifting upward forever.
func (c *Console) RunFrame() {
	total := c.overshoot
	for total < cyclesPerFrame {
		total += c.cpu.Step()
	}
	c.overshoot = total - cyclesPerFrame
}

// SetButton sets or releases one of the eight buttons.
func (c *Console) SetButton(key bus.Key, pressed bool) {
	c.bus.Joypad.SetButton(key, pressed)
}

// GetFrame returns a read-only borrow of the most recently completed
// frame; valid until the next RunFrame call swaps the buffers.
func (c *Console) GetFrame() *video.FrameBuffer {
	return c.bus.PPU.GetFrame()
}

// SaveRAM dumps the cartridge's battery-backed external RAM, for the
// host to persist as a .sav file. Returns nil if the cartridge has no
// battery.
func (c *Console) SaveRAM() []byte {
	if !c.cart.HasBattery() {
		return nil
	}
	return c.cart.SaveRAM()
}

// LoadRAM restores a previously-dumped .sav file into the cartridge's
// external RAM.
func (c *Console) LoadRAM(data []byte) {
	c.cart.LoadRAM(data)
}

// CPU returns the console's CPU, for hosts that need direct access (e.g.
// a debugger).
func (c *Console) CPU() *cpu.CPU {
	return c.cpu
}

// Bus returns the console's memory bus.
func (c *Console) Bus() *bus.Bus {
	return c.bus
}
