// Package video implements the DMG PPU: the mode state machine, the
// tileset cache derived from VRAM, per-scanline sprite selection from OAM,
// and scanline rasterization
// into a double-buffered framebuffer.
package video

import (
	"github.com/voss-labs/dmgo/dmg/addr"
	"github.com/voss-labs/dmgo/dmg/bit"
)

// Mode is the PPU's current rendering stage; values match STAT bits 1-0.
type Mode uint8

const (
	ModeHBlank Mode = 0
	ModeVBlank Mode = 1
	ModeOAMScan Mode = 2
	ModeDraw    Mode = 3
)

const (
	oamScanCycles  = 80
	drawCycles     = 172
	hblankCycles   = 204
	scanlineCycles = oamScanCycles + drawCycles + hblankCycles // 456
	lastLine       = 153
	firstVBlankLine = 144
)

// LCDC bit positions.
const (
	lcdcBGWindowEnable = 0
	lcdcOBJEnable      = 1
	lcdcOBJSize        = 2
	lcdcBGTileMap      = 3
	lcdcTileData       = 4
	lcdcWindowEnable   = 5
	lcdcWindowTileMap  = 6
	lcdcLCDEnable      = 7
)

// STAT bit positions.
const (
	statLYCEqualsLY  = 2
	statHBlankIRQ    = 3
	statVBlankIRQ    = 4
	statOAMIRQ       = 5
	statLYCIRQ       = 6
)

// PPU holds VRAM/OAM, the PPU registers, the mode state machine, the
// derived tileset cache, and the front/back framebuffers.
type PPU struct {
	vram [0x2000]byte
	oam  [0xA0]byte

	lcdc, stat, scy, scx, ly, lyc byte
	bgp, obp0, obp1               byte
	wy, wx                        byte

	mode   Mode
	cycles int
	wly    int // internal window-line counter

	tileset [384]Tile // decoded cache of the 0x8000-0x97FF tile data region

	front, back *FrameBuffer

	// InterruptHandler posts an interrupt to the bus; called synchronously
	// from Tick as mode transitions and LY==LYC events occur.
	InterruptHandler func(addr.Interrupt)
}

func NewPPU() *PPU {
	return &PPU{
		mode:  ModeOAMScan,
		front: NewFrameBuffer(),
		back:  NewFrameBuffer(),
	}
}

func (p *PPU) postInterrupt(i addr.Interrupt) {
	if p.InterruptHandler != nil {
		p.InterruptHandler(i)
	}
}

func (p *PPU) lcdEnabled() bool {
	return bit.IsSet(lcdcLCDEnable, p.lcdc)
}

func (p *PPU) setMode(m Mode) {
	p.mode = m
	p.stat = (p.stat &^ 0x03) | byte(m)
}

func (p *PPU) setLY(ly int) {
	p.ly = byte(ly)
	wasMatch := bit.IsSet(statLYCEqualsLY, p.stat)
	isMatch := p.ly == p.lyc
	if isMatch {
		p.stat = bit.Set(statLYCEqualsLY, p.stat)
	} else {
		p.stat = bit.Reset(statLYCEqualsLY, p.stat)
	}
	if isMatch && !wasMatch && bit.IsSet(statLYCIRQ, p.stat) {
		p.postInterrupt(addr.LCDSTATInterrupt)
	}
}

// Tick advances the PPU by cycles T-cycles, following spec.md §4.4's
// fixed per-scanline transition table: OAMScan(80) -> Draw(172) ->
// HBlank(204) -> [VBlank | OAMScan], 456 T-cycles per line, VBlank
// spanning LY 144..153.
func (p *PPU) Tick(cycles int) {
	if !p.lcdEnabled() {
		p.setMode(ModeHBlank)
		return
	}

	p.cycles += cycles

	// Loop rather than a single switch: a Tick call spanning more cycles
	// than the current mode has left must cascade through every mode
	// transition those cycles cover, not just the first one.
	for {
		switch p.mode {
		case ModeOAMScan:
			if p.cycles < oamScanCycles {
				return
			}
			p.cycles -= oamScanCycles
			p.setMode(ModeDraw)
		case ModeDraw:
			if p.cycles < drawCycles {
				return
			}
			p.cycles -= drawCycles
			p.renderScanline()
			p.setMode(ModeHBlank)
			if bit.IsSet(statHBlankIRQ, p.stat) {
				p.postInterrupt(addr.LCDSTATInterrupt)
			}
		case ModeHBlank:
			if p.cycles < hblankCycles {
				return
			}
			p.cycles -= hblankCycles
			p.setLY(int(p.ly) + 1)
			if int(p.ly) >= firstVBlankLine {
				p.setMode(ModeVBlank)
				p.swapFramebuffers()
				p.postInterrupt(addr.VBlankInterrupt)
				if bit.IsSet(statVBlankIRQ, p.stat) {
					p.postInterrupt(addr.LCDSTATInterrupt)
				}
			} else {
				p.setMode(ModeOAMScan)
				if bit.IsSet(statOAMIRQ, p.stat) {
					p.postInterrupt(addr.LCDSTATInterrupt)
				}
			}
		case ModeVBlank:
			if p.cycles < scanlineCycles {
				return
			}
			p.cycles -= scanlineCycles
			if int(p.ly) >= lastLine {
				p.setLY(0)
				p.wly = 0
				p.setMode(ModeOAMScan)
				if bit.IsSet(statOAMIRQ, p.stat) {
					p.postInterrupt(addr.LCDSTATInterrupt)
				}
			} else {
				p.setLY(int(p.ly) + 1)
			}
		}
	}
}

func (p *PPU) swapFramebuffers() {
	p.front, p.back = p.back, p.front
	p.back.Clear()
	for i := range p.back.buffer {
		p.back.buffer[i] = uint32(WhiteColor)
	}
}

// GetFrame returns a read-only borrow of the most recently completed
// frame, for the host to copy out between frames.
func (p *PPU) GetFrame() *FrameBuffer {
	return p.front
}

func (p *PPU) ReadVRAM(offset uint16) byte {
	return p.vram[offset]
}

func (p *PPU) WriteVRAM(offset uint16, value byte) {
	p.vram[offset] = value
	// Tile data region is 0x8000-0x97FF, i.e. VRAM offsets 0x0000-0x17FF.
	if offset < 0x1800 {
		p.updateTileCache(offset)
	}
}

// updateTileCache recomputes the single tile row touched by a write at
// the given VRAM offset within the tile-data region, per spec.md §4.4's
// VRAM write hook.
func (p *PPU) updateTileCache(offset uint16) {
	tileIndex := offset / 16
	rowIndex := (offset % 16) / 2
	rowBase := tileIndex*16 + rowIndex*2
	p.tileset[tileIndex].Rows[rowIndex] = TileRow{
		Low:  p.vram[rowBase],
		High: p.vram[rowBase+1],
	}
}

func (p *PPU) ReadOAM(offset uint16) byte {
	return p.oam[offset]
}

func (p *PPU) WriteOAM(offset uint16, value byte) {
	p.oam[offset] = value
}

func (p *PPU) ReadRegister(address uint16) byte {
	switch address {
	case addr.LCDC:
		return p.lcdc
	case addr.STAT:
		return p.stat | 0x80
	case addr.SCY:
		return p.scy
	case addr.SCX:
		return p.scx
	case addr.LY:
		return p.ly
	case addr.LYC:
		return p.lyc
	case addr.BGP:
		return p.bgp
	case addr.OBP0:
		return p.obp0
	case addr.OBP1:
		return p.obp1
	case addr.WY:
		return p.wy
	case addr.WX:
		return p.wx
	default:
		return 0xFF
	}
}

func (p *PPU) WriteRegister(address uint16, value byte) {
	switch address {
	case addr.LCDC:
		wasEnabled := p.lcdEnabled()
		p.lcdc = value
		if wasEnabled && !p.lcdEnabled() {
			p.ly = 0
			p.cycles = 0
			p.setMode(ModeHBlank)
		}
	case addr.STAT:
		p.stat = (p.stat & 0x07) | (value &^ 0x07)
	case addr.SCY:
		p.scy = value
	case addr.SCX:
		p.scx = value
	case addr.LY:
		// read-only on real hardware
	case addr.LYC:
		p.lyc = value
		p.setLY(int(p.ly))
	case addr.BGP:
		p.bgp = value
	case addr.OBP0:
		p.obp0 = value
	case addr.OBP1:
		p.obp1 = value
	case addr.WY:
		p.wy = value
	case addr.WX:
		p.wx = value
	}
}
