package video

import "github.com/voss-labs/dmgo/dmg/bit"

// paletteColor maps a 2-bit color index through a palette register (BGP,
// OBP0, OBP1) to the {White, LightGrey, DarkGrey, Black} GBColor it names.
func paletteColor(palette byte, index uint8) GBColor {
	shade := (palette >> (index * 2)) & 0x03
	switch shade {
	case 0:
		return WhiteColor
	case 1:
		return LightGreyColor
	case 2:
		return DarkGreyColor
	default:
		return BlackColor
	}
}

// renderScanline rasterizes the current LY into the back framebuffer, per
// spec.md §4.4: background/window first, then objects.
func (p *PPU) renderScanline() {
	line := int(p.ly)
	if line < 0 || line >= FramebufferHeight {
		return
	}

	// bgColorIndex[x] holds the raw (pre-palette) 2-bit BG/window color
	// index for sprite-priority-vs-BG-color-0 checks.
	var bgColorIndex [FramebufferWidth]uint8
	usedWindow := p.renderBackgroundAndWindow(line, &bgColorIndex)
	if usedWindow {
		p.wly++
	}

	if bit.IsSet(lcdcOBJEnable, p.lcdc) {
		p.renderObjects(line, &bgColorIndex)
	}
}

func (p *PPU) renderBackgroundAndWindow(line int, bgColorIndex *[FramebufferWidth]uint8) bool {
	bgEnabled := bit.IsSet(lcdcBGWindowEnable, p.lcdc)
	windowEnabled := bit.IsSet(lcdcWindowEnable, p.lcdc)

	usedWindow := false

	for cx := 0; cx < FramebufferWidth; cx++ {
		isWindow := windowEnabled && line >= int(p.wy) && cx+7 >= int(p.wx)

		if !bgEnabled && !isWindow {
			p.back.SetPixel(uint(cx), uint(line), WhiteColor)
			bgColorIndex[cx] = 0
			continue
		}

		var mapBase uint16
		var tileX, tileY, pixelX, pixelY int

		if isWindow {
			usedWindow = true
			if bit.IsSet(lcdcWindowTileMap, p.lcdc) {
				mapBase = 0x1C00 // 0x9C00 - 0x8000, offset into vram
			} else {
				mapBase = 0x1800 // 0x9800 - 0x8000
			}
			wx := cx - (int(p.wx) - 7)
			tileX, pixelX = wx/8, wx%8
			tileY, pixelY = p.wly/8, p.wly%8
		} else {
			if bit.IsSet(lcdcBGTileMap, p.lcdc) {
				mapBase = 0x1C00
			} else {
				mapBase = 0x1800
			}
			scrolledX := (cx + int(p.scx)) & 0xFF
			scrolledY := (line + int(p.scy)) & 0xFF
			tileX, pixelX = scrolledX/8, scrolledX%8
			tileY, pixelY = scrolledY/8, scrolledY%8
		}

		mapOffset := mapBase + uint16(tileY*32+tileX)
		tileNumber := p.vram[mapOffset]

		tileIndex := p.resolveTileIndex(tileNumber)
		colorIdx := uint8(p.tileset[tileIndex].GetPixel(pixelX, pixelY))

		bgColorIndex[cx] = colorIdx
		p.back.SetPixel(uint(cx), uint(line), paletteColor(p.bgp, colorIdx))
	}

	return usedWindow
}

// resolveTileIndex applies LCDC bit 4's addressing mode: 0x8000 method is
// a straight unsigned index into tileset[0..256); 0x8800 method is signed,
// with indices 0..127 mapping to tileset[256..384) and 128..255 mapping to
// tileset[128..255].
func (p *PPU) resolveTileIndex(tileNumber byte) int {
	if bit.IsSet(lcdcTileData, p.lcdc) {
		return int(tileNumber)
	}
	signed := int8(tileNumber)
	return 256 + int(signed)
}

// pixelOwners resolves DMG's sprite drawing priority (lower X wins, ties
// broken by lower OAM index) by giving every screen column a single owner
// instead of sorting the scanline's sprite list. See
// https://gbdev.io/pandocs/OAM.html#drawing-priority.
type pixelOwners struct {
	index [FramebufferWidth]int
	x     [FramebufferWidth]int
}

func (o *pixelOwners) reset() {
	for i := range o.index {
		o.index[i] = -1
		o.x[i] = 0xFF
	}
}

// claim records spriteIndex as the owner of pixel if no sprite owns it
// yet, or if spriteIndex outranks the current owner (lower X, or equal X
// and lower OAM index). Reports whether ownership changed.
func (o *pixelOwners) claim(pixel, spriteIndex, spriteX int) bool {
	if pixel < 0 || pixel >= FramebufferWidth {
		return false
	}

	current := o.index[pixel]
	outranks := current == -1 || spriteX < o.x[pixel] || (spriteX == o.x[pixel] && spriteIndex < current)
	if !outranks {
		return false
	}

	o.index[pixel] = spriteIndex
	o.x[pixel] = spriteX
	return true
}

func (o *pixelOwners) owner(pixel int) int {
	if pixel < 0 || pixel >= FramebufferWidth {
		return -1
	}
	return o.index[pixel]
}

func (p *PPU) renderObjects(line int, bgColorIndex *[FramebufferWidth]uint8) {
	height := 8
	if bit.IsSet(lcdcOBJSize, p.lcdc) {
		height = 16
	}

	sprites := p.spritesOnScanline(line, height)

	var owners pixelOwners
	owners.reset()
	for _, s := range sprites {
		for px := 0; px < 8; px++ {
			x := int(s.X) + px
			owners.claim(x, s.OAMIndex, int(s.X))
		}
	}

	for _, s := range sprites {
		spriteRow := line - int(s.Y)
		if s.FlipY {
			spriteRow = height - 1 - spriteRow
		}

		tileIndex := int(s.TileIndex)
		if height == 16 {
			tileIndex &^= 1
			if spriteRow >= 8 {
				tileIndex |= 1
				spriteRow -= 8
			}
		}

		tile := &p.tileset[tileIndex&0xFF]

		for px := 0; px < 8; px++ {
			screenX := int(s.X) + px
			if screenX < 0 || screenX >= FramebufferWidth {
				continue
			}
			if owners.owner(screenX) != s.OAMIndex {
				continue
			}

			col := px
			if s.FlipX {
				col = 7 - px
			}

			colorIdx := uint8(tile.GetPixel(col, spriteRow))
			if colorIdx == 0 {
				continue // transparent
			}

			if s.BehindBG && bgColorIndex[screenX] != 0 {
				continue // behind a background pixel of color index 1-3
			}

			palette := p.obp0
			if s.PaletteOBP1 {
				palette = p.obp1
			}
			p.back.SetPixel(uint(screenX), uint(line), paletteColor(palette, colorIdx))
		}
	}
}

// spritesOnScanline collects up to 10 sprites (OAM scan order) overlapping
// the given scanline, per spec.md §4.4.
func (p *PPU) spritesOnScanline(line, height int) []Sprite {
	var sprites []Sprite

	for i := 0; i < 40; i++ {
		base := uint16(i * 4)
		rawY := p.oam[base]
		y := int(rawY) - 16

		if line < y || line >= y+height {
			continue
		}

		rawX := p.oam[base+1]
		tileIndex := p.oam[base+2]
		flags := p.oam[base+3]

		s := Sprite{
			Y:         uint8(y),
			X:         rawX - 8,
			TileIndex: tileIndex,
			Flags:     flags,
			OAMIndex:  i,
			Height:    height,
		}
		s.parseFlags()
		sprites = append(sprites, s)

		if len(sprites) >= 10 {
			break
		}
	}

	return sprites
}
