package bus

import (
	"errors"
	"fmt"
)

const (
	titleAddress          = 0x134
	titleLength           = 16
	cartridgeTypeAddress  = 0x147
	romSizeAddress        = 0x148
	ramSizeAddress        = 0x149
	headerChecksumAddress = 0x14D
)

// MBCType identifies which mapper variant a cartridge header selects.
type MBCType uint8

const (
	NoMBCType MBCType = iota
	MBC1Type
	MBC2Type
	MBC3Type
)

// ErrUnsupportedCartridge is returned (wrapped, checkable with errors.Is)
// when a ROM header names a mapper or RAM size this core does not model.
var ErrUnsupportedCartridge = errors.New("bus: unsupported cartridge")

// Header is the parsed subset of a ROM's 0x0100-0x014F header that this
// core needs to pick a mapper and size its external RAM.
type Header struct {
	Title      string
	MBCType    MBCType
	HasBattery bool
	HasRTC     bool
	ROMSize    int
	RAMSize    int
}

// ramSizeTable maps the header's RAM-size byte (0x0149) to a byte count.
var ramSizeTable = map[byte]int{
	0x00: 0,
	0x01: 2048,
	0x02: 8192,
	0x03: 32768,
	0x04: 131072,
	0x05: 65536,
}

// parseHeader reads the mapper/size fields out of a ROM image's header.
// data must be at least 0x150 bytes; callers validate that before calling.
func parseHeader(data []byte) (Header, error) {
	titleBytes := data[titleAddress : titleAddress+titleLength]
	h := Header{
		Title: cleanGameboyTitle(titleBytes),
	}

	cartType := data[cartridgeTypeAddress]
	switch {
	case cartType == 0x00:
		h.MBCType = NoMBCType
	case cartType >= 0x01 && cartType <= 0x03:
		h.MBCType = MBC1Type
		h.HasBattery = cartType == 0x03
	case cartType == 0x05 || cartType == 0x06:
		h.MBCType = MBC2Type
		h.HasBattery = cartType == 0x06
	case cartType >= 0x11 && cartType <= 0x13:
		h.MBCType = MBC3Type
		h.HasBattery = cartType == 0x13
		h.HasRTC = false // RTC is not modeled by this core
	default:
		return Header{}, fmt.Errorf("%w: mapper byte 0x%02X", ErrUnsupportedCartridge, cartType)
	}

	romSizeCode := data[romSizeAddress]
	h.ROMSize = 32768 * (1 << romSizeCode)

	ramSizeCode := data[ramSizeAddress]
	ramSize, ok := ramSizeTable[ramSizeCode]
	if !ok {
		return Header{}, fmt.Errorf("%w: RAM size byte 0x%02X", ErrUnsupportedCartridge, ramSizeCode)
	}
	h.RAMSize = ramSize

	return h, nil
}

// Cartridge owns the immutable ROM bytes and the header parsed from them,
// and builds the MBC that backs its mutable external RAM.
type Cartridge struct {
	Header Header
	data   []byte
	mbc    MBC
}

// NewCartridge parses data as a ROM image and constructs the matching
// mapper. Returns a wrapped ErrUnsupportedCartridge if the header names a
// mapper or RAM size this core does not model.
func NewCartridge(data []byte) (*Cartridge, error) {
	if len(data) < 0x150 {
		return nil, fmt.Errorf("%w: image too small to contain a header (%d bytes)", ErrUnsupportedCartridge, len(data))
	}

	header, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	c := &Cartridge{
		Header: header,
		data:   data,
	}

	ramBankCount := uint8(header.RAMSize / 0x2000)

	switch header.MBCType {
	case NoMBCType:
		c.mbc = NewNoMBC(data)
	case MBC1Type:
		c.mbc = NewMBC1(data, ramBankCount)
	case MBC2Type:
		c.mbc = NewMBC2(data)
	case MBC3Type:
		c.mbc = NewMBC3(data, ramBankCount)
	default:
		return nil, fmt.Errorf("%w: mapper type %d has no constructor", ErrUnsupportedCartridge, header.MBCType)
	}

	return c, nil
}

// Read reads a byte through the cartridge's mapper.
func (c *Cartridge) Read(address uint16) uint8 {
	return c.mbc.Read(address)
}

// Write routes a byte through the cartridge's mapper (mapper control
// command if in the ROM region, RAM write if enabled and in range).
func (c *Cartridge) Write(address uint16, value uint8) {
	c.mbc.Write(address, value)
}

// HasBattery reports whether the cartridge's external RAM should be
// persisted across sessions.
func (c *Cartridge) HasBattery() bool {
	return c.Header.HasBattery
}

// SaveRAM dumps the mapper's external RAM, for a host to persist as a
// `.sav` file. Returns nil for mappers with no external RAM; the battery
// flag is not checked here.
func (c *Cartridge) SaveRAM() []byte {
	return c.mbc.SaveRAM()
}

// LoadRAM restores previously-dumped external RAM into the mapper.
func (c *Cartridge) LoadRAM(data []byte) {
	c.mbc.LoadRAM(data)
}
