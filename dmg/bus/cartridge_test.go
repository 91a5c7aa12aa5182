package bus

import (
	"errors"
	"testing"
)

func newTestROM(cartType, romSizeCode, ramSizeCode byte) []byte {
	data := make([]byte, 0x8000)
	data[titleAddress] = 'T'
	data[cartridgeTypeAddress] = cartType
	data[romSizeAddress] = romSizeCode
	data[ramSizeAddress] = ramSizeCode
	return data
}

func TestNewCartridge_NoMBC(t *testing.T) {
	c, err := NewCartridge(newTestROM(0x00, 0x00, 0x00))
	if err != nil {
		t.Fatalf("NewCartridge() error = %v; want nil", err)
	}
	if c.Header.MBCType != NoMBCType {
		t.Errorf("MBCType = %v; want NoMBCType", c.Header.MBCType)
	}
	if c.HasBattery() {
		t.Error("HasBattery() = true; want false")
	}
}

func TestNewCartridge_MBC1WithBattery(t *testing.T) {
	c, err := NewCartridge(newTestROM(0x03, 0x00, 0x02))
	if err != nil {
		t.Fatalf("NewCartridge() error = %v; want nil", err)
	}
	if c.Header.MBCType != MBC1Type {
		t.Errorf("MBCType = %v; want MBC1Type", c.Header.MBCType)
	}
	if !c.HasBattery() {
		t.Error("HasBattery() = false; want true for cart type 0x03")
	}
	if c.Header.RAMSize != 8192 {
		t.Errorf("RAMSize = %d; want 8192", c.Header.RAMSize)
	}
}

func TestNewCartridge_MBC3WithBattery(t *testing.T) {
	c, err := NewCartridge(newTestROM(0x13, 0x00, 0x03))
	if err != nil {
		t.Fatalf("NewCartridge() error = %v; want nil", err)
	}
	if c.Header.MBCType != MBC3Type {
		t.Errorf("MBCType = %v; want MBC3Type", c.Header.MBCType)
	}
	if !c.HasBattery() {
		t.Error("HasBattery() = false; want true for cart type 0x13")
	}
}

func TestNewCartridge_UnsupportedMapperByte(t *testing.T) {
	_, err := NewCartridge(newTestROM(0xFF, 0x00, 0x00))
	if !errors.Is(err, ErrUnsupportedCartridge) {
		t.Errorf("error = %v; want wrapped ErrUnsupportedCartridge", err)
	}
}

func TestNewCartridge_UnsupportedRAMSizeByte(t *testing.T) {
	_, err := NewCartridge(newTestROM(0x00, 0x00, 0xFF))
	if !errors.Is(err, ErrUnsupportedCartridge) {
		t.Errorf("error = %v; want wrapped ErrUnsupportedCartridge", err)
	}
}

func TestNewCartridge_ImageTooSmall(t *testing.T) {
	_, err := NewCartridge(make([]byte, 0x100))
	if !errors.Is(err, ErrUnsupportedCartridge) {
		t.Errorf("error = %v; want wrapped ErrUnsupportedCartridge", err)
	}
}

func TestCartridge_SaveLoadRAMRoundTrip(t *testing.T) {
	c, err := NewCartridge(newTestROM(0x03, 0x00, 0x02)) // MBC1+RAM+BATTERY, 8KB RAM
	if err != nil {
		t.Fatalf("NewCartridge() error = %v", err)
	}

	c.Write(0x0000, 0x0A) // enable external RAM
	c.Write(0xA000, 0x42)

	saved := c.SaveRAM()
	if len(saved) == 0 {
		t.Fatal("SaveRAM() returned empty data for a battery-backed cartridge")
	}

	c2, err := NewCartridge(newTestROM(0x03, 0x00, 0x02))
	if err != nil {
		t.Fatalf("NewCartridge() error = %v", err)
	}
	c2.LoadRAM(saved)
	c2.Write(0x0000, 0x0A)

	if got := c2.Read(0xA000); got != 0x42 {
		t.Errorf("Read(0xA000) after LoadRAM = 0x%02X; want 0x42", got)
	}
}
