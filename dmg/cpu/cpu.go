package cpu

import "github.com/voss-labs/dmgo/dmg/addr"

// Bus is the memory-mapped address space the CPU executes against. It is
// satisfied by *dmgo/dmg/bus.Bus; kept as an interface here so the CPU
// package can be exercised against a fake in tests.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	Tick(cycles int)
	IF() byte
	SetIF(value byte)
	IE() byte
}

// Flag is one of the 4 possible flags used in the flag register (high
// nibble of F; the low nibble is always 0).
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// CPU is the SM83 register file and control state.
type CPU struct {
	a, b, c, d, e, h, l, f uint8
	sp, pc                 uint16

	bus Bus

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	eiArmed           bool
	halted            bool
	stopped           bool

	cycles uint64
}

// New returns a CPU with registers set to the standard post-boot-ROM
// state; this module does not emulate the DMG boot ROM.
func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.setAF(0x01B0)
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	return c
}

// PC returns the current program counter, for hosts that want to report
// or log execution position without exposing the full register file.
func (c *CPU) PC() uint16 { return c.pc }

func (c *CPU) setFlag(flag Flag) { c.f |= uint8(flag) }

func (c *CPU) resetFlag(flag Flag) { c.f &^= uint8(flag) }

func (c *CPU) isSetFlag(flag Flag) bool { return c.f&uint8(flag) != 0 }

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// Decode peeks the opcode at PC without advancing it, resolving the
// CB-prefixed secondary table when the leading byte is 0xCB. It sets
// currentOpcode and returns the resolved handler.
func Decode(c *CPU) Opcode {
	op := uint16(c.bus.Read(c.pc))
	if op == 0xCB {
		op = 0xCB00 | uint16(c.bus.Read(c.pc+1))
	}
	c.currentOpcode = op
	return decode(op)
}

// handleInterrupts reports whether an enabled interrupt is currently
// requested (IF & IE, regardless of IME) and, if IME is set, services
// the highest priority one: push PC, jump to its vector, clear IME and
// the serviced IF bit, and charge the fixed 20 cycle dispatch cost.
func (c *CPU) handleInterrupts() bool {
	interrupt, pending := addr.NextPending(c.bus.IF(), c.bus.IE())
	if !pending || !c.interruptsEnabled {
		return pending
	}

	c.interruptsEnabled = false
	c.bus.SetIF(c.bus.IF() &^ uint8(interrupt))
	c.pushStack(c.pc)
	c.pc = addr.VectorFor(interrupt)

	c.bus.Tick(20)
	c.cycles += 20

	return true
}

// Step executes a single CPU tick: it dispatches any pending interrupt,
// then decodes and executes one instruction (or, while halted, simply
// lets time pass), and finally advances the bus by the resulting
// T-cycle count. It returns the number of T-cycles consumed.
//
// The real hardware's HALT instruction-fetch bug (triggered by HALT with
// IME=0 and a pending interrupt) is not reproduced: halt simply exits here
// without servicing the interrupt, and the next opcode fetch proceeds
// normally.
func (c *CPU) Step() int {
	pending := c.handleInterrupts()

	if c.halted {
		if !pending {
			c.bus.Tick(4)
			c.cycles += 4
			return 4
		}
		c.halted = false
	}

	Decode(c)
	opLength := uint16(1)
	if c.currentOpcode&0xFF00 == 0xCB00 {
		opLength = 2
	}
	c.pc += opLength

	exec := decode(c.currentOpcode)
	cycles := exec(c)

	if c.eiArmed {
		c.interruptsEnabled = true
		c.eiArmed = false
	}
	if c.eiPending {
		c.eiPending = false
		c.eiArmed = true
	}

	c.bus.Tick(cycles)
	c.cycles += uint64(cycles)

	return cycles
}
