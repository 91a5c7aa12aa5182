package serial

import (
	"log/slog"

	"github.com/voss-labs/dmgo/dmg/addr"
	"github.com/voss-labs/dmgo/dmg/bit"
)

// cyclesPerShift is the per-bit transfer time at the internal clock rate
// (8192 Hz): 4194304 / 8192 = 512 T-cycles.
const cyclesPerShift = 512

// shiftsPerByte is the width of the SB shift register.
const shiftsPerByte = 8

// LogSink is the link-cable stub: it does not model a peer, so every
// transfer it starts also completes, shifting SB left and OR-ing in 1
// eight times before posting the serial interrupt, per spec.md §4.7.
// It also logs outgoing bytes as text, handy for test ROMs that print
// results over serial.
type LogSink struct {
	irqHandler     func()
	sb, sc         byte
	transferActive bool
	shiftsLeft     int
	countdown      int
	logger         *slog.Logger

	// settings
	immediate bool

	// Optional line buffer for readable output
	line []byte
}

type LogSinkOption func(*LogSink)

// WithFixedTiming spaces the 8 shifts out at 512 T-cycles each instead of
// completing the whole transfer on the same tick it started.
func WithFixedTiming() LogSinkOption { return func(s *LogSink) { s.immediate = false } }

// NewLogSink creates a new logging serial device.
// The passed function is called when a transfer is completed, should be wired
// to request the Serial interrupt.
func NewLogSink(irq func(), opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		irqHandler: irq,
		immediate:  true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

func (s *LogSink) Write(address uint16, value byte) {
	switch address {
	case addr.SB:
		s.sb = value
	case addr.SC:
		s.sc = value
		s.maybeStartTransfer()
	default:
		panic("serial.LogSink: invalid write address")
	}
}

func (s *LogSink) Read(address uint16) byte {
	switch address {
	case addr.SB:
		return s.sb
	case addr.SC:
		return s.sc | 0x7E // bits 1-6 unused, always read high
	default:
		panic("serial.LogSink: invalid read address")
	}
}

func (s *LogSink) Tick(cycles int) {
	if !s.transferActive {
		return
	}
	s.countdown -= cycles
	for s.countdown <= 0 && s.transferActive {
		s.shiftOnce()
		s.countdown += cyclesPerShift
	}
}

func (s *LogSink) Reset() {
	s.sb = 0x00
	s.sc = 0x00
	s.transferActive = false
	s.shiftsLeft = 0
	s.countdown = 0
	s.line = s.line[:0]
}

func (s *LogSink) maybeStartTransfer() {
	if s.transferActive {
		return
	}
	// a transfer should start when bit 7 (start) and bit 0 (clock source) of SC are set.
	if !bit.IsSet(7, s.sc) || !bit.IsSet(0, s.sc) {
		return
	}

	s.transferActive = true
	s.shiftsLeft = shiftsPerByte
	s.countdown = cyclesPerShift
	s.logByte(s.sb)

	if s.immediate {
		for s.transferActive {
			s.shiftOnce()
		}
	}
}

// shiftOnce shifts SB left by one and ORs in 1, per spec.md §4.7. After
// the 8th shift the transfer completes: clear SC's transfer-enable bit
// and post the serial interrupt.
func (s *LogSink) shiftOnce() {
	s.sb = (s.sb << 1) | 1
	s.shiftsLeft--
	if s.shiftsLeft > 0 {
		return
	}
	s.transferActive = false
	s.sc = bit.Clear(7, s.sc)
	if s.irqHandler != nil {
		s.irqHandler()
	}
}

func (s *LogSink) logByte(b byte) {
	if b == 0 || b == '\n' || b == '\r' {
		if len(s.line) > 0 {
			s.logger.Info("serial", "line", string(s.line))
			s.line = s.line[:0]
		}
		return
	}
	s.line = append(s.line, b)
}
