// Package transporttest provides an in-memory I2C bus of register-file
// devices for tests, in the spirit of periph's i2ctest.Playback but stateful.
package transporttest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// ErrNACK is returned for transactions to an address with no device.
var ErrNACK = errors.New("transporttest: no device at address")

// Write records one register write as seen on the bus.
type Write struct {
	Addr uint16
	Reg  byte
	Data []byte
}

// Device is a 256 byte register file with an auto-incrementing pointer.
type Device struct {
	Regs [256]byte
	// Fixed registers always read back their value here, ignoring writes.
	Fixed map[byte]byte
	// Burst registers do not advance the pointer, like a FIFO or INIT_DATA port.
	Burst map[byte]bool
	// OnWrite runs after each byte lands in Regs.
	OnWrite func(reg, val byte)

	ptr   byte
	burst map[byte][]byte
}

// BurstData returns every byte ever written to a burst register.
func (d *Device) BurstData(reg byte) []byte {
	return append([]byte(nil), d.burst[reg]...)
}

// RegisterBus implements i2c.Bus over a set of Devices.
type RegisterBus struct {
	mu      sync.Mutex
	devices map[uint16]*Device

	// Err, when set, fails every Tx.
	Err error
	// FailAfter, when positive, fails every Tx after that many have succeeded.
	FailAfter int
	// Count is the number of Tx calls seen, failed ones included.
	Count  int
	Writes []Write
}

// New returns an empty bus.
func New() *RegisterBus {
	return &RegisterBus{devices: map[uint16]*Device{}}
}

// Add attaches a device at addr and returns it for seeding.
func (b *RegisterBus) Add(addr uint16) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := &Device{Fixed: map[byte]byte{}, Burst: map[byte]bool{}, burst: map[byte][]byte{}}
	b.devices[addr] = d
	return d
}

// String implements i2c.Bus.
func (b *RegisterBus) String() string { return "transporttest" }

// SetSpeed implements i2c.Bus.
func (b *RegisterBus) SetSpeed(physic.Frequency) error { return nil }

// Tx implements i2c.Bus. A non-empty w sets the register pointer from w[0] and
// stores the rest; r is then filled from the pointer onwards.
func (b *RegisterBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Count++
	if b.Err != nil {
		return b.Err
	}
	if b.FailAfter > 0 && b.Count > b.FailAfter {
		return fmt.Errorf("transporttest: injected failure on tx %d", b.Count)
	}
	d, ok := b.devices[addr]
	if !ok {
		return ErrNACK
	}
	if len(w) > 0 {
		d.ptr = w[0]
		if len(w) > 1 {
			b.Writes = append(b.Writes, Write{Addr: addr, Reg: w[0], Data: append([]byte(nil), w[1:]...)})
		}
		for _, v := range w[1:] {
			reg := d.ptr
			d.Regs[reg] = v
			if d.Burst[reg] {
				d.burst[reg] = append(d.burst[reg], v)
			} else {
				d.ptr++
			}
			if d.OnWrite != nil {
				d.OnWrite(reg, v)
			}
		}
	}
	for i := range r {
		reg := d.ptr
		if v, ok := d.Fixed[reg]; ok {
			r[i] = v
		} else {
			r[i] = d.Regs[reg]
		}
		if !d.Burst[reg] {
			d.ptr++
		}
	}
	return nil
}

// WritesTo returns the recorded writes for addr and reg, in order.
func (b *RegisterBus) WritesTo(addr uint16, reg byte) []Write {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Write
	for _, w := range b.Writes {
		if w.Addr == addr && w.Reg == reg {
			out = append(out, w)
		}
	}
	return out
}

var _ i2c.Bus = (*RegisterBus)(nil)
