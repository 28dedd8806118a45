// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport maps register reads and writes onto a periph.io I2C bus.
package transport

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// MaxTransfer is the largest payload a single Read or Write may carry.
const MaxTransfer = 32

// ErrIO is the one failure every transport call reports, whatever went wrong.
var ErrIO = errors.New("transport: i/o failure")

// Dev is a register transport for one device address on a shared bus.
type Dev struct {
	dev i2c.Dev
}

// New returns a transport addressing addr on bus. Several Devs may share the
// same bus; callers must serialize access to it.
func New(bus i2c.Bus, addr uint16) *Dev {
	return &Dev{dev: i2c.Dev{Addr: addr, Bus: bus}}
}

// Addr returns the 7-bit device address.
func (d *Dev) Addr() uint16 { return d.dev.Addr }

// String returns bus@address for logs.
func (d *Dev) String() string { return fmt.Sprintf("%s@0x%02X", d.dev.Bus, d.dev.Addr) }

// Read sets the register pointer to reg in its own transaction, then reads
// len(buf) bytes into buf in a second one.
func (d *Dev) Read(reg byte, buf []byte) error {
	if len(buf) == 0 || len(buf) > MaxTransfer {
		return ErrIO
	}
	if err := d.dev.Tx([]byte{reg}, nil); err != nil {
		return fmt.Errorf("%w: select reg 0x%02X: %v", ErrIO, reg, err)
	}
	if err := d.dev.Tx(nil, buf); err != nil {
		return fmt.Errorf("%w: read %d bytes from 0x%02X: %v", ErrIO, len(buf), reg, err)
	}
	return nil
}

// Write sends reg followed by every byte of buf in one transaction.
func (d *Dev) Write(reg byte, buf []byte) error {
	if len(buf) == 0 || len(buf) > MaxTransfer {
		return ErrIO
	}
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	if err := d.dev.Tx(w, nil); err != nil {
		return fmt.Errorf("%w: write %d bytes to 0x%02X: %v", ErrIO, len(buf), reg, err)
	}
	return nil
}
