// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bmm150 is a register level driver for the Bosch BMM150 geomagnetic
// sensor: power/op mode control, presets, data-ready pin, and trim
// compensated readout in µT.
package bmm150

import (
	"encoding/binary"
	"time"

	"github.com/relabs-tech/bosch_imu/internal/bosch"
)

// Register addresses.
const (
	RegChipID     = 0x40
	RegDataXLSB   = 0x42
	RegPowerCtrl  = 0x4B
	RegOpMode     = 0x4C
	RegIntConfig  = 0x4D
	RegAxesEnable = 0x4E
	RegRepXY      = 0x51
	RegRepZ       = 0x52
	RegDigX1      = 0x5D
	RegDigZ4LSB   = 0x62
	RegDigZ2LSB   = 0x68
)

const (
	// ChipID is the CHIP_ID register value of a BMM150.
	ChipID = 0x32

	// DefaultAddr is the I2C address with CSB/SDO tied low.
	DefaultAddr = 0x10

	startUpTime = 3 * time.Millisecond

	opModeMask   = 0x06
	dataRateMask = 0x38
	drdyPinEnBit = 0x80

	overflowXY = -4096
	overflowZ  = -16384
)

// PowerMode values for the OP_MODE register.
type PowerMode uint8

const (
	PowerModeNormal PowerMode = 0x00
	PowerModeForced PowerMode = 0x01
	PowerModeSleep  PowerMode = 0x03
)

// Output data rate codes (OP_MODE bits 5:3).
const (
	DataRate10Hz = 0x00
	DataRate02Hz = 0x01
	DataRate06Hz = 0x02
	DataRate08Hz = 0x03
	DataRate15Hz = 0x04
	DataRate20Hz = 0x05
	DataRate25Hz = 0x06
	DataRate30Hz = 0x07
)

// PresetMode bundles a data rate with XY/Z repetitions.
type PresetMode uint8

const (
	PresetLowPower PresetMode = iota + 1
	PresetRegular
	PresetHighAccuracy
	PresetEnhanced
)

type preset struct {
	dataRate uint8
	repXY    uint8
	repZ     uint8
}

var presets = map[PresetMode]preset{
	PresetLowPower:     {DataRate10Hz, 1, 2},
	PresetRegular:      {DataRate10Hz, 4, 14},
	PresetHighAccuracy: {DataRate20Hz, 23, 82},
	PresetEnhanced:     {DataRate10Hz, 7, 26},
}

// IntSettings holds the interrupt pin enables.
type IntSettings struct {
	DrdyPinEn bool
}

// Settings is the sensor configuration requested by the caller or read back
// from the chip.
type Settings struct {
	PowerMode   PowerMode
	PresetMode  PresetMode
	DataRate    uint8
	XYRep       uint8
	ZRep        uint8
	IntSettings IntSettings
}

// MagData is one compensated sample in µT.
type MagData struct {
	X, Y, Z float64
}

type trim struct {
	x1, y1 int8
	x2, y2 int8
	z1     uint16
	z2     int16
	z3     int16
	z4     int16
	xy1    uint8
	xy2    int8
	xyz1   uint16
}

// Opts configures a Dev.
type Opts struct {
	// Addr defaults to DefaultAddr.
	Addr uint16
	// Delay defaults to time.Sleep.
	Delay bosch.DelayFunc
}

// Dev is the BMM150 device handle.
type Dev struct {
	regs  bosch.Registers
	addr  uint16
	delay bosch.DelayFunc
	trim  trim
}

// New builds a handle. It does not touch the bus.
func New(regs bosch.Registers, opts Opts) *Dev {
	d := &Dev{regs: regs, addr: opts.Addr, delay: opts.Delay}
	if d.addr == 0 {
		d.addr = DefaultAddr
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	return d
}

// Addr returns the bus address of the handle.
func (d *Dev) Addr() uint16 { return d.addr }

// Registers exposes the transport for raw register access (debug console).
func (d *Dev) Registers() bosch.Registers { return d.regs }

// Init moves the chip from suspend to sleep, checks its id and loads the
// factory trim values used for compensation.
func (d *Dev) Init() bosch.Status {
	if d.regs == nil {
		return bosch.StatusNullPtr
	}
	if st := bosch.WriteByte(d.regs, RegPowerCtrl, 0x01); !st.OK() {
		return st
	}
	d.delay(startUpTime)

	id, st := bosch.ReadByte(d.regs, RegChipID)
	if !st.OK() {
		return st
	}
	if id != ChipID {
		return bosch.StatusDevNotFound
	}
	return d.readTrim()
}

func (d *Dev) readTrim() bosch.Status {
	var x1y1 [2]byte
	var xyz [4]byte
	var xy [10]byte
	if err := d.regs.Read(RegDigX1, x1y1[:]); err != nil {
		return bosch.StatusComFail
	}
	if err := d.regs.Read(RegDigZ4LSB, xyz[:]); err != nil {
		return bosch.StatusComFail
	}
	if err := d.regs.Read(RegDigZ2LSB, xy[:]); err != nil {
		return bosch.StatusComFail
	}
	d.trim = trim{
		x1:   int8(x1y1[0]),
		y1:   int8(x1y1[1]),
		z4:   int16(binary.LittleEndian.Uint16(xyz[0:])),
		x2:   int8(xyz[2]),
		y2:   int8(xyz[3]),
		z2:   int16(binary.LittleEndian.Uint16(xy[0:])),
		z1:   binary.LittleEndian.Uint16(xy[2:]),
		xyz1: uint16(xy[5]&0x7F)<<8 | uint16(xy[4]),
		z3:   int16(binary.LittleEndian.Uint16(xy[6:])),
		xy2:  int8(xy[8]),
		xy1:  xy[9],
	}
	return bosch.StatusOK
}

// SetOpMode writes the power mode from s.
func (d *Dev) SetOpMode(s Settings) bosch.Status {
	switch s.PowerMode {
	case PowerModeNormal, PowerModeForced, PowerModeSleep:
	default:
		return bosch.StatusInvalidInput
	}
	return bosch.UpdateBits(d.regs, RegOpMode, opModeMask, byte(s.PowerMode)<<1)
}

// SetPresetMode applies the data rate and repetitions of s.PresetMode.
func (d *Dev) SetPresetMode(s Settings) bosch.Status {
	p, ok := presets[s.PresetMode]
	if !ok {
		return bosch.StatusInvalidInput
	}
	if st := bosch.UpdateBits(d.regs, RegOpMode, dataRateMask, p.dataRate<<3); !st.OK() {
		return st
	}
	if st := bosch.WriteByte(d.regs, RegRepXY, p.repXY); !st.OK() {
		return st
	}
	return bosch.WriteByte(d.regs, RegRepZ, p.repZ)
}

// SetDataReadyPin enables or disables the DRDY pin.
func (d *Dev) SetDataReadyPin(s Settings) bosch.Status {
	var v byte
	if s.IntSettings.DrdyPinEn {
		v = drdyPinEnBit
	}
	return bosch.UpdateBits(d.regs, RegAxesEnable, drdyPinEnBit, v)
}

// Settings reads the live configuration back.
func (d *Dev) Settings() (Settings, bosch.Status) {
	op, st := bosch.ReadByte(d.regs, RegOpMode)
	if !st.OK() {
		return Settings{}, st
	}
	axes, st := bosch.ReadByte(d.regs, RegAxesEnable)
	if !st.OK() {
		return Settings{}, st
	}
	var rep [2]byte
	if err := d.regs.Read(RegRepXY, rep[:]); err != nil {
		return Settings{}, bosch.StatusComFail
	}
	return Settings{
		PowerMode:   PowerMode((op & opModeMask) >> 1),
		DataRate:    (op & dataRateMask) >> 3,
		XYRep:       rep[0],
		ZRep:        rep[1],
		IntSettings: IntSettings{DrdyPinEn: axes&drdyPinEnBit != 0},
	}, bosch.StatusOK
}

// ReadMagData reads the 8 byte data block and compensates it with the trim
// values loaded by Init.
func (d *Dev) ReadMagData() (MagData, bosch.Status) {
	var b [8]byte
	if err := d.regs.Read(RegDataXLSB, b[:]); err != nil {
		return MagData{}, bosch.StatusComFail
	}
	rawX := int16(int8(b[1]))*32 | int16(b[0]>>3)
	rawY := int16(int8(b[3]))*32 | int16(b[2]>>3)
	rawZ := int16(int8(b[5]))*128 | int16(b[4]>>1)
	rhall := uint16(b[7])<<6 | uint16(b[6]>>2)

	return MagData{
		X: d.compensateX(rawX, rhall),
		Y: d.compensateY(rawY, rhall),
		Z: d.compensateZ(rawZ, rhall),
	}, bosch.StatusOK
}

func (d *Dev) compensateX(raw int16, rhall uint16) float64 {
	if raw == overflowXY || rhall == 0 || d.trim.xyz1 == 0 {
		return 0
	}
	t := d.trim
	r := float64(t.xyz1)*16384.0/float64(rhall) - 16384.0
	c1 := float64(t.xy2) * (r * r / 268435456.0)
	c2 := c1 + r*float64(t.xy1)/16384.0
	c3 := float64(t.x2) + 160.0
	c4 := float64(raw) * ((c2 + 256.0) * c3)
	return (c4/8192.0 + float64(t.x1)*8.0) / 16.0
}

func (d *Dev) compensateY(raw int16, rhall uint16) float64 {
	if raw == overflowXY || rhall == 0 || d.trim.xyz1 == 0 {
		return 0
	}
	t := d.trim
	r := float64(t.xyz1)*16384.0/float64(rhall) - 16384.0
	c1 := float64(t.xy2) * (r * r / 268435456.0)
	c2 := c1 + r*float64(t.xy1)/16384.0
	c3 := float64(t.y2) + 160.0
	c4 := float64(raw) * ((c2 + 256.0) * c3)
	return (c4/8192.0 + float64(t.y1)*8.0) / 16.0
}

func (d *Dev) compensateZ(raw int16, rhall uint16) float64 {
	t := d.trim
	if raw == overflowZ || t.z2 == 0 || t.z1 == 0 || t.xyz1 == 0 || rhall == 0 {
		return 0
	}
	c0 := float64(raw) - float64(t.z4)
	c1 := float64(rhall) - float64(t.xyz1)
	c2 := float64(t.z3) * c1
	c3 := float64(t.z1) * float64(rhall) / 32768.0
	c4 := float64(t.z2) + c3
	c5 := c0*131072.0 - c2
	return (c5 / (c4 * 4.0)) / 16.0
}

var dataRateHz = [8]float64{
	DataRate10Hz: 10,
	DataRate02Hz: 2,
	DataRate06Hz: 6,
	DataRate08Hz: 8,
	DataRate15Hz: 15,
	DataRate20Hz: 20,
	DataRate25Hz: 25,
	DataRate30Hz: 30,
}

// DataRateHz maps a data rate code to Hz, 0 for unknown codes.
func DataRateHz(code uint8) float64 {
	if int(code) >= len(dataRateHz) {
		return 0
	}
	return dataRateHz[code]
}
