// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bmi270 is a register level driver for the Bosch BMI270 6-axis IMU,
// covering init, accel/gyro configuration, interrupt pin setup and sample
// readout. Every routine returns a bosch.Status.
package bmi270

import (
	"encoding/binary"
	"time"

	"github.com/relabs-tech/bosch_imu/internal/bosch"
)

// Sensor selects the accelerometer or gyroscope.
type Sensor uint8

const (
	Accel Sensor = iota + 1
	Gyro
)

// Accelerometer output data rate codes.
const (
	AccODR0_78HZ = 0x01
	AccODR1_56HZ = 0x02
	AccODR3_12HZ = 0x03
	AccODR6_25HZ = 0x04
	AccODR12_5HZ = 0x05
	AccODR25HZ   = 0x06
	AccODR50HZ   = 0x07
	AccODR100HZ  = 0x08
	AccODR200HZ  = 0x09
	AccODR400HZ  = 0x0A
	AccODR800HZ  = 0x0B
	AccODR1600HZ = 0x0C
)

// Gyroscope output data rate codes.
const (
	GyrODR25HZ   = 0x06
	GyrODR50HZ   = 0x07
	GyrODR100HZ  = 0x08
	GyrODR200HZ  = 0x09
	GyrODR400HZ  = 0x0A
	GyrODR800HZ  = 0x0B
	GyrODR1600HZ = 0x0C
	GyrODR3200HZ = 0x0D
)

// Accelerometer ranges.
const (
	AccRange2G  = 0x00
	AccRange4G  = 0x01
	AccRange8G  = 0x02
	AccRange16G = 0x03
)

// Gyroscope ranges.
const (
	GyrRange2000 = 0x00
	GyrRange1000 = 0x01
	GyrRange500  = 0x02
	GyrRange250  = 0x03
	GyrRange125  = 0x04

	GyrOIS250  = 0x00
	GyrOIS2000 = 0x01
)

// Bandwidth parameters.
const (
	AccOSR4Avg1 = 0x00
	AccOSR2Avg2 = 0x01
	AccNormAvg4 = 0x02

	GyrOSR4Mode   = 0x00
	GyrOSR2Mode   = 0x01
	GyrNormalMode = 0x02
)

// Filter performance modes.
const (
	PowerOptMode = 0x00
	PerfOptMode  = 0x01
)

// AccelConfig is the ACC_CONF/ACC_RANGE content.
type AccelConfig struct {
	ODR        uint8
	BWP        uint8
	FilterPerf uint8
	Range      uint8
}

// GyroConfig is the GYR_CONF/GYR_RANGE content.
type GyroConfig struct {
	ODR        uint8
	BWP        uint8
	NoisePerf  uint8
	FilterPerf uint8
	Range      uint8
	OISRange   uint8
}

// IntPin selects an interrupt output.
type IntPin uint8

const (
	IntNone IntPin = iota
	Int1
	Int2
	IntBoth
)

// IntPinConfig is the electrical behaviour of an interrupt pin.
type IntPinConfig struct {
	Pin        IntPin
	Latched    bool
	ActiveHigh bool
	OpenDrain  bool
	OutputEn   bool
	InputEn    bool
}

// SensorData is one combined accel+gyro sample in raw counts.
type SensorData struct {
	Acc [3]int16
	Gyr [3]int16
}

// Opts configures a Dev.
type Opts struct {
	// Addr defaults to DefaultAddr.
	Addr uint16
	// ReadWriteLen is the config upload burst size, DefaultReadWriteLen when zero.
	ReadWriteLen int
	// ConfigFile is the feature engine blob uploaded during Init. When empty
	// the upload is skipped and Init only checks the internal status.
	ConfigFile []byte
	// Delay defaults to time.Sleep.
	Delay bosch.DelayFunc
}

// Dev is the BMI270 device handle.
type Dev struct {
	regs         bosch.Registers
	addr         uint16
	readWriteLen int
	configFile   []byte
	delay        bosch.DelayFunc
}

// New builds a handle. It does not touch the bus.
func New(regs bosch.Registers, opts Opts) *Dev {
	d := &Dev{
		regs:         regs,
		addr:         opts.Addr,
		readWriteLen: opts.ReadWriteLen,
		configFile:   opts.ConfigFile,
		delay:        opts.Delay,
	}
	if d.addr == 0 {
		d.addr = DefaultAddr
	}
	if d.readWriteLen <= 0 {
		d.readWriteLen = DefaultReadWriteLen
	}
	d.readWriteLen &^= 1
	if d.delay == nil {
		d.delay = time.Sleep
	}
	return d
}

// Addr returns the bus address of the handle.
func (d *Dev) Addr() uint16 { return d.addr }

// ReadWriteLen returns the effective upload burst size.
func (d *Dev) ReadWriteLen() int { return d.readWriteLen }

// Registers exposes the transport for raw register access (debug console).
func (d *Dev) Registers() bosch.Registers { return d.regs }

// Init verifies the chip id, soft resets the chip and loads the config file.
func (d *Dev) Init() bosch.Status {
	if d.regs == nil {
		return bosch.StatusNullPtr
	}
	id, st := bosch.ReadByte(d.regs, RegChipID)
	if !st.OK() {
		return st
	}
	if id != ChipID {
		return bosch.StatusDevNotFound
	}
	if st := bosch.WriteByte(d.regs, RegCmd, cmdSoftReset); !st.OK() {
		return st
	}
	d.delay(2 * time.Millisecond)

	// Burst writes need advanced power save off.
	if st := bosch.WriteByte(d.regs, RegPwrConf, 0x00); !st.OK() {
		return bosch.StatusSetAPSFail
	}
	d.delay(450 * time.Microsecond)

	if len(d.configFile) > 0 {
		if st := d.uploadConfig(); !st.OK() {
			return st
		}
	}

	status, st := bosch.ReadByte(d.regs, RegInternalStatus)
	if !st.OK() {
		return st
	}
	if status&internalStatusMask != internalStatusInitOK {
		return bosch.StatusConfigLoad
	}
	return bosch.StatusOK
}

func (d *Dev) uploadConfig() bosch.Status {
	if st := bosch.WriteByte(d.regs, RegInitCtrl, 0x00); !st.OK() {
		return st
	}
	for off := 0; off < len(d.configFile); off += d.readWriteLen {
		end := off + d.readWriteLen
		if end > len(d.configFile) {
			end = len(d.configFile)
		}
		// INIT_ADDR counts 16-bit words.
		word := off / 2
		if err := d.regs.Write(RegInitAddr0, []byte{byte(word & 0x0F), byte(word >> 4)}); err != nil {
			return bosch.StatusComFail
		}
		if err := d.regs.Write(RegInitData, d.configFile[off:end]); err != nil {
			return bosch.StatusComFail
		}
	}
	if st := bosch.WriteByte(d.regs, RegInitCtrl, 0x01); !st.OK() {
		return st
	}
	d.delay(20 * time.Millisecond)
	return bosch.StatusOK
}

// SetIntPinConfig programs the electrical behaviour of an interrupt pin.
func (d *Dev) SetIntPinConfig(cfg IntPinConfig) bosch.Status {
	if cfg.Pin == IntNone || cfg.Pin > IntBoth {
		return bosch.StatusInvalidIntPin
	}
	var io byte
	if cfg.ActiveHigh {
		io |= 0x02
	}
	if cfg.OpenDrain {
		io |= 0x04
	}
	if cfg.OutputEn {
		io |= 0x08
	}
	if cfg.InputEn {
		io |= 0x10
	}
	if cfg.Pin == Int1 || cfg.Pin == IntBoth {
		if st := bosch.WriteByte(d.regs, RegInt1IOCtrl, io); !st.OK() {
			return st
		}
	}
	if cfg.Pin == Int2 || cfg.Pin == IntBoth {
		if st := bosch.WriteByte(d.regs, RegInt2IOCtrl, io); !st.OK() {
			return st
		}
	}
	var latch byte
	if cfg.Latched {
		latch = 0x01
	}
	return bosch.WriteByte(d.regs, RegIntLatch, latch)
}

// MapDataReadyInt routes the data-ready interrupt to pin.
func (d *Dev) MapDataReadyInt(pin IntPin) bosch.Status {
	var bits byte
	switch pin {
	case Int1:
		bits = intMapDrdyInt1
	case Int2:
		bits = intMapDrdyInt2
	case IntBoth:
		bits = intMapDrdyInt1 | intMapDrdyInt2
	default:
		return bosch.StatusInvalidIntPin
	}
	return bosch.UpdateBits(d.regs, RegIntMapData, intMapDrdyInt1|intMapDrdyInt2, bits)
}

// SetAccelConfig validates and writes the accelerometer configuration.
func (d *Dev) SetAccelConfig(cfg AccelConfig) bosch.Status {
	if cfg.ODR < AccODR0_78HZ || cfg.ODR > AccODR1600HZ || cfg.BWP > 0x07 ||
		cfg.FilterPerf > PerfOptMode || cfg.Range > AccRange16G {
		return bosch.StatusAccInvalidCfg
	}
	conf := cfg.ODR | cfg.BWP<<4 | cfg.FilterPerf<<7
	if st := bosch.WriteByte(d.regs, RegAccConf, conf); !st.OK() {
		return st
	}
	return bosch.WriteByte(d.regs, RegAccRange, cfg.Range)
}

// SetGyroConfig validates and writes the gyroscope configuration.
func (d *Dev) SetGyroConfig(cfg GyroConfig) bosch.Status {
	if cfg.ODR < GyrODR25HZ || cfg.ODR > GyrODR3200HZ || cfg.BWP > GyrNormalMode ||
		cfg.NoisePerf > PerfOptMode || cfg.FilterPerf > PerfOptMode ||
		cfg.Range > GyrRange125 || cfg.OISRange > GyrOIS2000 {
		return bosch.StatusGyroInvalidCfg
	}
	conf := cfg.ODR | cfg.BWP<<4 | cfg.NoisePerf<<6 | cfg.FilterPerf<<7
	if st := bosch.WriteByte(d.regs, RegGyrConf, conf); !st.OK() {
		return st
	}
	return bosch.WriteByte(d.regs, RegGyrRange, cfg.Range|cfg.OISRange<<3)
}

// EnableSensors powers the given sensors on in a single PWR_CTRL write.
func (d *Dev) EnableSensors(sensors ...Sensor) bosch.Status {
	var bits byte
	for _, s := range sensors {
		switch s {
		case Accel:
			bits |= pwrCtrlAcc
		case Gyro:
			bits |= pwrCtrlGyr
		default:
			return bosch.StatusInvalidSensor
		}
	}
	return bosch.UpdateBits(d.regs, RegPwrCtrl, pwrCtrlAcc|pwrCtrlGyr, bits)
}

// AccelConfig reads the live accelerometer configuration back.
func (d *Dev) AccelConfig() (AccelConfig, bosch.Status) {
	var b [2]byte
	if err := d.regs.Read(RegAccConf, b[:]); err != nil {
		return AccelConfig{}, bosch.StatusComFail
	}
	return AccelConfig{
		ODR:        b[0] & 0x0F,
		BWP:        (b[0] >> 4) & 0x07,
		FilterPerf: b[0] >> 7,
		Range:      b[1] & 0x03,
	}, bosch.StatusOK
}

// GyroConfig reads the live gyroscope configuration back.
func (d *Dev) GyroConfig() (GyroConfig, bosch.Status) {
	var b [2]byte
	if err := d.regs.Read(RegGyrConf, b[:]); err != nil {
		return GyroConfig{}, bosch.StatusComFail
	}
	return GyroConfig{
		ODR:        b[0] & 0x0F,
		BWP:        (b[0] >> 4) & 0x03,
		NoisePerf:  (b[0] >> 6) & 0x01,
		FilterPerf: b[0] >> 7,
		Range:      b[1] & 0x07,
		OISRange:   (b[1] >> 3) & 0x01,
	}, bosch.StatusOK
}

// SensorData reads the 12 byte accel+gyro block in one transfer.
func (d *Dev) SensorData() (SensorData, bosch.Status) {
	var b [12]byte
	if err := d.regs.Read(RegData8, b[:]); err != nil {
		return SensorData{}, bosch.StatusComFail
	}
	var s SensorData
	for i := 0; i < 3; i++ {
		s.Acc[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
		s.Gyr[i] = int16(binary.LittleEndian.Uint16(b[6+i*2:]))
	}
	return s, bosch.StatusOK
}

// ODRToHz converts an ODR code to Hz the way the vendor library reports it.
func ODRToHz(odr uint8) float64 {
	return float64(int(1)<<odr) * 0.39
}

// AccelFullScale returns the ±g full scale of a range code.
func AccelFullScale(r uint8) float64 {
	return float64(int(2) << (r & 0x03))
}

// GyroFullScale returns the ±°/s full scale of a range code.
func GyroFullScale(r uint8) float64 {
	if r > GyrRange125 {
		r = GyrRange125
	}
	return 2000 / float64(int(1)<<r)
}

// Scale converts a raw count to physical units for a ±fullScale range.
func Scale(raw int16, fullScale float64) float64 {
	return float64(raw) * fullScale / 32768.0
}
