// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sensors is the BMI270 + BMM150 adapter: it runs the fixed
// configuration sequence, exposes scaled readings and sample rates, and
// bridges the BMI270 INT1 line to a caller callback.
package sensors

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/bosch_imu/internal/bmi270"
	"github.com/relabs-tech/bosch_imu/internal/bmm150"
	"github.com/relabs-tech/bosch_imu/internal/bosch"
	"github.com/relabs-tech/bosch_imu/internal/fault"
	"github.com/relabs-tech/bosch_imu/internal/imu"
	"github.com/relabs-tech/bosch_imu/internal/irq"
	"github.com/relabs-tech/bosch_imu/internal/transport"
)

// Fixed chip configuration applied by Initialize.
var (
	intPinConfig = bmi270.IntPinConfig{
		Pin:        bmi270.Int1,
		Latched:    false,
		ActiveHigh: true,
		OpenDrain:  false,
		OutputEn:   true,
		InputEn:    false,
	}
	accelConfig = bmi270.AccelConfig{
		ODR:        bmi270.AccODR100HZ,
		BWP:        bmi270.AccOSR2Avg2,
		FilterPerf: bmi270.PerfOptMode,
		Range:      bmi270.AccRange4G,
	}
	gyroConfig = bmi270.GyroConfig{
		ODR:        bmi270.GyrODR100HZ,
		BWP:        bmi270.GyrOSR2Mode,
		NoisePerf:  bmi270.PowerOptMode,
		FilterPerf: bmi270.PerfOptMode,
		Range:      bmi270.GyrRange2000,
		OISRange:   bmi270.GyrOIS2000,
	}
	magSettings = bmm150.Settings{
		PowerMode:   bmm150.PowerModeNormal,
		PresetMode:  bmm150.PresetRegular,
		IntSettings: bmm150.IntSettings{DrdyPinEn: true},
	}
)

// Chip selects one of the two devices for raw register access.
type Chip string

const (
	ChipBMI270 Chip = "bmi270"
	ChipBMM150 Chip = "bmm150"
)

// Opts configures an IMU.
type Opts struct {
	// BMI270Addr defaults to bmi270.DefaultAddr.
	BMI270Addr uint16
	// BMM150Addr defaults to bmm150.DefaultAddr.
	BMM150Addr uint16
	// ConfigFile is the BMI270 feature engine blob, optional.
	ConfigFile []byte
	// MagApplyPreset issues the BMM150 REGULAR preset and data-ready pin
	// enable. Off, the magnetometer keeps its power-on rate.
	MagApplyPreset bool
	// Delay defaults to time.Sleep.
	Delay bosch.DelayFunc
	// EdgePoll bounds each interrupt wait, irq.DefaultEdgePoll when zero.
	EdgePoll time.Duration
}

// IMU is the adapter over one BMI270 and one BMM150 sharing an I2C bus.
type IMU struct {
	accGyr *bmi270.Dev
	mag    *bmm150.Dev
	bridge *irq.Bridge
	faults fault.Reporter
	opts   Opts
	closer io.Closer
	log    *log.Entry

	// busMu serializes every transfer on the shared bus.
	busMu   sync.Mutex
	accelFS float64
	gyroFS  float64

	initialized atomic.Bool
	hasCallback atomic.Bool
}

// New builds an adapter on bus. irqPin may be nil when no interrupt line is
// wired. Nothing is sent on the bus until Initialize.
func New(bus i2c.Bus, irqPin gpio.PinIn, opts Opts) *IMU {
	if opts.BMI270Addr == 0 {
		opts.BMI270Addr = bmi270.DefaultAddr
	}
	if opts.BMM150Addr == 0 {
		opts.BMM150Addr = bmm150.DefaultAddr
	}
	if opts.Delay == nil {
		opts.Delay = time.Sleep
	}
	m := &IMU{
		opts:    opts,
		accelFS: bmi270.AccelFullScale(accelConfig.Range),
		gyroFS:  bmi270.GyroFullScale(gyroConfig.Range),
		log: log.WithFields(log.Fields{
			"bmi270": fmt.Sprintf("%#02x", opts.BMI270Addr),
			"bmm150": fmt.Sprintf("%#02x", opts.BMM150Addr),
		}),
	}
	m.accGyr = bmi270.New(transport.New(bus, opts.BMI270Addr), bmi270.Opts{
		Addr:         opts.BMI270Addr,
		ReadWriteLen: bmi270.DefaultReadWriteLen,
		ConfigFile:   opts.ConfigFile,
		Delay:        opts.Delay,
	})
	m.mag = bmm150.New(transport.New(bus, opts.BMM150Addr), bmm150.Opts{
		Addr:  opts.BMM150Addr,
		Delay: opts.Delay,
	})
	m.bridge = irq.New(irqPin, irq.Opts{Ready: m.initialized.Load, EdgePoll: opts.EdgePoll})
	return m
}

// SetDebugSink attaches the fault message sink; nil detaches it.
func (m *IMU) SetDebugSink(w io.Writer) { m.faults.SetSink(w) }

// SetHalter installs the policy run after a reported configuration fault.
func (m *IMU) SetHalter(h fault.Halter) { m.faults.SetHalter(h) }

// Initialize runs the configuration sequence. Each group of steps is reported
// through the fault reporter; without a debug sink failures are swallowed and
// the sequence continues.
func (m *IMU) Initialize() error {
	m.busMu.Lock()
	defer m.busMu.Unlock()

	steps := []struct {
		op  string
		run func() bosch.Status
	}{
		{"bmi270 init", m.accGyr.Init},
		{"bmi270 configure", m.configureAccelGyro},
		{"bmm150 init", m.mag.Init},
		{"bmm150 configure", m.configureMag},
	}
	for _, s := range steps {
		st := s.run()
		m.log.WithFields(log.Fields{"step": s.op, "code": int(st)}).Debug("imu: configuration step")
		if err := m.faults.Report(s.op, st); err != nil {
			return fmt.Errorf("imu: %w", err)
		}
	}
	m.initialized.Store(true)
	m.log.Info("imu: initialized")
	return nil
}

func (m *IMU) configureAccelGyro() bosch.Status {
	if st := m.accGyr.SetIntPinConfig(intPinConfig); !st.OK() {
		return st
	}
	if st := m.accGyr.MapDataReadyInt(bmi270.Int1); !st.OK() {
		return st
	}
	if st := m.accGyr.SetAccelConfig(accelConfig); !st.OK() {
		return st
	}
	m.log.Debugf("imu: accelerometer range set to ±%gg", m.accelFS)

	if st := m.accGyr.SetGyroConfig(gyroConfig); !st.OK() {
		return st
	}
	m.log.Debugf("imu: gyroscope range set to ±%g°/s", m.gyroFS)

	return m.accGyr.EnableSensors(bmi270.Accel, bmi270.Gyro)
}

func (m *IMU) configureMag() bosch.Status {
	if st := m.mag.SetOpMode(magSettings); !st.OK() {
		return st
	}
	if !m.opts.MagApplyPreset {
		return bosch.StatusOK
	}
	if st := m.mag.SetPresetMode(magSettings); !st.OK() {
		return st
	}
	return m.mag.SetDataReadyPin(magSettings)
}

// Initialized reports whether Initialize completed.
func (m *IMU) Initialized() bool { return m.initialized.Load() }

// SetInterruptCallback stores cb and starts the interrupt bridge. cb runs on
// the bridge goroutine, only once the IMU is initialized.
func (m *IMU) SetInterruptCallback(cb func()) error {
	if err := m.bridge.Start(cb); err != nil {
		return fmt.Errorf("imu: interrupt: %w", err)
	}
	m.hasCallback.Store(cb != nil)
	return nil
}

func (m *IMU) sensorData() (bmi270.SensorData, float64, float64, error) {
	m.busMu.Lock()
	defer m.busMu.Unlock()
	d, st := m.accGyr.SensorData()
	if !st.OK() {
		return bmi270.SensorData{}, 0, 0, st
	}
	return d, m.accelFS, m.gyroFS, nil
}

// ReadAcceleration returns the latest acceleration in g. A successful read
// retires one pending interrupt.
func (m *IMU) ReadAcceleration() (x, y, z float64, err error) {
	d, fs, _, err := m.sensorData()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("imu: read acceleration: %w", err)
	}
	m.bridge.Consume()
	return bmi270.Scale(d.Acc[0], fs), bmi270.Scale(d.Acc[1], fs), bmi270.Scale(d.Acc[2], fs), nil
}

// ReadGyroscope returns the latest angular rate in °/s. A successful read
// retires one pending interrupt.
func (m *IMU) ReadGyroscope() (x, y, z float64, err error) {
	d, _, fs, err := m.sensorData()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("imu: read gyroscope: %w", err)
	}
	m.bridge.Consume()
	return bmi270.Scale(d.Gyr[0], fs), bmi270.Scale(d.Gyr[1], fs), bmi270.Scale(d.Gyr[2], fs), nil
}

// ReadMagneticField returns the compensated field in µT.
func (m *IMU) ReadMagneticField() (x, y, z float64, err error) {
	m.busMu.Lock()
	d, st := m.mag.ReadMagData()
	m.busMu.Unlock()
	if !st.OK() {
		return 0, 0, 0, fmt.Errorf("imu: read magnetic field: %w", st)
	}
	return d.X, d.Y, d.Z, nil
}

// ReadSample reads all nine axes. The accel/gyro block is fetched once; a
// pending interrupt is retired only when the whole sample was read.
func (m *IMU) ReadSample() (imu.Sample, error) {
	d, afs, gfs, err := m.sensorData()
	if err != nil {
		return imu.Sample{}, fmt.Errorf("imu: read sample: %w", err)
	}
	mx, my, mz, err := m.ReadMagneticField()
	if err != nil {
		return imu.Sample{}, err
	}
	m.bridge.Consume()
	return imu.Sample{
		Time: time.Now(),
		Ax:   bmi270.Scale(d.Acc[0], afs),
		Ay:   bmi270.Scale(d.Acc[1], afs),
		Az:   bmi270.Scale(d.Acc[2], afs),
		Gx:   bmi270.Scale(d.Gyr[0], gfs),
		Gy:   bmi270.Scale(d.Gyr[1], gfs),
		Gz:   bmi270.Scale(d.Gyr[2], gfs),
		Mx:   mx,
		My:   my,
		Mz:   mz,
	}, nil
}

func (m *IMU) pending() int {
	if m.hasCallback.Load() {
		runtime.Gosched()
		return int(m.bridge.Count())
	}
	return 1
}

// AccelerationAvailable returns the pending interrupt count when a callback
// is registered, 1 otherwise. The count may be zero or negative.
func (m *IMU) AccelerationAvailable() int { return m.pending() }

// GyroscopeAvailable behaves like AccelerationAvailable.
func (m *IMU) GyroscopeAvailable() int { return m.pending() }

// MagneticFieldAvailable is always 1.
func (m *IMU) MagneticFieldAvailable() int { return 1 }

// AccelerationSampleRate reads ACC_CONF back and returns its rate in Hz, 0 if
// the read fails.
func (m *IMU) AccelerationSampleRate() float64 {
	m.busMu.Lock()
	cfg, st := m.accGyr.AccelConfig()
	m.busMu.Unlock()
	if !st.OK() {
		m.log.WithField("code", int(st)).Debug("imu: accel config readback failed")
		return 0
	}
	return bmi270.ODRToHz(cfg.ODR)
}

// GyroscopeSampleRate reads GYR_CONF back and returns its rate in Hz, 0 if
// the read fails.
func (m *IMU) GyroscopeSampleRate() float64 {
	m.busMu.Lock()
	cfg, st := m.accGyr.GyroConfig()
	m.busMu.Unlock()
	if !st.OK() {
		m.log.WithField("code", int(st)).Debug("imu: gyro config readback failed")
		return 0
	}
	return bmi270.ODRToHz(cfg.ODR)
}

// MagneticFieldSampleRate reads OP_MODE back and returns its rate in Hz, 0 for
// unknown codes or a failed read.
func (m *IMU) MagneticFieldSampleRate() float64 {
	m.busMu.Lock()
	s, st := m.mag.Settings()
	m.busMu.Unlock()
	if !st.OK() {
		m.log.WithField("code", int(st)).Debug("imu: mag settings readback failed")
		return 0
	}
	return bmm150.DataRateHz(s.DataRate)
}

// Rates holds the three sample rates as frequencies.
type Rates struct {
	Acceleration  physic.Frequency
	Gyroscope     physic.Frequency
	MagneticField physic.Frequency
}

// SampleRates reads all three rates back.
func (m *IMU) SampleRates() Rates {
	return Rates{
		Acceleration:  hz(m.AccelerationSampleRate()),
		Gyroscope:     hz(m.GyroscopeSampleRate()),
		MagneticField: hz(m.MagneticFieldSampleRate()),
	}
}

func hz(f float64) physic.Frequency {
	return physic.Frequency(f * float64(physic.Hertz))
}

// InterruptDrops returns the number of edges lost to a full event queue.
func (m *IMU) InterruptDrops() uint32 { return m.bridge.Drops() }

// ReadRegisters reads raw registers of chip, for the debug console.
func (m *IMU) ReadRegisters(chip Chip, reg byte, buf []byte) error {
	r, err := m.registers(chip)
	if err != nil {
		return err
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return r.Read(reg, buf)
}

// WriteRegisters writes raw registers of chip, for the debug console.
func (m *IMU) WriteRegisters(chip Chip, reg byte, buf []byte) error {
	r, err := m.registers(chip)
	if err != nil {
		return err
	}
	m.busMu.Lock()
	defer m.busMu.Unlock()
	return r.Write(reg, buf)
}

func (m *IMU) registers(chip Chip) (bosch.Registers, error) {
	switch chip {
	case ChipBMI270:
		return m.accGyr.Registers(), nil
	case ChipBMM150:
		return m.mag.Registers(), nil
	}
	return nil, fmt.Errorf("sensors: unknown chip %q", chip)
}

// Close stops the interrupt bridge and releases the bus when the IMU owns it.
func (m *IMU) Close() error {
	err := m.bridge.Close()
	if m.closer != nil {
		if cerr := m.closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
