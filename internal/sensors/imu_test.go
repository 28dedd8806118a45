package sensors

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/bosch_imu/internal/bmi270"
	"github.com/relabs-tech/bosch_imu/internal/bmm150"
	"github.com/relabs-tech/bosch_imu/internal/bosch"
	"github.com/relabs-tech/bosch_imu/internal/fault"
	"github.com/relabs-tech/bosch_imu/internal/transport/transporttest"
)

type rig struct {
	bus *transporttest.RegisterBus
	acc *transporttest.Device
	mag *transporttest.Device
	pin *gpiotest.Pin
	imu *IMU
}

func newRig(t *testing.T, opts Opts) *rig {
	t.Helper()
	bus := transporttest.New()
	acc := bus.Add(bmi270.DefaultAddr)
	acc.Fixed[bmi270.RegChipID] = bmi270.ChipID
	acc.Fixed[bmi270.RegInternalStatus] = 0x01
	acc.Burst[bmi270.RegInitData] = true

	mag := bus.Add(bmm150.DefaultAddr)
	mag.Fixed[bmm150.RegChipID] = bmm150.ChipID
	copy(mag.Regs[bmm150.RegDigZ2LSB:], []byte{0x00, 0x04, 0x00, 0x10, 0x00, 0x20, 0, 0, 0, 0})

	pin := &gpiotest.Pin{N: "INT1", EdgesChan: make(chan gpio.Level, 64)}
	opts.Delay = bosch.NoDelay
	opts.EdgePoll = 10 * time.Millisecond
	m := New(bus, pin, opts)
	t.Cleanup(func() { m.Close() })
	return &rig{bus: bus, acc: acc, mag: mag, pin: pin, imu: m}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestInitializeConfiguresChips(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !r.imu.Initialized() {
		t.Fatal("Initialized() = false")
	}
	for _, c := range []struct {
		name string
		reg  byte
		want byte
	}{
		{"INT1_IO_CTRL", bmi270.RegInt1IOCtrl, 0x0A},
		{"INT_LATCH", bmi270.RegIntLatch, 0x00},
		{"INT_MAP_DATA", bmi270.RegIntMapData, 0x04},
		{"ACC_CONF", bmi270.RegAccConf, 0x98},
		{"ACC_RANGE", bmi270.RegAccRange, bmi270.AccRange4G},
		{"GYR_CONF", bmi270.RegGyrConf, 0x98},
		{"GYR_RANGE", bmi270.RegGyrRange, 0x08},
		{"PWR_CTRL", bmi270.RegPwrCtrl, 0x06},
	} {
		if got := r.acc.Regs[c.reg]; got != c.want {
			t.Errorf("%s = %#x, want %#x", c.name, got, c.want)
		}
	}
	if got := r.mag.Regs[bmm150.RegOpMode] & 0x06; got != 0 {
		t.Errorf("BMM150 op mode bits = %#x, want normal", got)
	}
	if w := r.bus.WritesTo(bmm150.DefaultAddr, bmm150.RegRepXY); len(w) != 0 {
		t.Errorf("preset applied without MagApplyPreset: %+v", w)
	}
	if w := r.bus.WritesTo(bmm150.DefaultAddr, bmm150.RegAxesEnable); len(w) != 0 {
		t.Errorf("drdy pin enabled without MagApplyPreset: %+v", w)
	}
}

func TestInitializeOrder(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	lastBMI, firstBMM := -1, -1
	for i, w := range r.bus.Writes {
		switch w.Addr {
		case bmi270.DefaultAddr:
			lastBMI = i
		case bmm150.DefaultAddr:
			if firstBMM < 0 {
				firstBMM = i
			}
		}
	}
	if firstBMM < lastBMI {
		t.Fatalf("BMM150 written at %d before BMI270 finished at %d", firstBMM, lastBMI)
	}
	pwr := r.bus.WritesTo(bmi270.DefaultAddr, bmi270.RegPwrCtrl)
	if len(pwr) != 1 || r.bus.Writes[lastBMI].Reg != bmi270.RegPwrCtrl {
		t.Fatalf("sensor enable must be the single last BMI270 write, got %+v", pwr)
	}
}

func TestMagApplyPreset(t *testing.T) {
	r := newRig(t, Opts{MagApplyPreset: true})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if r.mag.Regs[bmm150.RegRepXY] != 4 || r.mag.Regs[bmm150.RegRepZ] != 14 {
		t.Errorf("reps = %d/%d, want 4/14", r.mag.Regs[bmm150.RegRepXY], r.mag.Regs[bmm150.RegRepZ])
	}
	if r.mag.Regs[bmm150.RegAxesEnable]&0x80 == 0 {
		t.Error("drdy pin not enabled")
	}
	if got := r.imu.MagneticFieldSampleRate(); got != 10 {
		t.Errorf("MagneticFieldSampleRate = %v, want 10", got)
	}
}

func TestSampleRates(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := r.imu.AccelerationSampleRate(); math.Abs(got-99.84) > 1e-9 {
		t.Errorf("AccelerationSampleRate = %v", got)
	}
	if got := r.imu.GyroscopeSampleRate(); math.Abs(got-99.84) > 1e-9 {
		t.Errorf("GyroscopeSampleRate = %v", got)
	}
	r.mag.Regs[bmm150.RegOpMode] = bmm150.DataRate30Hz << 3
	if got := r.imu.MagneticFieldSampleRate(); got != 30 {
		t.Errorf("MagneticFieldSampleRate = %v, want 30", got)
	}
	rates := r.imu.SampleRates()
	if rates.MagneticField != 30*physic.Hertz {
		t.Errorf("SampleRates().MagneticField = %v", rates.MagneticField)
	}
	r.acc.Regs[bmi270.RegAccConf] = 0x00
	if got := r.imu.AccelerationSampleRate(); math.Abs(got-0.39) > 1e-9 {
		t.Errorf("odr 0 rate = %v, want 0.39", got)
	}
}

func TestReadingsAreScaled(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	copy(r.acc.Regs[bmi270.RegData8:], []byte{
		0x00, 0x20, // 8192 -> 1 g at ±4 g
		0x00, 0xE0, // -8192
		0x00, 0x00,
		0x00, 0x40, // 16384 -> 1000 °/s at ±2000
		0x00, 0x00,
		0x00, 0xC0, // -16384
	})
	ax, ay, az, err := r.imu.ReadAcceleration()
	if err != nil || ax != 1 || ay != -1 || az != 0 {
		t.Fatalf("ReadAcceleration = %v %v %v, %v", ax, ay, az, err)
	}
	gx, gy, gz, err := r.imu.ReadGyroscope()
	if err != nil || gx != 1000 || gy != 0 || gz != -1000 {
		t.Fatalf("ReadGyroscope = %v %v %v, %v", gx, gy, gz, err)
	}

	copy(r.mag.Regs[bmm150.RegDataXLSB:], []byte{0x80, 0x00, 0x00, 0xFF, 0xC8, 0x00, 0x00, 0x80})
	mx, my, mz, err := r.imu.ReadMagneticField()
	if err != nil || math.Abs(mx-5) > 1e-9 || math.Abs(my+10) > 1e-9 || math.Abs(mz-100) > 1e-9 {
		t.Fatalf("ReadMagneticField = %v %v %v, %v", mx, my, mz, err)
	}

	s, err := r.imu.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if s.Ax != 1 || s.Gz != -1000 || math.Abs(s.Mz-100) > 1e-9 || s.Time.IsZero() {
		t.Fatalf("ReadSample = %+v", s)
	}
}

func TestAvailabilityWithoutCallback(t *testing.T) {
	r := newRig(t, Opts{})
	if r.imu.AccelerationAvailable() != 1 || r.imu.GyroscopeAvailable() != 1 || r.imu.MagneticFieldAvailable() != 1 {
		t.Fatal("availability without a callback must be 1")
	}
	if _, _, _, err := r.imu.ReadAcceleration(); err != nil {
		t.Fatal(err)
	}
	if r.imu.AccelerationAvailable() != 1 {
		t.Fatal("availability without a callback must stay 1")
	}
}

func TestInterruptCounter(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	var calls atomic.Int32
	if err := r.imu.SetInterruptCallback(func() { calls.Add(1) }); err != nil {
		t.Fatalf("SetInterruptCallback: %v", err)
	}
	if got := r.imu.AccelerationAvailable(); got != 0 {
		t.Fatalf("available before edges = %d, want 0", got)
	}

	const edges = 4
	for i := 0; i < edges; i++ {
		r.pin.EdgesChan <- gpio.High
	}
	waitFor(t, "edges", func() bool { return r.imu.AccelerationAvailable() == edges })
	waitFor(t, "callbacks", func() bool { return calls.Load() == edges })

	r.imu.ReadAcceleration()
	r.imu.ReadGyroscope()
	if got := r.imu.GyroscopeAvailable(); got != edges-2 {
		t.Fatalf("available after 2 reads = %d, want %d", got, edges-2)
	}
	r.imu.ReadMagneticField()
	if got := r.imu.AccelerationAvailable(); got != edges-2 {
		t.Fatalf("magnetometer read changed the counter: %d", got)
	}
	for i := 0; i < 3; i++ {
		r.imu.ReadAcceleration()
	}
	if got := r.imu.AccelerationAvailable(); got != -1 {
		t.Fatalf("available = %d, want -1", got)
	}
	if r.imu.MagneticFieldAvailable() != 1 {
		t.Fatal("MagneticFieldAvailable != 1")
	}
}

func TestCallbackWaitsForInitialize(t *testing.T) {
	r := newRig(t, Opts{})
	var calls atomic.Int32
	if err := r.imu.SetInterruptCallback(func() { calls.Add(1) }); err != nil {
		t.Fatalf("SetInterruptCallback: %v", err)
	}
	r.pin.EdgesChan <- gpio.High
	waitFor(t, "edge", func() bool { return r.imu.AccelerationAvailable() == 1 })
	if calls.Load() != 0 {
		t.Fatal("callback ran before Initialize")
	}
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	r.pin.EdgesChan <- gpio.High
	waitFor(t, "callback", func() bool { return calls.Load() == 1 })
}

func TestFailedReadLeavesCounter(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := r.imu.SetInterruptCallback(func() {}); err != nil {
		t.Fatal(err)
	}
	r.pin.EdgesChan <- gpio.High
	waitFor(t, "edge", func() bool { return r.imu.AccelerationAvailable() == 1 })

	r.bus.Err = errors.New("bus down")
	_, _, _, err := r.imu.ReadAcceleration()
	if !errors.Is(err, bosch.StatusComFail) {
		t.Fatalf("ReadAcceleration = %v, want StatusComFail", err)
	}
	if got := r.imu.AccelerationAvailable(); got != 1 {
		t.Fatalf("available after failed read = %d, want 1", got)
	}
	if got := r.imu.AccelerationSampleRate(); got != 0 {
		t.Fatalf("sample rate on dead bus = %v, want 0", got)
	}
}

func TestSampleWithFailedMagLeavesCounter(t *testing.T) {
	r := newRig(t, Opts{})
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := r.imu.SetInterruptCallback(func() {}); err != nil {
		t.Fatal(err)
	}
	r.pin.EdgesChan <- gpio.High
	waitFor(t, "edge", func() bool { return r.imu.AccelerationAvailable() == 1 })

	// The accel/gyro fetch takes two transactions; the magnetometer one fails.
	r.bus.FailAfter = r.bus.Count + 2
	if _, err := r.imu.ReadSample(); !errors.Is(err, bosch.StatusComFail) {
		t.Fatalf("ReadSample = %v, want StatusComFail", err)
	}
	if got := r.imu.AccelerationAvailable(); got != 1 {
		t.Fatalf("available after failed sample = %d, want 1", got)
	}

	r.bus.FailAfter = 0
	if _, err := r.imu.ReadSample(); err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if got := r.imu.AccelerationAvailable(); got != 0 {
		t.Fatalf("available after sample = %d, want 0", got)
	}
}

func TestFaultWithoutSinkIsSwallowed(t *testing.T) {
	r := newRig(t, Opts{})
	r.acc.Fixed[bmi270.RegChipID] = 0x00
	r.imu.SetHalter(fault.HalterFunc(func(*fault.FatalError) { t.Error("halter ran without a sink") }))
	if err := r.imu.Initialize(); err != nil {
		t.Fatalf("Initialize = %v, want nil", err)
	}
	if !r.imu.Initialized() {
		t.Fatal("sequence did not complete")
	}
	// The magnetometer still came up.
	if r.mag.Regs[bmm150.RegPowerCtrl] != 0x01 {
		t.Fatal("BMM150 init skipped after a swallowed BMI270 fault")
	}
	if _, _, _, err := r.imu.ReadMagneticField(); err != nil {
		t.Fatalf("ReadMagneticField after swallowed fault: %v", err)
	}
	r.imu.AccelerationSampleRate()
}

func TestFaultWithSinkReturnsFatal(t *testing.T) {
	r := newRig(t, Opts{})
	r.mag.Fixed[bmm150.RegChipID] = 0x00
	var out bytes.Buffer
	r.imu.SetDebugSink(&out)
	err := r.imu.Initialize()
	if !fault.IsFatal(err) || !errors.Is(err, bosch.StatusDevNotFound) {
		t.Fatalf("Initialize = %v, want fatal DevNotFound", err)
	}
	if r.imu.Initialized() {
		t.Fatal("Initialized after a fatal fault")
	}
	if !strings.Contains(out.String(), "Error [-3]") {
		t.Fatalf("sink = %q", out.String())
	}
	if w := r.bus.WritesTo(bmm150.DefaultAddr, bmm150.RegOpMode); len(w) != 0 {
		t.Fatal("configuration continued after a fatal fault")
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestFaultTrapNeverReturns(t *testing.T) {
	r := newRig(t, Opts{})
	r.acc.Fixed[bmi270.RegInternalStatus] = 0x00
	out := &lockedBuffer{}
	r.imu.SetDebugSink(out)
	r.imu.SetHalter(&fault.LEDTrap{
		Pin:   &gpiotest.Pin{N: "LED"},
		Sleep: func(time.Duration) { time.Sleep(5 * time.Millisecond) },
	})

	returned := make(chan struct{})
	go func() {
		r.imu.Initialize()
		close(returned)
	}()
	waitFor(t, "fault message", func() bool { return strings.Contains(out.String(), "Error [-9]") })
	select {
	case <-returned:
		t.Fatal("Initialize returned from the fault trap")
	case <-time.After(200 * time.Millisecond):
	}
}
