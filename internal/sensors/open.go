package sensors

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/bosch_imu/internal/config"
	"github.com/relabs-tech/bosch_imu/internal/fault"
)

// Open initializes the periph host, opens the configured I2C bus and pins and
// returns an IMU wired per cfg. The caller still runs Initialize.
func Open(cfg *config.Config) (*IMU, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("imu: periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("imu: open I2C bus %q: %w", cfg.I2CBus, err)
	}

	var irqPin gpio.PinIn
	if cfg.IRQPin != "" {
		p := gpioreg.ByName(cfg.IRQPin)
		if p == nil {
			bus.Close()
			return nil, fmt.Errorf("imu: IRQ pin %q not found", cfg.IRQPin)
		}
		irqPin = p
	}

	var blob []byte
	if cfg.BMI270ConfigFile != "" {
		blob, err = os.ReadFile(cfg.BMI270ConfigFile)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("imu: read BMI270 config file: %w", err)
		}
		log.WithField("bytes", len(blob)).Debug("imu: BMI270 config file loaded")
	}

	m := New(bus, irqPin, Opts{
		BMI270Addr:     cfg.BMI270Addr,
		BMM150Addr:     cfg.BMM150Addr,
		ConfigFile:     blob,
		MagApplyPreset: cfg.MagApplyPreset,
	})
	m.closer = bus

	if sink := debugSink(cfg.DebugSink); sink != nil {
		m.SetDebugSink(sink)
	}
	if cfg.HaltOnFault {
		led := gpioreg.ByName(cfg.LEDPin)
		if led == nil {
			m.Close()
			return nil, fmt.Errorf("imu: LED pin %q not found", cfg.LEDPin)
		}
		m.SetHalter(&fault.LEDTrap{Pin: led})
	}

	log.WithFields(log.Fields{
		"bus":    bus.String(),
		"irq":    cfg.IRQPin,
		"preset": cfg.MagApplyPreset,
	}).Info("imu: opened")
	return m, nil
}

func debugSink(name string) io.Writer {
	switch name {
	case config.SinkStdout:
		return os.Stdout
	case config.SinkStderr:
		return os.Stderr
	}
	return nil
}
