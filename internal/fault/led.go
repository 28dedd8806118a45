package fault

import (
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// TrapPeriod is one full low/high cycle of the fault LED.
const TrapPeriod = 500 * time.Millisecond

// LEDTrap blinks an onboard LED forever. It never returns from Halt.
type LEDTrap struct {
	Pin gpio.PinOut
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// Halt implements Halter.
func (t *LEDTrap) Halt(err *FatalError) {
	sleep := t.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	log.WithError(err).Error("fault: halted, blinking LED")
	for {
		for _, l := range []gpio.Level{gpio.Low, gpio.High} {
			if t.Pin != nil {
				if e := t.Pin.Out(l); e != nil {
					log.WithError(e).Debug("fault: led write")
				}
			}
			sleep(TrapPeriod / 2)
		}
	}
}
