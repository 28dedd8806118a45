package bosch

import "time"

// Registers is the bus-side contract both chip drivers are written against.
// Implementations frame each call as one addressed transfer; see package
// transport for the periph.io backed one.
type Registers interface {
	Read(reg byte, buf []byte) error
	Write(reg byte, buf []byte) error
}

// DelayFunc blocks for at least d. Drivers take it as a parameter so tests can
// run register sequences without sleeping.
type DelayFunc func(d time.Duration)

// NoDelay is a DelayFunc that returns immediately.
func NoDelay(time.Duration) {}

// ReadByte reads a single register. Any transport failure is StatusComFail.
func ReadByte(r Registers, reg byte) (byte, Status) {
	var b [1]byte
	if err := r.Read(reg, b[:]); err != nil {
		return 0, StatusComFail
	}
	return b[0], StatusOK
}

// WriteByte writes a single register. Any transport failure is StatusComFail.
func WriteByte(r Registers, reg, val byte) Status {
	if err := r.Write(reg, []byte{val}); err != nil {
		return StatusComFail
	}
	return StatusOK
}

// UpdateBits performs a read-modify-write of the bits selected by mask.
func UpdateBits(r Registers, reg, mask, val byte) Status {
	cur, st := ReadByte(r, reg)
	if !st.OK() {
		return st
	}
	return WriteByte(r, reg, (cur&^mask)|(val&mask))
}
