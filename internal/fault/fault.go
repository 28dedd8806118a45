// Package fault turns non-OK vendor status codes into reported, typed errors
// and applies an optional halt policy.
package fault

import (
	"errors"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/bosch_imu/internal/bosch"
)

// FatalError is a configuration failure that was reported to a debug sink.
type FatalError struct {
	Op     string
	Status bosch.Status
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, Message(e.Status))
}

// Unwrap exposes the status for errors.Is(err, bosch.StatusXxx).
func (e *FatalError) Unwrap() error { return e.Status }

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Halter is the policy run after a fatal report. Implementations may block
// forever.
type Halter interface {
	Halt(err *FatalError)
}

// HalterFunc adapts a function to Halter.
type HalterFunc func(err *FatalError)

func (f HalterFunc) Halt(err *FatalError) { f(err) }

// Message formats the debug line for a status.
func Message(s bosch.Status) string {
	return fmt.Sprintf("Error [%d] : %s", int(s), bosch.Describe(s).Message)
}

// Reporter owns the debug sink and halt policy of one adapter.
type Reporter struct {
	mu     sync.Mutex
	sink   io.Writer
	halter Halter
}

// SetSink attaches w; nil detaches.
func (r *Reporter) SetSink(w io.Writer) {
	r.mu.Lock()
	r.sink = w
	r.mu.Unlock()
}

// SetHalter installs the halt policy; nil means return to the caller.
func (r *Reporter) SetHalter(h Halter) {
	r.mu.Lock()
	r.halter = h
	r.mu.Unlock()
}

// HasSink reports whether a debug sink is attached.
func (r *Reporter) HasSink() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink != nil
}

// Report handles the status of operation op. OK yields nil. Without a sink
// the failure is swallowed and nil is returned. With a sink the message is
// written, the halter runs and the FatalError is returned.
func (r *Reporter) Report(op string, s bosch.Status) error {
	if s.OK() {
		return nil
	}
	r.mu.Lock()
	sink, halter := r.sink, r.halter
	r.mu.Unlock()

	if sink == nil {
		log.WithFields(log.Fields{"op": op, "code": int(s)}).Debug("fault: swallowed, no debug sink")
		return nil
	}
	if _, err := fmt.Fprintln(sink, Message(s)); err != nil {
		log.WithError(err).Warn("fault: debug sink write failed")
	}
	fe := &FatalError{Op: op, Status: s}
	if halter != nil {
		halter.Halt(fe)
	}
	return fe
}
