// Package irq binds a rising-edge GPIO interrupt to a counter and an optional
// callback. Edges are detected on one goroutine and handed over a bounded
// queue to a dispatcher goroutine, so the callback never runs on the edge path.
package irq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// QueueSize is the capacity of the edge queue between watcher and dispatcher.
const QueueSize = 10

// DefaultEdgePoll bounds each WaitForEdge call so Close is noticed promptly.
const DefaultEdgePoll = 100 * time.Millisecond

var (
	ErrStarted = errors.New("irq: bridge already started")
	ErrClosed  = errors.New("irq: bridge closed")
	ErrNoPin   = errors.New("irq: no interrupt pin")
)

// Opts tunes a Bridge.
type Opts struct {
	// Ready gates callback delivery; edges are always counted.
	Ready func() bool
	// EdgePoll defaults to DefaultEdgePoll.
	EdgePoll time.Duration
	// QueueSize defaults to QueueSize.
	QueueSize int
}

// Bridge owns the interrupt counter and the two goroutines servicing the pin.
type Bridge struct {
	pin      gpio.PinIn
	ready    func() bool
	edgePoll time.Duration

	counter atomic.Int64
	drops   atomic.Uint32
	events  chan time.Time

	mu       sync.Mutex
	callback func()
	started  bool
	closed   bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New returns an idle bridge for pin. Nothing touches the pin until Start.
func New(pin gpio.PinIn, opts Opts) *Bridge {
	if opts.EdgePoll <= 0 {
		opts.EdgePoll = DefaultEdgePoll
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = QueueSize
	}
	if opts.Ready == nil {
		opts.Ready = func() bool { return true }
	}
	return &Bridge{
		pin:      pin,
		ready:    opts.Ready,
		edgePoll: opts.EdgePoll,
		events:   make(chan time.Time, opts.QueueSize),
	}
}

// Start configures the pin for rising edges with a pull-down, stores cb and
// launches the watcher and dispatcher. It succeeds once per Bridge.
func (b *Bridge) Start(cb func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if b.started {
		return ErrStarted
	}
	if b.pin == nil {
		return ErrNoPin
	}
	if err := b.pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
		return err
	}
	b.callback = cb
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(2)
	go b.watch(ctx)
	go b.dispatch(ctx)
	log.WithField("pin", b.pin.Name()).Debug("irq: bridge started")
	return nil
}

// watch is the edge detection side. It must never block on the consumer.
func (b *Bridge) watch(ctx context.Context) {
	defer b.wg.Done()
	for ctx.Err() == nil {
		if !b.pin.WaitForEdge(b.edgePoll) {
			continue
		}
		select {
		case b.events <- time.Now():
		default:
			b.drops.Add(1)
		}
	}
}

// dispatch is the event thread: count first, then deliver.
func (b *Bridge) dispatch(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.events:
			b.counter.Add(1)
			b.mu.Lock()
			cb := b.callback
			b.mu.Unlock()
			if cb != nil && b.ready() {
				cb()
			}
		}
	}
}

// Close stops both goroutines and waits for them. The pin is left configured.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
		if err := b.pin.Halt(); err != nil {
			log.WithError(err).Debug("irq: pin halt")
		}
	}
	b.wg.Wait()
	return nil
}

// Started reports whether Start has succeeded.
func (b *Bridge) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started
}

// Count returns the number of unread samples; it may be negative.
func (b *Bridge) Count() int64 { return b.counter.Load() }

// Consume retires one sample.
func (b *Bridge) Consume() { b.counter.Add(-1) }

// Drops returns the number of edges lost to a full queue.
func (b *Bridge) Drops() uint32 { return b.drops.Load() }
