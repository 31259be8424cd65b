// Package hilt drives the hardware-in-the-loop tester over its serial link:
// pin reads and writes, PWM channel allocation, and field-bus traffic.
//
// A background reader owns the inbound side and is the only producer of the
// reply and bus queues. Everything else is meant to be called from a single
// foreground goroutine; at most one read of each kind may be outstanding.
package hilt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"warrior/internal/domain"
	"warrior/internal/infra/config"
)

// Transport is the byte stream to the tester.
type Transport interface {
	// Read returns (0, nil) when nothing arrived within the port's read timeout.
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Codec translates structured bus messages to and from identifier + payload.
type Codec interface {
	Encode(msg domain.BusMessage) (uint16, []byte, error)
	Decode(id uint16, data []byte) (domain.BusMessage, error)
	Format(msg domain.BusMessage) string
}

// Sink receives operator-facing output.
type Sink interface {
	LogLine(text string)
	LogBusFrame(text string)
}

const (
	replyQueueLen = 16
	staleReadLen  = 4096
	readChunkLen  = 1024
)

// Hilt is a handle to one tester.
type Hilt struct {
	transport Transport
	codec     Codec
	sink      Sink
	logger    *slog.Logger
	cfg       config.DriverConfig

	alloc  *Allocator
	framer *Framer
	slots  []*Slot

	digital chan DigitalReply
	analog  chan AnalogReply
	bus     chan domain.BusMessage

	digitalMu sync.Mutex
	analogMu  sync.Mutex

	startOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	readErr   error
}

// New creates a driver over t. Call Start before issuing commands.
func New(t Transport, codec Codec, sink Sink, logger *slog.Logger, cfg config.DriverConfig) *Hilt {
	h := &Hilt{
		transport: t,
		codec:     codec,
		sink:      sink,
		logger:    logger,
		cfg:       cfg,
		alloc:     NewAllocator(cfg.PWMChannels),
		digital:   make(chan DigitalReply, replyQueueLen),
		analog:    make(chan AnalogReply, replyQueueLen),
		bus:       make(chan domain.BusMessage, cfg.BusQueue),
		done:      make(chan struct{}),
	}
	h.framer = NewFramer(FrameHandlers{
		Digital: func(r DigitalReply) { offer(h.digital, r) },
		Analog:  func(r AnalogReply) { offer(h.analog, r) },
		Bus:     h.handleBusFrame,
	}, logger)
	for i := 1; i <= cfg.Slots; i++ {
		h.slots = append(h.slots, newSlot(h, i))
	}
	return h
}

// Start discards stale input and launches the background reader. It returns
// once the reader is running; the reader stops when ctx is done or the
// transport fails.
func (h *Hilt) Start(ctx context.Context) {
	h.startOnce.Do(func() {
		stale := make([]byte, staleReadLen)
		if n, _ := h.transport.Read(stale); n > 0 {
			h.logger.Debug("discarded stale input", "bytes", n)
		}
		go h.readLoop(ctx)
	})
}

// Close closes the transport, which stops the reader.
func (h *Hilt) Close() error {
	return h.transport.Close()
}

// Done is closed when the reader has stopped.
func (h *Hilt) Done() <-chan struct{} { return h.done }

// Err returns the reason the reader stopped, or nil while it runs.
func (h *Hilt) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.readErr
}

// Slot returns the bay with the given 1-based number.
func (h *Hilt) Slot(n int) *Slot {
	if n < 1 || n > len(h.slots) {
		panic(fmt.Sprintf("hilt: slot %d out of range 1..%d", n, len(h.slots)))
	}
	return h.slots[n-1]
}

// Slots returns the number of bays.
func (h *Hilt) Slots() int { return len(h.slots) }

// Allocator exposes the PWM channel table.
func (h *Hilt) Allocator() *Allocator { return h.alloc }

func (h *Hilt) readLoop(ctx context.Context) {
	defer close(h.done)
	buf := make([]byte, readChunkLen)
	for {
		if err := ctx.Err(); err != nil {
			h.setErr(err)
			return
		}
		n, err := h.transport.Read(buf)
		if n > 0 {
			h.framer.Feed(buf[:n])
		}
		if err != nil {
			h.setErr(fmt.Errorf("%w: %v", domain.ErrTransportClosed, err))
			h.logger.Error("tester reader stopped", "error", err)
			return
		}
	}
}

func (h *Hilt) setErr(err error) {
	h.errMu.Lock()
	h.readErr = err
	h.errMu.Unlock()
}

func (h *Hilt) stoppedErr() error {
	if err := h.Err(); err != nil {
		return err
	}
	return domain.ErrTransportClosed
}

func (h *Hilt) write(cmd []byte) error {
	if _, err := h.transport.Write(cmd); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}
	return nil
}

// request resends cmd until a reply addressed to want arrives on ch. A
// timeout or a reply for another pin starts the next attempt; there is no
// overall deadline other than ctx.
func request[T interface{ selector() Selector }](ctx context.Context, h *Hilt, ch chan T, cmd []byte, want Selector, tag byte) (T, error) {
	var zero T
	drain(ch)

	timer := time.NewTimer(h.cfg.ReplyTimeout)
	defer timer.Stop()
	for {
		if err := h.write(cmd); err != nil {
			return zero, err
		}
		timer.Reset(h.cfg.ReplyTimeout)
		select {
		case r := <-ch:
			if got := r.selector(); got != want {
				h.logger.Warn("reply selector mismatch", "tag", string(tag), "got", string(got), "want", string(want))
				continue
			}
			return r, nil
		case <-timer.C:
			h.logger.Warn("timed out waiting for reply", "tag", string(tag), "selector", string(want))
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-h.done:
			return zero, h.stoppedErr()
		}
	}
}

func (h *Hilt) digitalRead(ctx context.Context, id PinID) (bool, error) {
	h.digitalMu.Lock()
	defer h.digitalMu.Unlock()

	h.alloc.Release(id)
	sel := id.Selector()
	r, err := request(ctx, h, h.digital, digitalReadCmd(sel), sel, TagDigitalReply)
	if err != nil {
		return false, domain.WrapOp("hilt.DigitalRead", err)
	}
	return r.High, nil
}

func (h *Hilt) analogRead(ctx context.Context, id PinID) (float64, error) {
	h.analogMu.Lock()
	defer h.analogMu.Unlock()

	h.alloc.Release(id)
	sel := id.Selector()
	r, err := request(ctx, h, h.analog, analogReadCmd(sel), sel, TagAnalogReply)
	if err != nil {
		return 0, domain.WrapOp("hilt.AnalogRead", err)
	}
	return CodeToVoltage(r.Code, h.cfg.ADCFullScale, h.cfg.ReferenceVoltage), nil
}

func (h *Hilt) digitalWrite(ctx context.Context, id PinID, high bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.alloc.Release(id)
	return domain.WrapOp("hilt.DigitalWrite", h.write(digitalWriteCmd(id.Selector(), high)))
}

func (h *Hilt) analogWrite(ctx context.Context, id PinID, voltage float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if voltage < 0 || voltage > h.cfg.MaxPWMVoltage {
		h.logger.Warn("analog output voltage out of range, clamping", "pin", id.String(), "voltage", voltage)
	}
	channel, err := h.alloc.Allocate(id)
	if err != nil {
		return domain.NewDomainError("hilt.AnalogWrite", err, "pin "+id.String())
	}
	duty := clamp(PWMDuty(voltage, h.cfg.MaxPWMVoltage), 0, MaxDuty)
	return domain.WrapOp("hilt.AnalogWrite", h.write(pwmWriteCmd(id.Selector(), channel, duty)))
}

// offer enqueues v, dropping the oldest entry when the queue is full.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func drain[T any](ch chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// IsStopped reports whether err means the driver can no longer talk to the tester.
func IsStopped(err error) bool {
	return errors.Is(err, domain.ErrTransportClosed)
}
