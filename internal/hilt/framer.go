package hilt

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"warrior/internal/domain"
)

// DigitalReply is a decoded digital-read reply frame.
type DigitalReply struct {
	Selector Selector
	High     bool
}

// AnalogReply is a decoded analog-read reply frame.
type AnalogReply struct {
	Selector Selector
	Code     int
}

// BusFrame is an observed field-bus frame before message decoding.
type BusFrame struct {
	ID   uint16
	Data []byte
}

func (r DigitalReply) selector() Selector { return r.Selector }
func (r AnalogReply) selector() Selector  { return r.Selector }

// FrameHandlers receive decoded frames. Nil handlers drop their frames.
type FrameHandlers struct {
	Digital func(DigitalReply)
	Analog  func(AnalogReply)
	Bus     func(BusFrame)
}

// Framer splits the inbound byte stream into terminated frames and dispatches
// them by tag. A buffer whose leading byte is not a known tag is discarded
// byte by byte until one is found, so recovery after corruption is driven by
// tags rather than terminators.
type Framer struct {
	buf      []byte
	handlers FrameHandlers
	logger   *slog.Logger
}

// NewFramer creates a framer dispatching to h.
func NewFramer(h FrameHandlers, logger *slog.Logger) *Framer {
	return &Framer{handlers: h, logger: logger}
}

// Feed appends p to the buffer and dispatches every complete frame.
func (f *Framer) Feed(p []byte) {
	f.buf = append(f.buf, p...)
	for {
		f.resync()
		end := bytes.IndexByte(f.buf, Terminator)
		if end < 0 {
			break
		}
		frame := string(f.buf[:end])
		f.buf = f.buf[end+1:]
		f.dispatch(frame)
	}
	if len(f.buf) == 0 {
		f.buf = f.buf[:0:0]
	}
}

// Buffered returns the bytes held for the next frame.
func (f *Framer) Buffered() []byte {
	return f.buf
}

func (f *Framer) resync() {
	skip := 0
	for skip < len(f.buf) && !isTag(f.buf[skip]) {
		skip++
	}
	if skip > 0 {
		f.logger.Debug("discarded unframed bytes", "bytes", string(f.buf[:skip]))
		f.buf = f.buf[skip:]
	}
}

func isTag(b byte) bool {
	return b == TagDigitalReply || b == TagAnalogReply || b == TagBusMessage
}

func (f *Framer) dispatch(frame string) {
	var err error
	switch frame[0] {
	case TagDigitalReply:
		var r DigitalReply
		if r, err = ParseDigitalReply(frame); err == nil && f.handlers.Digital != nil {
			f.handlers.Digital(r)
		}
	case TagAnalogReply:
		var r AnalogReply
		if r, err = ParseAnalogReply(frame); err == nil && f.handlers.Analog != nil {
			f.handlers.Analog(r)
		}
	case TagBusMessage:
		var b BusFrame
		if b, err = ParseBusFrame(frame); err == nil && f.handlers.Bus != nil {
			f.handlers.Bus(b)
		}
	}
	if err != nil {
		f.logger.Warn("dropped frame", "frame", frame, "error", err)
	}
}

// ParseDigitalReply decodes "G{slot}{role}{0|1}".
func ParseDigitalReply(frame string) (DigitalReply, error) {
	if len(frame) != 4 || frame[0] != TagDigitalReply || (frame[3] != '0' && frame[3] != '1') {
		return DigitalReply{}, fmt.Errorf("%w: unexpected G response %q", domain.ErrMalformedFrame, frame)
	}
	return DigitalReply{Selector: Selector(frame[1:3]), High: frame[3] == '1'}, nil
}

// ParseAnalogReply decodes "N{slot}{role}{code}". The bench firmware pads the
// code to five digits; four are accepted as well.
func ParseAnalogReply(frame string) (AnalogReply, error) {
	if (len(frame) != 7 && len(frame) != 8) || frame[0] != TagAnalogReply || !allDigits(frame[3:]) {
		return AnalogReply{}, fmt.Errorf("%w: unexpected N response %q", domain.ErrMalformedFrame, frame)
	}
	code, err := strconv.Atoi(frame[3:])
	if err != nil {
		return AnalogReply{}, fmt.Errorf("%w: unexpected N response %q", domain.ErrMalformedFrame, frame)
	}
	return AnalogReply{Selector: Selector(frame[1:3]), Code: code}, nil
}

// ParseBusFrame decodes "M{3 hex id},{hex byte},{hex byte}...".
func ParseBusFrame(frame string) (BusFrame, error) {
	if len(frame) < 2 || frame[0] != TagBusMessage {
		return BusFrame{}, fmt.Errorf("%w: unexpected M frame %q", domain.ErrMalformedFrame, frame)
	}
	sid, payload, ok := strings.Cut(frame[1:], ",")
	if !ok {
		return BusFrame{}, fmt.Errorf("%w: M frame %q has no payload separator", domain.ErrMalformedFrame, frame)
	}
	id, err := strconv.ParseUint(sid, 16, 11)
	if err != nil || len(sid) > 3 {
		return BusFrame{}, fmt.Errorf("%w: bad bus id %q", domain.ErrMalformedFrame, sid)
	}
	var data []byte
	if payload != "" {
		parts := strings.Split(payload, ",")
		data = make([]byte, len(parts))
		for i, p := range parts {
			b, err := strconv.ParseUint(p, 16, 8)
			if err != nil || len(p) > 2 {
				return BusFrame{}, fmt.Errorf("%w: bad bus byte %q", domain.ErrMalformedFrame, p)
			}
			data[i] = byte(b)
		}
	}
	return BusFrame{ID: uint16(id), Data: data}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
