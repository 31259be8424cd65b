package hilt

import (
	"context"
	"time"

	"warrior/internal/domain"
)

// Send transmits a message of the given type. fields may set any top-level
// key (board_id, time) as well as payload fields; the originator defaults to
// "ANY" and the timestamp to zero.
func (h *Hilt) Send(ctx context.Context, msgType string, fields map[string]any) error {
	msg := domain.BusMessage{
		Type:    msgType,
		BoardID: domain.DefaultBoardID,
		Data:    make(map[string]any, len(fields)),
	}
	for k, v := range fields {
		switch k {
		case domain.KeyBoardID:
			if s, ok := v.(string); ok {
				msg.BoardID = s
				continue
			}
		case domain.KeyTime:
			if f, ok := domain.AsFloat(v); ok {
				msg.Time = f
				continue
			}
		}
		msg.Data[k] = v
	}
	return h.SendRaw(ctx, msg)
}

// SendRaw transmits msg exactly as given.
func (h *Hilt) SendRaw(ctx context.Context, msg domain.BusMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, data, err := h.codec.Encode(msg)
	if err != nil {
		return domain.NewDomainError("hilt.Send", err, msg.Type)
	}
	return domain.WrapOp("hilt.Send", h.write(busSendCmd(id, data)))
}

// Receive discards queued bus messages, then waits up to timeout for one
// matching every criterion. It returns (nil, nil) when the deadline passes
// without a match.
func (h *Hilt) Receive(ctx context.Context, timeout time.Duration, criteria domain.Criteria) (*domain.BusMessage, error) {
	drain(h.bus)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case msg := <-h.bus:
			if msg.Matches(criteria) {
				return &msg, nil
			}
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-h.done:
			return nil, domain.WrapOp("hilt.Receive", h.stoppedErr())
		}
	}
}

func (h *Hilt) handleBusFrame(f BusFrame) {
	msg, err := h.codec.Decode(f.ID, f.Data)
	if err != nil {
		h.logger.Warn("dropped bus frame", "id", f.ID, "bytes", len(f.Data), "error", err)
		return
	}
	if msg.Data == nil {
		msg.Data = map[string]any{}
	}
	if h.sink != nil {
		h.sink.LogBusFrame(h.codec.Format(msg))
	}
	offer(h.bus, msg)
}
