package main

import (
	"context"
	"time"

	"warrior/internal/blade"
	"warrior/internal/domain"
	"warrior/internal/hilt"
	"warrior/internal/usecase/expect"
	"warrior/internal/usecase/runner"
)

const settle = 100 * time.Millisecond

var sweep = []float64{0, 0.1, 0.2, 1, 2, 2.5, 3, 3.3, 3.4, 4, 4.8, 4.9, 5}

type suite struct {
	h   *hilt.Hilt
	out *blade.Output
	in  *blade.AnalogInput
}

func newSuite(ctx context.Context, h *hilt.Hilt) (*suite, error) {
	outs, err := blade.NewOutputs(ctx, h.Slot(10))
	if err != nil {
		return nil, err
	}
	return &suite{h: h, out: outs[0], in: blade.NewAnalogInputs(h.Slot(9))[0]}, nil
}

func (s *suite) register(r *runner.Runner, loopback bool) {
	r.Test("gets_can_message", s.getsCANMessage)
	r.Conditional("digital_output_matches", runner.Fixed(loopback), s.digitalOutputMatches)
	r.Conditional("analog_output_matches", runner.Fixed(loopback), s.analogOutputMatches)
}

func (s *suite) getsCANMessage(ctx context.Context, x *expect.Expect) error {
	status, err := s.h.Receive(ctx, time.Second, domain.Criteria{
		domain.KeyBoardID: domain.DefaultBoardID,
		domain.KeyMsgType: "GENERAL_BOARD_STATUS",
	})
	if err != nil {
		return err
	}
	x.NonNil(status)
	return nil
}

func (s *suite) digitalOutputMatches(ctx context.Context, x *expect.Expect) error {
	if err := s.out.SetMode(ctx, blade.Digital); err != nil {
		return err
	}
	for _, level := range []struct {
		high      bool
		volts     float64
		tolerance float64
	}{
		{true, 5, 0.7},
		{false, 0, 0.5},
	} {
		if err := s.out.SetLevel(ctx, level.high); err != nil {
			return err
		}
		if err := s.check(ctx, x, level.volts, level.tolerance); err != nil {
			return err
		}
	}
	return nil
}

func (s *suite) analogOutputMatches(ctx context.Context, x *expect.Expect) error {
	if err := s.out.SetMode(ctx, blade.Analog); err != nil {
		return err
	}
	for _, v := range sweep {
		if err := s.out.SetVoltage(ctx, v); err != nil {
			return err
		}
		if err := s.check(ctx, x, v, 0.3); err != nil {
			return err
		}
	}
	return nil
}

func (s *suite) check(ctx context.Context, x *expect.Expect, want, tolerance float64) error {
	t := time.NewTimer(settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	v, err := s.in.Voltage(ctx)
	if err != nil {
		return err
	}
	x.EqualWithin(v, want, tolerance)
	return nil
}
