package main

import (
	"context"
	"math/rand/v2"
	"time"

	"warrior/internal/blade"
	"warrior/internal/domain"
	"warrior/internal/hilt"
	"warrior/internal/usecase/expect"
	"warrior/internal/usecase/runner"
)

// actuator identifies the board under test and how long it holds a
// commanded state without a refresh. Zero means it has no safe-state timer.
type actuator struct {
	board     string
	valve     string
	safeState time.Duration
}

var actuators = map[string]actuator{
	"injector": {board: "ACTUATOR_INJ", valve: "ACTUATOR_INJECTOR_VALVE"},
	"vent":     {board: "ACTUATOR_VENT", valve: "ACTUATOR_VENT_VALVE", safeState: 10 * time.Second},
}

const (
	statusWait = time.Second
	settle     = 500 * time.Millisecond
	resetOdds  = 0.3
)

type suite struct {
	h   *hilt.Hilt
	act actuator

	v12         *blade.AnalogInput
	actuatorOut *blade.AnalogInput
	hall        *blade.Output

	// chance returns a number in [0, 1) for sampled tests.
	chance func() float64
}

func newSuite(ctx context.Context, h *hilt.Hilt, act actuator) (*suite, error) {
	outs, err := blade.NewOutputs(ctx, h.Slot(10))
	if err != nil {
		return nil, err
	}
	ins := blade.NewAnalogInputs(h.Slot(9))
	return &suite{
		h:           h,
		act:         act,
		v12:         ins[0],
		actuatorOut: ins[1],
		hall:        outs[0],
		chance:      rand.Float64,
	}, nil
}

func (s *suite) register(r *runner.Runner) {
	hasSafeState := s.act.safeState > 0

	r.Nominal("nominal", s.nominal)
	r.Test("battery_voltage_sense", s.batteryVoltageSense)
	r.Test("actuator_position", s.actuatorPosition)
	r.Test("batt_voltage_error", s.battVoltageError)
	r.Test("actuator_state_error", s.actuatorStateError)
	r.Test("actuation", s.actuation)
	r.Conditional("safe_state_no_command", runner.Fixed(hasSafeState), s.safeStateNoCommand)
	r.Conditional("safe_state_battery", runner.Fixed(hasSafeState), s.safeStateBattery)
	r.Test("safe_state_bus_down", s.safeStateBusDown)
	r.Conditional("reset", runner.Predicate(func() bool { return s.chance() < resetOdds }), s.reset)
}

func (s *suite) nominal(ctx context.Context, x *expect.Expect) error {
	if err := s.v12.SetConnected(ctx, true); err != nil {
		return err
	}
	if err := s.actuatorOut.SetConnected(ctx, true); err != nil {
		return err
	}
	if err := s.hall.SetMode(ctx, blade.Analog); err != nil {
		return err
	}
	if err := s.hall.SetVoltage(ctx, 2.5); err != nil {
		return err
	}

	v, err := s.v12.Voltage(ctx)
	if err != nil {
		return err
	}
	x.EqualWithin(v, 12, 0.3)

	status, err := s.status(ctx, "GENERAL_BOARD_STATUS", nil)
	if err != nil {
		return err
	}
	x.NonNil(status)
	x.Equal(field(status, "status"), "E_NOMINAL")
	return nil
}

func (s *suite) batteryVoltageSense(ctx context.Context, x *expect.Expect) error {
	msg, err := s.status(ctx, "SENSOR_ANALOG", domain.Criteria{"sensor_id": "SENSOR_BATT_VOLT"})
	if err != nil {
		return err
	}
	x.NonNil(msg)
	v, err := s.v12.Voltage(ctx)
	if err != nil {
		return err
	}
	// Zero voltage is covered by batt_voltage_error.
	x.EqualWithin(milli(msg, "value"), v, 0.5)
	return nil
}

func (s *suite) actuatorPosition(ctx context.Context, x *expect.Expect) error {
	positions := []struct {
		volts float64
		state string
	}{
		{0, "ACTUATOR_OFF"},
		{1.5, "ACTUATOR_OFF"},
		{2.5, "ACTUATOR_ON"},
		{4.0, "ACTUATOR_ON"},
		{4.2, "ACTUATOR_ILLEGAL"},
	}
	for _, p := range positions {
		if err := s.hall.SetVoltage(ctx, p.volts); err != nil {
			return err
		}

		sensor, err := s.status(ctx, "SENSOR_ANALOG", domain.Criteria{"sensor_id": "SENSOR_MAG_1"})
		if err != nil {
			return err
		}
		x.NonNil(sensor)
		x.EqualWithin(milli(sensor, "value"), p.volts, 0.5)

		status, err := s.status(ctx, "ACTUATOR_STATUS", nil)
		if err != nil {
			return err
		}
		x.NonNil(status)
		x.Equal(field(status, "cur_state"), p.state)
	}
	return nil
}

func (s *suite) battVoltageError(ctx context.Context, x *expect.Expect) error {
	if err := s.v12.SetConnected(ctx, false); err != nil {
		return err
	}
	// The pull-up leaks through the flyback diode unless it is disconnected too.
	if err := s.actuatorOut.SetConnected(ctx, false); err != nil {
		return err
	}
	status, err := s.status(ctx, "GENERAL_BOARD_STATUS", domain.Criteria{"status": "E_BATT_UNDER_VOLTAGE"})
	if err != nil {
		return err
	}
	x.NonNil(status)
	x.EqualWithin(milli(status, "voltage"), 0, 0.5)
	return nil
}

func (s *suite) actuatorStateError(ctx context.Context, x *expect.Expect) error {
	if err := s.hall.SetVoltage(ctx, 5.0); err != nil {
		return err
	}
	status, err := s.status(ctx, "GENERAL_BOARD_STATUS", domain.Criteria{"status": "E_ACTUATOR_STATE"})
	if err != nil {
		return err
	}
	x.NonNil(status)
	x.Equal(field(status, "cur_state"), "ACTUATOR_ILLEGAL")
	return nil
}

func (s *suite) actuation(ctx context.Context, x *expect.Expect) error {
	if err := s.command(ctx, "ACTUATOR_ON"); err != nil {
		return err
	}
	if err := s.expectOutput(ctx, x, 0, 0.5); err != nil {
		return err
	}
	if err := s.command(ctx, "ACTUATOR_OFF"); err != nil {
		return err
	}
	// A 10k pull-up against the board's 20k keeps the released line below 5V.
	return s.expectOutput(ctx, x, 5, 2)
}

func (s *suite) safeStateNoCommand(ctx context.Context, x *expect.Expect) error {
	if err := s.command(ctx, "ACTUATOR_ON"); err != nil {
		return err
	}
	if err := s.expectOutput(ctx, x, 0, 0.5); err != nil {
		return err
	}
	if err := pause(ctx, s.act.safeState-time.Second); err != nil {
		return err
	}
	if err := s.readOutput(ctx, x, 0, 0.5); err != nil {
		return err
	}
	if err := pause(ctx, time.Second); err != nil {
		return err
	}
	return s.readOutput(ctx, x, 5, 2)
}

func (s *suite) safeStateBattery(ctx context.Context, x *expect.Expect) error {
	if err := s.command(ctx, "ACTUATOR_ON"); err != nil {
		return err
	}
	if err := s.expectOutput(ctx, x, 0, 0.5); err != nil {
		return err
	}
	if err := s.v12.SetConnected(ctx, false); err != nil {
		return err
	}
	return s.expectOutput(ctx, x, 5, 2)
}

func (s *suite) safeStateBusDown(ctx context.Context, x *expect.Expect) error {
	if err := s.command(ctx, "ACTUATOR_ON"); err != nil {
		return err
	}
	if err := s.expectOutput(ctx, x, 0, 0.5); err != nil {
		return err
	}
	if err := s.h.Send(ctx, "GENERAL_CMD", map[string]any{"command": "BUS_DOWN_WARNING"}); err != nil {
		return err
	}
	return s.expectOutput(ctx, x, 5, 2)
}

func (s *suite) reset(ctx context.Context, x *expect.Expect) error {
	if err := s.h.Send(ctx, "RESET_CMD", map[string]any{"reset_board_id": s.act.board}); err != nil {
		return err
	}
	status, err := s.status(ctx, "GENERAL_BOARD_STATUS", nil)
	if err != nil {
		return err
	}
	x.NonNil(status)
	// A fresh boot reports a timestamp within its first second.
	x.EqualWithin(status.Time, 0, 1)
	return nil
}

// status waits for a message of msgType from the board under test.
func (s *suite) status(ctx context.Context, msgType string, extra domain.Criteria) (*domain.BusMessage, error) {
	criteria := domain.Criteria{domain.KeyBoardID: s.act.board, domain.KeyMsgType: msgType}
	for k, v := range extra {
		criteria[k] = v
	}
	return s.h.Receive(ctx, statusWait, criteria)
}

func (s *suite) command(ctx context.Context, state string) error {
	return s.h.Send(ctx, "ACTUATOR_CMD", map[string]any{"actuator": s.act.valve, "req_state": state})
}

// expectOutput lets the relay settle, then checks the actuator output voltage.
func (s *suite) expectOutput(ctx context.Context, x *expect.Expect, want, tolerance float64) error {
	if err := pause(ctx, settle); err != nil {
		return err
	}
	return s.readOutput(ctx, x, want, tolerance)
}

func (s *suite) readOutput(ctx context.Context, x *expect.Expect, want, tolerance float64) error {
	v, err := s.actuatorOut.Voltage(ctx)
	if err != nil {
		return err
	}
	x.EqualWithin(v, want, tolerance)
	return nil
}

func field(msg *domain.BusMessage, key string) any {
	v, _ := msg.Lookup(key)
	return v
}

// milli converts a millivolt payload field to volts.
func milli(msg *domain.BusMessage, key string) float64 {
	v, _ := msg.Number(key)
	return v / 1000
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
