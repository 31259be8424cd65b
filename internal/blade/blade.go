// Package blade models the dual-channel boards plugged into tester slots.
package blade

import (
	"context"
	"fmt"

	"warrior/internal/domain"
	"warrior/internal/hilt"
)

// Mode selects how an Output drives its line.
type Mode bool

const (
	Digital Mode = false
	Analog  Mode = true
)

func (m Mode) String() string {
	if m == Analog {
		return "analog"
	}
	return "digital"
}

const (
	// Current sense amplifiers are biased to mid-rail.
	senseOffset = 1.65

	outputAmpsPerVolt = 0.2 / 3
	inputAmpsPerVolt  = 1.25

	// Input divider: 115k over 15k.
	inputDividerRatio = 115.0 / 15.0
)

type outputDrive interface {
	hilt.Writable
	hilt.AnalogWritable
}

// Output is one output channel: a PWM-capable drive pin, a current-sense
// pin and a mode-select pin.
type Output struct {
	drive outputDrive
	sense hilt.AnalogReadable
	sel   hilt.Writable
	mode  Mode
}

// NewOutputs returns both output channels of slot, put in digital mode.
func NewOutputs(ctx context.Context, slot *hilt.Slot) ([2]*Output, error) {
	var outs [2]*Output
	for i := range outs {
		outs[i] = &Output{drive: slot.PWM[i], sense: slot.Analog[i], sel: slot.Digital[i]}
		if err := outs[i].SetMode(ctx, Digital); err != nil {
			return outs, fmt.Errorf("slot %d output %d: %w", slot.Number, i, err)
		}
	}
	return outs, nil
}

// Mode returns the current drive mode.
func (o *Output) Mode() Mode { return o.mode }

// SetMode switches the channel between digital and analog drive.
func (o *Output) SetMode(ctx context.Context, m Mode) error {
	if err := o.sel.Write(ctx, bool(m)); err != nil {
		return err
	}
	o.mode = m
	return nil
}

// SetLevel drives the output high or low. The channel must be in digital mode.
func (o *Output) SetLevel(ctx context.Context, high bool) error {
	if o.mode != Digital {
		return domain.NewDomainError("blade.SetLevel", domain.ErrWrongMode, "output is in analog mode")
	}
	return o.drive.Write(ctx, high)
}

// SetVoltage drives the output to a voltage. The channel must be in analog mode.
func (o *Output) SetVoltage(ctx context.Context, v float64) error {
	if o.mode != Analog {
		return domain.NewDomainError("blade.SetVoltage", domain.ErrWrongMode, "output is in digital mode")
	}
	return o.drive.WriteVoltage(ctx, v)
}

// Current returns the output current in amps.
func (o *Output) Current(ctx context.Context) (float64, error) {
	v, err := o.sense.ReadVoltage(ctx)
	if err != nil {
		return 0, err
	}
	return (v - senseOffset) * outputAmpsPerVolt, nil
}

// AnalogInput is one measurement channel: a divided voltage input, a
// current-sense pin and a connect relay.
type AnalogInput struct {
	voltage hilt.AnalogReadable
	sense   hilt.AnalogReadable
	relay   hilt.Writable
}

// NewAnalogInputs returns both input channels of slot.
func NewAnalogInputs(slot *hilt.Slot) [2]*AnalogInput {
	var ins [2]*AnalogInput
	for i := range ins {
		ins[i] = &AnalogInput{voltage: slot.PWM[i], sense: slot.Analog[i], relay: slot.Digital[i]}
	}
	return ins
}

// SetConnected closes or opens the channel's relay.
func (a *AnalogInput) SetConnected(ctx context.Context, connected bool) error {
	return a.relay.Write(ctx, connected)
}

// Voltage returns the measured input voltage.
func (a *AnalogInput) Voltage(ctx context.Context) (float64, error) {
	v, err := a.voltage.ReadVoltage(ctx)
	if err != nil {
		return 0, err
	}
	return v * inputDividerRatio, nil
}

// Current returns the input current in amps.
func (a *AnalogInput) Current(ctx context.Context) (float64, error) {
	v, err := a.sense.ReadVoltage(ctx)
	if err != nil {
		return 0, err
	}
	return (v - senseOffset) * inputAmpsPerVolt, nil
}
