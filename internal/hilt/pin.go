package hilt

import "context"

// Readable is a pin whose digital level can be sampled.
type Readable interface {
	Read(ctx context.Context) (bool, error)
}

// Writable is a pin that can be driven to a digital level.
type Writable interface {
	Write(ctx context.Context, high bool) error
}

// AnalogReadable is a pin whose voltage can be sampled.
type AnalogReadable interface {
	ReadVoltage(ctx context.Context) (float64, error)
}

// AnalogWritable is a pin that can drive a PWM-encoded voltage.
type AnalogWritable interface {
	WriteVoltage(ctx context.Context, voltage float64) error
}

var (
	_ Readable       = (*Pin)(nil)
	_ Writable       = (*Pin)(nil)
	_ AnalogReadable = (*AnalogPin)(nil)
	_ AnalogReadable = (*PWMPin)(nil)
	_ AnalogWritable = (*PWMPin)(nil)
)

// Pin is a digital pin on a slot.
type Pin struct {
	h  *Hilt
	id PinID
}

// ID returns the pin's identity.
func (p *Pin) ID() PinID { return p.id }

// Read samples the pin's digital level. Any PWM channel held by the pin is released.
func (p *Pin) Read(ctx context.Context) (bool, error) {
	return p.h.digitalRead(ctx, p.id)
}

// Write drives the pin to a digital level. Any PWM channel held by the pin is released.
func (p *Pin) Write(ctx context.Context, high bool) error {
	return p.h.digitalWrite(ctx, p.id, high)
}

// AnalogPin is a pin with an ADC behind it.
type AnalogPin struct {
	Pin
}

// ReadVoltage samples the pin in volts.
func (p *AnalogPin) ReadVoltage(ctx context.Context) (float64, error) {
	return p.h.analogRead(ctx, p.id)
}

// PWMPin is an analog pin that can also be driven from the PWM channel pool.
type PWMPin struct {
	AnalogPin
}

// WriteVoltage allocates a PWM channel if the pin holds none and sets its duty
// for the given voltage. Voltages outside 0..max are logged and clamped.
func (p *PWMPin) WriteVoltage(ctx context.Context, voltage float64) error {
	return p.h.analogWrite(ctx, p.id, voltage)
}

// Slot is one physical bay: two PWM-capable pins, two analog pins and two
// digital pins, indexed 0 and 1.
type Slot struct {
	Number  int
	PWM     [2]*PWMPin
	Analog  [2]*AnalogPin
	Digital [2]*Pin
}

func newSlot(h *Hilt, n int) *Slot {
	s := &Slot{Number: n}
	for i := 0; i < 2; i++ {
		s.PWM[i] = &PWMPin{AnalogPin{Pin{h: h, id: PinID{Slot: n, Role: pwmRoles[i]}}}}
		s.Analog[i] = &AnalogPin{Pin{h: h, id: PinID{Slot: n, Role: analogRoles[i]}}}
		s.Digital[i] = &Pin{h: h, id: PinID{Slot: n, Role: digitalRoles[i]}}
	}
	return s
}
