package hilt

import (
	"fmt"
	"math"
	"strings"
)

// Frame tags and the terminator of the tester's ASCII line protocol.
const (
	TagDigitalReply byte = 'G'
	TagAnalogReply  byte = 'N'
	TagBusMessage   byte = 'M'
	Terminator      byte = ';'
)

// Pin role letters, indexed by channel (0 or 1).
const (
	digitalRoles = "de"
	analogRoles  = "ab"
	pwmRoles     = "pq"
)

// MaxDuty is the largest duty value the tester accepts.
const MaxDuty = 99

// Selector is the (slot index, pin role) address carried in commands and replies.
type Selector string

// PinID identifies a physical pin: its 1-based slot number and role letter.
type PinID struct {
	Slot int
	Role byte
}

// Selector returns the wire address of the pin. Slot indices are 0-based on the wire.
func (id PinID) Selector() Selector {
	return Selector(fmt.Sprintf("%d%c", id.Slot-1, id.Role))
}

func (id PinID) String() string {
	return fmt.Sprintf("%d%c", id.Slot, id.Role)
}

func digitalReadCmd(sel Selector) []byte {
	return []byte(";d" + string(sel) + ";")
}

func analogReadCmd(sel Selector) []byte {
	return []byte(";a" + string(sel) + ";")
}

func digitalWriteCmd(sel Selector, high bool) []byte {
	level := '0'
	if high {
		level = '1'
	}
	return []byte(fmt.Sprintf(";e%s%c;", sel, level))
}

func pwmWriteCmd(sel Selector, channel, duty int) []byte {
	return []byte(fmt.Sprintf(";b%s%d%02d;", sel, channel, duty))
}

func busSendCmd(id uint16, data []byte) []byte {
	hex := make([]string, len(data))
	for i, b := range data {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	return []byte(fmt.Sprintf("m%03X,%s;", id, strings.Join(hex, ",")))
}

// PWMDuty converts a voltage to the tester's duty value, floor(v * 99 / maxVoltage).
// The result is not clamped.
func PWMDuty(voltage, maxVoltage float64) int {
	return int(math.Floor(voltage * MaxDuty / maxVoltage))
}

// CodeToVoltage converts a raw ADC code to volts.
func CodeToVoltage(code, fullScale int, reference float64) float64 {
	return float64(code) / float64(fullScale) * reference
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
