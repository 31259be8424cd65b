package hilt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPWMDutyFloorAndMonotonic(t *testing.T) {
	prev := -1
	for i := 0; i <= 500; i++ {
		v := float64(i) / 100
		d := PWMDuty(v, 5)
		assert.Equal(t, int(math.Floor(v*99/5)), d, "v=%v", v)
		assert.GreaterOrEqual(t, d, prev, "v=%v", v)
		assert.True(t, d >= 0 && d <= MaxDuty, "v=%v duty=%d", v, d)
		prev = d
	}
	assert.Equal(t, 49, PWMDuty(2.5, 5))
	assert.Equal(t, 99, PWMDuty(5, 5))
}

func TestCodeToVoltage(t *testing.T) {
	for c := 0; c < 4096; c++ {
		assert.Equal(t, float64(c)/4096*3.3, CodeToVoltage(c, 4096, 3.3))
	}
	assert.InDelta(t, 1.65, CodeToVoltage(2048, 4096, 3.3), 1e-12)
}

func TestCommandEncoding(t *testing.T) {
	sel := PinID{Slot: 10, Role: 'q'}.Selector()
	assert.Equal(t, Selector("9q"), sel)
	assert.Equal(t, "10q", PinID{Slot: 10, Role: 'q'}.String())

	assert.Equal(t, ";d9q;", string(digitalReadCmd(sel)))
	assert.Equal(t, ";a9q;", string(analogReadCmd(sel)))
	assert.Equal(t, ";e9q1;", string(digitalWriteCmd(sel, true)))
	assert.Equal(t, ";e9q0;", string(digitalWriteCmd(sel, false)))
	assert.Equal(t, ";b9q307;", string(pwmWriteCmd(sel, 3, 7)))
	assert.Equal(t, "m0C2,00,00,00,01,01;", string(busSendCmd(0x0C2, []byte{0, 0, 0, 1, 1})))
	assert.Equal(t, "m060,;", string(busSendCmd(0x060, nil)))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-4, 0, MaxDuty))
	assert.Equal(t, 50, clamp(50, 0, MaxDuty))
	assert.Equal(t, MaxDuty, clamp(118, 0, MaxDuty))
}
