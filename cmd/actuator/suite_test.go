package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warrior/internal/adapter/codec"
	"warrior/internal/domain"
	"warrior/internal/hilt"
	"warrior/internal/hilt/hilttest"
	"warrior/internal/infra/config"
	"warrior/internal/usecase/expect"
	"warrior/internal/usecase/record"
)

// twelveVolts is the ADC code the divided 12V input reads as.
const twelveVolts = 1943

func newTestSuite(t *testing.T, act actuator) (*suite, *hilttest.Bench) {
	t.Helper()
	bench := hilttest.NewBench()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults().Driver
	cfg.ReplyTimeout = 200 * time.Millisecond
	h := hilt.New(bench, codec.Default(), hilt.NewLogSink(logger), logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = h.Close()
		<-h.Done()
	})

	s, err := newSuite(context.Background(), h, act)
	require.NoError(t, err)
	return s, bench
}

// broadcast injects msg every few milliseconds until the test ends, like a
// board publishing its status.
func broadcast(t *testing.T, bench *hilttest.Bench, msg domain.BusMessage) {
	t.Helper()
	id, data, err := codec.Default().Encode(msg)
	require.NoError(t, err)
	hex := make([]string, len(data))
	for i, b := range data {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	frame := fmt.Sprintf("M%03X,%s;", id, strings.Join(hex, ","))

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				bench.Inject(frame)
			case <-done:
				return
			}
		}
	}()
}

func runBody(body func(context.Context, *expect.Expect) error) (*expect.Failure, error) {
	rec := record.New(0)
	rec.Start("body")
	x := expect.New(rec)
	return expect.Catch(func() error { return body(context.Background(), x) })
}

func TestNewSuitePutsHallOutputInDigitalMode(t *testing.T) {
	_, bench := newTestSuite(t, actuators["vent"])
	assert.Equal(t, []string{"e9d0", "e9e0"}, bench.Commands())
}

func TestNominalPasses(t *testing.T) {
	s, bench := newTestSuite(t, actuators["vent"])
	bench.SetAnalog("8p", twelveVolts)
	broadcast(t, bench, domain.BusMessage{Type: "GENERAL_BOARD_STATUS", BoardID: "ACTUATOR_VENT", Data: map[string]any{
		"status": "E_NOMINAL", "voltage": 12000, "cur_state": "ACTUATOR_OFF",
	}})

	failure, err := runBody(s.nominal)
	require.NoError(t, err)
	assert.Nil(t, failure)

	assert.Equal(t, 1, bench.CountPrefix("e8d1"), "12V relay closed")
	assert.Equal(t, 1, bench.CountPrefix("e8e1"), "pull-up relay closed")
	assert.Equal(t, 1, bench.CountPrefix("e9d1"), "hall output in analog mode")
	assert.Equal(t, 1, bench.CountPrefix("b9p"), "hall output driven")
}

func TestNominalIgnoresOtherBoards(t *testing.T) {
	s, bench := newTestSuite(t, actuators["injector"])
	bench.SetAnalog("8p", twelveVolts)
	broadcast(t, bench, domain.BusMessage{Type: "GENERAL_BOARD_STATUS", BoardID: "ACTUATOR_VENT", Data: map[string]any{
		"status": "E_NOMINAL", "voltage": 12000, "cur_state": "ACTUATOR_OFF",
	}})

	failure, err := runBody(s.nominal)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, expect.KindNonNil, failure.ID.Kind)
}

func TestNominalRejectsLowSupply(t *testing.T) {
	s, bench := newTestSuite(t, actuators["vent"])
	bench.SetAnalog("8p", twelveVolts/2)

	failure, err := runBody(s.nominal)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, expect.KindEqual, failure.ID.Kind)
}

func TestBatteryVoltageSense(t *testing.T) {
	s, bench := newTestSuite(t, actuators["vent"])
	bench.SetAnalog("8p", twelveVolts)
	broadcast(t, bench, domain.BusMessage{Type: "SENSOR_ANALOG", BoardID: "ACTUATOR_VENT", Data: map[string]any{
		"sensor_id": "SENSOR_BATT_VOLT", "value": 11800,
	}})

	failure, err := runBody(s.batteryVoltageSense)
	require.NoError(t, err)
	assert.Nil(t, failure)
}

func TestResetChecksBootTime(t *testing.T) {
	s, bench := newTestSuite(t, actuators["vent"])
	broadcast(t, bench, domain.BusMessage{Type: "GENERAL_BOARD_STATUS", BoardID: "ACTUATOR_VENT", Time: 0.25, Data: map[string]any{
		"status": "E_NOMINAL", "voltage": 12000, "cur_state": "ACTUATOR_OFF",
	}})

	failure, err := runBody(s.reset)
	require.NoError(t, err)
	assert.Nil(t, failure)
	assert.Equal(t, 1, bench.CountPrefix("m0A0,"))
}

func TestPauseStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pause(ctx, time.Hour), context.Canceled)
	assert.NoError(t, pause(context.Background(), 0))
}
