package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
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
	"warrior/internal/usecase/runner"
)

func newTestSuite(t *testing.T) (*suite, *hilttest.Bench) {
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

	s, err := newSuite(context.Background(), h)
	require.NoError(t, err)
	return s, bench
}

func statusFrame(t *testing.T, board string) string {
	t.Helper()
	id, data, err := codec.Default().Encode(domain.BusMessage{Type: "GENERAL_BOARD_STATUS", BoardID: board, Data: map[string]any{
		"status": "E_NOMINAL", "voltage": 12000, "cur_state": "ACTUATOR_OFF",
	}})
	require.NoError(t, err)
	hex := make([]string, len(data))
	for i, b := range data {
		hex[i] = fmt.Sprintf("%02X", b)
	}
	return fmt.Sprintf("M%03X,%s;", id, strings.Join(hex, ","))
}

func broadcast(t *testing.T, bench *hilttest.Bench, frame string) {
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

// loopback wires slot 10 output A to slot 9 input A: reads of the input
// follow the last level or duty driven on the output.
func loopback(bench *hilttest.Bench) {
	var mu sync.Mutex
	volts := 0.0
	bench.Respond(func(cmd string) (string, bool) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case cmd == "e9p1":
			volts = 5
		case cmd == "e9p0":
			volts = 0
		case strings.HasPrefix(cmd, "b9p") && len(cmd) == 6:
			var duty int
			fmt.Sscanf(cmd[4:], "%02d", &duty)
			volts = float64(duty) * 5 / hilt.MaxDuty
		case cmd == "a8p":
			code := int(volts*15/115/3.3*4096 + 0.5)
			return fmt.Sprintf("N8p%05d;", code), true
		}
		return "", false
	})
}

func runBody(body func(context.Context, *expect.Expect) error) (*expect.Failure, error) {
	rec := record.New(0)
	rec.Start("body")
	x := expect.New(rec)
	return expect.Catch(func() error { return body(context.Background(), x) })
}

func TestGetsCANMessage(t *testing.T) {
	s, bench := newTestSuite(t)
	broadcast(t, bench, statusFrame(t, "ANY"))

	failure, err := runBody(s.getsCANMessage)
	require.NoError(t, err)
	assert.Nil(t, failure)
}

func TestLoopbackOutputs(t *testing.T) {
	s, bench := newTestSuite(t)
	loopback(bench)

	failure, err := runBody(s.digitalOutputMatches)
	require.NoError(t, err)
	assert.Nil(t, failure)

	failure, err = runBody(s.analogOutputMatches)
	require.NoError(t, err)
	assert.Nil(t, failure)
}

func TestLoopbackDetectsOpenJumper(t *testing.T) {
	s, _ := newTestSuite(t)

	failure, err := runBody(s.digitalOutputMatches)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, expect.KindEqual, failure.ID.Kind)
}

type nopSink struct{}

func (nopSink) LogLine(string) {}

func TestRegisterSkipsLoopbackByDefault(t *testing.T) {
	s, bench := newTestSuite(t)
	broadcast(t, bench, statusFrame(t, "ANY"))

	rec := record.New(0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := runner.New(rec, nopSink{}, logger, config.RunnerConfig{NominalRetry: time.Millisecond})
	s.register(r, false)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	var report bytes.Buffer
	require.NoError(t, r.Run(ctx, &report))

	results := rec.Results()
	require.Len(t, results, 1)
	assert.Equal(t, "gets_can_message", results[0].Test)
	assert.Positive(t, results[0].Passes)
}
