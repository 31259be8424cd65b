// Package runner loops over registered bench tests until stopped.
//
// Every normal or conditional test is gated behind the nominal tests: the
// whole nominal set runs before each test and is retried until every
// nominal passes. A failed expectation fails only its own test. On stop the
// nominal set runs once more to return the bench to a safe state and the
// report is written.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"warrior/internal/domain"
	"warrior/internal/infra/config"
	"warrior/internal/infra/tracer"
	"warrior/internal/usecase/expect"
	"warrior/internal/usecase/record"
)

// idleWait is how long a pass that executed nothing waits before the next.
const idleWait = 50 * time.Millisecond

// Body is a test. It fails by a failed expectation; a returned error is
// unanticipated and stops the run.
type Body func(ctx context.Context, x *expect.Expect) error

// Condition decides whether a conditional test runs in a pass.
type Condition struct {
	fixed bool
	pred  func() bool
}

// Fixed is a condition decided once, at registration.
func Fixed(run bool) Condition { return Condition{fixed: run} }

// Predicate is a condition evaluated again on every pass.
func Predicate(fn func() bool) Condition { return Condition{pred: fn} }

func (c Condition) eval() bool {
	if c.pred != nil {
		return c.pred()
	}
	return c.fixed
}

// Sink receives operator-facing progress lines.
type Sink interface {
	LogLine(text string)
}

type registration struct {
	name string
	kind domain.TestKind
	cond Condition
	body Body
}

// Option configures a Runner.
type Option func(*Runner)

// WithEventBus publishes run lifecycle events on bus.
func WithEventBus(bus domain.EventBus) Option {
	return func(r *Runner) { r.bus = bus }
}

// Runner schedules registered tests.
type Runner struct {
	cfg    config.RunnerConfig
	rec    *record.Recorder
	x      *expect.Expect
	sink   Sink
	bus    domain.EventBus
	logger *slog.Logger
	runID  string
	pace   *rate.Limiter

	nominals []*registration
	tests    []*registration
	names    map[string]bool
}

// New creates a Runner recording into rec.
func New(rec *record.Recorder, sink Sink, logger *slog.Logger, cfg config.RunnerConfig, opts ...Option) *Runner {
	limit := rate.Inf
	if cfg.Pacing > 0 {
		limit = rate.Every(cfg.Pacing)
	}
	r := &Runner{
		cfg:    cfg,
		rec:    rec,
		x:      expect.New(rec),
		sink:   sink,
		logger: logger,
		runID:  newID(),
		pace:   rate.NewLimiter(limit, 1),
		names:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID identifies this run in events and stored results.
func (r *Runner) RunID() string { return r.runID }

// Nominal registers a health check that gates every other test.
func (r *Runner) Nominal(name string, body Body) {
	r.nominals = append(r.nominals, r.register(name, domain.KindNominal, Fixed(true), body))
}

// Test registers a test that runs on every pass.
func (r *Runner) Test(name string, body Body) {
	r.tests = append(r.tests, r.register(name, domain.KindNormal, Fixed(true), body))
}

// Conditional registers a test that runs on passes where cond holds.
func (r *Runner) Conditional(name string, cond Condition, body Body) {
	r.tests = append(r.tests, r.register(name, domain.KindConditional, cond, body))
}

func (r *Runner) register(name string, kind domain.TestKind, cond Condition, body Body) *registration {
	if name == "" || body == nil {
		panic("runner: test needs a name and a body")
	}
	if r.names[name] {
		panic(fmt.Sprintf("runner: test %q registered twice", name))
	}
	r.names[name] = true
	return &registration{name: name, kind: kind, cond: cond, body: body}
}

// Run loops over the registered tests until ctx is cancelled, then runs the
// nominal set once and writes the report to report. An error returned by a
// test body ends the run immediately without cleanup.
func (r *Runner) Run(ctx context.Context, report io.Writer) error {
	r.logger.Info("run started", "run_id", r.runID,
		"nominal", len(r.nominals), "tests", len(r.tests))
	r.publish(ctx, domain.EventRunStarted, nil)

	for ctx.Err() == nil {
		executed, err := r.pass(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return err
		}
		if !executed {
			if err := sleep(ctx, idleWait); err != nil {
				break
			}
		}
	}

	r.logger.Info("run interrupted, returning bench to nominal", "run_id", r.runID)
	r.cleanup(ctx)
	r.publish(context.WithoutCancel(ctx), domain.EventRunStopped, nil)
	return r.rec.Report(report)
}

// pass runs each registered test once, in registration order.
func (r *Runner) pass(ctx context.Context) (bool, error) {
	executed := false
	for _, t := range r.tests {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}
		if !t.cond.eval() {
			r.sink.LogLine(fmt.Sprintf("Skipping %s.", t.name))
			r.publish(ctx, domain.EventTestSkipped, domain.ExecutionPayload{Test: t.name, Kind: t.kind})
			continue
		}
		if err := r.gate(ctx, t.name); err != nil {
			return executed, err
		}
		if err := r.waitPace(ctx); err != nil {
			return executed, err
		}
		if _, err := r.execute(ctx, t); err != nil {
			return executed, err
		}
		executed = true
	}
	return executed, nil
}

// gate runs the full nominal set until every nominal passes in one attempt.
func (r *Runner) gate(ctx context.Context, next string) error {
	if len(r.nominals) == 0 {
		return nil
	}
	for attempt := 1; ; attempt++ {
		ok := true
		for _, n := range r.nominals {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			passed, err := r.execute(ctx, n)
			if err != nil {
				return err
			}
			ok = ok && passed
		}
		if ok {
			if attempt > 1 {
				r.publish(ctx, domain.EventGatePassed, domain.ExecutionPayload{Test: next})
			}
			return nil
		}

		r.logger.Warn("nominal gate blocked", "test", next, "attempt", attempt)
		r.publish(ctx, domain.EventGateBlocked, domain.ExecutionPayload{Test: next})
		if err := sleep(ctx, r.cfg.NominalRetry); err != nil {
			return err
		}
	}
}

// cleanup runs every nominal once, ignoring the stop that triggered it.
func (r *Runner) cleanup(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if r.cfg.CleanupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.CleanupTimeout)
		defer cancel()
	}
	for _, n := range r.nominals {
		if _, err := r.execute(ctx, n); err != nil {
			r.logger.Warn("cleanup test errored", "test", n.name, "error", err)
		}
	}
}

// execute runs one test body and records its outcome. It reports whether
// the test passed; the error is the body's own.
func (r *Runner) execute(ctx context.Context, t *registration) (bool, error) {
	r.rec.Start(t.name)
	r.sink.LogLine(fmt.Sprintf("Executing %s...", t.name))
	r.publish(ctx, domain.EventTestStarted, domain.ExecutionPayload{Test: t.name, Kind: t.kind})

	spanCtx, span := tracer.StartSpan(ctx, "test."+t.name, trace.WithAttributes(
		tracer.StringAttr("test.name", t.name),
		tracer.StringAttr("test.kind", string(t.kind)),
		tracer.StringAttr("run.id", r.runID),
	))
	defer span.End()

	start := time.Now()
	failure, err := expect.Catch(func() error { return t.body(spanCtx, r.x) })
	elapsed := time.Since(start)

	switch {
	case failure != nil:
		r.rec.MarkFailed(t.name)
		r.sink.LogLine(fmt.Sprintf("%s FAILED! %s at line %d", t.name, failure.Message, failure.ID.Line))
		span.SetAttributes(tracer.StringAttr("test.outcome", "failed"), tracer.IntAttr("expect.line", failure.ID.Line))
		tracer.SetFailed(span, failure.Error())
		r.publish(ctx, domain.EventTestFailed, domain.ExecutionPayload{
			Test: t.name, Kind: t.kind, Expectation: failure.ID, Message: failure.Message, Duration: elapsed,
		})
		return false, nil

	case err != nil:
		r.rec.MarkFailed(t.name)
		span.SetAttributes(tracer.StringAttr("test.outcome", "error"))
		tracer.RecordError(span, err)
		if ctx.Err() != nil {
			r.sink.LogLine(fmt.Sprintf("%s interrupted.", t.name))
		} else {
			r.sink.LogLine(fmt.Sprintf("%s ERROR! %v", t.name, err))
		}
		r.publish(ctx, domain.EventTestFailed, domain.ExecutionPayload{
			Test: t.name, Kind: t.kind, Message: err.Error(), Duration: elapsed,
		})
		return false, fmt.Errorf("test %s: %w", t.name, err)

	default:
		r.sink.LogLine(fmt.Sprintf("%s PASSED!", t.name))
		span.SetAttributes(tracer.StringAttr("test.outcome", "passed"))
		tracer.SetOK(span)
		r.publish(ctx, domain.EventTestPassed, domain.ExecutionPayload{Test: t.name, Kind: t.kind, Duration: elapsed})
		return true, nil
	}
}

func (r *Runner) publish(ctx context.Context, eventType domain.EventType, payload any) {
	if r.bus == nil {
		return
	}
	var data json.RawMessage
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			r.logger.Warn("event payload not encodable", "event", string(eventType), "error", err)
			return
		}
	}
	r.bus.Publish(context.WithoutCancel(ctx), domain.Event{
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     r.runID,
		Payload:   data,
	})
}

// waitPace holds consecutive tests at least cfg.Pacing apart.
func (r *Runner) waitPace(ctx context.Context) error {
	res := r.pace.Reserve()
	if err := sleep(ctx, res.Delay()); err != nil {
		res.Cancel()
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
