// Package app wires a connected tester, the test runner and their ambient
// services for the suite binaries and the probe CLI.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"warrior/internal/adapter/codec"
	"warrior/internal/adapter/serialport"
	"warrior/internal/adapter/store"
	"warrior/internal/adapter/tui/monitor"
	"warrior/internal/domain"
	"warrior/internal/hilt"
	"warrior/internal/infra/config"
	"warrior/internal/infra/logger"
	"warrior/internal/infra/tracer"
	"warrior/internal/usecase/eventbus"
	"warrior/internal/usecase/record"
	"warrior/internal/usecase/runner"
	"warrior/internal/usecase/scheduling"
)

// Options controls Open.
type Options struct {
	ConfigPath string
	// Plain forces the logger sink even when the config asks for the monitor.
	Plain bool
	// Transport replaces the serial port, for tests.
	Transport hilt.Transport
	// Lister replaces serial port enumeration.
	Lister serialport.Lister
}

// Bench is a connected tester plus everything a suite needs.
type Bench struct {
	Config   *config.Config
	Logger   *slog.Logger
	Hilt     *hilt.Hilt
	Codec    *codec.Codec
	Recorder *record.Recorder
	Runner   *runner.Runner

	sink    hilt.Sink
	bus     *eventbus.Bus
	store   *store.Store
	sched   *scheduling.Scheduler
	monitor *monitor.Monitor
	monErr  chan error

	mu        sync.Mutex
	interrupt context.CancelFunc

	stopHilt context.CancelFunc
	closers  []func() error
}

// Open loads the config, connects to the tester and starts its reader.
func Open(ctx context.Context, opts Options) (b *Bench, err error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	b = &Bench{Config: cfg}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	// 1. Operator sink and logger
	if cfg.UI.Mode == "tui" && !opts.Plain {
		b.monitor = monitor.New(b.onInterrupt)
		b.monErr = make(chan error, 1)
		go func() { b.monErr <- b.monitor.Run() }()
		b.sink = b.monitor
		b.Logger = logger.NewWriter(&lineWriter{sink: b.monitor}, cfg.Logger)
	} else {
		log, closeLog, err := logger.New(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		b.closers = append(b.closers, closeLog)
		b.Logger = log
		b.sink = hilt.NewLogSink(logger.Component(log, "operator"))
	}

	// 2. Tracer
	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	b.closers = append(b.closers, func() error { return shutdown(context.Background()) })

	// 3. Bus codec
	if cfg.Codec.Schema != "" {
		if b.Codec, err = codec.Load(cfg.Codec.Schema); err != nil {
			return nil, fmt.Errorf("codec: %w", err)
		}
	} else {
		b.Codec = codec.Default()
	}

	// 4. Tester
	t := opts.Transport
	if t == nil {
		list := opts.Lister
		if list == nil {
			list = serialport.List
		}
		name, err := serialport.Resolve(list, cfg.Serial)
		if err != nil {
			return nil, err
		}
		port, err := serialport.Open(name, cfg.Serial)
		if err != nil {
			return nil, err
		}
		b.Logger.Info("tester connected", "port", name, "baud", cfg.Serial.Baud)
		t = port
	}
	b.Hilt = hilt.New(t, b.Codec, b.sink, logger.Component(b.Logger, "hilt"), cfg.Driver)
	b.closers = append(b.closers, b.Hilt.Close)
	hiltCtx, stopHilt := context.WithCancel(context.WithoutCancel(ctx))
	b.stopHilt = stopHilt
	b.Hilt.Start(hiltCtx)

	// 5. Event bus, results and runner
	b.bus = eventbus.New(logger.Component(b.Logger, "eventbus"))
	if b.monitor != nil {
		b.monitor.Follow(b.bus)
	}
	if cfg.Results.Enabled {
		if b.store, err = store.Open(cfg.Results.Path); err != nil {
			return nil, err
		}
		b.store.Journal(b.bus, logger.Component(b.Logger, "store"))
	}
	b.Recorder = record.New(cfg.Results.HistoryLimit)
	b.Runner = runner.New(b.Recorder, b.sink, logger.Component(b.Logger, "runner"), cfg.Runner,
		runner.WithEventBus(b.bus))

	// 6. Interim reports
	if cfg.Runner.ReportEvery != "" {
		b.sched = scheduling.NewScheduler(logger.Component(b.Logger, "scheduler"))
		var w io.Writer = os.Stdout
		if b.monitor != nil {
			w = &lineWriter{sink: b.monitor}
		}
		if err := b.Runner.ScheduleReports(b.sched, cfg.Runner.ReportEvery, w); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Sink returns the operator output sink.
func (b *Bench) Sink() hilt.Sink { return b.sink }

// Run runs the registered suite until SIGINT, SIGTERM, Ctrl+C in the
// monitor, or ctx is done, then writes the report to out and saves the
// results.
func (b *Bench) Run(ctx context.Context, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	b.mu.Lock()
	b.interrupt = cancel
	b.mu.Unlock()

	// A tester that goes away ends the run like an operator stop.
	go func() {
		select {
		case <-b.Hilt.Done():
			b.Logger.Error("tester link lost", "error", b.Hilt.Err())
			cancel()
		case <-ctx.Done():
		}
	}()

	if b.sched != nil {
		b.sched.Start(ctx)
	}

	var report bytes.Buffer
	runErr := b.Runner.Run(ctx, &report)

	if b.sched != nil {
		b.sched.Stop()
	}
	if b.store != nil {
		if err := b.store.SaveRun(context.WithoutCancel(ctx), b.Runner.RunID(), b.Recorder.Results()); err != nil {
			b.Logger.Error("save results", "error", err)
		}
	}
	b.stopMonitor()

	if _, err := io.Copy(out, &report); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Close releases the tester and every service. It is safe to call twice.
func (b *Bench) Close() error {
	b.stopMonitor()
	if b.bus != nil {
		b.bus.Close()
		b.bus = nil
	}
	if b.store != nil {
		b.closers = append(b.closers, b.store.Close)
		b.store = nil
	}
	if b.stopHilt != nil {
		b.stopHilt()
	}
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Bench) onInterrupt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.interrupt != nil {
		b.interrupt()
	}
}

func (b *Bench) stopMonitor() {
	if b.monitor == nil {
		return
	}
	b.monitor.Quit()
	<-b.monErr
	b.monitor = nil
}

// lineWriter splits written text into sink lines.
type lineWriter struct {
	sink hilt.Sink
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		w.sink.LogLine(line)
	}
	return len(p), nil
}
