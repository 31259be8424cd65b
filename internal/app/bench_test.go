package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warrior/internal/adapter/serialport"
	"warrior/internal/adapter/store"
	"warrior/internal/domain"
	"warrior/internal/hilt/hilttest"
	"warrior/internal/usecase/expect"
)

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "warrior.yaml")
	body := fmt.Sprintf(`
driver:
  reply_timeout: 20ms
runner:
  nominal_retry: 1ms
%s
results:
  enabled: true
  path: %s
logger:
  output: %s
`, extra, filepath.Join(dir, "results.db"), filepath.Join(dir, "warrior.log"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBenchRunsSuiteAndSavesResults(t *testing.T) {
	dir := t.TempDir()
	fake := hilttest.NewBench()
	fake.SetDigital("9d", true)

	b, err := Open(context.Background(), Options{ConfigPath: writeConfig(t, dir, ""), Transport: fake})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b.Runner.Nominal("nominal", func(context.Context, *expect.Expect) error { return nil })
	b.Runner.Test("relay", func(ctx context.Context, x *expect.Expect) error {
		high, err := b.Hilt.Slot(10).Digital[0].Read(ctx)
		if err != nil {
			return err
		}
		x.Equal(high, true)
		cancel()
		return nil
	})

	var out bytes.Buffer
	require.NoError(t, b.Run(ctx, &out))
	runID := b.Runner.RunID()
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Contains(t, out.String(), "relay: 1 / 1 (100%)")
	assert.Contains(t, out.String(), "nominal: 2 / 2 (100%)")

	s, err := store.Open(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	defer s.Close()

	results, err := s.Results(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	execs, err := s.Executions(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, execs, 3)

	run, err := s.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.False(t, run.StoppedAt.IsZero())
}

func TestOpenWithoutTester(t *testing.T) {
	dir := t.TempDir()
	none := func() ([]serialport.Info, error) { return nil, nil }

	_, err := Open(context.Background(), Options{ConfigPath: writeConfig(t, dir, ""), Lister: none})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHiltNotFound)
}

func TestOpenRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "  report_every: soon")

	fake := hilttest.NewBench()
	_, err := Open(context.Background(), Options{ConfigPath: cfg, Transport: fake})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schedule")
}

func TestOpenRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warrior.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ui:\n  mode: fancy\n"), 0o600))

	_, err := Open(context.Background(), Options{ConfigPath: path, Transport: hilttest.NewBench()})
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfigLoad, domain.ErrorCodeOf(err))
	assert.Contains(t, err.Error(), "ui.mode")
}

func TestLineWriterSplitsLines(t *testing.T) {
	sink := &collectSink{}
	w := &lineWriter{sink: sink}
	report := "a: 1 / 1 (100%)\n  a:3 expect.equal: 0 / 1 (0%)\n"
	n, err := w.Write([]byte(report))
	require.NoError(t, err)
	assert.Equal(t, len(report), n)
	assert.Equal(t, []string{"a: 1 / 1 (100%)", "  a:3 expect.equal: 0 / 1 (0%)"}, sink.lines)
}

type collectSink struct {
	lines []string
}

func (s *collectSink) LogLine(text string)     { s.lines = append(s.lines, text) }
func (s *collectSink) LogBusFrame(text string) {}
