// Package record accumulates pass/fail statistics per test and per
// expectation call site.
package record

import (
	"fmt"
	"io"
	"sync"

	"warrior/internal/domain"
)

// Recorder holds results for every test executed in a run. Executions are
// counted as passing when they start and corrected by MarkFailed.
type Recorder struct {
	mu           sync.Mutex
	historyLimit int
	order        []string
	results      map[string]*domain.TestResult
	current      string
	failed       bool
}

// New creates a recorder keeping at most historyLimit attempts per
// expectation; zero keeps all of them.
func New(historyLimit int) *Recorder {
	return &Recorder{
		historyLimit: historyLimit,
		results:      make(map[string]*domain.TestResult),
	}
}

// Start begins an execution of test.
func (r *Recorder) Start(test string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[test]
	if !ok {
		res = &domain.TestResult{Test: test}
		r.results[test] = res
		r.order = append(r.order, test)
	}
	res.Executions++
	res.Passes++
	r.current = test
	r.failed = false
}

// MarkFailed withdraws the pass counted for the in-flight execution of test.
// Repeated calls for the same execution have no further effect.
func (r *Recorder) MarkFailed(test string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[test]
	if !ok || (test == r.current && r.failed) {
		return
	}
	res.Passes--
	if test == r.current {
		r.failed = true
	}
}

// Record adds one check of id to the in-flight test.
func (r *Recorder) Record(id domain.ExpectationID, passed bool, attempt map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.results[r.current]
	if !ok {
		panic(fmt.Sprintf("record: %s checked outside a test execution", id))
	}
	e := res.Expectation(id)
	if e == nil {
		e = &domain.ExpectationResult{ID: id}
		res.Expectations = append(res.Expectations, e)
	}
	e.Checks++
	if passed {
		e.Passes++
	}
	e.Attempts = append(e.Attempts, attempt)
	if r.historyLimit > 0 && len(e.Attempts) > r.historyLimit {
		e.Attempts = append(e.Attempts[:0:0], e.Attempts[len(e.Attempts)-r.historyLimit:]...)
	}
}

// Current returns the test in flight, or "" before the first Start.
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Results returns a copy of every test's results in first-execution order.
func (r *Recorder) Results() []domain.TestResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.TestResult, 0, len(r.order))
	for _, name := range r.order {
		res := r.results[name]
		cp := domain.TestResult{
			Test:         res.Test,
			Executions:   res.Executions,
			Passes:       res.Passes,
			Expectations: make([]*domain.ExpectationResult, len(res.Expectations)),
		}
		for i, e := range res.Expectations {
			ec := *e
			ec.Attempts = append([]map[string]any(nil), e.Attempts...)
			cp.Expectations[i] = &ec
		}
		out = append(out, cp)
	}
	return out
}

// Report writes the summary: one line per test and one line per call site
// that failed at least once.
func (r *Recorder) Report(w io.Writer) error {
	for _, res := range r.Results() {
		if _, err := fmt.Fprintf(w, "%s: %d / %d (%d%%)\n", res.Test, res.Passes, res.Executions, percent(res.Passes, res.Executions)); err != nil {
			return err
		}
		for _, e := range res.Expectations {
			if e.Passes == e.Checks {
				continue
			}
			if _, err := fmt.Fprintf(w, "  %s:%d expect.%s: %d / %d (%d%%)\n",
				res.Test, e.ID.Line, e.ID.Kind, e.Passes, e.Checks, percent(e.Passes, e.Checks)); err != nil {
				return err
			}
		}
	}
	return nil
}

func percent(n, d int) int {
	if d == 0 {
		return 0
	}
	return n * 100 / d
}
