package record

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warrior/internal/domain"
)

func TestStartCountsOptimisticPass(t *testing.T) {
	r := New(0)
	r.Start("nominal")
	r.Start("nominal")

	res := r.Results()
	require.Len(t, res, 1)
	assert.Equal(t, 2, res[0].Executions)
	assert.Equal(t, 2, res[0].Passes)
	assert.Equal(t, "nominal", r.Current())
}

func TestFailingExecutionAggregatesCallSite(t *testing.T) {
	r := New(0)
	id := domain.ExpectationID{Kind: "equal", Line: 42}

	r.Start("sweep")
	r.Record(id, true, map[string]any{"actual": 1})
	r.Record(id, false, map[string]any{"actual": 2})
	r.Record(id, true, map[string]any{"actual": 3})
	r.MarkFailed("sweep")

	res := r.Results()
	require.Len(t, res, 1)
	assert.Equal(t, 1, res[0].Executions)
	assert.Equal(t, 0, res[0].Passes)

	e := res[0].Expectation(id)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.Checks)
	assert.Equal(t, 2, e.Passes)
	assert.Len(t, e.Attempts, 3)
}

func TestMarkFailedOncePerExecution(t *testing.T) {
	r := New(0)
	r.Start("a")
	r.MarkFailed("a")
	r.MarkFailed("a")
	r.Start("a")

	res := r.Results()
	assert.Equal(t, 2, res[0].Executions)
	assert.Equal(t, 1, res[0].Passes)
}

func TestMarkFailedUnknownTestIsIgnored(t *testing.T) {
	r := New(0)
	r.MarkFailed("ghost")
	assert.Empty(t, r.Results())
}

func TestRecordOutsideExecutionPanics(t *testing.T) {
	r := New(0)
	assert.Panics(t, func() {
		r.Record(domain.ExpectationID{Kind: "equal", Line: 1}, true, nil)
	})
}

func TestHistoryLimit(t *testing.T) {
	r := New(2)
	id := domain.ExpectationID{Kind: "non_nil", Line: 7}
	r.Start("t")
	for i := 0; i < 5; i++ {
		r.Record(id, true, map[string]any{"i": i})
	}

	e := r.Results()[0].Expectation(id)
	require.NotNil(t, e)
	assert.Equal(t, 5, e.Checks)
	require.Len(t, e.Attempts, 2)
	assert.Equal(t, 3, e.Attempts[0]["i"])
	assert.Equal(t, 4, e.Attempts[1]["i"])
}

func TestResultsAreCopies(t *testing.T) {
	r := New(0)
	id := domain.ExpectationID{Kind: "equal", Line: 3}
	r.Start("t")
	r.Record(id, true, nil)

	snap := r.Results()
	snap[0].Expectations[0].Checks = 100
	r.Record(id, true, nil)

	assert.Equal(t, 2, r.Results()[0].Expectation(id).Checks)
}

func TestReport(t *testing.T) {
	r := New(0)
	eq := domain.ExpectationID{Kind: "equal", Line: 30}
	nn := domain.ExpectationID{Kind: "non_nil", Line: 29}

	for i := 0; i < 3; i++ {
		r.Start("nominal")
		r.Record(nn, true, nil)
	}
	for i := 0; i < 3; i++ {
		r.Start("actuation")
		r.Record(nn, true, nil)
		r.Record(eq, i != 1, nil)
		if i == 1 {
			r.MarkFailed("actuation")
		}
	}

	var buf bytes.Buffer
	require.NoError(t, r.Report(&buf))
	assert.Equal(t,
		"nominal: 3 / 3 (100%)\n"+
			"actuation: 2 / 3 (66%)\n"+
			"  actuation:30 expect.equal: 2 / 3 (66%)\n",
		buf.String())
}
