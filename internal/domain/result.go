package domain

import "fmt"

// TestKind classifies a registered test.
type TestKind string

const (
	KindNominal     TestKind = "nominal"
	KindConditional TestKind = "conditional"
	KindNormal      TestKind = "normal"
)

// ExpectationID identifies one assertion call site. It is stable across
// repeated invocations at the same line, so loops aggregate into one entry.
type ExpectationID struct {
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

func (id ExpectationID) String() string {
	return fmt.Sprintf("expect.%s:%d", id.Kind, id.Line)
}

// IsZero reports whether id is unset.
func (id ExpectationID) IsZero() bool { return id.Kind == "" && id.Line == 0 }

// ExpectationResult aggregates every check made at one call site.
type ExpectationResult struct {
	ID       ExpectationID    `json:"id"`
	Checks   int              `json:"checks"`
	Passes   int              `json:"passes"`
	Attempts []map[string]any `json:"attempts,omitempty"`
}

// TestResult aggregates every execution of one test.
type TestResult struct {
	Test         string               `json:"test"`
	Executions   int                  `json:"executions"`
	Passes       int                  `json:"passes"`
	Expectations []*ExpectationResult `json:"expectations"`
}

// Expectation returns the result for id, or nil.
func (r *TestResult) Expectation(id ExpectationID) *ExpectationResult {
	for _, e := range r.Expectations {
		if e.ID == id {
			return e
		}
	}
	return nil
}
