// Package expect provides the assertions test bodies use against the bench.
//
// A failed expectation records its outcome and then panics with a *Failure,
// ending the test body the way t.FailNow ends a Go test. The runner recovers
// it with Catch. Misuse of an assertion panics with a *UsageError, which
// Catch does not recover.
package expect

import (
	"fmt"
	"math"
	"reflect"
	"runtime"

	"warrior/internal/domain"
)

// Assertion kinds, as they appear in expectation identities.
const (
	KindEqual  = "equal"
	KindNonNil = "non_nil"
)

// Recorder receives every check.
type Recorder interface {
	Record(id domain.ExpectationID, passed bool, attempt map[string]any)
}

// Failure is the panic value of a failed expectation.
type Failure struct {
	ID      domain.ExpectationID
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s at line %d", f.Message, f.ID.Line)
}

// UsageError is the panic value of an assertion called with invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return "expect: " + e.Message }

// Expect checks values and reports to a Recorder.
type Expect struct {
	rec Recorder
}

// New creates an Expect reporting to rec.
func New(rec Recorder) *Expect {
	return &Expect{rec: rec}
}

// Equal checks actual == expected. Numbers compare by value regardless of
// their Go type.
func (x *Expect) Equal(actual, expected any) {
	x.equal(callerLine(), actual, expected, 0)
}

// EqualWithin checks |actual - expected| <= tolerance. A non-zero tolerance
// with a non-numeric expected value is a usage error.
func (x *Expect) EqualWithin(actual, expected any, tolerance float64) {
	x.equal(callerLine(), actual, expected, tolerance)
}

// NonNil checks that v is present. Typed nil pointers, maps, slices and
// the like count as absent.
func (x *Expect) NonNil(v any) {
	id := domain.ExpectationID{Kind: KindNonNil, Line: callerLine()}
	passed := !isNil(v)
	x.rec.Record(id, passed, map[string]any{"data": v})
	if !passed {
		panic(&Failure{ID: id, Message: "got nil"})
	}
}

func (x *Expect) equal(line int, actual, expected any, tolerance float64) {
	id := domain.ExpectationID{Kind: KindEqual, Line: line}
	if tolerance < 0 || math.IsNaN(tolerance) {
		panic(&UsageError{Message: fmt.Sprintf("invalid tolerance %v", tolerance)})
	}

	var passed bool
	var msg string
	if want, ok := domain.AsFloat(expected); ok {
		got, ok := domain.AsFloat(actual)
		if ok {
			passed = math.Abs(got-want) <= tolerance
			msg = fmt.Sprintf("%v != %v", actual, expected)
			if tolerance != 0 {
				msg = fmt.Sprintf("%v != %v ± %v", actual, expected, tolerance)
			}
		} else {
			msg = fmt.Sprintf("%v (%T) is not a number", actual, actual)
		}
	} else {
		if tolerance != 0 {
			panic(&UsageError{Message: fmt.Sprintf("cannot have non-zero tolerance (%v) when comparing non-numeric values", tolerance)})
		}
		passed = domain.ValuesEqual(actual, expected) || reflect.DeepEqual(actual, expected)
		msg = fmt.Sprintf("%v != %v", actual, expected)
	}

	x.rec.Record(id, passed, map[string]any{"actual": actual, "expected": expected, "tolerance": tolerance})
	if !passed {
		panic(&Failure{ID: id, Message: msg})
	}
}

// Catch runs fn and returns the expectation failure that ended it, if any.
// Other panics propagate.
func Catch(fn func() error) (failure *Failure, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, ok := r.(*Failure)
			if !ok {
				panic(r)
			}
			failure = f
		}
	}()
	return nil, fn()
}

// callerLine returns the line of the test code that called the exported
// assertion invoking it.
func callerLine() int {
	_, _, line, ok := runtime.Caller(2)
	if !ok {
		return 0
	}
	return line
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
