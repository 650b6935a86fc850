package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when a query check fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // "agreement" or "expect"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// assertAgreement checks that the backend and the evaluator returned the
// same ids in the same order.
func assertAgreement(backend, evaluator []any) error {
	if sameIDs(backend, evaluator) {
		return nil
	}
	return &AssertionError{
		Type:     "agreement",
		Expected: "backend " + formatIDs(backend),
		Actual:   "evaluator " + formatIDs(evaluator),
	}
}

// assertExpected checks the backend ids against the scenario's expected
// ids.
func assertExpected(expect, backend []any) error {
	if sameIDs(expect, backend) {
		return nil
	}
	return &AssertionError{
		Type:     "expect",
		Expected: formatIDs(expect),
		Actual:   formatIDs(backend),
	}
}

// sameIDs compares ids by their printed form, so an id written as 7 in
// YAML equals the int64 7 read back from SQLite.
func sameIDs(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if fmt.Sprint(a[i]) != fmt.Sprint(b[i]) {
			return false
		}
	}
	return true
}

func formatIDs(ids []any) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
