package harness

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/service"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s", i+1, event.Kind, event.Member)
			if event.ErrorName != "" {
				fmt.Fprintf(&buf, " %s", event.ErrorName)
			}
			fmt.Fprintf(&buf, "\n")
		}
	}
	return buf.String()
}

func kindOf(a Assertion) string {
	if a.Kind == "" {
		return ir.KindCall
	}
	return a.Kind
}

// assertTraceContains checks for an event of the given kind and member,
// with an exactly matching body when one is given.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	kind := kindOf(a)
	for _, event := range trace {
		if event.Kind != kind || event.Member != a.Member {
			continue
		}
		if a.Body == nil {
			return nil
		}
		if ok, _, err := irBodyMatches(event.Body, a.Body); err == nil && ok {
			return nil
		}
	}

	expected := fmt.Sprintf("%s %s", kind, a.Member)
	if a.Body != nil {
		expected += fmt.Sprintf(" with body %v", a.Body)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the members appear
// in the given order. Other events may be interleaved.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	kind := kindOf(a)
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Kind != kind {
			continue
		}
		if _, seen := positions[event.Member]; !seen {
			positions[event.Member] = i + 1
		}
	}

	for _, member := range a.Members {
		if positions[member] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all members present: %v", a.Members),
				Actual:   fmt.Sprintf("missing member: %s", member),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Members); i++ {
		prev, curr := a.Members[i-1], a.Members[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("members in order: %v", a.Members),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the member occurs exactly Count times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	kind := kindOf(a)
	count := 0
	for _, event := range trace {
		if event.Kind == kind && event.Member == a.Member {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s %s", a.Count, kind, a.Member),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks a stored property value or the call count of
// one object after all steps ran.
func assertFinalState(svc *service.Service, a Assertion) error {
	state, ok := svc.State(dbus.ObjectPath(a.Path))
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("object at %s", a.Path),
			Actual:   "object not found",
		}
	}

	if a.Calls != nil && state.Calls != *a.Calls {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d calls served by %s", *a.Calls, a.Path),
			Actual:   fmt.Sprintf("%d calls", state.Calls),
		}
	}
	if a.Property == "" {
		return nil
	}

	value, ok := state.Property(a.Interface, a.Property)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("property %s.%s at %s", a.Interface, a.Property, a.Path),
			Actual:   "property not stored",
		}
	}
	match, got, err := bodyMatches([]any{value}, []any{a.Value})
	if err != nil {
		return fmt.Errorf("final_state %s.%s: %w", a.Interface, a.Property, err)
	}
	if !match {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s.%s = %v", a.Interface, a.Property, a.Value),
			Actual:   fmt.Sprintf("%s.%s = %s", a.Interface, a.Property, strings.Trim(got, "[]")),
		}
	}
	return nil
}

// AssertionContext gives final_state assertions access to the service.
type AssertionContext struct {
	Service *service.Service
}

// EvaluateAssertions evaluates all assertions and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Service == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a service", i)
			} else {
				err = assertFinalState(actx.Service, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
