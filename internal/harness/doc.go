// Package harness runs YAML conformance scenarios against services built
// from manifests.
//
// # Scenario Format
//
//	name: calc_basics
//	description: "What this scenario validates"
//	specs:
//	  - ../../examples/calc
//	steps:
//	  - call: {path: /com/example/calc, method: Add, args: [2, 3]}
//	    expect:
//	      reply: [5]
//	  - call: {path: /com/example/calc, method: Notify, args: [hi]}
//	    expect:
//	      reply: []
//	      signals: [Notified]
//	  - call: {path: /com/example/calc, method: Divide, args: [1, 0], no_reply: true}
//	    expect:
//	      silent: true
//	assertions:
//	  - type: trace_count
//	    member: Add
//	    count: 1
//	  - type: final_state
//	    path: /com/example/calc
//	    interface: com.example.Calc
//	    property: Precision
//	    value: 2
//
// Call arguments are converted using the method's declared signature.
// Variants, in arguments and in expected bodies, are written as
// {sig: <signature>, value: <value>}.
//
// # Assertion Types
//
//   - trace_contains: an event with the given kind and member (and body)
//   - trace_order: members first appear in the given order
//   - trace_count: a member appears exactly N times
//   - final_state: a stored property value or an object's call count
//
// Trace assertions match call events unless kind is set to reply, error
// or signal.
//
// # Deterministic Testing
//
// Every step is dispatched through a loop.Loop journaling into an
// in-memory SQLite database, with a deterministic clock and sequential
// dispatch ids. The trace is read back from the journal, so identical
// scenarios produce identical traces for golden comparison.
package harness
