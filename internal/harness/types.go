package harness

import "github.com/roach88/crossroads/internal/ir"

// TraceEvent is one entry of a scenario trace: an inbound call, or a
// message the service sent while handling it.
type TraceEvent struct {
	Step      int        `json:"step"`
	Kind      string     `json:"kind"` // "call", "reply", "error" or "signal"
	Seq       int64      `json:"seq"`
	Path      string     `json:"path,omitempty"`
	Interface string     `json:"interface,omitempty"`
	Member    string     `json:"member,omitempty"`
	ErrorName string     `json:"error_name,omitempty"`
	Body      ir.IRArray `json:"body"`

	// Outcome is set on call events only.
	Outcome string `json:"outcome,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists every call and every sent message, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddDispatchTrace appends the call event of a journaled dispatch.
func (r *Result) AddDispatchTrace(step int, d ir.Dispatch) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:      step,
		Kind:      ir.KindCall,
		Seq:       d.Seq,
		Path:      d.Path,
		Interface: d.Interface,
		Member:    d.Member,
		Body:      d.Body,
		Outcome:   string(d.Outcome),
	})
}

// AddMessageTrace appends a message sent during a dispatch.
func (r *Result) AddMessageTrace(step int, m ir.MessageRecord) {
	r.Trace = append(r.Trace, TraceEvent{
		Step:      step,
		Kind:      m.Kind,
		Seq:       m.Seq,
		Path:      m.Path,
		Interface: m.Interface,
		Member:    m.Member,
		ErrorName: m.ErrorName,
		Body:      m.Body,
	})
}
