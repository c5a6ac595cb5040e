package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/journal"
	"github.com/roach88/crossroads/internal/loop"
	"github.com/roach88/crossroads/internal/manifest"
	"github.com/roach88/crossroads/internal/service"
	"github.com/roach88/crossroads/internal/testutil"
)

// Harness runs the steps of one scenario. Every call goes through a Loop
// with a journal, so the trace is read back from what was recorded.
type Harness struct {
	svc    *service.Service
	loop   *loop.Loop
	store  *journal.Store
	sender *testutil.CaptureSender
	logger *slog.Logger
}

// Run executes a scenario and returns its result.
//
// Each run gets a fresh service and an in-memory journal. Dispatch ids and
// seqs are deterministic ("dispatch-0001", 1, 2, ...), so traces can be
// compared against golden files.
//
// The returned error reports problems running the scenario (unloadable
// specs, unbuildable calls); failed expectations are recorded in the
// Result.
func Run(scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.DiscardHandler)

	m, errs := manifest.LoadAll(scenario.Specs...)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load specs: %w", errors.Join(errs...))
	}
	svc, err := service.Build(m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}

	st, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer st.Close()

	sender := &testutil.CaptureSender{}
	lp, err := loop.New(svc.Crossroads, sender,
		loop.WithJournal(st),
		loop.WithClock(testutil.NewDeterministicClock()),
		loop.WithIDGenerator(testutil.NewSequentialIDGenerator("dispatch")),
		loop.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create loop: %w", err)
	}

	h := &Harness{
		svc:    svc,
		loop:   lp,
		store:  st,
		sender: sender,
		logger: logger,
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	actx := &AssertionContext{Service: svc}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	msg, err := h.svc.BuildCall(step.Call)
	if err != nil {
		return fmt.Errorf("build call: %w", err)
	}

	h.sender.Reset()
	res := h.loop.Dispatch(ctx, msg)
	if err := h.trace(ctx, i, res.ID, result); err != nil {
		return err
	}

	if step.Expect != nil {
		for _, e := range checkExpect(step.Expect, res, h.sender.Sent()) {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Call.Method, e))
		}
	}

	h.logger.Debug("step completed",
		"step", i,
		"member", step.Call.Method,
		"dispatch_id", res.ID,
		"outcome", res.Outcome,
	)
	return nil
}

// trace appends the journaled dispatch and its messages to the result.
func (h *Harness) trace(ctx context.Context, step int, id string, result *Result) error {
	d, err := h.store.ReadDispatch(ctx, id)
	if err != nil {
		return fmt.Errorf("read dispatch %s: %w", id, err)
	}
	msgs, err := h.store.ReadMessages(ctx, id)
	if err != nil {
		return fmt.Errorf("read messages of %s: %w", id, err)
	}
	result.AddDispatchTrace(step, d)
	for _, m := range msgs {
		result.AddMessageTrace(step, m)
	}
	return nil
}

// checkExpect compares what a step sent with its expect clause and returns
// one message per mismatch.
func checkExpect(e *Expect, res loop.Result, sent []*dbus.Message) []string {
	var errs []string
	if e.Outcome != "" && string(res.Outcome) != e.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %s", e.Outcome, res.Outcome))
	}
	if e.Silent {
		if len(sent) > 0 {
			errs = append(errs, fmt.Sprintf("expected nothing sent, got %d messages", len(sent)))
		}
		return errs
	}

	var reply *dbus.Message
	var signals []string
	for _, m := range sent {
		switch m.Type {
		case dbus.TypeMethodReply, dbus.TypeError:
			if reply == nil {
				reply = m
			}
		case dbus.TypeSignal:
			signals = append(signals, testutil.Member(m))
		}
	}

	if e.Error != "" {
		if reply == nil || reply.Type != dbus.TypeError || testutil.ErrorName(reply) != e.Error {
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", e.Error, describe(reply)))
		}
	}
	if e.Reply != nil {
		if reply == nil || reply.Type != dbus.TypeMethodReply {
			errs = append(errs, fmt.Sprintf("expected reply, got %s", describe(reply)))
		} else if ok, got, err := bodyMatches(reply.Body, e.Reply); err != nil {
			errs = append(errs, err.Error())
		} else if !ok {
			errs = append(errs, fmt.Sprintf("expected reply body %v, got %s", e.Reply, got))
		}
	}
	if e.Signals != nil && !slices.Equal(signals, e.Signals) {
		errs = append(errs, fmt.Sprintf("expected signals %v, got %v", e.Signals, signals))
	}
	return errs
}

func describe(msg *dbus.Message) string {
	switch {
	case msg == nil:
		return "nothing"
	case msg.Type == dbus.TypeError:
		return "error " + testutil.ErrorName(msg)
	}
	return "reply"
}

// bodyMatches compares a sent body with expected values in canonical form.
// It also returns the canonical JSON of the sent body.
func bodyMatches(body []any, expected []any) (bool, string, error) {
	got, err := ir.FromBody(body)
	if err != nil {
		return false, "", fmt.Errorf("sent body: %w", err)
	}
	return irBodyMatches(got, expected)
}

func irBodyMatches(got ir.IRArray, expected []any) (bool, string, error) {
	gotJSON, err := ir.MarshalCanonical(got)
	if err != nil {
		return false, "", fmt.Errorf("sent body: %w", err)
	}
	want, err := ir.FromGo(normalizeExpected(expected))
	if err != nil {
		return false, string(gotJSON), fmt.Errorf("expected body: %w", err)
	}
	wantJSON, err := ir.MarshalCanonical(want)
	if err != nil {
		return false, string(gotJSON), fmt.Errorf("expected body: %w", err)
	}
	return bytes.Equal(gotJSON, wantJSON), string(gotJSON), nil
}

// normalizeExpected rewrites YAML values into the forms FromBody produces.
// Floats become their shortest decimal string, as doubles do.
func normalizeExpected(v any) any {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeExpected(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeExpected(item)
		}
		return out
	}
	return v
}
