package loop

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/journal"
	"github.com/roach88/crossroads/internal/testutil"
)

const echoIface = "com.example.Echo"

type echo struct{}

var discard = slog.New(slog.DiscardHandler)

func newEchoCrossroads(t *testing.T) *dispatch.Crossroads {
	t.Helper()
	cr := dispatch.New(dispatch.WithLogger(discard))
	tok := dispatch.Register(cr, echoIface, func(b *dispatch.IfaceBuilder[echo]) {
		b.Method("Echo", dispatch.Args("in", "s"), dispatch.Args("out", "s"),
			func(ctx *dispatch.Context, _ *echo, body []any) ([]any, error) {
				return body, nil
			})
		b.MethodRaw("Later", nil, nil, func(ctx *dispatch.Context, _ *dispatch.Crossroads) *dispatch.Context {
			return nil
		})
		b.MethodRaw("Boom", nil, nil, func(ctx *dispatch.Context, _ *dispatch.Crossroads) *dispatch.Context {
			panic("boom")
		})
	})
	require.NoError(t, dispatch.Insert(cr, "/echo", []dispatch.IfaceToken[echo]{tok}, echo{}))
	return cr
}

func call(member string, body ...any) *dbus.Message {
	return dispatch.NewMethodCall("/echo", echoIface, member, body...)
}

func newTestLoop(t *testing.T, s dispatch.Sender, opts ...Option) *Loop {
	t.Helper()
	opts = append([]Option{
		WithLogger(discard),
		WithIDGenerator(testutil.NewSequentialIDGenerator("d")),
		WithClock(testutil.NewDeterministicClock()),
	}, opts...)
	l, err := New(newEchoCrossroads(t), s, opts...)
	require.NoError(t, err)
	return l
}

func TestLoop_DispatchOutcomes(t *testing.T) {
	unknown := dispatch.NewMethodCall("/nowhere", echoIface, "Echo", "x")
	silent := call("Echo", "x")
	silent.Flags |= dbus.FlagNoReplyExpected
	silentBadArgs := call("Echo", int32(1))
	silentBadArgs.Flags |= dbus.FlagNoReplyExpected

	tests := []struct {
		name      string
		msg       *dbus.Message
		failOn    int
		outcome   ir.Outcome
		errorName string
		sent      int
	}{
		{name: "reply", msg: call("Echo", "hi"), outcome: ir.OutcomeOK, sent: 1},
		{name: "no reply expected", msg: silent, outcome: ir.OutcomeOK, sent: 0},
		{name: "error reply", msg: unknown, outcome: ir.OutcomeErrorReply, errorName: dispatch.ErrNameUnknownObject, sent: 1},
		{name: "bad args", msg: call("Echo", int32(1)), outcome: ir.OutcomeErrorReply, errorName: dispatch.ErrNameInvalidArgs, sent: 1},
		{name: "error with no reply expected", msg: silentBadArgs, outcome: ir.OutcomeSilentError, errorName: dispatch.ErrNameInvalidArgs, sent: 0},
		{name: "signal dropped", msg: dispatch.NewSignal("/echo", echoIface, "Ping"), outcome: ir.OutcomeDropped},
		{name: "nil dropped", msg: nil, outcome: ir.OutcomeDropped},
		{name: "deferred", msg: call("Later"), outcome: ir.OutcomeDeferred},
		{name: "send failed", msg: call("Echo", "hi"), failOn: 1, outcome: ir.OutcomeSendFailed},
		{name: "panic", msg: call("Boom"), outcome: ir.OutcomePanicked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &testutil.CaptureSender{FailOn: tt.failOn}
			l := newTestLoop(t, s)

			res := l.Dispatch(t.Context(), tt.msg)

			assert.Equal(t, "d-0001", res.ID)
			assert.Equal(t, int64(1), res.Seq)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.errorName, res.ErrorName)
			assert.Len(t, s.Sent(), tt.sent)
		})
	}
}

func TestLoop_PanicLeavesHandlerUsable(t *testing.T) {
	s := &testutil.CaptureSender{}
	l := newTestLoop(t, s)

	first := l.Dispatch(t.Context(), call("Boom"))
	second := l.Dispatch(t.Context(), call("Boom"))

	var pe *PanicError
	require.ErrorAs(t, first.Err, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.Equal(t, ir.OutcomePanicked, second.Outcome, "handler was given back after the first panic")
}

func TestLoop_Journal(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	s := &testutil.CaptureSender{}
	l := newTestLoop(t, s, WithJournal(store))
	ctx := t.Context()

	l.Dispatch(ctx, call("Echo", "hi"))
	l.Dispatch(ctx, dispatch.NewMethodCall("/nowhere", echoIface, "Echo", "x"))

	dispatches, err := store.ListDispatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, dispatches, 2)

	assert.Equal(t, "d-0001", dispatches[0].ID)
	assert.Equal(t, ir.OutcomeOK, dispatches[0].Outcome)
	assert.Equal(t, ir.IRArray{ir.IRString("hi")}, dispatches[0].Body)
	assert.Equal(t, ir.OutcomeErrorReply, dispatches[1].Outcome)
	assert.Equal(t, dispatch.ErrNameUnknownObject, dispatches[1].ErrorName)

	msgs, err := store.ReadMessages(ctx, "d-0001")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ir.KindReply, msgs[0].Kind)
	assert.Equal(t, ir.IRArray{ir.IRString("hi")}, msgs[0].Body)

	msgs, err = store.ReadMessages(ctx, "d-0002")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, ir.KindError, msgs[0].Kind)
}

func TestLoop_JournalResumesClock(t *testing.T) {
	store, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	first, err := New(newEchoCrossroads(t), &testutil.CaptureSender{}, WithJournal(store), WithLogger(discard))
	require.NoError(t, err)
	first.Dispatch(t.Context(), call("Echo", "a"))
	first.Dispatch(t.Context(), call("Echo", "b"))

	second, err := New(newEchoCrossroads(t), &testutil.CaptureSender{}, WithJournal(store), WithLogger(discard))
	require.NoError(t, err)
	res := second.Dispatch(t.Context(), call("Echo", "c"))
	assert.Equal(t, int64(3), res.Seq)
}

func TestLoop_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	l := newTestLoop(t, &testutil.CaptureSender{}, WithMetrics(m))

	l.Dispatch(t.Context(), call("Echo", "a"))
	l.Dispatch(t.Context(), call("Echo", "b"))
	l.Dispatch(t.Context(), dispatch.NewSignal("/echo", echoIface, "Ping"))

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.dispatches.WithLabelValues(string(ir.OutcomeOK))))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.dispatches.WithLabelValues(string(ir.OutcomeDropped))))
	assert.Equal(t, 1, promtestutil.CollectAndCount(m.duration))

	count, err := promtestutil.GatherAndCount(reg, "crossroads_dispatches_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoop_RunProcessesInOrderAndStops(t *testing.T) {
	s := &testutil.CaptureSender{}
	l := newTestLoop(t, s)

	for _, word := range []string{"one", "two", "three"} {
		require.True(t, l.Enqueue(call("Echo", word)))
	}

	done := make(chan error, 1)
	go func() { done <- l.Run(t.Context()) }()

	require.Eventually(t, func() bool { return len(s.Sent()) == 3 }, time.Second, 5*time.Millisecond)
	l.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	sent := s.Sent()
	assert.Equal(t, []any{"one"}, sent[0].Body)
	assert.Equal(t, []any{"two"}, sent[1].Body)
	assert.Equal(t, []any{"three"}, sent[2].Body)
	assert.False(t, l.Enqueue(call("Echo", "late")))
}

func TestLoop_RunStopsOnCancel(t *testing.T) {
	l := newTestLoop(t, &testutil.CaptureSender{})
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestLoop_DefaultIDsAreUUIDv7(t *testing.T) {
	l, err := New(newEchoCrossroads(t), &testutil.CaptureSender{}, WithLogger(discard))
	require.NoError(t, err)

	res := l.Dispatch(t.Context(), call("Echo", "x"))
	assert.Len(t, res.ID, 36)
	assert.Equal(t, int64(1), res.Seq)
}
