package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
	"github.com/roach88/crossroads/internal/journal"
)

// Result describes one processed message.
type Result struct {
	ID        string
	Seq       int64
	Outcome   ir.Outcome
	ErrorName string

	// Err is what HandleMessage returned, or the recovered panic.
	Err error
}

// Loop feeds inbound messages to a Crossroads from a single goroutine.
//
// Thread-safety model:
//   - Enqueue, Stop: safe from any goroutine
//   - Run, Dispatch: must not be called concurrently with each other
type Loop struct {
	cr      *dispatch.Crossroads
	sender  dispatch.Sender
	queue   *messageQueue
	clock   Clock
	ids     IDGenerator
	logger  *slog.Logger
	metrics *Metrics

	store    *journal.Store
	recorder *journal.Recorder

	// Guards Dispatch against accidental concurrent use.
	mu sync.Mutex
}

// Option configures a Loop.
type Option func(*Loop)

// WithJournal records every dispatch and everything it sends in store. The
// default clock resumes after the journal's last seq.
func WithJournal(store *journal.Store) Option {
	return func(l *Loop) { l.store = store }
}

// WithMetrics reports dispatch counts and durations to m.
func WithMetrics(m *Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// WithIDGenerator replaces the UUIDv7 dispatch id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Loop) { l.ids = g }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithClock replaces the logical clock.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// New creates a Loop routing into cr and replying through sender.
func New(cr *dispatch.Crossroads, sender dispatch.Sender, opts ...Option) (*Loop, error) {
	l := &Loop{
		cr:     cr,
		sender: sender,
		queue:  newMessageQueue(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.store != nil {
		l.recorder = journal.NewRecorder(sender, l.store, l.logger)
		l.sender = l.recorder
		if l.clock == nil {
			last, err := l.store.LastSeq(context.Background())
			if err != nil {
				return nil, fmt.Errorf("resume clock: %w", err)
			}
			l.clock = NewLogicalClockAt(last)
		}
	}
	if l.clock == nil {
		l.clock = NewLogicalClock()
	}
	return l, nil
}

// Enqueue submits msg for processing by Run. Returns false once the loop
// has been stopped.
func (l *Loop) Enqueue(msg *dbus.Message) bool {
	ok := l.queue.Enqueue(msg)
	l.metrics.setQueueDepth(l.queue.Len())
	return ok
}

// Stop closes the queue. Run drains what is already queued and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Run processes queued messages until ctx is cancelled or Stop is called.
// Must be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop starting")

	for {
		if msg, ok := l.queue.TryDequeue(); ok {
			l.metrics.setQueueDepth(l.queue.Len())
			l.Dispatch(ctx, msg)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()
		case <-l.queue.Wait():
			if l.queue.Len() == 0 && l.queue.Closed() {
				l.logger.Info("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Dispatch processes one message synchronously and reports how it ended.
func (l *Loop) Dispatch(ctx context.Context, msg *dbus.Message) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := Result{ID: l.ids.Generate(), Seq: l.clock.Next()}
	journaled := l.begin(ctx, res, msg)

	tally := &replyTally{next: l.sender}
	start := time.Now()
	res.Err = l.handle(msg, tally)
	elapsed := time.Since(start)

	res.Outcome, res.ErrorName = classify(res.Err, msg, tally.replied)
	l.metrics.observe(res.Outcome, elapsed)

	if journaled {
		l.recorder.End()
		if err := l.store.CompleteDispatch(ctx, res.ID, res.Outcome, res.ErrorName); err != nil {
			l.logger.Error("journal complete failed", "dispatch_id", res.ID, "error", err)
		}
	}

	attrs := []any{
		"dispatch_id", res.ID,
		"seq", res.Seq,
		"outcome", res.Outcome,
	}
	if msg != nil {
		attrs = append(attrs,
			"path", dispatch.HeaderString(msg, dbus.FieldPath),
			"member", dispatch.HeaderString(msg, dbus.FieldMember),
		)
	}
	switch res.Outcome {
	case ir.OutcomeSendFailed, ir.OutcomePanicked:
		l.logger.Error("dispatch failed", append(attrs, "error", res.Err)...)
	default:
		l.logger.Debug("dispatch finished", append(attrs, "error_name", res.ErrorName)...)
	}
	return res
}

// begin journals the inbound message as pending and points the recorder at
// it. Reports whether the dispatch is being journaled.
func (l *Loop) begin(ctx context.Context, res Result, msg *dbus.Message) bool {
	if l.store == nil || msg == nil {
		return false
	}
	d, err := ir.RecordDispatch(res.ID, res.Seq, msg)
	if err == nil {
		err = l.store.WriteDispatch(ctx, d)
	}
	if err != nil {
		l.logger.Error("journal write failed", "dispatch_id", res.ID, "error", err)
		return false
	}
	l.recorder.Begin(res.ID)
	return true
}

// handle runs HandleMessage, turning a handler panic into an error. The
// Crossroads has already given the handler back by the time it surfaces.
func (l *Loop) handle(msg *dbus.Message, s dispatch.Sender) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return l.cr.HandleMessage(msg, s)
}

// PanicError wraps a value recovered from a handler.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

func classify(err error, msg *dbus.Message, replied bool) (ir.Outcome, string) {
	var pe *PanicError
	switch {
	case errors.As(err, &pe):
		return ir.OutcomePanicked, ""
	case errors.Is(err, dispatch.ErrNotMethodCall):
		return ir.OutcomeDropped, ""
	case errors.Is(err, dispatch.ErrSendFailed):
		return ir.OutcomeSendFailed, ""
	case err != nil:
		outcome := ir.OutcomeErrorReply
		if msg.Flags&dbus.FlagNoReplyExpected != 0 {
			outcome = ir.OutcomeSilentError
		}
		if me := dispatch.AsMethodError(err); me != nil {
			return outcome, me.Name
		}
		return outcome, dispatch.ErrNameFailed
	}
	if !replied && msg.Flags&dbus.FlagNoReplyExpected == 0 {
		return ir.OutcomeDeferred, ""
	}
	return ir.OutcomeOK, ""
}

// replyTally notes whether a reply or error left during the dispatch.
type replyTally struct {
	next    dispatch.Sender
	replied bool
}

func (t *replyTally) Send(msg *dbus.Message) error {
	if err := t.next.Send(msg); err != nil {
		return err
	}
	if msg.Type == dbus.TypeMethodReply || msg.Type == dbus.TypeError {
		t.replied = true
	}
	return nil
}
