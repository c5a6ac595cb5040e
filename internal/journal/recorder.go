package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/roach88/crossroads/internal/dispatch"
	"github.com/roach88/crossroads/internal/ir"
)

// Recorder is a dispatch.Sender that forwards each message and then
// journals it under the current dispatch. Messages the transport rejects
// are not journaled. A journal write failure is logged; the message has
// already left, so Send still succeeds.
type Recorder struct {
	next   dispatch.Sender
	store  *Store
	logger *slog.Logger

	mu         sync.Mutex
	dispatchID string
	seq        int64
}

// NewRecorder wraps next. A nil logger uses slog.Default().
func NewRecorder(next dispatch.Sender, store *Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{next: next, store: store, logger: logger}
}

// Begin starts recording under dispatchID. Message seq restarts at 1.
func (r *Recorder) Begin(dispatchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatchID = dispatchID
	r.seq = 0
}

// End stops recording. Later sends are forwarded only.
func (r *Recorder) End() {
	r.Begin("")
}

// Send implements dispatch.Sender.
func (r *Recorder) Send(msg *dbus.Message) error {
	if err := r.next.Send(msg); err != nil {
		return err
	}

	r.mu.Lock()
	dispatchID := r.dispatchID
	if dispatchID == "" {
		r.mu.Unlock()
		return nil
	}
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	rec, err := ir.RecordMessage(msg)
	if err == nil {
		rec.DispatchID = dispatchID
		rec.Seq = seq
		rec.ID, err = ir.MessageID(dispatchID, seq, rec)
	}
	if err == nil {
		err = r.store.WriteMessage(context.Background(), rec)
	}
	if err != nil {
		r.logger.Warn("journal write failed",
			"dispatch_id", dispatchID,
			"seq", seq,
			"error", err,
		)
	}
	return nil
}
